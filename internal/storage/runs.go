package storage

import (
	"context"
	"fmt"

	"github.com/Veraticus/chargemap/internal/model"
)

// SaveRun records the summary of a categorization run.
func (s *SQLiteStorage) SaveRun(ctx context.Context, run model.RunSummary) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateRun(&run); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categorization_runs (
			run_id, customer_name, started_at, finished_at,
			charges, categorized, uncategorized, skipped_rules, active_rules
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.CustomerName, run.StartedAt, run.FinishedAt,
		run.Charges, run.Categorized, run.Uncategorized, run.SkippedRules, run.ActiveRules,
	)
	if err != nil {
		return fmt.Errorf("failed to save run %s: %w", run.RunID, translateError(err))
	}
	return nil
}

// GetRuns returns the most recent runs, newest first. An empty customer
// returns runs for everyone; a non-positive limit returns all of them.
func (s *SQLiteStorage) GetRuns(ctx context.Context, customer string, limit int) ([]model.RunSummary, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `
		SELECT run_id, customer_name, started_at, finished_at,
		       charges, categorized, uncategorized, skipped_rules, active_rules
		FROM categorization_runs`
	var args []any
	if customer != "" {
		query += " WHERE customer_name = ?"
		args = append(args, customer)
	}
	query += " ORDER BY started_at DESC, rowid DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", translateError(err))
	}
	defer func() { _ = rows.Close() }()

	var runs []model.RunSummary
	for rows.Next() {
		var r model.RunSummary
		if err := rows.Scan(
			&r.RunID, &r.CustomerName, &r.StartedAt, &r.FinishedAt,
			&r.Charges, &r.Categorized, &r.Uncategorized, &r.SkippedRules, &r.ActiveRules,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}

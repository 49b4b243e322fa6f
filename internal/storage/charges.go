package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/Veraticus/chargemap/internal/model"
	"github.com/Veraticus/chargemap/internal/service"
)

const chargeColumns = `id, statement_id, provider_name, account_number, customer_name, charge_name,
	usage_unit, service_type, charge_measurement, tariff, meter_number,
	charge_id, matched_rule_id, categorized_at`

// SaveCharges stores charges in a single transaction and assigns their IDs.
func (s *SQLiteStorage) SaveCharges(ctx context.Context, charges []model.Charge) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	for i := range charges {
		if err := validateCharge(&charges[i]); err != nil {
			return fmt.Errorf("charge %d: %w", i, err)
		}
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO charges (
				statement_id, provider_name, account_number, customer_name, charge_name,
				usage_unit, service_type, charge_measurement, tariff, meter_number
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for i := range charges {
			c := &charges[i]
			result, err := stmt.ExecContext(ctx,
				c.StatementID, c.ProviderName, c.AccountNumber, c.CustomerName, c.ChargeName,
				c.UsageUnit, c.ServiceType, c.ChargeMeasurement, c.Tariff, c.MeterNumber,
			)
			if err != nil {
				return fmt.Errorf("failed to insert charge %s: %w", c.ChargeName, translateError(err))
			}
			id, err := result.LastInsertId()
			if err != nil {
				return fmt.Errorf("failed to get charge ID: %w", err)
			}
			c.ID = id
		}
		return nil
	})
}

// GetCharges returns charges matching filter in insertion order.
func (s *SQLiteStorage) GetCharges(ctx context.Context, filter service.ChargeFilter) ([]model.Charge, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var where []string
	var args []any
	if filter.CustomerName != "" {
		where = append(where, "customer_name = ?")
		args = append(args, filter.CustomerName)
	}
	if filter.UncategorizedOnly {
		where = append(where, "charge_id IS NULL")
	}

	query := "SELECT " + chargeColumns + " FROM charges"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query charges: %w", translateError(err))
	}
	defer func() { _ = rows.Close() }()

	var charges []model.Charge
	for rows.Next() {
		var c model.Charge
		if err := rows.Scan(
			&c.ID, &c.StatementID, &c.ProviderName, &c.AccountNumber, &c.CustomerName, &c.ChargeName,
			&c.UsageUnit, &c.ServiceType, &c.ChargeMeasurement, &c.Tariff, &c.MeterNumber,
			&c.ChargeID, &c.MatchedRuleID, &c.CategorizedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan charge: %w", err)
		}
		charges = append(charges, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating charges: %w", err)
	}
	return charges, nil
}

// ListCustomers returns every customer with at least one stored charge.
func (s *SQLiteStorage) ListCustomers(ctx context.Context) ([]string, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT customer_name FROM charges ORDER BY customer_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query customers: %w", translateError(err))
	}
	defer func() { _ = rows.Close() }()

	var customers []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan customer: %w", err)
		}
		customers = append(customers, name)
	}
	return customers, rows.Err()
}

// SaveResults writes each result back onto its charge row. Uncategorized
// results clear any earlier match so stored charges always reflect the latest
// run.
func (s *SQLiteStorage) SaveResults(ctx context.Context, results []model.CategorizationResult) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	for i := range results {
		if err := validateResult(&results[i]); err != nil {
			return err
		}
	}

	now := s.now()
	return s.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			UPDATE charges
			SET charge_id = ?, matched_rule_id = ?, categorized_at = ?
			WHERE id = ?`)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer func() { _ = stmt.Close() }()

		for _, r := range results {
			var chargeID *string
			if r.Targets != nil {
				id := r.Targets.ChargeID
				chargeID = &id
			}
			res, err := stmt.ExecContext(ctx, chargeID, r.MatchedRuleID, now, r.Charge.ID)
			if err != nil {
				return fmt.Errorf("failed to save result for charge %d: %w", r.Charge.ID, translateError(err))
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("%w: charge %d does not exist", ErrInvalidResult, r.Charge.ID)
			}
		}
		return nil
	})
}

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 3

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS rules (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					customer_name TEXT NOT NULL,
					priority_order INTEGER NOT NULL CHECK (priority_order > 0),
					charge_name_mapping TEXT NOT NULL,
					charge_id TEXT NOT NULL DEFAULT '',
					charge_group_heading TEXT NOT NULL DEFAULT '',
					charge_category TEXT NOT NULL DEFAULT '',
					request_type TEXT NOT NULL DEFAULT '',
					provider_name TEXT,
					account_number TEXT,
					usage_unit TEXT,
					service_type TEXT,
					tariff TEXT,
					raw_charge_name TEXT,
					meter_number TEXT,
					measurement_type TEXT,
					status TEXT NOT NULL,
					supersedes_rule_id INTEGER REFERENCES rules(id),
					superseded_by_rule_id INTEGER REFERENCES rules(id),
					created_at DATETIME NOT NULL,
					approved_at DATETIME,
					rejected_at DATETIME,
					superseded_at DATETIME
				)`,
				`CREATE INDEX idx_rules_customer_status ON rules(customer_name, status, priority_order)`,

				`CREATE TABLE IF NOT EXISTS rule_events (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					rule_id INTEGER NOT NULL REFERENCES rules(id),
					from_status TEXT NOT NULL,
					to_status TEXT NOT NULL,
					detail TEXT NOT NULL DEFAULT '',
					created_at DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_rule_events_rule ON rule_events(rule_id)`,

				`CREATE TABLE IF NOT EXISTS charges (
					id INTEGER PRIMARY KEY AUTOINCREMENT,
					statement_id TEXT NOT NULL,
					provider_name TEXT NOT NULL DEFAULT '',
					account_number TEXT NOT NULL DEFAULT '',
					customer_name TEXT NOT NULL,
					charge_name TEXT NOT NULL,
					usage_unit TEXT,
					service_type TEXT,
					charge_measurement TEXT,
					tariff TEXT,
					meter_number TEXT,
					charge_id TEXT,
					matched_rule_id INTEGER REFERENCES rules(id),
					categorized_at DATETIME,
					created_at DATETIME DEFAULT CURRENT_TIMESTAMP
				)`,
				`CREATE INDEX idx_charges_customer ON charges(customer_name)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query: %w", err)
				}
			}
			return nil
		},
	},
	{
		Version:     2,
		Description: "Add categorization run history",
		Up: func(tx *sql.Tx) error {
			queries := []string{
				`CREATE TABLE IF NOT EXISTS categorization_runs (
					run_id TEXT PRIMARY KEY,
					customer_name TEXT NOT NULL,
					started_at DATETIME NOT NULL,
					finished_at DATETIME NOT NULL,
					charges INTEGER NOT NULL DEFAULT 0,
					categorized INTEGER NOT NULL DEFAULT 0,
					uncategorized INTEGER NOT NULL DEFAULT 0,
					skipped_rules INTEGER NOT NULL DEFAULT 0,
					active_rules INTEGER NOT NULL DEFAULT 0
				)`,
				`CREATE INDEX idx_categorization_runs_customer ON categorization_runs(customer_name, started_at)`,
			}

			for _, query := range queries {
				if _, err := tx.Exec(query); err != nil {
					return fmt.Errorf("failed to execute query '%s': %w", query, err)
				}
			}
			return nil
		},
	},
	{
		Version:     3,
		Description: "Enforce one approved rule per customer priority",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE UNIQUE INDEX IF NOT EXISTS idx_rules_approved_priority
				ON rules(customer_name, priority_order)
				WHERE status = 'approved'
			`)
			return err
		},
	},
}

// SchemaVersion returns the schema version recorded in the database.
func (s *SQLiteStorage) SchemaVersion(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	var version int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to get schema version: %w", err)
	}
	return version, nil
}

// Migrate applies every migration newer than the database's user_version.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	currentVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if _, execErr := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", migration.Version)); execErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", execErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"version", migration.Version,
			"description", migration.Description)
	}

	finalVersion, err := s.SchemaVersion(ctx)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}

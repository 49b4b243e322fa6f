package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Veraticus/chargemap/internal/cli"
	"github.com/Veraticus/chargemap/internal/storage"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long:  `Apply any pending schema migrations to the chargemap database.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			status, err := cmd.Flags().GetBool("status")
			if err != nil {
				return fmt.Errorf("failed to get status flag: %w", err)
			}

			s, err := currentSettings()
			if err != nil {
				return err
			}

			store, err := storage.NewSQLiteStorage(s.DatabasePath)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer func() {
				if closeErr := store.Close(); closeErr != nil {
					slog.Warn("Failed to close database", "error", closeErr)
				}
			}()

			ctx := cmd.Context()
			if status {
				version, err := store.SchemaVersion(ctx)
				if err != nil {
					return fmt.Errorf("failed to read schema version: %w", err)
				}
				msg := fmt.Sprintf("Schema version %d of %d (%s)", version, storage.ExpectedSchemaVersion, store.Path())
				if version < storage.ExpectedSchemaVersion {
					fmt.Fprintln(cmd.OutOrStdout(), cli.FormatWarning(msg+", run 'chargemap migrate' to upgrade"))
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo(msg))
				}
				return nil
			}

			if err := store.Migrate(ctx); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("Database is up to date"))
			return nil
		},
	}

	cmd.Flags().Bool("status", false, "Show migration status without applying")

	return cmd
}

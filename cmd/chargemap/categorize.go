package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Veraticus/chargemap/internal/cli"
	"github.com/Veraticus/chargemap/internal/engine"
	"github.com/Veraticus/chargemap/internal/model"
)

func categorizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "categorize [customer...]",
		Short: "Categorize stored charges with the approved rules",
		Long: `Categorize every stored charge of the given customers, or of all customers
when none are given. Each charge takes the targets of the first approved rule,
in ascending priority, whose pattern and scope filters match it. Charges no
rule matches are left uncategorized.

Customers are processed concurrently (engine.concurrency). A run that is
interrupted keeps the results of customers that already finished.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			quiet, _ := cmd.Flags().GetBool("quiet")

			s, err := currentSettings()
			if err != nil {
				return err
			}

			parent, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			handler := cli.NewInterruptHandler(cmd.ErrOrStderr())
			ctx := handler.HandleInterrupts(parent, "Categorization", true)

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := store.Close(); closeErr != nil {
					slog.Warn("Failed to close database", "error", closeErr)
				}
			}()

			customers := args
			if len(customers) == 0 {
				customers, err = store.ListCustomers(ctx)
				if err != nil {
					return fmt.Errorf("failed to list customers: %w", err)
				}
			}
			if len(customers) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("No charges to categorize, import some with 'chargemap charges import'"))
				return nil
			}

			cfg := engine.DefaultConfig()
			cfg.Concurrency = s.Concurrency
			eng := engine.NewWithConfig(store, cfg)

			if !quiet {
				bar := cli.NewProgressBar(cmd.ErrOrStderr(), len(customers), "Categorizing")
				eng.OnCustomerDone(func(summary model.RunSummary) {
					bar.Describe("[cyan][bold]" + summary.CustomerName + "[reset]")
					_ = bar.Add(1)
				})
				defer func() { _ = bar.Finish() }()
			}

			summaries, err := eng.Run(ctx, customers)
			if err != nil {
				if handler.WasInterrupted() && errors.Is(err, ctx.Err()) {
					return nil
				}
				return fmt.Errorf("categorization failed: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout())
			if err := printSummaries(cmd.OutOrStdout(), summaries); err != nil {
				return err
			}

			var skipped int
			for _, summary := range summaries {
				skipped += summary.SkippedRules
			}
			if skipped > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatWarning(
					fmt.Sprintf("%d approved rules have invalid patterns and were skipped, see the log for details", skipped)))
			}
			return nil
		},
	}

	cmd.Flags().BoolP("quiet", "q", false, "Do not show a progress bar")

	return cmd
}

func runsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent categorization runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			customer, _ := cmd.Flags().GetString("customer")
			limit, _ := cmd.Flags().GetInt("limit")

			ctx := cmd.Context()
			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			runs, err := store.GetRuns(ctx, customer, limit)
			if err != nil {
				return fmt.Errorf("failed to list runs: %w", err)
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("No categorization runs yet"))
				return nil
			}
			return printSummaries(cmd.OutOrStdout(), runs)
		},
	}

	cmd.Flags().String("customer", "", "Only show runs for this customer")
	cmd.Flags().Int("limit", 20, "Maximum number of runs to show (0 for all)")

	return cmd
}

func printSummaries(out io.Writer, summaries []model.RunSummary) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CUSTOMER\tCHARGES\tCATEGORIZED\tUNCATEGORIZED\tRULES\tSTARTED\tRUN")
	fmt.Fprintln(w, "────────\t───────\t───────────\t─────────────\t─────\t───────\t───")
	for _, s := range summaries {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			s.CustomerName,
			s.Charges,
			s.Categorized,
			s.Uncategorized,
			s.ActiveRules,
			s.StartedAt.Local().Format("2006-01-02 15:04:05"),
			s.RunID,
		)
	}
	return w.Flush()
}

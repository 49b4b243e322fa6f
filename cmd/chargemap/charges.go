package main

import (
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Veraticus/chargemap/internal/cli"
	"github.com/Veraticus/chargemap/internal/ingest"
	"github.com/Veraticus/chargemap/internal/model"
	"github.com/Veraticus/chargemap/internal/service"
)

func chargesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "charges",
		Short: "Import and inspect statement charges",
	}

	cmd.AddCommand(chargesImportCmd())
	cmd.AddCommand(chargesListCmd())

	return cmd
}

func chargesImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import charges from a CSV export",
		Long: `Import statement charges from a CSV file. Required columns are
statement_id, customer_name and charge_name; provider_name, account_number,
usage_unit, service_type, charge_measurement, tariff and meter_number are
optional.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := currentSettings()
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer func() { _ = f.Close() }()

			res, err := ingest.ReadCharges(f, ingest.Options{NullValue: s.NullValue})
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			for _, rowErr := range res.Errors {
				slog.Warn("Skipped charge row", "file", args[0], "error", rowErr)
			}

			ctx := cmd.Context()
			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := store.SaveCharges(ctx, res.Charges); err != nil {
				return fmt.Errorf("failed to save charges: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Imported %d charges", len(res.Charges))))
			if n := len(res.Errors); n > 0 {
				fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("%d rows had errors and were skipped", n)))
			}
			return nil
		},
	}
}

func chargesListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored charges",
		RunE: func(cmd *cobra.Command, _ []string) error {
			customer, _ := cmd.Flags().GetString("customer")
			uncategorized, _ := cmd.Flags().GetBool("uncategorized")
			limit, _ := cmd.Flags().GetInt("limit")

			ctx := cmd.Context()
			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			charges, err := store.GetCharges(ctx, service.ChargeFilter{
				CustomerName:      customer,
				UncategorizedOnly: uncategorized,
				Limit:             limit,
			})
			if err != nil {
				return fmt.Errorf("failed to list charges: %w", err)
			}

			if len(charges) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("No charges found"))
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCUSTOMER\tSTATEMENT\tCHARGE NAME\tCHARGE ID\tRULE")
			fmt.Fprintln(w, "──\t────────\t─────────\t───────────\t─────────\t────")
			for _, c := range charges {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
					c.ID,
					c.CustomerName,
					c.StatementID,
					truncate(c.ChargeName, 40),
					model.Deref(c.ChargeID, "-"),
					matchedRule(c.MatchedRuleID),
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().String("customer", "", "Only show charges for this customer")
	cmd.Flags().Bool("uncategorized", false, "Only show charges no rule matched")
	cmd.Flags().Int("limit", 100, "Maximum number of charges to show (0 for all)")

	return cmd
}

func matchedRule(id *int64) string {
	if id == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *id)
}

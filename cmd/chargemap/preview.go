package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Veraticus/chargemap/internal/cli"
	"github.com/Veraticus/chargemap/internal/engine"
	"github.com/Veraticus/chargemap/internal/model"
)

func previewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "preview [rule-id]",
		Short: "Show what approving a rule would change",
		Long: `Categorize a customer's stored charges with the current approved rules and
again as if the rule were approved, and list the charges whose outcome
changes. Nothing is written.

Pass the ID of a pending rule, or describe a candidate with the same flags as
'rules submit'.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")

			ctx := cmd.Context()
			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			eng := engine.New(store)

			var report *engine.PreviewReport
			if len(args) == 1 {
				id, err := parseRuleID(args[0])
				if err != nil {
					return err
				}
				report, err = eng.PreviewRule(ctx, id)
				if err != nil {
					return err
				}
			} else {
				candidate, err := ruleFromFlags(cmd, nil)
				if err != nil {
					return err
				}
				if err := fillPriority(ctx, store, &candidate); err != nil {
					return err
				}
				report, err = eng.Preview(ctx, candidate)
				if err != nil {
					return err
				}
			}

			return printPreview(cmd.OutOrStdout(), report, limit)
		},
	}

	addRuleFlags(cmd)
	cmd.Flags().Int("limit", 50, "Maximum number of changed charges to list (0 for all)")

	return cmd
}

func printPreview(out io.Writer, report *engine.PreviewReport, limit int) error {
	c := report.Candidate
	fmt.Fprintln(out, cli.FormatTitle(fmt.Sprintf("Preview for %s, priority %d", c.CustomerName, c.PriorityOrder)))
	fmt.Fprintf(out, "  Pattern:     %s\n", c.ChargeNameMapping)
	fmt.Fprintf(out, "  Charge ID:   %s\n", c.Targets.ChargeID)
	fmt.Fprintf(out, "  Scope:       %s\n", formatScope(c.Scope))
	fmt.Fprintf(out, "  Categorized: %d → %d of %d\n", report.Before.Categorized, report.After.Categorized, report.After.Total)
	fmt.Fprintln(out)

	if len(report.Changes) == 0 {
		fmt.Fprintln(out, cli.FormatInfo("No charge would change"))
		return nil
	}

	fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("%d charges would change", len(report.Changes))))

	changes := report.Changes
	if limit > 0 && len(changes) > limit {
		changes = changes[:limit]
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHARGE\tNAME\tBEFORE\tAFTER")
	fmt.Fprintln(w, "──────\t────\t──────\t─────")
	for _, ch := range changes {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n",
			ch.After.Charge.ID,
			truncate(ch.After.Charge.ChargeName, 40),
			outcome(ch.Before),
			outcome(ch.After),
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	if hidden := len(report.Changes) - len(changes); hidden > 0 {
		fmt.Fprintf(out, "... and %d more\n", hidden)
	}
	return nil
}

func outcome(r model.CategorizationResult) string {
	if !r.Categorized() {
		return "uncategorized"
	}
	return fmt.Sprintf("%s (rule %d)", r.Targets.ChargeID, *r.MatchedRuleID)
}

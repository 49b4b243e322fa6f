package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Veraticus/chargemap/internal/cli"
	"github.com/Veraticus/chargemap/internal/ingest"
	"github.com/Veraticus/chargemap/internal/model"
	"github.com/Veraticus/chargemap/internal/rules"
	"github.com/Veraticus/chargemap/internal/service"
)

func rulesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage categorization rules",
		Long: `Submit, review and inspect customer categorization rules.

New rules wait in pending approval until approved or rejected. Only approved
rules categorize charges, in ascending priority order.`,
	}

	cmd.AddCommand(rulesSubmitCmd())
	cmd.AddCommand(rulesImportCmd())
	cmd.AddCommand(rulesApproveCmd())
	cmd.AddCommand(rulesRejectCmd())
	cmd.AddCommand(rulesSupersedeCmd())
	cmd.AddCommand(rulesReorderCmd())
	cmd.AddCommand(rulesListCmd())
	cmd.AddCommand(rulesPendingCmd())
	cmd.AddCommand(rulesShowCmd())
	cmd.AddCommand(rulesHistoryCmd())

	return cmd
}

func rulesSubmitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a new rule for approval",
		Example: `  chargemap rules submit --customer acme --value "Delivery Charge" --condition starts_with --charge-id DELIVERY
  chargemap rules submit --customer acme --priority 10 --pattern '(?i)^sales tax' --charge-id TAX --provider "Metro Power"`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			candidate, err := ruleFromFlags(cmd, nil)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			if err := fillPriority(ctx, store, &candidate); err != nil {
				return err
			}

			id, err := store.SubmitRule(ctx, candidate)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatPending(
				fmt.Sprintf("Submitted rule %d for %s at priority %d, waiting for approval", id, candidate.CustomerName, candidate.PriorityOrder)))
			return nil
		},
	}

	addRuleFlags(cmd)

	return cmd
}

// fillPriority assigns the next free priority when none was given.
func fillPriority(ctx context.Context, store service.RuleStore, candidate *model.Rule) error {
	if candidate.PriorityOrder != 0 || candidate.CustomerName == "" {
		return nil
	}
	next, err := store.NextPriority(ctx, candidate.CustomerName)
	if err != nil {
		return fmt.Errorf("failed to pick a priority: %w", err)
	}
	candidate.PriorityOrder = next
	return nil
}

func rulesImportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Submit candidate rules from a CSV file",
		Long: `Submit every row of a CSV file as a pending rule. Required columns are
customer_name, priority_order, charge_name_mapping and charge_id. An optional
condition column treats charge_name_mapping as literal text.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			approve, _ := cmd.Flags().GetBool("approve")
			dryRun, _ := cmd.Flags().GetBool("dry-run")

			s, err := currentSettings()
			if err != nil {
				return err
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			defer func() { _ = f.Close() }()

			res, err := ingest.ReadRules(f, ingest.Options{NullValue: s.NullValue})
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			for _, rowErr := range res.Errors {
				slog.Warn("Skipped rule row", "file", args[0], "error", rowErr)
			}

			ctx := cmd.Context()
			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			var target service.RuleStore = store
			if dryRun {
				existing, err := store.ListRules(ctx, service.RuleFilter{})
				if err != nil {
					return fmt.Errorf("failed to load rules: %w", err)
				}
				mem := rules.NewStore()
				if err := mem.Restore(existing); err != nil {
					return fmt.Errorf("failed to load rules: %w", err)
				}
				target = mem
			}

			var submitted, approved, failed int
			for _, candidate := range res.Rules {
				id, err := target.SubmitRule(ctx, candidate)
				if err != nil {
					failed++
					slog.Warn("Rule rejected on submit",
						"customer", candidate.CustomerName,
						"priority", candidate.PriorityOrder,
						"error", errorMessage(err))
					continue
				}
				submitted++

				if !approve {
					continue
				}
				if err := target.ApproveRule(ctx, id); err != nil {
					slog.Warn("Rule left pending", "rule_id", id, "error", errorMessage(err))
					continue
				}
				approved++
			}

			out := cmd.OutOrStdout()
			if dryRun {
				fmt.Fprintln(out, cli.FormatInfo("Dry run, nothing was written"))
			}
			fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Submitted %d rules", submitted)))
			if approve {
				fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("Approved %d of them", approved)))
			}
			if n := failed + len(res.Errors); n > 0 {
				fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("%d rows were not submitted", n)))
			}
			return nil
		},
	}

	cmd.Flags().Bool("approve", false, "Approve each rule right after submitting it")
	cmd.Flags().Bool("dry-run", false, "Check the file against the stored rules without writing anything")

	return cmd
}

func rulesApproveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve <rule-id>...",
		Short: "Approve pending rules",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")
			return decideRules(cmd, args, model.RuleApproved, yes)
		},
	}

	cmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")

	return cmd
}

func rulesRejectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reject <rule-id>...",
		Short: "Reject pending rules",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			yes, _ := cmd.Flags().GetBool("yes")
			return decideRules(cmd, args, model.RuleRejected, yes)
		},
	}

	cmd.Flags().BoolP("yes", "y", false, "Do not ask for confirmation")

	return cmd
}

var errSomeFailed = errors.New("some rules could not be updated")

func decideRules(cmd *cobra.Command, args []string, decision model.RuleStatus, yes bool) error {
	ids, err := parseRuleIDs(args)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	out := cmd.OutOrStdout()
	reader := cli.NewNonBlockingReader(cmd.InOrStdin())
	verb := "Approve"
	if decision == model.RuleRejected {
		verb = "Reject"
	}

	failed := 0
	for _, id := range ids {
		if !yes {
			r, err := store.GetRule(ctx, id)
			if err != nil {
				fmt.Fprintln(out, cli.FormatError(errorMessage(err)))
				failed++
				continue
			}
			printRuleDetail(out, r)
			ok, err := cli.Confirm(ctx, reader, out, fmt.Sprintf("%s rule %d?", verb, id))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(out, cli.FormatInfo(fmt.Sprintf("Skipped rule %d", id)))
				continue
			}
		}

		if err := applyDecision(ctx, store, id, decision); err != nil {
			fmt.Fprintln(out, cli.FormatError(fmt.Sprintf("Rule %d: %s", id, errorMessage(err))))
			failed++
			continue
		}
		fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Rule %d %s", id, decision)))
	}

	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", errSomeFailed, failed, len(ids))
	}
	return nil
}

func applyDecision(ctx context.Context, store service.RuleStore, id int64, decision model.RuleStatus) error {
	if decision == model.RuleRejected {
		return store.RejectRule(ctx, id)
	}
	return store.ApproveRule(ctx, id)
}

func rulesSupersedeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "supersede <rule-id>",
		Short: "Submit a replacement for an approved rule",
		Long: `Submit a pending replacement for an approved rule. Flags that are not
given keep the value of the rule being replaced, including its priority.
When the replacement is approved the old rule becomes superseded.`,
		Example: `  chargemap rules supersede 12 --charge-id DELIVERY_FIXED
  chargemap rules supersede 12 --pattern '^Delivery' --clear-scope tariff`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRuleID(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			old, err := store.GetRule(ctx, id)
			if err != nil {
				return err
			}

			replacement, err := ruleFromFlags(cmd, old)
			if err != nil {
				return err
			}

			newID, err := store.SupersedeRule(ctx, id, replacement)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), cli.FormatPending(
				fmt.Sprintf("Submitted rule %d to replace rule %d, approve it to take effect", newID, id)))
			return nil
		},
	}

	addRuleFlags(cmd)

	return cmd
}

func rulesReorderCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reorder <rule-id>=<priority>...",
		Short: "Move approved rules to new priorities in one step",
		Long: `Give approved rules of one customer new priorities. All moves apply
together, so two rules can swap places. Each moved rule is superseded by an
approved copy at its new priority.`,
		Example: `  chargemap rules reorder --customer acme 12=2 15=1`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			customer, _ := cmd.Flags().GetString("customer")
			if customer == "" {
				return fmt.Errorf("--customer is required")
			}

			priorities, err := parsePriorities(args)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			replaced, err := store.ReorderRules(ctx, customer, priorities)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(replaced) == 0 {
				fmt.Fprintln(out, cli.FormatInfo("No rule changed priority"))
				return nil
			}
			for _, oldID := range slices.Sorted(maps.Keys(replaced)) {
				fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Rule %d is now rule %d at priority %d",
					oldID, replaced[oldID], priorities[oldID])))
			}
			return nil
		},
	}

	cmd.Flags().String("customer", "", "Customer whose rules are reordered")

	return cmd
}

// parsePriorities reads "id=priority" pairs.
func parsePriorities(args []string) (map[int64]int, error) {
	priorities := make(map[int64]int, len(args))
	for _, arg := range args {
		idPart, priorityPart, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, fmt.Errorf("invalid move %q, expected <rule-id>=<priority>", arg)
		}
		id, err := parseRuleID(idPart)
		if err != nil {
			return nil, err
		}
		priority, err := strconv.Atoi(priorityPart)
		if err != nil {
			return nil, fmt.Errorf("invalid priority in %q", arg)
		}
		if _, dup := priorities[id]; dup {
			return nil, fmt.Errorf("rule %d is listed twice", id)
		}
		priorities[id] = priority
	}
	return priorities, nil
}

func rulesListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List rules",
		RunE: func(cmd *cobra.Command, _ []string) error {
			customer, _ := cmd.Flags().GetString("customer")
			statusFlag, _ := cmd.Flags().GetString("status")

			filter := service.RuleFilter{CustomerName: customer}
			if statusFlag != "" {
				status, err := model.ParseRuleStatus(statusFlag)
				if err != nil {
					return err
				}
				filter.Status = status
			}

			ctx := cmd.Context()
			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			rs, err := store.ListRules(ctx, filter)
			if err != nil {
				return fmt.Errorf("failed to list rules: %w", err)
			}
			if len(rs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("No rules found"))
				return nil
			}
			return printRuleTable(cmd.OutOrStdout(), rs)
		},
	}

	cmd.Flags().String("customer", "", "Only show rules for this customer")
	cmd.Flags().String("status", "", "Only show rules in this status (draft, pending_approval, approved, rejected, superseded)")

	return cmd
}

func rulesPendingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List rules waiting for approval",
		RunE: func(cmd *cobra.Command, _ []string) error {
			customer, _ := cmd.Flags().GetString("customer")

			ctx := cmd.Context()
			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			rs, err := store.PendingRules(ctx, customer)
			if err != nil {
				return fmt.Errorf("failed to list pending rules: %w", err)
			}
			if len(rs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess("No rules waiting for approval"))
				return nil
			}
			return printRuleTable(cmd.OutOrStdout(), rs)
		},
	}

	cmd.Flags().String("customer", "", "Only show rules for this customer")

	return cmd
}

func rulesShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <rule-id>",
		Short: "Show a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRuleID(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			r, err := store.GetRule(ctx, id)
			if err != nil {
				return err
			}
			printRuleDetail(cmd.OutOrStdout(), r)
			return nil
		},
	}
}

func rulesHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <rule-id>",
		Short: "Show the lifecycle events of a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRuleID(args[0])
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			return printHistory(ctx, cmd.OutOrStdout(), store, id)
		},
	}
}

func printHistory(ctx context.Context, out io.Writer, store service.RuleStore, id int64) error {
	events, err := store.RuleHistory(ctx, id)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "AT\tFROM\tTO\tDETAIL")
	fmt.Fprintln(w, "──\t────\t──\t──────")
	for _, e := range events {
		from := string(e.FromStatus)
		if from == "" {
			from = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.At.Format("2006-01-02 15:04:05"), from, e.ToStatus, e.Detail)
	}
	return w.Flush()
}

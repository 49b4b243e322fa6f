package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/Veraticus/chargemap/internal/cli"
	"github.com/Veraticus/chargemap/internal/config"
	"github.com/Veraticus/chargemap/internal/model"
	"github.com/Veraticus/chargemap/internal/storage"
)

func currentSettings() (*config.Settings, error) {
	if settings != nil {
		return settings, nil
	}
	return nil, fmt.Errorf("configuration not loaded")
}

func initStorage(ctx context.Context) (*storage.SQLiteStorage, error) {
	s, err := currentSettings()
	if err != nil {
		return nil, err
	}

	store, err := storage.NewSQLiteStorage(s.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

func parseRuleID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid rule ID %q", arg)
	}
	return id, nil
}

func parseRuleIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := parseRuleID(arg)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func printRuleTable(w io.Writer, rs []model.Rule) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCUSTOMER\tPRIORITY\tSTATUS\tPATTERN\tCHARGE ID\tSCOPE")
	fmt.Fprintln(tw, "──\t────────\t────────\t──────\t───────\t─────────\t─────")
	for _, r := range rs {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%s\t%s\n",
			r.ID,
			r.CustomerName,
			r.PriorityOrder,
			cli.FormatRuleStatus(r.Status),
			truncate(r.ChargeNameMapping, 40),
			r.Targets.ChargeID,
			formatScope(r.Scope),
		)
	}
	return tw.Flush()
}

func printRuleDetail(w io.Writer, r *model.Rule) {
	fmt.Fprintln(w, cli.FormatTitle(fmt.Sprintf("Rule %d", r.ID)))
	fmt.Fprintf(w, "  Customer:      %s\n", r.CustomerName)
	fmt.Fprintf(w, "  Priority:      %d\n", r.PriorityOrder)
	fmt.Fprintf(w, "  Status:        %s\n", cli.FormatRuleStatus(r.Status))
	fmt.Fprintf(w, "  Pattern:       %s\n", r.ChargeNameMapping)
	fmt.Fprintf(w, "  Charge ID:     %s\n", r.Targets.ChargeID)
	if r.Targets.ChargeGroupHeading != "" {
		fmt.Fprintf(w, "  Group heading: %s\n", r.Targets.ChargeGroupHeading)
	}
	if r.Targets.ChargeCategory != "" {
		fmt.Fprintf(w, "  Category:      %s\n", r.Targets.ChargeCategory)
	}
	if r.Targets.RequestType != "" {
		fmt.Fprintf(w, "  Request type:  %s\n", r.Targets.RequestType)
	}
	fmt.Fprintf(w, "  Scope:         %s\n", formatScope(r.Scope))
	fmt.Fprintf(w, "  Created:       %s\n", r.CreatedAt.Format("2006-01-02 15:04:05"))
	if r.ApprovedAt != nil {
		fmt.Fprintf(w, "  Approved:      %s\n", r.ApprovedAt.Format("2006-01-02 15:04:05"))
	}
	if r.RejectedAt != nil {
		fmt.Fprintf(w, "  Rejected:      %s\n", r.RejectedAt.Format("2006-01-02 15:04:05"))
	}
	if r.SupersededAt != nil {
		fmt.Fprintf(w, "  Superseded:    %s\n", r.SupersededAt.Format("2006-01-02 15:04:05"))
	}
	if r.SupersedesRuleID != nil {
		fmt.Fprintf(w, "  Replaces:      %d\n", *r.SupersedesRuleID)
	}
	if r.SupersededByRuleID != nil {
		fmt.Fprintf(w, "  Replaced by:   %d\n", *r.SupersededByRuleID)
	}
}

// formatScope renders the set scope filters as key=value pairs. A set filter
// holding the empty string is shown as key="".
func formatScope(s model.RuleScope) string {
	fields := []struct {
		value *string
		name  string
	}{
		{s.ProviderName, "provider"},
		{s.AccountNumber, "account"},
		{s.UsageUnit, "usage_unit"},
		{s.ServiceType, "service_type"},
		{s.Tariff, "tariff"},
		{s.RawChargeName, "raw_charge_name"},
		{s.MeterNumber, "meter"},
		{s.MeasurementType, "measurement"},
	}

	var parts []string
	for _, f := range fields {
		if f.value == nil {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s=%q", f.name, *f.value))
	}
	if len(parts) == 0 {
		return "any"
	}
	return strings.Join(parts, " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/Veraticus/chargemap/internal/model"
	"github.com/Veraticus/chargemap/internal/pattern"
)

// scopeFlags maps scope flag names to the rule field they set.
var scopeFlags = []struct {
	field func(*model.RuleScope) **string
	name  string
	usage string
}{
	{func(s *model.RuleScope) **string { return &s.ProviderName }, "provider", "Only match charges from this provider"},
	{func(s *model.RuleScope) **string { return &s.AccountNumber }, "account", "Only match charges on this account number"},
	{func(s *model.RuleScope) **string { return &s.UsageUnit }, "usage-unit", "Only match charges with this usage unit"},
	{func(s *model.RuleScope) **string { return &s.ServiceType }, "service-type", "Only match charges with this service type"},
	{func(s *model.RuleScope) **string { return &s.Tariff }, "tariff", "Only match charges on this tariff"},
	{func(s *model.RuleScope) **string { return &s.RawChargeName }, "raw-charge-name", "Only match charges with exactly this name"},
	{func(s *model.RuleScope) **string { return &s.MeterNumber }, "meter", "Only match charges on this meter"},
	{func(s *model.RuleScope) **string { return &s.MeasurementType }, "measurement", "Only match charges with this measurement type"},
}

// addRuleFlags registers the flags that describe a candidate rule.
func addRuleFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("customer", "", "Customer the rule applies to")
	f.Int("priority", 0, "Priority order, lower runs first (default: next free priority)")
	f.String("pattern", "", "Regular expression matched against the charge name")
	f.String("condition", "contains", "How --value is matched: exact, contains, starts_with, ends_with, regex")
	f.String("value", "", "Literal charge name text, combined with --condition")
	f.Bool("ignore-case", false, "Match the charge name case-insensitively")
	f.String("charge-id", "", "Standardized charge ID assigned on match")
	f.String("group", "", "Charge group heading assigned on match")
	f.String("category", "", "Charge category assigned on match")
	f.String("request-type", "", "Request type assigned on match")
	for _, sf := range scopeFlags {
		f.String(sf.name, "", sf.usage)
	}
	f.StringSlice("clear-scope", nil, "Scope filters to remove from the base rule (e.g. tariff,meter)")
}

// ruleFromFlags builds a draft candidate from the flags set on cmd. When base
// is non-nil, flags that were not given keep the base rule's values.
func ruleFromFlags(cmd *cobra.Command, base *model.Rule) (model.Rule, error) {
	f := cmd.Flags()

	var r model.Rule
	if base != nil {
		r = model.Rule{
			CustomerName:      base.CustomerName,
			PriorityOrder:     base.PriorityOrder,
			ChargeNameMapping: base.ChargeNameMapping,
			Targets:           base.Targets,
			Scope:             base.Scope,
		}
	}
	r.Status = model.RuleDraft

	if f.Changed("customer") {
		r.CustomerName, _ = f.GetString("customer")
	}
	if f.Changed("priority") {
		r.PriorityOrder, _ = f.GetInt("priority")
	}

	mapping, err := mappingFromFlags(f, r.ChargeNameMapping)
	if err != nil {
		return model.Rule{}, err
	}
	r.ChargeNameMapping = mapping

	setString(f, "charge-id", &r.Targets.ChargeID)
	setString(f, "group", &r.Targets.ChargeGroupHeading)
	setString(f, "category", &r.Targets.ChargeCategory)
	setString(f, "request-type", &r.Targets.RequestType)

	cleared, _ := f.GetStringSlice("clear-scope")
	for _, name := range cleared {
		field := scopeField(&r.Scope, name)
		if field == nil {
			return model.Rule{}, fmt.Errorf("unknown scope filter %q", name)
		}
		*field = nil
	}
	for _, sf := range scopeFlags {
		if !f.Changed(sf.name) {
			continue
		}
		v, _ := f.GetString(sf.name)
		*sf.field(&r.Scope) = model.StringPtr(v)
	}

	return r, nil
}

// mappingFromFlags returns the charge name mapping the flags describe, or
// current when they describe none. --ignore-case on its own applies to
// current.
func mappingFromFlags(f *pflag.FlagSet, current string) (string, error) {
	ignoreCase, _ := f.GetBool("ignore-case")
	hasPattern, hasValue := f.Changed("pattern"), f.Changed("value")

	switch {
	case hasPattern && hasValue:
		return "", fmt.Errorf("--pattern and --value are mutually exclusive")
	case hasPattern:
		p, _ := f.GetString("pattern")
		return pattern.BuildPattern(pattern.ConditionRegex, p, ignoreCase)
	case hasValue:
		name, _ := f.GetString("condition")
		cond, err := pattern.ParseCondition(name)
		if err != nil {
			return "", err
		}
		v, _ := f.GetString("value")
		return pattern.BuildPattern(cond, v, ignoreCase)
	case f.Changed("ignore-case") && ignoreCase:
		if current == "" {
			return "", fmt.Errorf("--ignore-case needs --pattern or --value")
		}
		return pattern.BuildPattern(pattern.ConditionRegex, current, true)
	}
	return current, nil
}

func setString(f *pflag.FlagSet, name string, dst *string) {
	if f.Changed(name) {
		*dst, _ = f.GetString(name)
	}
}

// scopeField accepts flag names and the stored column names.
func scopeField(s *model.RuleScope, name string) **string {
	for _, sf := range scopeFlags {
		if sf.name == name {
			return sf.field(s)
		}
	}
	switch name {
	case "provider_name":
		return &s.ProviderName
	case "account_number":
		return &s.AccountNumber
	case "usage_unit":
		return &s.UsageUnit
	case "service_type":
		return &s.ServiceType
	case "raw_charge_name":
		return &s.RawChargeName
	case "meter_number":
		return &s.MeterNumber
	case "measurement_type", "charge_measurement":
		return &s.MeasurementType
	}
	return nil
}

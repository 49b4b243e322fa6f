package ingest

import (
	"fmt"
	"io"
	"strconv"

	"github.com/Veraticus/chargemap/internal/model"
	"github.com/Veraticus/chargemap/internal/pattern"
)

// RuleResult holds the candidate rules read from a CSV and the rows that
// failed.
type RuleResult struct {
	Rules   []model.Rule
	Errors  []error
	Skipped int
}

// ReadRules parses candidate rule rows. When a row has a condition,
// charge_name_mapping is treated as a literal value and turned into a pattern
// with pattern.BuildPattern. A true ignore_case adds (?i) with or without a
// condition. Rows are only
// parsed here: structural validation happens when they are submitted.
func ReadRules(r io.Reader, opts Options) (RuleResult, error) {
	var res RuleResult
	t, err := newTable(r, opts, "customer_name", "priority_order", "charge_name_mapping", "charge_id")
	if err != nil {
		return res, err
	}

	for {
		rec, err := t.next()
		if err == io.EOF {
			break
		}
		if err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("line %d: %w", t.line, err))
			continue
		}
		if rec.blank() {
			res.Skipped++
			continue
		}

		rule, err := parseRule(rec)
		if err != nil {
			res.Errors = append(res.Errors, fmt.Errorf("line %d: %w", t.line, err))
			continue
		}
		res.Rules = append(res.Rules, rule)
	}
	return res, nil
}

func parseRule(rec record) (model.Rule, error) {
	priority, err := strconv.Atoi(rec.value("priority_order"))
	if err != nil {
		return model.Rule{}, fmt.Errorf("priority_order: %w", err)
	}

	ignoreCase := false
	if v := rec.value("ignore_case"); v != "" {
		if ignoreCase, err = strconv.ParseBool(v); err != nil {
			return model.Rule{}, fmt.Errorf("ignore_case: %w", err)
		}
	}

	mapping := rec.value("charge_name_mapping")
	name := rec.value("condition")
	if name != "" || ignoreCase {
		// Without a condition the mapping is already a regex.
		cond := pattern.ConditionRegex
		if name != "" {
			if cond, err = pattern.ParseCondition(name); err != nil {
				return model.Rule{}, err
			}
		}
		if mapping, err = pattern.BuildPattern(cond, mapping, ignoreCase); err != nil {
			return model.Rule{}, err
		}
	}

	return model.Rule{
		CustomerName:      rec.value("customer_name"),
		PriorityOrder:     priority,
		ChargeNameMapping: mapping,
		Targets: model.RuleTargets{
			ChargeID:           rec.value("charge_id"),
			ChargeGroupHeading: rec.value("charge_group_heading"),
			ChargeCategory:     rec.value("charge_category"),
			RequestType:        rec.value("request_type"),
		},
		Scope: model.RuleScope{
			ProviderName:    rec.optional("provider_name"),
			AccountNumber:   rec.optional("account_number"),
			UsageUnit:       rec.optional("usage_unit"),
			ServiceType:     rec.optional("service_type"),
			Tariff:          rec.optional("tariff"),
			RawChargeName:   rec.optional("raw_charge_name"),
			MeterNumber:     rec.optional("meter_number"),
			MeasurementType: rec.optional("measurement_type"),
		},
	}, nil
}

package pattern

import (
	"log/slog"
	"regexp"

	"github.com/Veraticus/chargemap/internal/common"
	"github.com/Veraticus/chargemap/internal/model"
	"github.com/Veraticus/chargemap/internal/rules"
)

var _ Matcher = (*MatcherImpl)(nil)

type compiledRule struct {
	re   *regexp.Regexp
	rule Rule
}

// MatcherImpl implements Matcher. Rules are grouped by customer and kept in
// ascending priority order; the first rule whose scope and pattern both
// match a charge wins.
type MatcherImpl struct {
	byCustomer map[string][]compiledRule
	invalid    []error
}

// NewMatcher creates a matcher over a snapshot of rules. Only approved rules
// are kept. Rules whose pattern fails to compile are logged and skipped.
func NewMatcher(rs []Rule) *MatcherImpl {
	active := make([]Rule, 0, len(rs))
	for _, r := range rs {
		if r.Active() {
			active = append(active, r)
		}
	}
	rules.SortByPriority(active)

	m := &MatcherImpl{byCustomer: make(map[string][]compiledRule)}
	for _, r := range active {
		re, err := common.CompileRegex(r.ChargeNameMapping)
		if err != nil {
			perr := &common.InvalidPatternError{RuleID: r.ID, Pattern: r.ChargeNameMapping, Err: err}
			m.invalid = append(m.invalid, perr)
			slog.Warn("Skipping rule with invalid pattern",
				"rule_id", r.ID,
				"customer", r.CustomerName,
				"error", perr)
			continue
		}
		m.byCustomer[r.CustomerName] = append(m.byCustomer[r.CustomerName], compiledRule{rule: r, re: re})
	}
	return m
}

// Categorize matches charges against rules in one pass.
func Categorize(charges []model.Charge, rs []Rule) []model.CategorizationResult {
	return NewMatcher(rs).Categorize(charges)
}

// Categorize resolves each charge, preserving input order.
func (m *MatcherImpl) Categorize(charges []model.Charge) []model.CategorizationResult {
	results := make([]model.CategorizationResult, len(charges))
	for i, c := range charges {
		results[i] = m.Match(c)
	}
	return results
}

// Match resolves one charge to the first eligible rule of its customer.
func (m *MatcherImpl) Match(c model.Charge) model.CategorizationResult {
	for _, cr := range m.byCustomer[c.CustomerName] {
		if !ScopeMatches(cr.rule.Scope, c) {
			continue
		}
		if !cr.re.MatchString(c.ChargeName) {
			continue
		}
		id := cr.rule.ID
		targets := cr.rule.Targets
		return model.CategorizationResult{
			Charge:        c,
			MatchedRuleID: &id,
			Targets:       &targets,
		}
	}
	return model.CategorizationResult{Charge: c}
}

// InvalidRules returns an InvalidPatternError for every skipped rule.
func (m *MatcherImpl) InvalidRules() []error {
	return append([]error(nil), m.invalid...)
}

// ScopeMatches reports whether every set filter in scope equals the
// corresponding charge field. Unset filters are wildcards; a set filter never
// matches an unset charge field.
func ScopeMatches(scope model.RuleScope, c model.Charge) bool {
	checks := []struct {
		filter *string
		value  *string
	}{
		{scope.ProviderName, &c.ProviderName},
		{scope.AccountNumber, &c.AccountNumber},
		{scope.UsageUnit, c.UsageUnit},
		{scope.ServiceType, c.ServiceType},
		{scope.Tariff, c.Tariff},
		{scope.RawChargeName, &c.ChargeName},
		{scope.MeterNumber, c.MeterNumber},
		{scope.MeasurementType, c.ChargeMeasurement},
	}
	for _, check := range checks {
		if check.filter == nil {
			continue
		}
		if check.value == nil || *check.value != *check.filter {
			return false
		}
	}
	return true
}

package model

import "time"

// CategorizationResult is the outcome of matching one charge. MatchedRuleID and
// Targets are both nil when the charge is uncategorized.
type CategorizationResult struct {
	MatchedRuleID *int64       `json:"matched_rule_id,omitempty"`
	Targets       *RuleTargets `json:"targets,omitempty"`
	Charge        Charge       `json:"charge"`
}

// Categorized reports whether a rule matched.
func (r CategorizationResult) Categorized() bool {
	return r.MatchedRuleID != nil
}

// RunSummary describes one categorization run for a single customer.
type RunSummary struct {
	StartedAt     time.Time `json:"started_at"`
	FinishedAt    time.Time `json:"finished_at"`
	RunID         string    `json:"run_id"`
	CustomerName  string    `json:"customer_name"`
	Charges       int       `json:"charges"`
	Categorized   int       `json:"categorized"`
	Uncategorized int       `json:"uncategorized"`
	SkippedRules  int       `json:"skipped_rules"`
	ActiveRules   int       `json:"active_rules"`
}

package model

import (
	"fmt"
	"time"
)

// RuleStatus is a position in the rule approval lifecycle.
type RuleStatus string

// Rule lifecycle states.
const (
	RuleDraft           RuleStatus = "draft"
	RulePendingApproval RuleStatus = "pending_approval"
	RuleApproved        RuleStatus = "approved"
	RuleRejected        RuleStatus = "rejected"
	RuleSuperseded      RuleStatus = "superseded"
)

var ruleTransitions = map[RuleStatus][]RuleStatus{
	RuleDraft:           {RulePendingApproval},
	RulePendingApproval: {RuleApproved, RuleRejected},
	RuleApproved:        {RuleSuperseded},
}

// ParseRuleStatus converts a string to a RuleStatus.
func ParseRuleStatus(s string) (RuleStatus, error) {
	switch status := RuleStatus(s); status {
	case RuleDraft, RulePendingApproval, RuleApproved, RuleRejected, RuleSuperseded:
		return status, nil
	}
	return "", fmt.Errorf("unknown rule status %q", s)
}

// CanTransition reports whether the lifecycle allows moving from s to next.
func (s RuleStatus) CanTransition(next RuleStatus) bool {
	for _, allowed := range ruleTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s RuleStatus) Terminal() bool {
	return len(ruleTransitions[s]) == 0
}

// RuleTargets are the category fields written onto a charge when a rule wins.
type RuleTargets struct {
	ChargeID           string `json:"charge_id"`
	ChargeGroupHeading string `json:"charge_group_heading"`
	ChargeCategory     string `json:"charge_category"`
	RequestType        string `json:"request_type"`
}

// RuleScope holds the optional scoping filters of a rule. A nil filter is a
// wildcard; a set filter must equal the charge field exactly.
type RuleScope struct {
	ProviderName    *string `json:"provider_name,omitempty"`
	AccountNumber   *string `json:"account_number,omitempty"`
	UsageUnit       *string `json:"usage_unit,omitempty"`
	ServiceType     *string `json:"service_type,omitempty"`
	Tariff          *string `json:"tariff,omitempty"`
	RawChargeName   *string `json:"raw_charge_name,omitempty"`
	MeterNumber     *string `json:"meter_number,omitempty"`
	MeasurementType *string `json:"measurement_type,omitempty"`
}

// Rule is a customer-scoped, regex-based mapping from raw charge attributes to
// a standardized category.
type Rule struct {
	CreatedAt          time.Time   `json:"created_at"`
	ApprovedAt         *time.Time  `json:"approved_at,omitempty"`
	RejectedAt         *time.Time  `json:"rejected_at,omitempty"`
	SupersededAt       *time.Time  `json:"superseded_at,omitempty"`
	SupersedesRuleID   *int64      `json:"supersedes_rule_id,omitempty"`
	SupersededByRuleID *int64      `json:"superseded_by_rule_id,omitempty"`
	Scope              RuleScope   `json:"scope"`
	Targets            RuleTargets `json:"targets"`
	CustomerName       string      `json:"customer_name"`
	ChargeNameMapping  string      `json:"charge_name_mapping"`
	Status             RuleStatus  `json:"status"`
	ID                 int64       `json:"rule_id"`
	PriorityOrder      int         `json:"priority_order"`
}

// Active reports whether the rule participates in matching.
func (r Rule) Active() bool {
	return r.Status == RuleApproved
}

// RuleEvent records one lifecycle transition for the audit trail.
type RuleEvent struct {
	At         time.Time  `json:"at"`
	FromStatus RuleStatus `json:"from_status"`
	ToStatus   RuleStatus `json:"to_status"`
	Detail     string     `json:"detail,omitempty"`
	RuleID     int64      `json:"rule_id"`
	ID         int64      `json:"id"`
}

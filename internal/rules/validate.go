// Package rules implements the charge mapping rule store: candidate
// validation, the approval lifecycle and the ordered active rule view.
package rules

import (
	"slices"
	"strings"
	"time"

	"github.com/Veraticus/chargemap/internal/common"
	"github.com/Veraticus/chargemap/internal/model"
)

// ValidateCandidate checks a rule before it enters the store.
func ValidateCandidate(candidate model.Rule) error {
	if candidate.Status != "" && candidate.Status != model.RuleDraft {
		return common.NewValidationError("status", "candidate must be a draft, got "+string(candidate.Status))
	}
	if strings.TrimSpace(candidate.CustomerName) == "" {
		return common.NewValidationError("customer_name", "must not be empty")
	}
	if candidate.ChargeNameMapping == "" {
		return common.NewValidationError("charge_name_mapping", "must not be empty")
	}
	if candidate.PriorityOrder <= 0 {
		return common.NewValidationError("priority_order", "must be a positive integer")
	}
	if _, err := common.CompileRegex(candidate.ChargeNameMapping); err != nil {
		return &common.InvalidPatternError{Pattern: candidate.ChargeNameMapping, Err: err}
	}
	return nil
}

// Prepare returns the stored form of a validated candidate: pending approval,
// stamped with now, with every store-owned field cleared.
func Prepare(candidate model.Rule, now time.Time) model.Rule {
	r := candidate
	r.ID = 0
	r.Status = model.RulePendingApproval
	r.CreatedAt = now
	r.ApprovedAt = nil
	r.RejectedAt = nil
	r.SupersededAt = nil
	r.SupersededByRuleID = nil
	return r
}

// CheckApproval decides whether pending may become approved given the
// customer's currently approved rules. A replacement may take the slot of the
// rule it supersedes, which must still be approved.
func CheckApproval(pending model.Rule, approved []model.Rule) error {
	if pending.Status != model.RulePendingApproval {
		return TransitionError(pending.ID, pending.Status, model.RuleApproved)
	}

	if pending.SupersedesRuleID != nil {
		target := *pending.SupersedesRuleID
		found := false
		for _, r := range approved {
			if r.ID == target {
				found = true
				break
			}
		}
		if !found {
			return common.NewValidationError("supersedes_rule_id", "superseded rule is no longer approved")
		}
	}

	for _, r := range approved {
		if r.CustomerName != pending.CustomerName || r.PriorityOrder != pending.PriorityOrder {
			continue
		}
		if pending.SupersedesRuleID != nil && r.ID == *pending.SupersedesRuleID {
			continue
		}
		return &common.PriorityConflictError{
			Customer:       pending.CustomerName,
			Priority:       pending.PriorityOrder,
			ExistingRuleID: r.ID,
		}
	}
	return nil
}

// SortByPriority orders rules by ascending priority, then id.
func SortByPriority(rs []model.Rule) {
	slices.SortStableFunc(rs, func(a, b model.Rule) int {
		if a.PriorityOrder != b.PriorityOrder {
			return a.PriorityOrder - b.PriorityOrder
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}

package rules

import (
	"fmt"
	"maps"
	"slices"

	"github.com/Veraticus/chargemap/internal/common"
	"github.com/Veraticus/chargemap/internal/model"
)

// PlanReorder checks a priority reassignment against a customer's approved
// rules and returns the rules that actually move, by ascending current
// priority. Every id must be one of the approved rules and the resulting
// priorities must stay unique.
func PlanReorder(approved []model.Rule, priorities map[int64]int) ([]model.Rule, error) {
	if len(priorities) == 0 {
		return nil, common.NewValidationError("priorities", "no rules to reorder")
	}

	byID := make(map[int64]model.Rule, len(approved))
	for _, r := range approved {
		byID[r.ID] = r
	}

	for _, id := range slices.Sorted(maps.Keys(priorities)) {
		r, ok := byID[id]
		if !ok || !r.Active() {
			return nil, common.NewValidationError("rule_id", fmt.Sprintf("rule %d is not an approved rule of this customer", id))
		}
		if priorities[id] <= 0 {
			return nil, common.NewValidationError("priority_order", fmt.Sprintf("rule %d: must be a positive integer", id))
		}
	}

	final := slices.Clone(approved)
	for i := range final {
		if p, ok := priorities[final[i].ID]; ok {
			final[i].PriorityOrder = p
		}
	}
	SortByPriority(final)
	for i := 1; i < len(final); i++ {
		if final[i].PriorityOrder == final[i-1].PriorityOrder {
			return nil, &common.PriorityConflictError{
				Customer:       final[i].CustomerName,
				Priority:       final[i].PriorityOrder,
				ExistingRuleID: final[i-1].ID,
			}
		}
	}

	var moved []model.Rule
	for _, r := range approved {
		if p, ok := priorities[r.ID]; ok && p != r.PriorityOrder {
			moved = append(moved, r)
		}
	}
	SortByPriority(moved)
	return moved, nil
}

// Replacement returns the candidate that carries old to a new priority.
func Replacement(old model.Rule, priority int) model.Rule {
	target := old.ID
	return model.Rule{
		CustomerName:      old.CustomerName,
		PriorityOrder:     priority,
		ChargeNameMapping: old.ChargeNameMapping,
		Targets:           old.Targets,
		Scope:             old.Scope,
		Status:            model.RuleDraft,
		SupersedesRuleID:  &target,
	}
}

package pattern

import (
	"fmt"

	"github.com/Veraticus/chargemap/internal/model"
	"github.com/Veraticus/chargemap/internal/rules"
)

// Change is a charge whose outcome differs between two rule snapshots.
type Change struct {
	Before model.CategorizationResult
	After  model.CategorizationResult
}

// Summary counts a batch of results.
type Summary struct {
	Total         int
	Categorized   int
	Uncategorized int
}

// Summarize counts categorized and uncategorized results.
func Summarize(results []model.CategorizationResult) Summary {
	var s Summary
	for _, r := range results {
		if r.Categorized() {
			s.Categorized++
		} else {
			s.Uncategorized++
		}
	}
	s.Total = s.Categorized + s.Uncategorized
	return s
}

// Diff pairs two result batches computed over the same charges and returns
// the entries whose winning rule or targets changed.
func Diff(before, after []model.CategorizationResult) ([]Change, error) {
	if len(before) != len(after) {
		return nil, fmt.Errorf("result batches differ in length: %d vs %d", len(before), len(after))
	}

	var changes []Change
	for i := range before {
		if sameOutcome(before[i], after[i]) {
			continue
		}
		changes = append(changes, Change{Before: before[i], After: after[i]})
	}
	return changes, nil
}

func sameOutcome(a, b model.CategorizationResult) bool {
	if a.Categorized() != b.Categorized() {
		return false
	}
	if !a.Categorized() {
		return true
	}
	return *a.MatchedRuleID == *b.MatchedRuleID && *a.Targets == *b.Targets
}

// PreviewRules returns the rule snapshot that would be active if candidate
// were approved on top of active: the rule it supersedes is dropped and the
// candidate is added as approved. The candidate is checked for priority
// conflicts the same way approval checks it.
func PreviewRules(active []Rule, candidate Rule) ([]Rule, error) {
	pending := candidate
	pending.Status = model.RulePendingApproval
	if err := rules.CheckApproval(pending, active); err != nil {
		return nil, err
	}

	out := make([]Rule, 0, len(active)+1)
	for _, r := range active {
		if candidate.SupersedesRuleID != nil && r.ID == *candidate.SupersedesRuleID {
			continue
		}
		out = append(out, r)
	}
	candidate.Status = model.RuleApproved
	out = append(out, candidate)
	rules.SortByPriority(out)
	return out, nil
}

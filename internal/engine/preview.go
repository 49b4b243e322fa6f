package engine

import (
	"context"
	"fmt"

	"github.com/Veraticus/chargemap/internal/model"
	"github.com/Veraticus/chargemap/internal/pattern"
	"github.com/Veraticus/chargemap/internal/rules"
	"github.com/Veraticus/chargemap/internal/service"
)

// PreviewReport is the effect approving a candidate rule would have on a
// customer's stored charges.
type PreviewReport struct {
	Candidate model.Rule
	Changes   []pattern.Change
	Before    pattern.Summary
	After     pattern.Summary
}

// Preview categorizes the candidate's customer twice, with the current
// approved rules and as if candidate were approved, without writing
// anything.
func (e *Engine) Preview(ctx context.Context, candidate model.Rule) (*PreviewReport, error) {
	if err := rules.ValidateCandidate(candidate); err != nil {
		return nil, err
	}
	return e.preview(ctx, candidate)
}

// PreviewRule previews a stored pending rule.
func (e *Engine) PreviewRule(ctx context.Context, id int64) (*PreviewReport, error) {
	r, err := e.store.GetRule(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Status != model.RulePendingApproval {
		return nil, rules.TransitionError(id, r.Status, model.RuleApproved)
	}
	return e.preview(ctx, *r)
}

func (e *Engine) preview(ctx context.Context, candidate model.Rule) (*PreviewReport, error) {
	active, err := e.store.ActiveRules(ctx, candidate.CustomerName)
	if err != nil {
		return nil, fmt.Errorf("failed to load active rules: %w", err)
	}

	proposed, err := pattern.PreviewRules(active, candidate)
	if err != nil {
		return nil, err
	}

	charges, err := e.store.GetCharges(ctx, service.ChargeFilter{CustomerName: candidate.CustomerName})
	if err != nil {
		return nil, fmt.Errorf("failed to load charges: %w", err)
	}

	before := pattern.Categorize(charges, active)
	after := pattern.Categorize(charges, proposed)
	changes, err := pattern.Diff(before, after)
	if err != nil {
		return nil, err
	}

	return &PreviewReport{
		Candidate: candidate,
		Before:    pattern.Summarize(before),
		After:     pattern.Summarize(after),
		Changes:   changes,
	}, nil
}

package rules

import (
	"fmt"

	"github.com/Veraticus/chargemap/internal/common"
	"github.com/Veraticus/chargemap/internal/model"
)

type transitionErr struct {
	from model.RuleStatus
	to   model.RuleStatus
	id   int64
}

func (e *transitionErr) Error() string {
	return fmt.Sprintf("rule %d: cannot move from %s to %s", e.id, e.from, e.to)
}

func (e *transitionErr) Is(target error) bool {
	return target == common.ErrInvalidTransition
}

// TransitionError reports that rule id cannot move from one status to another.
func TransitionError(id int64, from, to model.RuleStatus) error {
	return &transitionErr{id: id, from: from, to: to}
}

func notFound(id int64) error {
	return fmt.Errorf("%w: %d", common.ErrRuleNotFound, id)
}

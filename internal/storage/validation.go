package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/chargemap/internal/model"
)

// Validation errors.
var (
	ErrNilContext    = errors.New("context cannot be nil")
	ErrEmptyString   = errors.New("string parameter cannot be empty")
	ErrInvalidCharge = errors.New("invalid charge")
	ErrInvalidResult = errors.New("invalid categorization result")
	ErrInvalidRun    = errors.New("invalid run summary")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateCharge validates a single charge before it is stored.
func validateCharge(c *model.Charge) error {
	if c.StatementID == "" {
		return fmt.Errorf("%w: missing statement ID", ErrInvalidCharge)
	}
	if strings.TrimSpace(c.CustomerName) == "" {
		return fmt.Errorf("%w: missing customer name", ErrInvalidCharge)
	}
	if c.ChargeName == "" {
		return fmt.Errorf("%w: missing charge name", ErrInvalidCharge)
	}
	return nil
}

// validateResult checks that a result can be written back to its charge row.
func validateResult(r *model.CategorizationResult) error {
	if r.Charge.ID == 0 {
		return fmt.Errorf("%w: charge has no ID", ErrInvalidResult)
	}
	if (r.MatchedRuleID == nil) != (r.Targets == nil) {
		return fmt.Errorf("%w: matched rule and targets must both be set or both be empty", ErrInvalidResult)
	}
	return nil
}

// validateRun validates a run summary.
func validateRun(run *model.RunSummary) error {
	if run.RunID == "" {
		return fmt.Errorf("%w: missing run ID", ErrInvalidRun)
	}
	if run.CustomerName == "" {
		return fmt.Errorf("%w: missing customer name", ErrInvalidRun)
	}
	if run.FinishedAt.Before(run.StartedAt) {
		return fmt.Errorf("%w: finished before it started", ErrInvalidRun)
	}
	return nil
}

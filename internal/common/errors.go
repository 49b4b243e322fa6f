// Package common provides shared utilities and types used across the application.
package common

import (
	"context"
	"errors"
	"fmt"
)

// Common application errors.
var (
	// Rule errors.
	ErrInvalidPattern    = errors.New("invalid pattern")
	ErrPriorityConflict  = errors.New("priority conflict")
	ErrValidation        = errors.New("validation failed")
	ErrRuleNotFound      = errors.New("rule not found")
	ErrInvalidTransition = errors.New("invalid status transition")

	// Database errors.
	ErrDatabaseLocked = errors.New("database locked")

	// Configuration errors.
	ErrMissingConfig = errors.New("missing configuration")
	ErrInvalidConfig = errors.New("invalid configuration")
)

// InvalidPatternError reports a charge name mapping that does not compile.
type InvalidPatternError struct {
	Err     error
	Pattern string
	RuleID  int64
}

func (e *InvalidPatternError) Error() string {
	if e.RuleID != 0 {
		return fmt.Sprintf("rule %d: invalid pattern %q: %v", e.RuleID, e.Pattern, e.Err)
	}
	return fmt.Sprintf("invalid pattern %q: %v", e.Pattern, e.Err)
}

func (e *InvalidPatternError) Unwrap() error {
	return e.Err
}

// Is matches ErrInvalidPattern.
func (e *InvalidPatternError) Is(target error) bool {
	return target == ErrInvalidPattern
}

// PriorityConflictError reports an approval that would put two approved rules
// at the same priority for one customer.
type PriorityConflictError struct {
	Customer       string
	Priority       int
	ExistingRuleID int64
}

func (e *PriorityConflictError) Error() string {
	if e.ExistingRuleID != 0 {
		return fmt.Sprintf("priority %d for customer %q is already used by approved rule %d",
			e.Priority, e.Customer, e.ExistingRuleID)
	}
	return fmt.Sprintf("priority %d for customer %q is already used by an approved rule", e.Priority, e.Customer)
}

// Is matches ErrPriorityConflict.
func (e *PriorityConflictError) Is(target error) bool {
	return target == ErrPriorityConflict
}

// ValidationError reports a structural problem with a rule's fields.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// NewValidationError creates a ValidationError for field.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// UserError represents an error that should be shown to the user.
type UserError struct {
	Err         error
	UserMessage string
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.UserMessage, e.Err)
	}
	return e.UserMessage
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewUserError creates a new user-friendly error.
func NewUserError(userMessage string, err error) error {
	return &UserError{
		UserMessage: userMessage,
		Err:         err,
	}
}

// Explain turns rule errors into actionable messages. Other errors pass through.
func Explain(err error) error {
	var conflict *PriorityConflictError
	var pattern *InvalidPatternError
	var validation *ValidationError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &conflict):
		return NewUserError(fmt.Sprintf("priority %d already in use, choose another", conflict.Priority), err)
	case errors.As(err, &pattern):
		return NewUserError("charge name mapping is not a valid regular expression", err)
	case errors.As(err, &validation):
		return NewUserError(fmt.Sprintf("invalid %s", validation.Field), err)
	case errors.Is(err, ErrRuleNotFound):
		return NewUserError("no such rule", err)
	case errors.Is(err, ErrInvalidTransition):
		return NewUserError("rule is not in a state that allows this action", err)
	}
	return err
}

// IsRetryable determines if an error should trigger a retry.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrDatabaseLocked) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var retryableErr *RetryableError
	if errors.As(err, &retryableErr) {
		return retryableErr.Retryable
	}

	return false
}

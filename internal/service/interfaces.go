// Package service defines the interfaces for all application services.
package service

import (
	"context"

	"github.com/Veraticus/chargemap/internal/model"
)

// RuleFilter narrows ListRules. Zero values match everything.
type RuleFilter struct {
	CustomerName string
	Status       model.RuleStatus
}

// RuleStore owns rule lifecycle transitions and the per-customer ordering
// invariants. Implementations must serialize approvals so that two approvals
// at the same (customer, priority) never both succeed.
type RuleStore interface {
	// Lifecycle
	SubmitRule(ctx context.Context, candidate model.Rule) (int64, error)
	ApproveRule(ctx context.Context, id int64) error
	RejectRule(ctx context.Context, id int64) error
	SupersedeRule(ctx context.Context, id int64, replacement model.Rule) (int64, error)
	ReorderRules(ctx context.Context, customer string, priorities map[int64]int) (map[int64]int64, error)

	// Reads
	ActiveRules(ctx context.Context, customer string) ([]model.Rule, error)
	GetRule(ctx context.Context, id int64) (*model.Rule, error)
	ListRules(ctx context.Context, filter RuleFilter) ([]model.Rule, error)
	PendingRules(ctx context.Context, customer string) ([]model.Rule, error)
	RuleHistory(ctx context.Context, id int64) ([]model.RuleEvent, error)
	NextPriority(ctx context.Context, customer string) (int, error)
}

// ChargeFilter narrows GetCharges.
type ChargeFilter struct {
	CustomerName      string
	UncategorizedOnly bool
	Limit             int
}

// ChargeStore supplies charge snapshots and persists categorization output.
type ChargeStore interface {
	SaveCharges(ctx context.Context, charges []model.Charge) error
	GetCharges(ctx context.Context, filter ChargeFilter) ([]model.Charge, error)
	ListCustomers(ctx context.Context) ([]string, error)
	SaveResults(ctx context.Context, results []model.CategorizationResult) error
	SaveRun(ctx context.Context, run model.RunSummary) error
	GetRuns(ctx context.Context, customer string, limit int) ([]model.RunSummary, error)
}

// Storage is the full persistence contract of the application.
type Storage interface {
	RuleStore
	ChargeStore

	Migrate(ctx context.Context) error
	Close() error
}

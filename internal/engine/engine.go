// Package engine orchestrates categorization runs: it loads each customer's
// active rules and charges, matches them and writes the results back.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/chargemap/internal/common"
	"github.com/Veraticus/chargemap/internal/model"
	"github.com/Veraticus/chargemap/internal/pattern"
	"github.com/Veraticus/chargemap/internal/service"
)

// Engine runs categorization over stored charges.
type Engine struct {
	store      Store
	now        func() time.Time
	newRunID   func() string
	onCustomer func(model.RunSummary)
	retry      common.RetryOptions
	mu         sync.Mutex
	concurrent int
}

// Config holds configuration options for the engine.
type Config struct {
	Retry       common.RetryOptions
	Concurrency int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Concurrency: 4,
		Retry: common.RetryOptions{
			MaxAttempts:  5,
			InitialDelay: 100 * time.Millisecond,
			MaxDelay:     2 * time.Second,
			Multiplier:   2.0,
		},
	}
}

// New creates an engine with the default configuration.
func New(store Store) *Engine {
	return NewWithConfig(store, DefaultConfig())
}

// NewWithConfig creates an engine with custom configuration.
func NewWithConfig(store Store, config Config) *Engine {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	return &Engine{
		store:      store,
		concurrent: config.Concurrency,
		retry:      config.Retry,
		now:        func() time.Time { return time.Now().UTC() },
		newRunID:   uuid.NewString,
	}
}

// OnCustomerDone registers a callback invoked once per finished customer.
// Calls are serialized.
func (e *Engine) OnCustomerDone(fn func(model.RunSummary)) {
	e.onCustomer = fn
}

// Run categorizes the charges of every listed customer, or of every customer
// with stored charges when none are listed. Customers run concurrently, each
// against its own snapshot of approved rules. Summaries come back in the
// order of customers.
func (e *Engine) Run(ctx context.Context, customers []string) ([]model.RunSummary, error) {
	if len(customers) == 0 {
		var err error
		customers, err = e.store.ListCustomers(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list customers: %w", err)
		}
	}

	slog.Info("Starting categorization",
		"customers", len(customers),
		"concurrency", e.concurrent)

	summaries := make([]model.RunSummary, len(customers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrent)

	for i, customer := range customers {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			summary, err := e.RunCustomer(gctx, customer)
			if err != nil {
				return fmt.Errorf("customer %q: %w", customer, err)
			}
			summaries[i] = summary
			e.notify(summary)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summaries, nil
}

// RunCustomer categorizes every stored charge of one customer and records
// the run.
func (e *Engine) RunCustomer(ctx context.Context, customer string) (model.RunSummary, error) {
	started := e.now()

	active, err := e.store.ActiveRules(ctx, customer)
	if err != nil {
		return model.RunSummary{}, fmt.Errorf("failed to load active rules: %w", err)
	}

	charges, err := e.store.GetCharges(ctx, service.ChargeFilter{CustomerName: customer})
	if err != nil {
		return model.RunSummary{}, fmt.Errorf("failed to load charges: %w", err)
	}

	matcher := pattern.NewMatcher(active)
	results := matcher.Categorize(charges)

	if len(results) > 0 {
		err = common.WithRetry(ctx, func() error {
			return e.store.SaveResults(ctx, results)
		}, e.retry)
		if err != nil {
			return model.RunSummary{}, fmt.Errorf("failed to save results: %w", err)
		}
	}

	counts := pattern.Summarize(results)
	summary := model.RunSummary{
		RunID:         e.newRunID(),
		CustomerName:  customer,
		StartedAt:     started,
		FinishedAt:    e.now(),
		Charges:       counts.Total,
		Categorized:   counts.Categorized,
		Uncategorized: counts.Uncategorized,
		SkippedRules:  len(matcher.InvalidRules()),
		ActiveRules:   len(active),
	}

	err = common.WithRetry(ctx, func() error {
		return e.store.SaveRun(ctx, summary)
	}, e.retry)
	if err != nil {
		return model.RunSummary{}, fmt.Errorf("failed to save run: %w", err)
	}

	slog.Info("Categorized customer",
		"customer", customer,
		"run_id", summary.RunID,
		"charges", summary.Charges,
		"categorized", summary.Categorized,
		"uncategorized", summary.Uncategorized,
		"skipped_rules", summary.SkippedRules)

	return summary, nil
}

func (e *Engine) notify(summary model.RunSummary) {
	if e.onCustomer == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onCustomer(summary)
}

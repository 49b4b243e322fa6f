// Package testutil provides shared test fixtures backed by an in-memory
// SQLite database.
package testutil

import (
	"context"
	"testing"

	"github.com/Veraticus/chargemap/internal/model"
	"github.com/Veraticus/chargemap/internal/storage"
)

// TestDB represents a test database with associated test utilities.
type TestDB struct {
	Storage *storage.SQLiteStorage
	t       *testing.T
}

// TestDBOptions provides configuration options for test database setup.
type TestDBOptions struct {
	CustomSetup func(context.Context, *storage.SQLiteStorage) error
	Charges     []model.Charge
	// Rules are submitted and approved in order.
	Rules []model.Rule
}

// SetupTestDB creates a new migrated in-memory test database that is closed
// when the test finishes.
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()
	return SetupTestDBWithOptions(t, TestDBOptions{})
}

// SetupTestDBWithOptions creates a test database with seed data.
//
// Example:
//
//	db := testutil.SetupTestDBWithOptions(t, testutil.TestDBOptions{
//		Charges: []model.Charge{{StatementID: "s1", CustomerName: "Acme", ChargeName: "Tax"}},
//		Rules:   []model.Rule{testutil.Rule("Acme", 1, "Tax", "TAX")},
//	})
func SetupTestDBWithOptions(t *testing.T, opts TestDBOptions) *TestDB {
	t.Helper()

	store, err := storage.NewSQLiteStorage(":memory:")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	db := &TestDB{Storage: store, t: t}
	if len(opts.Charges) > 0 {
		db.SeedCharges(opts.Charges)
	}
	for _, r := range opts.Rules {
		db.MustApprove(r)
	}

	if opts.CustomSetup != nil {
		if err := opts.CustomSetup(ctx, store); err != nil {
			t.Fatalf("custom setup failed: %v", err)
		}
	}

	return db
}

// SeedCharges stores charges or fails the test.
func (db *TestDB) SeedCharges(charges []model.Charge) {
	db.t.Helper()
	if err := db.Storage.SaveCharges(context.Background(), charges); err != nil {
		db.t.Fatalf("failed to seed charges: %v", err)
	}
}

// MustSubmit submits a candidate rule or fails the test.
func (db *TestDB) MustSubmit(r model.Rule) int64 {
	db.t.Helper()
	id, err := db.Storage.SubmitRule(context.Background(), r)
	if err != nil {
		db.t.Fatalf("failed to submit rule: %v", err)
	}
	return id
}

// MustApprove submits and approves a rule or fails the test.
func (db *TestDB) MustApprove(r model.Rule) int64 {
	db.t.Helper()
	id := db.MustSubmit(r)
	if err := db.Storage.ApproveRule(context.Background(), id); err != nil {
		db.t.Fatalf("failed to approve rule %d: %v", id, err)
	}
	return id
}

// Rule builds a draft rule with the given charge name mapping and charge ID.
func Rule(customer string, priority int, pattern, chargeID string) model.Rule {
	return model.Rule{
		CustomerName:      customer,
		PriorityOrder:     priority,
		ChargeNameMapping: pattern,
		Targets:           model.RuleTargets{ChargeID: chargeID},
	}
}

// Charge builds a charge for customer with the given name.
func Charge(customer, name string) model.Charge {
	return model.Charge{
		StatementID:  "stmt-1",
		ProviderName: "Metro Power",
		CustomerName: customer,
		ChargeName:   name,
	}
}

package storage

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/chargemap/internal/common"
	"github.com/Veraticus/chargemap/internal/model"
	"github.com/Veraticus/chargemap/internal/service"
)

func testRule(customer string, priority int, pattern, chargeID string) model.Rule {
	return model.Rule{
		CustomerName:      customer,
		PriorityOrder:     priority,
		ChargeNameMapping: pattern,
		Targets: model.RuleTargets{
			ChargeID:           chargeID,
			ChargeGroupHeading: "Energy",
			ChargeCategory:     "Supply",
			RequestType:        "standard",
		},
	}
}

func submitAndApprove(t *testing.T, s *SQLiteStorage, r model.Rule) int64 {
	t.Helper()
	ctx := context.Background()
	id, err := s.SubmitRule(ctx, r)
	require.NoError(t, err)
	require.NoError(t, s.ApproveRule(ctx, id))
	return id
}

func TestSQLiteStorage_SubmitRule_RoundTrip(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	r := testRule("Acme", 4, `(?i)^late fee$`, "FEE")
	r.Scope = model.RuleScope{
		ProviderName:    model.StringPtr("Metro Power"),
		UsageUnit:       model.StringPtr(""),
		MeasurementType: model.StringPtr("kWh"),
	}

	id, err := store.SubmitRule(ctx, r)
	require.NoError(t, err)

	got, err := store.GetRule(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, model.RulePendingApproval, got.Status)
	assert.Equal(t, r.Targets, got.Targets)
	assert.Equal(t, r.ChargeNameMapping, got.ChargeNameMapping)
	assert.True(t, testNow.Equal(got.CreatedAt))
	assert.Nil(t, got.ApprovedAt)

	require.NotNil(t, got.Scope.ProviderName)
	assert.Equal(t, "Metro Power", *got.Scope.ProviderName)
	require.NotNil(t, got.Scope.UsageUnit, "empty string filter must stay set")
	assert.Empty(t, *got.Scope.UsageUnit)
	assert.Nil(t, got.Scope.AccountNumber)
	assert.Nil(t, got.Scope.Tariff)
}

func TestSQLiteStorage_SubmitRule_Invalid(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	tests := []struct {
		want error
		name string
		rule model.Rule
	}{
		{name: "bad regex", rule: testRule("Acme", 1, "(unclosed", "X"), want: common.ErrInvalidPattern},
		{name: "zero priority", rule: testRule("Acme", 0, "x", "X"), want: common.ErrValidation},
		{name: "empty pattern", rule: testRule("Acme", 1, "", "X"), want: common.ErrValidation},
		{name: "missing customer", rule: testRule("", 1, "x", "X"), want: common.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.SubmitRule(ctx, tt.rule)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	all, err := store.ListRules(ctx, service.RuleFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSQLiteStorage_ApproveRule(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	id := submitAndApprove(t, store, testRule("Acme", 1, "Tax", "TAX"))

	got, err := store.GetRule(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.RuleApproved, got.Status)
	require.NotNil(t, got.ApprovedAt)
	assert.True(t, testNow.Equal(*got.ApprovedAt))

	active, err := store.ActiveRules(ctx, "Acme")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, id, active[0].ID)

	err = store.ApproveRule(ctx, id)
	assert.ErrorIs(t, err, common.ErrInvalidTransition, "approved rules cannot be approved again")
}

func TestSQLiteStorage_ApproveRule_PriorityConflict(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	first := submitAndApprove(t, store, testRule("Acme", 5, "Tax", "TAX"))
	second, err := store.SubmitRule(ctx, testRule("Acme", 5, "Fee", "FEE"))
	require.NoError(t, err)

	err = store.ApproveRule(ctx, second)
	require.ErrorIs(t, err, common.ErrPriorityConflict)
	var conflict *common.PriorityConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, first, conflict.ExistingRuleID)
	assert.Equal(t, 5, conflict.Priority)

	got, err := store.GetRule(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, model.RulePendingApproval, got.Status, "failed approval must leave the rule pending")

	// Same priority for another customer is fine.
	submitAndApprove(t, store, testRule("Globex", 5, "Tax", "TAX"))
}

func TestSQLiteStorage_ApprovedPriorityIndex(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	submitAndApprove(t, store, testRule("Acme", 2, "Tax", "TAX"))
	other, err := store.SubmitRule(ctx, testRule("Acme", 2, "Fee", "FEE"))
	require.NoError(t, err)

	_, err = store.db.ExecContext(ctx, `UPDATE rules SET status = 'approved' WHERE id = ?`, other)
	require.Error(t, err)
	assert.True(t, isUniqueViolation(err))
}

func TestSQLiteStorage_ConcurrentApprovals(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	const contenders = 6
	ids := make([]int64, contenders)
	for i := range ids {
		id, err := store.SubmitRule(ctx, testRule("Acme", 7, "Tax", "TAX"))
		require.NoError(t, err)
		ids[i] = id
	}

	var wg sync.WaitGroup
	errs := make([]error, contenders)
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id int64) {
			defer wg.Done()
			errs[i] = store.ApproveRule(ctx, id)
		}(i, id)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
			continue
		}
		assert.ErrorIs(t, err, common.ErrPriorityConflict)
	}
	assert.Equal(t, 1, successes)

	active, err := store.ActiveRules(ctx, "Acme")
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestSQLiteStorage_RejectRule(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	id, err := store.SubmitRule(ctx, testRule("Acme", 1, "Tax", "TAX"))
	require.NoError(t, err)
	require.NoError(t, store.RejectRule(ctx, id))

	got, err := store.GetRule(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.RuleRejected, got.Status)
	require.NotNil(t, got.RejectedAt)

	assert.ErrorIs(t, store.RejectRule(ctx, id), common.ErrInvalidTransition)
	assert.ErrorIs(t, store.ApproveRule(ctx, id), common.ErrInvalidTransition)
	assert.ErrorIs(t, store.RejectRule(ctx, 999), common.ErrRuleNotFound)
}

func TestSQLiteStorage_SupersedeRule(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	oldID := submitAndApprove(t, store, testRule("Acme", 3, "Tax", "TAX"))

	newID, err := store.SupersedeRule(ctx, oldID, testRule("Acme", 3, "(?i)tax", "TAX2"))
	require.NoError(t, err)

	// The original keeps serving until the replacement is approved.
	active, err := store.ActiveRules(ctx, "Acme")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, oldID, active[0].ID)

	require.NoError(t, store.ApproveRule(ctx, newID))

	active, err = store.ActiveRules(ctx, "Acme")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, newID, active[0].ID)

	old, err := store.GetRule(ctx, oldID)
	require.NoError(t, err)
	assert.Equal(t, model.RuleSuperseded, old.Status)
	require.NotNil(t, old.SupersededByRuleID)
	assert.Equal(t, newID, *old.SupersededByRuleID)
	require.NotNil(t, old.SupersededAt)

	replacement, err := store.GetRule(ctx, newID)
	require.NoError(t, err)
	require.NotNil(t, replacement.SupersedesRuleID)
	assert.Equal(t, oldID, *replacement.SupersedesRuleID)
}

func TestSQLiteStorage_SupersedeRule_Validation(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	pending, err := store.SubmitRule(ctx, testRule("Acme", 1, "Tax", "TAX"))
	require.NoError(t, err)
	_, err = store.SupersedeRule(ctx, pending, testRule("Acme", 1, "Tax", "TAX"))
	assert.ErrorIs(t, err, common.ErrInvalidTransition)

	approved := submitAndApprove(t, store, testRule("Acme", 2, "Fee", "FEE"))
	_, err = store.SupersedeRule(ctx, approved, testRule("Globex", 2, "Fee", "FEE"))
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = store.SupersedeRule(ctx, 12345, testRule("Acme", 2, "Fee", "FEE"))
	assert.ErrorIs(t, err, common.ErrRuleNotFound)
}

func TestSQLiteStorage_SupersedeRule_TargetAlreadyReplaced(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	oldID := submitAndApprove(t, store, testRule("Acme", 3, "Tax", "TAX"))
	a, err := store.SupersedeRule(ctx, oldID, testRule("Acme", 3, "Tax A", "A"))
	require.NoError(t, err)
	b, err := store.SupersedeRule(ctx, oldID, testRule("Acme", 3, "Tax B", "B"))
	require.NoError(t, err)

	require.NoError(t, store.ApproveRule(ctx, a))
	err = store.ApproveRule(ctx, b)
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestSQLiteStorage_SupersedeRule_MovesPriority(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	oldID := submitAndApprove(t, store, testRule("Acme", 3, "Tax", "TAX"))
	newID, err := store.SupersedeRule(ctx, oldID, testRule("Acme", 9, "Tax", "TAX"))
	require.NoError(t, err)
	require.NoError(t, store.ApproveRule(ctx, newID))

	active, err := store.ActiveRules(ctx, "Acme")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, 9, active[0].PriorityOrder)
}

func TestSQLiteStorage_ActiveRulesOrdering(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	for _, p := range []int{30, 10, 20} {
		submitAndApprove(t, store, testRule("Acme", p, "x", "X"))
	}
	_, err := store.SubmitRule(ctx, testRule("Acme", 5, "x", "X"))
	require.NoError(t, err)

	active, err := store.ActiveRules(ctx, "Acme")
	require.NoError(t, err)
	require.Len(t, active, 3)
	assert.Equal(t, []int{10, 20, 30}, []int{active[0].PriorityOrder, active[1].PriorityOrder, active[2].PriorityOrder})

	none, err := store.ActiveRules(ctx, "Nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteStorage_ListRules(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	submitAndApprove(t, store, testRule("Acme", 1, "a", "A"))
	pendingID, err := store.SubmitRule(ctx, testRule("Acme", 2, "b", "B"))
	require.NoError(t, err)
	_, err = store.SubmitRule(ctx, testRule("Globex", 1, "c", "C"))
	require.NoError(t, err)

	all, err := store.ListRules(ctx, service.RuleFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	acme, err := store.ListRules(ctx, service.RuleFilter{CustomerName: "Acme"})
	require.NoError(t, err)
	assert.Len(t, acme, 2)

	pending, err := store.PendingRules(ctx, "Acme")
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, pendingID, pending[0].ID)

	everyone, err := store.PendingRules(ctx, "")
	require.NoError(t, err)
	assert.Len(t, everyone, 2)
}

func TestSQLiteStorage_RuleHistory(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	oldID := submitAndApprove(t, store, testRule("Acme", 1, "Tax", "TAX"))
	newID, err := store.SupersedeRule(ctx, oldID, testRule("Acme", 1, "Taxes?", "TAX"))
	require.NoError(t, err)
	require.NoError(t, store.ApproveRule(ctx, newID))

	history, err := store.RuleHistory(ctx, oldID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, model.RulePendingApproval, history[0].ToStatus)
	assert.Equal(t, model.RuleApproved, history[1].ToStatus)
	assert.Equal(t, model.RuleSuperseded, history[2].ToStatus)
	assert.Equal(t, model.RuleApproved, history[2].FromStatus)

	_, err = store.RuleHistory(ctx, 404)
	assert.ErrorIs(t, err, common.ErrRuleNotFound)
}

func TestSQLiteStorage_NextPriority(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	next, err := store.NextPriority(ctx, "Acme")
	require.NoError(t, err)
	assert.Equal(t, 1, next)

	submitAndApprove(t, store, testRule("Acme", 3120, "a", "A"))
	rejected, err := store.SubmitRule(ctx, testRule("Acme", 9000, "b", "B"))
	require.NoError(t, err)
	require.NoError(t, store.RejectRule(ctx, rejected))

	next, err = store.NextPriority(ctx, "Acme")
	require.NoError(t, err)
	assert.Equal(t, 3121, next, "rejected rules do not count")
}

func TestSQLiteStorage_GetRule_NotFound(t *testing.T) {
	store := createTestStorage(t)

	_, err := store.GetRule(context.Background(), 77)
	assert.ErrorIs(t, err, common.ErrRuleNotFound)
}

func TestSQLiteStorage_ReorderRules_Swap(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	tax := submitAndApprove(t, store, testRule("Acme", 1, "Tax", "TAX"))
	sur := submitAndApprove(t, store, testRule("Acme", 2, "Surcharge", "SUR"))

	replaced, err := store.ReorderRules(ctx, "Acme", map[int64]int{tax: 2, sur: 1})
	require.NoError(t, err)
	require.Len(t, replaced, 2)

	active, err := store.ActiveRules(ctx, "Acme")
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, replaced[sur], active[0].ID)
	assert.Equal(t, 1, active[0].PriorityOrder)
	assert.Equal(t, "SUR", active[0].Targets.ChargeID)
	assert.Equal(t, replaced[tax], active[1].ID)
	assert.Equal(t, 2, active[1].PriorityOrder)
	assert.Equal(t, "Energy", active[1].Targets.ChargeGroupHeading)

	old, err := store.GetRule(ctx, tax)
	require.NoError(t, err)
	assert.Equal(t, model.RuleSuperseded, old.Status)
	require.NotNil(t, old.SupersededByRuleID)
	assert.Equal(t, replaced[tax], *old.SupersededByRuleID)

	events, err := store.RuleHistory(ctx, tax)
	require.NoError(t, err)
	assert.Equal(t, "moved by reorder", events[len(events)-1].Detail)
}

func TestSQLiteStorage_ReorderRules_ConflictChangesNothing(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	tax := submitAndApprove(t, store, testRule("Acme", 1, "Tax", "TAX"))
	sur := submitAndApprove(t, store, testRule("Acme", 2, "Surcharge", "SUR"))

	_, err := store.ReorderRules(ctx, "Acme", map[int64]int{tax: 2})
	require.ErrorIs(t, err, common.ErrPriorityConflict)

	_, err = store.ReorderRules(ctx, "Acme", map[int64]int{999: 1})
	require.ErrorIs(t, err, common.ErrRuleNotFound)

	active, err := store.ActiveRules(ctx, "Acme")
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, tax, active[0].ID)
	assert.Equal(t, sur, active[1].ID)

	all, err := store.ListRules(ctx, service.RuleFilter{CustomerName: "Acme"})
	require.NoError(t, err)
	assert.Len(t, all, 2, "a failed reorder leaves no replacement behind")
}

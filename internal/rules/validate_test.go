package rules

import (
	"testing"

	"github.com/Veraticus/chargemap/internal/common"
	"github.com/Veraticus/chargemap/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCandidate(t *testing.T) {
	valid := model.Rule{
		CustomerName:      "Acme",
		PriorityOrder:     1,
		ChargeNameMapping: "(?i)delivery.*charge",
	}

	tests := []struct {
		mutate  func(*model.Rule)
		wantIs  error
		name    string
		field   string
		wantErr bool
	}{
		{name: "valid", mutate: func(*model.Rule) {}},
		{name: "explicit draft", mutate: func(r *model.Rule) { r.Status = model.RuleDraft }},
		{
			name:    "missing customer",
			mutate:  func(r *model.Rule) { r.CustomerName = "  " },
			wantErr: true, wantIs: common.ErrValidation, field: "customer_name",
		},
		{
			name:    "empty pattern",
			mutate:  func(r *model.Rule) { r.ChargeNameMapping = "" },
			wantErr: true, wantIs: common.ErrValidation, field: "charge_name_mapping",
		},
		{
			name:    "zero priority",
			mutate:  func(r *model.Rule) { r.PriorityOrder = 0 },
			wantErr: true, wantIs: common.ErrValidation, field: "priority_order",
		},
		{
			name:    "negative priority",
			mutate:  func(r *model.Rule) { r.PriorityOrder = -4 },
			wantErr: true, wantIs: common.ErrValidation, field: "priority_order",
		},
		{
			name:    "not a draft",
			mutate:  func(r *model.Rule) { r.Status = model.RuleApproved },
			wantErr: true, wantIs: common.ErrValidation, field: "status",
		},
		{
			name:    "bad regex",
			mutate:  func(r *model.Rule) { r.ChargeNameMapping = "(unclosed" },
			wantErr: true, wantIs: common.ErrInvalidPattern,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)
			err := ValidateCandidate(r)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantIs)
			if tt.field != "" {
				var ve *common.ValidationError
				require.ErrorAs(t, err, &ve)
				assert.Equal(t, tt.field, ve.Field)
			}
		})
	}
}

func TestCheckApproval(t *testing.T) {
	approved := []model.Rule{
		{ID: 1, CustomerName: "Acme", PriorityOrder: 1, Status: model.RuleApproved},
		{ID: 2, CustomerName: "Acme", PriorityOrder: 2, Status: model.RuleApproved},
	}

	t.Run("free slot", func(t *testing.T) {
		pending := model.Rule{ID: 3, CustomerName: "Acme", PriorityOrder: 3, Status: model.RulePendingApproval}
		assert.NoError(t, CheckApproval(pending, approved))
	})

	t.Run("taken slot", func(t *testing.T) {
		pending := model.Rule{ID: 3, CustomerName: "Acme", PriorityOrder: 2, Status: model.RulePendingApproval}
		err := CheckApproval(pending, approved)
		var conflict *common.PriorityConflictError
		require.ErrorAs(t, err, &conflict)
		assert.Equal(t, int64(2), conflict.ExistingRuleID)
		assert.Equal(t, 2, conflict.Priority)
	})

	t.Run("replacement takes the slot it supersedes", func(t *testing.T) {
		target := int64(2)
		pending := model.Rule{ID: 3, CustomerName: "Acme", PriorityOrder: 2, Status: model.RulePendingApproval, SupersedesRuleID: &target}
		assert.NoError(t, CheckApproval(pending, approved))
	})

	t.Run("replacement of a retired rule", func(t *testing.T) {
		target := int64(9)
		pending := model.Rule{ID: 3, CustomerName: "Acme", PriorityOrder: 5, Status: model.RulePendingApproval, SupersedesRuleID: &target}
		assert.ErrorIs(t, CheckApproval(pending, approved), common.ErrValidation)
	})

	t.Run("not pending", func(t *testing.T) {
		rejected := model.Rule{ID: 3, CustomerName: "Acme", PriorityOrder: 3, Status: model.RuleRejected}
		assert.ErrorIs(t, CheckApproval(rejected, approved), common.ErrInvalidTransition)
	})
}

func TestSortByPriority(t *testing.T) {
	rs := []model.Rule{
		{ID: 5, PriorityOrder: 30},
		{ID: 2, PriorityOrder: 10},
		{ID: 9, PriorityOrder: 20},
		{ID: 1, PriorityOrder: 20},
	}
	SortByPriority(rs)

	ids := make([]int64, len(rs))
	for i, r := range rs {
		ids[i] = r.ID
	}
	assert.Equal(t, []int64{2, 1, 9, 5}, ids)
}

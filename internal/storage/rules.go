package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Veraticus/chargemap/internal/common"
	"github.com/Veraticus/chargemap/internal/model"
	"github.com/Veraticus/chargemap/internal/rules"
	"github.com/Veraticus/chargemap/internal/service"
)

const ruleColumns = `id, customer_name, priority_order, charge_name_mapping,
	charge_id, charge_group_heading, charge_category, request_type,
	provider_name, account_number, usage_unit, service_type, tariff,
	raw_charge_name, meter_number, measurement_type,
	status, supersedes_rule_id, superseded_by_rule_id,
	created_at, approved_at, rejected_at, superseded_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRule(row rowScanner) (*model.Rule, error) {
	var r model.Rule
	var status string
	err := row.Scan(
		&r.ID, &r.CustomerName, &r.PriorityOrder, &r.ChargeNameMapping,
		&r.Targets.ChargeID, &r.Targets.ChargeGroupHeading, &r.Targets.ChargeCategory, &r.Targets.RequestType,
		&r.Scope.ProviderName, &r.Scope.AccountNumber, &r.Scope.UsageUnit, &r.Scope.ServiceType, &r.Scope.Tariff,
		&r.Scope.RawChargeName, &r.Scope.MeterNumber, &r.Scope.MeasurementType,
		&status, &r.SupersedesRuleID, &r.SupersededByRuleID,
		&r.CreatedAt, &r.ApprovedAt, &r.RejectedAt, &r.SupersededAt,
	)
	if err != nil {
		return nil, err
	}
	r.Status = model.RuleStatus(status)
	return &r, nil
}

func ruleNotFound(id int64) error {
	return fmt.Errorf("%w: %d", common.ErrRuleNotFound, id)
}

// SubmitRule validates a draft candidate and stores it as pending approval.
func (s *SQLiteStorage) SubmitRule(ctx context.Context, candidate model.Rule) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := rules.ValidateCandidate(candidate); err != nil {
		return 0, err
	}

	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var insertErr error
		id, insertErr = s.insertRule(ctx, tx, candidate, "submitted")
		return insertErr
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// ApproveRule moves a pending rule to approved inside one transaction. A
// replacement rule retires the rule it supersedes in the same transaction.
func (s *SQLiteStorage) ApproveRule(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		r, err := getRule(ctx, tx, id)
		if err != nil {
			return err
		}

		active, err := activeRules(ctx, tx, r.CustomerName)
		if err != nil {
			return err
		}
		if err := rules.CheckApproval(*r, active); err != nil {
			return err
		}

		now := s.now()
		if r.SupersedesRuleID != nil {
			oldID := *r.SupersedesRuleID
			res, err := tx.ExecContext(ctx, `
				UPDATE rules
				SET status = ?, superseded_at = ?, superseded_by_rule_id = ?
				WHERE id = ? AND status = ?`,
				model.RuleSuperseded, now, r.ID, oldID, model.RuleApproved)
			if err != nil {
				return fmt.Errorf("failed to supersede rule %d: %w", oldID, translateError(err))
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return common.NewValidationError("supersedes_rule_id", "superseded rule is no longer approved")
			}
			if err := recordEvent(ctx, tx, oldID, model.RuleApproved, model.RuleSuperseded, now, "replaced by approved rule"); err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE rules SET status = ?, approved_at = ?
			WHERE id = ? AND status = ?`,
			model.RuleApproved, now, r.ID, model.RulePendingApproval)
		if err != nil {
			if isUniqueViolation(err) {
				return &common.PriorityConflictError{Customer: r.CustomerName, Priority: r.PriorityOrder}
			}
			return fmt.Errorf("failed to approve rule %d: %w", r.ID, translateError(err))
		}
		if err := recordEvent(ctx, tx, r.ID, model.RulePendingApproval, model.RuleApproved, now, ""); err != nil {
			return err
		}

		slog.Debug("Approved rule",
			"rule_id", r.ID,
			"customer", r.CustomerName,
			"priority", r.PriorityOrder)
		return nil
	})
}

// RejectRule moves a pending rule to the terminal rejected state.
func (s *SQLiteStorage) RejectRule(ctx context.Context, id int64) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		r, err := getRule(ctx, tx, id)
		if err != nil {
			return err
		}
		if !r.Status.CanTransition(model.RuleRejected) {
			return rules.TransitionError(id, r.Status, model.RuleRejected)
		}

		now := s.now()
		if _, err := tx.ExecContext(ctx,
			`UPDATE rules SET status = ?, rejected_at = ? WHERE id = ?`,
			model.RuleRejected, now, id); err != nil {
			return fmt.Errorf("failed to reject rule %d: %w", id, translateError(err))
		}
		return recordEvent(ctx, tx, id, model.RulePendingApproval, model.RuleRejected, now, "")
	})
}

// SupersedeRule stores replacement as a pending rule that retires id once
// approved. The original stays approved until then.
func (s *SQLiteStorage) SupersedeRule(ctx context.Context, id int64, replacement model.Rule) (int64, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	if err := rules.ValidateCandidate(replacement); err != nil {
		return 0, err
	}

	var newID int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		old, err := getRule(ctx, tx, id)
		if err != nil {
			return err
		}
		if !old.Active() {
			return rules.TransitionError(id, old.Status, model.RuleSuperseded)
		}
		if replacement.CustomerName != old.CustomerName {
			return common.NewValidationError("customer_name", "replacement must belong to the same customer")
		}

		target := id
		replacement.SupersedesRuleID = &target
		newID, err = s.insertRule(ctx, tx, replacement, "submitted to supersede another rule")
		return err
	})
	if err != nil {
		return 0, err
	}
	return newID, nil
}

// ReorderRules moves approved rules of customer to new priorities inside one
// transaction. Every moved rule is retired before any replacement is
// approved, so the approved-priority index holds at each statement and a swap
// needs no spare slot. It returns the new id of every moved rule, keyed by
// its old id.
func (s *SQLiteStorage) ReorderRules(ctx context.Context, customer string, priorities map[int64]int) (map[int64]int64, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(customer, "customer"); err != nil {
		return nil, err
	}

	var replaced map[int64]int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for id := range priorities {
			if _, err := getRule(ctx, tx, id); err != nil {
				return err
			}
		}

		active, err := activeRules(ctx, tx, customer)
		if err != nil {
			return err
		}
		moved, err := rules.PlanReorder(active, priorities)
		if err != nil {
			return err
		}

		replaced = make(map[int64]int64, len(moved))
		for _, old := range moved {
			newID, err := s.insertRule(ctx, tx, rules.Replacement(old, priorities[old.ID]), "submitted to reorder rules")
			if err != nil {
				return err
			}
			replaced[old.ID] = newID
		}

		now := s.now()
		for _, old := range moved {
			if _, err := tx.ExecContext(ctx, `
				UPDATE rules
				SET status = ?, superseded_at = ?, superseded_by_rule_id = ?
				WHERE id = ? AND status = ?`,
				model.RuleSuperseded, now, replaced[old.ID], old.ID, model.RuleApproved); err != nil {
				return fmt.Errorf("failed to supersede rule %d: %w", old.ID, translateError(err))
			}
			if err := recordEvent(ctx, tx, old.ID, model.RuleApproved, model.RuleSuperseded, now, "moved by reorder"); err != nil {
				return err
			}
		}

		for _, old := range moved {
			newID := replaced[old.ID]
			if _, err := tx.ExecContext(ctx, `
				UPDATE rules SET status = ?, approved_at = ?
				WHERE id = ? AND status = ?`,
				model.RuleApproved, now, newID, model.RulePendingApproval); err != nil {
				if isUniqueViolation(err) {
					return &common.PriorityConflictError{Customer: customer, Priority: priorities[old.ID]}
				}
				return fmt.Errorf("failed to approve rule %d: %w", newID, translateError(err))
			}
			if err := recordEvent(ctx, tx, newID, model.RulePendingApproval, model.RuleApproved, now, "approved by reorder"); err != nil {
				return err
			}
		}

		slog.Debug("Reordered rules",
			"customer", customer,
			"moved", len(moved))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return replaced, nil
}

// ActiveRules returns the customer's approved rules by ascending priority.
func (s *SQLiteStorage) ActiveRules(ctx context.Context, customer string) ([]model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return activeRules(ctx, s.db, customer)
}

// GetRule retrieves a rule by id.
func (s *SQLiteStorage) GetRule(ctx context.Context, id int64) (*model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	return getRule(ctx, s.db, id)
}

// ListRules returns rules matching filter ordered by priority, then id.
func (s *SQLiteStorage) ListRules(ctx context.Context, filter service.RuleFilter) ([]model.Rule, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	var where []string
	var args []any
	if filter.CustomerName != "" {
		where = append(where, "customer_name = ?")
		args = append(args, filter.CustomerName)
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}

	query := "SELECT " + ruleColumns + " FROM rules"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY priority_order, id"

	return queryRules(ctx, s.db, query, args...)
}

// PendingRules returns the approval queue for a customer, or for everyone when
// customer is empty.
func (s *SQLiteStorage) PendingRules(ctx context.Context, customer string) ([]model.Rule, error) {
	return s.ListRules(ctx, service.RuleFilter{CustomerName: customer, Status: model.RulePendingApproval})
}

// RuleHistory returns the lifecycle events of a rule, oldest first.
func (s *SQLiteStorage) RuleHistory(ctx context.Context, id int64) ([]model.RuleEvent, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if _, err := getRule(ctx, s.db, id); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, rule_id, from_status, to_status, detail, created_at
		FROM rule_events
		WHERE rule_id = ?
		ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query rule events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []model.RuleEvent
	for rows.Next() {
		var e model.RuleEvent
		var from, to string
		if err := rows.Scan(&e.ID, &e.RuleID, &from, &to, &e.Detail, &e.At); err != nil {
			return nil, fmt.Errorf("failed to scan rule event: %w", err)
		}
		e.FromStatus = model.RuleStatus(from)
		e.ToStatus = model.RuleStatus(to)
		events = append(events, e)
	}
	return events, rows.Err()
}

// NextPriority suggests one past the highest priority among the customer's
// non-terminal rules.
func (s *SQLiteStorage) NextPriority(ctx context.Context, customer string) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}

	var next int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(priority_order), 0) + 1
		FROM rules
		WHERE customer_name = ? AND status IN (?, ?, ?)`,
		customer, model.RuleDraft, model.RulePendingApproval, model.RuleApproved).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to compute next priority: %w", err)
	}
	return next, nil
}

func (s *SQLiteStorage) insertRule(ctx context.Context, tx *sql.Tx, candidate model.Rule, detail string) (int64, error) {
	now := s.now()
	r := rules.Prepare(candidate, now)

	result, err := tx.ExecContext(ctx, `
		INSERT INTO rules (
			customer_name, priority_order, charge_name_mapping,
			charge_id, charge_group_heading, charge_category, request_type,
			provider_name, account_number, usage_unit, service_type, tariff,
			raw_charge_name, meter_number, measurement_type,
			status, supersedes_rule_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.CustomerName, r.PriorityOrder, r.ChargeNameMapping,
		r.Targets.ChargeID, r.Targets.ChargeGroupHeading, r.Targets.ChargeCategory, r.Targets.RequestType,
		r.Scope.ProviderName, r.Scope.AccountNumber, r.Scope.UsageUnit, r.Scope.ServiceType, r.Scope.Tariff,
		r.Scope.RawChargeName, r.Scope.MeterNumber, r.Scope.MeasurementType,
		r.Status, r.SupersedesRuleID, r.CreatedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert rule: %w", translateError(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get rule ID: %w", err)
	}

	if err := recordEvent(ctx, tx, id, model.RuleDraft, model.RulePendingApproval, now, detail); err != nil {
		return 0, err
	}
	return id, nil
}

func getRule(ctx context.Context, q querier, id int64) (*model.Rule, error) {
	row := q.QueryRowContext(ctx, "SELECT "+ruleColumns+" FROM rules WHERE id = ?", id)
	r, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ruleNotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule %d: %w", id, translateError(err))
	}
	return r, nil
}

func activeRules(ctx context.Context, q querier, customer string) ([]model.Rule, error) {
	return queryRules(ctx, q, "SELECT "+ruleColumns+` FROM rules
		WHERE customer_name = ? AND status = ?
		ORDER BY priority_order, id`, customer, model.RuleApproved)
}

func queryRules(ctx context.Context, q querier, query string, args ...any) ([]model.Rule, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", translateError(err))
	}
	defer func() { _ = rows.Close() }()

	var out []model.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rules: %w", err)
	}
	return out, nil
}

func recordEvent(ctx context.Context, q querier, ruleID int64, from, to model.RuleStatus, at time.Time, detail string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO rule_events (rule_id, from_status, to_status, detail, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		ruleID, from, to, detail, at)
	if err != nil {
		return fmt.Errorf("failed to record rule event: %w", translateError(err))
	}
	return nil
}

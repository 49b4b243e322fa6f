package rules

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Veraticus/chargemap/internal/common"
	"github.com/Veraticus/chargemap/internal/model"
	"github.com/Veraticus/chargemap/internal/service"
)

var _ service.RuleStore = (*Store)(nil)

// Store is an in-memory RuleStore. A single mutex covers every mutation, so
// each approval's conflict check and commit happen as one step.
type Store struct {
	now         func() time.Time
	rules       map[int64]*model.Rule
	events      map[int64][]model.RuleEvent
	nextID      int64
	nextEventID int64
	mu          sync.RWMutex
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for lifecycle timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates an empty in-memory rule store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		now:    time.Now,
		rules:  make(map[int64]*model.Rule),
		events: make(map[int64][]model.RuleEvent),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Restore loads a snapshot of previously persisted rules, keeping their ids
// and statuses. It fails if the snapshot breaks the approved-priority
// uniqueness invariant or repeats an id.
func (s *Store) Restore(snapshot []model.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	type slot struct {
		customer string
		priority int
	}
	taken := make(map[slot]int64)
	for _, r := range s.rules {
		if r.Active() {
			taken[slot{r.CustomerName, r.PriorityOrder}] = r.ID
		}
	}

	loaded := make(map[int64]*model.Rule, len(snapshot))
	for i := range snapshot {
		r := snapshot[i]
		if r.ID <= 0 {
			return common.NewValidationError("rule_id", "snapshot rules need an id")
		}
		if _, dup := s.rules[r.ID]; dup {
			return common.NewValidationError("rule_id", "duplicate id in snapshot")
		}
		if _, dup := loaded[r.ID]; dup {
			return common.NewValidationError("rule_id", "duplicate id in snapshot")
		}
		if r.Active() {
			key := slot{r.CustomerName, r.PriorityOrder}
			if existing, ok := taken[key]; ok {
				return &common.PriorityConflictError{Customer: r.CustomerName, Priority: r.PriorityOrder, ExistingRuleID: existing}
			}
			taken[key] = r.ID
		}
		loaded[r.ID] = &r
	}

	for id, r := range loaded {
		s.rules[id] = r
		if id > s.nextID {
			s.nextID = id
		}
	}
	return nil
}

// SubmitRule validates a draft candidate and queues it for approval.
func (s *Store) SubmitRule(_ context.Context, candidate model.Rule) (int64, error) {
	if err := ValidateCandidate(candidate); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insertLocked(candidate, "submitted"), nil
}

// ApproveRule moves a pending rule to approved. A replacement rule retires the
// rule it supersedes in the same step.
func (s *Store) ApproveRule(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rules[id]
	if !ok {
		return notFound(id)
	}

	if err := CheckApproval(*r, s.activeLocked(r.CustomerName)); err != nil {
		return err
	}

	now := s.now()
	if r.SupersedesRuleID != nil {
		old := s.rules[*r.SupersedesRuleID]
		old.Status = model.RuleSuperseded
		old.SupersededAt = &now
		newID := r.ID
		old.SupersededByRuleID = &newID
		s.recordLocked(old.ID, model.RuleApproved, model.RuleSuperseded, now, "replaced by approved rule")
	}

	r.Status = model.RuleApproved
	r.ApprovedAt = &now
	s.recordLocked(r.ID, model.RulePendingApproval, model.RuleApproved, now, "")

	slog.Debug("Approved rule",
		"rule_id", r.ID,
		"customer", r.CustomerName,
		"priority", r.PriorityOrder)
	return nil
}

// RejectRule moves a pending rule to the terminal rejected state.
func (s *Store) RejectRule(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rules[id]
	if !ok {
		return notFound(id)
	}
	if !r.Status.CanTransition(model.RuleRejected) {
		return TransitionError(id, r.Status, model.RuleRejected)
	}

	now := s.now()
	r.Status = model.RuleRejected
	r.RejectedAt = &now
	s.recordLocked(id, model.RulePendingApproval, model.RuleRejected, now, "")
	return nil
}

// SupersedeRule submits replacement as a pending rule that will retire id once
// approved. The original stays approved until then.
func (s *Store) SupersedeRule(_ context.Context, id int64, replacement model.Rule) (int64, error) {
	if err := ValidateCandidate(replacement); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old, ok := s.rules[id]
	if !ok {
		return 0, notFound(id)
	}
	if !old.Active() {
		return 0, TransitionError(id, old.Status, model.RuleSuperseded)
	}
	if replacement.CustomerName != old.CustomerName {
		return 0, common.NewValidationError("customer_name", "replacement must belong to the same customer")
	}

	target := id
	replacement.SupersedesRuleID = &target
	return s.insertLocked(replacement, "submitted to supersede another rule"), nil
}

// ReorderRules moves approved rules of customer to new priorities in one
// step. Each moved rule is superseded by an approved copy at its new
// priority, so swaps need no spare slot. It returns the new id of every
// moved rule, keyed by its old id.
func (s *Store) ReorderRules(_ context.Context, customer string, priorities map[int64]int) (map[int64]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range priorities {
		if _, ok := s.rules[id]; !ok {
			return nil, notFound(id)
		}
	}

	moved, err := PlanReorder(s.activeLocked(customer), priorities)
	if err != nil {
		return nil, err
	}

	now := s.now()
	replaced := make(map[int64]int64, len(moved))
	for _, old := range moved {
		newID := s.insertLocked(Replacement(old, priorities[old.ID]), "submitted to reorder rules")

		o := s.rules[old.ID]
		o.Status = model.RuleSuperseded
		o.SupersededAt = &now
		o.SupersededByRuleID = &newID
		s.recordLocked(old.ID, model.RuleApproved, model.RuleSuperseded, now, "moved by reorder")

		r := s.rules[newID]
		r.Status = model.RuleApproved
		r.ApprovedAt = &now
		s.recordLocked(newID, model.RulePendingApproval, model.RuleApproved, now, "approved by reorder")

		replaced[old.ID] = newID
	}

	slog.Debug("Reordered rules",
		"customer", customer,
		"moved", len(moved))
	return replaced, nil
}

// ActiveRules returns the customer's approved rules by ascending priority.
func (s *Store) ActiveRules(_ context.Context, customer string) ([]model.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeLocked(customer), nil
}

// GetRule returns a copy of the rule with the given id.
func (s *Store) GetRule(_ context.Context, id int64) (*model.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rules[id]
	if !ok {
		return nil, notFound(id)
	}
	cp := *r
	return &cp, nil
}

// ListRules returns rules matching filter ordered by priority, then id.
func (s *Store) ListRules(_ context.Context, filter service.RuleFilter) ([]model.Rule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.Rule
	for _, r := range s.rules {
		if filter.CustomerName != "" && r.CustomerName != filter.CustomerName {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		out = append(out, *r)
	}
	SortByPriority(out)
	return out, nil
}

// PendingRules returns the approval queue for a customer, or for everyone when
// customer is empty.
func (s *Store) PendingRules(ctx context.Context, customer string) ([]model.Rule, error) {
	return s.ListRules(ctx, service.RuleFilter{CustomerName: customer, Status: model.RulePendingApproval})
}

// RuleHistory returns the lifecycle events of a rule, oldest first.
func (s *Store) RuleHistory(_ context.Context, id int64) ([]model.RuleEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.rules[id]; !ok {
		return nil, notFound(id)
	}
	return append([]model.RuleEvent(nil), s.events[id]...), nil
}

// NextPriority suggests one past the highest priority among the customer's
// non-terminal rules.
func (s *Store) NextPriority(_ context.Context, customer string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	highest := 0
	for _, r := range s.rules {
		if r.CustomerName != customer || r.Status.Terminal() {
			continue
		}
		if r.PriorityOrder > highest {
			highest = r.PriorityOrder
		}
	}
	return highest + 1, nil
}

func (s *Store) insertLocked(candidate model.Rule, detail string) int64 {
	now := s.now()
	r := Prepare(candidate, now)
	s.nextID++
	r.ID = s.nextID
	s.rules[r.ID] = &r
	s.recordLocked(r.ID, model.RuleDraft, model.RulePendingApproval, now, detail)
	return r.ID
}

func (s *Store) activeLocked(customer string) []model.Rule {
	var out []model.Rule
	for _, r := range s.rules {
		if r.CustomerName == customer && r.Active() {
			out = append(out, *r)
		}
	}
	SortByPriority(out)
	return out
}

func (s *Store) recordLocked(id int64, from, to model.RuleStatus, at time.Time, detail string) {
	s.nextEventID++
	s.events[id] = append(s.events[id], model.RuleEvent{
		ID:         s.nextEventID,
		RuleID:     id,
		FromStatus: from,
		ToStatus:   to,
		At:         at,
		Detail:     detail,
	})
}

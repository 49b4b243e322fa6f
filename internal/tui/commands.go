package tui

import (
	"context"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Veraticus/chargemap/internal/model"
)

const storeTimeout = 10 * time.Second

// loadPending loads the approval queue from the store.
func (m Model) loadPending() tea.Cmd {
	store := m.config.Store
	customer := m.config.Customer
	return func() tea.Msg {
		if store == nil {
			return rulesLoadedMsg{err: fmt.Errorf("storage not configured")}
		}

		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()

		rules, err := store.PendingRules(ctx, customer)
		return rulesLoadedMsg{rules: rules, err: err}
	}
}

// decide approves or rejects one rule.
func (m Model) decide(id int64, status model.RuleStatus) tea.Cmd {
	store := m.config.Store
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()

		var err error
		switch status {
		case model.RuleApproved:
			err = store.ApproveRule(ctx, id)
		case model.RuleRejected:
			err = store.RejectRule(ctx, id)
		default:
			err = fmt.Errorf("unsupported decision %s", status)
		}
		return ruleDecidedMsg{id: id, status: status, err: err}
	}
}

// loadPreview computes the preview of one pending rule.
func (m Model) loadPreview(id int64) tea.Cmd {
	previewer := m.config.Previewer
	return func() tea.Msg {
		if previewer == nil {
			return previewLoadedMsg{id: id, err: fmt.Errorf("preview not available")}
		}

		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()

		report, err := previewer.PreviewRule(ctx, id)
		return previewLoadedMsg{id: id, report: report, err: err}
	}
}

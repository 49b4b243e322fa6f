package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
)

// Result summarizes a review session.
type Result struct {
	Approved int
	Rejected int
}

// Run opens the review queue in the terminal until the user quits or ctx is
// cancelled.
func Run(ctx context.Context, opts ...Option) (Result, error) {
	m := NewModel(opts...)
	if m.config.Store == nil {
		return Result{}, fmt.Errorf("storage is required")
	}

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := p.Run()
	if err != nil {
		return Result{}, fmt.Errorf("review UI failed: %w", err)
	}

	fm, ok := final.(Model)
	if !ok {
		return Result{}, nil
	}
	return Result{Approved: fm.Approved(), Rejected: fm.Rejected()}, nil
}

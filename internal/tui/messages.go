package tui

import (
	"github.com/Veraticus/chargemap/internal/engine"
	"github.com/Veraticus/chargemap/internal/model"
)

// Data loading messages.
type rulesLoadedMsg struct {
	err   error
	rules []model.Rule
}

type previewLoadedMsg struct {
	err    error
	report *engine.PreviewReport
	id     int64
}

// Decision messages.
type ruleDecidedMsg struct {
	err    error
	status model.RuleStatus
	id     int64
}

// Package tui implements the interactive rule approval queue.
package tui

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/chargemap/internal/common"
	"github.com/Veraticus/chargemap/internal/engine"
	"github.com/Veraticus/chargemap/internal/model"
)

// Model holds the review queue state.
type Model struct {
	lastError   error
	preview     *engine.PreviewReport
	help        help.Model
	status      string
	rules       []model.Rule
	config      Config
	keymap      KeyMap
	table       table.Model
	previewID   int64
	headerLines int
	approved    int
	rejected    int
	width       int
	height      int
	busy        bool
	loaded      bool
	showHelp    bool
	quitting    bool
}

// NewModel creates the review model.
func NewModel(opts ...Option) Model {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	t := table.New(
		table.WithColumns(columnsFor(cfg.Width)),
		table.WithFocused(true),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(cfg.Theme.Border).
		BorderBottom(true).
		Bold(false)
	s.Selected = cfg.Theme.Selected
	t.SetStyles(s)

	m := Model{
		config:      cfg,
		keymap:      DefaultKeyMap(),
		help:        help.New(),
		table:       t,
		width:       cfg.Width,
		height:      cfg.Height,
		headerLines: lipgloss.Height(s.Header.Render("x")),
	}
	m.resizeTable(cfg.Height)
	return m
}

// Init loads the approval queue.
func (m Model) Init() tea.Cmd {
	return m.loadPending()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.table.SetColumns(columnsFor(msg.Width))
		m.resizeTable(msg.Height)
		return m, nil

	case rulesLoadedMsg:
		m.loaded = true
		m.busy = false
		if msg.err != nil {
			m.lastError = msg.err
			return m, nil
		}
		m.setRules(msg.rules)
		return m, nil

	case ruleDecidedMsg:
		m.busy = false
		if msg.err != nil {
			m.lastError = common.Explain(msg.err)
			return m, nil
		}
		m.lastError = nil
		switch msg.status {
		case model.RuleApproved:
			m.approved++
			m.status = fmt.Sprintf("Approved rule %d", msg.id)
		case model.RuleRejected:
			m.rejected++
			m.status = fmt.Sprintf("Rejected rule %d", msg.id)
		}
		if m.previewID == msg.id {
			m.preview = nil
			m.previewID = 0
		}
		return m, m.loadPending()

	case previewLoadedMsg:
		m.busy = false
		if msg.err != nil {
			m.lastError = common.Explain(msg.err)
			return m, nil
		}
		m.lastError = nil
		m.preview = msg.report
		m.previewID = msg.id
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keymap.Quit):
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keymap.Help):
		m.showHelp = !m.showHelp
		m.help.ShowAll = m.showHelp
		return m, nil

	case key.Matches(msg, m.keymap.Refresh):
		m.busy = true
		return m, m.loadPending()

	case key.Matches(msg, m.keymap.Approve), key.Matches(msg, m.keymap.Reject), key.Matches(msg, m.keymap.Preview):
		r, ok := m.selectedRule()
		if !ok || m.busy {
			return m, nil
		}
		m.busy = true
		m.status = ""
		switch {
		case key.Matches(msg, m.keymap.Approve):
			return m, m.decide(r.ID, model.RuleApproved)
		case key.Matches(msg, m.keymap.Reject):
			return m, m.decide(r.ID, model.RuleRejected)
		default:
			return m, m.loadPreview(r.ID)
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *Model) setRules(rs []model.Rule) {
	m.rules = rs
	rows := make([]table.Row, 0, len(rs))
	for _, r := range rs {
		replaces := ""
		if r.SupersedesRuleID != nil {
			replaces = strconv.FormatInt(*r.SupersedesRuleID, 10)
		}
		rows = append(rows, table.Row{
			strconv.FormatInt(r.ID, 10),
			r.CustomerName,
			strconv.Itoa(r.PriorityOrder),
			r.ChargeNameMapping,
			r.Targets.ChargeID,
			replaces,
		})
	}
	m.table.SetRows(rows)
	if m.table.Cursor() >= len(rows) && len(rows) > 0 {
		m.table.SetCursor(len(rows) - 1)
	}
}

func (m Model) selectedRule() (model.Rule, bool) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.rules) {
		return model.Rule{}, false
	}
	return m.rules[i], true
}

// Approved returns how many rules were approved in this session.
func (m Model) Approved() int {
	return m.approved
}

// Rejected returns how many rules were rejected in this session.
func (m Model) Rejected() int {
	return m.rejected
}

func columnsFor(width int) []table.Column {
	pattern := width - 6 - 16 - 8 - 12 - 8 - 14
	if pattern < 16 {
		pattern = 16
	}
	return []table.Column{
		{Title: "ID", Width: 6},
		{Title: "Customer", Width: 16},
		{Title: "Priority", Width: 8},
		{Title: "Pattern", Width: pattern},
		{Title: "Charge ID", Width: 12},
		{Title: "Replaces", Width: 8},
	}
}

// resizeTable shows tableHeight(height) rows. The table's own height
// includes its header.
func (m *Model) resizeTable(height int) {
	m.table.SetHeight(tableHeight(height) + m.headerLines)
}

// tableHeight is the number of rule rows that fit a window of height lines.
func tableHeight(height int) int {
	h := height - 16
	if h < 3 {
		return 3
	}
	return h
}

// errorText prefers the user-facing message of a UserError.
func errorText(err error) string {
	var ue *common.UserError
	if errors.As(err, &ue) {
		return ue.UserMessage
	}
	return err.Error()
}

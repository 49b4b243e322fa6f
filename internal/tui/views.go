package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/chargemap/internal/model"
)

// View renders the queue.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	theme := m.config.Theme
	title := "Rule approval queue"
	if m.config.Customer != "" {
		title += " · " + m.config.Customer
	}

	sections := []string{theme.Title.Render(title)}

	switch {
	case !m.loaded:
		sections = append(sections, theme.StatusPending.Render("Loading pending rules..."))
	case len(m.rules) == 0:
		sections = append(sections, theme.Subtitle.Render("No rules pending approval."))
	default:
		sections = append(sections, theme.BorderedBox.Render(m.table.View()))
		if r, ok := m.selectedRule(); ok {
			sections = append(sections, m.renderDetail(r))
			if m.preview != nil && m.previewID == r.ID {
				sections = append(sections, m.renderPreview())
			}
		}
	}

	sections = append(sections, m.renderStatusBar(), m.help.View(m.keymap))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderDetail(r model.Rule) string {
	theme := m.config.Theme
	var b strings.Builder

	fmt.Fprintf(&b, "%s %s\n", theme.Bold.Render("Pattern:"), theme.Code.Render(r.ChargeNameMapping))
	fmt.Fprintf(&b, "%s %s / %s / %s / %s\n", theme.Bold.Render("Targets:"),
		r.Targets.ChargeID, r.Targets.ChargeGroupHeading, r.Targets.ChargeCategory, r.Targets.RequestType)

	scope := scopeLines(r.Scope)
	if len(scope) == 0 {
		fmt.Fprintf(&b, "%s any charge", theme.Bold.Render("Scope:"))
	} else {
		fmt.Fprintf(&b, "%s %s", theme.Bold.Render("Scope:"), strings.Join(scope, ", "))
	}
	return b.String()
}

func (m Model) renderPreview() string {
	theme := m.config.Theme
	p := m.preview

	var b strings.Builder
	fmt.Fprintf(&b, "%s categorized %d → %d of %d, %d charges change\n",
		theme.Bold.Render("Preview:"),
		p.Before.Categorized, p.After.Categorized, p.After.Total, len(p.Changes))

	const maxShown = 5
	for i, c := range p.Changes {
		if i == maxShown {
			fmt.Fprintf(&b, "  … %d more\n", len(p.Changes)-maxShown)
			break
		}
		fmt.Fprintf(&b, "  %s: %s → %s\n", c.After.Charge.ChargeName, outcome(c.Before), outcome(c.After))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderStatusBar() string {
	theme := m.config.Theme
	counts := theme.Subtitle.Render(fmt.Sprintf("%d pending · %d approved · %d rejected",
		len(m.rules), m.approved, m.rejected))

	switch {
	case m.lastError != nil:
		return counts + "  " + theme.StatusError.Render(errorText(m.lastError))
	case m.busy:
		return counts + "  " + theme.StatusPending.Render("working...")
	case m.status != "":
		return counts + "  " + theme.StatusSuccess.Render(m.status)
	}
	return counts
}

func outcome(r model.CategorizationResult) string {
	if !r.Categorized() {
		return "uncategorized"
	}
	return r.Targets.ChargeID
}

func scopeLines(s model.RuleScope) []string {
	fields := []struct {
		value *string
		name  string
	}{
		{s.ProviderName, "provider"},
		{s.AccountNumber, "account"},
		{s.UsageUnit, "usage unit"},
		{s.ServiceType, "service type"},
		{s.Tariff, "tariff"},
		{s.RawChargeName, "charge name"},
		{s.MeterNumber, "meter"},
		{s.MeasurementType, "measurement"},
	}

	var out []string
	for _, f := range fields {
		if f.value != nil {
			out = append(out, fmt.Sprintf("%s=%q", f.name, *f.value))
		}
	}
	return out
}

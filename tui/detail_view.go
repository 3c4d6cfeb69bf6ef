// ABOUTME: Contact detail view for TUI
// ABOUTME: Shows member raw contacts, their data and merge suggestions
package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harperreed/roster/aggregation"
	"github.com/harperreed/roster/provider"
)

const maxSuggestions = 5

var (
	fieldLabelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			Width(20)

	fieldValueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("252"))

	sectionStyle = lipgloss.NewStyle().Bold(true)

	selectedStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255")).
			Bold(true)
)

func (m Model) renderDetailView() string {
	var s strings.Builder

	// Title
	s.WriteString(titleStyle.Render("CONTACT"))
	s.WriteString("\n\n")

	if m.detail == nil {
		s.WriteString(m.renderStatus())
		s.WriteString(m.renderDetailHelp())
		return s.String()
	}
	c := m.detail

	s.WriteString(m.renderField("Name", c.DisplayName))
	s.WriteString(m.renderField("ID", fmt.Sprintf("%d", c.ID)))
	s.WriteString(m.renderField("Lookup", c.LookupKey))
	s.WriteString(m.renderField("Starred", yesNo(c.Starred)))
	if c.Status != "" {
		s.WriteString(m.renderField("Status", c.Status))
	}

	// Members
	s.WriteString("\n")
	s.WriteString(sectionStyle.Render(fmt.Sprintf("RAW CONTACTS (%d)", len(c.RawContacts))))
	s.WriteString("\n")
	for _, r := range c.RawContacts {
		line := fmt.Sprintf("  • #%d %s [%s]", r.ID, nameOrUnnamed(r.DisplayName), accountLabel(r))
		if r.Deleted {
			line += " (deleted)"
		}
		s.WriteString(line + "\n")
		for i := range r.Data {
			kind, value := r.Data[i].Kind()
			if value == "" {
				continue
			}
			s.WriteString(fmt.Sprintf("      %-12s %s\n", kind, value))
		}
	}

	// Merge suggestions
	s.WriteString("\n")
	s.WriteString(sectionStyle.Render("SUGGESTIONS"))
	s.WriteString("\n")
	if len(m.suggestions) == 0 {
		s.WriteString(helpStyle.Render("  No merge suggestions"))
		s.WriteString("\n")
	}
	for i, sg := range m.suggestions {
		line := fmt.Sprintf("  %s (score %d: %s)", nameOrUnnamed(sg.DisplayName), sg.Score, strings.Join(sg.Signals, ", "))
		if i == m.selectedSuggestion {
			line = selectedStyle.Render("▶" + line[1:])
		}
		s.WriteString(line + "\n")
	}

	s.WriteString("\n")
	s.WriteString(m.renderStatus())

	// Help
	s.WriteString(m.renderDetailHelp())

	return s.String()
}

func (m Model) renderField(label, value string) string {
	if value == "" {
		value = "-"
	}
	return fmt.Sprintf("%s %s\n",
		fieldLabelStyle.Render(label+":"),
		fieldValueStyle.Render(value))
}

func (m Model) renderDetailHelp() string {
	help := []string{
		"Esc: Back",
		"↑/↓: Select suggestion",
		"J: Join",
		"s: Split",
		"d: Delete",
		"g: Graph",
		"q: Quit",
	}
	return helpStyle.Render(strings.Join(help, " • "))
}

func (m Model) handleDetailKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.viewMode = ViewList
		m.detail = nil
		m.loadContacts()
	case "up", "k":
		if m.selectedSuggestion > 0 {
			m.selectedSuggestion--
		}
	case "down", "j":
		if m.selectedSuggestion < len(m.suggestions)-1 {
			m.selectedSuggestion++
		}
	case "J":
		if m.detail == nil || len(m.suggestions) == 0 {
			m.status = "Nothing to join"
			return m, nil
		}
		m.confirm = confirmJoin
		m.viewMode = ViewConfirm
	case "s":
		if m.detail == nil || len(m.detail.RawContacts) < 2 {
			m.status = "Contact has a single raw contact"
			return m, nil
		}
		m.confirm = confirmSplit
		m.viewMode = ViewConfirm
	case "d":
		if m.detail != nil {
			m.confirm = confirmDelete
			m.viewMode = ViewConfirm
		}
	case "g":
		if m.detail != nil {
			m.viewMode = ViewGraph
			m.generateGraph()
		}
	}

	return m, nil
}

// openDetail loads contact id with its members and merge suggestions.
func (m *Model) openDetail(id int64) {
	m.viewMode = ViewDetail
	m.status, m.err = "", nil
	m.detail, m.suggestions, m.selectedSuggestion = nil, nil, 0

	c, err := m.p.GetContact(m.ctx, provider.CallOptions{}, id)
	if err != nil {
		m.fail(fmt.Errorf("failed to load contact %d: %w", id, err))
		return
	}
	m.detail = c

	suggestions, err := m.p.Suggestions(m.ctx, provider.CallOptions{}, id, maxSuggestions, aggregation.SuggestionFilter{})
	if err != nil {
		m.fail(fmt.Errorf("failed to load suggestions: %w", err))
		return
	}
	m.suggestions = suggestions
}

func accountLabel(r provider.RawContactView) string {
	if r.Account.IsLocal() {
		return "(local)"
	}
	return r.Account.String()
}

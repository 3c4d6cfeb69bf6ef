// ABOUTME: Confirmation dialog for TUI
// ABOUTME: Guards contact delete, split and join behind a yes/no prompt
package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harperreed/roster/provider"
)

// confirmAction is the destructive action awaiting confirmation.
type confirmAction int

const (
	confirmNone confirmAction = iota
	confirmDelete
	confirmSplit
	confirmJoin
)

var (
	confirmBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("9")).
			Padding(1, 2).
			Width(60).
			Align(lipgloss.Center)

	warningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true)

	confirmButtonStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("15")).
				Background(lipgloss.Color("9")).
				Padding(0, 2).
				MarginRight(2)

	cancelButtonStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("15")).
				Background(lipgloss.Color("8")).
				Padding(0, 2)
)

func (m Model) renderConfirmView() string {
	if m.detail == nil {
		return "Error: no contact selected"
	}

	var title, message, button string
	switch m.confirm {
	case confirmDelete:
		title = "⚠  DELETE CONFIRMATION  ⚠"
		message = fmt.Sprintf("Delete all %d raw contacts of this contact?", len(m.detail.RawContacts))
		button = "Yes, Delete (y)"
	case confirmSplit:
		title = "SPLIT CONFIRMATION"
		message = fmt.Sprintf("Split this contact into %d separate contacts?", len(m.detail.RawContacts))
		button = "Yes, Split (y)"
	case confirmJoin:
		title = "JOIN CONFIRMATION"
		message = fmt.Sprintf("Join with %s?", nameOrUnnamed(m.suggestions[m.selectedSuggestion].DisplayName))
		button = "Yes, Join (y)"
	default:
		return "Error: nothing to confirm"
	}

	buttons := lipgloss.JoinHorizontal(
		lipgloss.Left,
		confirmButtonStyle.Render(button),
		cancelButtonStyle.Render("Cancel (n/esc)"),
	)

	content := lipgloss.JoinVertical(
		lipgloss.Center,
		warningStyle.Render(title),
		"",
		message,
		fmt.Sprintf("\nCONTACT: %s\n", nameOrUnnamed(m.detail.DisplayName)),
		"",
		buttons,
	)

	// Center the box on screen
	return lipgloss.Place(
		m.width,
		m.height,
		lipgloss.Center,
		lipgloss.Center,
		confirmBoxStyle.Render(content),
	)
}

func (m Model) handleConfirmKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		action := m.confirm
		m.confirm = confirmNone
		m.performConfirmed(action)
	case "n", "N", "esc":
		m.confirm = confirmNone
		m.viewMode = ViewDetail
	}

	return m, nil
}

func (m *Model) performConfirmed(action confirmAction) {
	c := m.detail
	switch action {
	case confirmDelete:
		for _, r := range c.RawContacts {
			if r.Deleted {
				continue
			}
			if _, err := m.p.DeleteRawContact(m.ctx, provider.CallOptions{}, r.ID); err != nil {
				m.viewMode = ViewDetail
				m.fail(fmt.Errorf("failed to delete raw contact %d: %w", r.ID, err))
				return
			}
		}
		m.viewMode = ViewList
		m.detail = nil
		m.loadContacts()
		m.status, m.err = "Successfully deleted", nil
	case confirmSplit:
		ids, err := m.p.SplitContact(m.ctx, provider.CallOptions{}, c.ID)
		if err != nil {
			m.viewMode = ViewDetail
			m.fail(fmt.Errorf("failed to split contact: %w", err))
			return
		}
		m.viewMode = ViewList
		m.detail = nil
		m.loadContacts()
		m.status, m.err = fmt.Sprintf("Split into %d contacts", len(ids)), nil
	case confirmJoin:
		other := m.suggestions[m.selectedSuggestion].ContactID
		id, err := m.p.JoinContacts(m.ctx, provider.CallOptions{}, c.ID, other)
		if err != nil {
			m.viewMode = ViewDetail
			m.fail(fmt.Errorf("failed to join contacts: %w", err))
			return
		}
		m.openDetail(id)
		if m.err == nil {
			m.status = "Contacts joined"
		}
	}
}

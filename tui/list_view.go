// ABOUTME: Contact list view for TUI
// ABOUTME: Renders the aggregated contacts table with search and navigation
package tui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harperreed/roster/provider"
)

const listLimit = 100

func (m Model) renderListView() string {
	var s strings.Builder

	// Title
	s.WriteString(titleStyle.Render("ROSTER"))
	s.WriteString("\n\n")

	// Tabs
	s.WriteString(m.renderTabs())
	s.WriteString("\n\n")

	if m.searching || m.search.Value() != "" {
		s.WriteString(m.search.View())
		s.WriteString("\n\n")
	}

	// Table
	s.WriteString(m.renderContactsTable())
	s.WriteString("\n")
	s.WriteString(m.renderStatus())

	// Help
	s.WriteString(m.renderListHelp())

	return s.String()
}

func (m Model) renderTabs() string {
	tabs := []struct {
		name string
		mode ViewMode
	}{
		{"Contacts", ViewList},
		{"Sync", ViewSync},
	}
	var rendered []string
	for _, tab := range tabs {
		if tab.mode == m.viewMode {
			rendered = append(rendered, tabActiveStyle.Render(tab.name))
		} else {
			rendered = append(rendered, tabInactiveStyle.Render(tab.name))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
}

func (m Model) renderContactsTable() string {
	if len(m.contacts) == 0 {
		return helpStyle.Render("No contacts found.")
	}

	columns := []table.Column{
		{Title: "ID", Width: 6},
		{Title: "Name", Width: 32},
		{Title: "Starred", Width: 8},
		{Title: "Phone", Width: 6},
	}

	rows := make([]table.Row, 0, len(m.contacts))
	for _, c := range m.contacts {
		rows = append(rows, table.Row{
			strconv.FormatInt(c.ID, 10),
			nameOrUnnamed(c.DisplayName),
			yesNo(c.Starred),
			yesNo(c.HasPhoneNumber),
		})
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(true),
		table.WithHeight(max(m.height-12, 5)),
	)

	// Set selected row
	if m.selectedRow < len(rows) {
		t.SetCursor(m.selectedRow)
	}

	return t.View()
}

func (m Model) renderListHelp() string {
	help := []string{
		"↑/↓: Navigate",
		"Tab: Sync",
		"Enter: View details",
		"/: Search",
		"n: New",
		"r: Refresh",
		"q: Quit",
	}
	if m.searching {
		help = []string{"Enter: Search", "Esc: Clear"}
	}
	return helpStyle.Render(strings.Join(help, " • "))
}

func (m Model) handleListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.searching {
		return m.handleSearchKeys(msg)
	}

	switch msg.String() {
	case "up", "k":
		if m.selectedRow > 0 {
			m.selectedRow--
		}
	case "down", "j":
		if m.selectedRow < len(m.contacts)-1 {
			m.selectedRow++
		}
	case "tab":
		m.viewMode = ViewSync
		m.loadSyncRuns()
	case "enter":
		if m.selectedRow < len(m.contacts) {
			m.openDetail(m.contacts[m.selectedRow].ID)
		}
	case "/":
		m.searching = true
		m.search.Focus()
		return m, textinput.Blink
	case "n":
		m.viewMode = ViewEdit
		m.initFormInputs()
	case "r":
		m.loadContacts()
	}

	return m, nil
}

func (m Model) handleSearchKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.searching = false
		m.search.Blur()
		m.selectedRow = 0
		m.loadContacts()
		return m, nil
	case "esc":
		m.searching = false
		m.search.Blur()
		m.search.SetValue("")
		m.selectedRow = 0
		m.loadContacts()
		return m, nil
	}

	var cmd tea.Cmd
	m.search, cmd = m.search.Update(msg)
	return m, cmd
}

// loadContacts fills the list from the search index when a query is set,
// otherwise in display order.
func (m *Model) loadContacts() {
	var (
		contacts []provider.ContactView
		err      error
	)
	if q := strings.TrimSpace(m.search.Value()); q != "" {
		contacts, err = m.p.FindContacts(m.ctx, provider.CallOptions{}, q, listLimit)
	} else {
		contacts, err = m.p.ListContacts(m.ctx, provider.CallOptions{}, listLimit, 0)
	}
	if err != nil {
		m.fail(fmt.Errorf("failed to load contacts: %w", err))
		return
	}
	m.contacts = contacts
	if m.selectedRow >= len(contacts) {
		m.selectedRow = max(len(contacts)-1, 0)
	}
}

func nameOrUnnamed(name string) string {
	if name == "" {
		return "(unnamed)"
	}
	return name
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

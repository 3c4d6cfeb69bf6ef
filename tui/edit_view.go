// ABOUTME: New contact form for TUI
// ABOUTME: Collects name, email, phone, company and notes into a local raw contact
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/harperreed/roster/models"
	"github.com/harperreed/roster/provider"
)

// formFields are the kinds of the new-contact form, in display order.
var formFields = []struct {
	kind        string
	placeholder string
	limit       int
}{
	{"name", "Name", 100},
	{"email", "Email", 100},
	{"phone", "Phone", 20},
	{"organization", "Company Name", 100},
	{"note", "Notes", 500},
}

func (m Model) renderEditView() string {
	var s strings.Builder

	// Title
	s.WriteString(titleStyle.Render("NEW CONTACT"))
	s.WriteString("\n\n")

	// Form fields
	for i, input := range m.formInputs {
		if i == m.focusIndex {
			s.WriteString("> ")
		} else {
			s.WriteString("  ")
		}
		s.WriteString(input.View())
		s.WriteString("\n")
	}

	s.WriteString("\n")
	s.WriteString(m.renderStatus())

	// Help
	help := []string{
		"Tab: Next field",
		"Enter: Save",
		"Esc: Cancel",
	}
	s.WriteString(helpStyle.Render(strings.Join(help, " • ")))

	return s.String()
}

func (m Model) handleEditKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.viewMode = ViewList
		return m, nil
	case "tab", "shift+tab":
		n := len(m.formInputs)
		if msg.String() == "tab" {
			m.focusIndex = (m.focusIndex + 1) % n
		} else {
			m.focusIndex = (m.focusIndex + n - 1) % n
		}
		m.updateFormFocus()
		return m, nil
	case "enter":
		id, err := m.saveContact()
		if err != nil {
			m.fail(err)
			return m, nil
		}
		m.viewMode = ViewList
		m.loadContacts()
		m.status, m.err = fmt.Sprintf("Created raw contact %d", id), nil
		return m, nil
	}

	// Update current input
	var cmd tea.Cmd
	m.formInputs[m.focusIndex], cmd = m.formInputs[m.focusIndex].Update(msg)
	return m, cmd
}

func (m *Model) initFormInputs() {
	m.formInputs = make([]textinput.Model, len(formFields))
	for i, f := range formFields {
		in := textinput.New()
		in.Placeholder = f.placeholder
		in.CharLimit = f.limit
		m.formInputs[i] = in
	}
	m.status, m.err = "", nil
	m.focusIndex = 0
	m.updateFormFocus()
}

func (m *Model) updateFormFocus() {
	for i := range m.formInputs {
		if i == m.focusIndex {
			m.formInputs[i].Focus()
		} else {
			m.formInputs[i].Blur()
		}
	}
}

// saveContact inserts the form as a raw contact in the local account.
func (m *Model) saveContact() (int64, error) {
	var rows []models.DataRow
	for i, f := range formFields {
		value := strings.TrimSpace(m.formInputs[i].Value())
		if value == "" {
			continue
		}
		mime, col, ok := models.MimeForKind(f.kind)
		if !ok {
			return 0, fmt.Errorf("unknown field kind %q", f.kind)
		}
		row := models.DataRow{MimeType: mime}
		row.Set(col, value)
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return 0, fmt.Errorf("enter at least one field")
	}

	id, err := m.p.InsertRawContact(m.ctx, provider.CallOptions{}, provider.NewRawContact{Data: rows})
	if err != nil {
		return 0, fmt.Errorf("failed to create contact: %w", err)
	}
	return id, nil
}

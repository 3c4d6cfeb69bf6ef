// ABOUTME: Graph view for TUI
// ABOUTME: Shows the DOT membership graph of the open contact
package tui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harperreed/roster/provider"
	"github.com/harperreed/roster/viz"
)

func (m Model) renderGraphView() string {
	var s strings.Builder

	// Title
	s.WriteString(titleStyle.Render("MEMBERSHIP GRAPH"))
	s.WriteString("\n\n")

	if m.graphDOT == "" {
		s.WriteString(m.renderStatus())
	} else {
		s.WriteString(lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Render(m.graphDOT))
	}

	s.WriteString("\n\n")

	// Help
	s.WriteString(helpStyle.Render(strings.Join([]string{"Esc: Back", "q: Quit"}, " • ")))

	return s.String()
}

func (m Model) handleGraphKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "esc" {
		m.viewMode = ViewDetail
		m.graphDOT = ""
	}

	return m, nil
}

// generateGraph renders the DOT graph of the open contact and its members.
func (m *Model) generateGraph() {
	id := m.detail.ID
	g, err := viz.NewGraphGenerator(m.p, provider.CallOptions{}).GenerateMembershipGraph(m.ctx, &id)
	if err != nil {
		m.fail(fmt.Errorf("failed to generate graph: %w", err))
		return
	}
	m.graphDOT = g.DOT
}

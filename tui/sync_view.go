// ABOUTME: TUI view for Google sync history and controls
// ABOUTME: Shows recent sync runs of the configured account and triggers a sync as a command
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harperreed/roster/db"
	"github.com/harperreed/roster/models"
	"github.com/harperreed/roster/provider"
	"github.com/harperreed/roster/sync"
)

const syncRunLimit = 5

var (
	syncHeaderStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			Underline(true)

	syncIdleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	syncSyncingStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("11")).
				Bold(true)

	syncErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))

	syncMessageStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240")).
				Italic(true)
)

// SyncCompleteMsg is sent when a sync operation completes.
type SyncCompleteMsg struct {
	Account string
	Result  sync.Result
	Error   error
}

// googleSync syncs through the People API with the saved OAuth token.
func googleSync(p *provider.Provider) SyncFunc {
	return func(ctx context.Context, account string) (sync.Result, error) {
		token, err := sync.LoadToken()
		if err != nil {
			return sync.Result{}, fmt.Errorf("authentication failed: %w", err)
		}
		source, err := sync.NewPeopleClient(ctx, token)
		if err != nil {
			return sync.Result{}, fmt.Errorf("failed to create People client: %w", err)
		}
		return sync.NewAdapter(p, source, account).Sync(ctx)
	}
}

func (m Model) renderSyncView() string {
	var s strings.Builder

	// Title
	s.WriteString(titleStyle.Render("ROSTER"))
	s.WriteString("\n\n")
	s.WriteString(m.renderTabs())
	s.WriteString("\n\n")

	if m.opts.AccountName == "" {
		s.WriteString(syncMessageStyle.Render("No Google account configured. Set google_account_name or pass --account."))
		s.WriteString("\n\n")
		s.WriteString(helpStyle.Render("Esc: Back • q: Quit"))
		return s.String()
	}

	s.WriteString(syncHeaderStyle.Render("Google account " + m.opts.AccountName))
	s.WriteString("\n\n")

	switch {
	case m.syncing:
		s.WriteString(syncSyncingStyle.Render("  ⟳ Syncing..."))
	case len(m.syncRuns) == 0:
		s.WriteString(syncMessageStyle.Render("  Not synced yet"))
	default:
		for _, r := range m.syncRuns {
			s.WriteString(renderSyncRun(r))
			s.WriteString("\n")
		}
	}
	s.WriteString("\n")

	// Recent messages
	if len(m.syncMessages) > 0 {
		s.WriteString("\n")
		s.WriteString(syncHeaderStyle.Render("Recent Activity"))
		s.WriteString("\n\n")
		start := max(len(m.syncMessages)-5, 0)
		for _, msg := range m.syncMessages[start:] {
			s.WriteString(syncMessageStyle.Render("  " + msg))
			s.WriteString("\n")
		}
	}

	s.WriteString(m.renderStatus())

	// Help
	help := []string{
		"Enter/s: Sync now",
		"r: Refresh",
		"Tab/Esc: Contacts",
		"q: Quit",
	}
	s.WriteString(helpStyle.Render(strings.Join(help, " • ")))

	return s.String()
}

func renderSyncRun(r db.SyncRun) string {
	kind := "incremental"
	if r.Full {
		kind = "full"
	}
	when := formatTimeSince(r.StartedAt)
	if r.Status == db.SyncStatusError {
		return syncErrorStyle.Render(fmt.Sprintf("  ✗ %s %s sync failed: %s", when, kind, r.Error))
	}
	return syncIdleStyle.Render(fmt.Sprintf("  ✓ %s %s sync", when, kind)) +
		syncMessageStyle.Render(fmt.Sprintf(" • %d fetched, %d inserted, %d updated, %d deleted",
			r.Fetched, r.Inserted, r.Updated, r.Deleted))
}

func (m Model) handleSyncKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter", "s":
		if m.opts.AccountName == "" || m.syncing {
			return m, nil
		}
		m.syncing = true
		m.addSyncMessage(fmt.Sprintf("Starting sync of %s...", m.opts.AccountName))
		return m, m.runSync(m.opts.AccountName)
	case "r":
		m.loadSyncRuns()
	case "esc", "tab":
		m.viewMode = ViewList
		m.loadContacts()
	}

	return m, nil
}

// runSync runs the sync off the update loop and reports a SyncCompleteMsg.
func (m Model) runSync(account string) tea.Cmd {
	ctx, run := m.ctx, m.opts.Sync
	return func() tea.Msg {
		res, err := run(ctx, account)
		return SyncCompleteMsg{Account: account, Result: res, Error: err}
	}
}

func (m *Model) handleSyncComplete(msg SyncCompleteMsg) {
	m.syncing = false
	if msg.Error != nil {
		m.addSyncMessage(fmt.Sprintf("✗ %s sync failed: %v", msg.Account, msg.Error))
	} else {
		r := msg.Result
		m.addSyncMessage(fmt.Sprintf("✓ %s synced: %d fetched, %d inserted, %d updated, %d deleted",
			msg.Account, r.Fetched, r.Inserted, r.Updated, r.Deleted))
	}
	m.loadSyncRuns()
	m.loadContacts()
}

func (m *Model) loadSyncRuns() {
	if m.opts.AccountName == "" {
		m.syncRuns = nil
		return
	}
	acct := models.Account{Name: m.opts.AccountName, Type: sync.AccountType}
	runs, err := m.p.SyncRuns(m.ctx, provider.CallOptions{}, acct, syncRunLimit)
	if err != nil {
		m.fail(fmt.Errorf("failed to load sync history: %w", err))
		return
	}
	m.syncRuns = runs
}

// addSyncMessage adds a message to the sync message log.
func (m *Model) addSyncMessage(msg string) {
	timestamp := time.Now().Format("15:04:05")
	m.syncMessages = append(m.syncMessages, fmt.Sprintf("[%s] %s", timestamp, msg))
}

// formatTimeSince formats a time duration in a human-readable way.
func formatTimeSince(t time.Time) string {
	duration := time.Since(t)
	switch {
	case duration < time.Minute:
		return "just now"
	case duration < time.Hour:
		return plural(int(duration.Minutes()), "minute") + " ago"
	case duration < 24*time.Hour:
		return plural(int(duration.Hours()), "hour") + " ago"
	}
	return t.Local().Format("Jan 2 15:04")
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

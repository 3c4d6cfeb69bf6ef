// ABOUTME: Terminal User Interface using bubbletea framework
// ABOUTME: Full-screen browser for aggregated contacts, merge review and Google sync status
package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/harperreed/roster/db"
	"github.com/harperreed/roster/models"
	"github.com/harperreed/roster/provider"
	"github.com/harperreed/roster/sync"
)

// ViewMode represents the current TUI view
type ViewMode int

const (
	ViewList ViewMode = iota
	ViewDetail
	ViewEdit
	ViewGraph
	ViewConfirm
	ViewSync
)

// SyncFunc runs one Google sync for account.
type SyncFunc func(ctx context.Context, account string) (sync.Result, error)

// Options configures the TUI.
type Options struct {
	// AccountName is the Google account shown in the sync view.
	AccountName string
	// Sync replaces the People API sync, mostly for tests.
	Sync SyncFunc
}

// Model is the main bubbletea model
type Model struct {
	ctx      context.Context
	p        *provider.Provider
	opts     Options
	viewMode ViewMode

	// List view state
	contacts    []provider.ContactView
	selectedRow int
	search      textinput.Model
	searching   bool

	// Detail view state
	detail             *provider.ContactView
	suggestions        []models.Suggestion
	selectedSuggestion int

	// Edit view state
	formInputs []textinput.Model
	focusIndex int

	// Graph view state
	graphDOT string

	// Confirmation state
	confirm confirmAction

	// Sync view state
	syncRuns     []db.SyncRun
	syncing      bool
	syncMessages []string

	// UI state
	status string
	width  int
	height int
	err    error
}

// NewModel creates a new TUI model and loads the first page of contacts.
func NewModel(ctx context.Context, p *provider.Provider, opts Options) Model {
	if opts.Sync == nil {
		opts.Sync = googleSync(p)
	}
	search := textinput.New()
	search.Placeholder = "Search contacts"
	search.CharLimit = 100

	m := Model{
		ctx:      ctx,
		p:        p,
		opts:     opts,
		viewMode: ViewList,
		search:   search,
		width:    80,
		height:   24,
	}
	m.loadContacts()
	return m
}

// Run starts the full-screen interface and blocks until the user quits.
func Run(ctx context.Context, p *provider.Provider, opts Options) error {
	_, err := tea.NewProgram(NewModel(ctx, p, opts), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case SyncCompleteMsg:
		m.handleSyncComplete(msg)
		return m, nil
	}
	if m.searching {
		var cmd tea.Cmd
		m.search, cmd = m.search.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m Model) View() string {
	switch m.viewMode {
	case ViewList:
		return m.renderListView()
	case ViewDetail:
		return m.renderDetailView()
	case ViewEdit:
		return m.renderEditView()
	case ViewGraph:
		return m.renderGraphView()
	case ViewConfirm:
		return m.renderConfirmView()
	case ViewSync:
		return m.renderSyncView()
	}
	return ""
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}
	// Text entry owns every other key.
	typing := m.viewMode == ViewEdit || (m.viewMode == ViewList && m.searching)
	if msg.String() == "q" && !typing {
		return m, tea.Quit
	}

	switch m.viewMode {
	case ViewList:
		return m.handleListKeys(msg)
	case ViewDetail:
		return m.handleDetailKeys(msg)
	case ViewEdit:
		return m.handleEditKeys(msg)
	case ViewGraph:
		return m.handleGraphKeys(msg)
	case ViewConfirm:
		return m.handleConfirmKeys(msg)
	case ViewSync:
		return m.handleSyncKeys(msg)
	}

	return m, nil
}

// fail records err for the status line.
func (m *Model) fail(err error) {
	m.err = err
	m.status = "Error: " + err.Error()
}

func (m Model) renderStatus() string {
	if m.status == "" {
		return ""
	}
	if m.err != nil {
		return errorStyle.Render(m.status) + "\n"
	}
	return statusStyle.Render(m.status) + "\n"
}

// Styles
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			MarginBottom(1)

	tabActiveStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			Background(lipgloss.Color("235")).
			Padding(0, 2)

	tabInactiveStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240")).
				Padding(0, 2)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			MarginTop(1)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))
)

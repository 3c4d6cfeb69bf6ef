package tui

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/roster/db"
	"github.com/harperreed/roster/models"
	"github.com/harperreed/roster/provider"
	"github.com/harperreed/roster/sync"
)

var testAccount = models.Account{Name: "x@example.com", Type: "com.example"}

func setupProvider(t *testing.T) (context.Context, *provider.Provider) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	dir := t.TempDir()
	p, err := provider.Open(ctx, provider.Options{
		ContactsPath: filepath.Join(dir, "contacts.db"),
		ProfilePath:  filepath.Join(dir, "profile.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	require.NoError(t, p.WaitIdle(ctx))
	return ctx, p
}

func addContact(t *testing.T, ctx context.Context, p *provider.Provider, name string) int64 {
	t.Helper()
	row := models.DataRow{MimeType: models.MimeStructuredName}
	row.Data[models.NameDisplayName] = name
	id, err := p.InsertRawContact(ctx, provider.CallOptions{}, provider.NewRawContact{
		Account: testAccount,
		Data:    []models.DataRow{row},
	})
	require.NoError(t, err)
	return id
}

func keyMsg(key string) tea.KeyMsg {
	switch key {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
}

// press feeds keys to the model and returns the last command.
func press(t *testing.T, m Model, keys ...string) (Model, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, k := range keys {
		var next tea.Model
		next, cmd = m.Update(keyMsg(k))
		m = next.(Model)
	}
	return m, cmd
}

func selectContact(t *testing.T, m Model, name string) Model {
	t.Helper()
	for i, c := range m.contacts {
		if c.DisplayName == name {
			m.selectedRow = i
			return m
		}
	}
	t.Fatalf("contact %q not listed", name)
	return m
}

func TestListShowsContacts(t *testing.T) {
	ctx, p := setupProvider(t)
	addContact(t, ctx, p, "Ada Lovelace")
	addContact(t, ctx, p, "Grace Hopper")

	m := NewModel(ctx, p, Options{})
	require.Len(t, m.contacts, 2)
	out := m.View()
	assert.Contains(t, out, "Ada Lovelace")
	assert.Contains(t, out, "Grace Hopper")
	assert.Contains(t, out, "Contacts")
}

func TestSearchFiltersList(t *testing.T) {
	ctx, p := setupProvider(t)
	addContact(t, ctx, p, "Robert Smith")
	addContact(t, ctx, p, "Zed Zulu")

	m := NewModel(ctx, p, Options{})
	m, _ = press(t, m, "/", "Zed", "enter")
	assert.False(t, m.searching)
	require.Len(t, m.contacts, 1)
	assert.Equal(t, "Zed Zulu", m.contacts[0].DisplayName)

	m, _ = press(t, m, "/", "esc")
	assert.Len(t, m.contacts, 2)
}

func TestQuitKeyOnlyOutsideTextEntry(t *testing.T) {
	ctx, p := setupProvider(t)
	m := NewModel(ctx, p, Options{})

	m, _ = press(t, m, "n", "q")
	assert.Equal(t, ViewEdit, m.viewMode)
	assert.Equal(t, "q", m.formInputs[0].Value())

	m, _ = press(t, m, "esc", "/", "q")
	assert.True(t, m.searching)
	assert.Equal(t, "q", m.search.Value())

	m, _ = press(t, m, "esc")
	_, cmd := press(t, m, "q")
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestJoinSuggestionThenSplit(t *testing.T) {
	ctx, p := setupProvider(t)
	addContact(t, ctx, p, "Robert Smith")
	addContact(t, ctx, p, "Bob Smith")
	require.NoError(t, p.WaitIdle(ctx))

	m := NewModel(ctx, p, Options{})
	require.Len(t, m.contacts, 2)
	m = selectContact(t, m, "Robert Smith")

	m, _ = press(t, m, "enter")
	require.Equal(t, ViewDetail, m.viewMode)
	require.NotNil(t, m.detail)
	require.NotEmpty(t, m.suggestions)
	assert.Contains(t, m.View(), "Bob Smith")

	m, _ = press(t, m, "J")
	require.Equal(t, ViewConfirm, m.viewMode)
	assert.Contains(t, m.View(), "JOIN CONFIRMATION")

	m, _ = press(t, m, "y")
	require.NoError(t, m.err)
	require.Equal(t, ViewDetail, m.viewMode)
	assert.Len(t, m.detail.RawContacts, 2)

	m, _ = press(t, m, "s", "y")
	require.NoError(t, m.err)
	assert.Equal(t, ViewList, m.viewMode)
	assert.Len(t, m.contacts, 2)
	assert.Equal(t, "Split into 2 contacts", m.status)
}

func TestSplitNeedsTwoMembers(t *testing.T) {
	ctx, p := setupProvider(t)
	addContact(t, ctx, p, "Ada Lovelace")

	m := NewModel(ctx, p, Options{})
	m, _ = press(t, m, "enter", "s")
	assert.Equal(t, ViewDetail, m.viewMode)
	assert.Equal(t, "Contact has a single raw contact", m.status)
}

func TestDeleteAfterConfirmation(t *testing.T) {
	ctx, p := setupProvider(t)
	addContact(t, ctx, p, "Ada Lovelace")

	m := NewModel(ctx, p, Options{})
	m, _ = press(t, m, "enter", "d", "n")
	assert.Equal(t, ViewDetail, m.viewMode)

	m, _ = press(t, m, "d", "y")
	require.NoError(t, m.err)
	assert.Equal(t, ViewList, m.viewMode)
	assert.Empty(t, m.contacts)
}

func TestGraphViewShowsDOT(t *testing.T) {
	ctx, p := setupProvider(t)
	addContact(t, ctx, p, "Ada Lovelace")

	m := NewModel(ctx, p, Options{})
	m, _ = press(t, m, "enter", "g")
	require.NoError(t, m.err)
	assert.Equal(t, ViewGraph, m.viewMode)
	assert.Contains(t, m.graphDOT, "contact_")

	m, _ = press(t, m, "esc")
	assert.Equal(t, ViewDetail, m.viewMode)
	assert.Empty(t, m.graphDOT)
}

func TestNewContactForm(t *testing.T) {
	ctx, p := setupProvider(t)
	m := NewModel(ctx, p, Options{})

	m, _ = press(t, m, "n", "enter")
	assert.Equal(t, ViewEdit, m.viewMode)
	require.Error(t, m.err)

	m, _ = press(t, m, "Grace Hopper", "tab", "grace@example.com", "enter")
	require.NoError(t, m.err)
	assert.Equal(t, ViewList, m.viewMode)
	require.Len(t, m.contacts, 1)
	assert.Equal(t, "Grace Hopper", m.contacts[0].DisplayName)

	c, err := p.GetContact(ctx, provider.CallOptions{}, m.contacts[0].ID)
	require.NoError(t, err)
	require.Len(t, c.RawContacts, 1)
	assert.True(t, c.RawContacts[0].Account.IsLocal())
	var kinds []string
	for i := range c.RawContacts[0].Data {
		kind, _ := c.RawContacts[0].Data[i].Kind()
		kinds = append(kinds, kind)
	}
	assert.ElementsMatch(t, []string{"name", "email"}, kinds)
}

func TestSyncViewRunsSync(t *testing.T) {
	ctx, p := setupProvider(t)
	const account = "me@gmail.com"
	acct := models.Account{Name: account, Type: sync.AccountType}

	var calls int
	fake := func(ctx context.Context, name string) (sync.Result, error) {
		calls++
		now := time.Now()
		run := db.SyncRun{StartedAt: now, FinishedAt: now, Status: db.SyncStatusOK, Full: true, Fetched: 3, Inserted: 3}
		if err := p.RecordSyncRun(ctx, provider.CallOptions{}, acct, run); err != nil {
			return sync.Result{}, err
		}
		return sync.Result{Fetched: 3, Inserted: 3, Full: true}, nil
	}

	m := NewModel(ctx, p, Options{AccountName: account, Sync: fake})
	m, _ = press(t, m, "tab")
	require.Equal(t, ViewSync, m.viewMode)
	assert.Contains(t, m.View(), "Not synced yet")

	m, cmd := press(t, m, "s")
	require.NotNil(t, cmd)
	assert.True(t, m.syncing)
	_, again := press(t, m, "s")
	assert.Nil(t, again)

	next, _ := m.Update(cmd())
	m = next.(Model)
	assert.Equal(t, 1, calls)
	assert.False(t, m.syncing)
	require.Len(t, m.syncRuns, 1)
	require.Len(t, m.syncMessages, 2)
	assert.Contains(t, m.syncMessages[1], "3 fetched, 3 inserted")
	assert.Contains(t, m.View(), "full sync")

	m, _ = press(t, m, "esc")
	assert.Equal(t, ViewList, m.viewMode)
}

func TestSyncViewWithoutAccount(t *testing.T) {
	ctx, p := setupProvider(t)
	m := NewModel(ctx, p, Options{Sync: func(context.Context, string) (sync.Result, error) {
		t.Fatal("sync must not run without an account")
		return sync.Result{}, nil
	}})

	m, _ = press(t, m, "tab")
	assert.Contains(t, m.View(), "No Google account configured")
	_, cmd := press(t, m, "enter")
	assert.Nil(t, cmd)
}

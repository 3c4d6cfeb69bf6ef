// ABOUTME: Tests for the roster CLI commands
// ABOUTME: Runs commands against a provider on temp databases and checks their output
package cli

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/roster/config"
	"github.com/harperreed/roster/db"
	"github.com/harperreed/roster/models"
	"github.com/harperreed/roster/provider"
)

var (
	workAccount = models.Account{Name: "ada@work.example", Type: "com.example"}
	homeAccount = models.Account{Name: "ada@home.example", Type: "org.example"}
)

func newEnv(t *testing.T) (*Env, *bytes.Buffer, context.Context) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)

	dir := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = dir
	p, err := provider.Open(ctx, cfg.ProviderOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	require.NoError(t, p.WaitIdle(ctx))

	out := &bytes.Buffer{}
	return &Env{Provider: p, Config: cfg, Out: out, Version: "test"}, out, ctx
}

func insert(t *testing.T, ctx context.Context, env *Env, acct models.Account, name string) int64 {
	t.Helper()
	id, err := env.Provider.InsertRawContact(ctx, provider.CallOptions{}, provider.NewRawContact{
		Account: acct,
		Data:    []models.DataRow{newRow(models.MimeStructuredName, models.NameDisplayName, name)},
	})
	require.NoError(t, err)
	return id
}

func contactOf(t *testing.T, ctx context.Context, env *Env, rawID int64) int64 {
	t.Helper()
	r, err := env.Provider.RawContact(ctx, provider.CallOptions{}, rawID)
	require.NoError(t, err)
	return r.ContactID
}

func id(n int64) string { return strconv.FormatInt(n, 10) }

func TestParseAccount(t *testing.T) {
	tests := []struct {
		in      string
		want    models.Account
		wantErr bool
	}{
		{in: "", want: models.Account{}},
		{in: "com.google:me@gmail.com", want: models.Account{Type: "com.google", Name: "me@gmail.com"}},
		{in: "com.google/plus:me@gmail.com", want: models.Account{Type: "com.google", DataSet: "plus", Name: "me@gmail.com"}},
		{in: "me@gmail.com", wantErr: true},
		{in: ":me", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseAccount(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, models.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			if !got.IsLocal() {
				back, err := parseAccount(accountLabel(got))
				require.NoError(t, err)
				assert.Equal(t, got, back)
			}
		})
	}
}

func TestAddListAndShowContact(t *testing.T) {
	env, out, ctx := newEnv(t)

	err := AddContactCommand(ctx, env, []string{
		"--name", "Ada Lovelace",
		"--email", "ada@example.com",
		"--phone", "+44 20 7946 0000",
		"--account", "com.example:ada@work.example",
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Ada Lovelace")

	out.Reset()
	require.NoError(t, ListContactsCommand(ctx, env, nil))
	assert.Contains(t, out.String(), "Ada Lovelace")
	assert.Contains(t, out.String(), "1 contact(s)")

	list, err := env.Provider.ListContacts(ctx, provider.CallOptions{}, 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)

	out.Reset()
	require.NoError(t, ShowContactCommand(ctx, env, []string{id(list[0].ID)}))
	assert.Contains(t, out.String(), "ada@example.com")
	assert.Contains(t, out.String(), "com.example:ada@work.example")

	out.Reset()
	require.NoError(t, ShowContactCommand(ctx, env, []string{"--lookup", list[0].LookupKey}))
	assert.Contains(t, out.String(), "Ada Lovelace")
}

func TestAddContactRequiresName(t *testing.T) {
	env, _, ctx := newEnv(t)
	assert.Error(t, AddContactCommand(ctx, env, []string{"--email", "x@example.com"}))
	assert.ErrorIs(t, AddContactCommand(ctx, env, []string{"--name", "X", "--account", "bogus"}), models.ErrValidation)
}

func TestAddDataAndDelete(t *testing.T) {
	env, out, ctx := newEnv(t)
	raw := insert(t, ctx, env, workAccount, "Ada Lovelace")

	require.NoError(t, AddDataCommand(ctx, env, []string{id(raw), "email", "ada@example.com"}))
	assert.Contains(t, out.String(), "Added email")
	assert.ErrorIs(t, AddDataCommand(ctx, env, []string{id(raw), "photo", "x"}), models.ErrValidation)

	r, err := env.Provider.RawContact(ctx, provider.CallOptions{}, raw)
	require.NoError(t, err)
	assert.Len(t, r.Data, 2)

	require.NoError(t, DeleteRawContactCommand(ctx, env, []string{id(raw)}))
	assert.ErrorIs(t, DeleteRawContactCommand(ctx, env, []string{"9999"}), models.ErrNotFound)
}

func TestUpdateRawContactMode(t *testing.T) {
	env, out, ctx := newEnv(t)
	raw := insert(t, ctx, env, workAccount, "Ada Lovelace")

	require.NoError(t, UpdateRawContactCommand(ctx, env, []string{id(raw), "--mode", "disabled", "--starred", "true"}))
	assert.Contains(t, out.String(), "Updated raw contact")

	r, err := env.Provider.RawContact(ctx, provider.CallOptions{}, raw)
	require.NoError(t, err)
	assert.Equal(t, models.AggregationModeDisabled, r.AggregationMode)
	assert.True(t, r.Starred)

	assert.ErrorIs(t, UpdateRawContactCommand(ctx, env, []string{id(raw), "--mode", "sometimes"}), models.ErrValidation)
	assert.Error(t, UpdateRawContactCommand(ctx, env, []string{id(raw)}))
}

func TestJoinSplitAndExceptions(t *testing.T) {
	env, out, ctx := newEnv(t)
	a := insert(t, ctx, env, workAccount, "Ada Lovelace")
	b := insert(t, ctx, env, homeAccount, "Augusta King")
	require.NotEqual(t, contactOf(t, ctx, env, a), contactOf(t, ctx, env, b))

	require.NoError(t, JoinCommand(ctx, env, []string{id(contactOf(t, ctx, env, a)), id(contactOf(t, ctx, env, b))}))
	assert.Contains(t, out.String(), "joined")
	assert.Equal(t, contactOf(t, ctx, env, a), contactOf(t, ctx, env, b))

	out.Reset()
	require.NoError(t, SplitCommand(ctx, env, []string{id(contactOf(t, ctx, env, a))}))
	assert.Contains(t, out.String(), "split into")
	assert.NotEqual(t, contactOf(t, ctx, env, a), contactOf(t, ctx, env, b))

	out.Reset()
	require.NoError(t, ExceptionsCommand(ctx, env, []string{"--type", "keep_separate"}))
	assert.Contains(t, out.String(), "1 exception(s)")

	out.Reset()
	require.NoError(t, ExceptCommand(ctx, env, []string{"keep_together", id(a), id(b)}))
	assert.Contains(t, out.String(), "now together")

	assert.ErrorIs(t, ExceptCommand(ctx, env, []string{"sometimes", id(a), id(b)}), models.ErrValidation)
	assert.ErrorIs(t, JoinCommand(ctx, env, []string{"x", "1"}), models.ErrValidation)
}

func TestRemoveAccountRequiresConfirmation(t *testing.T) {
	env, out, ctx := newEnv(t)
	insert(t, ctx, env, workAccount, "Ada Lovelace")
	insert(t, ctx, env, homeAccount, "Ada Lovelace")

	assert.Error(t, RemoveAccountCommand(ctx, env, []string{accountLabel(workAccount)}))
	assert.Error(t, RemoveAccountCommand(ctx, env, []string{"", "--yes"}))

	require.NoError(t, RemoveAccountCommand(ctx, env, []string{accountLabel(workAccount), "--yes"}))
	assert.Contains(t, out.String(), "1 raw contact(s)")

	out.Reset()
	require.NoError(t, AccountsCommand(ctx, env, nil))
	assert.Contains(t, out.String(), accountLabel(homeAccount))
}

func TestExportImportRoundTrip(t *testing.T) {
	env, _, ctx := newEnv(t)
	a := insert(t, ctx, env, workAccount, "Ada Lovelace")
	b := insert(t, ctx, env, homeAccount, "Ada Lovelace")
	require.Equal(t, contactOf(t, ctx, env, a), contactOf(t, ctx, env, b))
	require.NoError(t, env.Provider.SetAggregationException(ctx, provider.CallOptions{}, models.ExceptionKeepSeparate, a, b))

	path := filepath.Join(t.TempDir(), "export.json")
	require.NoError(t, ExportCommand(ctx, env, []string{"--output", path}))

	target, out, ctx2 := newEnv(t)
	require.NoError(t, ImportCommand(ctx2, target, []string{path}))
	assert.Contains(t, out.String(), "Imported 2 raw contact(s) and 1 exception(s)")

	contacts, err := target.Provider.ListContacts(ctx2, provider.CallOptions{}, 0, 0)
	require.NoError(t, err)
	assert.Len(t, contacts, 2)
	exceptions, err := target.Provider.ListAggregationExceptions(ctx2, provider.CallOptions{})
	require.NoError(t, err)
	require.Len(t, exceptions, 1)
	assert.Equal(t, models.ExceptionKeepSeparate, exceptions[0].Type)
}

func TestImportOps(t *testing.T) {
	photo := models.DataRow{ID: 7, MimeType: models.MimePhoto}
	photo.Set(models.PhotoFileID, "stale")
	group := models.DataRow{ID: 8, MimeType: models.MimeGroupMembership}
	group.Set(models.GroupRowID, "3")
	name := newRow(models.MimeStructuredName, models.NameDisplayName, "Ada")
	name.ID, name.RawContactID = 9, 1

	doc := &ExportFile{
		Contacts: []provider.ContactView{{
			ID: 1,
			RawContacts: []provider.RawContactView{
				{ID: 1, Account: workAccount, SourceID: "s1", Data: []models.DataRow{name, photo, group}},
				{ID: 2, Account: homeAccount, Deleted: true},
				{ID: 3, Account: homeAccount},
			},
		}},
		Exceptions: []models.AggregationException{
			{Type: models.ExceptionKeepSeparate, RawContactID1: 1, RawContactID2: 3},
			{Type: models.ExceptionKeepTogether, RawContactID1: 1, RawContactID2: 2},
		},
	}

	ops := importOps(doc)
	require.Len(t, ops, 3)
	assert.Equal(t, provider.OpInsertRawContact, ops[0].Kind)
	wantName := newRow(models.MimeStructuredName, models.NameDisplayName, "Ada")
	if diff := cmp.Diff([]models.DataRow{wantName}, ops[0].RawContact.Data); diff != "" {
		t.Errorf("imported data mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "s1", ops[0].RawContact.SourceID)
	assert.Equal(t, provider.OpSetException, ops[2].Kind)
	assert.Equal(t, 0, *ops[2].Exception.Ref1)
	assert.Equal(t, 1, *ops[2].Exception.Ref2)
}

func TestVizCommands(t *testing.T) {
	env, out, ctx := newEnv(t)
	insert(t, ctx, env, workAccount, "Ada Lovelace")
	insert(t, ctx, env, homeAccount, "Ada Lovelace")

	path := filepath.Join(t.TempDir(), "graph.dot")
	require.NoError(t, VizGraphCommand(ctx, env, []string{"--output", path}))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Ada Lovelace")

	out.Reset()
	require.NoError(t, VizCommand(ctx, env, nil))
	assert.Contains(t, out.String(), "ROSTER DASHBOARD")

	out.Reset()
	require.NoError(t, StatusCommand(ctx, env, nil))
	assert.Contains(t, out.String(), "1 contact(s), 2 raw contact(s)")
}

func TestConfigInit(t *testing.T) {
	env := &Env{Config: config.Default(), Out: &bytes.Buffer{}}
	path := filepath.Join(t.TempDir(), "roster", "config.json")

	require.NoError(t, ConfigInitCommand(context.Background(), env, []string{"--path", path}))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	got, err := config.Parse(data)
	require.NoError(t, err)
	assert.Equal(t, env.Config, got)

	assert.Error(t, ConfigInitCommand(context.Background(), env, []string{"--path", path}))
	assert.NoError(t, ConfigInitCommand(context.Background(), env, []string{"--path", path, "--force"}))
}

func TestCommandTable(t *testing.T) {
	assert.True(t, NeedsDatabase("contacts"))
	assert.False(t, NeedsDatabase("config"))
	assert.False(t, Known("bogus"))
	assert.Contains(t, Usage(), "remove-account")

	err := Run(context.Background(), &Env{Out: &bytes.Buffer{}}, "status", nil)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, models.ErrValidation))
}

func TestSyncStatus(t *testing.T) {
	env, out, ctx := newEnv(t)
	assert.Error(t, SyncStatusCommand(ctx, env, nil))

	require.NoError(t, SyncStatusCommand(ctx, env, []string{"--account", "me@gmail.com"}))
	assert.Contains(t, out.String(), "never been synced")

	acct := models.Account{Name: "me@gmail.com", Type: "com.google"}
	now := time.Now()
	require.NoError(t, env.Provider.RecordSyncRun(ctx, provider.CallOptions{}, acct, db.SyncRun{
		StartedAt: now, FinishedAt: now, Status: db.SyncStatusOK, Full: true, Fetched: 4, Inserted: 4,
	}))
	out.Reset()
	require.NoError(t, SyncStatusCommand(ctx, env, []string{"--account", "me@gmail.com"}))
	assert.Contains(t, out.String(), "full")
	assert.Contains(t, out.String(), "ok")
}

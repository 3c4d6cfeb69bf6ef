package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestSession(t *testing.T, kind Kind) *Session {
	t.Helper()
	s, err := OpenDatabase(filepath.Join(t.TempDir(), "test.db"), kind)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestOpenDatabase(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "nested", "contacts.db")

	s, err := OpenDatabase(dbPath, KindContacts)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(dbPath)
	require.NoError(t, err)

	var mode string
	require.NoError(t, s.DB().QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)

	var fk int
	require.NoError(t, s.DB().QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)

	var dirs int
	require.NoError(t, s.DB().QueryRow("SELECT COUNT(*) FROM directories").Scan(&dirs))
	assert.Equal(t, 2, dirs)
}

func TestOpenDatabaseInvalidPath(t *testing.T) {
	_, err := OpenDatabase("/proc/roster-cannot-exist/test.db", KindContacts)
	assert.Error(t, err)
}

func TestInitSchemaIsIdempotent(t *testing.T) {
	s := setupTestSession(t, KindContacts)
	ctx := context.Background()

	id, err := GetProperty(ctx, s.DB(), PropDatabaseID, "")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	require.NoError(t, InitSchema(s.DB(), KindContacts))

	again, err := GetProperty(ctx, s.DB(), PropDatabaseID, "")
	require.NoError(t, err)
	assert.Equal(t, id, again)

	v, err := GetIntProperty(ctx, s.DB(), PropSchemaVersion, 0)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, v)
}

func TestProfileIDSpace(t *testing.T) {
	s := setupTestSession(t, KindProfile)
	now := time.Now()

	res, err := s.DB().Exec(`INSERT INTO accounts (account_name, account_type) VALUES ('', '')`)
	require.NoError(t, err)
	accountID, err := res.LastInsertId()
	require.NoError(t, err)

	res, err = s.DB().Exec(`INSERT INTO raw_contacts (account_id, created_at, updated_at) VALUES (?, ?, ?)`, accountID, now, now)
	require.NoError(t, err)
	id, err := res.LastInsertId()
	require.NoError(t, err)
	assert.Greater(t, id, ProfileIDSpaceStart)
}

func TestProperties(t *testing.T) {
	s := setupTestSession(t, KindContacts)
	ctx := context.Background()

	v, err := GetProperty(ctx, s.DB(), "missing", "fallback")
	require.NoError(t, err)
	assert.Equal(t, "fallback", v)

	require.NoError(t, SetIntProperty(ctx, s.DB(), PropAggregationAlgorithm, 3))
	require.NoError(t, SetIntProperty(ctx, s.DB(), PropAggregationAlgorithm, 4))
	n, err := GetIntProperty(ctx, s.DB(), PropAggregationAlgorithm, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestSavepointRollsBackOnlyInnerWork(t *testing.T) {
	s := setupTestSession(t, KindContacts)
	ctx := context.Background()

	err := s.InTx(ctx, func(tx *Tx) error {
		require.NoError(t, SetProperty(ctx, tx, "outer", "1"))
		spErr := tx.Savepoint(ctx, func() error {
			require.NoError(t, SetProperty(ctx, tx, "inner", "1"))
			return assert.AnError
		})
		assert.ErrorIs(t, spErr, assert.AnError)
		return nil
	})
	require.NoError(t, err)

	outer, err := GetProperty(ctx, s.DB(), "outer", "")
	require.NoError(t, err)
	assert.Equal(t, "1", outer)

	inner, err := GetProperty(ctx, s.DB(), "inner", "")
	require.NoError(t, err)
	assert.Equal(t, "", inner)
}

func TestBeginWriteHonoursContext(t *testing.T) {
	s := setupTestSession(t, KindContacts)

	tx, err := s.BeginWrite(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = s.BeginWrite(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, tx.Rollback())
	require.NoError(t, tx.Rollback())

	tx2, err := s.BeginWrite(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx2.Commit())
	assert.ErrorIs(t, tx2.Commit(), ErrTxDone)
}

func TestReleaseHooksRunUnderWriterLock(t *testing.T) {
	s := setupTestSession(t, KindContacts)

	var seen []bool
	hook := func(committed bool) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		_, err := s.BeginWrite(ctx)
		assert.ErrorIs(t, err, context.DeadlineExceeded, "writer lock must still be held")
		seen = append(seen, committed)
	}

	tx, err := s.BeginWrite(context.Background())
	require.NoError(t, err)
	tx.OnRelease(hook)
	require.NoError(t, tx.Commit())

	tx, err = s.BeginWrite(context.Background())
	require.NoError(t, err)
	tx.OnRelease(hook)
	require.NoError(t, tx.Rollback())
	require.NoError(t, tx.Rollback())

	assert.Equal(t, []bool{true, false}, seen)

	tx, err = s.BeginWrite(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
}

func TestInBothTxRollsBackBoth(t *testing.T) {
	dir := t.TempDir()
	pair, err := OpenPair(context.Background(), filepath.Join(dir, "contacts.db"), filepath.Join(dir, "profile.db"))
	require.NoError(t, err)
	defer pair.Close()
	ctx := context.Background()

	err = pair.InBothTx(ctx, func(c, p *Tx) error {
		require.NoError(t, SetProperty(ctx, c, "k", "contacts"))
		require.NoError(t, SetProperty(ctx, p, "k", "profile"))
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	for _, s := range []*Session{pair.Contacts, pair.Profile} {
		v, err := GetProperty(ctx, s.DB(), "k", "")
		require.NoError(t, err)
		assert.Empty(t, v)
	}

	require.NoError(t, pair.InBothTx(ctx, func(c, p *Tx) error {
		if err := SetProperty(ctx, c, "k", "contacts"); err != nil {
			return err
		}
		return SetProperty(ctx, p, "k", "profile")
	}))
	v, err := GetProperty(ctx, pair.Profile.DB(), "k", "")
	require.NoError(t, err)
	assert.Equal(t, "profile", v)
	assert.True(t, pair.For(true).IsProfile())
	assert.False(t, pair.For(false).IsProfile())
}

func TestSyncRunsNewestFirst(t *testing.T) {
	s := setupTestSession(t, KindContacts)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := &SyncRun{AccountID: 7, StartedAt: start, FinishedAt: start.Add(time.Second), Status: SyncStatusOK, Full: true, Fetched: 3, Inserted: 3}
	require.NoError(t, InsertSyncRun(ctx, s.DB(), first))
	require.NotEmpty(t, first.ID)
	second := &SyncRun{AccountID: 7, StartedAt: start.Add(time.Hour), FinishedAt: start.Add(time.Hour), Status: SyncStatusError, Error: "boom"}
	require.NoError(t, InsertSyncRun(ctx, s.DB(), second))
	require.NoError(t, InsertSyncRun(ctx, s.DB(), &SyncRun{AccountID: 8, StartedAt: start, FinishedAt: start, Status: SyncStatusOK}))

	runs, err := ListSyncRuns(ctx, s.DB(), 7, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)
	assert.Equal(t, "boom", runs[0].Error)
	assert.True(t, runs[1].Full)
	assert.Equal(t, 3, runs[1].Inserted)
	assert.True(t, runs[1].StartedAt.Equal(start))

	latest, err := ListSyncRuns(ctx, s.DB(), 7, 1)
	require.NoError(t, err)
	require.Len(t, latest, 1)
	assert.Equal(t, SyncStatusError, latest[0].Status)
}

package aggregation

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/roster/db"
	"github.com/harperreed/roster/lookupkey"
	"github.com/harperreed/roster/models"
	"github.com/harperreed/roster/namenorm"
	"github.com/harperreed/roster/txn"
)

type fixture struct {
	t     *testing.T
	ctx   context.Context
	s     *db.Session
	agg   *Aggregator
	tc    *txn.Context
	clock time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	s, err := db.OpenDatabase(filepath.Join(t.TempDir(), "contacts.db"), db.KindContacts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	f := &fixture{t: t, ctx: context.Background(), s: s, tc: txn.New(false), clock: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	f.agg = New(Options{Now: func() time.Time { return f.clock }})
	return f
}

func (f *fixture) exec(query string, args ...any) sql.Result {
	f.t.Helper()
	res, err := f.s.DB().Exec(query, args...)
	require.NoError(f.t, err)
	return res
}

func (f *fixture) account(name, typ string) int64 {
	f.t.Helper()
	f.exec(`INSERT OR IGNORE INTO accounts (account_name, account_type) VALUES (?, ?)`, name, typ)
	var id int64
	require.NoError(f.t, f.s.DB().QueryRow(`SELECT _id FROM accounts WHERE account_name = ? AND account_type = ?`, name, typ).Scan(&id))
	return id
}

// rawContact inserts a raw contact named displayName with a structured name
// row and its exact/variant lookups. Each call is one second "later".
func (f *fixture) rawContact(accountID int64, sourceID, displayName string) int64 {
	f.t.Helper()
	f.clock = f.clock.Add(time.Second)
	var src any
	if sourceID != "" {
		src = sourceID
	}
	res := f.exec(`
		INSERT INTO raw_contacts (account_id, sourceid, display_name, display_name_source, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, accountID, src, displayName, models.DisplayNameSourceStructuredName, f.clock, f.clock)
	id, err := res.LastInsertId()
	require.NoError(f.t, err)

	if displayName != "" {
		f.addName(id, displayName)
	}
	f.agg.MarkNewForAggregation(id, models.AggregationModeDefault)
	return id
}

func (f *fixture) addName(rawID int64, displayName string) int64 {
	f.t.Helper()
	res := f.exec(`INSERT INTO data (raw_contact_id, mimetype, data1) VALUES (?, ?, ?)`, rawID, models.MimeStructuredName, displayName)
	dataID, err := res.LastInsertId()
	require.NoError(f.t, err)

	parts := strings.Fields(displayName)
	given, family := parts[0], ""
	if len(parts) > 1 {
		family = parts[len(parts)-1]
	}
	for i, v := range namenorm.Variants(given, "", family) {
		typ := models.NameLookupVariant
		if i == 0 {
			typ = models.NameLookupExact
		}
		f.exec(`INSERT OR IGNORE INTO name_lookup (data_id, raw_contact_id, normalized_name, name_type) VALUES (?, ?, ?, ?)`, dataID, rawID, v, typ)
	}
	for _, tok := range namenorm.Tokens(displayName) {
		f.exec(`INSERT OR IGNORE INTO name_lookup (data_id, raw_contact_id, normalized_name, name_type) VALUES (?, ?, ?, ?)`, dataID, rawID, tok, models.NameLookupCollationKey)
	}
	return dataID
}

func (f *fixture) addEmail(rawID int64, address string) {
	f.t.Helper()
	f.exec(`INSERT INTO data (raw_contact_id, mimetype, data1) VALUES (?, ?, ?)`, rawID, models.MimeEmail, address)
}

func (f *fixture) addPhone(rawID int64, number string) {
	f.t.Helper()
	res := f.exec(`INSERT INTO data (raw_contact_id, mimetype, data1) VALUES (?, ?, ?)`, rawID, models.MimePhone, number)
	dataID, err := res.LastInsertId()
	require.NoError(f.t, err)
	f.exec(`INSERT INTO phone_lookup (data_id, raw_contact_id, normalized_number, min_match) VALUES (?, ?, ?, ?)`,
		dataID, rawID, namenorm.NormalizePhone(number, "US"), namenorm.MinMatch(number))
}

func (f *fixture) exception(typ models.ExceptionType, a, b int64) {
	f.t.Helper()
	e := models.AggregationException{Type: typ, RawContactID1: a, RawContactID2: b}.Canonical()
	f.exec(`
		INSERT INTO agg_exceptions (type, raw_contact_id1, raw_contact_id2) VALUES (?, ?, ?)
		ON CONFLICT(raw_contact_id1, raw_contact_id2) DO UPDATE SET type = excluded.type
	`, e.Type, e.RawContactID1, e.RawContactID2)
	f.agg.InvalidateAggregationExceptionCache()
}

// aggregate runs fn and one pass in a single write transaction.
func (f *fixture) aggregate(fn func(tx *db.Tx)) Stats {
	f.t.Helper()
	var stats Stats
	err := f.s.InTx(f.ctx, func(tx *db.Tx) error {
		if fn != nil {
			fn(tx)
		}
		var err error
		stats, err = f.agg.AggregateInTransaction(f.ctx, f.tc, tx)
		return err
	})
	require.NoError(f.t, err)
	return stats
}

func (f *fixture) mark(ids ...int64) func(tx *db.Tx) {
	return func(tx *db.Tx) {
		for _, id := range ids {
			require.NoError(f.t, f.agg.MarkForAggregation(f.ctx, tx, id, models.AggregationModeDefault, true))
		}
	}
}

func (f *fixture) contactOf(rawID int64) int64 {
	f.t.Helper()
	id, err := contactIDOf(f.ctx, f.s.DB(), rawID)
	require.NoError(f.t, err)
	return id
}

func (f *fixture) lookupKey(contactID int64) string {
	f.t.Helper()
	var key string
	require.NoError(f.t, f.s.DB().QueryRow(`SELECT lookup FROM contacts WHERE _id = ?`, contactID).Scan(&key))
	return key
}

func (f *fixture) resolve(key string) int64 {
	f.t.Helper()
	id, err := f.agg.LookupContactIDByLookupKey(f.ctx, f.s.DB(), key)
	require.NoError(f.t, err)
	return id
}

func (f *fixture) contactCount() int {
	f.t.Helper()
	var n int
	require.NoError(f.t, f.s.DB().QueryRow(`SELECT COUNT(*) FROM contacts`).Scan(&n))
	return n
}

func TestSingleRawContactGetsOwnContact(t *testing.T) {
	f := newFixture(t)
	x := f.account("x@example.com", "com.example")

	a := f.rawContact(x, "", "John Smith")
	stats := f.aggregate(nil)

	assert.Equal(t, 1, stats.Created)
	c := f.contactOf(a)
	require.NotZero(t, c)

	key := f.lookupKey(c)
	segs, err := lookupkey.Parse(key)
	require.NoError(t, err)
	assert.Len(t, segs, 1)
	assert.Equal(t, c, f.resolve(key))

	var needed int
	require.NoError(t, f.s.DB().QueryRow(`SELECT aggregation_needed FROM raw_contacts WHERE _id = ?`, a).Scan(&needed))
	assert.Zero(t, needed)
}

func TestSameNameDifferentAccountsJoin(t *testing.T) {
	f := newFixture(t)
	x := f.account("x@example.com", "com.example")
	y := f.account("y@example.com", "org.other")

	a := f.rawContact(x, "", "John Smith")
	f.aggregate(nil)
	b := f.rawContact(y, "", "John Smith")
	f.aggregate(nil)

	c := f.contactOf(a)
	assert.Equal(t, c, f.contactOf(b))
	assert.Equal(t, 1, f.contactCount())

	segs, err := lookupkey.Parse(f.lookupKey(c))
	require.NoError(t, err)
	assert.Len(t, segs, 2)
}

func TestSameAccountDoesNotJoin(t *testing.T) {
	f := newFixture(t)
	x := f.account("x@example.com", "com.example")

	a := f.rawContact(x, "s1", "John Smith")
	b := f.rawContact(x, "s2", "John Smith")
	f.aggregate(nil)

	assert.NotEqual(t, f.contactOf(a), f.contactOf(b))
}

func TestKeepSeparateSplitsAndLowerIDKeepsContact(t *testing.T) {
	f := newFixture(t)
	a := f.rawContact(f.account("x", "com.x"), "", "John Smith")
	b := f.rawContact(f.account("y", "com.y"), "", "John Smith")
	f.aggregate(nil)
	original := f.contactOf(a)
	require.Equal(t, original, f.contactOf(b))

	f.exception(models.ExceptionKeepSeparate, b, a)
	stats := f.aggregate(f.mark(a, b))

	assert.Equal(t, original, f.contactOf(a))
	assert.NotEqual(t, original, f.contactOf(b))
	assert.NotZero(t, f.contactOf(b))
	assert.Equal(t, 1, stats.Evicted)

	for _, raw := range []int64{a, b} {
		segs, err := lookupkey.Parse(f.lookupKey(f.contactOf(raw)))
		require.NoError(t, err)
		assert.Len(t, segs, 1)
	}

	// Still apart after a later unforced pass.
	f.aggregate(func(tx *db.Tx) {
		require.NoError(t, f.agg.MarkForAggregation(f.ctx, tx, b, models.AggregationModeDefault, false))
	})
	assert.NotEqual(t, f.contactOf(a), f.contactOf(b))
}

func TestKeepTogetherOverridesHeuristics(t *testing.T) {
	f := newFixture(t)
	a := f.rawContact(f.account("x", "com.x"), "", "Alice Jones")
	b := f.rawContact(f.account("x", "com.x"), "", "Bob Brown")
	f.aggregate(nil)
	require.NotEqual(t, f.contactOf(a), f.contactOf(b))

	f.exception(models.ExceptionKeepTogether, a, b)
	f.aggregate(f.mark(a, b))

	assert.Equal(t, f.contactOf(a), f.contactOf(b))
	assert.Equal(t, 1, f.contactCount())
}

func TestAutomaticRemovalLetsHeuristicsDecide(t *testing.T) {
	f := newFixture(t)
	a := f.rawContact(f.account("x", "com.x"), "", "Alice Jones")
	b := f.rawContact(f.account("y", "com.y"), "", "Bob Brown")
	f.exception(models.ExceptionKeepTogether, a, b)
	f.aggregate(nil)
	require.Equal(t, f.contactOf(a), f.contactOf(b))

	f.exec(`DELETE FROM agg_exceptions`)
	f.agg.InvalidateAggregationExceptionCache()
	f.aggregate(f.mark(a, b))

	assert.NotEqual(t, f.contactOf(a), f.contactOf(b))
}

func TestDisabledAndSuspendedModes(t *testing.T) {
	f := newFixture(t)
	a := f.rawContact(f.account("x", "com.x"), "", "John Smith")
	f.aggregate(nil)

	b := f.rawContact(f.account("y", "com.y"), "", "John Smith")
	f.exec(`UPDATE raw_contacts SET aggregation_mode = ? WHERE _id = ?`, models.AggregationModeDisabled, b)
	f.aggregate(nil)
	assert.NotEqual(t, f.contactOf(a), f.contactOf(b), "disabled raw contacts stay alone")

	c := f.rawContact(f.account("z", "com.z"), "", "Jane Doe")
	f.exec(`UPDATE raw_contacts SET aggregation_mode = ? WHERE _id = ?`, models.AggregationModeSuspended, c)
	f.aggregate(nil)
	home := f.contactOf(c)
	require.NotZero(t, home)

	// A suspended raw contact keeps its contact when its data changes.
	f.addName(c, "John Smith")
	f.aggregate(func(tx *db.Tx) {
		require.NoError(t, f.agg.MarkForAggregation(f.ctx, tx, c, models.AggregationModeSuspended, false))
	})
	assert.Equal(t, home, f.contactOf(c))

	// Others can still join it.
	d := f.rawContact(f.account("w", "com.w"), "", "Jane Doe")
	f.aggregate(nil)
	assert.Equal(t, home, f.contactOf(d))
}

func TestStrictModeNeedsTwoStrongSignals(t *testing.T) {
	f := newFixture(t)
	a := f.rawContact(f.account("x", "com.x"), "", "John Smith")
	f.aggregate(nil)

	b := f.rawContact(f.account("y", "com.y"), "", "John Smith")
	f.exec(`UPDATE raw_contacts SET aggregation_mode = ? WHERE _id = ?`, models.AggregationModeStrict, b)
	f.aggregate(nil)
	assert.NotEqual(t, f.contactOf(a), f.contactOf(b))

	f.addEmail(a, "john@example.com")
	f.addEmail(b, "JOHN@example.com")
	f.aggregate(f.mark(b))
	assert.Equal(t, f.contactOf(a), f.contactOf(b))
}

func TestPhoneAndEmailMatchWithoutNames(t *testing.T) {
	f := newFixture(t)
	a := f.rawContact(f.account("x", "com.x"), "", "")
	f.addPhone(a, "+1 (555) 123-4567")
	b := f.rawContact(f.account("y", "com.y"), "", "")
	f.addPhone(b, "555.123.4567")
	f.aggregate(nil)

	assert.Equal(t, f.contactOf(a), f.contactOf(b))
}

func TestIdempotentPass(t *testing.T) {
	f := newFixture(t)
	a := f.rawContact(f.account("x", "com.x"), "", "John Smith")
	f.rawContact(f.account("y", "com.y"), "", "John Smith")
	f.aggregate(nil)
	before := f.lookupKey(f.contactOf(a))

	stats := f.aggregate(nil)
	assert.True(t, stats.Empty())
	assert.Equal(t, before, f.lookupKey(f.contactOf(a)))
}

func TestSoftDeletedRawContactLeavesAndEmptyContactIsDeleted(t *testing.T) {
	f := newFixture(t)
	a := f.rawContact(f.account("x", "com.x"), "sync-1", "John Smith")
	f.aggregate(nil)
	c := f.contactOf(a)

	f.aggregate(func(tx *db.Tx) {
		_, err := tx.Exec(`UPDATE raw_contacts SET deleted = 1, aggregation_mode = ?, contact_id = NULL WHERE _id = ?`, models.AggregationModeDisabled, a)
		require.NoError(t, err)
		f.agg.ContactChanged(c)
	})

	assert.Zero(t, f.contactCount())
	var logged int
	require.NoError(t, f.s.DB().QueryRow(`SELECT COUNT(*) FROM deleted_contacts WHERE contact_id = ?`, c).Scan(&logged))
	assert.Equal(t, 1, logged)
	assert.True(t, f.tc.HasSearchIndexUpdates())
}

func TestNameRemovalSplitsOffTheChangedRawContact(t *testing.T) {
	f := newFixture(t)
	a := f.rawContact(f.account("x", "com.x"), "", "John Smith")
	b := f.rawContact(f.account("y", "com.y"), "", "John Smith")
	f.aggregate(nil)
	shared := f.contactOf(a)
	require.Equal(t, shared, f.contactOf(b))

	f.exec(`DELETE FROM name_lookup WHERE raw_contact_id = ?`, a)
	f.exec(`DELETE FROM data WHERE raw_contact_id = ?`, a)
	f.aggregate(f.mark(a))

	assert.Equal(t, shared, f.contactOf(b))
	assert.NotEqual(t, shared, f.contactOf(a))
	assert.NotZero(t, f.contactOf(a))
}

func TestAggregateDataWinnersAndFlags(t *testing.T) {
	f := newFixture(t)
	a := f.rawContact(f.account("x", "com.x"), "", "John Smith")
	b := f.rawContact(f.account("y", "com.y"), "", "John Smith")
	f.exec(`UPDATE raw_contacts SET display_name = 'Johnny Smith', starred = 1, pinned = 3 WHERE _id = ?`, b)
	f.exec(`UPDATE raw_contacts SET pinned = 5 WHERE _id = ?`, a)
	f.addPhone(b, "555-0100")
	f.aggregate(nil)

	c := f.contactOf(a)
	var (
		nameRaw int64
		name    string
		starred bool
		pinned  int
		phone   bool
	)
	require.NoError(t, f.s.DB().QueryRow(`
		SELECT name_raw_contact_id, display_name, starred, pinned, has_phone_number FROM contacts WHERE _id = ?
	`, c).Scan(&nameRaw, &name, &starred, &pinned, &phone))
	assert.Equal(t, a, nameRaw, "older raw contact wins ties on source")
	assert.Equal(t, "John Smith", name)
	assert.True(t, starred)
	assert.Equal(t, 3, pinned)
	assert.True(t, phone)

	f.exec(`UPDATE raw_contacts SET name_verified = 1 WHERE _id = ?`, b)
	f.aggregate(func(tx *db.Tx) { f.tc.MarkAggregateStale(b) })
	require.NoError(t, f.s.DB().QueryRow(`SELECT display_name FROM contacts WHERE _id = ?`, c).Scan(&name))
	assert.Equal(t, "Johnny Smith", name)
}

func TestSuperPrimaryIsUniquePerContact(t *testing.T) {
	f := newFixture(t)
	a := f.rawContact(f.account("x", "com.x"), "", "John Smith")
	b := f.rawContact(f.account("y", "com.y"), "", "John Smith")
	f.exec(`INSERT INTO data (raw_contact_id, mimetype, data1, is_primary, is_super_primary) VALUES (?, ?, 'a@x.com', 1, 1)`, a, models.MimeEmail)
	f.exec(`INSERT INTO data (raw_contact_id, mimetype, data1, is_primary, is_super_primary) VALUES (?, ?, 'b@y.com', 1, 1)`, b, models.MimeEmail)
	f.aggregate(nil)

	var n int
	require.NoError(t, f.s.DB().QueryRow(`SELECT COUNT(*) FROM data WHERE is_super_primary = 1`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestLookupSurvivesSourceIDChange(t *testing.T) {
	f := newFixture(t)
	a := f.rawContact(f.account("", ""), "", "John Smith")
	b := f.rawContact(f.account("g@example.com", "com.google"), "people/123", "John Smith")
	f.aggregate(nil)
	c := f.contactOf(a)
	require.Equal(t, c, f.contactOf(b))
	key := f.lookupKey(c)

	f.exec(`UPDATE raw_contacts SET sourceid = 'people/999' WHERE _id = ?`, b)
	assert.Equal(t, c, f.resolve(key))

	assert.Equal(t, int64(-1), f.resolve("0r999999-nobody"))
}

func TestLookupByDisplayNameAfterRawContactIsReplaced(t *testing.T) {
	f := newFixture(t)
	a := f.rawContact(f.account("", ""), "", "Jane Doe")
	f.aggregate(nil)
	key := f.lookupKey(f.contactOf(a))

	f.exec(`DELETE FROM name_lookup WHERE raw_contact_id = ?`, a)
	f.exec(`DELETE FROM data WHERE raw_contact_id = ?`, a)
	f.exec(`UPDATE raw_contacts SET deleted = 1, contact_id = NULL WHERE _id = ?`, a)
	b := f.rawContact(f.account("", ""), "", "Jane Doe")
	f.aggregate(nil)

	assert.Equal(t, f.contactOf(b), f.resolve(key))
}

func TestLookupPluralityVote(t *testing.T) {
	f := newFixture(t)
	local := f.account("", "")
	a := f.rawContact(local, "", "Ann Lee")
	b := f.rawContact(f.account("y", "com.y"), "", "Ann Lee")
	c := f.rawContact(f.account("z", "com.z"), "", "Ann Lee")
	f.aggregate(nil)
	key := f.lookupKey(f.contactOf(a))

	f.exception(models.ExceptionKeepSeparate, a, b)
	f.exception(models.ExceptionKeepSeparate, a, c)
	f.aggregate(f.mark(a, b, c))
	require.Equal(t, f.contactOf(b), f.contactOf(c))
	require.NotEqual(t, f.contactOf(a), f.contactOf(b))

	assert.Equal(t, f.contactOf(b), f.resolve(key))
}

func TestProfileKeyResolvesToFirstContact(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, int64(-1), f.resolve(lookupkey.Profile))

	a := f.rawContact(f.account("", ""), "", "Me Myself")
	f.aggregate(nil)
	assert.Equal(t, f.contactOf(a), f.resolve(lookupkey.Profile))
}

func TestMalformedLookupKeyIsValidationError(t *testing.T) {
	f := newFixture(t)
	_, err := f.agg.LookupContactIDByLookupKey(f.ctx, f.s.DB(), "not-a-key")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestSuggestions(t *testing.T) {
	f := newFixture(t)
	x := f.account("x", "com.x")
	a := f.rawContact(x, "s1", "John Smith")
	b := f.rawContact(x, "s2", "John Smith")
	c := f.rawContact(x, "s3", "Mary Smith")
	f.rawContact(x, "s4", "Unrelated Person")
	f.aggregate(nil)

	got, err := f.agg.QueryAggregationSuggestions(f.ctx, f.s.DB(), f.contactOf(a), 5, SuggestionFilter{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, f.contactOf(b), got[0].ContactID)
	assert.Contains(t, got[0].Signals, "name")
	assert.Equal(t, f.contactOf(c), got[1].ContactID)
	assert.Equal(t, []string{"partial_name"}, got[1].Signals)
	assert.NotEmpty(t, got[0].LookupKey)

	got, err = f.agg.QueryAggregationSuggestions(f.ctx, f.s.DB(), f.contactOf(a), 1, SuggestionFilter{})
	require.NoError(t, err)
	assert.Len(t, got, 1)

	f.exception(models.ExceptionKeepSeparate, a, b)
	got, err = f.agg.QueryAggregationSuggestions(f.ctx, f.s.DB(), f.contactOf(a), 5, SuggestionFilter{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, f.contactOf(c), got[0].ContactID)

	got, err = f.agg.QueryAggregationSuggestions(f.ctx, f.s.DB(), f.contactOf(a), 5, SuggestionFilter{Names: []string{"Unrelated Person"}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Signals, "name")
}

func TestFullReaggregationResumesFromFlags(t *testing.T) {
	f := newFixture(t)
	a := f.rawContact(f.account("x", "com.x"), "", "John Smith")
	b := f.rawContact(f.account("y", "com.y"), "", "John Smith")
	// Pretend an older algorithm kept them apart.
	f.agg.ClearPendingAggregations()
	f.exec(`UPDATE raw_contacts SET aggregation_needed = 0`)
	f.aggregate(func(tx *db.Tx) {
		for _, id := range []int64{a, b} {
			cid, err := insertContact(f.ctx, tx, id, f.clock)
			require.NoError(t, err)
			require.NoError(t, setContactID(f.ctx, tx, id, cid))
			f.agg.ContactChanged(cid)
		}
	})
	require.NotEqual(t, f.contactOf(a), f.contactOf(b))

	err := f.s.InTx(f.ctx, func(tx *db.Tx) error {
		n, err := f.agg.MarkAllForAggregation(f.ctx, tx)
		assert.Equal(t, int64(2), n)
		return err
	})
	require.NoError(t, err)

	f.aggregate(func(tx *db.Tx) {
		n, err := f.agg.LoadNeeded(f.ctx, tx, 100)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})
	assert.Equal(t, f.contactOf(a), f.contactOf(b))
	assert.Equal(t, 1, f.contactCount())
}

func TestPickBestPrefersLowestContactOnTie(t *testing.T) {
	assert.Equal(t, int64(0), pickBest(nil))
	assert.Equal(t, int64(0), pickBest(map[int64]int{4: 0}))
	assert.Equal(t, int64(7), pickBest(map[int64]int{3: 1, 7: 2}))
	assert.Equal(t, int64(3), pickBest(map[int64]int{9: 2, 3: 2, 5: 2}))
	assert.Equal(t, int64(5), pickBest(map[int64]int{9: 1, 5: 3, 2: 1}))
}

func TestSignalQueryArgumentsMatchPlaceholders(t *testing.T) {
	for _, sq := range signalQueries {
		assert.Equal(t, strings.Count(sq.query, "?"), len(sq.args(1)), sq.signal.String())
	}
	assert.Equal(t, 3, strings.Count(partialNameQuery, "?"))
}

func TestNameSignalsFollowLookupClasses(t *testing.T) {
	f := newFixture(t)
	a := f.rawContact(f.account("x", "com.x"), "", "")
	b := f.rawContact(f.account("y", "com.y"), "", "")
	c := f.rawContact(f.account("z", "com.z"), "", "")
	lookup := func(rawID int64, name string, typ models.NameLookupType) {
		f.exec(`INSERT INTO name_lookup (data_id, raw_contact_id, normalized_name, name_type) VALUES (?, ?, ?, ?)`,
			-rawID*10-int64(typ), rawID, name, typ)
	}
	lookup(a, "quentinalpha", models.NameLookupExact)
	lookup(b, "quentinalpha", models.NameLookupNickname)
	lookup(c, "quentinalpha", models.NameLookupVariant)
	lookup(a, "quentin", models.NameLookupCollationKey)
	lookup(c, "quentin", models.NameLookupCollationKey)

	sigs, err := collectSignals(f.ctx, f.s.DB(), a, true)
	require.NoError(t, err)
	assert.True(t, sigs[b][SignalNickname])
	assert.False(t, sigs[b][SignalName])
	assert.True(t, sigs[c][SignalName])
	assert.True(t, sigs[c][SignalPartialName])
	assert.False(t, sigs[c][SignalNickname])
}

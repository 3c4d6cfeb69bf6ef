package provider

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/roster/aggregation"
	"github.com/harperreed/roster/db"
	"github.com/harperreed/roster/lookupkey"
	"github.com/harperreed/roster/models"
)

var (
	accountX = models.Account{Name: "x@example.com", Type: "com.example"}
	accountY = models.Account{Name: "y@example.com", Type: "org.example"}
)

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func newProvider(t *testing.T, configure ...func(*Options)) *Provider {
	t.Helper()
	ctx := testContext(t)
	dir := t.TempDir()
	opts := Options{
		ContactsPath: filepath.Join(dir, "contacts.db"),
		ProfilePath:  filepath.Join(dir, "profile.db"),
	}
	for _, fn := range configure {
		fn(&opts)
	}
	p, err := Open(ctx, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	require.NoError(t, p.waitWrite(ctx))
	require.NoError(t, p.WaitIdle(ctx))
	return p
}

func nameRow(display string) models.DataRow {
	row := models.DataRow{MimeType: models.MimeStructuredName}
	row.Data[models.NameDisplayName] = display
	return row
}

func insertNamed(t *testing.T, p *Provider, acct models.Account, display string, extra ...models.DataRow) int64 {
	t.Helper()
	id, err := p.InsertRawContact(testContext(t), CallOptions{}, NewRawContact{
		Account: acct,
		Data:    append([]models.DataRow{nameRow(display)}, extra...),
	})
	require.NoError(t, err)
	return id
}

func contactOf(t *testing.T, p *Provider, rawID int64) int64 {
	t.Helper()
	r, err := p.RawContact(testContext(t), CallOptions{}, rawID)
	require.NoError(t, err)
	return r.ContactID
}

func segments(t *testing.T, key string) int {
	t.Helper()
	segs, err := lookupkey.Parse(key)
	require.NoError(t, err)
	return len(segs)
}

// requireConsistent checks that every live raw contact belongs to an
// existing contact and that no contact is empty.
func requireConsistent(t *testing.T, p *Provider) {
	t.Helper()
	q := p.contacts.session.DB()
	var orphans, empty int
	require.NoError(t, q.QueryRow(`
		SELECT COUNT(*) FROM raw_contacts r
		WHERE r.deleted = 0 AND NOT EXISTS (SELECT 1 FROM contacts c WHERE c._id = r.contact_id)
	`).Scan(&orphans))
	require.NoError(t, q.QueryRow(`
		SELECT COUNT(*) FROM contacts c
		WHERE NOT EXISTS (SELECT 1 FROM raw_contacts r WHERE r.contact_id = c._id AND r.deleted = 0)
	`).Scan(&empty))
	assert.Zero(t, orphans, "raw contacts without a contact")
	assert.Zero(t, empty, "contacts without members")
}

func TestInsertCreatesSingletonContact(t *testing.T) {
	p := newProvider(t)
	ctx := testContext(t)

	a := insertNamed(t, p, accountX, "John Smith")
	c, err := p.GetContact(ctx, CallOptions{}, contactOf(t, p, a))
	require.NoError(t, err)

	assert.Equal(t, "John Smith", c.DisplayName)
	assert.Equal(t, models.DisplayNameSourceStructuredName, c.DisplayNameSource)
	require.Len(t, c.RawContacts, 1)
	assert.Equal(t, a, c.RawContacts[0].ID)
	assert.True(t, c.RawContacts[0].Dirty)
	assert.Equal(t, 1, segments(t, c.LookupKey))
	requireConsistent(t, p)
}

func TestMatchingNameFromAnotherAccountJoins(t *testing.T) {
	p := newProvider(t)
	ctx := testContext(t)

	a := insertNamed(t, p, accountX, "John Smith")
	b := insertNamed(t, p, accountY, "John Smith")
	require.Equal(t, contactOf(t, p, a), contactOf(t, p, b))

	c, err := p.GetContact(ctx, CallOptions{}, contactOf(t, p, a))
	require.NoError(t, err)
	assert.Len(t, c.RawContacts, 2)
	assert.Equal(t, 2, segments(t, c.LookupKey))

	found, err := p.LookupContact(ctx, c.LookupKey)
	require.NoError(t, err)
	assert.Equal(t, c.ID, found.ID)
	requireConsistent(t, p)
}

func TestSameAccountDoesNotMerge(t *testing.T) {
	p := newProvider(t)

	a := insertNamed(t, p, accountX, "John Smith")
	b := insertNamed(t, p, accountX, "John Smith")
	assert.NotEqual(t, contactOf(t, p, a), contactOf(t, p, b))
}

func TestKeepSeparateSplitsAndTogetherJoins(t *testing.T) {
	p := newProvider(t)
	ctx := testContext(t)

	a := insertNamed(t, p, accountX, "John Smith")
	b := insertNamed(t, p, accountY, "John Smith")
	merged := contactOf(t, p, a)

	require.NoError(t, p.SetAggregationException(ctx, CallOptions{}, models.ExceptionKeepSeparate, b, a))
	assert.Equal(t, merged, contactOf(t, p, a))
	assert.NotEqual(t, merged, contactOf(t, p, b))

	for _, raw := range []int64{a, b} {
		c, err := p.GetContact(ctx, CallOptions{}, contactOf(t, p, raw))
		require.NoError(t, err)
		assert.Len(t, c.RawContacts, 1)
		assert.Equal(t, 1, segments(t, c.LookupKey))
	}

	excs, err := p.ListAggregationExceptions(ctx, CallOptions{})
	require.NoError(t, err)
	require.Len(t, excs, 1)
	assert.Equal(t, a, excs[0].RawContactID1)
	assert.Equal(t, b, excs[0].RawContactID2)

	// Unrelated names only share a contact through an explicit rule.
	x := insertNamed(t, p, accountX, "Alice Able")
	y := insertNamed(t, p, accountY, "Bob Baker")
	require.NotEqual(t, contactOf(t, p, x), contactOf(t, p, y))
	require.NoError(t, p.SetAggregationException(ctx, CallOptions{}, models.ExceptionKeepTogether, x, y))
	assert.Equal(t, contactOf(t, p, x), contactOf(t, p, y))

	require.NoError(t, p.SetAggregationException(ctx, CallOptions{}, models.ExceptionAutomatic, x, y))
	assert.NotEqual(t, contactOf(t, p, x), contactOf(t, p, y))
	requireConsistent(t, p)
}

func TestInvalidExceptionsAreRejected(t *testing.T) {
	p := newProvider(t)
	ctx := testContext(t)
	a := insertNamed(t, p, accountX, "John Smith")

	cases := []struct {
		name string
		typ  models.ExceptionType
		id1  int64
		id2  int64
	}{
		{"same raw contact", models.ExceptionKeepTogether, a, a},
		{"missing raw contact", models.ExceptionKeepTogether, a, 9999},
		{"zero id", models.ExceptionKeepSeparate, 0, a},
		{"unknown type", models.ExceptionType(7), a, a + 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := p.SetAggregationException(ctx, CallOptions{}, tc.typ, tc.id1, tc.id2)
			require.Error(t, err)
			assert.True(t, errors.Is(err, models.ErrInvalidException))
			assert.True(t, errors.Is(err, models.ErrValidation))
		})
	}
}

func TestSoftDeleteKeepsOtherMembers(t *testing.T) {
	p := newProvider(t)
	ctx := testContext(t)

	a := insertNamed(t, p, accountX, "John Smith")
	b := insertNamed(t, p, accountY, "John Smith")
	contactID := contactOf(t, p, a)
	before := time.Now().Add(-time.Minute)

	n, err := p.DeleteRawContact(ctx, CallOptions{}, a)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ra, err := p.RawContact(ctx, CallOptions{}, a)
	require.NoError(t, err)
	assert.True(t, ra.Deleted)
	assert.Equal(t, models.AggregationModeDisabled, ra.AggregationMode)
	assert.Zero(t, ra.ContactID)

	c, err := p.GetContact(ctx, CallOptions{}, contactID)
	require.NoError(t, err)
	require.Len(t, c.RawContacts, 1)
	assert.Equal(t, b, c.RawContacts[0].ID)
	assert.Equal(t, 1, segments(t, c.LookupKey))

	// The sync adapter removes the last member for good and the contact goes with it.
	n, err = p.DeleteRawContact(ctx, CallOptions{SyncAdapter: true}, b)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	_, err = p.GetContact(ctx, CallOptions{}, contactID)
	assert.True(t, errors.Is(err, models.ErrNotFound))

	deleted, err := p.DeletedContactsSince(ctx, CallOptions{}, before)
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, contactID, deleted[0].ContactID)
	requireConsistent(t, p)
}

func TestLocalDeleteIsPermanent(t *testing.T) {
	p := newProvider(t)
	ctx := testContext(t)

	a := insertNamed(t, p, models.Account{}, "Local Only")
	n, err := p.DeleteRawContact(ctx, CallOptions{}, a)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = p.RawContact(ctx, CallOptions{}, a)
	assert.True(t, errors.Is(err, models.ErrNotFound))

	n, err = p.DeleteRawContact(ctx, CallOptions{}, a)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRenameSplitsNameOnlyMatch(t *testing.T) {
	p := newProvider(t)
	ctx := testContext(t)

	a := insertNamed(t, p, accountX, "John Smith")
	b := insertNamed(t, p, accountY, "John Smith")
	require.Equal(t, contactOf(t, p, a), contactOf(t, p, b))

	ra, err := p.RawContact(ctx, CallOptions{}, a)
	require.NoError(t, err)
	require.Len(t, ra.Data, 1)

	n, err := p.UpdateData(ctx, CallOptions{}, ra.Data[0].ID, DataPatch{
		Columns: map[int]string{models.NameDisplayName: "Jon Smyth"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NotEqual(t, contactOf(t, p, a), contactOf(t, p, b))
	ca, err := p.GetContact(ctx, CallOptions{}, contactOf(t, p, a))
	require.NoError(t, err)
	assert.Equal(t, "Jon Smyth", ca.DisplayName)
	cb, err := p.GetContact(ctx, CallOptions{}, contactOf(t, p, b))
	require.NoError(t, err)
	assert.Equal(t, "John Smith", cb.DisplayName)

	// Repeating the same change is a no-op.
	n, err = p.UpdateData(ctx, CallOptions{}, ra.Data[0].ID, DataPatch{
		Columns: map[int]string{models.NameDisplayName: "Jon Smyth"},
	})
	require.NoError(t, err)
	assert.Zero(t, n)
	requireConsistent(t, p)
}

func TestMissingRowsAffectNothing(t *testing.T) {
	p := newProvider(t)
	ctx := testContext(t)

	n, err := p.UpdateRawContact(ctx, CallOptions{}, 424242, RawContactPatch{Starred: new(bool)})
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = p.DeleteData(ctx, CallOptions{}, 424242)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = p.UpdateData(ctx, CallOptions{}, 424242, DataPatch{})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestEmailAndPhoneSignalsMerge(t *testing.T) {
	p := newProvider(t)

	email := models.DataRow{MimeType: models.MimeEmail}
	email.Data[models.EmailAddress] = "dana@example.com"
	a := insertNamed(t, p, accountX, "Dana Scully", email)

	email2 := email
	email2.Data[models.EmailAddress] = "Dana@Example.com"
	b := insertNamed(t, p, accountY, "D. Scully", email2)
	assert.Equal(t, contactOf(t, p, a), contactOf(t, p, b))

	phone := models.DataRow{MimeType: models.MimePhone}
	phone.Data[models.PhoneNumber] = "+1 555 867 5309"
	c := insertNamed(t, p, accountX, "Fox Mulder", phone)
	phone2 := phone
	phone2.Data[models.PhoneNumber] = "(555) 867-5309"
	d := insertNamed(t, p, accountY, "Spooky", phone2)
	assert.Equal(t, contactOf(t, p, c), contactOf(t, p, d))
	requireConsistent(t, p)
}

func TestBatchBackReferences(t *testing.T) {
	p := newProvider(t)
	ctx := testContext(t)

	ops := []BatchOp{
		{Kind: OpInsertRawContact, RawContact: NewRawContact{Account: accountX}},
		{Kind: OpInsertData, BackRef: Ref(0), Data: nameRow("Carol King")},
		{Kind: OpInsertRawContact, RawContact: NewRawContact{Account: accountY, Data: []models.DataRow{nameRow("Carol King")}}},
		{Kind: OpSetException, Exception: ExceptionOp{Type: models.ExceptionKeepSeparate, Ref1: Ref(0), Ref2: Ref(2)}},
	}
	results, err := p.ApplyBatch(ctx, CallOptions{}, ops)
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.NotZero(t, results[0].ID)
	assert.NotZero(t, results[1].ID)
	assert.Equal(t, 1, results[3].Count)

	assert.NotEqual(t, contactOf(t, p, results[0].ID), contactOf(t, p, results[2].ID))
	c, err := p.GetContact(ctx, CallOptions{}, contactOf(t, p, results[0].ID))
	require.NoError(t, err)
	assert.Equal(t, "Carol King", c.DisplayName)

	_, err = p.ApplyBatch(ctx, CallOptions{}, []BatchOp{{Kind: OpDeleteRawContact, BackRef: Ref(0)}})
	assert.True(t, errors.Is(err, models.ErrValidation))
}

func TestBatchYieldCommitsEarlierWork(t *testing.T) {
	p := newProvider(t, func(o *Options) { o.BatchYieldThreshold = 2 })
	ctx := testContext(t)

	var ops []BatchOp
	for _, name := range []string{"Ann One", "Ben Two", "Cat Three", "Dan Four", "Eve Five"} {
		ops = append(ops, BatchOp{
			Kind:         OpInsertRawContact,
			RawContact:   NewRawContact{Data: []models.DataRow{nameRow(name)}},
			YieldAllowed: true,
		})
	}
	ops = append(ops, BatchOp{Kind: OpUpdateData, BackRef: Ref(99)})

	_, err := p.ApplyBatch(ctx, CallOptions{}, ops)
	require.Error(t, err)

	// Yields happened before ops 2 and 4; only op 4 was rolled back.
	var n int
	require.NoError(t, p.contacts.session.DB().QueryRow(`SELECT COUNT(*) FROM raw_contacts`).Scan(&n))
	assert.Equal(t, 4, n)
	requireConsistent(t, p)

	contacts, err := p.ListContacts(ctx, CallOptions{}, 0, 0)
	require.NoError(t, err)
	require.Len(t, contacts, 4)
	assert.Equal(t, "Ann One", contacts[0].DisplayName)
}

func TestReadOnlyAccountsNeedSyncAdapter(t *testing.T) {
	p := newProvider(t, func(o *Options) { o.ReadOnlyAccountTypes = []string{"com.readonly"} })
	ctx := testContext(t)
	ro := models.Account{Name: "me", Type: "com.readonly"}

	_, err := p.InsertRawContact(ctx, CallOptions{}, NewRawContact{Account: ro, Data: []models.DataRow{nameRow("Read Only")}})
	assert.True(t, errors.Is(err, models.ErrReadOnlyAccount))

	id, err := p.InsertRawContact(ctx, CallOptions{SyncAdapter: true}, NewRawContact{Account: ro, SourceID: "s1", Data: []models.DataRow{nameRow("Read Only")}})
	require.NoError(t, err)
	r, err := p.RawContact(ctx, CallOptions{}, id)
	require.NoError(t, err)
	assert.False(t, r.Dirty)
	assert.Equal(t, "s1", r.SourceID)

	_, err = p.InsertData(ctx, CallOptions{}, models.DataRow{RawContactID: id, MimeType: models.MimeNote, Data: [models.NumDataColumns]string{"hi"}})
	assert.True(t, errors.Is(err, models.ErrReadOnlyAccount))
}

func TestProfileDatabaseIsSeparate(t *testing.T) {
	p := newProvider(t)
	ctx := testContext(t)

	id, err := p.InsertRawContact(ctx, CallOptions{Profile: true}, NewRawContact{Data: []models.DataRow{nameRow("Me Myself")}})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, id, db.ProfileIDSpaceStart)

	me, err := p.LookupContact(ctx, lookupkey.Profile)
	require.NoError(t, err)
	assert.Equal(t, "Me Myself", me.DisplayName)

	contacts, err := p.ListContacts(ctx, CallOptions{}, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, contacts)
}

func TestFindContactsAndSuggestions(t *testing.T) {
	p := newProvider(t)
	ctx := testContext(t)

	a := insertNamed(t, p, accountX, "Robert Smith")
	b := insertNamed(t, p, accountX, "Bob Smith")
	insertNamed(t, p, accountX, "Zed Zulu")

	found, err := p.FindContacts(ctx, CallOptions{}, "rob", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, contactOf(t, p, a), found[0].ID)

	sugg, err := p.Suggestions(ctx, CallOptions{}, contactOf(t, p, a), 0, aggregation.SuggestionFilter{})
	require.NoError(t, err)
	require.NotEmpty(t, sugg)
	assert.Equal(t, contactOf(t, p, b), sugg[0].ContactID)
}

func TestSyncStateIsWrittenAtCommit(t *testing.T) {
	p := newProvider(t)
	ctx := testContext(t)

	state, err := p.GetSyncState(ctx, CallOptions{}, accountX)
	require.NoError(t, err)
	assert.Nil(t, state)

	require.NoError(t, p.SetSyncState(ctx, CallOptions{SyncAdapter: true}, accountX, []byte("token-1")))
	state, err = p.GetSyncState(ctx, CallOptions{}, accountX)
	require.NoError(t, err)
	assert.Equal(t, []byte("token-1"), state)
}

func TestRemoveAccount(t *testing.T) {
	p := newProvider(t)
	ctx := testContext(t)

	a := insertNamed(t, p, accountX, "John Smith")
	b := insertNamed(t, p, accountY, "John Smith")
	_, err := p.EnsureGroup(ctx, CallOptions{}, accountX, "g1", "Friends")
	require.NoError(t, err)

	n, err := p.RemoveAccount(ctx, accountX)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = p.RawContact(ctx, CallOptions{}, a)
	assert.True(t, errors.Is(err, models.ErrNotFound))
	c, err := p.GetContact(ctx, CallOptions{}, contactOf(t, p, b))
	require.NoError(t, err)
	assert.Len(t, c.RawContacts, 1)

	accounts, err := p.ListAccounts(ctx, CallOptions{})
	require.NoError(t, err)
	for _, acct := range accounts {
		assert.NotEqual(t, accountX, acct.Account)
	}
	groups, err := p.ListGroups(ctx, CallOptions{}, accountX)
	require.NoError(t, err)
	assert.Empty(t, groups)
	requireConsistent(t, p)

	_, err = p.RemoveAccount(ctx, models.Account{})
	assert.True(t, errors.Is(err, models.ErrValidation))
}

func TestChangeLocaleRunsInBackground(t *testing.T) {
	p := newProvider(t)
	ctx := testContext(t)
	a := insertNamed(t, p, accountX, "John Smith")

	assert.True(t, errors.Is(p.ChangeLocale(ctx, ""), models.ErrValidation))
	require.NoError(t, p.ChangeLocale(ctx, "de-DE"))
	require.NoError(t, p.WaitIdle(ctx))
	assert.Equal(t, StatusNormal, p.Status())

	locale, err := db.GetProperty(ctx, p.contacts.session.DB(), db.PropLocale, "")
	require.NoError(t, err)
	assert.Equal(t, "de-DE", locale)

	c, err := p.GetContact(ctx, CallOptions{}, contactOf(t, p, a))
	require.NoError(t, err)
	assert.Equal(t, "John Smith", c.DisplayName)
	requireConsistent(t, p)
}

func TestPhotoCleanupClearsDanglingReferences(t *testing.T) {
	p := newProvider(t)
	ctx := testContext(t)

	photo := models.DataRow{MimeType: models.MimePhoto, Blob: []byte{1, 2, 3}}
	a := insertNamed(t, p, accountX, "Pic Owner", photo)
	c, err := p.GetContact(ctx, CallOptions{}, contactOf(t, p, a))
	require.NoError(t, err)
	require.NotEmpty(t, c.PhotoFileID)

	img, err := p.PhotoBytes(ctx, c.PhotoFileID)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, img)

	require.NoError(t, p.photos.Delete(ctx, c.PhotoFileID))
	res, err := p.CleanupPhotos(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{c.PhotoFileID}, res.Missing)

	c, err = p.GetContact(ctx, CallOptions{}, c.ID)
	require.NoError(t, err)
	assert.Empty(t, c.PhotoFileID)
}

func TestPresenceAndNameOverride(t *testing.T) {
	p := newProvider(t)
	ctx := testContext(t)

	identity := models.DataRow{MimeType: models.MimeIdentity}
	identity.Data[models.IdentityValue] = "john@chat"
	a := insertNamed(t, p, accountX, "John Smith", identity)
	b := insertNamed(t, p, accountY, "Johnny Smith", identity)
	contactID := contactOf(t, p, a)
	require.Equal(t, contactID, contactOf(t, p, b))

	rb, err := p.RawContact(ctx, CallOptions{}, b)
	require.NoError(t, err)
	var identityID int64
	for _, row := range rb.Data {
		if row.MimeType == models.MimeIdentity {
			identityID = row.ID
		}
	}
	require.NotZero(t, identityID)

	n, err := p.SetPresence(ctx, CallOptions{}, identityID, models.PresenceAvailable, "around")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, p.SetNameRawContact(ctx, CallOptions{}, contactID, b))
	c, err := p.GetContact(ctx, CallOptions{}, contactID)
	require.NoError(t, err)
	assert.Equal(t, models.PresenceAvailable, c.Presence)
	assert.Equal(t, "around", c.Status)
	assert.Equal(t, "Johnny Smith", c.DisplayName)
	assert.Equal(t, b, c.NameRawContactID)

	err = p.SetNameRawContact(ctx, CallOptions{}, contactID+1000, a)
	assert.True(t, errors.Is(err, models.ErrValidation))
}

func TestClosedProviderRejectsCalls(t *testing.T) {
	p := newProvider(t)
	require.NoError(t, p.Close())

	_, err := p.InsertRawContact(context.Background(), CallOptions{}, NewRawContact{})
	assert.True(t, errors.Is(err, models.ErrClosed))
}

func TestJoinAndSplitContacts(t *testing.T) {
	p := newProvider(t)
	ctx := testContext(t)

	a := insertNamed(t, p, accountX, "Ada Lovelace")
	b := insertNamed(t, p, accountY, "Augusta King")
	require.NotEqual(t, contactOf(t, p, a), contactOf(t, p, b))

	_, err := p.JoinContacts(ctx, CallOptions{}, contactOf(t, p, a), contactOf(t, p, a))
	assert.ErrorIs(t, err, models.ErrValidation)

	joined, err := p.JoinContacts(ctx, CallOptions{}, contactOf(t, p, a), contactOf(t, p, b))
	require.NoError(t, err)
	assert.Equal(t, joined, contactOf(t, p, a))
	assert.Equal(t, joined, contactOf(t, p, b))

	ids, err := p.SplitContact(ctx, CallOptions{}, joined)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	assert.NotEqual(t, ids[0], ids[1])

	exceptions, err := p.ListAggregationExceptions(ctx, CallOptions{})
	require.NoError(t, err)
	require.Len(t, exceptions, 1)
	assert.Equal(t, models.ExceptionKeepSeparate, exceptions[0].Type)

	_, err = p.SplitContact(ctx, CallOptions{}, ids[0])
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = p.SplitContact(ctx, CallOptions{}, 9999)
	assert.ErrorIs(t, err, models.ErrNotFound)
	requireConsistent(t, p)
}

func TestRawContactsByAccount(t *testing.T) {
	p := newProvider(t)
	ctx := testContext(t)

	none, err := p.RawContactsByAccount(ctx, CallOptions{}, accountX)
	require.NoError(t, err)
	assert.Empty(t, none)

	a := insertNamed(t, p, accountX, "Ada Lovelace")
	insertNamed(t, p, accountY, "Alan Turing")
	b := insertNamed(t, p, accountX, "Grace Hopper")
	_, err = p.DeleteRawContact(ctx, CallOptions{}, b)
	require.NoError(t, err)

	raws, err := p.RawContactsByAccount(ctx, CallOptions{}, accountX)
	require.NoError(t, err)
	require.Len(t, raws, 1, "soft-deleted rows are left out")
	assert.Equal(t, a, raws[0].ID)
	require.Len(t, raws[0].Data, 1)
	assert.Equal(t, models.MimeStructuredName, raws[0].Data[0].MimeType)
}

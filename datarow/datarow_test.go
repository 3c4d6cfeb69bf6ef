package datarow

import (
	"bytes"
	"context"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/roster/db"
	"github.com/harperreed/roster/models"
	"github.com/harperreed/roster/txn"
)

type markCall struct {
	rawContactID int64
	mode         models.AggregationMode
}

type recordingAggregation struct {
	calls []markCall
}

func (r *recordingAggregation) MarkForAggregation(_ context.Context, _ db.Querier, id int64, mode models.AggregationMode, _ bool) error {
	r.calls = append(r.calls, markCall{id, mode})
	return nil
}

type memPhotos struct {
	stored map[string][]byte
}

func (m *memPhotos) Insert(_ context.Context, image []byte) (string, error) {
	id := "photo-" + strconv.Itoa(len(m.stored)+1)
	m.stored[id] = bytes.Clone(image)
	return id, nil
}

type harness struct {
	t      *testing.T
	ctx    context.Context
	s      *db.Session
	tc     *txn.Context
	agg    *recordingAggregation
	photos *memPhotos
	reg    *Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	s, err := db.OpenDatabase(filepath.Join(t.TempDir(), "contacts.db"), db.KindContacts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	h := &harness{
		t:      t,
		ctx:    context.Background(),
		s:      s,
		tc:     txn.New(false),
		agg:    &recordingAggregation{},
		photos: &memPhotos{stored: make(map[string][]byte)},
	}
	h.reg = NewRegistry(Env{Aggregation: h.agg, Photos: h.photos, MaxPhoneLength: 20, MaxThumbnailBytes: 8})
	return h
}

func (h *harness) rawContact(contactID int64) int64 {
	h.t.Helper()
	_, err := h.s.DB().Exec(`INSERT OR IGNORE INTO accounts (account_name, account_type) VALUES ('a@example.com', 'com.example')`)
	require.NoError(h.t, err)
	var cid any
	if contactID != 0 {
		cid = contactID
	}
	now := time.Now().UTC()
	res, err := h.s.DB().Exec(`
		INSERT INTO raw_contacts (account_id, contact_id, created_at, updated_at) VALUES (1, ?, ?, ?)
	`, cid, now, now)
	require.NoError(h.t, err)
	id, err := res.LastInsertId()
	require.NoError(h.t, err)
	return id
}

func (h *harness) insert(row *models.DataRow) (int64, error) {
	var id int64
	err := h.s.InTx(h.ctx, func(tx *db.Tx) error {
		var err error
		id, err = h.reg.For(row.MimeType).Insert(h.ctx, tx, h.tc, row)
		return err
	})
	return id, err
}

func (h *harness) lookups(dataID int64, typ models.NameLookupType) []string {
	h.t.Helper()
	rows, err := h.s.DB().Query(`SELECT normalized_name FROM name_lookup WHERE data_id = ? AND name_type = ? ORDER BY normalized_name`, dataID, typ)
	require.NoError(h.t, err)
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		require.NoError(h.t, rows.Scan(&s))
		out = append(out, s)
	}
	return out
}

func (h *harness) displayName(rawID int64) (string, models.DisplayNameSource) {
	h.t.Helper()
	var (
		name   string
		source models.DisplayNameSource
	)
	require.NoError(h.t, h.s.DB().QueryRow(`SELECT IFNULL(display_name, ''), display_name_source FROM raw_contacts WHERE _id = ?`, rawID).Scan(&name, &source))
	return name, source
}

func row(rawID int64, mime string, cols map[int]string) *models.DataRow {
	r := &models.DataRow{RawContactID: rawID, MimeType: mime}
	for c, v := range cols {
		r.Set(c, v)
	}
	return r
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindPhone, KindOf(models.MimePhone))
	assert.Equal(t, KindStructuredPostal, KindOf(models.MimeStructuredPostal))
	assert.Equal(t, KindCustom, KindOf("vnd.example/custom"))
}

func TestStructuredNameInsertDerivesPartsAndLookups(t *testing.T) {
	h := newHarness(t)
	raw := h.rawContact(0)

	id, err := h.insert(row(raw, models.MimeStructuredName, map[int]string{models.NameDisplayName: "Robert Smith"}))
	require.NoError(t, err)

	stored, err := Load(h.ctx, h.s.DB(), id)
	require.NoError(t, err)
	assert.Equal(t, "Robert", stored.Get(models.NameGiven))
	assert.Equal(t, "Smith", stored.Get(models.NameFamily))

	assert.Equal(t, []string{"robertsmith"}, h.lookups(id, models.NameLookupExact))
	assert.Equal(t, []string{"smithrobert"}, h.lookups(id, models.NameLookupVariant))
	assert.Equal(t, []string{"robert", "smith"}, h.lookups(id, models.NameLookupCollationKey))
	assert.Contains(t, h.lookups(id, models.NameLookupShorthand), "bobsmith")

	name, source := h.displayName(raw)
	assert.Equal(t, "Robert Smith", name)
	assert.Equal(t, models.DisplayNameSourceStructuredName, source)

	require.Len(t, h.agg.calls, 1)
	assert.Equal(t, raw, h.agg.calls[0].rawContactID)
	assert.Equal(t, []int64{raw}, h.tc.UpdatedRawContactIDs())
}

func TestStructuredNameJoinsPartsIntoDisplayName(t *testing.T) {
	h := newHarness(t)
	raw := h.rawContact(0)

	id, err := h.insert(row(raw, models.MimeStructuredName, map[int]string{models.NameGiven: "Ann", models.NameFamily: "Lee"}))
	require.NoError(t, err)

	stored, err := Load(h.ctx, h.s.DB(), id)
	require.NoError(t, err)
	assert.Equal(t, "Ann Lee", stored.Get(models.NameDisplayName))
}

func TestPhoneIsTruncatedAndIndexed(t *testing.T) {
	h := newHarness(t)
	raw := h.rawContact(0)

	id, err := h.insert(row(raw, models.MimePhone, map[int]string{models.PhoneNumber: "+1 (555) 123-4567 ext 99999"}))
	require.NoError(t, err)

	stored, err := Load(h.ctx, h.s.DB(), id)
	require.NoError(t, err)
	assert.Equal(t, "+1 (555) 123-4567 ex", stored.Get(models.PhoneNumber))
	assert.Equal(t, "+15551234567", stored.Get(models.PhoneNormalized))

	var minMatch string
	require.NoError(t, h.s.DB().QueryRow(`SELECT min_match FROM phone_lookup WHERE data_id = ?`, id).Scan(&minMatch))
	assert.Equal(t, "1234567", minMatch)

	name, source := h.displayName(raw)
	assert.Equal(t, "+1 (555) 123-4567 ex", name)
	assert.Equal(t, models.DisplayNameSourcePhone, source)
}

func TestRequiredColumnsAreValidated(t *testing.T) {
	h := newHarness(t)
	raw := h.rawContact(0)

	for _, mime := range []string{models.MimePhone, models.MimeEmail, models.MimeIdentity, models.MimeNickname, models.MimeGroupMembership} {
		_, err := h.insert(row(raw, mime, nil))
		assert.ErrorIs(t, err, models.ErrValidation, mime)
	}

	_, err := h.insert(row(9999, models.MimeEmail, map[int]string{models.EmailAddress: "x@example.com"}))
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestDeletedRawContactRejectsData(t *testing.T) {
	h := newHarness(t)
	raw := h.rawContact(0)
	_, err := h.s.DB().Exec(`UPDATE raw_contacts SET deleted = 1 WHERE _id = ?`, raw)
	require.NoError(t, err)

	_, err = h.insert(row(raw, models.MimeEmail, map[int]string{models.EmailAddress: "x@example.com"}))
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestEmailWritesNicknameLookup(t *testing.T) {
	h := newHarness(t)
	raw := h.rawContact(0)

	id, err := h.insert(row(raw, models.MimeEmail, map[int]string{models.EmailAddress: " Ann.Lee+work@example.com "}))
	require.NoError(t, err)
	assert.Equal(t, []string{"annlee"}, h.lookups(id, models.NameLookupEmailBasedNickname))

	name, source := h.displayName(raw)
	assert.Equal(t, "Ann.Lee+work@example.com", name)
	assert.Equal(t, models.DisplayNameSourceEmail, source)
}

func TestUpdateDetectsNoOpAndReplacesLookups(t *testing.T) {
	h := newHarness(t)
	raw := h.rawContact(0)
	id, err := h.insert(row(raw, models.MimeStructuredName, map[int]string{models.NameDisplayName: "Ann Lee"}))
	require.NoError(t, err)

	update := func(display string) bool {
		var changed bool
		require.NoError(t, h.s.InTx(h.ctx, func(tx *db.Tx) error {
			existing, err := Load(h.ctx, tx, id)
			if err != nil {
				return err
			}
			next := *existing
			next.Data = [models.NumDataColumns]string{}
			next.Data[models.NameDisplayName] = display
			changed, err = h.reg.For(models.MimeStructuredName).Update(h.ctx, tx, h.tc, &next, existing)
			return err
		}))
		return changed
	}

	calls := len(h.agg.calls)
	assert.False(t, update("Ann Lee"))
	assert.Len(t, h.agg.calls, calls)

	assert.True(t, update("Ann Smith"))
	assert.Equal(t, []string{"annsmith"}, h.lookups(id, models.NameLookupExact))

	stored, err := Load(h.ctx, h.s.DB(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stored.Version)
	name, _ := h.displayName(raw)
	assert.Equal(t, "Ann Smith", name)
}

func TestNameUpdateRederivesTheUntouchedSide(t *testing.T) {
	h := newHarness(t)
	raw := h.rawContact(0)
	id, err := h.insert(row(raw, models.MimeStructuredName, map[int]string{models.NameDisplayName: "John Smith"}))
	require.NoError(t, err)

	update := func(edit func(next *models.DataRow)) *models.DataRow {
		require.NoError(t, h.s.InTx(h.ctx, func(tx *db.Tx) error {
			existing, err := Load(h.ctx, tx, id)
			if err != nil {
				return err
			}
			next := *existing
			edit(&next)
			_, err = h.reg.For(models.MimeStructuredName).Update(h.ctx, tx, h.tc, &next, existing)
			return err
		}))
		stored, err := Load(h.ctx, h.s.DB(), id)
		require.NoError(t, err)
		return stored
	}

	stored := update(func(next *models.DataRow) { next.Data[models.NameDisplayName] = "Jon Smyth" })
	assert.Equal(t, "Jon", stored.Data[models.NameGiven])
	assert.Equal(t, "Smyth", stored.Data[models.NameFamily])
	assert.Equal(t, []string{"jonsmyth"}, h.lookups(id, models.NameLookupExact))

	stored = update(func(next *models.DataRow) { next.Data[models.NameFamily] = "Smith" })
	assert.Equal(t, "Jon Smith", stored.Data[models.NameDisplayName])
	assert.Equal(t, []string{"jonsmith"}, h.lookups(id, models.NameLookupExact))
}

func TestSuperPrimaryIsClearedAcrossTheContact(t *testing.T) {
	h := newHarness(t)
	_, err := h.s.DB().Exec(`INSERT INTO contacts (_id, last_updated) VALUES (7, ?)`, time.Now())
	require.NoError(t, err)
	a := h.rawContact(7)
	b := h.rawContact(7)

	first, err := h.insert(&models.DataRow{RawContactID: a, MimeType: models.MimeEmail, IsSuperPrimary: true, Data: [10]string{"a@example.com"}})
	require.NoError(t, err)
	second, err := h.insert(&models.DataRow{RawContactID: b, MimeType: models.MimeEmail, IsSuperPrimary: true, Data: [10]string{"b@example.com"}})
	require.NoError(t, err)

	r1, err := Load(h.ctx, h.s.DB(), first)
	require.NoError(t, err)
	r2, err := Load(h.ctx, h.s.DB(), second)
	require.NoError(t, err)
	assert.False(t, r1.IsSuperPrimary)
	assert.True(t, r1.IsPrimary)
	assert.True(t, r2.IsSuperPrimary)
}

func TestPrimaryIsUniqueWithinRawContact(t *testing.T) {
	h := newHarness(t)
	raw := h.rawContact(0)

	first, err := h.insert(&models.DataRow{RawContactID: raw, MimeType: models.MimePhone, IsPrimary: true, Data: [10]string{"5551234567"}})
	require.NoError(t, err)
	_, err = h.insert(&models.DataRow{RawContactID: raw, MimeType: models.MimePhone, IsPrimary: true, Data: [10]string{"5559876543"}})
	require.NoError(t, err)

	r1, err := Load(h.ctx, h.s.DB(), first)
	require.NoError(t, err)
	assert.False(t, r1.IsPrimary)
}

func TestPhotoBlobsMoveToStore(t *testing.T) {
	h := newHarness(t)
	raw := h.rawContact(0)

	small, err := h.insert(&models.DataRow{RawContactID: raw, MimeType: models.MimePhoto, Blob: []byte("tiny")})
	require.NoError(t, err)
	large, err := h.insert(&models.DataRow{RawContactID: raw, MimeType: models.MimePhoto, Blob: []byte("much larger image")})
	require.NoError(t, err)

	s, err := Load(h.ctx, h.s.DB(), small)
	require.NoError(t, err)
	assert.Equal(t, []byte("tiny"), s.Blob)
	assert.NotEmpty(t, s.Get(models.PhotoFileID))

	l, err := Load(h.ctx, h.s.DB(), large)
	require.NoError(t, err)
	assert.Empty(t, l.Blob)
	assert.Equal(t, []byte("much larger image"), h.photos.stored[l.Get(models.PhotoFileID)])

	assert.Equal(t, []int64{raw}, h.tc.DrainStaleAggregates())
	assert.Empty(t, h.agg.calls)
}

func TestPhotoWithoutStoreMustFitThumbnail(t *testing.T) {
	h := newHarness(t)
	h.reg = NewRegistry(Env{Aggregation: h.agg, MaxThumbnailBytes: 4})
	raw := h.rawContact(0)

	_, err := h.insert(&models.DataRow{RawContactID: raw, MimeType: models.MimePhoto, Blob: []byte("too large")})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestGroupMembershipResolvesSourceID(t *testing.T) {
	h := newHarness(t)
	raw := h.rawContact(0)
	_, err := h.s.DB().Exec(`INSERT INTO contact_groups (_id, account_id, sourceid, title) VALUES (3, 1, 'friends', 'Friends')`)
	require.NoError(t, err)

	id, err := h.insert(row(raw, models.MimeGroupMembership, map[int]string{models.GroupSourceID: "friends"}))
	require.NoError(t, err)
	stored, err := Load(h.ctx, h.s.DB(), id)
	require.NoError(t, err)
	assert.Equal(t, "3", stored.Get(models.GroupRowID))

	_, err = h.insert(row(raw, models.MimeGroupMembership, map[int]string{models.GroupSourceID: "family"}))
	assert.ErrorIs(t, err, models.ErrValidation)
	_, err = h.insert(row(raw, models.MimeGroupMembership, map[int]string{models.GroupRowID: "42"}))
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestPostalAddressSplits(t *testing.T) {
	h := newHarness(t)
	raw := h.rawContact(0)

	id, err := h.insert(row(raw, models.MimeStructuredPostal, map[int]string{models.PostalFormatted: "1 Main St\nSpringfield, IL 62701\nUSA"}))
	require.NoError(t, err)
	stored, err := Load(h.ctx, h.s.DB(), id)
	require.NoError(t, err)
	assert.Equal(t, "Springfield", stored.Get(models.PostalCity))
	assert.Equal(t, "62701", stored.Get(models.PostalPostcode))
}

func TestDeleteRemovesDerivedRowsAndRecomputesName(t *testing.T) {
	h := newHarness(t)
	raw := h.rawContact(0)
	nameID, err := h.insert(row(raw, models.MimeStructuredName, map[int]string{models.NameDisplayName: "Ann Lee"}))
	require.NoError(t, err)
	_, err = h.insert(row(raw, models.MimeEmail, map[int]string{models.EmailAddress: "ann@example.com"}))
	require.NoError(t, err)
	_, err = h.s.DB().Exec(`INSERT INTO presence (data_id, raw_contact_id, mode) VALUES (?, ?, 5)`, nameID, raw)
	require.NoError(t, err)

	require.NoError(t, h.s.InTx(h.ctx, func(tx *db.Tx) error {
		existing, err := Load(h.ctx, tx, nameID)
		if err != nil {
			return err
		}
		n, err := h.reg.For(existing.MimeType).Delete(h.ctx, tx, h.tc, existing)
		assert.Equal(t, 1, n)
		return err
	}))

	assert.Empty(t, h.lookups(nameID, models.NameLookupExact))
	var n int
	require.NoError(t, h.s.DB().QueryRow(`SELECT COUNT(*) FROM presence WHERE data_id = ?`, nameID).Scan(&n))
	assert.Zero(t, n)

	name, source := h.displayName(raw)
	assert.Equal(t, "ann@example.com", name)
	assert.Equal(t, models.DisplayNameSourceEmail, source)
}

type customHandler struct {
	*rowHandler
	inserted int
}

func (c *customHandler) Insert(ctx context.Context, q db.Querier, tc *txn.Context, r *models.DataRow) (int64, error) {
	c.inserted++
	return c.rowHandler.Insert(ctx, q, tc, r)
}

func TestCustomHandlersAndGenericFallback(t *testing.T) {
	h := newHarness(t)
	raw := h.rawContact(0)

	_, err := h.insert(row(raw, "vnd.example/unknown", map[int]string{models.Data1: "x"}))
	require.NoError(t, err)

	custom := &customHandler{rowHandler: h.reg.generic}
	h.reg.RegisterCustom("vnd.example/tracked", custom)
	_, err = h.insert(row(raw, "vnd.example/tracked", map[int]string{models.Data1: "y"}))
	require.NoError(t, err)
	assert.Equal(t, 1, custom.inserted)
}

func TestRebuildLookupsRestoresDerivedRows(t *testing.T) {
	h := newHarness(t)
	raw := h.rawContact(0)
	nameID, err := h.insert(row(raw, models.MimeStructuredName, map[int]string{models.NameDisplayName: "Ann Lee"}))
	require.NoError(t, err)
	phoneID, err := h.insert(row(raw, models.MimePhone, map[int]string{models.PhoneNumber: "555 123 4567"}))
	require.NoError(t, err)

	_, err = h.s.DB().Exec(`DELETE FROM name_lookup`)
	require.NoError(t, err)

	var n int
	require.NoError(t, h.s.InTx(h.ctx, func(tx *db.Tx) error {
		var err error
		n, err = h.reg.RebuildLookups(h.ctx, tx)
		return err
	}))
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"annlee"}, h.lookups(nameID, models.NameLookupExact))

	var count int
	require.NoError(t, h.s.DB().QueryRow(`SELECT COUNT(*) FROM phone_lookup WHERE data_id = ?`, phoneID).Scan(&count))
	assert.Equal(t, 1, count)
}

// ABOUTME: Read side of the provider: contacts, raw contacts, search, lookup keys and suggestions
// ABOUTME: Also sync state, directories, accounts and groups
package provider

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/harperreed/roster/aggregation"
	"github.com/harperreed/roster/datarow"
	"github.com/harperreed/roster/db"
	"github.com/harperreed/roster/directory"
	"github.com/harperreed/roster/lookupkey"
	"github.com/harperreed/roster/models"
)

// ContactView is an aggregated contact with its member raw contacts.
type ContactView struct {
	ID                int64                    `json:"id"`
	LookupKey         string                   `json:"lookup_key"`
	DisplayName       string                   `json:"display_name,omitempty"`
	DisplayNameAlt    string                   `json:"display_name_alt,omitempty"`
	DisplayNameSource models.DisplayNameSource `json:"display_name_source"`
	NameRawContactID  int64                    `json:"name_raw_contact_id,omitempty"`
	PhotoID           int64                    `json:"photo_id,omitempty"`
	PhotoFileID       string                   `json:"photo_file_id,omitempty"`
	Starred           bool                     `json:"starred,omitempty"`
	Pinned            int                      `json:"pinned,omitempty"`
	HasPhoneNumber    bool                     `json:"has_phone_number,omitempty"`
	Presence          models.PresenceMode      `json:"presence,omitempty"`
	Status            string                   `json:"status,omitempty"`
	LastUpdated       time.Time                `json:"last_updated"`
	RawContacts       []RawContactView         `json:"raw_contacts,omitempty"`
}

type RawContactView struct {
	ID                int64                    `json:"id"`
	ContactID         int64                    `json:"contact_id"`
	Account           models.Account           `json:"account"`
	SourceID          string                   `json:"source_id,omitempty"`
	AggregationMode   models.AggregationMode   `json:"aggregation_mode"`
	Deleted           bool                     `json:"deleted,omitempty"`
	Dirty             bool                     `json:"dirty,omitempty"`
	Version           int64                    `json:"version"`
	DisplayName       string                   `json:"display_name,omitempty"`
	DisplayNameSource models.DisplayNameSource `json:"display_name_source"`
	Starred           bool                     `json:"starred,omitempty"`
	Pinned            int                      `json:"pinned,omitempty"`
	Data              []models.DataRow         `json:"data,omitempty"`
}

type DeletedContact struct {
	ContactID int64     `json:"contact_id"`
	DeletedAt time.Time `json:"deleted_at"`
}

const selectContact = `
	SELECT _id, lookup, IFNULL(display_name, ''), IFNULL(display_name_alt, ''), display_name_source,
		IFNULL(name_raw_contact_id, 0), IFNULL(photo_id, 0), IFNULL(photo_file_id, ''),
		starred, pinned, has_phone_number, presence, IFNULL(status, ''), last_updated
	FROM contacts`

func scanContact(s interface{ Scan(...any) error }) (*ContactView, error) {
	var c ContactView
	err := s.Scan(&c.ID, &c.LookupKey, &c.DisplayName, &c.DisplayNameAlt, &c.DisplayNameSource,
		&c.NameRawContactID, &c.PhotoID, &c.PhotoFileID,
		&c.Starred, &c.Pinned, &c.HasPhoneNumber, &c.Presence, &c.Status, &c.LastUpdated)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

const selectRawContact = `
	SELECT r._id, IFNULL(r.contact_id, 0), a.account_name, a.account_type, a.data_set,
		IFNULL(r.sourceid, ''), r.aggregation_mode, r.deleted, r.dirty, r.version,
		IFNULL(r.display_name, ''), r.display_name_source, r.starred, r.pinned
	FROM raw_contacts r JOIN accounts a ON a._id = r.account_id`

func scanRawContact(s interface{ Scan(...any) error }) (*RawContactView, error) {
	var r RawContactView
	err := s.Scan(&r.ID, &r.ContactID, &r.Account.Name, &r.Account.Type, &r.Account.DataSet,
		&r.SourceID, &r.AggregationMode, &r.Deleted, &r.Dirty, &r.Version,
		&r.DisplayName, &r.DisplayNameSource, &r.Starred, &r.Pinned)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// attachData loads the data rows of every raw contact in views.
func attachData(ctx context.Context, q db.Querier, views []RawContactView) error {
	if len(views) == 0 {
		return nil
	}
	ids := make([]int64, len(views))
	index := make(map[int64]int, len(views))
	for i, v := range views {
		ids[i] = v.ID
		index[v.ID] = i
	}
	rows, err := datarow.ListForRawContacts(ctx, q, ids)
	if err != nil {
		return err
	}
	for _, row := range rows {
		i := index[row.RawContactID]
		views[i].Data = append(views[i].Data, *row)
	}
	return nil
}

func loadContact(ctx context.Context, q db.Querier, id int64) (*ContactView, error) {
	c, err := scanContact(q.QueryRowContext(ctx, selectContact+` WHERE _id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFoundError("contact", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load contact %d: %w", id, err)
	}

	rows, err := q.QueryContext(ctx, selectRawContact+` WHERE r.contact_id = ? AND r.deleted = 0 ORDER BY r._id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load members of contact %d: %w", id, err)
	}
	defer rows.Close()
	for rows.Next() {
		r, err := scanRawContact(rows)
		if err != nil {
			return nil, err
		}
		c.RawContacts = append(c.RawContacts, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := attachData(ctx, q, c.RawContacts); err != nil {
		return nil, err
	}
	return c, nil
}

// readDB waits for the read gate and returns the selected database.
func (p *Provider) readDB(ctx context.Context, profile bool) (*database, error) {
	if err := p.waitRead(ctx); err != nil {
		return nil, err
	}
	return p.database(profile), nil
}

// GetContact returns the contact with its members and their data rows.
func (p *Provider) GetContact(ctx context.Context, opts CallOptions, id int64) (*ContactView, error) {
	d, err := p.readDB(ctx, opts.Profile)
	if err != nil {
		return nil, err
	}
	return loadContact(ctx, d.session.DB(), id)
}

// ListContacts returns contacts in sort key order without members.
func (p *Provider) ListContacts(ctx context.Context, opts CallOptions, limit, offset int) ([]ContactView, error) {
	d, err := p.readDB(ctx, opts.Profile)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := d.session.DB().QueryContext(ctx, selectContact+`
		ORDER BY sort_key IS NULL, sort_key, _id LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list contacts: %w", err)
	}
	defer rows.Close()
	var out []ContactView
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// FindContacts searches the index and returns matching contacts best first.
func (p *Provider) FindContacts(ctx context.Context, opts CallOptions, query string, limit int) ([]ContactView, error) {
	d, err := p.readDB(ctx, opts.Profile)
	if err != nil {
		return nil, err
	}
	q := d.session.DB()
	ids, err := p.index.Search(ctx, q, query, limit)
	if err != nil {
		return nil, err
	}
	out := make([]ContactView, 0, len(ids))
	for _, id := range ids {
		c, err := loadContact(ctx, q, id)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, nil
}

// LookupContact resolves a lookup key to its current contact. The profile
// key always resolves against the profile database.
func (p *Provider) LookupContact(ctx context.Context, key string) (*ContactView, error) {
	d, err := p.readDB(ctx, lookupkey.IsProfile(key))
	if err != nil {
		return nil, err
	}
	q := d.session.DB()
	id, err := d.agg.LookupContactIDByLookupKey(ctx, q, key)
	if err != nil {
		return nil, err
	}
	if id < 0 {
		return nil, fmt.Errorf("lookup key %q: %w", key, models.ErrNotFound)
	}
	return loadContact(ctx, q, id)
}

// RawContact returns one raw contact with its data rows, including deleted ones.
func (p *Provider) RawContact(ctx context.Context, opts CallOptions, id int64) (*RawContactView, error) {
	d, err := p.readDB(ctx, opts.Profile)
	if err != nil {
		return nil, err
	}
	q := d.session.DB()
	r, err := scanRawContact(q.QueryRowContext(ctx, selectRawContact+` WHERE r._id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFoundError("raw contact", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load raw contact %d: %w", id, err)
	}
	views := []RawContactView{*r}
	if err := attachData(ctx, q, views); err != nil {
		return nil, err
	}
	return &views[0], nil
}

// RawContactsByAccount returns the account's live raw contacts with their
// data rows, in id order.
func (p *Provider) RawContactsByAccount(ctx context.Context, opts CallOptions, acct models.Account) ([]RawContactView, error) {
	d, err := p.readDB(ctx, opts.Profile)
	if err != nil {
		return nil, err
	}
	q := d.session.DB()
	accountID, err := d.accounts.FindAccount(ctx, q, acct)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, selectRawContact+` WHERE r.account_id = ? AND r.deleted = 0 ORDER BY r._id`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list raw contacts of %s: %w", acct, err)
	}
	defer rows.Close()
	var out []RawContactView
	for rows.Next() {
		r, err := scanRawContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := attachData(ctx, q, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Suggestions returns contacts that may be the same person as contactID.
// max <= 0 uses the configured default.
func (p *Provider) Suggestions(ctx context.Context, opts CallOptions, contactID int64, max int, filter aggregation.SuggestionFilter) ([]models.Suggestion, error) {
	d, err := p.readDB(ctx, opts.Profile)
	if err != nil {
		return nil, err
	}
	if max <= 0 {
		max = p.opts.MaxSuggestions
	}
	return d.agg.QueryAggregationSuggestions(ctx, d.session.DB(), contactID, max, filter)
}

// DeletedContactsSince lists contacts the engine removed after since, oldest first.
func (p *Provider) DeletedContactsSince(ctx context.Context, opts CallOptions, since time.Time) ([]DeletedContact, error) {
	d, err := p.readDB(ctx, opts.Profile)
	if err != nil {
		return nil, err
	}
	rows, err := d.session.DB().QueryContext(ctx, `
		SELECT contact_id, deleted_at FROM deleted_contacts WHERE deleted_at > ? ORDER BY deleted_at, contact_id
	`, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list deleted contacts: %w", err)
	}
	defer rows.Close()
	var out []DeletedContact
	for rows.Next() {
		var dc DeletedContact
		if err := rows.Scan(&dc.ContactID, &dc.DeletedAt); err != nil {
			return nil, err
		}
		out = append(out, dc)
	}
	return out, rows.Err()
}

// SetSyncState stores an opaque sync adapter blob for the account. It is
// written at commit with the rest of the transaction.
func (p *Provider) SetSyncState(ctx context.Context, opts CallOptions, acct models.Account, state []byte) error {
	return p.inWrite(ctx, opts, func(w *writeTx) error {
		id, err := w.d.accounts.EnsureAccount(ctx, w.tx, acct)
		if err != nil {
			return err
		}
		w.d.tc.SyncStateUpdated(id, state)
		return nil
	})
}

// GetSyncState returns nil when the account has no stored state.
func (p *Provider) GetSyncState(ctx context.Context, opts CallOptions, acct models.Account) ([]byte, error) {
	d, err := p.readDB(ctx, opts.Profile)
	if err != nil {
		return nil, err
	}
	q := d.session.DB()
	id, err := d.accounts.FindAccount(ctx, q, acct)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var state []byte
	err = q.QueryRowContext(ctx, `SELECT data FROM sync_state WHERE account_id = ?`, id).Scan(&state)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sync state: %w", err)
	}
	return state, nil
}

func (p *Provider) ListDirectories(ctx context.Context) ([]models.Directory, error) {
	if err := p.waitRead(ctx); err != nil {
		return nil, err
	}
	return p.dirs.List(ctx, p.contacts.session.DB())
}

// ResolveDirectory returns the directory with id, or false when unknown.
func (p *Provider) ResolveDirectory(ctx context.Context, id int64) (models.Directory, bool, error) {
	if err := p.waitRead(ctx); err != nil {
		return models.Directory{}, false, err
	}
	return p.dirs.Resolve(ctx, p.contacts.session.DB(), id)
}

// RescanDirectories re-reads every package, or only packageName when set.
func (p *Provider) RescanDirectories(ctx context.Context, packageName string) (directory.ScanResult, error) {
	var res directory.ScanResult
	err := p.inWrite(ctx, CallOptions{}, func(w *writeTx) error {
		var err error
		if packageName == "" {
			res, err = p.dirs.Rescan(ctx, w.tx)
		} else {
			res, err = p.dirs.RescanPackage(ctx, w.tx, packageName)
		}
		return err
	})
	if err != nil {
		p.dirs.Invalidate()
	}
	return res, err
}

func (p *Provider) ListAccounts(ctx context.Context, opts CallOptions) ([]directory.AccountEntry, error) {
	d, err := p.readDB(ctx, opts.Profile)
	if err != nil {
		return nil, err
	}
	return d.accounts.List(ctx, d.session.DB())
}

// EnsureGroup returns the id of the account's group with sourceID, creating it when missing.
func (p *Provider) EnsureGroup(ctx context.Context, opts CallOptions, acct models.Account, sourceID, title string) (int64, error) {
	var id int64
	err := p.inWrite(ctx, opts, func(w *writeTx) error {
		accountID, err := w.d.accounts.EnsureAccount(ctx, w.tx, acct)
		if err != nil {
			return err
		}
		id, err = w.d.groups.EnsureGroup(ctx, w.tx, accountID, sourceID, title)
		return err
	})
	return id, err
}

func (p *Provider) ListGroups(ctx context.Context, opts CallOptions, acct models.Account) ([]models.Group, error) {
	d, err := p.readDB(ctx, opts.Profile)
	if err != nil {
		return nil, err
	}
	q := d.session.DB()
	accountID, err := d.accounts.FindAccount(ctx, q, acct)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d.groups.List(ctx, q, accountID)
}

// RecordSyncRun appends a run to the account's sync history.
func (p *Provider) RecordSyncRun(ctx context.Context, opts CallOptions, acct models.Account, run db.SyncRun) error {
	return p.inWrite(ctx, opts, func(w *writeTx) error {
		id, err := w.d.accounts.EnsureAccount(ctx, w.tx, acct)
		if err != nil {
			return err
		}
		run.AccountID = id
		return db.InsertSyncRun(ctx, w.tx, &run)
	})
}

// SyncRuns returns the account's sync history, newest first.
func (p *Provider) SyncRuns(ctx context.Context, opts CallOptions, acct models.Account, limit int) ([]db.SyncRun, error) {
	d, err := p.readDB(ctx, opts.Profile)
	if err != nil {
		return nil, err
	}
	q := d.session.DB()
	id, err := d.accounts.FindAccount(ctx, q, acct)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return db.ListSyncRuns(ctx, q, id, limit)
}

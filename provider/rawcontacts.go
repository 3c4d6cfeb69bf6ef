// ABOUTME: Raw contact operations: insert, update, soft and hard delete
// ABOUTME: Each marks the aggregation engine so placement is decided once at commit
package provider

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harperreed/roster/models"
)

// NewRawContact is the input for InsertRawContact. Data rows are inserted
// with it in the same transaction.
type NewRawContact struct {
	Account         models.Account
	SourceID        string
	AggregationMode models.AggregationMode
	Starred         bool
	Pinned          int
	Data            []models.DataRow
}

// RawContactPatch changes the set fields of a raw contact.
type RawContactPatch struct {
	SourceID        *string
	AggregationMode *models.AggregationMode
	Starred         *bool
	Pinned          *int
	// Dirty may only be changed by sync adapters.
	Dirty *bool
}

type rawContactRow struct {
	ID        int64
	AccountID int64
	Account   models.Account
	SourceID  string
	ContactID int64
	Mode      models.AggregationMode
	Deleted   bool
}

func (w *writeTx) loadRawContact(ctx context.Context, id int64) (*rawContactRow, error) {
	var (
		r         rawContactRow
		sourceID  sql.NullString
		contactID sql.NullInt64
		deleted   int
	)
	err := w.tx.QueryRowContext(ctx, `
		SELECT r._id, r.account_id, a.account_name, a.account_type, a.data_set,
			r.sourceid, r.contact_id, r.aggregation_mode, r.deleted
		FROM raw_contacts r JOIN accounts a ON a._id = r.account_id
		WHERE r._id = ?
	`, id).Scan(&r.ID, &r.AccountID, &r.Account.Name, &r.Account.Type, &r.Account.DataSet,
		&sourceID, &contactID, &r.Mode, &deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load raw contact %d: %w", id, err)
	}
	r.SourceID = sourceID.String
	r.ContactID = contactID.Int64
	r.Deleted = deleted != 0
	return &r, nil
}

func (w *writeTx) checkWritable(ctx context.Context, accountID int64) error {
	if w.opts.SyncAdapter {
		return nil
	}
	ok, err := w.d.accounts.IsWritable(ctx, w.tx, accountID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("account %d: %w", accountID, models.ErrReadOnlyAccount)
	}
	return nil
}

func (w *writeTx) insertRawContact(ctx context.Context, in NewRawContact) (int64, error) {
	if !in.AggregationMode.Valid() {
		return 0, models.ValidationErrorf("invalid aggregation mode %d", in.AggregationMode)
	}
	accountID, err := w.d.accounts.EnsureAccount(ctx, w.tx, in.Account)
	if err != nil {
		return 0, err
	}
	if err := w.checkWritable(ctx, accountID); err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	res, err := w.tx.ExecContext(ctx, `
		INSERT INTO raw_contacts (account_id, sourceid, aggregation_mode, starred, pinned, dirty, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, accountID, nullable(in.SourceID), in.AggregationMode, in.Starred, in.Pinned, !w.opts.SyncAdapter, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to insert raw contact: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	w.d.tc.RawContactInserted(id, accountID)
	w.d.tc.InvalidateSearchIndexForRawContact(id)
	w.d.agg.MarkNewForAggregation(id, in.AggregationMode)

	for i := range in.Data {
		row := in.Data[i]
		row.ID = 0
		row.RawContactID = id
		if _, err := w.d.rows.For(row.MimeType).Insert(ctx, w.tx, w.d.tc, &row); err != nil {
			return 0, err
		}
	}
	return id, nil
}

func (w *writeTx) updateRawContact(ctx context.Context, id int64, patch RawContactPatch) (int, error) {
	r, err := w.loadRawContact(ctx, id)
	if err != nil || r == nil || r.Deleted {
		return 0, err
	}
	if err := w.checkWritable(ctx, r.AccountID); err != nil {
		return 0, err
	}
	if patch.Dirty != nil && !w.opts.SyncAdapter {
		return 0, models.ValidationError("only sync adapters may change the dirty flag")
	}

	var (
		sets     []string
		args     []any
		remark   bool
		newMode  = r.Mode
		aggStale bool
	)
	if patch.SourceID != nil && *patch.SourceID != r.SourceID {
		sets = append(sets, "sourceid = ?")
		args = append(args, nullable(*patch.SourceID))
		aggStale = true
	}
	if patch.AggregationMode != nil && *patch.AggregationMode != r.Mode {
		if !patch.AggregationMode.Valid() {
			return 0, models.ValidationErrorf("invalid aggregation mode %d", *patch.AggregationMode)
		}
		newMode = *patch.AggregationMode
		sets = append(sets, "aggregation_mode = ?")
		args = append(args, newMode)
		remark = true
	}
	if patch.Starred != nil {
		sets = append(sets, "starred = ?")
		args = append(args, *patch.Starred)
		aggStale = true
	}
	if patch.Pinned != nil {
		sets = append(sets, "pinned = ?")
		args = append(args, *patch.Pinned)
		aggStale = true
	}
	if patch.Dirty != nil {
		sets = append(sets, "dirty = ?")
		args = append(args, *patch.Dirty)
	}
	if len(sets) == 0 {
		return 0, nil
	}

	args = append(args, id)
	query := "UPDATE raw_contacts SET " + strings.Join(sets, ", ") + " WHERE _id = ?"
	if _, err := w.tx.ExecContext(ctx, query, args...); err != nil {
		return 0, fmt.Errorf("failed to update raw contact %d: %w", id, err)
	}

	w.d.tc.RawContactUpdated(id)
	if patch.Dirty == nil {
		w.markDirty(id)
	}
	if remark {
		if err := w.d.agg.MarkForAggregation(ctx, w.tx, id, newMode, false); err != nil {
			return 0, err
		}
	} else if aggStale {
		w.d.tc.MarkAggregateStale(id)
	}
	return 1, nil
}

// deleteRawContact soft-deletes so the sync adapter can propagate the
// removal, unless the caller is the sync adapter or the raw contact never
// belonged to a synced account; those are removed outright.
func (w *writeTx) deleteRawContact(ctx context.Context, id int64) (int, error) {
	r, err := w.loadRawContact(ctx, id)
	if err != nil || r == nil {
		return 0, err
	}
	if err := w.checkWritable(ctx, r.AccountID); err != nil {
		return 0, err
	}
	if w.opts.SyncAdapter || r.Account.IsLocal() {
		return 1, w.purgeRawContact(ctx, r)
	}
	if r.Deleted {
		return 0, nil
	}

	_, err = w.tx.ExecContext(ctx, `
		UPDATE raw_contacts SET deleted = 1, dirty = 1, aggregation_mode = ? WHERE _id = ?
	`, models.AggregationModeDisabled, id)
	if err != nil {
		return 0, fmt.Errorf("failed to delete raw contact %d: %w", id, err)
	}
	w.d.tc.RawContactUpdated(id)
	if err := w.d.agg.MarkForAggregation(ctx, w.tx, id, models.AggregationModeDisabled, false); err != nil {
		return 0, err
	}
	return 1, nil
}

// purgeRawContact removes a raw contact and everything hanging off it.
func (w *writeTx) purgeRawContact(ctx context.Context, r *rawContactRow) error {
	stmts := []struct {
		query string
		args  []any
	}{
		{`DELETE FROM name_lookup WHERE raw_contact_id = ?`, []any{r.ID}},
		{`DELETE FROM phone_lookup WHERE raw_contact_id = ?`, []any{r.ID}},
		{`DELETE FROM presence WHERE raw_contact_id = ?`, []any{r.ID}},
		{`DELETE FROM data WHERE raw_contact_id = ?`, []any{r.ID}},
		{`DELETE FROM agg_exceptions WHERE raw_contact_id1 = ? OR raw_contact_id2 = ?`, []any{r.ID, r.ID}},
		{`DELETE FROM raw_contacts WHERE _id = ?`, []any{r.ID}},
	}
	for _, st := range stmts {
		if _, err := w.tx.ExecContext(ctx, st.query, st.args...); err != nil {
			return fmt.Errorf("failed to purge raw contact %d: %w", r.ID, err)
		}
	}
	w.d.agg.InvalidateAggregationExceptionCache()
	w.d.agg.ContactChanged(r.ContactID)
	w.d.tc.InvalidateSearchIndexForContact(r.ContactID)
	return nil
}

func (p *Provider) InsertRawContact(ctx context.Context, opts CallOptions, in NewRawContact) (int64, error) {
	var id int64
	err := p.inWrite(ctx, opts, func(w *writeTx) error {
		var err error
		id, err = w.insertRawContact(ctx, in)
		return err
	})
	return id, err
}

// UpdateRawContact returns the number of raw contacts changed: 0 when the raw
// contact does not exist or nothing changed.
func (p *Provider) UpdateRawContact(ctx context.Context, opts CallOptions, id int64, patch RawContactPatch) (int, error) {
	var n int
	err := p.inWrite(ctx, opts, func(w *writeTx) error {
		var err error
		n, err = w.updateRawContact(ctx, id, patch)
		return err
	})
	return n, err
}

func (p *Provider) DeleteRawContact(ctx context.Context, opts CallOptions, id int64) (int, error) {
	var n int
	err := p.inWrite(ctx, opts, func(w *writeTx) error {
		var err error
		n, err = w.deleteRawContact(ctx, id)
		return err
	})
	return n, err
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

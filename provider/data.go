// ABOUTME: Data row operations routed to the mimetype handlers
// ABOUTME: Also presence updates and the display-name override for a contact
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/harperreed/roster/datarow"
	"github.com/harperreed/roster/models"
)

// DataPatch changes a data row. Columns maps column index to its new value;
// an empty value clears the column.
type DataPatch struct {
	Columns        map[int]string
	IsPrimary      *bool
	IsSuperPrimary *bool
	Blob           []byte
	ClearBlob      bool
}

func (w *writeTx) ownerFor(ctx context.Context, rawContactID int64) (*rawContactRow, error) {
	r, err := w.loadRawContact(ctx, rawContactID)
	if err != nil {
		return nil, err
	}
	if r == nil || r.Deleted {
		return nil, models.ValidationErrorf("raw contact %d does not exist", rawContactID)
	}
	if err := w.checkWritable(ctx, r.AccountID); err != nil {
		return nil, err
	}
	return r, nil
}

func (w *writeTx) insertData(ctx context.Context, row models.DataRow) (int64, error) {
	if _, err := w.ownerFor(ctx, row.RawContactID); err != nil {
		return 0, err
	}
	row.ID = 0
	id, err := w.d.rows.For(row.MimeType).Insert(ctx, w.tx, w.d.tc, &row)
	if err != nil {
		return 0, err
	}
	w.markDirty(row.RawContactID)
	return id, nil
}

// loadData returns nil when the row does not exist.
func (w *writeTx) loadData(ctx context.Context, id int64) (*models.DataRow, error) {
	row, err := datarow.Load(ctx, w.tx, id)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil
	}
	return row, err
}

func (w *writeTx) updateData(ctx context.Context, id int64, patch DataPatch) (int, error) {
	existing, err := w.loadData(ctx, id)
	if err != nil || existing == nil {
		return 0, err
	}
	if _, err := w.ownerFor(ctx, existing.RawContactID); err != nil {
		return 0, err
	}

	next := *existing
	for col, v := range patch.Columns {
		if col < 0 || col >= models.NumDataColumns {
			return 0, models.ValidationErrorf("data column %d out of range", col)
		}
		next.Data[col] = v
	}
	if patch.IsPrimary != nil {
		next.IsPrimary = *patch.IsPrimary
	}
	if patch.IsSuperPrimary != nil {
		next.IsSuperPrimary = *patch.IsSuperPrimary
	}
	switch {
	case patch.ClearBlob:
		next.Blob = nil
		next.Data[models.PhotoFileID] = ""
	case patch.Blob != nil:
		next.Blob = patch.Blob
		next.Data[models.PhotoFileID] = ""
	}

	changed, err := w.d.rows.For(existing.MimeType).Update(ctx, w.tx, w.d.tc, &next, existing)
	if err != nil || !changed {
		return 0, err
	}
	w.markDirty(existing.RawContactID)
	return 1, nil
}

func (w *writeTx) deleteData(ctx context.Context, id int64) (int, error) {
	existing, err := w.loadData(ctx, id)
	if err != nil || existing == nil {
		return 0, err
	}
	if _, err := w.ownerFor(ctx, existing.RawContactID); err != nil {
		return 0, err
	}
	n, err := w.d.rows.For(existing.MimeType).Delete(ctx, w.tx, w.d.tc, existing)
	if err != nil {
		return 0, err
	}
	w.markDirty(existing.RawContactID)
	return n, nil
}

func (p *Provider) InsertData(ctx context.Context, opts CallOptions, row models.DataRow) (int64, error) {
	var id int64
	err := p.inWrite(ctx, opts, func(w *writeTx) error {
		var err error
		id, err = w.insertData(ctx, row)
		return err
	})
	return id, err
}

// UpdateData returns 1 when the row changed and 0 when it is missing or the
// patch changed nothing.
func (p *Provider) UpdateData(ctx context.Context, opts CallOptions, id int64, patch DataPatch) (int, error) {
	var n int
	err := p.inWrite(ctx, opts, func(w *writeTx) error {
		var err error
		n, err = w.updateData(ctx, id, patch)
		return err
	})
	return n, err
}

func (p *Provider) DeleteData(ctx context.Context, opts CallOptions, id int64) (int, error) {
	var n int
	err := p.inWrite(ctx, opts, func(w *writeTx) error {
		var err error
		n, err = w.deleteData(ctx, id)
		return err
	})
	return n, err
}

// SetPresence records availability for the data row (usually an identity or
// email) it was reported against.
func (p *Provider) SetPresence(ctx context.Context, opts CallOptions, dataID int64, mode models.PresenceMode, status string) (int, error) {
	if !mode.Valid() {
		return 0, models.ValidationErrorf("invalid presence mode %d", mode)
	}
	var n int
	err := p.inWrite(ctx, opts, func(w *writeTx) error {
		row, err := w.loadData(ctx, dataID)
		if err != nil || row == nil {
			return err
		}
		_, err = w.tx.ExecContext(ctx, `
			INSERT INTO presence (data_id, raw_contact_id, mode, status, status_ts) VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(data_id) DO UPDATE SET mode = excluded.mode, status = excluded.status, status_ts = excluded.status_ts
		`, dataID, row.RawContactID, mode, nullable(status), time.Now().UTC())
		if err != nil {
			return fmt.Errorf("failed to set presence for data row %d: %w", dataID, err)
		}
		w.d.tc.MarkAggregateStale(row.RawContactID)
		n = 1
		return nil
	})
	return n, err
}

// SetNameRawContact makes rawContactID the display name source of its
// contact, overriding the automatic choice.
func (p *Provider) SetNameRawContact(ctx context.Context, opts CallOptions, contactID, rawContactID int64) error {
	return p.inWrite(ctx, opts, func(w *writeTx) error {
		r, err := w.loadRawContact(ctx, rawContactID)
		if err != nil {
			return err
		}
		if r == nil || r.Deleted || r.ContactID != contactID {
			return models.ValidationErrorf("raw contact %d is not a member of contact %d", rawContactID, contactID)
		}
		if _, err := w.tx.ExecContext(ctx, `UPDATE raw_contacts SET name_verified = 0 WHERE contact_id = ?`, contactID); err != nil {
			return fmt.Errorf("failed to clear verified names: %w", err)
		}
		if _, err := w.tx.ExecContext(ctx, `UPDATE raw_contacts SET name_verified = 1 WHERE _id = ?`, rawContactID); err != nil {
			return fmt.Errorf("failed to verify name: %w", err)
		}
		w.d.agg.ContactChanged(contactID)
		return nil
	})
}

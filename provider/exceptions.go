// ABOUTME: Aggregation exception writes and listing
// ABOUTME: Both raw contacts are forced through the heuristic at commit after a change
package provider

import (
	"context"
	"fmt"

	"github.com/harperreed/roster/models"
)

func (w *writeTx) setException(ctx context.Context, typ models.ExceptionType, id1, id2 int64) error {
	if !typ.Valid() {
		return models.InvalidExceptionError(fmt.Sprintf("unknown exception type %d", typ))
	}
	if id1 <= 0 || id2 <= 0 {
		return models.InvalidExceptionError("both raw contact ids are required")
	}
	if id1 == id2 {
		return models.InvalidExceptionError("an exception needs two different raw contacts")
	}

	modes := make(map[int64]models.AggregationMode, 2)
	for _, id := range []int64{id1, id2} {
		r, err := w.loadRawContact(ctx, id)
		if err != nil {
			return err
		}
		if r == nil || r.Deleted {
			return models.InvalidExceptionError(fmt.Sprintf("raw contact %d does not exist", id))
		}
		modes[id] = r.Mode
	}

	e := models.AggregationException{Type: typ, RawContactID1: id1, RawContactID2: id2}.Canonical()
	var err error
	if typ == models.ExceptionAutomatic {
		_, err = w.tx.ExecContext(ctx, `
			DELETE FROM agg_exceptions WHERE raw_contact_id1 = ? AND raw_contact_id2 = ?
		`, e.RawContactID1, e.RawContactID2)
	} else {
		_, err = w.tx.ExecContext(ctx, `
			INSERT INTO agg_exceptions (type, raw_contact_id1, raw_contact_id2) VALUES (?, ?, ?)
			ON CONFLICT(raw_contact_id1, raw_contact_id2) DO UPDATE SET type = excluded.type
		`, e.Type, e.RawContactID1, e.RawContactID2)
	}
	if err != nil {
		return fmt.Errorf("failed to write aggregation exception: %w", err)
	}

	w.d.agg.InvalidateAggregationExceptionCache()
	for _, id := range []int64{e.RawContactID1, e.RawContactID2} {
		if err := w.d.agg.MarkForAggregation(ctx, w.tx, id, modes[id], true); err != nil {
			return err
		}
	}
	return nil
}

// SetAggregationException records a rule for a pair of raw contacts.
// ExceptionAutomatic removes any rule and returns the pair to the heuristic.
func (p *Provider) SetAggregationException(ctx context.Context, opts CallOptions, typ models.ExceptionType, rawContactID1, rawContactID2 int64) error {
	return p.inWrite(ctx, opts, func(w *writeTx) error {
		return w.setException(ctx, typ, rawContactID1, rawContactID2)
	})
}

func (p *Provider) ListAggregationExceptions(ctx context.Context, opts CallOptions) ([]models.AggregationException, error) {
	if err := p.waitRead(ctx); err != nil {
		return nil, err
	}
	rows, err := p.database(opts.Profile).session.DB().QueryContext(ctx, `
		SELECT _id, type, raw_contact_id1, raw_contact_id2 FROM agg_exceptions ORDER BY raw_contact_id1, raw_contact_id2
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list aggregation exceptions: %w", err)
	}
	defer rows.Close()
	var out []models.AggregationException
	for rows.Next() {
		var e models.AggregationException
		if err := rows.Scan(&e.ID, &e.Type, &e.RawContactID1, &e.RawContactID2); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// members returns the live raw contact ids of contactID in id order.
func (w *writeTx) members(ctx context.Context, contactID int64) ([]int64, error) {
	rows, err := w.tx.QueryContext(ctx, `
		SELECT _id FROM raw_contacts WHERE contact_id = ? AND deleted = 0 ORDER BY _id
	`, contactID)
	if err != nil {
		return nil, fmt.Errorf("failed to load members of contact %d: %w", contactID, err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, models.NotFoundError("contact", contactID)
	}
	return ids, nil
}

// JoinContacts records keep-together rules between every member of the two
// contacts and returns the contact they end up in.
func (p *Provider) JoinContacts(ctx context.Context, opts CallOptions, contactID1, contactID2 int64) (int64, error) {
	if contactID1 == contactID2 {
		return 0, models.ValidationError("cannot join a contact with itself")
	}
	var anchor int64
	err := p.inWrite(ctx, opts, func(w *writeTx) error {
		a, err := w.members(ctx, contactID1)
		if err != nil {
			return err
		}
		b, err := w.members(ctx, contactID2)
		if err != nil {
			return err
		}
		for _, id1 := range a {
			for _, id2 := range b {
				if err := w.setException(ctx, models.ExceptionKeepTogether, id1, id2); err != nil {
					return err
				}
			}
		}
		anchor = a[0]
		return nil
	})
	if err != nil {
		return 0, err
	}
	r, err := p.RawContact(ctx, opts, anchor)
	if err != nil {
		return 0, err
	}
	return r.ContactID, nil
}

// SplitContact records keep-separate rules between every pair of the
// contact's members. It returns the resulting contact of each member in
// member id order.
func (p *Provider) SplitContact(ctx context.Context, opts CallOptions, contactID int64) ([]int64, error) {
	var ids []int64
	err := p.inWrite(ctx, opts, func(w *writeTx) error {
		var err error
		ids, err = w.members(ctx, contactID)
		if err != nil {
			return err
		}
		if len(ids) < 2 {
			return models.ValidationErrorf("contact %d has a single member", contactID)
		}
		for i := range ids {
			for j := i + 1; j < len(ids); j++ {
				if err := w.setException(ctx, models.ExceptionKeepSeparate, ids[i], ids[j]); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	out := make([]int64, len(ids))
	for i, id := range ids {
		r, err := p.RawContact(ctx, opts, id)
		if err != nil {
			return nil, err
		}
		out[i] = r.ContactID
	}
	return out, nil
}

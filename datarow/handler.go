// ABOUTME: Shared insert, update and delete flow for data rows
// ABOUTME: Kind-specific behaviour plugs in through the hooks interface
package datarow

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/harperreed/roster/db"
	"github.com/harperreed/roster/models"
	"github.com/harperreed/roster/txn"
)

// owner is the raw contact a data row belongs to.
type owner struct {
	ID        int64
	AccountID int64
	ContactID int64
	Mode      models.AggregationMode
}

// hooks customise the shared flow for one kind.
type hooks interface {
	validate(row *models.DataRow) error
	// normalize fills derived columns before the row is written. existing is
	// nil on insert.
	normalize(ctx context.Context, q db.Querier, o *owner, row, existing *models.DataRow) error
	// derive writes lookup rows for a stored row.
	derive(ctx context.Context, q db.Querier, row *models.DataRow) error
}

type rowHandler struct {
	kind  Kind
	env   *Env
	hooks hooks

	affectsName      bool
	affectsMatching  bool
	affectsAggregate bool
}

func (h *rowHandler) Kind() Kind            { return h.kind }
func (h *rowHandler) AffectsMatching() bool { return h.affectsMatching }

func (h *rowHandler) Validate(row *models.DataRow) error {
	if row == nil {
		return models.ValidationError("data row is required")
	}
	if row.RawContactID <= 0 {
		return models.ValidationError("data row needs a raw contact id")
	}
	if strings.TrimSpace(row.MimeType) == "" {
		return models.ValidationError("data row needs a mimetype")
	}
	return h.hooks.validate(row)
}

func (h *rowHandler) Insert(ctx context.Context, q db.Querier, tc *txn.Context, row *models.DataRow) (int64, error) {
	if err := h.Validate(row); err != nil {
		return 0, err
	}
	o, err := loadOwner(ctx, q, row.RawContactID)
	if err != nil {
		return 0, err
	}
	if err := h.hooks.normalize(ctx, q, o, row, nil); err != nil {
		return 0, err
	}
	if row.IsSuperPrimary {
		row.IsPrimary = true
	}
	if err := applyPrimary(ctx, q, o, row); err != nil {
		return 0, err
	}

	args := []any{row.RawContactID, row.MimeType, boolInt(row.IsPrimary), boolInt(row.IsSuperPrimary)}
	for _, v := range row.Data {
		args = append(args, nullable(v))
	}
	args = append(args, row.Blob)
	res, err := q.ExecContext(ctx, `
		INSERT INTO data (raw_contact_id, mimetype, is_primary, is_super_primary,
			data1, data2, data3, data4, data5, data6, data7, data8, data9, data10, data15)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert %s row: %w", row.MimeType, err)
	}
	row.ID, err = res.LastInsertId()
	if err != nil {
		return 0, err
	}

	if err := h.hooks.derive(ctx, q, row); err != nil {
		return 0, err
	}
	if err := h.changed(ctx, q, tc, o); err != nil {
		return 0, err
	}
	return row.ID, nil
}

func (h *rowHandler) Update(ctx context.Context, q db.Querier, tc *txn.Context, row, existing *models.DataRow) (bool, error) {
	row.ID = existing.ID
	row.RawContactID = existing.RawContactID
	row.MimeType = existing.MimeType
	if err := h.Validate(row); err != nil {
		return false, err
	}
	o, err := loadOwner(ctx, q, row.RawContactID)
	if err != nil {
		return false, err
	}
	if err := h.hooks.normalize(ctx, q, o, row, existing); err != nil {
		return false, err
	}
	if row.IsSuperPrimary {
		row.IsPrimary = true
	}
	if sameContent(row, existing) {
		return false, nil
	}
	if err := applyPrimary(ctx, q, o, row); err != nil {
		return false, err
	}

	args := []any{boolInt(row.IsPrimary), boolInt(row.IsSuperPrimary)}
	for _, v := range row.Data {
		args = append(args, nullable(v))
	}
	args = append(args, row.Blob, row.ID)
	_, err = q.ExecContext(ctx, `
		UPDATE data SET is_primary = ?, is_super_primary = ?,
			data1 = ?, data2 = ?, data3 = ?, data4 = ?, data5 = ?,
			data6 = ?, data7 = ?, data8 = ?, data9 = ?, data10 = ?, data15 = ?,
			data_version = data_version + 1
		WHERE _id = ?
	`, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update data row %d: %w", row.ID, err)
	}
	row.Version = existing.Version + 1

	if err := removeDerived(ctx, q, row.ID); err != nil {
		return false, err
	}
	if err := h.hooks.derive(ctx, q, row); err != nil {
		return false, err
	}
	if err := h.changed(ctx, q, tc, o); err != nil {
		return false, err
	}
	return true, nil
}

func (h *rowHandler) Delete(ctx context.Context, q db.Querier, tc *txn.Context, existing *models.DataRow) (int, error) {
	o, err := loadOwner(ctx, q, existing.RawContactID)
	if err != nil {
		return 0, err
	}
	if err := removeDerived(ctx, q, existing.ID); err != nil {
		return 0, err
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM presence WHERE data_id = ?`, existing.ID); err != nil {
		return 0, fmt.Errorf("failed to delete presence of data row %d: %w", existing.ID, err)
	}
	res, err := q.ExecContext(ctx, `DELETE FROM data WHERE _id = ?`, existing.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete data row %d: %w", existing.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := h.changed(ctx, q, tc, o); err != nil {
		return 0, err
	}
	return int(n), nil
}

// changed records the side effects of a data row write on its raw contact.
func (h *rowHandler) changed(ctx context.Context, q db.Querier, tc *txn.Context, o *owner) error {
	tc.RawContactUpdated(o.ID)
	tc.InvalidateSearchIndexForRawContact(o.ID)

	if h.affectsName {
		if err := UpdateRawContactDisplayName(ctx, q, h.env, o.ID); err != nil {
			return err
		}
	}
	if h.affectsMatching && h.env.Aggregation != nil {
		if err := h.env.Aggregation.MarkForAggregation(ctx, q, o.ID, o.Mode, false); err != nil {
			return err
		}
		return nil
	}
	tc.MarkAggregateStale(o.ID)
	return nil
}

func loadOwner(ctx context.Context, q db.Querier, rawContactID int64) (*owner, error) {
	var (
		o         owner
		contactID sql.NullInt64
		deleted   int
	)
	err := q.QueryRowContext(ctx, `
		SELECT _id, account_id, contact_id, aggregation_mode, deleted
		FROM raw_contacts WHERE _id = ?
	`, rawContactID).Scan(&o.ID, &o.AccountID, &contactID, &o.Mode, &deleted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ValidationErrorf("raw contact %d does not exist", rawContactID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load raw contact %d: %w", rawContactID, err)
	}
	if deleted != 0 {
		return nil, models.ValidationErrorf("raw contact %d is deleted", rawContactID)
	}
	o.ContactID = contactID.Int64
	return &o, nil
}

// applyPrimary clears the flags row is about to take over. Super-primary is
// unique per mimetype within the contact, primary within the raw contact.
func applyPrimary(ctx context.Context, q db.Querier, o *owner, row *models.DataRow) error {
	if row.IsSuperPrimary {
		_, err := q.ExecContext(ctx, `
			UPDATE data SET is_super_primary = 0
			WHERE mimetype = ? AND _id != ? AND is_super_primary = 1
			AND raw_contact_id IN (
				SELECT _id FROM raw_contacts
				WHERE _id = ? OR (contact_id IS NOT NULL AND contact_id = ?)
			)
		`, row.MimeType, row.ID, o.ID, o.ContactID)
		if err != nil {
			return fmt.Errorf("failed to clear super primary: %w", err)
		}
	}
	if row.IsPrimary {
		_, err := q.ExecContext(ctx, `
			UPDATE data SET is_primary = 0
			WHERE mimetype = ? AND raw_contact_id = ? AND _id != ? AND is_primary = 1
		`, row.MimeType, o.ID, row.ID)
		if err != nil {
			return fmt.Errorf("failed to clear primary: %w", err)
		}
	}
	return nil
}

func removeDerived(ctx context.Context, q db.Querier, dataID int64) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM name_lookup WHERE data_id = ?`, dataID); err != nil {
		return fmt.Errorf("failed to clear name lookups of data row %d: %w", dataID, err)
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM phone_lookup WHERE data_id = ?`, dataID); err != nil {
		return fmt.Errorf("failed to clear phone lookups of data row %d: %w", dataID, err)
	}
	return nil
}

func insertNameLookup(ctx context.Context, q db.Querier, row *models.DataRow, name string, typ models.NameLookupType) error {
	if name == "" {
		return nil
	}
	_, err := q.ExecContext(ctx, `
		INSERT OR IGNORE INTO name_lookup (data_id, raw_contact_id, normalized_name, name_type)
		VALUES (?, ?, ?, ?)
	`, row.ID, row.RawContactID, name, typ)
	if err != nil {
		return fmt.Errorf("failed to insert name lookup: %w", err)
	}
	return nil
}

func sameContent(a, b *models.DataRow) bool {
	return a.Data == b.Data &&
		a.IsPrimary == b.IsPrimary &&
		a.IsSuperPrimary == b.IsSuperPrimary &&
		bytes.Equal(a.Blob, b.Blob)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// ABOUTME: SQL helpers the aggregation engine uses to read and move raw contacts
// ABOUTME: Every helper takes the caller's Querier so it runs inside the write transaction
package aggregation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/harperreed/roster/db"
	"github.com/harperreed/roster/models"
)

// rawState is the slice of a raw contact the engine decides on.
type rawState struct {
	ID        int64
	AccountID int64
	ContactID int64
	Mode      models.AggregationMode
	Deleted   bool
}

type member struct {
	ID        int64
	AccountID int64
}

func loadRawState(ctx context.Context, q db.Querier, id int64) (*rawState, error) {
	var (
		rs        rawState
		contactID sql.NullInt64
		deleted   int
	)
	err := q.QueryRowContext(ctx, `
		SELECT _id, account_id, contact_id, aggregation_mode, deleted
		FROM raw_contacts WHERE _id = ?
	`, id).Scan(&rs.ID, &rs.AccountID, &contactID, &rs.Mode, &deleted)
	if err != nil {
		return nil, err
	}
	rs.ContactID = contactID.Int64
	rs.Deleted = deleted != 0
	return &rs, nil
}

// contactIDOf returns 0 when the raw contact is gone or unassigned.
func contactIDOf(ctx context.Context, q db.Querier, rawContactID int64) (int64, error) {
	var contactID sql.NullInt64
	err := q.QueryRowContext(ctx, `SELECT contact_id FROM raw_contacts WHERE _id = ?`, rawContactID).Scan(&contactID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read contact of raw contact %d: %w", rawContactID, err)
	}
	return contactID.Int64, nil
}

// membersOf lists the live raw contacts of a contact in id order.
func membersOf(ctx context.Context, q db.Querier, contactID int64) ([]member, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT _id, account_id FROM raw_contacts
		WHERE contact_id = ? AND deleted = 0
		ORDER BY _id
	`, contactID)
	if err != nil {
		return nil, fmt.Errorf("failed to list members of contact %d: %w", contactID, err)
	}
	defer rows.Close()

	var out []member
	for rows.Next() {
		var m member
		if err := rows.Scan(&m.ID, &m.AccountID); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func setContactID(ctx context.Context, q db.Querier, rawContactID, contactID int64) error {
	var arg any
	if contactID != 0 {
		arg = contactID
	}
	if _, err := q.ExecContext(ctx, `UPDATE raw_contacts SET contact_id = ? WHERE _id = ?`, arg, rawContactID); err != nil {
		return fmt.Errorf("failed to assign raw contact %d to contact %d: %w", rawContactID, contactID, err)
	}
	return nil
}

func insertContact(ctx context.Context, q db.Querier, nameRawContactID int64, now time.Time) (int64, error) {
	res, err := q.ExecContext(ctx, `
		INSERT INTO contacts (name_raw_contact_id, last_updated) VALUES (?, ?)
	`, nameRawContactID, now)
	if err != nil {
		return 0, fmt.Errorf("failed to create contact: %w", err)
	}
	return res.LastInsertId()
}

// deleteContact removes an empty contact and records it in the deleted log.
func deleteContact(ctx context.Context, q db.Querier, contactID int64, now time.Time) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM contacts WHERE _id = ?`, contactID); err != nil {
		return fmt.Errorf("failed to delete contact %d: %w", contactID, err)
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO deleted_contacts (contact_id, deleted_at) VALUES (?, ?)
		ON CONFLICT(contact_id) DO UPDATE SET deleted_at = excluded.deleted_at
	`, contactID, now)
	if err != nil {
		return fmt.Errorf("failed to log deleted contact %d: %w", contactID, err)
	}
	return nil
}

func clearAggregationNeeded(ctx context.Context, q db.Querier, ids []int64) error {
	for _, chunk := range chunkIDs(ids, 500) {
		query := `UPDATE raw_contacts SET aggregation_needed = 0 WHERE _id IN (` + placeholders(len(chunk)) + `)`
		if _, err := q.ExecContext(ctx, query, int64Args(chunk)...); err != nil {
			return fmt.Errorf("failed to clear aggregation flags: %w", err)
		}
	}
	return nil
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func chunkIDs(ids []int64, size int) [][]int64 {
	var out [][]int64
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}

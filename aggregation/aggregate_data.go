// ABOUTME: Recomputes a contact's denormalized fields from its member raw contacts
// ABOUTME: Display name winner, photo, starred, pinned, presence, phone flag and lookup key
package aggregation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/harperreed/roster/db"
	"github.com/harperreed/roster/lookupkey"
	"github.com/harperreed/roster/models"
	"github.com/harperreed/roster/namenorm"
)

type nameCandidate struct {
	rawContactID   int64
	displayName    string
	displayNameAlt string
	source         models.DisplayNameSource
	sortKey        string
	sortKeyAlt     string
	verified       bool
	starred        bool
	pinned         int
	createdAt      time.Time
}

// better reports whether a should be the name raw contact over b. Verified
// names win, then the higher display name source, then the older raw contact.
func (a nameCandidate) better(b nameCandidate) bool {
	if a.verified != b.verified {
		return a.verified
	}
	if a.source != b.source {
		return a.source > b.source
	}
	if !a.createdAt.Equal(b.createdAt) {
		return a.createdAt.Before(b.createdAt)
	}
	return a.rawContactID < b.rawContactID
}

// UpdateAggregateData recomputes every derived field of a contact. Contacts
// without live members are left for the pass to delete.
func (a *Aggregator) UpdateAggregateData(ctx context.Context, q db.Querier, contactID int64) error {
	return a.updateAggregateData(ctx, q, contactID)
}

func (a *Aggregator) updateAggregateData(ctx context.Context, q db.Querier, contactID int64) error {
	rows, err := q.QueryContext(ctx, `
		SELECT _id, IFNULL(display_name, ''), IFNULL(display_name_alt, ''), display_name_source,
			IFNULL(sort_key, ''), IFNULL(sort_key_alt, ''), name_verified, starred, pinned, created_at
		FROM raw_contacts WHERE contact_id = ? AND deleted = 0
		ORDER BY _id
	`, contactID)
	if err != nil {
		return fmt.Errorf("failed to read members of contact %d: %w", contactID, err)
	}

	var (
		winner  *nameCandidate
		starred bool
		pinned  int
		count   int
	)
	for rows.Next() {
		var (
			c                 nameCandidate
			verified, starInt int
		)
		if err := rows.Scan(&c.rawContactID, &c.displayName, &c.displayNameAlt, &c.source,
			&c.sortKey, &c.sortKeyAlt, &verified, &starInt, &c.pinned, &c.createdAt); err != nil {
			rows.Close()
			return err
		}
		c.verified = verified != 0
		c.starred = starInt != 0
		count++

		starred = starred || c.starred
		if c.pinned > 0 && (pinned <= 0 || c.pinned < pinned) {
			pinned = c.pinned
		}
		if winner == nil || c.better(*winner) {
			cc := c
			winner = &cc
		}
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return err
	}
	if count == 0 {
		return nil
	}

	if err := dedupeSuperPrimary(ctx, q, contactID); err != nil {
		return err
	}

	photoID, photoFileID, err := a.resolvePhoto(ctx, q, contactID)
	if err != nil {
		return err
	}

	var hasPhone bool
	err = q.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM data d JOIN raw_contacts r ON r._id = d.raw_contact_id
			WHERE r.contact_id = ? AND r.deleted = 0 AND d.mimetype = ?
		)
	`, contactID, models.MimePhone).Scan(&hasPhone)
	if err != nil {
		return fmt.Errorf("failed to check phones of contact %d: %w", contactID, err)
	}

	presence, status, err := aggregatePresence(ctx, q, contactID)
	if err != nil {
		return err
	}

	key, err := computeLookupKey(ctx, q, contactID)
	if err != nil {
		return err
	}

	_, err = q.ExecContext(ctx, `
		UPDATE contacts SET
			name_raw_contact_id = ?, display_name = ?, display_name_alt = ?, display_name_source = ?,
			sort_key = ?, sort_key_alt = ?, lookup = ?, photo_id = ?, photo_file_id = ?,
			starred = ?, pinned = ?, has_phone_number = ?, presence = ?, status = ?, last_updated = ?
		WHERE _id = ?
	`, winner.rawContactID, nullString(winner.displayName), nullString(winner.displayNameAlt), winner.source,
		nullString(winner.sortKey), nullString(winner.sortKeyAlt), key, nullInt(photoID), nullString(photoFileID),
		starred, pinned, hasPhone, presence, nullString(status), a.now(), contactID)
	if err != nil {
		return fmt.Errorf("failed to update contact %d: %w", contactID, err)
	}
	return nil
}

func (a *Aggregator) resolvePhoto(ctx context.Context, q db.Querier, contactID int64) (int64, string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT d._id, d.raw_contact_id, acc.account_type, IFNULL(d.data10, ''), d.is_super_primary, d.data15 IS NOT NULL
		FROM data d
		JOIN raw_contacts r ON r._id = d.raw_contact_id
		JOIN accounts acc ON acc._id = r.account_id
		WHERE r.contact_id = ? AND r.deleted = 0 AND d.mimetype = ?
		AND (d.data10 IS NOT NULL OR d.data15 IS NOT NULL)
		ORDER BY d._id
	`, contactID, models.MimePhoto)
	if err != nil {
		return 0, "", fmt.Errorf("failed to read photos of contact %d: %w", contactID, err)
	}
	defer rows.Close()

	var cands []models.PhotoCandidate
	for rows.Next() {
		var c models.PhotoCandidate
		if err := rows.Scan(&c.DataID, &c.RawContactID, &c.AccountType, &c.FileID, &c.IsSuperPrimary, &c.HasThumbnail); err != nil {
			return 0, "", err
		}
		cands = append(cands, c)
	}
	if err := rows.Err(); err != nil {
		return 0, "", err
	}
	if len(cands) == 0 {
		return 0, "", nil
	}

	chosen := a.photos.Resolve(cands)
	for _, c := range cands {
		if c.DataID == chosen {
			return c.DataID, c.FileID, nil
		}
	}
	return 0, "", nil
}

// firstPhoto prefers a super-primary photo and then the oldest row.
type firstPhoto struct{}

func (firstPhoto) Resolve(cands []models.PhotoCandidate) int64 {
	var best *models.PhotoCandidate
	for i := range cands {
		c := &cands[i]
		if best == nil || (c.IsSuperPrimary && !best.IsSuperPrimary) ||
			(c.IsSuperPrimary == best.IsSuperPrimary && c.DataID < best.DataID) {
			best = c
		}
	}
	if best == nil {
		return 0
	}
	return best.DataID
}

// dedupeSuperPrimary keeps at most one super-primary row per mimetype in the
// contact, the oldest one, after raw contacts with their own super-primary
// rows were joined.
func dedupeSuperPrimary(ctx context.Context, q db.Querier, contactID int64) error {
	rows, err := q.QueryContext(ctx, `
		SELECT d._id, d.mimetype FROM data d
		JOIN raw_contacts r ON r._id = d.raw_contact_id
		WHERE r.contact_id = ? AND r.deleted = 0 AND d.is_super_primary = 1
		ORDER BY d._id
	`, contactID)
	if err != nil {
		return fmt.Errorf("failed to read super-primary rows of contact %d: %w", contactID, err)
	}
	seen := make(map[string]bool)
	var clear []int64
	for rows.Next() {
		var (
			id   int64
			mime string
		)
		if err := rows.Scan(&id, &mime); err != nil {
			rows.Close()
			return err
		}
		if seen[mime] {
			clear = append(clear, id)
			continue
		}
		seen[mime] = true
	}
	err = rows.Err()
	rows.Close()
	if err != nil {
		return err
	}

	for _, id := range clear {
		if _, err := q.ExecContext(ctx, `UPDATE data SET is_super_primary = 0 WHERE _id = ?`, id); err != nil {
			return fmt.Errorf("failed to clear super-primary on data %d: %w", id, err)
		}
	}
	return nil
}

func aggregatePresence(ctx context.Context, q db.Querier, contactID int64) (models.PresenceMode, string, error) {
	var mode sql.NullInt64
	err := q.QueryRowContext(ctx, `
		SELECT MAX(p.mode) FROM presence p
		JOIN raw_contacts r ON r._id = p.raw_contact_id
		WHERE r.contact_id = ? AND r.deleted = 0
	`, contactID).Scan(&mode)
	if err != nil {
		return 0, "", fmt.Errorf("failed to aggregate presence of contact %d: %w", contactID, err)
	}

	var status sql.NullString
	err = q.QueryRowContext(ctx, `
		SELECT p.status FROM presence p
		JOIN raw_contacts r ON r._id = p.raw_contact_id
		WHERE r.contact_id = ? AND r.deleted = 0 AND p.status IS NOT NULL
		ORDER BY p.status_ts DESC, p.data_id DESC
		LIMIT 1
	`, contactID).Scan(&status)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, "", fmt.Errorf("failed to read status of contact %d: %w", contactID, err)
	}
	return models.PresenceMode(mode.Int64), status.String, nil
}

// computeLookupKey derives the lookup key from the contact's live members.
func computeLookupKey(ctx context.Context, q db.Querier, contactID int64) (string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT r._id, IFNULL(r.sourceid, ''), IFNULL(r.display_name, ''),
			acc.account_type, acc.data_set, acc.account_name
		FROM raw_contacts r
		JOIN accounts acc ON acc._id = r.account_id
		WHERE r.contact_id = ? AND r.deleted = 0
		ORDER BY r._id
	`, contactID)
	if err != nil {
		return "", fmt.Errorf("failed to read lookup members of contact %d: %w", contactID, err)
	}
	defer rows.Close()

	var members []lookupkey.Member
	for rows.Next() {
		var (
			m           lookupkey.Member
			displayName string
			acc         models.Account
		)
		if err := rows.Scan(&m.RawContactID, &m.SourceID, &displayName, &acc.Type, &acc.DataSet, &acc.Name); err != nil {
			return "", err
		}
		m.AccountTypeWithDataSet = acc.TypeWithDataSet()
		m.AccountName = acc.Name
		m.NormalizedDisplayName = namenorm.Normalize(displayName)
		members = append(members, m)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	return lookupkey.Build(members), nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(n int64) any {
	if n == 0 {
		return nil
	}
	return n
}

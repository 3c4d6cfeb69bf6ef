// ABOUTME: Resolves lookup keys back to contact ids
// ABOUTME: Tries source ids, then raw contact ids, then display names, with a plurality vote
package aggregation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/harperreed/roster/db"
	"github.com/harperreed/roster/lookupkey"
	"github.com/harperreed/roster/models"
)

// LookupContactIDByLookupKey returns the contact a lookup key refers to, or -1
// when no segment resolves. A key with a profile segment resolves to the
// single contact of the database q belongs to, so callers pass the profile
// database for it.
func (a *Aggregator) LookupContactIDByLookupKey(ctx context.Context, q db.Querier, key string) (int64, error) {
	segs, err := lookupkey.Parse(key)
	if err != nil {
		return -1, models.ValidationErrorf("lookup key %q: %v", key, err)
	}
	if lookupkey.HasProfile(segs) {
		return profileContactID(ctx, q)
	}

	phases := []struct {
		name    string
		applies func(lookupkey.Segment) bool
		query   string
		args    func(lookupkey.Segment) []any
	}{
		{
			name: "source id",
			applies: func(s lookupkey.Segment) bool {
				return s.Type == lookupkey.TypeSourceID || s.Type == lookupkey.TypeEncodedSourceID
			},
			query: `
				SELECT r.contact_id, acc.account_type, acc.data_set, acc.account_name
				FROM raw_contacts r JOIN accounts acc ON acc._id = r.account_id
				WHERE r.sourceid = ? AND r.deleted = 0 AND r.contact_id IS NOT NULL
				ORDER BY r._id`,
			args: func(s lookupkey.Segment) []any { return []any{s.Key} },
		},
		{
			name:    "raw contact id",
			applies: func(s lookupkey.Segment) bool { return s.Type == lookupkey.TypeRawContactID },
			query: `
				SELECT r.contact_id, acc.account_type, acc.data_set, acc.account_name
				FROM raw_contacts r JOIN accounts acc ON acc._id = r.account_id
				WHERE r._id = ? AND r.deleted = 0 AND r.contact_id IS NOT NULL`,
			args: func(s lookupkey.Segment) []any { return []any{s.RawContactID} },
		},
		{
			name: "display name",
			applies: func(s lookupkey.Segment) bool {
				return (s.Type == lookupkey.TypeDisplayName || s.Type == lookupkey.TypeRawContactID) && s.Key != ""
			},
			query: `
				SELECT r.contact_id, acc.account_type, acc.data_set, acc.account_name
				FROM name_lookup nl
				JOIN raw_contacts r ON r._id = nl.raw_contact_id
				JOIN accounts acc ON acc._id = r.account_id
				WHERE nl.normalized_name = ? AND nl.name_type = ?
				AND r.deleted = 0 AND r.contact_id IS NOT NULL
				ORDER BY r._id`,
			args: func(s lookupkey.Segment) []any { return []any{s.Key, models.NameLookupExact} },
		},
	}

	for _, phase := range phases {
		matched := false
		for i := range segs {
			if !phase.applies(segs[i]) {
				continue
			}
			matched = true
			contactID, err := resolveSegment(ctx, q, phase.query, segs[i].AccountHash, phase.args(segs[i])...)
			if err != nil {
				return -1, fmt.Errorf("failed to resolve lookup key by %s: %w", phase.name, err)
			}
			segs[i].ContactID = contactID
		}
		if !matched {
			continue
		}
		if id := lookupkey.MostReferenced(segs); id != -1 {
			return id, nil
		}
	}
	return -1, nil
}

// resolveSegment returns the first matching raw contact's contact whose account
// hashes to accountHash, or -1.
func resolveSegment(ctx context.Context, q db.Querier, query string, accountHash int, args ...any) (int64, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return -1, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			contactID int64
			acc       models.Account
		)
		if err := rows.Scan(&contactID, &acc.Type, &acc.DataSet, &acc.Name); err != nil {
			return -1, err
		}
		if lookupkey.AccountHash(acc.TypeWithDataSet(), acc.Name) == accountHash {
			return contactID, nil
		}
	}
	return -1, rows.Err()
}

func profileContactID(ctx context.Context, q db.Querier) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `SELECT _id FROM contacts ORDER BY _id LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return -1, nil
	}
	if err != nil {
		return -1, fmt.Errorf("failed to read profile contact: %w", err)
	}
	return id, nil
}

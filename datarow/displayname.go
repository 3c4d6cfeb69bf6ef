// ABOUTME: Computes a raw contact's display name from its data rows
// ABOUTME: The best available source wins: structured name, nickname, organization, phone, email
package datarow

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/harperreed/roster/db"
	"github.com/harperreed/roster/models"
	"github.com/harperreed/roster/namenorm"
)

// DisplayName is the outcome of the display name computation.
type DisplayName struct {
	Primary     string
	Alternative string
	Source      models.DisplayNameSource
}

// ComputeDisplayName picks the display name of a raw contact. Within one
// source, super-primary rows win, then primary rows, then the oldest row.
func ComputeDisplayName(ctx context.Context, q db.Querier, env *Env, rawContactID int64) (DisplayName, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT mimetype, data1, data2, data3, data4, data5, data6
		FROM data WHERE raw_contact_id = ? AND mimetype IN (?, ?, ?, ?, ?)
		ORDER BY is_super_primary DESC, is_primary DESC, _id
	`, rawContactID, models.MimeStructuredName, models.MimeNickname, models.MimeOrganization, models.MimePhone, models.MimeEmail)
	if err != nil {
		return DisplayName{}, fmt.Errorf("failed to read name rows of raw contact %d: %w", rawContactID, err)
	}
	defer rows.Close()

	var best DisplayName
	for rows.Next() {
		var (
			mime string
			cols [6]sql.NullString
		)
		if err := rows.Scan(&mime, &cols[0], &cols[1], &cols[2], &cols[3], &cols[4], &cols[5]); err != nil {
			return DisplayName{}, err
		}
		var row models.DataRow
		for i, c := range cols {
			row.Data[i] = c.String
		}
		cand := candidateName(env, mime, &row)
		if cand.Primary != "" && cand.Source > best.Source {
			best = cand
		}
	}
	return best, rows.Err()
}

func candidateName(env *Env, mime string, row *models.DataRow) DisplayName {
	switch mime {
	case models.MimeStructuredName:
		parts := nameParts(row)
		primary := strings.TrimSpace(row.Data[models.NameDisplayName])
		if primary == "" {
			primary = env.Names.Join(parts, true)
		}
		alt := env.Names.Join(parts, false)
		if alt == "" {
			alt = primary
		}
		return DisplayName{Primary: primary, Alternative: alt, Source: models.DisplayNameSourceStructuredName}
	case models.MimeNickname:
		n := strings.TrimSpace(row.Data[models.NicknameName])
		return DisplayName{Primary: n, Alternative: n, Source: models.DisplayNameSourceNickname}
	case models.MimeOrganization:
		n := strings.TrimSpace(row.Data[models.OrgCompany])
		if n == "" {
			n = strings.TrimSpace(row.Data[models.OrgTitle])
		}
		return DisplayName{Primary: n, Alternative: n, Source: models.DisplayNameSourceOrganization}
	case models.MimePhone:
		n := strings.TrimSpace(row.Data[models.PhoneNumber])
		return DisplayName{Primary: n, Alternative: n, Source: models.DisplayNameSourcePhone}
	case models.MimeEmail:
		n := strings.TrimSpace(row.Data[models.EmailAddress])
		return DisplayName{Primary: n, Alternative: n, Source: models.DisplayNameSourceEmail}
	}
	return DisplayName{}
}

// UpdateRawContactDisplayName recomputes and stores the display name and sort
// keys of a raw contact.
func UpdateRawContactDisplayName(ctx context.Context, q db.Querier, env *Env, rawContactID int64) error {
	name, err := ComputeDisplayName(ctx, q, env, rawContactID)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		UPDATE raw_contacts
		SET display_name = ?, display_name_alt = ?, display_name_source = ?, sort_key = ?, sort_key_alt = ?
		WHERE _id = ?
	`, nullable(name.Primary), nullable(name.Alternative), name.Source,
		nullable(env.Collator.SortKey(name.Primary)), nullable(env.Collator.SortKey(name.Alternative)),
		rawContactID)
	if err != nil {
		return fmt.Errorf("failed to update display name of raw contact %d: %w", rawContactID, err)
	}
	return nil
}

// RebuildSortKeys recomputes every raw contact's sort keys, typically after a
// locale change.
func RebuildSortKeys(ctx context.Context, q db.Querier, collator *namenorm.Collator) (int, error) {
	rows, err := q.QueryContext(ctx, `SELECT _id, IFNULL(display_name, ''), IFNULL(display_name_alt, '') FROM raw_contacts`)
	if err != nil {
		return 0, fmt.Errorf("failed to list raw contact names: %w", err)
	}
	type entry struct {
		id        int64
		name, alt string
	}
	var entries []entry
	for rows.Next() {
		var e entry
		if err := rows.Scan(&e.id, &e.name, &e.alt); err != nil {
			rows.Close()
			return 0, err
		}
		entries = append(entries, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, e := range entries {
		_, err := q.ExecContext(ctx, `UPDATE raw_contacts SET sort_key = ?, sort_key_alt = ? WHERE _id = ?`,
			nullable(collator.SortKey(e.name)), nullable(collator.SortKey(e.alt)), e.id)
		if err != nil {
			return 0, fmt.Errorf("failed to update sort keys of raw contact %d: %w", e.id, err)
		}
	}
	return len(entries), nil
}

// ABOUTME: Regenerates derived lookup rows for every stored data row
// ABOUTME: Run after normalization rules change, such as a locale switch
package datarow

import (
	"context"
	"fmt"

	"github.com/harperreed/roster/db"
	"github.com/harperreed/roster/models"
)

// RebuildLookups clears and rewrites name_lookup and phone_lookup from the
// data rows and returns how many rows were processed.
func (r *Registry) RebuildLookups(ctx context.Context, q db.Querier) (int, error) {
	if _, err := q.ExecContext(ctx, `DELETE FROM name_lookup`); err != nil {
		return 0, fmt.Errorf("failed to clear name lookups: %w", err)
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM phone_lookup`); err != nil {
		return 0, fmt.Errorf("failed to clear phone lookups: %w", err)
	}

	rows, err := q.QueryContext(ctx, selectData+` WHERE mimetype IN (?, ?, ?, ?, ?) ORDER BY _id`,
		models.MimeStructuredName, models.MimeNickname, models.MimeOrganization, models.MimePhone, models.MimeEmail)
	if err != nil {
		return 0, fmt.Errorf("failed to list data rows: %w", err)
	}
	var all []*models.DataRow
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			rows.Close()
			return 0, err
		}
		all = append(all, row)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, row := range all {
		h, ok := r.For(row.MimeType).(*rowHandler)
		if !ok {
			continue
		}
		if err := h.hooks.derive(ctx, q, row); err != nil {
			return 0, err
		}
	}
	return len(all), nil
}

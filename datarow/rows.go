// ABOUTME: Reads data rows back into models.DataRow
// ABOUTME: Shared by the provider's update and delete paths and by contact views
package datarow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/harperreed/roster/db"
	"github.com/harperreed/roster/models"
)

const selectData = `
	SELECT _id, raw_contact_id, mimetype, is_primary, is_super_primary, data_version,
		data1, data2, data3, data4, data5, data6, data7, data8, data9, data10, data15
	FROM data`

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(s scanner) (*models.DataRow, error) {
	var (
		row        models.DataRow
		cols       [models.NumDataColumns]sql.NullString
		primary    int
		superPrime int
	)
	dest := []any{&row.ID, &row.RawContactID, &row.MimeType, &primary, &superPrime, &row.Version}
	for i := range cols {
		dest = append(dest, &cols[i])
	}
	dest = append(dest, &row.Blob)
	if err := s.Scan(dest...); err != nil {
		return nil, err
	}
	for i, c := range cols {
		row.Data[i] = c.String
	}
	row.IsPrimary = primary != 0
	row.IsSuperPrimary = superPrime != 0
	return &row, nil
}

// Load returns one data row.
func Load(ctx context.Context, q db.Querier, id int64) (*models.DataRow, error) {
	row, err := scanRow(q.QueryRowContext(ctx, selectData+` WHERE _id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NotFoundError("data row", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load data row %d: %w", id, err)
	}
	return row, nil
}

// ListForRawContacts returns the data rows of the given raw contacts ordered by
// raw contact then id.
func ListForRawContacts(ctx context.Context, q db.Querier, rawContactIDs []int64) ([]*models.DataRow, error) {
	if len(rawContactIDs) == 0 {
		return nil, nil
	}
	args := make([]any, len(rawContactIDs))
	marks := make([]byte, 0, 2*len(rawContactIDs))
	for i, id := range rawContactIDs {
		args[i] = id
		if i > 0 {
			marks = append(marks, ',')
		}
		marks = append(marks, '?')
	}
	rows, err := q.QueryContext(ctx, selectData+` WHERE raw_contact_id IN (`+string(marks)+`) ORDER BY raw_contact_id, _id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list data rows: %w", err)
	}
	defer rows.Close()

	var out []*models.DataRow
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ABOUTME: Group lookups against the contact_groups table
// ABOUTME: Used by membership rows when no caching resolver is configured
package datarow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/harperreed/roster/db"
	"github.com/harperreed/roster/models"
)

// TableGroups resolves groups with direct queries.
type TableGroups struct{}

func (TableGroups) GroupIDBySourceID(ctx context.Context, q db.Querier, accountID int64, sourceID string) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `
		SELECT _id FROM contact_groups WHERE account_id = ? AND sourceid = ? AND deleted = 0
	`, accountID, sourceID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("group with source id %q: %w", sourceID, models.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to resolve group %q: %w", sourceID, err)
	}
	return id, nil
}

func (TableGroups) GroupExists(ctx context.Context, q db.Querier, groupID int64) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM contact_groups WHERE _id = ? AND deleted = 0`, groupID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check group %d: %w", groupID, err)
	}
	return n > 0, nil
}

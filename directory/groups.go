// ABOUTME: Cached group id resolution for group membership rows
// ABOUTME: Misses fall through to the contact_groups table
package directory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/harperreed/roster/datarow"
	"github.com/harperreed/roster/db"
	"github.com/harperreed/roster/models"
)

type groupKey struct {
	accountID int64
	sourceID  string
}

// GroupCache implements datarow.GroupResolver with a source id cache.
type GroupCache struct {
	table datarow.TableGroups

	mu  sync.RWMutex
	ids map[groupKey]int64
}

func NewGroupCache() *GroupCache {
	return &GroupCache{ids: make(map[groupKey]int64)}
}

func (c *GroupCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = make(map[groupKey]int64)
}

func (c *GroupCache) GroupIDBySourceID(ctx context.Context, q db.Querier, accountID int64, sourceID string) (int64, error) {
	key := groupKey{accountID, sourceID}
	c.mu.RLock()
	id, ok := c.ids[key]
	c.mu.RUnlock()
	if ok {
		return id, nil
	}
	id, err := c.table.GroupIDBySourceID(ctx, q, accountID, sourceID)
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	c.ids[key] = id
	c.mu.Unlock()
	return id, nil
}

func (c *GroupCache) GroupExists(ctx context.Context, q db.Querier, groupID int64) (bool, error) {
	return c.table.GroupExists(ctx, q, groupID)
}

// EnsureGroup returns the group with sourceID in the account, creating it
// with title when missing.
func (c *GroupCache) EnsureGroup(ctx context.Context, q db.Querier, accountID int64, sourceID, title string) (int64, error) {
	if sourceID == "" {
		return 0, models.ValidationError("group source id is required")
	}
	id, err := c.GroupIDBySourceID(ctx, q, accountID, sourceID)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return 0, err
	}
	res, err := q.ExecContext(ctx, `
		INSERT INTO contact_groups (account_id, sourceid, title) VALUES (?, ?, ?)
	`, accountID, sourceID, title)
	if err != nil {
		return 0, fmt.Errorf("failed to insert group %q: %w", sourceID, err)
	}
	c.Invalidate()
	return res.LastInsertId()
}

func (c *GroupCache) List(ctx context.Context, q db.Querier, accountID int64) ([]models.Group, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT _id, account_id, IFNULL(sourceid, ''), IFNULL(title, ''), deleted
		FROM contact_groups WHERE account_id = ? AND deleted = 0 ORDER BY _id
	`, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	defer rows.Close()
	var out []models.Group
	for rows.Next() {
		var g models.Group
		if err := rows.Scan(&g.ID, &g.AccountID, &g.SourceID, &g.Title, &g.Deleted); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// ABOUTME: Cached view of aggregation exceptions keyed by raw contact
// ABOUTME: Loaded lazily inside the write transaction and dropped on any exception change
package aggregation

import (
	"context"
	"fmt"
	"sync"

	"github.com/harperreed/roster/db"
	"github.com/harperreed/roster/models"
)

type exceptionEdge struct {
	Other int64
	Type  models.ExceptionType
}

type exceptionCache struct {
	mu     sync.RWMutex
	loaded bool
	byRaw  map[int64][]exceptionEdge
}

func (c *exceptionCache) invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaded = false
	c.byRaw = nil
}

func (c *exceptionCache) forRawContact(ctx context.Context, q db.Querier, rawContactID int64) ([]exceptionEdge, error) {
	c.mu.RLock()
	if c.loaded {
		edges := c.byRaw[rawContactID]
		c.mu.RUnlock()
		return edges, nil
	}
	c.mu.RUnlock()

	byRaw, err := loadExceptions(ctx, q)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.byRaw = byRaw
	c.loaded = true
	c.mu.Unlock()
	return byRaw[rawContactID], nil
}

func loadExceptions(ctx context.Context, q db.Querier) (map[int64][]exceptionEdge, error) {
	rows, err := q.QueryContext(ctx, `SELECT type, raw_contact_id1, raw_contact_id2 FROM agg_exceptions`)
	if err != nil {
		return nil, fmt.Errorf("failed to load aggregation exceptions: %w", err)
	}
	defer rows.Close()

	byRaw := make(map[int64][]exceptionEdge)
	for rows.Next() {
		var (
			typ      models.ExceptionType
			id1, id2 int64
		)
		if err := rows.Scan(&typ, &id1, &id2); err != nil {
			return nil, err
		}
		byRaw[id1] = append(byRaw[id1], exceptionEdge{Other: id2, Type: typ})
		byRaw[id2] = append(byRaw[id2], exceptionEdge{Other: id1, Type: typ})
	}
	return byRaw, rows.Err()
}

// separatedFrom reads KEEP_SEPARATE partners of any of ids straight from the
// table. Used by readers that must not populate the writer's cache.
func separatedFrom(ctx context.Context, q db.Querier, ids []int64) (map[int64]bool, error) {
	out := make(map[int64]bool)
	if len(ids) == 0 {
		return out, nil
	}
	ph := placeholders(len(ids))
	args := append(int64Args(ids), int64Args(ids)...)
	rows, err := q.QueryContext(ctx, `
		SELECT raw_contact_id1, raw_contact_id2 FROM agg_exceptions
		WHERE type = ? AND (raw_contact_id1 IN (`+ph+`) OR raw_contact_id2 IN (`+ph+`))
	`, append([]any{models.ExceptionKeepSeparate}, args...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to read keep-separate exceptions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var a, b int64
		if err := rows.Scan(&a, &b); err != nil {
			return nil, err
		}
		out[a] = true
		out[b] = true
	}
	for _, id := range ids {
		delete(out, id)
	}
	return out, rows.Err()
}

// ABOUTME: Whole-database re-aggregation used after algorithm upgrades and locale changes
// ABOUTME: Work is persisted through aggregation_needed so it resumes after a restart
package aggregation

import (
	"context"
	"fmt"

	"github.com/harperreed/roster/db"
	"github.com/harperreed/roster/models"
)

// MarkAllForAggregation flags every live raw contact for re-evaluation and
// returns how many were flagged. The flags are consumed by LoadNeeded.
func (a *Aggregator) MarkAllForAggregation(ctx context.Context, q db.Querier) (int64, error) {
	res, err := q.ExecContext(ctx, `UPDATE raw_contacts SET aggregation_needed = 1 WHERE deleted = 0`)
	if err != nil {
		return 0, fmt.Errorf("failed to flag raw contacts for aggregation: %w", err)
	}
	return res.RowsAffected()
}

// LoadNeeded queues up to limit flagged raw contacts, lowest id first, and
// returns how many were queued.
func (a *Aggregator) LoadNeeded(ctx context.Context, q db.Querier, limit int) (int, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT _id, aggregation_mode FROM raw_contacts
		WHERE aggregation_needed = 1
		ORDER BY _id
		LIMIT ?
	`, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to read raw contacts needing aggregation: %w", err)
	}
	defer rows.Close()

	n := 0
	for rows.Next() {
		var (
			id   int64
			mode models.AggregationMode
		)
		if err := rows.Scan(&id, &mode); err != nil {
			return n, err
		}
		if _, ok := a.pending[id]; !ok {
			a.pending[id] = pendingEntry{mode: mode}
		}
		n++
	}
	return n, rows.Err()
}

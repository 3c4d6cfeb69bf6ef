// ABOUTME: Sync run history for account sync adapters
// ABOUTME: Records the outcome of each run so status commands can report the last sync
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	SyncStatusOK    = "ok"
	SyncStatusError = "error"
)

// SyncRun is one sync_log row.
type SyncRun struct {
	ID         string    `json:"id"`
	AccountID  int64     `json:"account_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	Full       bool      `json:"full"`
	Fetched    int       `json:"fetched"`
	Inserted   int       `json:"inserted"`
	Updated    int       `json:"updated"`
	Deleted    int       `json:"deleted"`
}

// InsertSyncRun stores run, assigning an id when it has none.
func InsertSyncRun(ctx context.Context, q Querier, run *SyncRun) error {
	if run.ID == "" {
		run.ID = newInstanceID()
	}
	var errMsg sql.NullString
	if run.Error != "" {
		errMsg = sql.NullString{String: run.Error, Valid: true}
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO sync_log (id, account_id, started_at, finished_at, status, error_message,
			full_sync, fetched, inserted, updated, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.AccountID, run.StartedAt.UTC(), run.FinishedAt.UTC(), run.Status, errMsg,
		run.Full, run.Fetched, run.Inserted, run.Updated, run.Deleted)
	if err != nil {
		return fmt.Errorf("failed to record sync run: %w", err)
	}
	return nil
}

// ListSyncRuns returns the account's runs, newest first. limit <= 0 returns all.
func ListSyncRuns(ctx context.Context, q Querier, accountID int64, limit int) ([]SyncRun, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := q.QueryContext(ctx, `
		SELECT id, account_id, started_at, finished_at, status, IFNULL(error_message, ''),
			full_sync, fetched, inserted, updated, deleted
		FROM sync_log
		WHERE account_id = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}
	defer rows.Close()

	var runs []SyncRun
	for rows.Next() {
		var r SyncRun
		if err := rows.Scan(&r.ID, &r.AccountID, &r.StartedAt, &r.FinishedAt, &r.Status, &r.Error,
			&r.Full, &r.Fetched, &r.Inserted, &r.Updated, &r.Deleted); err != nil {
			return nil, fmt.Errorf("failed to scan sync run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

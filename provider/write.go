// ABOUTME: Write transaction lifecycle: begin, run, flush deferred work, commit or roll back
// ABOUTME: Aggregation, version bumps, dirty flags, sync state and search all flush at commit
package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/harperreed/roster/db"
	"github.com/harperreed/roster/logctx"
)

// writeTx is one open write transaction on one database.
type writeTx struct {
	p    *Provider
	d    *database
	tx   *db.Tx
	opts CallOptions
}

func (p *Provider) inWrite(ctx context.Context, opts CallOptions, fn func(w *writeTx) error) error {
	if err := p.waitWrite(ctx); err != nil {
		return err
	}
	return p.inWriteDB(ctx, p.database(opts.Profile), opts, fn)
}

// inWriteDB runs fn in a write transaction on d. Once the transaction is
// open, ctx cancellation no longer interrupts it.
func (p *Provider) inWriteDB(ctx context.Context, d *database, opts CallOptions, fn func(w *writeTx) error) error {
	tx, err := d.beginWrite(ctx)
	if err != nil {
		return err
	}
	ctx = context.WithoutCancel(ctx)
	w := &writeTx{p: p, d: d, tx: tx, opts: opts}

	if err := fn(w); err != nil {
		w.abort()
		return err
	}
	if err := w.flush(ctx); err != nil {
		w.abort()
		return err
	}
	return w.tx.Commit()
}

func (w *writeTx) abort() {
	_ = w.tx.Rollback()
}

// yield commits the work so far, search index included, and reopens a
// transaction so other writers can get in.
func (w *writeTx) yield(ctx context.Context) error {
	if err := w.flush(ctx); err != nil {
		return err
	}
	if err := w.tx.Commit(); err != nil {
		return err
	}

	tx, err := w.d.beginWrite(ctx)
	if err != nil {
		return err
	}
	w.tx = tx
	logger := logctx.FromContext(ctx)
	logger.Debug().Msg("batch yielded")
	return nil
}

// flush performs the deferred work of the transaction.
func (w *writeTx) flush(ctx context.Context) error {
	tc := w.d.tc
	stats, err := w.d.agg.AggregateInTransaction(ctx, tc, w.tx)
	if err != nil {
		return err
	}
	if !stats.Empty() {
		logger := logctx.FromContext(ctx)
		logger.Debug().
			Int("processed", stats.Processed).
			Int("joined", stats.Joined).
			Int("created", stats.Created).
			Int("deleted", stats.Deleted).
			Msg("aggregated at commit")
	}

	now := time.Now().UTC()
	for _, chunk := range chunks(tc.UpdatedRawContactIDs(), 500) {
		args := append([]any{now}, idArgs(chunk)...)
		_, err := w.tx.ExecContext(ctx, `
			UPDATE raw_contacts SET version = version + 1, updated_at = ?
			WHERE _id IN (`+marks(len(chunk))+`)
		`, args...)
		if err != nil {
			return fmt.Errorf("failed to bump raw contact versions: %w", err)
		}
	}
	for _, chunk := range chunks(tc.DirtyRawContactIDs(), 500) {
		_, err := w.tx.ExecContext(ctx, `UPDATE raw_contacts SET dirty = 1 WHERE _id IN (`+marks(len(chunk))+`)`, idArgs(chunk)...)
		if err != nil {
			return fmt.Errorf("failed to mark raw contacts dirty: %w", err)
		}
	}
	for accountID, state := range tc.SyncStates() {
		_, err := w.tx.ExecContext(ctx, `
			INSERT INTO sync_state (account_id, data) VALUES (?, ?)
			ON CONFLICT(account_id) DO UPDATE SET data = excluded.data
		`, accountID, state)
		if err != nil {
			return fmt.Errorf("failed to write sync state for account %d: %w", accountID, err)
		}
	}

	if tc.HasSearchIndexUpdates() {
		if err := w.p.index.UpdateIndexForRawContacts(ctx, w.tx, tc.StaleSearchContactIDs(), tc.StaleSearchRawContactIDs()); err != nil {
			return err
		}
		tc.ClearSearchIndexUpdates()
	}
	return nil
}

// markDirty records a caller change that the account's sync adapter must
// push. Sync adapter writes are never dirty.
func (w *writeTx) markDirty(rawContactID int64) {
	if !w.opts.SyncAdapter {
		w.d.tc.MarkRawContactDirty(rawContactID)
	}
}

func chunks(ids []int64, size int) [][]int64 {
	var out [][]int64
	for len(ids) > size {
		out = append(out, ids[:size])
		ids = ids[size:]
	}
	if len(ids) > 0 {
		out = append(out, ids)
	}
	return out
}

func marks(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func idArgs(ids []int64) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

// ABOUTME: Account removal across the contacts and profile databases
// ABOUTME: Both databases are purged and flushed before either commits
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/harperreed/roster/db"
	"github.com/harperreed/roster/logctx"
	"github.com/harperreed/roster/models"
)

// RemoveAccount deletes every raw contact, group and sync state of acct from
// both databases, then the account itself. It returns the number of raw
// contacts removed.
func (p *Provider) RemoveAccount(ctx context.Context, acct models.Account) (int, error) {
	if acct.IsLocal() {
		return 0, models.ValidationError("the local account cannot be removed")
	}
	if err := p.waitWrite(ctx); err != nil {
		return 0, err
	}
	ctx = logctx.WithStr(ctx, "account", acct.String())

	removed := 0
	err := p.pair.InBothTx(ctx, func(contacts, profile *db.Tx) error {
		ctx := context.WithoutCancel(ctx)
		ws := []*writeTx{
			{p: p, d: p.contacts, tx: contacts, opts: CallOptions{SyncAdapter: true}},
			{p: p, d: p.profile, tx: profile, opts: CallOptions{Profile: true, SyncAdapter: true}},
		}
		for _, w := range ws {
			d := w.d
			d.tc.OnBegin()
			w.tx.OnRelease(d.release)
			w.tx.OnRelease(func(bool) {
				d.accounts.Invalidate()
				d.groups.Invalidate()
			})
		}
		for _, w := range ws {
			n, err := w.purgeAccount(ctx, acct)
			if err != nil {
				return err
			}
			if err := w.flush(ctx); err != nil {
				return err
			}
			removed += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	logger := logctx.FromContext(ctx)
	logger.Info().Int("raw_contacts", removed).Msg("account removed")
	return removed, nil
}

func (w *writeTx) purgeAccount(ctx context.Context, acct models.Account) (int, error) {
	accountID, err := w.d.accounts.FindAccount(ctx, w.tx, acct)
	if errors.Is(err, models.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	rows, err := w.tx.QueryContext(ctx, `SELECT _id FROM raw_contacts WHERE account_id = ? ORDER BY _id`, accountID)
	if err != nil {
		return 0, fmt.Errorf("failed to list raw contacts of account %d: %w", accountID, err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, id := range ids {
		r, err := w.loadRawContact(ctx, id)
		if err != nil {
			return 0, err
		}
		if r == nil {
			continue
		}
		if err := w.purgeRawContact(ctx, r); err != nil {
			return 0, err
		}
	}

	for _, query := range []string{
		`DELETE FROM contact_groups WHERE account_id = ?`,
		`DELETE FROM sync_state WHERE account_id = ?`,
		`DELETE FROM sync_log WHERE account_id = ?`,
	} {
		if _, err := w.tx.ExecContext(ctx, query, accountID); err != nil {
			return 0, fmt.Errorf("failed to purge account %d: %w", accountID, err)
		}
	}
	if err := w.d.accounts.Delete(ctx, w.tx, accountID); err != nil {
		return 0, err
	}
	return len(ids), nil
}

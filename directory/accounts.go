// ABOUTME: Account registry mapping account identities to row ids
// ABOUTME: Caches ids and writability; both caches are dropped on any account write
package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/harperreed/roster/db"
	"github.com/harperreed/roster/models"
)

type AccountRegistry struct {
	readOnlyTypes map[string]bool

	mu       sync.RWMutex
	ids      map[models.Account]int64
	writable map[int64]bool
}

// NewAccountRegistry treats accounts whose type is in readOnlyTypes as not
// writable by ordinary callers.
func NewAccountRegistry(readOnlyTypes []string) *AccountRegistry {
	ro := make(map[string]bool, len(readOnlyTypes))
	for _, t := range readOnlyTypes {
		ro[t] = true
	}
	return &AccountRegistry{
		readOnlyTypes: ro,
		ids:           make(map[models.Account]int64),
		writable:      make(map[int64]bool),
	}
}

func (r *AccountRegistry) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = make(map[models.Account]int64)
	r.writable = make(map[int64]bool)
}

// EnsureAccount returns the id of acct, creating the row if needed.
func (r *AccountRegistry) EnsureAccount(ctx context.Context, q db.Querier, acct models.Account) (int64, error) {
	if !acct.Consistent() {
		return 0, models.ValidationError("account name and type must both be set or both be empty")
	}
	r.mu.RLock()
	id, ok := r.ids[acct]
	r.mu.RUnlock()
	if ok {
		return id, nil
	}

	_, err := q.ExecContext(ctx, `
		INSERT OR IGNORE INTO accounts (account_name, account_type, data_set) VALUES (?, ?, ?)
	`, acct.Name, acct.Type, acct.DataSet)
	if err != nil {
		return 0, fmt.Errorf("failed to insert account %s: %w", acct, err)
	}
	id, err = r.lookup(ctx, q, acct)
	if err != nil {
		return 0, err
	}

	r.mu.Lock()
	r.ids[acct] = id
	r.mu.Unlock()
	return id, nil
}

// FindAccount returns the id of an existing account.
func (r *AccountRegistry) FindAccount(ctx context.Context, q db.Querier, acct models.Account) (int64, error) {
	r.mu.RLock()
	id, ok := r.ids[acct]
	r.mu.RUnlock()
	if ok {
		return id, nil
	}
	return r.lookup(ctx, q, acct)
}

func (r *AccountRegistry) lookup(ctx context.Context, q db.Querier, acct models.Account) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `
		SELECT _id FROM accounts WHERE account_name = ? AND account_type = ? AND data_set = ?
	`, acct.Name, acct.Type, acct.DataSet).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("account %s: %w", acct, models.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up account %s: %w", acct, err)
	}
	return id, nil
}

func (r *AccountRegistry) Account(ctx context.Context, q db.Querier, id int64) (models.Account, error) {
	var a models.Account
	err := q.QueryRowContext(ctx, `SELECT account_name, account_type, data_set FROM accounts WHERE _id = ?`, id).
		Scan(&a.Name, &a.Type, &a.DataSet)
	if errors.Is(err, sql.ErrNoRows) {
		return a, models.NotFoundError("account", id)
	}
	if err != nil {
		return a, fmt.Errorf("failed to load account %d: %w", id, err)
	}
	return a, nil
}

// IsWritable reports whether ordinary callers may write raw contacts of the
// account. Sync adapters bypass this check.
func (r *AccountRegistry) IsWritable(ctx context.Context, q db.Querier, accountID int64) (bool, error) {
	r.mu.RLock()
	w, ok := r.writable[accountID]
	r.mu.RUnlock()
	if ok {
		return w, nil
	}

	a, err := r.Account(ctx, q, accountID)
	if err != nil {
		return false, err
	}
	w = !r.readOnlyTypes[a.Type]

	r.mu.Lock()
	r.writable[accountID] = w
	r.mu.Unlock()
	return w, nil
}

// AccountEntry is an account with its row id.
type AccountEntry struct {
	ID int64 `json:"id"`
	models.Account
}

func (r *AccountRegistry) List(ctx context.Context, q db.Querier) ([]AccountEntry, error) {
	rows, err := q.QueryContext(ctx, `SELECT _id, account_name, account_type, data_set FROM accounts ORDER BY _id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	defer rows.Close()
	var out []AccountEntry
	for rows.Next() {
		var e AccountEntry
		if err := rows.Scan(&e.ID, &e.Name, &e.Type, &e.DataSet); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Delete removes the account row. Callers remove its raw contacts first.
func (r *AccountRegistry) Delete(ctx context.Context, q db.Querier, accountID int64) error {
	defer r.Invalidate()
	if _, err := q.ExecContext(ctx, `DELETE FROM accounts WHERE _id = ?`, accountID); err != nil {
		return fmt.Errorf("failed to delete account %d: %w", accountID, err)
	}
	return nil
}

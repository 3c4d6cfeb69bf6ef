// ABOUTME: Write sessions over a database: one writer at a time, savepoints inside
// ABOUTME: Querier abstracts *sql.DB and *sql.Tx for read and write helpers
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Querier is satisfied by *sql.DB, *sql.Tx and *Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

var ErrTxDone = errors.New("transaction already finished")

// Session owns one database and its writer lock.
type Session struct {
	db    *sql.DB
	kind  Kind
	path  string
	write chan struct{}
}

func newSession(db *sql.DB, kind Kind, path string) *Session {
	return &Session{db: db, kind: kind, path: path, write: make(chan struct{}, 1)}
}

// DB returns the handle for reads outside a write transaction.
func (s *Session) DB() *sql.DB { return s.db }

func (s *Session) Kind() Kind { return s.kind }

func (s *Session) IsProfile() bool { return s.kind == KindProfile }

func (s *Session) Path() string { return s.path }

func (s *Session) Close() error {
	return s.db.Close()
}

// Tx is a write transaction holding the session's writer lock until it
// commits or rolls back.
type Tx struct {
	*sql.Tx
	session *Session
	done    bool
	spSeq   int
	release []func(committed bool)
}

// BeginWrite waits for the writer lock and opens a transaction. ctx bounds
// the wait only; once open, the transaction runs to commit or rollback.
func (s *Session) BeginWrite(ctx context.Context) (*Tx, error) {
	select {
	case s.write <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	tx, err := s.db.BeginTx(context.WithoutCancel(ctx), nil)
	if err != nil {
		s.unlock()
		return nil, fmt.Errorf("failed to begin %s transaction: %w", s.kind, err)
	}
	return &Tx{Tx: tx, session: s}, nil
}

func (s *Session) unlock() { <-s.write }

func (t *Tx) Session() *Session { return t.session }

// OnRelease registers fn to run once the transaction has committed or rolled
// back, while the writer lock is still held.
func (t *Tx) OnRelease(fn func(committed bool)) {
	t.release = append(t.release, fn)
}

func (t *Tx) finish(committed bool) {
	defer t.session.unlock()
	for _, fn := range t.release {
		fn(committed)
	}
}

func (t *Tx) Commit() error {
	if t.done {
		return ErrTxDone
	}
	t.done = true
	if err := t.Tx.Commit(); err != nil {
		t.finish(false)
		return fmt.Errorf("failed to commit %s transaction: %w", t.session.kind, err)
	}
	t.finish(true)
	return nil
}

// Rollback is safe to call after Commit; it then does nothing.
func (t *Tx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	err := t.Tx.Rollback()
	t.finish(false)
	return err
}

// Savepoint runs fn inside a nested savepoint. An error from fn rolls back only
// the work done since the savepoint.
func (t *Tx) Savepoint(ctx context.Context, fn func() error) error {
	t.spSeq++
	name := fmt.Sprintf("sp_%d", t.spSeq)
	if _, err := t.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("failed to open savepoint: %w", err)
	}
	if err := fn(); err != nil {
		if _, rbErr := t.ExecContext(ctx, "ROLLBACK TO "+name); rbErr != nil {
			return errors.Join(err, fmt.Errorf("failed to roll back savepoint: %w", rbErr))
		}
		_, _ = t.ExecContext(ctx, "RELEASE "+name)
		return err
	}
	if _, err := t.ExecContext(ctx, "RELEASE "+name); err != nil {
		return fmt.Errorf("failed to release savepoint: %w", err)
	}
	return nil
}

// InTx runs fn in a write transaction, committing when fn returns nil.
func (s *Session) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	tx, err := s.BeginWrite(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

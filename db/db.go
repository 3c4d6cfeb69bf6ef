// ABOUTME: Database connection management and initialization
// ABOUTME: Opens SQLite databases in WAL mode and initializes their schema
package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Kind tells the contacts database apart from the profile database.
type Kind int

const (
	KindContacts Kind = iota
	KindProfile
)

func (k Kind) String() string {
	if k == KindProfile {
		return "profile"
	}
	return "contacts"
}

// maxOpenConns leaves room for readers next to the single writer. WAL lets
// them read the last committed state while a write transaction is open.
const maxOpenConns = 4

// OpenDatabase opens (creating if needed) the database at path and returns a
// Session that serializes writers.
func OpenDatabase(path string, kind Kind) (*Session, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := path + "?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", kind, err)
	}
	db.SetMaxOpenConns(maxOpenConns)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open %s database: %w", kind, err)
	}

	if err := InitSchema(db, kind); err != nil {
		_ = db.Close()
		return nil, err
	}

	return newSession(db, kind, path), nil
}

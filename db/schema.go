// ABOUTME: Database schema definitions and initialization
// ABOUTME: Same schema serves the contacts database and the profile database
package db

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// SchemaVersion is bumped whenever schema below changes shape.
const SchemaVersion = 1

// ProfileIDSpaceStart is the first row id handed out in the profile database so
// that profile ids never collide with ids from the contacts database.
const ProfileIDSpaceStart int64 = 9223372034707292160

const schema = `
CREATE TABLE IF NOT EXISTS properties (
	property_key TEXT PRIMARY KEY,
	property_value TEXT
);

CREATE TABLE IF NOT EXISTS accounts (
	_id INTEGER PRIMARY KEY AUTOINCREMENT,
	account_name TEXT NOT NULL DEFAULT '',
	account_type TEXT NOT NULL DEFAULT '',
	data_set TEXT NOT NULL DEFAULT '',
	UNIQUE (account_name, account_type, data_set)
);

CREATE TABLE IF NOT EXISTS contacts (
	_id INTEGER PRIMARY KEY AUTOINCREMENT,
	name_raw_contact_id INTEGER,
	display_name TEXT,
	display_name_alt TEXT,
	display_name_source INTEGER NOT NULL DEFAULT 0,
	sort_key TEXT,
	sort_key_alt TEXT,
	lookup TEXT NOT NULL DEFAULT '',
	photo_id INTEGER,
	photo_file_id TEXT,
	starred INTEGER NOT NULL DEFAULT 0,
	pinned INTEGER NOT NULL DEFAULT 0,
	has_phone_number INTEGER NOT NULL DEFAULT 0,
	presence INTEGER NOT NULL DEFAULT 0,
	status TEXT,
	last_updated DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_contacts_sort_key ON contacts(sort_key);
CREATE INDEX IF NOT EXISTS idx_contacts_lookup ON contacts(lookup);

CREATE TABLE IF NOT EXISTS raw_contacts (
	_id INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id INTEGER NOT NULL REFERENCES accounts(_id),
	sourceid TEXT,
	contact_id INTEGER,
	aggregation_mode INTEGER NOT NULL DEFAULT 0,
	aggregation_needed INTEGER NOT NULL DEFAULT 1,
	deleted INTEGER NOT NULL DEFAULT 0,
	dirty INTEGER NOT NULL DEFAULT 0,
	version INTEGER NOT NULL DEFAULT 1,
	display_name TEXT,
	display_name_alt TEXT,
	display_name_source INTEGER NOT NULL DEFAULT 0,
	sort_key TEXT,
	sort_key_alt TEXT,
	name_verified INTEGER NOT NULL DEFAULT 0,
	starred INTEGER NOT NULL DEFAULT 0,
	pinned INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_raw_contacts_contact_id ON raw_contacts(contact_id);
CREATE INDEX IF NOT EXISTS idx_raw_contacts_source_id ON raw_contacts(sourceid, account_id);
CREATE INDEX IF NOT EXISTS idx_raw_contacts_needed ON raw_contacts(aggregation_needed);

CREATE TABLE IF NOT EXISTS data (
	_id INTEGER PRIMARY KEY AUTOINCREMENT,
	raw_contact_id INTEGER NOT NULL REFERENCES raw_contacts(_id),
	mimetype TEXT NOT NULL,
	is_primary INTEGER NOT NULL DEFAULT 0,
	is_super_primary INTEGER NOT NULL DEFAULT 0,
	data_version INTEGER NOT NULL DEFAULT 0,
	data1 TEXT,
	data2 TEXT,
	data3 TEXT,
	data4 TEXT,
	data5 TEXT,
	data6 TEXT,
	data7 TEXT,
	data8 TEXT,
	data9 TEXT,
	data10 TEXT,
	data15 BLOB
);

CREATE INDEX IF NOT EXISTS idx_data_raw_contact_id ON data(raw_contact_id);
CREATE INDEX IF NOT EXISTS idx_data_mimetype_data1 ON data(mimetype, data1);

CREATE TABLE IF NOT EXISTS contact_groups (
	_id INTEGER PRIMARY KEY AUTOINCREMENT,
	account_id INTEGER NOT NULL REFERENCES accounts(_id),
	sourceid TEXT,
	title TEXT,
	deleted INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_groups_source_id ON contact_groups(account_id, sourceid);

CREATE TABLE IF NOT EXISTS agg_exceptions (
	_id INTEGER PRIMARY KEY AUTOINCREMENT,
	type INTEGER NOT NULL,
	raw_contact_id1 INTEGER NOT NULL,
	raw_contact_id2 INTEGER NOT NULL,
	CHECK (raw_contact_id1 < raw_contact_id2),
	UNIQUE (raw_contact_id1, raw_contact_id2)
);

CREATE INDEX IF NOT EXISTS idx_agg_exceptions_id2 ON agg_exceptions(raw_contact_id2);

CREATE TABLE IF NOT EXISTS name_lookup (
	data_id INTEGER NOT NULL,
	raw_contact_id INTEGER NOT NULL,
	normalized_name TEXT NOT NULL,
	name_type INTEGER NOT NULL,
	PRIMARY KEY (data_id, normalized_name, name_type)
);

CREATE INDEX IF NOT EXISTS idx_name_lookup_name ON name_lookup(normalized_name, name_type);
CREATE INDEX IF NOT EXISTS idx_name_lookup_raw_contact_id ON name_lookup(raw_contact_id);

CREATE TABLE IF NOT EXISTS phone_lookup (
	data_id INTEGER NOT NULL,
	raw_contact_id INTEGER NOT NULL,
	normalized_number TEXT NOT NULL,
	min_match TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_phone_lookup_min_match ON phone_lookup(min_match);
CREATE INDEX IF NOT EXISTS idx_phone_lookup_data_id ON phone_lookup(data_id);

CREATE TABLE IF NOT EXISTS presence (
	data_id INTEGER PRIMARY KEY,
	raw_contact_id INTEGER NOT NULL,
	mode INTEGER NOT NULL DEFAULT 0,
	status TEXT,
	status_ts DATETIME
);

CREATE INDEX IF NOT EXISTS idx_presence_raw_contact_id ON presence(raw_contact_id);

CREATE TABLE IF NOT EXISTS directories (
	_id INTEGER PRIMARY KEY,
	package_name TEXT NOT NULL DEFAULT '',
	authority TEXT NOT NULL DEFAULT '',
	account_name TEXT NOT NULL DEFAULT '',
	account_type TEXT NOT NULL DEFAULT '',
	display_name TEXT,
	export_support INTEGER NOT NULL DEFAULT 0,
	shortcut_support INTEGER NOT NULL DEFAULT 0,
	photo_support INTEGER NOT NULL DEFAULT 0,
	UNIQUE (package_name, authority, account_name, account_type)
);

CREATE TABLE IF NOT EXISTS deleted_contacts (
	contact_id INTEGER PRIMARY KEY,
	deleted_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_deleted_contacts_ts ON deleted_contacts(deleted_at);

CREATE TABLE IF NOT EXISTS search_index (
	contact_id INTEGER PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS sync_state (
	account_id INTEGER PRIMARY KEY,
	data BLOB
);

CREATE TABLE IF NOT EXISTS sync_log (
	id TEXT PRIMARY KEY,
	account_id INTEGER NOT NULL,
	started_at TIMESTAMP NOT NULL,
	finished_at TIMESTAMP NOT NULL,
	status TEXT NOT NULL,
	error_message TEXT,
	full_sync INTEGER NOT NULL DEFAULT 0,
	fetched INTEGER NOT NULL DEFAULT 0,
	inserted INTEGER NOT NULL DEFAULT 0,
	updated INTEGER NOT NULL DEFAULT 0,
	deleted INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_sync_log_account ON sync_log(account_id, started_at);
`

// Reserved directory rows. Both always exist and are never removed by a rescan.
const seedDirectories = `
INSERT OR IGNORE INTO directories (_id, package_name, authority, display_name, export_support, shortcut_support, photo_support)
VALUES (0, '', 'local', 'Default', 0, 2, 2);
INSERT OR IGNORE INTO directories (_id, package_name, authority, display_name, export_support, shortcut_support, photo_support)
VALUES (1, '', 'local-invisible', 'Local invisible', 0, 2, 2);
`

// InitSchema creates every table, seeds reserved rows and stamps the schema
// version. A profile database also gets its id space moved out of the way.
func InitSchema(db *sql.DB, kind Kind) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	if _, err := db.Exec(seedDirectories); err != nil {
		return fmt.Errorf("failed to seed directories: %w", err)
	}

	ctx := context.Background()
	if kind == KindProfile {
		if err := initProfileIDSpace(ctx, db); err != nil {
			return err
		}
	}

	id, err := GetProperty(ctx, db, PropDatabaseID, "")
	if err != nil {
		return err
	}
	if id == "" {
		if err := SetProperty(ctx, db, PropDatabaseID, newInstanceID()); err != nil {
			return err
		}
	}
	return SetProperty(ctx, db, PropSchemaVersion, fmt.Sprint(SchemaVersion))
}

// initProfileIDSpace seeds sqlite_sequence so AUTOINCREMENT tables start at
// ProfileIDSpaceStart. Tables that already have rows are left alone.
func initProfileIDSpace(ctx context.Context, db *sql.DB) error {
	for _, table := range []string{"raw_contacts", "contacts", "data", "contact_groups", "accounts", "agg_exceptions"} {
		var n int
		err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sqlite_sequence WHERE name = ?`, table).Scan(&n)
		if err != nil {
			return fmt.Errorf("failed to read id sequence for %s: %w", table, err)
		}
		if n > 0 {
			continue
		}
		if _, err := db.ExecContext(ctx, `INSERT INTO sqlite_sequence (name, seq) VALUES (?, ?)`, table, ProfileIDSpaceStart); err != nil {
			return fmt.Errorf("failed to seed id sequence for %s: %w", table, err)
		}
	}
	return nil
}

func newInstanceID() string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// Package db opens the SQLite store that mirrors upstream forms.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SchemaVersion is stored in PRAGMA user_version.
const SchemaVersion = 2

const schema = `
CREATE TABLE IF NOT EXISTS forms (
	uid            TEXT PRIMARY KEY,
	title          TEXT NOT NULL DEFAULT '',
	slug           TEXT NOT NULL UNIQUE,
	description    TEXT NOT NULL DEFAULT '',
	schema_version TEXT NOT NULL DEFAULT '',
	schema         BLOB,
	cursor         TEXT NOT NULL DEFAULT '',
	last_synced_at TEXT,
	created_at     TEXT NOT NULL,
	updated_at     TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS submissions (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	form_uid     TEXT NOT NULL REFERENCES forms(uid) ON DELETE CASCADE,
	kobo_id      TEXT NOT NULL,
	raw          TEXT NOT NULL,
	cleaned      TEXT,
	content_hash TEXT NOT NULL,
	submitted_at TEXT,
	latitude     REAL,
	longitude    REAL,
	created_at   TEXT NOT NULL,
	updated_at   TEXT NOT NULL,
	UNIQUE (form_uid, kobo_id)
);
CREATE INDEX IF NOT EXISTS idx_submissions_form_time ON submissions(form_uid, submitted_at);

CREATE TABLE IF NOT EXISTS sync_logs (
	id                TEXT PRIMARY KEY,
	form_uid          TEXT NOT NULL,
	kind              TEXT NOT NULL,
	status            TEXT NOT NULL,
	started_at        TEXT NOT NULL,
	finished_at       TEXT,
	records_processed INTEGER NOT NULL DEFAULT 0,
	records_added     INTEGER NOT NULL DEFAULT 0,
	records_updated   INTEGER NOT NULL DEFAULT 0,
	error             TEXT NOT NULL DEFAULT '',
	record_errors     TEXT
);
CREATE INDEX IF NOT EXISTS idx_sync_logs_form_started ON sync_logs(form_uid, started_at);

CREATE TABLE IF NOT EXISTS indicators (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	form_uid    TEXT NOT NULL REFERENCES forms(uid) ON DELETE CASCADE,
	name        TEXT NOT NULL,
	type        TEXT NOT NULL,
	field       TEXT NOT NULL DEFAULT '',
	answer      TEXT NOT NULL DEFAULT '',
	value       REAL NOT NULL,
	computed_at TEXT NOT NULL,
	UNIQUE (form_uid, name)
);
`

// DB wraps the sql handle.
type DB struct {
	db *sql.DB
}

// Open opens or creates the database file at path.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return initialize(sqlDB)
}

// OpenInMemory opens a private in-memory database, mainly for tests.
func OpenInMemory() (*DB, error) {
	sqlDB, err := sql.Open("sqlite", "file::memory:?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, err
	}
	// Every pooled connection to :memory: would see its own empty database.
	sqlDB.SetMaxOpenConns(1)
	return initialize(sqlDB)
}

func initialize(sqlDB *sql.DB) (*DB, error) {
	d := &DB{db: sqlDB}
	if err := d.migrate(context.Background()); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return d, nil
}

func (d *DB) migrate(ctx context.Context) error {
	var version int
	if err := d.db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version > SchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported %d", version, SchemaVersion)
	}
	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := d.db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", SchemaVersion)); err != nil {
		return fmt.Errorf("write schema version: %w", err)
	}
	return nil
}

// SQL returns the underlying handle for repositories.
func (d *DB) SQL() *sql.DB {
	return d.db
}

func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Compact rebuilds the database file and refreshes planner statistics.
func (d *DB) Compact(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	if _, err := d.db.ExecContext(ctx, "ANALYZE"); err != nil {
		return fmt.Errorf("analyze: %w", err)
	}
	return nil
}

func (d *DB) Close() error {
	return d.db.Close()
}

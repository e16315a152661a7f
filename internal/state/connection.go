// Package state implements the relational state store: the run and job
// tables that record ingestion progress, backed by SQLite through sqlx.
package state

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	"github.com/ternarybob/arbor"
	_ "modernc.org/sqlite"
)

// DB wraps the underlying sqlx connection plus the logger used by the
// stores built on top of it.
type DB struct {
	conn   *sqlx.DB
	logger arbor.ILogger
}

// Open creates (or reuses) the SQLite database at path and applies the
// schema. path may be ":memory:" for tests.
func Open(path string, logger arbor.ILogger) (*DB, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create state store directory: %w", err)
		}
	}

	conn, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open state store: %w", err)
	}

	// SQLite tolerates exactly one writer; a single connection avoids
	// SQLITE_BUSY storms under concurrent workers and is what the teacher's
	// own sqlite layer does for the same reason.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	db := &DB{conn: conn, logger: logger}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate state store: %w", err)
	}

	return db, nil
}

// Close releases the underlying connection.
func (d *DB) Close() error {
	return d.conn.Close()
}

// Conn exposes the raw sqlx handle for packages (like the queue layer)
// that need to share the same SQLite file.
func (d *DB) Conn() *sqlx.DB {
	return d.conn
}

func (d *DB) migrate() error {
	_, err := d.conn.Exec(schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS run (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id       TEXT NOT NULL,
	status        TEXT NOT NULL,
	force         INTEGER NOT NULL DEFAULT 0,
	total_jobs    INTEGER NOT NULL DEFAULT 0,
	jobs_ready    INTEGER NOT NULL DEFAULT 0,
	jobs_skipped  INTEGER NOT NULL DEFAULT 0,
	jobs_expired  INTEGER NOT NULL DEFAULT 0,
	jobs_failed   INTEGER NOT NULL DEFAULT 0,
	created_at    DATETIME NOT NULL,
	started_at    DATETIME,
	finished_at   DATETIME,
	error_message TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_run_user_status ON run(user_id, status);

CREATE TABLE IF NOT EXISTS job (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id        INTEGER NOT NULL,
	user_id       TEXT NOT NULL,
	company       TEXT NOT NULL,
	external_id   TEXT NOT NULL,
	url           TEXT NOT NULL,
	status        TEXT NOT NULL,
	title         TEXT NOT NULL DEFAULT '',
	location      TEXT NOT NULL DEFAULT '',
	description   TEXT NOT NULL DEFAULT '',
	requirements  TEXT NOT NULL DEFAULT '',
	simhash       INTEGER NOT NULL DEFAULT 0,
	has_simhash   INTEGER NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL,
	updated_at    DATETIME NOT NULL,
	UNIQUE(user_id, company, external_id)
);

CREATE INDEX IF NOT EXISTS idx_job_run_status ON job(run_id, status);
CREATE INDEX IF NOT EXISTS idx_job_natural_key ON job(user_id, company, external_id);
`

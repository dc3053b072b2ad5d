// Package store manages the SQLite journal (WAL mode) for link events and
// debug frame exchanges. The link state machine itself keeps no state here;
// the journal exists for the history API and postmortems.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// DB wraps *sql.DB with domain helpers.
type DB struct {
	*sql.DB
}

// Open opens (or creates) the SQLite file at path with WAL journal mode.
func Open(path string) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000", path)
	raw, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if err := raw.Ping(); err != nil {
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	// Limit writer concurrency to 1; SQLite WAL allows concurrent readers.
	raw.SetMaxOpenConns(1)
	return &DB{raw}, nil
}

// Migrate applies the embedded DDL schema to the database.
// It is idempotent (IF NOT EXISTS everywhere).
func Migrate(db *DB) error {
	ddl := []string{
		ddlLinkEvents,
		ddlFrameLog,
	}
	for _, stmt := range ddl {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}

// LinkEvent is one journaled connection-lifecycle notification.
type LinkEvent struct {
	ID      int64     `json:"id"`
	Kind    string    `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// InsertLinkEvent journals one notification and returns its row ID.
func (db *DB) InsertLinkEvent(kind, message string, at time.Time) (int64, error) {
	res, err := db.Exec(
		`INSERT INTO link_events (kind, message, at) VALUES (?, ?, ?)`,
		kind, message, at.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("store: insert link event: %w", err)
	}
	return res.LastInsertId()
}

// ListLinkEvents returns the n most recent link events, newest first.
func (db *DB) ListLinkEvents(n int) ([]*LinkEvent, error) {
	rows, err := db.Query(
		`SELECT id, kind, message, at FROM link_events ORDER BY at DESC, id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("store: list link events: %w", err)
	}
	defer rows.Close()

	var out []*LinkEvent
	for rows.Next() {
		var (
			e  LinkEvent
			ts int64
		)
		if err := rows.Scan(&e.ID, &e.Kind, &e.Message, &ts); err != nil {
			return nil, err
		}
		e.At = time.UnixMilli(ts).UTC()
		out = append(out, &e)
	}
	return out, rows.Err()
}

// InsertFrameLog records one debug frame exchange leg.
func (db *DB) InsertFrameLog(direction string, command, wordCount byte, at time.Time) error {
	_, err := db.Exec(
		`INSERT INTO frame_log (direction, command, word_count, at) VALUES (?, ?, ?, ?)`,
		direction, command, wordCount, at.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("store: insert frame log: %w", err)
	}
	return nil
}

// ── DDL statements ────────────────────────────────────────────────────────

const ddlLinkEvents = `
CREATE TABLE IF NOT EXISTS link_events (
    id      INTEGER PRIMARY KEY AUTOINCREMENT,
    kind    TEXT    NOT NULL,          -- connected | disconnected | reconnected
    message TEXT    NOT NULL,
    at      INTEGER NOT NULL           -- Unix milliseconds
);
CREATE INDEX IF NOT EXISTS idx_link_events_at ON link_events (at DESC);
`

const ddlFrameLog = `
CREATE TABLE IF NOT EXISTS frame_log (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    direction  TEXT    NOT NULL,       -- 'tx' | 'rx'
    command    INTEGER NOT NULL,
    word_count INTEGER NOT NULL,
    at         INTEGER NOT NULL        -- Unix milliseconds
);
`

// Package journal keeps a local SQLite record of conversion outcomes.
//
// The journal never stores credentials or message contents, only what was
// attempted and how it was classified.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory journal.
const MemoryPath = ":memory:"

// timeLayout is fixed width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Entry is one recorded conversion attempt.
type Entry struct {
	ID           string
	MessageType  string
	Outcome      string
	Message      string
	PayloadBytes int
	CreatedAt    time.Time
}

// SQLiteJournal is a journal backed by modernc.org/sqlite.
type SQLiteJournal struct {
	db *sql.DB
}

// Open opens (creating if needed) the journal at path.
func Open(path string) (*SQLiteJournal, error) {
	dsn := MemoryPath
	if path != MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("creating journal directory: %w", err)
		}
		dsn = path + "?_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	// One connection: SQLite has a single writer, and :memory: is per connection.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating journal: %w", err)
	}

	return &SQLiteJournal{db: db}, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversions (
			id TEXT PRIMARY KEY,
			message_type TEXT NOT NULL,
			outcome TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			payload_bytes INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_conversions_created ON conversions(created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Record stores e, assigning an ID and timestamp when missing.
func (j *SQLiteJournal) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	_, err := j.db.ExecContext(ctx,
		"INSERT INTO conversions (id, message_type, outcome, message, payload_bytes, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		e.ID, e.MessageType, e.Outcome, e.Message, e.PayloadBytes, e.CreatedAt.UTC().Format(timeLayout),
	)
	return err
}

// List returns up to limit entries, newest first.
func (j *SQLiteJournal) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := j.db.QueryContext(ctx,
		"SELECT id, message_type, outcome, message, payload_bytes, created_at FROM conversions ORDER BY created_at DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var created string
		if err := rows.Scan(&e.ID, &e.MessageType, &e.Outcome, &e.Message, &e.PayloadBytes, &created); err != nil {
			return nil, err
		}
		e.CreatedAt, err = time.Parse(timeLayout, created)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at for %s: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// CountByOutcome returns how many entries were recorded per outcome.
func (j *SQLiteJournal) CountByOutcome(ctx context.Context) (map[string]int, error) {
	rows, err := j.db.QueryContext(ctx, "SELECT outcome, COUNT(*) FROM conversions GROUP BY outcome")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var outcome string
		var n int
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		counts[outcome] = n
	}
	return counts, rows.Err()
}

// Prune removes entries older than cutoff and reports how many were removed.
func (j *SQLiteJournal) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := j.db.ExecContext(ctx, "DELETE FROM conversions WHERE created_at < ?", cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Close closes the database.
func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

// Package history keeps an append-only journal of check runs in SQLite, one
// row per outcome or failure. The cache store holds only the latest state per
// application; the journal is how "what happened last Tuesday" gets answered.
package history

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/001_initial.sql
var migrationSQL string

// KindFailed marks a journal row recording a failed check. Successful rows
// carry the outcome kind (skipped, repaired, updated).
const KindFailed = "failed"

// Entry is one journal row.
type Entry struct {
	ID            int64     `json:"id" yaml:"id"`
	ApplicationID string    `json:"application_id" yaml:"application_id"`
	Kind          string    `json:"kind" yaml:"kind"`
	Previous      string    `json:"previous,omitempty" yaml:"previous,omitempty"`
	Version       string    `json:"version,omitempty" yaml:"version,omitempty"`
	Path          string    `json:"path,omitempty" yaml:"path,omitempty"`
	ContentHash   string    `json:"content_hash,omitempty" yaml:"content_hash,omitempty"`
	Error         string    `json:"error,omitempty" yaml:"error,omitempty"`
	CheckedAt     time.Time `json:"checked_at" yaml:"checked_at"`
}

func (e Entry) String() string {
	ts := e.CheckedAt.Local().Format("2006-01-02 15:04:05")
	switch e.Kind {
	case KindFailed:
		return fmt.Sprintf("%s  %-20s failed: %s", ts, e.ApplicationID, e.Error)
	case "updated":
		prev := e.Previous
		if prev == "" {
			prev = "none"
		}
		return fmt.Sprintf("%s  %-20s updated %s -> %s", ts, e.ApplicationID, prev, e.Version)
	default:
		return fmt.Sprintf("%s  %-20s %s (%s)", ts, e.ApplicationID, e.Kind, e.Version)
	}
}

// Journal is the run journal backed by one SQLite database file.
type Journal struct {
	db *sql.DB
}

// Open opens (creating if needed) the journal at dbPath and applies the
// schema.
func Open(dbPath string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	// SQLite performs best with a single writer.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping journal: %w", err)
	}

	if _, err := db.Exec(migrationSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close releases the database handle.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Append records one entry. The ID and a zero CheckedAt are filled in here.
func (j *Journal) Append(ctx context.Context, e Entry) error {
	if e.ApplicationID == "" {
		return fmt.Errorf("journal entry has no application id")
	}
	if e.Kind == "" {
		return fmt.Errorf("journal entry has no kind")
	}
	if e.CheckedAt.IsZero() {
		e.CheckedAt = time.Now()
	}

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO runs (application_id, kind, previous, version, path, content_hash, error, checked_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ApplicationID, e.Kind, e.Previous, e.Version, e.Path, e.ContentHash, e.Error,
		e.CheckedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("append journal entry: %w", err)
	}
	return nil
}

// Recent returns the newest entries, most recent first. An empty
// applicationID selects all applications; limit <= 0 means 50.
func (j *Journal) Recent(ctx context.Context, applicationID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, application_id, kind, previous, version, path, content_hash, error, checked_at
	          FROM runs`
	args := []any{}
	if applicationID != "" {
		query += ` WHERE application_id = ?`
		args = append(args, applicationID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e  Entry
			ts string
		)
		if err := rows.Scan(&e.ID, &e.ApplicationID, &e.Kind, &e.Previous, &e.Version,
			&e.Path, &e.ContentHash, &e.Error, &ts); err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}
		e.CheckedAt, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("journal row %d: bad timestamp %q: %w", e.ID, ts, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read journal rows: %w", err)
	}
	return entries, nil
}

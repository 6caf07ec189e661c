// Package journal keeps an audit trail of kiosk sessions in SQLite.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Outcome is how a session ended.
type Outcome string

const (
	OutcomePrinted     Outcome = "printed"      // picture taken, printer drained
	OutcomePrintFailed Outcome = "print_failed" // picture taken, print not confirmed
	OutcomeAborted     Outcome = "aborted"      // fatal error, kiosk shutting down
	OutcomeInterrupted Outcome = "interrupted"  // shutdown requested mid-session
)

// Entry is one session row.
type Entry struct {
	ID         string
	ImageID    uint64
	ImagePath  string
	StartedAt  time.Time
	FinishedAt time.Time
	Outcome    Outcome
	Error      string
}

// NewID returns a fresh session identifier.
func NewID() string {
	return uuid.NewString()
}

// SQLiteJournal implements the session journal on a local SQLite file.
type SQLiteJournal struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	id          TEXT PRIMARY KEY,
	image_id    INTEGER NOT NULL,
	image_path  TEXT NOT NULL,
	started_at  TIMESTAMP NOT NULL,
	finished_at TIMESTAMP NOT NULL,
	outcome     TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at);
`

// Open opens (creating if needed) the journal database at path.
func Open(path string) (*SQLiteJournal, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	// One kiosk, one writer.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create journal schema: %w", err)
	}
	return &SQLiteJournal{db: db}, nil
}

// Record stores e, updating the row if the session id is already known.
func (j *SQLiteJournal) Record(ctx context.Context, e Entry) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO sessions (id, image_id, image_path, started_at, finished_at, outcome, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			image_id = excluded.image_id,
			image_path = excluded.image_path,
			finished_at = excluded.finished_at,
			outcome = excluded.outcome,
			error = excluded.error`,
		e.ID, int64(e.ImageID), e.ImagePath, e.StartedAt.UTC(), e.FinishedAt.UTC(), string(e.Outcome), e.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to record session %s: %w", e.ID, err)
	}
	return nil
}

// Recent returns up to limit sessions, newest first.
func (j *SQLiteJournal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, image_id, image_path, started_at, finished_at, outcome, error
		FROM sessions
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var imageID int64
		var outcome string
		if err := rows.Scan(&e.ID, &imageID, &e.ImagePath, &e.StartedAt, &e.FinishedAt, &outcome, &e.Error); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		e.ImageID = uint64(imageID)
		e.Outcome = Outcome(outcome)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (j *SQLiteJournal) Close() error {
	return j.db.Close()
}

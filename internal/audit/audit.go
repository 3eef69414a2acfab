// Package audit provides the append-only record of every apply, reject and
// restore the patch engine performs. Entries are never updated or deleted;
// the only read surface is the projections by file path and by time range.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Action identifies what happened to a file.
type Action string

const (
	ActionApplied  Action = "applied"
	ActionRejected Action = "rejected"
	ActionRestored Action = "restored"
)

// Entry is one audit row. BackupRef is empty for rejected proposals.
type Entry struct {
	ID            string    `json:"id"`
	FilePath      string    `json:"file_path"`
	Action        Action    `json:"action"`
	HunksTotal    int       `json:"hunks_total"`
	HunksSelected int       `json:"hunks_selected"`
	BackupRef     string    `json:"backup_ref,omitempty"`
	Notes         string    `json:"notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Log is a SQLite-backed audit sink.
type Log struct {
	db *sql.DB
}

// Open creates or opens the audit database at dbPath and ensures the schema
// exists.
func Open(dbPath string) (*Log, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open audit database: %w", err)
	}

	l := &Log{db: db}
	if err := l.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

// Close closes the database connection.
func (l *Log) Close() error {
	return l.db.Close()
}

func (l *Log) initialize() error {
	schema := `
	-- Audit trail (append-only)
	CREATE TABLE IF NOT EXISTS audit_entries (
		id TEXT PRIMARY KEY,
		file_path TEXT NOT NULL,
		action TEXT NOT NULL,
		hunks_total INTEGER NOT NULL DEFAULT 0,
		hunks_selected INTEGER NOT NULL DEFAULT 0,
		backup_ref TEXT,
		notes TEXT,
		-- UnixNano; a fixed-width integer so range queries and ordering
		-- compare correctly at any sub-second precision.
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_path ON audit_entries(file_path);
	CREATE INDEX IF NOT EXISTS idx_audit_created ON audit_entries(created_at);
	`
	if _, err := l.db.Exec(schema); err != nil {
		return fmt.Errorf("initialize audit schema: %w", err)
	}
	return nil
}

// Append durably records an entry. A zero ID and timestamp are filled in;
// retries that re-append the same action are acceptable, lost entries are
// not.
func (l *Log) Append(ctx context.Context, e *Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	_, err := l.db.ExecContext(ctx, `
		INSERT INTO audit_entries
			(id, file_path, action, hunks_total, hunks_selected, backup_ref, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.FilePath, string(e.Action), e.HunksTotal, e.HunksSelected,
		e.BackupRef, e.Notes, e.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("append audit entry: %w", err)
	}
	return nil
}

// ListByPath returns every entry recorded for filePath, oldest first.
func (l *Log) ListByPath(ctx context.Context, filePath string) ([]*Entry, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, file_path, action, hunks_total, hunks_selected, backup_ref, notes, created_at
		FROM audit_entries
		WHERE file_path = ?
		ORDER BY created_at, id`, filePath)
	if err != nil {
		return nil, fmt.Errorf("query audit by path: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ListRange returns every entry with a timestamp in [since, until], oldest
// first. A zero until means "now".
func (l *Log) ListRange(ctx context.Context, since, until time.Time) ([]*Entry, error) {
	if until.IsZero() {
		until = time.Now().UTC()
	}
	// A zero since predates the UnixNano range; treat it as unbounded.
	sinceNS := int64(math.MinInt64)
	if !since.IsZero() {
		sinceNS = since.UnixNano()
	}
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, file_path, action, hunks_total, hunks_selected, backup_ref, notes, created_at
		FROM audit_entries
		WHERE created_at >= ? AND created_at <= ?
		ORDER BY created_at, id`,
		sinceNS, until.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("query audit by range: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]*Entry, error) {
	var entries []*Entry
	for rows.Next() {
		e := &Entry{}
		var action string
		var createdNS int64
		var backupRef, notes sql.NullString
		if err := rows.Scan(&e.ID, &e.FilePath, &action, &e.HunksTotal, &e.HunksSelected,
			&backupRef, &notes, &createdNS); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.Action = Action(action)
		e.BackupRef = backupRef.String
		e.Notes = notes.String
		e.CreatedAt = time.Unix(0, createdNS).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

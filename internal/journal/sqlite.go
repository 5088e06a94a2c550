// Package journal records every hbk command that talks to the backend in a
// local SQLite database, so past operations and their outcomes can be
// reviewed with "hbk history".
package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"hbk-go/internal/hbk"
	"hbk-go/internal/journal/migrations"
)

// Entry statuses.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusError   = "error"
)

// Entry is one recorded command.
type Entry struct {
	ID         int64
	OpID       string
	Operation  string
	BackupID   string
	StartedAt  time.Time
	FinishedAt sql.NullTime
	Status     string
	Error      string
}

// Duration returns how long the command ran, or zero if it never finished.
func (e *Entry) Duration() time.Duration {
	if !e.FinishedAt.Valid {
		return 0
	}
	return e.FinishedAt.Time.Sub(e.StartedAt)
}

// SQLiteJournal stores entries in the journal_entries table.
type SQLiteJournal struct {
	db    *sql.DB
	clock hbk.Clock
	path  string
}

// Open opens the journal at path (or ":memory:") and migrates it to the
// latest schema.
func Open(path string, clock hbk.Clock) (*SQLiteJournal, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.Up(db); err != nil {
		db.Close()
		return nil, err
	}
	if clock == nil {
		clock = hbk.RealClock{}
	}
	return &SQLiteJournal{db: db, clock: clock, path: path}, nil
}

// OpenConnection opens a SQLite connection configured for the journal.
// An in-memory database is limited to one connection; each new connection
// would otherwise see its own empty database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening journal database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configuring journal database: %w", err)
	}
	return db, nil
}

// Start records a command as running and returns the new entry.
func (j *SQLiteJournal) Start(opID, operation, backupID string) (*Entry, error) {
	e := &Entry{
		OpID:      opID,
		Operation: operation,
		BackupID:  backupID,
		StartedAt: j.clock.Now().UTC(),
		Status:    StatusRunning,
	}
	res, err := j.db.Exec(
		`INSERT INTO journal_entries (op_id, operation, backup_id, started_at, status) VALUES (?, ?, ?, ?, ?)`,
		e.OpID, e.Operation, e.BackupID, e.StartedAt, e.Status,
	)
	if err != nil {
		return nil, fmt.Errorf("starting journal entry: %w", err)
	}
	if e.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("reading journal entry id: %w", err)
	}
	return e, nil
}

// ErrUnknownEntry is returned when finishing an entry that does not exist.
var ErrUnknownEntry = errors.New("unknown journal entry")

// Finish stamps the entry with its final status and error text.
func (j *SQLiteJournal) Finish(id int64, status, errText string) error {
	res, err := j.db.Exec(
		`UPDATE journal_entries SET finished_at = ?, status = ?, error = ? WHERE id = ?`,
		j.clock.Now().UTC(), status, errText, id,
	)
	if err != nil {
		return fmt.Errorf("finishing journal entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finishing journal entry: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finishing journal entry %d: %w", id, ErrUnknownEntry)
	}
	return nil
}

// List returns the most recent entries, newest first. A non-empty backupID
// restricts the result to commands naming that backup.
func (j *SQLiteJournal) List(limit int, backupID string) ([]*Entry, error) {
	query := `SELECT id, op_id, operation, backup_id, started_at, finished_at, status, error
		FROM journal_entries`
	args := []any{}
	if backupID != "" {
		query += ` WHERE backup_id = ?`
		args = append(args, backupID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := j.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing journal entries: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e := &Entry{}
		if err := rows.Scan(&e.ID, &e.OpID, &e.Operation, &e.BackupID, &e.StartedAt, &e.FinishedAt, &e.Status, &e.Error); err != nil {
			return nil, fmt.Errorf("scanning journal entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing journal entries: %w", err)
	}
	return out, nil
}

// Path returns the database path.
func (j *SQLiteJournal) Path() string { return j.path }

// CheckMigrations verifies the schema is current.
func (j *SQLiteJournal) CheckMigrations() error {
	return migrations.Check(j.db)
}

// ExportTo writes a consistent copy of the journal to destPath.
func (j *SQLiteJournal) ExportTo(destPath string) error {
	if _, err := j.db.Exec("VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("exporting journal: %w", err)
	}
	return nil
}

// Close closes the database.
func (j *SQLiteJournal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

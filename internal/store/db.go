// Package store provides SQLite-backed storage for kernel log events.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/setevik/kmsgd/internal/event"
)

// tsLayout is fixed-width so that timestamps compare correctly as text.
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

// DB wraps an SQLite connection for event storage.
type DB struct {
	db *sql.DB
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// Open opens or creates an SQLite database at the given path.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating db directory: %w", err)
	}

	// synchronous=FULL: a committed insert survives power loss, which is what
	// a sync-requested record asks for.
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=FULL")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Single writer connection to avoid SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Insert stores one event and commits it immediately.
func (d *DB) Insert(ev *event.Event) error {
	return insert(d.db, ev)
}

func insert(x execer, ev *event.Event) error {
	_, err := x.Exec(`
		INSERT INTO records (id, instance_id, timestamp, facility, severity, seq, subsystem, message, truncated, startup)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID,
		ev.InstanceID,
		ev.Timestamp.UTC().Format(tsLayout),
		int(ev.Facility),
		int(ev.Severity),
		int64(ev.Seq),
		ev.Subsystem,
		ev.Message,
		ev.Truncated,
		ev.Startup,
	)
	if err != nil {
		return fmt.Errorf("inserting record: %w", err)
	}
	return nil
}

// Batch groups inserts into one transaction so they reach disk together.
type Batch struct {
	tx *sql.Tx
	n  int
}

// Begin starts a Batch. While it is open the DB's single connection is
// held, so the caller must Commit or Rollback before using the DB directly.
func (d *DB) Begin() (*Batch, error) {
	tx, err := d.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning batch: %w", err)
	}
	return &Batch{tx: tx}, nil
}

// Insert adds an event to the batch.
func (b *Batch) Insert(ev *event.Event) error {
	if err := insert(b.tx, ev); err != nil {
		return err
	}
	b.n++
	return nil
}

// Len returns the number of events inserted so far.
func (b *Batch) Len() int { return b.n }

// Commit makes the batch durable.
func (b *Batch) Commit() error {
	if err := b.tx.Commit(); err != nil {
		return fmt.Errorf("committing batch of %d: %w", b.n, err)
	}
	return nil
}

// Rollback discards the batch.
func (b *Batch) Rollback() error {
	return b.tx.Rollback()
}

// QueryFilter controls which events are returned by Query.
type QueryFilter struct {
	Since      time.Time
	Until      time.Time
	Severity   *event.Severity // only events at least this urgent
	Subsystem  string
	InstanceID string
	Limit      int
	Ascending  bool
}

// Query returns events matching the filter, newest first unless Ascending.
func (d *DB) Query(f QueryFilter) ([]*event.Event, error) {
	rows, err := d.query(f)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*event.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (d *DB) query(f QueryFilter) (*sql.Rows, error) {
	query := `SELECT id, instance_id, timestamp, facility, severity, seq, subsystem, message, truncated, startup
		FROM records WHERE 1=1`
	var args []any

	if !f.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, f.Since.UTC().Format(tsLayout))
	}
	if !f.Until.IsZero() {
		query += " AND timestamp <= ?"
		args = append(args, f.Until.UTC().Format(tsLayout))
	}
	if f.Severity != nil {
		query += " AND severity <= ?"
		args = append(args, int(*f.Severity))
	}
	if f.Subsystem != "" {
		query += " AND subsystem = ?"
		args = append(args, f.Subsystem)
	}
	if f.InstanceID != "" {
		query += " AND instance_id = ?"
		args = append(args, f.InstanceID)
	}

	if f.Ascending {
		query += " ORDER BY timestamp ASC, seq ASC"
	} else {
		query += " ORDER BY timestamp DESC, seq DESC"
	}

	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	return rows, nil
}

// Count returns the total number of stored events.
func (d *DB) Count() (int64, error) {
	var n int64
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting records: %w", err)
	}
	return n, nil
}

func scanEvent(rows *sql.Rows) (*event.Event, error) {
	var ev event.Event
	var tsStr string
	var fac, sev int
	var seq int64
	var subsystem sql.NullString

	err := rows.Scan(
		&ev.ID,
		&ev.InstanceID,
		&tsStr,
		&fac,
		&sev,
		&seq,
		&subsystem,
		&ev.Message,
		&ev.Truncated,
		&ev.Startup,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning record row: %w", err)
	}

	ev.Timestamp, _ = time.Parse(tsLayout, tsStr)
	ev.Facility = event.Facility(fac)
	ev.Severity = event.Severity(sev)
	ev.Seq = uint64(seq)
	ev.Subsystem = subsystem.String

	return &ev, nil
}

func migrate(db *sql.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS records (
			id          TEXT PRIMARY KEY,
			instance_id TEXT NOT NULL,
			timestamp   TEXT NOT NULL,
			facility    INTEGER NOT NULL,
			severity    INTEGER NOT NULL,
			seq         INTEGER,
			subsystem   TEXT,
			message     TEXT NOT NULL,
			truncated   BOOLEAN DEFAULT FALSE,
			startup     BOOLEAN DEFAULT FALSE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_instance_ts ON records(instance_id, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_records_severity ON records(severity, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_records_subsystem ON records(subsystem, timestamp)`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}

	slog.Debug("database schema up to date")
	return nil
}

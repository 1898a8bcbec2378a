// Package queue is the downstream stage of the poll loop: it formats each
// reassembled record and persists it, batching the startup backlog into a
// single transaction and committing steady-state records one at a time.
package queue

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/setevik/kmsgd/internal/event"
	"github.com/setevik/kmsgd/internal/formatter"
	"github.com/setevik/kmsgd/internal/reassembler"
	"github.com/setevik/kmsgd/internal/store"
)

// Options tunes a Queue.
type Options struct {
	// BatchLimit commits an open batch once it holds this many records.
	// Zero leaves the batch open until Flush.
	BatchLimit int

	// Alert, if set, receives steady-state events at least AlertSeverity
	// urgent. It runs on the reader goroutine and must not block.
	Alert         func(*event.Event)
	AlertSeverity event.Severity

	Logger *slog.Logger
}

// Queue implements watcher.Sink on top of a store.DB. It is driven from a
// single goroutine.
type Queue struct {
	db   *store.DB
	fmtr *formatter.Formatter
	opts Options
	log  *slog.Logger

	batch  *store.Batch
	stored atomic.Int64
	alerts atomic.Int64
}

// New creates a Queue writing to db.
func New(db *store.DB, f *formatter.Formatter, opts Options) *Queue {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Queue{db: db, fmtr: f, opts: opts, log: log}
}

// FormatAndEnqueue formats rec and stores it. Records with sync set are
// committed before returning; the rest join the open batch.
func (q *Queue) FormatAndEnqueue(rec reassembler.Record, sync bool) error {
	ev := q.fmtr.Format(rec, !sync)

	if sync {
		// The open batch holds the only connection.
		if err := q.Flush(); err != nil {
			return err
		}
		if err := q.db.Insert(ev); err != nil {
			return err
		}
		q.stored.Add(1)
		q.alert(ev)
		return nil
	}

	if q.batch == nil {
		b, err := q.db.Begin()
		if err != nil {
			return err
		}
		q.batch = b
	}
	if err := q.batch.Insert(ev); err != nil {
		return err
	}
	if q.opts.BatchLimit > 0 && q.batch.Len() >= q.opts.BatchLimit {
		return q.Flush()
	}
	return nil
}

// Flush commits the open batch, if any.
func (q *Queue) Flush() error {
	if q.batch == nil {
		return nil
	}
	b := q.batch
	q.batch = nil

	n := b.Len()
	if err := b.Commit(); err != nil {
		return fmt.Errorf("flushing %d queued records: %w", n, err)
	}
	q.stored.Add(int64(n))
	q.log.Debug("batch committed", "records", n)
	return nil
}

// Close commits anything still batched.
func (q *Queue) Close() error {
	return q.Flush()
}

// Stored returns how many records have been committed.
func (q *Queue) Stored() int64 { return q.stored.Load() }

// Alerts returns how many events were passed to the alert hook.
func (q *Queue) Alerts() int64 { return q.alerts.Load() }

func (q *Queue) alert(ev *event.Event) {
	if q.opts.Alert == nil || ev.Severity > q.opts.AlertSeverity {
		return
	}
	q.alerts.Add(1)
	q.opts.Alert(ev)
}

package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/setevik/kmsgd/internal/device"
	"github.com/setevik/kmsgd/internal/reassembler"
)

// MaxReopenAttempts is the default number of consecutive failed reopens
// after which the loop gives up.
const MaxReopenAttempts = 10

// ErrRetryBudgetExhausted is returned by Run when the device could not be
// reopened within the retry budget.
var ErrRetryBudgetExhausted = errors.New("kernel log device reopen budget exhausted")

// Options tunes a Loop. Zero values select defaults.
type Options struct {
	BufferSize  int
	MaxReopen   int
	ReopenDelay time.Duration
	Logger      *slog.Logger
}

// Loop drives one Device. Run must be called at most once, from a single
// goroutine; Stats may be called from anywhere.
type Loop struct {
	dev  Device
	sink Sink
	asm  *reassembler.Reassembler
	log  *slog.Logger

	maxReopen   int
	reopenDelay time.Duration

	// owned by the Run goroutine
	burst      bool
	burstCount int
	retries    int

	state        atomic.Int32
	records      atomic.Uint64
	burstRecords atomic.Uint64
	truncated    atomic.Uint64
	reopens      atomic.Uint64
	flushes      atomic.Uint64
	flushErrors  atomic.Uint64
	overruns     atomic.Uint64
}

// New creates a Loop reading dev and delivering to sink.
func New(dev Device, sink Sink, opts Options) *Loop {
	if opts.MaxReopen <= 0 {
		opts.MaxReopen = MaxReopenAttempts
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Loop{
		dev:         dev,
		sink:        sink,
		asm:         reassembler.New(opts.BufferSize),
		log:         opts.Logger,
		maxReopen:   opts.MaxReopen,
		reopenDelay: opts.ReopenDelay,
	}
}

// Stats returns a snapshot of the loop counters.
func (l *Loop) Stats() Stats {
	return Stats{
		State:        l.State(),
		Records:      l.records.Load(),
		BurstRecords: l.burstRecords.Load(),
		Truncated:    l.truncated.Load(),
		Reopens:      l.reopens.Load(),
		Flushes:      l.flushes.Load(),
		FlushErrors:  l.flushErrors.Load(),
		Overruns:     l.overruns.Load(),
	}
}

// State returns the current state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

func (l *Loop) setState(s State) {
	if prev := State(l.state.Swap(int32(s))); prev != s {
		l.log.Debug("poll loop state", "from", prev, "to", s)
	}
}

// Run opens the device and reads it until ctx is cancelled or the device is
// lost for good. It returns nil on cancellation, a device.ErrOpenFailed
// error if the first open fails, and ErrRetryBudgetExhausted if reopening
// gives out.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.dev.Open(); err != nil {
		l.setState(StateStopped)
		return fmt.Errorf("opening kernel log device: %w", err)
	}
	defer l.dev.Close()

	l.log.Info("kernel log reader started", "buffer", l.asm.Cap(), "max_reopen", l.maxReopen)

	l.burst = true
	l.burstCount = 0
	l.setState(StateWaitingBurst)

	for {
		if ctx.Err() != nil {
			l.setState(StateStopped)
		}

		var next State
		switch s := l.State(); s {
		case StateWaitingBurst:
			next = l.waitBurst(ctx)
		case StateWaitingBlocking:
			next = l.waitBlocking(ctx)
		case StateDraining:
			next = StateWaitingBlocking
			if !l.drain(ctx, true) {
				next = StateReopening
			}
		case StateReopening:
			next = l.reopen(ctx)
		case StateFatal:
			return ErrRetryBudgetExhausted
		case StateStopped:
			l.log.Info("kernel log reader stopped", "records", l.records.Load())
			return nil
		default:
			return fmt.Errorf("poll loop in unexpected state %v", s)
		}
		l.setState(next)
	}
}

// waitBurst polls without blocking and drains whatever is already queued.
func (l *Loop) waitBurst(ctx context.Context) State {
	r, err := l.dev.WaitReady(ctx, 0)
	if err != nil {
		if ctx.Err() != nil {
			return StateStopped
		}
		l.log.Error("kernel log poll failed", "error", err)
		l.endBurst()
		return StateReopening
	}

	switch r {
	case device.Timeout:
		l.endBurst()
		return StateWaitingBlocking
	case device.ErrorCondition:
		l.log.Error("kernel log driver poll error")
		l.endBurst()
		return StateReopening
	}

	if !l.drain(ctx, false) {
		l.endBurst()
		return StateReopening
	}
	return StateWaitingBurst
}

// endBurst leaves the startup phase, flushing the backlog if any was read.
func (l *Loop) endBurst() {
	if !l.burst {
		return
	}
	l.burst = false

	if l.burstCount > 0 {
		if err := l.sink.Flush(); err != nil {
			l.flushErrors.Add(1)
			l.log.Error("failed to flush startup records", "error", err)
		} else {
			l.flushes.Add(1)
		}
	}
	l.log.Info("startup backlog drained", "records", l.burstCount)
	l.burstCount = 0
}

func (l *Loop) waitBlocking(ctx context.Context) State {
	r, err := l.dev.WaitReady(ctx, device.Infinite)
	if err != nil {
		if ctx.Err() != nil {
			return StateStopped
		}
		l.log.Error("kernel log poll failed", "error", err)
		return StateReopening
	}

	switch r {
	case device.Readable:
		return StateDraining
	case device.ErrorCondition:
		l.log.Error("kernel log driver poll error")
		return StateReopening
	default:
		return StateWaitingBlocking
	}
}

// drain reads the current message into the reassembler and emits every
// record it completes. It returns false if the device must be reopened.
func (l *Loop) drain(ctx context.Context, sync bool) bool {
	for {
		if ctx.Err() != nil {
			return true
		}
		hdr, n, more, err := l.dev.Read(l.asm.Free())
		switch {
		case errors.Is(err, device.ErrInterrupted), errors.Is(err, device.ErrNoData):
			return true
		case errors.Is(err, device.ErrOverrun):
			l.overruns.Add(1)
			l.log.Warn("kernel log records overwritten before they were read")
			continue
		case err != nil:
			if ctx.Err() == nil {
				l.log.Error("kernel log driver read error", "error", err)
			}
			return false
		}

		l.log.Debug("kernel log chunk", "len", n, "more", more, "pending", l.asm.Pending())

		for _, rec := range l.asm.Commit(hdr, n, more) {
			l.emit(rec, sync)
		}
		if !more {
			return true
		}
	}
}

func (l *Loop) emit(rec reassembler.Record, sync bool) {
	if rec.Truncated {
		l.truncated.Add(1)
		l.log.Warn("kernel log record truncated", "limit", l.asm.Cap(), "seq", rec.Header.Seq)
	}

	if err := l.sink.FormatAndEnqueue(rec, sync); err != nil {
		l.log.Error("failed to enqueue kernel log record", "error", err)
	}

	l.records.Add(1)
	if !sync {
		l.burstCount++
		l.burstRecords.Add(1)
	}
}

// Package watcher runs the kernel log poll loop: it drains the startup
// backlog, then blocks on the device and hands every reassembled record to
// a Sink, reopening the device when it fails.
package watcher

import (
	"context"
	"time"

	"github.com/setevik/kmsgd/internal/device"
	"github.com/setevik/kmsgd/internal/reassembler"
)

// Device is the kernel log source the loop drives. device.Channel is the
// real implementation; tests substitute scripted fakes.
type Device interface {
	// Open opens the device, closing any handle already held.
	Open() error

	// WaitReady waits for readiness. A zero timeout polls without blocking
	// and device.Infinite blocks until readable, failed, or ctx is done.
	WaitReady(ctx context.Context, timeout time.Duration) (device.Readiness, error)

	// Read fills p with one chunk. more reports whether the current message
	// continues past p.
	Read(p []byte) (hdr reassembler.Header, n int, more bool, err error)

	// Close releases the handle. It must be safe to call repeatedly.
	Close() error
}

// Sink receives reconstructed records. Calls are synchronous: the loop does
// not read further until a call returns.
type Sink interface {
	// FormatAndEnqueue formats rec and queues it downstream. sync is false
	// for the startup backlog and true once steady state begins.
	FormatAndEnqueue(rec reassembler.Record, sync bool) error

	// Flush commits everything enqueued without sync. It is called once,
	// when the startup backlog has been drained.
	Flush() error
}

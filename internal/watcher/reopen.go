package watcher

import (
	"context"
	"time"
)

// reopen replaces the device handle, retrying up to the budget. A partial
// record from the old handle is dropped; the new handle starts fresh.
func (l *Loop) reopen(ctx context.Context) State {
	if err := l.dev.Close(); err != nil {
		l.log.Debug("closing failed kernel log device", "error", err)
	}
	if n := l.asm.Pending(); n > 0 {
		l.log.Debug("dropping partial record on reopen", "bytes", n)
	}
	l.asm.Reset()

	for l.retries < l.maxReopen {
		if ctx.Err() != nil {
			return StateStopped
		}

		l.retries++
		l.reopens.Add(1)

		err := l.dev.Open()
		if err == nil {
			l.log.Info("kernel log device reopened", "attempt", l.retries)
			l.retries = 0
			return StateWaitingBlocking
		}

		l.log.Warn("failed to reopen kernel log device",
			"error", err,
			"attempt", l.retries,
			"max", l.maxReopen,
		)

		if l.retries < l.maxReopen && l.reopenDelay > 0 {
			select {
			case <-ctx.Done():
				return StateStopped
			case <-time.After(l.reopenDelay):
			}
		}
	}

	l.log.Error("can't reopen kernel log device - giving up", "attempts", l.retries)
	return StateFatal
}

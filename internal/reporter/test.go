package reporter

import (
	"time"

	"github.com/setevik/kmsgd/internal/event"
)

// TestEvent creates a synthetic event for testing ntfy connectivity.
type TestEvent struct {
	InstanceID string
}

// ToEvent converts a TestEvent to a real Event suitable for Report().
func (t *TestEvent) ToEvent() *event.Event {
	return &event.Event{
		ID:         "test-" + time.Now().Format("20060102-150405"),
		InstanceID: t.InstanceID,
		Timestamp:  time.Now(),
		Facility:   event.FacDaemon,
		Severity:   event.SevEmerg,
		Subsystem:  "kmsgd",
		Message:    "Test notification from kmsgd. If you see this, ntfy is configured correctly.",
	}
}

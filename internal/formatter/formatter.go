// Package formatter turns reassembled kernel log records into events:
// it applies inline priority prefixes, strips console timestamps, and
// tags the emitting subsystem.
package formatter

import (
	"strconv"
	"strings"
	"time"

	"github.com/setevik/kmsgd/internal/event"
	"github.com/setevik/kmsgd/internal/reassembler"
)

// Formatter builds events for one instance.
type Formatter struct {
	instanceID string
	now        func() time.Time
}

// New creates a Formatter for the given instance.
func New(instanceID string) *Formatter {
	return &Formatter{instanceID: instanceID, now: time.Now}
}

// Format converts rec into an Event. startup marks records drained from the
// backlog present when the reader started.
func (f *Formatter) Format(rec reassembler.Record, startup bool) *event.Event {
	fac := event.Facility(rec.Header.Facility)
	sev := event.Severity(rec.Header.Severity)

	text := strings.TrimRight(rec.Text, "\r\n")

	if m := priorityPrefixRe.FindStringSubmatch(text); m != nil {
		if prio, err := strconv.Atoi(m[1]); err == nil && prio <= 191 {
			fac = event.Facility(prio >> 3)
			sev = event.Severity(prio & 7)
		}
		text = text[len(m[0]):]
	}
	if loc := printkTimeRe.FindStringIndex(text); loc != nil {
		text = text[loc[1]:]
	}

	ts := rec.Header.Timestamp
	if ts.IsZero() {
		ts = f.now()
	}

	ev := event.New(f.instanceID, ts, fac, sev, text)
	ev.Seq = rec.Header.Seq
	ev.Subsystem = Subsystem(text)
	ev.Truncated = rec.Truncated
	ev.Startup = startup
	return ev
}

// Subsystem returns the kernel subsystem or process that emitted msg, or ""
// if none can be told.
func Subsystem(msg string) string {
	for _, k := range keywordSubsystems {
		if k.re.MatchString(msg) {
			return k.subsystem
		}
	}
	for _, re := range subsystemPatterns {
		if m := re.FindStringSubmatch(msg); m != nil {
			return m[1]
		}
	}
	return ""
}

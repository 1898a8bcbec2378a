package reporter

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/setevik/kmsgd/internal/event"
)

const (
	// maxDigestSubsystems limits the subsystem breakdown line.
	maxDigestSubsystems = 8
	// maxDigestCritical limits the list of critical messages.
	maxDigestCritical = 5
)

// DigestSummary holds aggregated record counts for a digest period.
type DigestSummary struct {
	InstanceID string
	Since      time.Time
	Until      time.Time

	Total       int
	Startup     int
	Truncated   int
	BySeverity  map[event.Severity]int
	BySubsystem map[string]int // subsystem -> count, warning or worse only
	Critical    []string       // unique crit-or-worse messages, in input order
}

// BuildDigest aggregates a list of events into a DigestSummary.
func BuildDigest(instanceID string, events []*event.Event, since, until time.Time) *DigestSummary {
	d := &DigestSummary{
		InstanceID:  instanceID,
		Since:       since,
		Until:       until,
		BySeverity:  make(map[event.Severity]int),
		BySubsystem: make(map[string]int),
	}

	critSeen := make(map[string]bool)

	for _, ev := range events {
		d.Total++
		d.BySeverity[ev.Severity]++
		if ev.Startup {
			d.Startup++
		}
		if ev.Truncated {
			d.Truncated++
		}

		if ev.Severity <= event.SevWarning {
			name := ev.Subsystem
			if name == "" {
				name = "unknown"
			}
			d.BySubsystem[name]++
		}

		if ev.Severity <= event.SevCrit && !critSeen[ev.Message] {
			critSeen[ev.Message] = true
			if len(d.Critical) < maxDigestCritical {
				d.Critical = append(d.Critical, ev.Message)
			}
		}
	}

	return d
}

// FormatDigest formats a DigestSummary as human-readable text suitable for
// ntfy or stdout output.
func FormatDigest(d *DigestSummary) string {
	var b strings.Builder

	dateRange := fmt.Sprintf("%s - %s",
		d.Since.Local().Format("Jan 02"),
		d.Until.Local().Format("Jan 02"))

	fmt.Fprintf(&b, "=== %s ===\n", d.InstanceID)
	fmt.Fprintf(&b, "Period: %s\n\n", dateRange)

	fmt.Fprintf(&b, "Records:    %d", d.Total)
	if d.Startup > 0 || d.Truncated > 0 {
		fmt.Fprintf(&b, " (%d at startup, %d truncated)", d.Startup, d.Truncated)
	}
	b.WriteString("\n")

	var sevParts []string
	for sev := event.SevEmerg; sev <= event.SevDebug; sev++ {
		if n := d.BySeverity[sev]; n > 0 {
			sevParts = append(sevParts, fmt.Sprintf("%s ×%d", sev.Label(), n))
		}
	}
	if len(sevParts) == 0 {
		sevParts = append(sevParts, "none")
	}
	fmt.Fprintf(&b, "Severity:   %s\n", strings.Join(sevParts, ", "))

	if len(d.BySubsystem) > 0 {
		fmt.Fprintf(&b, "Subsystems: %s\n", formatBreakdown(d.BySubsystem, maxDigestSubsystems))
	}

	if len(d.Critical) > 0 {
		b.WriteString("\nCritical:\n")
		for _, msg := range d.Critical {
			fmt.Fprintf(&b, "  - %s\n", msg)
		}
	}

	return b.String()
}

// FormatDigestTitle generates the ntfy title for a digest notification.
func FormatDigestTitle(since, until time.Time) string {
	return fmt.Sprintf("\U0001f4ca kmsgd kernel log digest (%s-%s)",
		since.Local().Format("Jan 02"),
		until.Local().Format("Jan 02"))
}

// formatBreakdown turns a map[string]int into "foo ×2, bar ×1" sorted by
// count desc, keeping at most limit entries.
func formatBreakdown(m map[string]int, limit int) string {
	type entry struct {
		name  string
		count int
	}

	entries := make([]entry, 0, len(m))
	for name, count := range m {
		entries = append(entries, entry{name, count})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].name < entries[j].name
	})

	more := 0
	if limit > 0 && len(entries) > limit {
		more = len(entries) - limit
		entries = entries[:limit]
	}

	parts := make([]string, len(entries))
	for i, e := range entries {
		parts[i] = fmt.Sprintf("%s ×%d", e.name, e.count)
	}
	out := strings.Join(parts, ", ")
	if more > 0 {
		out += fmt.Sprintf(", +%d more", more)
	}
	return out
}

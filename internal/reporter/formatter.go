package reporter

import (
	"fmt"
	"strings"

	"github.com/setevik/kmsgd/internal/event"
	"github.com/setevik/kmsgd/internal/watcher"
)

// maxTitleMessage caps how much of a record goes into a notification title.
const maxTitleMessage = 80

// severityEmoji maps severities to display emojis for ntfy titles.
var severityEmoji = map[event.Severity]string{
	event.SevEmerg: "\U0001f6a8", // police light
	event.SevAlert: "\U0001f534", // red circle
	event.SevCrit:  "\U0001f4a5", // collision
	event.SevErr:   "\u274c",     // cross mark
}

// severityTags maps severities to ntfy tag names.
var severityTags = map[event.Severity]string{
	event.SevEmerg: "rotating_light,skull",
	event.SevAlert: "rotating_light",
	event.SevCrit:  "warning,boom",
	event.SevErr:   "warning",
}

// FormatTitle builds the ntfy notification title for an event.
func FormatTitle(ev *event.Event) string {
	emoji := severityEmoji[ev.Severity]
	if emoji == "" {
		emoji = "\u2757" // exclamation mark
	}
	msg := ev.Message
	if len(msg) > maxTitleMessage {
		msg = msg[:maxTitleMessage] + "…"
	}
	if ev.Subsystem != "" {
		return fmt.Sprintf("%s [%s] %s: %s", emoji, ev.InstanceID, ev.Subsystem, msg)
	}
	return fmt.Sprintf("%s [%s] %s", emoji, ev.InstanceID, msg)
}

// FormatBody builds the ntfy notification body for an event.
func FormatBody(ev *event.Event) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Host: %s\n", ev.InstanceID)
	fmt.Fprintf(&b, "Time: %s\n", ev.Timestamp.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "Priority: %s.%s (seq %d)\n", ev.Facility.Label(), ev.Severity.Label(), ev.Seq)
	if ev.Truncated {
		b.WriteString("Truncated: yes\n")
	}

	b.WriteString("\n")
	b.WriteString(ev.Message)

	return b.String()
}

// TagsForSeverity returns the ntfy tags string for a severity.
func TagsForSeverity(sev event.Severity) string {
	if tags, ok := severityTags[sev]; ok {
		return tags
	}
	return "information_source"
}

// FormatFatalTitle builds the title of the alert sent when reading stops.
func FormatFatalTitle(instanceID string) string {
	return fmt.Sprintf("\U0001f480 [%s] kernel log reader stopped", instanceID)
}

// FormatFatalBody describes why reading stopped and what was read before.
func FormatFatalBody(path string, cause error, st watcher.Stats) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Device: %s\n", path)
	fmt.Fprintf(&b, "Cause: %v\n\n", cause)
	fmt.Fprintf(&b, "Records read: %d (%d at startup)\n", st.Records, st.BurstRecords)
	fmt.Fprintf(&b, "Reopen attempts: %d\n", st.Reopens)
	if st.Truncated > 0 {
		fmt.Fprintf(&b, "Truncated records: %d\n", st.Truncated)
	}
	if st.Overruns > 0 {
		fmt.Fprintf(&b, "Ring buffer overruns: %d\n", st.Overruns)
	}
	b.WriteString("\nKernel messages are no longer being recorded.")

	return b.String()
}

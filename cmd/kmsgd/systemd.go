package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/setevik/kmsgd/internal/watcher"
)

// statusInterval is how often STATUS= is refreshed while records flow.
const statusInterval = 5 * time.Second

// statsSource is the part of watcher.Loop the supervisor reads.
type statsSource interface {
	Stats() watcher.Stats
}

// notifier speaks the sd_notify datagram protocol without libsystemd. With
// no NOTIFY_SOCKET every send is dropped.
type notifier struct {
	addr     string
	watchdog time.Duration
}

func newNotifier() *notifier {
	return &notifier{
		addr:     os.Getenv("NOTIFY_SOCKET"),
		watchdog: watchdogInterval(),
	}
}

// send writes the assignments as one newline-separated datagram. A leading
// "@" in the socket address selects the abstract namespace.
func (n *notifier) send(assignments ...string) error {
	if n.addr == "" {
		return nil
	}
	conn, err := net.DialUnix("unixgram", nil, &net.UnixAddr{Name: n.addr, Net: "unixgram"})
	if err != nil {
		return fmt.Errorf("sd_notify dial %s: %w", n.addr, err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(strings.Join(assignments, "\n"))); err != nil {
		return fmt.Errorf("sd_notify write: %w", err)
	}
	return nil
}

func (n *notifier) notify(assignments ...string) {
	if err := n.send(assignments...); err != nil {
		slog.Debug("sd_notify failed", "error", err)
	}
}

// supervise reports READY once the device is open, keeps STATUS= current
// and feeds the watchdog only while the reader is alive. A reader stuck in
// Fatal therefore gets restarted by systemd even before Run returns.
func (n *notifier) supervise(ctx context.Context, src statsSource, path string) {
	tick := statusInterval
	if n.watchdog > 0 {
		// Ping at half the watchdog interval.
		tick = min(tick, n.watchdog/2)
		slog.Info("systemd watchdog enabled", "interval", n.watchdog)
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	ready := false
	lastStatus := ""
	report := func() {
		st := src.Stats()
		if !ready && readerRunning(st.State) {
			ready = true
			n.notify("READY=1")
		}
		status := statusLine(path, st)
		if status != lastStatus {
			lastStatus = status
			n.notify(status)
		}
		if ready && n.watchdog > 0 && readerRunning(st.State) {
			n.notify("WATCHDOG=1")
		}
	}

	report()
	for {
		select {
		case <-ctx.Done():
			n.notify("STOPPING=1", statusLine(path, src.Stats()))
			return
		case <-ticker.C:
			report()
		}
	}
}

// readerRunning reports whether the loop is reading or recovering within
// its retry budget.
func readerRunning(s watcher.State) bool {
	switch s {
	case watcher.StateWaitingBurst, watcher.StateWaitingBlocking,
		watcher.StateDraining, watcher.StateReopening:
		return true
	}
	return false
}

// statusLine renders loop progress as a STATUS= assignment.
func statusLine(path string, st watcher.Stats) string {
	s := fmt.Sprintf("STATUS=%s %s: %d records (%d at startup)", path, st.State, st.Records, st.BurstRecords)
	if st.Reopens > 0 {
		s += fmt.Sprintf(", %d reopens", st.Reopens)
	}
	if st.Truncated > 0 {
		s += fmt.Sprintf(", %d truncated", st.Truncated)
	}
	return s
}

// watchdogInterval returns WATCHDOG_USEC as a duration, or 0 when it is
// unset, malformed, or addressed to another process by WATCHDOG_PID.
func watchdogInterval() time.Duration {
	usec, err := strconv.ParseInt(os.Getenv("WATCHDOG_USEC"), 10, 64)
	if err != nil || usec <= 0 {
		return 0
	}
	if pid := os.Getenv("WATCHDOG_PID"); pid != "" && pid != strconv.Itoa(os.Getpid()) {
		return 0
	}
	return time.Duration(usec) * time.Microsecond
}

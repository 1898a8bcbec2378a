package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/setevik/kmsgd/internal/config"
	"github.com/setevik/kmsgd/internal/event"
	"github.com/setevik/kmsgd/internal/format"
	"github.com/setevik/kmsgd/internal/reporter"
	"github.com/setevik/kmsgd/internal/store"
)

// --- query subcommand ---

func runQuery(args []string) {
	fs := pflag.NewFlagSet("query", pflag.ExitOnError)
	last := fs.StringP("last", "l", "24h", "time window (e.g. 24h, 7d, 30d)")
	severity := fs.StringP("severity", "s", "", "only records at least this urgent (emerg..debug)")
	subsystem := fs.String("subsystem", "", "filter by kernel subsystem")
	instance := fs.String("instance", "", "filter by instance ID")
	limit := fs.IntP("limit", "n", 50, "max records to show")
	cfg := loadConfig(fs, args)

	setupLogging("error") // quiet for CLI output

	filter, err := buildFilter(*last, *severity)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	filter.Subsystem = *subsystem
	filter.InstanceID = *instance
	filter.Limit = *limit

	db := openDB(cfg)
	defer db.Close()

	events, err := db.Query(filter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "query error: %v\n", err)
		os.Exit(1)
	}

	if len(events) == 0 {
		fmt.Println("No records found.")
		return
	}

	printEvents(os.Stdout, events)
}

// buildFilter turns the shared --last and --severity flags into a filter.
func buildFilter(last, severity string) (store.QueryFilter, error) {
	var f store.QueryFilter

	if last != "" {
		d, err := parseDuration(last)
		if err != nil {
			return f, fmt.Errorf("invalid --last value %q: %w", last, err)
		}
		f.Since = time.Now().Add(-d)
	}

	if severity != "" {
		sev, ok := event.ParseSeverity(severity)
		if !ok {
			return f, fmt.Errorf("invalid --severity value %q", severity)
		}
		f.Severity = &sev
	}

	return f, nil
}

func printEvents(w io.Writer, events []*event.Event) {
	for _, ev := range events {
		ts := ev.Timestamp.Local().Format("2006-01-02 15:04:05")
		flags := ""
		if ev.Startup {
			flags += " [boot]"
		}
		if ev.Truncated {
			flags += " [truncated]"
		}
		fmt.Fprintf(w, "%s  %-7s %-12s %s%s\n", ts, ev.Severity.Label(), ev.Subsystem, ev.Message, flags)
	}
	fmt.Fprintf(w, "\nTotal: %d record(s)\n", len(events))
}

// --- status subcommand ---

func runStatus(args []string) {
	fs := pflag.NewFlagSet("status", pflag.ExitOnError)
	cfg := loadConfig(fs, args)

	setupLogging("error")

	fmt.Printf("Instance:     %s\n", cfg.Instance.ID)
	fmt.Printf("Device:       %s (%s, %s buffer)\n",
		cfg.Device.Path, cfg.Device.Framing, format.Bytes(int64(cfg.Device.BufferSize)))
	if _, err := os.Stat(cfg.Device.Path); err != nil {
		fmt.Printf("              not accessible: %v\n", err)
	}

	dataDir, err := dataDirectory()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error creating data directory: %v\n", err)
		os.Exit(1)
	}
	db := openDB(cfg)
	defer db.Close()

	// Last record.
	lastEvents, err := db.Query(store.QueryFilter{Limit: 1})
	if err == nil && len(lastEvents) > 0 {
		ev := lastEvents[0]
		ago := time.Since(ev.Timestamp).Truncate(time.Second)
		fmt.Printf("Last record:  [%s] %s (%s ago)\n", ev.Severity.Label(), ev.Message, formatDuration(ago))
	} else {
		fmt.Println("Last record:  none")
	}

	// Record counts for last 24h.
	events24h, _ := db.Query(store.QueryFilter{Since: time.Now().Add(-24 * time.Hour)})
	fmt.Printf("Records (24h): %s\n", severityCounts(events24h))

	count, _ := db.Count()
	fmt.Printf("DB records:   %d total\n", count)
	dbPath := cfg.DBPath(dataDir)
	fmt.Printf("DB path:      %s", dbPath)
	if info, err := os.Stat(dbPath); err == nil {
		fmt.Printf(" (%s)", format.Bytes(info.Size()))
	}
	fmt.Println()
}

// severityCounts renders "2 err, 14 info" for the severities present.
func severityCounts(events []*event.Event) string {
	var counts [event.SevDebug + 1]int
	for _, ev := range events {
		if ev.Severity >= event.SevEmerg && ev.Severity <= event.SevDebug {
			counts[ev.Severity]++
		}
	}

	var parts []string
	for sev := event.SevEmerg; sev <= event.SevDebug; sev++ {
		if counts[sev] > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", counts[sev], sev.Label()))
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, ", ")
}

// --- digest subcommand ---

func runDigest(args []string) {
	fs := pflag.NewFlagSet("digest", pflag.ExitOnError)
	send := fs.Bool("send", false, "send digest via ntfy (otherwise print to stdout)")
	last := fs.StringP("last", "l", "7d", "time window for digest")
	cfg := loadConfig(fs, args)

	setupLogging("error")

	duration, err := parseDuration(*last)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid --last value: %v\n", err)
		os.Exit(1)
	}

	db := openDB(cfg)
	defer db.Close()

	until := time.Now()
	since := until.Add(-duration)

	events, err := db.Query(store.QueryFilter{Since: since, Until: until, InstanceID: cfg.Instance.ID})
	if err != nil {
		fmt.Fprintf(os.Stderr, "query error: %v\n", err)
		os.Exit(1)
	}

	digest := reporter.BuildDigest(cfg.Instance.ID, events, since, until)
	body := reporter.FormatDigest(digest)

	if !*send {
		fmt.Print(body)
		return
	}

	rep := reporter.NewNtfy(cfg)
	if !rep.Enabled() {
		fmt.Fprintln(os.Stderr, "error: no ntfy URL configured for digest")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	err = rep.Send(ctx, reporter.Message{
		Title:    reporter.FormatDigestTitle(since, until),
		Body:     body,
		Priority: "low",
		Tags:     "chart",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error sending digest: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Digest sent successfully.")
}

// --- export subcommand ---

func runExport(args []string) {
	fs := pflag.NewFlagSet("export", pflag.ExitOnError)
	out := fs.StringP("output", "o", "", `output file ("-" for stdout, default kmsgd-<instance>-<date>.ndjson.zst)`)
	last := fs.StringP("last", "l", "", "time window (default: everything)")
	severity := fs.StringP("severity", "s", "", "only records at least this urgent")
	subsystem := fs.String("subsystem", "", "filter by kernel subsystem")
	cfg := loadConfig(fs, args)

	setupLogging("error")

	filter, err := buildFilter(*last, *severity)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	filter.Subsystem = *subsystem

	path := *out
	if path == "" {
		path = exportFileName(cfg, time.Now())
	}

	var w io.Writer = os.Stdout
	var f *os.File
	if path != "-" {
		f, err = os.Create(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error creating %s: %v\n", path, err)
			os.Exit(1)
		}
		w = f
	}

	db := openDB(cfg)
	defer db.Close()

	n, err := db.Export(w, filter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "export error: %v\n", err)
		os.Exit(1)
	}

	if f == nil {
		return
	}
	if err := f.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "error writing %s: %v\n", path, err)
		os.Exit(1)
	}
	size := int64(0)
	if info, err := os.Stat(path); err == nil {
		size = info.Size()
	}
	fmt.Fprintf(os.Stderr, "Exported %d records (%s compressed) to %s\n", n, format.Bytes(size), path)
}

func exportFileName(cfg *config.Config, now time.Time) string {
	return fmt.Sprintf("kmsgd-%s-%s.ndjson.zst", cfg.Instance.ID, now.Format("20060102-150405"))
}

// --- test-ntfy subcommand ---

func runTestNtfyCmd(args []string) {
	fs := pflag.NewFlagSet("test-ntfy", pflag.ExitOnError)
	cfg := loadConfig(fs, args)

	setupLogging(cfg.Log.Level)
	doTestNtfy(cfg)
}

func doTestNtfy(cfg *config.Config) {
	if cfg.Ntfy.URL == "" {
		fmt.Fprintln(os.Stderr, "error: ntfy.url not configured")
		os.Exit(1)
	}

	rep := reporter.NewNtfy(cfg)
	ev := (&reporter.TestEvent{
		InstanceID: cfg.Instance.ID,
	}).ToEvent()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Send directly so the test goes out whatever alert_severity says.
	err := rep.Send(ctx, reporter.Message{
		Title:    reporter.FormatTitle(ev),
		Body:     reporter.FormatBody(ev),
		Priority: cfg.NtfyPriority(ev.Severity),
		Tags:     reporter.TagsForSeverity(ev.Severity),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error sending test notification: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Test notification sent successfully.")
}

// --- utilities ---

// parseDuration extends time.ParseDuration with support for "d" (days) suffix.
func parseDuration(s string) (time.Duration, error) {
	if strings.HasSuffix(s, "d") {
		s = strings.TrimSuffix(s, "d")
		var days int
		if _, err := fmt.Sscanf(s, "%d", &days); err != nil {
			return 0, fmt.Errorf("invalid days format: %s", s)
		}
		return time.Duration(days) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

// formatDuration formats a duration in human-readable form.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		return fmt.Sprintf("%dh %dm", h, m)
	}
	days := int(d.Hours()) / 24
	h := int(d.Hours()) % 24
	return fmt.Sprintf("%dd %dh", days, h)
}

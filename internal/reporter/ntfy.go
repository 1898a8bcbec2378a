package reporter

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/setevik/kmsgd/internal/config"
	"github.com/setevik/kmsgd/internal/event"
	"github.com/setevik/kmsgd/internal/watcher"
)

// Message is one ntfy notification.
type Message struct {
	Title    string
	Body     string
	Priority string
	Tags     string
}

// NtfyReporter sends notifications to an ntfy server.
type NtfyReporter struct {
	cfg    *config.Config
	client *http.Client
}

// NewNtfy creates a new NtfyReporter.
func NewNtfy(cfg *config.Config) *NtfyReporter {
	return &NtfyReporter{
		cfg: cfg,
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Enabled reports whether an ntfy URL is configured.
func (r *NtfyReporter) Enabled() bool {
	return r.cfg.Ntfy.URL != ""
}

// Report sends an event notification to ntfy if the event is at least as
// urgent as the configured alert severity.
func (r *NtfyReporter) Report(ctx context.Context, ev *event.Event) error {
	if !r.cfg.ShouldAlert(ev.Severity) {
		slog.Debug("event below alert severity, skipping", "severity", ev.Severity.Label())
		return nil
	}

	return r.Send(ctx, Message{
		Title:    FormatTitle(ev),
		Body:     FormatBody(ev),
		Priority: r.cfg.NtfyPriority(ev.Severity),
		Tags:     TagsForSeverity(ev.Severity),
	})
}

// ReportFatal announces that the reader gave up on the device.
func (r *NtfyReporter) ReportFatal(ctx context.Context, path string, cause error, st watcher.Stats) error {
	return r.Send(ctx, Message{
		Title:    FormatFatalTitle(r.cfg.Instance.ID),
		Body:     FormatFatalBody(path, cause, st),
		Priority: r.cfg.Ntfy.Priority,
		Tags:     "skull,rotating_light",
	})
}

// Send posts m to the configured topic. It is a no-op without a URL.
func (r *NtfyReporter) Send(ctx context.Context, m Message) error {
	if !r.Enabled() {
		slog.Debug("ntfy URL not configured, skipping notification")
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.Ntfy.URL, strings.NewReader(m.Body))
	if err != nil {
		return fmt.Errorf("creating ntfy request: %w", err)
	}

	req.Header.Set("Title", m.Title)
	if m.Priority != "" {
		req.Header.Set("Priority", m.Priority)
	}
	if m.Tags != "" {
		req.Header.Set("Tags", m.Tags)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy returned status %d", resp.StatusCode)
	}

	slog.Info("notification sent", "title", m.Title, "priority", m.Priority)
	return nil
}

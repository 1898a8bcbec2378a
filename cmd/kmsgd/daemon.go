package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/setevik/kmsgd/internal/config"
	"github.com/setevik/kmsgd/internal/device"
	"github.com/setevik/kmsgd/internal/event"
	"github.com/setevik/kmsgd/internal/formatter"
	"github.com/setevik/kmsgd/internal/queue"
	"github.com/setevik/kmsgd/internal/reporter"
	"github.com/setevik/kmsgd/internal/store"
	"github.com/setevik/kmsgd/internal/watcher"
)

// alertBacklog bounds live alerts waiting for ntfy.
const alertBacklog = 64

func runDaemon(args []string) {
	fs := pflag.NewFlagSet("kmsgd", pflag.ExitOnError)
	showVersion := fs.Bool("version", false, "print version and exit")
	cfg := loadConfig(fs, args)

	if *showVersion {
		fmt.Println("kmsgd", version)
		os.Exit(0)
	}

	setupLogging(cfg.Log.Level)

	slog.Info("kmsgd starting",
		"version", version,
		"instance", cfg.Instance.ID,
		"device", cfg.Device.Path,
		"framing", cfg.Device.Framing,
	)

	if err := run(cfg); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dataDir, err := dataDirectory()
	if err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := cfg.DBPath(dataDir)
	db, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening event database: %w", err)
	}
	defer db.Close()

	slog.Info("event database opened", "path", dbPath)

	rep := reporter.NewNtfy(cfg)

	alerts := make(chan *event.Event, alertBacklog)
	qopts := queue.Options{
		BatchLimit: cfg.DB.BatchLimit,
		Logger:     slog.Default().With("component", "queue"),
	}
	if threshold, ok := cfg.AlertThreshold(); ok && rep.Enabled() {
		qopts.AlertSeverity = threshold
		qopts.Alert = func(ev *event.Event) {
			select {
			case alerts <- ev:
			default:
				slog.Warn("alert backlog full, dropping notification", "seq", ev.Seq)
			}
		}
	}
	q := queue.New(db, formatter.New(cfg.Instance.ID), qopts)
	defer func() {
		if err := q.Close(); err != nil {
			slog.Error("failed to flush queued records", "error", err)
		}
	}()

	dev, err := device.New(cfg.Device.Path, device.Options{
		Framing: device.Framing(cfg.Device.Framing),
		Logger:  slog.Default().With("component", "device"),
	})
	if err != nil {
		return fmt.Errorf("creating device channel: %w", err)
	}
	defer dev.Shutdown()

	loop := watcher.New(dev, q, watcher.Options{
		BufferSize:  int(cfg.Device.BufferSize),
		MaxReopen:   cfg.Device.MaxReopen,
		ReopenDelay: cfg.Device.ReopenDelay.Duration,
		Logger:      slog.Default().With("component", "watcher"),
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return loop.Run(gctx)
	})

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case ev := <-alerts:
				if err := rep.Report(gctx, ev); err != nil {
					slog.Error("failed to send notification", "error", err)
				}
			}
		}
	})

	sd := newNotifier()
	g.Go(func() error {
		sd.supervise(gctx, loop, dev.Path())
		return nil
	})

	err = g.Wait()
	st := loop.Stats()
	slog.Info("reader finished",
		"records", st.Records,
		"startup_records", st.BurstRecords,
		"stored", q.Stored(),
		"reopens", st.Reopens,
		"truncated", st.Truncated,
		"overruns", st.Overruns,
	)

	if errors.Is(err, watcher.ErrRetryBudgetExhausted) {
		actx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if rerr := rep.ReportFatal(actx, dev.Path(), err, st); rerr != nil {
			slog.Error("failed to send fatal alert", "error", rerr)
		}
	}
	return err
}

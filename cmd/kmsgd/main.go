// kmsgd reads the kernel log device, reassembles its records, and stores
// them in a local SQLite database. The startup backlog is committed as one
// batch; records arriving afterwards are committed one by one.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	"github.com/setevik/kmsgd/internal/config"
	"github.com/setevik/kmsgd/internal/store"
)

var version = "dev"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "daemon":
			runDaemon(os.Args[2:])
			return
		case "query":
			runQuery(os.Args[2:])
			return
		case "digest":
			runDigest(os.Args[2:])
			return
		case "status":
			runStatus(os.Args[2:])
			return
		case "export":
			runExport(os.Args[2:])
			return
		case "test-ntfy":
			runTestNtfyCmd(os.Args[2:])
			return
		case "version":
			fmt.Println("kmsgd", version)
			return
		}
	}

	// Default: run daemon.
	runDaemon(os.Args[1:])
}

// loadConfig parses the --config flag shared by every subcommand and exits
// on error.
func loadConfig(fs *pflag.FlagSet, args []string) *config.Config {
	configPath := fs.StringP("config", "c", "", "path to config file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// openDB opens the configured event database for a CLI subcommand.
func openDB(cfg *config.Config) *store.DB {
	dataDir, err := dataDirectory()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error creating data directory: %v\n", err)
		os.Exit(1)
	}
	db, err := store.Open(cfg.DBPath(dataDir))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening database: %v\n", err)
		os.Exit(1)
	}
	return db
}

func setupLogging(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}

func dataDirectory() (string, error) {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	dir := filepath.Join(dataHome, "kmsgd")
	return dir, os.MkdirAll(dir, 0o750)
}

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/zvdy/dbpulse/src/config"
	"github.com/zvdy/dbpulse/src/db"
	"github.com/zvdy/dbpulse/src/monitor"
)

// app bundles what every command needs
type app struct {
	cfg     *config.Config
	log     *logrus.Logger
	store   db.Store
	monitor *monitor.Monitor
	// logFile is set when logging goes to a file
	logFile *os.File
}

// openApp loads config and opens the store and monitor. One-shot commands
// keep stdout for their output, so their stdout logging moves to stderr.
func openApp(ctx context.Context, oneShot bool) (*app, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if oneShot && (cfg.Logging.Output == "" || cfg.Logging.Output == "stdout") {
		cfg.Logging.Output = "stderr"
	}

	log, logFile, err := newLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, cfg.Store, log)
	if err != nil {
		if logFile != nil {
			logFile.Close()
		}
		return nil, err
	}

	m := monitor.New(store, monitor.Options{
		Monitor: cfg.Monitor,
		Metrics: cfg.Metrics,
	}, log)
	m.Load(ctx)

	return &app{cfg: cfg, log: log, store: store, monitor: m, logFile: logFile}, nil
}

func (a *app) Close() {
	if err := a.monitor.Close(); err != nil {
		a.log.Errorf("Failed to close monitor: %v", err)
	}
	if err := a.store.Close(); err != nil {
		a.log.Errorf("Failed to close store: %v", err)
	}
	if a.logFile != nil {
		a.log.SetOutput(os.Stderr)
		if err := a.logFile.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to close log file: %v\n", err)
		}
	}
}

// newLogger builds the process logger: JSON by default, level and output
// from config. The returned file is non-nil when output goes to a path and
// must be closed by the caller.
func newLogger(cfg config.LoggingConfig) (*logrus.Logger, *os.File, error) {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	if cfg.Format == "text" {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level: %w", err)
	}
	log.SetLevel(level)

	var (
		out  io.Writer
		file *os.File
	)
	switch cfg.Output {
	case "", "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		file, err = os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = file
	}
	log.SetOutput(out)
	return log, file, nil
}

func openStore(ctx context.Context, cfg config.StoreConfig, log *logrus.Logger) (db.Store, error) {
	schemas, err := db.SchemasFor(cfg.Tables)
	if err != nil {
		return nil, err
	}

	if cfg.Driver == "postgres" {
		store, err := db.OpenPostgres(ctx, db.ConnectionConfig{
			DSN:             cfg.DSN,
			MaxConnections:  cfg.MaxConnections,
			MinConnections:  cfg.MinConnections,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.ConnMaxIdleTime,
		}, schemas, log)
		if err != nil {
			return nil, err
		}
		return store, nil
	}

	store, err := db.OpenSQLite(cfg.DataDir, schemas, log)
	if err != nil {
		return nil, err
	}
	return store, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Package main — cmd/voltmon/main.go
//
// voltmon agent entrypoint: the voltage quality analytics pipeline
// running as a long-lived process with an HTTP query facade and
// Prometheus metrics.
//
// Startup sequence:
//  1. Load and validate config from /etc/voltmon/config.yaml (or -config).
//  2. Initialise structured logger (zap).
//  3. Open the BoltDB snapshot store, if storage.enabled, and hydrate the
//     state store's ring buffers from it.
//  4. Start the Prometheus metrics server.
//  5. Start the ingest pipeline's worker pool.
//  6. Start the periodic snapshot writer, if storage.enabled.
//  7. Start the HTTP query facade.
//  8. Register SIGHUP handler for config hot-reload.
//  9. Block on SIGINT/SIGTERM for graceful shutdown.
//
// Shutdown sequence (on SIGINT/SIGTERM):
//  1. Cancel the root context (propagates to all goroutines).
//  2. Wait for the ingest pipeline's workers to exit (max 5s); readings
//     still queued at cancellation may be left unprocessed.
//  3. Write a final snapshot, if storage.enabled.
//  4. Close the BoltDB snapshot store.
//  5. Flush the logger.
//  6. Exit 0.
//
// On config validation failure: exit 1 immediately.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/PVP-elektros-stebesena/elektros-stebesenos-sistema/internal/api"
	"github.com/PVP-elektros-stebesena/elektros-stebesenos-sistema/internal/config"
	"github.com/PVP-elektros-stebesena/elektros-stebesenos-sistema/internal/ingest"
	"github.com/PVP-elektros-stebesena/elektros-stebesenos-sistema/internal/observability"
	"github.com/PVP-elektros-stebesena/elektros-stebesenos-sistema/internal/storage"
	"github.com/PVP-elektros-stebesena/elektros-stebesenos-sistema/internal/store"
)

func main() {
	configPath := flag.String("config", "/etc/voltmon/config.yaml", "Path to config.yaml")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("voltmon %s (commit=%s built=%s)\n", config.Version, config.GitCommit, config.BuildTime)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: config load failed: %v\n", err)
		os.Exit(1)
	}

	log, err := buildLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync() //nolint:errcheck

	log.Info("voltmon starting",
		zap.String("version", config.Version),
		zap.String("commit", config.GitCommit),
		zap.String("built", config.BuildTime),
		zap.String("node_id", cfg.NodeID),
		zap.String("config", *configPath),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := store.New(cfg.Thresholds, time.Now)

	var db *storage.DB
	if cfg.Storage.Enabled {
		db, err = storage.Open(cfg.Storage.DBPath)
		if err != nil {
			log.Error("snapshot store open failed, starting cold", zap.Error(err), zap.String("path", cfg.Storage.DBPath))
		} else {
			defer db.Close() //nolint:errcheck
			windows, werr := db.LoadWindows()
			anomalies, aerr := db.LoadAnomalies()
			if werr != nil || aerr != nil {
				log.Warn("snapshot hydration partially failed", zap.Error(werr), zap.Error(aerr))
			}
			st.Hydrate(windows, anomalies)
			log.Info("hydrated from snapshot", zap.Int("windows", len(windows)), zap.Int("anomalies", len(anomalies)))
		}
	}

	metrics := observability.NewMetrics()
	go func() {
		if err := metrics.ServeMetrics(ctx, cfg.Observability.MetricsAddr); err != nil {
			log.Error("metrics server error", zap.Error(err))
		}
	}()
	log.Info("metrics server started", zap.String("addr", cfg.Observability.MetricsAddr))

	pipeline := ingest.New(st, metrics, log, cfg.Ingest.QueueSize, cfg.Ingest.Workers)
	pipelineDone := make(chan struct{})
	go func() {
		pipeline.Run(ctx)
		close(pipelineDone)
	}()
	log.Info("ingest pipeline started", zap.Int("workers", cfg.Ingest.Workers), zap.Int("queue_size", cfg.Ingest.QueueSize))

	if db != nil {
		go runSnapshotWriter(ctx, st, db, metrics, cfg.Storage.SnapshotInterval, log)
	}

	httpServer := api.New(st, pipeline, metrics, log, cfg.HTTP)
	go func() {
		if err := httpServer.ListenAndServe(ctx); err != nil {
			log.Error("http server error", zap.Error(err))
		}
	}()
	log.Info("http query facade started", zap.String("addr", cfg.HTTP.ListenAddr))

	sighup := make(chan os.Signal, 1)
	signal.Notify(sighup, syscall.SIGHUP)
	go func() {
		for range sighup {
			log.Info("SIGHUP received — reloading config...")
			newCfg, err := config.Load(*configPath)
			if err != nil {
				log.Error("config hot-reload failed — retaining old config", zap.Error(err))
				continue
			}
			if destructiveChange(cfg, newCfg) {
				log.Error("config hot-reload rejected — destructive fields changed, restart required")
				continue
			}
			st.SetThresholds(newCfg.Thresholds)
			cfg.Thresholds = newCfg.Thresholds
			cfg.Observability.LogLevel = newCfg.Observability.LogLevel
			log.Info("config hot-reload applied")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutdown signal received", zap.String("signal", sig.String()))

	cancel()

	select {
	case <-pipelineDone:
	case <-time.After(5 * time.Second):
		log.Warn("ingest pipeline did not stop within 5s")
	}

	if db != nil {
		if err := writeSnapshot(st, db, metrics); err != nil {
			log.Error("final snapshot write failed", zap.Error(err))
		} else {
			log.Info("final snapshot written")
		}
	}

	log.Info("voltmon shutdown complete")
}

// runSnapshotWriter periodically persists the current window/anomaly
// ring buffers to the BoltDB snapshot store.
func runSnapshotWriter(ctx context.Context, st *store.Store, db *storage.DB, metrics *observability.Metrics, interval time.Duration, log *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := writeSnapshot(st, db, metrics); err != nil {
				log.Error("periodic snapshot write failed", zap.Error(err))
			}
		}
	}
}

func writeSnapshot(st *store.Store, db *storage.DB, metrics *observability.Metrics) error {
	start := time.Now()
	windows := st.Windows(nil, nil)
	anomalies := st.Anomalies(store.AnomalyFilter{})

	if err := db.SaveWindows(windows); err != nil {
		return fmt.Errorf("save windows: %w", err)
	}
	if err := db.SaveAnomalies(anomalies); err != nil {
		return fmt.Errorf("save anomalies: %w", err)
	}
	metrics.SnapshotWriteLatency.Observe(time.Since(start).Seconds())
	return nil
}

// destructiveChange reports whether newCfg changes any field that
// requires a restart to take effect (storage path, HTTP listen address,
// ingest queue size/worker count, metrics listen address).
func destructiveChange(old, new *config.Config) bool {
	return old.Storage.DBPath != new.Storage.DBPath ||
		old.HTTP.ListenAddr != new.HTTP.ListenAddr ||
		old.Ingest.QueueSize != new.Ingest.QueueSize ||
		old.Ingest.Workers != new.Ingest.Workers ||
		old.Observability.MetricsAddr != new.Observability.MetricsAddr
}

// buildLogger constructs a zap.Logger with the given level and format.
func buildLogger(level, format string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var cfg zap.Config
	if format == "console" {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	return cfg.Build()
}

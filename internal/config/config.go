// Package config provides configuration loading, validation, and hot-reload
// for the voltage quality analytics agent.
//
// Configuration file: /etc/voltmon/config.yaml (default)
// Schema version: 1
//
// Hot-reload:
//   - Agent listens for SIGHUP.
//   - On SIGHUP: re-read and re-validate config.yaml.
//   - Apply non-destructive changes only: thresholds are swapped into the
//     running store. A changed log level is recorded in the config, but
//     the running logger keeps the level it was built with.
//   - Destructive changes (storage path, HTTP listen address, ingest queue
//     size, ingest worker count, metrics address) require restart.
//   - If the new config is invalid, the old config remains active and an
//     error is logged. The agent does NOT crash on invalid hot-reload config.
//
// Validation:
//   - All required fields must be present.
//   - Numeric ranges enforced (e.g., envelope min < max, weekly threshold in [0,100]).
//   - Invalid config on startup: agent refuses to start (fatal error).
//   - Invalid config on hot-reload: logged, old config retained.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Version, GitCommit, BuildTime are injected at build time via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Config is the root configuration structure for the agent.
// All fields have defaults; see Defaults() for values.
type Config struct {
	// SchemaVersion must be "1". Future versions will trigger migration.
	SchemaVersion string `yaml:"schema_version"`

	// NodeID is a unique identifier for this agent instance, used in logs.
	// Default: hostname.
	NodeID string `yaml:"node_id"`

	// Thresholds holds the frozen voltage/window/compliance constants (C1).
	Thresholds ThresholdConfig `yaml:"thresholds"`

	// Ingest configures the reading ingest pipeline.
	Ingest IngestConfig `yaml:"ingest"`

	// Storage configures the optional BoltDB snapshot store.
	Storage StorageConfig `yaml:"storage"`

	// Observability configures metrics and logging.
	Observability ObservabilityConfig `yaml:"observability"`

	// HTTP configures the query-facade HTTP server.
	HTTP HTTPConfig `yaml:"http"`
}

// ThresholdConfig is the frozen record of voltage/window/compliance
// constants described in spec §6. It is process-wide and read-only once
// loaded; no component mutates it.
type ThresholdConfig struct {
	// NominalVoltage1Ph is the nominal phase-to-neutral voltage, in volts.
	// Default: 230.
	NominalVoltage1Ph float64 `yaml:"nominal_voltage_1ph"`

	// VoltageMin1Ph / VoltageMax1Ph bound the in-envelope range, inclusive.
	// Default: 220 / 240.
	VoltageMin1Ph float64 `yaml:"voltage_min_1ph"`
	VoltageMax1Ph float64 `yaml:"voltage_max_1ph"`

	// VoltageZeroThreshold is the threshold below which supply is
	// considered lost. Default: 10.
	VoltageZeroThreshold float64 `yaml:"voltage_zero_threshold"`

	// WindowSeconds is the fixed RMS aggregation window length.
	// Default: 600 (10 minutes).
	WindowSeconds int `yaml:"window_seconds"`

	// WindowOOBMaxSeconds is the maximum out-of-envelope time a window may
	// accumulate and still be considered compliant. Default: 30.
	WindowOOBMaxSeconds int `yaml:"window_oob_max_seconds"`

	// LongInterruptionSeconds is the duration strictly above which an
	// interruption is classified LONG (vs SHORT). Default: 180.
	LongInterruptionSeconds int `yaml:"long_interruption_seconds"`

	// WeeklyCompliancePct is the minimum per-phase compliant-window
	// percentage for overall weekly compliance. Default: 95.0.
	WeeklyCompliancePct float64 `yaml:"weekly_compliance_pct"`

	// PollIntervalSeconds is the assumed sample spacing used to convert an
	// out-of-bounds reading count into out-of-bounds seconds. Default: 10.
	PollIntervalSeconds int `yaml:"poll_interval_seconds"`

	// ReadingBufferCap / WindowBufferCap / AnomalyBufferCap bound the C6
	// ring buffers. Defaults: 86400 / 2016 / 1000.
	ReadingBufferCap int `yaml:"reading_buffer_cap"`
	WindowBufferCap  int `yaml:"window_buffer_cap"`
	AnomalyBufferCap int `yaml:"anomaly_buffer_cap"`
}

// WindowDuration returns WindowSeconds as a time.Duration.
func (t ThresholdConfig) WindowDuration() time.Duration {
	return time.Duration(t.WindowSeconds) * time.Second
}

// IngestConfig holds reading-ingest pipeline parameters.
type IngestConfig struct {
	// QueueSize is the bounded channel depth between the ingest edge and
	// the state store. Default: 4096.
	QueueSize int `yaml:"queue_size"`

	// Workers is the number of goroutines draining the ingest queue.
	// Default: 2.
	Workers int `yaml:"workers"`
}

// StorageConfig holds the optional BoltDB snapshot parameters.
type StorageConfig struct {
	// Enabled controls whether periodic snapshotting is active.
	// Default: true.
	Enabled bool `yaml:"enabled"`

	// DBPath is the absolute path to the BoltDB snapshot file.
	// Default: /var/lib/voltmon/snapshot.db.
	DBPath string `yaml:"db_path"`

	// SnapshotInterval is how often the ring buffers are flushed to disk.
	// Default: 5m.
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
}

// ObservabilityConfig holds metrics and logging parameters.
type ObservabilityConfig struct {
	// MetricsAddr is the Prometheus metrics HTTP bind address.
	// Default: 127.0.0.1:9091.
	MetricsAddr string `yaml:"metrics_addr"`

	// LogLevel controls the minimum log level (debug, info, warn, error).
	// Default: info.
	LogLevel string `yaml:"log_level"`

	// LogFormat controls the log output format (json, console).
	// Default: json.
	LogFormat string `yaml:"log_format"`
}

// HTTPConfig holds the query-facade HTTP server parameters.
type HTTPConfig struct {
	// ListenAddr is the bind address for the public JSON API.
	// Default: 0.0.0.0:8080.
	ListenAddr string `yaml:"listen_addr"`

	// DefaultHistoryPoints / MaxHistoryPoints bound the `points` query
	// parameter on /api/voltage/history. Defaults: 500 / 5000.
	DefaultHistoryPoints int `yaml:"default_history_points"`
	MaxHistoryPoints     int `yaml:"max_history_points"`

	// DefaultAnomalyLimit / MaxAnomalyLimit bound the `limit` query
	// parameter on /api/voltage/anomalies. Defaults: 100 / 1000.
	DefaultAnomalyLimit int `yaml:"default_anomaly_limit"`
	MaxAnomalyLimit     int `yaml:"max_anomaly_limit"`
}

// Defaults returns a Config populated with all default values (spec §6).
func Defaults() Config {
	hostname, _ := os.Hostname()
	return Config{
		SchemaVersion: "1",
		NodeID:        hostname,
		Thresholds: ThresholdConfig{
			NominalVoltage1Ph:       230.0,
			VoltageMin1Ph:           220.0,
			VoltageMax1Ph:           240.0,
			VoltageZeroThreshold:    10.0,
			WindowSeconds:           600,
			WindowOOBMaxSeconds:     30,
			LongInterruptionSeconds: 180,
			WeeklyCompliancePct:     95.0,
			PollIntervalSeconds:     10,
			ReadingBufferCap:        86400,
			WindowBufferCap:         2016,
			AnomalyBufferCap:        1000,
		},
		Ingest: IngestConfig{
			QueueSize: 4096,
			Workers:   2,
		},
		Storage: StorageConfig{
			Enabled:          true,
			DBPath:           DefaultDBPath,
			SnapshotInterval: 5 * time.Minute,
		},
		Observability: ObservabilityConfig{
			MetricsAddr: "127.0.0.1:9091",
			LogLevel:    "info",
			LogFormat:   "json",
		},
		HTTP: HTTPConfig{
			ListenAddr:           "0.0.0.0:8080",
			DefaultHistoryPoints: 500,
			MaxHistoryPoints:     5000,
			DefaultAnomalyLimit:  100,
			MaxAnomalyLimit:      1000,
		},
	}
}

// DefaultDBPath is the default BoltDB snapshot file location.
const DefaultDBPath = "/var/lib/voltmon/snapshot.db"

// Load reads and validates a config file from the given path.
// Returns the merged config (defaults overridden by file values).
// Returns an error if the file cannot be read, parsed, or validated.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse %q: %w", path, err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config.Load: validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate checks all config fields for correctness.
// Returns a descriptive error listing all violations found.
func Validate(cfg *Config) error {
	var errs []string

	if cfg.SchemaVersion != "1" {
		errs = append(errs, fmt.Sprintf("schema_version must be \"1\", got %q", cfg.SchemaVersion))
	}
	if cfg.NodeID == "" {
		errs = append(errs, "node_id must not be empty")
	}

	t := cfg.Thresholds
	if t.VoltageMin1Ph >= t.VoltageMax1Ph {
		errs = append(errs, fmt.Sprintf("thresholds.voltage_min_1ph (%f) must be < voltage_max_1ph (%f)", t.VoltageMin1Ph, t.VoltageMax1Ph))
	}
	if t.NominalVoltage1Ph <= 0 {
		errs = append(errs, "thresholds.nominal_voltage_1ph must be > 0")
	}
	if t.VoltageZeroThreshold <= 0 || t.VoltageZeroThreshold >= t.VoltageMin1Ph {
		errs = append(errs, fmt.Sprintf("thresholds.voltage_zero_threshold (%f) must be in (0, voltage_min_1ph)", t.VoltageZeroThreshold))
	}
	if t.WindowSeconds <= 0 {
		errs = append(errs, "thresholds.window_seconds must be > 0")
	}
	if t.WindowOOBMaxSeconds < 0 || t.WindowOOBMaxSeconds > t.WindowSeconds {
		errs = append(errs, "thresholds.window_oob_max_seconds must be in [0, window_seconds]")
	}
	if t.LongInterruptionSeconds <= 0 {
		errs = append(errs, "thresholds.long_interruption_seconds must be > 0")
	}
	if t.WeeklyCompliancePct < 0 || t.WeeklyCompliancePct > 100 {
		errs = append(errs, "thresholds.weekly_compliance_pct must be in [0, 100]")
	}
	if t.PollIntervalSeconds <= 0 {
		errs = append(errs, "thresholds.poll_interval_seconds must be > 0")
	}
	if t.ReadingBufferCap < 1 {
		errs = append(errs, "thresholds.reading_buffer_cap must be >= 1")
	}
	if t.WindowBufferCap < 1 {
		errs = append(errs, "thresholds.window_buffer_cap must be >= 1")
	}
	if t.AnomalyBufferCap < 1 {
		errs = append(errs, "thresholds.anomaly_buffer_cap must be >= 1")
	}

	if cfg.Ingest.QueueSize < 1 {
		errs = append(errs, "ingest.queue_size must be >= 1")
	}
	if cfg.Ingest.Workers < 1 || cfg.Ingest.Workers > 64 {
		errs = append(errs, "ingest.workers must be in [1, 64]")
	}

	if cfg.Storage.Enabled && cfg.Storage.DBPath == "" {
		errs = append(errs, "storage.db_path must not be empty when storage.enabled is true")
	}
	if cfg.Storage.SnapshotInterval < time.Second {
		errs = append(errs, "storage.snapshot_interval must be >= 1s")
	}

	if cfg.HTTP.ListenAddr == "" {
		errs = append(errs, "http.listen_addr must not be empty")
	}
	if cfg.HTTP.MaxHistoryPoints < cfg.HTTP.DefaultHistoryPoints {
		errs = append(errs, "http.max_history_points must be >= default_history_points")
	}
	if cfg.HTTP.MaxAnomalyLimit < cfg.HTTP.DefaultAnomalyLimit {
		errs = append(errs, "http.max_anomaly_limit must be >= default_anomaly_limit")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", joinStrings(errs, "\n  - "))
	}
	return nil
}

// joinStrings joins a slice of strings with a separator.
func joinStrings(ss []string, sep string) string {
	if len(ss) == 0 {
		return ""
	}
	result := ss[0]
	for _, s := range ss[1:] {
		result += sep + s
	}
	return result
}

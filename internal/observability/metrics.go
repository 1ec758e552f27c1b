// Package observability — metrics.go
//
// Prometheus metrics for the voltage quality analytics agent.
//
// Endpoint: GET /metrics on 127.0.0.1:9091 (configurable).
// Format: Prometheus text exposition format (OpenMetrics compatible).
// Bind: loopback by default; the address is taken as configured.
//
// Metric naming convention: voltmon_<subsystem>_<name>_<unit>
//
// All metrics are registered on a dedicated prometheus.Registry (not the
// default global registry) to avoid collisions with other instrumented
// libraries in the same process.
package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metric descriptors for the agent.
type Metrics struct {
	registry *prometheus.Registry

	// ─── Ingest ───────────────────────────────────────────────────────────────

	// ReadingsIngestedTotal counts readings accepted onto the ingest queue.
	ReadingsIngestedTotal prometheus.Counter

	// ReadingsDroppedTotal counts readings dropped before reaching the store.
	// Labels: reason. Only queue_full is recorded; out-of-contract readings
	// are folded into the open window, not dropped.
	ReadingsDroppedTotal *prometheus.CounterVec

	// IngestQueueDepth is the current depth of the bounded ingest channel.
	IngestQueueDepth prometheus.Gauge

	// ─── Anomaly tracker ──────────────────────────────────────────────────────

	// AnomaliesTotal counts anomalies emitted by the tracker.
	// Labels: phase (L1, L2, L3), kind, severity.
	AnomaliesTotal *prometheus.CounterVec

	// AnomaliesActive is the current count of non-idle sub-machines.
	AnomaliesActive prometheus.Gauge

	// ─── RMS aggregator / compliance ─────────────────────────────────────────

	// WindowComplianceRatio is the most recently completed window's
	// compliance (1 or 0), by phase.
	WindowComplianceRatio *prometheus.GaugeVec

	// WindowsCompletedTotal counts completed RMS windows.
	WindowsCompletedTotal prometheus.Counter

	// WeeklyCompliancePct is the current week's per-phase compliance
	// percentage, refreshed each time the weekly-compliance endpoint is
	// served (the summary endpoint does not refresh it).
	WeeklyCompliancePct *prometheus.GaugeVec

	// ─── Storage ──────────────────────────────────────────────────────────────

	// SnapshotWriteLatency records BoltDB snapshot write latency.
	SnapshotWriteLatency prometheus.Histogram

	// ─── HTTP ─────────────────────────────────────────────────────────────────

	// HTTPRequestsTotal counts served query-facade requests.
	// Labels: route, code.
	HTTPRequestsTotal *prometheus.CounterVec

	// ─── Agent ────────────────────────────────────────────────────────────────

	// UptimeSeconds is the number of seconds since agent start.
	UptimeSeconds prometheus.Gauge

	startTime time.Time
}

// NewMetrics creates and registers all voltmon Prometheus metrics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		ReadingsIngestedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voltmon",
			Name:      "readings_ingested_total",
			Help:      "Total voltage readings accepted onto the ingest queue.",
		}),

		ReadingsDroppedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voltmon",
			Name:      "readings_dropped_total",
			Help:      "Total readings dropped before reaching the store, by reason.",
		}, []string{"reason"}),

		IngestQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "voltmon",
			Name:      "ingest_queue_depth",
			Help:      "Current depth of the bounded ingest queue.",
		}),

		AnomaliesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voltmon",
			Name:      "anomalies_total",
			Help:      "Total anomalies emitted, by phase, kind, and severity.",
		}, []string{"phase", "kind", "severity"}),

		AnomaliesActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "voltmon",
			Name:      "anomalies_active",
			Help:      "Current number of ongoing interruption/deviation sub-machines.",
		}),

		WindowComplianceRatio: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "voltmon",
			Name:      "window_compliance_ratio",
			Help:      "Compliance (1 or 0) of the most recently completed RMS window, by phase.",
		}, []string{"phase"}),

		WindowsCompletedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "voltmon",
			Name:      "windows_completed_total",
			Help:      "Total completed 10-minute RMS windows.",
		}),

		WeeklyCompliancePct: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "voltmon",
			Name:      "weekly_compliance_pct",
			Help:      "Current week's per-phase compliant-window percentage.",
		}, []string{"phase"}),

		SnapshotWriteLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "voltmon",
			Name:      "snapshot_write_latency_seconds",
			Help:      "BoltDB snapshot write transaction latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}),

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voltmon",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests served by the query facade, by route and status code.",
		}, []string{"route", "code"}),

		UptimeSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "voltmon",
			Name:      "uptime_seconds",
			Help:      "Number of seconds since the agent started.",
		}),
	}

	reg.MustRegister(
		m.ReadingsIngestedTotal,
		m.ReadingsDroppedTotal,
		m.IngestQueueDepth,
		m.AnomaliesTotal,
		m.AnomaliesActive,
		m.WindowComplianceRatio,
		m.WindowsCompletedTotal,
		m.WeeklyCompliancePct,
		m.SnapshotWriteLatency,
		m.HTTPRequestsTotal,
		m.UptimeSeconds,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)

	return m
}

// ServeMetrics starts the Prometheus HTTP metrics server on the given
// address. Blocks until ctx is cancelled or the server fails.
func (m *Metrics) ServeMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go m.updateUptime(ctx)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("metrics server on %s: %w", addr, err)
	}
	return nil
}

func (m *Metrics) updateUptime(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.UptimeSeconds.Set(time.Since(m.startTime).Seconds())
		case <-ctx.Done():
			return
		}
	}
}

package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// TestNewMetrics_RegistersWithoutPanic confirms every metric is wired to
// the dedicated registry with no name collisions (MustRegister panics on
// a collision, so a clean construction is itself the assertion).
func TestNewMetrics_RegistersWithoutPanic(t *testing.T) {
	m := NewMetrics()
	if m.registry == nil {
		t.Fatal("NewMetrics did not set a registry")
	}

	m.ReadingsIngestedTotal.Inc()
	m.ReadingsDroppedTotal.WithLabelValues("queue_full").Inc()
	m.AnomaliesTotal.WithLabelValues("L1", "SHORT_INTERRUPTION", "WARNING").Inc()
	m.WindowComplianceRatio.WithLabelValues("L2").Set(1)
	m.WeeklyCompliancePct.WithLabelValues("L3").Set(97.5)
	m.HTTPRequestsTotal.WithLabelValues("/api/voltage/latest", "200").Inc()
	m.SnapshotWriteLatency.Observe(0.01)
	m.UptimeSeconds.Set(42)
}

// TestMetricsEndpoint_ServesExpositionFormat exercises the registry the
// way ServeMetrics wires it into promhttp, without binding a real
// listener.
func TestMetricsEndpoint_ServesExpositionFormat(t *testing.T) {
	m := NewMetrics()
	m.ReadingsIngestedTotal.Inc()

	handler := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "voltmon_readings_ingested_total") {
		t.Fatalf("exposition output missing voltmon_readings_ingested_total metric:\n%s", w.Body.String())
	}
}

// TestServeMetrics_ShutsDownOnContextCancel confirms ServeMetrics returns
// promptly once its context is cancelled, rather than leaking the
// listener goroutine.
func TestServeMetrics_ShutsDownOnContextCancel(t *testing.T) {
	m := NewMetrics()
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		errCh <- m.ServeMetrics(ctx, "127.0.0.1:0")
	}()

	// Give the server a moment to start listening before cancelling.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("ServeMetrics returned error on shutdown: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ServeMetrics did not return within 2s of context cancellation")
	}
}


// Package api implements the Query Facade (C7) and HTTP Server (C11): a
// stateless request-shaping layer in front of the state store, served
// over a stdlib net/http.ServeMux — no router framework, matching the
// teacher's convention for a handful of fixed routes.
//
// JSON responses; ISO-8601 timestamps in UTC; dates parsed loosely
// (invalid inputs fall back to caller-supplied defaults).
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/PVP-elektros-stebesena/elektros-stebesenos-sistema/internal/anomaly"
	"github.com/PVP-elektros-stebesena/elektros-stebesenos-sistema/internal/config"
	"github.com/PVP-elektros-stebesena/elektros-stebesenos-sistema/internal/ingest"
	"github.com/PVP-elektros-stebesena/elektros-stebesenos-sistema/internal/observability"
	"github.com/PVP-elektros-stebesena/elektros-stebesenos-sistema/internal/reading"
	"github.com/PVP-elektros-stebesena/elektros-stebesenos-sistema/internal/store"
)

// Server is the HTTP query facade wired to the state store, the ingest
// pipeline, and metrics.
type Server struct {
	store    *store.Store
	pipeline *ingest.Pipeline
	metrics  *observability.Metrics
	log      *zap.Logger
	cfg      config.HTTPConfig
}

// New creates a Server. pipeline may be nil if the ingest endpoint is
// unused (e.g. in tests exercising only read routes).
func New(st *store.Store, pipeline *ingest.Pipeline, metrics *observability.Metrics, log *zap.Logger, cfg config.HTTPConfig) *Server {
	return &Server{store: st, pipeline: pipeline, metrics: metrics, log: log, cfg: cfg}
}

// Handler builds the route mux with panic-recovery and metrics
// middleware applied to every route.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/voltage/latest", s.handleLatest)
	mux.HandleFunc("/api/voltage/history", s.handleHistory)
	mux.HandleFunc("/api/voltage/anomalies", s.handleAnomalies)
	mux.HandleFunc("/api/voltage/anomalies/active", s.handleAnomaliesActive)
	mux.HandleFunc("/api/voltage/compliance/weekly", s.handleComplianceWeekly)
	mux.HandleFunc("/api/voltage/summary", s.handleSummary)
	mux.HandleFunc("/api/voltage/ingest", s.handleIngest)

	return s.withMiddleware(mux)
}

// ListenAndServe starts the HTTP server and blocks until ctx is
// cancelled, then shuts down gracefully within a 5s drain timer.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server on %s: %w", s.cfg.ListenAddr, err)
	}
	return nil
}

// withMiddleware wraps h with panic recovery and request-count metrics.
func (s *Server) withMiddleware(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("panic handling request", zap.Any("recover", rec), zap.String("path", r.URL.Path))
				writeError(w, http.StatusInternalServerError, "INTERNAL")
				s.metrics.HTTPRequestsTotal.WithLabelValues(r.URL.Path, "500").Inc()
			}
		}()

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		h.ServeHTTP(sw, r)
		s.metrics.HTTPRequestsTotal.WithLabelValues(r.URL.Path, strconv.Itoa(sw.status)).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}

// currentThresholds returns the store's live threshold configuration,
// reflecting any SIGHUP-applied hot-reload.
func (s *Server) currentThresholds() config.ThresholdConfig {
	return s.store.Thresholds()
}

// boundsPayload mirrors the fixed threshold envelope for UI display.
func boundsPayload(t config.ThresholdConfig) map[string]float64 {
	return map[string]float64{
		"nominal": t.NominalVoltage1Ph,
		"min":     t.VoltageMin1Ph,
		"max":     t.VoltageMax1Ph,
	}
}

// parseTimeParam loosely parses an RFC3339 query parameter, returning
// nil if absent or unparseable (callers fall back to defaults).
func parseTimeParam(r *http.Request, key string) *time.Time {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil
	}
	return &t
}

func parseIntParam(r *http.Request, key string, def, max int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	if n > max {
		return max
	}
	return n
}

func phaseAnalysisJSON(pa reading.PhaseAnalysis) map[string]any {
	return map[string]any{
		"phase":     pa.Phase.String(),
		"voltage":   pa.Voltage,
		"nominal":   pa.Nominal,
		"min":       pa.Min,
		"max":       pa.Max,
		"deviation": pa.Deviation,
		"in_bounds": pa.InBounds,
		"is_zero":   pa.IsZero,
	}
}

func anomalyJSON(a anomaly.Anomaly) map[string]any {
	out := map[string]any{
		"started_at": a.StartedAt.UTC().Format(time.RFC3339),
		"phase":      a.Phase.String(),
		"kind":       string(a.Kind),
		"severity":   string(a.Severity),
		"v_min":      a.VMin,
		"v_max":      a.VMax,
	}
	if a.EndedAt != nil {
		out["ended_at"] = a.EndedAt.UTC().Format(time.RFC3339)
	} else {
		out["ended_at"] = nil
	}
	if a.DurationS != nil {
		out["duration_s"] = *a.DurationS
	} else {
		out["duration_s"] = nil
	}
	return out
}

package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/PVP-elektros-stebesena/elektros-stebesenos-sistema/internal/config"
	"github.com/PVP-elektros-stebesena/elektros-stebesenos-sistema/internal/observability"
	"github.com/PVP-elektros-stebesena/elektros-stebesenos-sistema/internal/reading"
	"github.com/PVP-elektros-stebesena/elektros-stebesenos-sistema/internal/store"
)

func testServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	cfg := config.Defaults()
	st := store.New(cfg.Thresholds, time.Now)
	metrics := observability.NewMetrics()
	srv := New(st, nil, metrics, zap.NewNop(), cfg.HTTP)
	return srv, st
}

func TestHandleLatest_NoDataReturns503(t *testing.T) {
	srv, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/voltage/latest", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}

func TestHandleLatest_WithDataReturns200(t *testing.T) {
	srv, st := testServer(t)
	st.Push(reading.Reading{Timestamp: time.Now(), V1: 230, V2: 230, V3: 230})

	req := httptest.NewRequest(http.MethodGet, "/api/voltage/latest", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestHandleHistory_InvalidRangeReturns400(t *testing.T) {
	srv, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/voltage/history?from=2026-07-30T12:00:00Z&to=2026-07-30T10:00:00Z", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHandleAnomaliesActive_EmptyStore(t *testing.T) {
	srv, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/voltage/anomalies/active", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestHandleAnomalies_InvalidTypeReturns400(t *testing.T) {
	srv, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/voltage/anomalies?type=BOGUS", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestHandleIngest_DisabledWithoutPipeline(t *testing.T) {
	srv, _ := testServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/voltage/ingest", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", w.Code)
	}
}

func TestHandleComplianceWeekly_ReturnsESOConstants(t *testing.T) {
	srv, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/voltage/compliance/weekly", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["eso_threshold_pct"] != 95.0 || body["window_duration_minutes"] != 10.0 || body["windows_per_week"] != 1008.0 {
		t.Errorf("ESO constants = %v/%v/%v, want 95/10/1008", body["eso_threshold_pct"], body["window_duration_minutes"], body["windows_per_week"])
	}
}

func TestHandleSummary_ReportsNoDataInitially(t *testing.T) {
	srv, _ := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/voltage/summary", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["has_data"] != false {
		t.Errorf("has_data = %v, want false", body["has_data"])
	}
}

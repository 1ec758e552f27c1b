package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/PVP-elektros-stebesena/elektros-stebesenos-sistema/internal/anomaly"
	"github.com/PVP-elektros-stebesena/elektros-stebesenos-sistema/internal/reading"
	"github.com/PVP-elektros-stebesena/elektros-stebesenos-sistema/internal/store"
)

// handleLatest serves GET /api/voltage/latest.
func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	r0, phases, ok := s.store.AnalyzeLatest()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "NO_DATA")
		return
	}

	thresholds := s.currentThresholds()
	payload := map[string]any{
		"timestamp": r0.Timestamp.UTC().Format(time.RFC3339),
		"phases": []map[string]any{
			phaseAnalysisJSON(phases[0]),
			phaseAnalysisJSON(phases[1]),
			phaseAnalysisJSON(phases[2]),
		},
		"bounds": boundsPayload(thresholds),
	}
	writeJSON(w, http.StatusOK, payload)
}

// handleHistory serves GET /api/voltage/history?from&to&points&interval.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	interval := r.URL.Query().Get("interval")
	if interval == "" {
		interval = "raw"
	}
	if interval != "raw" && interval != "10min" {
		interval = "raw"
	}

	from := parseTimeParam(r, "from")
	to := parseTimeParam(r, "to")
	if from != nil && to != nil && !from.Before(*to) {
		writeError(w, http.StatusBadRequest, "INVALID_RANGE")
		return
	}

	points := parseIntParam(r, "points", s.cfg.DefaultHistoryPoints, s.cfg.MaxHistoryPoints)
	thresholds := s.currentThresholds()

	if interval == "10min" {
		windows := s.store.Windows(from, to)
		data := make([]map[string]any, 0, len(windows))
		for _, win := range windows {
			data = append(data, map[string]any{
				"window_start":    win.WindowStart.UTC().Format(time.RFC3339),
				"window_end":      win.WindowEnd.UTC().Format(time.RFC3339),
				"sample_count":    win.SampleCount,
				"voltage_l1":      win.RmsV1,
				"voltage_l2":      win.RmsV2,
				"voltage_l3":      win.RmsV3,
				"oob_seconds_l1":  win.OOBSecondsL1,
				"oob_seconds_l2":  win.OOBSecondsL2,
				"oob_seconds_l3":  win.OOBSecondsL3,
				"compliant_l1":    win.CompliantL1,
				"compliant_l2":    win.CompliantL2,
				"compliant_l3":    win.CompliantL3,
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"interval": interval,
			"from":     timeOrNull(from),
			"to":       timeOrNull(to),
			"count":    len(data),
			"data":     data,
			"bounds":   boundsPayload(thresholds),
		})
		return
	}

	var readings []reading.Reading
	if from != nil && to != nil {
		readings = s.store.ReadingsDownsampled(*from, *to, points)
	} else {
		readings = s.store.Readings(from, to)
	}

	data := make([]map[string]any, 0, len(readings))
	for _, rd := range readings {
		data = append(data, map[string]any{
			"timestamp":  rd.Timestamp.UTC().Format(time.RFC3339),
			"voltage_l1": rd.V1,
			"voltage_l2": rd.V2,
			"voltage_l3": rd.V3,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"interval": interval,
		"from":     timeOrNull(from),
		"to":       timeOrNull(to),
		"count":    len(data),
		"data":     data,
		"bounds":   boundsPayload(thresholds),
	})
}

// handleAnomalies serves GET /api/voltage/anomalies?type&phase&from&to&limit.
func (s *Server) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	filter := store.AnomalyFilter{
		From: parseTimeParam(r, "from"),
		To:   parseTimeParam(r, "to"),
	}

	if kindParam := r.URL.Query().Get("type"); kindParam != "" {
		k := anomaly.Kind(kindParam)
		if k != anomaly.LongInterruption && k != anomaly.ShortInterruption && k != anomaly.VoltageDeviation {
			writeError(w, http.StatusBadRequest, "INVALID_TYPE")
			return
		}
		filter.Kind = &k
	}

	if phaseParam := r.URL.Query().Get("phase"); phaseParam != "" {
		p, ok := reading.ParsePhase(phaseParam)
		if !ok {
			writeError(w, http.StatusBadRequest, "INVALID_PHASE")
			return
		}
		filter.Phase = &p
	}

	limit := parseIntParam(r, "limit", s.cfg.DefaultAnomalyLimit, s.cfg.MaxAnomalyLimit)

	matched := s.store.Anomalies(filter)
	// Newest first, limit applied after filtering.
	reversed := make([]anomaly.Anomaly, len(matched))
	for i, a := range matched {
		reversed[len(matched)-1-i] = a
	}
	if len(reversed) > limit {
		reversed = reversed[:limit]
	}

	data := make([]map[string]any, 0, len(reversed))
	for _, a := range reversed {
		data = append(data, anomalyJSON(a))
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(data), "data": data})
}

// handleAnomaliesActive serves GET /api/voltage/anomalies/active.
func (s *Server) handleAnomaliesActive(w http.ResponseWriter, r *http.Request) {
	active := s.store.ActiveAnomalies()
	data := make([]map[string]any, 0, len(active))
	for _, a := range active {
		data = append(data, map[string]any{
			"phase":      a.Phase.String(),
			"type":       a.Type,
			"started_at": a.StartedAt.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(data), "data": data})
}

// handleComplianceWeekly serves GET /api/voltage/compliance/weekly?date.
func (s *Server) handleComplianceWeekly(w http.ResponseWriter, r *http.Request) {
	date := parseTimeParam(r, "date")
	wc := s.store.WeeklyCompliance(date)

	thresholds := s.currentThresholds()
	s.metrics.WeeklyCompliancePct.WithLabelValues("L1").Set(wc.CompliancePctL1)
	s.metrics.WeeklyCompliancePct.WithLabelValues("L2").Set(wc.CompliancePctL2)
	s.metrics.WeeklyCompliancePct.WithLabelValues("L3").Set(wc.CompliancePctL3)

	writeJSON(w, http.StatusOK, map[string]any{
		"week_start":                  wc.WeekStart.UTC().Format(time.RFC3339),
		"week_end":                    wc.WeekEnd.UTC().Format(time.RFC3339),
		"total_windows":               wc.TotalWindows,
		"compliant_windows_l1":        wc.CompliantWindowsL1,
		"compliant_windows_l2":        wc.CompliantWindowsL2,
		"compliant_windows_l3":        wc.CompliantWindowsL3,
		"compliance_pct_l1":           wc.CompliancePctL1,
		"compliance_pct_l2":           wc.CompliancePctL2,
		"compliance_pct_l3":           wc.CompliancePctL3,
		"overall_compliant":           wc.OverallCompliant,
		"eso_threshold_pct":           thresholds.WeeklyCompliancePct,
		"window_duration_minutes":     thresholds.WindowSeconds / 60,
		"windows_per_week":            (7 * 24 * 60 * 60) / thresholds.WindowSeconds,
	})
}

// handleSummary serves GET /api/voltage/summary.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	latest, hasData := s.store.Latest()
	stats := s.store.Stats()
	wc := s.store.WeeklyCompliance(nil)
	thresholds := s.currentThresholds()

	payload := map[string]any{
		"has_data": hasData,
		"stats": map[string]any{
			"total_readings":   stats.TotalReadings,
			"total_windows":    stats.TotalWindows,
			"total_anomalies":  stats.TotalAnomalies,
			"active_anomalies": stats.ActiveAnomalies,
		},
		"weekly_compliance": map[string]any{
			"pct_l1":            wc.CompliancePctL1,
			"pct_l2":            wc.CompliancePctL2,
			"pct_l3":            wc.CompliancePctL3,
			"overall_compliant": wc.OverallCompliant,
		},
		"bounds": boundsPayload(thresholds),
	}
	if hasData {
		payload["latest_timestamp"] = latest.Timestamp.UTC().Format(time.RFC3339)
	} else {
		payload["latest_timestamp"] = nil
	}
	writeJSON(w, http.StatusOK, payload)
}

// ingestRequest is the wire shape accepted by POST /api/voltage/ingest.
type ingestRequest struct {
	Timestamp time.Time `json:"timestamp"`
	VoltageL1 float64   `json:"voltage_l1"`
	VoltageL2 float64   `json:"voltage_l2"`
	VoltageL3 float64   `json:"voltage_l3"`
}

// handleIngest serves POST /api/voltage/ingest.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED")
		return
	}
	if s.pipeline == nil {
		writeError(w, http.StatusServiceUnavailable, "INGEST_DISABLED")
		return
	}

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Timestamp.IsZero() {
		writeError(w, http.StatusBadRequest, "INVALID_READING")
		return
	}

	rd := reading.Reading{Timestamp: req.Timestamp, V1: req.VoltageL1, V2: req.VoltageL2, V3: req.VoltageL3}
	if !s.pipeline.Submit(r.Context(), rd) {
		writeError(w, http.StatusTooManyRequests, "QUEUE_FULL")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

func timeOrNull(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/PVP-elektros-stebesena/elektros-stebesenos-sistema/internal/anomaly"
	"github.com/PVP-elektros-stebesena/elektros-stebesenos-sistema/internal/reading"
	"github.com/PVP-elektros-stebesena/elektros-stebesenos-sistema/internal/window"
)

// TestSnapshotRoundTrip exercises SPEC_FULL.md §8's required ambient
// coverage: a snapshot write followed by a fresh-open hydrate reproduces
// the same window and anomaly contents.
func TestSnapshotRoundTrip(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "snapshot.db")

	winStart := time.Date(2026, 7, 27, 10, 0, 0, 0, time.UTC)
	wantWindows := []window.RmsWindow{
		{
			WindowStart:  winStart,
			WindowEnd:    winStart.Add(10 * time.Minute),
			SampleCount:  60,
			RmsV1:        230.123,
			RmsV2:        229.876,
			RmsV3:        230.5,
			OOBSecondsL1: 0,
			OOBSecondsL2: 12.5,
			OOBSecondsL3: 0,
			CompliantL1:  true,
			CompliantL2:  true,
			CompliantL3:  true,
		},
		{
			WindowStart:  winStart.Add(10 * time.Minute),
			WindowEnd:    winStart.Add(20 * time.Minute),
			SampleCount:  60,
			RmsV1:        218.0,
			RmsV2:        230.0,
			RmsV3:        230.0,
			OOBSecondsL1: 45,
			OOBSecondsL2: 0,
			OOBSecondsL3: 0,
			CompliantL1:  false,
			CompliantL2:  true,
			CompliantL3:  true,
		},
	}

	endedAt := winStart.Add(90 * time.Second)
	durationS := 90.0
	wantAnomalies := []anomaly.Anomaly{
		{
			StartedAt: winStart,
			EndedAt:   &endedAt,
			Phase:     reading.L2,
			Kind:      anomaly.ShortInterruption,
			Severity:  anomaly.Warning,
			VMin:      0,
			VMax:      5,
			DurationS: &durationS,
		},
		{
			StartedAt: winStart.Add(5 * time.Minute),
			EndedAt:   nil,
			Phase:     reading.L1,
			Kind:      anomaly.VoltageDeviation,
			Severity:  anomaly.Warning,
			VMin:      215,
			VMax:      215,
			DurationS: nil,
		},
	}

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := db.SaveWindows(wantWindows); err != nil {
		t.Fatalf("SaveWindows: %v", err)
	}
	if err := db.SaveAnomalies(wantAnomalies); err != nil {
		t.Fatalf("SaveAnomalies: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	gotWindows, err := reopened.LoadWindows()
	if err != nil {
		t.Fatalf("LoadWindows: %v", err)
	}
	if len(gotWindows) != len(wantWindows) {
		t.Fatalf("LoadWindows returned %d windows, want %d", len(gotWindows), len(wantWindows))
	}
	for i, want := range wantWindows {
		got := gotWindows[i]
		if !got.WindowStart.Equal(want.WindowStart) || !got.WindowEnd.Equal(want.WindowEnd) {
			t.Fatalf("window %d: timestamps = %+v, want %+v", i, got, want)
		}
		if got.SampleCount != want.SampleCount || got.RmsV1 != want.RmsV1 || got.RmsV2 != want.RmsV2 || got.RmsV3 != want.RmsV3 {
			t.Fatalf("window %d: rms fields = %+v, want %+v", i, got, want)
		}
		if got.OOBSecondsL1 != want.OOBSecondsL1 || got.OOBSecondsL2 != want.OOBSecondsL2 || got.OOBSecondsL3 != want.OOBSecondsL3 {
			t.Fatalf("window %d: oob seconds = %+v, want %+v", i, got, want)
		}
		if got.CompliantL1 != want.CompliantL1 || got.CompliantL2 != want.CompliantL2 || got.CompliantL3 != want.CompliantL3 {
			t.Fatalf("window %d: compliance = %+v, want %+v", i, got, want)
		}
	}

	gotAnomalies, err := reopened.LoadAnomalies()
	if err != nil {
		t.Fatalf("LoadAnomalies: %v", err)
	}
	if len(gotAnomalies) != len(wantAnomalies) {
		t.Fatalf("LoadAnomalies returned %d anomalies, want %d", len(gotAnomalies), len(wantAnomalies))
	}
	for i, want := range wantAnomalies {
		got := gotAnomalies[i]
		if !got.StartedAt.Equal(want.StartedAt) || got.Phase != want.Phase || got.Kind != want.Kind || got.Severity != want.Severity {
			t.Fatalf("anomaly %d: identity fields = %+v, want %+v", i, got, want)
		}
		if got.VMin != want.VMin || got.VMax != want.VMax {
			t.Fatalf("anomaly %d: v_min/v_max = %+v, want %+v", i, got, want)
		}
		if (got.EndedAt == nil) != (want.EndedAt == nil) {
			t.Fatalf("anomaly %d: EndedAt nil-ness mismatch: got %v, want %v", i, got.EndedAt, want.EndedAt)
		}
		if got.EndedAt != nil && !got.EndedAt.Equal(*want.EndedAt) {
			t.Fatalf("anomaly %d: EndedAt = %v, want %v", i, *got.EndedAt, *want.EndedAt)
		}
		if (got.DurationS == nil) != (want.DurationS == nil) {
			t.Fatalf("anomaly %d: DurationS nil-ness mismatch: got %v, want %v", i, got.DurationS, want.DurationS)
		}
		if got.DurationS != nil && *got.DurationS != *want.DurationS {
			t.Fatalf("anomaly %d: DurationS = %v, want %v", i, *got.DurationS, *want.DurationS)
		}
	}
}

// TestLoadWindows_EmptyDatabaseReturnsEmpty confirms a cold-start open
// (no prior SaveWindows/SaveAnomalies) hydrates to empty slices, not an
// error — the snapshot store is a cache, not a system of record.
func TestLoadWindows_EmptyDatabaseReturnsEmpty(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "snapshot.db")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	windows, err := db.LoadWindows()
	if err != nil {
		t.Fatalf("LoadWindows: %v", err)
	}
	if len(windows) != 0 {
		t.Fatalf("LoadWindows on empty db = %v, want empty", windows)
	}

	anomalies, err := db.LoadAnomalies()
	if err != nil {
		t.Fatalf("LoadAnomalies: %v", err)
	}
	if len(anomalies) != 0 {
		t.Fatalf("LoadAnomalies on empty db = %v, want empty", anomalies)
	}
}

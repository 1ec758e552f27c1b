package window

import (
	"testing"
	"time"

	"github.com/PVP-elektros-stebesena/elektros-stebesenos-sistema/internal/config"
	"github.com/PVP-elektros-stebesena/elektros-stebesenos-sistema/internal/reading"
)

func testAggregator(t *testing.T) *Aggregator {
	t.Helper()
	return NewAggregator(config.Defaults().Thresholds)
}

func mkReading(ts time.Time, v1, v2, v3 float64) reading.Reading {
	return reading.Reading{Timestamp: ts, V1: v1, V2: v2, V3: v3}
}

// TestWindowBounds_AlwaysSixHundredSeconds covers invariant 3:
// window_end - window_start = 600s for every emitted window.
func TestWindowBounds_AlwaysSixHundredSeconds(t *testing.T) {
	a := testAggregator(t)
	base := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	a.Add(mkReading(base, 230, 230, 230))
	got := a.Add(mkReading(base.Add(11*time.Minute), 230, 230, 230))
	if got == nil {
		t.Fatal("expected a completed window on slot crossing")
	}
	if d := got.WindowEnd.Sub(got.WindowStart); d != 600*time.Second {
		t.Errorf("window duration = %v, want 600s", d)
	}
	if got.OOBSecondsL1 < 0 || got.OOBSecondsL1 > 600 {
		t.Errorf("oob_seconds_l1 = %v, want in [0,600]", got.OOBSecondsL1)
	}
}

// TestScenarioS5_WindowComplianceAtFivePercent covers spec scenario S5.
func TestScenarioS5_WindowComplianceAtFivePercent(t *testing.T) {
	base := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	run := func(oobCount int) *RmsWindow {
		a := testAggregator(t)
		var completed *RmsWindow
		for i := 0; i < 60; i++ {
			v1 := 230.0
			if i < oobCount {
				v1 = 250.0
			}
			ts := base.Add(time.Duration(i*10) * time.Second)
			if w := a.Add(mkReading(ts, v1, 230, 230)); w != nil {
				completed = w
			}
		}
		// 61st reading in the next slot closes the window.
		next := base.Add(10 * time.Minute)
		if w := a.Add(mkReading(next, 230, 230, 230)); w != nil {
			completed = w
		}
		return completed
	}

	w3 := run(3)
	if w3 == nil {
		t.Fatal("expected a completed window")
	}
	if w3.OOBSecondsL1 != 30 {
		t.Errorf("oob_seconds_l1 = %v, want 30", w3.OOBSecondsL1)
	}
	if !w3.CompliantL1 {
		t.Error("compliant_l1 = false, want true at exactly 30s OOB")
	}

	w4 := run(4)
	if w4 == nil {
		t.Fatal("expected a completed window")
	}
	if w4.OOBSecondsL1 != 40 {
		t.Errorf("oob_seconds_l1 = %v, want 40", w4.OOBSecondsL1)
	}
	if w4.CompliantL1 {
		t.Error("compliant_l1 = true, want false at 40s OOB")
	}
}

func TestFlush_EmptyAggregator(t *testing.T) {
	a := testAggregator(t)
	if got := a.Flush(); got != nil {
		t.Errorf("Flush() on empty aggregator = %+v, want nil", got)
	}
}

func TestFlush_OpenNonEmptyWindow(t *testing.T) {
	a := testAggregator(t)
	base := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	a.Add(mkReading(base, 230, 230, 230))

	got := a.Flush()
	if got == nil {
		t.Fatal("expected a completed window from Flush")
	}
	if got.SampleCount != 1 {
		t.Errorf("sample_count = %d, want 1", got.SampleCount)
	}
	if got.RmsV1 != 230 {
		t.Errorf("rms_v1 = %v, want 230", got.RmsV1)
	}

	// A subsequent flush on the now-cleared aggregator returns nil.
	if again := a.Flush(); again != nil {
		t.Errorf("second Flush() = %+v, want nil", again)
	}
}

func TestAdd_RmsComputation(t *testing.T) {
	a := testAggregator(t)
	base := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	a.Add(mkReading(base, 220, 230, 240))
	a.Add(mkReading(base.Add(10*time.Second), 240, 230, 220))
	got := a.Flush()
	if got == nil {
		t.Fatal("expected a completed window")
	}
	// RMS of 220 and 240 = sqrt((220^2+240^2)/2) = 230.2172886644...
	want := 230.217
	if got.RmsV1 != want {
		t.Errorf("rms_v1 = %v, want %v", got.RmsV1, want)
	}
	if got.RmsV2 != 230 {
		t.Errorf("rms_v2 = %v, want 230", got.RmsV2)
	}
}

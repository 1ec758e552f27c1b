package reading

import (
	"testing"

	"github.com/PVP-elektros-stebesena/elektros-stebesenos-sistema/internal/config"
)

func testAnalyzer(t *testing.T) *Analyzer {
	t.Helper()
	return NewAnalyzer(config.Defaults().Thresholds)
}

func TestInBounds_EnvelopeEdges(t *testing.T) {
	a := testAnalyzer(t)
	if !a.InBounds(220) {
		t.Error("InBounds(220) = false, want true")
	}
	if !a.InBounds(240) {
		t.Error("InBounds(240) = false, want true")
	}
	if a.InBounds(219.999) {
		t.Error("InBounds(219.999) = true, want false")
	}
	if a.InBounds(240.001) {
		t.Error("InBounds(240.001) = true, want false")
	}
}

func TestIsZero_Threshold(t *testing.T) {
	a := testAnalyzer(t)
	if !a.IsZero(9.999) {
		t.Error("IsZero(9.999) = false, want true")
	}
	if a.IsZero(10.0) {
		t.Error("IsZero(10.0) = true, want false")
	}
}

func TestAnalyseReading_PhaseOrder(t *testing.T) {
	a := testAnalyzer(t)
	r := Reading{V1: 230, V2: 5, V3: 250}
	got := a.AnalyseReading(r)

	if got[0].Phase != L1 || got[1].Phase != L2 || got[2].Phase != L3 {
		t.Fatalf("phase order = %v, %v, %v, want L1, L2, L3", got[0].Phase, got[1].Phase, got[2].Phase)
	}
	if !got[0].InBounds || got[0].IsZero {
		t.Errorf("L1 (230V) classification = %+v, want in-bounds, non-zero", got[0])
	}
	if got[1].InBounds || !got[1].IsZero {
		t.Errorf("L2 (5V) classification = %+v, want out-of-bounds, zero", got[1])
	}
	if got[2].InBounds || got[2].IsZero {
		t.Errorf("L3 (250V) classification = %+v, want out-of-bounds, non-zero", got[2])
	}
}

func TestAnalyse_Deviation(t *testing.T) {
	a := testAnalyzer(t)
	got := a.Analyse(235, L1)
	if got.Deviation != 5 {
		t.Errorf("Deviation = %v, want 5", got.Deviation)
	}
	if got.Nominal != 230 {
		t.Errorf("Nominal = %v, want 230", got.Nominal)
	}
}

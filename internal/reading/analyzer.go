// Package reading — analyzer.go
//
// Pure per-reading classification against the fixed voltage envelope (C1).
// No lifecycle, no state: Analyse and AnalyseReading are deterministic
// functions of their inputs and the thresholds they are given.
package reading

import "github.com/PVP-elektros-stebesena/elektros-stebesenos-sistema/internal/config"

// PhaseAnalysis is the derived classification of a single voltage sample
// on a single phase.
type PhaseAnalysis struct {
	Phase      Phase
	Voltage    float64
	Nominal    float64
	Min        float64
	Max        float64
	Deviation  float64
	InBounds   bool
	IsZero     bool
}

// Analyzer classifies voltage samples against a fixed threshold config.
// Stateless and safe for concurrent use.
type Analyzer struct {
	thresholds config.ThresholdConfig
}

// NewAnalyzer creates an Analyzer bound to the given thresholds.
func NewAnalyzer(thresholds config.ThresholdConfig) *Analyzer {
	return &Analyzer{thresholds: thresholds}
}

// InBounds reports whether v falls within [VoltageMin1Ph, VoltageMax1Ph],
// inclusive.
func (a *Analyzer) InBounds(v float64) bool {
	return v >= a.thresholds.VoltageMin1Ph && v <= a.thresholds.VoltageMax1Ph
}

// IsZero reports whether v is below the loss-of-supply threshold.
func (a *Analyzer) IsZero(v float64) bool {
	return v < a.thresholds.VoltageZeroThreshold
}

// Analyse classifies a single voltage value for the given phase.
func (a *Analyzer) Analyse(v float64, phase Phase) PhaseAnalysis {
	return PhaseAnalysis{
		Phase:     phase,
		Voltage:   v,
		Nominal:   a.thresholds.NominalVoltage1Ph,
		Min:       a.thresholds.VoltageMin1Ph,
		Max:       a.thresholds.VoltageMax1Ph,
		Deviation: v - a.thresholds.NominalVoltage1Ph,
		InBounds:  a.InBounds(v),
		IsZero:    a.IsZero(v),
	}
}

// AnalyseReading classifies all three phases of a reading, in phase order
// L1, L2, L3.
func (a *Analyzer) AnalyseReading(r Reading) [NumPhases]PhaseAnalysis {
	return [NumPhases]PhaseAnalysis{
		a.Analyse(r.V1, L1),
		a.Analyse(r.V2, L2),
		a.Analyse(r.V3, L3),
	}
}

// Package anomaly implements the Anomaly Tracker (C4): an independent
// per-phase state machine pair (interruption, deviation) that emits
// Anomaly events on state transitions.
//
// Per-phase state is kept in a fixed-size [reading.NumPhases]phaseState
// array indexed by the Phase enum, not a map — three slots, no hashing,
// no allocation on the hot path. Each sub-machine is modeled as a tagged
// variant (idle | active{started_at, ...}) rather than an "ongoing" flag
// paired with a nullable start time, so an active machine without a
// start time is not representable.
package anomaly

import (
	"time"

	"github.com/PVP-elektros-stebesena/elektros-stebesenos-sistema/internal/config"
	"github.com/PVP-elektros-stebesena/elektros-stebesenos-sistema/internal/reading"
)

// Kind identifies the category of an emitted anomaly.
type Kind string

const (
	LongInterruption  Kind = "LONG_INTERRUPTION"
	ShortInterruption Kind = "SHORT_INTERRUPTION"
	VoltageDeviation  Kind = "VOLTAGE_DEVIATION"
)

// Severity grades an anomaly's operational significance.
type Severity string

const (
	Warning  Severity = "WARNING"
	Critical Severity = "CRITICAL"
)

// Anomaly is an emitted event describing an interruption or deviation
// episode, or one endpoint of one. Interruptions are emitted once, on
// recovery. Deviations are emitted twice: once opening (EndedAt nil),
// once on resolution — downstream consumers de-duplicate by
// (Phase, StartedAt).
type Anomaly struct {
	StartedAt time.Time
	EndedAt   *time.Time
	Phase     reading.Phase
	Kind      Kind
	Severity  Severity
	VMin      float64
	VMax      float64
	DurationS *float64
}

type subState uint8

const (
	idle subState = iota
	active
)

type interruptionState struct {
	state     subState
	startedAt time.Time
}

type deviationState struct {
	state     subState
	startedAt time.Time
	vMin      float64
	vMax      float64
}

type phaseState struct {
	interruption interruptionState
	deviation    deviationState
}

// ActiveAnomaly describes one sub-machine currently not idle.
type ActiveAnomaly struct {
	Phase     reading.Phase
	Type      string // "interruption" or "deviation"
	StartedAt time.Time
}

// Tracker runs the interruption and deviation sub-machines independently
// for each of the three phases. Not safe for concurrent use — callers
// (C6) serialize access.
type Tracker struct {
	thresholds config.ThresholdConfig
	analyzer   *reading.Analyzer
	phases     [reading.NumPhases]phaseState
}

// NewTracker creates a Tracker bound to the given thresholds, with every
// sub-machine starting idle.
func NewTracker(thresholds config.ThresholdConfig) *Tracker {
	return &Tracker{
		thresholds: thresholds,
		analyzer:   reading.NewAnalyzer(thresholds),
	}
}

// Process runs one reading through all three phases' sub-machines and
// returns every anomaly emitted, in phase order L1, L2, L3, interruption
// events preceding deviation events within a phase.
//
// Ordering: interruption logic runs first for each phase (entry on
// voltage-zero, recovery on voltage-nonzero); deviation logic runs
// second, using the reading's full signal ({out-of-bounds, in-bounds,
// zero}). This guarantees an opening deviation event is never emitted on
// the same reading that closes an interruption, unless the recovery
// voltage is itself out of bounds.
func (tr *Tracker) Process(r reading.Reading) []Anomaly {
	var emitted []Anomaly

	for _, phase := range [reading.NumPhases]reading.Phase{reading.L1, reading.L2, reading.L3} {
		v := r.Voltage(phase)
		isZero := tr.analyzer.IsZero(v)
		inBounds := tr.analyzer.InBounds(v)
		ps := &tr.phases[phase]

		if a := tr.stepInterruption(&ps.interruption, phase, r.Timestamp, v, isZero); a != nil {
			emitted = append(emitted, *a)
		}
		if a := tr.stepDeviation(&ps.deviation, phase, r.Timestamp, v, isZero, inBounds); a != nil {
			emitted = append(emitted, *a)
		}
	}

	return emitted
}

func (tr *Tracker) stepInterruption(s *interruptionState, phase reading.Phase, ts time.Time, v float64, isZero bool) *Anomaly {
	if isZero {
		if s.state == idle {
			s.state = active
			s.startedAt = ts
		}
		return nil
	}

	// NONZERO.
	if s.state != active {
		return nil
	}
	s.state = idle

	duration := ts.Sub(s.startedAt)
	durationS := duration.Seconds()
	kind := ShortInterruption
	severity := Warning
	if duration > time.Duration(tr.thresholds.LongInterruptionSeconds)*time.Second {
		kind = LongInterruption
		severity = Critical
	}

	endedAt := ts
	return &Anomaly{
		StartedAt: s.startedAt,
		EndedAt:   &endedAt,
		Phase:     phase,
		Kind:      kind,
		Severity:  severity,
		VMin:      0,
		VMax:      v,
		DurationS: &durationS,
	}
}

func (tr *Tracker) stepDeviation(s *deviationState, phase reading.Phase, ts time.Time, v float64, isZero, inBounds bool) *Anomaly {
	if isZero {
		// The interruption machine now owns the event; close silently.
		s.state = idle
		return nil
	}

	oob := !inBounds

	if s.state == idle {
		if !oob {
			return nil
		}
		s.state = active
		s.startedAt = ts
		s.vMin = v
		s.vMax = v
		return &Anomaly{
			StartedAt: s.startedAt,
			EndedAt:   nil,
			Phase:     phase,
			Kind:      VoltageDeviation,
			Severity:  Warning,
			VMin:      v,
			VMax:      v,
			DurationS: nil,
		}
	}

	// Active.
	if oob {
		if v < s.vMin {
			s.vMin = v
		}
		if v > s.vMax {
			s.vMax = v
		}
		return nil
	}

	// IB: resolve.
	s.state = idle
	durationS := ts.Sub(s.startedAt).Seconds()
	endedAt := ts
	return &Anomaly{
		StartedAt: s.startedAt,
		EndedAt:   &endedAt,
		Phase:     phase,
		Kind:      VoltageDeviation,
		Severity:  Warning,
		VMin:      s.vMin,
		VMax:      s.vMax,
		DurationS: &durationS,
	}
}

// Active returns one entry per sub-machine currently not idle.
func (tr *Tracker) Active() []ActiveAnomaly {
	var out []ActiveAnomaly
	for _, phase := range [reading.NumPhases]reading.Phase{reading.L1, reading.L2, reading.L3} {
		ps := &tr.phases[phase]
		if ps.interruption.state == active {
			out = append(out, ActiveAnomaly{Phase: phase, Type: "interruption", StartedAt: ps.interruption.startedAt})
		}
		if ps.deviation.state == active {
			out = append(out, ActiveAnomaly{Phase: phase, Type: "deviation", StartedAt: ps.deviation.startedAt})
		}
	}
	return out
}

// Reset returns every sub-machine to idle.
func (tr *Tracker) Reset() {
	tr.phases = [reading.NumPhases]phaseState{}
}

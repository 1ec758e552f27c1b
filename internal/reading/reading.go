// Package reading defines the raw measurement type ingested by the
// voltage analytics pipeline and the per-phase classification derived
// from it.
package reading

import "time"

// Phase identifies one of the three conductors of a three-phase supply.
type Phase uint8

const (
	L1 Phase = iota
	L2
	L3
)

// NumPhases is the number of phases tracked per reading. Per-phase state
// is kept in fixed-size [NumPhases]T arrays rather than maps — no hashing,
// no allocation on the hot path.
const NumPhases = 3

// String returns the conventional phase label.
func (p Phase) String() string {
	switch p {
	case L1:
		return "L1"
	case L2:
		return "L2"
	case L3:
		return "L3"
	default:
		return "UNKNOWN"
	}
}

// ParsePhase parses a phase label ("L1", "L2", "L3"), case-sensitive per
// the wire format. Returns false if name is not one of the three labels.
func ParsePhase(name string) (Phase, bool) {
	switch name {
	case "L1":
		return L1, true
	case "L2":
		return L2, true
	case "L3":
		return L3, true
	default:
		return 0, false
	}
}

// Reading is an immutable three-phase voltage sample. Timestamps are
// assumed monotonically non-decreasing within one ingest stream — the
// pipeline does not reconcile out-of-order readings.
type Reading struct {
	Timestamp time.Time
	V1        float64
	V2        float64
	V3        float64
}

// Voltage returns the voltage value for the given phase.
func (r Reading) Voltage(p Phase) float64 {
	switch p {
	case L1:
		return r.V1
	case L2:
		return r.V2
	case L3:
		return r.V3
	default:
		return 0
	}
}

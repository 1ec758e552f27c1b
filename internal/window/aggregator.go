// Package window implements the RMS Aggregator (C3): a single-slot buffer
// that groups readings into fixed 10-minute wall-clock windows and emits
// a completed RmsWindow when a slot boundary is crossed.
package window

import (
	"math"
	"time"

	"github.com/PVP-elektros-stebesena/elektros-stebesenos-sistema/internal/config"
	"github.com/PVP-elektros-stebesena/elektros-stebesenos-sistema/internal/reading"
)

// RmsWindow is the result of aggregating all readings whose timestamps
// fall in the same fixed window.
type RmsWindow struct {
	WindowStart time.Time
	WindowEnd   time.Time
	SampleCount int
	RmsV1       float64
	RmsV2       float64
	RmsV3       float64
	OOBSecondsL1 float64
	OOBSecondsL2 float64
	OOBSecondsL3 float64
	CompliantL1 bool
	CompliantL2 bool
	CompliantL3 bool
}

// Aggregator buffers readings for the currently open window and emits a
// completed RmsWindow when a reading belonging to a later slot arrives.
// Not safe for concurrent use — callers (C6) serialize access.
type Aggregator struct {
	thresholds config.ThresholdConfig
	analyzer   *reading.Analyzer

	open     bool
	slot     time.Time
	readings []reading.Reading
}

// NewAggregator creates an Aggregator bound to the given thresholds.
func NewAggregator(thresholds config.ThresholdConfig) *Aggregator {
	return &Aggregator{
		thresholds: thresholds,
		analyzer:   reading.NewAnalyzer(thresholds),
	}
}

// slotOf floors ts to the start of its 10-minute wall-clock slot: minutes
// truncated to a multiple of 10, seconds and sub-second components zeroed.
func slotOf(ts time.Time, windowSeconds int) time.Time {
	step := time.Duration(windowSeconds) * time.Second
	truncated := ts.Truncate(step)
	// time.Truncate operates on absolute time since Go's zero time
	// (January 1, year 1, 00:00 UTC), which for a 600s step aligns exactly
	// to :00/:10/:20/... boundaries in UTC. Preserve the reading's original location for display.
	return truncated.In(ts.Location())
}

// Add ingests a reading into the aggregator. If no window is open, one is
// opened and the reading buffered; nil is returned. If the reading's slot
// matches the open window, it is appended; nil is returned. Otherwise the
// open window is aggregated and returned, and a new window is opened
// containing only the new reading.
//
// A reading whose slot is strictly before the open slot is out-of-contract;
// per the aggregator's documented choice, it is folded into the open window
// rather than dropped, since discarding it would silently lose a sample
// that the caller already committed to the reading ring buffer.
func (a *Aggregator) Add(r reading.Reading) *RmsWindow {
	slot := slotOf(r.Timestamp, a.thresholds.WindowSeconds)

	if !a.open {
		a.open = true
		a.slot = slot
		a.readings = append(a.readings[:0], r)
		return nil
	}

	if !slot.After(a.slot) {
		a.readings = append(a.readings, r)
		return nil
	}

	completed := a.aggregate()
	a.slot = slot
	a.readings = append(a.readings[:0], r)
	return &completed
}

// Flush aggregates and clears the open window, if any. Returns nil if no
// window is open or the open window is empty.
func (a *Aggregator) Flush() *RmsWindow {
	if !a.open || len(a.readings) == 0 {
		return nil
	}
	completed := a.aggregate()
	a.open = false
	a.readings = nil
	return &completed
}

// aggregate computes the RmsWindow for the current open slot's buffered
// readings. Per the spec's empty-readings edge case, an empty buffer
// reports 0V RMS, full out-of-bounds seconds, and non-compliance on every
// phase. Neither Add nor Flush reaches that branch: an open window always
// holds at least one reading, and Flush returns nil for an empty one.
func (a *Aggregator) aggregate() RmsWindow {
	windowDuration := a.thresholds.WindowDuration()
	w := RmsWindow{
		WindowStart: a.slot,
		WindowEnd:   a.slot.Add(windowDuration),
		SampleCount: len(a.readings),
	}

	if len(a.readings) == 0 {
		full := float64(a.thresholds.WindowSeconds)
		w.OOBSecondsL1 = full
		w.OOBSecondsL2 = full
		w.OOBSecondsL3 = full
		w.CompliantL1 = false
		w.CompliantL2 = false
		w.CompliantL3 = false
		return w
	}

	var sumSqV1, sumSqV2, sumSqV3 float64
	var oobCountL1, oobCountL2, oobCountL3 int

	for _, r := range a.readings {
		sumSqV1 += r.V1 * r.V1
		sumSqV2 += r.V2 * r.V2
		sumSqV3 += r.V3 * r.V3

		if !a.analyzer.InBounds(r.V1) {
			oobCountL1++
		}
		if !a.analyzer.InBounds(r.V2) {
			oobCountL2++
		}
		if !a.analyzer.InBounds(r.V3) {
			oobCountL3++
		}
	}

	n := float64(len(a.readings))
	w.RmsV1 = roundTo3(math.Sqrt(sumSqV1 / n))
	w.RmsV2 = roundTo3(math.Sqrt(sumSqV2 / n))
	w.RmsV3 = roundTo3(math.Sqrt(sumSqV3 / n))

	poll := float64(a.thresholds.PollIntervalSeconds)
	w.OOBSecondsL1 = float64(oobCountL1) * poll
	w.OOBSecondsL2 = float64(oobCountL2) * poll
	w.OOBSecondsL3 = float64(oobCountL3) * poll

	maxOOB := float64(a.thresholds.WindowOOBMaxSeconds)
	w.CompliantL1 = w.OOBSecondsL1 <= maxOOB
	w.CompliantL2 = w.OOBSecondsL2 <= maxOOB
	w.CompliantL3 = w.OOBSecondsL3 <= maxOOB

	return w
}

// roundTo3 rounds v to 3 decimal places, ties away from zero.
func roundTo3(v float64) float64 {
	const scale = 1000.0
	if v < 0 {
		return -math.Round(-v*scale) / scale
	}
	return math.Round(v*scale) / scale
}

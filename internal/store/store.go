package store

import (
	"sync"
	"time"

	"github.com/PVP-elektros-stebesena/elektros-stebesenos-sistema/internal/anomaly"
	"github.com/PVP-elektros-stebesena/elektros-stebesenos-sistema/internal/compliance"
	"github.com/PVP-elektros-stebesena/elektros-stebesenos-sistema/internal/config"
	"github.com/PVP-elektros-stebesena/elektros-stebesenos-sistema/internal/reading"
	"github.com/PVP-elektros-stebesena/elektros-stebesenos-sistema/internal/window"
)

// PushResult is the outcome of recording one reading.
type PushResult struct {
	Anomalies       []anomaly.Anomaly
	CompletedWindow *window.RmsWindow
}

// AnomalyFilter conjunctively restricts the result of Anomalies. Nil
// fields are unconstrained.
type AnomalyFilter struct {
	Kind  *anomaly.Kind
	Phase *reading.Phase
	From  *time.Time
	To    *time.Time
}

// Stats summarizes the store's current volume.
type Stats struct {
	TotalReadings  int
	TotalWindows   int
	TotalAnomalies int
	ActiveAnomalies int
}

// Store owns the bounded reading/window/anomaly ring buffers and the live
// C3/C4 instances. It coordinates the Reading Analyzer, RMS Aggregator,
// and Anomaly Tracker on each incoming reading, and services range and
// filter read queries.
//
// Guarded by a single RWMutex: Push takes the write lock; every read
// method takes the read lock for just long enough to copy out a
// consistent snapshot (ring buffer snapshot() always allocates a new
// slice), so no returned slice is mutated after the call returns.
type Store struct {
	mu sync.RWMutex

	thresholds config.ThresholdConfig
	analyzer   *reading.Analyzer
	aggregator *window.Aggregator
	tracker    *anomaly.Tracker
	now        func() time.Time

	readings  *ringBuffer[reading.Reading]
	windows   *ringBuffer[window.RmsWindow]
	anomalies *ringBuffer[anomaly.Anomaly]
}

// New creates a Store from the given thresholds and buffer capacities.
// now is injected so tests can control week boundaries and timestamps
// deterministically instead of calling the wall clock ad hoc; pass
// time.Now in production.
func New(thresholds config.ThresholdConfig, now func() time.Time) *Store {
	return &Store{
		thresholds: thresholds,
		analyzer:   reading.NewAnalyzer(thresholds),
		aggregator: window.NewAggregator(thresholds),
		tracker:    anomaly.NewTracker(thresholds),
		now:        now,
		readings:   newRingBuffer[reading.Reading](thresholds.ReadingBufferCap),
		windows:    newRingBuffer[window.RmsWindow](thresholds.WindowBufferCap),
		anomalies:  newRingBuffer[anomaly.Anomaly](thresholds.AnomalyBufferCap),
	}
}

// Push records a reading, runs the anomaly tracker and RMS aggregator on
// it, appends their results to the respective ring buffers, and always
// overwrites the latest reading. Effects of Push are linearized before
// this call returns: a Latest() call issued after Push returns observes
// this reading or a later one, never an earlier one.
func (s *Store) Push(r reading.Reading) PushResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.readings.push(r)

	emitted := s.tracker.Process(r)
	for _, a := range emitted {
		s.anomalies.push(a)
	}

	var completed *window.RmsWindow
	if w := s.aggregator.Add(r); w != nil {
		s.windows.push(*w)
		completed = w
	}

	return PushResult{Anomalies: emitted, CompletedWindow: completed}
}

// Latest returns the most recently pushed reading.
func (s *Store) Latest() (reading.Reading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.readings.latest()
}

// AnalyzeLatest returns the per-phase classification of the most recent
// reading, for the latest-reading HTTP endpoint.
func (s *Store) AnalyzeLatest() (reading.Reading, [reading.NumPhases]reading.PhaseAnalysis, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.readings.latest()
	if !ok {
		return reading.Reading{}, [reading.NumPhases]reading.PhaseAnalysis{}, false
	}
	return r, s.analyzer.AnalyseReading(r), true
}

// Readings returns readings whose timestamp falls in [from, to], both
// bounds inclusive. A nil bound is unconstrained.
func (s *Store) Readings(from, to *time.Time) []reading.Reading {
	s.mu.RLock()
	all := s.readings.snapshot()
	s.mu.RUnlock()

	return filterReadings(all, from, to)
}

func filterReadings(all []reading.Reading, from, to *time.Time) []reading.Reading {
	out := all[:0:0]
	for _, r := range all {
		if from != nil && r.Timestamp.Before(*from) {
			continue
		}
		if to != nil && r.Timestamp.After(*to) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// ReadingsDownsampled filters readings to [from, to] then, if the result
// exceeds maxPoints, picks evenly spaced samples at index
// floor(i * n / maxPoints) for i in [0, maxPoints), appending the final
// reading if it was not already selected. Returned length is always
// <= maxPoints + 1, and the final point of the filtered range is always
// included when the filtered range is non-empty.
func (s *Store) ReadingsDownsampled(from, to time.Time, maxPoints int) []reading.Reading {
	filtered := s.Readings(&from, &to)
	n := len(filtered)
	if n <= maxPoints || maxPoints <= 0 {
		return filtered
	}

	out := make([]reading.Reading, 0, maxPoints+1)
	for i := 0; i < maxPoints; i++ {
		idx := i * n / maxPoints
		out = append(out, filtered[idx])
	}
	last := filtered[n-1]
	if !out[len(out)-1].Timestamp.Equal(last.Timestamp) {
		out = append(out, last)
	}
	return out
}

// Windows returns windows with window_start >= from (if set) and
// window_end <= to (if set).
func (s *Store) Windows(from, to *time.Time) []window.RmsWindow {
	s.mu.RLock()
	all := s.windows.snapshot()
	s.mu.RUnlock()

	out := all[:0:0]
	for _, w := range all {
		if from != nil && w.WindowStart.Before(*from) {
			continue
		}
		if to != nil && w.WindowEnd.After(*to) {
			continue
		}
		out = append(out, w)
	}
	return out
}

// Anomalies returns anomalies matching every set field of filter,
// comparing From/To against StartedAt.
func (s *Store) Anomalies(filter AnomalyFilter) []anomaly.Anomaly {
	s.mu.RLock()
	all := s.anomalies.snapshot()
	s.mu.RUnlock()

	out := all[:0:0]
	for _, a := range all {
		if filter.Kind != nil && a.Kind != *filter.Kind {
			continue
		}
		if filter.Phase != nil && a.Phase != *filter.Phase {
			continue
		}
		if filter.From != nil && a.StartedAt.Before(*filter.From) {
			continue
		}
		if filter.To != nil && a.StartedAt.After(*filter.To) {
			continue
		}
		out = append(out, a)
	}
	return out
}

// ActiveAnomalies returns one entry per ongoing interruption or deviation
// sub-machine.
func (s *Store) ActiveAnomalies() []anomaly.ActiveAnomaly {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tracker.Active()
}

// WeeklyCompliance computes the week-start as the Monday 00:00 local
// time containing date (or now() if date is nil), filters windows with
// window_start in [week_start, week_end), and delegates to the
// Compliance Evaluator.
func (s *Store) WeeklyCompliance(date *time.Time) compliance.WeeklyCompliance {
	d := s.now()
	if date != nil {
		d = *date
	}
	weekStart := compliance.WeekStart(d)
	weekEnd := weekStart.AddDate(0, 0, 7)

	s.mu.RLock()
	all := s.windows.snapshot()
	s.mu.RUnlock()

	var inWeek []window.RmsWindow
	for _, w := range all {
		if !w.WindowStart.Before(weekStart) && w.WindowStart.Before(weekEnd) {
			inWeek = append(inWeek, w)
		}
	}

	return compliance.Evaluate(inWeek, weekStart, s.thresholds)
}

// Thresholds returns the store's current threshold configuration.
func (s *Store) Thresholds() config.ThresholdConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.thresholds
}

// SetThresholds applies a new threshold configuration, for the
// non-destructive portion of a SIGHUP hot-reload (spec.md §9,
// SPEC_FULL.md §4.12). The Reading Analyzer is rebuilt against the new
// thresholds, and later weekly-compliance evaluations use them. The
// anomaly tracker (C4) and RMS aggregator (C3) are not rebuilt: they keep
// their in-flight state and go on classifying with the thresholds they
// were constructed with.
func (s *Store) SetThresholds(thresholds config.ThresholdConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.thresholds = thresholds
	s.analyzer = reading.NewAnalyzer(thresholds)
}

// Stats summarizes the store's current volume.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{
		TotalReadings:   s.readings.len(),
		TotalWindows:    s.windows.len(),
		TotalAnomalies:  s.anomalies.len(),
		ActiveAnomalies: len(s.tracker.Active()),
	}
}

// Reset empties every buffer and clears C3/C4 state. For tests only.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readings.reset()
	s.windows.reset()
	s.anomalies.reset()
	s.tracker.Reset()
	s.aggregator = window.NewAggregator(s.thresholds)
}

// Hydrate loads previously persisted windows and anomalies into the
// ring buffers, oldest first, ahead of the ingest pipeline starting.
// Called once at startup from the optional snapshot store; a cold start
// with no persisted data is a no-op, not an error. The anomaly tracker
// and RMS aggregator are not hydrated — their in-flight state is
// derived only from the live reading stream.
func (s *Store) Hydrate(windows []window.RmsWindow, anomalies []anomaly.Anomaly) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range windows {
		s.windows.push(w)
	}
	for _, a := range anomalies {
		s.anomalies.push(a)
	}
}

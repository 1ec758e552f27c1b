// Package compliance implements the Compliance Evaluator (C5): a pure
// function from a sequence of RmsWindows and a week start to a
// WeeklyCompliance verdict against the ESO 95 % rule.
package compliance

import (
	"math"
	"time"

	"github.com/PVP-elektros-stebesena/elektros-stebesenos-sistema/internal/config"
	"github.com/PVP-elektros-stebesena/elektros-stebesenos-sistema/internal/window"
)

// WeeklyCompliance is the derived weekly verdict for a single week.
type WeeklyCompliance struct {
	WeekStart             time.Time
	WeekEnd               time.Time
	TotalWindows          int
	CompliantWindowsL1    int
	CompliantWindowsL2    int
	CompliantWindowsL3    int
	CompliancePctL1       float64
	CompliancePctL2       float64
	CompliancePctL3       float64
	OverallCompliant      bool
}

// WeekStart aligns t to the Monday 00:00 local time of its containing
// week. The regulator's week boundary is assumed local-civil-time per
// spec's primary text; see DESIGN.md for the open-question resolution.
func WeekStart(t time.Time) time.Time {
	t = t.Local()
	dayOfWeek := int(t.Weekday())
	// time.Weekday: Sunday=0 ... Saturday=6. Days since Monday:
	daysSinceMonday := (dayOfWeek + 6) % 7
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return midnight.AddDate(0, 0, -daysSinceMonday)
}

// Evaluate computes the WeeklyCompliance for the given windows (already
// filtered by the caller to window_start ∈ [weekStart, weekEnd)) and
// weekStart.
func Evaluate(windows []window.RmsWindow, weekStart time.Time, thresholds config.ThresholdConfig) WeeklyCompliance {
	weekEnd := weekStart.AddDate(0, 0, 7)

	wc := WeeklyCompliance{
		WeekStart:    weekStart,
		WeekEnd:      weekEnd,
		TotalWindows: len(windows),
	}

	if len(windows) == 0 {
		wc.OverallCompliant = false
		return wc
	}

	for _, w := range windows {
		if w.CompliantL1 {
			wc.CompliantWindowsL1++
		}
		if w.CompliantL2 {
			wc.CompliantWindowsL2++
		}
		if w.CompliantL3 {
			wc.CompliantWindowsL3++
		}
	}

	total := float64(len(windows))
	wc.CompliancePctL1 = roundTo2(float64(wc.CompliantWindowsL1) / total * 100)
	wc.CompliancePctL2 = roundTo2(float64(wc.CompliantWindowsL2) / total * 100)
	wc.CompliancePctL3 = roundTo2(float64(wc.CompliantWindowsL3) / total * 100)

	threshold := thresholds.WeeklyCompliancePct
	wc.OverallCompliant = wc.CompliancePctL1 >= threshold &&
		wc.CompliancePctL2 >= threshold &&
		wc.CompliancePctL3 >= threshold

	return wc
}

func roundTo2(v float64) float64 {
	const scale = 100.0
	if v < 0 {
		return -math.Round(-v*scale) / scale
	}
	return math.Round(v*scale) / scale
}

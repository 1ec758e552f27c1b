// Package main — cmd/voltmon-gen/main.go
//
// voltmon-gen synthesizes a realistic three-phase voltage reading
// stream for local demos, load tests, and for generating the fixtures
// the scenario tests assert against.
//
// Model: each phase wanders around its nominal voltage with small
// Gaussian noise. Two kinds of anomaly can be injected on a schedule:
//
//	-inject-interruption <phase>,<after>,<duration>
//	    drives the named phase to 0V for <duration> starting <after>
//	    into the run.
//	-inject-deviation <phase>,<after>,<duration>,<volts>
//	    holds the named phase at the absolute voltage <volts> (outside
//	    the envelope if chosen so) for <duration> starting <after>.
//
// Output: NDJSON lines (one Reading per line) to stdout, or HTTP POST
// of each reading to a running agent's ingest endpoint (-target).
//
// Usage:
//
//	voltmon-gen -duration 1h -interval 10s
//	voltmon-gen -target http://localhost:8080/api/voltage/ingest \
//	    -inject-interruption L2,5m,200s
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// syntheticReading is the wire shape posted to, or printed for, the
// agent's ingest endpoint — mirrors the JSON tags of the ingest request
// body accepted by internal/api.
type syntheticReading struct {
	Timestamp time.Time `json:"timestamp"`
	VoltageL1 float64   `json:"voltage_l1"`
	VoltageL2 float64   `json:"voltage_l2"`
	VoltageL3 float64   `json:"voltage_l3"`
}

// injection is a scheduled anomaly on one phase: either a zero-voltage
// interruption (volts == 0) or a deviation held at a fixed absolute
// voltage.
type injection struct {
	phase    string
	start    time.Duration
	duration time.Duration
	volts    float64 // absolute voltage to hold during the injection window
}

func (inj injection) active(elapsed time.Duration) bool {
	return elapsed >= inj.start && elapsed < inj.start+inj.duration
}

type injectionList []injection

func (l *injectionList) String() string {
	var parts []string
	for _, inj := range *l {
		parts = append(parts, fmt.Sprintf("%s@%s+%s=%gV", inj.phase, inj.start, inj.duration, inj.volts))
	}
	return strings.Join(parts, ",")
}

func main() {
	nominal := flag.Float64("nominal", 230.0, "Nominal phase-to-neutral voltage")
	noiseStdDev := flag.Float64("noise", 0.3, "Standard deviation of per-reading Gaussian noise, in volts")
	interval := flag.Duration("interval", 10*time.Second, "Poll interval between readings")
	duration := flag.Duration("duration", 0, "Total run duration (0 = run forever)")
	target := flag.String("target", "", "Ingest endpoint URL to POST readings to (empty = write NDJSON to stdout)")
	seed := flag.Int64("seed", time.Now().UnixNano(), "Random seed")

	var interruptions interruptionFlag
	flag.Var(&interruptions, "inject-interruption", "phase,after,duration — e.g. L2,5m,200s")
	var deviations deviationFlag
	flag.Var(&deviations, "inject-deviation", "phase,after,duration,volts — e.g. L1,1m,30s,215")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))

	var injections []injection
	injections = append(injections, interruptions...)
	injections = append(injections, deviations...)

	client := &http.Client{Timeout: 5 * time.Second}

	start := time.Now()
	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	emit := func(t time.Time, elapsed time.Duration) error {
		r := syntheticReading{
			Timestamp: t,
			VoltageL1: sampleVoltage("L1", *nominal, elapsed, injections, rng, *noiseStdDev),
			VoltageL2: sampleVoltage("L2", *nominal, elapsed, injections, rng, *noiseStdDev),
			VoltageL3: sampleVoltage("L3", *nominal, elapsed, injections, rng, *noiseStdDev),
		}
		if *target == "" {
			return writeNDJSON(os.Stdout, r)
		}
		return postReading(client, *target, r)
	}

	if err := emit(start, 0); err != nil {
		fmt.Fprintf(os.Stderr, "voltmon-gen: %v\n", err)
		os.Exit(1)
	}

	for now := range ticker.C {
		elapsed := now.Sub(start)
		if *duration > 0 && elapsed >= *duration {
			return
		}
		if err := emit(now, elapsed); err != nil {
			fmt.Fprintf(os.Stderr, "voltmon-gen: %v\n", err)
		}
	}
}

// sampleVoltage returns phase's voltage at elapsed, applying whichever
// injection is active (interruptions and deviations never overlap in a
// well-formed flag set; the first matching injection wins).
func sampleVoltage(phase string, nominal float64, elapsed time.Duration, injections []injection, rng *rand.Rand, noiseStdDev float64) float64 {
	for _, inj := range injections {
		if inj.phase == phase && inj.active(elapsed) {
			return inj.volts
		}
	}
	return nominal + rng.NormFloat64()*noiseStdDev
}

func writeNDJSON(w *os.File, r syntheticReading) error {
	enc := json.NewEncoder(w)
	return enc.Encode(r)
}

func postReading(client *http.Client, target string, r syntheticReading) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal reading: %w", err)
	}
	resp, err := client.Post(target, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("post to %s: %w", target, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("post to %s: status %d", target, resp.StatusCode)
	}
	return nil
}

// interruptionFlag implements flag.Value for repeated
// -inject-interruption phase,after,duration flags.
type interruptionFlag []injection

func (f *interruptionFlag) String() string { return (*injectionList)(f).String() }

func (f *interruptionFlag) Set(s string) error {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return fmt.Errorf("want phase,after,duration — got %q", s)
	}
	after, err := time.ParseDuration(parts[1])
	if err != nil {
		return fmt.Errorf("invalid after duration %q: %w", parts[1], err)
	}
	dur, err := time.ParseDuration(parts[2])
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", parts[2], err)
	}
	*f = append(*f, injection{phase: parts[0], start: after, duration: dur, volts: 0})
	return nil
}

// deviationFlag implements flag.Value for repeated -inject-deviation
// phase,after,duration,volts flags.
type deviationFlag []injection

func (f *deviationFlag) String() string { return (*injectionList)(f).String() }

func (f *deviationFlag) Set(s string) error {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return fmt.Errorf("want phase,after,duration,volts — got %q", s)
	}
	after, err := time.ParseDuration(parts[1])
	if err != nil {
		return fmt.Errorf("invalid after duration %q: %w", parts[1], err)
	}
	dur, err := time.ParseDuration(parts[2])
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", parts[2], err)
	}
	volts, err := strconv.ParseFloat(parts[3], 64)
	if err != nil {
		return fmt.Errorf("invalid volts %q: %w", parts[3], err)
	}
	*f = append(*f, injection{phase: parts[0], start: after, duration: dur, volts: volts})
	return nil
}

package config

import "testing"

func TestDefaults_Valid(t *testing.T) {
	cfg := Defaults()
	if err := Validate(&cfg); err != nil {
		t.Fatalf("Defaults() failed validation: %v", err)
	}
}

func TestValidate_EnvelopeInverted(t *testing.T) {
	cfg := Defaults()
	cfg.Thresholds.VoltageMin1Ph = 240
	cfg.Thresholds.VoltageMax1Ph = 220
	if err := Validate(&cfg); err == nil {
		t.Fatal("expected error for inverted envelope, got nil")
	}
}

func TestValidate_WeeklyPctOutOfRange(t *testing.T) {
	cfg := Defaults()
	cfg.Thresholds.WeeklyCompliancePct = 150
	if err := Validate(&cfg); err == nil {
		t.Fatal("expected error for weekly_compliance_pct > 100, got nil")
	}
}

func TestValidate_OOBMaxExceedsWindow(t *testing.T) {
	cfg := Defaults()
	cfg.Thresholds.WindowOOBMaxSeconds = cfg.Thresholds.WindowSeconds + 1
	if err := Validate(&cfg); err == nil {
		t.Fatal("expected error for window_oob_max_seconds > window_seconds, got nil")
	}
}

func TestValidate_BufferCapsRejectZero(t *testing.T) {
	for _, mutate := range []func(*Config){
		func(c *Config) { c.Thresholds.ReadingBufferCap = 0 },
		func(c *Config) { c.Thresholds.WindowBufferCap = 0 },
		func(c *Config) { c.Thresholds.AnomalyBufferCap = 0 },
	} {
		cfg := Defaults()
		mutate(&cfg)
		if err := Validate(&cfg); err == nil {
			t.Fatal("expected error for zero buffer cap, got nil")
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Fatal("expected error for missing config file, got nil")
	}
}

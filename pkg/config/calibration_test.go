package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultCalibrationValid(t *testing.T) {
	c := DefaultCalibration()
	if err := c.Validate(); err != nil {
		t.Fatalf("default calibration invalid: %v", err)
	}
	if c.MinWindow < 10 {
		t.Fatalf("min window %d below floor", c.MinWindow)
	}
	if len(c.Bands) != 5 || len(c.Rules.Sizing) == 0 {
		t.Fatalf("defaults not filled: %+v", c)
	}
}

func TestCalibrationRejectsBadWeights(t *testing.T) {
	c := DefaultCalibration()
	c.Weights.Momentum = 0.9
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "sum to 1") {
		t.Fatalf("expected weight-sum error, got %v", err)
	}
}

func TestCalibrationRejectsGappedBands(t *testing.T) {
	c := DefaultCalibration()
	c.Bands[2].Max = 55 // leaves a hole before the BUY band
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "gap or overlap") {
		t.Fatalf("expected band gap error, got %v", err)
	}
}

func TestCalibrationRejectsNonMonotoneSizing(t *testing.T) {
	c := DefaultCalibration()
	c.Rules.Sizing[2].Fraction = 0.01
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "fraction must not decrease") {
		t.Fatalf("expected sizing monotonicity error, got %v", err)
	}
}

func TestCalibrationRejectsLowMinWindow(t *testing.T) {
	c := DefaultCalibration()
	c.MinWindow = 5
	if err := c.Validate(); err == nil || !strings.Contains(err.Error(), "min_window") {
		t.Fatalf("expected min_window error, got %v", err)
	}
}

func TestLoadCalibrationAppliesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.yaml")
	doc := "version: \"2026.08\"\nweights:\n  volume: 0.3\n  price_action: 0.2\n  momentum: 0.3\n  accumulation: 0.2\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	c, err := LoadCalibration(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Version != "2026.08" {
		t.Fatalf("version = %s", c.Version)
	}
	if c.Weights.Volume != 0.3 {
		t.Fatalf("explicit weight overridden: %v", c.Weights.Volume)
	}
	if c.MinWindow != 20 || len(c.Bands) != 5 {
		t.Fatalf("defaults not applied: %+v", c)
	}
}

func TestLoadCalibrationRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "calibration.yaml")
	doc := "version: \"bad\"\nmin_window: 3\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadCalibration(path); err == nil {
		t.Fatalf("expected validation failure")
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestDefaultsMatchProtocol(t *testing.T) {
	c := Default()
	e := c.Experiment

	if e.CalibrationPoints != 10 {
		t.Errorf("CalibrationPoints = %d, want 10", e.CalibrationPoints)
	}
	if e.SampleDuration != 3*time.Second || e.MaskDuration != 2*time.Second || e.TestDuration != 10*time.Second {
		t.Errorf("durations = %v/%v/%v, want 3s/2s/10s", e.SampleDuration, e.MaskDuration, e.TestDuration)
	}
	if len(e.TrialTypes) != 2 || e.TrialTypes[0] != 1 || e.TrialTypes[1] != 2 {
		t.Errorf("TrialTypes = %v, want [1 2]", e.TrialTypes)
	}
	if e.TrainingTrials != 0 {
		t.Errorf("TrainingTrials = %d, want 0", e.TrainingTrials)
	}
	if e.RetryLimit != 100 {
		t.Errorf("RetryLimit = %d, want 100", e.RetryLimit)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestValidateRejectsBadSettings(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no calibration points", func(c *Config) { c.Experiment.CalibrationPoints = 0 }},
		{"negative training trials", func(c *Config) { c.Experiment.TrainingTrials = -1 }},
		{"no trial types", func(c *Config) { c.Experiment.TrialTypes = nil }},
		{"unknown trial type", func(c *Config) { c.Experiment.TrialTypes = []int{1, 3} }},
		{"negative duration", func(c *Config) { c.Experiment.MaskDuration = -time.Second }},
		{"unknown sampling", func(c *Config) { c.Experiment.Sampling = "greedy" }},
		{"zero retry limit", func(c *Config) { c.Experiment.RetryLimit = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			tc.mutate(c)
			if err := c.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestInitReadsFileAndEnv(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "config"), 0o755); err != nil {
		t.Fatal(err)
	}
	yaml := []byte("experiment:\n  calibration_points: 4\n  mask_duration: 500ms\n  trial_types: [2]\n")
	if err := os.WriteFile(filepath.Join(root, "config", "config.yaml"), yaml, 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GAZE_SERVER_PORT", "9090")

	if err := Init(root, "", zap.NewNop()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	c := Get()
	if c.Experiment.CalibrationPoints != 4 {
		t.Errorf("CalibrationPoints = %d, want 4", c.Experiment.CalibrationPoints)
	}
	if c.Experiment.MaskDuration != 500*time.Millisecond {
		t.Errorf("MaskDuration = %v, want 500ms", c.Experiment.MaskDuration)
	}
	if len(c.Experiment.TrialTypes) != 1 || c.Experiment.TrialTypes[0] != 2 {
		t.Errorf("TrialTypes = %v, want [2]", c.Experiment.TrialTypes)
	}
	if c.Server.Port != "9090" {
		t.Errorf("Port = %q, want env override 9090", c.Server.Port)
	}
}

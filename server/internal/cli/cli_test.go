package cli

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestInRoot(t *testing.T) {
	projectRoot = "/srv/gaze"
	t.Cleanup(func() { projectRoot = "." })

	cases := map[string]string{
		"":                   "",
		"/var/lib/gaze.db":   "/var/lib/gaze.db",
		"data/experiment.db": "/srv/gaze/data/experiment.db",
	}
	for in, want := range cases {
		if got := inRoot(in); got != want {
			t.Errorf("inRoot(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSimulateRunsWholeSession(t *testing.T) {
	projectRoot = t.TempDir()
	t.Cleanup(func() { projectRoot = "." })
	out := t.TempDir()
	core, logs := observer.New(zap.InfoLevel)

	rec, err := simulate(context.Background(), zap.New(core), simulateOptions{
		initials: "sim",
		category: "colors",
		trials:   10,
		scale:    0.001,
		outDir:   out,
	})
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	if rec.Initials != "SIM" || len(rec.Trials) != 10 {
		t.Fatalf("record: initials=%q trials=%d", rec.Initials, len(rec.Trials))
	}
	if _, err := os.Stat(filepath.Join(out, rec.FileName())); err != nil {
		t.Fatalf("export missing: %v", err)
	}
	if n := logs.FilterMessage("Calibration observed").Len(); n != 1 {
		t.Fatalf("calibration observation log entries = %d, want 1", n)
	}
}

func TestSimulateRejectsBadOptions(t *testing.T) {
	if _, err := simulate(context.Background(), zap.NewNop(), simulateOptions{category: "faces", trials: 10, scale: 1}); err == nil {
		t.Fatal("expected unknown category error")
	}
	if _, err := simulate(context.Background(), zap.NewNop(), simulateOptions{initials: "A", category: "Colors", trials: 10, scale: 0}); err == nil {
		t.Fatal("expected scale error")
	}
}

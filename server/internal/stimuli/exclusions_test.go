package stimuli

import (
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/models"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func writeExclusions(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "exclusions.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadExclusionsPerCategory(t *testing.T) {
	p := writeExclusions(t, `
Colors:
  3: [4, 5, 12]
Shapes:
  1: [2]
`)
	ex := LoadExclusions(p, zap.NewNop())

	got := ex.ExcludedFoilsFor(3, models.CategoryColors)
	if !slices.Equal(got, []models.StimulusID{4, 5}) {
		t.Errorf("Colors[3] = %v, want [4 5] (12 is outside the category)", got)
	}
	if got := ex.ExcludedFoilsFor(1, models.CategoryShapes); !slices.Equal(got, []models.StimulusID{2}) {
		t.Errorf("Shapes[1] = %v, want [2]", got)
	}
	if got := ex.ExcludedFoilsFor(1, models.CategoryAbstract); len(got) != 0 {
		t.Errorf("Abstract has no table, got %v", got)
	}
	if got := ex.ExcludedFoilsFor(9, models.CategoryColors); len(got) != 0 {
		t.Errorf("Colors[9] has no entry, got %v", got)
	}
}

func TestLoadExclusionsDegradesToEmpty(t *testing.T) {
	cases := map[string]string{
		"missing file": "",
		"bad yaml":     "Colors: [unterminated",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			p := filepath.Join(t.TempDir(), "nope.yaml")
			if body != "" {
				p = writeExclusions(t, body)
			}
			core, logs := observer.New(zapcore.WarnLevel)
			ex := LoadExclusions(p, zap.New(core))
			if ex == nil {
				t.Fatal("LoadExclusions returned nil")
			}
			for _, c := range models.Categories {
				if len(ex.Table(c)) != 0 {
					t.Errorf("%s table should be empty", c)
				}
			}
			if logs.Len() == 0 {
				t.Error("expected the failure to be logged")
			}
		})
	}
}

func TestLoadExclusionsIsolatesBadCategory(t *testing.T) {
	p := writeExclusions(t, `
Colors:
  three: [4]
Shapes:
  1: [2]
Fruits:
  1: [2]
`)
	core, logs := observer.New(zapcore.WarnLevel)
	ex := LoadExclusions(p, zap.New(core))

	if len(ex.Table(models.CategoryColors)) != 0 {
		t.Error("malformed Colors table should be empty")
	}
	if len(ex.Table(models.CategoryShapes)) != 1 {
		t.Error("Shapes table should still load")
	}
	if logs.Len() != 2 {
		t.Errorf("expected 2 warnings (malformed Colors, unknown Fruits), got %d", logs.Len())
	}
}

func TestNilExclusionsAreEmpty(t *testing.T) {
	var ex *Exclusions
	if got := ex.ExcludedFoilsFor(1, models.CategoryColors); got != nil {
		t.Errorf("nil exclusions returned %v", got)
	}
}

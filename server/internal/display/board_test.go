package display

import (
	"fmt"
	"strings"
	"testing"

	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/models"
)

type fakeURLs struct{}

func (fakeURLs) URL(c models.Category, id models.StimulusID) string {
	return fmt.Sprintf("/stimuli/%s/%d", c, id)
}

func TestShowArrayHidesTarget(t *testing.T) {
	b := NewBoard(fakeURLs{})
	slots := []models.Slot{
		{Position: models.PositionLeft, Stimulus: 4},
		{Position: models.PositionCenter, Stimulus: 9, IsTarget: true},
		{Position: models.PositionRight, Stimulus: 4},
	}
	if err := b.ShowArray(models.CategoryColors, slots); err != nil {
		t.Fatal(err)
	}

	s := b.State()
	if s.Scene != SceneArray || len(s.Items) != 3 {
		t.Fatalf("state = %+v", s)
	}
	wantOffsets := []float64{-0.3, 0, 0.3}
	for i, it := range s.Items {
		if it.OffsetX != wantOffsets[i] {
			t.Errorf("item %d offset %v, want %v", i, it.OffsetX, wantOffsets[i])
		}
		if !strings.HasPrefix(it.URL, "/stimuli/Colors/") {
			t.Errorf("item %d url %q", i, it.URL)
		}
	}
}

func TestSeqIncreasesAndStateIsCopied(t *testing.T) {
	b := NewBoard(fakeURLs{})
	_ = b.ShowTarget(100, 200, 9)
	first := b.State()
	_ = b.ShowMask()
	second := b.State()

	if second.Seq <= first.Seq {
		t.Fatalf("seq did not increase: %d then %d", first.Seq, second.Seq)
	}
	if first.Target == nil || first.Target.Remaining != 9 {
		t.Fatalf("calibration state = %+v", first)
	}
	first.Target.X = -1
	if b.State().Target != nil {
		t.Fatal("mask scene should not carry a target")
	}
}

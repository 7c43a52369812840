package repository

import (
	"fmt"

	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/models"
)

// ScatterPoint is a gaze sample reduced to what a chart plots.
type ScatterPoint struct {
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	RelativeTime int64   `json:"relativeTime"`
}

// TrialGaze is the gaze trace of one trial, or of calibration when Trial is
// negative.
type TrialGaze struct {
	Trial  int            `json:"trial"`
	Points []ScatterPoint `json:"points"`
	Slots  []models.Slot  `json:"slots,omitempty"`
}

// GazeForTrial picks a trial's samples out of a record. A negative trial
// selects the calibration samples.
func GazeForTrial(rec *models.SessionRecord, trial int) (TrialGaze, error) {
	out := TrialGaze{Trial: trial}
	if trial < 0 {
		for _, g := range rec.GazeSamples {
			if g.Phase == models.PhaseCalibration {
				out.Points = append(out.Points, ScatterPoint{g.X, g.Y, g.RelativeTime})
			}
		}
		return out, nil
	}
	if trial >= len(rec.Trials) {
		return out, fmt.Errorf("trial %d not recorded (session has %d)", trial, len(rec.Trials))
	}
	t := rec.Trials[trial]
	out.Slots = t.Slots
	out.Points = make([]ScatterPoint, 0, len(t.GazeSamples))
	for _, g := range t.GazeSamples {
		out.Points = append(out.Points, ScatterPoint{g.X, g.Y, g.RelativeTime})
	}
	return out, nil
}

// Package tracker adapts gaze trackers to the experiment. The tracker itself
// (the browser library and its calibration math) is external; this package
// only moves samples and calibration observations across the boundary.
package tracker

import (
	"context"
	"errors"
	"time"

	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/models"
)

// ErrStopped is returned when a stopped tracker is used again.
var ErrStopped = errors.New("tracker stopped")

// Tracker is a gaze tracking collaborator. Start may be called again after a
// failed attempt. Samples is closed by Stop.
type Tracker interface {
	Start(ctx context.Context) error
	Stop() error
	Observe(x, y float64) error
	Samples() <-chan models.RawGazeSample
}

// Observation is a calibration point the tracker should learn from: the
// participant was looking at (X, Y) when they clicked.
type Observation struct {
	X  float64   `json:"x"`
	Y  float64   `json:"y"`
	At time.Time `json:"at"`
}

// Package calibration walks the participant through the gaze tracker's
// calibration targets.
package calibration

import (
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/metrics"

	"go.uber.org/zap"
)

// State of a calibration run.
type State string

const (
	StateIdle       State = "idle"
	StateInProgress State = "in_progress"
	StateComplete   State = "complete"
)

// Targets are kept inside this inset of the viewport so they are never
// clipped by its edges.
const (
	insetMin = 0.1
	insetMax = 0.9
)

// ErrNoActiveTarget is returned when an acknowledgement arrives while no
// target is on screen.
var ErrNoActiveTarget = errors.New("no calibration target is active")

// Surface draws calibration targets.
type Surface interface {
	ShowTarget(x, y float64, remaining int) error
	ClearTarget() error
}

// Observer receives the screen position the participant was looking at.
type Observer interface {
	Observe(x, y float64) error
}

// Controller runs the Idle → InProgress → Complete state machine.
type Controller struct {
	points   int
	width    float64
	height   float64
	surface  Surface
	observer Observer
	rng      *rand.Rand
	log      *zap.Logger

	mu         sync.Mutex
	state      State
	remaining  int
	x, y       float64
	active     bool
	onComplete func()
}

// New returns an idle controller that will require points acknowledged
// targets inside a width×height viewport.
func New(points int, width, height float64, surface Surface, observer Observer, rng *rand.Rand, log *zap.Logger) *Controller {
	return &Controller{
		points:   points,
		width:    width,
		height:   height,
		surface:  surface,
		observer: observer,
		rng:      rng,
		log:      log,
		state:    StateIdle,
	}
}

// OnComplete registers fn to run once the last target is acknowledged.
func (c *Controller) OnComplete(fn func()) {
	c.mu.Lock()
	c.onComplete = fn
	c.mu.Unlock()
}

// Start shows the first target. It does nothing while a run is in progress
// or after one has completed. If the first target cannot be shown the
// controller returns to idle and Start may be called again.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		c.log.Info("Calibration already in progress or completed", zap.String("state", string(c.state)))
		return nil
	}
	if c.points <= 0 {
		return fmt.Errorf("calibration needs at least one point, got %d", c.points)
	}

	c.state = StateInProgress
	c.remaining = c.points
	if err := c.place(); err != nil {
		c.abort()
		return fmt.Errorf("calibration setup: %w", err)
	}
	c.log.Info("Calibration started", zap.Int("points", c.points))
	return nil
}

// Acknowledge records the participant's click on the current target and
// moves on to the next one. After the last target the run completes and the
// OnComplete callback fires.
func (c *Controller) Acknowledge() error {
	c.mu.Lock()
	if c.state != StateInProgress || !c.active {
		c.mu.Unlock()
		return ErrNoActiveTarget
	}

	if err := c.observer.Observe(c.x, c.y); err != nil {
		c.abort()
		c.mu.Unlock()
		return fmt.Errorf("calibration observation: %w", err)
	}
	metrics.CalibrationPoints.Inc()
	c.active = false
	c.remaining--

	if c.remaining > 0 {
		err := c.place()
		if err != nil {
			c.abort()
			err = fmt.Errorf("calibration target: %w", err)
		}
		c.mu.Unlock()
		return err
	}

	c.state = StateComplete
	if err := c.surface.ClearTarget(); err != nil {
		c.log.Warn("Could not clear calibration overlay", zap.Error(err))
	}
	done := c.onComplete
	c.mu.Unlock()

	c.log.Info("Calibration complete", zap.Int("points", c.points))
	if done != nil {
		done()
	}
	return nil
}

// place puts the next target at a random spot in the inset area.
func (c *Controller) place() error {
	span := insetMax - insetMin
	c.x = c.rng.Float64()*c.width*span + c.width*insetMin
	c.y = c.rng.Float64()*c.height*span + c.height*insetMin
	if err := c.surface.ShowTarget(c.x, c.y, c.remaining); err != nil {
		return err
	}
	c.active = true
	return nil
}

func (c *Controller) abort() {
	c.state = StateIdle
	c.active = false
	if err := c.surface.ClearTarget(); err != nil {
		c.log.Warn("Could not clear calibration overlay", zap.Error(err))
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Remaining is the number of targets still to acknowledge.
func (c *Controller) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}

// Target returns the active target position.
func (c *Controller) Target() (x, y float64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.x, c.y, c.active
}

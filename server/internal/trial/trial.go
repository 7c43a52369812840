// Package trial runs a single sample → mask → test array sequence.
package trial

import (
	"fmt"
	"time"

	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/clock"
	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/gaze"
	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/metrics"
	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/models"
	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/stimuli"

	"go.uber.org/zap"
)

// Phase names a step of a trial.
type Phase string

const (
	PhaseCompose    Phase = "compose"
	PhaseSample     Phase = "sample"
	PhaseMask       Phase = "mask"
	PhaseTestArray  Phase = "test_array"
	PhaseTeardown   Phase = "teardown"
	PhaseInterTrial Phase = "inter_trial"
)

// PhaseError reports a failure inside a trial.
type PhaseError struct {
	Trial int
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("trial %d %s: %v", e.Trial, e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// Screen shows trial stimuli to the participant.
type Screen interface {
	ShowSample(c models.Category, id models.StimulusID) error
	ShowMask() error
	ShowArray(c models.Category, slots []models.Slot) error
	Clear() error
}

// Composer draws the stimuli of a trial.
type Composer interface {
	Compose(kind models.TrialKind, c models.Category) (stimuli.Composition, error)
}

// Durations are the fixed lengths of the timed phases.
type Durations struct {
	Sample     time.Duration
	Mask       time.Duration
	Test       time.Duration
	InterTrial time.Duration
}

// DefaultDurations are the protocol's standard phase lengths.
var DefaultDurations = Durations{
	Sample: 3 * time.Second,
	Mask:   2 * time.Second,
	Test:   10 * time.Second,
}

// Controller runs trials. Waits are fixed and cannot be cut short.
type Controller struct {
	composer  Composer
	buffer    *gaze.Buffer
	screen    Screen
	clock     clock.Clock
	durations Durations
	log       *zap.Logger
}

func New(composer Composer, buffer *gaze.Buffer, screen Screen, clk clock.Clock, durations Durations, log *zap.Logger) *Controller {
	return &Controller{
		composer:  composer,
		buffer:    buffer,
		screen:    screen,
		clock:     clk,
		durations: durations,
		log:       log,
	}
}

// Run executes trial index of the given kind and returns the sealed record.
// On error the open trial is discarded; samples already recorded stay in
// the session stream.
func (c *Controller) Run(index int, kind models.TrialKind, category models.Category) (*models.Trial, error) {
	log := c.log.With(zap.Int("trial", index), zap.Int("kind", int(kind)))

	start := c.clock.Now()
	gen := c.buffer.BeginPhase(models.PhaseExperiment, index)

	comp, err := c.composer.Compose(kind, category)
	if err != nil {
		return nil, c.fail(gen, index, PhaseCompose, err)
	}
	t := &models.Trial{
		Index:     index,
		Number:    index + 1,
		Kind:      kind,
		StartTime: start.UnixMilli(),
		Target:    comp.Target,
	}
	log.Debug("Trial composed", zap.Int("target", int(comp.Target)), zap.Any("foils", comp.Foils))

	if err := c.screen.ShowSample(category, comp.Target); err != nil {
		return nil, c.fail(gen, index, PhaseSample, err)
	}
	c.wait(PhaseSample, c.durations.Sample)

	if err := c.screen.ShowMask(); err != nil {
		return nil, c.fail(gen, index, PhaseMask, err)
	}
	c.wait(PhaseMask, c.durations.Mask)

	t.Foils = comp.Foils
	t.Slots = comp.Slots
	t.TestStimuli = make([]models.StimulusID, len(comp.Slots))
	for i, s := range comp.Slots {
		t.TestStimuli[i] = s.Stimulus
	}
	if err := c.screen.ShowArray(category, comp.Slots); err != nil {
		return nil, c.fail(gen, index, PhaseTestArray, err)
	}
	c.wait(PhaseTestArray, c.durations.Test)

	if err := c.screen.Clear(); err != nil {
		return nil, c.fail(gen, index, PhaseTeardown, err)
	}
	t.EndTime = c.clock.Now().UnixMilli()
	if t.GazeSamples, err = c.buffer.Seal(gen); err != nil {
		return nil, &PhaseError{Trial: index, Phase: PhaseTeardown, Err: err}
	}
	metrics.TrialsSealed.WithLabelValues(fmt.Sprint(int(kind))).Inc()

	if pos, ok := t.TargetPosition(); ok {
		log.Info("Trial sealed", zap.String("target_position", string(pos)), zap.Int("gaze_samples", len(t.GazeSamples)))
	}

	if c.durations.InterTrial > 0 {
		c.wait(PhaseInterTrial, c.durations.InterTrial)
	}
	return t, nil
}

// RunTraining shows a single sample stimulus for the sample duration
// without recording a trial. Gaze seen meanwhile stays in the session stream
// with no trial index.
func (c *Controller) RunTraining(category models.Category, id models.StimulusID) error {
	gen := c.buffer.BeginPhase(models.PhaseExperiment, -1)
	if err := c.screen.ShowSample(category, id); err != nil {
		return c.fail(gen, -1, PhaseSample, err)
	}
	c.wait(PhaseSample, c.durations.Sample)
	if err := c.screen.Clear(); err != nil {
		return c.fail(gen, -1, PhaseTeardown, err)
	}
	if _, err := c.buffer.Seal(gen); err != nil {
		return &PhaseError{Trial: -1, Phase: PhaseTeardown, Err: err}
	}
	return nil
}

func (c *Controller) wait(phase Phase, d time.Duration) {
	before := c.clock.Now()
	c.clock.Sleep(d)
	if over := c.clock.Now().Sub(before) - d; over > 0 {
		metrics.PhaseOverrun.WithLabelValues(string(phase)).Observe(over.Seconds())
	}
}

func (c *Controller) fail(gen uint64, index int, phase Phase, err error) error {
	if clearErr := c.screen.Clear(); clearErr != nil {
		c.log.Warn("Could not clear screen after trial failure", zap.Error(clearErr))
	}
	if _, sealErr := c.buffer.Seal(gen); sealErr != nil {
		c.log.Warn("Failed trial was already closed", zap.Error(sealErr))
	}
	return &PhaseError{Trial: index, Phase: phase, Err: err}
}

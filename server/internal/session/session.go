// Package session runs a participant's whole visit: setup, calibration, the
// configured number of trials, and hand-off of the finished record.
package session

import (
	"context"
	"errors"
	"math/rand"
	"sync"

	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/calibration"
	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/clock"
	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/config"
	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/gaze"
	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/metrics"
	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/models"
	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/services"
	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/stimuli"
	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/tracker"
	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/trial"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Status is the lifecycle position of a session.
type Status string

const (
	StatusNew         Status = "new"
	StatusReady       Status = "ready"
	StatusCalibrating Status = "calibrating"
	StatusRunning     Status = "running"
	StatusFinished    Status = "finished"
	StatusAborted     Status = "aborted"
)

// Screen is everything the session draws on.
type Screen interface {
	trial.Screen
	calibration.Surface
	Finish(message string)
}

// AssetResolver confirms a category's stimulus images are available.
type AssetResolver interface {
	Resolve(c models.Category) error
}

// Persister stores a finished session record.
type Persister interface {
	Save(ctx context.Context, rec *models.SessionRecord) error
}

// Deps are the collaborators a session works with.
type Deps struct {
	Assets    AssetResolver
	Tracker   tracker.Tracker
	Screen    Screen
	Persister Persister
	Clock     clock.Clock
	Log       *zap.Logger
}

// Snapshot is a read-only view of a session for status reporting.
type Snapshot struct {
	ID                   string          `json:"id"`
	Status               Status          `json:"status"`
	Initials             string          `json:"initials,omitempty"`
	Category             models.Category `json:"category,omitempty"`
	TrialCount           int             `json:"trialCount,omitempty"`
	TrialsDone           int             `json:"trialsDone"`
	CalibrationRemaining int             `json:"calibrationRemaining"`
	Error                string          `json:"error,omitempty"`
}

// Controller owns one session. Trials and the gaze stream are only ever
// appended by it and are handed out as copies.
type Controller struct {
	id   string
	cfg  config.ExperimentConfig
	deps Deps
	log  *zap.Logger

	buffer      *gaze.Buffer
	calibration *calibration.Controller
	ingestor    *services.GazeIngestor

	mu      sync.Mutex
	status  Status
	intake  models.Intake
	sampler *stimuli.Sampler
	trials  []models.Trial
	record  *models.SessionRecord
	runErr  error
	runCtx  context.Context
	done    chan struct{}
}

// New builds a session from a snapshot of the experiment configuration.
func New(cfg config.ExperimentConfig, deps Deps) *Controller {
	id := uuid.New().String()
	log := deps.Log.With(zap.String("session", id))

	s := &Controller{
		id:     id,
		cfg:    cfg,
		deps:   deps,
		log:    log,
		buffer: gaze.NewBuffer(deps.Clock, log),
		status: StatusNew,
		done:   make(chan struct{}),
	}
	s.calibration = calibration.New(cfg.CalibrationPoints, cfg.ViewportWidth, cfg.ViewportHeight,
		deps.Screen, deps.Tracker, rand.New(rand.NewSource(s.seed()+1)), log.Named("calibration"))
	s.calibration.OnComplete(s.calibrated)
	return s
}

// ID is the session's unique identifier.
func (s *Controller) ID() string { return s.id }

// Tracker is the gaze tracker the session was built with.
func (s *Controller) Tracker() tracker.Tracker { return s.deps.Tracker }

// Gaze exposes the session's gaze buffer.
func (s *Controller) Gaze() *gaze.Buffer { return s.buffer }

// Calibration exposes the calibration controller so acknowledgements can be
// routed to it.
func (s *Controller) Calibration() *calibration.Controller { return s.calibration }

// Done is closed when the session has finished or aborted.
func (s *Controller) Done() <-chan struct{} { return s.done }

func (s *Controller) seed() int64 {
	if s.cfg.Seed != 0 {
		return s.cfg.Seed
	}
	return s.deps.Clock.Now().UnixNano()
}

// Setup validates the intake, makes sure the category's images and
// exclusion tables are loaded and starts the tracker. A failed setup leaves
// the session as it was, so it can be retried.
func (s *Controller) Setup(ctx context.Context, intake models.Intake) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusNew {
		return ErrAlreadyStarted
	}
	if err := intake.Normalize(); err != nil {
		return &SetupError{Stage: "intake", Err: err}
	}
	if err := s.deps.Assets.Resolve(intake.Category); err != nil {
		return &SetupError{Stage: "assets", Err: err}
	}

	exclusions := stimuli.LoadExclusions(s.cfg.ExclusionsFile, s.log.Named("exclusions"))
	sampler := stimuli.NewSampler(rand.New(rand.NewSource(s.seed())), exclusions,
		stimuli.Mode(s.cfg.Sampling), s.cfg.RetryLimit, s.log.Named("sampler"))

	if err := s.deps.Tracker.Start(ctx); err != nil {
		return &SetupError{Stage: "tracker", Err: err}
	}

	s.intake = intake
	s.sampler = sampler
	s.ingestor = services.NewGazeIngestor(s.log.Named("ingest"), s.buffer, s.deps.Tracker.Samples())
	s.ingestor.Start()
	s.status = StatusReady

	s.log.Info("Session set up",
		zap.String("initials", intake.Initials),
		zap.Stringer("category", intake.Category),
		zap.Int("trials", intake.TrialCount),
	)
	return nil
}

// Begin opens the calibration phase. When the last calibration target is
// acknowledged the trials start on their own goroutine. A calibration that
// failed part way can be begun again.
func (s *Controller) Begin(ctx context.Context) error {
	s.mu.Lock()
	restart := s.status == StatusCalibrating && s.calibration.State() == calibration.StateIdle
	if s.status != StatusReady && !restart {
		s.mu.Unlock()
		return ErrNotReady
	}
	s.status = StatusCalibrating
	s.runCtx = context.WithoutCancel(ctx)
	s.mu.Unlock()

	if restart {
		s.log.Info("Restarting calibration")
	}
	s.buffer.BeginPhase(models.PhaseCalibration, -1)
	if err := s.calibration.Start(); err != nil {
		s.mu.Lock()
		s.status = StatusReady
		s.mu.Unlock()
		return &SetupError{Stage: "calibration", Err: err}
	}
	return nil
}

// Stalled reports a session whose calibration failed and is waiting to be
// begun again.
func (s *Controller) Stalled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == StatusReady ||
		(s.status == StatusCalibrating && s.calibration.State() == calibration.StateIdle)
}

// Abandon ends a session that never reached its trials, stopping its
// tracker. It reports false if the trials already started.
func (s *Controller) Abandon(reason error) bool {
	s.mu.Lock()
	switch s.status {
	case StatusRunning, StatusFinished, StatusAborted:
		s.mu.Unlock()
		return false
	}
	started := s.status != StatusNew
	s.status = StatusAborted
	s.runErr = reason
	s.mu.Unlock()

	if started {
		if err := s.deps.Tracker.Stop(); err != nil {
			s.log.Warn("Tracker did not stop cleanly", zap.Error(err))
		}
		<-s.ingestor.Done()
	}
	metrics.SessionsFinished.WithLabelValues("abandoned").Inc()
	close(s.done)
	s.log.Warn("Session abandoned before its trials", zap.Error(reason))
	return true
}

func (s *Controller) calibrated() {
	s.mu.Lock()
	ctx := s.runCtx
	s.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		if _, err := s.Run(ctx); err != nil {
			s.log.Error("Session ended with error", zap.Error(err))
		}
	}()
}

// Run executes every trial and hands the finished record to the persister.
// It refuses to run before calibration is complete. A failing trial ends the
// session early; the partial record is still assembled and saved.
func (s *Controller) Run(ctx context.Context) (*models.SessionRecord, error) {
	if s.calibration.State() != calibration.StateComplete {
		s.log.Warn("Attempt to start experiment before calibration")
		return nil, ErrNotCalibrated
	}

	s.mu.Lock()
	if s.status != StatusCalibrating && s.status != StatusReady {
		s.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	s.status = StatusRunning
	intake, sampler := s.intake, s.sampler
	s.mu.Unlock()

	s.log.Info("Starting experiment")
	runner := trial.New(sampler, s.buffer, s.deps.Screen, s.deps.Clock, trial.Durations{
		Sample:     s.cfg.SampleDuration,
		Mask:       s.cfg.MaskDuration,
		Test:       s.cfg.TestDuration,
		InterTrial: s.cfg.InterTrialDuration,
	}, s.log.Named("trial"))

	kinds := s.cfg.TrialTypes
	if len(kinds) == 0 {
		kinds = []int{int(models.KindOddball), int(models.KindDistinct)}
	}

	var phaseErr error
	for i := 0; i < s.cfg.TrainingTrials; i++ {
		if err := runner.RunTraining(intake.Category, sampler.PickTarget(intake.Category)); err != nil {
			phaseErr = err
			s.log.Error("Training trial failed, aborting session", zap.Error(err))
			break
		}
	}
	for i := 0; phaseErr == nil && i < intake.TrialCount; i++ {
		kind := models.TrialKind(kinds[i%len(kinds)])
		t, err := runner.Run(i, kind, intake.Category)
		if err != nil {
			phaseErr = err
			s.log.Error("Trial failed, aborting session", zap.Error(err), zap.Int("completed", i))
			break
		}
		s.mu.Lock()
		s.trials = append(s.trials, *t)
		s.mu.Unlock()
	}

	if err := s.deps.Tracker.Stop(); err != nil {
		s.log.Warn("Tracker did not stop cleanly", zap.Error(err))
	}
	<-s.ingestor.Done()

	rec := s.assemble(phaseErr != nil)

	var persistErr error
	if err := s.deps.Persister.Save(ctx, rec); err != nil {
		persistErr = &PersistenceError{Err: err}
		s.log.Error("Session record not saved", zap.Error(err))
	}

	outcome, message := "completed", "Experiment completed! Data saved."
	status := StatusFinished
	switch {
	case phaseErr != nil:
		outcome, message, status = "aborted", "The experiment stopped early. Collected data was kept.", StatusAborted
	case persistErr != nil:
		outcome, message = "unsaved", "Error saving experiment data. Please contact the operator."
	}
	metrics.SessionsFinished.WithLabelValues(outcome).Inc()
	s.deps.Screen.Finish(message)

	err := errors.Join(phaseErr, persistErr)
	s.mu.Lock()
	s.status = status
	s.record = rec
	s.runErr = err
	s.mu.Unlock()
	close(s.done)

	s.log.Info("Session finished",
		zap.String("outcome", outcome),
		zap.Int("trials", len(rec.Trials)),
		zap.Int("gaze_samples", len(rec.GazeSamples)),
	)
	return rec, err
}

func (s *Controller) assemble(aborted bool) *models.SessionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	trials := make([]models.Trial, len(s.trials))
	copy(trials, s.trials)
	return &models.SessionRecord{
		ID:          s.id,
		Initials:    s.intake.Initials,
		Category:    s.intake.Category,
		TrialCount:  s.intake.TrialCount,
		Trials:      trials,
		GazeSamples: s.buffer.All(),
		Timestamp:   s.deps.Clock.Now().UnixMilli(),
		Aborted:     aborted,
	}
}

// Record returns the finished record, nil while the session is running.
func (s *Controller) Record() *models.SessionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record
}

// Err returns the error the run ended with.
func (s *Controller) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runErr
}

// Trials returns a copy of the sealed trials so far.
func (s *Controller) Trials() []models.Trial {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Trial(nil), s.trials...)
}

// Snapshot reports the session's progress.
func (s *Controller) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		ID:                   s.id,
		Status:               s.status,
		Initials:             s.intake.Initials,
		Category:             s.intake.Category,
		TrialCount:           s.intake.TrialCount,
		TrialsDone:           len(s.trials),
		CalibrationRemaining: s.calibration.Remaining(),
	}
	if s.runErr != nil {
		snap.Error = s.runErr.Error()
	}
	return snap
}

// Finished reports whether the session can no longer change.
func (s *Controller) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == StatusFinished || s.status == StatusAborted
}

package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/clock"
	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/config"
	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/display"
	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/models"
	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/tracker"
	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/trial"

	"go.uber.org/zap"
)

var epoch = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type noURLs struct{}

func (noURLs) URL(models.Category, models.StimulusID) string { return "" }

type assetsFunc func(models.Category) error

func (f assetsFunc) Resolve(c models.Category) error { return f(c) }

type recordingPersister struct {
	mu    sync.Mutex
	saved []*models.SessionRecord
	err   error
}

func (p *recordingPersister) Save(_ context.Context, rec *models.SessionRecord) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saved = append(p.saved, rec)
	return p.err
}

func (p *recordingPersister) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.saved)
}

// brokenArray fails to draw the test array once failAt arrays have been shown.
type brokenArray struct {
	*display.Board
	mu     sync.Mutex
	arrays int
	failAt int
}

func (b *brokenArray) ShowArray(c models.Category, slots []models.Slot) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.arrays == b.failAt {
		return errors.New("renderer lost")
	}
	b.arrays++
	return b.Board.ShowArray(c, slots)
}

// flakyObserver loses the calibration observation on ack number failOn.
type flakyObserver struct {
	*tracker.Remote
	mu     sync.Mutex
	acks   int
	failOn int
}

func (f *flakyObserver) Observe(x, y float64) error {
	f.mu.Lock()
	f.acks++
	n := f.acks
	f.mu.Unlock()
	if n == f.failOn {
		return errors.New("tracker lost the participant")
	}
	return f.Remote.Observe(x, y)
}

type harness struct {
	clock     *clock.Fake
	board     *display.Board
	tracker   *tracker.Remote
	persister *recordingPersister
	deps      Deps
	cfg       config.ExperimentConfig
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := config.Default().Experiment
	cfg.CalibrationPoints = 3
	cfg.Seed = 7
	cfg.ExclusionsFile = t.TempDir() + "/missing.yaml"

	h := &harness{
		clock:     clock.NewFake(epoch),
		board:     display.NewBoard(noURLs{}),
		tracker:   tracker.NewRemote(64, zap.NewNop()),
		persister: &recordingPersister{},
		cfg:       cfg,
	}
	h.deps = Deps{
		Assets:    assetsFunc(func(models.Category) error { return nil }),
		Tracker:   h.tracker,
		Screen:    h.board,
		Persister: h.persister,
		Clock:     h.clock,
		Log:       zap.NewNop(),
	}
	return h
}

func (h *harness) start(t *testing.T, intake models.Intake) *Controller {
	t.Helper()
	s := New(h.cfg, h.deps)
	// One gaze sample in the middle of every timed phase.
	h.clock.OnSleep = func(d time.Duration) {
		h.clock.Advance(d / 2)
		s.Gaze().Record(100, 200)
		h.clock.Advance(-d / 2)
	}
	if err := s.Setup(context.Background(), intake); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := s.Begin(context.Background()); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	return s
}

func calibrate(t *testing.T, s *Controller, points int) {
	t.Helper()
	for i := 0; i < points; i++ {
		if err := s.Calibration().Acknowledge(); err != nil {
			t.Fatalf("acknowledge %d: %v", i, err)
		}
	}
}

func waitDone(t *testing.T, s *Controller) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish")
	}
}

func TestSessionRunsEveryTrialAfterCalibration(t *testing.T) {
	h := newHarness(t)
	s := h.start(t, models.Intake{Initials: " jd ", Category: models.CategoryColors, TrialCount: 10})
	calibrate(t, s, 3)
	waitDone(t, s)

	if err := s.Err(); err != nil {
		t.Fatalf("run error: %v", err)
	}
	rec := s.Record()
	if rec == nil || h.persister.count() != 1 {
		t.Fatalf("record not persisted exactly once (record=%v, saves=%d)", rec != nil, h.persister.count())
	}
	if rec.Initials != "JD" || rec.Aborted || !rec.Completed().Equal(epoch.Add(150*time.Second)) {
		t.Fatalf("unexpected record header: %+v", rec)
	}
	if len(rec.Trials) != 10 {
		t.Fatalf("got %d trials, want 10", len(rec.Trials))
	}
	for i, tr := range rec.Trials {
		if tr.Index != i {
			t.Errorf("trial %d has index %d", i, tr.Index)
		}
		wantKind := models.KindOddball
		if i%2 == 1 {
			wantKind = models.KindDistinct
		}
		if tr.Kind != wantKind {
			t.Errorf("trial %d kind = %d, want %d", i, tr.Kind, wantKind)
		}
		if len(tr.GazeSamples) != 3 {
			t.Errorf("trial %d has %d gaze samples, want 3", i, len(tr.GazeSamples))
		}
	}

	var last int64
	for i, g := range rec.GazeSamples {
		if g.Time < last {
			t.Fatalf("gaze sample %d goes back in time: %d < %d", i, g.Time, last)
		}
		last = g.Time
	}
	if got := h.board.State(); got.Scene != display.SceneFinished || got.Message != "Experiment completed! Data saved." {
		t.Fatalf("final board = %+v", got)
	}
	if snap := s.Snapshot(); snap.Status != StatusFinished || snap.TrialsDone != 10 {
		t.Fatalf("snapshot = %+v", snap)
	}
}

func TestTrainingTrialsRunBeforeRecordedTrials(t *testing.T) {
	h := newHarness(t)
	h.cfg.TrainingTrials = 1
	s := h.start(t, models.Intake{Initials: "AB", Category: models.CategoryShapes, TrialCount: 10})
	calibrate(t, s, 3)
	waitDone(t, s)

	if err := s.Err(); err != nil {
		t.Fatalf("run error: %v", err)
	}
	rec := s.Record()
	if len(rec.Trials) != 10 || rec.Trials[0].Index != 0 {
		t.Fatalf("got %d trials starting at %d, want 10 from 0", len(rec.Trials), rec.Trials[0].Index)
	}
	// Training shows only a sample stimulus, one extra 3s wait.
	if !rec.Completed().Equal(epoch.Add(153 * time.Second)) {
		t.Fatalf("completed at %v", rec.Completed().Sub(epoch))
	}
	if len(rec.GazeSamples) != 31 || rec.GazeSamples[0].Trial != nil {
		t.Fatalf("gaze stream has %d samples, first tagged %v", len(rec.GazeSamples), rec.GazeSamples[0].Trial)
	}
	for i, tr := range rec.Trials {
		if len(tr.GazeSamples) != 3 {
			t.Errorf("trial %d has %d gaze samples, want 3", i, len(tr.GazeSamples))
		}
	}
}

func TestRunBeforeCalibrationIsRefused(t *testing.T) {
	h := newHarness(t)
	s := h.start(t, models.Intake{Initials: "AB", Category: models.CategoryShapes, TrialCount: 10})

	rec, err := s.Run(context.Background())
	if !errors.Is(err, ErrNotCalibrated) || rec != nil {
		t.Fatalf("Run = %v, %v; want ErrNotCalibrated", rec, err)
	}
	if h.persister.count() != 0 || len(s.Trials()) != 0 {
		t.Fatal("refused run must not touch the record")
	}
	if s.Snapshot().Status != StatusCalibrating {
		t.Fatalf("status = %s", s.Snapshot().Status)
	}
}

func TestSetupFailuresCanBeRetried(t *testing.T) {
	h := newHarness(t)
	sim := tracker.NewSimulated(time.Hour, 1920, 1080, 1)
	sim.FailStarts = 1
	t.Cleanup(func() { _ = sim.Stop() })
	h.deps.Tracker = sim
	s := New(h.cfg, h.deps)

	intake := models.Intake{Initials: "AB", Category: models.CategoryPictures, TrialCount: 20}

	var setupErr *SetupError
	bad := intake
	bad.Initials = "TOOLONGX"
	if err := s.Setup(context.Background(), bad); !errors.As(err, &setupErr) || setupErr.Stage != "intake" {
		t.Fatalf("invalid intake: got %v", err)
	}

	err := s.Setup(context.Background(), intake)
	if !errors.As(err, &setupErr) || setupErr.Stage != "tracker" {
		t.Fatalf("tracker failure: got %v", err)
	}
	if err := s.Begin(context.Background()); !errors.Is(err, ErrNotReady) {
		t.Fatalf("Begin after failed setup = %v", err)
	}

	if err := s.Setup(context.Background(), intake); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if s.Snapshot().Status != StatusReady {
		t.Fatalf("status = %s", s.Snapshot().Status)
	}
}

func TestMissingAssetsStopSetup(t *testing.T) {
	h := newHarness(t)
	h.deps.Assets = assetsFunc(func(c models.Category) error { return errors.New("no images for " + c.String()) })
	s := New(h.cfg, h.deps)

	var setupErr *SetupError
	err := s.Setup(context.Background(), models.Intake{Initials: "AB", Category: models.CategoryAbstract, TrialCount: 10})
	if !errors.As(err, &setupErr) || setupErr.Stage != "assets" {
		t.Fatalf("got %v", err)
	}
}

func TestPhaseFailureAbortsWithPartialRecord(t *testing.T) {
	h := newHarness(t)
	h.deps.Screen = &brokenArray{Board: h.board, failAt: 2}
	s := h.start(t, models.Intake{Initials: "AB", Category: models.CategoryColors, TrialCount: 10})
	calibrate(t, s, 3)
	waitDone(t, s)

	var phaseErr *trial.PhaseError
	if !errors.As(s.Err(), &phaseErr) || phaseErr.Trial != 2 || phaseErr.Phase != trial.PhaseTestArray {
		t.Fatalf("run error = %v", s.Err())
	}
	rec := s.Record()
	if !rec.Aborted || len(rec.Trials) != 2 || h.persister.count() != 1 {
		t.Fatalf("partial record: aborted=%v trials=%d saves=%d", rec.Aborted, len(rec.Trials), h.persister.count())
	}
	if s.Snapshot().Status != StatusAborted {
		t.Fatalf("status = %s", s.Snapshot().Status)
	}
}

func TestPersistenceErrorKeepsRecord(t *testing.T) {
	h := newHarness(t)
	h.persister.err = errors.New("disk full")
	s := h.start(t, models.Intake{Initials: "AB", Category: models.CategoryColors, TrialCount: 10})
	calibrate(t, s, 3)
	waitDone(t, s)

	var persistErr *PersistenceError
	if !errors.As(s.Err(), &persistErr) {
		t.Fatalf("run error = %v", s.Err())
	}
	if rec := s.Record(); rec == nil || len(rec.Trials) != 10 {
		t.Fatal("record must survive a failed save")
	}
	if got := h.board.State().Message; got != "Error saving experiment data. Please contact the operator." {
		t.Fatalf("message = %q", got)
	}
}

func TestManagerAllowsOneSessionAtATime(t *testing.T) {
	h := newHarness(t)
	m := NewManager(func() *Controller {
		deps := h.deps
		deps.Tracker = tracker.NewRemote(64, zap.NewNop())
		return New(h.cfg, deps)
	}, zap.NewNop())

	intake := models.Intake{Initials: "AB", Category: models.CategoryColors, TrialCount: 10}
	first, err := m.Open(context.Background(), intake)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := m.Open(context.Background(), intake); !errors.Is(err, ErrStationBusy) {
		t.Fatalf("second Open = %v, want ErrStationBusy", err)
	}

	calibrate(t, first, 3)
	waitDone(t, first)

	second, err := m.Open(context.Background(), intake)
	if err != nil {
		t.Fatalf("Open after finish: %v", err)
	}
	if second.ID() == first.ID() {
		t.Fatal("sessions must get distinct ids")
	}
	if cur, ok := m.Current(); !ok || cur != second {
		t.Fatal("Current should return the newest session")
	}
}

func TestFailedCalibrationCanBeBegunAgain(t *testing.T) {
	h := newHarness(t)
	h.deps.Tracker = &flakyObserver{Remote: h.tracker, failOn: 2}
	s := h.start(t, models.Intake{Initials: "AB", Category: models.CategoryColors, TrialCount: 10})

	if err := s.Calibration().Acknowledge(); err != nil {
		t.Fatalf("first ack: %v", err)
	}
	if err := s.Calibration().Acknowledge(); err == nil {
		t.Fatal("second ack should fail")
	}
	if !s.Stalled() || s.Snapshot().Status != StatusCalibrating {
		t.Fatalf("after failed ack: stalled=%v status=%s", s.Stalled(), s.Snapshot().Status)
	}

	if err := s.Begin(context.Background()); err != nil {
		t.Fatalf("Begin after failed calibration: %v", err)
	}
	if s.Stalled() || s.Snapshot().CalibrationRemaining != 3 {
		t.Fatalf("calibration not restarted: %+v", s.Snapshot())
	}
	if err := s.Begin(context.Background()); !errors.Is(err, ErrNotReady) {
		t.Fatalf("Begin during calibration = %v, want ErrNotReady", err)
	}

	calibrate(t, s, 3)
	waitDone(t, s)
	if err := s.Err(); err != nil {
		t.Fatalf("run error: %v", err)
	}
	if rec := s.Record(); rec == nil || len(rec.Trials) != 10 || rec.Aborted {
		t.Fatalf("record after restarted calibration: %+v", rec)
	}
}

func TestManagerReplacesSessionWithFailedCalibration(t *testing.T) {
	h := newHarness(t)
	var trackers []*tracker.Remote
	m := NewManager(func() *Controller {
		remote := tracker.NewRemote(64, zap.NewNop())
		trackers = append(trackers, remote)
		deps := h.deps
		deps.Tracker = &flakyObserver{Remote: remote, failOn: 2}
		return New(h.cfg, deps)
	}, zap.NewNop())

	intake := models.Intake{Initials: "AB", Category: models.CategoryColors, TrialCount: 10}
	first, err := m.Open(context.Background(), intake)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	_ = first.Calibration().Acknowledge()
	if err := first.Calibration().Acknowledge(); err == nil {
		t.Fatal("second ack should fail")
	}

	second, err := m.Open(context.Background(), intake)
	if err != nil {
		t.Fatalf("Open after failed calibration: %v", err)
	}
	if second == first {
		t.Fatal("stalled session was not replaced")
	}
	select {
	case <-first.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("abandoned session never closed")
	}
	if snap := first.Snapshot(); snap.Status != StatusAborted || !errors.Is(first.Err(), ErrCalibrationAbandoned) {
		t.Fatalf("abandoned session = %+v, err %v", snap, first.Err())
	}
	if first.Record() != nil || h.persister.count() != 0 {
		t.Fatal("abandoned session must not produce a record")
	}
	if accepted, _ := trackers[0].Push(models.RawGazeSample{X: 1, Y: 1}); accepted != 0 {
		t.Fatal("tracker of abandoned session still accepts samples")
	}
	if cur, _ := m.Current(); cur != second {
		t.Fatal("Current should return the replacement")
	}
	if first.Abandon(ErrCalibrationAbandoned) {
		t.Fatal("a session can only be abandoned once")
	}
}

package calibration

import (
	"errors"
	"math/rand"
	"testing"

	"go.uber.org/zap"
)

type recordingSurface struct {
	shown   int
	cleared int
	failAt  int // fail the nth ShowTarget, 0 never
}

func (s *recordingSurface) ShowTarget(x, y float64, remaining int) error {
	s.shown++
	if s.failAt > 0 && s.shown == s.failAt {
		return errors.New("overlay failed")
	}
	return nil
}

func (s *recordingSurface) ClearTarget() error {
	s.cleared++
	return nil
}

type point struct{ x, y float64 }

type recordingObserver struct {
	points []point
	err    error
}

func (o *recordingObserver) Observe(x, y float64) error {
	if o.err != nil {
		return o.err
	}
	o.points = append(o.points, point{x, y})
	return nil
}

func newController(points int, s Surface, o Observer) *Controller {
	return New(points, 1000, 500, s, o, rand.New(rand.NewSource(5)), zap.NewNop())
}

func TestCalibrationNeedsEveryPoint(t *testing.T) {
	surface := &recordingSurface{}
	observer := &recordingObserver{}
	c := newController(10, surface, observer)

	completed := 0
	c.OnComplete(func() { completed++ })

	if err := c.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i := 0; i < 9; i++ {
		if err := c.Acknowledge(); err != nil {
			t.Fatalf("ack %d: %v", i+1, err)
		}
		if c.State() != StateInProgress {
			t.Fatalf("after %d acks state = %s, want in_progress", i+1, c.State())
		}
	}
	if completed != 0 {
		t.Fatal("completed before the tenth point")
	}
	if err := c.Acknowledge(); err != nil {
		t.Fatalf("ack 10: %v", err)
	}

	if c.State() != StateComplete || completed != 1 {
		t.Fatalf("state = %s completed = %d, want complete and 1", c.State(), completed)
	}
	if len(observer.points) != 10 || surface.shown != 10 {
		t.Fatalf("observed %d points, showed %d targets, want 10 each", len(observer.points), surface.shown)
	}
	for i, p := range observer.points {
		if p.x < 100 || p.x > 900 || p.y < 50 || p.y > 450 {
			t.Errorf("point %d (%.1f, %.1f) outside the inset area", i, p.x, p.y)
		}
	}
	if err := c.Acknowledge(); !errors.Is(err, ErrNoActiveTarget) {
		t.Fatalf("ack after completion = %v, want ErrNoActiveTarget", err)
	}
}

func TestStartIsIdempotent(t *testing.T) {
	surface := &recordingSurface{}
	c := newController(3, surface, &recordingObserver{})

	if err := c.Start(); err != nil {
		t.Fatal(err)
	}
	_ = c.Acknowledge()
	if err := c.Start(); err != nil {
		t.Fatalf("restart while in progress: %v", err)
	}
	if c.Remaining() != 2 || surface.shown != 2 {
		t.Fatalf("restart changed progress: remaining %d, shown %d", c.Remaining(), surface.shown)
	}

	_ = c.Acknowledge()
	_ = c.Acknowledge()
	if c.State() != StateComplete {
		t.Fatalf("state = %s", c.State())
	}
	if err := c.Start(); err != nil || c.State() != StateComplete {
		t.Fatalf("Start after completion: err %v, state %s", err, c.State())
	}
}

func TestSetupFailureReturnsToIdle(t *testing.T) {
	surface := &recordingSurface{failAt: 1}
	c := newController(3, surface, &recordingObserver{})

	if err := c.Start(); err == nil {
		t.Fatal("expected setup error")
	}
	if c.State() != StateIdle {
		t.Fatalf("state = %s, want idle", c.State())
	}
	if err := c.Acknowledge(); !errors.Is(err, ErrNoActiveTarget) {
		t.Fatalf("ack after failed start = %v", err)
	}

	// Not retried automatically, but a manual restart works.
	if err := c.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if c.State() != StateInProgress {
		t.Fatalf("state = %s, want in_progress", c.State())
	}
}

func TestObserverFailureAbortsRun(t *testing.T) {
	observer := &recordingObserver{err: errors.New("tracker gone")}
	c := newController(3, &recordingSurface{}, observer)
	_ = c.Start()

	if err := c.Acknowledge(); err == nil {
		t.Fatal("expected observation error")
	}
	if c.State() != StateIdle {
		t.Fatalf("state = %s, want idle", c.State())
	}
}

func TestAcknowledgeBeforeStart(t *testing.T) {
	c := newController(3, &recordingSurface{}, &recordingObserver{})
	if err := c.Acknowledge(); !errors.Is(err, ErrNoActiveTarget) {
		t.Fatalf("got %v, want ErrNoActiveTarget", err)
	}
}

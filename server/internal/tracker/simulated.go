package tracker

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/metrics"
	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/models"
)

// Simulated emits a jittered gaze stream on a ticker. It backs the simulate
// command and tests. FailStarts makes the first n Start calls fail.
type Simulated struct {
	Interval   time.Duration
	Width      float64
	Height     float64
	FailStarts int

	mu           sync.Mutex
	rng          *rand.Rand
	samples      chan models.RawGazeSample
	stop         chan struct{}
	wg           sync.WaitGroup
	running      bool
	stopped      bool
	observations []Observation
}

// NewSimulated returns a simulated tracker for a viewport of the given size.
func NewSimulated(interval time.Duration, width, height float64, seed int64) *Simulated {
	return &Simulated{
		Interval: interval,
		Width:    width,
		Height:   height,
		rng:      rand.New(rand.NewSource(seed)),
		samples:  make(chan models.RawGazeSample, 256),
		stop:     make(chan struct{}),
	}
}

func (s *Simulated) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.stopped:
		return ErrStopped
	case s.running:
		return nil
	case s.FailStarts > 0:
		s.FailStarts--
		return errors.New("simulated camera unavailable")
	}
	s.running = true
	s.wg.Add(1)
	go s.emit()
	return nil
}

func (s *Simulated) emit() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	began := time.Now()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			sample := models.RawGazeSample{
				X: s.Width/2 + s.rng.NormFloat64()*s.Width/8,
				Y: s.Height/2 + s.rng.NormFloat64()*s.Height/8,
				T: float64(time.Since(began).Milliseconds()),
			}
			s.mu.Unlock()
			select {
			case s.samples <- sample:
			default:
				metrics.GazeSamplesDropped.WithLabelValues("queue_full").Inc()
			}
		}
	}
}

func (s *Simulated) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	close(s.stop)
	s.mu.Unlock()

	s.wg.Wait()
	close(s.samples)
	return nil
}

func (s *Simulated) Observe(x, y float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observations = append(s.observations, Observation{X: x, Y: y, At: time.Now()})
	return nil
}

func (s *Simulated) Samples() <-chan models.RawGazeSample {
	return s.samples
}

// Observations returns the calibration points observed so far.
func (s *Simulated) Observations() []Observation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Observation(nil), s.observations...)
}

package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/metrics"
	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/models"

	"go.uber.org/zap"
)

// Remote is a tracker running in the participant's browser. Gaze samples
// arrive over HTTP through Push; calibration observations are queued until
// the browser collects them with DrainObservations.
type Remote struct {
	log *zap.Logger

	mu           sync.Mutex
	started      bool
	stopped      bool
	samples      chan models.RawGazeSample
	observations []Observation
}

// NewRemote returns a remote tracker whose sample queue holds queue entries.
func NewRemote(queue int, log *zap.Logger) *Remote {
	return &Remote{
		log:     log,
		samples: make(chan models.RawGazeSample, queue),
	}
}

func (r *Remote) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return ErrStopped
	}
	r.started = true
	return nil
}

func (r *Remote) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return nil
	}
	r.stopped = true
	close(r.samples)
	return nil
}

func (r *Remote) Observe(x, y float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopped {
		return ErrStopped
	}
	r.observations = append(r.observations, Observation{X: x, Y: y, At: time.Now()})
	return nil
}

func (r *Remote) Samples() <-chan models.RawGazeSample {
	return r.samples
}

// Push queues samples without blocking. Samples that arrive before Start,
// after Stop, or while the queue is full are dropped.
func (r *Remote) Push(batch ...models.RawGazeSample) (accepted, dropped int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started || r.stopped {
		metrics.GazeSamplesDropped.WithLabelValues("tracker_idle").Add(float64(len(batch)))
		return 0, len(batch)
	}
	for _, s := range batch {
		select {
		case r.samples <- s:
			accepted++
		default:
			dropped++
		}
	}
	if dropped > 0 {
		metrics.GazeSamplesDropped.WithLabelValues("queue_full").Add(float64(dropped))
		r.log.Warn("Gaze queue full, samples dropped", zap.Int("dropped", dropped))
	}
	return accepted, dropped
}

// DrainObservations returns and clears the pending calibration observations.
func (r *Remote) DrainObservations() []Observation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.observations
	r.observations = nil
	return out
}

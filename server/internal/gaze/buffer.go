// Package gaze timestamps eye-position samples and files them by phase and
// trial.
package gaze

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/clock"
	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/metrics"
	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/models"

	"go.uber.org/zap"
)

// ErrPhaseChanged is returned by Seal when another phase began after the one
// being sealed.
var ErrPhaseChanged = errors.New("gaze phase changed before seal")

// Buffer accumulates the gaze stream of one session. Record is called from
// the tracker's goroutine; the phase methods are called by the controllers.
// Readers always get copies, never the live slices.
type Buffer struct {
	clock clock.Clock
	log   *zap.Logger

	mu         sync.Mutex
	phase      models.Phase
	trial      *int
	phaseStart time.Time
	generation uint64
	current    []models.GazeSample
	all        []models.GazeSample
	lastTime   int64
	dropped    int
}

// NewBuffer returns an empty buffer. Samples are dropped until the first
// BeginPhase.
func NewBuffer(c clock.Clock, log *zap.Logger) *Buffer {
	return &Buffer{clock: c, log: log}
}

// BeginPhase starts a new phase: the current slice is emptied and relative
// times restart from now. trial is the index of the trial being opened, or
// negative outside trials. It returns the new generation number.
func (b *Buffer) BeginPhase(phase models.Phase, trial int) uint64 {
	now := b.clock.Now()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.phase = phase
	b.phaseStart = now
	b.current = nil
	b.trial = nil
	if trial >= 0 {
		t := trial
		b.trial = &t
	}
	b.generation++
	return b.generation
}

// Record appends a sample at the current time, tagged with the phase that is
// open at the moment of the call. It reports false if no phase has begun.
func (b *Buffer) Record(x, y float64) bool {
	now := b.clock.Now()

	b.mu.Lock()
	if b.phase == "" {
		b.dropped++
		b.mu.Unlock()
		metrics.GazeSamplesDropped.WithLabelValues("no_phase").Inc()
		return false
	}

	abs := now.UnixMilli()
	if abs < b.lastTime {
		abs = b.lastTime
	}
	b.lastTime = abs

	rel := abs - b.phaseStart.UnixMilli()
	if rel < 0 {
		rel = 0
	}

	sample := models.GazeSample{
		X:            x,
		Y:            y,
		Time:         abs,
		RelativeTime: rel,
		Phase:        b.phase,
		Trial:        b.trial,
	}
	b.current = append(b.current, sample)
	b.all = append(b.all, sample)
	phase := b.phase
	b.mu.Unlock()

	metrics.GazeSamplesRecorded.WithLabelValues(string(phase)).Inc()
	return true
}

// Seal closes the phase opened with generation gen and returns a copy of the
// samples recorded since. Samples arriving after Seal belong to no trial
// until the next BeginPhase. If gen is no longer the open phase nothing is
// sealed and ErrPhaseChanged is returned.
func (b *Buffer) Seal(gen uint64) ([]models.GazeSample, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if gen != b.generation {
		return nil, fmt.Errorf("%w: sealing generation %d, open is %d", ErrPhaseChanged, gen, b.generation)
	}
	sealed := make([]models.GazeSample, len(b.current))
	copy(sealed, b.current)
	b.current = nil
	b.trial = nil
	b.generation++
	return sealed, nil
}

// All returns a copy of every sample recorded so far.
func (b *Buffer) All() []models.GazeSample {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]models.GazeSample, len(b.all))
	copy(out, b.all)
	return out
}

// Dropped counts samples that arrived before any phase began.
func (b *Buffer) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

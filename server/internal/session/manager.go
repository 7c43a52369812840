package session

import (
	"context"
	"sync"

	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/models"

	"go.uber.org/zap"
)

// Factory builds a fresh, unstarted session.
type Factory func() *Controller

// Manager keeps the one session a station runs at a time.
type Manager struct {
	factory Factory
	log     *zap.Logger

	mu      sync.Mutex
	current *Controller
}

func NewManager(factory Factory, log *zap.Logger) *Manager {
	return &Manager{factory: factory, log: log}
}

// Open sets up a new session for the intake and starts its calibration. It
// fails with ErrStationBusy while another session is still in progress. A
// session stuck after a failed calibration is abandoned and replaced. A
// session whose setup fails is discarded.
func (m *Manager) Open(ctx context.Context, intake models.Intake) (*Controller, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cur := m.current; cur != nil && !cur.Finished() {
		if !cur.Stalled() {
			return nil, ErrStationBusy
		}
		m.log.Warn("Replacing session with failed calibration", zap.String("session", cur.ID()))
		cur.Abandon(ErrCalibrationAbandoned)
	}

	s := m.factory()
	if err := s.Setup(ctx, intake); err != nil {
		m.log.Warn("Session setup failed", zap.Error(err))
		m.discard(s)
		return nil, err
	}
	if err := s.Begin(ctx); err != nil {
		m.log.Warn("Calibration could not start", zap.Error(err))
		m.discard(s)
		return nil, err
	}
	m.current = s
	return s, nil
}

func (m *Manager) discard(s *Controller) {
	if err := s.Tracker().Stop(); err != nil {
		m.log.Error("Tracker of discarded session did not stop",
			zap.String("session", s.ID()), zap.Error(err))
	}
}

// Current returns the station's latest session, finished or not.
func (m *Manager) Current() (*Controller, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, m.current != nil
}

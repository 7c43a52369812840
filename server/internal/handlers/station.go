package handlers

import (
	"errors"
	"net/http"

	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/calibration"
	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/display"
	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/models"
	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/session"
	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/tracker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// gazeSink is a tracker that accepts samples from the browser.
type gazeSink interface {
	Push(batch ...models.RawGazeSample) (accepted, dropped int)
	DrainObservations() []tracker.Observation
}

type gazeBatch struct {
	Samples []models.RawGazeSample `json:"samples" binding:"required"`
}

// StationHandler serves the participant's browser: what to draw, target
// acknowledgements and the gaze stream.
type StationHandler struct {
	log      *zap.Logger
	sessions *session.Manager
	board    *display.Board
}

func NewStationHandler(log *zap.Logger, sessions *session.Manager, board *display.Board) *StationHandler {
	return &StationHandler{log: log, sessions: sessions, board: board}
}

// Screen returns the current board.
func (h *StationHandler) Screen(c *gin.Context) {
	c.JSON(http.StatusOK, h.board.State())
}

// Acknowledge records a click on the current calibration target.
func (h *StationHandler) Acknowledge(c *gin.Context) {
	s, ok := h.sessions.Current()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No session"})
		return
	}
	if err := s.Calibration().Acknowledge(); err != nil {
		if errors.Is(err, calibration.ErrNoActiveTarget) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		h.log.Error("Calibration acknowledgement failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Calibration failed, please start again",
			"restart": "/api/calibration/start",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"state":     s.Calibration().State(),
		"remaining": s.Calibration().Remaining(),
	})
}

// StartCalibration begins calibration again after a failed run.
func (h *StationHandler) StartCalibration(c *gin.Context) {
	s, ok := h.sessions.Current()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No session"})
		return
	}
	if err := s.Begin(c.Request.Context()); err != nil {
		var setupErr *session.SetupError
		switch {
		case errors.Is(err, session.ErrNotReady):
			c.JSON(http.StatusConflict, gin.H{"error": "Calibration is not waiting to be started"})
		case errors.As(err, &setupErr):
			h.log.Error("Calibration restart failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Calibration could not start"})
		default:
			h.log.Error("Calibration restart failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Calibration could not start"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"state":     s.Calibration().State(),
		"remaining": s.Calibration().Remaining(),
	})
}

// Observations hands pending calibration points to the browser tracker.
func (h *StationHandler) Observations(c *gin.Context) {
	sink, ok := h.sink(c)
	if !ok {
		return
	}
	observations := sink.DrainObservations()
	if observations == nil {
		observations = []tracker.Observation{}
	}
	c.JSON(http.StatusOK, gin.H{"observations": observations})
}

// PushGaze queues a batch of gaze samples from the browser tracker.
func (h *StationHandler) PushGaze(c *gin.Context) {
	sink, ok := h.sink(c)
	if !ok {
		return
	}
	var batch gazeBatch
	if err := c.ShouldBindJSON(&batch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid gaze data"})
		return
	}
	accepted, dropped := sink.Push(batch.Samples...)
	c.JSON(http.StatusAccepted, gin.H{"accepted": accepted, "dropped": dropped})
}

func (h *StationHandler) sink(c *gin.Context) (gazeSink, bool) {
	s, ok := h.sessions.Current()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No session"})
		return nil, false
	}
	sink, ok := s.Tracker().(gazeSink)
	if !ok {
		c.JSON(http.StatusConflict, gin.H{"error": "Session tracker does not accept browser gaze"})
		return nil, false
	}
	return sink, true
}

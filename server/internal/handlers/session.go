package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/models"
	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/repository"
	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/session"

	"github.com/gin-gonic/gin"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"go.uber.org/zap"
)

type SessionHandler struct {
	log      *zap.Logger
	sessions *session.Manager
	width    float64
	height   float64
}

func NewSessionHandler(log *zap.Logger, sessions *session.Manager, width, height float64) *SessionHandler {
	return &SessionHandler{log: log, sessions: sessions, width: width, height: height}
}

// Create takes the participant intake, sets the session up and starts
// calibration.
func (h *SessionHandler) Create(c *gin.Context) {
	var intake models.Intake
	if err := c.ShouldBindJSON(&intake); err != nil {
		h.log.Warn("Failed to bind intake", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid intake data"})
		return
	}

	s, err := h.sessions.Open(c.Request.Context(), intake)
	if err != nil {
		var setupErr *session.SetupError
		switch {
		case errors.Is(err, models.ErrInvalidIntake):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, session.ErrStationBusy):
			c.JSON(http.StatusConflict, gin.H{"error": "A session is already running on this station"})
		case errors.As(err, &setupErr):
			h.log.Error("Session setup failed", zap.String("stage", setupErr.Stage), zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "stage": setupErr.Stage})
		default:
			h.log.Error("Failed to open session", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start session"})
		}
		return
	}
	c.JSON(http.StatusCreated, s.Snapshot())
}

// Status reports the station's current session.
func (h *SessionHandler) Status(c *gin.Context) {
	s, ok := h.sessions.Current()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No session"})
		return
	}
	c.JSON(http.StatusOK, s.Snapshot())
}

// Download serves the finished record as a JSON attachment.
func (h *SessionHandler) Download(c *gin.Context) {
	rec, ok := h.finishedRecord(c)
	if !ok {
		return
	}
	data, err := repository.Encode(rec)
	if err != nil {
		h.log.Error("Failed to encode session record", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to encode record"})
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, rec.FileName()))
	c.Data(http.StatusOK, "application/json", data)
}

// GazeChart returns echarts options plotting one trial's gaze. trial=-1
// plots the calibration samples.
func (h *SessionHandler) GazeChart(c *gin.Context) {
	rec, ok := h.finishedRecord(c)
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.DefaultQuery("trial", "0"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "trial must be a number"})
		return
	}
	trace, err := repository.GazeForTrial(rec, index)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, generateGazeChart(trace, h.width, h.height).JSON())
}

func (h *SessionHandler) finishedRecord(c *gin.Context) (*models.SessionRecord, bool) {
	s, ok := h.sessions.Current()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "No session"})
		return nil, false
	}
	rec := s.Record()
	if rec == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Session has not finished"})
		return nil, false
	}
	return rec, true
}

func generateGazeChart(trace repository.TrialGaze, width, height float64) *charts.Scatter {
	title := fmt.Sprintf("Trial %d gaze", trace.Trial+1)
	if trace.Trial < 0 {
		title = "Calibration gaze"
	}
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: fmt.Sprintf("%d samples", len(trace.Points)),
		}),
		charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "x (px)", Min: 0, Max: width}),
		charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: "y (px)", Min: 0, Max: height}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)

	items := make([]opts.ScatterData, 0, len(trace.Points))
	for _, p := range trace.Points {
		items = append(items, opts.ScatterData{Value: []interface{}{p.X, p.Y, p.RelativeTime}})
	}
	scatter.AddSeries("Gaze", items)

	if len(trace.Slots) > 0 {
		slots := make([]opts.ScatterData, 0, len(trace.Slots))
		for _, s := range trace.Slots {
			name := fmt.Sprintf("%s #%d", s.Position, s.Stimulus)
			if s.IsTarget {
				name += " (target)"
			}
			slots = append(slots, opts.ScatterData{
				Name:       name,
				Value:      []interface{}{width * (0.5 + s.Position.Offset()), height / 2},
				SymbolSize: 24,
			})
		}
		scatter.AddSeries("Stimuli", slots)
	}
	return scatter
}

package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/models"
	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/repository"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxRecent = 100

// RecordStore reads back records kept on the station.
type RecordStore interface {
	Latest(ctx context.Context) (*models.SessionRecord, error)
	Get(ctx context.Context, id string) (*models.SessionRecord, error)
}

// SessionArchive lists sessions copied to the central database.
type SessionArchive interface {
	Recent(ctx context.Context, limit int) ([]models.SessionResult, error)
}

// HistoryHandler serves records of past sessions. Either store may be nil.
type HistoryHandler struct {
	log     *zap.Logger
	records RecordStore
	archive SessionArchive
}

func NewHistoryHandler(log *zap.Logger, records RecordStore, archive SessionArchive) *HistoryHandler {
	return &HistoryHandler{log: log, records: records, archive: archive}
}

// Latest downloads the most recently stored record.
func (h *HistoryHandler) Latest(c *gin.Context) {
	if h.records == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Local store disabled"})
		return
	}
	rec, err := h.records.Latest(c.Request.Context())
	h.serveRecord(c, rec, err)
}

// Get downloads the stored record of one session.
func (h *HistoryHandler) Get(c *gin.Context) {
	if h.records == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Local store disabled"})
		return
	}
	rec, err := h.records.Get(c.Request.Context(), c.Param("id"))
	h.serveRecord(c, rec, err)
}

// Recent lists the newest archived sessions, limit=N (default 20).
func (h *HistoryHandler) Recent(c *gin.Context) {
	if h.archive == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Archive disabled"})
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive number"})
		return
	}
	if limit > maxRecent {
		limit = maxRecent
	}
	results, err := h.archive.Recent(c.Request.Context(), limit)
	if err != nil {
		h.log.Error("Failed to list archived sessions", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read archive"})
		return
	}
	if results == nil {
		results = []models.SessionResult{}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": results})
}

func (h *HistoryHandler) serveRecord(c *gin.Context, rec *models.SessionRecord, err error) {
	if errors.Is(err, repository.ErrNoRecord) {
		c.JSON(http.StatusNotFound, gin.H{"error": "No stored record"})
		return
	}
	if err != nil {
		h.log.Error("Failed to read stored record", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read record"})
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

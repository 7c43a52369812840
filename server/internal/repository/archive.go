package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/models"

	"github.com/lib/pq"
	"gorm.io/gorm"
)

const gazeBatchSize = 500

// Archive copies finished sessions into the central Postgres database.
type Archive struct {
	db *gorm.DB
}

func NewArchive(db *gorm.DB) *Archive {
	return &Archive{db: db}
}

// Save writes the summary, its trials and every gaze sample in a single
// transaction.
func (a *Archive) Save(ctx context.Context, rec *models.SessionRecord) error {
	summary, trials, points, err := ArchiveRows(rec)
	if err != nil {
		return err
	}
	return a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&summary).Error; err != nil {
			return fmt.Errorf("insert session result: %w", err)
		}
		if len(trials) > 0 {
			if err := tx.Create(&trials).Error; err != nil {
				return fmt.Errorf("insert trial results: %w", err)
			}
		}
		if len(points) > 0 {
			if err := tx.CreateInBatches(&points, gazeBatchSize).Error; err != nil {
				return fmt.Errorf("insert gaze points: %w", err)
			}
		}
		return nil
	})
}

// Recent returns the latest archived session summaries.
func (a *Archive) Recent(ctx context.Context, limit int) ([]models.SessionResult, error) {
	var out []models.SessionResult
	err := a.db.WithContext(ctx).
		Select("id", "initials", "category", "trial_count", "completed", "aborted", "created_at").
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ArchiveRows flattens a record into archive rows. The session stream is the
// source of gaze points; per-trial copies are only counted.
func ArchiveRows(rec *models.SessionRecord) (models.SessionResult, []models.TrialResult, []models.GazePoint, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return models.SessionResult{}, nil, nil, fmt.Errorf("encode record: %w", err)
	}
	summary := models.SessionResult{
		ID:         rec.ID,
		Initials:   rec.Initials,
		Category:   rec.Category.String(),
		TrialCount: rec.TrialCount,
		Completed:  len(rec.Trials),
		Aborted:    rec.Aborted,
		RawData:    raw,
		CreatedAt:  time.UnixMilli(rec.Timestamp).UTC(),
	}

	trials := make([]models.TrialResult, 0, len(rec.Trials))
	for _, t := range rec.Trials {
		row := models.TrialResult{
			ResultID:    rec.ID,
			TrialIndex:  t.Index,
			Kind:        int(t.Kind),
			Target:      int(t.Target),
			Foils:       stimulusArray(t.Foils),
			SlotStimuli: stimulusArray(t.TestStimuli),
			StartedAt:   t.StartTime,
			EndedAt:     t.EndTime,
			GazeSamples: len(t.GazeSamples),
		}
		if pos, ok := t.TargetPosition(); ok {
			row.TargetPosition = string(pos)
		}
		trials = append(trials, row)
	}

	points := make([]models.GazePoint, 0, len(rec.GazeSamples))
	for _, g := range rec.GazeSamples {
		points = append(points, models.GazePoint{
			ResultID:     rec.ID,
			TrialIndex:   g.Trial,
			X:            g.X,
			Y:            g.Y,
			Time:         g.Time,
			RelativeTime: g.RelativeTime,
			Phase:        string(g.Phase),
		})
	}
	return summary, trials, points, nil
}

func stimulusArray(ids []models.StimulusID) pq.Int64Array {
	out := make(pq.Int64Array, len(ids))
	for i, id := range ids {
		out[i] = int64(id)
	}
	return out
}

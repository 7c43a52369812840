package models

import (
	"encoding/json"
	"time"

	"github.com/lib/pq"
)

// SessionResult is the archived summary of a finished session.
type SessionResult struct {
	ID         string `gorm:"primaryKey"`
	Initials   string
	Category   string
	TrialCount int
	Completed  int
	Aborted    bool
	RawData    json.RawMessage `gorm:"type:jsonb"`
	CreatedAt  time.Time
}

// TrialResult is one archived trial. Slot columns are ordered left, center, right.
type TrialResult struct {
	ID             int
	ResultID       string `gorm:"index"`
	TrialIndex     int
	Kind           int
	Target         int
	Foils          pq.Int64Array `gorm:"type:integer[]"`
	SlotStimuli    pq.Int64Array `gorm:"type:integer[]"`
	TargetPosition string
	StartedAt      int64
	EndedAt        int64
	GazeSamples    int
}

// GazePoint is one archived gaze sample. TrialIndex is nil for samples taken
// outside a trial.
type GazePoint struct {
	ID           int
	ResultID     string `gorm:"index"`
	TrialIndex   *int
	X            float64
	Y            float64
	Time         int64
	RelativeTime int64
	Phase        string
}

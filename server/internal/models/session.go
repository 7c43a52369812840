package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// ErrInvalidIntake wraps every intake validation failure.
var ErrInvalidIntake = errors.New("invalid intake")

// TrialCounts are the session lengths offered at intake.
var TrialCounts = []int{10, 20, 30, 40, 50}

// Intake is the participant setup submitted before calibration.
type Intake struct {
	Initials   string   `json:"initials" form:"initials"`
	Category   Category `json:"category" form:"-"`
	TrialCount int      `json:"trialCount" form:"trialCount"`
}

// Normalize trims and upper-cases the initials and validates every field.
func (in *Intake) Normalize() error {
	in.Initials = strings.ToUpper(strings.TrimSpace(in.Initials))
	if in.Initials == "" {
		return fmt.Errorf("%w: initials are required", ErrInvalidIntake)
	}
	if utf8.RuneCountInString(in.Initials) > 6 {
		return fmt.Errorf("%w: initials must be at most 6 characters", ErrInvalidIntake)
	}
	if in.Category == CategoryUnknown {
		return fmt.Errorf("%w: a stimulus category is required", ErrInvalidIntake)
	}
	for _, n := range TrialCounts {
		if in.TrialCount == n {
			return nil
		}
	}
	return fmt.Errorf("%w: trial count %d not offered", ErrInvalidIntake, in.TrialCount)
}

// SessionRecord is assembled once at the end of a session and never changed.
type SessionRecord struct {
	ID          string       `json:"id"`
	Initials    string       `json:"initials"`
	Category    Category     `json:"category"`
	TrialCount  int          `json:"totalTrials"`
	Trials      []Trial      `json:"trialData"`
	GazeSamples []GazeSample `json:"gazeData"`
	Timestamp   int64        `json:"timestamp"`
	Aborted     bool         `json:"aborted"`
}

// Completed returns the wall-clock time the record was assembled.
func (r *SessionRecord) Completed() time.Time {
	return time.UnixMilli(r.Timestamp)
}

// FileName is the download name of the record, e.g.
// "AB_2025-01-02T03-04-05-678Z_data.json".
func (r *SessionRecord) FileName() string {
	ts := r.Completed().UTC().Format("2006-01-02T15:04:05.000Z")
	ts = strings.NewReplacer(":", "-", ".", "-").Replace(ts)
	return fmt.Sprintf("%s_%s_data.json", r.Initials, ts)
}

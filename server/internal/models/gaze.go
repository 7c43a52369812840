package models

// Phase tags a gaze sample with the part of the session it was recorded in.
type Phase string

const (
	PhaseCalibration Phase = "calibration"
	PhaseExperiment  Phase = "experiment"
)

// GazeSample is a single timestamped eye-position estimate. Times are in
// milliseconds; Time is wall clock, RelativeTime counts from the start of the
// phase the sample belongs to. Trial is set for samples taken while a trial
// was open.
type GazeSample struct {
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Time         int64   `json:"time"`
	RelativeTime int64   `json:"relativeTime"`
	Phase        Phase   `json:"phase"`
	Trial        *int    `json:"trial,omitempty"`
}

// RawGazeSample is what the tracker delivers before the buffer tags it.
// T is the tracker's own elapsed time and is informational only.
type RawGazeSample struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	T float64 `json:"t"`
}

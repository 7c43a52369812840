package models

// Position names a slot of the test array, left to right.
type Position string

const (
	PositionLeft   Position = "left"
	PositionCenter Position = "center"
	PositionRight  Position = "right"
)

// Positions is the slot order of the test array.
var Positions = [3]Position{PositionLeft, PositionCenter, PositionRight}

// Offset returns the slot's horizontal offset as a fraction of the container
// width, measured from the centre.
func (p Position) Offset() float64 {
	switch p {
	case PositionLeft:
		return -0.3
	case PositionRight:
		return 0.3
	default:
		return 0
	}
}

// Slot is one stimulus of the test array.
type Slot struct {
	Position Position   `json:"position"`
	Stimulus StimulusID `json:"objectNum"`
	IsTarget bool       `json:"isTarget"`
}

// Trial is the record of one sample/test sequence. It is mutated only by the
// trial controller and frozen once EndTime is set.
type Trial struct {
	Index       int          `json:"index"`
	Number      int          `json:"trialNumber"`
	Kind        TrialKind    `json:"type"`
	StartTime   int64        `json:"startTime"`
	EndTime     int64        `json:"endTime"`
	Target      StimulusID   `json:"object1"`
	Foils       []StimulusID `json:"foils"`
	TestStimuli []StimulusID `json:"testObjects"`
	Slots       []Slot       `json:"positions"`
	GazeSamples []GazeSample `json:"gazeData"`
}

// TargetPosition returns the slot the target was shown in.
func (t *Trial) TargetPosition() (Position, bool) {
	for _, s := range t.Slots {
		if s.IsTarget {
			return s.Position, true
		}
	}
	return "", false
}

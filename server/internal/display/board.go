// Package display keeps what the participant's browser should be showing.
// The browser polls the board and draws it; layout is expressed in
// container-relative fractions so the page decides pixels.
package display

import (
	"sync"

	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/models"
)

// Scene names what is on screen.
type Scene string

const (
	SceneIdle        Scene = "idle"
	SceneCalibration Scene = "calibration"
	SceneSample      Scene = "sample"
	SceneMask        Scene = "mask"
	SceneArray       Scene = "array"
	SceneBlank       Scene = "blank"
	SceneFinished    Scene = "finished"
)

// Target is a calibration point in viewport pixels.
type Target struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Remaining int     `json:"remaining"`
}

// Item is one stimulus image. OffsetX is the horizontal offset from the
// container centre as a fraction of its width; items are vertically centred.
type Item struct {
	Position models.Position `json:"position"`
	OffsetX  float64         `json:"offsetX"`
	URL      string          `json:"url"`
}

// State is a snapshot of the board. Seq increases on every change so the
// browser can skip redraws.
type State struct {
	Seq     uint64  `json:"seq"`
	Scene   Scene   `json:"scene"`
	Target  *Target `json:"target,omitempty"`
	Items   []Item  `json:"items,omitempty"`
	Message string  `json:"message,omitempty"`
}

// URLResolver maps a stimulus to the URL its image is served from.
type URLResolver interface {
	URL(c models.Category, id models.StimulusID) string
}

// Board is the shared screen state for one station.
type Board struct {
	urls URLResolver

	mu    sync.Mutex
	state State
}

func NewBoard(urls URLResolver) *Board {
	return &Board{urls: urls, state: State{Scene: SceneIdle}}
}

// State returns a copy of the current board.
func (b *Board) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.state
	if s.Target != nil {
		t := *s.Target
		s.Target = &t
	}
	s.Items = append([]Item(nil), s.Items...)
	return s
}

func (b *Board) set(s State) {
	b.mu.Lock()
	s.Seq = b.state.Seq + 1
	b.state = s
	b.mu.Unlock()
}

// ShowTarget places a calibration target.
func (b *Board) ShowTarget(x, y float64, remaining int) error {
	b.set(State{Scene: SceneCalibration, Target: &Target{X: x, Y: y, Remaining: remaining}})
	return nil
}

// ClearTarget removes the calibration overlay.
func (b *Board) ClearTarget() error {
	b.set(State{Scene: SceneBlank})
	return nil
}

// ShowSample centres the sample stimulus.
func (b *Board) ShowSample(c models.Category, id models.StimulusID) error {
	b.set(State{Scene: SceneSample, Items: []Item{{
		Position: models.PositionCenter,
		URL:      b.urls.URL(c, id),
	}}})
	return nil
}

// ShowMask blanks the screen to black between sample and test array.
func (b *Board) ShowMask() error {
	b.set(State{Scene: SceneMask})
	return nil
}

// ShowArray lays out the test array. Which slot holds the target is not
// part of the board.
func (b *Board) ShowArray(c models.Category, slots []models.Slot) error {
	items := make([]Item, 0, len(slots))
	for _, s := range slots {
		items = append(items, Item{
			Position: s.Position,
			OffsetX:  s.Position.Offset(),
			URL:      b.urls.URL(c, s.Stimulus),
		})
	}
	b.set(State{Scene: SceneArray, Items: items})
	return nil
}

// Clear removes every stimulus.
func (b *Board) Clear() error {
	b.set(State{Scene: SceneBlank})
	return nil
}

// Finish shows the end-of-session message.
func (b *Board) Finish(message string) {
	b.set(State{Scene: SceneFinished, Message: message})
}

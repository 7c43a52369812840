package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// StimulusID identifies a stimulus image within a category, 1-based.
type StimulusID int

// Category is the stimulus set a session draws from. Each category has its
// own identifier space and its own exclusion table.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryAbstract
	CategoryShapes
	CategoryColors
	CategoryPictures
)

// Categories lists every selectable category in intake order.
var Categories = []Category{CategoryShapes, CategoryColors, CategoryAbstract, CategoryPictures}

func (c Category) String() string {
	switch c {
	case CategoryAbstract:
		return "Abstract"
	case CategoryShapes:
		return "Shapes"
	case CategoryColors:
		return "Colors"
	case CategoryPictures:
		return "Pictures"
	default:
		return "Unknown"
	}
}

// Total returns the number of stimuli available in the category.
func (c Category) Total() int {
	switch c {
	case CategoryAbstract:
		return 403
	case CategoryShapes:
		return 193
	case CategoryColors:
		return 10
	case CategoryPictures:
		return 10
	default:
		return 0
	}
}

// Valid reports whether id falls inside the category's identifier space.
func (c Category) Valid(id StimulusID) bool {
	return id >= 1 && int(id) <= c.Total()
}

// ParseCategory maps a category name (case-insensitive) to its enum value.
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if strings.EqualFold(strings.TrimSpace(s), c.String()) {
			return c, nil
		}
	}
	return CategoryUnknown, fmt.Errorf("unknown category %q", s)
}

func (c Category) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Category) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseCategory(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// TrialKind selects the test array layout.
type TrialKind int

const (
	// KindOddball shows the target next to two copies of one foil.
	KindOddball TrialKind = 1
	// KindDistinct shows the target next to two different foils.
	KindDistinct TrialKind = 2
)

func (k TrialKind) Valid() bool {
	return k == KindOddball || k == KindDistinct
}

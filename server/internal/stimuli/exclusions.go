package stimuli

import (
	"fmt"
	"os"

	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/models"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// ExclusionTable maps a stimulus to the stimuli too similar to it to serve as
// its foils. Entries are expected, not required, to be symmetric.
type ExclusionTable map[models.StimulusID][]models.StimulusID

// Exclusions holds one table per category.
type Exclusions struct {
	abstract ExclusionTable
	shapes   ExclusionTable
	colors   ExclusionTable
	pictures ExclusionTable
}

// ExclusionLoadError describes a table that could not be loaded. It is
// logged, never returned past LoadExclusions.
type ExclusionLoadError struct {
	Path     string
	Category string
	Err      error
}

func (e *ExclusionLoadError) Error() string {
	if e.Category == "" {
		return fmt.Sprintf("exclusions %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("exclusions %s [%s]: %v", e.Path, e.Category, e.Err)
}

func (e *ExclusionLoadError) Unwrap() error { return e.Err }

func (e *Exclusions) slot(c models.Category) *ExclusionTable {
	switch c {
	case models.CategoryAbstract:
		return &e.abstract
	case models.CategoryShapes:
		return &e.shapes
	case models.CategoryColors:
		return &e.colors
	case models.CategoryPictures:
		return &e.pictures
	default:
		return nil
	}
}

// Set installs the table for a category.
func (e *Exclusions) Set(c models.Category, t ExclusionTable) {
	if s := e.slot(c); s != nil {
		*s = t
	}
}

// Table returns the category's table, nil when none is loaded.
func (e *Exclusions) Table(c models.Category) ExclusionTable {
	if e == nil {
		return nil
	}
	if s := e.slot(c); s != nil {
		return *s
	}
	return nil
}

// ExcludedFoilsFor returns the stimuli that may not be shown as foils next to
// stimulus, limited to the category's identifier space.
func (e *Exclusions) ExcludedFoilsFor(stimulus models.StimulusID, c models.Category) []models.StimulusID {
	entry := e.Table(c)[stimulus]
	if len(entry) == 0 {
		return nil
	}
	out := make([]models.StimulusID, 0, len(entry))
	for _, id := range entry {
		if int(id) <= c.Total() {
			out = append(out, id)
		}
	}
	return out
}

// LoadExclusions reads per-category tables from a YAML file of the form
//
//	Shapes:
//	  3: [4, 5]
//
// A missing file, an unknown category or a malformed table leaves the
// affected categories empty and logs the failure, so sampling can proceed
// unconstrained.
func LoadExclusions(path string, log *zap.Logger) *Exclusions {
	ex := &Exclusions{}

	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn("Exclusion tables unavailable, sampling unconstrained", zap.Error(&ExclusionLoadError{Path: path, Err: err}))
		return ex
	}

	var raw map[string]yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		log.Warn("Exclusion tables unreadable, sampling unconstrained", zap.Error(&ExclusionLoadError{Path: path, Err: err}))
		return ex
	}

	for name, node := range raw {
		category, err := models.ParseCategory(name)
		if err != nil {
			log.Warn("Skipping exclusion table", zap.Error(&ExclusionLoadError{Path: path, Category: name, Err: err}))
			continue
		}
		var entries map[int][]int
		if err := node.Decode(&entries); err != nil {
			log.Warn("Exclusion table malformed, category unconstrained", zap.Error(&ExclusionLoadError{Path: path, Category: name, Err: err}))
			continue
		}
		ex.Set(category, toTable(category, entries, log))
	}

	for _, c := range models.Categories {
		log.Debug("Exclusion table ready", zap.Stringer("category", c), zap.Int("entries", len(ex.Table(c))))
	}
	return ex
}

func toTable(c models.Category, entries map[int][]int, log *zap.Logger) ExclusionTable {
	table := make(ExclusionTable, len(entries))
	outOfRange := 0
	for k, vs := range entries {
		ids := make([]models.StimulusID, 0, len(vs))
		for _, v := range vs {
			if !c.Valid(models.StimulusID(v)) {
				outOfRange++
			}
			ids = append(ids, models.StimulusID(v))
		}
		table[models.StimulusID(k)] = ids
	}
	if outOfRange > 0 {
		// Kept in the table; ExcludedFoilsFor filters them at lookup.
		log.Warn("Exclusion table references stimuli outside the category",
			zap.Stringer("category", c), zap.Int("count", outOfRange))
	}
	return table
}

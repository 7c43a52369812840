package stimuli

import (
	"errors"
	"fmt"
	"math/rand"
	"slices"

	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/metrics"
	"github.com/mrhunsaker/GAZE-TRACKING/server/internal/models"

	"go.uber.org/zap"
)

// ErrSamplingExhausted marks a foil draw that could not honour its
// constraints. It is logged and recovered with an unconstrained draw.
var ErrSamplingExhausted = errors.New("no admissible stimulus")

// Mode selects how PickForeign searches for an admissible stimulus.
type Mode string

const (
	// ModeFilter draws uniformly from the admissible set.
	ModeFilter Mode = "filter"
	// ModeRetry redraws from the whole range up to the retry limit.
	ModeRetry Mode = "retry"
)

// Sampler draws stimuli for trials. It is not safe for concurrent use; each
// session owns its own sampler.
type Sampler struct {
	rng        *rand.Rand
	exclusions *Exclusions
	mode       Mode
	retryLimit int
	log        *zap.Logger
}

// NewSampler returns a sampler over the given exclusion tables. A nil
// exclusions value samples unconstrained.
func NewSampler(rng *rand.Rand, exclusions *Exclusions, mode Mode, retryLimit int, log *zap.Logger) *Sampler {
	if retryLimit <= 0 {
		retryLimit = 100
	}
	if mode == "" {
		mode = ModeFilter
	}
	return &Sampler{rng: rng, exclusions: exclusions, mode: mode, retryLimit: retryLimit, log: log}
}

// PickTarget draws a target uniformly from the whole category.
func (s *Sampler) PickTarget(c models.Category) models.StimulusID {
	return models.StimulusID(s.rng.Intn(c.Total()) + 1)
}

// PickForeign draws a stimulus not in exclude. When no admissible stimulus
// can be found it logs a warning and returns an unconstrained draw.
func (s *Sampler) PickForeign(exclude []models.StimulusID, c models.Category) models.StimulusID {
	var (
		id  models.StimulusID
		err error
	)
	if s.mode == ModeRetry {
		id, err = s.retry(exclude, c)
	} else {
		id, err = s.filter(exclude, c)
	}
	if err != nil {
		metrics.SamplingFallbacks.WithLabelValues(c.String()).Inc()
		s.log.Warn("Foil constraints could not be met, using unconstrained draw",
			zap.Error(err),
			zap.Stringer("category", c),
			zap.Int("excluded", len(exclude)),
			zap.Int("chosen", int(id)),
		)
	}
	return id
}

func (s *Sampler) filter(exclude []models.StimulusID, c models.Category) (models.StimulusID, error) {
	total := c.Total()
	admissible := make([]models.StimulusID, 0, total)
	for i := 1; i <= total; i++ {
		if !slices.Contains(exclude, models.StimulusID(i)) {
			admissible = append(admissible, models.StimulusID(i))
		}
	}
	if len(admissible) == 0 {
		return s.PickTarget(c), ErrSamplingExhausted
	}
	return admissible[s.rng.Intn(len(admissible))], nil
}

func (s *Sampler) retry(exclude []models.StimulusID, c models.Category) (models.StimulusID, error) {
	var id models.StimulusID
	for attempt := 1; attempt <= s.retryLimit; attempt++ {
		id = s.PickTarget(c)
		if !slices.Contains(exclude, id) {
			return id, nil
		}
	}
	return id, fmt.Errorf("%w after %d attempts", ErrSamplingExhausted, s.retryLimit)
}

// Composition is the stimulus content of one trial.
type Composition struct {
	Target models.StimulusID
	Foils  []models.StimulusID
	Slots  []models.Slot
}

// Compose draws a target and its foils for a trial of the given kind and
// shuffles them into the three test array slots.
//
// Foils are filtered against the target's exclusion entry only; a foil's own
// entry is not consulted.
func (s *Sampler) Compose(kind models.TrialKind, c models.Category) (Composition, error) {
	if c.Total() == 0 {
		return Composition{}, fmt.Errorf("category %s has no stimuli", c)
	}
	return s.ComposeAround(kind, c, s.PickTarget(c))
}

// ComposeAround is Compose with a fixed target.
func (s *Sampler) ComposeAround(kind models.TrialKind, c models.Category, target models.StimulusID) (Composition, error) {
	if !kind.Valid() {
		return Composition{}, fmt.Errorf("unknown trial kind %d", kind)
	}
	if !c.Valid(target) {
		return Composition{}, fmt.Errorf("target %d outside category %s", target, c)
	}

	exclude := append([]models.StimulusID{target}, s.exclusions.ExcludedFoilsFor(target, c)...)

	comp := Composition{Target: target}
	first := s.PickForeign(exclude, c)
	if kind == models.KindOddball {
		comp.Foils = []models.StimulusID{first}
		comp.Slots = s.arrange(target, first, first)
		return comp, nil
	}

	second := s.PickForeign(append(exclude, first), c)
	comp.Foils = []models.StimulusID{first, second}
	comp.Slots = s.arrange(target, first, second)
	return comp, nil
}

// arrange shuffles the target and two foils into left, center and right.
func (s *Sampler) arrange(target, foilA, foilB models.StimulusID) []models.Slot {
	items := []models.Slot{
		{Stimulus: target, IsTarget: true},
		{Stimulus: foilA},
		{Stimulus: foilB},
	}
	s.rng.Shuffle(len(items), func(i, j int) {
		items[i], items[j] = items[j], items[i]
	})
	for i := range items {
		items[i].Position = models.Positions[i]
	}
	return items
}

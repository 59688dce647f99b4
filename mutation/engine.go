// Package mutation perturbs organism traits within declared bounds and logs every change.
package mutation

import (
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/pthm-cable/blockorganism/block"
	"github.com/pthm-cable/blockorganism/config"
	"github.com/pthm-cable/blockorganism/seed"
	"github.com/pthm-cable/blockorganism/telemetry"
	"github.com/pthm-cable/blockorganism/traits"
)

// Purpose stream labels used during generation.
const (
	StreamTraits   = "traits"
	StreamVisual   = "visual"
	StreamMutation = "mutation"
)

// Rule declares how one trait mutates.
type Rule struct {
	Name      string
	Category  string
	Algorithm Algorithm
	Min, Max  float64
}

// Validate checks a rule before it enters the table.
func (r Rule) Validate() error {
	if !traits.Known(r.Name) {
		return fmt.Errorf("%w: no trait named %q", ErrInvalidRule, r.Name)
	}
	if r.Category == "" {
		return fmt.Errorf("%w: %s: empty category", ErrInvalidRule, r.Name)
	}
	if traits.IsColor(r.Name) != (r.Algorithm == Color) {
		return fmt.Errorf("%w: %s: algorithm %q does not match trait kind", ErrInvalidRule, r.Name, r.Algorithm)
	}
	if r.Algorithm != Color && !r.Algorithm.Valid() {
		return fmt.Errorf("%w: %s: %v", ErrInvalidRule, r.Name, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, r.Algorithm))
	}
	if r.Min > r.Max {
		return fmt.Errorf("%w: %s: min %v > max %v", ErrInvalidRule, r.Name, r.Min, r.Max)
	}
	// Integer traits round after clamping, so fractional bounds could be crossed.
	if traits.IsInteger(r.Name) && (r.Min != math.Trunc(r.Min) || r.Max != math.Trunc(r.Max)) {
		return fmt.Errorf("%w: %s: bounds [%v, %v] must be whole numbers", ErrInvalidRule, r.Name, r.Min, r.Max)
	}
	return nil
}

// Event identifies the block a mutation is attributed to.
type Event struct {
	BlockNumber int64
	Timestamp   time.Time
}

// EventFor returns the mutation event for a block header.
func EventFor(h block.Header) Event {
	return Event{BlockNumber: h.Height, Timestamp: h.Timestamp()}
}

// Engine applies bounded mutations to organism traits.
type Engine struct {
	rules []Rule
	index map[string]int
	tiers []config.IntensityTier

	paletteChance float64
	channelSpread float64

	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics attaches metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New builds an engine from configuration. The whole rule table is validated
// before any of it is installed.
func New(cfg config.MutationConfig, opts ...Option) (*Engine, error) {
	rules := make([]Rule, 0, len(cfg.Traits))
	index := make(map[string]int, len(cfg.Traits))
	for _, tc := range cfg.Traits {
		r := Rule{
			Name:      tc.Name,
			Category:  tc.Category,
			Algorithm: Algorithm(tc.Algorithm),
			Min:       tc.Min,
			Max:       tc.Max,
		}
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if _, dup := index[r.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate trait %q", ErrInvalidRule, r.Name)
		}
		index[r.Name] = len(rules)
		rules = append(rules, r)
	}
	if len(cfg.Tiers) == 0 {
		return nil, fmt.Errorf("%w: no intensity tiers", ErrInvalidRule)
	}

	e := &Engine{
		rules:         rules,
		index:         index,
		tiers:         cfg.Tiers,
		paletteChance: cfg.PaletteChance,
		channelSpread: cfg.ChannelSpread,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Rules returns the rule table in declaration order.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Rule returns the rule for a trait.
func (e *Engine) Rule(name string) (Rule, bool) {
	i, ok := e.index[name]
	if !ok {
		return Rule{}, false
	}
	return e.rules[i], true
}

// SetRule installs or replaces a rule after validating it.
func (e *Engine) SetRule(r Rule) error {
	if err := r.Validate(); err != nil {
		return err
	}
	if i, ok := e.index[r.Name]; ok {
		e.rules[i] = r
		return nil
	}
	e.index[r.Name] = len(e.rules)
	e.rules = append(e.rules, r)
	return nil
}

// Tier returns the intensity tier for a difficulty figure.
func (e *Engine) Tier(difficulty float64) config.IntensityTier {
	for _, t := range e.tiers {
		if t.MaxDifficulty <= 0 || difficulty < t.MaxDifficulty {
			return t
		}
	}
	return e.tiers[len(e.tiers)-1]
}

// Intensity returns the mutation intensity multiplier for a difficulty figure.
func (e *Engine) Intensity(difficulty float64) float64 {
	return e.Tier(difficulty).Multiplier
}

// Mutate perturbs one trait of org and appends a record to its history.
// Unknown traits and algorithms leave org untouched and return the current value with an error.
func (e *Engine) Mutate(org *traits.OrganismTraits, name string, intensity float64, ev Event, src seed.Source) (traits.Value, error) {
	current, known := org.Get(name)
	rule, ok := e.Rule(name)
	if !ok || !known {
		e.warn("unknown_trait", name, rule.Algorithm)
		return current, fmt.Errorf("%w: %q", ErrUnknownTrait, name)
	}

	var next traits.Value
	if rule.Algorithm == Color {
		palette, _ := traits.PaletteByName(org.Visual.Palette)
		next = traits.ColorValue(MutateColor(current.Color, palette, intensity, e.paletteChance, e.channelSpread, src))
	} else {
		v, err := Apply(rule.Algorithm, current.Number, intensity, rule.Min, rule.Max, src)
		if err != nil {
			e.warn("unknown_algorithm", name, rule.Algorithm)
			return current, err
		}
		next = traits.Number(v)
	}

	org.Set(name, next)
	// Re-read so integer traits record the rounded value
	stored, _ := org.Get(name)
	org.AppendRecord(traits.MutationRecord{
		Timestamp:   ev.Timestamp,
		BlockNumber: ev.BlockNumber,
		Category:    rule.Category,
		TraitName:   name,
		Previous:    current,
		Next:        stored,
		Strength:    intensity,
	})
	e.metrics.Mutation(rule.Category)
	return stored, nil
}

func (e *Engine) warn(reason, name string, alg Algorithm) {
	e.metrics.MutationWarning(reason)
	e.logger.Warn("mutation skipped",
		"reason", reason,
		"trait", name,
		"algorithm", string(alg),
	)
}

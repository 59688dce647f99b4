// Package traits defines organism characteristics and their mutation log.
package traits

import (
	"github.com/google/uuid"
)

// Category groups traits.
const (
	CategoryVisual       = "visual"
	CategoryBehavioral   = "behavioral"
	CategoryPhysical     = "physical"
	CategoryEvolutionary = "evolutionary"
)

// Trait names.
const (
	PrimaryColor   = "visual.primary_color"
	SecondaryColor = "visual.secondary_color"
	Size           = "visual.size"
	Opacity        = "visual.opacity"
	GlowIntensity  = "visual.glow_intensity"
	ParticleCount  = "visual.particle_count"

	Speed       = "behavioral.speed"
	Aggression  = "behavioral.aggression"
	Sociability = "behavioral.sociability"
	Curiosity   = "behavioral.curiosity"

	Mass       = "physical.mass"
	Density    = "physical.density"
	Elasticity = "physical.elasticity"
	Friction   = "physical.friction"

	MutationRate = "evolutionary.mutation_rate"
	Adaptability = "evolutionary.adaptability"
)

// Visual traits drive rendering.
type Visual struct {
	PrimaryColor   Color
	SecondaryColor Color
	Palette        string
	Size           float64
	Opacity        float64
	GlowIntensity  float64
	ParticleCount  int
	Formation      string
}

// Behavioral traits drive movement.
type Behavioral struct {
	Speed       float64
	Aggression  float64
	Sociability float64
	Curiosity   float64
}

// Physical traits drive particle kinematics.
type Physical struct {
	Mass       float64
	Density    float64
	Elasticity float64
	Friction   float64
}

// Evolutionary traits drive later mutation events.
type Evolutionary struct {
	MutationRate float64
	Adaptability float64
	Generation   int
	Fitness      float64
	LastBlock    int64 // Most recent block that mutated the organism
}

// OrganismTraits is the full trait snapshot of one organism.
type OrganismTraits struct {
	OrganismID  string
	BlockNumber int64
	Seed        uint32

	Visual       Visual
	Behavioral   Behavioral
	Physical     Physical
	Evolutionary Evolutionary

	history []MutationRecord
}

// organismNamespace scopes organism ids so they never collide with other v5 uuids.
var organismNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("blockorganism"))

// OrganismID returns the deterministic id for the organism born from blockHash.
func OrganismID(blockHash string) string {
	return uuid.NewSHA1(organismNamespace, []byte(blockHash)).String()
}

// New creates an empty trait set for an organism.
func New(id string, blockNumber int64, seed uint32) *OrganismTraits {
	return &OrganismTraits{
		OrganismID:   id,
		BlockNumber:  blockNumber,
		Seed:         seed,
		Evolutionary: Evolutionary{LastBlock: blockNumber},
	}
}

// Get returns the current value of a named trait.
func (o *OrganismTraits) Get(name string) (Value, bool) {
	switch name {
	case PrimaryColor:
		return ColorValue(o.Visual.PrimaryColor), true
	case SecondaryColor:
		return ColorValue(o.Visual.SecondaryColor), true
	case ParticleCount:
		return Number(float64(o.Visual.ParticleCount)), true
	}
	if p := o.number(name); p != nil {
		return Number(*p), true
	}
	return Value{}, false
}

// Set replaces a named trait. Returns false for unknown names or mismatched kinds.
func (o *OrganismTraits) Set(name string, v Value) bool {
	switch name {
	case PrimaryColor, SecondaryColor:
		if v.Kind != KindColor {
			return false
		}
		if name == PrimaryColor {
			o.Visual.PrimaryColor = v.Color
		} else {
			o.Visual.SecondaryColor = v.Color
		}
		return true
	case ParticleCount:
		if v.Kind != KindNumber {
			return false
		}
		o.Visual.ParticleCount = int(v.Number + 0.5)
		return true
	}
	p := o.number(name)
	if p == nil || v.Kind != KindNumber {
		return false
	}
	*p = v.Number
	return true
}

func (o *OrganismTraits) number(name string) *float64 {
	switch name {
	case Size:
		return &o.Visual.Size
	case Opacity:
		return &o.Visual.Opacity
	case GlowIntensity:
		return &o.Visual.GlowIntensity
	case Speed:
		return &o.Behavioral.Speed
	case Aggression:
		return &o.Behavioral.Aggression
	case Sociability:
		return &o.Behavioral.Sociability
	case Curiosity:
		return &o.Behavioral.Curiosity
	case Mass:
		return &o.Physical.Mass
	case Density:
		return &o.Physical.Density
	case Elasticity:
		return &o.Physical.Elasticity
	case Friction:
		return &o.Physical.Friction
	case MutationRate:
		return &o.Evolutionary.MutationRate
	case Adaptability:
		return &o.Evolutionary.Adaptability
	}
	return nil
}

// Known reports whether name is a trait the organism carries.
func Known(name string) bool {
	var probe OrganismTraits
	_, ok := probe.Get(name)
	return ok
}

// IsColor reports whether name is a color trait.
func IsColor(name string) bool {
	return name == PrimaryColor || name == SecondaryColor
}

// IsInteger reports whether name is a trait stored as a whole number.
func IsInteger(name string) bool {
	return name == ParticleCount
}

// SpeedCeiling is the top of the default behavioral.speed range. The other
// behavioral traits already lie in [0, 1].
const SpeedCeiling = 5.0

// UpdateFitness recomputes fitness as the mean of the behavioral traits, with
// speed first divided by SpeedCeiling so each term weighs the same.
func (o *OrganismTraits) UpdateFitness() {
	b := o.Behavioral
	o.Evolutionary.Fitness = (b.Speed/SpeedCeiling + b.Aggression + b.Sociability + b.Curiosity) / 4
}

// AppendRecord adds a mutation to the history. Records are never rewritten.
func (o *OrganismTraits) AppendRecord(r MutationRecord) {
	o.history = append(o.history, r)
}

// History returns a copy of the mutation history in append order.
func (o *OrganismTraits) History() []MutationRecord {
	out := make([]MutationRecord, len(o.history))
	copy(out, o.history)
	return out
}

// HistoryLen returns the number of recorded mutations.
func (o *OrganismTraits) HistoryLen() int {
	return len(o.history)
}

// Snapshot returns a deep copy safe to hand to readers outside the engine.
func (o *OrganismTraits) Snapshot() *OrganismTraits {
	cp := *o
	cp.history = o.History()
	return &cp
}

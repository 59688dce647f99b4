// Package particles manages a fixed-capacity particle pool with O(1) spawn and recycle.
package particles

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/blockorganism/config"
	"github.com/pthm-cable/blockorganism/telemetry"
	"github.com/pthm-cable/blockorganism/traits"
)

// InvalidID is returned by Spawn when no particle was created.
const InvalidID = -1

// Recycle reasons.
const (
	ReasonExpired = "expired"
	ReasonRemoved = "removed"
)

var (
	// ErrPoolExhausted is returned when every slot is active.
	ErrPoolExhausted = errors.New("particle pool exhausted")
	// ErrInvalidSpawn is returned for non-positive or non-finite lifetime, size or mass.
	ErrInvalidSpawn = errors.New("invalid spawn parameters")
	// ErrInvalidID is returned for ids outside the pool.
	ErrInvalidID = errors.New("invalid particle id")
	// ErrNotOwned is returned when removing a particle that is free or belongs to another system.
	ErrNotOwned = errors.New("particle not active in system")
)

// Particle is one pooled record. Slots are reused; ID is the slot index.
type Particle struct {
	ID           int
	SystemID     string
	Position     r3.Vec
	Velocity     r3.Vec
	Acceleration r3.Vec
	Mass         float64
	Radius       float64
	Lifetime     float64
	Age          float64
	Color        traits.Color
	Active       bool
}

// Speed returns the velocity magnitude.
func (p *Particle) Speed() float64 {
	return r3.Norm(p.Velocity)
}

// SpawnParams describes a new particle.
type SpawnParams struct {
	Position r3.Vec
	Velocity r3.Vec
	Lifetime float64 // Seconds
	Size     float64 // Radius
	Mass     float64 // 0 means 1
	Color    traits.Color
}

func (sp SpawnParams) validate() error {
	bad := func(v float64) bool { return v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) }
	switch {
	case bad(sp.Lifetime):
		return fmt.Errorf("%w: lifetime %v", ErrInvalidSpawn, sp.Lifetime)
	case bad(sp.Size):
		return fmt.Errorf("%w: size %v", ErrInvalidSpawn, sp.Size)
	case sp.Mass != 0 && bad(sp.Mass):
		return fmt.Errorf("%w: mass %v", ErrInvalidSpawn, sp.Mass)
	}
	return nil
}

// Pool is an array-backed particle allocator. Free slots live on a stack so
// spawn and recycle never allocate.
type Pool struct {
	particles []Particle
	free      []int // Top of stack is the last element
	active    int

	gravity     r3.Vec
	damping     float64
	restitution float64
	separation  float64
	collisions  bool

	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// Option configures a Pool.
type Option func(*Pool)

// WithLogger sets the pool logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) { p.logger = l }
}

// WithMetrics attaches metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(p *Pool) { p.metrics = m }
}

// New creates a pool with every slot free. Slot 0 is handed out first.
func New(cfg config.PoolConfig, opts ...Option) (*Pool, error) {
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("pool capacity must be positive, got %d", cfg.Capacity)
	}
	var g [3]float64
	copy(g[:], cfg.Gravity)

	p := &Pool{
		particles:   make([]Particle, cfg.Capacity),
		free:        make([]int, 0, cfg.Capacity),
		gravity:     r3.Vec{X: g[0], Y: g[1], Z: g[2]},
		damping:     cfg.Damping,
		restitution: cfg.Restitution,
		separation:  cfg.SeparationPercent,
		collisions:  cfg.Collisions,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	for i := range p.particles {
		p.particles[i].ID = i
	}
	p.rebuildFree()
	return p, nil
}

// Spawn takes a free slot for systemID. On failure it returns InvalidID and
// leaves the pool unchanged.
func (p *Pool) Spawn(systemID string, sp SpawnParams) (int, error) {
	if err := sp.validate(); err != nil {
		return InvalidID, err
	}
	if len(p.free) == 0 {
		p.metrics.SpawnFailed()
		return InvalidID, fmt.Errorf("%w: capacity %d", ErrPoolExhausted, len(p.particles))
	}

	id := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]

	mass := sp.Mass
	if mass == 0 {
		mass = 1
	}
	p.particles[id] = Particle{
		ID:           id,
		SystemID:     systemID,
		Position:     sp.Position,
		Velocity:     sp.Velocity,
		Acceleration: p.gravity,
		Mass:         mass,
		Radius:       sp.Size,
		Lifetime:     sp.Lifetime,
		Color:        sp.Color,
		Active:       true,
	}
	p.active++

	p.metrics.Spawned()
	p.metrics.SetActive(p.active)
	return id, nil
}

// Remove recycles one particle early.
func (p *Pool) Remove(systemID string, id int) error {
	if id < 0 || id >= len(p.particles) {
		return fmt.Errorf("%w: %d", ErrInvalidID, id)
	}
	pt := &p.particles[id]
	if !pt.Active || pt.SystemID != systemID {
		return fmt.Errorf("%w: %d in %q", ErrNotOwned, id, systemID)
	}
	p.release(id)
	p.metrics.Recycled(ReasonRemoved, 1)
	p.metrics.SetActive(p.active)
	return nil
}

// Place moves an active particle owned by systemID and stops it.
func (p *Pool) Place(systemID string, id int, pos r3.Vec) error {
	if id < 0 || id >= len(p.particles) {
		return fmt.Errorf("%w: %d", ErrInvalidID, id)
	}
	pt := &p.particles[id]
	if !pt.Active || pt.SystemID != systemID {
		return fmt.Errorf("%w: %d in %q", ErrNotOwned, id, systemID)
	}
	pt.Position = pos
	pt.Velocity = r3.Vec{}
	return nil
}

// Owned reports whether slot id is active and belongs to systemID.
func (p *Pool) Owned(systemID string, id int) bool {
	return id >= 0 && id < len(p.particles) && p.particles[id].Active && p.particles[id].SystemID == systemID
}

// RemoveMany recycles each id owned by systemID. Ids that are invalid, free or
// owned by another system are skipped.
func (p *Pool) RemoveMany(systemID string, ids []int) (removed, skipped int) {
	for _, id := range ids {
		if id < 0 || id >= len(p.particles) {
			skipped++
			continue
		}
		pt := &p.particles[id]
		if !pt.Active || pt.SystemID != systemID {
			skipped++
			continue
		}
		p.release(id)
		removed++
	}
	p.metrics.Recycled(ReasonRemoved, removed)
	p.metrics.SetActive(p.active)
	return removed, skipped
}

// RemoveSystem recycles every active particle owned by systemID.
func (p *Pool) RemoveSystem(systemID string) int {
	removed := 0
	for i := range p.particles {
		if p.particles[i].Active && p.particles[i].SystemID == systemID {
			p.release(i)
			removed++
		}
	}
	p.metrics.Recycled(ReasonRemoved, removed)
	p.metrics.SetActive(p.active)
	return removed
}

// Get returns a copy of the particle in slot id.
func (p *Pool) Get(id int) (Particle, bool) {
	if id < 0 || id >= len(p.particles) {
		return Particle{}, false
	}
	return p.particles[id], true
}

// Active calls fn for each active particle in slot order until fn returns false.
func (p *Pool) Active(fn func(Particle) bool) {
	for i := range p.particles {
		if p.particles[i].Active && !fn(p.particles[i]) {
			return
		}
	}
}

// ActiveCount returns the number of active particles.
func (p *Pool) ActiveCount() int { return p.active }

// FreeCount returns the number of free slots.
func (p *Pool) FreeCount() int { return len(p.free) }

// Capacity returns the total slot count.
func (p *Pool) Capacity() int { return len(p.particles) }

// Sample captures the pool's current occupancy and motion for telemetry.
func (p *Pool) Sample() telemetry.PoolSample {
	s := telemetry.PoolSample{
		Active:   p.active,
		Free:     len(p.free),
		Capacity: len(p.particles),
		Speeds:   make([]float64, 0, p.active),
		AgeFracs: make([]float64, 0, p.active),
	}
	for i := range p.particles {
		pt := &p.particles[i]
		if !pt.Active {
			continue
		}
		s.Speeds = append(s.Speeds, pt.Speed())
		s.AgeFracs = append(s.AgeFracs, pt.Age/pt.Lifetime)
	}
	return s
}

// Clear recycles every particle.
func (p *Pool) Clear() {
	for i := range p.particles {
		p.particles[i] = Particle{ID: i}
	}
	p.active = 0
	p.rebuildFree()
	p.metrics.SetActive(0)
}

func (p *Pool) release(id int) {
	p.particles[id] = Particle{ID: id}
	p.free = append(p.free, id)
	p.active--
}

// rebuildFree pushes inactive slots highest first, so the lowest slot is on top.
func (p *Pool) rebuildFree() {
	p.free = p.free[:0]
	for i := len(p.particles) - 1; i >= 0; i-- {
		if !p.particles[i].Active {
			p.free = append(p.free, i)
		}
	}
}

// Package organism turns block headers into seeded organisms and drives their particles.
package organism

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/blockorganism/block"
	"github.com/pthm-cable/blockorganism/config"
	"github.com/pthm-cable/blockorganism/formation"
	"github.com/pthm-cable/blockorganism/mutation"
	"github.com/pthm-cable/blockorganism/particles"
	"github.com/pthm-cable/blockorganism/seed"
	"github.com/pthm-cable/blockorganism/telemetry"
	"github.com/pthm-cable/blockorganism/traits"
)

// StreamFormation labels the purpose stream that picks an organism's formation.
const StreamFormation = "formation"

// Particle sizing relative to the organism's visual size.
const (
	particleRadius = 0.1
	driftScale     = 0.05 // Initial outward speed per unit of behavioral speed
)

var (
	// ErrDisposed is returned by every operation after Dispose.
	ErrDisposed = errors.New("engine disposed")
	// ErrOrganismNotFound is returned for ids the engine never generated or already despawned.
	ErrOrganismNotFound = errors.New("organism not found")
)

// ReasonDisposed marks a Reform refused because the engine was disposed.
const ReasonDisposed = "disposed"

// Organism is a generated organism bound to its particles.
type Organism struct {
	Traits      *traits.OrganismTraits
	Header      block.Header
	Seed        uint32
	Pattern     string
	Positions   []r3.Vec
	ParticleIDs []int
}

// ID returns the organism id, which is also its particle system id.
func (o *Organism) ID() string { return o.Traits.OrganismID }

// Engine owns one instance of each component and runs the generation pipeline.
type Engine struct {
	cfg *config.Config

	stream  *seed.Stream
	mutator *mutation.Engine
	catalog *formation.Catalog
	pool    *particles.Pool

	shapes    []string // Built-in formations, sorted
	organisms map[string]*Organism
	order     []string // Organism ids in generation order

	tick          int32
	dt            float64
	perf          *telemetry.PerfCollector
	collector     *telemetry.Collector
	output        *telemetry.OutputManager
	metrics       *telemetry.Metrics
	logger        *slog.Logger
	logStats      bool
	statsCallback func(telemetry.WindowStats)

	disposed bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger shared by every component.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics attaches metrics shared by every component.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithOutput sends mutation history and window stats to om. The caller closes it.
func WithOutput(om *telemetry.OutputManager) Option {
	return func(e *Engine) { e.output = om }
}

// WithLogStats logs window and perf stats on every flush.
func WithLogStats(enabled bool) Option {
	return func(e *Engine) { e.logStats = enabled }
}

// WithStatsCallback is called with every flushed stats window.
func WithStatsCallback(fn func(telemetry.WindowStats)) Option {
	return func(e *Engine) { e.statsCallback = fn }
}

// WithTickDuration sets the nominal seconds per tick used to size stats windows.
func WithTickDuration(dt float64) Option {
	return func(e *Engine) { e.dt = dt }
}

// New builds an engine and its components from cfg.
func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg:       cfg,
		organisms: make(map[string]*Organism),
		dt:        1.0 / 60.0,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}

	var err error
	e.mutator, err = mutation.New(cfg.Mutation, mutation.WithLogger(e.logger), mutation.WithMetrics(e.metrics))
	if err != nil {
		return nil, fmt.Errorf("mutation engine: %w", err)
	}
	e.catalog, err = formation.New(cfg.Formation, formation.WithLogger(e.logger), formation.WithMetrics(e.metrics))
	if err != nil {
		return nil, fmt.Errorf("formation catalog: %w", err)
	}
	e.pool, err = particles.New(cfg.Pool, particles.WithLogger(e.logger), particles.WithMetrics(e.metrics))
	if err != nil {
		return nil, fmt.Errorf("particle pool: %w", err)
	}
	e.stream = seed.New(cfg.Seed.DefaultSeed, cfg.Seed.MaxChainLength)

	for name := range cfg.Formation.Shapes {
		e.shapes = append(e.shapes, name)
	}
	sort.Strings(e.shapes)
	if len(e.shapes) == 0 {
		return nil, fmt.Errorf("formation catalog: no built-in shapes configured")
	}

	e.perf = telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow)
	e.collector = telemetry.NewCollector(cfg.Telemetry.StatsWindow, e.dt)
	return e, nil
}

// Initialize resets the engine to a fresh state seeded from header.
func (e *Engine) Initialize(header block.Header) error {
	if err := header.Validate(); err != nil {
		return err
	}
	e.reset()
	e.stream.Initialize(header.Seed())
	e.disposed = false
	e.logger.Info("engine initialized", "block", header.Height, "seed", header.Seed())
	return nil
}

// Dispose releases every particle and cached layout. The engine rejects further
// work until Initialize is called.
func (e *Engine) Dispose() {
	if e.disposed {
		return
	}
	e.reset()
	e.disposed = true
	e.logger.Info("engine disposed")
}

func (e *Engine) reset() {
	e.pool.Clear()
	e.catalog.Clear()
	e.organisms = make(map[string]*Organism)
	e.order = nil
	e.tick = 0
}

// Generate resolves the header at height from src, then generates its organism.
// The lookup is the only blocking step and happens before any state changes.
func (e *Engine) Generate(ctx context.Context, src block.Source, height int64) (*Organism, error) {
	if e.disposed {
		return nil, ErrDisposed
	}
	header, err := src.Header(ctx, height)
	if err != nil {
		return nil, fmt.Errorf("resolve block %d: %w", height, err)
	}
	return e.GenerateFromHeader(header)
}

// GenerateFromHeader builds, lays out and spawns the organism for header.
// A block that was already generated returns the existing organism.
// On failure no particles are left behind.
func (e *Engine) GenerateFromHeader(header block.Header) (*Organism, error) {
	if e.disposed {
		return nil, ErrDisposed
	}
	if err := header.Validate(); err != nil {
		return nil, err
	}
	if org, ok := e.organisms[traits.OrganismID(header.Hash)]; ok {
		return org, nil
	}

	e.perf.Begin(telemetry.SpanGeneration)
	defer e.perf.End()

	e.perf.Phase(telemetry.PhaseSeed)
	e.stream.Initialize(header.Seed())

	e.perf.Phase(telemetry.PhaseTraits)
	t := e.mutator.Generate(header, e.stream)

	e.perf.Phase(telemetry.PhaseFormation)
	fs := e.stream.Derive(StreamFormation)
	pattern := e.shapes[seed.Intn(fs, len(e.shapes))]
	t.Visual.Formation = pattern

	count := t.Visual.ParticleCount
	if free := e.pool.FreeCount(); count > free {
		e.collector.RecordSpawnFailure()
		return nil, fmt.Errorf("organism %s needs %d particles, %d free: %w", t.OrganismID, count, free, particles.ErrPoolExhausted)
	}
	positions, err := e.catalog.CalculatePositions(pattern, count, formation.Options{Scale: t.Visual.Size})
	if err != nil {
		return nil, fmt.Errorf("layout %s: %w", pattern, err)
	}

	e.perf.Phase(telemetry.PhaseSpawn)
	ids, err := e.spawn(t, positions)
	if err != nil {
		return nil, err
	}

	org := &Organism{
		Traits:      t,
		Header:      header,
		Seed:        header.Seed(),
		Pattern:     pattern,
		Positions:   positions,
		ParticleIDs: ids,
	}
	e.organisms[t.OrganismID] = org
	e.order = append(e.order, t.OrganismID)

	e.metrics.OrganismGenerated()
	if err := e.output.WriteMutations(t); err != nil {
		e.logger.Error("failed to write mutations", "error", err)
	}
	e.logger.Info("organism generated",
		"organism", t.OrganismID,
		"block", header.Height,
		"formation", pattern,
		"particles", len(ids),
		"fitness", t.Evolutionary.Fitness,
	)
	return org, nil
}

// spawn creates one particle per position, all or nothing.
func (e *Engine) spawn(t *traits.OrganismTraits, positions []r3.Vec) ([]int, error) {
	ids := make([]int, 0, len(positions))
	for i, pos := range positions {
		id, err := e.pool.Spawn(t.OrganismID, particleParams(t, i, pos, e.cfg.Pool.DefaultLifetime))
		if err != nil {
			e.pool.RemoveMany(t.OrganismID, ids)
			e.collector.RecordSpawnFailure()
			return nil, fmt.Errorf("spawn organism %s particle %d: %w", t.OrganismID, i, err)
		}
		ids = append(ids, id)
	}
	e.collector.RecordSpawn(len(ids))
	return ids, nil
}

// particleParams derives a particle's appearance and motion from the organism's traits.
// Even slots take the primary color, odd slots the secondary.
func particleParams(t *traits.OrganismTraits, i int, pos r3.Vec, lifetime float64) particles.SpawnParams {
	color := t.Visual.PrimaryColor
	if i%2 == 1 {
		color = t.Visual.SecondaryColor
	}
	var vel r3.Vec
	if n := r3.Norm(pos); n > 0 {
		vel = r3.Scale(t.Behavioral.Speed*driftScale/n, pos)
	}
	return particles.SpawnParams{
		Position: pos,
		Velocity: vel,
		Lifetime: lifetime * (0.5 + t.Evolutionary.Adaptability),
		Size:     particleRadius * t.Visual.Size,
		Mass:     t.Physical.Mass,
		Color:    color,
	}
}

// Evolve applies the mutation event of a later block to org.
func (e *Engine) Evolve(org *Organism, header block.Header) (int, error) {
	if e.disposed {
		return 0, ErrDisposed
	}
	if err := header.Validate(); err != nil {
		return 0, err
	}
	before := org.Traits.HistoryLen()
	changed, err := e.mutator.Evolve(org.Traits, header)
	if err != nil {
		return 0, err
	}

	if err := e.output.WriteMutationRows(telemetry.MutationRows(org.Traits)[before:]); err != nil {
		e.logger.Error("failed to write mutations", "error", err)
	}
	e.logger.Debug("organism evolved",
		"organism", org.ID(),
		"block", header.Height,
		"generation", org.Traits.Evolutionary.Generation,
		"changed", changed,
	)
	return changed, nil
}

// Reform moves an organism's live particles onto another pattern.
func (e *Engine) Reform(org *Organism, patternID string, scale float64) formation.ApplyResult {
	if e.disposed {
		return formation.ApplyResult{Reason: ReasonDisposed, Err: ErrDisposed}
	}
	live := e.liveParticles(org)
	res := e.catalog.ApplyFormation(patternID, live, scale)
	if !res.Success {
		return res
	}
	for i, id := range live {
		// Ownership was just checked by liveParticles
		e.pool.Place(org.ID(), id, res.Positions[i])
	}
	org.Pattern = patternID
	org.Positions = res.Positions
	org.ParticleIDs = live
	return res
}

// Despawn removes an organism and recycles its particles.
func (e *Engine) Despawn(id string) (int, error) {
	if e.disposed {
		return 0, ErrDisposed
	}
	if _, ok := e.organisms[id]; !ok {
		return 0, fmt.Errorf("%w: %s", ErrOrganismNotFound, id)
	}
	n := e.pool.RemoveSystem(id)
	e.collector.RecordRemoved(n)
	delete(e.organisms, id)
	for i, oid := range e.order {
		if oid == id {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	return n, nil
}

// Formation computes a layout without binding particles.
func (e *Engine) Formation(patternID string, count int, scale float64, rotation r3.Vec) ([]r3.Vec, error) {
	if e.disposed {
		return nil, ErrDisposed
	}
	return e.catalog.CalculatePositions(patternID, count, formation.Options{Scale: scale, Rotation: rotation})
}

// Organism returns a generated organism by id.
func (e *Engine) Organism(id string) (*Organism, bool) {
	org, ok := e.organisms[id]
	return org, ok
}

// Organisms returns generated organisms in generation order.
func (e *Engine) Organisms() []*Organism {
	out := make([]*Organism, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, e.organisms[id])
	}
	return out
}

// Pool returns the particle pool.
func (e *Engine) Pool() *particles.Pool { return e.pool }

// Catalog returns the formation catalog.
func (e *Engine) Catalog() *formation.Catalog { return e.catalog }

// Stream returns the seed stream.
func (e *Engine) Stream() *seed.Stream { return e.stream }

// Mutator returns the mutation engine.
func (e *Engine) Mutator() *mutation.Engine { return e.mutator }

// CurrentTick returns the number of ticks run since the last reset.
func (e *Engine) CurrentTick() int32 { return e.tick }

// PerfStats returns timing stats over the perf window.
func (e *Engine) PerfStats() telemetry.PerfStats { return e.perf.Stats() }

func (e *Engine) liveParticles(org *Organism) []int {
	live := make([]int, 0, len(org.ParticleIDs))
	for _, id := range org.ParticleIDs {
		if e.pool.Owned(org.ID(), id) {
			live = append(live, id)
		}
	}
	return live
}

package formation

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/golang-lru/v2/simplelru"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/blockorganism/config"
	"github.com/pthm-cable/blockorganism/seed"
	"github.com/pthm-cable/blockorganism/telemetry"
)

// keySep joins a pattern id and a particle count in cache keys.
const keySep = '#'

// Failure reasons reported in ApplyResult and metrics.
const (
	ReasonNotFound = "not_found"
	ReasonCapacity = "capacity"
	ReasonOptions  = "invalid_options"
)

// vecBytes is the in-memory size of one r3.Vec.
const vecBytes = 24

type definition struct {
	pattern  *Pattern
	shape    config.ShapeConfig
	generate Generator // nil for custom patterns
}

// Catalog holds registered patterns and a bounded cache of computed layouts.
// Cache reads use Peek, so eviction order is insertion order.
type Catalog struct {
	patterns map[string]*definition
	cache    *simplelru.LRU[string, *CacheEntry]
	capacity int

	hits      int
	misses    int
	evictions int

	logger  *slog.Logger
	metrics *telemetry.Metrics
	now     func() time.Time
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithLogger sets the catalog logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Catalog) { c.logger = l }
}

// WithMetrics attaches metrics.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Catalog) { c.metrics = m }
}

// WithClock overrides the cache bookkeeping clock.
func WithClock(now func() time.Time) Option {
	return func(c *Catalog) { c.now = now }
}

// New creates a catalog with the built-in shapes declared in cfg.
func New(cfg config.FormationConfig, opts ...Option) (*Catalog, error) {
	cache, err := simplelru.NewLRU[string, *CacheEntry](cfg.CacheCapacity, nil)
	if err != nil {
		return nil, fmt.Errorf("formation cache: %w", err)
	}
	c := &Catalog{
		patterns: make(map[string]*definition),
		cache:    cache,
		capacity: cfg.CacheCapacity,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	names := make([]string, 0, len(cfg.Shapes))
	for name := range cfg.Shapes {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		shape := cfg.Shapes[name]
		gen, ok := generators[name]
		if !ok {
			return nil, fmt.Errorf("%w: no generator for shape %q", ErrInvalidPattern, name)
		}
		if shape.MaxParticles <= 0 {
			return nil, fmt.Errorf("%w: %s: max particles must be positive", ErrInvalidPattern, name)
		}
		c.patterns[name] = &definition{
			pattern: &Pattern{
				ID:           name,
				Name:         strings.ToUpper(name[:1]) + name[1:],
				Type:         name,
				MaxParticles: shape.MaxParticles,
				Metadata:     map[string]string{"source": "builtin"},
			},
			shape:    shape,
			generate: gen,
		}
	}
	return c, nil
}

// RegisterPattern adds a custom pattern. Duplicate ids are rejected without overwriting.
func (c *Catalog) RegisterPattern(p Pattern) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if _, exists := c.patterns[p.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicatePattern, p.ID)
	}
	c.patterns[p.ID] = &definition{pattern: p.clone()}
	c.invalidate(p.ID)

	c.logger.Info("pattern registered",
		"id", p.ID,
		"type", p.Type,
		"max_particles", p.MaxParticles,
		"positions", len(p.Positions),
	)
	return nil
}

// RegisterProcedural stores a jittered copy of an existing layout as a new pattern.
// Each coordinate moves by up to ±jitter, drawn from src once at registration.
func (c *Catalog) RegisterProcedural(id, baseID string, count int, jitter float64, src seed.Source) error {
	if jitter < 0 || math.IsNaN(jitter) || math.IsInf(jitter, 0) {
		return fmt.Errorf("%w: %s: jitter must be finite and non-negative", ErrInvalidPattern, id)
	}
	if _, exists := c.patterns[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicatePattern, id)
	}
	base, err := c.layout(baseID, count)
	if err != nil {
		return err
	}

	positions := make([]r3.Vec, len(base))
	for i, p := range base {
		p.X += (src.Next()*2 - 1) * jitter
		p.Y += (src.Next()*2 - 1) * jitter
		p.Z += (src.Next()*2 - 1) * jitter
		positions[i] = p
	}

	return c.RegisterPattern(Pattern{
		ID:           id,
		Name:         baseID + " (procedural)",
		Type:         TypeProcedural,
		MaxParticles: count,
		Positions:    positions,
		Metadata: map[string]string{
			"base":   baseID,
			"jitter": strconv.FormatFloat(jitter, 'g', -1, 64),
		},
	})
}

// UnregisterPattern removes a pattern and every cached layout derived from it.
func (c *Catalog) UnregisterPattern(id string) error {
	if _, ok := c.patterns[id]; !ok {
		return fmt.Errorf("%w: %s", ErrPatternNotFound, id)
	}
	delete(c.patterns, id)
	c.invalidate(id)
	c.logger.Info("pattern unregistered", "id", id)
	return nil
}

// Has reports whether id is registered.
func (c *Catalog) Has(id string) bool {
	_, ok := c.patterns[id]
	return ok
}

// IDs returns the registered pattern ids in sorted order.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.patterns))
	for id := range c.patterns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GetPattern returns the full layout for id, computing and caching it on a miss.
// The returned pattern is a copy.
func (c *Catalog) GetPattern(id string) (*Pattern, error) {
	def, ok := c.patterns[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPatternNotFound, id)
	}
	entry := c.lookup(id, func() *Pattern {
		if def.generate == nil {
			return def.pattern.clone()
		}
		p := def.pattern.clone()
		p.Positions = def.generate(def.pattern.MaxParticles, def.shape)
		return p
	})
	return entry.Pattern.clone(), nil
}

// ApplyFormation computes positions for particleIDs, one per id in order.
// More ids than the pattern holds fails without positioning any particle.
func (c *Catalog) ApplyFormation(id string, particleIDs []int, scale float64) ApplyResult {
	start := time.Now()

	def, ok := c.patterns[id]
	if !ok {
		return c.fail(ReasonNotFound, fmt.Errorf("%w: %s", ErrPatternNotFound, id), start)
	}
	if len(particleIDs) > def.pattern.MaxParticles {
		err := fmt.Errorf("%w: %s holds %d, got %d ids", ErrCapacityExceeded, id, def.pattern.MaxParticles, len(particleIDs))
		return c.fail(ReasonCapacity, err, start)
	}
	if err := validateOptions(Options{Scale: scale}); err != nil {
		return c.fail(ReasonOptions, err, start)
	}

	positions, err := c.layout(id, len(particleIDs))
	if err != nil {
		return c.fail(ReasonNotFound, err, start)
	}
	transform(positions, Options{Scale: scale})

	mem := uint64(len(positions)*vecBytes + len(particleIDs)*8)
	res := ApplyResult{
		Success:             true,
		Positions:           positions,
		ParticlesPositioned: len(positions),
		Metrics: ApplyMetrics{
			Duration:    time.Since(start),
			MemoryBytes: mem,
		},
	}
	c.logger.Debug("formation applied",
		"id", id,
		"particles", res.ParticlesPositioned,
		"duration", res.Metrics.Duration,
		"memory", humanize.Bytes(mem),
	)
	return res
}

// CalculatePositions returns count positions of pattern id with scale and rotation applied.
func (c *Catalog) CalculatePositions(id string, count int, opts Options) ([]r3.Vec, error) {
	if err := validateOptions(opts); err != nil {
		return nil, err
	}
	positions, err := c.layout(id, count)
	if err != nil {
		return nil, err
	}
	transform(positions, opts)
	return positions, nil
}

// Stats returns cache counters.
func (c *Catalog) Stats() Stats {
	return Stats{
		Patterns:  len(c.patterns),
		CacheSize: c.cache.Len(),
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

// Entry returns the cache bookkeeping for key without counting as an access.
func (c *Catalog) Entry(key string) (CacheEntry, bool) {
	e, ok := c.cache.Peek(key)
	if !ok {
		return CacheEntry{}, false
	}
	return *e, true
}

// Clear drops every cached layout; registered patterns are kept.
func (c *Catalog) Clear() {
	c.cache.Purge()
}

// layout returns a fresh copy of count positions for id.
func (c *Catalog) layout(id string, count int) ([]r3.Vec, error) {
	def, ok := c.patterns[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPatternNotFound, id)
	}
	if count < 0 || count > def.pattern.MaxParticles {
		return nil, fmt.Errorf("%w: %s holds %d, requested %d", ErrCapacityExceeded, id, def.pattern.MaxParticles, count)
	}
	if count == 0 {
		return []r3.Vec{}, nil
	}

	entry := c.lookup(cacheKey(id, count), func() *Pattern {
		p := def.pattern.clone()
		if def.generate != nil {
			p.Positions = def.generate(count, def.shape)
		} else {
			p.Positions = cycle(def.pattern.Positions, count)
		}
		return p
	})
	return append([]r3.Vec(nil), entry.Pattern.Positions...), nil
}

// lookup returns the cached entry for key, building and inserting it on a miss.
func (c *Catalog) lookup(key string, build func() *Pattern) *CacheEntry {
	now := c.now()
	if e, ok := c.cache.Peek(key); ok {
		e.AccessCount++
		e.LastAccessed = now
		c.hits++
		c.metrics.CacheHit()
		return e
	}

	c.misses++
	c.metrics.CacheMiss()
	e := &CacheEntry{
		Pattern:      build(),
		Timestamp:    now,
		AccessCount:  1,
		LastAccessed: now,
	}
	if evicted := c.cache.Add(key, e); evicted {
		c.evictions++
		c.metrics.CacheEviction()
	}
	return e
}

// invalidate removes id and every id#count entry.
func (c *Catalog) invalidate(id string) {
	prefix := id + string(keySep)
	for _, k := range c.cache.Keys() {
		if k == id || strings.HasPrefix(k, prefix) {
			c.cache.Remove(k)
		}
	}
}

func (c *Catalog) fail(reason string, err error, start time.Time) ApplyResult {
	c.metrics.FormationFailure(reason)
	c.logger.Warn("formation failed", "reason", reason, "error", err)
	return ApplyResult{
		Reason:  err.Error(),
		Err:     err,
		Metrics: ApplyMetrics{Duration: time.Since(start)},
	}
}

func cacheKey(id string, count int) string {
	return id + string(keySep) + strconv.Itoa(count)
}

// cycle returns count points, wrapping around src when count exceeds it.
func cycle(src []r3.Vec, count int) []r3.Vec {
	out := make([]r3.Vec, count)
	for i := range out {
		out[i] = src[i%len(src)]
	}
	return out
}

func validateOptions(opts Options) error {
	if opts.Scale < 0 || math.IsNaN(opts.Scale) || math.IsInf(opts.Scale, 0) {
		return fmt.Errorf("%w: scale %v", ErrInvalidOptions, opts.Scale)
	}
	for _, a := range []float64{opts.Rotation.X, opts.Rotation.Y, opts.Rotation.Z} {
		if math.IsNaN(a) || math.IsInf(a, 0) {
			return fmt.Errorf("%w: rotation %v", ErrInvalidOptions, opts.Rotation)
		}
	}
	return nil
}

// transform scales then rotates positions in place, about X, Y and Z in that order.
func transform(positions []r3.Vec, opts Options) {
	scale := opts.Scale
	if scale == 0 {
		scale = 1
	}
	rot := opts.Rotation
	for i, p := range positions {
		if scale != 1 {
			p = r3.Scale(scale, p)
		}
		if rot.X != 0 {
			p = r3.Rotate(p, rot.X, r3.Vec{X: 1})
		}
		if rot.Y != 0 {
			p = r3.Rotate(p, rot.Y, r3.Vec{Y: 1})
		}
		if rot.Z != 0 {
			p = r3.Rotate(p, rot.Z, r3.Vec{Z: 1})
		}
		positions[i] = p
	}
}

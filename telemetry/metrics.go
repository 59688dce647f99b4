package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds engine counters on a private registry.
// All methods are no-ops on a nil *Metrics so components can run without metrics.
type Metrics struct {
	registry *prometheus.Registry

	organisms         prometheus.Counter
	mutations         *prometheus.CounterVec
	mutationWarnings  *prometheus.CounterVec
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
	cacheEvictions    prometheus.Counter
	formationFailures *prometheus.CounterVec
	spawns            prometheus.Counter
	spawnFailures     prometheus.Counter
	recycled          *prometheus.CounterVec
	activeParticles   prometheus.Gauge
	integrityRepairs  prometheus.Counter
	collisions        prometheus.Counter
}

// NewMetrics creates and registers the engine metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		organisms: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "organism_generated_total",
			Help: "Organisms generated from block headers.",
		}),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "organism_mutations_total",
			Help: "Trait mutations applied, by category.",
		}, []string{"category"}),
		mutationWarnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "organism_mutation_warnings_total",
			Help: "Mutation requests skipped as no-ops, by reason.",
		}, []string{"reason"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "organism_formation_cache_hits_total",
			Help: "Formation cache hits.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "organism_formation_cache_misses_total",
			Help: "Formation cache misses.",
		}),
		cacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "organism_formation_cache_evictions_total",
			Help: "Formation cache evictions.",
		}),
		formationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "organism_formation_failures_total",
			Help: "Formation requests that failed, by reason.",
		}, []string{"reason"}),
		spawns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "organism_particle_spawns_total",
			Help: "Particles spawned.",
		}),
		spawnFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "organism_particle_spawn_failures_total",
			Help: "Spawn calls rejected because the pool was exhausted.",
		}),
		recycled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "organism_particle_recycled_total",
			Help: "Particles returned to the free list, by reason.",
		}, []string{"reason"}),
		activeParticles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "organism_particles_active",
			Help: "Currently active particles.",
		}),
		integrityRepairs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "organism_pool_integrity_repairs_total",
			Help: "Free list rebuilds after an integrity mismatch.",
		}),
		collisions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "organism_particle_collisions_total",
			Help: "Particle pairs resolved by the collision pass.",
		}),
	}

	m.registry.MustRegister(
		m.organisms, m.mutations, m.mutationWarnings,
		m.cacheHits, m.cacheMisses, m.cacheEvictions, m.formationFailures,
		m.spawns, m.spawnFailures, m.recycled, m.activeParticles,
		m.integrityRepairs, m.collisions,
	)
	return m
}

// Registry returns the registry holding the engine metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// OrganismGenerated counts a newly generated organism.
func (m *Metrics) OrganismGenerated() {
	if m == nil {
		return
	}
	m.organisms.Inc()
}

// Mutation counts an applied mutation by trait category.
func (m *Metrics) Mutation(category string) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(category).Inc()
}

// MutationWarning counts a skipped mutation by reason.
func (m *Metrics) MutationWarning(reason string) {
	if m == nil {
		return
	}
	m.mutationWarnings.WithLabelValues(reason).Inc()
}

// CacheHit counts a formation cache hit.
func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

// CacheMiss counts a formation cache miss.
func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}

// CacheEviction counts an entry evicted from the formation cache.
func (m *Metrics) CacheEviction() {
	if m == nil {
		return
	}
	m.cacheEvictions.Inc()
}

// FormationFailure counts a failed ApplyFormation by reason.
func (m *Metrics) FormationFailure(reason string) {
	if m == nil {
		return
	}
	m.formationFailures.WithLabelValues(reason).Inc()
}

// Spawned counts a particle spawn.
func (m *Metrics) Spawned() {
	if m == nil {
		return
	}
	m.spawns.Inc()
}

// SpawnFailed counts a rejected spawn.
func (m *Metrics) SpawnFailed() {
	if m == nil {
		return
	}
	m.spawnFailures.Inc()
}

// Recycled counts n particles returned to the free list.
func (m *Metrics) Recycled(reason string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.recycled.WithLabelValues(reason).Add(float64(n))
}

// SetActive records the number of active particles.
func (m *Metrics) SetActive(n int) {
	if m == nil {
		return
	}
	m.activeParticles.Set(float64(n))
}

// IntegrityRepair counts a free-list rebuild.
func (m *Metrics) IntegrityRepair() {
	if m == nil {
		return
	}
	m.integrityRepairs.Inc()
}

// Collisions counts resolved particle overlaps.
func (m *Metrics) Collisions(n int) {
	if m == nil || n == 0 {
		return
	}
	m.collisions.Add(float64(n))
}

package telemetry

// Collector accumulates pool events within time windows and produces WindowStats.
type Collector struct {
	windowDurationSec   float64
	windowDurationTicks int32
	dt                  float64

	// Current window tracking
	windowStartTick int32

	// Event counters for current window
	spawned       int
	spawnFailures int
	expired       int
	removed       int
	collisions    int
	repairs       int
}

// NewCollector creates a new stats collector.
// windowDurationSec: how long each stats window lasts in simulation seconds
// dt: seconds per tick (used for tick-to-time conversion)
func NewCollector(windowDurationSec float64, dt float64) *Collector {
	if dt <= 0 {
		dt = 1.0 / 60.0
	}
	ticksPerWindow := int32(windowDurationSec / dt)
	if ticksPerWindow < 1 {
		ticksPerWindow = 1
	}

	return &Collector{
		windowDurationSec:   windowDurationSec,
		windowDurationTicks: ticksPerWindow,
		dt:                  dt,
	}
}

// RecordSpawn records n successful spawns.
func (c *Collector) RecordSpawn(n int) {
	c.spawned += n
}

// RecordSpawnFailure records a spawn rejected by an exhausted pool.
func (c *Collector) RecordSpawnFailure() {
	c.spawnFailures++
}

// RecordExpired records particles recycled on lifetime expiry.
func (c *Collector) RecordExpired(n int) {
	c.expired += n
}

// RecordRemoved records particles recycled by explicit removal.
func (c *Collector) RecordRemoved(n int) {
	c.removed += n
}

// RecordCollisions records resolved collision pairs.
func (c *Collector) RecordCollisions(n int) {
	c.collisions += n
}

// RecordRepair records a free list rebuild.
func (c *Collector) RecordRepair() {
	c.repairs++
}

// ShouldFlush returns true if enough ticks have passed to flush the window.
func (c *Collector) ShouldFlush(currentTick int32) bool {
	return currentTick-c.windowStartTick >= c.windowDurationTicks
}

// PoolSample is the pool state sampled at the end of a window.
type PoolSample struct {
	Active   int
	Free     int
	Capacity int
	Speeds   []float64 // Speed of each active particle
	AgeFracs []float64 // Age/lifetime of each active particle
}

// Flush produces a WindowStats and resets counters for the next window.
func (c *Collector) Flush(currentTick int32, sample PoolSample) WindowStats {
	speedMean, speedStd, speedP50, speedP90 := ComputeDistribution(sample.Speeds)
	ageMean, _, _, _ := ComputeDistribution(sample.AgeFracs)

	var util float64
	if sample.Capacity > 0 {
		util = float64(sample.Active) / float64(sample.Capacity)
	}

	stats := WindowStats{
		WindowStartTick: c.windowStartTick,
		WindowEndTick:   currentTick,
		SimTimeSec:      float64(currentTick) * c.dt,
		Active:          sample.Active,
		Free:            sample.Free,
		Capacity:        sample.Capacity,
		Spawned:         c.spawned,
		SpawnFailures:   c.spawnFailures,
		Expired:         c.expired,
		Removed:         c.removed,
		Collisions:      c.collisions,
		Repairs:         c.repairs,
		SpeedMean:       speedMean,
		SpeedStd:        speedStd,
		SpeedP50:        speedP50,
		SpeedP90:        speedP90,
		AgeFracMean:     ageMean,
		Utilization:     util,
	}

	c.windowStartTick = currentTick
	c.spawned = 0
	c.spawnFailures = 0
	c.expired = 0
	c.removed = 0
	c.collisions = 0
	c.repairs = 0

	return stats
}

// WindowDurationTicks returns the window length in ticks.
func (c *Collector) WindowDurationTicks() int32 {
	return c.windowDurationTicks
}

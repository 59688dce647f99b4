package organism

import (
	"github.com/pthm-cable/blockorganism/particles"
	"github.com/pthm-cable/blockorganism/telemetry"
)

// Tick advances every particle by dt seconds. It is the per-frame entry point
// for the driver and never blocks.
func (e *Engine) Tick(dt float64) particles.UpdateResult {
	if e.disposed {
		return particles.UpdateResult{}
	}

	e.perf.Begin(telemetry.SpanTick)

	e.perf.Phase(telemetry.PhaseKinematics)
	var res particles.UpdateResult
	res.Expired = e.pool.Integrate(dt)

	e.perf.Phase(telemetry.PhaseCollision)
	if dt > 0 && e.pool.CollisionsEnabled() {
		res.Collisions = e.pool.Collide()
	}

	e.perf.Phase(telemetry.PhaseRecycle)
	if res.Expired > 0 {
		e.pruneExpired()
	}

	e.perf.Phase(telemetry.PhaseTelemetry)
	e.tick++
	e.collector.RecordExpired(res.Expired)
	e.collector.RecordCollisions(res.Collisions)
	e.flushTelemetry()

	e.perf.End()
	return res
}

// pruneExpired drops particle ids whose slots were recycled.
func (e *Engine) pruneExpired() {
	for _, org := range e.organisms {
		org.ParticleIDs = e.liveParticles(org)
	}
}

// flushTelemetry checks the pool's integrity and writes a stats window when one has elapsed.
func (e *Engine) flushTelemetry() {
	if !e.collector.ShouldFlush(e.tick) {
		return
	}

	if r := e.pool.Validate(); r.Repaired {
		e.collector.RecordRepair()
	}

	stats := e.collector.Flush(e.tick, e.pool.Sample())
	perfStats := e.perf.Stats()

	if e.statsCallback != nil {
		e.statsCallback(stats)
	}

	if e.logStats {
		stats.LogStats()
		perfStats.LogStats()
	}

	if err := e.output.WritePool(stats); err != nil {
		e.logger.Error("failed to write pool stats", "error", err)
	}
	if err := e.output.WritePerf(perfStats, stats.WindowEndTick); err != nil {
		e.logger.Error("failed to write perf", "error", err)
	}
}

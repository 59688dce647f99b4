package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// WindowStats holds aggregated particle pool statistics for a time window.
type WindowStats struct {
	WindowStartTick int32   `csv:"-"`
	WindowEndTick   int32   `csv:"window_end"`
	SimTimeSec      float64 `csv:"sim_time"`

	// Pool occupancy at window end
	Active   int `csv:"active"`
	Free     int `csv:"free"`
	Capacity int `csv:"capacity"`

	// Events during window
	Spawned       int `csv:"spawned"`
	SpawnFailures int `csv:"spawn_failures"`
	Expired       int `csv:"expired"`
	Removed       int `csv:"removed"`
	Collisions    int `csv:"collisions"`
	Repairs       int `csv:"repairs"`

	// Speed distribution (sampled at window end)
	SpeedMean float64 `csv:"speed_mean"`
	SpeedStd  float64 `csv:"speed_std"`
	SpeedP50  float64 `csv:"speed_p50"`
	SpeedP90  float64 `csv:"speed_p90"`

	// Age as a fraction of lifetime (sampled at window end)
	AgeFracMean float64 `csv:"age_frac_mean"`

	Utilization float64 `csv:"utilization"`
}

// Percentile returns the p-quantile of sorted values using linear interpolation.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	return stat.Quantile(p, stat.LinInterp, sorted, nil)
}

// ComputeDistribution calculates mean, std and percentiles of values.
func ComputeDistribution(values []float64) (mean, std, p50, p90 float64) {
	n := len(values)
	if n == 0 {
		return 0, 0, 0, 0
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	mean = stat.Mean(sorted, nil)
	if n > 1 {
		std = stat.PopStdDev(sorted, nil)
	}
	p50 = Percentile(sorted, 0.50)
	p90 = Percentile(sorted, 0.90)
	return mean, std, p50, p90
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("window_start", int(s.WindowStartTick)),
		slog.Int("window_end", int(s.WindowEndTick)),
		slog.Float64("sim_time", s.SimTimeSec),
		slog.Int("active", s.Active),
		slog.Int("free", s.Free),
		slog.Int("capacity", s.Capacity),
		slog.Int("spawned", s.Spawned),
		slog.Int("spawn_failures", s.SpawnFailures),
		slog.Int("expired", s.Expired),
		slog.Int("removed", s.Removed),
		slog.Int("collisions", s.Collisions),
		slog.Int("repairs", s.Repairs),
		slog.Float64("speed_mean", s.SpeedMean),
		slog.Float64("speed_std", s.SpeedStd),
		slog.Float64("speed_p50", s.SpeedP50),
		slog.Float64("speed_p90", s.SpeedP90),
		slog.Float64("age_frac_mean", s.AgeFracMean),
		slog.Float64("utilization", s.Utilization),
	)
}

// LogStats logs the window stats using slog.
func (s WindowStats) LogStats() {
	slog.Info("stats",
		"window_end", s.WindowEndTick,
		"sim_time", s.SimTimeSec,
		"active", s.Active,
		"capacity", s.Capacity,
		"spawned", s.Spawned,
		"expired", s.Expired,
		"removed", s.Removed,
		"collisions", s.Collisions,
		"speed_mean", s.SpeedMean,
	)
}

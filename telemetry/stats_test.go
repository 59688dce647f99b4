package telemetry

import (
	"math"
	"testing"
)

func TestPercentileEndpoints(t *testing.T) {
	tests := []struct {
		name   string
		sorted []float64
		p      float64
		want   float64
	}{
		{"empty slice", []float64{}, 0.5, 0},
		{"single element", []float64{5.0}, 0.5, 5.0},
		{"p0", []float64{1, 2, 3, 4, 5}, 0.0, 1.0},
		{"p100", []float64{1, 2, 3, 4, 5}, 1.0, 5.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Percentile(tt.sorted, tt.p)
			if math.Abs(got-tt.want) > 0.001 {
				t.Errorf("Percentile(%v, %v) = %v, want %v", tt.sorted, tt.p, got, tt.want)
			}
		})
	}
}

func TestPercentileMonotone(t *testing.T) {
	sorted := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	prev := math.Inf(-1)
	for p := 0.0; p <= 1.0; p += 0.05 {
		v := Percentile(sorted, p)
		if v < prev {
			t.Fatalf("percentile not monotone at p=%v: %v < %v", p, v, prev)
		}
		if v < 1 || v > 10 {
			t.Fatalf("percentile %v out of range: %v", p, v)
		}
		prev = v
	}
}

func TestComputeDistribution(t *testing.T) {
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}
	mean, std, p50, p90 := ComputeDistribution(values)

	if math.Abs(mean-5) > 1e-9 {
		t.Errorf("mean = %v, want 5", mean)
	}
	// Population standard deviation of this classic sample is exactly 2.
	if math.Abs(std-2) > 1e-9 {
		t.Errorf("std = %v, want 2", std)
	}
	if p50 < 4 || p50 > 5 {
		t.Errorf("p50 = %v, want within [4,5]", p50)
	}
	if p90 < 7 || p90 > 9 {
		t.Errorf("p90 = %v, want within [7,9]", p90)
	}
}

func TestComputeDistributionEmpty(t *testing.T) {
	mean, std, p50, p90 := ComputeDistribution(nil)
	if mean != 0 || std != 0 || p50 != 0 || p90 != 0 {
		t.Error("empty slice should return all zeros")
	}
}

func TestCollectorFlush(t *testing.T) {
	c := NewCollector(1.0, 0.1)
	if c.WindowDurationTicks() != 10 {
		t.Fatalf("window ticks = %d, want 10", c.WindowDurationTicks())
	}

	c.RecordSpawn(5)
	c.RecordExpired(2)
	c.RecordRemoved(1)
	c.RecordSpawnFailure()
	c.RecordCollisions(3)

	if c.ShouldFlush(9) {
		t.Error("should not flush before window end")
	}
	if !c.ShouldFlush(10) {
		t.Error("should flush at window end")
	}

	stats := c.Flush(10, PoolSample{
		Active:   2,
		Free:     8,
		Capacity: 10,
		Speeds:   []float64{1, 3},
		AgeFracs: []float64{0.25, 0.75},
	})

	if stats.Spawned != 5 || stats.Expired != 2 || stats.Removed != 1 || stats.SpawnFailures != 1 {
		t.Errorf("unexpected event counts: %+v", stats)
	}
	if stats.Utilization != 0.2 {
		t.Errorf("utilization = %v, want 0.2", stats.Utilization)
	}
	if math.Abs(stats.SpeedMean-2) > 1e-9 || math.Abs(stats.AgeFracMean-0.5) > 1e-9 {
		t.Errorf("speed mean = %v, age mean = %v", stats.SpeedMean, stats.AgeFracMean)
	}
	if math.Abs(stats.SimTimeSec-1.0) > 1e-9 {
		t.Errorf("sim time = %v, want 1.0", stats.SimTimeSec)
	}

	// Counters reset for the next window
	next := c.Flush(20, PoolSample{Capacity: 10})
	if next.Spawned != 0 || next.Collisions != 0 {
		t.Errorf("counters not reset: %+v", next)
	}
	if next.WindowStartTick != 10 {
		t.Errorf("window start = %d, want 10", next.WindowStartTick)
	}
}

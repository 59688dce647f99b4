package telemetry

import (
	"testing"
	"time"
)

// stepClock returns a fixed time that only moves when advanced.
type stepClock struct{ t time.Time }

func (c *stepClock) now() time.Time          { return c.t }
func (c *stepClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClocked(window int) (*PerfCollector, *stepClock) {
	c := &stepClock{t: time.Unix(1700000000, 0)}
	return NewPerfCollector(window, WithPerfClock(c.now)), c
}

// runTick records one tick whose phases take the given durations.
func runTick(p *PerfCollector, c *stepClock, phases map[string]time.Duration) {
	p.Begin(SpanTick)
	for _, name := range spanPhases[SpanTick] {
		d, ok := phases[name]
		if !ok {
			continue
		}
		p.Phase(name)
		c.advance(d)
	}
	p.End()
}

func TestPerfTickPhases(t *testing.T) {
	p, c := newClocked(10)
	for i := 0; i < 4; i++ {
		runTick(p, c, map[string]time.Duration{
			PhaseKinematics: 300 * time.Microsecond,
			PhaseCollision:  100 * time.Microsecond,
		})
	}

	s := p.Stats()
	if s.Tick.Samples != 4 || s.Generation.Samples != 0 {
		t.Fatalf("samples: tick %d generation %d", s.Tick.Samples, s.Generation.Samples)
	}
	if s.Tick.Avg != 400*time.Microsecond || s.Tick.Min != s.Tick.Avg || s.Tick.Max != s.Tick.Avg {
		t.Errorf("tick timing = %+v", s.Tick)
	}
	if s.Tick.PhaseAvg[PhaseKinematics] != 300*time.Microsecond {
		t.Errorf("kinematics avg = %v", s.Tick.PhaseAvg[PhaseKinematics])
	}
	if s.Tick.PhasePct[PhaseKinematics] != 75 || s.Tick.PhasePct[PhaseCollision] != 25 {
		t.Errorf("phase pct = %v", s.Tick.PhasePct)
	}
	if s.TicksPerSecond != 2500 {
		t.Errorf("ticks/sec = %v", s.TicksPerSecond)
	}
}

func TestPerfSpansKeptApart(t *testing.T) {
	p, c := newClocked(10)

	p.Begin(SpanGeneration)
	p.Phase(PhaseSeed)
	c.advance(time.Millisecond)
	p.Phase(PhaseSpawn)
	c.advance(3 * time.Millisecond)
	p.End()

	runTick(p, c, map[string]time.Duration{PhaseKinematics: 50 * time.Microsecond})

	s := p.Stats()
	if s.Generation.Avg != 4*time.Millisecond || s.Generation.PhasePct[PhaseSpawn] != 75 {
		t.Errorf("generation = %+v", s.Generation)
	}
	if _, ok := s.Tick.PhaseAvg[PhaseSeed]; ok {
		t.Error("generation phase leaked into tick window")
	}
	if s.Tick.Avg != 50*time.Microsecond {
		t.Errorf("tick avg = %v", s.Tick.Avg)
	}

	row := s.ToCSV(7)
	if row.Generations != 1 || row.GenAvgUS != 4000 || row.TickAvgUS != 50 || row.SpawnPct != 75 {
		t.Errorf("csv row = %+v", row)
	}
}

func TestPerfRollingWindow(t *testing.T) {
	p, c := newClocked(3)
	for _, d := range []time.Duration{10, 10, 10, 40, 40, 40} {
		runTick(p, c, map[string]time.Duration{PhaseKinematics: d * time.Microsecond})
	}

	s := p.Stats()
	if s.Tick.Samples != 3 || s.Tick.Avg != 40*time.Microsecond || s.Tick.Min != 40*time.Microsecond {
		t.Errorf("window did not roll: %+v", s.Tick)
	}
}

func TestPerfOverBudget(t *testing.T) {
	c := &stepClock{t: time.Unix(0, 0)}
	p := NewPerfCollector(5, WithPerfClock(c.now), WithTickBudget(time.Millisecond))

	tests := []struct {
		name string
		span Span
		d    time.Duration
		want int
	}{
		{"fast tick", SpanTick, 500 * time.Microsecond, 0},
		{"slow tick", SpanTick, 2 * time.Millisecond, 1},
		{"slow generation does not count", SpanGeneration, 5 * time.Millisecond, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p.Begin(tt.span)
			c.advance(tt.d)
			p.End()
			if got := p.Stats().OverBudget; got != tt.want {
				t.Errorf("over budget = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPerfUnopenedSpan(t *testing.T) {
	p, c := newClocked(5)

	p.Phase(PhaseKinematics)
	c.advance(time.Millisecond)
	p.End()

	s := p.Stats()
	if s.Tick.Samples != 0 || s.Generation.Samples != 0 {
		t.Error("phase or end without begin recorded a sample")
	}
	if s.Tick.PhaseAvg == nil || s.Tick.PhasePct == nil {
		t.Error("expected non-nil maps for an empty window")
	}
	if s.TicksPerSecond != 0 {
		t.Errorf("ticks/sec = %v", s.TicksPerSecond)
	}
}

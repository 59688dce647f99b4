package telemetry

import (
	"log/slog"
	"time"
)

// Span is the kind of work a perf sample measures.
type Span int

const (
	// SpanGeneration covers one GenerateFromHeader call.
	SpanGeneration Span = iota
	// SpanTick covers one Tick call.
	SpanTick
	spanCount
)

func (s Span) String() string {
	if s == SpanGeneration {
		return "generation"
	}
	return "tick"
}

// Generation phases.
const (
	PhaseSeed      = "seed"
	PhaseTraits    = "traits"
	PhaseFormation = "formation"
	PhaseSpawn     = "spawn"
)

// Tick phases.
const (
	PhaseKinematics = "kinematics"
	PhaseCollision  = "collision"
	PhaseRecycle    = "recycle"
	PhaseTelemetry  = "telemetry"
)

var spanPhases = [spanCount][]string{
	SpanGeneration: {PhaseSeed, PhaseTraits, PhaseFormation, PhaseSpawn},
	SpanTick:       {PhaseKinematics, PhaseCollision, PhaseRecycle, PhaseTelemetry},
}

// FrameBudget is the time a tick may take before it counts as over budget.
const FrameBudget = 16 * time.Millisecond

// perfSample is one finished span.
type perfSample struct {
	total  time.Duration
	phases map[string]time.Duration
}

// ring keeps the most recent samples of one span kind.
type ring struct {
	samples []perfSample
	next    int
	n       int
}

func (r *ring) add(s perfSample) {
	r.samples[r.next] = s
	r.next = (r.next + 1) % len(r.samples)
	if r.n < len(r.samples) {
		r.n++
	}
}

// PerfCollector times generation and tick spans, phase by phase, over a
// rolling window per span kind. It is not safe for concurrent use.
type PerfCollector struct {
	now    func() time.Time
	budget time.Duration
	rings  [spanCount]ring

	open       bool
	span       Span
	start      time.Time
	phase      string
	phaseStart time.Time
	phases     map[string]time.Duration

	overBudget int
}

// PerfOption configures a PerfCollector.
type PerfOption func(*PerfCollector)

// WithPerfClock replaces time.Now.
func WithPerfClock(now func() time.Time) PerfOption {
	return func(p *PerfCollector) { p.now = now }
}

// WithTickBudget sets the over-budget threshold for ticks.
func WithTickBudget(d time.Duration) PerfOption {
	return func(p *PerfCollector) { p.budget = d }
}

// NewPerfCollector keeps the last windowSize samples of each span kind.
func NewPerfCollector(windowSize int, opts ...PerfOption) *PerfCollector {
	if windowSize < 1 {
		windowSize = 60
	}
	p := &PerfCollector{now: time.Now, budget: FrameBudget}
	for i := range p.rings {
		p.rings[i].samples = make([]perfSample, windowSize)
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Begin opens a span. An unfinished span is discarded.
func (p *PerfCollector) Begin(span Span) {
	p.open = true
	p.span = span
	p.start = p.now()
	p.phase = ""
	p.phases = make(map[string]time.Duration, len(spanPhases[span]))
}

// Phase ends the running phase, if any, and starts the named one.
func (p *PerfCollector) Phase(name string) {
	if !p.open {
		return
	}
	now := p.now()
	p.closePhase(now)
	p.phase = name
	p.phaseStart = now
}

// End closes the open span and records it. Without an open span it does nothing.
func (p *PerfCollector) End() {
	if !p.open {
		return
	}
	now := p.now()
	p.closePhase(now)
	s := perfSample{total: now.Sub(p.start), phases: p.phases}
	if p.span == SpanTick && s.total > p.budget {
		p.overBudget++
	}
	p.rings[p.span].add(s)
	p.open = false
	p.phases = nil
}

func (p *PerfCollector) closePhase(now time.Time) {
	if p.phase != "" {
		p.phases[p.phase] += now.Sub(p.phaseStart)
	}
}

// SpanStats summarizes the window of one span kind.
type SpanStats struct {
	Samples  int
	Avg      time.Duration
	Min      time.Duration
	Max      time.Duration
	P90      time.Duration
	PhaseAvg map[string]time.Duration
	// PhasePct is each phase's share of the summed span time, in percent.
	PhasePct map[string]float64
}

// PerfStats holds the generation and tick summaries.
type PerfStats struct {
	Generation     SpanStats
	Tick           SpanStats
	TicksPerSecond float64
	OverBudget     int
}

// Stats summarizes both windows.
func (p *PerfCollector) Stats() PerfStats {
	s := PerfStats{
		Generation: p.rings[SpanGeneration].stats(),
		Tick:       p.rings[SpanTick].stats(),
		OverBudget: p.overBudget,
	}
	if s.Tick.Avg > 0 {
		s.TicksPerSecond = float64(time.Second) / float64(s.Tick.Avg)
	}
	return s
}

func (r *ring) stats() SpanStats {
	out := SpanStats{
		Samples:  r.n,
		PhaseAvg: make(map[string]time.Duration),
		PhasePct: make(map[string]float64),
	}
	if r.n == 0 {
		return out
	}

	var total time.Duration
	totals := make([]float64, r.n)
	sums := make(map[string]time.Duration)
	for i := 0; i < r.n; i++ {
		s := r.samples[i]
		total += s.total
		totals[i] = float64(s.total)
		if i == 0 || s.total < out.Min {
			out.Min = s.total
		}
		out.Max = max(out.Max, s.total)
		for phase, d := range s.phases {
			sums[phase] += d
		}
	}

	out.Avg = total / time.Duration(r.n)
	_, _, _, p90 := ComputeDistribution(totals)
	out.P90 = time.Duration(p90)
	for phase, sum := range sums {
		out.PhaseAvg[phase] = sum / time.Duration(r.n)
		if total > 0 {
			out.PhasePct[phase] = float64(sum) / float64(total) * 100
		}
	}
	return out
}

// LogStats logs both summaries at info level.
func (s PerfStats) LogStats() {
	slog.Info("perf", "stats", s)
}

// LogValue implements slog.LogValuer for structured logging.
func (s PerfStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Any(SpanGeneration.String(), s.Generation.attrs(SpanGeneration)),
		slog.Any(SpanTick.String(), s.Tick.attrs(SpanTick)),
		slog.Float64("ticks_per_sec", s.TicksPerSecond),
		slog.Int("over_budget", s.OverBudget),
	)
}

func (s SpanStats) attrs(span Span) slog.Value {
	attrs := []slog.Attr{
		slog.Int("samples", s.Samples),
		slog.Int64("avg_us", s.Avg.Microseconds()),
		slog.Int64("max_us", s.Max.Microseconds()),
		slog.Int64("p90_us", s.P90.Microseconds()),
	}
	for _, phase := range spanPhases[span] {
		if pct, ok := s.PhasePct[phase]; ok && pct > 0.1 {
			attrs = append(attrs, slog.Float64(phase+"_pct", float64(int(pct*10))/10))
		}
	}
	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is a flat struct for CSV export of performance stats.
type PerfStatsCSV struct {
	WindowEnd     int32   `csv:"window_end"`
	Generations   int     `csv:"generations"`
	GenAvgUS      int64   `csv:"gen_avg_us"`
	GenMaxUS      int64   `csv:"gen_max_us"`
	SeedPct       float64 `csv:"seed_pct"`
	TraitsPct     float64 `csv:"traits_pct"`
	FormationPct  float64 `csv:"formation_pct"`
	SpawnPct      float64 `csv:"spawn_pct"`
	TickAvgUS     int64   `csv:"tick_avg_us"`
	TickP90US     int64   `csv:"tick_p90_us"`
	TickMaxUS     int64   `csv:"tick_max_us"`
	TicksPerSec   float64 `csv:"ticks_per_sec"`
	OverBudget    int     `csv:"over_budget"`
	KinematicsPct float64 `csv:"kinematics_pct"`
	CollisionPct  float64 `csv:"collision_pct"`
	RecyclePct    float64 `csv:"recycle_pct"`
	TelemetryPct  float64 `csv:"telemetry_pct"`
}

// ToCSV converts PerfStats to a flat CSV-friendly struct.
func (s PerfStats) ToCSV(windowEnd int32) PerfStatsCSV {
	g, t := s.Generation, s.Tick
	return PerfStatsCSV{
		WindowEnd:     windowEnd,
		Generations:   g.Samples,
		GenAvgUS:      g.Avg.Microseconds(),
		GenMaxUS:      g.Max.Microseconds(),
		SeedPct:       g.PhasePct[PhaseSeed],
		TraitsPct:     g.PhasePct[PhaseTraits],
		FormationPct:  g.PhasePct[PhaseFormation],
		SpawnPct:      g.PhasePct[PhaseSpawn],
		TickAvgUS:     t.Avg.Microseconds(),
		TickP90US:     t.P90.Microseconds(),
		TickMaxUS:     t.Max.Microseconds(),
		TicksPerSec:   s.TicksPerSecond,
		OverBudget:    s.OverBudget,
		KinematicsPct: t.PhasePct[PhaseKinematics],
		CollisionPct:  t.PhasePct[PhaseCollision],
		RecyclePct:    t.PhasePct[PhaseRecycle],
		TelemetryPct:  t.PhasePct[PhaseTelemetry],
	}
}

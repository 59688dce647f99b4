package organism

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/blockorganism/block"
	"github.com/pthm-cable/blockorganism/config"
	"github.com/pthm-cable/blockorganism/formation"
	"github.com/pthm-cable/blockorganism/mutation"
	"github.com/pthm-cable/blockorganism/particles"
	"github.com/pthm-cable/blockorganism/telemetry"
)

func testHeader(height int64) block.Header {
	return block.Header{
		Height:     height,
		Hash:       fmt.Sprintf("%064x", 0xabcdef00+height),
		Time:       1700000000 + height*600,
		Difficulty: 8e13,
	}
}

func newTestEngine(t *testing.T, cfg *config.Config, opts ...Option) *Engine {
	t.Helper()
	if cfg == nil {
		cfg = config.Default()
	}
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	e, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func checkConservation(t *testing.T, p *particles.Pool) {
	t.Helper()
	if p.ActiveCount()+p.FreeCount() != p.Capacity() {
		t.Fatalf("active %d + free %d != capacity %d", p.ActiveCount(), p.FreeCount(), p.Capacity())
	}
}

func TestGenerateDeterministic(t *testing.T) {
	h := testHeader(840000)

	a, err := newTestEngine(t, nil).GenerateFromHeader(h)
	if err != nil {
		t.Fatal(err)
	}
	b, err := newTestEngine(t, nil).GenerateFromHeader(h)
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(a.Traits, b.Traits) {
		t.Error("traits differ between engines")
	}
	if a.Pattern != b.Pattern || !reflect.DeepEqual(a.Positions, b.Positions) || !reflect.DeepEqual(a.ParticleIDs, b.ParticleIDs) {
		t.Error("layout or particle binding differs between engines")
	}
	if a.Traits.Visual.Formation != a.Pattern {
		t.Errorf("formation trait %q != pattern %q", a.Traits.Visual.Formation, a.Pattern)
	}
}

func TestGenerateSpawnsParticles(t *testing.T) {
	e := newTestEngine(t, nil)
	org, err := e.GenerateFromHeader(testHeader(1))
	if err != nil {
		t.Fatal(err)
	}

	want := org.Traits.Visual.ParticleCount
	if len(org.ParticleIDs) != want || len(org.Positions) != want || e.Pool().ActiveCount() != want {
		t.Fatalf("ids=%d positions=%d active=%d, want %d", len(org.ParticleIDs), len(org.Positions), e.Pool().ActiveCount(), want)
	}
	for i, id := range org.ParticleIDs {
		p, _ := e.Pool().Get(id)
		if !p.Active || p.SystemID != org.ID() {
			t.Fatalf("particle %d not bound to organism", id)
		}
		if p.Position != org.Positions[i] {
			t.Fatalf("particle %d at %v, want %v", id, p.Position, org.Positions[i])
		}
	}
	checkConservation(t, e.Pool())
}

func TestGenerateIdempotent(t *testing.T) {
	e := newTestEngine(t, nil)
	a, _ := e.GenerateFromHeader(testHeader(7))
	active := e.Pool().ActiveCount()

	b, err := e.GenerateFromHeader(testHeader(7))
	if err != nil {
		t.Fatal(err)
	}
	if a != b || e.Pool().ActiveCount() != active || len(e.Organisms()) != 1 {
		t.Error("regenerating a block spawned a second organism")
	}
}

func TestGeneratePoolExhausted(t *testing.T) {
	cfg := config.Default()
	cfg.Pool.Capacity = 10 // below the minimum particle count
	e := newTestEngine(t, cfg)

	_, err := e.GenerateFromHeader(testHeader(1))
	if !errors.Is(err, particles.ErrPoolExhausted) {
		t.Fatalf("expected ErrPoolExhausted, got %v", err)
	}
	if e.Pool().ActiveCount() != 0 || len(e.Organisms()) != 0 {
		t.Error("failed generation left state behind")
	}
	checkConservation(t, e.Pool())
}

func TestGenerateFillsPool(t *testing.T) {
	cfg := config.Default()
	cfg.Pool.Capacity = 250
	e := newTestEngine(t, cfg)

	var failed bool
	for h := int64(0); h < 20; h++ {
		if _, err := e.GenerateFromHeader(testHeader(h)); err != nil {
			if !errors.Is(err, particles.ErrPoolExhausted) {
				t.Fatalf("block %d: %v", h, err)
			}
			failed = true
		}
		checkConservation(t, e.Pool())
	}
	if !failed {
		t.Error("expected the pool to run out")
	}

	total := 0
	for _, org := range e.Organisms() {
		total += len(org.ParticleIDs)
	}
	if total != e.Pool().ActiveCount() {
		t.Errorf("organisms hold %d particles, pool has %d active", total, e.Pool().ActiveCount())
	}
}

func TestGenerateFromSource(t *testing.T) {
	e := newTestEngine(t, nil)
	src := block.NewMemorySource(testHeader(5))

	org, err := e.Generate(context.Background(), src, 5)
	if err != nil {
		t.Fatal(err)
	}
	if org.Header.Height != 5 {
		t.Errorf("height = %d", org.Header.Height)
	}

	if _, err := e.Generate(context.Background(), src, 6); !errors.Is(err, block.ErrHeaderNotFound) {
		t.Errorf("expected ErrHeaderNotFound, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Generate(ctx, src, 5); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestGenerateRejectsInvalidHeader(t *testing.T) {
	e := newTestEngine(t, nil)
	h := testHeader(1)
	h.Hash = "zz"
	if _, err := e.GenerateFromHeader(h); !errors.Is(err, block.ErrInvalidHeader) {
		t.Errorf("expected ErrInvalidHeader, got %v", err)
	}
}

func TestEvolve(t *testing.T) {
	e := newTestEngine(t, nil)
	org, _ := e.GenerateFromHeader(testHeader(10))

	if _, err := e.Evolve(org, testHeader(11)); err != nil {
		t.Fatal(err)
	}
	if org.Traits.Evolutionary.Generation != 1 {
		t.Errorf("generation = %d", org.Traits.Evolutionary.Generation)
	}
	if _, err := e.Evolve(org, testHeader(11)); !errors.Is(err, mutation.ErrStaleBlock) {
		t.Errorf("expected ErrStaleBlock, got %v", err)
	}
}

func TestTickExpiresAndPrunes(t *testing.T) {
	cfg := config.Default()
	cfg.Pool.DefaultLifetime = 1
	e := newTestEngine(t, cfg)
	org, _ := e.GenerateFromHeader(testHeader(3))

	e.Tick(1)
	e.Tick(1)

	if e.Pool().ActiveCount() != 0 {
		t.Errorf("active = %d after every lifetime elapsed", e.Pool().ActiveCount())
	}
	if len(org.ParticleIDs) != 0 {
		t.Errorf("organism still holds %d particle ids", len(org.ParticleIDs))
	}
	if e.CurrentTick() != 2 {
		t.Errorf("tick = %d", e.CurrentTick())
	}
	checkConservation(t, e.Pool())
}

func TestTickMovesParticles(t *testing.T) {
	e := newTestEngine(t, nil)
	org, _ := e.GenerateFromHeader(testHeader(4))
	before, _ := e.Pool().Get(org.ParticleIDs[0])

	e.Tick(1.0 / 60)

	after, _ := e.Pool().Get(org.ParticleIDs[0])
	if after.Position == before.Position {
		t.Error("particle did not move")
	}
	if e.Tick(0) != (particles.UpdateResult{}) {
		t.Error("zero dt tick did work")
	}
}

func TestStatsWindows(t *testing.T) {
	cfg := config.Default()
	cfg.Telemetry.StatsWindow = 1

	var windows []telemetry.WindowStats
	e := newTestEngine(t, cfg,
		WithTickDuration(0.5),
		WithStatsCallback(func(s telemetry.WindowStats) { windows = append(windows, s) }),
	)
	org, _ := e.GenerateFromHeader(testHeader(2))

	for i := 0; i < 4; i++ {
		e.Tick(0.5)
	}
	if len(windows) != 2 {
		t.Fatalf("flushed %d windows, want 2", len(windows))
	}
	w := windows[0]
	if w.Active != len(org.ParticleIDs) || w.Capacity != cfg.Pool.Capacity || w.Active+w.Free != w.Capacity {
		t.Errorf("window = %+v", w)
	}
}

func TestReform(t *testing.T) {
	e := newTestEngine(t, nil)
	org, _ := e.GenerateFromHeader(testHeader(9))

	res := e.Reform(org, "line", 1)
	if !res.Success || res.ParticlesPositioned != len(org.ParticleIDs) {
		t.Fatalf("reform: %+v", res.Err)
	}
	for i, id := range org.ParticleIDs {
		p, _ := e.Pool().Get(id)
		if p.Position != res.Positions[i] || p.Velocity != (r3.Vec{}) {
			t.Fatalf("particle %d not placed", id)
		}
	}
	if org.Pattern != "line" {
		t.Errorf("pattern = %q", org.Pattern)
	}

	hex := formation.Pattern{ID: "hex", Name: "Hex", Type: formation.TypeCustom, MaxParticles: 6, Positions: make([]r3.Vec, 6)}
	if err := e.Catalog().RegisterPattern(hex); err != nil {
		t.Fatal(err)
	}
	first, _ := e.Pool().Get(org.ParticleIDs[0])
	res = e.Reform(org, "hex", 1)
	if res.Success || !errors.Is(res.Err, formation.ErrCapacityExceeded) {
		t.Fatalf("expected capacity failure, got %+v", res)
	}
	if again, _ := e.Pool().Get(org.ParticleIDs[0]); again != first || org.Pattern != "line" {
		t.Error("failed reform moved particles")
	}
}

func TestDespawn(t *testing.T) {
	e := newTestEngine(t, nil)
	a, _ := e.GenerateFromHeader(testHeader(1))
	b, _ := e.GenerateFromHeader(testHeader(2))

	n, err := e.Despawn(a.ID())
	if err != nil || n != len(a.ParticleIDs) {
		t.Fatalf("despawn: n=%d err=%v", n, err)
	}
	if e.Pool().ActiveCount() != len(b.ParticleIDs) {
		t.Errorf("active = %d, want %d", e.Pool().ActiveCount(), len(b.ParticleIDs))
	}
	if got := e.Organisms(); len(got) != 1 || got[0] != b {
		t.Error("wrong organisms remain")
	}
	if _, err := e.Despawn(a.ID()); !errors.Is(err, ErrOrganismNotFound) {
		t.Errorf("despawning twice: expected ErrOrganismNotFound, got %v", err)
	}
}

func TestDisposeAndInitialize(t *testing.T) {
	e := newTestEngine(t, nil)
	org, _ := e.GenerateFromHeader(testHeader(1))

	e.Dispose()
	if e.Pool().ActiveCount() != 0 || len(e.Organisms()) != 0 {
		t.Error("dispose left state behind")
	}
	if _, err := e.GenerateFromHeader(testHeader(2)); !errors.Is(err, ErrDisposed) {
		t.Errorf("expected ErrDisposed, got %v", err)
	}

	if res := e.Reform(org, "line", 1); res.Success || res.Reason != ReasonDisposed || !errors.Is(res.Err, ErrDisposed) {
		t.Errorf("reform after dispose: %+v", res)
	}
	if _, err := e.Despawn(org.ID()); !errors.Is(err, ErrDisposed) {
		t.Errorf("despawn after dispose: expected ErrDisposed, got %v", err)
	}
	if _, err := e.Formation("sphere", 10, 1, r3.Vec{}); !errors.Is(err, ErrDisposed) {
		t.Errorf("formation after dispose: expected ErrDisposed, got %v", err)
	}
	if res := e.Tick(1); res != (particles.UpdateResult{}) {
		t.Errorf("tick after dispose did work: %+v", res)
	}

	if err := e.Initialize(testHeader(2)); err != nil {
		t.Fatal(err)
	}
	if _, err := e.GenerateFromHeader(testHeader(2)); err != nil {
		t.Errorf("generate after initialize: %v", err)
	}
}

func TestFormationRequest(t *testing.T) {
	e := newTestEngine(t, nil)
	pts, err := e.Formation("sphere", 10, 2, r3.Vec{})
	if err != nil {
		t.Fatal(err)
	}
	if len(pts) != 10 || r3.Norm(pts[0]) != 20 {
		t.Errorf("got %d points, first at radius %v", len(pts), r3.Norm(pts[0]))
	}
}

func TestPerfSpans(t *testing.T) {
	e := newTestEngine(t, nil)
	e.GenerateFromHeader(testHeader(1))
	e.GenerateFromHeader(testHeader(1)) // already generated, not timed
	e.Tick(1.0 / 60)
	e.Tick(1.0 / 60)

	s := e.PerfStats()
	if s.Generation.Samples != 1 || s.Tick.Samples != 2 {
		t.Fatalf("samples: generation %d tick %d", s.Generation.Samples, s.Tick.Samples)
	}
	if _, ok := s.Generation.PhaseAvg[telemetry.PhaseSpawn]; !ok {
		t.Error("spawn phase missing from generation timings")
	}
	if _, ok := s.Tick.PhaseAvg[telemetry.PhaseKinematics]; !ok {
		t.Error("kinematics phase missing from tick timings")
	}
	if _, ok := s.Tick.PhaseAvg[telemetry.PhaseSpawn]; ok {
		t.Error("generation phase recorded as a tick phase")
	}
}

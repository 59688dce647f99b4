package particles

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/blockorganism/config"
)

func collisionPool(t *testing.T) *Pool {
	t.Helper()
	cfg := config.Default().Pool
	cfg.Capacity = 8
	cfg.Gravity = nil
	cfg.Damping = 1
	cfg.Collisions = true
	p, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestBroadPhase(t *testing.T) {
	p := collisionPool(t)
	p.Spawn("s", SpawnParams{Position: r3.Vec{X: 0}, Lifetime: 10, Size: 1})
	p.Spawn("s", SpawnParams{Position: r3.Vec{X: 1.5}, Lifetime: 10, Size: 1})
	p.Spawn("s", SpawnParams{Position: r3.Vec{X: 10}, Lifetime: 10, Size: 1})
	// Boxes overlap at the corner but the spheres do not
	p.Spawn("s", SpawnParams{Position: r3.Vec{X: 10 + 1.9, Y: 1.9}, Lifetime: 10, Size: 1})

	pairs := p.BroadPhaseCollision()
	want := []Pair{{0, 1}, {2, 3}}
	if len(pairs) != len(want) || pairs[0] != want[0] || pairs[1] != want[1] {
		t.Fatalf("pairs = %v, want %v", pairs, want)
	}

	if hits := p.NarrowPhaseCollision(pairs); hits != 1 {
		t.Errorf("narrow phase hits = %d, want 1", hits)
	}
}

func TestHeadOnCollision(t *testing.T) {
	p := collisionPool(t)
	a, _ := p.Spawn("s", SpawnParams{Position: r3.Vec{X: -0.9}, Velocity: r3.Vec{X: 1}, Lifetime: 10, Size: 1})
	b, _ := p.Spawn("s", SpawnParams{Position: r3.Vec{X: 0.9}, Velocity: r3.Vec{X: -1}, Lifetime: 10, Size: 1})

	hits := p.NarrowPhaseCollision([]Pair{{a, b}})
	if hits != 1 {
		t.Fatalf("hits = %d", hits)
	}

	pa, _ := p.Get(a)
	pb, _ := p.Get(b)

	// Equal masses, restitution 0.8: velocities reverse and shrink to 0.8
	if math.Abs(pa.Velocity.X+0.8) > 1e-12 || math.Abs(pb.Velocity.X-0.8) > 1e-12 {
		t.Errorf("velocities = %v, %v", pa.Velocity, pb.Velocity)
	}

	// Half the 0.2 overlap is resolved, split evenly
	if math.Abs(pa.Position.X+0.95) > 1e-12 || math.Abs(pb.Position.X-0.95) > 1e-12 {
		t.Errorf("positions = %v, %v", pa.Position, pb.Position)
	}

	// Momentum is conserved
	if math.Abs(pa.Velocity.X+pb.Velocity.X) > 1e-12 {
		t.Errorf("momentum changed: %v", pa.Velocity.X+pb.Velocity.X)
	}
}

func TestCoincidentPairSeparates(t *testing.T) {
	p := collisionPool(t)
	at := r3.Vec{X: 1}
	a, _ := p.Spawn("s", SpawnParams{Position: at, Lifetime: 10, Size: 1})
	b, _ := p.Spawn("s", SpawnParams{Position: at, Lifetime: 10, Size: 1})

	pairs := p.BroadPhaseCollision()
	if len(pairs) != 1 {
		t.Fatalf("pairs = %v", pairs)
	}
	if hits := p.NarrowPhaseCollision(pairs); hits != 1 {
		t.Fatalf("hits = %d, want 1", hits)
	}

	pa, _ := p.Get(a)
	pb, _ := p.Get(b)
	if !(pa.Position.X < at.X && pb.Position.X > at.X) {
		t.Fatalf("not separated: a=%v b=%v", pa.Position, pb.Position)
	}
	if math.Abs((at.X-pa.Position.X)-(pb.Position.X-at.X)) > 1e-12 {
		t.Errorf("equal masses moved unequally: a=%v b=%v", pa.Position, pb.Position)
	}
	if pa.Position.Y != 0 || pa.Position.Z != 0 || pb.Position.Y != 0 || pb.Position.Z != 0 {
		t.Errorf("separation left the X axis: a=%v b=%v", pa.Position, pb.Position)
	}
}

func TestSeparatingPairKeepsVelocity(t *testing.T) {
	p := collisionPool(t)
	a, _ := p.Spawn("s", SpawnParams{Position: r3.Vec{X: -0.5}, Velocity: r3.Vec{X: -1}, Lifetime: 10, Size: 1})
	b, _ := p.Spawn("s", SpawnParams{Position: r3.Vec{X: 0.5}, Velocity: r3.Vec{X: 1}, Lifetime: 10, Size: 1})

	p.NarrowPhaseCollision([]Pair{{a, b}})
	pa, _ := p.Get(a)
	pb, _ := p.Get(b)
	if pa.Velocity.X != -1 || pb.Velocity.X != 1 {
		t.Errorf("separating velocities changed: %v, %v", pa.Velocity, pb.Velocity)
	}
}

func TestUpdateRunsCollisions(t *testing.T) {
	p := collisionPool(t)
	p.Spawn("s", SpawnParams{Position: r3.Vec{X: -0.5}, Velocity: r3.Vec{X: 1}, Lifetime: 10, Size: 1})
	p.Spawn("s", SpawnParams{Position: r3.Vec{X: 0.5}, Velocity: r3.Vec{X: -1}, Lifetime: 10, Size: 1})

	if res := p.Update(0.01); res.Collisions != 1 {
		t.Errorf("collisions = %d, want 1", res.Collisions)
	}
}

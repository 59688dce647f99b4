package particles

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Pair is two overlapping particle ids, A < B.
type Pair struct {
	A, B int
}

// UpdateResult reports what one Update step did.
type UpdateResult struct {
	Expired    int
	Collisions int
}

// Update advances the pool by dt seconds and, when enabled, resolves collisions.
// A non-positive dt is a no-op.
func (p *Pool) Update(dt float64) UpdateResult {
	if !validStep(dt) {
		return UpdateResult{}
	}
	res := UpdateResult{Expired: p.Integrate(dt)}
	if p.collisions {
		res.Collisions = p.Collide()
	}
	return res
}

// Integrate moves every active particle: acceleration, damping, Euler position
// step, aging. Particles whose age reaches their lifetime return to the free
// stack. Returns the number expired.
func (p *Pool) Integrate(dt float64) int {
	if !validStep(dt) {
		return 0
	}
	expired := 0
	for i := range p.particles {
		pt := &p.particles[i]
		if !pt.Active {
			continue
		}
		pt.Velocity = r3.Add(pt.Velocity, r3.Scale(dt, pt.Acceleration))
		pt.Velocity = r3.Scale(p.damping, pt.Velocity)
		pt.Position = r3.Add(pt.Position, r3.Scale(dt, pt.Velocity))
		pt.Age += dt

		if pt.Age >= pt.Lifetime {
			p.release(i)
			expired++
		}
	}
	p.metrics.Recycled(ReasonExpired, expired)
	p.metrics.SetActive(p.active)
	return expired
}

// Collide runs both collision phases over the active set.
func (p *Pool) Collide() int {
	n := p.NarrowPhaseCollision(p.BroadPhaseCollision())
	p.metrics.Collisions(n)
	return n
}

// CollisionsEnabled reports whether Update runs the collision pass.
func (p *Pool) CollisionsEnabled() bool { return p.collisions }

func validStep(dt float64) bool {
	return dt > 0 && !math.IsNaN(dt) && !math.IsInf(dt, 0)
}

// BroadPhaseCollision returns active pairs whose bounding boxes overlap.
func (p *Pool) BroadPhaseCollision() []Pair {
	var pairs []Pair
	for i := range p.particles {
		a := &p.particles[i]
		if !a.Active {
			continue
		}
		for j := i + 1; j < len(p.particles); j++ {
			b := &p.particles[j]
			if !b.Active {
				continue
			}
			reach := a.Radius + b.Radius
			if math.Abs(a.Position.X-b.Position.X) < reach &&
				math.Abs(a.Position.Y-b.Position.Y) < reach &&
				math.Abs(a.Position.Z-b.Position.Z) < reach {
				pairs = append(pairs, Pair{A: i, B: j})
			}
		}
	}
	return pairs
}

// NarrowPhaseCollision resolves sphere overlaps among pairs: positions are
// pushed apart by a fraction of the overlap and approaching particles exchange
// an impulse scaled by the pool's restitution. Returns the number of pairs that
// actually overlapped.
func (p *Pool) NarrowPhaseCollision(pairs []Pair) int {
	hits := 0
	for _, pr := range pairs {
		a, b := &p.particles[pr.A], &p.particles[pr.B]
		if !a.Active || !b.Active {
			continue
		}

		delta := r3.Sub(b.Position, a.Position)
		dist := r3.Norm(delta)
		reach := a.Radius + b.Radius
		if dist >= reach {
			continue
		}
		hits++

		// Coincident centers have no direction; push apart along +X.
		n := r3.Vec{X: 1}
		if dist > 0 {
			n = r3.Scale(1/dist, delta)
		}
		invA, invB := 1/a.Mass, 1/b.Mass
		invSum := invA + invB

		// Separate proportionally to inverse mass
		correction := (reach - dist) * p.separation / invSum
		a.Position = r3.Sub(a.Position, r3.Scale(correction*invA, n))
		b.Position = r3.Add(b.Position, r3.Scale(correction*invB, n))

		vn := r3.Dot(r3.Sub(a.Velocity, b.Velocity), n)
		if vn <= 0 {
			continue // already separating
		}
		j := (1 + p.restitution) * vn / invSum
		a.Velocity = r3.Sub(a.Velocity, r3.Scale(j*invA, n))
		b.Velocity = r3.Add(b.Velocity, r3.Scale(j*invB, n))
	}
	return hits
}

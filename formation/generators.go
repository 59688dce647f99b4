package formation

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/pthm-cable/blockorganism/config"
)

// Generator lays out count points for a shape. Generators are pure: the same
// inputs always produce the same positions.
type Generator func(count int, shape config.ShapeConfig) []r3.Vec

// goldenAngle is the angular step of a Fibonacci spiral.
var goldenAngle = math.Pi * (3 - math.Sqrt(5))

var generators = map[string]Generator{
	TypeSphere: Sphere,
	TypeCube:   Cube,
	TypeHelix:  Helix,
	TypeTorus:  Torus,
	TypeCircle: Circle,
	TypeLine:   Line,
}

// Sphere spreads points over a sphere surface with a golden-angle spiral.
func Sphere(count int, shape config.ShapeConfig) []r3.Vec {
	if count <= 0 {
		return nil
	}
	out := make([]r3.Vec, count)
	if count == 1 {
		out[0] = r3.Vec{Y: shape.Radius}
		return out
	}
	for i := range out {
		y := 1 - float64(i)/float64(count-1)*2
		r := math.Sqrt(math.Max(0, 1-y*y))
		theta := goldenAngle * float64(i)
		out[i] = r3.Scale(shape.Radius, r3.Vec{X: math.Cos(theta) * r, Y: y, Z: math.Sin(theta) * r})
	}
	return out
}

// Cube fills a centered grid with the smallest n where n³ >= count points per axis, x fastest.
func Cube(count int, shape config.ShapeConfig) []r3.Vec {
	if count <= 0 {
		return nil
	}
	n := 1
	for n*n*n < count {
		n++
	}
	step, origin := gridStep(n, shape.Size)

	out := make([]r3.Vec, 0, count)
	for z := 0; z < n && len(out) < count; z++ {
		for y := 0; y < n && len(out) < count; y++ {
			for x := 0; x < n && len(out) < count; x++ {
				out = append(out, r3.Vec{
					X: origin + float64(x)*step,
					Y: origin + float64(y)*step,
					Z: origin + float64(z)*step,
				})
			}
		}
	}
	return out
}

// Helix winds points around the Y axis from -Height/2 to Height/2.
func Helix(count int, shape config.ShapeConfig) []r3.Vec {
	if count <= 0 {
		return nil
	}
	out := make([]r3.Vec, count)
	for i := range out {
		t := fraction(i, count)
		angle := t * shape.Turns * 2 * math.Pi
		out[i] = r3.Vec{
			X: shape.Radius * math.Cos(angle),
			Y: (t - 0.5) * shape.Height,
			Z: shape.Radius * math.Sin(angle),
		}
	}
	return out
}

// Torus places points on rings around a tube of MinorRadius centered Radius from the origin.
func Torus(count int, shape config.ShapeConfig) []r3.Vec {
	if count <= 0 {
		return nil
	}
	segments := int(math.Ceil(math.Sqrt(float64(count))))
	rings := (count + segments - 1) / segments

	out := make([]r3.Vec, count)
	for i := range out {
		u := 2 * math.Pi * float64(i/segments) / float64(rings)
		v := 2 * math.Pi * float64(i%segments) / float64(segments)
		tube := shape.Radius + shape.MinorRadius*math.Cos(v)
		out[i] = r3.Vec{
			X: tube * math.Cos(u),
			Y: shape.MinorRadius * math.Sin(v),
			Z: tube * math.Sin(u),
		}
	}
	return out
}

// Circle spaces points evenly on a circle in the XY plane.
func Circle(count int, shape config.ShapeConfig) []r3.Vec {
	if count <= 0 {
		return nil
	}
	out := make([]r3.Vec, count)
	for i := range out {
		angle := 2 * math.Pi * float64(i) / float64(count)
		out[i] = r3.Vec{X: shape.Radius * math.Cos(angle), Y: shape.Radius * math.Sin(angle)}
	}
	return out
}

// Line spaces points evenly along the X axis, centered on the origin.
func Line(count int, shape config.ShapeConfig) []r3.Vec {
	if count <= 0 {
		return nil
	}
	out := make([]r3.Vec, count)
	for i := range out {
		out[i] = r3.Vec{X: (fraction(i, count) - 0.5) * shape.Size}
	}
	return out
}

// fraction maps i in [0, n) onto [0, 1]; a single point sits at the midpoint.
func fraction(i, n int) float64 {
	if n <= 1 {
		return 0.5
	}
	return float64(i) / float64(n-1)
}

func gridStep(n int, size float64) (step, origin float64) {
	if n <= 1 {
		return 0, 0
	}
	return size / float64(n-1), -size / 2
}

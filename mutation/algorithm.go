package mutation

import (
	"errors"
	"fmt"
	"math"

	"github.com/pthm-cable/blockorganism/seed"
	"github.com/pthm-cable/blockorganism/traits"
)

// Algorithm names a perturbation family.
type Algorithm string

const (
	Gaussian    Algorithm = "gaussian"
	Uniform     Algorithm = "uniform"
	Exponential Algorithm = "exponential"
	Logarithmic Algorithm = "logarithmic"
	Color       Algorithm = "color" // Routed through the palette/channel path
)

// Scale factors per algorithm.
const (
	gaussianSigma    = 0.1
	uniformSpread    = 0.2
	exponentialRate  = 0.05
	exponentialMaxEx = 2.0
	logarithmicScale = 0.1
)

var (
	// ErrUnknownTrait is returned when a mutation names a trait with no rule.
	ErrUnknownTrait = errors.New("unknown trait")
	// ErrUnknownAlgorithm is returned when a mutation names an unsupported algorithm.
	ErrUnknownAlgorithm = errors.New("unknown mutation algorithm")
	// ErrInvalidRule is returned for malformed trait rules.
	ErrInvalidRule = errors.New("invalid trait rule")
	// ErrStaleBlock is returned when evolving from a block at or before the organism's last mutation.
	ErrStaleBlock = errors.New("stale block")
)

// Valid reports whether a is a known numeric algorithm.
func (a Algorithm) Valid() bool {
	switch a {
	case Gaussian, Uniform, Exponential, Logarithmic:
		return true
	}
	return false
}

// Apply perturbs v with the named algorithm and clamps the result to [min, max].
// Unknown algorithms return v unchanged together with ErrUnknownAlgorithm.
func Apply(alg Algorithm, v, intensity, min, max float64, src seed.Source) (float64, error) {
	if math.IsNaN(v) {
		v = min
	}
	var next float64
	switch alg {
	case Gaussian:
		// Box-Muller; 1-draw keeps u1 in (0, 1]
		u1 := 1 - src.Next()
		u2 := src.Next()
		z := math.Sqrt(-2*math.Log(u1)) * math.Cos(2*math.Pi*u2)
		next = v + z*intensity*gaussianSigma
	case Uniform:
		spread := v * intensity * uniformSpread
		next = v + (src.Next()*2-1)*spread
	case Exponential:
		factor := 1 + intensity*exponentialRate*(src.Next()-0.5)
		next = v * math.Pow(factor, src.Next()*exponentialMaxEx)
	case Logarithmic:
		magnitude := math.Log1p(intensity * src.Next())
		next = v + (src.Next()*2-1)*magnitude*logarithmicScale
	default:
		return v, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, alg)
	}

	if math.IsNaN(next) || math.IsInf(next, 0) {
		next = v
	}
	return clamp(next, min, max), nil
}

// MutateColor either picks a palette color or jitters each channel by ±intensity*spread.
func MutateColor(c traits.Color, palette traits.Palette, intensity, paletteChance, spread float64, src seed.Source) traits.Color {
	if len(palette.Colors) > 0 && seed.Chance(src, paletteChance) {
		return palette.Colors[seed.Intn(src, len(palette.Colors))]
	}
	jitter := func(ch uint8) uint8 {
		return traits.Channel(float64(ch) + (src.Next()*2-1)*intensity*spread)
	}
	return traits.Color{R: jitter(c.R), G: jitter(c.G), B: jitter(c.B)}
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

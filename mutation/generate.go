package mutation

import (
	"fmt"

	"github.com/pthm-cable/blockorganism/block"
	"github.com/pthm-cable/blockorganism/seed"
	"github.com/pthm-cable/blockorganism/traits"
)

// Generate builds the trait snapshot for the organism born from header.
// stream must already be initialized with header.Seed(); only purpose streams are drawn from,
// so the main sequence is left for the caller.
func (e *Engine) Generate(header block.Header, stream *seed.Stream) *traits.OrganismTraits {
	org := traits.New(traits.OrganismID(header.Hash), header.Height, stream.Seed())

	visual := stream.Derive(StreamVisual)
	palette := traits.Palettes[seed.Intn(visual, len(traits.Palettes))]
	org.Visual.Palette = palette.Name
	org.Visual.PrimaryColor = palette.Colors[seed.Intn(visual, len(palette.Colors))]
	org.Visual.SecondaryColor = palette.Colors[seed.Intn(visual, len(palette.Colors))]

	// Base values, uniform within each declared range
	base := stream.Derive(StreamTraits)
	for _, r := range e.rules {
		if r.Algorithm == Color {
			continue
		}
		org.Set(r.Name, traits.Number(seed.Range(base, r.Min, r.Max)))
	}

	// One birth mutation per trait at the block's intensity
	intensity := e.Intensity(header.Difficulty)
	src := stream.Derive(StreamMutation)
	ev := EventFor(header)
	for _, r := range e.rules {
		// Rules are validated on entry, so Mutate cannot fail here.
		e.Mutate(org, r.Name, intensity, ev, src)
	}

	org.UpdateFitness()

	e.logger.Debug("traits generated",
		"organism", org.OrganismID,
		"block", header.Height,
		"tier", e.Tier(header.Difficulty).Name,
		"mutations", org.HistoryLen(),
	)
	return org
}

// Evolve applies a mutation event from a later block. Each trait mutates with
// probability equal to the organism's mutation rate. Returns the number of traits changed.
func (e *Engine) Evolve(org *traits.OrganismTraits, header block.Header) (int, error) {
	if header.Height <= org.Evolutionary.LastBlock {
		return 0, fmt.Errorf("%w: block %d is not after %d", ErrStaleBlock, header.Height, org.Evolutionary.LastBlock)
	}

	// Keyed on both seeds so replaying the same block on the same organism repeats the event.
	src := seed.NewSeeded(org.Seed ^ header.Seed())
	intensity := e.Intensity(header.Difficulty) * (0.5 + org.Evolutionary.Adaptability)
	rate := org.Evolutionary.MutationRate
	ev := EventFor(header)

	changed := 0
	for _, r := range e.rules {
		if !seed.Chance(src, rate) {
			continue
		}
		if _, err := e.Mutate(org, r.Name, intensity, ev, src); err == nil {
			changed++
		}
	}

	org.Evolutionary.Generation++
	org.Evolutionary.LastBlock = header.Height
	org.UpdateFitness()
	return changed, nil
}

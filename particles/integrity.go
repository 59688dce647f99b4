package particles

// IntegrityReport describes free-list consistency before any repair.
type IntegrityReport struct {
	Capacity      int
	ActiveFlags   int // Slots with Active set
	ActiveCounter int // Tracked active count
	FreeEntries   int
	Duplicates    int // Free entries listed more than once
	OutOfRange    int // Free entries outside the pool
	ActiveInFree  int // Free entries pointing at active slots
	MissingFree   int // Inactive slots absent from the free list
	Repaired      bool
}

// Valid reports whether no inconsistency was found.
func (r IntegrityReport) Valid() bool {
	return r.ActiveFlags == r.ActiveCounter &&
		r.Duplicates == 0 && r.OutOfRange == 0 &&
		r.ActiveInFree == 0 && r.MissingFree == 0 &&
		r.ActiveFlags+r.FreeEntries == r.Capacity
}

// Validate checks the free list against the active flags, which are
// authoritative. On mismatch the free list and active count are rebuilt.
// A consistent pool is left untouched, so a second call never changes anything.
func (p *Pool) Validate() IntegrityReport {
	r := IntegrityReport{
		Capacity:      len(p.particles),
		ActiveCounter: p.active,
		FreeEntries:   len(p.free),
	}

	listed := make([]bool, len(p.particles))
	for _, id := range p.free {
		switch {
		case id < 0 || id >= len(p.particles):
			r.OutOfRange++
		case listed[id]:
			r.Duplicates++
		default:
			listed[id] = true
			if p.particles[id].Active {
				r.ActiveInFree++
			}
		}
	}
	for i := range p.particles {
		if p.particles[i].Active {
			r.ActiveFlags++
		} else if !listed[i] {
			r.MissingFree++
		}
	}

	if r.Valid() {
		return r
	}

	p.active = r.ActiveFlags
	p.rebuildFree()
	r.Repaired = true

	p.metrics.IntegrityRepair()
	p.metrics.SetActive(p.active)
	p.logger.Warn("particle pool repaired",
		"active_flags", r.ActiveFlags,
		"active_counter", r.ActiveCounter,
		"free_entries", r.FreeEntries,
		"duplicates", r.Duplicates,
		"out_of_range", r.OutOfRange,
		"active_in_free", r.ActiveInFree,
		"missing_free", r.MissingFree,
	)
	return r
}

// Package formation owns named geometric particle layouts and caches their positions.
package formation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gonum.org/v1/gonum/spatial/r3"
)

// Pattern types.
const (
	TypeSphere     = "sphere"
	TypeCube       = "cube"
	TypeHelix      = "helix"
	TypeTorus      = "torus"
	TypeCircle     = "circle"
	TypeLine       = "line"
	TypeCustom     = "custom"
	TypeProcedural = "procedural"
)

var (
	// ErrInvalidPattern is returned for malformed pattern definitions.
	ErrInvalidPattern = errors.New("invalid pattern")
	// ErrDuplicatePattern is returned when registering an id that already exists.
	ErrDuplicatePattern = errors.New("pattern already registered")
	// ErrPatternNotFound is returned for unknown pattern ids.
	ErrPatternNotFound = errors.New("pattern not found")
	// ErrCapacityExceeded is returned when more positions are requested than a pattern holds.
	ErrCapacityExceeded = errors.New("pattern capacity exceeded")
	// ErrInvalidOptions is returned for negative or non-finite scale and rotation values.
	ErrInvalidOptions = errors.New("invalid layout options")
)

// Pattern is a named layout of up to MaxParticles positions.
type Pattern struct {
	ID           string
	Name         string
	Type         string
	MaxParticles int
	Positions    []r3.Vec
	Metadata     map[string]string
}

// Validate checks a pattern before registration.
func (p *Pattern) Validate() error {
	switch {
	case p.ID == "":
		return fmt.Errorf("%w: empty id", ErrInvalidPattern)
	case strings.ContainsRune(p.ID, keySep):
		return fmt.Errorf("%w: %s: id must not contain %q", ErrInvalidPattern, p.ID, keySep)
	case p.Name == "":
		return fmt.Errorf("%w: %s: empty name", ErrInvalidPattern, p.ID)
	case p.Type == "":
		return fmt.Errorf("%w: %s: empty type", ErrInvalidPattern, p.ID)
	case p.MaxParticles <= 0:
		return fmt.Errorf("%w: %s: max particles must be positive, got %d", ErrInvalidPattern, p.ID, p.MaxParticles)
	case len(p.Positions) == 0:
		return fmt.Errorf("%w: %s: no positions", ErrInvalidPattern, p.ID)
	}
	return nil
}

// clone returns a copy that shares nothing with p.
func (p *Pattern) clone() *Pattern {
	cp := *p
	cp.Positions = append([]r3.Vec(nil), p.Positions...)
	if p.Metadata != nil {
		cp.Metadata = make(map[string]string, len(p.Metadata))
		for k, v := range p.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// CacheEntry wraps a cached layout with eviction bookkeeping.
type CacheEntry struct {
	Pattern      *Pattern
	Timestamp    time.Time
	AccessCount  int
	LastAccessed time.Time
}

// Options adjust a computed layout.
type Options struct {
	Scale    float64 // Uniform scale; 0 means 1
	Rotation r3.Vec  // Radians about X, then Y, then Z
}

// ApplyMetrics reports the cost of one ApplyFormation call.
type ApplyMetrics struct {
	Duration    time.Duration
	MemoryBytes uint64
}

// ApplyResult is the outcome of binding a layout to a set of particles.
// Failures carry a reason and leave Positions empty.
type ApplyResult struct {
	Success             bool
	Reason              string
	Err                 error
	Positions           []r3.Vec
	ParticlesPositioned int
	Metrics             ApplyMetrics
}

// Stats summarizes cache activity.
type Stats struct {
	Patterns  int
	CacheSize int
	Capacity  int
	Hits      int
	Misses    int
	Evictions int
}

// HitRate returns hits / (hits + misses), or 0 before any lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Package seed provides the deterministic random stream every organism is built from.
//
// A Stream is a Mulberry32 generator keyed by a 32-bit seed. Purpose streams
// derived from it by label are independent generators, so draws made for one
// concern (trait values, colors, formation jitter) never shift the sequence
// seen by another.
package seed

import "math"

// Defaults used when a stream is built without configuration.
const (
	DefaultSeed           uint32 = 12345
	DefaultMaxChainLength        = 1000
)

const (
	increment = 0x6D2B79F5
	twoPow32  = 4294967296.0
)

// State is the mutable record behind a stream.
type State struct {
	Seed        uint32 // Seed the current sequence started from
	Counter     uint64 // Draws since the last Initialize or Rehash
	ChainLength int    // Rehashes since the last Initialize
}

// Stream is a deterministic pseudo-random generator with named sub-streams.
// It is not safe for concurrent use.
type Stream struct {
	state State
	a     uint32

	defaultSeed    uint32
	maxChainLength int

	purposes map[string]*Stream
}

// New creates a stream seeded with defaultSeed.
// A zero maxChainLength selects DefaultMaxChainLength.
func New(defaultSeed uint32, maxChainLength int) *Stream {
	if maxChainLength <= 0 {
		maxChainLength = DefaultMaxChainLength
	}
	s := &Stream{
		defaultSeed:    defaultSeed,
		maxChainLength: maxChainLength,
	}
	s.Initialize(defaultSeed)
	return s
}

// NewSeeded creates a stream with default limits, initialized to seed.
func NewSeeded(seed uint32) *Stream {
	s := New(DefaultSeed, DefaultMaxChainLength)
	s.Initialize(seed)
	return s
}

// Initialize resets the stream to seed, clearing counters and cached purpose streams.
func (s *Stream) Initialize(seed uint32) {
	s.state = State{Seed: seed}
	s.a = seed
	s.purposes = nil
}

// Next returns the next float in [0, 1). Each call advances the state exactly once.
func (s *Stream) Next() float64 {
	s.a += increment
	t := s.a
	t = (t ^ t>>15) * (t | 1)
	t ^= t + (t^t>>7)*(t|61)
	s.state.Counter++
	return float64(t^t>>14) / twoPow32
}

// Derive returns the purpose stream for label, creating it on first request.
// Its seed is the current seed XOR Hash(label); later calls return the cached stream.
func (s *Stream) Derive(label string) *Stream {
	if p, ok := s.purposes[label]; ok {
		return p
	}
	if s.purposes == nil {
		s.purposes = make(map[string]*Stream)
	}
	p := &Stream{
		defaultSeed:    s.defaultSeed,
		maxChainLength: s.maxChainLength,
	}
	p.Initialize(s.state.Seed ^ Hash(label))
	s.purposes[label] = p
	return p
}

// Rehash reseeds the stream from its own next draw.
// Once the chain grows past the configured maximum the stream falls back to the default seed.
func (s *Stream) Rehash() {
	next := uint32(math.Floor(s.Next() * twoPow32))
	chain := s.state.ChainLength + 1
	if chain > s.maxChainLength {
		s.Initialize(s.defaultSeed)
		return
	}
	purposes := s.purposes
	s.Initialize(next)
	s.purposes = purposes
	s.state.ChainLength = chain
}

// State returns a copy of the stream's state.
func (s *Stream) State() State {
	return s.state
}

// Seed returns the seed of the current sequence.
func (s *Stream) Seed() uint32 {
	return s.state.Seed
}

// PurposeCount returns the number of cached purpose streams.
func (s *Stream) PurposeCount() int {
	return len(s.purposes)
}

// Hash folds a string into 32 bits with the h*31+c string hash.
func Hash(label string) uint32 {
	var h uint32
	for i := 0; i < len(label); i++ {
		h = h*31 + uint32(label[i])
	}
	return h
}

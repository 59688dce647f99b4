// Package block holds the block header input and the one seed scheme derived from it.
package block

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/pthm-cable/blockorganism/seed"
)

var (
	// ErrInvalidHeader is returned for headers that cannot seed an organism.
	ErrInvalidHeader = errors.New("invalid block header")
	// ErrHeaderNotFound is returned by sources that do not know a height.
	ErrHeaderNotFound = errors.New("block header not found")
)

// Header is the subset of a block header the engine consumes.
type Header struct {
	Height            int64   `json:"height"`
	Hash              string  `json:"hash"`
	PreviousBlockHash string  `json:"previousblockhash"`
	MerkleRoot        string  `json:"merkleroot"`
	Time              int64   `json:"time"` // Unix seconds
	Difficulty        float64 `json:"difficulty"`
	NTx               int     `json:"nTx"`
	Size              int     `json:"size"`
	Weight            int     `json:"weight"`
}

// Validate checks the fields the seed scheme depends on.
func (h Header) Validate() error {
	if h.Height < 0 {
		return fmt.Errorf("%w: negative height %d", ErrInvalidHeader, h.Height)
	}
	if len(h.Hash) != 64 {
		return fmt.Errorf("%w: hash must be 64 hex digits, got %d", ErrInvalidHeader, len(h.Hash))
	}
	if _, err := hex.DecodeString(h.Hash); err != nil {
		return fmt.Errorf("%w: hash is not hex: %v", ErrInvalidHeader, err)
	}
	if h.Difficulty < 0 {
		return fmt.Errorf("%w: negative difficulty", ErrInvalidHeader)
	}
	return nil
}

// Seed derives the organism seed from the block hash.
// The hash is lowercased and folded with seed.Hash; height is never used.
func (h Header) Seed() uint32 {
	return seed.Hash(strings.ToLower(h.Hash))
}

// Timestamp returns the block time.
func (h Header) Timestamp() time.Time {
	return time.Unix(h.Time, 0).UTC()
}

// Source resolves block headers by height.
// Implementations may block; the engine calls them once, before seeding.
type Source interface {
	Header(ctx context.Context, height int64) (Header, error)
}

// MemorySource serves headers from memory.
type MemorySource struct {
	headers map[int64]Header
}

// NewMemorySource builds a source from the given headers.
func NewMemorySource(headers ...Header) *MemorySource {
	m := &MemorySource{headers: make(map[int64]Header, len(headers))}
	for _, h := range headers {
		m.headers[h.Height] = h
	}
	return m
}

// Add stores or replaces a header.
func (m *MemorySource) Add(h Header) {
	m.headers[h.Height] = h
}

// Heights returns the stored heights in ascending order.
func (m *MemorySource) Heights() []int64 {
	out := make([]int64, 0, len(m.headers))
	for h := range m.headers {
		out = append(out, h)
	}
	slices.Sort(out)
	return out
}

// Header implements Source.
func (m *MemorySource) Header(ctx context.Context, height int64) (Header, error) {
	if err := ctx.Err(); err != nil {
		return Header{}, err
	}
	h, ok := m.headers[height]
	if !ok {
		return Header{}, fmt.Errorf("%w: height %d", ErrHeaderNotFound, height)
	}
	return h, nil
}

// LoadFile reads headers from a JSON file holding either one header or an array.
func LoadFile(path string) (*MemorySource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading header file: %w", err)
	}

	trimmed := strings.TrimSpace(string(data))
	var headers []Header
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(data, &headers); err != nil {
			return nil, fmt.Errorf("parsing header array: %w", err)
		}
	} else {
		var h Header
		if err := json.Unmarshal(data, &h); err != nil {
			return nil, fmt.Errorf("parsing header: %w", err)
		}
		headers = append(headers, h)
	}

	for _, h := range headers {
		if err := h.Validate(); err != nil {
			return nil, fmt.Errorf("header at height %d: %w", h.Height, err)
		}
	}
	return NewMemorySource(headers...), nil
}

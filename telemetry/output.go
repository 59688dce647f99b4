package telemetry

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/blockorganism/config"
	"github.com/pthm-cable/blockorganism/traits"
)

// MutationCSV is a flat row for one mutation history entry.
type MutationCSV struct {
	OrganismID  string  `csv:"organism_id"`
	Timestamp   string  `csv:"timestamp"`
	BlockNumber int64   `csv:"block_number"`
	Category    string  `csv:"category"`
	Trait       string  `csv:"trait"`
	Previous    string  `csv:"previous"`
	Next        string  `csv:"next"`
	Strength    float64 `csv:"strength"`
}

// MutationRows flattens an organism's history into CSV rows.
func MutationRows(org *traits.OrganismTraits) []MutationCSV {
	history := org.History()
	rows := make([]MutationCSV, 0, len(history))
	for _, r := range history {
		rows = append(rows, MutationCSV{
			OrganismID:  org.OrganismID,
			Timestamp:   r.Timestamp.UTC().Format(time.RFC3339),
			BlockNumber: r.BlockNumber,
			Category:    r.Category,
			Trait:       r.TraitName,
			Previous:    r.Previous.String(),
			Next:        r.Next.String(),
			Strength:    r.Strength,
		})
	}
	return rows
}

// csvFile tracks whether a CSV file has had its header written.
type csvFile struct {
	f             *os.File
	headerWritten bool
}

// write appends records, including headers on the first call.
func write[T any](cf *csvFile, records []T) error {
	if len(records) == 0 {
		return nil
	}
	if !cf.headerWritten {
		if err := gocsv.Marshal(records, cf.f); err != nil {
			return err
		}
		cf.headerWritten = true
		return nil
	}
	return gocsv.MarshalWithoutHeaders(records, cf.f)
}

// OutputManager handles diagnostic CSV output for a run.
type OutputManager struct {
	dir       string
	mutations *csvFile
	pool      *csvFile
	perf      *csvFile
}

// NewOutputManager creates a new output manager and initializes the output directory.
// Returns nil if dir is empty (output disabled).
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir}
	files := []struct {
		name string
		dst  **csvFile
	}{
		{"mutations.csv", &om.mutations},
		{"pool.csv", &om.pool},
		{"perf.csv", &om.perf},
	}
	for _, file := range files {
		f, err := os.Create(filepath.Join(dir, file.name))
		if err != nil {
			om.Close()
			return nil, fmt.Errorf("creating %s: %w", file.name, err)
		}
		*file.dst = &csvFile{f: f}
	}

	return om, nil
}

// WriteConfig saves the current configuration as YAML.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, "config.yaml"))
}

// WriteMutations appends an organism's mutation history to mutations.csv.
func (om *OutputManager) WriteMutations(org *traits.OrganismTraits) error {
	if om == nil {
		return nil
	}
	return om.WriteMutationRows(MutationRows(org))
}

// WriteMutationRows appends pre-flattened history rows to mutations.csv.
func (om *OutputManager) WriteMutationRows(rows []MutationCSV) error {
	if om == nil {
		return nil
	}
	if err := write(om.mutations, rows); err != nil {
		return fmt.Errorf("writing mutations: %w", err)
	}
	return nil
}

// WritePool writes a window stats record to pool.csv.
func (om *OutputManager) WritePool(stats WindowStats) error {
	if om == nil {
		return nil
	}
	if err := write(om.pool, []WindowStats{stats}); err != nil {
		return fmt.Errorf("writing pool stats: %w", err)
	}
	return nil
}

// WritePerf writes a performance stats record to perf.csv.
func (om *OutputManager) WritePerf(stats PerfStats, windowEnd int32) error {
	if om == nil {
		return nil
	}
	if err := write(om.perf, []PerfStatsCSV{stats.ToCSV(windowEnd)}); err != nil {
		return fmt.Errorf("writing perf: %w", err)
	}
	return nil
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close flushes and closes all output files.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}

	var firstErr error
	for _, cf := range []*csvFile{om.mutations, om.pool, om.perf} {
		if cf == nil || cf.f == nil {
			continue
		}
		if err := cf.f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

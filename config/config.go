// Package config provides configuration loading and access for the organism engine.
package config

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Config holds all engine configuration parameters.
type Config struct {
	Seed      SeedConfig      `yaml:"seed"`
	Mutation  MutationConfig  `yaml:"mutation"`
	Formation FormationConfig `yaml:"formation"`
	Pool      PoolConfig      `yaml:"pool"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// SeedConfig holds seed stream parameters.
type SeedConfig struct {
	DefaultSeed    uint32 `yaml:"default_seed"`     // Seed used on reset after a runaway rehash chain
	MaxChainLength int    `yaml:"max_chain_length"` // Rehash count before resetting to DefaultSeed
}

// TraitConfig declares one mutable trait.
type TraitConfig struct {
	Name      string  `yaml:"name"`      // Dotted name, e.g. "visual.size"
	Category  string  `yaml:"category"`  // visual, behavioral, physical, evolutionary
	Algorithm string  `yaml:"algorithm"` // gaussian, uniform, exponential, logarithmic, color
	Min       float64 `yaml:"min"`
	Max       float64 `yaml:"max"`
}

// IntensityTier maps a difficulty threshold to a mutation intensity multiplier.
type IntensityTier struct {
	Name          string  `yaml:"name"`
	MaxDifficulty float64 `yaml:"max_difficulty"` // Upper bound (exclusive); 0 = unbounded
	Multiplier    float64 `yaml:"multiplier"`
}

// MutationConfig holds mutation engine parameters.
type MutationConfig struct {
	PaletteChance float64         `yaml:"palette_chance"` // Probability a color mutation picks from the palette
	ChannelSpread float64         `yaml:"channel_spread"` // Per-channel perturbation per unit intensity
	Tiers         []IntensityTier `yaml:"tiers"`
	Traits        []TraitConfig   `yaml:"traits"`
}

// ShapeConfig holds size parameters for a built-in formation.
type ShapeConfig struct {
	MaxParticles int     `yaml:"max_particles"`
	Radius       float64 `yaml:"radius"`      // sphere, circle, helix, torus major radius
	MinorRadius  float64 `yaml:"minor_radius"` // torus tube radius
	Size         float64 `yaml:"size"`        // cube edge, line length
	Height       float64 `yaml:"height"`      // helix height
	Turns        float64 `yaml:"turns"`       // helix turns
}

// FormationConfig holds formation catalog parameters.
type FormationConfig struct {
	CacheCapacity int                    `yaml:"cache_capacity"`
	Shapes        map[string]ShapeConfig `yaml:"shapes"`
}

// PoolConfig holds particle pool parameters.
type PoolConfig struct {
	Capacity          int       `yaml:"capacity"`
	Gravity           []float64 `yaml:"gravity"` // x, y, z acceleration
	Damping           float64   `yaml:"damping"`
	Restitution       float64   `yaml:"restitution"`
	SeparationPercent float64   `yaml:"separation_percent"` // Fraction of overlap resolved per collision
	Collisions        bool      `yaml:"collisions"`
	DefaultLifetime   float64   `yaml:"default_lifetime"`
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	PerfWindow  int     `yaml:"perf_window"`  // Ticks averaged by the perf collector
	StatsWindow float64 `yaml:"stats_window"` // Simulated seconds per pool stats window
	OutputDir   string  `yaml:"output_dir"`
	LogLevel    string  `yaml:"log_level"`
}

// EnvOverrides are environment variables layered on top of the YAML configuration.
type EnvOverrides struct {
	ConfigPath    string `env:"ORGANISM_CONFIG"`
	OutputDir     string `env:"ORGANISM_OUTPUT_DIR"`
	PoolCapacity  int    `env:"ORGANISM_POOL_CAPACITY"`
	CacheCapacity int    `env:"ORGANISM_CACHE_CAPACITY"`
	LogLevel      string `env:"ORGANISM_LOG_LEVEL"`
}

// global holds the loaded configuration.
var global *Config

// Init loads configuration from the given path, or uses embedded defaults if path is empty.
// Must be called before Cfg().
func Init(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	global = cfg
	return nil
}

// MustInit is like Init but panics on error.
func MustInit(path string) {
	if err := Init(path); err != nil {
		panic(fmt.Sprintf("config: failed to initialize: %v", err))
	}
}

// Cfg returns the global configuration. Panics if Init was not called.
func Cfg() *Config {
	if global == nil {
		panic("config: Cfg() called before Init()")
	}
	return global
}

// Default returns a fresh copy of the embedded defaults.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(fmt.Sprintf("config: embedded defaults are invalid: %v", err))
	}
	return cfg
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromEnv reads ORGANISM_* overrides, loads the referenced config file (if any)
// and applies the remaining overrides on top.
func LoadFromEnv(path string) (*Config, error) {
	var ov EnvOverrides
	if err := env.Parse(&ov); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if path == "" {
		path = ov.ConfigPath
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyOverrides(ov)
	return cfg, nil
}

// ApplyOverrides copies non-zero override values into the config.
func (c *Config) ApplyOverrides(ov EnvOverrides) {
	if ov.OutputDir != "" {
		c.Telemetry.OutputDir = ov.OutputDir
	}
	if ov.PoolCapacity > 0 {
		c.Pool.Capacity = ov.PoolCapacity
	}
	if ov.CacheCapacity > 0 {
		c.Formation.CacheCapacity = ov.CacheCapacity
	}
	if ov.LogLevel != "" {
		c.Telemetry.LogLevel = ov.LogLevel
	}
}

// Validate checks structural constraints that would otherwise surface as runtime surprises.
func (c *Config) Validate() error {
	if c.Pool.Capacity <= 0 {
		return fmt.Errorf("pool.capacity must be positive, got %d", c.Pool.Capacity)
	}
	if c.Formation.CacheCapacity <= 0 {
		return fmt.Errorf("formation.cache_capacity must be positive, got %d", c.Formation.CacheCapacity)
	}
	if c.Seed.MaxChainLength <= 0 {
		return fmt.Errorf("seed.max_chain_length must be positive, got %d", c.Seed.MaxChainLength)
	}
	if len(c.Pool.Gravity) > 3 {
		return fmt.Errorf("pool.gravity has %d components, want at most 3", len(c.Pool.Gravity))
	}
	if len(c.Mutation.Tiers) == 0 {
		return fmt.Errorf("mutation.tiers must not be empty")
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// Package config defines pipeline configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults.
// - Nested sections map to YAML maps and to "__" in environment keys.
// - Errors are wrapped with this package's sentinel kinds.
package config

import (
	"fmt"
	"path/filepath"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects "text" or "json" log output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// SeriesDir holds one cleaned light curve per target.
	SeriesDir string `koanf:"series_dir"`

	// TargetsFile lists target identifiers, one per line.
	TargetsFile string `koanf:"targets_file"`

	// MetadataFile is the external stellar catalog table.
	MetadataFile string `koanf:"metadata_file"`

	// OutputDir receives every stage artifact.
	OutputDir string `koanf:"output_dir"`

	// DipThreshold is the normalized flux below which a sample is dipping.
	DipThreshold float64 `koanf:"dip_threshold"`

	// MaxCandidateLimit caps GET /candidates?limit.
	MaxCandidateLimit int `koanf:"max_candidate_limit"`

	Model       ModelConfig       `koanf:"model"`
	Lookup      LookupConfig      `koanf:"lookup"`
	Periodicity PeriodicityConfig `koanf:"periodicity"`
	Scoring     ScoringConfig     `koanf:"scoring"`
}

// ModelConfig tunes classifier training.
type ModelConfig struct {
	TestFraction float64 `koanf:"test_fraction"`
	Seed         int64   `koanf:"seed"`
	Trees        int     `koanf:"trees"`
	MaxDepth     int     `koanf:"max_depth"`
	LeafSize     int     `koanf:"leaf_size"`
}

// LookupConfig tunes the external catalog lookups.
type LookupConfig struct {
	BaseURL     string        `koanf:"base_url"`
	Concurrency int           `koanf:"concurrency"`
	QueueSize   int           `koanf:"queue_size"`
	Timeout     time.Duration `koanf:"timeout"`

	// RequestsPerSecond limits the lookup rate; zero disables limiting.
	RequestsPerSecond float64 `koanf:"requests_per_second"`
	Burst             int     `koanf:"burst"`
}

// PeriodicityConfig tunes the periodogram.
type PeriodicityConfig struct {
	PowerThreshold float64 `koanf:"power_threshold"`
	MaxFrequencies int     `koanf:"max_frequencies"`
}

// ScoringConfig tunes the discovery rubric.
type ScoringConfig struct {
	// AbsentNearEdgeSatisfied awards the edge criterion when near_edge is missing.
	AbsentNearEdgeSatisfied bool `koanf:"absent_near_edge_satisfied"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:          "info",
		LogFormat:         "text",
		Addr:              ":9080",
		SeriesDir:         filepath.Join("data", "lightcurves"),
		TargetsFile:       "tics.txt",
		MetadataFile:      filepath.Join("data", "tic_metadata.csv"),
		OutputDir:         "data",
		DipThreshold:      0.995,
		MaxCandidateLimit: 100,
		Model: ModelConfig{
			TestFraction: 0.2,
			Seed:         42,
			Trees:        100,
			MaxDepth:     32,
			LeafSize:     1,
		},
		Lookup: LookupConfig{
			BaseURL:     "https://exofop.ipac.caltech.edu/tess/target.php",
			Concurrency: 8,
			QueueSize:   1024,
			Timeout:     10 * time.Second,
			Burst:       1,
		},
		Periodicity: PeriodicityConfig{
			PowerThreshold: 0.1,
			MaxFrequencies: 2000,
		},
		Scoring: ScoringConfig{AbsentNearEdgeSatisfied: true},
	}
}

// Validate checks the invariants every stage relies on.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.OutputDir == "":
		return fmt.Errorf("%w: output_dir must not be empty", ErrInvalidConfig)
	case c.DipThreshold <= 0 || c.DipThreshold > 1:
		return fmt.Errorf("%w: dip_threshold must be in (0, 1], got %v", ErrInvalidConfig, c.DipThreshold)
	case c.Model.TestFraction <= 0 || c.Model.TestFraction >= 1:
		return fmt.Errorf("%w: model.test_fraction must be in (0, 1), got %v", ErrInvalidConfig, c.Model.TestFraction)
	case c.Lookup.Concurrency < 1:
		return fmt.Errorf("%w: lookup.concurrency must be positive", ErrInvalidConfig)
	case c.Lookup.Timeout <= 0:
		return fmt.Errorf("%w: lookup.timeout must be positive", ErrInvalidConfig)
	case c.Lookup.RequestsPerSecond < 0:
		return fmt.Errorf("%w: lookup.requests_per_second must not be negative", ErrInvalidConfig)
	case c.MaxCandidateLimit < 1:
		return fmt.Errorf("%w: max_candidate_limit must be positive", ErrInvalidConfig)
	}
	return nil
}

package testflux

import (
	"path/filepath"
	"time"

	"github.com/okian/dipscan/internal/domain/model"
)

// Config holds configuration for synthetic light curve generation
type Config struct {
	OutputDir        string  // Root directory for generated files
	Targets          int     // Number of targets to generate
	Samples          int     // Samples per light curve
	Cadence          float64 // Days between samples
	Noise            float64 // Gaussian flux noise sigma
	DipsPerTarget    int     // Injected dips per target
	PeriodicFraction float64 // Share of targets with a sinusoidal signal
	Seed             int64   // Random seed; equal seeds give equal output
	FirstID          int     // Numeric id of the first target
}

// DefaultConfig returns the settings used by the synth-flux command.
func DefaultConfig() Config {
	return Config{
		OutputDir:        "data",
		Targets:          12,
		Samples:          1000,
		Cadence:          defaultCadence,
		Noise:            defaultNoise,
		DipsPerTarget:    4,
		PeriodicFraction: 0.25,
		Seed:             1,
		FirstID:          100000001,
	}
}

// SeriesDir is where light curves are written.
func (c Config) SeriesDir() string { return filepath.Join(c.OutputDir, "lightcurves") }

// TargetsFile is the generated target list.
func (c Config) TargetsFile() string { return filepath.Join(c.OutputDir, "tics.txt") }

// MetadataFile is the generated stellar catalog.
func (c Config) MetadataFile() string { return filepath.Join(c.OutputDir, "tic_metadata.csv") }

// InjectedDip records a box dip placed into a curve.
type InjectedDip struct {
	Kind   model.Label
	Start  int
	Length int
	Depth  float64
}

// Curve is one generated target.
type Curve struct {
	Series   model.Series
	Dips     []InjectedDip
	Period   float64 // days, zero when not periodic
	Metadata model.TargetMetadata
}

// Summary holds generation statistics
type Summary struct {
	RunID    string
	Targets  int
	Dips     int
	Periodic int
	Files    []string
	Duration time.Duration
}

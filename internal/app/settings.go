package service

import (
	"path/filepath"
	"time"

	"github.com/okian/dipscan/internal/config"
)

// Artifact file names inside the output directory.
const (
	FileAllDips          = "all_dips.csv"
	FileRuleLabels       = "dip_labels_auto.csv"
	FileModel            = "dip_classifier_model.json"
	FileModelReport      = "dip_classifier_report.json"
	FilePredicted        = "predicted_dip_labels.csv"
	FileCatalogStatus    = "predicted_dips_with_exofop_status.csv"
	FileMerged           = "merged_dip_metadata.csv"
	FileBrightCandidates = "bright_dip_candidates.csv"
	FilePeriodicity      = "periodicity_flags.csv"
	FileRadius           = "dips_with_radius.csv"
	FileScores           = "discovery_scores.csv"

	targetDipsSuffix = "_dips.csv"
)

// Settings is the explicit configuration passed to every stage.
type Settings struct {
	SeriesDir    string
	TargetsFile  string
	MetadataFile string
	OutputDir    string

	DipThreshold float64

	TestFraction float64
	Seed         int64
	Trees        int
	MaxDepth     int
	LeafSize     int

	LookupBaseURL     string
	LookupConcurrency int
	LookupQueueSize   int
	LookupTimeout     time.Duration
	RequestsPerSecond float64
	Burst             int

	PowerThreshold float64
	MaxFrequencies int

	AbsentNearEdgeSatisfied bool
}

// NewSettings converts a loaded Config.
func NewSettings(cfg *config.Config) Settings {
	return Settings{
		SeriesDir:               cfg.SeriesDir,
		TargetsFile:             cfg.TargetsFile,
		MetadataFile:            cfg.MetadataFile,
		OutputDir:               cfg.OutputDir,
		DipThreshold:            cfg.DipThreshold,
		TestFraction:            cfg.Model.TestFraction,
		Seed:                    cfg.Model.Seed,
		Trees:                   cfg.Model.Trees,
		MaxDepth:                cfg.Model.MaxDepth,
		LeafSize:                cfg.Model.LeafSize,
		LookupBaseURL:           cfg.Lookup.BaseURL,
		LookupConcurrency:       cfg.Lookup.Concurrency,
		LookupQueueSize:         cfg.Lookup.QueueSize,
		LookupTimeout:           cfg.Lookup.Timeout,
		RequestsPerSecond:       cfg.Lookup.RequestsPerSecond,
		Burst:                   cfg.Lookup.Burst,
		PowerThreshold:          cfg.Periodicity.PowerThreshold,
		MaxFrequencies:          cfg.Periodicity.MaxFrequencies,
		AbsentNearEdgeSatisfied: cfg.Scoring.AbsentNearEdgeSatisfied,
	}
}

// DefaultSettings returns the settings of a default Config.
func DefaultSettings() Settings {
	return NewSettings(config.New())
}

// Path returns the location of an artifact in the output directory.
func (s Settings) Path(name string) string {
	return filepath.Join(s.OutputDir, name)
}

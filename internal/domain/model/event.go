// Package model contains domain models passed between pipeline stages.
package model

import (
	"strings"
)

// FluxSample is one point of a cleaned, normalized light curve.
type FluxSample struct {
	Time float64 // observation time (days)
	Flux float64 // flux normalized to a baseline of 1.0
}

// Series is the ordered light curve of a single target.
type Series struct {
	TargetID string
	Samples  []FluxSample
}

// Len returns the number of samples in the series.
func (s Series) Len() int { return len(s.Samples) }

// DipEvent is a maximal contiguous run of below-threshold samples.
type DipEvent struct {
	TargetID   string
	StartIndex int // first sample in the run
	EndIndex   int // last sample in the run (inclusive)
	StartTime  float64
	EndTime    float64
	Depth      float64 // 1 - min(flux) over the run
	Duration   float64 // EndTime - StartTime
}

// Label is a coarse dip category shared by the rule labeler and the classifier.
type Label string

// Dip categories.
const (
	LabelNoise    Label = "noise"
	LabelAsteroid Label = "asteroid"
	LabelPlanet   Label = "planet"
	LabelUnknown  Label = "unknown"
)

// Trainable reports whether a label may be used as a training target.
func (l Label) Trainable() bool {
	switch l {
	case LabelNoise, LabelAsteroid, LabelPlanet:
		return true
	default:
		return false
	}
}

// ParseLabel normalizes a label read from a table cell.
func ParseLabel(s string) Label {
	return Label(strings.ToLower(strings.TrimSpace(s)))
}

// DiscoveryLabel is the final category assigned by the scorer.
type DiscoveryLabel string

// Discovery categories ordered from least to most interesting.
const (
	DiscoveryNoise            DiscoveryLabel = "Noise"
	DiscoveryInterestingNoise DiscoveryLabel = "Interesting Noise"
	DiscoveryPossibleAsteroid DiscoveryLabel = "Possible Asteroid"
	DiscoveryLikelyPlanet     DiscoveryLabel = "Likely Planet"
)

// DiscoveryLabels lists every discovery label.
var DiscoveryLabels = []DiscoveryLabel{ //nolint:gochecknoglobals // fixed enumeration
	DiscoveryNoise,
	DiscoveryInterestingNoise,
	DiscoveryPossibleAsteroid,
	DiscoveryLikelyPlanet,
}

// CatalogStatus classifies a target database lookup.
type CatalogStatus string

// Catalog status values.
const (
	StatusNotFound       CatalogStatus = "not-found"
	StatusKnownObject    CatalogStatus = "known-object"
	StatusNoObjectListed CatalogStatus = "found-no-object-listed"
	StatusLookupError    CatalogStatus = "lookup-error"
)

// TargetMetadata holds per-target physical parameters from an external catalog.
// Nil fields were absent in the catalog row.
type TargetMetadata struct {
	TargetID             string
	RA                   *float64
	Dec                  *float64
	ApparentMagnitude    *float64
	StellarRadiusSolar   *float64
	EffectiveTemperature *float64
}

// PeriodicityFlag records the periodogram outcome for a target.
type PeriodicityFlag struct {
	TargetID       string
	IsPeriodic     bool
	PeakPower      float64
	BestPeriodDays float64
}

// Candidate carries every field the discovery scorer reads.
// Nil pointers are missing values; they never satisfy a criterion.
type Candidate struct {
	TargetID          string
	Depth             *float64
	Duration          *float64
	PredictedLabel    *Label
	CatalogStatus     *CatalogStatus
	ApparentMagnitude *float64
	IsPeriodic        *bool
	DipShape          *string
	NearEdge          *bool
	ObjectRadiusKM    *float64
}

// ScoredCandidate is a candidate with its rubric outcome.
type ScoredCandidate struct {
	Candidate
	Score int
	Label DiscoveryLabel
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }

// Bool returns a pointer to v.
func Bool(v bool) *bool { return &v }

// String returns a pointer to v.
func String(v string) *string { return &v }

// LookupJob asks for the catalog status of one target.
type LookupJob struct {
	TargetID string
}

// LookupResult is the outcome of a LookupJob. Err is set when Status is StatusLookupError.
type LookupResult struct {
	TargetID string
	Status   CatalogStatus
	Err      error
}

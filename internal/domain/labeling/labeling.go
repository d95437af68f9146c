// Package labeling assigns heuristic categories to dip events.
package labeling

import "github.com/okian/dipscan/internal/domain/model"

// Rule thresholds. Depth is a flux fraction, duration is in days.
const (
	noiseMaxDepth     = 0.005
	noiseMaxDuration  = 0.01
	planetMinDepth    = 0.015
	planetMinDuration = 0.06
)

// RuleLabel classifies a dip from its depth and duration.
// Rules are evaluated in order and the first match wins, so a deep but very
// short event is noise even though it passes the planet depth test.
func RuleLabel(depth, duration float64) model.Label {
	switch {
	case depth < noiseMaxDepth || duration < noiseMaxDuration:
		return model.LabelNoise
	case depth < planetMinDepth && duration < planetMinDuration:
		return model.LabelAsteroid
	case depth >= planetMinDepth && duration >= planetMinDuration:
		return model.LabelPlanet
	default:
		return model.LabelUnknown
	}
}

// Counts tallies labels, keyed by label.
type Counts map[model.Label]int

// LabelAll labels every event and returns the labels in input order with a tally.
func LabelAll(events []model.DipEvent) ([]model.Label, Counts) {
	labels := make([]model.Label, len(events))
	counts := Counts{}
	for i, e := range events {
		labels[i] = RuleLabel(e.Depth, e.Duration)
		counts[labels[i]]++
	}
	return labels, counts
}

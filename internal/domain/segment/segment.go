// Package segment splits a light curve into discrete dip events.
package segment

import (
	"math"

	"github.com/okian/dipscan/internal/domain/model"
)

// DefaultThreshold is the normalized flux below which a sample counts as dipping.
const DefaultThreshold = 0.995

// Segmenter detects dips by run-length scanning against a fixed threshold.
type Segmenter struct {
	threshold float64
}

// Option applies a configuration option to the Segmenter.
type Option func(*Segmenter)

// WithThreshold sets the dip threshold. Values outside (0, 1] are ignored.
func WithThreshold(threshold float64) Option {
	return func(s *Segmenter) {
		if threshold > 0 && threshold <= 1 {
			s.threshold = threshold
		}
	}
}

// New creates a Segmenter.
func New(opts ...Option) *Segmenter {
	s := &Segmenter{threshold: DefaultThreshold}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Threshold returns the configured threshold.
func (s *Segmenter) Threshold() float64 { return s.threshold }

// Segment returns one DipEvent per maximal run of samples with flux < threshold.
// Adjacent runs are never merged. A run still open at the end of the series
// is closed at the last sample. Non-finite flux never counts as below threshold.
func (s *Segmenter) Segment(series model.Series) []model.DipEvent {
	var events []model.DipEvent
	start := -1
	minFlux := math.Inf(1)

	for i, sample := range series.Samples {
		if below(sample.Flux, s.threshold) {
			if start < 0 {
				start = i
				minFlux = sample.Flux
			} else if sample.Flux < minFlux {
				minFlux = sample.Flux
			}
			continue
		}
		if start >= 0 {
			events = append(events, newEvent(series, start, i, minFlux))
			start = -1
		}
	}
	if start >= 0 {
		events = append(events, newEvent(series, start, series.Len(), minFlux))
	}
	return events
}

func below(flux, threshold float64) bool {
	return !math.IsNaN(flux) && !math.IsInf(flux, 0) && flux < threshold
}

// newEvent builds the event covering samples [start, end).
func newEvent(series model.Series, start, end int, minFlux float64) model.DipEvent {
	last := end - 1
	startTime := series.Samples[start].Time
	endTime := series.Samples[last].Time
	return model.DipEvent{
		TargetID:   series.TargetID,
		StartIndex: start,
		EndIndex:   last,
		StartTime:  startTime,
		EndTime:    endTime,
		Depth:      math.Max(0, 1-minFlux),
		Duration:   math.Max(0, endTime-startTime),
	}
}

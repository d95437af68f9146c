// Package source loads cleaned light curves.
package source

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"sort"

	"github.com/okian/dipscan/internal/adapters/repository"
	"github.com/okian/dipscan/internal/domain/model"
)

// SeriesSource provides the light curve of a target.
type SeriesSource interface {
	// Series returns the samples of a target ordered by time. It returns
	// model.ErrSeriesUnavailable when no usable samples exist.
	Series(ctx context.Context, targetID string) (model.Series, error)
}

// CSVDir reads "<dir>/<stem>.csv" files with time and flux columns.
type CSVDir struct {
	dir string
}

// NewCSVDir creates a source rooted at dir.
func NewCSVDir(dir string) *CSVDir {
	return &CSVDir{dir: dir}
}

// Path returns the file a target is read from.
func (s *CSVDir) Path(targetID string) string {
	return filepath.Join(s.dir, repository.FileStem(targetID)+".csv")
}

// Series implements SeriesSource. Rows with a non-finite time or flux are dropped.
func (s *CSVDir) Series(ctx context.Context, targetID string) (model.Series, error) {
	if err := ctx.Err(); err != nil {
		return model.Series{}, err
	}
	path := s.Path(targetID)
	t, err := repository.LoadTable(path, repository.SeriesSchema)
	if err != nil {
		if errors.Is(err, model.ErrMissingInput) {
			return model.Series{}, fmt.Errorf("%w: %s", model.ErrSeriesUnavailable, path)
		}
		return model.Series{}, err
	}

	series := model.Series{TargetID: targetID, Samples: make([]model.FluxSample, 0, t.Len())}
	for i := 0; i < t.Len(); i++ {
		tm, terr := t.Float(i, repository.ColTime)
		fl, ferr := t.Float(i, repository.ColFlux)
		if terr != nil || ferr != nil || tm == nil || fl == nil || !finite(*tm) || !finite(*fl) {
			continue
		}
		series.Samples = append(series.Samples, model.FluxSample{Time: *tm, Flux: *fl})
	}
	if series.Len() == 0 {
		return model.Series{}, fmt.Errorf("%w: %s has no finite samples", model.ErrSeriesUnavailable, path)
	}
	sort.SliceStable(series.Samples, func(a, b int) bool { return series.Samples[a].Time < series.Samples[b].Time })
	return series, nil
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

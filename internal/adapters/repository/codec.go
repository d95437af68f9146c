package repository

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	catalogrules "github.com/okian/dipscan/internal/domain/catalog"
	"github.com/okian/dipscan/internal/domain/model"
)

// FormatFloat renders a float in its shortest round-trip form.
func FormatFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

// FormatOptFloat renders nil as an empty cell.
func FormatOptFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return FormatFloat(*v)
}

// Float parses an optional numeric cell. Empty cells and absent columns yield nil.
func (t *Table) Float(row int, column string) (*float64, error) {
	v, ok := t.Get(row, column)
	if !ok {
		return nil, nil //nolint:nilnil // absent value
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s=%q", ErrBadCell, column, v)
	}
	if math.IsNaN(f) {
		return nil, nil //nolint:nilnil // NaN cells are missing values
	}
	return &f, nil
}

// RequireFloat parses a numeric cell that must be present and finite.
func (t *Table) RequireFloat(row int, column string) (float64, error) {
	f, err := t.Float(row, column)
	if err != nil {
		return 0, err
	}
	if f == nil || math.IsInf(*f, 0) {
		return 0, fmt.Errorf("%w: %s is empty", ErrBadCell, column)
	}
	return *f, nil
}

// Bool parses an optional boolean cell. Numeric 1/0 and true/false are accepted.
func (t *Table) Bool(row int, column string) (*bool, error) {
	v, ok := t.Get(row, column)
	if !ok {
		return nil, nil //nolint:nilnil // absent value
	}
	b, err := strconv.ParseBool(strings.ToLower(v))
	if err != nil {
		if f, ferr := strconv.ParseFloat(v, 64); ferr == nil {
			b = f != 0
			return &b, nil
		}
		return nil, fmt.Errorf("%w: %s=%q", ErrBadCell, column, v)
	}
	return &b, nil
}

// TargetID returns the key of a row.
func (t *Table) TargetID(row int) string {
	v, _ := t.Get(row, ColTargetID)
	return v
}

// EncodeDips builds a dip table in event order.
func EncodeDips(events []model.DipEvent) *Table {
	t := NewTable(DipColumns...)
	for i := range events {
		e := &events[i]
		t.Append(map[string]string{
			ColTargetID:   e.TargetID,
			ColStartIndex: strconv.Itoa(e.StartIndex),
			ColEndIndex:   strconv.Itoa(e.EndIndex),
			ColStartTime:  FormatFloat(e.StartTime),
			ColEndTime:    FormatFloat(e.EndTime),
			ColDepth:      FormatFloat(e.Depth),
			ColDuration:   FormatFloat(e.Duration),
		})
	}
	return t
}

// DipFeatures reads the depth and duration of a row.
func (t *Table) DipFeatures(row int) (depth, duration float64, err error) {
	if depth, err = t.RequireFloat(row, ColDepth); err != nil {
		return 0, 0, err
	}
	if duration, err = t.RequireFloat(row, ColDuration); err != nil {
		return 0, 0, err
	}
	return depth, duration, nil
}

// DecodeMetadata indexes metadata rows by target. The first row of a target wins.
func DecodeMetadata(t *Table) (map[string]model.TargetMetadata, error) {
	out := make(map[string]model.TargetMetadata, t.Len())
	var errs []error
	for i := 0; i < t.Len(); i++ {
		id := t.TargetID(i)
		if id == "" {
			continue
		}
		if _, seen := out[id]; seen {
			continue
		}
		md := model.TargetMetadata{TargetID: id}
		var err error
		fields := []struct {
			col string
			dst **float64
		}{
			{ColRA, &md.RA},
			{ColDec, &md.Dec},
			{ColMagnitude, &md.ApparentMagnitude},
			{ColStellarRadius, &md.StellarRadiusSolar},
			{ColTeff, &md.EffectiveTemperature},
		}
		for _, f := range fields {
			if *f.dst, err = t.Float(i, f.col); err != nil {
				errs = append(errs, fmt.Errorf("row %d: %w", i+1, err))
			}
		}
		out[id] = md
	}
	return out, errors.Join(errs...)
}

// JoinMetadata overwrites the catalog columns of every row with the metadata of
// its target. Rows without metadata get empty catalog cells. It returns the
// number of rows that matched.
func JoinMetadata(t *Table, meta map[string]model.TargetMetadata) int {
	for _, c := range MetadataColumns {
		t.AddColumn(c)
	}
	matched := 0
	for i := 0; i < t.Len(); i++ {
		md, ok := meta[t.TargetID(i)]
		if ok {
			matched++
		}
		t.Set(i, ColRA, FormatOptFloat(md.RA))
		t.Set(i, ColDec, FormatOptFloat(md.Dec))
		t.Set(i, ColMagnitude, FormatOptFloat(md.ApparentMagnitude))
		t.Set(i, ColStellarRadius, FormatOptFloat(md.StellarRadiusSolar))
		t.Set(i, ColTeff, FormatOptFloat(md.EffectiveTemperature))
	}
	return matched
}

// EncodePeriodicity builds a periodicity table in flag order.
func EncodePeriodicity(flags []model.PeriodicityFlag) *Table {
	t := NewTable(ColTargetID, ColIsPeriodic, ColPeakPower, ColBestPeriod)
	for _, f := range flags {
		t.Append(map[string]string{
			ColTargetID:   f.TargetID,
			ColIsPeriodic: strconv.FormatBool(f.IsPeriodic),
			ColPeakPower:  FormatFloat(f.PeakPower),
			ColBestPeriod: FormatFloat(f.BestPeriodDays),
		})
	}
	return t
}

// DecodeCandidate reads every scoring field of a row. Malformed cells are
// reported and left nil, so the rest of the row still scores.
func DecodeCandidate(t *Table, row int) (model.Candidate, error) {
	c := model.Candidate{TargetID: t.TargetID(row)}
	var errs []error
	var err error

	if c.Depth, err = t.Float(row, ColDepth); err != nil {
		errs = append(errs, err)
	}
	if c.Duration, err = t.Float(row, ColDuration); err != nil {
		errs = append(errs, err)
	}
	if c.ApparentMagnitude, err = t.Float(row, ColMagnitude); err != nil {
		errs = append(errs, err)
	}
	if c.ObjectRadiusKM, err = t.Float(row, ColObjectRadius); err != nil {
		errs = append(errs, err)
	}
	if c.IsPeriodic, err = t.Bool(row, ColIsPeriodic); err != nil {
		errs = append(errs, err)
	}
	if c.NearEdge, err = t.Bool(row, ColNearEdge); err != nil {
		errs = append(errs, err)
	}
	if v, ok := t.Get(row, ColPredictedLabel); ok {
		l := model.ParseLabel(v)
		c.PredictedLabel = &l
	}
	if v, ok := t.Get(row, ColCatalogStatus); ok {
		if st, known := catalogrules.ParseStatus(v); known {
			c.CatalogStatus = &st
		} else {
			errs = append(errs, fmt.Errorf("%w: %s=%q", ErrBadCell, ColCatalogStatus, v))
		}
	}
	if v, ok := t.Get(row, ColDipShape); ok {
		c.DipShape = model.String(strings.ToLower(v))
	}
	if len(errs) > 0 {
		return c, fmt.Errorf("row %d (%s): %w", row+1, c.TargetID, errors.Join(errs...))
	}
	return c, nil
}

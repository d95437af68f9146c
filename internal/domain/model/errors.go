package model

import (
	"errors"
	"fmt"
	"sort"
)

// Sentinel error kinds shared by all stages. Callers use errors.Is.
var (
	// ErrMissingInput means a required upstream artifact is absent. Fatal for the stage.
	ErrMissingInput = errors.New("missing input artifact")
	// ErrModelNotTrained means the classifier artifact has not been produced yet.
	ErrModelNotTrained = errors.New("model not trained")
	// ErrSchemaMismatch means the key column is absent and no fallback column exists.
	ErrSchemaMismatch = errors.New("schema mismatch")
	// ErrSeriesUnavailable means the retrieval collaborator returned no usable series.
	ErrSeriesUnavailable = errors.New("series unavailable")
)

// ItemError is the typed failure of one target within a batch.
type ItemError struct {
	Stage    string
	TargetID string
	Err      error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("%s: target %q: %v", e.Stage, e.TargetID, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }

// BatchReport aggregates per-item outcomes of a stage.
type BatchReport struct {
	Stage     string
	Processed int
	Failures  []*ItemError
}

// NewBatchReport creates an empty report for stage.
func NewBatchReport(stage string) *BatchReport {
	return &BatchReport{Stage: stage}
}

// Succeed records one successfully processed item.
func (b *BatchReport) Succeed() { b.Processed++ }

// Fail records one failed item.
func (b *BatchReport) Fail(targetID string, err error) *ItemError {
	ie := &ItemError{Stage: b.Stage, TargetID: targetID, Err: err}
	b.Failures = append(b.Failures, ie)
	return ie
}

// Failed returns the number of failed items.
func (b *BatchReport) Failed() int { return len(b.Failures) }

// FailedTargets returns the failed target ids in sorted order.
func (b *BatchReport) FailedTargets() []string {
	out := make([]string, 0, len(b.Failures))
	for _, f := range b.Failures {
		out = append(out, f.TargetID)
	}
	sort.Strings(out)
	return out
}

// Package service runs the dip discovery pipeline stages and serves the
// ranked candidates they produce.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/dipscan/internal/adapters/catalog"
	workerpool "github.com/okian/dipscan/internal/adapters/mq/worker"
	repository "github.com/okian/dipscan/internal/adapters/repository"
	"github.com/okian/dipscan/internal/adapters/source"
	"github.com/okian/dipscan/internal/domain/classify"
	"github.com/okian/dipscan/internal/domain/model"
	"github.com/okian/dipscan/internal/domain/scoring"
	"github.com/okian/dipscan/pkg/logger"
	"github.com/okian/dipscan/pkg/metrics"
)

// ErrBusy is returned when a stage is triggered while another one runs.
var ErrBusy = errors.New("another stage is running")

// Stage names one pipeline step.
type Stage string

// Pipeline stages in dependency order.
const (
	StageDetect      Stage = "detect"
	StageLabel       Stage = "label"
	StageTrain       Stage = "train"
	StagePredict     Stage = "predict"
	StageCrosscheck  Stage = "crosscheck"
	StageMerge       Stage = "merge"
	StagePeriodicity Stage = "periodicity"
	StageRadius      Stage = "radius"
	StageScore       Stage = "score"
)

// Composite runs.
var (
	//nolint:gochecknoglobals // fixed stage sequences
	FullRunStages = []Stage{StageDetect, StageLabel, StageTrain, StagePredict}
	//nolint:gochecknoglobals // fixed stage sequences
	DiscoverStages = []Stage{StageCrosscheck, StageMerge, StagePeriodicity, StageRadius, StageScore}
	//nolint:gochecknoglobals // fixed stage sequences
	AllStages = append(append([]Stage(nil), FullRunStages...), DiscoverStages...)
)

// StageResult summarizes one completed stage.
type StageResult struct {
	Stage      Stage          `json:"stage"`
	Outputs    []string       `json:"outputs"`
	Rows       int            `json:"rows"`
	Processed  int            `json:"processed,omitempty"`
	Failed     []string       `json:"failed_targets,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
	DurationMs int64          `json:"duration_ms"`
}

func (r *StageResult) withReport(b *model.BatchReport) *StageResult {
	r.Processed = b.Processed
	r.Failed = b.FailedTargets()
	return r
}

type stageFunc func(ctx context.Context) (*StageResult, error)

// Service implements the pipeline and the read API dependencies.
type Service struct {
	busy sync.Mutex

	settings Settings
	source   source.SeriesSource
	resolver workerpool.Resolver
	store    repository.Store
	scorer   scoring.Scorer
	trainer  classify.Trainer
	now      func() time.Time

	mu      sync.RWMutex
	current Stage
	last    map[Stage]*StageResult
	started time.Time

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithSource sets the light curve source.
func WithSource(src source.SeriesSource) Option {
	return func(s *Service) {
		if src != nil {
			s.source = src
		}
	}
}

// WithResolver sets the catalog status resolver.
func WithResolver(r workerpool.Resolver) Option {
	return func(s *Service) {
		if r != nil {
			s.resolver = r
		}
	}
}

// WithStore sets the candidate store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithTrainer sets the classifier trainer.
func WithTrainer(t classify.Trainer) Option {
	return func(s *Service) {
		if t != nil {
			s.trainer = t
		}
	}
}

// WithClock sets the time source used for artifact timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service. Collaborators not supplied by options are built
// from settings.
func New(settings Settings, opts ...Option) *Service {
	s := &Service{
		settings: settings,
		now:      time.Now,
		last:     make(map[Stage]*StageResult),
		started:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Get().Named("pipeline")
	}
	if s.source == nil {
		s.source = source.NewCSVDir(settings.SeriesDir)
	}
	if s.resolver == nil {
		s.resolver = catalog.NewClient(
			catalog.WithBaseURL(settings.LookupBaseURL),
			catalog.WithRateLimit(settings.RequestsPerSecond, settings.Burst),
			catalog.WithLogger(s.logger.Named("catalog")),
		)
	}
	if s.store == nil {
		s.store = repository.NewCandidateStore()
	}
	if s.scorer == nil {
		s.scorer = scoring.NewRubricScorer(scoring.WithAbsentNearEdgeSatisfied(settings.AbsentNearEdgeSatisfied))
	}
	if s.trainer == nil {
		s.trainer = classify.NewForestTrainer(
			classify.WithTrees(settings.Trees),
			classify.WithMaxDepth(settings.MaxDepth),
			classify.WithLeafSize(settings.LeafSize),
		)
	}
	return s
}

// Settings returns the settings the service runs with.
func (s *Service) Settings() Settings { return s.settings }

// Start loads a previous discovery_scores.csv into the candidate store.
// A missing file leaves the store empty.
func (s *Service) Start(ctx context.Context) error {
	n, err := s.loadScores(ctx)
	switch {
	case errors.Is(err, model.ErrMissingInput):
		s.logger.Info(ctx, "no previous discovery scores", logger.String("path", s.settings.Path(FileScores)))
		return nil
	case err != nil:
		return fmt.Errorf("load discovery scores: %w", err)
	}
	s.logger.Info(ctx, "loaded discovery scores", logger.Int("rows", n))
	return nil
}

// RunStage runs a single stage.
func (s *Service) RunStage(ctx context.Context, stage Stage) (*StageResult, error) {
	results, err := s.Run(ctx, stage)
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

// Run executes stages in order while holding the pipeline lock. It stops at
// the first failed stage and returns the results of the stages before it.
func (s *Service) Run(ctx context.Context, stages ...Stage) ([]*StageResult, error) {
	if !s.busy.TryLock() {
		metrics.RecordErrorByComponent("pipeline", "busy")
		return nil, ErrBusy
	}
	defer s.busy.Unlock()

	results := make([]*StageResult, 0, len(stages))
	for _, stage := range stages {
		r, err := s.runStage(ctx, stage)
		if err != nil {
			return results, err
		}
		results = append(results, r)
	}
	return results, nil
}

func (s *Service) runStage(ctx context.Context, stage Stage) (*StageResult, error) {
	fn, ok := s.stages()[stage]
	if !ok {
		return nil, fmt.Errorf("unknown stage %q", stage)
	}

	s.setCurrent(stage)
	defer s.setCurrent("")

	log := s.logger.Named(string(stage))
	log.Info(ctx, "stage started")
	start := time.Now()

	r, err := fn(ctx)
	elapsed := time.Since(start)
	if err != nil {
		metrics.RecordStageRun(string(stage), "failure", elapsed)
		metrics.RecordErrorByComponent(string(stage), "stage_failed")
		log.Error(ctx, "stage failed", logger.Duration("elapsed", elapsed), logger.Error(err))
		return nil, fmt.Errorf("%s: %w", stage, err)
	}
	metrics.RecordStageRun(string(stage), "success", elapsed)

	r.Stage = stage
	r.DurationMs = elapsed.Milliseconds()
	log.Info(ctx, "stage completed",
		logger.Int("rows", r.Rows),
		logger.Int("failed", len(r.Failed)),
		logger.Strings("outputs", r.Outputs),
		logger.Duration("elapsed", elapsed),
	)

	s.mu.Lock()
	s.last[stage] = r
	s.mu.Unlock()
	return r, nil
}

func (s *Service) stages() map[Stage]stageFunc {
	return map[Stage]stageFunc{
		StageDetect:      s.detect,
		StageLabel:       s.label,
		StageTrain:       s.train,
		StagePredict:     s.predict,
		StageCrosscheck:  s.crosscheck,
		StageMerge:       s.merge,
		StagePeriodicity: s.periodicity,
		StageRadius:      s.radius,
		StageScore:       s.score,
	}
}

func (s *Service) setCurrent(stage Stage) {
	s.mu.Lock()
	s.current = stage
	s.mu.Unlock()
}

// itemFailed logs and counts a per-target failure.
func (s *Service) itemFailed(ctx context.Context, b *model.BatchReport, targetID string, err error) {
	ie := b.Fail(targetID, err)
	metrics.RecordItemFailed(b.Stage)
	s.logger.Named(b.Stage).Warn(ctx, "item skipped",
		logger.String("target_id", targetID),
		logger.Error(ie.Err),
	)
}

// itemDone counts a processed target.
func itemDone(b *model.BatchReport) {
	b.Succeed()
	metrics.RecordItemProcessed(b.Stage)
}

// TopN returns the top N scored candidates.
func (s *Service) TopN(ctx context.Context, n int) ([]repository.Entry, error) {
	return s.store.TopN(ctx, n)
}

// CandidateDetail is a ranked target with its rubric breakdown.
type CandidateDetail struct {
	repository.Entry
	Breakdown []scoring.Contribution `json:"breakdown"`
}

// Candidate returns the best-scoring dip of a target with its rank.
func (s *Service) Candidate(ctx context.Context, targetID string) (CandidateDetail, error) {
	e, err := s.store.Rank(ctx, targetID)
	if err != nil {
		return CandidateDetail{}, err
	}
	return CandidateDetail{Entry: e, Breakdown: s.scorer.Score(e.Candidate()).Breakdown}, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	last := make(map[string]interface{}, len(s.last))
	for stage, r := range s.last {
		last[string(stage)] = r
	}
	stats := map[string]interface{}{
		"running":       s.current != "",
		"currentStage":  string(s.current),
		"candidates":    s.store.Count(context.Background()),
		"outputDir":     s.settings.OutputDir,
		"concurrency":   s.settings.LookupConcurrency,
		"uptimeSeconds": int64(time.Since(s.started).Seconds()),
		"lastResults":   last,
	}
	return stats
}

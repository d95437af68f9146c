package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	jobqueue "github.com/okian/dipscan/internal/adapters/mq/queue"
	workerpool "github.com/okian/dipscan/internal/adapters/mq/worker"
	repository "github.com/okian/dipscan/internal/adapters/repository"
	"github.com/okian/dipscan/internal/domain/dedupe"
	"github.com/okian/dipscan/internal/domain/model"
	"github.com/okian/dipscan/internal/domain/periodicity"
	"github.com/okian/dipscan/internal/domain/radius"
	"github.com/okian/dipscan/internal/domain/scoring"
	"github.com/okian/dipscan/pkg/logger"
)

// brightMagnitudeLimit selects bright_dip_candidates.csv rows.
const brightMagnitudeLimit = 12.0

// Lookup outcome errors recorded in the catalog error column.
var (
	errNoResult    = errors.New("no lookup result")
	errBlankTarget = errors.New("blank target id")
)

// distinctTargets returns the target ids of t in first-seen order.
func distinctTargets(ctx context.Context, t *repository.Table) []string {
	ids := make([]string, t.Len())
	for i := range ids {
		ids[i] = t.TargetID(i)
	}
	return dedupe.Distinct(ctx, dedupe.NewInMemoryDeduper(), ids)
}

// crosscheck resolves the catalog status of every distinct target through
// the bounded worker pool.
func (s *Service) crosscheck(ctx context.Context) (*StageResult, error) {
	t, err := repository.LoadTable(s.settings.Path(FilePredicted), repository.KeyedSchema)
	if err != nil {
		return nil, err
	}
	targets := distinctTargets(ctx, t)

	results, err := s.resolveAll(ctx, targets)
	if err != nil {
		return nil, err
	}

	report := model.NewBatchReport(string(StageCrosscheck))
	statuses := map[string]any{}
	for _, id := range targets {
		r, ok := results[id]
		if !ok {
			r = model.LookupResult{TargetID: id, Status: model.StatusLookupError, Err: errNoResult}
		}
		results[id] = r
		if r.Err != nil {
			report.Fail(id, r.Err)
		} else {
			itemDone(report)
		}
		n, _ := statuses[string(r.Status)].(int)
		statuses[string(r.Status)] = n + 1
	}

	t.AddColumn(repository.ColCatalogStatus)
	t.AddColumn(repository.ColCatalogError)
	blank := 0
	for i := 0; i < t.Len(); i++ {
		r, ok := results[strings.TrimSpace(t.TargetID(i))]
		if !ok {
			r = model.LookupResult{Status: model.StatusLookupError, Err: errBlankTarget}
			blank++
		}
		detail := ""
		if r.Err != nil {
			detail = r.Err.Error()
		}
		t.Set(i, repository.ColCatalogStatus, string(r.Status))
		t.Set(i, repository.ColCatalogError, detail)
	}

	out := s.settings.Path(FileCatalogStatus)
	if err := repository.SaveTable(out, t); err != nil {
		return nil, err
	}
	if blank > 0 {
		n, _ := statuses[string(model.StatusLookupError)].(int)
		statuses[string(model.StatusLookupError)] = n + blank
		s.logger.Warn(ctx, "rows without a target id", logger.Int("rows", blank))
	}
	statuses["targets"] = len(targets)
	r := &StageResult{Outputs: []string{out}, Rows: t.Len(), Details: statuses}
	return r.withReport(report), nil
}

// resolveAll feeds targets through a queue into a worker pool and collects
// one result per target.
func (s *Service) resolveAll(ctx context.Context, targets []string) (map[string]model.LookupResult, error) {
	queue := jobqueue.NewInMemoryQueue(jobqueue.WithCapacity(s.settings.LookupQueueSize))
	collector := workerpool.NewCollector()
	pool := workerpool.NewPool(s.settings.LookupConcurrency, queue, s.resolver, collector,
		workerpool.WithWorkerOptions(
			workerpool.WithTimeout(s.settings.LookupTimeout),
			workerpool.WithLogger(s.logger.Named("worker")),
		),
	)
	pool.Start(ctx)

	for _, id := range targets {
		if err := queue.Put(ctx, jobqueue.Job{TargetID: id}); err != nil {
			s.abortLookups(ctx, pool)
			return nil, fmt.Errorf("enqueue %q: %w", id, err)
		}
	}
	if err := pool.Drain(ctx); err != nil {
		s.abortLookups(ctx, pool)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.logger.Debug(ctx, "catalog lookups finished",
		logger.Int("targets", len(targets)),
		logger.Int("workers", pool.Size()),
	)
	return collector.Results(), nil
}

// abortLookups stops the pool without waiting for queued jobs.
func (s *Service) abortLookups(ctx context.Context, pool *workerpool.Pool) {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.settings.LookupTimeout)
	defer cancel()
	if err := pool.Shutdown(stopCtx); err != nil {
		s.logger.Warn(ctx, "lookup workers did not stop", logger.Error(err))
	}
}

// merge left-joins stellar metadata onto the cross-checked dips and writes
// the bright subset.
func (s *Service) merge(ctx context.Context) (*StageResult, error) {
	t, err := repository.LoadTable(s.settings.Path(FileCatalogStatus), repository.KeyedSchema)
	if err != nil {
		return nil, err
	}
	mt, err := repository.LoadTable(s.settings.MetadataFile, repository.MetadataSchema)
	if err != nil {
		return nil, err
	}
	meta, err := repository.DecodeMetadata(mt)
	if err != nil {
		s.logger.Warn(ctx, "malformed metadata cells", logger.Error(err))
	}

	matched := repository.JoinMetadata(t, meta)
	out := s.settings.Path(FileMerged)
	if err := repository.SaveTable(out, t); err != nil {
		return nil, err
	}

	bright := t.Filter(func(i int) bool {
		mag, err := t.Float(i, repository.ColMagnitude)
		return err == nil && mag != nil && *mag < brightMagnitudeLimit
	})
	brightOut := s.settings.Path(FileBrightCandidates)
	if err := repository.SaveTable(brightOut, bright); err != nil {
		return nil, err
	}

	return &StageResult{
		Outputs: []string{out, brightOut},
		Rows:    t.Len(),
		Details: map[string]any{
			"matched_rows":    matched,
			"metadata_rows":   len(meta),
			"bright_dip_rows": bright.Len(),
		},
	}, nil
}

// periodicity flags targets whose periodogram peak exceeds the threshold.
func (s *Service) periodicity(ctx context.Context) (*StageResult, error) {
	t, err := repository.LoadTable(s.settings.Path(FilePredicted), repository.KeyedSchema)
	if err != nil {
		return nil, err
	}

	analyzer := periodicity.NewAnalyzer(
		periodicity.WithPowerThreshold(s.settings.PowerThreshold),
		periodicity.WithMaxFrequencies(s.settings.MaxFrequencies),
	)
	report := model.NewBatchReport(string(StagePeriodicity))
	var flags []model.PeriodicityFlag
	periodic := 0
	for _, id := range distinctTargets(ctx, t) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		series, err := s.source.Series(ctx, id)
		if err != nil {
			s.itemFailed(ctx, report, id, err)
			continue
		}
		flag, err := analyzer.Flag(series)
		if err != nil {
			s.itemFailed(ctx, report, id, err)
			continue
		}
		if flag.IsPeriodic {
			periodic++
		}
		flags = append(flags, flag)
		itemDone(report)
	}

	out := s.settings.Path(FilePeriodicity)
	if err := repository.SaveTable(out, repository.EncodePeriodicity(flags)); err != nil {
		return nil, err
	}
	r := &StageResult{
		Outputs: []string{out},
		Rows:    len(flags),
		Details: map[string]any{"periodic_targets": periodic},
	}
	return r.withReport(report), nil
}

// radius estimates the occulting object radius of every merged dip.
func (s *Service) radius(ctx context.Context) (*StageResult, error) {
	t, err := repository.LoadTable(s.settings.Path(FileMerged), repository.KeyedSchema)
	if err != nil {
		return nil, err
	}

	report := model.NewBatchReport(string(StageRadius))
	estimated := 0
	t.AddColumn(repository.ColObjectRadius)
	for i := 0; i < t.Len(); i++ {
		depth, derr := t.Float(i, repository.ColDepth)
		stellar, rerr := t.Float(i, repository.ColStellarRadius)
		if err := errors.Join(derr, rerr); err != nil {
			s.itemFailed(ctx, report, t.TargetID(i), err)
			t.Set(i, repository.ColObjectRadius, "")
			continue
		}
		km := radius.EstimateKM(depth, stellar)
		if km != nil {
			estimated++
		}
		t.Set(i, repository.ColObjectRadius, repository.FormatOptFloat(km))
		itemDone(report)
	}

	out := s.settings.Path(FileRadius)
	if err := repository.SaveTable(out, t); err != nil {
		return nil, err
	}
	r := &StageResult{
		Outputs: []string{out},
		Rows:    t.Len(),
		Details: map[string]any{"estimated_rows": estimated},
	}
	return r.withReport(report), nil
}

// score ranks every dip by the discovery rubric and publishes the result to
// the candidate store.
func (s *Service) score(ctx context.Context) (*StageResult, error) {
	t, err := repository.LoadTable(s.settings.Path(FileRadius), repository.CandidateSchema)
	if err != nil {
		return nil, err
	}
	joined, err := s.joinPeriodicity(ctx, t)
	if err != nil {
		return nil, err
	}

	report := model.NewBatchReport(string(StageScore))
	candidates := make([]model.Candidate, t.Len())
	for i := range candidates {
		c, err := repository.DecodeCandidate(t, i)
		if err != nil {
			s.itemFailed(ctx, report, c.TargetID, err)
		} else {
			itemDone(report)
		}
		candidates[i] = c
	}

	ranked := scoring.Rank(s.scorer, candidates)
	out := repository.NewTable(t.Header()...)
	scored := make([]model.ScoredCandidate, len(ranked))
	labels := map[string]any{}
	for k := range ranked {
		r := &ranked[k]
		out.AppendRow(t, r.Index)
		out.Set(k, repository.ColScore, strconv.Itoa(r.Score))
		out.Set(k, repository.ColDiscoveryLabel, string(r.Label))
		scored[k] = r.ScoredCandidate
		n, _ := labels[string(r.Label)].(int)
		labels[string(r.Label)] = n + 1
	}

	path := s.settings.Path(FileScores)
	if err := repository.SaveTable(path, out); err != nil {
		return nil, err
	}
	s.store.Replace(ctx, scored)

	labels["periodicity_joined"] = joined
	res := &StageResult{Outputs: []string{path}, Rows: out.Len(), Details: labels}
	return res.withReport(report), nil
}

// joinPeriodicity left-joins periodicity_flags.csv onto t when the file
// exists. The is_periodic column is rewritten so repeated runs agree.
func (s *Service) joinPeriodicity(ctx context.Context, t *repository.Table) (bool, error) {
	flags, err := repository.LoadTable(s.settings.Path(FilePeriodicity), repository.CandidateSchema)
	switch {
	case errors.Is(err, model.ErrMissingInput):
		s.logger.Info(ctx, "no periodicity flags, skipping join")
		return false, nil
	case err != nil:
		return false, err
	}

	byTarget := make(map[string]string, flags.Len())
	for i := 0; i < flags.Len(); i++ {
		id := flags.TargetID(i)
		if _, seen := byTarget[id]; seen {
			continue
		}
		v, _ := flags.Get(i, repository.ColIsPeriodic)
		byTarget[id] = v
	}
	for i := 0; i < t.Len(); i++ {
		t.Set(i, repository.ColIsPeriodic, byTarget[t.TargetID(i)])
	}
	return true, nil
}

// loadScores publishes an existing discovery_scores.csv to the store.
func (s *Service) loadScores(ctx context.Context) (int, error) {
	t, err := repository.LoadTable(s.settings.Path(FileScores), repository.CandidateSchema)
	if err != nil {
		return 0, err
	}
	scored := make([]model.ScoredCandidate, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		c, err := repository.DecodeCandidate(t, i)
		if err != nil {
			s.logger.Warn(ctx, "malformed candidate row", logger.Error(err))
		}
		score, err := t.RequireFloat(i, repository.ColScore)
		if err != nil {
			s.logger.Warn(ctx, "candidate row without score", logger.String("target_id", c.TargetID), logger.Error(err))
			continue
		}
		n := int(score)
		scored = append(scored, model.ScoredCandidate{Candidate: c, Score: n, Label: scoring.LabelFor(n)})
	}
	s.store.Replace(ctx, scored)
	return len(scored), nil
}

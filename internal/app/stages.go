package service

import (
	"context"
	"fmt"
	"time"

	repository "github.com/okian/dipscan/internal/adapters/repository"
	"github.com/okian/dipscan/internal/domain/classify"
	"github.com/okian/dipscan/internal/domain/labeling"
	"github.com/okian/dipscan/internal/domain/model"
	"github.com/okian/dipscan/internal/domain/segment"
	"github.com/okian/dipscan/pkg/logger"
	"github.com/okian/dipscan/pkg/metrics"
)

// detect segments the light curve of every listed target. A target whose
// series cannot be loaded is skipped.
func (s *Service) detect(ctx context.Context) (*StageResult, error) {
	targets, err := repository.ReadTargets(s.settings.TargetsFile)
	if err != nil {
		return nil, err
	}

	seg := segment.New(segment.WithThreshold(s.settings.DipThreshold))
	report := model.NewBatchReport(string(StageDetect))
	var all []model.DipEvent
	for _, id := range targets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		series, err := s.source.Series(ctx, id)
		if err != nil {
			s.itemFailed(ctx, report, id, err)
			continue
		}
		events := seg.Segment(series)
		path := s.settings.Path(repository.FileStem(id) + targetDipsSuffix)
		if err := repository.SaveTable(path, repository.EncodeDips(events)); err != nil {
			s.itemFailed(ctx, report, id, err)
			continue
		}
		metrics.RecordDipsDetected(len(events))
		itemDone(report)
		all = append(all, events...)
	}

	out := s.settings.Path(FileAllDips)
	if err := repository.SaveTable(out, repository.EncodeDips(all)); err != nil {
		return nil, err
	}
	r := &StageResult{
		Outputs: []string{out},
		Rows:    len(all),
		Details: map[string]any{"targets": len(targets)},
	}
	return r.withReport(report), nil
}

// label applies the heuristic rules to every detected dip.
func (s *Service) label(ctx context.Context) (*StageResult, error) {
	t, err := repository.LoadTable(s.settings.Path(FileAllDips), repository.DipSchema)
	if err != nil {
		return nil, err
	}

	report := model.NewBatchReport(string(StageLabel))
	counts := labeling.Counts{}
	for i := 0; i < t.Len(); i++ {
		l := model.LabelUnknown
		depth, duration, err := t.DipFeatures(i)
		if err != nil {
			s.itemFailed(ctx, report, t.TargetID(i), err)
		} else {
			l = labeling.RuleLabel(depth, duration)
			itemDone(report)
		}
		counts[l]++
		t.Set(i, repository.ColRuleLabel, string(l))
	}

	out := s.settings.Path(FileRuleLabels)
	if err := repository.SaveTable(out, t); err != nil {
		return nil, err
	}
	details := make(map[string]any, len(counts))
	for l, n := range counts {
		details[string(l)] = n
	}
	s.logger.Info(ctx, "rule labels assigned",
		logger.Int("noise", counts[model.LabelNoise]),
		logger.Int("asteroid", counts[model.LabelAsteroid]),
		logger.Int("planet", counts[model.LabelPlanet]),
		logger.Int("unknown", counts[model.LabelUnknown]),
	)
	r := &StageResult{Outputs: []string{out}, Rows: t.Len(), Details: details}
	return r.withReport(report), nil
}

// trainingReport is the persisted evaluation of a training run.
type trainingReport struct {
	RunID     string          `json:"run_id"`
	CreatedAt time.Time       `json:"created_at"`
	TrainRows int             `json:"train_rows"`
	TestRows  int             `json:"test_rows"`
	Report    classify.Report `json:"report"`
}

// train fits the classifier on the rule-labeled dips.
func (s *Service) train(ctx context.Context) (*StageResult, error) {
	t, err := repository.LoadTable(s.settings.Path(FileRuleLabels), repository.LabeledSchema)
	if err != nil {
		return nil, err
	}

	var features [][]float64
	var labels []model.Label
	for i := 0; i < t.Len(); i++ {
		v, _ := t.Get(i, repository.ColRuleLabel)
		l := model.ParseLabel(v)
		if !l.Trainable() {
			continue
		}
		depth, duration, err := t.DipFeatures(i)
		if err != nil {
			continue
		}
		features = append(features, classify.Features(model.DipEvent{Depth: depth, Duration: duration}))
		labels = append(labels, l)
	}
	if len(features) < 2 {
		return nil, fmt.Errorf("%w: %d trainable rows", classify.ErrNotEnoughData, len(features))
	}

	split, err := classify.TrainTestSplit(features, labels, s.settings.TestFraction, s.settings.Seed)
	if err != nil {
		return nil, err
	}
	m, err := s.trainer.Train(split.TrainX, split.TrainY)
	if err != nil {
		return nil, fmt.Errorf("train: %w", err)
	}
	eval, err := classify.Evaluate(split.TestY, m.Predict(split.TestX))
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	art, err := classify.NewArtifact(m, s.now())
	if err != nil {
		return nil, err
	}

	modelPath := s.settings.Path(FileModel)
	reportPath := s.settings.Path(FileModelReport)
	if err := repository.SaveModel(modelPath, art); err != nil {
		return nil, err
	}
	if err := repository.SaveJSON(reportPath, trainingReport{
		RunID:     art.RunID,
		CreatedAt: art.CreatedAt,
		TrainRows: len(split.TrainY),
		TestRows:  len(split.TestY),
		Report:    eval,
	}); err != nil {
		return nil, err
	}

	metrics.UpdateModelAccuracy(eval.Accuracy)
	s.logger.Info(ctx, "classifier trained",
		logger.String("run_id", art.RunID),
		logger.Int("train_rows", len(split.TrainY)),
		logger.Int("test_rows", len(split.TestY)),
		logger.Float64("accuracy", eval.Accuracy),
	)
	s.logger.Info(ctx, "classification report", reportFields(eval)...)

	return &StageResult{
		Outputs: []string{modelPath, reportPath},
		Rows:    len(features),
		Details: map[string]any{"run_id": art.RunID, "accuracy": eval.Accuracy},
	}, nil
}

// reportFields flattens an evaluation report into log fields.
func reportFields(r classify.Report) []logger.Field {
	fields := make([]logger.Field, 0, 4*len(r.Classes)+4)
	for _, c := range r.Classes {
		m := r.PerClass[c]
		fields = append(fields,
			logger.Float64(string(c)+"_precision", m.Precision),
			logger.Float64(string(c)+"_recall", m.Recall),
			logger.Float64(string(c)+"_f1", m.F1),
			logger.Int(string(c)+"_support", m.Support),
		)
	}
	return append(fields,
		logger.Any("macro_avg", r.MacroAvg),
		logger.Any("weighted_avg", r.WeightedAvg),
		logger.Any("confusion_matrix", r.Confusion),
		logger.String("table", r.String()),
	)
}

// predict applies the persisted classifier to every detected dip. The model
// is loaded before any row is read.
func (s *Service) predict(ctx context.Context) (*StageResult, error) {
	art, err := repository.LoadModel(s.settings.Path(FileModel))
	if err != nil {
		return nil, err
	}
	t, err := repository.LoadTable(s.settings.Path(FileAllDips), repository.DipSchema)
	if err != nil {
		return nil, err
	}

	report := model.NewBatchReport(string(StagePredict))
	rows := make([]int, 0, t.Len())
	features := make([][]float64, 0, t.Len())
	t.AddColumn(repository.ColPredictedLabel)
	for i := 0; i < t.Len(); i++ {
		depth, duration, err := t.DipFeatures(i)
		if err != nil {
			t.Set(i, repository.ColPredictedLabel, "")
			s.itemFailed(ctx, report, t.TargetID(i), err)
			continue
		}
		rows = append(rows, i)
		features = append(features, classify.Features(model.DipEvent{Depth: depth, Duration: duration}))
	}
	if len(features) > 0 {
		for k, l := range art.Model().Predict(features) {
			t.Set(rows[k], repository.ColPredictedLabel, string(l))
			itemDone(report)
		}
	}

	out := s.settings.Path(FilePredicted)
	if err := repository.SaveTable(out, t); err != nil {
		return nil, err
	}
	r := &StageResult{
		Outputs: []string{out},
		Rows:    t.Len(),
		Details: map[string]any{"model_run_id": art.RunID},
	}
	return r.withReport(report), nil
}

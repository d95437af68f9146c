package classify

import (
	"math"
	"sort"

	randomforest "github.com/malaschitz/randomForest"
	"github.com/okian/dipscan/internal/domain/model"
)

// Default forest configuration constants.
const (
	defaultTrees    = 100
	defaultMaxDepth = 32
	defaultLeafSize = 1
)

// ForestOption applies a configuration option to the ForestTrainer.
type ForestOption func(*ForestTrainer)

// WithTrees sets the number of trees in the ensemble.
func WithTrees(n int) ForestOption {
	return func(t *ForestTrainer) {
		if n > 0 {
			t.trees = n
		}
	}
}

// WithMaxDepth caps tree depth.
func WithMaxDepth(depth int) ForestOption {
	return func(t *ForestTrainer) {
		if depth > 0 {
			t.maxDepth = depth
		}
	}
}

// WithLeafSize sets the row count at or below which a node becomes a leaf.
func WithLeafSize(n int) ForestOption {
	return func(t *ForestTrainer) {
		if n > 0 {
			t.leafSize = n
		}
	}
}

// ForestTrainer fits a Gini random forest.
type ForestTrainer struct {
	trees    int
	maxDepth int
	leafSize int
}

// NewForestTrainer creates a ForestTrainer with configuration options.
func NewForestTrainer(opts ...ForestOption) *ForestTrainer {
	t := &ForestTrainer{
		trees:    defaultTrees,
		maxDepth: defaultMaxDepth,
		leafSize: defaultLeafSize,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Forest is a trained random forest. Ensemble classes are indexes into Labels.
type Forest struct {
	Labels   []model.Label        `json:"classes"`
	Ensemble *randomforest.Forest `json:"ensemble"`
}

// Train fits a forest on the given rows.
func (t *ForestTrainer) Train(features [][]float64, labels []model.Label) (Model, error) {
	if len(features) != len(labels) {
		return nil, ErrShapeMismatch
	}
	if len(features) == 0 {
		return nil, ErrNotEnoughData
	}
	width := len(features[0])
	if width == 0 {
		return nil, ErrUnknownFeatures
	}
	for _, row := range features {
		if len(row) != width {
			return nil, ErrUnknownFeatures
		}
	}

	classes := uniqueLabels(labels)
	index := make(map[model.Label]int, len(classes))
	for i, c := range classes {
		index[c] = i
	}
	y := make([]int, len(labels))
	for i, l := range labels {
		y[i] = index[l]
	}

	ensemble := &randomforest.Forest{
		Data:     randomforest.ForestData{X: features, Class: y},
		MaxDepth: t.maxDepth,
		LeafSize: t.leafSize,
	}
	ensemble.Train(t.trees)
	// A tree whose bootstrap drew every row has no out-of-bag score.
	for i := range ensemble.Trees {
		if math.IsNaN(ensemble.Trees[i].Validation) {
			ensemble.Trees[i].Validation = 0
		}
	}
	ensemble.Data = randomforest.ForestData{}
	return &Forest{Labels: classes, Ensemble: ensemble}, nil
}

// Classes returns the class labels in index order.
func (f *Forest) Classes() []model.Label { return f.Labels }

// Predict returns the class with the highest mean vote per row.
// Ties resolve to the lower class index.
func (f *Forest) Predict(features [][]float64) []model.Label {
	out := make([]model.Label, len(features))
	if len(f.Labels) == 0 || f.Ensemble == nil {
		return out
	}
	for i, row := range features {
		votes := f.Ensemble.Vote(row)
		best := 0
		for k := 1; k < len(votes) && k < len(f.Labels); k++ {
			if votes[k] > votes[best] {
				best = k
			}
		}
		out[i] = f.Labels[best]
	}
	return out
}

func uniqueLabels(labels []model.Label) []model.Label {
	seen := map[model.Label]bool{}
	var out []model.Label
	for _, l := range labels {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

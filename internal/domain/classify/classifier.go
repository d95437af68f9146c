// Package classify trains and applies a supervised dip classifier.
//
// The learning algorithm sits behind the Trainer and Model interfaces so the
// pipeline only depends on train(features, labels) and predict(features).
package classify

import (
	"errors"
	"math"
	"math/rand"

	"github.com/okian/dipscan/internal/domain/model"
)

// Sentinel errors for training.
var (
	ErrNotEnoughData   = errors.New("not enough labeled rows to train")
	ErrShapeMismatch   = errors.New("features and labels differ in length")
	ErrUnknownFeatures = errors.New("feature vector has unexpected width")
)

// FeatureNames lists the columns of a feature vector, in order.
var FeatureNames = []string{"depth", "duration"} //nolint:gochecknoglobals // fixed schema

// Features returns the feature vector of a dip event.
func Features(e model.DipEvent) []float64 { //nolint:gocritic // hugeParam: events are small value types
	return []float64{e.Depth, e.Duration}
}

// Trainer fits a Model on labeled feature vectors.
type Trainer interface {
	Train(features [][]float64, labels []model.Label) (Model, error)
}

// Model predicts labels for feature vectors.
type Model interface {
	Predict(features [][]float64) []model.Label
	Classes() []model.Label
}

// Split is a train/test partition of a labeled dataset.
type Split struct {
	TrainX [][]float64
	TrainY []model.Label
	TestX  [][]float64
	TestY  []model.Label
}

// TrainTestSplit shuffles rows with seed and holds out ceil(testFraction*n) rows.
func TrainTestSplit(features [][]float64, labels []model.Label, testFraction float64, seed int64) (Split, error) {
	if len(features) != len(labels) {
		return Split{}, ErrShapeMismatch
	}
	n := len(features)
	nTest := int(math.Ceil(testFraction * float64(n)))
	if n < 2 || n-nTest < 1 {
		return Split{}, ErrNotEnoughData
	}
	perm := rand.New(rand.NewSource(seed)).Perm(n) //nolint:gosec // deterministic split for reproducible runs
	var s Split
	for i, idx := range perm {
		if i < nTest {
			s.TestX = append(s.TestX, features[idx])
			s.TestY = append(s.TestY, labels[idx])
			continue
		}
		s.TrainX = append(s.TrainX, features[idx])
		s.TrainY = append(s.TrainY, labels[idx])
	}
	return s, nil
}

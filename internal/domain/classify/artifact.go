package classify

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	randomforest "github.com/malaschitz/randomForest"
	"github.com/okian/dipscan/internal/domain/model"
)

// Artifact format constants.
const (
	artifactVersion = 2
	algorithmForest = "random_forest"
	noChild         = -1
)

// ErrBadArtifact is returned when a model blob cannot be decoded.
var ErrBadArtifact = errors.New("invalid model artifact")

// Artifact is the persisted form of a trained model.
type Artifact struct {
	Version   int       `json:"version"`
	RunID     string    `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
	Algorithm string    `json:"algorithm"`
	Features  []string  `json:"features"`
	Forest    *Forest   `json:"forest"`
}

// NewArtifact wraps a trained model for persistence under a fresh run id.
func NewArtifact(m Model, now time.Time) (*Artifact, error) {
	f, ok := m.(*Forest)
	if !ok || f.Ensemble == nil {
		return nil, fmt.Errorf("%w: unsupported model type %T", ErrBadArtifact, m)
	}
	return &Artifact{
		Version:   artifactVersion,
		RunID:     uuid.NewString(),
		CreatedAt: now.UTC(),
		Algorithm: algorithmForest,
		Features:  append([]string(nil), FeatureNames...),
		Forest:    f,
	}, nil
}

// Encode serializes the artifact.
func (a *Artifact) Encode() ([]byte, error) {
	return json.Marshal(a)
}

// rawArtifact defers decoding of the ensemble until its shape is checked.
type rawArtifact struct {
	Version   int       `json:"version"`
	RunID     string    `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
	Algorithm string    `json:"algorithm"`
	Features  []string  `json:"features"`
	Forest    *struct {
		Labels   []model.Label   `json:"classes"`
		Ensemble json.RawMessage `json:"ensemble"`
	} `json:"forest"`
}

// ensembleShape mirrors the structural fields of a serialized ensemble.
type ensembleShape struct {
	Features int `json:"features"`
	Classes  int `json:"classes"`
	NTrees   int `json:"nTrees"`
	Trees    []struct {
		Nodes []struct {
			ID        int       `json:"id"`
			Attribute int       `json:"attribute"`
			Branch0   int       `json:"branch0"`
			Branch1   int       `json:"branch1"`
			LeafValue []float64 `json:"leafValue"`
		} `json:"nodes"`
	} `json:"trees"`
}

// DecodeArtifact parses and validates a model blob.
func DecodeArtifact(data []byte) (*Artifact, error) {
	var raw rawArtifact
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadArtifact, err)
	}
	switch {
	case raw.Version != artifactVersion:
		return nil, fmt.Errorf("%w: unsupported version %d", ErrBadArtifact, raw.Version)
	case raw.Algorithm != algorithmForest || raw.Forest == nil:
		return nil, fmt.Errorf("%w: unsupported algorithm %q", ErrBadArtifact, raw.Algorithm)
	case len(raw.Forest.Labels) == 0 || len(raw.Forest.Ensemble) == 0:
		return nil, fmt.Errorf("%w: empty forest", ErrBadArtifact)
	}

	var shape ensembleShape
	if err := json.Unmarshal(raw.Forest.Ensemble, &shape); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadArtifact, err)
	}
	if err := shape.validate(len(raw.Forest.Labels), len(FeatureNames)); err != nil {
		return nil, err
	}

	ensemble := &randomforest.Forest{}
	if err := json.Unmarshal(raw.Forest.Ensemble, ensemble); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadArtifact, err)
	}
	return &Artifact{
		Version:   raw.Version,
		RunID:     raw.RunID,
		CreatedAt: raw.CreatedAt,
		Algorithm: raw.Algorithm,
		Features:  raw.Features,
		Forest:    &Forest{Labels: raw.Forest.Labels, Ensemble: ensemble},
	}, nil
}

// Model returns the decoded model.
func (a *Artifact) Model() Model { return a.Forest }

// validate rejects ensembles the forest decoder would mis-read. Nodes are
// numbered depth-first, so every child id must exceed its parent's.
func (s ensembleShape) validate(classes, width int) error {
	switch {
	case s.Classes != classes:
		return fmt.Errorf("%w: %d ensemble classes, want %d", ErrBadArtifact, s.Classes, classes)
	case s.Features != width:
		return fmt.Errorf("%w: %d features, want %d", ErrBadArtifact, s.Features, width)
	case len(s.Trees) == 0 || s.NTrees != len(s.Trees):
		return fmt.Errorf("%w: empty forest", ErrBadArtifact)
	}
	for ti, t := range s.Trees {
		n := len(t.Nodes)
		if n == 0 {
			return fmt.Errorf("%w: tree %d is empty", ErrBadArtifact, ti)
		}
		seen := make([]bool, n)
		for _, node := range t.Nodes {
			if node.ID < 0 || node.ID >= n || seen[node.ID] {
				return fmt.Errorf("%w: tree %d has bad node id %d", ErrBadArtifact, ti, node.ID)
			}
			seen[node.ID] = true
		}
		for _, node := range t.Nodes {
			if node.Branch0 == noChild && node.Branch1 == noChild {
				if len(node.LeafValue) != classes {
					return fmt.Errorf("%w: tree %d leaf %d has %d values", ErrBadArtifact, ti, node.ID, len(node.LeafValue))
				}
				continue
			}
			if node.Attribute < 0 || node.Attribute >= width ||
				node.Branch0 <= node.ID || node.Branch1 <= node.ID ||
				node.Branch0 >= n || node.Branch1 >= n {
				return fmt.Errorf("%w: tree %d node %d is malformed", ErrBadArtifact, ti, node.ID)
			}
		}
	}
	return nil
}

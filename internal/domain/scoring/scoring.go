// Package scoring fuses classifier output and catalog metadata into a
// discovery confidence score.
package scoring

import (
	"sort"

	"github.com/okian/dipscan/internal/domain/model"
)

// Rubric point values. The maximum attainable score is 100.
const (
	pointsNotInCatalog   = 20
	pointsObjectLabel    = 10
	pointsDeepDip        = 10
	pointsTransitLength  = 10
	pointsBrightStar     = 10
	pointsPeriodic       = 20
	pointsUShaped        = 10
	pointsAwayFromEdge   = 10
	maxScore             = 100
	deepDipMinDepth      = 0.01
	transitMinDuration   = 0.05
	transitMaxDuration   = 0.15
	brightMagnitudeLimit = 12.0
	uShaped              = "u_shaped"
)

// Label cut points. Fixed so candidate lists stay comparable across runs.
const (
	likelyPlanetMin     = 70
	possibleAsteroidMin = 50
	interestingNoiseMin = 30
)

// Criterion names one rubric line.
type Criterion string

// Rubric criteria in evaluation order.
const (
	CriterionNotInCatalog  Criterion = "not_in_catalog"
	CriterionObjectLabel   Criterion = "object_label"
	CriterionDeepDip       Criterion = "deep_dip"
	CriterionTransitLength Criterion = "transit_length"
	CriterionBrightStar    Criterion = "bright_star"
	CriterionPeriodic      Criterion = "periodic"
	CriterionUShaped       Criterion = "u_shaped"
	CriterionAwayFromEdge  Criterion = "away_from_edge"
)

// Contribution is the outcome of one criterion.
type Contribution struct {
	Criterion Criterion `json:"criterion"`
	Points    int       `json:"points"`
	Satisfied bool      `json:"satisfied"`
}

// Result contains the computed score, its label, and the per-criterion breakdown.
type Result struct {
	Score     int                  `json:"score"`
	Label     model.DiscoveryLabel `json:"label"`
	Breakdown []Contribution       `json:"breakdown"`
}

// Scorer computes a discovery score for a candidate.
type Scorer interface {
	Score(c model.Candidate) Result
}

// Option applies a configuration option to the RubricScorer.
type Option func(*RubricScorer)

// WithAbsentNearEdgeSatisfied controls whether a missing near_edge value
// earns the away-from-edge points. Defaults to true.
func WithAbsentNearEdgeSatisfied(satisfied bool) Option {
	return func(s *RubricScorer) {
		s.absentNearEdgeSatisfied = satisfied
	}
}

// RubricScorer implements Scorer with an additive point rubric.
type RubricScorer struct {
	absentNearEdgeSatisfied bool
}

// NewRubricScorer creates a rubric scorer with configuration options.
func NewRubricScorer(opts ...Option) *RubricScorer {
	s := &RubricScorer{absentNearEdgeSatisfied: true}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score evaluates every criterion independently. Missing fields never satisfy
// a criterion, except near_edge whose absence is treated as "not near edge"
// unless configured otherwise.
func (s *RubricScorer) Score(c model.Candidate) Result { //nolint:gocritic // hugeParam: candidates are passed by value
	breakdown := []Contribution{
		{CriterionNotInCatalog, pointsNotInCatalog, c.CatalogStatus != nil && *c.CatalogStatus == model.StatusNotFound},
		{CriterionObjectLabel, pointsObjectLabel, c.PredictedLabel != nil &&
			(*c.PredictedLabel == model.LabelPlanet || *c.PredictedLabel == model.LabelAsteroid)},
		{CriterionDeepDip, pointsDeepDip, c.Depth != nil && *c.Depth > deepDipMinDepth},
		{CriterionTransitLength, pointsTransitLength, c.Duration != nil &&
			*c.Duration >= transitMinDuration && *c.Duration <= transitMaxDuration},
		{CriterionBrightStar, pointsBrightStar, c.ApparentMagnitude != nil && *c.ApparentMagnitude < brightMagnitudeLimit},
		{CriterionPeriodic, pointsPeriodic, c.IsPeriodic != nil && *c.IsPeriodic},
		{CriterionUShaped, pointsUShaped, c.DipShape != nil && *c.DipShape == uShaped},
		{CriterionAwayFromEdge, pointsAwayFromEdge, s.awayFromEdge(c.NearEdge)},
	}

	score := 0
	for _, b := range breakdown {
		if b.Satisfied {
			score += b.Points
		}
	}
	if score > maxScore {
		score = maxScore
	}
	return Result{Score: score, Label: LabelFor(score), Breakdown: breakdown}
}

func (s *RubricScorer) awayFromEdge(nearEdge *bool) bool {
	if nearEdge == nil {
		return s.absentNearEdgeSatisfied
	}
	return !*nearEdge
}

// LabelFor maps a score to its discovery label.
func LabelFor(score int) model.DiscoveryLabel {
	switch {
	case score >= likelyPlanetMin:
		return model.DiscoveryLikelyPlanet
	case score >= possibleAsteroidMin:
		return model.DiscoveryPossibleAsteroid
	case score >= interestingNoiseMin:
		return model.DiscoveryInterestingNoise
	default:
		return model.DiscoveryNoise
	}
}

// Ranked is a scored candidate together with its input position.
type Ranked struct {
	Index int
	model.ScoredCandidate
}

// Rank scores every candidate and orders them by score descending.
// Equal scores keep their input order.
func Rank(s Scorer, candidates []model.Candidate) []Ranked {
	out := make([]Ranked, len(candidates))
	for i, c := range candidates {
		r := s.Score(c)
		out[i] = Ranked{Index: i, ScoredCandidate: model.ScoredCandidate{Candidate: c, Score: r.Score, Label: r.Label}}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Score > out[b].Score })
	return out
}

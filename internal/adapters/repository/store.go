package repository

import (
	"context"
	"sort"
	"sync/atomic"

	"github.com/okian/dipscan/internal/domain/model"
	"github.com/okian/dipscan/pkg/metrics"
)

// Entry is one ranked row of the candidate ranking.
type Entry struct {
	Rank           int                  `json:"rank"`
	TargetID       string               `json:"target_id"`
	Score          int                  `json:"confidence_score"`
	Label          model.DiscoveryLabel `json:"discovery_label"`
	PredictedLabel string               `json:"predicted_label,omitempty"`
	Depth          *float64             `json:"depth,omitempty"`
	Duration       *float64             `json:"duration,omitempty"`
	ObjectRadiusKM *float64             `json:"estimated_object_radius_km,omitempty"`
	Dips           int                  `json:"dips"`

	candidate model.Candidate
}

// Candidate returns the scored fields behind the entry.
func (e *Entry) Candidate() model.Candidate { return e.candidate }

// Store serves the best-scoring dip of every target.
type Store interface {
	// Replace swaps the served ranking for one built from candidates.
	Replace(ctx context.Context, candidates []model.ScoredCandidate)

	// Rank returns the entry for a target. Returns ErrNotFound if the target is unknown.
	Rank(ctx context.Context, targetID string) (Entry, error)

	// TopN returns the top-N entries ordered by score desc.
	TopN(ctx context.Context, n int) ([]Entry, error)

	// Count returns the number of targets in the ranking.
	Count(ctx context.Context) int
}

// snapshot is an immutable ranking.
type snapshot struct {
	entries  []Entry
	byTarget map[string]int
}

// CandidateStore is an in-memory Store. Writers publish immutable snapshots,
// so reads never block behind a reload.
type CandidateStore struct {
	current atomic.Pointer[snapshot]
}

// NewCandidateStore returns an empty store.
func NewCandidateStore() *CandidateStore {
	s := &CandidateStore{}
	s.current.Store(&snapshot{byTarget: map[string]int{}})
	return s
}

// Replace implements Store.Replace. Only the highest-scoring dip of each target
// is kept; ties keep the first one seen.
func (s *CandidateStore) Replace(_ context.Context, candidates []model.ScoredCandidate) {
	best := make(map[string]int, len(candidates))
	dips := make(map[string]int, len(candidates))
	entries := make([]Entry, 0, len(candidates))
	for i := range candidates {
		c := &candidates[i]
		dips[c.TargetID]++
		if j, ok := best[c.TargetID]; ok {
			if c.Score <= entries[j].Score {
				continue
			}
			entries[j] = newEntry(c)
			continue
		}
		best[c.TargetID] = len(entries)
		entries = append(entries, newEntry(c))
	}

	sortEntries(entries)
	assignRanksWithTies(entries)

	byTarget := make(map[string]int, len(entries))
	for i := range entries {
		entries[i].Dips = dips[entries[i].TargetID]
		byTarget[entries[i].TargetID] = i
	}
	s.current.Store(&snapshot{entries: entries, byTarget: byTarget})

	counts := map[model.DiscoveryLabel]int{}
	for _, e := range entries {
		counts[e.Label]++
	}
	for _, l := range model.DiscoveryLabels {
		metrics.UpdateCandidatesByLabel(string(l), counts[l])
	}
}

// Rank implements Store.Rank.
func (s *CandidateStore) Rank(_ context.Context, targetID string) (Entry, error) {
	snap := s.current.Load()
	i, ok := snap.byTarget[targetID]
	if !ok {
		metrics.RecordErrorByComponent("repository", "not_found")
		return Entry{}, ErrNotFound
	}
	return snap.entries[i], nil
}

// TopN implements Store.TopN.
func (s *CandidateStore) TopN(_ context.Context, n int) ([]Entry, error) {
	if n < 1 {
		metrics.RecordErrorByComponent("repository", "invalid_limit")
		return nil, ErrInvalidLimit
	}
	snap := s.current.Load()
	n = min(n, len(snap.entries))
	return append([]Entry(nil), snap.entries[:n]...), nil
}

// Count implements Store.Count.
func (s *CandidateStore) Count(_ context.Context) int {
	return len(s.current.Load().entries)
}

func newEntry(c *model.ScoredCandidate) Entry {
	e := Entry{
		TargetID:       c.TargetID,
		Score:          c.Score,
		Label:          c.Label,
		Depth:          c.Depth,
		Duration:       c.Duration,
		ObjectRadiusKM: c.ObjectRadiusKM,
		candidate:      c.Candidate,
	}
	if c.PredictedLabel != nil {
		e.PredictedLabel = string(*c.PredictedLabel)
	}
	return e
}

// sortEntries orders by score desc, then target id asc.
func sortEntries(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].TargetID < entries[j].TargetID
	})
}

// assignRanksWithTies gives equal scores the same rank; ranks stay consecutive.
func assignRanksWithTies(entries []Entry) {
	rank := 0
	for i := range entries {
		if i == 0 || entries[i].Score != entries[i-1].Score {
			rank++
		}
		entries[i].Rank = rank
	}
}

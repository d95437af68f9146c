package repository

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/okian/dipscan/internal/domain/model"
)

func scored(id string, score int) model.ScoredCandidate {
	return model.ScoredCandidate{
		Candidate: model.Candidate{TargetID: id, Depth: model.Float(0.01)},
		Score:     score,
		Label:     model.DiscoveryNoise,
	}
}

func TestCandidateStore_BasicOperations(t *testing.T) {
	ctx := context.Background()
	store := NewCandidateStore()

	if count := store.Count(ctx); count != 0 {
		t.Errorf("expected count 0, got %d", count)
	}
	if _, err := store.Rank(ctx, "TIC 1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	store.Replace(ctx, []model.ScoredCandidate{
		scored("TIC 2", 40),
		scored("TIC 1", 90),
		scored("TIC 2", 70),
		scored("TIC 3", 70),
	})

	if count := store.Count(ctx); count != 3 {
		t.Fatalf("expected count 3, got %d", count)
	}

	entries, err := store.TopN(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []struct {
		id   string
		rank int
		s    int
	}{{"TIC 1", 1, 90}, {"TIC 2", 2, 70}, {"TIC 3", 2, 70}}
	if len(entries) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(entries))
	}
	for i, w := range want {
		if entries[i].TargetID != w.id || entries[i].Rank != w.rank || entries[i].Score != w.s {
			t.Errorf("entry %d: got %+v, want %+v", i, entries[i], w)
		}
	}

	e, err := store.Rank(ctx, "TIC 2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Score != 70 || e.Dips != 2 {
		t.Errorf("expected best score 70 over 2 dips, got %+v", e)
	}
}

func TestCandidateStore_TopNLimits(t *testing.T) {
	ctx := context.Background()
	store := NewCandidateStore()
	store.Replace(ctx, []model.ScoredCandidate{scored("a", 10), scored("b", 20)})

	if _, err := store.TopN(ctx, 0); !errors.Is(err, ErrInvalidLimit) {
		t.Errorf("expected ErrInvalidLimit, got %v", err)
	}
	entries, err := store.TopN(ctx, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 || entries[0].TargetID != "b" {
		t.Errorf("expected only b, got %+v", entries)
	}

	entries[0].Score = -1
	again, _ := store.TopN(ctx, 1)
	if again[0].Score != 20 {
		t.Error("TopN must return a copy")
	}
}

func TestCandidateStore_ConcurrentReadsDuringReplace(t *testing.T) {
	ctx := context.Background()
	store := NewCandidateStore()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				if _, err := store.TopN(ctx, 5); err != nil {
					t.Errorf("unexpected error: %v", err)
					return
				}
				_ = store.Count(ctx)
			}
		}()
	}
	for i := 0; i < 50; i++ {
		store.Replace(ctx, []model.ScoredCandidate{scored("x", i), scored("y", 50-i)})
	}
	wg.Wait()

	if store.Count(ctx) != 2 {
		t.Errorf("expected 2 targets, got %d", store.Count(ctx))
	}
}

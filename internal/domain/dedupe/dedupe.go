// Package dedupe tracks which keys, such as target identifiers, were already handled.
package dedupe

import (
	"context"
	"strings"
	"sync"

	"github.com/okian/dipscan/pkg/metrics"
)

// Deduper records seen keys.
type Deduper interface {
	// SeenAndRecord atomically checks if key was seen and records it if not.
	// Returns true if key was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, key string) bool
}

// inMemoryDeduper implements Deduper with an unbounded set.
type inMemoryDeduper struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewInMemoryDeduper creates a new in-memory deduper.
func NewInMemoryDeduper() Deduper {
	return &inMemoryDeduper{seen: make(map[string]struct{})}
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.seen[key]; exists {
		return true
	}
	d.seen[key] = struct{}{}
	return false
}

// Distinct returns the keys in first-seen order without repeats or blanks.
func Distinct(ctx context.Context, d Deduper, keys []string) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if d.SeenAndRecord(ctx, k) {
			metrics.RecordDuplicateTarget()
			continue
		}
		out = append(out, k)
	}
	return out
}

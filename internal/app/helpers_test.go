package service_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	service "github.com/okian/dipscan/internal/app"
	"github.com/okian/dipscan/internal/domain/model"
	"github.com/okian/dipscan/pkg/logger"
)

func init() {
	// Initialize logging for tests
	err := logger.Init(logger.WithLevel("error"))
	if err != nil {
		panic(err)
	}
}

// mockResolver answers lookups from a fixed table.
type mockResolver struct {
	statuses map[string]model.CatalogStatus
	fail     map[string]error
	block    chan struct{}
	started  chan struct{}
	once     sync.Once
	calls    atomic.Int64
}

func (m *mockResolver) Resolve(ctx context.Context, targetID string) (model.CatalogStatus, error) {
	m.calls.Add(1)
	if m.started != nil {
		m.once.Do(func() { close(m.started) })
	}
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err := m.fail[targetID]; err != nil {
		return "", err
	}
	if st, ok := m.statuses[targetID]; ok {
		return st, nil
	}
	return model.StatusNoObjectListed, nil
}

func testSettings(dir string) service.Settings {
	s := service.DefaultSettings()
	s.OutputDir = dir
	s.SeriesDir = filepath.Join(dir, "lightcurves")
	s.TargetsFile = filepath.Join(dir, "tics.txt")
	s.MetadataFile = filepath.Join(dir, "tic_metadata.csv")
	s.Trees = 10
	s.MaxFrequencies = 400
	s.LookupConcurrency = 3
	return s
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

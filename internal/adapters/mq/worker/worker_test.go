package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/okian/dipscan/internal/adapters/mq/queue"
	"github.com/okian/dipscan/internal/adapters/mq/worker"
	"github.com/okian/dipscan/internal/domain/model"
	logging "github.com/okian/dipscan/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	_ = logging.Init(logging.WithLevel("error"))
	goleak.VerifyTestMain(m)
}

// Mock implementations for testing.
type mockResolver struct {
	mu       sync.RWMutex
	statuses map[string]model.CatalogStatus
	errors   map[string]error
	delay    time.Duration
	calls    atomic.Int64
	inFlight atomic.Int64
	peak     atomic.Int64
}

func newMockResolver() *mockResolver {
	return &mockResolver{
		statuses: make(map[string]model.CatalogStatus),
		errors:   make(map[string]error),
	}
}

func (m *mockResolver) Resolve(ctx context.Context, targetID string) (model.CatalogStatus, error) {
	m.calls.Add(1)
	n := m.inFlight.Add(1)
	defer m.inFlight.Add(-1)
	for {
		p := m.peak.Load()
		if n <= p || m.peak.CompareAndSwap(p, n) {
			break
		}
	}

	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if err, ok := m.errors[targetID]; ok {
		return "", err
	}
	if st, ok := m.statuses[targetID]; ok {
		return st, nil
	}
	return model.StatusNoObjectListed, nil
}

func (m *mockResolver) setError(targetID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[targetID] = err
}

func (m *mockResolver) setStatus(targetID string, st model.CatalogStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[targetID] = st
}

func runBatch(t *testing.T, workers int, resolver worker.Resolver, targets []string, opts ...worker.Option) map[string]model.LookupResult {
	t.Helper()
	ctx := context.Background()
	q := queue.NewInMemoryQueue(queue.WithCapacity(4))
	sink := worker.NewCollector()
	pool := worker.NewPool(workers, q, resolver, sink, worker.WithWorkerOptions(opts...))
	pool.Start(ctx)

	for _, id := range targets {
		if err := q.Put(ctx, model.LookupJob{TargetID: id}); err != nil {
			t.Fatalf("put %s: %v", id, err)
		}
	}
	drainCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Drain(drainCtx); err != nil {
		t.Fatalf("drain: %v", err)
	}
	return sink.Results()
}

func TestPool_ResultPerTarget(t *testing.T) {
	convey.Convey("Given distinct targets and pools of different sizes", t, func() {
		targets := make([]string, 25)
		for i := range targets {
			targets[i] = fmt.Sprintf("TIC %d", i)
		}

		for _, size := range []int{1, 3, 8, 32} {
			convey.Convey(fmt.Sprintf("When a pool of %d drains the batch", size), func() {
				resolver := newMockResolver()
				resolver.setStatus("TIC 3", model.StatusKnownObject)
				resolver.setStatus("TIC 4", model.StatusNotFound)
				resolver.delay = time.Millisecond

				results := runBatch(t, size, resolver, targets)

				convey.Convey("Then every target has exactly one result", func() {
					convey.So(results, convey.ShouldHaveLength, len(targets))
					convey.So(resolver.calls.Load(), convey.ShouldEqual, len(targets))
					convey.So(results["TIC 3"].Status, convey.ShouldEqual, model.StatusKnownObject)
					convey.So(results["TIC 4"].Status, convey.ShouldEqual, model.StatusNotFound)
					convey.So(results["TIC 5"].Status, convey.ShouldEqual, model.StatusNoObjectListed)
				})

				convey.Convey("And concurrency never exceeds the pool size", func() {
					convey.So(resolver.peak.Load(), convey.ShouldBeLessThanOrEqualTo, size)
				})
			})
		}
	})
}

func TestPool_LookupFailures(t *testing.T) {
	convey.Convey("Given a resolver that fails for some targets", t, func() {
		resolver := newMockResolver()
		resolver.setError("TIC 2", errors.New("connection refused"))

		convey.Convey("When the batch runs", func() {
			results := runBatch(t, 2, resolver, []string{"TIC 1", "TIC 2", "TIC 3"})

			convey.Convey("Then only the failing target gets a lookup error", func() {
				convey.So(results, convey.ShouldHaveLength, 3)
				convey.So(results["TIC 2"].Status, convey.ShouldEqual, model.StatusLookupError)
				convey.So(results["TIC 2"].Err, convey.ShouldNotBeNil)
				convey.So(results["TIC 1"].Status, convey.ShouldEqual, model.StatusNoObjectListed)
				convey.So(results["TIC 1"].Err, convey.ShouldBeNil)
			})
		})

		convey.Convey("When a lookup exceeds the timeout", func() {
			resolver.delay = 200 * time.Millisecond
			results := runBatch(t, 2, resolver, []string{"TIC 9"}, worker.WithTimeout(10*time.Millisecond))

			convey.Convey("Then it is recorded as a lookup error", func() {
				convey.So(results["TIC 9"].Status, convey.ShouldEqual, model.StatusLookupError)
				convey.So(errors.Is(results["TIC 9"].Err, context.DeadlineExceeded), convey.ShouldBeTrue)
			})
		})
	})
}

func TestPool_Shutdown(t *testing.T) {
	convey.Convey("Given a started pool", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		q := queue.NewInMemoryQueue()
		pool := worker.NewPool(0, q, newMockResolver(), worker.NewCollector())
		pool.Start(ctx)

		convey.Convey("When shutting down", func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
			defer shutdownCancel()
			err := pool.Shutdown(shutdownCtx)

			convey.Convey("Then it stops every worker and closes the queue", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(pool.Size(), convey.ShouldBeGreaterThan, 0)
				convey.So(errors.Is(q.Put(ctx, model.LookupJob{TargetID: "TIC 1"}), queue.ErrClosed), convey.ShouldBeTrue)
			})
		})
	})

	convey.Convey("Given a pool whose context is canceled", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		q := queue.NewInMemoryQueue()
		pool := worker.NewPool(2, q, newMockResolver(), worker.NewCollector())
		pool.Start(ctx)
		cancel()

		convey.Convey("Then the workers return", func() {
			drainCtx, drainCancel := context.WithTimeout(context.Background(), time.Second)
			defer drainCancel()
			convey.So(pool.Drain(drainCtx), convey.ShouldBeNil)
		})
	})
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a single worker", t, func() {
		q := queue.NewInMemoryQueue(queue.WithCapacity(2))
		sink := worker.NewCollector()
		w := worker.NewInMemoryWorker(q, newMockResolver(), sink, worker.WithName("solo"))
		ctx := context.Background()

		done := make(chan struct{})
		go func() {
			w.Run(ctx)
			close(done)
		}()

		convey.So(q.Put(ctx, model.LookupJob{TargetID: "TIC 1"}), convey.ShouldBeNil)
		convey.So(q.Close(), convey.ShouldBeNil)

		convey.Convey("Then it exits once the queue is drained", func() {
			select {
			case <-done:
			case <-time.After(time.Second):
				convey.So("worker did not exit", convey.ShouldBeEmpty)
			}
			convey.So(sink.Len(), convey.ShouldEqual, 1)
			convey.So(w.Shutdown(ctx), convey.ShouldBeNil)
		})
	})
}

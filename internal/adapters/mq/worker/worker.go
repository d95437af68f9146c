package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/dipscan/internal/domain/model"
	"github.com/okian/dipscan/pkg/logger"
	"github.com/okian/dipscan/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultWorkerCount   = 8
	defaultLookupTimeout = 10 * time.Second
)

// Job is what workers read off the queue.
type Job = model.LookupJob

// Resolver looks up the catalog status of a target.
type Resolver interface {
	Resolve(ctx context.Context, targetID string) (model.CatalogStatus, error)
}

// Sink receives lookup results. Implementations must be safe for concurrent use.
type Sink interface {
	Record(ctx context.Context, r model.LookupResult)
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Job
}

// Worker processes lookup jobs until its queue is drained.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue is closed and empty.
	Run(ctx context.Context)

	// Shutdown stops the worker after its current job.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker.
type InMemoryWorker struct {
	queue    Queue
	resolver Resolver
	sink     Sink
	name     string
	timeout  time.Duration
	active   *atomic.Int64

	stopOnce sync.Once
	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(queue Queue, resolver Resolver, sink Sink, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    queue,
		resolver: resolver,
		sink:     sink,
		name:     "worker",
		timeout:  defaultLookupTimeout,
		active:   &atomic.Int64{},
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}

	for _, opt := range opts {
		opt(w)
	}

	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}

	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			metrics.RecordQueueDequeue()
			w.processJob(ctx, job)
		}
	}
}

// Shutdown stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.stopOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// processJob resolves one target and records the outcome. Transport failures,
// non-success responses and timeouts all become StatusLookupError.
func (w *InMemoryWorker) processJob(ctx context.Context, job Job) {
	start := time.Now()
	metrics.UpdateWorkerActiveCount(int(w.active.Add(1)))
	defer func() {
		metrics.UpdateWorkerActiveCount(int(w.active.Add(-1)))
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	lookupCtx, cancel := context.WithTimeout(ctx, w.timeout)
	status, err := w.resolver.Resolve(lookupCtx, job.TargetID)
	cancel()

	result := model.LookupResult{TargetID: job.TargetID, Status: status}
	if err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "lookup_error")
		w.logger.Warn(ctx, "catalog lookup failed",
			logger.String("target_id", job.TargetID),
			logger.Error(err),
		)
		result.Status = model.StatusLookupError
		result.Err = err
	}
	metrics.RecordLookup(string(result.Status), time.Since(start))
	w.sink.Record(ctx, result)
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers    []*InMemoryWorker
	queue      Queue
	workerOpts []Option
	active     atomic.Int64
	wg         sync.WaitGroup

	logger logger.Logger
}

// NewPool creates a new worker pool.
func NewPool(workerCount int, queue Queue, resolver Resolver, sink Sink, opts ...PoolOption) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}

	pool := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   queue,
		logger:  logger.Get().Named("worker-pool"),
	}
	for _, opt := range opts {
		opt(pool)
	}

	for i := 0; i < workerCount; i++ {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, pool.workerOpts...)
		w := NewInMemoryWorker(queue, resolver, sink, wopts...)
		w.active = &pool.active
		pool.workers[i] = w
	}

	metrics.UpdateWorkerCount(workerCount)
	metrics.UpdateWorkerActiveCount(0)

	return pool
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *InMemoryWorker) {
			defer p.wg.Done()
			w.Run(ctx)
		}(w)
	}
}

// Drain closes the queue and waits for the workers to finish the queued jobs.
func (p *Pool) Drain(ctx context.Context) error {
	p.closeQueue(ctx)

	finished := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain: %w", ctx.Err())
	}
}

// Shutdown stops all workers without draining the queue.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.closeQueue(ctx)

	var firstErr error
	for i, w := range p.workers {
		if err := w.Shutdown(ctx); err != nil {
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (p *Pool) closeQueue(ctx context.Context) {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
}

// Collector is a Sink that keeps the last result per target.
type Collector struct {
	mu      sync.Mutex
	results map[string]model.LookupResult
}

// NewCollector returns an empty Collector.
func NewCollector() *Collector {
	return &Collector{results: make(map[string]model.LookupResult)}
}

// Record implements Sink.
func (c *Collector) Record(_ context.Context, r model.LookupResult) {
	c.mu.Lock()
	c.results[r.TargetID] = r
	c.mu.Unlock()
}

// Results returns a copy of the collected results.
func (c *Collector) Results() map[string]model.LookupResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]model.LookupResult, len(c.results))
	for k, v := range c.results {
		out[k] = v
	}
	return out
}

// Len returns the number of collected results.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results)
}

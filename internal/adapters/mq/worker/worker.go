package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/broutes/internal/domain/model"
	"github.com/okian/broutes/pkg/logger"
	"github.com/okian/broutes/pkg/metrics"
)

const defaultMetricsInterval = 5 * time.Second

// Job is what workers read off the queue.
type Job = model.Job

// Executor runs a job and reports its outcome. Failures are part of the
// outcome, not an error.
type Executor interface {
	Execute(ctx context.Context, j Job) model.Outcome
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, j Job) model.Outcome

func (f ExecutorFunc) Execute(ctx context.Context, j Job) model.Outcome { return f(ctx, j) } //nolint:gocritic // hugeParam: Job is passed by value

// Recorder stores outcomes.
type Recorder interface {
	Put(ctx context.Context, o model.Outcome) error
}

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Job
}

// Worker processes jobs until the queue is drained or it is stopped.
type Worker interface {
	Run(ctx context.Context)
	Shutdown(ctx context.Context) error
}

// InMemoryWorker executes jobs from a Queue.
type InMemoryWorker struct {
	queue    Queue
	executor Executor
	recorder Recorder
	name     string

	processed *atomic.Int64

	stopOnce sync.Once
	shutdown chan struct{}
	done     chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a worker.
func NewInMemoryWorker(q Queue, exec Executor, rec Recorder, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     q,
		executor:  exec,
		recorder:  rec,
		name:      "worker",
		processed: &atomic.Int64{},
		shutdown:  make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger.Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(logger.String("worker", w.name))
	return w
}

// Run processes jobs until the queue channel closes, ctx ends or Shutdown is called.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			if err := w.process(ctx, j); err != nil {
				w.logger.Error(ctx, "error processing job", logger.Error(err))
			}
		}
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

// Shutdown stops the worker after the job in progress.
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

func (w *InMemoryWorker) process(ctx context.Context, j Job) error { //nolint:gocritic // hugeParam: Job is passed by value for channel semantics
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	o := w.executor.Execute(ctx, j)
	if o.JobID == "" {
		o.JobID = j.ID
	}
	if o.Finished.IsZero() {
		o.Finished = time.Now()
	}
	metrics.RecordJobProcessed(o.Status)
	w.processed.Add(1)

	if o.Status == model.StatusFailed {
		metrics.RecordWorkerError()
		w.logger.Debug(ctx, "job failed",
			logger.String("job_id", j.ID),
			logger.String("route", j.Route),
			logger.String("error", o.Error),
		)
	}

	if err := w.recorder.Put(ctx, o); err != nil {
		metrics.RecordErrorByComponent("worker", "record_outcome")
		return fmt.Errorf("record outcome of job %s: %w", j.ID, err)
	}
	return nil
}

// Pool manages multiple workers over one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue

	metricsInterval time.Duration
	processed       atomic.Int64
	lastProcessed   int64
	lastTick        time.Time

	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started atomic.Bool

	logger logger.Logger
}

// NewPool creates a pool of workerCount workers, runtime.NumCPU() when
// workerCount < 1.
func NewPool(workerCount int, q Queue, exec Executor, rec Recorder, opts ...PoolOption) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	p := &Pool{
		workers:         make([]*InMemoryWorker, workerCount),
		queue:           q,
		metricsInterval: defaultMetricsInterval,
		logger:          logger.Named("worker-pool"),
	}
	for _, opt := range opts {
		opt(p)
	}
	for i := range p.workers {
		w := NewInMemoryWorker(q, exec, rec,
			WithName("worker-"+strconv.Itoa(i)),
			WithLogger(p.logger),
		)
		w.processed = &p.processed
		p.workers[i] = w
	}
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Processed returns the number of jobs processed so far.
func (p *Pool) Processed() int64 { return p.processed.Load() }

// Start runs every worker and the metrics updater. Calling Start twice is a no-op.
func (p *Pool) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.lastTick = time.Now()

	metrics.UpdateWorkerActiveCount(len(p.workers))
	var workers sync.WaitGroup
	for _, w := range p.workers {
		workers.Add(1)
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			defer workers.Done()
			w.Run(ctx)
		}()
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runMetricsUpdater(ctx)
	}()

	// Stop the updater once every worker has returned.
	go func() {
		workers.Wait()
		metrics.UpdateWorkerActiveCount(0)
		p.cancel()
	}()
}

func (p *Pool) runMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(p.metricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.updateMetrics()
			return
		case <-ticker.C:
			p.updateMetrics()
		}
	}
}

func (p *Pool) updateMetrics() {
	now := time.Now()
	total := p.processed.Load()
	if elapsed := now.Sub(p.lastTick).Seconds(); elapsed > 0 {
		metrics.UpdateWorkerJobsPerSecond(float64(total-p.lastProcessed) / elapsed)
	}
	p.lastProcessed, p.lastTick = total, now
}

// Wait blocks until every worker has drained the queue and returned, or ctx ends.
func (p *Pool) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for workers: %w", ctx.Err())
	}
}

// Shutdown closes the queue when it supports closing, stops every worker and
// waits for them or ctx.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	for _, w := range p.workers {
		w.stopOnce.Do(func() { close(w.shutdown) })
	}
	if p.cancel != nil {
		p.cancel()
	}
	return p.Wait(ctx)
}

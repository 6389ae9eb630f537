// Package service runs plans of route invocations through a bounded queue
// and a worker pool, and keeps their outcomes.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/broutes/internal/adapters/mq/queue"
	"github.com/okian/broutes/internal/adapters/mq/worker"
	"github.com/okian/broutes/internal/adapters/repository"
	"github.com/okian/broutes/internal/domain/dedupe"
	"github.com/okian/broutes/internal/domain/model"
	"github.com/okian/broutes/pkg/logger"
	"github.com/okian/broutes/pkg/metrics"
	"github.com/okian/broutes/pkg/route"
	"github.com/okian/broutes/pkg/validate"
)

const (
	defaultQueueSize      = 1_000
	defaultDedupeSize     = 10_000
	defaultEnqueueBackoff = 5 * time.Millisecond
)

// Stats is a point-in-time view of the service.
type Stats struct {
	Running     bool          `json:"running"`
	RunID       string        `json:"run_id,omitempty"`
	Plan        string        `json:"plan,omitempty"`
	Workers     int           `json:"workers"`
	QueueSize   int           `json:"queue_size"`
	QueueLength int           `json:"queue_length"`
	Submitted   int           `json:"submitted"`
	Processed   int64         `json:"processed"`
	DedupeSize  int64         `json:"dedupe_entries"`
	Routes      int           `json:"routes"`
	Summary     model.Summary `json:"summary"`
}

// Service executes jobs against named routes.
type Service struct {
	mu sync.RWMutex

	routes  map[string]*route.Route
	store   repository.Store
	deduper dedupe.Deduper

	workerCount    int
	queueSize      int
	dedupeSize     int
	enqueueBackoff time.Duration

	// state of the current or last run
	running   bool
	runID     string
	plan      string
	submitted int
	queue     *queue.InMemoryQueue
	pool      *worker.Pool

	logger logger.Logger
}

// New constructs a Service.
func New(opts ...Option) *Service {
	s := &Service{
		routes:         make(map[string]*route.Route),
		workerCount:    runtime.NumCPU(),
		queueSize:      defaultQueueSize,
		dedupeSize:     defaultDedupeSize,
		enqueueBackoff: defaultEnqueueBackoff,
		logger:         logger.Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = repository.NewMemoryStore()
	}
	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	return s
}

// Run executes jobs and returns their report. Repeated job ids run once; the
// repeats are reported as skipped. Run fails with ErrRunInProgress while
// another run is active. When ctx ends before every job has run, the partial
// report is returned together with an error matching ErrInterrupted.
func (s *Service) Run(ctx context.Context, plan string, jobs []model.Job) (*model.Report, error) {
	started := time.Now()

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, ErrRunInProgress
	}
	s.running = true
	s.runID = uuid.NewString()
	s.plan = plan
	s.submitted = 0
	s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.queueSize))
	s.pool = worker.NewPool(s.workerCount, s.queue, s, s.store, worker.WithPoolLogger(s.logger))
	s.store.Reset(ctx)
	s.deduper.Reset(ctx)
	q, pool, runID := s.queue, s.pool, s.runID
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	log := s.logger.With(logger.String("run_id", runID), logger.String("plan", plan))
	log.Info(ctx, "run started", logger.Int("jobs", len(jobs)), logger.Int("workers", pool.Size()))

	pool.Start(ctx)
	runErr := s.submit(ctx, q, jobs)
	_ = q.Close()

	if runErr == nil {
		runErr = pool.Wait(ctx)
	}
	if runErr != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := pool.Shutdown(shutdownCtx); err != nil {
			log.Warn(ctx, "worker shutdown incomplete", logger.Error(err))
		}
		runErr = fmt.Errorf("%w: %w", ErrInterrupted, runErr)
	}

	outcomes, err := s.store.List(context.WithoutCancel(ctx), repository.Filter{})
	if err != nil {
		return nil, err
	}
	finished := time.Now()
	r := &model.Report{
		RunID:    runID,
		Plan:     plan,
		Started:  started,
		Finished: finished,
		Duration: finished.Sub(started),
		Summary:  s.store.Summary(ctx),
		Outcomes: outcomes,
	}

	log.Info(ctx, "run finished",
		logger.Int("total", r.Summary.Total),
		logger.Int("succeeded", r.Summary.Succeeded),
		logger.Int("failed", r.Summary.Failed),
		logger.Int("rejected", r.Summary.Rejected),
		logger.Int("skipped", r.Summary.Skipped),
		logger.Duration("duration", r.Duration),
	)
	return r, runErr
}

// submit enqueues every job, waiting while the queue is full.
func (s *Service) submit(ctx context.Context, q *queue.InMemoryQueue, jobs []model.Job) error {
	for _, j := range jobs {
		if s.deduper.SeenAndRecord(ctx, j.ID) {
			metrics.RecordJobDuplicate()
			metrics.RecordJobProcessed(model.StatusSkipped)
			s.logger.Debug(ctx, "duplicate job skipped", logger.String("job_id", j.ID))
			if err := s.store.Put(ctx, skipped(j)); err != nil {
				return err
			}
			continue
		}

		for !q.Enqueue(ctx, j) {
			if q.IsClosed() {
				s.deduper.Unrecord(ctx, j.ID)
				return queue.ErrClosed
			}
			select {
			case <-ctx.Done():
				s.deduper.Unrecord(ctx, j.ID)
				return ctx.Err()
			case <-time.After(s.enqueueBackoff):
			}
		}

		s.mu.Lock()
		s.submitted++
		s.mu.Unlock()
	}
	return nil
}

func skipped(j model.Job) model.Outcome { //nolint:gocritic // hugeParam: Job is passed by value
	return model.Outcome{
		JobID:    fmt.Sprintf("%s#dup%d", j.ID, j.Seq),
		Seq:      j.Seq,
		Step:     j.Step,
		Route:    j.Route,
		Method:   j.Method,
		Scenario: j.Scenario,
		Group:    j.Group,
		Status:   model.StatusSkipped,
		Error:    "duplicate job id " + j.ID,
		Finished: time.Now(),
	}
}

// Execute resolves the job's route and invokes it. It implements worker.Executor.
func (s *Service) Execute(ctx context.Context, j model.Job) (o model.Outcome) { //nolint:gocritic // hugeParam: Job is passed by value
	o = model.Outcome{
		JobID:    j.ID,
		Seq:      j.Seq,
		Step:     j.Step,
		Route:    j.Route,
		Method:   j.Method,
		Scenario: j.Scenario,
		Group:    j.Group,
	}
	defer func() { o.Finished = time.Now() }()

	r, err := s.resolve(j)
	if err != nil {
		o.Status, o.Error = model.StatusFailed, err.Error()
		return o
	}

	start := time.Now()
	ex, err := r.Invoke(ctx, j.Method, j.Args)
	o.Duration = time.Since(start)
	if ex != nil {
		o.RequestID = ex.RequestID
		o.Method = ex.Method
		if ex.Response != nil {
			defer ex.Response.Close()
			o.StatusCode = ex.Response.StatusCode
			o.URL = ex.Response.URL
		}
	}

	switch {
	case err == nil:
		o.Status = model.StatusSucceeded
	case route.IsExpectationFailure(err):
		o.Status, o.Error = model.StatusRejected, err.Error()
		for _, f := range validate.Failures(err) {
			o.Failures = append(o.Failures, f.Message)
		}
	default:
		o.Status, o.Error = model.StatusFailed, err.Error()
	}
	return o
}

func (s *Service) resolve(j model.Job) (*route.Route, error) { //nolint:gocritic // hugeParam: Job is passed by value
	s.mu.RLock()
	r, ok := s.routes[j.Route]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownRoute, j.Route)
	}
	if j.Scenario == "" {
		return r, nil
	}
	if j.Group != "" {
		return r.ForScenario(j.Scenario, j.Group)
	}
	return r.ForScenario(j.Scenario)
}

// Outcomes lists stored outcomes of the current or last run.
func (s *Service) Outcomes(ctx context.Context, f repository.Filter) ([]model.Outcome, error) {
	return s.store.List(ctx, f)
}

// Outcome returns one stored outcome.
func (s *Service) Outcome(ctx context.Context, jobID string) (model.Outcome, error) {
	return s.store.Get(ctx, jobID)
}

// IsNotFound reports whether err means an unknown job id.
func IsNotFound(err error) bool { return errors.Is(err, repository.ErrNotFound) }

// Stats returns service statistics for monitoring.
func (s *Service) Stats(ctx context.Context) Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		Running:    s.running,
		RunID:      s.runID,
		Plan:       s.plan,
		Workers:    s.workerCount,
		QueueSize:  s.queueSize,
		Submitted:  s.submitted,
		DedupeSize: s.deduper.Size(),
		Routes:     len(s.routes),
		Summary:    s.store.Summary(ctx),
	}
	if s.queue != nil {
		st.QueueLength = s.queue.Len(ctx)
	}
	if s.pool != nil {
		st.Processed = s.pool.Processed()
		st.Workers = s.pool.Size()
	}
	return st
}

// Package workers runs scan jobs on a bounded pool of goroutines and keeps
// an in-memory record of every job for the API and scheduler. It supports
// job queuing, per-job cancellation, graceful shutdown, and integrates with
// the structured logging and metrics systems.
package workers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/anstrom/portrisk/internal/errors"
	"github.com/anstrom/portrisk/internal/logging"
	"github.com/anstrom/portrisk/internal/metrics"
)

// Job status labels reported to metrics.
const (
	jobStatusQueued    = "queued"
	jobStatusRunning   = "running"
	jobStatusCompleted = "completed"
	jobStatusFailed    = "failed"
	jobStatusCanceled  = "canceled"
)

// Job represents a unit of work to be executed by a worker.
type Job interface {
	// Execute performs the job and returns an error if it fails.
	Execute(ctx context.Context) error
	// ID returns a unique identifier for the job.
	ID() string
	// Type returns the job type for metrics and logging.
	Type() string
}

// Result represents the result of executing a job.
type Result struct {
	JobID    string
	JobType  string
	Error    error
	Canceled bool
	Duration time.Duration
}

// Config holds configuration for the worker pool.
type Config struct {
	// Size is the number of worker goroutines to create.
	Size int
	// QueueSize is the maximum number of jobs that can be queued.
	QueueSize int
	// ShutdownTimeout is the maximum time to wait for workers to finish.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a default worker pool configuration.
func DefaultConfig() Config {
	return Config{
		Size:            4,
		QueueSize:       100,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Option customises a Pool.
type Option func(*Pool)

// WithLogger sets the pool logger.
func WithLogger(l *logging.Logger) Option {
	return func(p *Pool) { p.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(p *Pool) { p.metrics = r }
}

// Pool manages a pool of worker goroutines for concurrent job execution.
type Pool struct {
	config  Config
	jobs    chan Job
	results chan Result
	logger  *logging.Logger
	metrics metrics.Recorder

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	// submitMu orders Submit against the close of jobs in Shutdown.
	submitMu sync.RWMutex
	closed   bool

	mu       sync.Mutex
	running  map[string]context.CancelFunc
	canceled map[string]struct{}

	startOnce    sync.Once
	shutdownOnce sync.Once
}

// New creates a new worker pool with the given configuration.
func New(config Config, opts ...Option) *Pool {
	if config.Size <= 0 {
		config.Size = 1
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 1
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = DefaultConfig().ShutdownTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	pool := &Pool{
		config:   config,
		jobs:     make(chan Job, config.QueueSize),
		results:  make(chan Result, config.QueueSize),
		logger:   logging.Default(),
		metrics:  metrics.Nop{},
		ctx:      ctx,
		cancel:   cancel,
		running:  make(map[string]context.CancelFunc),
		canceled: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(pool)
	}
	pool.logger = pool.logger.WithComponent("workers")
	return pool
}

// Start launches the worker goroutines. Calling it more than once has no effect.
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		p.logger.Info("Starting worker pool",
			"worker_count", p.config.Size,
			"queue_size", p.config.QueueSize)

		for i := 0; i < p.config.Size; i++ {
			p.wg.Add(1)
			go p.run(i)
		}
	})
}

// Submit queues a job without blocking. It fails with QUEUE_FULL when the
// queue is at capacity and with POOL_CLOSED after Shutdown.
func (p *Pool) Submit(job Job) error {
	p.submitMu.RLock()
	defer p.submitMu.RUnlock()

	if p.closed {
		return errors.NewScanError(errors.CodePoolClosed, "worker pool is shut down")
	}

	select {
	case p.jobs <- job:
		p.logger.Debug("Job submitted to worker pool",
			"job_id", job.ID(),
			"job_type", job.Type())
		p.metrics.IncrementJobs(job.Type(), jobStatusQueued)
		return nil
	default:
		return errors.NewScanError(errors.CodeQueueFull,
			fmt.Sprintf("job queue is full (%d jobs)", p.config.QueueSize)).
			WithContext("job_id", job.ID())
	}
}

// Cancel cancels a job. A running job has its context cancelled; a job that
// has not started yet is skipped when a worker picks it up. It reports
// whether the job was running.
func (p *Pool) Cancel(jobID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cancel, ok := p.running[jobID]; ok {
		cancel()
		return true
	}
	p.canceled[jobID] = struct{}{}
	return false
}

// Running returns the number of jobs currently executing.
func (p *Pool) Running() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.running)
}

// Queued returns the number of jobs waiting for a worker.
func (p *Pool) Queued() int {
	return len(p.jobs)
}

// Results returns a channel for receiving job results. Results are dropped
// when nobody reads them. The channel is closed by Shutdown.
func (p *Pool) Results() <-chan Result {
	return p.results
}

// Shutdown stops accepting jobs, cancels running and queued jobs, and waits
// up to the configured timeout for workers to exit.
func (p *Pool) Shutdown() error {
	var err error
	p.shutdownOnce.Do(func() {
		p.logger.Info("Shutting down worker pool")

		p.submitMu.Lock()
		p.closed = true
		close(p.jobs)
		p.submitMu.Unlock()

		p.cancel()

		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()

		select {
		case <-done:
			p.logger.Info("Worker pool shutdown completed")
			close(p.results)
		case <-time.After(p.config.ShutdownTimeout):
			p.logger.Warn("Worker pool shutdown timeout, jobs still running",
				"running", p.Running())
			err = errors.NewScanError(errors.CodeTimeout, "worker pool shutdown timed out")
		}
	})
	return err
}

// run executes the worker loop until the job queue is closed.
func (p *Pool) run(id int) {
	defer p.wg.Done()

	p.logger.Debug("Worker started", "worker_id", id)
	defer p.logger.Debug("Worker stopped", "worker_id", id)

	for job := range p.jobs {
		p.execute(id, job)
	}
}

// execute runs a single job and publishes its result.
func (p *Pool) execute(workerID int, job Job) {
	jobCtx, skip := p.begin(job.ID())
	if skip {
		p.metrics.IncrementJobs(job.Type(), jobStatusCanceled)
		p.publish(Result{JobID: job.ID(), JobType: job.Type(), Canceled: true, Error: context.Canceled})
		return
	}
	defer p.end(job.ID())

	p.metrics.IncrementJobs(job.Type(), jobStatusRunning)

	start := time.Now()
	err := job.Execute(jobCtx)
	result := Result{
		JobID:    job.ID(),
		JobType:  job.Type(),
		Error:    err,
		Canceled: jobCtx.Err() != nil,
		Duration: time.Since(start),
	}

	switch {
	case result.Canceled:
		p.metrics.IncrementJobs(job.Type(), jobStatusCanceled)
		p.logger.Info("Job canceled",
			"job_id", job.ID(),
			"job_type", job.Type(),
			"duration", result.Duration,
			"worker_id", workerID)
	case err != nil:
		p.metrics.IncrementJobs(job.Type(), jobStatusFailed)
		p.logger.Error("Job failed",
			"job_id", job.ID(),
			"job_type", job.Type(),
			"error", err,
			"worker_id", workerID)
	default:
		p.metrics.IncrementJobs(job.Type(), jobStatusCompleted)
		p.logger.Debug("Job completed successfully",
			"job_id", job.ID(),
			"job_type", job.Type(),
			"duration", result.Duration,
			"worker_id", workerID)
	}

	p.publish(result)
}

// begin registers a job as running, or reports that it should be skipped.
func (p *Pool) begin(jobID string) (context.Context, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.canceled[jobID]; ok {
		delete(p.canceled, jobID)
		return nil, true
	}
	if p.ctx.Err() != nil {
		return nil, true
	}

	ctx, cancel := context.WithCancel(p.ctx)
	p.running[jobID] = cancel
	return ctx, false
}

func (p *Pool) end(jobID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cancel, ok := p.running[jobID]; ok {
		cancel()
		delete(p.running, jobID)
	}
}

func (p *Pool) publish(result Result) {
	select {
	case p.results <- result:
	default:
		p.logger.Debug("Result channel full, dropping result", "job_id", result.JobID)
	}
}

package workers

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/anstrom/portrisk/internal/errors"
	"github.com/anstrom/portrisk/internal/logging"
	"github.com/anstrom/portrisk/internal/metrics"
	"github.com/anstrom/portrisk/internal/risk"
	"github.com/anstrom/portrisk/internal/scanning"
)

// ScanJobType is the job type label of scan jobs.
const ScanJobType = "scan"

// Scanner is the part of the scan engine a ScanJob needs.
type Scanner interface {
	ScanWithProgress(ctx context.Context, target scanning.Target, progress scanning.ProgressFunc) (*scanning.ScanResult, error)
}

// Listener receives live updates about scan jobs.
type Listener interface {
	// OnProgress is called for every open port found by a running job.
	OnProgress(jobID string, progress scanning.Progress)
	// OnJobFinished is called once a job reaches a terminal state.
	OnJobFinished(rec JobRecord)
}

// ScanJob implements Job for one scan followed by risk classification.
type ScanJob struct {
	id      string
	target  scanning.Target
	scanner Scanner
	store   *Store
	service *ScanService
}

// ID implements the Job interface.
func (j *ScanJob) ID() string {
	return j.id
}

// Type implements the Job interface.
func (j *ScanJob) Type() string {
	return ScanJobType
}

// Target returns the scan target.
func (j *ScanJob) Target() scanning.Target {
	return j.target
}

// Execute implements the Job interface.
func (j *ScanJob) Execute(ctx context.Context) error {
	if !j.store.MarkRunning(j.id) {
		// Cancelled while queued.
		return nil
	}

	result, err := j.scanner.ScanWithProgress(ctx, j.target, func(p scanning.Progress) {
		j.service.notifyProgress(j.id, p)
	})
	if err != nil {
		if errors.GetCode(err) == errors.CodeUnknown {
			err = errors.WrapScanErrorWithTarget(errors.CodeScanFailed, "Scan failed", j.target.Host, err)
		}
		j.store.MarkFailed(j.id, err)
		j.service.notifyFinished(j.id)
		return err
	}

	assessment := risk.Classify(result.OpenPorts)
	j.service.metrics.IncrementAssessments(assessment.Overall.String())

	if result.Canceled {
		j.store.MarkCanceled(j.id, result, &assessment)
	} else {
		j.store.MarkCompleted(j.id, result, &assessment)
	}
	j.service.notifyFinished(j.id)
	return nil
}

// ScanService ties the scan engine, the job pool and the job store together.
// It is what the API and the scheduler submit scans through.
type ScanService struct {
	pool    *Pool
	store   *Store
	scanner Scanner
	logger  *logging.Logger
	metrics metrics.Recorder

	mu        sync.RWMutex
	listeners []Listener
}

// NewScanService creates a scan service. The pool must be started separately.
func NewScanService(pool *Pool, store *Store, scanner Scanner, logger *logging.Logger, recorder metrics.Recorder) *ScanService {
	if logger == nil {
		logger = logging.Default()
	}
	if recorder == nil {
		recorder = metrics.Nop{}
	}
	return &ScanService{
		pool:    pool,
		store:   store,
		scanner: scanner,
		logger:  logger.WithComponent("scan_service"),
		metrics: recorder,
	}
}

// Subscribe registers a listener for job updates.
func (s *ScanService) Subscribe(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Submit validates target, records a queued job and hands it to the pool.
// source names who asked for the scan, such as "api" or a schedule name.
func (s *ScanService) Submit(target scanning.Target, source string) (JobRecord, error) {
	if err := target.Validate(); err != nil {
		return JobRecord{}, err
	}

	job := &ScanJob{
		id:      uuid.New().String(),
		target:  target,
		scanner: s.scanner,
		store:   s.store,
		service: s,
	}
	s.store.Add(JobRecord{ID: job.id, Source: source, Target: target})

	if err := s.pool.Submit(job); err != nil {
		s.store.Remove(job.id)
		s.logger.Warn("Scan job rejected", "target", target.Host, "source", source, "error", err)
		return JobRecord{}, err
	}

	s.logger.InfoScan("Scan job queued", target.Host,
		"job_id", job.id,
		"start_port", target.StartPort,
		"end_port", target.EndPort,
		"source", source)
	return s.store.Get(job.id)
}

// Get returns a job record.
func (s *ScanService) Get(id string) (JobRecord, error) {
	return s.store.Get(id)
}

// List returns every job, newest first.
func (s *ScanService) List() []JobRecord {
	return s.store.List()
}

// Cancel stops a queued or running job. Cancelling a finished job is a
// no-op that returns its record.
func (s *ScanService) Cancel(id string) (JobRecord, error) {
	rec, err := s.store.Get(id)
	if err != nil {
		return JobRecord{}, err
	}
	if rec.Status.Terminal() {
		return rec, nil
	}

	s.pool.Cancel(id)
	rec, err = s.store.Cancel(id)
	if err != nil {
		return JobRecord{}, err
	}
	if rec.Status == StatusCanceled {
		s.notifyFinished(id)
	}
	s.logger.Info("Scan job cancel requested", "job_id", id, "status", rec.Status)
	return rec, nil
}

func (s *ScanService) notifyProgress(jobID string, p scanning.Progress) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, l := range s.listeners {
		l.OnProgress(jobID, p)
	}
}

func (s *ScanService) notifyFinished(jobID string) {
	rec, err := s.store.Get(jobID)
	if err != nil {
		if !errors.IsCode(err, errors.CodeNotFound) {
			s.logger.Error("Failed to load finished job", "job_id", jobID, "error", err)
		}
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, l := range s.listeners {
		l.OnJobFinished(rec)
	}
}

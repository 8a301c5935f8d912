package workers

import (
	"sort"
	"sync"
	"time"

	"github.com/anstrom/portrisk/internal/errors"
	"github.com/anstrom/portrisk/internal/risk"
	"github.com/anstrom/portrisk/internal/scanning"
)

// JobStatus is the lifecycle state of a scan job.
type JobStatus string

const (
	StatusQueued    JobStatus = jobStatusQueued
	StatusRunning   JobStatus = jobStatusRunning
	StatusCompleted JobStatus = jobStatusCompleted
	StatusFailed    JobStatus = jobStatusFailed
	StatusCanceled  JobStatus = jobStatusCanceled
)

// Terminal reports whether the job can no longer change state.
func (s JobStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCanceled
}

// JobRecord is the stored state of a scan job.
type JobRecord struct {
	ID          string               `json:"id"`
	Source      string               `json:"source,omitempty"`
	Status      JobStatus            `json:"status"`
	Target      scanning.Target      `json:"target"`
	Result      *scanning.ScanResult `json:"result,omitempty"`
	Assessment  *risk.Assessment     `json:"assessment,omitempty"`
	Error       string               `json:"error,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	StartedAt   *time.Time           `json:"started_at,omitempty"`
	CompletedAt *time.Time           `json:"completed_at,omitempty"`
}

// Store keeps job records in memory for the lifetime of the process.
// Finished records beyond the history limit are evicted oldest first.
type Store struct {
	mu         sync.RWMutex
	records    map[string]*JobRecord
	maxHistory int
}

// NewStore creates a store keeping at most maxHistory finished jobs. Zero or
// less keeps every job.
func NewStore(maxHistory int) *Store {
	return &Store{
		records:    make(map[string]*JobRecord),
		maxHistory: maxHistory,
	}
}

// Add inserts a new queued record.
func (s *Store) Add(rec JobRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.Status == "" {
		rec.Status = StatusQueued
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	s.records[rec.ID] = &rec
}

// Remove deletes a record.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
}

// Get returns a copy of the record for id.
func (s *Store) Get(id string) (JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[id]
	if !ok {
		return JobRecord{}, errors.ErrJobNotFound(id)
	}
	return *rec, nil
}

// List returns every record, newest first.
func (s *Store) List() []JobRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]JobRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// MarkRunning moves a queued job to running. It returns false if the job is
// unknown or no longer queued.
func (s *Store) MarkRunning(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok || rec.Status != StatusQueued {
		return false
	}
	now := time.Now()
	rec.Status = StatusRunning
	rec.StartedAt = &now
	return true
}

// MarkCompleted stores the result of a finished scan.
func (s *Store) MarkCompleted(id string, result *scanning.ScanResult, assessment *risk.Assessment) {
	s.finish(id, StatusCompleted, func(rec *JobRecord) {
		rec.Result = result
		rec.Assessment = assessment
	})
}

// MarkCanceled stores the partial result of a cancelled scan and why it
// stopped. Both may be nil.
func (s *Store) MarkCanceled(id string, result *scanning.ScanResult, assessment *risk.Assessment) {
	s.finish(id, StatusCanceled, func(rec *JobRecord) {
		rec.Result = result
		rec.Assessment = assessment
		if result != nil {
			if cause := result.CancelCause(); cause != nil {
				rec.Error = cause.Error()
			}
		}
	})
}

// MarkFailed records a scan error.
func (s *Store) MarkFailed(id string, err error) {
	s.finish(id, StatusFailed, func(rec *JobRecord) {
		if err != nil {
			rec.Error = err.Error()
		}
	})
}

// Cancel marks a queued job as canceled. Running jobs are left for the job
// itself to finish once its context is cancelled. It returns the record and
// fails with NOT_FOUND for unknown ids.
func (s *Store) Cancel(id string) (JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok {
		return JobRecord{}, errors.ErrJobNotFound(id)
	}
	if rec.Status == StatusQueued {
		s.finishLocked(rec, StatusCanceled)
	}
	return *rec, nil
}

func (s *Store) finish(id string, status JobStatus, apply func(*JobRecord)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[id]
	if !ok || rec.Status.Terminal() {
		return
	}
	apply(rec)
	s.finishLocked(rec, status)
}

func (s *Store) finishLocked(rec *JobRecord, status JobStatus) {
	now := time.Now()
	rec.Status = status
	rec.CompletedAt = &now
	s.evictLocked()
}

// evictLocked drops the oldest finished records above the history limit.
func (s *Store) evictLocked() {
	if s.maxHistory <= 0 {
		return
	}

	finished := make([]*JobRecord, 0, len(s.records))
	for _, rec := range s.records {
		if rec.Status.Terminal() {
			finished = append(finished, rec)
		}
	}
	if len(finished) <= s.maxHistory {
		return
	}

	sort.Slice(finished, func(i, j int) bool {
		return finished[i].CompletedAt.Before(*finished[j].CompletedAt)
	})
	for _, rec := range finished[:len(finished)-s.maxHistory] {
		delete(s.records, rec.ID)
	}
}

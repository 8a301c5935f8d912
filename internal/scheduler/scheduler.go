// Package scheduler runs recurring port scans on cron schedules.
// Each tick submits a scan job through the scan service, so scheduled scans
// share the job pool, the job store and the live progress stream with scans
// submitted over the API.
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/anstrom/portrisk/internal/config"
	"github.com/anstrom/portrisk/internal/errors"
	"github.com/anstrom/portrisk/internal/logging"
	"github.com/anstrom/portrisk/internal/scanning"
	"github.com/anstrom/portrisk/internal/workers"
)

// Submitter is the part of workers.ScanService the scheduler uses.
type Submitter interface {
	Submit(target scanning.Target, source string) (workers.JobRecord, error)
	Get(id string) (workers.JobRecord, error)
}

// Scheduler manages recurring scan jobs.
type Scheduler struct {
	cron      *cron.Cron
	service   Submitter
	logger    *logging.Logger
	validator *validator.Validate
	now       func() time.Time
	location  *time.Location

	jobs    map[uuid.UUID]*ScheduledJob
	mu      sync.RWMutex
	running bool
}

// ScanJobConfig describes what a schedule scans.
type ScanJobConfig struct {
	Target      string `json:"target" validate:"required,max=255,hostname_rfc1123|ip"`
	Ports       string `json:"ports" validate:"required,max=11"`
	Concurrency int    `json:"concurrency,omitempty" validate:"omitempty,min=1,max=65535"`
}

// ScheduledJob is a registered schedule and its run history.
type ScheduledJob struct {
	ID        uuid.UUID       `json:"id"`
	CronID    cron.EntryID    `json:"-"`
	Name      string          `json:"name"`
	CronExpr  string          `json:"cron"`
	Config    ScanJobConfig   `json:"config"`
	Target    scanning.Target `json:"target"`
	Enabled   bool            `json:"enabled"`
	LastRun   time.Time       `json:"last_run,omitempty"`
	NextRun   time.Time       `json:"next_run,omitempty"`
	LastJobID string          `json:"last_job_id,omitempty"`
	LastError string          `json:"last_error,omitempty"`
	Runs      int             `json:"runs"`
	Skipped   int             `json:"skipped"`
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler logger.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Scheduler) { s.logger = logger }
}

// WithLocation evaluates schedules in loc instead of the local time zone.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) { s.location = loc }
}

// NewScheduler creates a new scan scheduler.
func NewScheduler(service Submitter, opts ...Option) *Scheduler {
	s := &Scheduler{
		service:   service,
		logger:    logging.Default(),
		validator: validator.New(),
		now:       time.Now,
		location:  time.Local,
		jobs:      make(map[uuid.UUID]*ScheduledJob),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("scheduler")
	s.cron = cron.New(
		cron.WithLocation(s.location),
		cron.WithLogger(cronLogger{s.logger}),
		cron.WithChain(cron.Recover(cronLogger{s.logger})),
	)
	return s
}

// Start begins firing schedules.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	s.cron.Start()
	s.running = true

	s.logger.Info("Scheduler started", "jobs", len(s.jobs))
	return nil
}

// Stop stops firing schedules and waits for a tick in progress to finish
// or ctx to expire. Scans already submitted keep running in the pool.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.logger.Warn("Scheduler stop timed out waiting for running ticks")
	}

	s.logger.Info("Scheduler stopped")
}

// IsRunning reports whether the scheduler has been started.
func (s *Scheduler) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// AddScanJob registers a recurring scan. cronExpr uses the standard five
// field format. Names must be unique.
func (s *Scheduler) AddScanJob(name, cronExpr string, cfg ScanJobConfig) (uuid.UUID, error) {
	if name == "" {
		return uuid.Nil, errors.NewScanError(errors.CodeValidation, "schedule name is required")
	}

	schedule, err := cron.ParseStandard(cronExpr)
	if err != nil {
		return uuid.Nil, errors.WrapScanError(errors.CodeValidation,
			fmt.Sprintf("invalid cron expression %q", cronExpr), err)
	}

	target, err := s.buildTarget(cfg)
	if err != nil {
		return uuid.Nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.jobs {
		if existing.Name == name {
			return uuid.Nil, errors.NewScanError(errors.CodeValidation,
				fmt.Sprintf("schedule %q already exists", name))
		}
	}

	job := &ScheduledJob{
		ID:       uuid.New(),
		Name:     name,
		CronExpr: cronExpr,
		Config:   cfg,
		Target:   target,
		Enabled:  true,
		NextRun:  schedule.Next(s.now().In(s.location)),
	}

	id := job.ID
	cronID, err := s.cron.AddFunc(cronExpr, func() { s.executeScanJob(id) })
	if err != nil {
		return uuid.Nil, errors.WrapScanError(errors.CodeValidation, "failed to add cron job", err)
	}
	job.CronID = cronID
	s.jobs[job.ID] = job

	s.logger.Info("Added scheduled scan",
		"schedule", name,
		"cron", cronExpr,
		"target", target.Host,
		"start_port", target.StartPort,
		"end_port", target.EndPort,
		"next_run", job.NextRun)
	return job.ID, nil
}

// AddFromConfig registers every configured schedule. Schedules without a
// port range scan defaultPorts.
func (s *Scheduler) AddFromConfig(schedules []config.ScheduleConfig, defaultPorts string) error {
	for _, sc := range schedules {
		ports := sc.Ports
		if ports == "" {
			ports = defaultPorts
		}
		_, err := s.AddScanJob(sc.Name, sc.Cron, ScanJobConfig{
			Target:      sc.Target,
			Ports:       ports,
			Concurrency: sc.Concurrency,
		})
		if err != nil {
			return fmt.Errorf("schedule %q: %w", sc.Name, err)
		}
	}
	return nil
}

func (s *Scheduler) buildTarget(cfg ScanJobConfig) (scanning.Target, error) {
	if err := s.validator.Struct(cfg); err != nil {
		return scanning.Target{}, errors.WrapScanError(errors.CodeValidation, "invalid schedule target", err)
	}

	start, end, err := scanning.ParsePortRange(cfg.Ports)
	if err != nil {
		return scanning.Target{}, err
	}

	target := scanning.Target{
		Host:          cfg.Target,
		StartPort:     start,
		EndPort:       end,
		MaxConcurrent: cfg.Concurrency,
	}
	return target, target.Validate()
}

// RemoveJob removes a scheduled job.
func (s *Scheduler) RemoveJob(jobID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return errors.ErrJobNotFound(jobID.String())
	}

	s.cron.Remove(job.CronID)
	delete(s.jobs, jobID)

	s.logger.Info("Removed scheduled scan", "schedule", job.Name)
	return nil
}

// EnableJob resumes a disabled schedule.
func (s *Scheduler) EnableJob(jobID uuid.UUID) error {
	return s.setJobEnabled(jobID, true)
}

// DisableJob keeps a schedule registered but skips its ticks.
func (s *Scheduler) DisableJob(jobID uuid.UUID) error {
	return s.setJobEnabled(jobID, false)
}

func (s *Scheduler) setJobEnabled(jobID uuid.UUID, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return errors.ErrJobNotFound(jobID.String())
	}
	job.Enabled = enabled
	return nil
}

// GetJob returns a copy of one scheduled job.
func (s *Scheduler) GetJob(jobID uuid.UUID) (ScheduledJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return ScheduledJob{}, errors.ErrJobNotFound(jobID.String())
	}
	return *job, nil
}

// GetJobs returns copies of every scheduled job ordered by name.
func (s *Scheduler) GetJobs() []ScheduledJob {
	s.mu.RLock()
	defer s.mu.RUnlock()

	jobs := make([]ScheduledJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, *job)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Name < jobs[j].Name })
	return jobs
}

// executeScanJob submits one run of a schedule. A tick is skipped while the
// scan submitted by the previous tick has not finished. A schedule whose
// target is rejected outright is disabled.
func (s *Scheduler) executeScanJob(jobID uuid.UUID) {
	job, ok := s.prepareJobExecution(jobID)
	if !ok {
		return
	}

	rec, err := s.service.Submit(job.Target, job.Name)

	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.jobs[jobID]
	if !exists {
		return
	}
	current.LastRun = s.now()
	if schedule, perr := cron.ParseStandard(current.CronExpr); perr == nil {
		current.NextRun = schedule.Next(current.LastRun)
	}
	if err != nil {
		current.LastError = err.Error()
		if errors.IsFatal(err) {
			current.Enabled = false
			s.logger.WithError(err).Error("Scheduled scan can never run, disabling schedule", "schedule", current.Name)
			return
		}
		s.logger.Warn("Scheduled scan not submitted", "schedule", current.Name, "error", err)
		return
	}

	current.Runs++
	current.LastError = ""
	current.LastJobID = rec.ID
	s.logger.Info("Scheduled scan submitted", "schedule", current.Name, "job_id", rec.ID)
}

// prepareJobExecution returns a copy of the job if this tick should run.
func (s *Scheduler) prepareJobExecution(jobID uuid.UUID) (ScheduledJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[jobID]
	if !exists || !job.Enabled {
		return ScheduledJob{}, false
	}

	if job.LastJobID != "" {
		prev, err := s.service.Get(job.LastJobID)
		if err == nil && !prev.Status.Terminal() {
			job.Skipped++
			s.logger.Info("Previous scheduled scan still active, skipping",
				"schedule", job.Name, "job_id", job.LastJobID, "status", prev.Status)
			return ScheduledJob{}, false
		}
	}

	return *job, true
}

// cronLogger adapts logging.Logger to cron.Logger.
type cronLogger struct {
	logger *logging.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}

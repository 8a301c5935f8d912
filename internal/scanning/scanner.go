package scanning

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/anstrom/portrisk/internal/errors"
	"github.com/anstrom/portrisk/internal/logging"
	"github.com/anstrom/portrisk/internal/metrics"
)

// Scan status labels reported to metrics.
const (
	StatusSuccess  = "success"
	StatusCanceled = "canceled"
	StatusError    = "error"
)

// Config holds scanner-wide settings.
type Config struct {
	// ProbeTimeout bounds each connection attempt.
	ProbeTimeout time.Duration
	// DefaultConcurrency applies to targets that leave MaxConcurrent at zero.
	DefaultConcurrency int
	// MaxConcurrency rejects targets asking for more. Zero disables the check.
	MaxConcurrency int
	// ScanTimeout bounds a whole scan. Zero disables it.
	ScanTimeout time.Duration
}

// DefaultConfig returns the scanner defaults.
func DefaultConfig() Config {
	return Config{
		ProbeTimeout:       DefaultProbeTimeout,
		DefaultConcurrency: DefaultMaxConcurrent,
		MaxConcurrency:     5000,
	}
}

// Option customises a Scanner.
type Option func(*Scanner)

// WithProber replaces the TCP prober.
func WithProber(p Prober) Option {
	return func(s *Scanner) { s.prober = p }
}

// WithLogger sets the logger used for scan events.
func WithLogger(l *logging.Logger) Option {
	return func(s *Scanner) { s.logger = l }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(r metrics.Recorder) Option {
	return func(s *Scanner) { s.metrics = r }
}

// Scanner runs bounded-concurrency TCP connect scans. It is safe for concurrent use.
type Scanner struct {
	config  Config
	prober  Prober
	logger  *logging.Logger
	metrics metrics.Recorder
}

// NewScanner creates a scanner.
func NewScanner(cfg Config, opts ...Option) *Scanner {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	if cfg.DefaultConcurrency <= 0 {
		cfg.DefaultConcurrency = DefaultMaxConcurrent
	}

	s := &Scanner{
		config:  cfg,
		logger:  logging.Default(),
		metrics: metrics.Nop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.prober == nil {
		s.prober = NewTCPProber(cfg.ProbeTimeout)
	}
	s.logger = s.logger.WithComponent("scanner")
	return s
}

// Config returns the scanner configuration.
func (s *Scanner) Config() Config {
	return s.config
}

// Scan probes every port of target and returns the open ones.
func (s *Scanner) Scan(ctx context.Context, target Target) (*ScanResult, error) {
	return s.ScanWithProgress(ctx, target, nil)
}

// ScanWithProgress is Scan with a callback invoked once for every open port discovered.
//
// Cancelling ctx stops the scan and returns the partial result with Canceled set and
// a nil error. If every completed attempt failed to resolve the host, the result is
// discarded and a TARGET_RESOLUTION error is returned instead.
func (s *Scanner) ScanWithProgress(ctx context.Context, target Target, progress ProgressFunc) (*ScanResult, error) {
	target = target.withDefaults(s.config.DefaultConcurrency)
	if err := s.validate(target); err != nil {
		s.metrics.IncrementScansTotal(StatusError)
		return nil, err
	}

	parent := ctx
	if s.config.ScanTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ScanTimeout)
		defer cancel()
	}

	result := &ScanResult{
		ID:        uuid.New().String(),
		Target:    target,
		StartTime: time.Now(),
		OpenPorts: []int{},
		Total:     target.PortCount(),
	}
	logger := s.logger.WithScanID(result.ID).WithTarget(target.Host)
	logger.Info("Starting scan",
		"start_port", target.StartPort,
		"end_port", target.EndPort,
		"max_concurrent", target.MaxConcurrent)

	limiter := NewLimiter(target.MaxConcurrent)
	limiter.OnChange(s.metrics.AddInFlightProbes)

	probes := make(chan ProbeResult, target.MaxConcurrent)
	go s.dispatch(ctx, target, limiter, probes)

	unresolved := 0
	var resolveErr error
	for probe := range probes {
		s.metrics.IncrementProbes(probe.Outcome.String())

		switch probe.Outcome {
		case OutcomeCanceled:
			continue
		case OutcomeOpen:
			result.OpenPorts = append(result.OpenPorts, probe.Port)
			logger.Debug("Port open", "port", probe.Port, "latency", probe.Latency)
		case OutcomeUnresolved:
			unresolved++
			resolveErr = probe.Err
		}
		result.Probed++

		if probe.Open() && progress != nil {
			progress(Progress{
				ScanID: result.ID,
				Host:   target.Host,
				Port:   probe.Port,
				Probed: result.Probed,
				Total:  result.Total,
			})
		}
	}

	result.OpenPorts = SortUnique(result.OpenPorts)
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)
	result.Canceled = result.Probed < result.Total
	result.TimedOut = result.Canceled && parent.Err() == nil && ctx.Err() == context.DeadlineExceeded

	s.metrics.RecordScanDuration(result.Duration)

	if result.Probed > 0 && unresolved == result.Probed {
		s.metrics.IncrementScansTotal(StatusError)
		err := errors.ErrTargetResolution(target.Host, resolveErr)
		logger.ErrorScan("Scan failed", target.Host, err)
		return nil, err
	}

	s.metrics.AddOpenPorts(len(result.OpenPorts))
	if result.Canceled {
		s.metrics.IncrementScansTotal(StatusCanceled)
		logger.Warn("Scan canceled",
			"probed", result.Probed,
			"total", result.Total,
			"open_ports", len(result.OpenPorts),
			"peak_in_flight", limiter.Peak(),
			"reason", result.CancelCause())
	} else {
		s.metrics.IncrementScansTotal(StatusSuccess)
		logger.Info("Scan completed",
			"open_ports", len(result.OpenPorts),
			"duration", result.Duration,
			"peak_in_flight", limiter.Peak(),
			"capacity", limiter.Capacity())
	}
	return result, nil
}

// dispatch starts one probe per port, each as soon as the limiter has a free slot,
// and closes probes once every started probe has reported.
func (s *Scanner) dispatch(ctx context.Context, target Target, limiter *Limiter, probes chan<- ProbeResult) {
	var wg sync.WaitGroup
	defer func() {
		wg.Wait()
		close(probes)
	}()

	for port := target.StartPort; port <= target.EndPort; port++ {
		if err := limiter.Acquire(ctx); err != nil {
			return
		}
		wg.Add(1)
		go func(port int) {
			defer wg.Done()
			defer limiter.Release()
			probes <- s.probe(ctx, target.Host, port)
		}(port)
	}
}

func (s *Scanner) probe(ctx context.Context, host string, port int) ProbeResult {
	if ctx.Err() != nil {
		return ProbeResult{Port: port, Outcome: OutcomeCanceled, Err: ctx.Err()}
	}
	result := s.prober.Probe(ctx, host, port)
	result.Port = port
	return result
}

func (s *Scanner) validate(target Target) error {
	if err := target.Validate(); err != nil {
		return err
	}
	if s.config.MaxConcurrency > 0 && target.MaxConcurrent > s.config.MaxConcurrency {
		return errors.NewScanErrorWithTarget(errors.CodeValidation,
			fmt.Sprintf("max concurrent %d exceeds limit %d", target.MaxConcurrent, s.config.MaxConcurrency),
			target.Host)
	}
	return nil
}

// SortUnique sorts ports ascending and drops duplicates in place.
func SortUnique(ports []int) []int {
	if len(ports) < 2 {
		return ports
	}
	sort.Ints(ports)
	out := ports[:1]
	for _, p := range ports[1:] {
		if p != out[len(out)-1] {
			out = append(out, p)
		}
	}
	return out
}

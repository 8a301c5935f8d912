package scanning

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/anstrom/portrisk/internal/errors"
)

const (
	// MinPort is the lowest valid TCP port.
	MinPort = 1
	// MaxPort is the highest valid TCP port.
	MaxPort = 65535

	// DefaultMaxConcurrent is the concurrency cap used when a target does not set one.
	DefaultMaxConcurrent = 100
	// DefaultProbeTimeout bounds a single connection attempt.
	DefaultProbeTimeout = time.Second
)

// Target describes a single scan request.
type Target struct {
	Host          string `json:"host"`
	StartPort     int    `json:"start_port"`
	EndPort       int    `json:"end_port"`
	MaxConcurrent int    `json:"max_concurrent"`
}

// PortCount returns the number of ports in the inclusive range, or 0 if the range is inverted.
func (t Target) PortCount() int {
	if t.EndPort < t.StartPort {
		return 0
	}
	return t.EndPort - t.StartPort + 1
}

// Validate checks the target before any connection attempt is made.
func (t Target) Validate() error {
	if strings.TrimSpace(t.Host) == "" {
		return errors.ErrInvalidTarget(t.Host)
	}
	if t.StartPort < MinPort || t.EndPort > MaxPort || t.StartPort > t.EndPort {
		return errors.ErrInvalidRange(t.StartPort, t.EndPort)
	}
	if t.MaxConcurrent < 0 {
		return errors.NewScanErrorWithTarget(errors.CodeValidation,
			fmt.Sprintf("max concurrent must not be negative, got %d", t.MaxConcurrent), t.Host)
	}
	return nil
}

// withDefaults fills zero-valued optional fields.
func (t Target) withDefaults(defaultConcurrent int) Target {
	if t.MaxConcurrent <= 0 {
		t.MaxConcurrent = defaultConcurrent
	}
	if t.MaxConcurrent <= 0 {
		t.MaxConcurrent = DefaultMaxConcurrent
	}
	t.Host = strings.TrimSpace(t.Host)
	return t
}

// Outcome classifies how a single connection attempt ended.
type Outcome int

const (
	// OutcomeOpen means the connection was established.
	OutcomeOpen Outcome = iota
	// OutcomeRefused means the host actively rejected the connection.
	OutcomeRefused
	// OutcomeTimeout means the attempt did not complete within the probe timeout.
	OutcomeTimeout
	// OutcomeUnreachable means the host or network could not be reached.
	OutcomeUnreachable
	// OutcomeUnresolved means the host name could not be resolved.
	OutcomeUnresolved
	// OutcomeCanceled means the scan was cancelled before the attempt completed.
	OutcomeCanceled
	// OutcomeError covers any other local or remote failure.
	OutcomeError
)

var outcomeNames = map[Outcome]string{
	OutcomeOpen:        "open",
	OutcomeRefused:     "refused",
	OutcomeTimeout:     "timeout",
	OutcomeUnreachable: "unreachable",
	OutcomeUnresolved:  "unresolved",
	OutcomeCanceled:    "canceled",
	OutcomeError:       "error",
}

// String returns the lower-case outcome name used in logs and metric labels.
func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return "unknown"
}

// MarshalJSON encodes the outcome by name.
func (o Outcome) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.String())
}

// ProbeResult is the result of one connection attempt.
type ProbeResult struct {
	Port    int           `json:"port"`
	Outcome Outcome       `json:"outcome"`
	Err     error         `json:"-"`
	Latency time.Duration `json:"latency"`
}

// Open reports whether the port accepted the connection.
func (r ProbeResult) Open() bool {
	return r.Outcome == OutcomeOpen
}

// ScanResult is the aggregated outcome of a scan.
type ScanResult struct {
	ID        string        `json:"id"`
	Target    Target        `json:"target"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`

	// OpenPorts is strictly ascending and never nil.
	OpenPorts []int `json:"open_ports"`

	// Probed counts attempts that completed with a definite outcome.
	Probed int `json:"probed"`
	// Total is the number of ports in the requested range.
	Total int `json:"total"`
	// Canceled is set when the scan stopped before every port was probed.
	Canceled bool `json:"canceled"`
	// TimedOut is set when the scanner's own ScanTimeout stopped the scan.
	TimedOut bool `json:"timed_out,omitempty"`
}

// CancelCause reports why a scan stopped early, or nil if it probed every port.
func (r *ScanResult) CancelCause() error {
	switch {
	case !r.Canceled:
		return nil
	case r.TimedOut:
		return errors.ErrScanTimeout(r.Target.Host)
	default:
		return errors.NewScanErrorWithTarget(errors.CodeCanceled, "Scan canceled before every port was probed", r.Target.Host)
	}
}

// Progress is reported for each open port as it is discovered.
type Progress struct {
	ScanID string `json:"scan_id"`
	Host   string `json:"host"`
	Port   int    `json:"port"`
	Probed int    `json:"probed"`
	Total  int    `json:"total"`
}

// ProgressFunc receives progress events. Calls for one scan never overlap.
type ProgressFunc func(Progress)

// ParsePortRange parses "N" or "N-M" into an inclusive range.
func ParsePortRange(spec string) (start, end int, err error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return 0, 0, errors.NewScanError(errors.CodeValidation, "port range is empty")
	}

	startStr, endStr, isRange := strings.Cut(spec, "-")
	start, err = parsePort(startStr)
	if err != nil {
		return 0, 0, err
	}
	end = start
	if isRange {
		end, err = parsePort(endStr)
		if err != nil {
			return 0, 0, err
		}
	}

	if start < MinPort || end > MaxPort || start > end {
		return 0, 0, errors.ErrInvalidRange(start, end)
	}
	return start, end, nil
}

func parsePort(s string) (int, error) {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, errors.WrapScanError(errors.CodeValidation, fmt.Sprintf("invalid port %q", s), err)
	}
	return port, nil
}

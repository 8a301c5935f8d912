// Package metrics provides interfaces for metrics collection and monitoring.
package metrics

//go:generate mockgen -destination=mocks/mock_recorder.go -package=mocks github.com/anstrom/portrisk/internal/metrics Recorder

import "time"

// Recorder defines the metrics the scan engine, job pool and API report.
// This interface allows for easy mocking and testing of metrics functionality.
type Recorder interface {
	// IncrementScansTotal counts a finished scan by status (success, canceled, error).
	IncrementScansTotal(status string)

	// RecordScanDuration records the wall-clock duration of a scan.
	RecordScanDuration(duration time.Duration)

	// IncrementProbes counts a single connection attempt by outcome.
	IncrementProbes(outcome string)

	// AddOpenPorts adds to the number of open ports discovered.
	AddOpenPorts(count int)

	// AddInFlightProbes adjusts the number of connection attempts currently in flight.
	AddInFlightProbes(delta int)

	// IncrementAssessments counts a risk assessment by its overall level.
	IncrementAssessments(overall string)

	// IncrementJobs counts a job state transition by job type and status.
	IncrementJobs(jobType, status string)

	// IncrementHTTPRequests counts an API request.
	IncrementHTTPRequests(method, path, status string)

	// RecordHTTPDuration records an API request duration.
	RecordHTTPDuration(method, path string, duration time.Duration)
}

// Ensure that PrometheusMetrics and Nop implement Recorder.
var (
	_ Recorder = (*PrometheusMetrics)(nil)
	_ Recorder = Nop{}
)

// Nop is a Recorder that discards everything.
type Nop struct{}

func (Nop) IncrementScansTotal(string)                       {}
func (Nop) RecordScanDuration(time.Duration)                 {}
func (Nop) IncrementProbes(string)                           {}
func (Nop) AddOpenPorts(int)                                 {}
func (Nop) AddInFlightProbes(int)                            {}
func (Nop) IncrementAssessments(string)                      {}
func (Nop) IncrementJobs(string, string)                     {}
func (Nop) IncrementHTTPRequests(string, string, string)     {}
func (Nop) RecordHTTPDuration(string, string, time.Duration) {}

// Package handlers provides HTTP request handlers for the portrisk API.
// This file implements health check and version endpoints.
package handlers

import (
	"net/http"
	"runtime"
	"time"
)

// Status constants.
const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// PoolStats reports the load of the job pool.
type PoolStats interface {
	Running() int
	Queued() int
}

// HealthHandler handles health check and version endpoints.
type HealthHandler struct {
	pool      PoolStats
	queueSize int
	startTime time.Time
}

// NewHealthHandler creates a new health handler. queueSize is the pool's
// queue capacity; a full queue reports the service as degraded.
func NewHealthHandler(pool PoolStats, queueSize int) *HealthHandler {
	return &HealthHandler{
		pool:      pool,
		queueSize: queueSize,
		startTime: time.Now(),
	}
}

// HealthResponse represents a health check response.
type HealthResponse struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Uptime      string    `json:"uptime"`
	RunningJobs int       `json:"running_jobs"`
	QueuedJobs  int       `json:"queued_jobs"`
	Goroutines  int       `json:"goroutines"`
}

// VersionResponse represents version information.
type VersionResponse struct {
	Version   string    `json:"version"`
	Commit    string    `json:"commit"`
	BuildTime string    `json:"build_time"`
	GoVersion string    `json:"go_version"`
	Timestamp time.Time `json:"timestamp"`
}

// Health reports liveness plus job pool load.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:     StatusHealthy,
		Timestamp:  time.Now().UTC(),
		Uptime:     time.Since(h.startTime).Round(time.Second).String(),
		Goroutines: runtime.NumGoroutine(),
	}
	if h.pool != nil {
		response.RunningJobs = h.pool.Running()
		response.QueuedJobs = h.pool.Queued()
		if h.queueSize > 0 && response.QueuedJobs >= h.queueSize {
			response.Status = StatusDegraded
		}
	}

	WriteJSON(w, r, http.StatusOK, response)
}

// Version provides version information.
func (h *HealthHandler) Version(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, r, http.StatusOK, VersionResponse{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
		GoVersion: runtime.Version(),
		Timestamp: time.Now().UTC(),
	})
}

// Build information, set through SetBuildInfo from ldflags values.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// SetBuildInfo sets build information (called by main package).
func SetBuildInfo(v, c, bt string) {
	version = v
	commit = c
	buildTime = bt
}

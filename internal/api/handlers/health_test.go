package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePool struct {
	running, queued int
}

func (p fakePool) Running() int { return p.running }
func (p fakePool) Queued() int  { return p.queued }

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		pool       PoolStats
		wantStatus string
		wantQueued int
	}{
		{"no pool", nil, StatusHealthy, 0},
		{"idle pool", fakePool{}, StatusHealthy, 0},
		{"busy pool", fakePool{running: 2, queued: 3}, StatusHealthy, 3},
		{"full queue", fakePool{running: 4, queued: 10}, StatusDegraded, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthHandler(tt.pool, 10)
			rec := httptest.NewRecorder()
			h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			require.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

			var resp HealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantStatus, resp.Status)
			assert.Equal(t, tt.wantQueued, resp.QueuedJobs)
			assert.NotEmpty(t, resp.Uptime)
			assert.Positive(t, resp.Goroutines)
		})
	}
}

func TestVersion(t *testing.T) {
	SetBuildInfo("1.2.3", "abc123", "2026-01-01T00:00:00Z")
	defer SetBuildInfo("dev", "none", "unknown")

	rec := httptest.NewRecorder()
	NewHealthHandler(nil, 0).Version(rec, httptest.NewRequest(http.MethodGet, "/version", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp VersionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "1.2.3", resp.Version)
	assert.Equal(t, "abc123", resp.Commit)
	assert.Equal(t, runtime.Version(), resp.GoVersion)
}

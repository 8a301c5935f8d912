package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/portrisk/internal/config"
	"github.com/anstrom/portrisk/internal/logging"
	"github.com/anstrom/portrisk/internal/workers"
)

func serveConfig() *config.Config {
	cfg := config.Default()
	cfg.API.Port = 0
	cfg.Workers.ShutdownTimeout = time.Second
	return cfg
}

func TestBuildServeEnv(t *testing.T) {
	withProber(t, openPorts(22, 23))

	cfg := serveConfig()
	cfg.Schedules = []config.ScheduleConfig{
		{Name: "nightly", Cron: "0 2 * * *", Target: "localhost"},
		{Name: "web", Cron: "*/15 * * * *", Target: "10.0.0.1", Ports: "80-443"},
	}

	env, err := buildServeEnv(cfg, logging.NewDiscard())
	require.NoError(t, err)
	require.NotNil(t, env.metrics)

	jobs := env.scheduler.GetJobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, 1000, jobs[0].Target.EndPort)
	assert.Equal(t, 80, jobs[1].Target.StartPort)

	env.pool.Start()
	t.Cleanup(func() { _ = env.pool.Shutdown() })

	body := strings.NewReader(`{"target":"localhost","ports":"1-100"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/scans", body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var queued workers.JobRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &queued))

	require.Eventually(t, func() bool {
		got, err := env.service.Get(queued.ID)
		return err == nil && got.Status == workers.StatusCompleted
	}, 3*time.Second, 10*time.Millisecond)

	got, err := env.service.Get(queued.ID)
	require.NoError(t, err)
	assert.Equal(t, []int{22, 23}, got.Result.OpenPorts)
	require.NotNil(t, got.Assessment)
	assert.Equal(t, 1, got.Assessment.RiskyCount)

	rec = httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "portrisk_scan_total")
}

func TestBuildServeEnv_AccessLog(t *testing.T) {
	cfg := serveConfig()
	cfg.API.AccessLog = filepath.Join(t.TempDir(), "access.log")

	env, err := buildServeEnv(cfg, logging.NewDiscard())
	require.NoError(t, err)
	defer env.close()

	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	data, err := os.ReadFile(cfg.API.AccessLog)
	require.NoError(t, err)
	assert.Contains(t, string(data), "GET /api/v1/health")
}

func TestBuildServeEnv_MetricsDisabled(t *testing.T) {
	cfg := serveConfig()
	cfg.Metrics.Enabled = false

	env, err := buildServeEnv(cfg, logging.NewDiscard())
	require.NoError(t, err)
	assert.Nil(t, env.metrics)

	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBuildServeEnv_InvalidSchedule(t *testing.T) {
	cfg := serveConfig()
	cfg.Schedules = []config.ScheduleConfig{{Name: "broken", Cron: "every day", Target: "localhost"}}

	_, err := buildServeEnv(cfg, logging.NewDiscard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestRunServe_StopsOnCancel(t *testing.T) {
	withProber(t, openPorts())

	ctx, cancel := context.WithCancel(context.Background())
	var out bytes.Buffer
	errCh := make(chan error, 1)
	go func() { errCh <- runServe(ctx, serveConfig(), logging.NewDiscard(), &out) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("runServe did not return after cancel")
	}
	assert.Contains(t, out.String(), "Server stopped")
}

func TestRunServe_ListenFailure(t *testing.T) {
	cfg := serveConfig()
	cfg.API.ListenAddr = "203.0.113.254"

	err := runServe(context.Background(), cfg, logging.NewDiscard(), &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listen")
}

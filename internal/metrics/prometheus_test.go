package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMetrics_InitializationAndUpdate(t *testing.T) {
	pm := NewPrometheusMetrics()
	require.NotNil(t, pm)
	require.NotNil(t, pm.GetRegistry())

	pm.UpdateSystemMetrics()
	before := pm.GetUptime()
	time.Sleep(10 * time.Millisecond)
	after := pm.GetUptime()
	assert.Greater(t, after, before)
	assert.False(t, pm.GetLastUpdate().IsZero())
}

func TestPrometheusMetrics_HandlerServes(t *testing.T) {
	pm := NewPrometheusMetrics()
	pm.UpdateSystemMetrics()
	pm.IncrementScansTotal("success")

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	pm.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.True(t, strings.Contains(body, "portrisk_system_uptime_seconds"))
	assert.True(t, strings.Contains(body, `portrisk_scan_total{status="success"} 1`))
}

func TestPrometheusMetrics_ScanCounters(t *testing.T) {
	pm := NewPrometheusMetrics()

	pm.IncrementProbes("open")
	pm.IncrementProbes("open")
	pm.IncrementProbes("refused")
	pm.AddOpenPorts(2)
	pm.AddInFlightProbes(9)
	pm.AddInFlightProbes(-2)
	pm.RecordScanDuration(1500 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(pm.probesTotal.WithLabelValues("open")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.probesTotal.WithLabelValues("refused")))
	assert.Equal(t, 2.0, testutil.ToFloat64(pm.openPortsTotal))
	assert.Equal(t, 7.0, testutil.ToFloat64(pm.inFlightProbes))
	assert.Equal(t, 1, testutil.CollectAndCount(pm.scanDuration))
}

func TestPrometheusMetrics_RiskJobAndAPICounters(t *testing.T) {
	pm := NewPrometheusMetrics()

	pm.IncrementAssessments("medium")
	pm.IncrementJobs("scan", "completed")
	pm.IncrementHTTPRequests("GET", "/api/v1/health", "200")
	pm.RecordHTTPDuration("GET", "/api/v1/health", 5*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(pm.assessmentsTotal.WithLabelValues("medium")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.jobsTotal.WithLabelValues("scan", "completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.httpRequests.WithLabelValues("GET", "/api/v1/health", "200")))
	assert.Equal(t, 1, testutil.CollectAndCount(pm.httpDuration))
}

func TestPrometheusMetrics_StartPeriodicUpdatesStopsOnCancel(t *testing.T) {
	pm := NewPrometheusMetrics()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		pm.StartPeriodicUpdates(ctx, 5*time.Millisecond)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("periodic updates did not stop after cancel")
	}
	assert.False(t, pm.GetLastUpdate().IsZero())
}

func TestNopRecorder(t *testing.T) {
	var r Recorder = Nop{}
	r.IncrementScansTotal("success")
	r.RecordScanDuration(time.Second)
	r.IncrementProbes("open")
	r.AddOpenPorts(1)
	r.AddInFlightProbes(1)
	r.IncrementAssessments("low")
	r.IncrementJobs("scan", "queued")
	r.IncrementHTTPRequests("GET", "/", "200")
	r.RecordHTTPDuration("GET", "/", time.Millisecond)
}

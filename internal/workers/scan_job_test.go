package workers

import (
	"context"
	stderrors "errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/portrisk/internal/errors"
	"github.com/anstrom/portrisk/internal/logging"
	"github.com/anstrom/portrisk/internal/metrics"
	"github.com/anstrom/portrisk/internal/risk"
	"github.com/anstrom/portrisk/internal/scanning"
)

// recordingListener collects job events.
type recordingListener struct {
	mu       sync.Mutex
	progress []scanning.Progress
	finished chan JobRecord
}

func newRecordingListener() *recordingListener {
	return &recordingListener{finished: make(chan JobRecord, 16)}
}

func (l *recordingListener) OnProgress(_ string, p scanning.Progress) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.progress = append(l.progress, p)
}

func (l *recordingListener) OnJobFinished(rec JobRecord) {
	l.finished <- rec
}

func (l *recordingListener) wait(t *testing.T) JobRecord {
	t.Helper()
	select {
	case rec := <-l.finished:
		return rec
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for job to finish")
		return JobRecord{}
	}
}

// openPortsProber treats the listed ports as open and blocks on blockPort until cancelled.
func openPortsProber(blockPort int, open ...int) scanning.Prober {
	set := make(map[int]bool)
	for _, p := range open {
		set[p] = true
	}
	return scanning.ProberFunc(func(ctx context.Context, _ string, port int) scanning.ProbeResult {
		if port == blockPort {
			<-ctx.Done()
			return scanning.ProbeResult{Port: port, Outcome: scanning.OutcomeCanceled, Err: ctx.Err()}
		}
		if set[port] {
			return scanning.ProbeResult{Port: port, Outcome: scanning.OutcomeOpen}
		}
		return scanning.ProbeResult{Port: port, Outcome: scanning.OutcomeRefused}
	})
}

func newTestService(t *testing.T, prober scanning.Prober, poolCfg Config) (*ScanService, *Pool, *recordingListener) {
	t.Helper()
	logger := logging.NewDiscard()
	scanner := scanning.NewScanner(scanning.DefaultConfig(),
		scanning.WithProber(prober), scanning.WithLogger(logger))
	pool := New(poolCfg, WithLogger(logger))
	svc := NewScanService(pool, NewStore(0), scanner, logger, metrics.Nop{})
	listener := newRecordingListener()
	svc.Subscribe(listener)
	t.Cleanup(func() { _ = pool.Shutdown() })
	return svc, pool, listener
}

func TestScanService_CompletesScanAndClassifies(t *testing.T) {
	svc, pool, listener := newTestService(t, openPortsProber(-1, 22, 80, 443), Config{Size: 1, QueueSize: 4})
	pool.Start()

	rec, err := svc.Submit(scanning.Target{Host: "localhost", StartPort: 1, EndPort: 1000, MaxConcurrent: 50}, "test")
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, rec.Status)
	assert.Equal(t, "test", rec.Source)

	done := listener.wait(t)
	assert.Equal(t, rec.ID, done.ID)
	assert.Equal(t, StatusCompleted, done.Status)
	require.NotNil(t, done.Result)
	assert.Equal(t, []int{22, 80, 443}, done.Result.OpenPorts)
	require.NotNil(t, done.Assessment)
	assert.Equal(t, 1, done.Assessment.RiskyCount)
	assert.Equal(t, risk.Medium, done.Assessment.Overall)

	listener.mu.Lock()
	assert.Len(t, listener.progress, 3)
	listener.mu.Unlock()

	list := svc.List()
	require.Len(t, list, 1)
	assert.Equal(t, StatusCompleted, list[0].Status)
}

func TestScanService_RejectsInvalidTarget(t *testing.T) {
	svc, _, _ := newTestService(t, openPortsProber(-1), Config{Size: 1, QueueSize: 1})

	_, err := svc.Submit(scanning.Target{Host: "localhost", StartPort: 5, EndPort: 1}, "test")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeInvalidRange))
	assert.Empty(t, svc.List())
}

func TestScanService_QueueFullRemovesRecord(t *testing.T) {
	svc, _, _ := newTestService(t, openPortsProber(-1), Config{Size: 1, QueueSize: 1})
	target := scanning.Target{Host: "localhost", StartPort: 1, EndPort: 2}

	_, err := svc.Submit(target, "test")
	require.NoError(t, err)

	_, err = svc.Submit(target, "test")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeQueueFull))
	assert.Len(t, svc.List(), 1)
}

func TestScanService_CancelRunning(t *testing.T) {
	svc, pool, listener := newTestService(t, openPortsProber(50, 10), Config{Size: 1, QueueSize: 4})
	pool.Start()

	rec, err := svc.Submit(scanning.Target{Host: "localhost", StartPort: 1, EndPort: 100, MaxConcurrent: 1}, "test")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		current, err := svc.Get(rec.ID)
		return err == nil && current.Status == StatusRunning
	}, 2*time.Second, 5*time.Millisecond)

	_, err = svc.Cancel(rec.ID)
	require.NoError(t, err)

	done := listener.wait(t)
	assert.Equal(t, StatusCanceled, done.Status)
	require.NotNil(t, done.Result)
	assert.True(t, done.Result.Canceled)
	assert.Equal(t, []int{10}, done.Result.OpenPorts)
	assert.Contains(t, done.Error, "CANCELED")
}

func TestScanService_CancelQueued(t *testing.T) {
	svc, _, listener := newTestService(t, openPortsProber(-1), Config{Size: 1, QueueSize: 4})

	rec, err := svc.Submit(scanning.Target{Host: "localhost", StartPort: 1, EndPort: 10}, "test")
	require.NoError(t, err)

	canceled, err := svc.Cancel(rec.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, canceled.Status)
	assert.Equal(t, StatusCanceled, listener.wait(t).Status)

	_, err = svc.Cancel("missing")
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))
}

func TestScanService_ResolutionFailureMarksFailed(t *testing.T) {
	prober := scanning.ProberFunc(func(_ context.Context, _ string, port int) scanning.ProbeResult {
		return scanning.ProbeResult{Port: port, Outcome: scanning.OutcomeUnresolved, Err: &net.DNSError{Err: "no such host"}}
	})
	svc, pool, listener := newTestService(t, prober, Config{Size: 1, QueueSize: 1})
	pool.Start()

	_, err := svc.Submit(scanning.Target{Host: "nowhere.invalid", StartPort: 1, EndPort: 3}, "test")
	require.NoError(t, err)

	done := listener.wait(t)
	assert.Equal(t, StatusFailed, done.Status)
	assert.Contains(t, done.Error, "TARGET_RESOLUTION")
	assert.Nil(t, done.Result)
}

// failingScanner returns err from every scan.
type failingScanner struct {
	err error
}

func (f failingScanner) ScanWithProgress(context.Context, scanning.Target, scanning.ProgressFunc) (*scanning.ScanResult, error) {
	return nil, f.err
}

func TestScanService_UncodedScanErrorMarkedScanFailed(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode errors.ErrorCode
	}{
		{"plain error", stderrors.New("socket exhausted"), errors.CodeScanFailed},
		{"coded error kept", errors.ErrTargetResolution("nowhere.invalid", nil), errors.CodeTargetResolution},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := logging.NewDiscard()
			pool := New(Config{Size: 1, QueueSize: 1}, WithLogger(logger))
			svc := NewScanService(pool, NewStore(0), failingScanner{err: tt.err}, logger, metrics.Nop{})
			listener := newRecordingListener()
			svc.Subscribe(listener)
			t.Cleanup(func() { _ = pool.Shutdown() })
			pool.Start()

			_, err := svc.Submit(scanning.Target{Host: "nowhere.invalid", StartPort: 1, EndPort: 3}, "test")
			require.NoError(t, err)

			done := listener.wait(t)
			assert.Equal(t, StatusFailed, done.Status)
			assert.Contains(t, done.Error, string(tt.wantCode))
			assert.Contains(t, done.Error, "nowhere.invalid")
		})
	}
}

package workers

import (
	stderrors "errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/portrisk/internal/errors"
	"github.com/anstrom/portrisk/internal/risk"
	"github.com/anstrom/portrisk/internal/scanning"
)

func TestStore_Lifecycle(t *testing.T) {
	s := NewStore(0)
	target := scanning.Target{Host: "localhost", StartPort: 1, EndPort: 100}
	s.Add(JobRecord{ID: "job-1", Target: target})

	rec, err := s.Get("job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, rec.Status)
	assert.False(t, rec.CreatedAt.IsZero())
	assert.Nil(t, rec.StartedAt)

	require.True(t, s.MarkRunning("job-1"))
	assert.False(t, s.MarkRunning("job-1"), "already running")

	result := &scanning.ScanResult{OpenPorts: []int{22, 80}}
	assessment := risk.Classify(result.OpenPorts)
	s.MarkCompleted("job-1", result, &assessment)

	rec, err = s.Get("job-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, rec.Status)
	require.NotNil(t, rec.StartedAt)
	require.NotNil(t, rec.CompletedAt)
	assert.Equal(t, []int{22, 80}, rec.Result.OpenPorts)
	assert.Equal(t, risk.Medium, rec.Assessment.Overall)

	// Terminal records do not change again.
	s.MarkFailed("job-1", stderrors.New("late"))
	rec, _ = s.Get("job-1")
	assert.Equal(t, StatusCompleted, rec.Status)
	assert.Empty(t, rec.Error)
}

func TestStore_MarkFailed(t *testing.T) {
	s := NewStore(0)
	s.Add(JobRecord{ID: "job"})
	s.MarkRunning("job")
	s.MarkFailed("job", errors.ErrTargetResolution("nowhere.invalid", stderrors.New("no such host")))

	rec, err := s.Get("job")
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, rec.Status)
	assert.Contains(t, rec.Error, "TARGET_RESOLUTION")
}

func TestStore_GetUnknown(t *testing.T) {
	_, err := NewStore(0).Get("missing")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))
}

func TestStore_Cancel(t *testing.T) {
	s := NewStore(0)
	s.Add(JobRecord{ID: "queued"})
	s.Add(JobRecord{ID: "running"})
	s.MarkRunning("running")

	rec, err := s.Cancel("queued")
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, rec.Status)
	assert.NotNil(t, rec.CompletedAt)
	assert.False(t, s.MarkRunning("queued"))

	rec, err = s.Cancel("running")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, rec.Status, "running jobs finish themselves")

	_, err = s.Cancel("missing")
	assert.True(t, errors.IsCode(err, errors.CodeNotFound))
}

func TestStore_ListNewestFirst(t *testing.T) {
	s := NewStore(0)
	base := time.Now()
	for i := 0; i < 3; i++ {
		s.Add(JobRecord{ID: fmt.Sprintf("job-%d", i), CreatedAt: base.Add(time.Duration(i) * time.Second)})
	}

	list := s.List()
	require.Len(t, list, 3)
	assert.Equal(t, "job-2", list[0].ID)
	assert.Equal(t, "job-0", list[2].ID)
}

func TestStore_EvictsOldestFinished(t *testing.T) {
	s := NewStore(2)
	s.Add(JobRecord{ID: "active"})
	for i := 0; i < 4; i++ {
		id := fmt.Sprintf("done-%d", i)
		s.Add(JobRecord{ID: id})
		s.MarkCompleted(id, nil, nil)
		time.Sleep(time.Millisecond)
	}

	assert.Equal(t, 3, s.Len())
	_, err := s.Get("active")
	assert.NoError(t, err)
	_, err = s.Get("done-0")
	assert.Error(t, err)
	_, err = s.Get("done-3")
	assert.NoError(t, err)
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := NewStore(0)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("job-%d", n)
			s.Add(JobRecord{ID: id})
			s.MarkRunning(id)
			s.MarkCompleted(id, &scanning.ScanResult{OpenPorts: []int{}}, nil)
			_ = s.List()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 50, s.Len())
}

func TestJobStatus_Terminal(t *testing.T) {
	assert.False(t, StatusQueued.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.True(t, StatusCanceled.Terminal())
}

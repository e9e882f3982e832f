package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMatchService struct {
	gate   chan struct{}
	err    error
	mu     sync.Mutex
	seen   []MatchCommand
	purges atomic.Int32
}

func (f *fakeMatchService) Match(ctx context.Context, cmd MatchCommand) (*MatchOutcome, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	f.seen = append(f.seen, cmd)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &MatchOutcome{}, nil
}

func (f *fakeMatchService) Get(context.Context, string, string, bool) (*MatchOutcome, error) {
	return nil, nil
}

func (f *fakeMatchService) Invalidate(context.Context, string, string) (int64, error) {
	return 0, nil
}

func (f *fakeMatchService) Purge(context.Context) (int64, error) {
	f.purges.Add(1)
	return 0, nil
}

func waitForStatus(t *testing.T, w Worker, id string, status TaskStatus) MatchTask {
	t.Helper()
	var task MatchTask
	require.Eventually(t, func() bool {
		var ok bool
		task, ok = w.Task(id)
		return ok && task.Status == status
	}, 2*time.Second, 5*time.Millisecond)
	return task
}

func TestWorkerRunsQueuedMatches(t *testing.T) {
	t.Parallel()

	svc := &fakeMatchService{}
	w := NewWorker(svc, 2, 10, 0, nil)
	w.Start(context.Background())
	defer w.Stop()

	id, err := w.Enqueue(MatchCommand{CVID: "cv-1", JobID: "job-1"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	task := waitForStatus(t, w, id, TaskCompleted)
	assert.Equal(t, "cv-1", task.CVID)
	assert.Equal(t, "job-1", task.JobID)
	assert.False(t, task.FinishedAt.IsZero())
	assert.Empty(t, task.Error)
}

func TestWorkerRecordsFailures(t *testing.T) {
	t.Parallel()

	svc := &fakeMatchService{err: newMatchError(ErrExtractionFailure, StageExtraction, ErrReasoningUnavailable)}
	w := NewWorker(svc, 1, 10, 0, nil)
	w.Start(context.Background())
	defer w.Stop()

	id, err := w.Enqueue(MatchCommand{CVID: "cv-1", JobID: "job-1", CVText: "text"})
	require.NoError(t, err)

	task := waitForStatus(t, w, id, TaskFailed)
	assert.Equal(t, "extraction_failure", task.Kind)
	assert.NotEmpty(t, task.Error)
}

func TestWorkerQueueFull(t *testing.T) {
	t.Parallel()

	// not started: nothing drains the queue
	w := NewWorker(&fakeMatchService{}, 1, 1, 0, nil)

	id, err := w.Enqueue(MatchCommand{CVID: "a", JobID: "b"})
	require.NoError(t, err)
	task, ok := w.Task(id)
	require.True(t, ok)
	assert.Equal(t, TaskQueued, task.Status)

	_, err = w.Enqueue(MatchCommand{CVID: "c", JobID: "d"})
	require.ErrorIs(t, err, ErrQueueFull)
}

func TestWorkerRejectsAfterStop(t *testing.T) {
	t.Parallel()

	w := NewWorker(&fakeMatchService{}, 1, 5, 0, nil)
	w.Start(context.Background())
	w.Stop()
	w.Stop()

	_, err := w.Enqueue(MatchCommand{CVID: "a", JobID: "b"})
	require.ErrorIs(t, err, ErrWorkerStopped)

	_, ok := w.Task("missing")
	assert.False(t, ok)
}

func TestWorkerPurgesOnInterval(t *testing.T) {
	t.Parallel()

	svc := &fakeMatchService{}
	w := NewWorker(svc, 1, 5, 5*time.Millisecond, nil)
	w.Start(context.Background())
	defer w.Stop()

	require.Eventually(t, func() bool { return svc.purges.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
}

func TestWorkerForgetsOldTasks(t *testing.T) {
	t.Parallel()

	w := NewWorker(&fakeMatchService{}, 1, 5, 0, nil).(*worker)
	now := time.Now().UTC()
	w.tasks["old"] = &MatchTask{ID: "old", Status: TaskCompleted, FinishedAt: now.Add(-2 * time.Hour)}
	w.tasks["fresh"] = &MatchTask{ID: "fresh", Status: TaskCompleted, FinishedAt: now}
	w.tasks["queued"] = &MatchTask{ID: "queued", Status: TaskQueued}

	w.forgetTasks(now)

	_, ok := w.Task("old")
	assert.False(t, ok)
	_, ok = w.Task("fresh")
	assert.True(t, ok)
	_, ok = w.Task("queued")
	assert.True(t, ok)
}

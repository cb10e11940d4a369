package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/domain"
	"github.com/ClayDesk/codeflowops-saas-sub001/internal/shell/store"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupQueue(t *testing.T) (*Queue, store.Store) {
	t.Helper()

	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	q := New(s, Config{RetryDelay: 10 * time.Millisecond}, testLogger())
	return q, s
}

func TestEnqueueDequeue(t *testing.T) {
	q, _ := setupQueue(t)
	ctx := context.Background()

	_, err := q.Dequeue(ctx)
	assert.True(t, errors.Is(err, ErrEmpty))

	job := domain.NewJob(domain.JobTypeDeploy, `{"session_id":"s1"}`, 5, 2)
	require.NoError(t, q.Enqueue(ctx, job))

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	assert.Equal(t, domain.JobStatusRunning, got.Status)
}

func TestCompleteJob(t *testing.T) {
	q, s := setupQueue(t)
	ctx := context.Background()

	job := domain.NewJob(domain.JobTypeDeploy, "", 0, 2)
	require.NoError(t, q.Enqueue(ctx, job))

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Complete(ctx, got))

	stored, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, stored.Status)
	require.NotNil(t, stored.FinishedAt)
}

// A job with max_retries=2 runs exactly 3 times and ends failed.
func TestRetryBound(t *testing.T) {
	q, s := setupQueue(t)
	ctx := context.Background()

	job := domain.NewJob(domain.JobTypeDeploy, "", 0, 2)
	require.NoError(t, q.Enqueue(ctx, job))

	attempts := 0
	for {
		// Release any delayed retries whose window has passed.
		time.Sleep(15 * time.Millisecond)
		_, err := s.ReleaseRetrying(ctx, time.Now().UTC())
		require.NoError(t, err)

		got, err := q.Dequeue(ctx)
		if errors.Is(err, ErrEmpty) {
			break
		}
		require.NoError(t, err)
		attempts++
		require.LessOrEqual(t, attempts, 3, "job must never run a 4th time")
		require.NoError(t, q.Fail(ctx, got, errors.New("simulated failure")))
	}

	assert.Equal(t, 3, attempts)

	stored, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, stored.Status)
	assert.Equal(t, 2, stored.RetryCount)
	assert.Equal(t, "simulated failure", stored.LastError)
}

func TestFailSchedulesDelayedRetry(t *testing.T) {
	q, s := setupQueue(t)
	ctx := context.Background()

	job := domain.NewJob(domain.JobTypeDeploy, "", 0, 1)
	require.NoError(t, q.Enqueue(ctx, job))

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.NoError(t, q.Fail(ctx, got, errors.New("transient")))

	stored, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusRetrying, stored.Status)
	require.NotNil(t, stored.NotBefore)

	// Still delayed: not claimable until the sweep releases it.
	_, err = q.Dequeue(ctx)
	assert.True(t, errors.Is(err, ErrEmpty))

	_, err = s.ReleaseRetrying(ctx, stored.NotBefore.Add(time.Second))
	require.NoError(t, err)

	got2, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got2.ID)
	assert.Equal(t, 1, got2.RetryCount)
}

// A deterministic failure fails the job permanently even with retry budget
// left, while an unclassified one still consumes the budget.
func TestFailTerminalKindSkipsRetryBudget(t *testing.T) {
	q, s := setupQueue(t)
	ctx := context.Background()

	job := domain.NewJob(domain.JobTypeDeploy, "", 0, 2)
	require.NoError(t, q.Enqueue(ctx, job))

	got, err := q.Dequeue(ctx)
	require.NoError(t, err)

	cause := domain.NewPipelineError(domain.ErrKindDetectionMismatch, "analyze",
		errors.New("no supported application found"))
	require.NoError(t, q.Fail(ctx, got, cause))

	stored, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, stored.Status)
	assert.Equal(t, 0, stored.RetryCount)
	require.NotNil(t, stored.FinishedAt)

	_, err = q.Dequeue(ctx)
	assert.True(t, errors.Is(err, ErrEmpty))
}

func TestCancel(t *testing.T) {
	q, s := setupQueue(t)
	ctx := context.Background()

	job := domain.NewJob(domain.JobTypeDeploy, "", 0, 0)
	require.NoError(t, q.Enqueue(ctx, job))
	require.NoError(t, q.Cancel(ctx, job.ID))

	stored, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCancelled, stored.Status)

	_, err = q.Dequeue(ctx)
	assert.True(t, errors.Is(err, ErrEmpty))

	// Cancelling a terminal job is refused.
	err = q.Cancel(ctx, job.ID)
	assert.True(t, errors.Is(err, domain.ErrInvalidTransition))
}

func TestDeploymentLockContention(t *testing.T) {
	_, s := setupQueue(t)
	ctx := context.Background()

	lock := NewDeploymentLock(s, time.Minute, testLogger())

	require.NoError(t, lock.Acquire(ctx, "target-1", "worker-a"))

	err := lock.Acquire(ctx, "target-1", "worker-b")
	require.Error(t, err)
	assert.Equal(t, domain.ErrKindLockContention, domain.KindOf(err))
	assert.True(t, errors.Is(err, domain.ErrLockHeld))

	// A different target is independent.
	require.NoError(t, lock.Acquire(ctx, "target-2", "worker-b"))

	require.NoError(t, lock.Release(ctx, "target-1", "worker-a"))
	require.NoError(t, lock.Acquire(ctx, "target-1", "worker-b"))
}

func TestDeploymentLockRenew(t *testing.T) {
	_, s := setupQueue(t)
	ctx := context.Background()

	lock := NewDeploymentLock(s, time.Minute, testLogger())

	require.NoError(t, lock.Acquire(ctx, "target-1", "worker-a"))
	require.NoError(t, lock.Renew(ctx, "target-1", "worker-a"))

	err := lock.Renew(ctx, "target-1", "worker-b")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrLockHeld))
}

func TestSweepRequeuesStaleJobs(t *testing.T) {
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	q := New(s, Config{
		RetryDelay:        10 * time.Millisecond,
		ProcessingTimeout: 20 * time.Millisecond,
		SweepInterval:     10 * time.Millisecond,
	}, testLogger())

	ctx := context.Background()
	job := domain.NewJob(domain.JobTypeDeploy, "", 0, 0)
	require.NoError(t, q.Enqueue(ctx, job))

	claimed, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.Equal(t, domain.JobStatusRunning, claimed.Status)

	q.Start()
	defer q.Stop()

	// The worker never reports back; the sweep reclaims the job.
	require.Eventually(t, func() bool {
		stored, err := s.GetJob(ctx, job.ID)
		if err != nil {
			return false
		}
		return stored.Status == domain.JobStatusPending
	}, 2*time.Second, 20*time.Millisecond)
}

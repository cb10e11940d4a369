// Package queue provides the durable priority job queue and the per-target
// deployment lock, both backed by the store.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/domain"
	"github.com/ClayDesk/codeflowops-saas-sub001/internal/shell/store"
)

// =============================================================================
// Configuration
// =============================================================================

const (
	// DefaultRetryDelay is the fixed window a retrying job waits before it
	// returns to the pending pool.
	DefaultRetryDelay = 30 * time.Second

	// DefaultProcessingTimeout bounds how long a job may sit in running
	// before the sweep treats its worker as crashed and re-queues it.
	DefaultProcessingTimeout = 15 * time.Minute

	// DefaultSweepInterval controls how often the sweep releases delayed
	// retries and reclaims stale running jobs.
	DefaultSweepInterval = 30 * time.Second
)

// Config tunes queue timing. Zero values take the defaults.
type Config struct {
	RetryDelay        time.Duration
	ProcessingTimeout time.Duration
	SweepInterval     time.Duration
}

func (c Config) withDefaults() Config {
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.ProcessingTimeout <= 0 {
		c.ProcessingTimeout = DefaultProcessingTimeout
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	return c
}

// =============================================================================
// Queue
// =============================================================================

// ErrEmpty is returned by Dequeue when no job is eligible to run.
var ErrEmpty = errors.New("queue: no eligible jobs")

// Queue is the durable job queue. All state lives in the store, so a process
// restart loses nothing; the queue itself only adds lifecycle rules and the
// background sweep.
type Queue struct {
	store  store.Store
	config Config
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a queue on top of the store.
func New(s store.Store, config Config, logger *slog.Logger) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	return &Queue{
		store:  s,
		config: config.withDefaults(),
		logger: logger.With("component", "queue"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start launches the background sweep loop.
func (q *Queue) Start() {
	q.wg.Add(1)
	go q.sweepLoop()
	q.logger.Info("queue started",
		"retry_delay", q.config.RetryDelay,
		"processing_timeout", q.config.ProcessingTimeout)
}

// Stop halts the sweep loop and waits for it to exit.
func (q *Queue) Stop() {
	q.cancel()
	q.wg.Wait()
	q.logger.Info("queue stopped")
}

// Enqueue persists a new pending job.
func (q *Queue) Enqueue(ctx context.Context, job *domain.Job) error {
	if err := q.store.CreateJob(ctx, job); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}
	q.logger.Info("job enqueued", "job_id", job.ID, "type", job.Type, "priority", job.Priority)
	return nil
}

// Dequeue atomically claims the highest-priority eligible job and marks it
// running. Returns ErrEmpty when nothing is claimable.
func (q *Queue) Dequeue(ctx context.Context) (*domain.Job, error) {
	job, err := q.store.ClaimNextJob(ctx, time.Now().UTC())
	if err != nil {
		if errors.Is(err, store.ErrNoPendingJobs) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("dequeue job: %w", err)
	}
	return job, nil
}

// Complete marks a running job completed.
func (q *Queue) Complete(ctx context.Context, job *domain.Job) error {
	if err := domain.ValidateJobTransition(job.Status, domain.JobStatusCompleted); err != nil {
		return err
	}
	now := time.Now().UTC()
	job.Status = domain.JobStatusCompleted
	job.FinishedAt = &now
	job.NotBefore = nil
	job.UpdatedAt = now
	if err := q.store.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	q.logger.Info("job completed", "job_id", job.ID, "retry_count", job.RetryCount)
	return nil
}

// Fail records a failed attempt. A job with retry budget left moves to
// retrying and returns to pending after the delay window; otherwise it is
// failed permanently. Failures of a terminal kind are deterministic, so they
// fail permanently regardless of remaining budget.
func (q *Queue) Fail(ctx context.Context, job *domain.Job, cause error) error {
	now := time.Now().UTC()
	job.LastError = cause.Error()
	job.UpdatedAt = now

	if job.CanRetry() && !domain.KindOf(cause).Terminal() {
		if err := domain.ValidateJobTransition(job.Status, domain.JobStatusRetrying); err != nil {
			return err
		}
		job.Status = domain.JobStatusRetrying
		job.RetryCount++
		next := domain.NextAttemptAt(now, q.config.RetryDelay)
		job.NotBefore = &next
		if err := q.store.UpdateJob(ctx, job); err != nil {
			return fmt.Errorf("fail job: %w", err)
		}
		q.logger.Warn("job will retry",
			"job_id", job.ID,
			"retry_count", job.RetryCount,
			"max_retries", job.MaxRetries,
			"next_attempt_at", next,
			"error", cause)
		return nil
	}

	if err := domain.ValidateJobTransition(job.Status, domain.JobStatusFailed); err != nil {
		return err
	}
	job.Status = domain.JobStatusFailed
	job.FinishedAt = &now
	job.NotBefore = nil
	if err := q.store.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	q.logger.Error("job failed permanently",
		"job_id", job.ID,
		"retry_count", job.RetryCount,
		"error", cause)
	return nil
}

// Cancel marks a job cancelled. Running jobs observe the cancellation at
// their next step boundary; terminal jobs are left alone.
func (q *Queue) Cancel(ctx context.Context, jobID string) error {
	job, err := q.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status.Terminal() {
		return domain.ErrInvalidTransition
	}
	now := time.Now().UTC()
	job.Status = domain.JobStatusCancelled
	job.FinishedAt = &now
	job.NotBefore = nil
	job.UpdatedAt = now
	if err := q.store.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	q.logger.Info("job cancelled", "job_id", jobID)
	return nil
}

// Get returns a job by ID.
func (q *Queue) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	return q.store.GetJob(ctx, jobID)
}

// =============================================================================
// Sweep
// =============================================================================

func (q *Queue) sweepLoop() {
	defer q.wg.Done()

	ticker := time.NewTicker(q.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-q.ctx.Done():
			return
		case <-ticker.C:
			q.sweep()
		}
	}
}

// sweep releases retrying jobs whose delay window has passed and re-queues
// running jobs whose worker has apparently crashed.
func (q *Queue) sweep() {
	ctx, cancel := context.WithTimeout(q.ctx, 10*time.Second)
	defer cancel()

	now := time.Now().UTC()

	released, err := q.store.ReleaseRetrying(ctx, now)
	if err != nil {
		q.logger.Error("sweep failed to release retrying jobs", "error", err)
	} else if released > 0 {
		q.logger.Info("released retrying jobs", "count", released)
	}

	requeued, err := q.store.RequeueStale(ctx, now.Add(-q.config.ProcessingTimeout))
	if err != nil {
		q.logger.Error("sweep failed to requeue stale jobs", "error", err)
	} else if requeued > 0 {
		q.logger.Warn("requeued stale running jobs", "count", requeued)
	}
}

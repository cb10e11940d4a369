package domain

import (
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Job Status
// =============================================================================

// JobStatus is the lifecycle state of a queued job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusRetrying  JobStatus = "retrying"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Terminal reports whether the status is final.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// =============================================================================
// Job Types
// =============================================================================

// JobType identifies the work a job carries.
type JobType string

const (
	JobTypeDeploy  JobType = "deploy"
	JobTypeDestroy JobType = "destroy"
	JobTypeResume  JobType = "resume"
)

// =============================================================================
// Job
// =============================================================================

// Job is one unit of queued work. Payload is an opaque JSON document owned by
// the job type's handler; the queue never interprets it.
type Job struct {
	ID         string     `json:"id"`
	Type       JobType    `json:"type"`
	Payload    string     `json:"payload"`
	Priority   int        `json:"priority"`
	Status     JobStatus  `json:"status"`
	RetryCount int        `json:"retry_count"`
	MaxRetries int        `json:"max_retries"`
	LastError  string     `json:"last_error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	// NotBefore delays a retrying job's return to the pending pool.
	NotBefore *time.Time `json:"not_before,omitempty"`
}

// NewJob creates a pending job.
func NewJob(jobType JobType, payload string, priority, maxRetries int) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:         uuid.New().String(),
		Type:       jobType,
		Payload:    payload,
		Priority:   priority,
		Status:     JobStatusPending,
		MaxRetries: maxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// =============================================================================
// Job State Machine
// =============================================================================

var validJobTransitions = map[JobStatus][]JobStatus{
	JobStatusPending:   {JobStatusRunning, JobStatusCancelled},
	JobStatusRunning:   {JobStatusCompleted, JobStatusRetrying, JobStatusFailed, JobStatusCancelled},
	JobStatusRetrying:  {JobStatusPending, JobStatusCancelled},
	JobStatusCompleted: {},
	JobStatusFailed:    {},
	JobStatusCancelled: {},
}

// ValidateJobTransition checks whether a job status transition is allowed.
func ValidateJobTransition(from, to JobStatus) error {
	allowed, exists := validJobTransitions[from]
	if !exists {
		return ErrInvalidTransition
	}
	for _, s := range allowed {
		if s == to {
			return nil
		}
	}
	return ErrInvalidTransition
}

// CanRetry reports whether a failed attempt should be retried. The retry
// budget permits MaxRetries retries after the first attempt, so a job with
// MaxRetries=2 runs at most 3 times.
func (j *Job) CanRetry() bool {
	return j.RetryCount < j.MaxRetries
}

// NextAttemptAt computes when a retrying job becomes eligible again.
// The delay window is fixed per retry; the queue enforces it via NotBefore.
func NextAttemptAt(now time.Time, retryDelay time.Duration) time.Time {
	return now.Add(retryDelay).UTC()
}

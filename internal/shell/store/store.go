package store

import (
	"context"
	"time"

	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/domain"
)

// =============================================================================
// Store Interface
// =============================================================================

// Store defines the persistence interface for the orchestration engine.
type Store interface {
	// Job operations
	CreateJob(ctx context.Context, job *domain.Job) error
	GetJob(ctx context.Context, id string) (*domain.Job, error)
	UpdateJob(ctx context.Context, job *domain.Job) error
	ListJobs(ctx context.Context, opts ListOptions) ([]domain.Job, error)

	// ClaimNextJob atomically claims the highest-priority pending job whose
	// delay window has passed, marking it running. Returns ErrNoPendingJobs
	// when the queue is empty.
	ClaimNextJob(ctx context.Context, now time.Time) (*domain.Job, error)

	// ReleaseRetrying returns retrying jobs whose delay window has elapsed
	// to the pending pool. Returns the number of jobs released.
	ReleaseRetrying(ctx context.Context, now time.Time) (int, error)

	// RequeueStale re-queues running jobs claimed before the cutoff. The
	// sweep recovers work whose worker crashed mid-execution.
	RequeueStale(ctx context.Context, cutoff time.Time) (int, error)

	// Session operations
	CreateSession(ctx context.Context, session *domain.DeploymentSession) error
	GetSession(ctx context.Context, id string) (*domain.DeploymentSession, error)
	UpdateSession(ctx context.Context, session *domain.DeploymentSession) error
	ListSessionsByTenant(ctx context.Context, tenantID string, opts ListOptions) ([]domain.DeploymentSession, error)

	// Deployment lock operations. Locks carry a lease; expired leases are
	// reclaimable by any worker.
	AcquireLock(ctx context.Context, targetID, holder string, ttl time.Duration) (bool, error)
	RenewLock(ctx context.Context, targetID, holder string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, targetID, holder string) error
	LockHolder(ctx context.Context, targetID string) (holder string, held bool, err error)

	// Database provision operations. The provision JSON carries the
	// generated credentials with the password encrypted by the caller.
	GetDatabaseProvision(ctx context.Context, targetID string) (*domain.DatabaseProvision, error)
	SaveDatabaseProvision(ctx context.Context, targetID string, provision *domain.DatabaseProvision) error

	// Transaction support
	WithTx(ctx context.Context, fn func(Store) error) error

	// Lifecycle
	Close() error
}

// =============================================================================
// Options
// =============================================================================

// ListOptions defines pagination options.
type ListOptions struct {
	Limit  int
	Offset int
}

// Normalize ensures list options have valid values.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 100
	}
	if o.Limit > 1000 {
		o.Limit = 1000
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

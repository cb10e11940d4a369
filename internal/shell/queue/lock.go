package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/domain"
	"github.com/ClayDesk/codeflowops-saas-sub001/internal/shell/store"
)

// DefaultLockTTL is the lease length for a deployment lock. Holders renew
// while working; a crashed holder's lease expires and becomes reclaimable.
const DefaultLockTTL = 5 * time.Minute

// DeploymentLock serializes mutation of one target's cloud resources across
// workers and orchestrator instances. The lease lives in the store, so it
// holds across processes.
type DeploymentLock struct {
	store  store.Store
	ttl    time.Duration
	logger *slog.Logger
}

// NewDeploymentLock creates a lock manager with the given lease TTL.
// A non-positive TTL takes the default.
func NewDeploymentLock(s store.Store, ttl time.Duration, logger *slog.Logger) *DeploymentLock {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &DeploymentLock{
		store:  s,
		ttl:    ttl,
		logger: logger.With("component", "deployment_lock"),
	}
}

// Acquire takes the lease for a target. A live lease held by someone else is
// rejected with a LockContention error rather than blocked on; callers that
// prefer waiting poll Acquire.
func (l *DeploymentLock) Acquire(ctx context.Context, targetID, holder string) error {
	ok, err := l.store.AcquireLock(ctx, targetID, holder, l.ttl)
	if err != nil {
		return fmt.Errorf("acquire lock for %s: %w", targetID, err)
	}
	if !ok {
		current, _, _ := l.store.LockHolder(ctx, targetID)
		l.logger.Warn("lock contention", "target_id", targetID, "requested_by", holder, "held_by", current)
		return domain.NewPipelineError(domain.ErrKindLockContention, "lock",
			fmt.Errorf("%w: target %s", domain.ErrLockHeld, targetID)).
			WithHint("another deployment for this target is in progress; retry after it finishes")
	}
	l.logger.Info("lock acquired", "target_id", targetID, "holder", holder, "ttl", l.ttl)
	return nil
}

// Renew extends the holder's lease. Workers call this between pipeline steps
// so a long deployment outlives the initial TTL.
func (l *DeploymentLock) Renew(ctx context.Context, targetID, holder string) error {
	ok, err := l.store.RenewLock(ctx, targetID, holder, l.ttl)
	if err != nil {
		return fmt.Errorf("renew lock for %s: %w", targetID, err)
	}
	if !ok {
		return fmt.Errorf("%w: lease for %s no longer held by %s", domain.ErrLockHeld, targetID, holder)
	}
	return nil
}

// Release drops the holder's lease. Releasing a lease held by someone else
// is a no-op.
func (l *DeploymentLock) Release(ctx context.Context, targetID, holder string) error {
	if err := l.store.ReleaseLock(ctx, targetID, holder); err != nil {
		return fmt.Errorf("release lock for %s: %w", targetID, err)
	}
	l.logger.Info("lock released", "target_id", targetID, "holder", holder)
	return nil
}

// Holder reports the live holder for a target, if any.
func (l *DeploymentLock) Holder(ctx context.Context, targetID string) (string, bool, error) {
	return l.store.LockHolder(ctx, targetID)
}

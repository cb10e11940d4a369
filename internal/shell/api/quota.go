package api

import (
	"context"

	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/limits"
	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/provision"
	"github.com/ClayDesk/codeflowops-saas-sub001/internal/shell/store"
)

// =============================================================================
// Store-Backed Quota
// =============================================================================

// quotaListLimit bounds the sessions counted per check. Tenants near this
// many sessions are over any sensible plan limit anyway.
const quotaListLimit = 1000

// StoreQuota checks tenant limits against sessions in the store. Every
// tenant gets the same limits; per-plan limits come from embedding a custom
// QuotaChecker instead.
type StoreQuota struct {
	store  store.Store
	limits limits.TenantLimits
}

// NewStoreQuota creates a store-backed quota checker.
func NewStoreQuota(s store.Store, l limits.TenantLimits) *StoreQuota {
	return &StoreQuota{store: s, limits: l}
}

func (q *StoreQuota) CheckDeploymentQuota(ctx context.Context, tenantID string) (bool, string, error) {
	sessions, err := q.store.ListSessionsByTenant(ctx, tenantID, store.ListOptions{Limit: quotaListLimit})
	if err != nil {
		return false, "", err
	}

	// The requested sizing is not known before detection runs; memory is
	// checked against the default sizing for a dynamic app.
	result := limits.ValidateDeploymentCreation(q.limits, limits.CountUsage(sessions), provision.DefaultSizing())
	return result.Allowed, result.Reason, nil
}

package api

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/domain"
	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/limits"
	"github.com/ClayDesk/codeflowops-saas-sub001/internal/shell/store"
)

func TestStoreQuotaCountsActiveSessions(t *testing.T) {
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	quota := NewStoreQuota(s, limits.TenantLimits{MaxActiveDeployments: 2})

	allowed, _, err := quota.CheckDeploymentQuota(ctx, "tenant-1")
	require.NoError(t, err)
	assert.True(t, allowed)

	for i := 0; i < 2; i++ {
		session := domain.NewDeploymentSession("tenant-1", "shop", "us-east-1")
		require.NoError(t, s.CreateSession(ctx, session))
	}

	allowed, reason, err := quota.CheckDeploymentQuota(ctx, "tenant-1")
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Contains(t, reason, "active deployment limit reached")

	// Another tenant is unaffected.
	allowed, _, err = quota.CheckDeploymentQuota(ctx, "tenant-2")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestStoreQuotaIgnoresTerminalSessions(t *testing.T) {
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		session := domain.NewDeploymentSession("tenant-1", "shop", "us-east-1")
		session.Status = domain.SessionCompleted
		require.NoError(t, s.CreateSession(ctx, session))
	}

	quota := NewStoreQuota(s, limits.TenantLimits{MaxActiveDeployments: 1})
	allowed, _, err := quota.CheckDeploymentQuota(ctx, "tenant-1")
	require.NoError(t, err)
	assert.True(t, allowed)
}

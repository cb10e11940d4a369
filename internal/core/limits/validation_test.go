package limits

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/domain"
)

func TestValidateDeploymentCreation_WithinLimits(t *testing.T) {
	limits := TenantLimits{
		MaxActiveDeployments: 3,
		MaxTotalDeployments:  10,
		MaxMemoryMB:          8192,
	}
	usage := CurrentUsage{
		ActiveDeployments: 1,
		TotalDeployments:  4,
		TotalMemoryMB:     2048,
	}

	result := ValidateDeploymentCreation(limits, usage, domain.ComputeSizing{CPUUnits: 512, MemoryMB: 1024})
	assert.True(t, result.Ok())
	assert.Empty(t, result.Reason)
}

func TestValidateDeploymentCreation_ActiveLimitReached(t *testing.T) {
	limits := TenantLimits{MaxActiveDeployments: 2}
	usage := CurrentUsage{ActiveDeployments: 2}

	result := ValidateDeploymentCreation(limits, usage, domain.ComputeSizing{})
	assert.False(t, result.Ok())
	assert.Contains(t, result.Reason, "active deployment limit reached: 2/2")
}

func TestValidateDeploymentCreation_TotalLimitReached(t *testing.T) {
	limits := TenantLimits{MaxTotalDeployments: 5}
	usage := CurrentUsage{TotalDeployments: 5}

	result := ValidateDeploymentCreation(limits, usage, domain.ComputeSizing{})
	assert.False(t, result.Ok())
	assert.Contains(t, result.Reason, "deployment limit reached: 5/5")
}

func TestValidateDeploymentCreation_MemoryLimitExceeded(t *testing.T) {
	limits := TenantLimits{MaxMemoryMB: 4096}
	usage := CurrentUsage{TotalMemoryMB: 3584}

	result := ValidateDeploymentCreation(limits, usage, domain.ComputeSizing{MemoryMB: 1024})
	assert.False(t, result.Ok())
	assert.Contains(t, result.Reason, "memory limit would be exceeded: 4608/4096 MB")
}

func TestValidateDeploymentCreation_ZeroLimitsDisableBounds(t *testing.T) {
	result := ValidateDeploymentCreation(TenantLimits{}, CurrentUsage{
		ActiveDeployments: 100,
		TotalDeployments:  1000,
		TotalMemoryMB:     1 << 20,
	}, domain.ComputeSizing{MemoryMB: 4096})
	assert.True(t, result.Ok())
}

func TestCountUsage(t *testing.T) {
	active := domain.NewDeploymentSession("t", "a", "us-east-1")
	active.Infra = &domain.InfrastructureConfig{Sizing: domain.ComputeSizing{MemoryMB: 1024}}

	failed := domain.NewDeploymentSession("t", "b", "us-east-1")
	failed.Status = domain.SessionFailed
	failed.Infra = &domain.InfrastructureConfig{Sizing: domain.ComputeSizing{MemoryMB: 2048}}

	done := domain.NewDeploymentSession("t", "c", "us-east-1")
	done.Status = domain.SessionCompleted
	done.Infra = &domain.InfrastructureConfig{Sizing: domain.ComputeSizing{MemoryMB: 512}}

	usage := CountUsage([]domain.DeploymentSession{*active, *failed, *done})
	assert.Equal(t, 3, usage.TotalDeployments)
	assert.Equal(t, 1, usage.ActiveDeployments)
	// Failed sessions release their memory reservation.
	assert.Equal(t, 1536, usage.TotalMemoryMB)
}

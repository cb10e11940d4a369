// Package limits provides tenant quota validation functions. All functions
// are pure; the caller supplies current usage, typically counted from the
// session store.
package limits

import (
	"fmt"

	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/domain"
)

// =============================================================================
// Types
// =============================================================================

// ValidationResult represents the outcome of a quota check.
type ValidationResult struct {
	// Allowed indicates whether the operation is permitted.
	Allowed bool

	// Reason explains why the operation was rejected (empty if Allowed).
	Reason string
}

// TenantLimits bounds a tenant's use of the deployment engine. A zero value
// for any field disables that bound.
type TenantLimits struct {
	// MaxActiveDeployments caps sessions that are not yet terminal.
	MaxActiveDeployments int

	// MaxTotalDeployments caps sessions ever created for the tenant.
	MaxTotalDeployments int

	// MaxMemoryMB caps total requested memory across active deployments.
	MaxMemoryMB int
}

// CurrentUsage is the tenant's usage at check time.
type CurrentUsage struct {
	ActiveDeployments int
	TotalDeployments  int
	TotalMemoryMB     int
}

// =============================================================================
// Validation Functions
// =============================================================================

// ValidateDeploymentCreation checks whether a tenant may start another
// deployment given its limits and current usage.
func ValidateDeploymentCreation(limits TenantLimits, usage CurrentUsage, requested domain.ComputeSizing) ValidationResult {
	if limits.MaxActiveDeployments > 0 && usage.ActiveDeployments >= limits.MaxActiveDeployments {
		return ValidationResult{
			Allowed: false,
			Reason:  fmt.Sprintf("active deployment limit reached: %d/%d", usage.ActiveDeployments, limits.MaxActiveDeployments),
		}
	}

	if limits.MaxTotalDeployments > 0 && usage.TotalDeployments >= limits.MaxTotalDeployments {
		return ValidationResult{
			Allowed: false,
			Reason:  fmt.Sprintf("deployment limit reached: %d/%d", usage.TotalDeployments, limits.MaxTotalDeployments),
		}
	}

	if limits.MaxMemoryMB > 0 {
		newTotal := usage.TotalMemoryMB + requested.MemoryMB
		if newTotal > limits.MaxMemoryMB {
			return ValidationResult{
				Allowed: false,
				Reason:  fmt.Sprintf("memory limit would be exceeded: %d/%d MB", newTotal, limits.MaxMemoryMB),
			}
		}
	}

	return ValidationResult{Allowed: true}
}

// CountUsage folds a tenant's sessions into usage numbers.
func CountUsage(sessions []domain.DeploymentSession) CurrentUsage {
	usage := CurrentUsage{TotalDeployments: len(sessions)}
	for i := range sessions {
		s := &sessions[i]
		if !s.Status.Terminal() {
			usage.ActiveDeployments++
		}
		if s.Infra != nil && s.Status != domain.SessionFailed && s.Status != domain.SessionCancelled {
			usage.TotalMemoryMB += s.Infra.Sizing.MemoryMB
		}
	}
	return usage
}

// =============================================================================
// Convenience Methods
// =============================================================================

// Ok returns true if the validation passed.
func (r ValidationResult) Ok() bool {
	return r.Allowed
}

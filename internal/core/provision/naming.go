package provision

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// =============================================================================
// Resource Naming
// =============================================================================

// TargetSuffix derives the collision-resistant, tenant-unique suffix for a
// deployment target. It is deterministic so that re-provisioning the same
// target names the same resources, which is what makes the deployer's
// describe-or-create steps idempotent.
func TargetSuffix(tenantID, projectName string) string {
	sum := sha256.Sum256([]byte(tenantID + "/" + projectName))
	return hex.EncodeToString(sum[:])[:8]
}

// ResourceName builds a deterministic resource name.
// Pattern: cfo-{project}-{suffix}
//
// Example:
//
//	ResourceName("My Shop", "a1b2c3d4") // returns "cfo-my-shop-a1b2c3d4"
func ResourceName(projectName, suffix string) string {
	return fmt.Sprintf("cfo-%s-%s", slugify(projectName), suffix)
}

// DatabaseName derives the logical database name from a project name.
// Engines restrict these to alphanumerics and underscores.
func DatabaseName(projectName string) string {
	name := strings.ReplaceAll(slugify(projectName), "-", "_")
	if name == "" {
		name = "app"
	}
	if len(name) > 32 {
		name = name[:32]
	}
	return name
}

// slugify lowercases and strips a name down to [a-z0-9-].
func slugify(name string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

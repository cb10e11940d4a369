// Package buildspec turns a requirements descriptor into a concrete,
// buildable container definition: a resolved runtime tag, system packages
// and a rendered Dockerfile.
// This is part of the Functional Core - all functions are pure with no I/O.
package buildspec

import (
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/detect"
)

// =============================================================================
// Runtime Tag Resolution
// =============================================================================

// DefaultRuntimeVersion is the documented fallback when a version constraint
// cannot be parsed. Falling back must be recorded as a warning by the caller,
// never silently accepted.
const DefaultRuntimeVersion = "8.2"

// ResolveRuntimeVersion maps a version constraint to the nearest supported
// concrete runtime version: the highest supported version admitted by the
// constraint. The second return value reports whether the documented default
// was substituted because the constraint was unparsable or unsatisfiable.
func ResolveRuntimeVersion(constraint string) (version string, fellBack bool) {
	if constraint == "" {
		return DefaultRuntimeVersion, true
	}

	c, err := semver.NewConstraint(normalize(constraint))
	if err != nil {
		return DefaultRuntimeVersion, true
	}

	// Supported versions are ordered ascending; take the highest match.
	best := ""
	for _, raw := range detect.SupportedRuntimeVersions {
		v, err := semver.NewVersion(raw + ".0")
		if err != nil {
			continue
		}
		if c.Check(v) {
			best = raw
		}
	}
	if best == "" {
		return DefaultRuntimeVersion, true
	}
	return best, false
}

// RuntimeImageTag returns the base image reference for a resolved runtime
// version.
func RuntimeImageTag(version string) string {
	return fmt.Sprintf("php:%s-fpm", version)
}

// StaticImageTag is the base image for static-content applications.
const StaticImageTag = "nginx:1.27-alpine"

func normalize(constraint string) string {
	// Composer accepts single-pipe OR; the semver parser wants double pipes.
	out := make([]rune, 0, len(constraint))
	runes := []rune(constraint)
	for i := 0; i < len(runes); i++ {
		if runes[i] == '|' {
			if i+1 < len(runes) && runes[i+1] == '|' {
				i++
			}
			out = append(out, '|', '|')
			continue
		}
		out = append(out, runes[i])
	}
	return string(out)
}

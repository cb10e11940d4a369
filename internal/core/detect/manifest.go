package detect

import (
	"encoding/json"
	"io/fs"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/domain"
)

// =============================================================================
// Composer Manifest
// =============================================================================

// composerManifest is the subset of composer.json the detector consumes.
type composerManifest struct {
	Require    map[string]string `json:"require"`
	RequireDev map[string]string `json:"require-dev"`
	Scripts    map[string]any    `json:"scripts"`
}

// manifestRequirements is the descriptor fragment derived from a dependency
// manifest: declared extensions, a runtime constraint, and framework markers.
type manifestRequirements struct {
	Extensions        []string
	VersionConstraint string
	Framework         domain.AppType
	HasManifest       bool
}

// parseComposerManifest reads composer.json from the tree, if present.
// A malformed manifest is ignored rather than failing detection.
func parseComposerManifest(tree fs.FS) manifestRequirements {
	data, err := fs.ReadFile(tree, "composer.json")
	if err != nil {
		return manifestRequirements{}
	}

	var manifest composerManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return manifestRequirements{}
	}

	req := manifestRequirements{HasManifest: true}

	for pkg, constraint := range manifest.Require {
		key := strings.ToLower(strings.TrimSpace(pkg))
		switch {
		case key == "php":
			req.VersionConstraint = normalizeConstraint(constraint)
		case strings.HasPrefix(key, "ext-"):
			req.Extensions = append(req.Extensions, strings.TrimPrefix(key, "ext-"))
		case key == "laravel/framework":
			req.Framework = domain.AppTypeLaravel
		case key == "symfony/framework-bundle":
			req.Framework = domain.AppTypeSymfony
		}
	}

	sort.Strings(req.Extensions)
	return req
}

// =============================================================================
// Version Constraints
// =============================================================================

// SupportedRuntimeVersions are the concrete runtime minor versions the
// platform offers. Constraint restrictiveness is judged against this set.
var SupportedRuntimeVersions = []string{"7.4", "8.0", "8.1", "8.2", "8.3"}

// normalizeConstraint rewrites composer's single-pipe OR into the double-pipe
// form the semver parser accepts.
func normalizeConstraint(constraint string) string {
	constraint = strings.TrimSpace(constraint)
	constraint = strings.ReplaceAll(constraint, "||", "|")
	return strings.ReplaceAll(constraint, "|", "||")
}

// admittedVersions returns which supported runtime versions satisfy the
// constraint. An unparsable constraint admits every version (and the caller
// records the fallback as a warning at build time).
func admittedVersions(constraint string) []string {
	c, err := semver.NewConstraint(normalizeConstraint(constraint))
	if err != nil {
		return SupportedRuntimeVersions
	}

	var admitted []string
	for _, raw := range SupportedRuntimeVersions {
		v, err := semver.NewVersion(raw + ".0")
		if err != nil {
			continue
		}
		if c.Check(v) {
			admitted = append(admitted, raw)
		}
	}
	return admitted
}

// MoreRestrictiveConstraint returns whichever constraint admits fewer of the
// supported runtime versions. Ties prefer the second argument (the manifest
// declaration wins over the signature default). Empty constraints yield the
// other one.
func MoreRestrictiveConstraint(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	if len(admittedVersions(b)) <= len(admittedVersions(a)) {
		return b
	}
	return a
}

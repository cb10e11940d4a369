// Package detect implements the requirements analyzer. It inspects a source
// tree and produces a normalized RequirementsDescriptor, or declines.
// This is part of the Functional Core - detection never mutates external
// state and is deterministic given the same tree.
package detect

import (
	"io/fs"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/domain"
)

// =============================================================================
// Hints
// =============================================================================

// Hints carry caller-provided detection overrides. A framework hint names a
// specific application type and short-circuits the ordered signature checks
// (trusted fast path).
type Hints struct {
	Framework string
}

// projectFile is the optional in-repo configuration file. When present it is
// treated like a trusted framework hint and may override the health path.
type projectFile struct {
	Type            string `yaml:"type"`
	HealthCheckPath string `yaml:"health_check_path"`
	EntryPoint      string `yaml:"entry_point"`
}

const projectFileName = ".codeflowops.yml"

// =============================================================================
// Detector
// =============================================================================

// Detect inspects the source tree and returns a requirements descriptor, or
// domain.ErrNoDescriptor when the tree does not look like a supported
// application.
//
// Algorithm: trusted hint fast path, then the ordered signature checks.
// Before falling back to a generic classification the tree must not be
// dominated by a foreign ecosystem. The winning partial descriptor is merged
// with manifest- and compose-derived requirements: extensions by union,
// version constraint by more-restrictive-of.
func Detect(tree fs.FS, hints Hints) (*domain.RequirementsDescriptor, error) {
	descriptor, ok := matchSignature(tree, hints)
	if !ok {
		return nil, domain.ErrNoDescriptor
	}

	manifest := parseComposerManifest(tree)
	merged := mergeManifest(descriptor, manifest)

	// A local compose database service implies a managed database need, but
	// never overrides a framework signature that already requires one.
	if !merged.Database.Required {
		if dbReq, ok := probeComposeDatabase(tree); ok {
			merged.Database = dbReq
		}
	}

	applyProjectFile(tree, &merged)
	return &merged, nil
}

// matchSignature resolves the application type: hints first, then the
// ordered signature list with ecosystem rejection before generic fallbacks.
func matchSignature(tree fs.FS, hints Hints) (domain.RequirementsDescriptor, bool) {
	if hinted, ok := hintedType(tree, hints); ok {
		if partial, ok := partialForType(hinted); ok {
			return partial, true
		}
	}

	for _, sig := range signatures {
		if !sig.Matches(tree) {
			continue
		}
		// Specific framework markers are trusted as-is. Generic PHP and
		// static fallbacks must first positively reject trees dominated by
		// an unrelated ecosystem.
		if sig.AppType == domain.AppTypePHP || sig.AppType == domain.AppTypeStatic {
			if rejectForeignEcosystem(tree) {
				return domain.RequirementsDescriptor{}, false
			}
		}
		return sig.Partial(), true
	}

	return domain.RequirementsDescriptor{}, false
}

// hintedType resolves the trusted fast path from caller hints or the in-repo
// project file.
func hintedType(tree fs.FS, hints Hints) (domain.AppType, bool) {
	if hints.Framework != "" {
		return domain.AppType(strings.ToLower(hints.Framework)), true
	}

	data, err := fs.ReadFile(tree, projectFileName)
	if err != nil {
		return "", false
	}
	var pf projectFile
	if err := yaml.Unmarshal(data, &pf); err != nil || pf.Type == "" {
		return "", false
	}
	return domain.AppType(strings.ToLower(pf.Type)), true
}

// applyProjectFile applies per-project overrides from .codeflowops.yml.
func applyProjectFile(tree fs.FS, descriptor *domain.RequirementsDescriptor) {
	data, err := fs.ReadFile(tree, projectFileName)
	if err != nil {
		return
	}
	var pf projectFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return
	}
	if pf.HealthCheckPath != "" {
		descriptor.HealthCheckPath = pf.HealthCheckPath
	}
	if pf.EntryPoint != "" {
		descriptor.EntryPoint = pf.EntryPoint
	}
}

// =============================================================================
// Manifest Merge
// =============================================================================

// mergeManifest merges the signature partial with manifest-derived
// requirements: extensions = union, version constraint = more restrictive.
func mergeManifest(partial domain.RequirementsDescriptor, manifest manifestRequirements) domain.RequirementsDescriptor {
	merged := partial
	merged.Extensions = domain.MergeExtensions(partial.Extensions, manifest.Extensions)
	merged.VersionConstraint = MoreRestrictiveConstraint(partial.VersionConstraint, manifest.VersionConstraint)

	// A framework declared in the manifest refines a generic classification.
	if partial.AppType == domain.AppTypePHP && manifest.Framework != "" {
		if refined, ok := partialForType(manifest.Framework); ok {
			refined.Extensions = domain.MergeExtensions(refined.Extensions, merged.Extensions)
			refined.VersionConstraint = MoreRestrictiveConstraint(refined.VersionConstraint, merged.VersionConstraint)
			return refined
		}
	}

	if manifest.HasManifest && merged.BuildProcess == domain.BuildProcessNone && merged.AppType != domain.AppTypeStatic {
		merged.BuildProcess = domain.BuildProcessComposer
		merged.BuildCommands = []domain.BuildCommand{
			{Command: "composer install --no-dev --optimize-autoloader", Critical: true},
		}
	}

	return merged
}

// =============================================================================
// Ecosystem Rejection
// =============================================================================

// competingMarkers are manifest files of ecosystems this platform does not
// deploy. Their presence vetoes the generic fallback classifications.
var competingMarkers = []string{
	"go.mod",
	"requirements.txt",
	"pyproject.toml",
	"Gemfile",
	"pom.xml",
	"build.gradle",
	"Cargo.toml",
}

// foreignExtensions are source extensions that mark an unrelated ecosystem
// when they dominate the tree.
var foreignExtensions = map[string]bool{
	".py": true, ".rb": true, ".go": true, ".rs": true,
	".java": true, ".kt": true, ".cs": true, ".swift": true,
	".ts": true, ".tsx": true,
}

const foreignDominanceRatio = 0.8

// rejectForeignEcosystem reports whether the tree is dominated by an
// unrelated ecosystem: a competing marker file at the root, or >=80% of
// files sharing a single foreign extension.
func rejectForeignEcosystem(tree fs.FS) bool {
	for _, marker := range competingMarkers {
		if fileExists(tree, marker) {
			return true
		}
	}

	total := 0
	byExt := make(map[string]int)
	fs.WalkDir(tree, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		total++
		byExt[strings.ToLower(path.Ext(p))]++
		return nil
	})

	if total == 0 {
		return true
	}
	for ext, count := range byExt {
		if foreignExtensions[ext] && float64(count) >= foreignDominanceRatio*float64(total) {
			return true
		}
	}
	return false
}

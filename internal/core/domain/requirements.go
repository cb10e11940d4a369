package domain

import (
	"sort"
	"strings"
)

// =============================================================================
// Application Types
// =============================================================================

// AppType identifies the detected application framework.
type AppType string

const (
	AppTypeWordPress AppType = "wordpress"
	AppTypeLaravel   AppType = "laravel"
	AppTypeSymfony   AppType = "symfony"
	AppTypePHP       AppType = "php"
	AppTypeStatic    AppType = "static"
)

// RequiresServerProcess reports whether the app type needs a long-running
// server-side runtime. Such descriptors must never be routed to a
// static-content-only deployment path.
func (t AppType) RequiresServerProcess() bool {
	return t != AppTypeStatic
}

// =============================================================================
// Build Process
// =============================================================================

// BuildProcess names the build pipeline used for the application.
type BuildProcess string

const (
	BuildProcessComposer BuildProcess = "composer"
	BuildProcessNone     BuildProcess = "none"
)

// BuildCommand is one step of the application build. Non-critical commands
// may fail without aborting the build; the failure is recorded as a warning.
type BuildCommand struct {
	Command  string `json:"command"`
	Critical bool   `json:"critical"`
}

// =============================================================================
// Database Requirement
// =============================================================================

// DatabaseEngine identifies a managed database engine.
type DatabaseEngine string

const (
	DatabaseEngineNone     DatabaseEngine = ""
	DatabaseEngineMySQL    DatabaseEngine = "mysql"
	DatabaseEnginePostgres DatabaseEngine = "postgres"
)

// DatabaseRequirement describes the application's database needs.
type DatabaseRequirement struct {
	Engine          DatabaseEngine `json:"engine"`
	Required        bool           `json:"required"`
	NeedsMigrations bool           `json:"needs_migrations"`
}

// =============================================================================
// Requirements Descriptor
// =============================================================================

// RequirementsDescriptor is the normalized, typed summary of an application's
// runtime, build and infrastructure needs. It is produced once by the
// detector and is immutable afterward; every downstream component consumes
// the descriptor, never raw source-tree data.
type RequirementsDescriptor struct {
	AppType           AppType             `json:"app_type"`
	VersionConstraint string              `json:"version_constraint"`
	Extensions        []string            `json:"extensions"`
	Database          DatabaseRequirement `json:"database"`
	BuildProcess      BuildProcess        `json:"build_process"`
	BuildCommands     []BuildCommand      `json:"build_commands"`
	HealthCheckPath   string              `json:"health_check_path"`
	EntryPoint        string              `json:"entry_point"`
}

// HasExtension reports whether the descriptor lists the given extension.
func (d *RequirementsDescriptor) HasExtension(name string) bool {
	for _, e := range d.Extensions {
		if e == name {
			return true
		}
	}
	return false
}

// =============================================================================
// Descriptor Merge
// =============================================================================

// MergeExtensions unions two extension sets, normalizing to lower case and
// returning a sorted, de-duplicated list. The descriptor's extension set is
// the union of every detection source.
func MergeExtensions(a, b []string) []string {
	set := make(map[string]bool, len(a)+len(b))
	for _, e := range a {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			set[e] = true
		}
	}
	for _, e := range b {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			set[e] = true
		}
	}

	merged := make([]string, 0, len(set))
	for e := range set {
		merged = append(merged, e)
	}
	sort.Strings(merged)
	return merged
}

package provision

import "github.com/ClayDesk/codeflowops-saas-sub001/internal/core/domain"

// =============================================================================
// Sizing Tables
// =============================================================================

// sizingByAppType is the per-application-type compute sizing lookup table.
// Descriptor-provided overrides take precedence over these defaults.
var sizingByAppType = map[domain.AppType]domain.ComputeSizing{
	domain.AppTypeWordPress: {CPUUnits: 512, MemoryMB: 1024},
	domain.AppTypeLaravel:   {CPUUnits: 512, MemoryMB: 1024},
	domain.AppTypeSymfony:   {CPUUnits: 512, MemoryMB: 1024},
	domain.AppTypePHP:       {CPUUnits: 256, MemoryMB: 512},
	domain.AppTypeStatic:    {CPUUnits: 256, MemoryMB: 512},
}

// defaultSizing applies when the app type has no table entry.
var defaultSizing = domain.ComputeSizing{CPUUnits: 256, MemoryMB: 512}

// SizingFor returns the compute sizing for an app type.
func SizingFor(appType domain.AppType) domain.ComputeSizing {
	if s, ok := sizingByAppType[appType]; ok {
		return s
	}
	return defaultSizing
}

// DefaultSizing returns the sizing assumed before detection has run.
func DefaultSizing() domain.ComputeSizing {
	return defaultSizing
}

// defaultAutoscaling bounds the replica count for every app type.
var defaultAutoscaling = domain.AutoscalingBounds{
	MinReplicas:       1,
	MaxReplicas:       4,
	TargetUtilization: 70,
}

// =============================================================================
// Database Instance Classes
// =============================================================================

// instanceClassByEngine maps an engine to its default managed instance class.
var instanceClassByEngine = map[domain.DatabaseEngine]string{
	domain.DatabaseEngineMySQL:    "db.t3.micro",
	domain.DatabaseEnginePostgres: "db.t3.micro",
}

// engineVersionByEngine pins the default engine version.
var engineVersionByEngine = map[domain.DatabaseEngine]string{
	domain.DatabaseEngineMySQL:    "8.0",
	domain.DatabaseEnginePostgres: "16",
}

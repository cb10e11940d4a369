package domain

// =============================================================================
// Compute Sizing
// =============================================================================

// ComputeSizing is the CPU/memory allocation for the application's compute
// service. Units follow the Fargate convention: CPU in 1/1024 vCPU units,
// memory in MB.
type ComputeSizing struct {
	CPUUnits int `json:"cpu_units"`
	MemoryMB int `json:"memory_mb"`
}

// AutoscalingBounds bound the compute service's replica count.
type AutoscalingBounds struct {
	MinReplicas       int `json:"min_replicas"`
	MaxReplicas       int `json:"max_replicas"`
	TargetUtilization int `json:"target_utilization"`
}

// =============================================================================
// Load Balancer / Health Check
// =============================================================================

// HealthCheckSpec describes the load balancer health check carried through
// unchanged from the requirements descriptor.
type HealthCheckSpec struct {
	Path     string `json:"path"`
	Port     int    `json:"port"`
	Interval int    `json:"interval_seconds"`
	Timeout  int    `json:"timeout_seconds"`
}

// =============================================================================
// Database Provision
// =============================================================================

// DatabaseCredentials are the generated database credentials. The password is
// generated exactly once per provisioning target, is cryptographically
// random, and must never appear in logs in cleartext.
type DatabaseCredentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// DatabaseProvision is the declarative database portion of an infrastructure
// config. Host and port are filled in by the deployer once the instance
// exists; logs reference the password indirectly, never inline.
type DatabaseProvision struct {
	Engine        DatabaseEngine      `json:"engine"`
	EngineVersion string              `json:"engine_version"`
	InstanceClass string              `json:"instance_class"`
	ResourceName  string              `json:"resource_name"`
	DatabaseName  string              `json:"database_name"`
	Credentials   DatabaseCredentials `json:"credentials"`
	Host          string              `json:"host,omitempty"`
	Port          int                 `json:"port,omitempty"`
}

// =============================================================================
// Infrastructure Config
// =============================================================================

// InfrastructureConfig is the declarative infrastructure description computed
// by the provisioner from a requirements descriptor. Computing it never
// mutates cloud state; the deployer realizes it.
type InfrastructureConfig struct {
	ProjectName   string            `json:"project_name"`
	Region        string            `json:"region"`
	Sizing        ComputeSizing     `json:"sizing"`
	Autoscaling   AutoscalingBounds `json:"autoscaling"`
	NetworkRef    string            `json:"network_ref"`
	HealthCheck   HealthCheckSpec   `json:"health_check"`
	MonitoringRef string            `json:"monitoring_ref"`
	ContainerPort int               `json:"container_port"`
	// Env carries the environment bindings for the compute service, including
	// the conventional database variable names when a database is provisioned.
	Env      map[string]string  `json:"env,omitempty"`
	Database *DatabaseProvision `json:"database,omitempty"`
}

// =============================================================================
// Deployment Method
// =============================================================================

// DeploymentMethod names the path the deployer used.
type DeploymentMethod string

const (
	// MethodManagedRuntime is the serverless container runtime path (Path A).
	MethodManagedRuntime DeploymentMethod = "managed_runtime"
	// MethodCluster is the self-managed cluster + load balancer path (Path B).
	MethodCluster DeploymentMethod = "cluster"
)

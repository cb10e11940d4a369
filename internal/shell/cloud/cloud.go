// Package cloud defines the provider-neutral infrastructure surface the
// deployer mutates. This is part of the Imperative Shell - implementations
// talk to real cloud APIs.
package cloud

import (
	"context"

	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/domain"
)

// =============================================================================
// Credentials
// =============================================================================

// Credentials are caller-supplied cloud credentials. They are scoped to a
// single job execution and never persisted in cleartext.
type Credentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// APIToken carries a bearer token for providers that use one instead
	// of a key pair.
	APIToken string
}

// =============================================================================
// Registry
// =============================================================================

// RegistryAuth is a short-lived credential for pushing to an image registry.
type RegistryAuth struct {
	Username string
	Password string
	Endpoint string
}

// ImageRegistry manages container image repositories.
type ImageRegistry interface {
	// EnsureRepository creates the named repository if it does not exist and
	// returns its push URI.
	EnsureRepository(ctx context.Context, name string) (string, error)

	// AuthToken returns a fresh push credential.
	AuthToken(ctx context.Context) (*RegistryAuth, error)
}

// =============================================================================
// Network
// =============================================================================

// NetworkInfo identifies the provisioned network for a deployment target.
type NetworkInfo struct {
	NetworkID string
	SubnetIDs []string
}

// Network provisions the isolated network a cluster deployment runs in.
type Network interface {
	// EnsureNetwork creates (or finds by name) a network with at least two
	// subnets in distinct zones and a route to the internet.
	EnsureNetwork(ctx context.Context, name string) (*NetworkInfo, error)

	// EnsureSecurityGroup creates (or finds by name) an ingress rule set
	// admitting HTTP traffic to the given container port.
	EnsureSecurityGroup(ctx context.Context, networkID, name string, port int) (string, error)
}

// =============================================================================
// Load Balancer
// =============================================================================

// LoadBalancerInfo identifies a provisioned load balancer.
type LoadBalancerInfo struct {
	ARN     string
	DNSName string
}

// LoadBalancer provisions the traffic front for a cluster deployment.
type LoadBalancer interface {
	EnsureLoadBalancer(ctx context.Context, name string, subnetIDs []string, securityGroupID string) (*LoadBalancerInfo, error)

	// EnsureTargetGroup creates (or finds by name) a target group wired to
	// the descriptor's health check.
	EnsureTargetGroup(ctx context.Context, name, networkID string, port int, health domain.HealthCheckSpec) (string, error)

	EnsureListener(ctx context.Context, lbARN, targetGroupARN string) (string, error)

	// TargetsHealthy reports whether every registered target passes the
	// health check. An empty target set is not healthy.
	TargetsHealthy(ctx context.Context, targetGroupARN string) (bool, error)
}

// =============================================================================
// Compute
// =============================================================================

// TaskSpec describes the container task a cluster service runs.
type TaskSpec struct {
	Family        string
	ImageRef      string
	ContainerPort int
	CPUUnits      int
	MemoryMB      int
	Env           map[string]string
	ExecRoleARN   string
	TaskRoleARN   string
	LogGroup      string
	Region        string
}

// ServiceSpec describes the long-running cluster service.
type ServiceSpec struct {
	ClusterARN      string
	Name            string
	TaskDefARN      string
	DesiredCount    int
	SubnetIDs       []string
	SecurityGroupID string
	TargetGroupARN  string
	ContainerName   string
	ContainerPort   int
}

// ComputeCluster provisions container services on a self-managed cluster.
type ComputeCluster interface {
	EnsureCluster(ctx context.Context, name string) (string, error)
	RegisterTaskDefinition(ctx context.Context, spec TaskSpec) (string, error)
	EnsureService(ctx context.Context, spec ServiceSpec) (string, error)

	// ServiceRunning reports whether the service's running task count has
	// reached its desired count.
	ServiceRunning(ctx context.Context, clusterARN, serviceARN string) (bool, error)
}

// =============================================================================
// Managed Runtime
// =============================================================================

// RuntimeServiceSpec describes a service on the provider's serverless
// container runtime.
type RuntimeServiceSpec struct {
	Name          string
	ImageRef      string
	ContainerPort int
	CPUUnits      int
	MemoryMB      int
	Env           map[string]string
	HealthPath    string
	AccessRoleARN string
}

// RuntimeService is the live state of a managed runtime service.
type RuntimeService struct {
	ARN    string
	URL    string
	Status string
}

// ManagedRuntime provisions services on the serverless container runtime.
type ManagedRuntime interface {
	EnsureService(ctx context.Context, spec RuntimeServiceSpec) (*RuntimeService, error)

	// ServiceStatus reports the runtime's view of the service. "RUNNING"
	// means traffic is being served.
	ServiceStatus(ctx context.Context, arn string) (string, error)
}

// =============================================================================
// CDN
// =============================================================================

// CDN fronts a deployment origin with a distribution.
type CDN interface {
	// EnsureDistribution creates (or finds by comment tag) a distribution
	// for the origin domain and returns its public URL.
	EnsureDistribution(ctx context.Context, name, originDomain string) (string, error)
}

// =============================================================================
// Managed Database
// =============================================================================

// ManagedDatabase provisions database instances. Implementations receive the
// credentials inside the provision value and must never log the password.
type ManagedDatabase interface {
	// EnsureInstance creates (or finds by resource name) the database
	// instance and returns its endpoint.
	EnsureInstance(ctx context.Context, provision *domain.DatabaseProvision, networkID string) (host string, port int, err error)
}

// =============================================================================
// Identity
// =============================================================================

// Identity provisions the execution and task roles container services need.
type Identity interface {
	// EnsureTaskRoles creates (or finds by well-known name) the execution
	// and task roles for the given name prefix.
	EnsureTaskRoles(ctx context.Context, namePrefix string) (execRoleARN, taskRoleARN string, err error)
}

// =============================================================================
// Provider
// =============================================================================

// Provider aggregates the infrastructure services of one cloud. A provider
// that cannot serve a deployment method reports it via Supports; the deployer
// never calls an unsupported surface.
type Provider interface {
	Name() string
	Supports(method domain.DeploymentMethod) bool

	Registry() ImageRegistry
	Network() Network
	LoadBalancer() LoadBalancer
	Cluster() ComputeCluster
	Runtime() ManagedRuntime
	CDN() CDN
	Database() ManagedDatabase
	Identity() Identity
}

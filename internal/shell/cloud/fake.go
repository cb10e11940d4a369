package cloud

import (
	"context"
	"fmt"
	"sync"

	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/domain"
)

// =============================================================================
// Fake Provider
// =============================================================================

// Fake is an in-memory Provider for tests. It records every mutation call in
// order and lets tests inject an error for any named operation.
type Fake struct {
	mu sync.Mutex

	// Calls records operation names in invocation order.
	Calls []string

	// Errs injects an error for an operation name. The error is returned on
	// every invocation until removed.
	Errs map[string]error

	// HealthyAfter is the number of TargetsHealthy polls that report
	// unhealthy before the target group turns healthy. Negative means never
	// healthy.
	HealthyAfter int

	// RuntimeStatus is returned by ServiceStatus; defaults to "RUNNING".
	RuntimeStatus string

	// ClusterServiceDown makes ServiceRunning report false, so the cluster
	// path's health gate cannot be satisfied.
	ClusterServiceDown bool

	// SupportedMethods lists the deployment methods this fake serves.
	// Empty means all methods.
	SupportedMethods []domain.DeploymentMethod

	healthPolls int
}

// NewFake creates a fake provider with no injected failures.
func NewFake() *Fake {
	return &Fake{Errs: map[string]error{}}
}

func (f *Fake) record(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, op)
	if err, ok := f.Errs[op]; ok {
		return err
	}
	return nil
}

// CallCount returns how many times the operation was invoked.
func (f *Fake) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if c == op {
			n++
		}
	}
	return n
}

func (f *Fake) Name() string { return "fake" }

func (f *Fake) Supports(method domain.DeploymentMethod) bool {
	if len(f.SupportedMethods) == 0 {
		return true
	}
	for _, m := range f.SupportedMethods {
		if m == method {
			return true
		}
	}
	return false
}

func (f *Fake) Registry() ImageRegistry    { return fakeRegistry{f} }
func (f *Fake) Network() Network           { return fakeNetwork{f} }
func (f *Fake) LoadBalancer() LoadBalancer { return fakeLoadBalancer{f} }
func (f *Fake) Cluster() ComputeCluster    { return fakeCluster{f} }
func (f *Fake) Runtime() ManagedRuntime    { return fakeRuntime{f} }
func (f *Fake) CDN() CDN                   { return fakeCDN{f} }
func (f *Fake) Database() ManagedDatabase  { return fakeDatabase{f} }
func (f *Fake) Identity() Identity         { return fakeIdentity{f} }

// =============================================================================
// Service Fakes
// =============================================================================

type fakeRegistry struct{ f *Fake }

func (r fakeRegistry) EnsureRepository(ctx context.Context, name string) (string, error) {
	if err := r.f.record("EnsureRepository"); err != nil {
		return "", err
	}
	return "registry.fake/" + name, nil
}

func (r fakeRegistry) AuthToken(ctx context.Context) (*RegistryAuth, error) {
	if err := r.f.record("AuthToken"); err != nil {
		return nil, err
	}
	return &RegistryAuth{Username: "AWS", Password: "token", Endpoint: "registry.fake"}, nil
}

type fakeNetwork struct{ f *Fake }

func (n fakeNetwork) EnsureNetwork(ctx context.Context, name string) (*NetworkInfo, error) {
	if err := n.f.record("EnsureNetwork"); err != nil {
		return nil, err
	}
	return &NetworkInfo{
		NetworkID: "net-" + name,
		SubnetIDs: []string{"subnet-a", "subnet-b"},
	}, nil
}

func (n fakeNetwork) EnsureSecurityGroup(ctx context.Context, networkID, name string, port int) (string, error) {
	if err := n.f.record("EnsureSecurityGroup"); err != nil {
		return "", err
	}
	return "sg-" + name, nil
}

type fakeLoadBalancer struct{ f *Fake }

func (l fakeLoadBalancer) EnsureLoadBalancer(ctx context.Context, name string, subnetIDs []string, securityGroupID string) (*LoadBalancerInfo, error) {
	if err := l.f.record("EnsureLoadBalancer"); err != nil {
		return nil, err
	}
	return &LoadBalancerInfo{
		ARN:     "arn:lb/" + name,
		DNSName: name + ".lb.fake.example.com",
	}, nil
}

func (l fakeLoadBalancer) EnsureTargetGroup(ctx context.Context, name, networkID string, port int, health domain.HealthCheckSpec) (string, error) {
	if err := l.f.record("EnsureTargetGroup"); err != nil {
		return "", err
	}
	return "arn:tg/" + name, nil
}

func (l fakeLoadBalancer) EnsureListener(ctx context.Context, lbARN, targetGroupARN string) (string, error) {
	if err := l.f.record("EnsureListener"); err != nil {
		return "", err
	}
	return "arn:listener/" + lbARN, nil
}

func (l fakeLoadBalancer) TargetsHealthy(ctx context.Context, targetGroupARN string) (bool, error) {
	if err := l.f.record("TargetsHealthy"); err != nil {
		return false, err
	}
	l.f.mu.Lock()
	defer l.f.mu.Unlock()
	l.f.healthPolls++
	if l.f.HealthyAfter < 0 {
		return false, nil
	}
	return l.f.healthPolls > l.f.HealthyAfter, nil
}

type fakeCluster struct{ f *Fake }

func (c fakeCluster) EnsureCluster(ctx context.Context, name string) (string, error) {
	if err := c.f.record("EnsureCluster"); err != nil {
		return "", err
	}
	return "arn:cluster/" + name, nil
}

func (c fakeCluster) RegisterTaskDefinition(ctx context.Context, spec TaskSpec) (string, error) {
	if err := c.f.record("RegisterTaskDefinition"); err != nil {
		return "", err
	}
	return "arn:taskdef/" + spec.Family, nil
}

func (c fakeCluster) EnsureService(ctx context.Context, spec ServiceSpec) (string, error) {
	if err := c.f.record("EnsureClusterService"); err != nil {
		return "", err
	}
	return "arn:service/" + spec.Name, nil
}

func (c fakeCluster) ServiceRunning(ctx context.Context, clusterARN, serviceARN string) (bool, error) {
	if err := c.f.record("ClusterServiceRunning"); err != nil {
		return false, err
	}
	return !c.f.ClusterServiceDown, nil
}

type fakeRuntime struct{ f *Fake }

func (r fakeRuntime) EnsureService(ctx context.Context, spec RuntimeServiceSpec) (*RuntimeService, error) {
	if err := r.f.record("EnsureRuntimeService"); err != nil {
		return nil, err
	}
	return &RuntimeService{
		ARN:    "arn:runtime/" + spec.Name,
		URL:    fmt.Sprintf("https://%s.runtime.fake.example.com", spec.Name),
		Status: "RUNNING",
	}, nil
}

func (r fakeRuntime) ServiceStatus(ctx context.Context, arn string) (string, error) {
	if err := r.f.record("RuntimeServiceStatus"); err != nil {
		return "", err
	}
	if r.f.RuntimeStatus != "" {
		return r.f.RuntimeStatus, nil
	}
	return "RUNNING", nil
}

type fakeCDN struct{ f *Fake }

func (c fakeCDN) EnsureDistribution(ctx context.Context, name, originDomain string) (string, error) {
	if err := c.f.record("EnsureDistribution"); err != nil {
		return "", err
	}
	return "https://" + name + ".cdn.fake.example.com", nil
}

type fakeDatabase struct{ f *Fake }

func (d fakeDatabase) EnsureInstance(ctx context.Context, provision *domain.DatabaseProvision, networkID string) (string, int, error) {
	if err := d.f.record("EnsureDatabaseInstance"); err != nil {
		return "", 0, err
	}
	port := 3306
	if provision.Engine == domain.DatabaseEnginePostgres {
		port = 5432
	}
	return provision.ResourceName + ".db.fake.example.com", port, nil
}

type fakeIdentity struct{ f *Fake }

func (i fakeIdentity) EnsureTaskRoles(ctx context.Context, namePrefix string) (string, string, error) {
	if err := i.f.record("EnsureTaskRoles"); err != nil {
		return "", "", err
	}
	return "arn:role/" + namePrefix + "-exec", "arn:role/" + namePrefix + "-task", nil
}

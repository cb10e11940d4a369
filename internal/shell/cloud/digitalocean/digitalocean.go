// Package digitalocean implements the managed-runtime path on the
// DigitalOcean App Platform. The cluster path is not offered there; the
// deployer checks Supports before routing.
package digitalocean

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/digitalocean/godo"

	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/domain"
	"github.com/ClayDesk/codeflowops-saas-sub001/internal/shell/cloud"
)

// Provider implements cloud.Provider for DigitalOcean.
type Provider struct {
	client *godo.Client
	region string
	logger *slog.Logger
}

// NewProvider creates a DigitalOcean provider from an API token.
func NewProvider(token, region string, logger *slog.Logger) *Provider {
	return &Provider{
		client: godo.NewFromToken(token),
		region: region,
		logger: logger.With("provider", "digitalocean", "region", region),
	}
}

func (p *Provider) Name() string { return "digitalocean" }

func (p *Provider) Supports(method domain.DeploymentMethod) bool {
	return method == domain.MethodManagedRuntime
}

func (p *Provider) Registry() cloud.ImageRegistry    { return &registryService{p} }
func (p *Provider) Runtime() cloud.ManagedRuntime    { return &appService{p} }
func (p *Provider) Network() cloud.Network           { return unsupported{} }
func (p *Provider) LoadBalancer() cloud.LoadBalancer { return unsupported{} }
func (p *Provider) Cluster() cloud.ComputeCluster    { return unsupported{} }
func (p *Provider) CDN() cloud.CDN                   { return unsupported{} }
func (p *Provider) Database() cloud.ManagedDatabase  { return unsupported{} }
func (p *Provider) Identity() cloud.Identity         { return identityNoop{} }

// =============================================================================
// Registry (DOCR)
// =============================================================================

type registryService struct{ p *Provider }

func (s *registryService) EnsureRepository(ctx context.Context, name string) (string, error) {
	// DOCR repositories spring into existence on first push; only the
	// registry itself must exist.
	reg, _, err := s.p.client.Registry.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("get container registry: %w", err)
	}
	return fmt.Sprintf("registry.digitalocean.com/%s/%s", reg.Name, name), nil
}

func (s *registryService) AuthToken(ctx context.Context) (*cloud.RegistryAuth, error) {
	creds, _, err := s.p.client.Registry.DockerCredentials(ctx, &godo.RegistryDockerCredentialsRequest{
		ReadWrite: true,
	})
	if err != nil {
		return nil, fmt.Errorf("get registry credentials: %w", err)
	}

	var cfg struct {
		Auths map[string]struct {
			Auth string `json:"auth"`
		} `json:"auths"`
	}
	if err := json.Unmarshal(creds.DockerConfigJSON, &cfg); err != nil {
		return nil, fmt.Errorf("parse registry credentials: %w", err)
	}

	for endpoint, auth := range cfg.Auths {
		decoded, err := base64.StdEncoding.DecodeString(auth.Auth)
		if err != nil {
			return nil, fmt.Errorf("decode registry credentials: %w", err)
		}
		username, password, found := strings.Cut(string(decoded), ":")
		if !found {
			return nil, fmt.Errorf("registry credentials for %s have unexpected format", endpoint)
		}
		return &cloud.RegistryAuth{Username: username, Password: password, Endpoint: endpoint}, nil
	}
	return nil, fmt.Errorf("registry credentials contained no auth entries")
}

// =============================================================================
// Managed Runtime (App Platform)
// =============================================================================

type appService struct{ p *Provider }

func (s *appService) EnsureService(ctx context.Context, spec cloud.RuntimeServiceSpec) (*cloud.RuntimeService, error) {
	appSpec := s.buildSpec(spec)

	existing, err := s.findApp(ctx, spec.Name)
	if err != nil {
		return nil, err
	}

	var app *godo.App
	if existing != nil {
		app, _, err = s.p.client.Apps.Update(ctx, existing.ID, &godo.AppUpdateRequest{Spec: appSpec})
		if err != nil {
			return nil, fmt.Errorf("update app %s: %w", spec.Name, err)
		}
		s.p.logger.Info("app updated", "name", spec.Name, "app_id", app.ID)
	} else {
		app, _, err = s.p.client.Apps.Create(ctx, &godo.AppCreateRequest{Spec: appSpec})
		if err != nil {
			return nil, fmt.Errorf("create app %s: %w", spec.Name, err)
		}
		s.p.logger.Info("app created", "name", spec.Name, "app_id", app.ID)
	}

	return &cloud.RuntimeService{
		ARN:    app.ID,
		URL:    app.LiveURL,
		Status: "PROVISIONING",
	}, nil
}

func (s *appService) buildSpec(spec cloud.RuntimeServiceSpec) *godo.AppSpec {
	envs := make([]*godo.AppVariableDefinition, 0, len(spec.Env))
	for k, v := range spec.Env {
		envs = append(envs, &godo.AppVariableDefinition{Key: k, Value: v})
	}

	repository, tag := splitImageRef(spec.ImageRef)
	return &godo.AppSpec{
		Name:   spec.Name,
		Region: s.p.region,
		Services: []*godo.AppServiceSpec{{
			Name: spec.Name,
			Image: &godo.ImageSourceSpec{
				RegistryType: godo.ImageSourceSpecRegistryType_DOCR,
				Repository:   repository,
				Tag:          tag,
			},
			HTTPPort:         int64(spec.ContainerPort),
			InstanceSizeSlug: instanceSizeFor(spec.MemoryMB),
			InstanceCount:    1,
			Envs:             envs,
			HealthCheck: &godo.AppServiceSpecHealthCheck{
				HTTPPath: spec.HealthPath,
			},
		}},
	}
}

func (s *appService) findApp(ctx context.Context, name string) (*godo.App, error) {
	opt := &godo.ListOptions{PerPage: 200}
	for {
		apps, resp, err := s.p.client.Apps.List(ctx, opt)
		if err != nil {
			return nil, fmt.Errorf("list apps: %w", err)
		}
		for _, app := range apps {
			if app.Spec != nil && app.Spec.Name == name {
				return app, nil
			}
		}
		if resp.Links == nil || resp.Links.IsLastPage() {
			return nil, nil
		}
		page, err := resp.Links.CurrentPage()
		if err != nil {
			return nil, err
		}
		opt.Page = page + 1
	}
}

func (s *appService) ServiceStatus(ctx context.Context, id string) (string, error) {
	app, _, err := s.p.client.Apps.Get(ctx, id)
	if err != nil {
		return "", fmt.Errorf("get app %s: %w", id, err)
	}
	if app.ActiveDeployment != nil && app.ActiveDeployment.Phase == godo.DeploymentPhase_Active {
		return "RUNNING", nil
	}
	if app.InProgressDeployment != nil && app.InProgressDeployment.Phase == godo.DeploymentPhase_Error {
		return "FAILED", nil
	}
	return "PROVISIONING", nil
}

// splitImageRef separates "registry.digitalocean.com/reg/name:tag" into the
// DOCR repository name and tag.
func splitImageRef(ref string) (repository, tag string) {
	tag = "latest"
	if i := strings.LastIndex(ref, ":"); i > strings.LastIndex(ref, "/") {
		tag = ref[i+1:]
		ref = ref[:i]
	}
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		return ref[i+1:], tag
	}
	return ref, tag
}

// instanceSizeFor maps the provisioner's memory sizing onto App Platform
// instance slugs.
func instanceSizeFor(memoryMB int) string {
	switch {
	case memoryMB <= 512:
		return "basic-xxs"
	case memoryMB <= 1024:
		return "basic-xs"
	default:
		return "basic-s"
	}
}

// =============================================================================
// Unsupported Surfaces
// =============================================================================

// errUnsupported marks surfaces App Platform does not offer. The deployer's
// Supports check keeps these unreachable during normal routing.
var errUnsupported = fmt.Errorf("operation not supported on digitalocean app platform")

type unsupported struct{}

func (unsupported) EnsureNetwork(ctx context.Context, name string) (*cloud.NetworkInfo, error) {
	return nil, errUnsupported
}

func (unsupported) EnsureSecurityGroup(ctx context.Context, networkID, name string, port int) (string, error) {
	return "", errUnsupported
}

func (unsupported) EnsureLoadBalancer(ctx context.Context, name string, subnetIDs []string, securityGroupID string) (*cloud.LoadBalancerInfo, error) {
	return nil, errUnsupported
}

func (unsupported) EnsureTargetGroup(ctx context.Context, name, networkID string, port int, health domain.HealthCheckSpec) (string, error) {
	return "", errUnsupported
}

func (unsupported) EnsureListener(ctx context.Context, lbARN, targetGroupARN string) (string, error) {
	return "", errUnsupported
}

func (unsupported) TargetsHealthy(ctx context.Context, targetGroupARN string) (bool, error) {
	return false, errUnsupported
}

func (unsupported) EnsureCluster(ctx context.Context, name string) (string, error) {
	return "", errUnsupported
}

func (unsupported) RegisterTaskDefinition(ctx context.Context, spec cloud.TaskSpec) (string, error) {
	return "", errUnsupported
}

func (unsupported) EnsureService(ctx context.Context, spec cloud.ServiceSpec) (string, error) {
	return "", errUnsupported
}

func (unsupported) ServiceRunning(ctx context.Context, clusterARN, serviceARN string) (bool, error) {
	return false, errUnsupported
}

func (unsupported) EnsureDistribution(ctx context.Context, name, originDomain string) (string, error) {
	return "", errUnsupported
}

func (unsupported) EnsureInstance(ctx context.Context, provision *domain.DatabaseProvision, networkID string) (string, int, error) {
	return "", 0, errUnsupported
}

// identityNoop satisfies cloud.Identity; App Platform needs no task roles.
type identityNoop struct{}

func (identityNoop) EnsureTaskRoles(ctx context.Context, namePrefix string) (string, string, error) {
	return "", "", nil
}

package deploy

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	smithy "github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/domain"
	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/provision"
	"github.com/ClayDesk/codeflowops-saas-sub001/internal/shell/cloud"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func laravelDescriptor() *domain.RequirementsDescriptor {
	return &domain.RequirementsDescriptor{
		AppType:           domain.AppTypeLaravel,
		VersionConstraint: ">=8.1",
		Extensions:        []string{"mbstring", "pdo_mysql"},
		Database: domain.DatabaseRequirement{
			Engine:   domain.DatabaseEngineMySQL,
			Required: true,
		},
		HealthCheckPath: "/up",
		EntryPoint:      "public/index.php",
	}
}

func staticDescriptor() *domain.RequirementsDescriptor {
	return &domain.RequirementsDescriptor{
		AppType:         domain.AppTypeStatic,
		HealthCheckPath: "/",
	}
}

func testRequest(t *testing.T, descriptor *domain.RequirementsDescriptor) Request {
	t.Helper()
	infra, err := provision.Provision(descriptor, provision.Request{
		TenantID:    "tenant-1",
		ProjectName: "shop",
		Region:      "us-east-1",
	})
	require.NoError(t, err)

	return Request{
		TargetName: "cfo-shop-test",
		Descriptor: descriptor,
		Infra:      infra,
		ImageRef:   "registry.fake/shop:v1",
	}
}

func newTestDeployer(fake *cloud.Fake) *Deployer {
	return New(fake, testLogger()).WithHealthGate(3, time.Millisecond)
}

func TestDeployManagedRuntimePath(t *testing.T) {
	fake := cloud.NewFake()
	d := newTestDeployer(fake)

	result, err := d.Deploy(context.Background(), testRequest(t, laravelDescriptor()))
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.False(t, result.Degraded)
	assert.Equal(t, domain.MethodManagedRuntime, result.Method)
	assert.NotEmpty(t, result.LiveURL)
	assert.NotEmpty(t, result.ResourceIDs["runtime_service"])
	assert.NotEmpty(t, result.ResourceIDs["database"])

	// The managed path must not touch cluster infrastructure.
	assert.Zero(t, fake.CallCount("EnsureCluster"))
	assert.Zero(t, fake.CallCount("EnsureLoadBalancer"))
}

func TestDeployRejectsServerAppOnStaticPath(t *testing.T) {
	fake := cloud.NewFake()
	d := newTestDeployer(fake)

	req := testRequest(t, laravelDescriptor())
	req.StaticOnly = true

	result, err := d.Deploy(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStaticPathRejected)
	assert.Equal(t, domain.ErrKindConfigInvalid, result.ErrorKind)
	assert.False(t, result.Success)

	// Validation failure means zero cloud calls were issued.
	assert.Empty(t, fake.Calls)
}

func TestDeployStaticAppOnStaticPathAllowed(t *testing.T) {
	fake := cloud.NewFake()
	d := newTestDeployer(fake)

	req := testRequest(t, staticDescriptor())
	req.StaticOnly = true

	result, err := d.Deploy(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestDeployFallsBackToClusterOnQuota(t *testing.T) {
	fake := cloud.NewFake()
	fake.Errs["EnsureRuntimeService"] = &smithy.GenericAPIError{
		Code: "ServiceQuotaExceededException", Message: "too many services",
	}
	d := newTestDeployer(fake)

	result, err := d.Deploy(context.Background(), testRequest(t, laravelDescriptor()))
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, domain.MethodCluster, result.Method)
	assert.NotEmpty(t, result.ResourceIDs["load_balancer"])
	assert.NotEmpty(t, result.ResourceIDs["compute_service"])
	assert.Equal(t, 1, fake.CallCount("EnsureRuntimeService"))
	assert.Equal(t, 1, fake.CallCount("EnsureClusterService"))
}

func TestDeployDoesNotFallBackOnPermissionDenied(t *testing.T) {
	fake := cloud.NewFake()
	fake.Errs["EnsureRuntimeService"] = &smithy.GenericAPIError{
		Code: "AccessDeniedException", Message: "not allowed",
	}
	d := newTestDeployer(fake)

	result, err := d.Deploy(context.Background(), testRequest(t, laravelDescriptor()))
	require.Error(t, err)
	assert.Equal(t, domain.ErrKindPermissionDenied, result.ErrorKind)
	assert.Zero(t, fake.CallCount("EnsureCluster"))
}

func TestDeployHealthTimeoutCompletesDegraded(t *testing.T) {
	fake := cloud.NewFake()
	fake.RuntimeStatus = "OPERATION_IN_PROGRESS"
	d := newTestDeployer(fake)

	result, err := d.Deploy(context.Background(), testRequest(t, laravelDescriptor()))
	require.NoError(t, err)

	// Resources exist and the URL is returned; the outcome is degraded,
	// never failed, and polling stops at the bound.
	assert.True(t, result.Success)
	assert.True(t, result.Degraded)
	assert.Equal(t, domain.ErrKindHealthTimeout, result.ErrorKind)
	assert.NotEmpty(t, result.LiveURL)
	assert.NotEmpty(t, result.ResourceIDs["runtime_service"])
	assert.Equal(t, 3, fake.CallCount("RuntimeServiceStatus"))
}

func TestDeployClusterHealthGatePolls(t *testing.T) {
	fake := cloud.NewFake()
	fake.SupportedMethods = []domain.DeploymentMethod{domain.MethodCluster}
	fake.HealthyAfter = 2
	d := newTestDeployer(fake)

	result, err := d.Deploy(context.Background(), testRequest(t, laravelDescriptor()))
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.False(t, result.Degraded)
	assert.Equal(t, 3, fake.CallCount("TargetsHealthy"))
}

func TestDeployStrategyOrderPrefersManagedRuntime(t *testing.T) {
	d := newTestDeployer(cloud.NewFake())

	strategies := d.strategiesFor(testRequest(t, laravelDescriptor()))
	require.Len(t, strategies, 2)
	assert.Equal(t, domain.MethodManagedRuntime, strategies[0].method())
	assert.Equal(t, domain.MethodCluster, strategies[1].method())
}

func TestDeployClusterHealthRequiresServiceRunning(t *testing.T) {
	fake := cloud.NewFake()
	fake.SupportedMethods = []domain.DeploymentMethod{domain.MethodCluster}
	fake.ClusterServiceDown = true
	d := newTestDeployer(fake)

	result, err := d.Deploy(context.Background(), testRequest(t, laravelDescriptor()))
	require.NoError(t, err)

	// Healthy targets alone are not enough; the service must also reach its
	// desired task count, so the gate exhausts and completes degraded.
	assert.True(t, result.Success)
	assert.True(t, result.Degraded)
	assert.Equal(t, domain.ErrKindHealthTimeout, result.ErrorKind)
	assert.Equal(t, 3, fake.CallCount("ClusterServiceRunning"))
	assert.Zero(t, fake.CallCount("TargetsHealthy"))
}

func TestDeployCDNFailureDegradesToDirectURL(t *testing.T) {
	fake := cloud.NewFake()
	fake.SupportedMethods = []domain.DeploymentMethod{domain.MethodCluster}
	fake.Errs["EnsureDistribution"] = &smithy.GenericAPIError{
		Code: "TooManyDistributions", Message: "limit reached",
	}
	d := newTestDeployer(fake)

	result, err := d.Deploy(context.Background(), testRequest(t, laravelDescriptor()))
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Contains(t, result.LiveURL, ".lb.fake.example.com")
	assert.NotContains(t, result.LiveURL, "cdn")
}

func TestDeployEnsureStepsAreIdempotent(t *testing.T) {
	fake := cloud.NewFake()
	fake.SupportedMethods = []domain.DeploymentMethod{domain.MethodCluster}
	d := newTestDeployer(fake)

	req := testRequest(t, laravelDescriptor())

	first, err := d.Deploy(context.Background(), req)
	require.NoError(t, err)

	second, err := d.Deploy(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.ResourceIDs["cluster"], second.ResourceIDs["cluster"])
	assert.Equal(t, first.ResourceIDs["network"], second.ResourceIDs["network"])
	assert.Equal(t, first.ResourceIDs["compute_service"], second.ResourceIDs["compute_service"])
}

func TestDeployResolvesDatabaseEndpointIntoEnv(t *testing.T) {
	fake := cloud.NewFake()
	d := newTestDeployer(fake)

	req := testRequest(t, laravelDescriptor())
	_, err := d.Deploy(context.Background(), req)
	require.NoError(t, err)

	require.NotNil(t, req.Infra.Database)
	assert.Contains(t, req.Infra.Database.Host, ".db.fake.example.com")
	assert.Equal(t, 3306, req.Infra.Database.Port)

	env := resolvedEnv(req.Infra)
	assert.Equal(t, req.Infra.Database.Host, env["DB_HOST"])
	assert.Equal(t, "3306", env["DB_PORT"])
	assert.Equal(t, req.Infra.Database.Credentials.Password, env["DB_PASSWORD"])
}

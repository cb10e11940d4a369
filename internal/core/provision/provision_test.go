package provision

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/domain"
)

func laravelDescriptor() *domain.RequirementsDescriptor {
	return &domain.RequirementsDescriptor{
		AppType:           domain.AppTypeLaravel,
		VersionConstraint: "^8.2",
		Extensions:        []string{"gd", "mbstring", "pdo_mysql"},
		Database: domain.DatabaseRequirement{
			Engine:          domain.DatabaseEngineMySQL,
			Required:        true,
			NeedsMigrations: true,
		},
		BuildProcess:    domain.BuildProcessComposer,
		HealthCheckPath: "/up",
		EntryPoint:      "public/index.php",
	}
}

func TestProvisionLaravel(t *testing.T) {
	req := Request{TenantID: "tenant-1", ProjectName: "My Shop", Region: "us-east-1"}

	cfg, err := Provision(laravelDescriptor(), req)
	require.NoError(t, err)

	suffix := TargetSuffix("tenant-1", "My Shop")
	base := "cfo-my-shop-" + suffix

	assert.Equal(t, "My Shop", cfg.ProjectName)
	assert.Equal(t, "us-east-1", cfg.Region)
	assert.Equal(t, domain.ComputeSizing{CPUUnits: 512, MemoryMB: 1024}, cfg.Sizing)
	assert.Equal(t, base+"-net", cfg.NetworkRef)
	assert.Equal(t, base+"-logs", cfg.MonitoringRef)
	assert.Equal(t, 8080, cfg.ContainerPort)
	assert.Equal(t, "/up", cfg.HealthCheck.Path)

	require.NotNil(t, cfg.Database)
	assert.Equal(t, domain.DatabaseEngineMySQL, cfg.Database.Engine)
	assert.Equal(t, "8.0", cfg.Database.EngineVersion)
	assert.Equal(t, "db.t3.micro", cfg.Database.InstanceClass)
	assert.Equal(t, base+"-db", cfg.Database.ResourceName)
	assert.Equal(t, "my_shop", cfg.Database.DatabaseName)
	assert.Equal(t, "app_"+suffix, cfg.Database.Credentials.Username)
	assert.Len(t, cfg.Database.Credentials.Password, PasswordLength)
}

func TestProvisionBindsDatabaseEnvByReference(t *testing.T) {
	cfg, err := Provision(laravelDescriptor(), Request{TenantID: "t", ProjectName: "shop", Region: "us-east-1"})
	require.NoError(t, err)

	assert.Equal(t, "mysql", cfg.Env["DB_CONNECTION"])
	assert.Equal(t, cfg.Database.DatabaseName, cfg.Env["DB_DATABASE"])
	assert.Equal(t, cfg.Database.Credentials.Username, cfg.Env["DB_USERNAME"])
	// Host, port and password are placeholders until rollout; the password
	// never appears inline.
	assert.Equal(t, EnvRefDatabaseHost, cfg.Env["DB_HOST"])
	assert.Equal(t, EnvRefDatabasePort, cfg.Env["DB_PORT"])
	assert.Equal(t, EnvRefDatabasePassword, cfg.Env["DB_PASSWORD"])
	assert.NotContains(t, cfg.Env["DB_PASSWORD"], cfg.Database.Credentials.Password)
}

func TestProvisionWordPressEnv(t *testing.T) {
	descriptor := &domain.RequirementsDescriptor{
		AppType:  domain.AppTypeWordPress,
		Database: domain.DatabaseRequirement{Engine: domain.DatabaseEngineMySQL, Required: true},
	}

	cfg, err := Provision(descriptor, Request{TenantID: "t", ProjectName: "blog", Region: "us-east-1"})
	require.NoError(t, err)

	assert.Equal(t, EnvRefDatabaseHost, cfg.Env["WORDPRESS_DB_HOST"])
	assert.Equal(t, cfg.Database.DatabaseName, cfg.Env["WORDPRESS_DB_NAME"])
	assert.Equal(t, EnvRefDatabasePassword, cfg.Env["WORDPRESS_DB_PASSWORD"])
}

func TestProvisionWithoutDatabase(t *testing.T) {
	descriptor := &domain.RequirementsDescriptor{AppType: domain.AppTypeStatic}

	cfg, err := Provision(descriptor, Request{TenantID: "t", ProjectName: "site", Region: "us-east-1"})
	require.NoError(t, err)

	assert.Nil(t, cfg.Database)
	assert.NotContains(t, cfg.Env, "DB_HOST")
	assert.Equal(t, "/", cfg.HealthCheck.Path)
	assert.Equal(t, domain.ComputeSizing{CPUUnits: 256, MemoryMB: 512}, cfg.Sizing)
}

func TestProvisionSizingOverride(t *testing.T) {
	override := &domain.ComputeSizing{CPUUnits: 1024, MemoryMB: 2048}

	cfg, err := Provision(laravelDescriptor(), Request{
		TenantID: "t", ProjectName: "shop", Region: "us-east-1", SizingOverride: override,
	})
	require.NoError(t, err)
	assert.Equal(t, *override, cfg.Sizing)
}

func TestProvisionReusesExistingDatabaseCredentials(t *testing.T) {
	req := Request{TenantID: "t", ProjectName: "shop", Region: "us-east-1"}

	first, err := Provision(laravelDescriptor(), req)
	require.NoError(t, err)

	req.ExistingDatabase = first.Database
	second, err := Provision(laravelDescriptor(), req)
	require.NoError(t, err)

	assert.Equal(t, first.Database.Credentials, second.Database.Credentials)

	// Without the persisted provision a fresh password is generated.
	req.ExistingDatabase = nil
	third, err := Provision(laravelDescriptor(), req)
	require.NoError(t, err)
	assert.NotEqual(t, first.Database.Credentials.Password, third.Database.Credentials.Password)
}

func TestProvisionIsDeterministicExceptCredentials(t *testing.T) {
	req := Request{TenantID: "t", ProjectName: "shop", Region: "us-east-1"}

	a, err := Provision(laravelDescriptor(), req)
	require.NoError(t, err)
	b, err := Provision(laravelDescriptor(), req)
	require.NoError(t, err)

	assert.Equal(t, a.NetworkRef, b.NetworkRef)
	assert.Equal(t, a.Database.ResourceName, b.Database.ResourceName)
	assert.Equal(t, a.Database.Credentials.Username, b.Database.Credentials.Username)
	assert.NotEqual(t, a.Database.Credentials.Password, b.Database.Credentials.Password)
}

func TestResolveEnv(t *testing.T) {
	cfg, err := Provision(laravelDescriptor(), Request{TenantID: "t", ProjectName: "shop", Region: "us-east-1"})
	require.NoError(t, err)

	cfg.Database.Host = "db.internal.example.com"
	cfg.Database.Port = 3306

	resolved := ResolveEnv(cfg)

	assert.Equal(t, "db.internal.example.com", resolved["DB_HOST"])
	assert.Equal(t, "3306", resolved["DB_PORT"])
	assert.Equal(t, cfg.Database.Credentials.Password, resolved["DB_PASSWORD"])
	// The config itself keeps the placeholders.
	assert.Equal(t, EnvRefDatabasePassword, cfg.Env["DB_PASSWORD"])
}

func TestSizingFor(t *testing.T) {
	assert.Equal(t, domain.ComputeSizing{CPUUnits: 512, MemoryMB: 1024}, SizingFor(domain.AppTypeWordPress))
	assert.Equal(t, domain.ComputeSizing{CPUUnits: 256, MemoryMB: 512}, SizingFor(domain.AppTypeStatic))
	assert.Equal(t, DefaultSizing(), SizingFor(domain.AppType("unknown")))
}

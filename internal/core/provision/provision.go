// Package provision computes declarative infrastructure configuration from a
// requirements descriptor. It makes no cloud calls; the deployer realizes
// the configuration it produces.
//
// Provisioning the same target twice yields structurally equal configs
// except for the generated database credentials, which are created exactly
// once per target and then persisted by the caller.
package provision

import (
	"fmt"

	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/buildspec"
	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/domain"
)

// =============================================================================
// Request
// =============================================================================

// Request carries the provisioning inputs beyond the descriptor itself.
type Request struct {
	TenantID    string
	ProjectName string
	Region      string

	// SizingOverride takes precedence over the per-app-type table when set.
	SizingOverride *domain.ComputeSizing

	// ExistingDatabase carries the persisted database provision from a
	// previous run of the same target. Its credentials are reused so that
	// re-provisioning never rotates the password behind the app's back.
	ExistingDatabase *domain.DatabaseProvision
}

// =============================================================================
// Provision
// =============================================================================

// Provision computes the declarative infrastructure config for a descriptor.
func Provision(descriptor *domain.RequirementsDescriptor, req Request) (*domain.InfrastructureConfig, error) {
	sizing := SizingFor(descriptor.AppType)
	if req.SizingOverride != nil {
		sizing = *req.SizingOverride
	}

	suffix := TargetSuffix(req.TenantID, req.ProjectName)

	cfg := &domain.InfrastructureConfig{
		ProjectName:   req.ProjectName,
		Region:        req.Region,
		Sizing:        sizing,
		Autoscaling:   defaultAutoscaling,
		NetworkRef:    ResourceName(req.ProjectName, suffix) + "-net",
		MonitoringRef: ResourceName(req.ProjectName, suffix) + "-logs",
		ContainerPort: buildspec.ContainerPort,
		HealthCheck: domain.HealthCheckSpec{
			Path:     descriptor.HealthCheckPath,
			Port:     buildspec.ContainerPort,
			Interval: 30,
			Timeout:  5,
		},
		Env: map[string]string{
			"APP_ENV": "production",
		},
	}
	if cfg.HealthCheck.Path == "" {
		cfg.HealthCheck.Path = "/"
	}

	if descriptor.Database.Required {
		db, err := provisionDatabase(descriptor, req, suffix)
		if err != nil {
			return nil, err
		}
		cfg.Database = db
		bindDatabaseEnv(cfg, descriptor)
	}

	return cfg, nil
}

// provisionDatabase selects engine, class and name, and generates
// credentials once per target.
func provisionDatabase(descriptor *domain.RequirementsDescriptor, req Request, suffix string) (*domain.DatabaseProvision, error) {
	if req.ExistingDatabase != nil {
		db := *req.ExistingDatabase
		return &db, nil
	}

	engine := descriptor.Database.Engine
	if engine == domain.DatabaseEngineNone {
		engine = domain.DatabaseEngineMySQL
	}

	password, err := GeneratePassword()
	if err != nil {
		return nil, domain.NewPipelineError(domain.ErrKindProvisionCompute, "provision_database", err)
	}

	return &domain.DatabaseProvision{
		Engine:        engine,
		EngineVersion: engineVersionByEngine[engine],
		InstanceClass: instanceClassByEngine[engine],
		ResourceName:  ResourceName(req.ProjectName, suffix) + "-db",
		DatabaseName:  DatabaseName(req.ProjectName),
		Credentials: domain.DatabaseCredentials{
			Username: "app_" + suffix,
			Password: password,
		},
	}, nil
}

// =============================================================================
// Environment Bindings
// =============================================================================

// bindDatabaseEnv builds the environment-variable binding set using the
// target runtime's conventional names. Host and port are bound by reference
// placeholders the deployer resolves once the instance endpoint exists.
func bindDatabaseEnv(cfg *domain.InfrastructureConfig, descriptor *domain.RequirementsDescriptor) {
	db := cfg.Database

	cfg.Env["DB_CONNECTION"] = string(db.Engine)
	cfg.Env["DB_HOST"] = EnvRefDatabaseHost
	cfg.Env["DB_PORT"] = EnvRefDatabasePort
	cfg.Env["DB_DATABASE"] = db.DatabaseName
	cfg.Env["DB_USERNAME"] = db.Credentials.Username
	cfg.Env["DB_PASSWORD"] = EnvRefDatabasePassword

	if descriptor.AppType == domain.AppTypeWordPress {
		cfg.Env["WORDPRESS_DB_HOST"] = EnvRefDatabaseHost
		cfg.Env["WORDPRESS_DB_NAME"] = db.DatabaseName
		cfg.Env["WORDPRESS_DB_USER"] = db.Credentials.Username
		cfg.Env["WORDPRESS_DB_PASSWORD"] = EnvRefDatabasePassword
	}
}

// Env reference placeholders. The deployer substitutes real values at
// rollout time; the password is referenced, not inlined, so that configs and
// logs never carry it in cleartext.
const (
	EnvRefDatabaseHost     = "${database.host}"
	EnvRefDatabasePort     = "${database.port}"
	EnvRefDatabasePassword = "${database.password}"
)

// ResolveEnv substitutes the database placeholders with concrete values.
// Called by the deployer immediately before handing env to the compute
// service.
func ResolveEnv(cfg *domain.InfrastructureConfig) map[string]string {
	resolved := make(map[string]string, len(cfg.Env))
	for k, v := range cfg.Env {
		if cfg.Database != nil {
			switch v {
			case EnvRefDatabaseHost:
				v = cfg.Database.Host
			case EnvRefDatabasePort:
				v = fmt.Sprintf("%d", cfg.Database.Port)
			case EnvRefDatabasePassword:
				v = cfg.Database.Credentials.Password
			}
		}
		resolved[k] = v
	}
	return resolved
}

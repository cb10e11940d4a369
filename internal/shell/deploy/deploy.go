// Package deploy realizes a declarative infrastructure config against a
// cloud provider: idempotent ensure steps, an ordered strategy list with
// fallback, and a bounded health gate.
package deploy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/domain"
	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/provision"
	"github.com/ClayDesk/codeflowops-saas-sub001/internal/shell/cloud"
)

// =============================================================================
// Configuration
// =============================================================================

const (
	// DefaultHealthAttempts bounds the health gate. Exceeding it yields a
	// degraded completion, never a failure.
	DefaultHealthAttempts = 20

	// DefaultHealthInterval is the wait between health polls.
	DefaultHealthInterval = 15 * time.Second
)

// Request carries one rollout's inputs.
type Request struct {
	// TargetName is the deterministic resource name prefix for this target.
	TargetName string

	Descriptor *domain.RequirementsDescriptor
	Infra      *domain.InfrastructureConfig

	// ImageRef is the pushed application image.
	ImageRef string

	// StaticOnly routes the target at a static-content-only path. A
	// descriptor that needs a server process is rejected up front.
	StaticOnly bool
}

// Deployer executes rollouts against one provider.
type Deployer struct {
	provider cloud.Provider
	logger   *slog.Logger

	healthAttempts int
	healthInterval time.Duration
}

// New creates a deployer for a provider.
func New(provider cloud.Provider, logger *slog.Logger) *Deployer {
	return &Deployer{
		provider:       provider,
		logger:         logger.With("component", "deployer"),
		healthAttempts: DefaultHealthAttempts,
		healthInterval: DefaultHealthInterval,
	}
}

// WithHealthGate overrides the health gate bounds. Used by tests and by
// configs that tune propagation waits.
func (d *Deployer) WithHealthGate(attempts int, interval time.Duration) *Deployer {
	if attempts > 0 {
		d.healthAttempts = attempts
	}
	if interval > 0 {
		d.healthInterval = interval
	}
	return d
}

// =============================================================================
// Rollout
// =============================================================================

// Deploy runs the rollout state machine: select method, ensure shared
// resources, then attempt each eligible strategy in order. A strategy failure
// of the quota or deploy-failure class falls through to the next strategy;
// anything else surfaces immediately.
func (d *Deployer) Deploy(ctx context.Context, req Request) (*domain.DeployResult, error) {
	result := &domain.DeployResult{}

	// Validation runs before any cloud call.
	if err := d.validate(req); err != nil {
		result.ErrorKind = domain.KindOf(err)
		return result, err
	}

	if req.Infra.Database != nil {
		if err := d.ensureDatabase(ctx, req, result); err != nil {
			result.ErrorKind = domain.KindOf(err)
			return result, err
		}
	}

	strategies := d.strategiesFor(req)
	if len(strategies) == 0 {
		err := domain.NewPipelineError(domain.ErrKindConfigInvalid, "select_method",
			fmt.Errorf("provider %s supports no deployment method for this target", d.provider.Name()))
		result.ErrorKind = err.Kind
		return result, err
	}

	var lastErr error
	for i, s := range strategies {
		if lastErr != nil {
			reason := domain.KindOf(lastErr)
			d.logger.Warn("falling back to next deployment path",
				"from", strategies[i-1].name(), "to", s.name(), "reason", reason)
			result.Log(fmt.Sprintf("falling back from %s to %s: %s", strategies[i-1].name(), s.name(), reason))
		}

		err := s.attempt(ctx, req, result)
		if err == nil {
			result.Method = s.method()
			return d.finalize(ctx, s, req, result)
		}

		kind := domain.KindOf(err)
		result.Log(fmt.Sprintf("%s attempt failed: %s", s.name(), kind))
		if kind != domain.ErrKindQuotaExceeded && kind != domain.ErrKindDeployFailure {
			result.ErrorKind = kind
			return result, err
		}
		lastErr = err
	}

	result.ErrorKind = domain.KindOf(lastErr)
	return result, lastErr
}

func (d *Deployer) validate(req Request) error {
	if req.Descriptor == nil || req.Infra == nil {
		return domain.NewPipelineError(domain.ErrKindConfigInvalid, "select_method",
			fmt.Errorf("rollout request is missing descriptor or infrastructure config"))
	}
	if req.StaticOnly && req.Descriptor.AppType.RequiresServerProcess() {
		return domain.NewPipelineError(domain.ErrKindConfigInvalid, "select_method",
			fmt.Errorf("%w: %s requires a server process", domain.ErrStaticPathRejected, req.Descriptor.AppType)).
			WithHint("deploy this application on a runtime-backed path, or choose a static site source")
	}
	return nil
}

// strategiesFor orders the eligible strategies: managed runtime first, the
// cluster path as fallback.
func (d *Deployer) strategiesFor(req Request) []strategy {
	var out []strategy
	if d.provider.Supports(domain.MethodManagedRuntime) {
		out = append(out, &managedRuntimeStrategy{d: d})
	}
	if d.provider.Supports(domain.MethodCluster) {
		out = append(out, &clusterStrategy{d: d})
	}
	return out
}

// ensureDatabase creates the database instance before any compute exists and
// fills the endpoint into the config. The password travels inside the
// provision value and is never logged.
func (d *Deployer) ensureDatabase(ctx context.Context, req Request, result *domain.DeployResult) error {
	db := req.Infra.Database

	host, port, err := d.provider.Database().EnsureInstance(ctx, db, req.Infra.NetworkRef)
	if err != nil {
		return domain.NewPipelineError(cloudKind(err), "ensure_database", err)
	}
	db.Host = host
	db.Port = port

	result.AddResource("database", db.ResourceName)
	result.Log(fmt.Sprintf("database %s ready at %s", db.ResourceName, host))
	d.logger.Info("database ensured", "resource", db.ResourceName, "engine", db.Engine)
	return nil
}

// finalize runs the health gate. A timeout is explicitly non-fatal: the
// result completes degraded with resources and URL populated.
func (d *Deployer) finalize(ctx context.Context, s strategy, req Request, result *domain.DeployResult) (*domain.DeployResult, error) {
	healthy, err := d.waitHealthy(ctx, s, req)
	if err != nil {
		result.ErrorKind = domain.KindOf(err)
		return result, err
	}

	result.Success = true
	if !healthy {
		result.Degraded = true
		result.ErrorKind = domain.ErrKindHealthTimeout
		result.Log("health not confirmed within the gate bound; completing degraded")
		d.logger.Warn("health gate timed out, completing degraded",
			"target", req.TargetName, "url", result.LiveURL)
		return result, nil
	}

	result.Log("deployment healthy at " + result.LiveURL)
	d.logger.Info("deployment healthy", "target", req.TargetName, "url", result.LiveURL)
	return result, nil
}

// waitHealthy polls the strategy's health probe on a fixed interval with a
// bounded attempt count. false with nil error means the bound was exhausted.
func (d *Deployer) waitHealthy(ctx context.Context, s strategy, req Request) (bool, error) {
	for attempt := 1; attempt <= d.healthAttempts; attempt++ {
		healthy, err := s.healthy(ctx, req)
		if err != nil {
			// Probe errors are transient during propagation; keep polling.
			d.logger.Debug("health probe errored", "attempt", attempt, "error", err)
		} else if healthy {
			return true, nil
		}

		if attempt == d.healthAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(d.healthInterval):
		}
	}
	return false, nil
}

// cloudKind classifies a provider error, defaulting to deploy failure.
func cloudKind(err error) domain.ErrorKind {
	return cloud.Classify(err)
}

// resolvedEnv returns the config's env with database placeholders filled in.
func resolvedEnv(infra *domain.InfrastructureConfig) map[string]string {
	return provision.ResolveEnv(infra)
}

package deploy

import (
	"context"
	"fmt"

	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/domain"
)

// strategy is one deployment path. attempt creates all resources and fills
// the result; healthy probes the path's rollout state for the health gate.
type strategy interface {
	name() string
	method() domain.DeploymentMethod
	attempt(ctx context.Context, req Request, result *domain.DeployResult) error
	healthy(ctx context.Context, req Request) (bool, error)
}

// Well-known identity names used when the caller may not manage identities.
// Downstream creation then fails attributably instead of masking the cause.
const (
	fallbackExecRole = "codeflowops-exec"
	fallbackTaskRole = "codeflowops-task"
)

// =============================================================================
// Path A: Managed Runtime
// =============================================================================

type managedRuntimeStrategy struct {
	d *Deployer

	serviceARN string
}

func (s *managedRuntimeStrategy) name() string { return "managed_runtime" }

func (s *managedRuntimeStrategy) method() domain.DeploymentMethod {
	return domain.MethodManagedRuntime
}

func (s *managedRuntimeStrategy) attempt(ctx context.Context, req Request, result *domain.DeployResult) error {
	execRole, _, err := s.d.ensureIdentities(ctx, req, result)
	if err != nil {
		return err
	}

	svc, err := s.d.provider.Runtime().EnsureService(ctx, cloudRuntimeSpec(req, execRole))
	if err != nil {
		return domain.NewPipelineError(cloudKind(err), "ensure_managed_runtime_service", err)
	}

	s.serviceARN = svc.ARN
	result.AddResource("runtime_service", svc.ARN)
	result.LiveURL = svc.URL
	result.Log("managed runtime service ensured: " + svc.ARN)
	return nil
}

func (s *managedRuntimeStrategy) healthy(ctx context.Context, req Request) (bool, error) {
	status, err := s.d.provider.Runtime().ServiceStatus(ctx, s.serviceARN)
	if err != nil {
		return false, err
	}
	return status == "RUNNING", nil
}

// =============================================================================
// Path B: Cluster Behind a Load Balancer
// =============================================================================

type clusterStrategy struct {
	d *Deployer

	targetGroupARN string
	clusterARN     string
	serviceARN     string
}

func (s *clusterStrategy) name() string { return "cluster" }

func (s *clusterStrategy) method() domain.DeploymentMethod { return domain.MethodCluster }

// attempt builds the path in dependency order: network, security policy,
// load balancer, target group, listener, cluster, task, service. Every step
// is describe-or-create keyed by a deterministic name.
func (s *clusterStrategy) attempt(ctx context.Context, req Request, result *domain.DeployResult) error {
	infra := req.Infra
	port := infra.ContainerPort

	net, err := s.d.provider.Network().EnsureNetwork(ctx, infra.NetworkRef)
	if err != nil {
		return domain.NewPipelineError(cloudKind(err), "ensure_network", err)
	}
	result.AddResource("network", net.NetworkID)

	sgID, err := s.d.provider.Network().EnsureSecurityGroup(ctx, net.NetworkID, req.TargetName+"-sg", port)
	if err != nil {
		return domain.NewPipelineError(cloudKind(err), "ensure_security_group", err)
	}
	result.AddResource("security_group", sgID)

	lb, err := s.d.provider.LoadBalancer().EnsureLoadBalancer(ctx, req.TargetName+"-lb", net.SubnetIDs, sgID)
	if err != nil {
		return domain.NewPipelineError(cloudKind(err), "ensure_load_balancer", err)
	}
	result.AddResource("load_balancer", lb.ARN)

	tgARN, err := s.d.provider.LoadBalancer().EnsureTargetGroup(ctx, req.TargetName+"-tg", net.NetworkID, port, infra.HealthCheck)
	if err != nil {
		return domain.NewPipelineError(cloudKind(err), "ensure_target_group", err)
	}
	s.targetGroupARN = tgARN
	result.AddResource("target_group", tgARN)

	listenerARN, err := s.d.provider.LoadBalancer().EnsureListener(ctx, lb.ARN, tgARN)
	if err != nil {
		return domain.NewPipelineError(cloudKind(err), "ensure_listener", err)
	}
	result.AddResource("listener", listenerARN)

	clusterARN, err := s.d.provider.Cluster().EnsureCluster(ctx, req.TargetName+"-cluster")
	if err != nil {
		return domain.NewPipelineError(cloudKind(err), "ensure_cluster", err)
	}
	s.clusterARN = clusterARN
	result.AddResource("cluster", clusterARN)

	execRole, taskRole, err := s.d.ensureIdentities(ctx, req, result)
	if err != nil {
		return err
	}

	taskDefARN, err := s.d.provider.Cluster().RegisterTaskDefinition(ctx, cloudTaskSpec(req, execRole, taskRole))
	if err != nil {
		return domain.NewPipelineError(cloudKind(err), "register_task_definition", err)
	}
	result.AddResource("task_definition", taskDefARN)

	serviceARN, err := s.d.provider.Cluster().EnsureService(ctx, cloudServiceSpec(req, clusterARN, taskDefARN, net.SubnetIDs, sgID, tgARN))
	if err != nil {
		return domain.NewPipelineError(cloudKind(err), "ensure_compute_service", err)
	}
	s.serviceARN = serviceARN
	result.AddResource("compute_service", serviceARN)

	result.LiveURL = "http://" + lb.DNSName
	result.Log("cluster service ensured: " + serviceARN)

	// A failed CDN attachment degrades to the load balancer's direct URL.
	cdnURL, err := s.d.provider.CDN().EnsureDistribution(ctx, req.TargetName, lb.DNSName)
	if err != nil {
		s.d.logger.Warn("CDN attachment failed, degrading to direct load balancer URL",
			"target", req.TargetName, "error", err)
		result.Log(fmt.Sprintf("cdn attachment failed (%s); serving via load balancer directly", cloudKind(err)))
	} else {
		result.AddResource("cdn_distribution", cdnURL)
		result.LiveURL = cdnURL
	}

	return nil
}

// healthy requires both conjuncts: the compute service runs its desired task
// count and the load balancer reports the targets healthy.
func (s *clusterStrategy) healthy(ctx context.Context, req Request) (bool, error) {
	running, err := s.d.provider.Cluster().ServiceRunning(ctx, s.clusterARN, s.serviceARN)
	if err != nil || !running {
		return false, err
	}
	return s.d.provider.LoadBalancer().TargetsHealthy(ctx, s.targetGroupARN)
}

// =============================================================================
// Shared Steps
// =============================================================================

// ensureIdentities creates the execution and task identities. A caller that
// may not manage identities falls back to the well-known names; downstream
// creation then surfaces an attributable permission error if they are absent.
func (d *Deployer) ensureIdentities(ctx context.Context, req Request, result *domain.DeployResult) (string, string, error) {
	execRole, taskRole, err := d.provider.Identity().EnsureTaskRoles(ctx, req.TargetName)
	if err == nil {
		result.AddResource("exec_role", execRole)
		result.AddResource("task_role", taskRole)
		return execRole, taskRole, nil
	}

	if cloudKind(err) == domain.ErrKindPermissionDenied {
		d.logger.Warn("caller may not manage identities, using well-known role names",
			"target", req.TargetName)
		result.Log("identity creation denied; falling back to well-known role names")
		return fallbackExecRole, fallbackTaskRole, nil
	}
	return "", "", domain.NewPipelineError(cloudKind(err), "ensure_identities", err).
		WithHint("grant identity-creation permission, or pre-create the execution and task roles")
}

package deploy

import (
	"github.com/ClayDesk/codeflowops-saas-sub001/internal/shell/cloud"
)

// Spec constructors translate the declarative infrastructure config into the
// provider-neutral call shapes. Env placeholders are resolved here, at the
// last moment before the values leave the process.

func cloudRuntimeSpec(req Request, execRole string) cloud.RuntimeServiceSpec {
	return cloud.RuntimeServiceSpec{
		Name:          req.TargetName,
		ImageRef:      req.ImageRef,
		ContainerPort: req.Infra.ContainerPort,
		CPUUnits:      req.Infra.Sizing.CPUUnits,
		MemoryMB:      req.Infra.Sizing.MemoryMB,
		Env:           resolvedEnv(req.Infra),
		HealthPath:    req.Infra.HealthCheck.Path,
		AccessRoleARN: execRole,
	}
}

func cloudTaskSpec(req Request, execRole, taskRole string) cloud.TaskSpec {
	return cloud.TaskSpec{
		Family:        req.TargetName,
		ImageRef:      req.ImageRef,
		ContainerPort: req.Infra.ContainerPort,
		CPUUnits:      req.Infra.Sizing.CPUUnits,
		MemoryMB:      req.Infra.Sizing.MemoryMB,
		Env:           resolvedEnv(req.Infra),
		ExecRoleARN:   execRole,
		TaskRoleARN:   taskRole,
		LogGroup:      req.Infra.MonitoringRef,
		Region:        req.Infra.Region,
	}
}

func cloudServiceSpec(req Request, clusterARN, taskDefARN string, subnetIDs []string, sgID, tgARN string) cloud.ServiceSpec {
	return cloud.ServiceSpec{
		ClusterARN:      clusterARN,
		Name:            req.TargetName + "-svc",
		TaskDefARN:      taskDefARN,
		DesiredCount:    req.Infra.Autoscaling.MinReplicas,
		SubnetIDs:       subnetIDs,
		SecurityGroupID: sgID,
		TargetGroupARN:  tgARN,
		ContainerName:   req.TargetName,
		ContainerPort:   req.Infra.ContainerPort,
	}
}

package aws

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	ecstypes "github.com/aws/aws-sdk-go-v2/service/ecs/types"

	"github.com/ClayDesk/codeflowops-saas-sub001/internal/shell/cloud"
)

// clusterService implements cloud.ComputeCluster on ECS Fargate.
type clusterService struct{ p *Provider }

func (s *clusterService) EnsureCluster(ctx context.Context, name string) (string, error) {
	existing, err := s.p.ecs.DescribeClusters(ctx, &ecs.DescribeClustersInput{
		Clusters: []string{name},
	})
	if err != nil {
		return "", fmt.Errorf("describe cluster %s: %w", name, err)
	}
	for _, c := range existing.Clusters {
		if awssdk.ToString(c.Status) == "ACTIVE" {
			return awssdk.ToString(c.ClusterArn), nil
		}
	}

	out, err := s.p.ecs.CreateCluster(ctx, &ecs.CreateClusterInput{
		ClusterName: awssdk.String(name),
		Tags: []ecstypes.Tag{
			{Key: awssdk.String("ManagedBy"), Value: awssdk.String(managedTag)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("create cluster %s: %w", name, err)
	}

	s.p.logger.Info("ECS cluster created", "name", name)
	return awssdk.ToString(out.Cluster.ClusterArn), nil
}

func (s *clusterService) RegisterTaskDefinition(ctx context.Context, spec cloud.TaskSpec) (string, error) {
	env := make([]ecstypes.KeyValuePair, 0, len(spec.Env))
	keys := make([]string, 0, len(spec.Env))
	for k := range spec.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, ecstypes.KeyValuePair{
			Name:  awssdk.String(k),
			Value: awssdk.String(spec.Env[k]),
		})
	}

	out, err := s.p.ecs.RegisterTaskDefinition(ctx, &ecs.RegisterTaskDefinitionInput{
		Family:                  awssdk.String(spec.Family),
		RequiresCompatibilities: []ecstypes.Compatibility{ecstypes.CompatibilityFargate},
		NetworkMode:             ecstypes.NetworkModeAwsvpc,
		Cpu:                     awssdk.String(strconv.Itoa(spec.CPUUnits)),
		Memory:                  awssdk.String(strconv.Itoa(spec.MemoryMB)),
		ExecutionRoleArn:        awssdk.String(spec.ExecRoleARN),
		TaskRoleArn:             awssdk.String(spec.TaskRoleARN),
		ContainerDefinitions: []ecstypes.ContainerDefinition{{
			Name:      awssdk.String(spec.Family),
			Image:     awssdk.String(spec.ImageRef),
			Essential: awssdk.Bool(true),
			PortMappings: []ecstypes.PortMapping{{
				ContainerPort: awssdk.Int32(int32(spec.ContainerPort)),
				Protocol:      ecstypes.TransportProtocolTcp,
			}},
			Environment: env,
			LogConfiguration: &ecstypes.LogConfiguration{
				LogDriver: ecstypes.LogDriverAwslogs,
				Options: map[string]string{
					"awslogs-group":         spec.LogGroup,
					"awslogs-region":        spec.Region,
					"awslogs-stream-prefix": spec.Family,
					"awslogs-create-group":  "true",
				},
			},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("register task definition %s: %w", spec.Family, err)
	}

	arn := awssdk.ToString(out.TaskDefinition.TaskDefinitionArn)
	s.p.logger.Info("task definition registered", "family", spec.Family, "arn", arn)
	return arn, nil
}

// EnsureService creates the service, or rolls an existing one forward to the
// new task definition.
func (s *clusterService) EnsureService(ctx context.Context, spec cloud.ServiceSpec) (string, error) {
	existing, err := s.p.ecs.DescribeServices(ctx, &ecs.DescribeServicesInput{
		Cluster:  awssdk.String(spec.ClusterARN),
		Services: []string{spec.Name},
	})
	if err != nil {
		return "", fmt.Errorf("describe service %s: %w", spec.Name, err)
	}
	for _, svc := range existing.Services {
		if awssdk.ToString(svc.Status) != "ACTIVE" {
			continue
		}
		out, err := s.p.ecs.UpdateService(ctx, &ecs.UpdateServiceInput{
			Cluster:            awssdk.String(spec.ClusterARN),
			Service:            awssdk.String(spec.Name),
			TaskDefinition:     awssdk.String(spec.TaskDefARN),
			DesiredCount:       awssdk.Int32(int32(spec.DesiredCount)),
			ForceNewDeployment: true,
		})
		if err != nil {
			return "", fmt.Errorf("update service %s: %w", spec.Name, err)
		}
		s.p.logger.Info("ECS service updated", "name", spec.Name, "task_def", spec.TaskDefARN)
		return awssdk.ToString(out.Service.ServiceArn), nil
	}

	out, err := s.p.ecs.CreateService(ctx, &ecs.CreateServiceInput{
		Cluster:        awssdk.String(spec.ClusterARN),
		ServiceName:    awssdk.String(spec.Name),
		TaskDefinition: awssdk.String(spec.TaskDefARN),
		DesiredCount:   awssdk.Int32(int32(spec.DesiredCount)),
		LaunchType:     ecstypes.LaunchTypeFargate,
		NetworkConfiguration: &ecstypes.NetworkConfiguration{
			AwsvpcConfiguration: &ecstypes.AwsVpcConfiguration{
				Subnets:        spec.SubnetIDs,
				SecurityGroups: []string{spec.SecurityGroupID},
				AssignPublicIp: ecstypes.AssignPublicIpEnabled,
			},
		},
		LoadBalancers: []ecstypes.LoadBalancer{{
			TargetGroupArn: awssdk.String(spec.TargetGroupARN),
			ContainerName:  awssdk.String(spec.ContainerName),
			ContainerPort:  awssdk.Int32(int32(spec.ContainerPort)),
		}},
		Tags: []ecstypes.Tag{
			{Key: awssdk.String("ManagedBy"), Value: awssdk.String(managedTag)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("create service %s: %w", spec.Name, err)
	}

	s.p.logger.Info("ECS service created", "name", spec.Name)
	return awssdk.ToString(out.Service.ServiceArn), nil
}

func (s *clusterService) ServiceRunning(ctx context.Context, clusterARN, serviceARN string) (bool, error) {
	out, err := s.p.ecs.DescribeServices(ctx, &ecs.DescribeServicesInput{
		Cluster:  awssdk.String(clusterARN),
		Services: []string{serviceARN},
	})
	if err != nil {
		return false, fmt.Errorf("describe service %s: %w", serviceARN, err)
	}
	for _, svc := range out.Services {
		if awssdk.ToString(svc.Status) != "ACTIVE" {
			continue
		}
		return svc.DesiredCount > 0 && svc.RunningCount >= svc.DesiredCount, nil
	}
	return false, nil
}

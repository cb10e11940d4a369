package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	elbv2types "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2/types"

	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/domain"
	"github.com/ClayDesk/codeflowops-saas-sub001/internal/shell/cloud"
)

// loadBalancerService implements cloud.LoadBalancer on ELBv2.
type loadBalancerService struct{ p *Provider }

func (s *loadBalancerService) EnsureLoadBalancer(ctx context.Context, name string, subnetIDs []string, securityGroupID string) (*cloud.LoadBalancerInfo, error) {
	existing, err := s.p.elbv2.DescribeLoadBalancers(ctx, &elbv2.DescribeLoadBalancersInput{
		Names: []string{name},
	})
	if err == nil && len(existing.LoadBalancers) > 0 {
		lb := existing.LoadBalancers[0]
		return &cloud.LoadBalancerInfo{
			ARN:     awssdk.ToString(lb.LoadBalancerArn),
			DNSName: awssdk.ToString(lb.DNSName),
		}, nil
	}
	if err != nil && !cloud.IsNotFound(err) {
		return nil, fmt.Errorf("describe load balancer %s: %w", name, err)
	}

	out, err := s.p.elbv2.CreateLoadBalancer(ctx, &elbv2.CreateLoadBalancerInput{
		Name:           awssdk.String(name),
		Subnets:        subnetIDs,
		SecurityGroups: []string{securityGroupID},
		Scheme:         elbv2types.LoadBalancerSchemeEnumInternetFacing,
		Type:           elbv2types.LoadBalancerTypeEnumApplication,
		Tags: []elbv2types.Tag{
			{Key: awssdk.String("ManagedBy"), Value: awssdk.String(managedTag)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create load balancer %s: %w", name, err)
	}
	if len(out.LoadBalancers) == 0 {
		return nil, fmt.Errorf("no load balancer returned for %s", name)
	}

	lb := out.LoadBalancers[0]
	s.p.logger.Info("load balancer created", "name", name, "dns", awssdk.ToString(lb.DNSName))
	return &cloud.LoadBalancerInfo{
		ARN:     awssdk.ToString(lb.LoadBalancerArn),
		DNSName: awssdk.ToString(lb.DNSName),
	}, nil
}

func (s *loadBalancerService) EnsureTargetGroup(ctx context.Context, name, networkID string, port int, health domain.HealthCheckSpec) (string, error) {
	existing, err := s.p.elbv2.DescribeTargetGroups(ctx, &elbv2.DescribeTargetGroupsInput{
		Names: []string{name},
	})
	if err == nil && len(existing.TargetGroups) > 0 {
		return awssdk.ToString(existing.TargetGroups[0].TargetGroupArn), nil
	}
	if err != nil && !cloud.IsNotFound(err) {
		return "", fmt.Errorf("describe target group %s: %w", name, err)
	}

	interval := health.Interval
	if interval <= 0 {
		interval = 30
	}
	timeout := health.Timeout
	if timeout <= 0 {
		timeout = 5
	}
	path := health.Path
	if path == "" {
		path = "/"
	}

	out, err := s.p.elbv2.CreateTargetGroup(ctx, &elbv2.CreateTargetGroupInput{
		Name:                       awssdk.String(name),
		Protocol:                   elbv2types.ProtocolEnumHttp,
		Port:                       awssdk.Int32(int32(port)),
		VpcId:                      awssdk.String(networkID),
		TargetType:                 elbv2types.TargetTypeEnumIp,
		HealthCheckPath:            awssdk.String(path),
		HealthCheckIntervalSeconds: awssdk.Int32(int32(interval)),
		HealthCheckTimeoutSeconds:  awssdk.Int32(int32(timeout)),
		HealthyThresholdCount:      awssdk.Int32(2),
		UnhealthyThresholdCount:    awssdk.Int32(3),
	})
	if err != nil {
		return "", fmt.Errorf("create target group %s: %w", name, err)
	}
	if len(out.TargetGroups) == 0 {
		return "", fmt.Errorf("no target group returned for %s", name)
	}

	s.p.logger.Info("target group created", "name", name, "health_path", path)
	return awssdk.ToString(out.TargetGroups[0].TargetGroupArn), nil
}

func (s *loadBalancerService) EnsureListener(ctx context.Context, lbARN, targetGroupARN string) (string, error) {
	existing, err := s.p.elbv2.DescribeListeners(ctx, &elbv2.DescribeListenersInput{
		LoadBalancerArn: awssdk.String(lbARN),
	})
	if err != nil {
		return "", fmt.Errorf("describe listeners: %w", err)
	}
	for _, l := range existing.Listeners {
		if l.Port != nil && *l.Port == 80 {
			return awssdk.ToString(l.ListenerArn), nil
		}
	}

	out, err := s.p.elbv2.CreateListener(ctx, &elbv2.CreateListenerInput{
		LoadBalancerArn: awssdk.String(lbARN),
		Protocol:        elbv2types.ProtocolEnumHttp,
		Port:            awssdk.Int32(80),
		DefaultActions: []elbv2types.Action{{
			Type:           elbv2types.ActionTypeEnumForward,
			TargetGroupArn: awssdk.String(targetGroupARN),
		}},
	})
	if err != nil {
		return "", fmt.Errorf("create listener: %w", err)
	}

	s.p.logger.Info("listener created", "lb_arn", lbARN)
	return awssdk.ToString(out.Listeners[0].ListenerArn), nil
}

// TargetsHealthy requires at least one registered target and every target in
// the healthy state.
func (s *loadBalancerService) TargetsHealthy(ctx context.Context, targetGroupARN string) (bool, error) {
	out, err := s.p.elbv2.DescribeTargetHealth(ctx, &elbv2.DescribeTargetHealthInput{
		TargetGroupArn: awssdk.String(targetGroupARN),
	})
	if err != nil {
		return false, fmt.Errorf("describe target health: %w", err)
	}
	if len(out.TargetHealthDescriptions) == 0 {
		return false, nil
	}
	for _, d := range out.TargetHealthDescriptions {
		if d.TargetHealth == nil || d.TargetHealth.State != elbv2types.TargetHealthStateEnumHealthy {
			return false, nil
		}
	}
	return true, nil
}

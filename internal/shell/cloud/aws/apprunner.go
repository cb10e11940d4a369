package aws

import (
	"context"
	"fmt"
	"strconv"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/apprunner"
	apprunnertypes "github.com/aws/aws-sdk-go-v2/service/apprunner/types"

	"github.com/ClayDesk/codeflowops-saas-sub001/internal/shell/cloud"
)

// runtimeService implements cloud.ManagedRuntime on App Runner.
type runtimeService struct{ p *Provider }

func (s *runtimeService) EnsureService(ctx context.Context, spec cloud.RuntimeServiceSpec) (*cloud.RuntimeService, error) {
	if existing, err := s.findService(ctx, spec.Name); err != nil {
		return nil, err
	} else if existing != nil {
		return s.rollForward(ctx, existing, spec)
	}

	healthPath := spec.HealthPath
	if healthPath == "" {
		healthPath = "/"
	}

	out, err := s.p.apprunner.CreateService(ctx, &apprunner.CreateServiceInput{
		ServiceName: awssdk.String(spec.Name),
		SourceConfiguration: &apprunnertypes.SourceConfiguration{
			AutoDeploymentsEnabled: awssdk.Bool(false),
			AuthenticationConfiguration: &apprunnertypes.AuthenticationConfiguration{
				AccessRoleArn: awssdk.String(spec.AccessRoleARN),
			},
			ImageRepository: &apprunnertypes.ImageRepository{
				ImageIdentifier:     awssdk.String(spec.ImageRef),
				ImageRepositoryType: apprunnertypes.ImageRepositoryTypeEcr,
				ImageConfiguration: &apprunnertypes.ImageConfiguration{
					Port:                        awssdk.String(strconv.Itoa(spec.ContainerPort)),
					RuntimeEnvironmentVariables: spec.Env,
				},
			},
		},
		InstanceConfiguration: &apprunnertypes.InstanceConfiguration{
			Cpu:    awssdk.String(strconv.Itoa(spec.CPUUnits)),
			Memory: awssdk.String(strconv.Itoa(spec.MemoryMB)),
		},
		HealthCheckConfiguration: &apprunnertypes.HealthCheckConfiguration{
			Protocol: apprunnertypes.HealthCheckProtocolHttp,
			Path:     awssdk.String(healthPath),
		},
		Tags: []apprunnertypes.Tag{
			{Key: awssdk.String("ManagedBy"), Value: awssdk.String(managedTag)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create runtime service %s: %w", spec.Name, err)
	}

	svc := out.Service
	s.p.logger.Info("runtime service created", "name", spec.Name, "url", awssdk.ToString(svc.ServiceUrl))
	return &cloud.RuntimeService{
		ARN:    awssdk.ToString(svc.ServiceArn),
		URL:    "https://" + awssdk.ToString(svc.ServiceUrl),
		Status: string(svc.Status),
	}, nil
}

// rollForward points an existing service at the new image and settings.
func (s *runtimeService) rollForward(ctx context.Context, existing *apprunnertypes.ServiceSummary, spec cloud.RuntimeServiceSpec) (*cloud.RuntimeService, error) {
	out, err := s.p.apprunner.UpdateService(ctx, &apprunner.UpdateServiceInput{
		ServiceArn: existing.ServiceArn,
		SourceConfiguration: &apprunnertypes.SourceConfiguration{
			AuthenticationConfiguration: &apprunnertypes.AuthenticationConfiguration{
				AccessRoleArn: awssdk.String(spec.AccessRoleARN),
			},
			ImageRepository: &apprunnertypes.ImageRepository{
				ImageIdentifier:     awssdk.String(spec.ImageRef),
				ImageRepositoryType: apprunnertypes.ImageRepositoryTypeEcr,
				ImageConfiguration: &apprunnertypes.ImageConfiguration{
					Port:                        awssdk.String(strconv.Itoa(spec.ContainerPort)),
					RuntimeEnvironmentVariables: spec.Env,
				},
			},
		},
		InstanceConfiguration: &apprunnertypes.InstanceConfiguration{
			Cpu:    awssdk.String(strconv.Itoa(spec.CPUUnits)),
			Memory: awssdk.String(strconv.Itoa(spec.MemoryMB)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("update runtime service %s: %w", spec.Name, err)
	}

	svc := out.Service
	s.p.logger.Info("runtime service updated", "name", spec.Name)
	return &cloud.RuntimeService{
		ARN:    awssdk.ToString(svc.ServiceArn),
		URL:    "https://" + awssdk.ToString(svc.ServiceUrl),
		Status: string(svc.Status),
	}, nil
}

func (s *runtimeService) findService(ctx context.Context, name string) (*apprunnertypes.ServiceSummary, error) {
	var nextToken *string
	for {
		out, err := s.p.apprunner.ListServices(ctx, &apprunner.ListServicesInput{
			NextToken: nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("list runtime services: %w", err)
		}
		for i := range out.ServiceSummaryList {
			svc := out.ServiceSummaryList[i]
			if awssdk.ToString(svc.ServiceName) == name && svc.Status != apprunnertypes.ServiceStatusDeleted {
				return &svc, nil
			}
		}
		if out.NextToken == nil {
			return nil, nil
		}
		nextToken = out.NextToken
	}
}

func (s *runtimeService) ServiceStatus(ctx context.Context, arn string) (string, error) {
	out, err := s.p.apprunner.DescribeService(ctx, &apprunner.DescribeServiceInput{
		ServiceArn: awssdk.String(arn),
	})
	if err != nil {
		return "", fmt.Errorf("describe runtime service: %w", err)
	}
	return string(out.Service.Status), nil
}

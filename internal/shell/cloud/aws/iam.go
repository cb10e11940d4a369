package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamtypes "github.com/aws/aws-sdk-go-v2/service/iam/types"

	"github.com/ClayDesk/codeflowops-saas-sub001/internal/shell/cloud"
)

// ecsExecutionPolicyARN grants registry pulls and log writes to the
// execution role.
const ecsExecutionPolicyARN = "arn:aws:iam::aws:policy/service-role/AmazonECSTaskExecutionRolePolicy"

// Trust policies. Both container backends assume through their own service
// principals; App Runner's access role uses the build principal for ECR pulls.
const (
	taskTrustPolicy = `{
  "Version": "2012-10-17",
  "Statement": [{
    "Effect": "Allow",
    "Principal": {"Service": ["ecs-tasks.amazonaws.com", "tasks.apprunner.amazonaws.com"]},
    "Action": "sts:AssumeRole"
  }]
}`

	execTrustPolicy = `{
  "Version": "2012-10-17",
  "Statement": [{
    "Effect": "Allow",
    "Principal": {"Service": ["ecs-tasks.amazonaws.com", "build.apprunner.amazonaws.com"]},
    "Action": "sts:AssumeRole"
  }]
}`
)

// identityService implements cloud.Identity on IAM.
type identityService struct{ p *Provider }

func (s *identityService) EnsureTaskRoles(ctx context.Context, namePrefix string) (string, string, error) {
	execARN, err := s.ensureRole(ctx, namePrefix+"-exec", execTrustPolicy, ecsExecutionPolicyARN)
	if err != nil {
		return "", "", err
	}
	taskARN, err := s.ensureRole(ctx, namePrefix+"-task", taskTrustPolicy, "")
	if err != nil {
		return "", "", err
	}
	return execARN, taskARN, nil
}

func (s *identityService) ensureRole(ctx context.Context, name, trustPolicy, attachPolicyARN string) (string, error) {
	existing, err := s.p.iam.GetRole(ctx, &iam.GetRoleInput{RoleName: awssdk.String(name)})
	if err == nil {
		return awssdk.ToString(existing.Role.Arn), nil
	}
	if !cloud.IsNotFound(err) {
		return "", fmt.Errorf("get role %s: %w", name, err)
	}

	created, err := s.p.iam.CreateRole(ctx, &iam.CreateRoleInput{
		RoleName:                 awssdk.String(name),
		AssumeRolePolicyDocument: awssdk.String(trustPolicy),
		Tags: []iamtypes.Tag{
			{Key: awssdk.String("ManagedBy"), Value: awssdk.String(managedTag)},
		},
	})
	if err != nil {
		if cloud.IsExists(err) {
			// Created concurrently; read it back.
			again, getErr := s.p.iam.GetRole(ctx, &iam.GetRoleInput{RoleName: awssdk.String(name)})
			if getErr != nil {
				return "", fmt.Errorf("get role %s after create race: %w", name, getErr)
			}
			return awssdk.ToString(again.Role.Arn), nil
		}
		return "", fmt.Errorf("create role %s: %w", name, err)
	}

	if attachPolicyARN != "" {
		_, err = s.p.iam.AttachRolePolicy(ctx, &iam.AttachRolePolicyInput{
			RoleName:  awssdk.String(name),
			PolicyArn: awssdk.String(attachPolicyARN),
		})
		if err != nil {
			return "", fmt.Errorf("attach policy to role %s: %w", name, err)
		}
	}

	s.p.logger.Info("IAM role created", "name", name)
	return awssdk.ToString(created.Role.Arn), nil
}

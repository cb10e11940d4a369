package aws

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	ecrtypes "github.com/aws/aws-sdk-go-v2/service/ecr/types"

	"github.com/ClayDesk/codeflowops-saas-sub001/internal/shell/cloud"
)

// registryService implements cloud.ImageRegistry on ECR.
type registryService struct{ p *Provider }

func (s *registryService) EnsureRepository(ctx context.Context, name string) (string, error) {
	out, err := s.p.ecr.CreateRepository(ctx, &ecr.CreateRepositoryInput{
		RepositoryName: awssdk.String(name),
		Tags: []ecrtypes.Tag{
			{Key: awssdk.String("ManagedBy"), Value: awssdk.String(managedTag)},
		},
	})
	if err == nil {
		s.p.logger.Info("ECR repository created", "repository", name)
		return awssdk.ToString(out.Repository.RepositoryUri), nil
	}
	if !cloud.IsExists(err) {
		return "", fmt.Errorf("create repository %s: %w", name, err)
	}

	desc, err := s.p.ecr.DescribeRepositories(ctx, &ecr.DescribeRepositoriesInput{
		RepositoryNames: []string{name},
	})
	if err != nil {
		return "", fmt.Errorf("describe repository %s: %w", name, err)
	}
	if len(desc.Repositories) == 0 {
		return "", fmt.Errorf("repository %s exists but could not be described", name)
	}
	return awssdk.ToString(desc.Repositories[0].RepositoryUri), nil
}

func (s *registryService) AuthToken(ctx context.Context) (*cloud.RegistryAuth, error) {
	out, err := s.p.ecr.GetAuthorizationToken(ctx, &ecr.GetAuthorizationTokenInput{})
	if err != nil {
		return nil, fmt.Errorf("get registry auth token: %w", err)
	}
	if len(out.AuthorizationData) == 0 {
		return nil, errors.New("registry returned no authorization data")
	}

	data := out.AuthorizationData[0]
	decoded, err := base64.StdEncoding.DecodeString(awssdk.ToString(data.AuthorizationToken))
	if err != nil {
		return nil, fmt.Errorf("decode registry auth token: %w", err)
	}
	username, password, found := strings.Cut(string(decoded), ":")
	if !found {
		return nil, errors.New("registry auth token has unexpected format")
	}

	return &cloud.RegistryAuth{
		Username: username,
		Password: password,
		Endpoint: awssdk.ToString(data.ProxyEndpoint),
	}, nil
}

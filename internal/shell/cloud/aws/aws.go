// Package aws implements the cloud provider surface on AWS. Path A maps to
// App Runner, Path B to ECS on Fargate behind an application load balancer.
package aws

import (
	"log/slog"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/apprunner"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	"github.com/aws/aws-sdk-go-v2/service/ecs"
	elbv2 "github.com/aws/aws-sdk-go-v2/service/elasticloadbalancingv2"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/aws/aws-sdk-go-v2/service/rds"

	"github.com/ClayDesk/codeflowops-saas-sub001/internal/core/domain"
	"github.com/ClayDesk/codeflowops-saas-sub001/internal/shell/cloud"
)

// managedTag marks every resource this control plane creates.
const managedTag = "codeflowops"

// Provider implements cloud.Provider for AWS. Clients are built from the
// job's caller-supplied credentials; nothing is read from the ambient
// environment.
type Provider struct {
	region string
	creds  awssdk.CredentialsProvider
	logger *slog.Logger

	ecr       *ecr.Client
	ec2       *ec2.Client
	elbv2     *elbv2.Client
	ecs       *ecs.Client
	iam       *iam.Client
	rds       *rds.Client
	apprunner *apprunner.Client
	cf        *cloudfront.Client
}

// NewProvider creates an AWS provider scoped to one region and one set of
// job credentials.
func NewProvider(region string, creds cloud.Credentials, logger *slog.Logger) *Provider {
	cp := credentials.NewStaticCredentialsProvider(
		creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken)

	return &Provider{
		region:    region,
		creds:     cp,
		logger:    logger.With("provider", "aws", "region", region),
		ecr:       ecr.New(ecr.Options{Region: region, Credentials: cp}),
		ec2:       ec2.New(ec2.Options{Region: region, Credentials: cp}),
		elbv2:     elbv2.New(elbv2.Options{Region: region, Credentials: cp}),
		ecs:       ecs.New(ecs.Options{Region: region, Credentials: cp}),
		iam:       iam.New(iam.Options{Region: region, Credentials: cp}),
		rds:       rds.New(rds.Options{Region: region, Credentials: cp}),
		apprunner: apprunner.New(apprunner.Options{Region: region, Credentials: cp}),
		// CloudFront is a global service; us-east-1 is its API home.
		cf: cloudfront.New(cloudfront.Options{Region: "us-east-1", Credentials: cp}),
	}
}

func (p *Provider) Name() string { return "aws" }

// Supports reports true for both paths: App Runner serves the managed
// runtime, ECS the cluster path.
func (p *Provider) Supports(method domain.DeploymentMethod) bool {
	switch method {
	case domain.MethodManagedRuntime, domain.MethodCluster:
		return true
	}
	return false
}

func (p *Provider) Registry() cloud.ImageRegistry    { return &registryService{p} }
func (p *Provider) Network() cloud.Network           { return &networkService{p} }
func (p *Provider) LoadBalancer() cloud.LoadBalancer { return &loadBalancerService{p} }
func (p *Provider) Cluster() cloud.ComputeCluster    { return &clusterService{p} }
func (p *Provider) Runtime() cloud.ManagedRuntime    { return &runtimeService{p} }
func (p *Provider) CDN() cloud.CDN                   { return &cdnService{p} }
func (p *Provider) Database() cloud.ManagedDatabase  { return &databaseService{p} }
func (p *Provider) Identity() cloud.Identity         { return &identityService{p} }

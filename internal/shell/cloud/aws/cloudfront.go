package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudfront"
	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudfront/types"
)

// cachingDisabledPolicyID is the AWS managed CachingDisabled cache policy.
// Dynamic PHP responses must not be cached at the edge.
const cachingDisabledPolicyID = "4135ea2d-6df8-44a3-9df3-4b5a84be39ad"

// cdnService implements cloud.CDN on CloudFront. Distributions are keyed by
// their comment field, which carries the deployment's resource name.
type cdnService struct{ p *Provider }

func (s *cdnService) EnsureDistribution(ctx context.Context, name, originDomain string) (string, error) {
	if url, err := s.findByComment(ctx, name); err != nil {
		return "", err
	} else if url != "" {
		return url, nil
	}

	originID := "origin-" + name
	out, err := s.p.cf.CreateDistribution(ctx, &cloudfront.CreateDistributionInput{
		DistributionConfig: &cftypes.DistributionConfig{
			CallerReference: awssdk.String(name),
			Comment:         awssdk.String(name),
			Enabled:         awssdk.Bool(true),
			Origins: &cftypes.Origins{
				Quantity: awssdk.Int32(1),
				Items: []cftypes.Origin{{
					Id:         awssdk.String(originID),
					DomainName: awssdk.String(originDomain),
					CustomOriginConfig: &cftypes.CustomOriginConfig{
						HTTPPort:             awssdk.Int32(80),
						HTTPSPort:            awssdk.Int32(443),
						OriginProtocolPolicy: cftypes.OriginProtocolPolicyHttpOnly,
					},
				}},
			},
			DefaultCacheBehavior: &cftypes.DefaultCacheBehavior{
				TargetOriginId:       awssdk.String(originID),
				ViewerProtocolPolicy: cftypes.ViewerProtocolPolicyRedirectToHttps,
				CachePolicyId:        awssdk.String(cachingDisabledPolicyID),
				AllowedMethods: &cftypes.AllowedMethods{
					Quantity: awssdk.Int32(7),
					Items: []cftypes.Method{
						cftypes.MethodGet, cftypes.MethodHead, cftypes.MethodOptions,
						cftypes.MethodPut, cftypes.MethodPost, cftypes.MethodPatch, cftypes.MethodDelete,
					},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("create distribution for %s: %w", name, err)
	}

	domain := awssdk.ToString(out.Distribution.DomainName)
	s.p.logger.Info("CDN distribution created", "name", name, "domain", domain)
	return "https://" + domain, nil
}

func (s *cdnService) findByComment(ctx context.Context, comment string) (string, error) {
	var marker *string
	for {
		out, err := s.p.cf.ListDistributions(ctx, &cloudfront.ListDistributionsInput{
			Marker: marker,
		})
		if err != nil {
			return "", fmt.Errorf("list distributions: %w", err)
		}
		if out.DistributionList == nil {
			return "", nil
		}
		for _, d := range out.DistributionList.Items {
			if awssdk.ToString(d.Comment) == comment {
				return "https://" + awssdk.ToString(d.DomainName), nil
			}
		}
		if !awssdk.ToBool(out.DistributionList.IsTruncated) {
			return "", nil
		}
		marker = out.DistributionList.NextMarker
	}
}

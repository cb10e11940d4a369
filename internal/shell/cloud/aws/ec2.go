package aws

import (
	"context"
	"fmt"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/ClayDesk/codeflowops-saas-sub001/internal/shell/cloud"
)

const (
	vpcCIDR = "10.0.0.0/16"
)

// Two public subnets in distinct zones; the load balancer requires at least
// two availability zones.
var subnetCIDRs = []string{"10.0.1.0/24", "10.0.2.0/24"}

// networkService implements cloud.Network on EC2 VPC primitives.
type networkService struct{ p *Provider }

func (s *networkService) EnsureNetwork(ctx context.Context, name string) (*cloud.NetworkInfo, error) {
	vpcID, err := s.findVPC(ctx, name)
	if err != nil {
		return nil, err
	}
	if vpcID == "" {
		vpcID, err = s.createVPC(ctx, name)
		if err != nil {
			return nil, err
		}
	}

	subnetIDs, err := s.ensureSubnets(ctx, vpcID, name)
	if err != nil {
		return nil, err
	}
	if err := s.ensureInternetRoute(ctx, vpcID, name); err != nil {
		return nil, err
	}

	return &cloud.NetworkInfo{NetworkID: vpcID, SubnetIDs: subnetIDs}, nil
}

func (s *networkService) findVPC(ctx context.Context, name string) (string, error) {
	out, err := s.p.ec2.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{
		Filters: []ec2types.Filter{
			{Name: awssdk.String("tag:Name"), Values: []string{name}},
			{Name: awssdk.String("tag:ManagedBy"), Values: []string{managedTag}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("describe vpcs: %w", err)
	}
	if len(out.Vpcs) == 0 {
		return "", nil
	}
	return awssdk.ToString(out.Vpcs[0].VpcId), nil
}

func (s *networkService) createVPC(ctx context.Context, name string) (string, error) {
	out, err := s.p.ec2.CreateVpc(ctx, &ec2.CreateVpcInput{
		CidrBlock: awssdk.String(vpcCIDR),
		TagSpecifications: []ec2types.TagSpecification{{
			ResourceType: ec2types.ResourceTypeVpc,
			Tags:         nameTags(name),
		}},
	})
	if err != nil {
		return "", fmt.Errorf("create vpc: %w", err)
	}
	vpcID := awssdk.ToString(out.Vpc.VpcId)

	// Services need DNS hostnames for registry pulls and DB endpoints.
	_, err = s.p.ec2.ModifyVpcAttribute(ctx, &ec2.ModifyVpcAttributeInput{
		VpcId:              awssdk.String(vpcID),
		EnableDnsHostnames: &ec2types.AttributeBooleanValue{Value: awssdk.Bool(true)},
	})
	if err != nil {
		return "", fmt.Errorf("enable dns hostnames: %w", err)
	}

	s.p.logger.Info("VPC created", "vpc_id", vpcID, "name", name)
	return vpcID, nil
}

func (s *networkService) ensureSubnets(ctx context.Context, vpcID, name string) ([]string, error) {
	existing, err := s.p.ec2.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{
		Filters: []ec2types.Filter{
			{Name: awssdk.String("vpc-id"), Values: []string{vpcID}},
			{Name: awssdk.String("tag:ManagedBy"), Values: []string{managedTag}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("describe subnets: %w", err)
	}
	if len(existing.Subnets) >= len(subnetCIDRs) {
		ids := make([]string, 0, len(existing.Subnets))
		for _, sn := range existing.Subnets {
			ids = append(ids, awssdk.ToString(sn.SubnetId))
		}
		return ids, nil
	}

	zones, err := s.p.ec2.DescribeAvailabilityZones(ctx, &ec2.DescribeAvailabilityZonesInput{
		Filters: []ec2types.Filter{
			{Name: awssdk.String("state"), Values: []string{"available"}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("describe availability zones: %w", err)
	}
	if len(zones.AvailabilityZones) < len(subnetCIDRs) {
		return nil, fmt.Errorf("region has %d availability zones, need %d",
			len(zones.AvailabilityZones), len(subnetCIDRs))
	}

	ids := make([]string, 0, len(subnetCIDRs))
	for i, cidr := range subnetCIDRs {
		out, err := s.p.ec2.CreateSubnet(ctx, &ec2.CreateSubnetInput{
			VpcId:            awssdk.String(vpcID),
			CidrBlock:        awssdk.String(cidr),
			AvailabilityZone: zones.AvailabilityZones[i].ZoneName,
			TagSpecifications: []ec2types.TagSpecification{{
				ResourceType: ec2types.ResourceTypeSubnet,
				Tags:         nameTags(fmt.Sprintf("%s-%d", name, i)),
			}},
		})
		if err != nil {
			return nil, fmt.Errorf("create subnet %s: %w", cidr, err)
		}
		subnetID := awssdk.ToString(out.Subnet.SubnetId)

		_, err = s.p.ec2.ModifySubnetAttribute(ctx, &ec2.ModifySubnetAttributeInput{
			SubnetId:            awssdk.String(subnetID),
			MapPublicIpOnLaunch: &ec2types.AttributeBooleanValue{Value: awssdk.Bool(true)},
		})
		if err != nil {
			return nil, fmt.Errorf("enable public ip on subnet %s: %w", subnetID, err)
		}
		ids = append(ids, subnetID)
	}

	s.p.logger.Info("subnets created", "vpc_id", vpcID, "count", len(ids))
	return ids, nil
}

// ensureInternetRoute attaches an internet gateway and routes the VPC's main
// route table through it.
func (s *networkService) ensureInternetRoute(ctx context.Context, vpcID, name string) error {
	igws, err := s.p.ec2.DescribeInternetGateways(ctx, &ec2.DescribeInternetGatewaysInput{
		Filters: []ec2types.Filter{
			{Name: awssdk.String("attachment.vpc-id"), Values: []string{vpcID}},
		},
	})
	if err != nil {
		return fmt.Errorf("describe internet gateways: %w", err)
	}

	var igwID string
	if len(igws.InternetGateways) > 0 {
		igwID = awssdk.ToString(igws.InternetGateways[0].InternetGatewayId)
	} else {
		created, err := s.p.ec2.CreateInternetGateway(ctx, &ec2.CreateInternetGatewayInput{
			TagSpecifications: []ec2types.TagSpecification{{
				ResourceType: ec2types.ResourceTypeInternetGateway,
				Tags:         nameTags(name),
			}},
		})
		if err != nil {
			return fmt.Errorf("create internet gateway: %w", err)
		}
		igwID = awssdk.ToString(created.InternetGateway.InternetGatewayId)

		_, err = s.p.ec2.AttachInternetGateway(ctx, &ec2.AttachInternetGatewayInput{
			InternetGatewayId: awssdk.String(igwID),
			VpcId:             awssdk.String(vpcID),
		})
		if err != nil {
			return fmt.Errorf("attach internet gateway: %w", err)
		}
	}

	tables, err := s.p.ec2.DescribeRouteTables(ctx, &ec2.DescribeRouteTablesInput{
		Filters: []ec2types.Filter{
			{Name: awssdk.String("vpc-id"), Values: []string{vpcID}},
			{Name: awssdk.String("association.main"), Values: []string{"true"}},
		},
	})
	if err != nil {
		return fmt.Errorf("describe route tables: %w", err)
	}
	if len(tables.RouteTables) == 0 {
		return fmt.Errorf("vpc %s has no main route table", vpcID)
	}
	tableID := awssdk.ToString(tables.RouteTables[0].RouteTableId)

	_, err = s.p.ec2.CreateRoute(ctx, &ec2.CreateRouteInput{
		RouteTableId:         awssdk.String(tableID),
		DestinationCidrBlock: awssdk.String("0.0.0.0/0"),
		GatewayId:            awssdk.String(igwID),
	})
	if err != nil && !cloud.IsExists(err) {
		return fmt.Errorf("create default route: %w", err)
	}
	return nil
}

func (s *networkService) EnsureSecurityGroup(ctx context.Context, networkID, name string, port int) (string, error) {
	out, err := s.p.ec2.CreateSecurityGroup(ctx, &ec2.CreateSecurityGroupInput{
		GroupName:   awssdk.String(name),
		Description: awssdk.String("codeflowops managed - " + name),
		VpcId:       awssdk.String(networkID),
		TagSpecifications: []ec2types.TagSpecification{{
			ResourceType: ec2types.ResourceTypeSecurityGroup,
			Tags:         nameTags(name),
		}},
	})
	if err != nil {
		if !cloud.IsExists(err) {
			return "", fmt.Errorf("create security group %s: %w", name, err)
		}
		return s.findSecurityGroup(ctx, networkID, name)
	}
	sgID := awssdk.ToString(out.GroupId)

	_, err = s.p.ec2.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
		GroupId: awssdk.String(sgID),
		IpPermissions: []ec2types.IpPermission{
			{
				IpProtocol: awssdk.String("tcp"),
				FromPort:   awssdk.Int32(80),
				ToPort:     awssdk.Int32(80),
				IpRanges:   []ec2types.IpRange{{CidrIp: awssdk.String("0.0.0.0/0"), Description: awssdk.String("HTTP")}},
			},
			{
				IpProtocol: awssdk.String("tcp"),
				FromPort:   awssdk.Int32(int32(port)),
				ToPort:     awssdk.Int32(int32(port)),
				IpRanges:   []ec2types.IpRange{{CidrIp: awssdk.String(vpcCIDR), Description: awssdk.String("container port from LB")}},
			},
		},
	})
	if err != nil && !cloud.IsExists(err) {
		return "", fmt.Errorf("configure security group %s: %w", name, err)
	}

	s.p.logger.Info("security group created", "group_id", sgID, "name", name)
	return sgID, nil
}

func (s *networkService) findSecurityGroup(ctx context.Context, networkID, name string) (string, error) {
	out, err := s.p.ec2.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{
		Filters: []ec2types.Filter{
			{Name: awssdk.String("vpc-id"), Values: []string{networkID}},
			{Name: awssdk.String("group-name"), Values: []string{name}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("describe security group %s: %w", name, err)
	}
	if len(out.SecurityGroups) == 0 {
		return "", fmt.Errorf("security group %s exists but could not be found", name)
	}
	return awssdk.ToString(out.SecurityGroups[0].GroupId), nil
}

func nameTags(name string) []ec2types.Tag {
	return []ec2types.Tag{
		{Key: awssdk.String("Name"), Value: awssdk.String(name)},
		{Key: awssdk.String("ManagedBy"), Value: awssdk.String(managedTag)},
	}
}

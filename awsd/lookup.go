package awsd

import (
	"context"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"go.uber.org/zap"

	"infrastructure/awsd/models"
	"infrastructure/errors"
)

// LookupVPC confirms the VPC exists and picks a subnet for instances: the
// first public subnet by availability zone, or the first subnet if none is
// public.
func (a *AwsClient) LookupVPC(ctx context.Context, vpcID string) (*models.VPCLookup, error) {
	vpcs, err := a.client.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{VpcIds: []string{vpcID}})
	if err != nil {
		return nil, errors.New(errors.ErrAWSClient, "error describing vpc",
			map[string]interface{}{
				"vpc_id": vpcID,
			}, err)
	}
	if len(vpcs.Vpcs) == 0 {
		return nil, errors.New(errors.ErrAWSInstance, "vpc not found",
			map[string]interface{}{
				"vpc_id": vpcID,
			}, nil)
	}
	vpc := vpcs.Vpcs[0]

	subnets, err := a.client.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{
		Filters: []types.Filter{{Name: aws.String("vpc-id"), Values: []string{vpcID}}},
	})
	if err != nil {
		return nil, errors.New(errors.ErrAWSClient, "error describing subnets",
			map[string]interface{}{
				"vpc_id": vpcID,
			}, err)
	}

	lookup := &models.VPCLookup{
		VPCID:     aws.ToString(vpc.VpcId),
		CIDR:      aws.ToString(vpc.CidrBlock),
		IsDefault: aws.ToBool(vpc.IsDefault),
		SubnetID:  pickSubnet(subnets.Subnets),
	}
	a.logger.Info("VPC looked up",
		zap.String("vpc_id", lookup.VPCID),
		zap.String("subnet_id", lookup.SubnetID),
		zap.String("operation", "lookup_vpc"),
	)
	return lookup, nil
}

func pickSubnet(subnets []types.Subnet) string {
	if len(subnets) == 0 {
		return ""
	}
	sorted := make([]types.Subnet, len(subnets))
	copy(sorted, subnets)
	sort.SliceStable(sorted, func(i, j int) bool {
		pi, pj := aws.ToBool(sorted[i].MapPublicIpOnLaunch), aws.ToBool(sorted[j].MapPublicIpOnLaunch)
		if pi != pj {
			return pi
		}
		return aws.ToString(sorted[i].AvailabilityZone) < aws.ToString(sorted[j].AvailabilityZone)
	})
	return aws.ToString(sorted[0].SubnetId)
}

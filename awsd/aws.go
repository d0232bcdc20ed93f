package awsd

import (
	"context"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"go.uber.org/zap"

	"infrastructure/awsd/models"
	"infrastructure/configuration"
	"infrastructure/errors"
)

const packageName = "awsd"

// EC2API is the subset of the EC2 client used here.
type EC2API interface {
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	DescribeVpcs(ctx context.Context, params *ec2.DescribeVpcsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVpcsOutput, error)
	DescribeSubnets(ctx context.Context, params *ec2.DescribeSubnetsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSubnetsOutput, error)
	StartInstances(ctx context.Context, params *ec2.StartInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StartInstancesOutput, error)
	StopInstances(ctx context.Context, params *ec2.StopInstancesInput, optFns ...func(*ec2.Options)) (*ec2.StopInstancesOutput, error)
}

type AwsClient struct {
	client EC2API
	logger *zap.Logger
}

// NewEC2ClientWithConfig wraps an EC2 client built from cfg.
func NewEC2ClientWithConfig(cfg aws.Config) *AwsClient {
	return NewEC2ClientWithAPI(ec2.NewFromConfig(cfg))
}

// NewEC2ClientWithAPI wraps any EC2API implementation.
func NewEC2ClientWithAPI(api EC2API) *AwsClient {
	return &AwsClient{
		client: api,
		logger: zap.L().With(zap.String("package", packageName)),
	}
}

// LoadConfig builds the shared AWS configuration. Static credentials and a
// custom endpoint (for example LocalStack) are used only when configured.
func LoadConfig(ctx context.Context, c *configuration.Config) (aws.Config, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(c.Region),
	}
	if c.AccessKeyID != "" && c.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, ""),
		))
	}
	if c.EndpointURL != "" {
		opts = append(opts, config.WithBaseEndpoint(c.EndpointURL))
	}

	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, errors.New(errors.ErrAWSClient, "error loading AWS configuration",
			map[string]interface{}{
				"region": c.Region,
			}, err)
	}
	return cfg, nil
}

// DescribeInstance fetches one EC2 instance by ID.
func (a *AwsClient) DescribeInstance(ctx context.Context, instanceID string) (*models.AWSInstance, error) {
	output, err := a.client.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{instanceID},
	})
	if err != nil {
		return nil, errors.New(errors.ErrAWSClient, "error describing instance",
			map[string]interface{}{
				"instance_id": instanceID,
			}, err)
	}

	if len(output.Reservations) == 0 || len(output.Reservations[0].Instances) == 0 {
		return nil, errors.New(errors.ErrAWSInstance, "no instances found",
			map[string]interface{}{
				"instance_id": instanceID,
			}, nil)
	}

	i := output.Reservations[0].Instances[0]
	a.logger.Debug("Instance found",
		zap.String("instance_id", aws.ToString(i.InstanceId)),
		zap.String("operation", "describe_instance"),
	)

	tags := make(map[string]string)
	for _, tag := range i.Tags {
		if tag.Key != nil && tag.Value != nil {
			tags[*tag.Key] = *tag.Value
		}
	}

	instance := &models.AWSInstance{
		InstanceID:          aws.ToString(i.InstanceId),
		InstanceType:        string(i.InstanceType),
		AMI:                 aws.ToString(i.ImageId),
		PrivateIP:           aws.ToString(i.PrivateIpAddress),
		PublicIP:            aws.ToString(i.PublicIpAddress),
		KeyName:             aws.ToString(i.KeyName),
		SubnetID:            aws.ToString(i.SubnetId),
		VPCID:               aws.ToString(i.VpcId),
		Tags:                tags,
		PrivateDnsName:      aws.ToString(i.PrivateDnsName),
		BlockDeviceMappings: parseBlockDeviceMappings(i.BlockDeviceMappings),
		SecurityGroups:      parseSecurityGroups(i.SecurityGroups),
		NetworkInterfaces:   parseNetworkInterfaces(i.NetworkInterfaces),
	}
	if i.State != nil {
		instance.State = string(i.State.Name)
	}
	if i.LaunchTime != nil {
		instance.LaunchTime = i.LaunchTime.String()
	}
	return instance, nil
}

// SecurityGroupIDs returns the attached group IDs, sorted.
func SecurityGroupIDs(i *models.AWSInstance) []string {
	ids := make([]string, 0, len(i.SecurityGroups))
	for _, g := range i.SecurityGroups {
		ids = append(ids, g.GroupId)
	}
	sort.Strings(ids)
	return ids
}

func parseBlockDeviceMappings(mappings []types.InstanceBlockDeviceMapping) []models.BlockDeviceMapping {
	result := make([]models.BlockDeviceMapping, 0, len(mappings))
	for _, mapping := range mappings {
		m := models.BlockDeviceMapping{DeviceName: aws.ToString(mapping.DeviceName)}
		if mapping.Ebs != nil {
			m.VolumeId = aws.ToString(mapping.Ebs.VolumeId)
		}
		result = append(result, m)
	}
	return result
}

func parseSecurityGroups(groups []types.GroupIdentifier) []models.SecurityGroup {
	result := make([]models.SecurityGroup, 0, len(groups))
	for _, group := range groups {
		result = append(result, models.SecurityGroup{
			GroupId:   aws.ToString(group.GroupId),
			GroupName: aws.ToString(group.GroupName),
		})
	}
	return result
}

func parseNetworkInterfaces(interfaces []types.InstanceNetworkInterface) []models.NetworkInterface {
	result := make([]models.NetworkInterface, 0, len(interfaces))
	for _, iface := range interfaces {
		n := models.NetworkInterface{PrivateIpAddress: aws.ToString(iface.PrivateIpAddress)}
		if iface.Association != nil {
			n.PublicIpAddress = aws.ToString(iface.Association.PublicIp)
		}
		result = append(result, n)
	}
	return result
}

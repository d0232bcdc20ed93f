// Package engine hands rendered templates to CloudFormation and publishes the
// assets they reference.
package engine

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudformation"
	cftypes "github.com/aws/aws-sdk-go-v2/service/cloudformation/types"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"infrastructure/errors"
)

const packageName = "engine"

// MaxTemplateBodySize is the largest template CloudFormation accepts inline.
// Larger templates are uploaded to the asset bucket first.
const MaxTemplateBodySize = 51200

// DefaultMaxWait bounds each wait on a change set or stack operation.
const DefaultMaxWait = 30 * time.Minute

// Operations reported by Deploy.
const (
	OperationCreate = "CREATE"
	OperationUpdate = "UPDATE"
)

// CloudFormationAPI is the subset of the CloudFormation client used here.
type CloudFormationAPI interface {
	DescribeStacks(ctx context.Context, params *cloudformation.DescribeStacksInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeStacksOutput, error)
	CreateChangeSet(ctx context.Context, params *cloudformation.CreateChangeSetInput, optFns ...func(*cloudformation.Options)) (*cloudformation.CreateChangeSetOutput, error)
	DescribeChangeSet(ctx context.Context, params *cloudformation.DescribeChangeSetInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DescribeChangeSetOutput, error)
	ExecuteChangeSet(ctx context.Context, params *cloudformation.ExecuteChangeSetInput, optFns ...func(*cloudformation.Options)) (*cloudformation.ExecuteChangeSetOutput, error)
	DeleteChangeSet(ctx context.Context, params *cloudformation.DeleteChangeSetInput, optFns ...func(*cloudformation.Options)) (*cloudformation.DeleteChangeSetOutput, error)
	ListStackResources(ctx context.Context, params *cloudformation.ListStackResourcesInput, optFns ...func(*cloudformation.Options)) (*cloudformation.ListStackResourcesOutput, error)
}

// S3API is the subset of the S3 client used for assets.
type S3API interface {
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Engine deploys stacks through change sets.
type Engine struct {
	cfn    CloudFormationAPI
	s3     S3API
	region string
	logger *zap.Logger

	// AssetBucket receives function archives and oversized templates.
	AssetBucket string
	// MaxWait bounds each waiter. Zero means DefaultMaxWait.
	MaxWait time.Duration
}

// DeployResult describes a finished deployment.
type DeployResult struct {
	StackID     string
	ChangeSetID string
	Operation   string
	NoChanges   bool
	Outputs     map[string]string
}

// New builds an engine from a loaded AWS configuration.
func New(cfg aws.Config, assetBucket string) *Engine {
	e := NewWithAPI(cloudformation.NewFromConfig(cfg), s3.NewFromConfig(cfg), cfg.Region)
	e.AssetBucket = assetBucket
	return e
}

// NewWithAPI builds an engine over any client implementations.
func NewWithAPI(cfn CloudFormationAPI, s3api S3API, region string) *Engine {
	return &Engine{
		cfn:    cfn,
		s3:     s3api,
		region: region,
		logger: zap.L().With(zap.String("package", packageName)),
	}
}

func (e *Engine) maxWait() time.Duration {
	if e.MaxWait > 0 {
		return e.MaxWait
	}
	return DefaultMaxWait
}

// Deploy creates the stack if it does not exist and updates it otherwise.
// A change set without changes is deleted and reported with NoChanges set.
func (e *Engine) Deploy(ctx context.Context, stackName string, body []byte) (*DeployResult, error) {
	logger := e.logger.With(zap.String("stack", stackName))

	operation, err := e.operationFor(ctx, stackName)
	if err != nil {
		return nil, err
	}

	input := &cloudformation.CreateChangeSetInput{
		StackName:     aws.String(stackName),
		ChangeSetName: aws.String("deploy-" + uuid.NewString()),
		ChangeSetType: cftypes.ChangeSetType(operation),
		Capabilities: []cftypes.Capability{
			cftypes.CapabilityCapabilityIam,
			cftypes.CapabilityCapabilityNamedIam,
		},
	}
	if len(body) > MaxTemplateBodySize {
		url, err := e.uploadTemplate(ctx, body)
		if err != nil {
			return nil, err
		}
		input.TemplateURL = aws.String(url)
	} else {
		input.TemplateBody = aws.String(string(body))
	}

	created, err := e.cfn.CreateChangeSet(ctx, input)
	if err != nil {
		return nil, errors.New(errors.ErrEngine, "error creating change set",
			map[string]interface{}{
				"stack":      stackName,
				"change_set": aws.ToString(input.ChangeSetName),
			}, err)
	}
	result := &DeployResult{
		StackID:     aws.ToString(created.StackId),
		ChangeSetID: aws.ToString(created.Id),
		Operation:   operation,
	}
	logger.Info("Change set created",
		zap.String("operation", "create_change_set"),
		zap.String("change_set_id", result.ChangeSetID),
		zap.String("type", operation),
	)

	describe := &cloudformation.DescribeChangeSetInput{
		StackName:     aws.String(stackName),
		ChangeSetName: aws.String(result.ChangeSetID),
	}
	waitErr := cloudformation.NewChangeSetCreateCompleteWaiter(e.cfn).Wait(ctx, describe, e.maxWait())
	if waitErr != nil {
		changeSet, err := e.cfn.DescribeChangeSet(ctx, describe)
		if err != nil {
			return nil, errors.New(errors.ErrEngine, "error describing change set",
				map[string]interface{}{
					"stack":      stackName,
					"change_set": result.ChangeSetID,
				}, err)
		}
		reason := aws.ToString(changeSet.StatusReason)
		if changeSet.Status == cftypes.ChangeSetStatusFailed && isNoChanges(reason) {
			if _, err := e.cfn.DeleteChangeSet(ctx, &cloudformation.DeleteChangeSetInput{
				StackName:     aws.String(stackName),
				ChangeSetName: aws.String(result.ChangeSetID),
			}); err != nil {
				return nil, errors.New(errors.ErrEngine, "error deleting empty change set",
					map[string]interface{}{
						"stack":      stackName,
						"change_set": result.ChangeSetID,
					}, err)
			}
			logger.Info("Stack is up to date",
				zap.String("operation", "deploy"),
				zap.String("status", "no_changes"),
			)
			result.NoChanges = true
			result.Outputs, err = e.Outputs(ctx, stackName)
			if err != nil {
				return nil, err
			}
			return result, nil
		}
		return nil, errors.New(errors.ErrEngine, "change set did not complete",
			map[string]interface{}{
				"stack":      stackName,
				"change_set": result.ChangeSetID,
				"status":     string(changeSet.Status),
				"reason":     reason,
			}, waitErr)
	}

	if _, err := e.cfn.ExecuteChangeSet(ctx, &cloudformation.ExecuteChangeSetInput{
		StackName:     aws.String(stackName),
		ChangeSetName: aws.String(result.ChangeSetID),
	}); err != nil {
		return nil, errors.New(errors.ErrEngine, "error executing change set",
			map[string]interface{}{
				"stack":      stackName,
				"change_set": result.ChangeSetID,
			}, err)
	}

	stacks := &cloudformation.DescribeStacksInput{StackName: aws.String(stackName)}
	if operation == OperationCreate {
		err = cloudformation.NewStackCreateCompleteWaiter(e.cfn).Wait(ctx, stacks, e.maxWait())
	} else {
		err = cloudformation.NewStackUpdateCompleteWaiter(e.cfn).Wait(ctx, stacks, e.maxWait())
	}
	if err != nil {
		return nil, errors.New(errors.ErrEngine, "stack operation did not complete",
			map[string]interface{}{
				"stack":     stackName,
				"operation": operation,
			}, err)
	}

	result.Outputs, err = e.Outputs(ctx, stackName)
	if err != nil {
		return nil, err
	}
	logger.Info("Stack deployed",
		zap.String("operation", "deploy"),
		zap.String("type", operation),
		zap.Int("outputs", len(result.Outputs)),
	)
	return result, nil
}

// operationFor decides between CREATE and UPDATE. A stack left in
// REVIEW_IN_PROGRESS by an unexecuted create is still created.
func (e *Engine) operationFor(ctx context.Context, stackName string) (string, error) {
	out, err := e.cfn.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{StackName: aws.String(stackName)})
	if err != nil {
		if isStackMissing(err) {
			return OperationCreate, nil
		}
		return "", errors.New(errors.ErrEngine, "error describing stack",
			map[string]interface{}{
				"stack": stackName,
			}, err)
	}
	if len(out.Stacks) == 0 || out.Stacks[0].StackStatus == cftypes.StackStatusReviewInProgress {
		return OperationCreate, nil
	}
	return OperationUpdate, nil
}

// Outputs returns the stack outputs by key.
func (e *Engine) Outputs(ctx context.Context, stackName string) (map[string]string, error) {
	out, err := e.cfn.DescribeStacks(ctx, &cloudformation.DescribeStacksInput{StackName: aws.String(stackName)})
	if err != nil {
		return nil, errors.New(errors.ErrEngine, "error describing stack",
			map[string]interface{}{
				"stack": stackName,
			}, err)
	}
	outputs := make(map[string]string)
	for _, s := range out.Stacks {
		for _, o := range s.Outputs {
			outputs[aws.ToString(o.OutputKey)] = aws.ToString(o.OutputValue)
		}
	}
	return outputs, nil
}

// PhysicalIDs maps every logical ID in the stack to its physical ID.
func (e *Engine) PhysicalIDs(ctx context.Context, stackName string) (map[string]string, error) {
	ids := make(map[string]string)
	paginator := cloudformation.NewListStackResourcesPaginator(e.cfn, &cloudformation.ListStackResourcesInput{
		StackName: aws.String(stackName),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, errors.New(errors.ErrEngine, "error listing stack resources",
				map[string]interface{}{
					"stack": stackName,
				}, err)
		}
		for _, r := range page.StackResourceSummaries {
			ids[aws.ToString(r.LogicalResourceId)] = aws.ToString(r.PhysicalResourceId)
		}
	}
	e.logger.Debug("Stack resources listed",
		zap.String("operation", "physical_ids"),
		zap.String("stack", stackName),
		zap.Int("count", len(ids)),
	)
	return ids, nil
}

// PublishAsset uploads data under key unless an object already exists there.
// It reports whether an upload happened.
func (e *Engine) PublishAsset(ctx context.Context, bucket, key string, data []byte) (bool, error) {
	_, err := e.s3.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		e.logger.Info("Asset already published",
			zap.String("operation", "publish_asset"),
			zap.String("bucket", bucket),
			zap.String("key", key),
		)
		return false, nil
	}
	if !isObjectMissing(err) {
		return false, errors.New(errors.ErrEngine, "error checking asset",
			map[string]interface{}{
				"bucket": bucket,
				"key":    key,
			}, err)
	}

	if _, err := e.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}); err != nil {
		return false, errors.New(errors.ErrEngine, "error uploading asset",
			map[string]interface{}{
				"bucket": bucket,
				"key":    key,
			}, err)
	}
	e.logger.Info("Asset published",
		zap.String("operation", "publish_asset"),
		zap.String("bucket", bucket),
		zap.String("key", key),
		zap.Int("size", len(data)),
	)
	return true, nil
}

func (e *Engine) uploadTemplate(ctx context.Context, body []byte) (string, error) {
	if e.AssetBucket == "" {
		return "", errors.New(errors.ErrEngine, "template exceeds inline limit and no asset bucket is set",
			map[string]interface{}{
				"size":  len(body),
				"limit": MaxTemplateBodySize,
			}, nil)
	}
	sum := sha256.Sum256(body)
	key := "templates/" + hex.EncodeToString(sum[:]) + ".json"
	if _, err := e.PublishAsset(ctx, e.AssetBucket, key, body); err != nil {
		return "", err
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", e.AssetBucket, e.region, key), nil
}

func isStackMissing(err error) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.ErrorCode() == "ValidationError" && strings.Contains(apiErr.ErrorMessage(), "does not exist")
}

func isObjectMissing(err error) bool {
	var notFound *s3types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NotFound" || apiErr.ErrorCode() == "NoSuchKey")
}

func isNoChanges(reason string) bool {
	return strings.Contains(reason, "didn't contain changes") ||
		strings.Contains(reason, "No updates are to be performed")
}

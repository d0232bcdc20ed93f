package awsd

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
	"go.uber.org/zap"

	"infrastructure/awsd/models"
	"infrastructure/errors"
)

// Actions the scheduler understands.
const (
	ActionStop  = "stop"
	ActionStart = "start"
)

// scheduleDetail is the optional detail of a scheduled event. Plain cron
// events carry an empty detail and mean stop.
type scheduleDetail struct {
	Action string `json:"action"`
}

// InstanceScheduler starts or stops a fixed set of instances.
type InstanceScheduler struct {
	client      *AwsClient
	instanceIDs []string
}

// NewInstanceScheduler targets instanceIDs. Empty IDs are dropped.
func NewInstanceScheduler(client *AwsClient, instanceIDs ...string) *InstanceScheduler {
	ids := make([]string, 0, len(instanceIDs))
	for _, id := range instanceIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return &InstanceScheduler{client: client, instanceIDs: ids}
}

// ActionFor reads the requested action from an event, defaulting to stop.
func ActionFor(event events.CloudWatchEvent) (string, error) {
	if len(event.Detail) == 0 {
		return ActionStop, nil
	}
	var detail scheduleDetail
	if err := json.Unmarshal(event.Detail, &detail); err != nil {
		return "", errors.New(errors.ErrInputRead, "error decoding event detail",
			map[string]interface{}{
				"event_id": event.ID,
			}, err)
	}
	switch strings.ToLower(detail.Action) {
	case "", ActionStop:
		return ActionStop, nil
	case ActionStart:
		return ActionStart, nil
	}
	return "", errors.New(errors.ErrAWSInstance, "unknown schedule action",
		map[string]interface{}{
			"event_id": event.ID,
			"action":   detail.Action,
		}, nil)
}

// Handle applies the event's action to every target instance.
func (s *InstanceScheduler) Handle(ctx context.Context, event events.CloudWatchEvent) ([]models.StateChange, error) {
	action, err := ActionFor(event)
	if err != nil {
		return nil, err
	}
	if len(s.instanceIDs) == 0 {
		return nil, errors.New(errors.ErrConfigInvalid, "no target instances", map[string]interface{}{}, nil)
	}

	var changes []types.InstanceStateChange
	switch action {
	case ActionStart:
		out, err := s.client.client.StartInstances(ctx, &ec2.StartInstancesInput{InstanceIds: s.instanceIDs})
		if err != nil {
			return nil, errors.New(errors.ErrAWSClient, "error starting instances",
				map[string]interface{}{
					"instance_ids": s.instanceIDs,
				}, err)
		}
		changes = out.StartingInstances
	default:
		out, err := s.client.client.StopInstances(ctx, &ec2.StopInstancesInput{InstanceIds: s.instanceIDs})
		if err != nil {
			return nil, errors.New(errors.ErrAWSClient, "error stopping instances",
				map[string]interface{}{
					"instance_ids": s.instanceIDs,
				}, err)
		}
		changes = out.StoppingInstances
	}

	result := make([]models.StateChange, 0, len(changes))
	for _, c := range changes {
		sc := models.StateChange{InstanceID: aws.ToString(c.InstanceId)}
		if c.PreviousState != nil {
			sc.PreviousState = string(c.PreviousState.Name)
		}
		if c.CurrentState != nil {
			sc.CurrentState = string(c.CurrentState.Name)
		}
		result = append(result, sc)
	}

	s.client.logger.Info("Scheduled action applied",
		zap.String("action", action),
		zap.Strings("instance_ids", s.instanceIDs),
		zap.String("operation", "schedule_"+action),
	)
	return result, nil
}

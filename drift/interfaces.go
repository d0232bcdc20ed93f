package drift

import (
	"context"
	"time"

	awsm "infrastructure/awsd/models"
)

// StackReader resolves logical IDs of a deployed stack to physical IDs.
type StackReader interface {
	PhysicalIDs(ctx context.Context, stackName string) (map[string]string, error)
}

// InstanceReader reads the live state of one instance.
type InstanceReader interface {
	DescribeInstance(ctx context.Context, instanceID string) (*awsm.AWSInstance, error)
}

// Checker defines the drift checking operations
type Checker interface {
	Check(ctx context.Context) ([]Finding, error)
	RunLoop(ctx context.Context, interval time.Duration) error
}

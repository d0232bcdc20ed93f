package drift

import (
	"context"

	"github.com/stretchr/testify/mock"

	awsm "infrastructure/awsd/models"
)

// MockStackReader is a mock implementation of StackReader
type MockStackReader struct {
	mock.Mock
}

// PhysicalIDs mocks the PhysicalIDs method
func (m *MockStackReader) PhysicalIDs(ctx context.Context, stackName string) (map[string]string, error) {
	args := m.Called(ctx, stackName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]string), args.Error(1)
}

// MockInstanceReader is a mock implementation of InstanceReader
type MockInstanceReader struct {
	mock.Mock
}

// DescribeInstance mocks the DescribeInstance method
func (m *MockInstanceReader) DescribeInstance(ctx context.Context, instanceID string) (*awsm.AWSInstance, error) {
	args := m.Called(ctx, instanceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*awsm.AWSInstance), args.Error(1)
}

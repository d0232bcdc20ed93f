// Package drift compares the instances declared in the graph with what is
// running in the account.
package drift

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"infrastructure/awsd"
	awsm "infrastructure/awsd/models"
	"infrastructure/errors"
	"infrastructure/graph"
)

// NoDriftMessage is logged when a check finds nothing.
const NoDriftMessage = "No drift detected between declared and running instances."

// Finding is one difference between a declared and a live value.
type Finding struct {
	Resource graph.ID
	Field    string
	Declared string
	Actual   string
}

func (f Finding) String() string {
	return fmt.Sprintf("%s drift detected on %s: declared=%s, actual=%s", f.Field, f.Resource, f.Declared, f.Actual)
}

// DriftService checks one deployed stack against its declaration.
type DriftService struct {
	stack     StackReader
	instances InstanceReader
	graph     *graph.Graph
	stackName string
	logger    *zap.Logger

	// Timeout bounds a single check. Zero means no bound.
	Timeout time.Duration
}

var _ Checker = (*DriftService)(nil)

// NewDriftService creates a new drift service.
func NewDriftService(stack StackReader, instances InstanceReader, g *graph.Graph, stackName string, logger *zap.Logger) *DriftService {
	if logger == nil {
		logger = zap.L()
	}
	return &DriftService{
		stack:     stack,
		instances: instances,
		graph:     g,
		stackName: stackName,
		logger:    logger.With(zap.String("package", "drift")),
	}
}

// RunLoop checks immediately and then once per interval until ctx is done.
func (s *DriftService) RunLoop(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return errors.New(errors.ErrConfigInvalid, "check interval must be positive",
			map[string]interface{}{
				"interval": interval.String(),
			}, nil)
	}
	s.logger.Info("Drift service started",
		zap.String("operation", "run_loop_start"),
		zap.String("stack", s.stackName),
		zap.Duration("interval", interval),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := s.Check(ctx); err != nil && ctx.Err() == nil {
			return err
		}

		select {
		case <-ctx.Done():
			s.logger.Info("Drift service stopped",
				zap.String("operation", "run_loop_stop"),
			)
			return errors.New(errors.ErrDriftChecker, "drift check cancelled",
				map[string]interface{}{
					"stack": s.stackName,
				}, ctx.Err())
		case <-ticker.C:
		}
	}
}

// Check compares every declared instance once. Instances are compared
// concurrently; findings are returned in a stable order.
func (s *DriftService) Check(ctx context.Context) ([]Finding, error) {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	expectations, err := Expectations(s.graph)
	if err != nil {
		return nil, errors.New(errors.ErrDriftChecker, "error reading declared instances",
			map[string]interface{}{
				"stack": s.stackName,
			}, err)
	}

	physical, err := s.stack.PhysicalIDs(ctx, s.stackName)
	if err != nil {
		return nil, errors.New(errors.ErrDriftChecker, "error resolving physical IDs",
			map[string]interface{}{
				"stack": s.stackName,
			}, err)
	}

	findingCh := make(chan Finding)
	errCh := make(chan error, len(expectations))
	var wg sync.WaitGroup

	for _, exp := range expectations {
		exp := exp
		runComparison(&wg, func() {
			if err := s.compare(ctx, exp, physical, findingCh); err != nil {
				errCh <- err
			}
		})
	}

	go func() {
		wg.Wait()
		close(findingCh)
		close(errCh)
	}()

	var findings []Finding
	for f := range findingCh {
		findings = append(findings, f)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}

	sort.Slice(findings, func(i, j int) bool {
		if findings[i].Resource != findings[j].Resource {
			return findings[i].Resource < findings[j].Resource
		}
		return findings[i].Field < findings[j].Field
	})

	if len(findings) == 0 {
		s.logger.Info(NoDriftMessage,
			zap.String("operation", "drift_check"),
			zap.String("status", "no_drift"),
			zap.Int("instances", len(expectations)),
		)
		return findings, nil
	}
	for _, f := range findings {
		s.logger.Warn(f.String(),
			zap.String("operation", "drift_check"),
			zap.String("resource", string(f.Resource)),
			zap.String("field", f.Field),
		)
	}
	s.logger.Info("Drift detected",
		zap.String("operation", "drift_check"),
		zap.String("status", "drift_detected"),
		zap.Int("drift_count", len(findings)),
	)
	return findings, nil
}

// runComparison launches fn in a goroutine tracked by wg.
func runComparison(wg *sync.WaitGroup, fn func()) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		fn()
	}()
}

func (s *DriftService) compare(ctx context.Context, exp Expectation, physical map[string]string, ch chan<- Finding) error {
	instanceID, ok := physical[string(exp.LogicalID)]
	if !ok || instanceID == "" {
		ch <- Finding{Resource: exp.LogicalID, Field: "Existence", Declared: "present", Actual: "missing"}
		return nil
	}

	live, err := s.instances.DescribeInstance(ctx, instanceID)
	if err != nil {
		if errors.Is(err, errors.ErrAWSInstance) {
			ch <- Finding{Resource: exp.LogicalID, Field: "Existence", Declared: instanceID, Actual: "missing"}
			return nil
		}
		return errors.New(errors.ErrDriftChecker, "error describing instance",
			map[string]interface{}{
				"resource":    string(exp.LogicalID),
				"instance_id": instanceID,
			}, err)
	}

	compareBasicFields(exp, live, ch)
	compareSecurityGroups(exp, live, physical, ch)
	comparePublicIP(exp, live, physical, ch)
	return nil
}

func compareBasicFields(exp Expectation, live *awsm.AWSInstance, ch chan<- Finding) {
	if exp.InstanceType != live.InstanceType {
		ch <- Finding{Resource: exp.LogicalID, Field: "InstanceType", Declared: exp.InstanceType, Actual: live.InstanceType}
	}
	if exp.KeyName != live.KeyName {
		ch <- Finding{Resource: exp.LogicalID, Field: "KeyName", Declared: exp.KeyName, Actual: live.KeyName}
	}
}

func compareSecurityGroups(exp Expectation, live *awsm.AWSInstance, physical map[string]string, ch chan<- Finding) {
	declared, missing := resolve(exp.SecurityGroups, physical)
	if len(missing) > 0 {
		ch <- Finding{Resource: exp.LogicalID, Field: "SecurityGroups", Declared: fmt.Sprint(missing), Actual: "not in stack"}
		return
	}
	actual := awsd.SecurityGroupIDs(live)
	if fmt.Sprint(declared) != fmt.Sprint(actual) {
		ch <- Finding{Resource: exp.LogicalID, Field: "SecurityGroups", Declared: fmt.Sprint(declared), Actual: fmt.Sprint(actual)}
	}
}

func comparePublicIP(exp Expectation, live *awsm.AWSInstance, physical map[string]string, ch chan<- Finding) {
	if exp.ElasticIP == "" {
		return
	}
	// The physical ID of an EIP is its public address.
	declared := physical[string(exp.ElasticIP)]
	if declared != live.PublicIP {
		ch <- Finding{Resource: exp.LogicalID, Field: "PublicIP", Declared: declared, Actual: live.PublicIP}
	}
}

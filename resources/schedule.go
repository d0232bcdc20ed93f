package resources

import (
	"fmt"
	"time"

	"github.com/robfig/cron"
)

// Cron is a daily trigger at a fixed UTC wall time.
type Cron struct {
	Minute int
	Hour   int
}

// Daily returns a trigger firing once a day at hour:minute UTC.
func Daily(hour, minute int) Cron {
	return Cron{Minute: minute, Hour: hour}
}

// Expression renders the EventBridge form, e.g. cron(0 4 * * ? *).
func (c Cron) Expression() string {
	return fmt.Sprintf("cron(%d %d * * ? *)", c.Minute, c.Hour)
}

// Standard renders the five field form.
func (c Cron) Standard() string {
	return fmt.Sprintf("%d %d * * *", c.Minute, c.Hour)
}

// Next returns the first firing strictly after t. The schedule is evaluated
// in UTC whatever location t carries.
func (c Cron) Next(t time.Time) (time.Time, error) {
	if err := c.Validate(); err != nil {
		return time.Time{}, err
	}
	sched, err := cron.ParseStandard(c.Standard())
	if err != nil {
		return time.Time{}, fmt.Errorf("parse schedule %q: %w", c.Standard(), err)
	}
	return sched.Next(t.UTC()), nil
}

func (c Cron) Validate() error {
	if c.Minute < 0 || c.Minute > 59 {
		return fmt.Errorf("cron minute %d out of range [0, 59]", c.Minute)
	}
	if c.Hour < 0 || c.Hour > 23 {
		return fmt.Errorf("cron hour %d out of range [0, 23]", c.Hour)
	}
	return nil
}

// CodeLocation is an uploaded function archive.
type CodeLocation struct {
	Bucket string
	Key    string
}

const (
	RuntimeProvidedAL2023 = "provided.al2023"
	HandlerBootstrap      = "bootstrap"
)

// Function is a serverless function.
type Function struct {
	Code        CodeLocation
	Handler     string
	Runtime     string
	Role        any
	Environment map[string]any
	Timeout     int
}

func (f *Function) Type() string { return "AWS::Lambda::Function" }

func (f *Function) Properties() map[string]any {
	props := map[string]any{
		"Code": map[string]any{
			"S3Bucket": f.Code.Bucket,
			"S3Key":    f.Code.Key,
		},
		"Handler": f.Handler,
		"Runtime": f.Runtime,
		"Role":    f.Role,
	}
	if len(f.Environment) > 0 {
		props["Environment"] = map[string]any{"Variables": f.Environment}
	}
	if f.Timeout > 0 {
		props["Timeout"] = f.Timeout
	}
	return props
}

func (f *Function) Validate() error {
	if f.Code.Bucket == "" || f.Code.Key == "" {
		return fmt.Errorf("function code location is incomplete")
	}
	if f.Handler == "" || f.Runtime == "" {
		return fmt.Errorf("function handler and runtime are required")
	}
	if f.Role == nil {
		return fmt.Errorf("function role is not set")
	}
	return nil
}

// EventTarget is one invocation target of a rule.
type EventTarget struct {
	ID  string
	ARN any
}

// EventRule triggers its targets on a schedule.
type EventRule struct {
	Schedule Cron
	Targets  []EventTarget
}

func (r *EventRule) Type() string { return "AWS::Events::Rule" }

func (r *EventRule) Properties() map[string]any {
	targets := make([]any, 0, len(r.Targets))
	for _, t := range r.Targets {
		targets = append(targets, map[string]any{"Id": t.ID, "Arn": t.ARN})
	}
	return map[string]any{
		"ScheduleExpression": r.Schedule.Expression(),
		"State":              "ENABLED",
		"Targets":            targets,
	}
}

func (r *EventRule) Validate() error {
	if err := r.Schedule.Validate(); err != nil {
		return err
	}
	if len(r.Targets) == 0 {
		return fmt.Errorf("event rule has no targets")
	}
	return nil
}

// Permission allows a service principal to invoke a function.
type Permission struct {
	Function  any
	Principal string
	SourceARN any
}

func (p *Permission) Type() string { return "AWS::Lambda::Permission" }

func (p *Permission) Properties() map[string]any {
	return map[string]any{
		"Action":       "lambda:InvokeFunction",
		"FunctionName": p.Function,
		"Principal":    p.Principal,
		"SourceArn":    p.SourceARN,
	}
}

package stack

import (
	"infrastructure/graph"
	"infrastructure/resources"
)

// Logical IDs of the stop schedule.
const (
	StopFunctionID graph.ID = "StopLambda"
	StopRuleID     graph.ID = "StopLambdaEvent"
)

// schedule stops the target instance every day. The policy names the
// instance ARN by reference, so the engine creates it after the instance.
func (b *builder) schedule(target *graph.Node) {
	role := b.resource("StopLambdaRole", &resources.Role{
		AssumedBy: resources.PrincipalLambda,
		ManagedPolicies: []string{
			resources.ManagedPolicyARN("service-role/AWSLambdaBasicExecutionRole"),
		},
	})
	policy := b.resource("StopLambdaPolicy", &resources.Policy{
		Name: "StopLambdaPolicy",
		Statements: []resources.Statement{{
			Actions: []string{
				"ec2:StartInstances",
				"ec2:StopInstances",
				"ec2:DescribeInstances",
			},
			Resources: []any{resources.InstanceARN(b.cfg.Region, b.cfg.Account, target.Ref(graph.EdgeReference))},
		}},
		Roles: []any{role.Ref(graph.EdgeAttachment)},
	})

	code := resources.CodeLocation{
		Bucket: b.cfg.AssetBucket,
		Key:    AssetKey(b.inputs.FunctionArchive),
	}
	fn := b.resource(StopFunctionID, &resources.Function{
		Code:    code,
		Handler: resources.HandlerBootstrap,
		Runtime: resources.RuntimeProvidedAL2023,
		Role:    role.Attr("Arn", graph.EdgeAttribute),
		Environment: map[string]any{
			"INSTANCE_ID": target.Ref(graph.EdgeReference),
		},
		Timeout: 30,
	})
	b.dependsOn(fn, policy)

	at := b.profile.StopSchedule
	rule := b.resource(StopRuleID, &resources.EventRule{
		Schedule: resources.Daily(at.Hour, at.Minute),
		Targets:  []resources.EventTarget{{ID: "Target0", ARN: fn.Attr("Arn", graph.EdgeTarget)}},
	})
	b.resource("StopLambdaEventPermission", &resources.Permission{
		Function:  fn.Attr("Arn", graph.EdgeReference),
		Principal: resources.PrincipalEvents,
		SourceARN: rule.Attr("Arn", graph.EdgeAttribute),
	})

	b.asset = &Asset{Bucket: code.Bucket, Key: code.Key, Data: b.inputs.FunctionArchive}
}

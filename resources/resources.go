// Package resources holds the typed declarations the stack is made of. Each
// one knows its CloudFormation type, how its properties render and what makes
// it invalid.
package resources

import (
	"infrastructure/graph"
)

// Validator is implemented by declarations with local invariants.
type Validator interface {
	Validate() error
}

// Join concatenates literal strings and references.
func Join(delimiter string, parts ...any) graph.Join {
	return graph.Join{Delimiter: delimiter, Parts: parts}
}

// InstanceARN builds the ARN of an instance from a reference to its ID.
func InstanceARN(region, account string, instance any) graph.Join {
	return Join("", "arn:aws:ec2:"+region+":"+account+":instance/", instance)
}

// BucketARN returns the bucket ARN and the ARN matching all of its objects.
func BucketARN(bucketArn any) []any {
	return []any{bucketArn, Join("", bucketArn, "/*")}
}

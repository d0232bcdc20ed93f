package resources

import (
	"fmt"
)

// Service principals.
const (
	PrincipalEC2    = "ec2.amazonaws.com"
	PrincipalLambda = "lambda.amazonaws.com"
	PrincipalEvents = "events.amazonaws.com"
)

// BucketReadWriteActions is what a read/write grant on a bucket allows.
var BucketReadWriteActions = []string{
	"s3:GetObject*",
	"s3:GetBucket*",
	"s3:List*",
	"s3:DeleteObject*",
	"s3:PutObject",
	"s3:PutObjectLegalHold",
	"s3:PutObjectRetention",
	"s3:PutObjectTagging",
	"s3:PutObjectVersionTagging",
	"s3:Abort*",
}

// ManagedPolicyARN returns the ARN of an AWS managed policy.
func ManagedPolicyARN(name string) string {
	return "arn:aws:iam::aws:policy/" + name
}

// Statement is one IAM policy statement.
type Statement struct {
	Effect    string
	Actions   []string
	Resources []any
	Principal map[string]any
}

func (s Statement) document() map[string]any {
	effect := s.Effect
	if effect == "" {
		effect = "Allow"
	}
	doc := map[string]any{"Effect": effect}
	if len(s.Actions) == 1 {
		doc["Action"] = s.Actions[0]
	} else {
		doc["Action"] = s.Actions
	}
	if len(s.Resources) == 1 {
		doc["Resource"] = s.Resources[0]
	} else if len(s.Resources) > 1 {
		doc["Resource"] = s.Resources
	}
	if s.Principal != nil {
		doc["Principal"] = s.Principal
	}
	return doc
}

// PolicyDocument wraps statements in a versioned policy document.
func PolicyDocument(statements ...Statement) map[string]any {
	docs := make([]any, 0, len(statements))
	for _, s := range statements {
		docs = append(docs, s.document())
	}
	return map[string]any{
		"Version":   "2012-10-17",
		"Statement": docs,
	}
}

func validateStatements(statements []Statement) error {
	if len(statements) == 0 {
		return fmt.Errorf("policy has no statements")
	}
	for i, s := range statements {
		if len(s.Actions) == 0 {
			return fmt.Errorf("statement %d has no actions", i)
		}
		if len(s.Resources) == 0 && s.Principal == nil {
			return fmt.Errorf("statement %d has no resources", i)
		}
	}
	return nil
}

// Role is an identity assumable by a service.
type Role struct {
	AssumedBy       string
	ManagedPolicies []string
}

func (r *Role) Type() string { return "AWS::IAM::Role" }

func (r *Role) Properties() map[string]any {
	props := map[string]any{
		"AssumeRolePolicyDocument": PolicyDocument(Statement{
			Actions:   []string{"sts:AssumeRole"},
			Principal: map[string]any{"Service": r.AssumedBy},
		}),
	}
	if len(r.ManagedPolicies) > 0 {
		props["ManagedPolicyArns"] = r.ManagedPolicies
	}
	return props
}

func (r *Role) Validate() error {
	if r.AssumedBy == "" {
		return fmt.Errorf("role has no assuming principal")
	}
	return nil
}

// InstanceProfile passes a role to an instance.
type InstanceProfile struct {
	Role any
}

func (p *InstanceProfile) Type() string { return "AWS::IAM::InstanceProfile" }

func (p *InstanceProfile) Properties() map[string]any {
	return map[string]any{"Roles": []any{p.Role}}
}

// Policy is an inline policy attached to roles.
type Policy struct {
	Name       string
	Statements []Statement
	Roles      []any
}

func (p *Policy) Type() string { return "AWS::IAM::Policy" }

func (p *Policy) Properties() map[string]any {
	return map[string]any{
		"PolicyName":     p.Name,
		"PolicyDocument": PolicyDocument(p.Statements...),
		"Roles":          p.Roles,
	}
}

func (p *Policy) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("policy name is empty")
	}
	if len(p.Roles) == 0 {
		return fmt.Errorf("policy %s is not attached to any role", p.Name)
	}
	if err := validateStatements(p.Statements); err != nil {
		return fmt.Errorf("policy %s: %w", p.Name, err)
	}
	return nil
}

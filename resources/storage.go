package resources

import (
	"fmt"
	"regexp"
)

// RemovalPolicy is what happens to a resource when the stack is deleted.
type RemovalPolicy string

const (
	RemovalDestroy RemovalPolicy = "Delete"
	RemovalRetain  RemovalPolicy = "Retain"
)

// PublicAccessBlock mirrors the four S3 public access switches.
type PublicAccessBlock struct {
	BlockPublicAcls       bool
	BlockPublicPolicy     bool
	IgnorePublicAcls      bool
	RestrictPublicBuckets bool
}

// BlockAll turns every switch on.
var BlockAll = PublicAccessBlock{
	BlockPublicAcls:       true,
	BlockPublicPolicy:     true,
	IgnorePublicAcls:      true,
	RestrictPublicBuckets: true,
}

// FullyBlocked reports whether every switch is on.
func (p PublicAccessBlock) FullyBlocked() bool {
	return p == BlockAll
}

// Bucket is an object storage bucket.
type Bucket struct {
	Name         string
	PublicAccess PublicAccessBlock
	Removal      RemovalPolicy
}

var bucketName = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func (b *Bucket) Type() string { return "AWS::S3::Bucket" }

func (b *Bucket) Properties() map[string]any {
	return map[string]any{
		"BucketName": b.Name,
		"PublicAccessBlockConfiguration": map[string]any{
			"BlockPublicAcls":       b.PublicAccess.BlockPublicAcls,
			"BlockPublicPolicy":     b.PublicAccess.BlockPublicPolicy,
			"IgnorePublicAcls":      b.PublicAccess.IgnorePublicAcls,
			"RestrictPublicBuckets": b.PublicAccess.RestrictPublicBuckets,
		},
	}
}

// DeletionPolicy is rendered next to the properties.
func (b *Bucket) DeletionPolicy() string {
	if b.Removal == "" {
		return string(RemovalRetain)
	}
	return string(b.Removal)
}

// Validate checks the name shape only; global uniqueness is decided by S3.
func (b *Bucket) Validate() error {
	if !bucketName.MatchString(b.Name) {
		return fmt.Errorf("bucket name %q is not a valid S3 bucket name", b.Name)
	}
	return nil
}

// BucketPolicy attaches a resource policy to a bucket.
type BucketPolicy struct {
	Bucket     any
	Statements []Statement
}

func (p *BucketPolicy) Type() string { return "AWS::S3::BucketPolicy" }

func (p *BucketPolicy) Properties() map[string]any {
	return map[string]any{
		"Bucket":         p.Bucket,
		"PolicyDocument": PolicyDocument(p.Statements...),
	}
}

func (p *BucketPolicy) Validate() error {
	if p.Bucket == nil {
		return fmt.Errorf("bucket policy: bucket is not set")
	}
	return validateStatements(p.Statements)
}

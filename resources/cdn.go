package resources

import (
	"fmt"
	"regexp"
)

// CachingOptimizedPolicyID is the AWS managed CachingOptimized cache policy.
const CachingOptimizedPolicyID = "658327ea-f89d-4fab-a63d-7e88639e58f6"

var accountID = regexp.MustCompile(`^[0-9]{12}$`)

// Certificate is an existing TLS certificate, referenced by ARN.
type Certificate struct {
	Region  string
	Account string
	ID      string
}

// ARN builds arn:aws:acm:{region}:{account}:certificate/{id}.
func (c *Certificate) ARN() string {
	return fmt.Sprintf("arn:aws:acm:%s:%s:certificate/%s", c.Region, c.Account, c.ID)
}

func (c *Certificate) Type() string { return "AWS::CertificateManager::Certificate" }

func (c *Certificate) Properties() map[string]any {
	return map[string]any{"CertificateArn": c.ARN()}
}

func (c *Certificate) Literal(attribute string) (any, bool) {
	if attribute == "" || attribute == "Arn" {
		return c.ARN(), true
	}
	return nil, false
}

// Validate rejects values that would yield a malformed ARN.
func (c *Certificate) Validate() error {
	if c.Region == "" {
		return fmt.Errorf("certificate region is empty")
	}
	if !accountID.MatchString(c.Account) {
		return fmt.Errorf("certificate account %q is not a 12 digit account id", c.Account)
	}
	if c.ID == "" {
		return fmt.Errorf("certificate id is empty")
	}
	return nil
}

// OriginAccessIdentity lets the distribution read a private bucket.
type OriginAccessIdentity struct {
	Comment string
}

func (o *OriginAccessIdentity) Type() string {
	return "AWS::CloudFront::CloudFrontOriginAccessIdentity"
}

func (o *OriginAccessIdentity) Properties() map[string]any {
	return map[string]any{
		"CloudFrontOriginAccessIdentityConfig": map[string]any{"Comment": o.Comment},
	}
}

// Distribution serves the origin bucket through the CDN.
type Distribution struct {
	OriginDomain      any
	OriginAccess      any
	DefaultRootObject string
	Aliases           []string
	Certificate       any
}

const originID = "WebsiteOrigin"

func (d *Distribution) Type() string { return "AWS::CloudFront::Distribution" }

func (d *Distribution) Properties() map[string]any {
	return map[string]any{
		"DistributionConfig": map[string]any{
			"Enabled":           true,
			"HttpVersion":       "http2",
			"IPV6Enabled":       true,
			"DefaultRootObject": d.DefaultRootObject,
			"Aliases":           d.Aliases,
			"Origins": []any{map[string]any{
				"Id":         originID,
				"DomainName": d.OriginDomain,
				"S3OriginConfig": map[string]any{
					"OriginAccessIdentity": Join("", "origin-access-identity/cloudfront/", d.OriginAccess),
				},
			}},
			"DefaultCacheBehavior": map[string]any{
				"TargetOriginId":       originID,
				"ViewerProtocolPolicy": "allow-all",
				"CachePolicyId":        CachingOptimizedPolicyID,
				"Compress":             true,
			},
			"ViewerCertificate": map[string]any{
				"AcmCertificateArn":      d.Certificate,
				"SslSupportMethod":       "sni-only",
				"MinimumProtocolVersion": "TLSv1.2_2021",
			},
		},
	}
}

func (d *Distribution) Validate() error {
	if d.OriginDomain == nil || d.OriginAccess == nil {
		return fmt.Errorf("distribution origin is not set")
	}
	if d.DefaultRootObject == "" {
		return fmt.Errorf("distribution default root object is empty")
	}
	if len(d.Aliases) > 0 && d.Certificate == nil {
		return fmt.Errorf("distribution with aliases %v needs a certificate", d.Aliases)
	}
	return nil
}

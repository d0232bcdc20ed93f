package stack

import (
	"infrastructure/graph"
	"infrastructure/resources"
)

// Logical IDs of the external references.
const (
	CertificateID graph.ID = "MyWebsiteCertificate"
	HostedZoneID  graph.ID = "MyWebsiteHostedZone"
)

type siteNodes struct {
	zone         *graph.Node
	distribution *graph.Node
}

// contentDelivery fronts the website bucket with the CDN and points the apex
// at it for both address families.
func (b *builder) contentDelivery(store storageNodes) siteNodes {
	domain := b.cfg.DomainName

	cert := b.external(CertificateID, &resources.Certificate{
		Region:  b.cfg.Region,
		Account: b.cfg.Account,
		ID:      b.cfg.CertificateID,
	})
	oai := b.resource("MyWebsiteOriginAccessIdentity", &resources.OriginAccessIdentity{
		Comment: "Identity for " + domain,
	})
	b.resource("MyWebsiteBucketPolicy", &resources.BucketPolicy{
		Bucket: store.website.Ref(graph.EdgeReference),
		Statements: []resources.Statement{{
			Actions:   []string{"s3:GetObject"},
			Resources: []any{resources.Join("", store.website.Attr("Arn", graph.EdgeAttribute), "/*")},
			Principal: map[string]any{"CanonicalUser": oai.Attr("S3CanonicalUserId", graph.EdgeAttribute)},
		}},
	})
	dist := b.resource("MyWebsiteDistribution", &resources.Distribution{
		OriginDomain:      store.website.Attr("RegionalDomainName", graph.EdgeOrigin),
		OriginAccess:      oai.Ref(graph.EdgeOrigin),
		DefaultRootObject: "index.html",
		Aliases:           []string{domain},
		Certificate:       cert.Ref(graph.EdgeReference),
	})

	zone := b.external(HostedZoneID, &resources.HostedZone{Name: domain, ID: b.cfg.HostedZoneID})
	alias := &resources.AliasTarget{
		DNSName:      dist.Attr("DomainName", graph.EdgeAlias),
		HostedZoneID: resources.CloudFrontHostedZoneID,
	}
	b.resource("CDNARecord", &resources.RecordSet{
		Zone:     zone.Ref(graph.EdgeScope),
		ZoneName: domain,
		Kind:     resources.RecordA,
		Alias:    alias,
	})
	b.resource("AliasRecord", &resources.RecordSet{
		Zone:     zone.Ref(graph.EdgeScope),
		ZoneName: domain,
		Kind:     resources.RecordAAAA,
		Alias:    alias,
	})

	b.output("DistributionDomainName", "Domain name of the website distribution", dist.Attr("DomainName", graph.EdgeAttribute))
	return siteNodes{zone: zone, distribution: dist}
}

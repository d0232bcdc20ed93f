package resources

import (
	"fmt"
	"strings"
)

// CloudFrontHostedZoneID is the fixed zone of every CloudFront alias target.
const CloudFrontHostedZoneID = "Z2FDTNDATAQYW2"

// DefaultRecordTTL applies to non-alias records, in seconds.
const DefaultRecordTTL = 1800

// HostedZone is an existing DNS zone.
type HostedZone struct {
	Name string
	ID   string
}

func (z *HostedZone) Type() string { return "AWS::Route53::HostedZone" }

func (z *HostedZone) Properties() map[string]any {
	return map[string]any{"Name": z.Name, "HostedZoneId": z.ID}
}

func (z *HostedZone) Literal(attribute string) (any, bool) {
	switch attribute {
	case "":
		return z.ID, true
	case "Name":
		return z.Name, true
	}
	return nil, false
}

func (z *HostedZone) Validate() error {
	if z.Name == "" || z.ID == "" {
		return fmt.Errorf("hosted zone needs both a name and an id")
	}
	return nil
}

type RecordType string

const (
	RecordA    RecordType = "A"
	RecordAAAA RecordType = "AAAA"
)

// AliasTarget resolves a record to another managed resource.
type AliasTarget struct {
	DNSName      any
	HostedZoneID string
}

// RecordSet is one DNS record. Exactly one of IPs and Alias is set.
// Name is relative to the zone or fully qualified; empty means apex.
type RecordSet struct {
	Zone     any
	ZoneName string
	Name     string
	Kind     RecordType
	IPs      []any
	Alias    *AliasTarget
	TTL      int
}

// FQDN returns the fully qualified record name with a trailing dot.
func (r *RecordSet) FQDN() string {
	zone := strings.TrimSuffix(r.ZoneName, ".")
	name := r.Name
	switch {
	case name == "":
		return zone + "."
	case strings.HasSuffix(name, "."):
		return name
	case name == zone || strings.HasSuffix(name, "."+zone):
		return name + "."
	default:
		return name + "." + zone + "."
	}
}

func (r *RecordSet) Type() string { return "AWS::Route53::RecordSet" }

func (r *RecordSet) Properties() map[string]any {
	props := map[string]any{
		"HostedZoneId": r.Zone,
		"Name":         r.FQDN(),
		"Type":         string(r.Kind),
	}
	if r.Alias != nil {
		props["AliasTarget"] = map[string]any{
			"DNSName":      r.Alias.DNSName,
			"HostedZoneId": r.Alias.HostedZoneID,
		}
		return props
	}
	ttl := r.TTL
	if ttl == 0 {
		ttl = DefaultRecordTTL
	}
	props["TTL"] = fmt.Sprint(ttl)
	props["ResourceRecords"] = r.IPs
	return props
}

func (r *RecordSet) Validate() error {
	if r.Zone == nil || r.ZoneName == "" {
		return fmt.Errorf("record %s: zone is not set", r.FQDN())
	}
	switch r.Kind {
	case RecordA, RecordAAAA:
	default:
		return fmt.Errorf("record %s: unsupported type %q", r.FQDN(), r.Kind)
	}
	hasIPs, hasAlias := len(r.IPs) > 0, r.Alias != nil
	if hasIPs == hasAlias {
		return fmt.Errorf("record %s: target must be either addresses or an alias, not both or neither", r.FQDN())
	}
	if hasAlias && (r.Alias.DNSName == nil || r.Alias.HostedZoneID == "") {
		return fmt.Errorf("record %s: alias target is incomplete", r.FQDN())
	}
	return nil
}

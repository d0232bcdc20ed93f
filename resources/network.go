package resources

import (
	"fmt"
	"net/netip"
	"strings"
)

const (
	ProtocolTCP    = "tcp"
	ProtocolUDP    = "udp"
	ProtocolICMP   = "icmp"
	ProtocolICMPv6 = "icmpv6"
	ProtocolAll    = "-1"
)

// Peers matching every address of a family.
const (
	AnyIPv4 = "0.0.0.0/0"
	AnyIPv6 = "::/0"
)

// IngressRule permits inbound traffic from one source on one port.
type IngressRule struct {
	Source      string
	Protocol    string
	Port        int
	Description string
}

// IPv6 reports whether the source is an IPv6 prefix.
func (r IngressRule) IPv6() bool {
	p, err := netip.ParsePrefix(r.Source)
	return err == nil && p.Addr().Is6()
}

// Validate checks the source, protocol and port.
func (r IngressRule) Validate() error {
	if strings.TrimSpace(r.Source) == "" {
		return fmt.Errorf("ingress rule %q: source is empty", r.Description)
	}
	if _, err := netip.ParsePrefix(r.Source); err != nil {
		return fmt.Errorf("ingress rule %q: source %q is not a CIDR: %w", r.Description, r.Source, err)
	}
	switch r.Protocol {
	case ProtocolTCP, ProtocolUDP, ProtocolICMP, ProtocolICMPv6, ProtocolAll:
	default:
		return fmt.Errorf("ingress rule %q: unknown protocol %q", r.Description, r.Protocol)
	}
	if r.Port < 0 || r.Port > 65535 {
		return fmt.Errorf("ingress rule %q: port %d out of range [0, 65535]", r.Description, r.Port)
	}
	return nil
}

func (r IngressRule) properties() map[string]any {
	props := map[string]any{
		"IpProtocol":  r.Protocol,
		"FromPort":    r.Port,
		"ToPort":      r.Port,
		"Description": r.Description,
	}
	if r.IPv6() {
		props["CidrIpv6"] = r.Source
	} else {
		props["CidrIp"] = r.Source
	}
	return props
}

// SecurityGroup is a named set of ingress rules inside a VPC.
type SecurityGroup struct {
	Name             string
	Description      string
	VPC              any
	AllowAllOutbound bool

	ingress []IngressRule
}

// AddIngressRule appends a rule. Rules are never removed or reordered.
func (sg *SecurityGroup) AddIngressRule(rule IngressRule) {
	sg.ingress = append(sg.ingress, rule)
}

// IngressRules returns a copy of the rules in insertion order.
func (sg *SecurityGroup) IngressRules() []IngressRule {
	out := make([]IngressRule, len(sg.ingress))
	copy(out, sg.ingress)
	return out
}

func (sg *SecurityGroup) Type() string { return "AWS::EC2::SecurityGroup" }

func (sg *SecurityGroup) Properties() map[string]any {
	props := map[string]any{
		"GroupName":        sg.Name,
		"GroupDescription": sg.Description,
		"VpcId":            sg.VPC,
	}
	if len(sg.ingress) > 0 {
		rules := make([]any, 0, len(sg.ingress))
		for _, r := range sg.ingress {
			rules = append(rules, r.properties())
		}
		props["SecurityGroupIngress"] = rules
	}
	if sg.AllowAllOutbound {
		props["SecurityGroupEgress"] = []any{map[string]any{
			"CidrIp":      AnyIPv4,
			"IpProtocol":  ProtocolAll,
			"Description": "Allow all outbound traffic by default",
		}}
	} else {
		// An egress list that matches nothing, otherwise EC2 adds allow-all.
		props["SecurityGroupEgress"] = []any{map[string]any{
			"CidrIp":      "255.255.255.255/32",
			"IpProtocol":  ProtocolICMP,
			"FromPort":    252,
			"ToPort":      86,
			"Description": "Disallow all traffic",
		}}
	}
	return props
}

func (sg *SecurityGroup) Validate() error {
	if sg.Name == "" {
		return fmt.Errorf("security group name is empty")
	}
	if sg.VPC == nil {
		return fmt.Errorf("security group %s: vpc is not set", sg.Name)
	}
	for _, r := range sg.ingress {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("security group %s: %w", sg.Name, err)
		}
	}
	return nil
}

// VPC is an existing network, referenced by ID.
type VPC struct {
	ID string
}

func (v *VPC) Type() string               { return "AWS::EC2::VPC" }
func (v *VPC) Properties() map[string]any { return map[string]any{"VpcId": v.ID} }

func (v *VPC) Literal(attribute string) (any, bool) {
	if attribute == "" {
		return v.ID, true
	}
	return nil, false
}

func (v *VPC) Validate() error {
	if !strings.HasPrefix(v.ID, "vpc-") {
		return fmt.Errorf("vpc id %q must start with vpc-", v.ID)
	}
	return nil
}

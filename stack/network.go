package stack

import (
	"fmt"

	"infrastructure/graph"
	"infrastructure/resources"
)

// Port is one {protocol, port} pair opened to the world.
type Port struct {
	Protocol    string
	Port        int
	Description string
}

// GroupSpec describes one security group.
type GroupSpec struct {
	ID          graph.ID
	Name        string
	Description string
	Ports       []Port
}

// DefaultGroups are the three groups of the stack.
var DefaultGroups = []GroupSpec{
	{
		ID:          "WebExternalAccessSecurityGroup",
		Name:        "WebExternalAccess",
		Description: "Allow external web access",
		Ports: []Port{
			{Protocol: resources.ProtocolTCP, Port: 80, Description: "allow http access from the world"},
			{Protocol: resources.ProtocolTCP, Port: 443, Description: "allow https access from the world"},
		},
	},
	{
		ID:          "VpnAccessSecurityGroup",
		Name:        "VpnAccess",
		Description: "Allow VPN access",
		Ports: []Port{
			{Protocol: resources.ProtocolUDP, Port: 51820, Description: "allow wireguard access from the world"},
			{Protocol: resources.ProtocolUDP, Port: 1194, Description: "allow openvpn access from the world"},
		},
	},
	{
		ID:          "SshAccessSecurityGroup",
		Name:        "SshAccess",
		Description: "Allow SSH access",
	},
}

type networkNodes struct {
	vpc *graph.Node
	web *graph.Node
	vpn *graph.Node
	ssh *graph.Node
}

func (b *builder) network() networkNodes {
	vpc := b.external("Vpc", &resources.VPC{ID: b.cfg.VPCID})

	groups := make([]*graph.Node, 0, len(DefaultGroups))
	for _, spec := range DefaultGroups {
		groups = append(groups, b.securityGroup(vpc, spec))
	}
	return networkNodes{vpc: vpc, web: groups[0], vpn: groups[1], ssh: groups[2]}
}

// securityGroup opens every port to both address families, IPv4 first.
func (b *builder) securityGroup(vpc *graph.Node, spec GroupSpec) *graph.Node {
	if prev, taken := b.groupNames[spec.Name]; taken {
		b.fail(spec.ID, fmt.Errorf("security group name %q already used by %s", spec.Name, prev))
		return &graph.Node{ID: spec.ID}
	}
	b.groupNames[spec.Name] = spec.ID

	sg := &resources.SecurityGroup{
		Name:             spec.Name,
		Description:      spec.Description,
		VPC:              vpc.Ref(graph.EdgeScope),
		AllowAllOutbound: true,
	}
	for _, p := range spec.Ports {
		for _, source := range []string{resources.AnyIPv4, resources.AnyIPv6} {
			sg.AddIngressRule(resources.IngressRule{
				Source:      source,
				Protocol:    p.Protocol,
				Port:        p.Port,
				Description: p.Description,
			})
		}
	}
	return b.resource(spec.ID, sg)
}

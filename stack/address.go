package stack

import (
	"strings"
	"unicode"

	"infrastructure/graph"
	"infrastructure/resources"
)

func (b *builder) address(hosts hostNodes, zone *graph.Node) {
	servicesIP, servicesAssoc := b.elasticIP(hosts.services)
	for _, name := range b.profile.ServiceRecords {
		b.ipRecord(zone, name, servicesIP, servicesAssoc)
	}
	// The work host keeps a stable address but gets no record.
	b.elasticIP(hosts.work)

	b.output("ServicesPublicIp", "Address of the services host", servicesIP.Ref(graph.EdgeReference))
}

// elasticIP allocates an address and binds it to exactly one instance.
func (b *builder) elasticIP(instance *graph.Node) (eip, assoc *graph.Node) {
	eip = b.resource(instance.ID+"ElasticIp", &resources.ElasticIP{})
	assoc = b.resource(instance.ID+"ElasticIpAssociation", &resources.EIPAssociation{
		Allocation: eip.Attr("AllocationId", graph.EdgeAssociation),
		Instance:   instance.Ref(graph.EdgeAssociation),
	})
	return eip, assoc
}

// ipRecord points name at the address, once the address is bound.
func (b *builder) ipRecord(zone *graph.Node, name string, eip, assoc *graph.Node) *graph.Node {
	record := b.resource(recordID(name, b.cfg.DomainName), &resources.RecordSet{
		Zone:     zone.Ref(graph.EdgeScope),
		ZoneName: b.cfg.DomainName,
		Name:     name,
		Kind:     resources.RecordA,
		IPs:      []any{eip.Ref(graph.EdgeReference)},
	})
	b.dependsOn(record, assoc)
	return record
}

// recordID maps api.reign or api.reign.<zone> to ApiReignEc2ARecord.
func recordID(name, zone string) graph.ID {
	name = strings.TrimSuffix(name, ".")
	name = strings.TrimSuffix(name, "."+strings.TrimSuffix(zone, "."))

	var sb strings.Builder
	upper := true
	for _, r := range name {
		switch {
		case r == '.' || r == '-':
			upper = true
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if upper {
				r = unicode.ToUpper(r)
				upper = false
			}
			if r <= unicode.MaxASCII {
				sb.WriteRune(r)
			}
		}
	}
	return graph.ID(sb.String() + "Ec2ARecord")
}

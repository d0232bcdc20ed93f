package stack

import (
	"fmt"

	"infrastructure/errors"
	"infrastructure/graph"
	"infrastructure/resources"
)

type recordKey struct {
	zone string
	name string
	kind resources.RecordType
}

// Check verifies a compiled graph against the invariants every deployment
// holds. It reports the first violation.
func Check(g *graph.Graph) error {
	if !g.Compiled() {
		return errors.New(errors.ErrGraph, "graph is not compiled", map[string]interface{}{}, graph.NotCompiledError{})
	}

	violation := func(id graph.ID, format string, args ...any) error {
		return errors.New(errors.ErrDeclaration, fmt.Sprintf(format, args...),
			map[string]interface{}{
				"logical_id": string(id),
			}, nil)
	}

	for _, n := range g.Nodes() {
		if v, ok := n.Declaration.(resources.Validator); ok {
			if err := v.Validate(); err != nil {
				return errors.New(errors.ErrDeclaration, "invalid declaration",
					map[string]interface{}{
						"logical_id": string(n.ID),
					}, err)
			}
		}
	}

	for _, n := range g.NodesOfType("AWS::EC2::Instance") {
		groups, images := 0, 0
		for _, e := range g.DependenciesOf(n.ID) {
			target, _ := g.Node(e.To)
			switch target.Declaration.(type) {
			case *resources.SecurityGroup:
				groups++
			case *resources.MachineImage:
				images++
			}
		}
		if groups == 0 {
			return violation(n.ID, "instance %s references no security group", n.ID)
		}
		if images != 1 {
			return violation(n.ID, "instance %s references %d machine images, want 1", n.ID, images)
		}
	}

	associated := make(map[graph.ID]graph.ID)
	for _, n := range g.NodesOfType("AWS::EC2::EIPAssociation") {
		instances, eips := 0, 0
		var instance graph.ID
		for _, e := range g.DependenciesOf(n.ID) {
			target, _ := g.Node(e.To)
			switch target.Declaration.(type) {
			case *resources.Instance:
				instances++
				instance = e.To
			case *resources.ElasticIP:
				eips++
			}
		}
		if instances != 1 || eips != 1 {
			return violation(n.ID, "association %s binds %d addresses to %d instances, want 1 and 1", n.ID, eips, instances)
		}
		if prev, dup := associated[instance]; dup {
			return violation(n.ID, "instance %s already associated by %s", instance, prev)
		}
		associated[instance] = n.ID
	}

	records := make(map[recordKey]graph.ID)
	for _, n := range g.NodesOfType("AWS::Route53::RecordSet") {
		r := n.Declaration.(*resources.RecordSet)
		key := recordKey{zone: r.ZoneName, name: r.FQDN(), kind: r.Kind}
		if prev, dup := records[key]; dup {
			return violation(n.ID, "record %s %s already declared by %s", r.Kind, r.FQDN(), prev)
		}
		records[key] = n.ID

		if r.Alias != nil {
			continue
		}
		// Address records must wait for the binding of the address they name.
		if eip, ok := unboundAddress(g, n.ID); !ok {
			return violation(n.ID, "record %s is not ordered after the association of %s", r.FQDN(), eip)
		}
	}

	for _, id := range []graph.ID{BackupBucketID, WebsiteBucketID} {
		n, ok := g.Node(id)
		if !ok {
			return violation(id, "bucket %s is not declared", id)
		}
		bucket, ok := n.Declaration.(*resources.Bucket)
		if !ok || !bucket.PublicAccess.FullyBlocked() {
			return violation(id, "bucket %s does not block all public access", id)
		}
	}
	return nil
}

// unboundAddress returns the first elastic IP the record names without a
// DependsOn edge to the association that binds it.
func unboundAddress(g *graph.Graph, record graph.ID) (graph.ID, bool) {
	bound := make(map[graph.ID]bool)
	for _, e := range g.DependenciesOf(record) {
		if e.Kind != graph.EdgeDependsOn {
			continue
		}
		target, ok := g.Node(e.To)
		if !ok {
			continue
		}
		if _, ok := target.Declaration.(*resources.EIPAssociation); !ok {
			continue
		}
		for _, a := range g.DependenciesOf(e.To) {
			if n, ok := g.Node(a.To); ok {
				if _, isEIP := n.Declaration.(*resources.ElasticIP); isEIP {
					bound[a.To] = true
				}
			}
		}
	}

	for _, e := range g.DependenciesOf(record) {
		target, ok := g.Node(e.To)
		if !ok {
			continue
		}
		if _, isEIP := target.Declaration.(*resources.ElasticIP); isEIP && !bound[e.To] {
			return e.To, false
		}
	}
	return "", true
}

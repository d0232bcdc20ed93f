package drift

import (
	"fmt"
	"sort"

	"infrastructure/graph"
	"infrastructure/resources"
)

// Expectation is what the graph declares about one instance.
type Expectation struct {
	LogicalID      graph.ID
	InstanceType   string
	KeyName        string
	SecurityGroups []graph.ID
	// ElasticIP is empty when no address is associated with the instance.
	ElasticIP graph.ID
}

// Expectations lists every instance declared in g, in topological order.
func Expectations(g *graph.Graph) ([]Expectation, error) {
	order, err := g.TopoOrder()
	if err != nil {
		return nil, err
	}

	addresses := make(map[graph.ID]graph.ID)
	for _, n := range g.NodesOfType("AWS::EC2::EIPAssociation") {
		assoc, ok := n.Declaration.(*resources.EIPAssociation)
		if !ok {
			continue
		}
		instance, eip := target(assoc.Instance), target(assoc.Allocation)
		if instance != "" && eip != "" {
			addresses[instance] = eip
		}
	}

	var result []Expectation
	for _, id := range order {
		n, _ := g.Node(id)
		if n.Class != graph.ClassResource {
			continue
		}
		inst, ok := n.Declaration.(*resources.Instance)
		if !ok {
			continue
		}
		exp := Expectation{
			LogicalID:    id,
			InstanceType: inst.InstanceType,
			KeyName:      inst.KeyName,
			ElasticIP:    addresses[id],
		}
		graph.Walk(inst.SecurityGroups, func(r graph.Reference) {
			exp.SecurityGroups = append(exp.SecurityGroups, r.Target)
		})
		if len(exp.SecurityGroups) == 0 {
			return nil, fmt.Errorf("instance %s declares no security group references", id)
		}
		result = append(result, exp)
	}
	return result, nil
}

func target(v any) graph.ID {
	var id graph.ID
	graph.Walk(v, func(r graph.Reference) {
		if id == "" {
			id = r.Target
		}
	})
	return id
}

// resolve maps logical IDs to physical IDs, sorted. Missing IDs are reported.
func resolve(ids []graph.ID, physical map[string]string) ([]string, []graph.ID) {
	var resolved []string
	var missing []graph.ID
	for _, id := range ids {
		if p, ok := physical[string(id)]; ok && p != "" {
			resolved = append(resolved, p)
			continue
		}
		missing = append(missing, id)
	}
	sort.Strings(resolved)
	return resolved, missing
}

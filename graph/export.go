package graph

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SnapshotNode is the exported view of a node.
type SnapshotNode struct {
	ID    ID     `json:"id"`
	Type  string `json:"type"`
	Class Class  `json:"class"`
}

// Snapshot is a serializable copy of a compiled graph.
type Snapshot struct {
	Nodes     []SnapshotNode `json:"nodes"`
	Edges     []Edge         `json:"edges"`
	TopoOrder []ID           `json:"topoOrder"`
	Stats     Stats          `json:"stats"`
}

// Snapshot exports the graph. It fails if the graph is not compiled.
func (g *Graph) Snapshot() (Snapshot, error) {
	topo, err := g.TopoOrder()
	if err != nil {
		return Snapshot{}, err
	}
	nodes := make([]SnapshotNode, 0, len(g.order))
	for _, n := range g.Nodes() {
		nodes = append(nodes, SnapshotNode{ID: n.ID, Type: n.Declaration.Type(), Class: n.Class})
	}
	return Snapshot{
		Nodes:     nodes,
		Edges:     g.Edges(),
		TopoOrder: topo,
		Stats:     g.Stats(),
	}, nil
}

// JSON exports the snapshot as indented JSON.
func (s Snapshot) JSON() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// DOT exports Graphviz DOT text. External and parameter nodes are dashed.
func (s Snapshot) DOT() string {
	var b strings.Builder
	b.WriteString("digraph infrastructure {\n")
	b.WriteString("  rankdir=LR;\n")

	aliases := make(map[ID]string, len(s.Nodes))
	for i, n := range s.Nodes {
		alias := fmt.Sprintf("n%d", i)
		aliases[n.ID] = alias
		label := escapeDOT(string(n.ID)) + "\\n(" + escapeDOT(n.Type) + ")"
		style := ""
		if n.Class != ClassResource {
			style = ", style=dashed"
		}
		b.WriteString(fmt.Sprintf("  %s [label=\"%s\"%s];\n", alias, label, style))
	}
	for _, e := range s.Edges {
		from, okFrom := aliases[e.From]
		to, okTo := aliases[e.To]
		if !okFrom || !okTo {
			continue
		}
		b.WriteString(fmt.Sprintf("  %s -> %s [label=\"%s\"];\n", from, to, e.Kind))
	}
	b.WriteString("}\n")
	return b.String()
}

// Mermaid exports Mermaid graph text.
func (s Snapshot) Mermaid() string {
	var b strings.Builder
	b.WriteString("graph TD\n")

	aliases := make(map[ID]string, len(s.Nodes))
	for i, n := range s.Nodes {
		alias := fmt.Sprintf("n%d", i)
		aliases[n.ID] = alias
		label := escapeMermaid(string(n.ID)) + "<br/>(" + escapeMermaid(n.Type) + ")"
		b.WriteString(fmt.Sprintf("    %s[\"%s\"]\n", alias, label))
	}
	for _, e := range s.Edges {
		from, okFrom := aliases[e.From]
		to, okTo := aliases[e.To]
		if !okFrom || !okTo {
			continue
		}
		b.WriteString(fmt.Sprintf("    %s -->|%s| %s\n", from, e.Kind, to))
	}
	return b.String()
}

func escapeDOT(s string) string {
	return strings.ReplaceAll(s, "\"", "\\\"")
}

func escapeMermaid(s string) string {
	return strings.ReplaceAll(s, "\"", "#quot;")
}

// Package graph holds the resource dependency graph: named declarations
// connected by typed reference edges, validated and topologically ordered
// before anything is emitted.
package graph

import (
	"regexp"
	"sort"
)

// ID is the logical identifier of a node, unique within one graph.
type ID string

// Class tells the emitter what to do with a node.
type Class string

const (
	// ClassResource nodes are created and owned by the stack.
	ClassResource Class = "resource"
	// ClassParameter nodes are resolved by the engine at apply time.
	ClassParameter Class = "parameter"
	// ClassExternal nodes already exist and are only referenced.
	ClassExternal Class = "external"
)

// EdgeKind classifies why one node depends on another.
type EdgeKind string

const (
	EdgeReference   EdgeKind = "reference"
	EdgeAttribute   EdgeKind = "attribute"
	EdgeAttachment  EdgeKind = "attachment"
	EdgeAssociation EdgeKind = "association"
	EdgeAlias       EdgeKind = "alias"
	EdgeOrigin      EdgeKind = "origin"
	EdgeScope       EdgeKind = "scope"
	EdgeTarget      EdgeKind = "target"
	EdgeDependsOn   EdgeKind = "depends_on"
)

// Declaration is what a node carries.
type Declaration interface {
	// Type is the provider type name, e.g. AWS::S3::Bucket.
	Type() string
	// Properties may contain Reference and Join values at any depth.
	Properties() map[string]any
}

// Literal is implemented by external declarations, which resolve their
// references locally instead of through the engine.
type Literal interface {
	Literal(attribute string) (any, bool)
}

// Node is one declaration in the graph.
type Node struct {
	ID          ID
	Class       Class
	Declaration Declaration
}

// Ref is a primary reference to this node.
func (n *Node) Ref(kind EdgeKind) Reference {
	return Ref(n.ID, kind)
}

// Attr is an attribute reference to this node.
func (n *Node) Attr(attribute string, kind EdgeKind) Reference {
	return Attr(n.ID, attribute, kind)
}

// Edge means "From depends on To".
type Edge struct {
	From      ID       `json:"from"`
	To        ID       `json:"to"`
	Kind      EdgeKind `json:"kind"`
	Attribute string   `json:"attribute,omitempty"`
}

var validID = regexp.MustCompile(`^[A-Za-z0-9]{1,255}$`)

// Graph collects declarations. It is built in a single pass and is not safe
// for concurrent mutation.
type Graph struct {
	nodes    map[ID]*Node
	order    []ID
	explicit []Edge

	edges    []Edge
	deps     map[ID][]Edge
	topo     []ID
	compiled bool
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		nodes: make(map[ID]*Node),
		deps:  make(map[ID][]Edge),
	}
}

// AddResource declares a node the stack creates.
func (g *Graph) AddResource(id ID, decl Declaration) (*Node, error) {
	return g.add(id, ClassResource, decl)
}

// AddParameter declares a node resolved by the engine at apply time.
func (g *Graph) AddParameter(id ID, decl Declaration) (*Node, error) {
	return g.add(id, ClassParameter, decl)
}

// AddExternal declares a node that already exists outside the stack.
func (g *Graph) AddExternal(id ID, decl Declaration) (*Node, error) {
	return g.add(id, ClassExternal, decl)
}

func (g *Graph) add(id ID, class Class, decl Declaration) (*Node, error) {
	if !validID.MatchString(string(id)) {
		return nil, InvalidIDError{ID: id}
	}
	if _, exists := g.nodes[id]; exists {
		return nil, DuplicateNodeError{ID: id}
	}
	node := &Node{ID: id, Class: class, Declaration: decl}
	g.nodes[id] = node
	g.order = append(g.order, id)
	g.compiled = false
	return node, nil
}

// DependsOn records an ordering edge that no property expresses.
func (g *Graph) DependsOn(from, to ID) {
	g.explicit = append(g.explicit, Edge{From: from, To: to, Kind: EdgeDependsOn})
	g.compiled = false
}

// Node returns the node with the given ID.
func (g *Graph) Node(id ID) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns all nodes in declaration order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// NodesOfType returns the nodes whose declaration has the given type, in
// declaration order.
func (g *Graph) NodesOfType(typeName string) []*Node {
	var out []*Node
	for _, id := range g.order {
		if n := g.nodes[id]; n.Declaration.Type() == typeName {
			out = append(out, n)
		}
	}
	return out
}

// Compile collects edges from node properties and explicit DependsOn calls,
// validates them and computes the topological order.
func (g *Graph) Compile() error {
	edges := make([]Edge, 0, len(g.order))
	deps := make(map[ID][]Edge, len(g.order))
	seen := make(map[Edge]struct{})

	addEdge := func(e Edge) error {
		if _, ok := g.nodes[e.To]; !ok {
			return DependencyNotFoundError{From: e.From, To: e.To}
		}
		if e.From == e.To {
			return CycleDetectedError{Path: []ID{e.From, e.To}}
		}
		if _, dup := seen[e]; dup {
			return nil
		}
		seen[e] = struct{}{}
		edges = append(edges, e)
		deps[e.From] = append(deps[e.From], e)
		return nil
	}

	for _, id := range g.order {
		var err error
		Walk(g.nodes[id].Declaration.Properties(), func(r Reference) {
			if err != nil {
				return
			}
			kind := r.Kind
			if kind == "" {
				kind = EdgeReference
			}
			err = addEdge(Edge{From: id, To: r.Target, Kind: kind, Attribute: r.Attribute})
		})
		if err != nil {
			return err
		}
	}
	for _, e := range g.explicit {
		if _, ok := g.nodes[e.From]; !ok {
			return DependencyNotFoundError{From: e.From, To: e.To}
		}
		if err := addEdge(e); err != nil {
			return err
		}
	}

	g.edges = edges
	g.deps = deps
	topo, err := g.topoSort()
	if err != nil {
		return err
	}
	g.topo = topo
	g.compiled = true
	return nil
}

// Compiled reports whether the graph has been compiled since the last change.
func (g *Graph) Compiled() bool {
	return g.compiled
}

// Edges returns every edge in discovery order.
func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// DependenciesOf returns the edges leaving id.
func (g *Graph) DependenciesOf(id ID) []Edge {
	out := make([]Edge, len(g.deps[id]))
	copy(out, g.deps[id])
	return out
}

// DependentsOf returns the edges arriving at id.
func (g *Graph) DependentsOf(id ID) []Edge {
	var out []Edge
	for _, e := range g.edges {
		if e.To == id {
			out = append(out, e)
		}
	}
	return out
}

// TopoOrder returns nodes ordered dependencies first. Ties are broken by
// declaration order, so the result is the same on every compile.
func (g *Graph) TopoOrder() ([]ID, error) {
	if !g.compiled {
		return nil, NotCompiledError{}
	}
	out := make([]ID, len(g.topo))
	copy(out, g.topo)
	return out, nil
}

func (g *Graph) topoSort() ([]ID, error) {
	const (
		stateNew uint8 = iota
		stateVisiting
		stateDone
	)

	state := make(map[ID]uint8, len(g.order))
	stack := make([]ID, 0, len(g.order))
	stackPos := make(map[ID]int, len(g.order))
	topo := make([]ID, 0, len(g.order))

	index := make(map[ID]int, len(g.order))
	for i, id := range g.order {
		index[id] = i
	}

	var dfs func(id ID) error
	dfs = func(id ID) error {
		state[id] = stateVisiting
		stackPos[id] = len(stack)
		stack = append(stack, id)

		deps := make([]Edge, len(g.deps[id]))
		copy(deps, g.deps[id])
		sort.SliceStable(deps, func(i, j int) bool { return index[deps[i].To] < index[deps[j].To] })

		for _, dep := range deps {
			switch state[dep.To] {
			case stateVisiting:
				cycle := append([]ID(nil), stack[stackPos[dep.To]:]...)
				cycle = append(cycle, dep.To)
				return CycleDetectedError{Path: cycle}
			case stateNew:
				if err := dfs(dep.To); err != nil {
					return err
				}
			}
		}

		stack = stack[:len(stack)-1]
		delete(stackPos, id)
		state[id] = stateDone
		topo = append(topo, id)
		return nil
	}

	for _, id := range g.order {
		if state[id] != stateNew {
			continue
		}
		if err := dfs(id); err != nil {
			return nil, err
		}
	}
	return topo, nil
}

// Stats summarizes the graph.
type Stats struct {
	TotalNodes   int              `json:"total_nodes"`
	TotalEdges   int              `json:"total_edges"`
	NodesByType  map[string]int   `json:"nodes_by_type"`
	NodesByClass map[Class]int    `json:"nodes_by_class"`
	EdgesByKind  map[EdgeKind]int `json:"edges_by_kind"`
	Roots        []ID             `json:"roots"`
	Leaves       []ID             `json:"leaves"`
}

// Stats computes counts per type, class and edge kind, and the nodes with no
// dependencies (roots) and no dependents (leaves).
func (g *Graph) Stats() Stats {
	s := Stats{
		TotalNodes:   len(g.order),
		TotalEdges:   len(g.edges),
		NodesByType:  make(map[string]int),
		NodesByClass: make(map[Class]int),
		EdgesByKind:  make(map[EdgeKind]int),
	}
	hasDependents := make(map[ID]bool)
	for _, e := range g.edges {
		s.EdgesByKind[e.Kind]++
		hasDependents[e.To] = true
	}
	for _, id := range g.order {
		n := g.nodes[id]
		s.NodesByType[n.Declaration.Type()]++
		s.NodesByClass[n.Class]++
		if len(g.deps[id]) == 0 {
			s.Roots = append(s.Roots, id)
		}
		if !hasDependents[id] {
			s.Leaves = append(s.Leaves, id)
		}
	}
	sort.Slice(s.Roots, func(i, j int) bool { return s.Roots[i] < s.Roots[j] })
	sort.Slice(s.Leaves, func(i, j int) bool { return s.Leaves[i] < s.Leaves[j] })
	return s
}

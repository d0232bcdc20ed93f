package graph

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDecl struct {
	typeName string
	props    map[string]any
}

func (f fakeDecl) Type() string               { return f.typeName }
func (f fakeDecl) Properties() map[string]any { return f.props }

func decl(props map[string]any) fakeDecl {
	return fakeDecl{typeName: "Test::Node", props: props}
}

func indexOf(order []ID, id ID) int {
	for i, v := range order {
		if v == id {
			return i
		}
	}
	return -1
}

func TestGraph_Add(t *testing.T) {
	tests := []struct {
		name    string
		ids     []ID
		wantErr error
	}{
		{name: "unique ids", ids: []ID{"A", "B"}},
		{name: "duplicate id", ids: []ID{"A", "A"}, wantErr: DuplicateNodeError{ID: "A"}},
		{name: "non alphanumeric id", ids: []ID{"my-bucket"}, wantErr: InvalidIDError{ID: "my-bucket"}},
		{name: "empty id", ids: []ID{""}, wantErr: InvalidIDError{ID: ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New()
			var err error
			for _, id := range tt.ids {
				if _, err = g.AddResource(id, decl(nil)); err != nil {
					break
				}
			}
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
				return
			}
			assert.NoError(t, err)
			assert.Len(t, g.Nodes(), len(tt.ids))
		})
	}
}

func TestGraph_CompileOrdersDependenciesFirst(t *testing.T) {
	g := New()
	_, err := g.AddResource("Record", decl(map[string]any{
		"ResourceRecords": []any{Ref("Eip", EdgeReference)},
	}))
	require.NoError(t, err)
	_, err = g.AddResource("Association", decl(map[string]any{
		"AllocationId": Attr("Eip", "AllocationId", EdgeAssociation),
		"InstanceId":   Ref("Instance", EdgeAssociation),
	}))
	require.NoError(t, err)
	_, err = g.AddResource("Instance", decl(map[string]any{
		"SecurityGroupIds": []Reference{Attr("Group", "GroupId", EdgeAttachment)},
	}))
	require.NoError(t, err)
	_, err = g.AddResource("Group", decl(map[string]any{"VpcId": Ref("Vpc", EdgeReference)}))
	require.NoError(t, err)
	_, err = g.AddResource("Eip", decl(map[string]any{"Domain": "vpc"}))
	require.NoError(t, err)
	_, err = g.AddExternal("Vpc", decl(nil))
	require.NoError(t, err)
	g.DependsOn("Record", "Association")

	require.NoError(t, g.Compile())
	order, err := g.TopoOrder()
	require.NoError(t, err)
	require.Len(t, order, 6)

	for _, e := range g.Edges() {
		assert.Less(t, indexOf(order, e.To), indexOf(order, e.From), "%s must come before %s", e.To, e.From)
	}

	deps := g.DependenciesOf("Record")
	require.Len(t, deps, 2)
	assert.Equal(t, EdgeReference, deps[0].Kind)
	assert.Equal(t, Edge{From: "Record", To: "Association", Kind: EdgeDependsOn}, deps[1])

	assert.Len(t, g.DependentsOf("Eip"), 2)
}

func TestGraph_CompileIsDeterministic(t *testing.T) {
	build := func() *Graph {
		g := New()
		_, err := g.AddResource("Instance", decl(map[string]any{
			"ImageId":            Ref("Image", EdgeReference),
			"SecurityGroupIds":   []any{Attr("Group", "GroupId", EdgeAttachment)},
			"IamInstanceProfile": Ref("Profile", EdgeReference),
			"Tags":               map[string]any{"b": Ref("Group", EdgeReference), "a": Ref("Image", EdgeReference)},
		}))
		require.NoError(t, err)
		for _, id := range []ID{"Profile", "Image", "Group"} {
			_, err = g.AddResource(id, decl(nil))
			require.NoError(t, err)
		}
		require.NoError(t, g.Compile())
		return g
	}

	orders := make(map[string]int)
	dots := make(map[string]int)
	for i := 0; i < 100; i++ {
		g := build()
		order, err := g.TopoOrder()
		require.NoError(t, err)
		snap, err := g.Snapshot()
		require.NoError(t, err)

		key, err := json.Marshal(struct {
			Order []ID
			Edges []Edge
		}{order, g.Edges()})
		require.NoError(t, err)
		orders[string(key)]++
		dots[snap.DOT()]++
	}

	assert.Len(t, orders, 1)
	assert.Len(t, dots, 1)

	order, err := build().TopoOrder()
	require.NoError(t, err)
	assert.Equal(t, []ID{"Profile", "Image", "Group", "Instance"}, order)
}

func TestGraph_CompileErrors(t *testing.T) {
	t.Run("dangling reference", func(t *testing.T) {
		g := New()
		_, err := g.AddResource("A", decl(map[string]any{"X": Ref("Missing", EdgeReference)}))
		require.NoError(t, err)
		assert.Equal(t, DependencyNotFoundError{From: "A", To: "Missing"}, g.Compile())
	})

	t.Run("reference inside join", func(t *testing.T) {
		g := New()
		_, err := g.AddResource("A", decl(map[string]any{
			"Arn": Join{Parts: []any{"arn:aws:ec2:", Ref("Missing", EdgeScope)}},
		}))
		require.NoError(t, err)
		assert.Equal(t, DependencyNotFoundError{From: "A", To: "Missing"}, g.Compile())
	})

	t.Run("cycle", func(t *testing.T) {
		g := New()
		_, err := g.AddResource("A", decl(map[string]any{"X": Ref("B", EdgeReference)}))
		require.NoError(t, err)
		_, err = g.AddResource("B", decl(map[string]any{"X": Ref("A", EdgeReference)}))
		require.NoError(t, err)

		err = g.Compile()
		var cycle CycleDetectedError
		require.ErrorAs(t, err, &cycle)
		assert.Equal(t, []ID{"A", "B", "A"}, cycle.Path)
		assert.False(t, g.Compiled())
	})

	t.Run("self reference", func(t *testing.T) {
		g := New()
		_, err := g.AddResource("A", decl(map[string]any{"X": Ref("A", EdgeReference)}))
		require.NoError(t, err)
		assert.IsType(t, CycleDetectedError{}, g.Compile())
	})

	t.Run("explicit edge from unknown node", func(t *testing.T) {
		g := New()
		_, err := g.AddResource("A", decl(nil))
		require.NoError(t, err)
		g.DependsOn("Ghost", "A")
		assert.Equal(t, DependencyNotFoundError{From: "Ghost", To: "A"}, g.Compile())
	})

	t.Run("order before compile", func(t *testing.T) {
		_, err := New().TopoOrder()
		assert.Equal(t, NotCompiledError{}, err)
	})
}

func TestGraph_DuplicateReferencesCollapse(t *testing.T) {
	g := New()
	_, err := g.AddResource("Bucket", decl(nil))
	require.NoError(t, err)
	_, err = g.AddResource("Policy", decl(map[string]any{
		"Resources": []any{
			Attr("Bucket", "Arn", EdgeScope),
			Join{Parts: []any{Attr("Bucket", "Arn", EdgeScope), "/*"}},
		},
	}))
	require.NoError(t, err)
	require.NoError(t, g.Compile())
	assert.Len(t, g.Edges(), 1)
}

func TestTransform(t *testing.T) {
	in := map[string]any{
		"Plain": "value",
		"Ref":   Ref("A", EdgeReference),
		"List":  []string{"x", "y"},
		"Join":  Join{Delimiter: "", Parts: []any{"arn:", Ref("B", EdgeScope)}},
		"Map":   map[string]string{"k": "v"},
	}
	out := Transform(in, func(r Reference) any { return "<" + string(r.Target) + ">" })

	assert.Equal(t, map[string]any{
		"Plain": "value",
		"Ref":   "<A>",
		"List":  []any{"x", "y"},
		"Join":  map[string]any{"Fn::Join": []any{"", []any{"arn:", "<B>"}}},
		"Map":   map[string]any{"k": "v"},
	}, out)
}

func TestSnapshotExports(t *testing.T) {
	g := New()
	_, err := g.AddExternal("Zone", decl(nil))
	require.NoError(t, err)
	_, err = g.AddResource("Record", decl(map[string]any{"HostedZoneId": Ref("Zone", EdgeReference)}))
	require.NoError(t, err)

	_, err = g.Snapshot()
	require.Error(t, err)

	require.NoError(t, g.Compile())
	snap, err := g.Snapshot()
	require.NoError(t, err)

	assert.Equal(t, []ID{"Zone", "Record"}, snap.TopoOrder)
	assert.Equal(t, 2, snap.Stats.TotalNodes)
	assert.Equal(t, []ID{"Zone"}, snap.Stats.Roots)
	assert.Equal(t, []ID{"Record"}, snap.Stats.Leaves)
	assert.Equal(t, 1, snap.Stats.NodesByClass[ClassExternal])

	dot := snap.DOT()
	assert.Contains(t, dot, "digraph infrastructure {")
	assert.Contains(t, dot, `n0 [label="Zone\n(Test::Node)", style=dashed];`)
	assert.Contains(t, dot, `n1 -> n0 [label="reference"];`)

	mermaid := snap.Mermaid()
	assert.Contains(t, mermaid, "graph TD\n")
	assert.Contains(t, mermaid, "n1 -->|reference| n0")

	raw, err := snap.JSON()
	require.NoError(t, err)
	var decoded Snapshot
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, snap.Edges, decoded.Edges)
}

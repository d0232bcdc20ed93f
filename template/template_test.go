package template

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"infrastructure/errors"
	"infrastructure/graph"
)

type decl struct {
	typ   string
	props map[string]any
}

func (d decl) Type() string               { return d.typ }
func (d decl) Properties() map[string]any { return d.props }

type retained struct{ decl }

func (retained) DeletionPolicy() string { return "Delete" }

type external struct {
	decl
	value string
}

func (e external) Literal(attribute string) (any, bool) {
	if attribute == "" {
		return e.value, true
	}
	return nil, false
}

func buildGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New()

	_, err := g.AddResource("Association", decl{typ: "AWS::EC2::EIPAssociation", props: map[string]any{
		"AllocationId": graph.Attr("Address", "AllocationId", graph.EdgeAssociation),
		"InstanceId":   graph.Ref("Host", graph.EdgeAssociation),
	}})
	require.NoError(t, err)
	_, err = g.AddResource("Record", decl{typ: "AWS::Route53::RecordSet", props: map[string]any{
		"HostedZoneId":    graph.Ref("Zone", graph.EdgeScope),
		"ResourceRecords": []any{graph.Ref("Address", graph.EdgeReference)},
	}})
	require.NoError(t, err)
	g.DependsOn("Record", "Association")
	_, err = g.AddResource("Host", decl{typ: "AWS::EC2::Instance", props: map[string]any{
		"ImageId": graph.Ref("Image", graph.EdgeReference),
		"Arn":     graph.Join{Delimiter: "", Parts: []any{"arn:aws:ec2:us-east-1:1:instance/", graph.Ref("Zone", graph.EdgeReference)}},
	}})
	require.NoError(t, err)
	_, err = g.AddResource("Address", retained{decl{typ: "AWS::EC2::EIP", props: map[string]any{"Domain": "vpc"}}})
	require.NoError(t, err)
	_, err = g.AddParameter("Image", decl{typ: "AWS::SSM::Parameter::Value<AWS::EC2::Image::Id>", props: map[string]any{"Default": "/aws/path"}})
	require.NoError(t, err)
	_, err = g.AddExternal("Zone", external{decl: decl{typ: "AWS::Route53::HostedZone"}, value: "Z123"})
	require.NoError(t, err)

	require.NoError(t, g.Compile())
	return g
}

func TestRender(t *testing.T) {
	g := buildGraph(t)
	tpl, err := Render(g, Options{
		Description: "test stack",
		Outputs:     []Output{{Name: "IP", Description: "address", Value: graph.Ref("Address", graph.EdgeReference)}},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, tpl.Parameters.Len())
	assert.Equal(t, 4, tpl.Resources.Len(), "external nodes are not emitted")

	keys := tpl.Resources.Keys()
	index := func(id string) int {
		for i, k := range keys {
			if k == id {
				return i
			}
		}
		return -1
	}
	assert.Less(t, index("Address"), index("Association"))
	assert.Less(t, index("Host"), index("Association"))
	assert.Less(t, index("Association"), index("Record"))

	out, err := tpl.JSON()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(out, &doc))
	assert.Equal(t, FormatVersion, doc["AWSTemplateFormatVersion"])
	assert.Equal(t, "test stack", doc["Description"])

	resources := doc["Resources"].(map[string]any)
	record := resources["Record"].(map[string]any)
	assert.Equal(t, []any{"Association"}, record["DependsOn"])
	props := record["Properties"].(map[string]any)
	assert.Equal(t, "Z123", props["HostedZoneId"], "external references render as literals")
	assert.Equal(t, []any{map[string]any{"Ref": "Address"}}, props["ResourceRecords"])

	assoc := resources["Association"].(map[string]any)["Properties"].(map[string]any)
	assert.Equal(t, map[string]any{"Fn::GetAtt": []any{"Address", "AllocationId"}}, assoc["AllocationId"])

	host := resources["Host"].(map[string]any)["Properties"].(map[string]any)
	assert.Equal(t, map[string]any{"Ref": "Image"}, host["ImageId"])
	assert.Equal(t, map[string]any{"Fn::Join": []any{"", []any{"arn:aws:ec2:us-east-1:1:instance/", "Z123"}}}, host["Arn"])

	address := resources["Address"].(map[string]any)
	assert.Equal(t, "Delete", address["DeletionPolicy"])

	params := doc["Parameters"].(map[string]any)["Image"].(map[string]any)
	assert.Equal(t, "AWS::SSM::Parameter::Value<AWS::EC2::Image::Id>", params["Type"])
	assert.Equal(t, "/aws/path", params["Default"])

	outputs := doc["Outputs"].(map[string]any)["IP"].(map[string]any)
	assert.Equal(t, map[string]any{"Ref": "Address"}, outputs["Value"])

	assert.NotContains(t, string(out), `"Ref": "Zone"`)
	assert.Less(t, strings.Index(string(out), `"Address"`), strings.Index(string(out), `"Record"`))
}

func TestRenderYAML(t *testing.T) {
	tpl, err := Render(buildGraph(t), Options{})
	require.NoError(t, err)

	out, err := tpl.YAML()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(out, &doc))
	assert.Equal(t, FormatVersion, doc["AWSTemplateFormatVersion"])
	_, hasOutputs := doc["Outputs"]
	assert.False(t, hasOutputs)

	resources := doc["Resources"].(map[string]any)
	assert.Len(t, resources, 4)
	record := resources["Record"].(map[string]any)["Properties"].(map[string]any)
	assert.Equal(t, "Z123", record["HostedZoneId"])

	same, err := tpl.Encode("yml")
	require.NoError(t, err)
	assert.Equal(t, out, same)
}

func TestRenderErrors(t *testing.T) {
	t.Run("not compiled", func(t *testing.T) {
		g := graph.New()
		_, err := g.AddResource("A", decl{typ: "AWS::S3::Bucket"})
		require.NoError(t, err)

		_, err = Render(g, Options{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrRender))
		var notCompiled graph.NotCompiledError
		assert.True(t, errors.As(err, &notCompiled))
	})

	t.Run("unknown external attribute", func(t *testing.T) {
		g := graph.New()
		_, err := g.AddExternal("Zone", external{decl: decl{typ: "AWS::Route53::HostedZone"}, value: "Z1"})
		require.NoError(t, err)
		_, err = g.AddResource("Record", decl{typ: "AWS::Route53::RecordSet", props: map[string]any{
			"Zone": graph.Attr("Zone", "NameServers", graph.EdgeScope),
		}})
		require.NoError(t, err)
		require.NoError(t, g.Compile())

		_, err = Render(g, Options{})
		require.Error(t, err)
		assert.True(t, errors.Is(err, errors.ErrRender))
	})

	t.Run("unknown format", func(t *testing.T) {
		tpl, err := Render(buildGraph(t), Options{})
		require.NoError(t, err)
		_, err = tpl.Encode("toml")
		assert.Error(t, err)
	})
}

func TestOrderedMap(t *testing.T) {
	m := newOrderedMap()
	m.Set("b", 1)
	m.Set("a", 2)
	m.Set("b", 3)
	assert.Equal(t, []string{"b", "a"}, m.Keys())

	out, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, `{"b":3,"a":2}`, string(out))

	m.Sort(0)
	assert.Equal(t, []string{"a", "b"}, m.Keys())
}

// Package template renders a compiled resource graph as a CloudFormation
// template, the hand-off format of the provisioning engine.
package template

import (
	"fmt"

	"go.uber.org/zap"

	"infrastructure/errors"
	"infrastructure/graph"
)

const packageName = "template"

// FormatVersion is the only template format version CloudFormation accepts.
const FormatVersion = "2010-09-09"

// Output is a stack output.
type Output struct {
	Name        string
	Description string
	Value       any
}

// Options tune what is rendered next to the resources.
type Options struct {
	Description string
	Outputs     []Output
}

type deletionPolicy interface {
	DeletionPolicy() string
}

// Template is a rendered template. Sections keep the graph's topological
// order when encoded.
type Template struct {
	Description string
	Parameters  *orderedMap
	Resources   *orderedMap
	Outputs     *orderedMap
}

// Render resolves every reference of g and lays resources out dependencies
// first. External nodes are inlined as literals and never emitted.
func Render(g *graph.Graph, opts Options) (*Template, error) {
	logger := zap.L().With(
		zap.String("package", packageName),
		zap.String("function", "Render"),
	)

	order, err := g.TopoOrder()
	if err != nil {
		return nil, errors.New(errors.ErrRender, "graph must be compiled before rendering", map[string]interface{}{}, err)
	}

	r := &resolver{g: g}
	t := &Template{
		Description: opts.Description,
		Parameters:  newOrderedMap(),
		Resources:   newOrderedMap(),
		Outputs:     newOrderedMap(),
	}

	for _, id := range order {
		n, _ := g.Node(id)
		switch n.Class {
		case graph.ClassExternal:
			continue
		case graph.ClassParameter:
			param := newOrderedMap()
			param.Set("Type", n.Declaration.Type())
			for k, v := range n.Declaration.Properties() {
				param.Set(k, r.resolve(id, v))
			}
			param.Sort(1)
			t.Parameters.Set(string(id), param)
		default:
			t.Resources.Set(string(id), r.resource(n))
		}
	}

	for _, o := range opts.Outputs {
		out := newOrderedMap()
		if o.Description != "" {
			out.Set("Description", o.Description)
		}
		out.Set("Value", r.resolve(graph.ID("Outputs"), o.Value))
		t.Outputs.Set(o.Name, out)
	}

	if r.err != nil {
		return nil, r.err
	}

	logger.Info("Template rendered",
		zap.Int("parameters", t.Parameters.Len()),
		zap.Int("resources", t.Resources.Len()),
		zap.Int("outputs", t.Outputs.Len()),
		zap.String("operation", "template_render"),
	)
	return t, nil
}

type resolver struct {
	g   *graph.Graph
	err error
}

func (r *resolver) resource(n *graph.Node) *orderedMap {
	res := newOrderedMap()
	res.Set("Type", n.Declaration.Type())

	var dependsOn []string
	for _, e := range r.g.DependenciesOf(n.ID) {
		if e.Kind != graph.EdgeDependsOn {
			continue
		}
		if target, ok := r.g.Node(e.To); ok && target.Class == graph.ClassResource {
			dependsOn = append(dependsOn, string(e.To))
		}
	}
	if len(dependsOn) > 0 {
		res.Set("DependsOn", dependsOn)
	}

	if props := n.Declaration.Properties(); len(props) > 0 {
		res.Set("Properties", r.resolve(n.ID, props))
	}
	if dp, ok := n.Declaration.(deletionPolicy); ok {
		res.Set("UpdateReplacePolicy", dp.DeletionPolicy())
		res.Set("DeletionPolicy", dp.DeletionPolicy())
	}
	return res
}

// resolve turns references into intrinsic functions, or literals for
// external nodes. The first failure is kept.
func (r *resolver) resolve(from graph.ID, v any) any {
	return graph.Transform(v, func(ref graph.Reference) any {
		target, ok := r.g.Node(ref.Target)
		if !ok {
			r.fail(from, ref, graph.DependencyNotFoundError{From: from, To: ref.Target})
			return nil
		}
		switch target.Class {
		case graph.ClassExternal:
			lit, ok := target.Declaration.(graph.Literal)
			if !ok {
				r.fail(from, ref, fmt.Errorf("external node %s has no literal value", ref.Target))
				return nil
			}
			val, ok := lit.Literal(ref.Attribute)
			if !ok {
				r.fail(from, ref, fmt.Errorf("external node %s has no attribute %q", ref.Target, ref.Attribute))
				return nil
			}
			return val
		case graph.ClassParameter:
			if ref.Attribute != "" {
				r.fail(from, ref, fmt.Errorf("parameter %s has no attributes", ref.Target))
				return nil
			}
			return map[string]any{"Ref": string(ref.Target)}
		}
		if ref.Attribute == "" {
			return map[string]any{"Ref": string(ref.Target)}
		}
		return map[string]any{"Fn::GetAtt": []any{string(ref.Target), ref.Attribute}}
	})
}

func (r *resolver) fail(from graph.ID, ref graph.Reference, err error) {
	if r.err != nil {
		return
	}
	r.err = errors.New(errors.ErrRender, "unresolvable reference",
		map[string]interface{}{
			"from":      string(from),
			"target":    string(ref.Target),
			"attribute": ref.Attribute,
		}, err)
}

// sections returns the top level layout of the template.
func (t *Template) sections() *orderedMap {
	root := newOrderedMap()
	root.Set("AWSTemplateFormatVersion", FormatVersion)
	if t.Description != "" {
		root.Set("Description", t.Description)
	}
	if t.Parameters.Len() > 0 {
		root.Set("Parameters", t.Parameters)
	}
	root.Set("Resources", t.Resources)
	if t.Outputs.Len() > 0 {
		root.Set("Outputs", t.Outputs)
	}
	return root
}

// Package stack declares the personal cloud: it runs the builders leaf to
// root against one graph, compiles it and checks the invariants every
// deployment must hold.
package stack

import (
	"crypto/sha256"
	"encoding/hex"

	"go.uber.org/zap"

	"infrastructure/configuration"
	"infrastructure/errors"
	"infrastructure/graph"
	"infrastructure/resources"
	"infrastructure/template"
)

const packageName = "stack"

// Inputs are the opaque blobs and lookups the declaration needs.
type Inputs struct {
	// UserData is passed verbatim to every instance.
	UserData []byte
	// FunctionArchive is the scheduled function bundle; only its key is declared.
	FunctionArchive []byte
	// SubnetID pins instances to a subnet, empty lets EC2 pick the default.
	SubnetID string
}

// Stack is a compiled declaration ready to be rendered.
type Stack struct {
	Name    string
	Graph   *graph.Graph
	Outputs []template.Output
	// Asset is set when the stack needs the function archive uploaded.
	Asset *Asset
}

// Asset is a file the engine must publish before deploying.
type Asset struct {
	Bucket string
	Key    string
	Data   []byte
}

// AssetKey is the content addressed object key of an archive.
func AssetKey(archive []byte) string {
	sum := sha256.Sum256(archive)
	return hex.EncodeToString(sum[:]) + ".zip"
}

// builder keeps the first declaration error and turns every later call into
// a no-op, so component code reads as a flat list of declarations.
type builder struct {
	cfg     *configuration.Config
	profile configuration.Profile
	inputs  Inputs
	g       *graph.Graph
	err     error

	groupNames map[string]graph.ID
	outputs    []template.Output
	asset      *Asset
}

func (b *builder) add(id graph.ID, class graph.Class, decl graph.Declaration) *graph.Node {
	if b.err != nil {
		return &graph.Node{ID: id, Class: class, Declaration: decl}
	}
	if v, ok := decl.(resources.Validator); ok {
		if err := v.Validate(); err != nil {
			b.fail(id, err)
			return &graph.Node{ID: id, Class: class, Declaration: decl}
		}
	}

	var (
		node *graph.Node
		err  error
	)
	switch class {
	case graph.ClassParameter:
		node, err = b.g.AddParameter(id, decl)
	case graph.ClassExternal:
		node, err = b.g.AddExternal(id, decl)
	default:
		node, err = b.g.AddResource(id, decl)
	}
	if err != nil {
		b.err = errors.New(errors.ErrGraph, "error adding node",
			map[string]interface{}{
				"logical_id": string(id),
			}, err)
		return &graph.Node{ID: id, Class: class, Declaration: decl}
	}
	return node
}

func (b *builder) resource(id graph.ID, decl graph.Declaration) *graph.Node {
	return b.add(id, graph.ClassResource, decl)
}

func (b *builder) parameter(id graph.ID, decl graph.Declaration) *graph.Node {
	return b.add(id, graph.ClassParameter, decl)
}

func (b *builder) external(id graph.ID, decl graph.Declaration) *graph.Node {
	return b.add(id, graph.ClassExternal, decl)
}

func (b *builder) dependsOn(from, to *graph.Node) {
	if b.err == nil {
		b.g.DependsOn(from.ID, to.ID)
	}
}

func (b *builder) output(name, description string, value any) {
	b.outputs = append(b.outputs, template.Output{Name: name, Description: description, Value: value})
}

func (b *builder) fail(id graph.ID, err error) {
	if b.err != nil {
		return
	}
	b.err = errors.New(errors.ErrDeclaration, "invalid declaration",
		map[string]interface{}{
			"logical_id": string(id),
		}, err)
}

// Build declares every component the profile enables and compiles the graph.
// Configuration is read here and nowhere else.
func Build(cfg *configuration.Config, profile configuration.Profile, inputs Inputs) (*Stack, error) {
	logger := zap.L().With(
		zap.String("package", packageName),
		zap.String("function", "Build"),
	)

	if cfg == nil {
		return nil, errors.New(errors.ErrConfigInvalid, "configuration is required", map[string]interface{}{}, nil)
	}
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	if profile.Schedule && len(inputs.FunctionArchive) == 0 {
		return nil, errors.New(errors.ErrInputRead, "function archive is empty",
			map[string]interface{}{
				"path": cfg.FunctionArchivePath,
			}, nil)
	}

	b := &builder{
		cfg:        cfg,
		profile:    profile,
		inputs:     inputs,
		g:          graph.New(),
		groupNames: make(map[string]graph.ID),
	}

	store := b.storage()
	site := b.contentDelivery(store)
	if profile.Network {
		net := b.network()
		if profile.Compute {
			hosts := b.compute(net, store)
			b.address(hosts, site.zone)
			if profile.Schedule {
				b.schedule(hosts.work)
			}
		}
	}
	if b.err != nil {
		return nil, b.err
	}

	if err := b.g.Compile(); err != nil {
		return nil, errors.New(errors.ErrGraph, "error compiling resource graph",
			map[string]interface{}{
				"stack": cfg.StackName,
			}, err)
	}
	if err := Check(b.g); err != nil {
		return nil, err
	}

	stats := b.g.Stats()
	logger.Info("Stack declared",
		zap.String("stack", cfg.StackName),
		zap.String("environment", profile.Name),
		zap.Int("nodes", stats.TotalNodes),
		zap.Int("edges", stats.TotalEdges),
		zap.String("operation", "stack_build"),
	)

	return &Stack{
		Name:    cfg.StackName,
		Graph:   b.g,
		Outputs: b.outputs,
		Asset:   b.asset,
	}, nil
}

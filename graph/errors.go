package graph

import (
	"fmt"
	"strings"
)

// InvalidIDError means a node ID is not a valid logical ID.
type InvalidIDError struct {
	ID ID
}

func (e InvalidIDError) Error() string {
	return fmt.Sprintf("invalid resource node id %q: must be alphanumeric", string(e.ID))
}

// DuplicateNodeError means the same ID was declared more than once.
type DuplicateNodeError struct {
	ID ID
}

func (e DuplicateNodeError) Error() string {
	return fmt.Sprintf("duplicate resource node: %s", e.ID)
}

// DependencyNotFoundError means a reference points at an undeclared node.
type DependencyNotFoundError struct {
	From ID
	To   ID
}

func (e DependencyNotFoundError) Error() string {
	return fmt.Sprintf("resource dependency not found: %s -> %s", e.From, e.To)
}

// CycleDetectedError means there is a dependency cycle in the graph.
type CycleDetectedError struct {
	Path []ID
}

func (e CycleDetectedError) Error() string {
	if len(e.Path) == 0 {
		return "resource dependency cycle detected"
	}
	parts := make([]string, len(e.Path))
	for i := range e.Path {
		parts[i] = string(e.Path[i])
	}
	return "resource dependency cycle detected: " + strings.Join(parts, " -> ")
}

// NotCompiledError means an ordered view was requested before Compile.
type NotCompiledError struct{}

func (NotCompiledError) Error() string {
	return "resource graph is not compiled"
}

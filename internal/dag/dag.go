// Package dag provides the directed acyclic graph over transformation
// nodes: cycle detection with full path reporting, topological ordering,
// downstream traversal for skip propagation, and subgraph selection.
package dag

import (
	"fmt"
	"slices"
	"sort"

	"github.com/loomworks/loom/internal/core"
)

// Graph is a directed acyclic graph of models. Edges point from a
// dependency to its dependents. A Graph is built once per run during the
// compile phase and is immutable during execution.
type Graph struct {
	nodes    map[string]*core.Model
	children map[string][]string // dependency -> dependents
	parents  map[string][]string // dependent -> dependencies
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{
		nodes:    make(map[string]*core.Model),
		children: make(map[string][]string),
		parents:  make(map[string][]string),
	}
}

// AddNode adds a model to the graph. Adding an existing name replaces
// the stored model but keeps its edges.
func (g *Graph) AddNode(m *core.Model) {
	if _, ok := g.nodes[m.Name]; !ok {
		g.children[m.Name] = nil
		g.parents[m.Name] = nil
	}
	g.nodes[m.Name] = m
}

// AddEdge records that child depends on parent.
func (g *Graph) AddEdge(parent, child string) error {
	if _, ok := g.nodes[parent]; !ok {
		return fmt.Errorf("node %q does not exist", parent)
	}
	if _, ok := g.nodes[child]; !ok {
		return fmt.Errorf("node %q does not exist", child)
	}
	if parent == child {
		return fmt.Errorf("node %q references itself", parent)
	}
	if !slices.Contains(g.children[parent], child) {
		g.children[parent] = append(g.children[parent], child)
	}
	if !slices.Contains(g.parents[child], parent) {
		g.parents[child] = append(g.parents[child], parent)
	}
	return nil
}

// Node returns the model with the given name.
func (g *Graph) Node(name string) (*core.Model, bool) {
	m, ok := g.nodes[name]
	return m, ok
}

// Parents returns the dependencies of a node.
func (g *Graph) Parents(name string) []string {
	return g.parents[name]
}

// Children returns the direct dependents of a node.
func (g *Graph) Children(name string) []string {
	return g.children[name]
}

// Nodes returns all models sorted by name for deterministic iteration.
func (g *Graph) Nodes() []*core.Model {
	out := make([]*core.Model, 0, len(g.nodes))
	for _, m := range g.nodes {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// EdgeCount returns the number of edges.
func (g *Graph) EdgeCount() int {
	n := 0
	for _, c := range g.children {
		n += len(c)
	}
	return n
}

// Cycle returns a dependency cycle if one exists. The returned path
// starts and ends with the same node. Detection is depth-first with a
// recursion-stack marker.
func (g *Graph) Cycle() []string {
	visited := make(map[string]bool)
	inStack := make(map[string]bool)
	cameFrom := make(map[string]string)

	var cycle []string

	var dfs func(name string) bool
	dfs = func(name string) bool {
		visited[name] = true
		inStack[name] = true

		for _, child := range g.children[name] {
			if !visited[child] {
				cameFrom[child] = name
				if dfs(child) {
					return true
				}
			} else if inStack[child] {
				// Reconstruct the path back from the closing edge.
				cycle = []string{child}
				for cur := name; cur != child; cur = cameFrom[cur] {
					cycle = append([]string{cur}, cycle...)
				}
				cycle = append([]string{child}, cycle...)
				return true
			}
		}

		inStack[name] = false
		return false
	}

	for _, name := range g.sortedNames() {
		if !visited[name] {
			if dfs(name) {
				return cycle
			}
		}
	}
	return nil
}

// TopoSort returns the models in a valid execution order, dependencies
// before dependents. The specific order among independent nodes is an
// implementation detail and must not be relied upon.
func (g *Graph) TopoSort() ([]*core.Model, error) {
	if cycle := g.Cycle(); cycle != nil {
		return nil, &core.CompileError{Cycle: cycle}
	}

	visited := make(map[string]bool)
	var out []*core.Model

	var visit func(name string)
	visit = func(name string) {
		if visited[name] {
			return
		}
		visited[name] = true
		for _, parent := range g.parents[name] {
			visit(parent)
		}
		out = append(out, g.nodes[name])
	}

	for _, name := range g.sortedNames() {
		visit(name)
	}
	return out, nil
}

// Descendants returns every node reachable from the given node,
// excluding the node itself. Used to propagate skips after a failure.
func (g *Graph) Descendants(name string) []string {
	seen := make(map[string]bool)
	var walk func(n string)
	walk = func(n string) {
		for _, child := range g.children[n] {
			if !seen[child] {
				seen[child] = true
				walk(child)
			}
		}
	}
	walk(name)

	out := make([]string, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// WithDownstream returns the given nodes plus all of their descendants.
// Unknown names are ignored.
func (g *Graph) WithDownstream(names []string) []string {
	selected := make(map[string]bool)
	for _, name := range names {
		if _, ok := g.nodes[name]; !ok {
			continue
		}
		selected[name] = true
		for _, d := range g.Descendants(name) {
			selected[d] = true
		}
	}

	out := make([]string, 0, len(selected))
	for n := range selected {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Subgraph returns a new graph restricted to the named nodes and the
// edges among them.
func (g *Graph) Subgraph(names []string) *Graph {
	sub := New()
	included := make(map[string]bool, len(names))
	for _, name := range names {
		if m, ok := g.nodes[name]; ok {
			included[name] = true
			sub.AddNode(m)
		}
	}
	for name := range included {
		for _, child := range g.children[name] {
			if included[child] {
				_ = sub.AddEdge(name, child)
			}
		}
	}
	return sub
}

func (g *Graph) sortedNames() []string {
	names := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

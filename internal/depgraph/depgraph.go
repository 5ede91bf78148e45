// Package depgraph builds the package-level dependency graph: topological
// order, depth, cycle detection, and the traversal queries (dependents,
// transitive dependencies, affected set) the rest of the pipeline needs.
package depgraph

import (
	"fmt"
	"sort"

	mapset "github.com/deckarep/golang-set"
	"github.com/pkg/errors"
	"github.com/pyr-sh/dag"

	"github.com/lucasilverentand/canaveral/internal/discovery"
)

// Node is one package's position in the dependency graph.
type Node struct {
	Name         string
	Version      string
	Dependencies []string
	Dependents   []string
	Depth        int
}

// Graph is the full package dependency graph: nodes plus the topological
// order and any cycles discovered while building it.
type Graph struct {
	nodes       map[string]*Node
	sortedOrder []string
	cycles      [][]string
	dag         dag.AcyclicGraph
}

// ErrCyclicDependency is returned by Validate when the graph contains one or
// more circular dependencies.
var ErrCyclicDependency = errors.New("circular dependencies detected")

// Build constructs a Graph from the discovered packages. It never errors on
// cycles; cyclic packages are simply excluded from the topological order
// and reported via Cycles()/HasCycles(); call Validate if a cycle should be
// treated as fatal.
func Build(packages []*discovery.DiscoveredPackage) (*Graph, error) {
	nodes := make(map[string]*Node, len(packages))
	var g dag.AcyclicGraph

	for _, pkg := range packages {
		nodes[pkg.Name] = &Node{
			Name:         pkg.Name,
			Version:      pkg.Version,
			Dependencies: append([]string(nil), pkg.WorkspaceDependencies...),
		}
		g.Add(pkg.Name)
	}

	for _, pkg := range packages {
		for _, dep := range pkg.WorkspaceDependencies {
			if depNode, ok := nodes[dep]; ok {
				depNode.Dependents = append(depNode.Dependents, pkg.Name)
				g.Connect(dag.BasicEdge(pkg.Name, dep))
			}
		}
	}

	sortedOrder, cyclicNames := topologicalSort(nodes)
	cycles := findCyclesViaSCC(&g, nodes, cyclicNames)

	for _, name := range sortedOrder {
		node := nodes[name]
		depth := 0
		for _, dep := range node.Dependencies {
			if depNode, ok := nodes[dep]; ok && depNode.Depth+1 > depth {
				depth = depNode.Depth + 1
			}
		}
		node.Depth = depth
	}

	return &Graph{nodes: nodes, sortedOrder: sortedOrder, cycles: cycles, dag: g}, nil
}

func topologicalSort(nodes map[string]*Node) ([]string, []string) {
	inDegree := make(map[string]int, len(nodes))
	var queue []string
	for name, node := range nodes {
		degree := 0
		for _, dep := range node.Dependencies {
			if _, ok := nodes[dep]; ok {
				degree++
			}
		}
		inDegree[name] = degree
		if degree == 0 {
			queue = append(queue, name)
		}
	}
	sort.Strings(queue)

	var sorted []string
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		sorted = append(sorted, name)

		var unblocked []string
		for _, dependent := range nodes[name].Dependents {
			if degree, ok := inDegree[dependent]; ok {
				degree--
				inDegree[dependent] = degree
				if degree == 0 {
					unblocked = append(unblocked, dependent)
				}
			}
		}
		sort.Strings(unblocked)
		queue = append(queue, unblocked...)
	}

	var cyclic []string
	if len(sorted) != len(nodes) {
		inSorted := make(map[string]bool, len(sorted))
		for _, n := range sorted {
			inSorted[n] = true
		}
		for name := range nodes {
			if !inSorted[name] {
				cyclic = append(cyclic, name)
			}
		}
		sort.Strings(cyclic)
	}

	return sorted, cyclic
}

// findCyclesViaSCC splits the cyclic node set into its strongly connected
// components using pyr-sh/dag's dag.StronglyConnected, then recovers one
// readable cycle path per component via DFS. Scoping the DFS to a single SCC
// rather than the whole cyclic remainder keeps the reported cycle accurate
// even when a workspace has more than one disjoint circular dependency.
func findCyclesViaSCC(g *dag.AcyclicGraph, nodes map[string]*Node, cyclicNames []string) [][]string {
	if len(cyclicNames) == 0 {
		return nil
	}

	cyclicSet := make(map[string]bool, len(cyclicNames))
	for _, n := range cyclicNames {
		cyclicSet[n] = true
	}

	var cycles [][]string
	for _, component := range dag.StronglyConnected(&g.Graph) {
		if len(component) < 2 {
			continue
		}
		names := make([]string, 0, len(component))
		for _, v := range component {
			if name, ok := v.(string); ok && cyclicSet[name] {
				names = append(names, name)
			}
		}
		if len(names) < 2 {
			continue
		}
		sort.Strings(names)
		if cycle := findCycle(nodes, names[0], names); cycle != nil {
			cycles = append(cycles, cycle)
		}
	}
	return cycles
}

func findCycle(nodes map[string]*Node, start string, cyclic []string) []string {
	cyclicSet := make(map[string]bool, len(cyclic))
	for _, n := range cyclic {
		cyclicSet[n] = true
	}
	visited := make(map[string]bool)
	var path []string

	var dfs func(current string) bool
	dfs = func(current string) bool {
		if visited[current] {
			return current == start && len(path) > 1
		}
		if !cyclicSet[current] {
			return false
		}
		visited[current] = true
		path = append(path, current)

		if node, ok := nodes[current]; ok {
			for _, dep := range node.Dependencies {
				if dfs(dep) {
					return true
				}
			}
		}
		path = path[:len(path)-1]
		return false
	}

	if dfs(start) {
		out := make([]string, len(path))
		copy(out, path)
		return out
	}
	return nil
}

// Sorted returns packages in dependency-first topological order. Packages
// caught in a cycle are excluded.
func (g *Graph) Sorted() []string {
	return g.sortedOrder
}

// ReverseSorted returns packages in dependent-first order.
func (g *Graph) ReverseSorted() []string {
	out := make([]string, len(g.sortedOrder))
	for i, name := range g.sortedOrder {
		out[len(g.sortedOrder)-1-i] = name
	}
	return out
}

// HasCycles reports whether any circular dependency was detected.
func (g *Graph) HasCycles() bool {
	return len(g.cycles) > 0
}

// Cycles returns the detected circular dependency chains, deduplicated by
// node-set equality.
func (g *Graph) Cycles() [][]string {
	return g.cycles
}

// Get returns the node for name, or nil if name isn't in the graph.
func (g *Graph) Get(name string) *Node {
	return g.nodes[name]
}

// GetDependents returns the direct dependents of name.
func (g *Graph) GetDependents(name string) mapset.Set {
	out := mapset.NewSet()
	if node, ok := g.nodes[name]; ok {
		for _, d := range node.Dependents {
			out.Add(d)
		}
	}
	return out
}

// GetDependencies returns the direct dependencies of name.
func (g *Graph) GetDependencies(name string) mapset.Set {
	out := mapset.NewSet()
	if node, ok := g.nodes[name]; ok {
		for _, d := range node.Dependencies {
			out.Add(d)
		}
	}
	return out
}

// GetAffected returns every package transitively affected by a change to
// name (i.e. name's transitive dependents), not including name itself.
func (g *Graph) GetAffected(name string) mapset.Set {
	affected := mapset.NewSet()
	queue := []string{name}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if affected.Contains(current) {
			continue
		}
		affected.Add(current)
		if node, ok := g.nodes[current]; ok {
			for _, dependent := range node.Dependents {
				if !affected.Contains(dependent) {
					queue = append(queue, dependent)
				}
			}
		}
	}
	affected.Remove(name)
	return affected
}

// GetAllDependencies returns every transitive dependency of name.
func (g *Graph) GetAllDependencies(name string) mapset.Set {
	deps := mapset.NewSet()
	queue := []string{name}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		if node, ok := g.nodes[current]; ok {
			for _, dep := range node.Dependencies {
				if !deps.Contains(dep) {
					deps.Add(dep)
					queue = append(queue, dep)
				}
			}
		}
	}
	return deps
}

// Validate returns ErrCyclicDependency (wrapped with the offending chains)
// if the graph has any cycles.
func (g *Graph) Validate() error {
	if !g.HasCycles() {
		return nil
	}
	descs := make([]string, len(g.cycles))
	for i, cycle := range g.cycles {
		descs[i] = fmt.Sprintf("%v", cycle)
	}
	return errors.Wrapf(ErrCyclicDependency, "%v", descs)
}

// MaxDepth returns the greatest depth across all nodes.
func (g *Graph) MaxDepth() int {
	max := 0
	for _, node := range g.nodes {
		if node.Depth > max {
			max = node.Depth
		}
	}
	return max
}

// PackagesAtDepth returns the names of all packages at the given depth.
func (g *Graph) PackagesAtDepth(depth int) []string {
	var out []string
	for name, node := range g.nodes {
		if node.Depth == depth {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

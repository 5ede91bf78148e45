// Package taskgraph expands a package dependency graph and a pipeline of
// task definitions into a task-level DAG: one node per (package, task)
// pair, wired with same-package and cross-package edges, then split into
// execution waves.
package taskgraph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/pyr-sh/dag"

	"github.com/lucasilverentand/canaveral/internal/depgraph"
	"github.com/lucasilverentand/canaveral/internal/errs"
)

// TaskID is a (package, task) pair, printed as "pkg:task".
type TaskID struct {
	Package string
	Task    string
}

// NewTaskID builds a TaskID.
func NewTaskID(pkg, task string) TaskID {
	return TaskID{Package: pkg, Task: task}
}

// String renders the canonical "pkg:task" form.
func (id TaskID) String() string {
	return id.Package + ":" + id.Task
}

// Definition is one task's configuration as read from the pipeline file.
// When Command is empty the task resolves to a framework-adapter call at
// scheduling time (see internal/adapter).
type Definition struct {
	Name              string
	Command           string
	DependsOn         []string
	DependsOnPackages bool
	Inputs            []string
	Outputs           []string
	Env               map[string]string
}

// Node is one task's position in the expanded task DAG.
type Node struct {
	ID           TaskID
	Definition   *Definition
	Dependencies map[TaskID]bool
	Dependents   map[TaskID]bool
	Wave         int
}

// Graph is the task-level DAG: nodes, their topological order, and the
// wave grouping used for parallel execution.
type Graph struct {
	nodes       map[TaskID]*Node
	sortedOrder []TaskID
	waves       [][]TaskID
	dag         dag.AcyclicGraph
}

// Build expands packageGraph × targetTasks × targetPackages into a task
// DAG. Every (package, task) combination named by targetPackages and
// targetTasks must resolve to an entry in pipeline, or Build fails with a
// NotFoundError.
func Build(packageGraph *depgraph.Graph, pipeline map[string]*Definition, targetTasks, targetPackages []string) (*Graph, error) {
	logger := hclog.L().Named("taskgraph")
	nodes := make(map[TaskID]*Node)
	var d dag.AcyclicGraph

	for _, pkg := range targetPackages {
		for _, taskName := range targetTasks {
			def, ok := pipeline[taskName]
			if !ok {
				return nil, &errs.NotFoundError{Kind: "task", Name: taskName}
			}
			id := NewTaskID(pkg, taskName)
			nodes[id] = &Node{
				ID:           id,
				Definition:   def,
				Dependencies: map[TaskID]bool{},
				Dependents:   map[TaskID]bool{},
			}
			d.Add(id.String())
		}
	}

	targetTaskSet := make(map[string]bool, len(targetTasks))
	for _, t := range targetTasks {
		targetTaskSet[t] = true
	}
	targetPkgSet := make(map[string]bool, len(targetPackages))
	for _, p := range targetPackages {
		targetPkgSet[p] = true
	}

	for _, pkg := range targetPackages {
		for _, taskName := range targetTasks {
			id := NewTaskID(pkg, taskName)
			node := nodes[id]
			def := node.Definition

			for _, depTask := range def.DependsOn {
				if !targetTaskSet[depTask] {
					continue
				}
				depID := NewTaskID(pkg, depTask)
				if _, ok := nodes[depID]; ok {
					node.Dependencies[depID] = true
				}
			}

			if def.DependsOnPackages && packageGraph != nil {
				for _, depPkg := range packageGraph.GetDependencies(pkg).ToSlice() {
					depPkgName := depPkg.(string)
					if !targetPkgSet[depPkgName] {
						continue
					}
					depID := NewTaskID(depPkgName, taskName)
					if _, ok := nodes[depID]; ok {
						node.Dependencies[depID] = true
					}
				}
			}
		}
	}

	for id, node := range nodes {
		for dep := range node.Dependencies {
			if depNode, ok := nodes[dep]; ok {
				depNode.Dependents[id] = true
			}
			d.Connect(dag.BasicEdge(id.String(), dep.String()))
		}
	}

	sortedOrder, err := topologicalSort(&d, nodes)
	if err != nil {
		return nil, err
	}

	waves := computeWaves(nodes, sortedOrder)
	for waveIdx, wave := range waves {
		for _, id := range wave {
			nodes[id].Wave = waveIdx
		}
	}

	logger.Info("task DAG built", "tasks", len(nodes), "waves", len(waves))
	return &Graph{nodes: nodes, sortedOrder: sortedOrder, waves: waves, dag: d}, nil
}

func topologicalSort(d *dag.AcyclicGraph, nodes map[TaskID]*Node) ([]TaskID, error) {
	inDegree := make(map[TaskID]int, len(nodes))
	var queue []TaskID
	for id, node := range nodes {
		degree := 0
		for dep := range node.Dependencies {
			if _, ok := nodes[dep]; ok {
				degree++
			}
		}
		inDegree[id] = degree
		if degree == 0 {
			queue = append(queue, id)
		}
	}
	sortTaskIDs(queue)

	var sorted []TaskID
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		sorted = append(sorted, id)

		var unblocked []TaskID
		for dependent := range nodes[id].Dependents {
			if degree, ok := inDegree[dependent]; ok {
				degree--
				inDegree[dependent] = degree
				if degree == 0 {
					unblocked = append(unblocked, dependent)
				}
			}
		}
		sortTaskIDs(unblocked)
		queue = append(queue, unblocked...)
	}

	if len(sorted) != len(nodes) {
		inSorted := make(map[TaskID]bool, len(sorted))
		for _, id := range sorted {
			inSorted[id] = true
		}
		cyclicSet := make(map[string]bool)
		for id := range nodes {
			if !inSorted[id] {
				cyclicSet[id.String()] = true
			}
		}

		var cycles [][]string
		for _, component := range dag.StronglyConnected(&d.Graph) {
			if len(component) < 2 {
				continue
			}
			var names []string
			for _, v := range component {
				if name, ok := v.(string); ok && cyclicSet[name] {
					names = append(names, name)
				}
			}
			if len(names) >= 2 {
				sort.Strings(names)
				cycles = append(cycles, names)
			}
		}
		if len(cycles) == 0 {
			// Shouldn't happen alongside a non-empty cyclicSet, but keep a
			// fallback so a CyclicDependencyError is always informative.
			var all []string
			for name := range cyclicSet {
				all = append(all, name)
			}
			sort.Strings(all)
			cycles = [][]string{all}
		}
		return nil, &errs.CyclicDependencyError{Graph: "task", Cycles: cycles}
	}

	return sorted, nil
}

func sortTaskIDs(ids []TaskID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
}

func computeWaves(nodes map[TaskID]*Node, sorted []TaskID) [][]TaskID {
	waveOf := make(map[TaskID]int, len(nodes))
	maxWave := 0
	for _, id := range sorted {
		node := nodes[id]
		wave := 0
		for dep := range node.Dependencies {
			if w, ok := waveOf[dep]; ok && w+1 > wave {
				wave = w + 1
			}
		}
		waveOf[id] = wave
		if wave > maxWave {
			maxWave = wave
		}
	}

	waves := make([][]TaskID, maxWave+1)
	for _, id := range sorted {
		w := waveOf[id]
		waves[w] = append(waves[w], id)
	}
	return waves
}

// Nodes returns every node in the graph.
func (g *Graph) Nodes() map[TaskID]*Node {
	return g.nodes
}

// Get returns the node for id, or nil if absent.
func (g *Graph) Get(id TaskID) *Node {
	return g.nodes[id]
}

// Sorted returns tasks in topological order.
func (g *Graph) Sorted() []TaskID {
	return g.sortedOrder
}

// Waves returns tasks grouped by execution wave; wave 0 has no
// dependencies in the DAG.
func (g *Graph) Waves() [][]TaskID {
	return g.waves
}

// Len returns the total number of task nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// ExecutionPlan renders a human-readable dry-run listing: one line per
// task with its command and dependency list, grouped by wave.
func (g *Graph) ExecutionPlan() string {
	var b strings.Builder
	for i, wave := range g.waves {
		fmt.Fprintf(&b, "Wave %d (%d tasks):\n", i, len(wave))
		sorted := append([]TaskID(nil), wave...)
		sortTaskIDs(sorted)
		for _, id := range sorted {
			node := g.nodes[id]
			cmd := node.Definition.Command
			if cmd == "" {
				cmd = "<framework adapter>"
			}
			deps := depSet(node.Dependencies)
			if len(deps) == 0 {
				fmt.Fprintf(&b, "  %s -> %s\n", id, cmd)
			} else {
				fmt.Fprintf(&b, "  %s -> %s (after: %s)\n", id, cmd, strings.Join(deps, ", "))
			}
		}
	}
	return b.String()
}

func depSet(deps map[TaskID]bool) []string {
	out := make([]string, 0, len(deps))
	for d := range deps {
		out = append(out, d.String())
	}
	sort.Strings(out)
	return out
}

// Package graph implements the task dependency graph: a DAG of task
// nodes with "depends on" edges, validation, and deterministic ordering.
package graph

import (
	"fmt"
	"sort"

	"github.com/mbenham/taskforge/pkg/models"
)

// ErrorKind distinguishes the structural failures Validate can report.
type ErrorKind string

const (
	// ErrUnknownDependency means an edge references a node that does not exist.
	ErrUnknownDependency ErrorKind = "unknown_dependency"
	// ErrCycle means the graph contains a circular dependency.
	ErrCycle ErrorKind = "cycle"
)

// Error is a structural graph validation failure. It is fatal: callers
// must not execute a graph that failed validation.
type Error struct {
	// Kind is which structural rule was violated.
	Kind ErrorKind
	// NodeID is the node where the violation was found.
	NodeID string
	// DependencyID is the missing reference, for unknown-dependency errors.
	DependencyID string
	// Cycle is the full cycle path (first node repeated at the end),
	// for cycle errors. Example: [A, B, A].
	Cycle []string
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch e.Kind {
	case ErrUnknownDependency:
		return fmt.Sprintf("task %s depends on unknown task %s", e.NodeID, e.DependencyID)
	case ErrCycle:
		return fmt.Sprintf("circular dependency detected: %v", e.Cycle)
	default:
		return fmt.Sprintf("graph error at task %s", e.NodeID)
	}
}

// TaskGraph is a directed acyclic graph of task nodes. Structural
// mutation (AddNode, AddDependency) performs no validation; call
// Validate before ordering or executing the graph.
type TaskGraph struct {
	// nodes maps task ID to the node itself.
	nodes map[string]*models.TaskNode
	// edges maps task ID to the IDs of tasks it depends on.
	edges map[string][]string
}

// New creates an empty task graph.
func New() *TaskGraph {
	return &TaskGraph{
		nodes: make(map[string]*models.TaskNode),
		edges: make(map[string][]string),
	}
}

// Build constructs a graph from a slice of task nodes, taking both the
// nodes and their DependsOn edges, then validates the result.
func Build(tasks []*models.TaskNode) (*TaskGraph, error) {
	g := New()
	for _, task := range tasks {
		g.AddNode(task)
	}
	for _, task := range tasks {
		for _, depID := range task.DependsOn {
			g.AddDependency(task.ID, depID)
		}
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// AddNode registers a task node. Re-adding an ID replaces the node but
// keeps any edges already recorded for it.
func (g *TaskGraph) AddNode(node *models.TaskNode) {
	g.nodes[node.ID] = node
	if _, ok := g.edges[node.ID]; !ok {
		g.edges[node.ID] = nil
	}
}

// AddDependency records that `from` depends on (is blocked by) `to`.
// Neither endpoint is checked to exist until Validate.
func (g *TaskGraph) AddDependency(from, to string) {
	g.edges[from] = append(g.edges[from], to)
}

// Node returns the task node for an ID, or nil if not found.
func (g *TaskGraph) Node(id string) *models.TaskNode {
	return g.nodes[id]
}

// Nodes returns all task nodes, ordered by ID for determinism.
func (g *TaskGraph) Nodes() []*models.TaskNode {
	out := make([]*models.TaskNode, 0, len(g.nodes))
	for _, id := range g.sortedIDs() {
		out = append(out, g.nodes[id])
	}
	return out
}

// Size returns the number of nodes in the graph.
func (g *TaskGraph) Size() int {
	return len(g.nodes)
}

// Dependencies returns the IDs this task depends on.
func (g *TaskGraph) Dependencies(id string) []string {
	return g.edges[id]
}

// Dependents returns the IDs of tasks that depend on the given task.
func (g *TaskGraph) Dependents(id string) []string {
	var dependents []string
	for _, from := range g.sortedIDs() {
		for _, depID := range g.edges[from] {
			if depID == id {
				dependents = append(dependents, from)
				break
			}
		}
	}
	return dependents
}

// Validate checks that every edge references an existing node and that
// the graph is acyclic. It mutates nothing and is idempotent: repeated
// calls on an unmodified graph return identical results.
func (g *TaskGraph) Validate() error {
	// Every edge must resolve.
	for _, id := range g.sortedIDs() {
		for _, depID := range g.edges[id] {
			if _, ok := g.nodes[depID]; !ok {
				return &Error{Kind: ErrUnknownDependency, NodeID: id, DependencyID: depID}
			}
		}
	}

	// Cycle detection: depth-first search with an explicit recursion
	// stack so a back edge can report the full cycle path.
	const (
		white = 0 // unvisited
		gray  = 1 // on the recursion stack
		black = 2 // fully explored
	)
	colors := make(map[string]int, len(g.nodes))
	var stack []string

	var visit func(id string) *Error
	visit = func(id string) *Error {
		colors[id] = gray
		stack = append(stack, id)

		for _, depID := range g.edges[id] {
			switch colors[depID] {
			case gray:
				// Back edge into the stack: slice out the cycle and
				// close it with the repeated entry node.
				start := 0
				for i, sid := range stack {
					if sid == depID {
						start = i
						break
					}
				}
				cycle := append(append([]string{}, stack[start:]...), depID)
				return &Error{Kind: ErrCycle, NodeID: depID, Cycle: cycle}
			case white:
				if err := visit(depID); err != nil {
					return err
				}
			}
		}

		stack = stack[:len(stack)-1]
		colors[id] = black
		return nil
	}

	for _, id := range g.sortedIDs() {
		if colors[id] == white {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

// TopologicalOrder returns node IDs in dependency order using Kahn's
// algorithm. Ties among simultaneously-ready nodes break by (priority
// ascending, ID ascending) so the order is deterministic.
//
// The graph must already have passed Validate; calling this on a cyclic
// graph is a programming error and panics.
func (g *TaskGraph) TopologicalOrder() []string {
	indegree := make(map[string]int, len(g.nodes))
	for id := range g.nodes {
		indegree[id] = len(g.edges[id])
	}

	// Reverse index so completing a node can decrement its dependents.
	dependents := make(map[string][]string, len(g.nodes))
	for from, deps := range g.edges {
		for _, to := range deps {
			dependents[to] = append(dependents[to], from)
		}
	}

	var ready []string
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	g.sortReady(ready)

	order := make([]string, 0, len(g.nodes))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		var newly []string
		for _, dep := range dependents[id] {
			indegree[dep]--
			if indegree[dep] == 0 {
				newly = append(newly, dep)
			}
		}
		if len(newly) > 0 {
			ready = append(ready, newly...)
			g.sortReady(ready)
		}
	}

	if len(order) != len(g.nodes) {
		panic("graph: TopologicalOrder called on a cyclic graph; Validate first")
	}
	return order
}

// Layers partitions the graph into topological layers: layer N holds
// every node whose dependencies all live in layers < N. Nodes within a
// layer have no ordering constraint between them and may run
// concurrently. Same precondition as TopologicalOrder.
func (g *TaskGraph) Layers() [][]string {
	depth := make(map[string]int, len(g.nodes))
	for _, id := range g.TopologicalOrder() {
		d := 0
		for _, depID := range g.edges[id] {
			if depth[depID]+1 > d {
				d = depth[depID] + 1
			}
		}
		depth[id] = d
	}

	maxDepth := -1
	for _, d := range depth {
		if d > maxDepth {
			maxDepth = d
		}
	}

	layers := make([][]string, maxDepth+1)
	for id, d := range depth {
		layers[d] = append(layers[d], id)
	}
	for _, layer := range layers {
		g.sortReady(layer)
	}
	return layers
}

// sortReady orders simultaneously-ready IDs by (priority asc, ID asc).
func (g *TaskGraph) sortReady(ids []string) {
	sort.Slice(ids, func(i, j int) bool {
		a, b := g.nodes[ids[i]], g.nodes[ids[j]]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.ID < b.ID
	})
}

// sortedIDs returns all node IDs in ascending order. Map iteration is
// randomized; validation diagnostics must be stable across calls.
func (g *TaskGraph) sortedIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

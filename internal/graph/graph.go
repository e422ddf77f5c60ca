// Package graph provides the dependency graph the orchestration loop
// schedules from. Tasks are nodes; an edge dependency -> dependent means
// the dependency must reach a terminal state before the dependent may run.
package graph

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"taskloom/pkg/models"
)

// ErrCycleDetected indicates a circular dependency was found in the graph.
var ErrCycleDetected = errors.New("circular dependencies detected")

// DependencyGraph is a directed acyclic graph of task dependencies. Unlike
// a static pipeline, nodes and edges are added while the job is mid-run as
// handlers spawn children, so acyclicity is re-validated on every single
// edge insertion rather than once at construction.
type DependencyGraph struct {
	mu sync.RWMutex
	// nodes maps task ID to the task itself.
	nodes map[string]*models.Task
	// deps maps task ID to the IDs of tasks it depends on.
	deps map[string][]string
}

// New creates a new empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		nodes: make(map[string]*models.Task),
		deps:  make(map[string][]string),
	}
}

// Build constructs the graph from a slice of tasks: all nodes first, then
// all declared edges. Returns an error naming the task and the missing id
// if a dependency target does not exist, or naming the cycle if the
// declared dependencies are circular.
func (g *DependencyGraph) Build(tasks []*models.Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, task := range tasks {
		if _, exists := g.nodes[task.ID]; exists {
			return fmt.Errorf("duplicate task id %s", task.ID)
		}
		g.nodes[task.ID] = task
		g.deps[task.ID] = nil
	}

	for _, task := range tasks {
		for _, depID := range task.DependsOn {
			if _, exists := g.nodes[depID]; !exists {
				return fmt.Errorf("task %s depends on unknown task %s", task.ID, depID)
			}
			g.deps[task.ID] = append(g.deps[task.ID], depID)
		}
	}

	if cycle := g.findCycleLocked(); cycle != nil {
		return cycleError(cycle)
	}
	return nil
}

// AddNode registers a task as a new node. Adding a node cannot introduce a
// cycle, so no validation beyond id uniqueness is needed.
func (g *DependencyGraph) AddNode(task *models.Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[task.ID]; exists {
		return fmt.Errorf("duplicate task id %s", task.ID)
	}
	g.nodes[task.ID] = task
	g.deps[task.ID] = nil
	return nil
}

// AddEdge records that `to` depends on `from`. Both endpoints must already
// exist. After insertion the whole graph is re-checked for cycles; if one
// now exists the edge is removed again and the error names the cycle.
// Validating per edge is deliberate: children spawn incrementally and a
// deadlocking edge must be rejected the instant it appears.
func (g *DependencyGraph) AddEdge(from, to string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[from]; !exists {
		return fmt.Errorf("edge source %s does not exist", from)
	}
	if _, exists := g.nodes[to]; !exists {
		return fmt.Errorf("edge target %s does not exist", to)
	}

	g.deps[to] = append(g.deps[to], from)
	if cycle := g.findCycleLocked(); cycle != nil {
		g.deps[to] = g.deps[to][:len(g.deps[to])-1]
		return cycleError(cycle)
	}
	return nil
}

// RemoveNode deletes a node and every edge touching it. Used to roll back
// a partially ingested spawn batch; a failed batch must never leave a
// partial graph behind.
func (g *DependencyGraph) RemoveNode(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	delete(g.nodes, id)
	delete(g.deps, id)
	for node, deps := range g.deps {
		kept := deps[:0]
		for _, depID := range deps {
			if depID != id {
				kept = append(kept, depID)
			}
		}
		g.deps[node] = kept
	}
}

// Validate re-runs the full cycle check over the current graph. Returns an
// error naming the cycle if one exists.
func (g *DependencyGraph) Validate() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if cycle := g.findCycleLocked(); cycle != nil {
		return cycleError(cycle)
	}
	return nil
}

// GetExecutableTasks returns the IDs of tasks not in `completed` whose
// every dependency is in `completed`. Idempotent for a fixed completed
// set: it inspects state without mutating it.
func (g *DependencyGraph) GetExecutableTasks(completed map[string]bool) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []string
	for id := range g.nodes {
		if completed[id] {
			continue
		}
		satisfied := true
		for _, depID := range g.deps[id] {
			if !completed[depID] {
				satisfied = false
				break
			}
		}
		if satisfied {
			ready = append(ready, id)
		}
	}
	return ready
}

// TopologicalOrder returns task IDs with every dependency before its
// dependents. Diagnostic only: execution is readiness-driven, not
// order-driven, to maximize parallelism.
func (g *DependencyGraph) TopologicalOrder() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if cycle := g.findCycleLocked(); cycle != nil {
		return nil, cycleError(cycle)
	}

	visited := make(map[string]bool)
	var result []string

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, depID := range g.deps[id] {
			visit(depID)
		}
		result = append(result, id)
	}

	for id := range g.nodes {
		visit(id)
	}
	return result, nil
}

// HasNode returns true if a task with the given id is in the graph.
func (g *DependencyGraph) HasNode(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.nodes[id]
	return ok
}

// GetNode returns the task for a given ID, or nil if not found.
func (g *DependencyGraph) GetNode(id string) *models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[id]
}

// Size returns the number of tasks in the graph.
func (g *DependencyGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// GetDependencies returns the IDs of tasks the given task depends on.
func (g *DependencyGraph) GetDependencies(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]string, len(g.deps[id]))
	copy(out, g.deps[id])
	return out
}

// GetDependents returns the IDs of tasks that depend on the given task.
func (g *DependencyGraph) GetDependents(id string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var dependents []string
	for node, deps := range g.deps {
		for _, depID := range deps {
			if depID == id {
				dependents = append(dependents, node)
				break
			}
		}
	}
	return dependents
}

// findCycleLocked runs a depth-first search with coloring and returns the
// node ids forming a cycle, closed (first id repeated at the end), or nil
// if the graph is acyclic. Caller must hold the lock.
func (g *DependencyGraph) findCycleLocked() []string {
	// Color states: 0 = white (unvisited), 1 = gray (in progress), 2 = black (done).
	colors := make(map[string]int, len(g.nodes))
	var stack []string

	var visit func(id string) []string
	visit = func(id string) []string {
		colors[id] = 1
		stack = append(stack, id)

		for _, depID := range g.deps[id] {
			switch colors[depID] {
			case 1:
				// Back edge: the cycle is the stack suffix starting at depID.
				for i, onStack := range stack {
					if onStack == depID {
						cycle := append([]string{}, stack[i:]...)
						return append(cycle, depID)
					}
				}
			case 0:
				if cycle := visit(depID); cycle != nil {
					return cycle
				}
			}
		}

		colors[id] = 2
		stack = stack[:len(stack)-1]
		return nil
	}

	for id := range g.nodes {
		if colors[id] == 0 {
			stack = stack[:0]
			if cycle := visit(id); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}

func cycleError(cycle []string) error {
	return fmt.Errorf("%w: %s", ErrCycleDetected, strings.Join(cycle, " -> "))
}

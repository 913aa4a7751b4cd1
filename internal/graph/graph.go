// Package graph provides the dependency-graph resolver for workflow scheduling.
package graph

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/taskweave/taskweave/pkg/models"
)

// ErrCycleDetected indicates a circular dependency was found in the workflow.
var ErrCycleDetected = errors.New("circular dependency detected")

// Resolution is the result of resolving a workflow graph.
type Resolution struct {
	// Order is a valid topological order of task names.
	Order []string
	// CriticalPath is the longest path through the graph by estimated
	// duration, from first task to last.
	CriticalPath []string
	// CriticalSeconds is the summed estimated duration of the critical path.
	CriticalSeconds int
}

// DependencyGraph is a directed acyclic graph of tasks with typed edges.
// Nodes are keyed by task name; edges point from a dependent to the
// prerequisites it waits on.
type DependencyGraph struct {
	mu sync.RWMutex
	// nodes maps task name to the task itself.
	nodes map[string]*models.Task
	// incoming maps a dependent's name to its dependency edges.
	incoming map[string][]models.DependencyEdge
	// durations maps task name to estimated seconds, for the critical path.
	durations map[string]int
}

// New creates an empty dependency graph.
func New() *DependencyGraph {
	return &DependencyGraph{
		nodes:     make(map[string]*models.Task),
		incoming:  make(map[string][]models.DependencyEdge),
		durations: make(map[string]int),
	}
}

// Build constructs the graph from a workflow's tasks and edges.
// It fails on duplicate names, edges referencing unknown tasks, invalid edge
// types, and cycles. Cycle errors name the participating tasks in order.
func (g *DependencyGraph) Build(wf *models.Workflow) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, task := range wf.Tasks {
		if task.Name == "" {
			return fmt.Errorf("task %s has no name", task.ID)
		}
		if _, exists := g.nodes[task.Name]; exists {
			return fmt.Errorf("duplicate task name %q", task.Name)
		}
		g.nodes[task.Name] = task
		g.incoming[task.Name] = nil
	}

	for _, edge := range wf.Edges {
		if !edge.Type.Valid() {
			return fmt.Errorf("edge %s -> %s has unknown type %q", edge.Prerequisite, edge.Dependent, edge.Type)
		}
		if _, ok := g.nodes[edge.Dependent]; !ok {
			return fmt.Errorf("edge references unknown task %q", edge.Dependent)
		}
		if _, ok := g.nodes[edge.Prerequisite]; !ok {
			return fmt.Errorf("task %q depends on unknown task %q", edge.Dependent, edge.Prerequisite)
		}
		g.incoming[edge.Dependent] = append(g.incoming[edge.Dependent], edge)
	}

	if cycle := g.findCycleLocked(); cycle != nil {
		return fmt.Errorf("%w: %s", ErrCycleDetected, strings.Join(cycle, " -> "))
	}
	return nil
}

// SetDuration records the estimated duration for a task, used to weight the
// critical path. Tasks without an estimate weigh one second.
func (g *DependencyGraph) SetDuration(name string, seconds int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.durations[name] = seconds
}

// findCycleLocked runs a DFS with coloring and returns the members of the
// first cycle found, in dependency order, or nil if the graph is acyclic.
func (g *DependencyGraph) findCycleLocked() []string {
	const (
		white = 0 // unvisited
		gray  = 1 // on the current path
		black = 2 // fully explored
	)
	colors := make(map[string]int, len(g.nodes))
	var stack []string
	var cycle []string

	var visit func(name string) bool
	visit = func(name string) bool {
		colors[name] = gray
		stack = append(stack, name)

		for _, edge := range g.incoming[name] {
			prereq := edge.Prerequisite
			switch colors[prereq] {
			case gray:
				// Back edge: slice the current path from the first
				// occurrence of prereq to form the cycle.
				for i, n := range stack {
					if n == prereq {
						cycle = append([]string{}, stack[i:]...)
						cycle = append(cycle, prereq)
						return true
					}
				}
				cycle = []string{prereq, name, prereq}
				return true
			case white:
				if visit(prereq) {
					return true
				}
			}
		}

		stack = stack[:len(stack)-1]
		colors[name] = black
		return false
	}

	for _, name := range g.sortedNamesLocked() {
		if colors[name] == white && visit(name) {
			return cycle
		}
	}
	return nil
}

// Resolve computes a topological order and the critical path.
// Returns ErrCycleDetected (with the cycle named) if the graph is cyclic;
// never a partial order.
func (g *DependencyGraph) Resolve() (*Resolution, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if cycle := g.findCycleLocked(); cycle != nil {
		return nil, fmt.Errorf("%w: %s", ErrCycleDetected, strings.Join(cycle, " -> "))
	}

	order := g.topoOrderLocked()
	path, seconds := g.criticalPathLocked(order)

	return &Resolution{
		Order:           order,
		CriticalPath:    path,
		CriticalSeconds: seconds,
	}, nil
}

// topoOrderLocked returns task names with every prerequisite before its
// dependents. Iteration is seeded from sorted names so the order is stable.
func (g *DependencyGraph) topoOrderLocked() []string {
	visited := make(map[string]bool, len(g.nodes))
	var order []string

	var visit func(name string)
	visit = func(name string) {
		if visited[name] {
			return
		}
		visited[name] = true
		for _, edge := range g.incoming[name] {
			visit(edge.Prerequisite)
		}
		order = append(order, name)
	}

	for _, name := range g.sortedNamesLocked() {
		visit(name)
	}
	return order
}

// criticalPathLocked computes the longest path by estimated duration over a
// valid topological order.
func (g *DependencyGraph) criticalPathLocked(order []string) ([]string, int) {
	cost := make(map[string]int, len(order))
	prev := make(map[string]string, len(order))

	weight := func(name string) int {
		if d, ok := g.durations[name]; ok && d > 0 {
			return d
		}
		return 1
	}

	var endName string
	var endCost int
	for _, name := range order {
		best := 0
		bestPrev := ""
		for _, edge := range g.incoming[name] {
			if c := cost[edge.Prerequisite]; c > best || (c == best && bestPrev == "") {
				best = c
				bestPrev = edge.Prerequisite
			}
		}
		cost[name] = best + weight(name)
		prev[name] = bestPrev
		if cost[name] > endCost {
			endCost = cost[name]
			endName = name
		}
	}

	if endName == "" {
		return nil, 0
	}

	var path []string
	for n := endName; n != ""; n = prev[n] {
		path = append([]string{n}, path...)
	}
	return path, endCost
}

// NextReady returns the names of tasks whose every dependency edge is
// satisfied and that have not started. Tasks with an edge that can never be
// satisfied are marked skipped, transitively, and never returned.
func (g *DependencyGraph) NextReady() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.propagateSkipsLocked()

	var ready []string
	for _, name := range g.sortedNamesLocked() {
		task := g.nodes[name]
		if task.Status != models.TaskStatusPending {
			continue
		}
		satisfied := true
		for _, edge := range g.incoming[name] {
			prereq := g.nodes[edge.Prerequisite]
			if !edge.Type.Satisfied(prereq.Status) {
				satisfied = false
				break
			}
		}
		if satisfied {
			ready = append(ready, name)
		}
	}
	return ready
}

// propagateSkipsLocked marks pending tasks whose edges are unsatisfiable as
// skipped, repeating until no more change since a skip is itself terminal.
func (g *DependencyGraph) propagateSkipsLocked() {
	for {
		changed := false
		for name, task := range g.nodes {
			if task.Status != models.TaskStatusPending {
				continue
			}
			for _, edge := range g.incoming[name] {
				prereq := g.nodes[edge.Prerequisite]
				if edge.Type.Unsatisfiable(prereq.Status) {
					task.Status = models.TaskStatusSkipped
					changed = true
					break
				}
			}
		}
		if !changed {
			return
		}
	}
}

// MarkStatus updates a task's status in the graph.
func (g *DependencyGraph) MarkStatus(name string, status models.TaskStatus) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if task, ok := g.nodes[name]; ok {
		task.Status = status
	}
}

// Update applies fn to the named task while holding the graph lock. Every
// task field mutation after Build goes through here so concurrent readers
// never observe a half-written update. Unknown names are a no-op.
func (g *DependencyGraph) Update(name string, fn func(*models.Task)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if task, ok := g.nodes[name]; ok {
		fn(task)
	}
}

// TaskCopy returns a value copy of the named task taken under the graph lock.
func (g *DependencyGraph) TaskCopy(name string) (models.Task, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	task, ok := g.nodes[name]
	if !ok {
		return models.Task{}, false
	}
	return *task, true
}

// Statuses returns a point-in-time snapshot of every task's status.
func (g *DependencyGraph) Statuses() map[string]models.TaskStatus {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]models.TaskStatus, len(g.nodes))
	for name, task := range g.nodes {
		out[name] = task.Status
	}
	return out
}

// Task returns the task for a given name, or nil if not found.
func (g *DependencyGraph) Task(name string) *models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[name]
}

// Dependents returns the names of tasks that wait on the given task.
func (g *DependencyGraph) Dependents(name string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var dependents []string
	for dep, edges := range g.incoming {
		for _, edge := range edges {
			if edge.Prerequisite == name {
				dependents = append(dependents, dep)
				break
			}
		}
	}
	sort.Strings(dependents)
	return dependents
}

// Size returns the number of tasks in the graph.
func (g *DependencyGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Done reports whether every task has reached a terminal state.
func (g *DependencyGraph) Done() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, task := range g.nodes {
		if !task.Status.Terminal() {
			return false
		}
	}
	return true
}

// sortedNamesLocked returns node names in lexical order for deterministic
// iteration.
func (g *DependencyGraph) sortedNamesLocked() []string {
	names := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Package depgraph implements the DependencyScheduler (C5): a directed
// graph of task dependencies with cycle-safe insertion, readiness checks,
// and deterministic topological ordering. Grounded on the teacher's
// concurrency-guarded map-of-state idiom (control_plane/reconciler.go's
// `activeReconciles map[string]bool` behind a sync.Mutex), generalized from
// a single busy-flag map to a full adjacency-list DAG.
package depgraph

import (
	"sort"
	"sync"
	"time"

	"github.com/BlokusPokus/ai-assistant-sub002/internal/taskerr"
)

// DependencyType controls how can_execute interprets a dependency's status
// (spec §4.5).
type DependencyType string

const (
	Requires    DependencyType = "requires"
	RequiresAny DependencyType = "requires_any"
	Optional    DependencyType = "optional"
	Conditional DependencyType = "conditional"
)

// Status is the minimal state of a dependency task the graph needs in order
// to evaluate readiness. The graph does not own task state — it is told
// about transitions via RecordStatus.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Dependency describes one edge: task_id depends on DependsOn, subject to
// Type and (for Conditional) Condition.
type Dependency struct {
	TaskID         int64
	DependsOn      []int64
	Type           DependencyType
	Condition      func(dependencyStatuses map[int64]Status) bool
	Timeout        time.Duration
	RetryOnFailure bool
	MaxRetries     int
}

type historyEntry struct {
	taskID int64
	status Status
	at     time.Time
}

// Graph is the DependencyScheduler (C5): edges u->v mean "v depends on u",
// stored as task_id -> its Dependency declaration for O(1) lookup. There is
// no reverse adjacency map; traversals walk the declarations.
type Graph struct {
	mu           sync.Mutex
	deps         map[int64]Dependency    // task_id -> its dependency declaration
	statuses     map[int64]Status        // last known status per task_id
	history      []historyEntry
	maxAgeHours  int
}

// NewGraph returns an empty graph. maxAgeHours bounds the in-memory
// transition history (spec §4.5, default 24).
func NewGraph(maxAgeHours int) *Graph {
	if maxAgeHours <= 0 {
		maxAgeHours = 24
	}
	return &Graph{
		deps:        make(map[int64]Dependency),
		statuses:    make(map[int64]Status),
		maxAgeHours: maxAgeHours,
	}
}

// AddDependency inserts or replaces task_id's dependency declaration.
// Rejects the insert, leaving the graph unchanged, if it would introduce a
// cycle (DFS over a hypothetical graph including the new edge) or if the
// spec itself is malformed.
func (g *Graph) AddDependency(dep Dependency) error {
	if dep.TaskID == 0 || len(dep.DependsOn) == 0 {
		return taskerr.Wrap(taskerr.ErrInvalidSpec, "task_id and depends_on are required")
	}
	switch dep.Type {
	case Requires, RequiresAny, Optional, Conditional:
	default:
		return taskerr.Wrapf(taskerr.ErrInvalidSpec, "unknown dependency_type %q", dep.Type)
	}
	for _, d := range dep.DependsOn {
		if d == dep.TaskID {
			return taskerr.Wrap(taskerr.ErrCycleDetected, "task cannot depend on itself")
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	hypothetical := make(map[int64]Dependency, len(g.deps)+1)
	for k, v := range g.deps {
		hypothetical[k] = v
	}
	hypothetical[dep.TaskID] = dep

	if hasCycle(hypothetical) {
		return taskerr.Wrap(taskerr.ErrCycleDetected, "add_dependency would introduce a cycle")
	}

	g.deps[dep.TaskID] = dep
	return nil
}

// RemoveDependency deletes task_id's dependency declaration entirely.
func (g *Graph) RemoveDependency(taskID int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.deps, taskID)
}

// RecordStatus updates a task's last-known status and appends a bounded
// history entry (spec §4.5's "small in-memory history").
func (g *Graph) RecordStatus(taskID int64, status Status) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statuses[taskID] = status
	g.history = append(g.history, historyEntry{taskID: taskID, status: status, at: time.Now().UTC()})
	g.pruneHistoryLocked()
}

func (g *Graph) pruneHistoryLocked() {
	cutoff := time.Now().UTC().Add(-time.Duration(g.maxAgeHours) * time.Hour)
	kept := g.history[:0]
	for _, h := range g.history {
		if h.at.After(cutoff) {
			kept = append(kept, h)
		}
	}
	g.history = kept
}

// CanExecute reports whether task_id's declared dependencies are satisfied.
// A task with no declared dependency is always executable.
func (g *Graph) CanExecute(taskID int64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.canExecuteLocked(taskID)
}

func (g *Graph) canExecuteLocked(taskID int64) bool {
	dep, ok := g.deps[taskID]
	if !ok {
		return true
	}

	statusesByDep := make(map[int64]Status, len(dep.DependsOn))
	for _, d := range dep.DependsOn {
		statusesByDep[d] = g.statuses[d]
	}

	switch dep.Type {
	case Requires:
		for _, d := range dep.DependsOn {
			if statusesByDep[d] != StatusCompleted {
				return false
			}
		}
		return true
	case RequiresAny:
		for _, d := range dep.DependsOn {
			if statusesByDep[d] == StatusCompleted {
				return true
			}
		}
		return false
	case Optional:
		for _, d := range dep.DependsOn {
			s := statusesByDep[d]
			if s != StatusCompleted && s != StatusFailed && s != StatusSkipped {
				return false
			}
		}
		return true
	case Conditional:
		for _, d := range dep.DependsOn {
			if statusesByDep[d] != StatusCompleted {
				return false
			}
		}
		if dep.Condition == nil {
			return true
		}
		return dep.Condition(statusesByDep)
	default:
		return false
	}
}

// ReadyTasks returns every task_id with a declared dependency whose
// CanExecute currently holds, in ascending task_id order for determinism.
func (g *Graph) ReadyTasks() []int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	var ready []int64
	for id := range g.deps {
		if g.canExecuteLocked(id) {
			ready = append(ready, id)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })
	return ready
}

// ExecutionOrder returns a deterministic Kahn topological sort over every
// task_id referenced by the graph (as a dependent or a dependency). An
// empty result signals a cycle, which AddDependency should already have
// prevented — this is a defensive re-check, not the primary guard.
func (g *Graph) ExecutionOrder() []int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return kahnOrder(g.deps)
}

// hasCycle runs a DFS over the given (hypothetical) dependency set, without
// mutating anything the caller owns.
func hasCycle(deps map[int64]Dependency) bool {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[int64]int)

	var visit func(id int64) bool
	visit = func(id int64) bool {
		color[id] = gray
		for _, d := range deps[id].DependsOn {
			switch color[d] {
			case gray:
				return true
			case white:
				if visit(d) {
					return true
				}
			}
		}
		color[id] = black
		return false
	}

	for id := range deps {
		if color[id] == white {
			if visit(id) {
				return true
			}
		}
	}
	return false
}

// kahnOrder computes a stable topological order: dependencies (the nodes
// with no remaining incoming edges) are processed in ascending id order so
// the result is deterministic across runs with identical input.
func kahnOrder(deps map[int64]Dependency) []int64 {
	nodes := make(map[int64]bool)
	inDegree := make(map[int64]int)
	children := make(map[int64][]int64) // dependency -> dependents

	for id, dep := range deps {
		nodes[id] = true
		for _, d := range dep.DependsOn {
			nodes[d] = true
			inDegree[id]++
			children[d] = append(children[d], id)
		}
	}

	var queue []int64
	for id := range nodes {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}
	sort.Slice(queue, func(i, j int) bool { return queue[i] < queue[j] })

	var order []int64
	for len(queue) > 0 {
		sort.Slice(queue, func(i, j int) bool { return queue[i] < queue[j] })
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)

		next := children[n]
		sort.Slice(next, func(i, j int) bool { return next[i] < next[j] })
		for _, c := range next {
			inDegree[c]--
			if inDegree[c] == 0 {
				queue = append(queue, c)
			}
		}
	}

	if len(order) != len(nodes) {
		return nil // cycle
	}
	return order
}

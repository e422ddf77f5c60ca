// Package orchestrator drives a job's tasks from started to terminal. It
// owns the task registry and dependency graph exclusively: handlers run
// concurrently within a tick but communicate intent only through their
// return values, and all structural mutation happens under the engine's
// lock as each task settles.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"taskloom/internal/graph"
	"taskloom/pkg/models"
)

// errPropagation marks a cycle introduced by dependency propagation. That
// corrupts the schedule for tasks unrelated to the spawning one, so it
// terminates the whole job rather than just failing the task.
var errPropagation = errors.New("dependency propagation created a cycle")

// Engine executes one job: it builds the dependency graph, repeatedly
// computes the ready set, runs ready tasks concurrently, ingests spawned
// children, and enforces the job's safety limits.
type Engine struct {
	job    *models.Job
	lookup HandlerLookup
	graph  *graph.DependencyGraph

	mu        sync.RWMutex
	completed map[string]bool
	failed    bool
	startedAt time.Time
}

// New creates an engine for the given job and handler lookup.
func New(job *models.Job, lookup HandlerLookup) *Engine {
	return &Engine{
		job:       job,
		lookup:    lookup,
		graph:     graph.New(),
		completed: make(map[string]bool),
	}
}

// Job returns the job this engine runs.
func (e *Engine) Job() *models.Job {
	return e.job
}

// Run drives the job until every task is terminal or a job-level error
// (timeout, deadlock, propagation cycle) terminates the run. Per-task
// errors never surface here; they are recorded on the failing task. On a
// job-level error the job is marked failed and the partial task registry
// remains available for inspection.
func (e *Engine) Run(ctx context.Context) error {
	if err := e.graph.Build(e.job.TaskList()); err != nil {
		e.finish(models.JobStatusFailed)
		return err
	}

	e.mu.Lock()
	e.startedAt = time.Now()
	// Tasks loaded in a terminal state are folded into the completed set
	// up front so their dependents are not stuck.
	for id, task := range e.job.Tasks {
		if task.Status.Terminal() {
			e.completed[id] = true
			if task.Status == models.TaskStatusFailed {
				e.failed = true
			}
		}
	}
	e.mu.Unlock()

	debugLog("[engine] job %s: starting with %d tasks (maxTasks=%d maxDepth=%d timeout=%s)",
		e.job.ID, len(e.job.Tasks), e.job.MaxTasks, e.job.MaxDepth, e.job.Timeout)

	for {
		if err := ctx.Err(); err != nil {
			e.finish(models.JobStatusFailed)
			return err
		}

		e.mu.RLock()
		total := len(e.job.Tasks)
		done := len(e.completed)
		snapshot := maps.Clone(e.completed)
		e.mu.RUnlock()

		if done >= total {
			break
		}

		if e.job.Timeout > 0 {
			if elapsed := time.Since(e.startedAt); elapsed > e.job.Timeout {
				e.finish(models.JobStatusFailed)
				return fmt.Errorf("job timed out after %s: %d/%d tasks completed",
					elapsed.Round(time.Millisecond), done, total)
			}
		}

		ready := e.graph.GetExecutableTasks(snapshot)
		if len(ready) == 0 {
			// Every remaining task is waiting on something that will never
			// complete. With a valid graph this cannot happen; it indicates
			// a registry/graph inconsistency.
			stuck := e.incompleteTasks(snapshot)
			e.finish(models.JobStatusFailed)
			return fmt.Errorf("deadlock: no executable tasks but %d remain incomplete: %s",
				len(stuck), strings.Join(stuck, ", "))
		}
		sort.Strings(ready)

		debugLog("[engine] job %s: tick with %d ready tasks: %v", e.job.ID, len(ready), ready)

		g, gctx := errgroup.WithContext(ctx)
		for _, id := range ready {
			task := e.graph.GetNode(id)
			g.Go(func() error {
				return e.settle(gctx, task)
			})
		}
		if err := g.Wait(); err != nil {
			e.finish(models.JobStatusFailed)
			return err
		}
	}

	e.mu.RLock()
	failed := e.failed
	e.mu.RUnlock()
	if failed {
		e.finish(models.JobStatusFailed)
	} else {
		e.finish(models.JobStatusSucceeded)
	}
	debugLog("[engine] job %s: finished with status %s", e.job.ID, e.job.Status)
	return nil
}

// settle runs a single ready task to a terminal state: execute the
// handler, ingest any spawned children, propagate dependencies, and mark
// the task complete. The mutation phase is atomic relative to other
// settles so no task ever observes a half-updated graph.
func (e *Engine) settle(ctx context.Context, task *models.Task) error {
	e.mu.Lock()
	if task.Status == models.TaskStatusFailed {
		// Already failed before reaching the loop; just fold it in.
		e.completed[task.ID] = true
		e.failed = true
		e.mu.Unlock()
		return nil
	}
	if e.failed && e.job.AbortOnFailure {
		debugLog("[engine] task %s: aborted (earlier failure, abortOnFailure set)", task.ID)
		e.completeLocked(task, models.TaskStatusAborted, map[string]any{
			"error": "Previous task failed; aborting tasks that have not started",
		})
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	handler, ok := e.lookup(task.Service, task.Command)
	if !ok {
		e.failTask(task, fmt.Sprintf("no handler registered for service %q command %q", task.Service, task.Command))
		return nil
	}

	debugLog("[engine] task %s: executing %s.%s", task.ID, task.Service, task.Command)
	result, err := handler(ctx, task.Clone(), &JobContext{eng: e})
	if err != nil {
		debugLog("[engine] task %s: handler error: %v", task.ID, err)
		e.failTask(task, err.Error())
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if result != nil {
		task.Output = result.Output
		task.Audit = result.Audit

		if len(result.ChildTasks) > 0 {
			if err := e.ingestChildrenLocked(task, result.ChildTasks); err != nil {
				debugLog("[engine] task %s: spawn failed: %v", task.ID, err)
				e.failLocked(task, err.Error())
				if errors.Is(err, errPropagation) {
					return err
				}
				return nil
			}
		}
	}

	e.completeLocked(task, models.TaskStatusSucceeded, nil)
	debugLog("[engine] task %s: succeeded", task.ID)
	return nil
}

// ingestChildrenLocked validates and ingests a spawn batch for the given
// parent. A single invalid child fails the entire batch, and a mutation
// failure rolls back every sibling already created, never leaving a
// partial graph. Caller must hold e.mu.
func (e *Engine) ingestChildrenLocked(parent *models.Task, specs []models.ChildTaskSpec) error {
	scoped := ScopeChildSpecs(parent.ID, specs)

	batch := make(map[string]bool, len(scoped))
	for _, spec := range scoped {
		batch[spec.ID] = true
	}

	// Validate the whole batch before touching the registry.
	for i, spec := range scoped {
		if len(e.job.Tasks)+i >= e.job.MaxTasks {
			return fmt.Errorf("task limit exceeded: cannot spawn %s (%d tasks maximum)", spec.ID, e.job.MaxTasks)
		}
		if parent.Depth+1 > e.job.MaxDepth {
			return fmt.Errorf("depth limit exceeded: cannot spawn %s at depth %d (%d levels maximum)",
				spec.ID, parent.Depth+1, e.job.MaxDepth)
		}
		if spec.Service == "" || spec.Command == "" {
			return fmt.Errorf("task %s: service and command are required", spec.ID)
		}
		if _, exists := e.job.Tasks[spec.ID]; exists {
			return fmt.Errorf("duplicate task id %s", spec.ID)
		}
		for _, dep := range spec.DependsOn {
			if _, exists := e.job.Tasks[dep]; !exists && !batch[dep] {
				return fmt.Errorf("invalid dependency %s for task %s", dep, spec.ID)
			}
		}
	}

	created := make([]string, 0, len(scoped))
	rollback := func() {
		for _, id := range created {
			e.graph.RemoveNode(id)
			delete(e.job.Tasks, id)
		}
	}

	// All nodes first so batch siblings may forward-reference each other,
	// then one edge per dependency with the graph's per-edge cycle check.
	for _, spec := range scoped {
		child := models.NewChildTask(spec, parent.Depth+1)
		if err := e.graph.AddNode(child); err != nil {
			rollback()
			return err
		}
		e.job.Tasks[child.ID] = child
		created = append(created, child.ID)
	}
	for _, id := range created {
		for _, dep := range e.job.Tasks[id].DependsOn {
			if err := e.graph.AddEdge(dep, id); err != nil {
				rollback()
				return err
			}
		}
	}

	debugLog("[engine] task %s: spawned %d children: %v", parent.ID, len(created), created)

	// Dependency propagation: "parent is done" must mean "parent and
	// everything it spawned is done", so every task already depending on
	// the parent now also depends on each new child.
	for _, depID := range e.graph.GetDependents(parent.ID) {
		if batch[depID] {
			continue
		}
		dependent := e.job.Tasks[depID]
		for _, childID := range created {
			if slices.Contains(dependent.DependsOn, childID) {
				continue
			}
			if err := e.graph.AddEdge(childID, depID); err != nil {
				return fmt.Errorf("%w: %v", errPropagation, err)
			}
			dependent.DependsOn = append(dependent.DependsOn, childID)
			debugLog("[engine] propagation: %s now depends on %s", depID, childID)
		}
	}
	if err := e.graph.Validate(); err != nil {
		return fmt.Errorf("%w: %v", errPropagation, err)
	}

	return nil
}

// failTask records a per-task failure and marks the task complete.
func (e *Engine) failTask(task *models.Task, msg string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failLocked(task, msg)
}

// failLocked marks the task failed with a human-readable error in its
// output and sets the job-wide failure flag. Caller must hold e.mu.
func (e *Engine) failLocked(task *models.Task, msg string) {
	e.failed = true
	e.completeLocked(task, models.TaskStatusFailed, map[string]any{"error": msg})
}

// completeLocked drives the task to a terminal state and adds it to the
// completed set. Terminal tasks are immutable afterwards. Caller must
// hold e.mu.
func (e *Engine) completeLocked(task *models.Task, status models.TaskStatus, output map[string]any) {
	if output != nil {
		task.Output = output
	}
	task.Status = status
	now := time.Now()
	task.CompletedAt = &now
	e.completed[task.ID] = true
	e.job.UpdatedAt = now
}

// finish records the job's final status.
func (e *Engine) finish(status models.JobStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.job.Status = status
	e.job.UpdatedAt = time.Now()
}

// incompleteTasks returns the ids of tasks not in the completed set,
// sorted for stable diagnostics.
func (e *Engine) incompleteTasks(completed map[string]bool) []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var stuck []string
	for id := range e.job.Tasks {
		if !completed[id] {
			stuck = append(stuck, id)
		}
	}
	sort.Strings(stuck)
	return stuck
}

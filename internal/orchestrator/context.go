package orchestrator

import (
	"maps"
	"sort"
	"time"

	"taskloom/pkg/models"
)

// JobContext is the read-only facade handlers receive. It exposes the
// task registry and the job's configuration but no mutation surface:
// handlers communicate desired state only through their return value.
// Lookups return copies, so a handler can never corrupt the registry even
// while other tasks are settling.
type JobContext struct {
	eng *Engine
}

// Task returns a copy of the task with the given id.
func (jc *JobContext) Task(id string) (models.Task, bool) {
	jc.eng.mu.RLock()
	defer jc.eng.mu.RUnlock()

	task, ok := jc.eng.job.Tasks[id]
	if !ok {
		return models.Task{}, false
	}
	return task.Clone(), true
}

// Output returns a copy of the output payload of the task with the given id.
func (jc *JobContext) Output(id string) (map[string]any, bool) {
	jc.eng.mu.RLock()
	defer jc.eng.mu.RUnlock()

	task, ok := jc.eng.job.Tasks[id]
	if !ok || task.Output == nil {
		return nil, false
	}
	return maps.Clone(task.Output), true
}

// Audit returns a copy of the audit payload of the task with the given id.
func (jc *JobContext) Audit(id string) (map[string]any, bool) {
	jc.eng.mu.RLock()
	defer jc.eng.mu.RUnlock()

	task, ok := jc.eng.job.Tasks[id]
	if !ok || task.Audit == nil {
		return nil, false
	}
	return maps.Clone(task.Audit), true
}

// Tasks returns copies of every task in the registry, sorted by id.
func (jc *JobContext) Tasks() []models.Task {
	jc.eng.mu.RLock()
	defer jc.eng.mu.RUnlock()

	tasks := make([]models.Task, 0, len(jc.eng.job.Tasks))
	for _, task := range jc.eng.job.Tasks {
		tasks = append(tasks, task.Clone())
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })
	return tasks
}

// HasTask returns true if a task with the given id exists.
func (jc *JobContext) HasTask(id string) bool {
	jc.eng.mu.RLock()
	defer jc.eng.mu.RUnlock()

	_, ok := jc.eng.job.Tasks[id]
	return ok
}

// IsCompleted returns true if the task exists and is in a terminal state.
func (jc *JobContext) IsCompleted(id string) bool {
	jc.eng.mu.RLock()
	defer jc.eng.mu.RUnlock()

	task, ok := jc.eng.job.Tasks[id]
	return ok && task.Status.Terminal()
}

// TaskCount returns the current size of the registry.
func (jc *JobContext) TaskCount() int {
	jc.eng.mu.RLock()
	defer jc.eng.mu.RUnlock()
	return len(jc.eng.job.Tasks)
}

// JobID returns the job's id.
func (jc *JobContext) JobID() string { return jc.eng.job.ID }

// JobName returns the job's name.
func (jc *JobContext) JobName() string { return jc.eng.job.Name }

// Verbose reports whether debug logging is enabled for the run.
func (jc *JobContext) Verbose() bool { return jc.eng.job.Verbose }

// MaxTasks returns the job's task-count cap.
func (jc *JobContext) MaxTasks() int { return jc.eng.job.MaxTasks }

// MaxDepth returns the job's spawn-depth cap.
func (jc *JobContext) MaxDepth() int { return jc.eng.job.MaxDepth }

// Timeout returns the job's wall-clock budget, zero if unset.
func (jc *JobContext) Timeout() time.Duration { return jc.eng.job.Timeout }

// AbortOnFailure reports whether the job aborts pending tasks on failure.
func (jc *JobContext) AbortOnFailure() bool { return jc.eng.job.AbortOnFailure }

// AgentPlan is an AI-phase toggle forwarded without interpretation.
func (jc *JobContext) AgentPlan() bool { return jc.eng.job.AgentPlan }

// AgentReview is an AI-phase toggle forwarded without interpretation.
func (jc *JobContext) AgentReview() bool { return jc.eng.job.AgentReview }

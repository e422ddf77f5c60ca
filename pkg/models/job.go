package models

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the overall state of a job.
type JobStatus string

const (
	// JobStatusStarted indicates the job is running or ready to run.
	JobStatusStarted JobStatus = "started"
	// JobStatusSucceeded indicates every task succeeded.
	JobStatusSucceeded JobStatus = "succeeded"
	// JobStatusFailed indicates at least one task failed or a job-level
	// error (timeout, deadlock, limit overrun) terminated the run.
	JobStatusFailed JobStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusStarted, JobStatusSucceeded, JobStatusFailed:
		return true
	default:
		return false
	}
}

const (
	// DefaultMaxTasks is the canonical task-count cap applied when a job
	// does not set its own. Every configuration entry point uses this one
	// value.
	DefaultMaxTasks = 100
	// DefaultMaxDepth is the default spawn-depth cap.
	DefaultMaxDepth = 10
)

// JobOptions carries the safety-limit configuration for one job run.
type JobOptions struct {
	// MaxTasks caps the registry size, spawned children included.
	MaxTasks int
	// MaxDepth caps the spawn depth of children.
	MaxDepth int
	// Timeout is the optional wall-clock budget for the whole run.
	// Zero means no timeout.
	Timeout time.Duration
	// AbortOnFailure aborts not-yet-started tasks once any task fails.
	AbortOnFailure bool
	// Verbose enables debug logging for the run.
	Verbose bool
	// AgentPlan and AgentReview are forwarded to handlers through the job
	// context without interpretation.
	AgentPlan   bool
	AgentReview bool
}

// Job is the container for one orchestration run: the task registry plus
// the safety-limit configuration. The registry grows as handlers spawn
// children; only the orchestration loop mutates it.
type Job struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	Tasks          map[string]*Task `json:"tasks"`
	Status         JobStatus        `json:"status"`
	MaxTasks       int              `json:"maxTasks"`
	MaxDepth       int              `json:"maxDepth"`
	Timeout        time.Duration    `json:"timeout,omitempty"`
	AbortOnFailure bool             `json:"abortOnFailure"`
	Verbose        bool             `json:"verbose"`
	AgentPlan      bool             `json:"agentPlan,omitempty"`
	AgentReview    bool             `json:"agentReview,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

// NewJob builds a job from the initial task specs. Tasks without a
// declared id get a positional one ("0", "1", ...); all initial tasks are
// depth 0 and start in the started state. Dependency targets are validated
// later when the dependency graph is built.
func NewJob(name string, specs []ChildTaskSpec, opts JobOptions) (*Job, error) {
	if opts.MaxTasks <= 0 {
		opts.MaxTasks = DefaultMaxTasks
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if len(specs) > opts.MaxTasks {
		return nil, fmt.Errorf("task limit exceeded: job declares %d initial tasks (%d tasks maximum)", len(specs), opts.MaxTasks)
	}

	now := time.Now()
	job := &Job{
		ID:             uuid.New().String(),
		Name:           name,
		Tasks:          make(map[string]*Task, len(specs)),
		Status:         JobStatusStarted,
		MaxTasks:       opts.MaxTasks,
		MaxDepth:       opts.MaxDepth,
		Timeout:        opts.Timeout,
		AbortOnFailure: opts.AbortOnFailure,
		Verbose:        opts.Verbose,
		AgentPlan:      opts.AgentPlan,
		AgentReview:    opts.AgentReview,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	for i, spec := range specs {
		id := spec.ID
		if id == "" {
			id = strconv.Itoa(i)
		}
		if spec.Service == "" || spec.Command == "" {
			return nil, fmt.Errorf("task %s: service and command are required", id)
		}
		if _, exists := job.Tasks[id]; exists {
			return nil, fmt.Errorf("duplicate task id %s", id)
		}
		job.Tasks[id] = &Task{
			ID:        id,
			Service:   spec.Service,
			Command:   spec.Command,
			Input:     spec.Input,
			DependsOn: dedupe(spec.DependsOn),
			Depth:     0,
			Status:    TaskStatusStarted,
			StartedAt: now,
		}
	}

	return job, nil
}

// TaskList returns the registry as a slice. Order is unspecified.
func (j *Job) TaskList() []*Task {
	tasks := make([]*Task, 0, len(j.Tasks))
	for _, t := range j.Tasks {
		tasks = append(tasks, t)
	}
	return tasks
}

// CompletedCount returns the number of tasks in a terminal state.
func (j *Job) CompletedCount() int {
	n := 0
	for _, t := range j.Tasks {
		if t.Status.Terminal() {
			n++
		}
	}
	return n
}

package models

import (
	"maps"
	"slices"
	"time"
)

// TaskStatus represents the current state of a task.
type TaskStatus string

const (
	// TaskStatusStarted indicates the task has been created and may run.
	TaskStatusStarted TaskStatus = "started"
	// TaskStatusSucceeded indicates the task completed successfully.
	TaskStatusSucceeded TaskStatus = "succeeded"
	// TaskStatusFailed indicates the task failed.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusAborted indicates the task was skipped after an earlier failure.
	TaskStatusAborted TaskStatus = "aborted"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusStarted, TaskStatusSucceeded, TaskStatusFailed, TaskStatusAborted:
		return true
	default:
		return false
	}
}

// Terminal returns true if the status is a final state.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusSucceeded || s == TaskStatusFailed || s == TaskStatusAborted
}

// Task represents a unit of orchestrated work.
type Task struct {
	// ID is the unique identifier for this task. IDs are hierarchical by
	// convention (parent id prefixed with "-") but not structurally required.
	ID string `json:"id"`
	// Service names the external service that owns the command.
	Service string `json:"service"`
	// Command is the operation to invoke on the service.
	Command string `json:"command"`
	// Input is the payload handed to the command handler.
	Input map[string]any `json:"input,omitempty"`
	// Output is the handler result, or an error description on failure.
	Output map[string]any `json:"output,omitempty"`
	// Audit holds optional handler-provided audit data.
	Audit map[string]any `json:"audit,omitempty"`
	// DependsOn lists task IDs that must reach a terminal state before this
	// task may start. Entries are deduplicated.
	DependsOn []string `json:"dependsOn,omitempty"`
	// Depth is the spawn depth: 0 for initial tasks, parent depth + 1 for
	// spawned children. Always set explicitly at creation, never derived
	// from the ID string (IDs may be arbitrary text).
	Depth int `json:"depth"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// StartedAt is when the task was created.
	StartedAt time.Time `json:"startedAt"`
	// CompletedAt is when the task reached a terminal state, if it has.
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// ChildTaskSpec describes a task a handler wants spawned. IDs and
// dependency references may be short (sibling-relative) or fully qualified.
type ChildTaskSpec struct {
	ID        string         `json:"id,omitempty"`
	Service   string         `json:"service"`
	Command   string         `json:"command"`
	Input     map[string]any `json:"input,omitempty"`
	DependsOn []string       `json:"dependsOn,omitempty"`
}

// NewChildTask creates a task from a fully scoped spec at the given depth.
// Depth is set here, once, and never recomputed from the id string.
func NewChildTask(spec ChildTaskSpec, depth int) *Task {
	return &Task{
		ID:        spec.ID,
		Service:   spec.Service,
		Command:   spec.Command,
		Input:     spec.Input,
		DependsOn: dedupe(spec.DependsOn),
		Depth:     depth,
		Status:    TaskStatusStarted,
		StartedAt: time.Now(),
	}
}

// Clone returns a copy of the task with its own payload maps and
// dependency slice, so callers cannot mutate the original through it.
func (t *Task) Clone() Task {
	c := *t
	c.Input = maps.Clone(t.Input)
	c.Output = maps.Clone(t.Output)
	c.Audit = maps.Clone(t.Audit)
	c.DependsOn = slices.Clone(t.DependsOn)
	if t.CompletedAt != nil {
		done := *t.CompletedAt
		c.CompletedAt = &done
	}
	return c
}

// dedupe returns ids with duplicates removed, preserving first-seen order.
func dedupe(ids []string) []string {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

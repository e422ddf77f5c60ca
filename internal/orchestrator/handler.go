package orchestrator

import (
	"context"

	"taskloom/pkg/models"
)

// HandlerResult is what a command handler returns: its output payload,
// optional audit data, and specs for any child tasks it wants spawned.
type HandlerResult struct {
	Output     map[string]any
	Audit      map[string]any
	ChildTasks []models.ChildTaskSpec
}

// HandlerFunc executes one task. The task is passed by value so handlers
// cannot mutate the registry copy; all intent flows through the returned
// HandlerResult. Handlers bound their own external calls; the engine has
// no per-task timeout.
type HandlerFunc func(ctx context.Context, task models.Task, jc *JobContext) (*HandlerResult, error)

// HandlerLookup resolves a handler by (service, command). A missing
// handler is a task failure, not a crash.
type HandlerLookup func(service, command string) (HandlerFunc, bool)

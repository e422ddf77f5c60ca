package handlers

import (
	"context"
	"fmt"
	"strconv"

	"taskloom/internal/orchestrator"
	"taskloom/pkg/models"
)

// Noop echoes the task input back as output. Useful as a join point for
// dependency fan-in and in tests.
func Noop(ctx context.Context, task models.Task, jc *orchestrator.JobContext) (*orchestrator.HandlerResult, error) {
	return &orchestrator.HandlerResult{Output: task.Input}, nil
}

// Fanout decomposes its input into one child task per item. Input:
//
//	items:      list of payloads, one child per entry (required)
//	service:    service for the children (required)
//	command:    command for the children (required)
//	sequential: when true, each child depends on the previous one
//
// The children get positional short ids, so the engine scopes them under
// this task's id. With sequential set, the dependency references are
// short sibling ids resolved during scoping.
func Fanout(ctx context.Context, task models.Task, jc *orchestrator.JobContext) (*orchestrator.HandlerResult, error) {
	items, ok := task.Input["items"].([]any)
	if !ok || len(items) == 0 {
		return nil, fmt.Errorf("fanout requires a non-empty items list")
	}
	service, _ := task.Input["service"].(string)
	command, _ := task.Input["command"].(string)
	if service == "" || command == "" {
		return nil, fmt.Errorf("fanout requires service and command for its children")
	}
	sequential, _ := task.Input["sequential"].(bool)

	children := make([]models.ChildTaskSpec, len(items))
	for i, item := range items {
		spec := models.ChildTaskSpec{
			Service: service,
			Command: command,
			Input:   map[string]any{"item": item},
		}
		if sequential && i > 0 {
			spec.DependsOn = []string{strconv.Itoa(i - 1)}
		}
		children[i] = spec
	}

	return &orchestrator.HandlerResult{
		Output:     map[string]any{"spawned": len(children)},
		ChildTasks: children,
	}, nil
}

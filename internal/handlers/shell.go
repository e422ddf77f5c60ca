package handlers

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"taskloom/internal/orchestrator"
	"taskloom/pkg/models"
)

// ShellRun executes a local command. Input:
//
//	command: program to run (required)
//	args:    list of string arguments
//
// Output: the combined stdout/stderr. A non-zero exit is a task failure
// with the captured output in the error text.
func ShellRun(ctx context.Context, task models.Task, jc *orchestrator.JobContext) (*orchestrator.HandlerResult, error) {
	command, _ := task.Input["command"].(string)
	if command == "" {
		return nil, fmt.Errorf("shell.run requires a command")
	}

	var args []string
	if raw, ok := task.Input["args"].([]any); ok {
		for _, a := range raw {
			if s, ok := a.(string); ok {
				args = append(args, s)
			}
		}
	}

	cmd := exec.CommandContext(ctx, command, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("shell error: %v; output: %s", err, strings.TrimSpace(string(out)))
	}

	return &orchestrator.HandlerResult{
		Output: map[string]any{"output": string(out)},
		Audit:  map[string]any{"command": command, "args": args},
	}, nil
}

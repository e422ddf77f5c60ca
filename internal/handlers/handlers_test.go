package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"taskloom/internal/orchestrator"
	"taskloom/pkg/models"
)

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	called := false
	r.Register("svc", "cmd", func(ctx context.Context, task models.Task, jc *orchestrator.JobContext) (*orchestrator.HandlerResult, error) {
		called = true
		return nil, nil
	})

	h, ok := r.Lookup("svc", "cmd")
	if !ok {
		t.Fatal("expected handler")
	}
	if _, err := h(context.Background(), models.Task{}, nil); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !called {
		t.Error("registered handler was not invoked")
	}

	if _, ok := r.Lookup("svc", "other"); ok {
		t.Error("expected no handler for unknown command")
	}
	if _, ok := r.Lookup("other", "cmd"); ok {
		t.Error("expected no handler for unknown service")
	}
}

func TestDefaultRegistry(t *testing.T) {
	r := Default()
	for _, pair := range [][2]string{
		{"core", "noop"},
		{"core", "fanout"},
		{"http", "request"},
		{"shell", "run"},
	} {
		if _, ok := r.Lookup(pair[0], pair[1]); !ok {
			t.Errorf("expected built-in handler %s.%s", pair[0], pair[1])
		}
	}
}

func TestNoopEchoesInput(t *testing.T) {
	task := models.Task{Input: map[string]any{"k": "v"}}
	result, err := Noop(context.Background(), task, nil)
	if err != nil {
		t.Fatalf("Noop: %v", err)
	}
	if result.Output["k"] != "v" {
		t.Errorf("expected input echoed, got %v", result.Output)
	}
}

func TestFanoutSpawnsPerItem(t *testing.T) {
	task := models.Task{Input: map[string]any{
		"items":   []any{"a", "b", "c"},
		"service": "core",
		"command": "noop",
	}}
	result, err := Fanout(context.Background(), task, nil)
	if err != nil {
		t.Fatalf("Fanout: %v", err)
	}
	if len(result.ChildTasks) != 3 {
		t.Fatalf("expected 3 children, got %d", len(result.ChildTasks))
	}
	for i, child := range result.ChildTasks {
		if child.Service != "core" || child.Command != "noop" {
			t.Errorf("child %d: unexpected target %s.%s", i, child.Service, child.Command)
		}
		if len(child.DependsOn) != 0 {
			t.Errorf("child %d: expected no dependencies, got %v", i, child.DependsOn)
		}
	}
	if result.Output["spawned"] != 3 {
		t.Errorf("expected spawned count 3, got %v", result.Output["spawned"])
	}
}

func TestFanoutSequential(t *testing.T) {
	task := models.Task{Input: map[string]any{
		"items":      []any{"a", "b", "c"},
		"service":    "core",
		"command":    "noop",
		"sequential": true,
	}}
	result, err := Fanout(context.Background(), task, nil)
	if err != nil {
		t.Fatalf("Fanout: %v", err)
	}
	if len(result.ChildTasks[0].DependsOn) != 0 {
		t.Errorf("first child should have no dependency, got %v", result.ChildTasks[0].DependsOn)
	}
	if got := result.ChildTasks[1].DependsOn; len(got) != 1 || got[0] != "0" {
		t.Errorf("second child should depend on sibling 0, got %v", got)
	}
	if got := result.ChildTasks[2].DependsOn; len(got) != 1 || got[0] != "1" {
		t.Errorf("third child should depend on sibling 1, got %v", got)
	}
}

func TestFanoutValidation(t *testing.T) {
	if _, err := Fanout(context.Background(), models.Task{Input: map[string]any{}}, nil); err == nil {
		t.Error("expected error for missing items")
	}
	task := models.Task{Input: map[string]any{"items": []any{"a"}}}
	if _, err := Fanout(context.Background(), task, nil); err == nil {
		t.Error("expected error for missing service/command")
	}
}

func TestHTTPRequest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Token") != "secret" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte("hello"))
	}))
	defer srv.Close()

	task := models.Task{Input: map[string]any{
		"url":     srv.URL,
		"headers": map[string]any{"X-Token": "secret"},
	}}
	result, err := HTTPRequest(context.Background(), task, nil)
	if err != nil {
		t.Fatalf("HTTPRequest: %v", err)
	}
	if result.Output["status"] != http.StatusOK {
		t.Errorf("expected status 200, got %v", result.Output["status"])
	}
	if result.Output["body"] != "hello" {
		t.Errorf("expected body hello, got %v", result.Output["body"])
	}
	if result.Audit["method"] != "GET" {
		t.Errorf("expected GET audit, got %v", result.Audit["method"])
	}
}

func TestHTTPRequestErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	task := models.Task{Input: map[string]any{"url": srv.URL}}
	_, err := HTTPRequest(context.Background(), task, nil)
	if err == nil {
		t.Fatal("expected error for 500 response")
	}
	if !strings.Contains(err.Error(), "http 500") {
		t.Errorf("error should carry the status, got %v", err)
	}
}

func TestHTTPRequestMissingURL(t *testing.T) {
	if _, err := HTTPRequest(context.Background(), models.Task{}, nil); err == nil {
		t.Error("expected error for missing url")
	}
}

func TestShellRun(t *testing.T) {
	task := models.Task{Input: map[string]any{
		"command": "echo",
		"args":    []any{"hi"},
	}}
	result, err := ShellRun(context.Background(), task, nil)
	if err != nil {
		t.Fatalf("ShellRun: %v", err)
	}
	if got, _ := result.Output["output"].(string); strings.TrimSpace(got) != "hi" {
		t.Errorf("expected output hi, got %q", got)
	}
}

func TestShellRunFailure(t *testing.T) {
	task := models.Task{Input: map[string]any{"command": "false"}}
	if _, err := ShellRun(context.Background(), task, nil); err == nil {
		t.Error("expected error for non-zero exit")
	}

	if _, err := ShellRun(context.Background(), models.Task{}, nil); err == nil {
		t.Error("expected error for missing command")
	}
}

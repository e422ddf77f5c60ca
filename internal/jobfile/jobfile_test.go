package jobfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"taskloom/pkg/models"
)

const yamlDefinition = `
name: deploy
maxTasks: 20
timeout: 30s
abortOnFailure: true
tasks:
  - id: build
    service: shell
    command: run
    input:
      command: make
  - id: release
    service: http
    command: request
    dependsOn: [build]
`

func TestParseYAML(t *testing.T) {
	f, err := Parse([]byte(yamlDefinition))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if f.Name != "deploy" {
		t.Errorf("expected name deploy, got %q", f.Name)
	}
	if f.MaxTasks != 20 {
		t.Errorf("expected maxTasks 20, got %d", f.MaxTasks)
	}
	if f.AbortOnFailure == nil || !*f.AbortOnFailure {
		t.Error("expected abortOnFailure true")
	}
	if len(f.Tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(f.Tasks))
	}
	if f.Tasks[1].DependsOn[0] != "build" {
		t.Errorf("expected dependency build, got %v", f.Tasks[1].DependsOn)
	}
}

func TestParseJSON(t *testing.T) {
	data := []byte(`{"name":"j","tasks":[{"id":"a","service":"core","command":"noop"}]}`)
	f, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.Name != "j" || len(f.Tasks) != 1 {
		t.Errorf("unexpected parse result: %+v", f)
	}
}

func TestParseNoTasks(t *testing.T) {
	_, err := Parse([]byte("name: empty\n"))
	if err == nil || !strings.Contains(err.Error(), "no tasks") {
		t.Errorf("expected no-tasks error, got %v", err)
	}
}

func TestParseInvalid(t *testing.T) {
	if _, err := Parse([]byte("\t not yaml: [")); err == nil {
		t.Error("expected parse error")
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.yaml")
	if err := os.WriteFile(path, []byte(yamlDefinition), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	f, err := ParseFile(path)
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if f.Name != "deploy" {
		t.Errorf("expected name deploy, got %q", f.Name)
	}

	if _, err := ParseFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestJobMergesDefaults(t *testing.T) {
	f, err := Parse([]byte(yamlDefinition))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	job, err := f.Job(models.JobOptions{MaxTasks: 50, MaxDepth: 4, Verbose: true})
	if err != nil {
		t.Fatalf("Job: %v", err)
	}

	// Declared values win, unset ones fall back to the defaults.
	if job.MaxTasks != 20 {
		t.Errorf("declared maxTasks should win, got %d", job.MaxTasks)
	}
	if job.MaxDepth != 4 {
		t.Errorf("expected default maxDepth 4, got %d", job.MaxDepth)
	}
	if job.Timeout != 30*time.Second {
		t.Errorf("expected 30s timeout, got %s", job.Timeout)
	}
	if !job.AbortOnFailure {
		t.Error("expected abortOnFailure true")
	}
	if !job.Verbose {
		t.Error("expected default verbose to survive")
	}
	if len(job.Tasks) != 2 {
		t.Errorf("expected 2 tasks, got %d", len(job.Tasks))
	}
}

func TestJobInvalidTimeout(t *testing.T) {
	f := &File{
		Name:    "bad",
		Timeout: "soon",
		Tasks:   []TaskSpec{{ID: "a", Service: "core", Command: "noop"}},
	}
	_, err := f.Job(models.JobOptions{})
	if err == nil || !strings.Contains(err.Error(), "invalid timeout") {
		t.Errorf("expected timeout error, got %v", err)
	}
}

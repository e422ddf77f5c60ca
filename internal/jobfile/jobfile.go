// Package jobfile parses job definition files (YAML or JSON) into jobs.
package jobfile

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"taskloom/pkg/models"
)

// File is the on-disk job definition. Limit fields are optional; unset
// ones fall back to the configured defaults. JSON files parse through the
// same structure since JSON is a YAML subset.
type File struct {
	Name           string     `yaml:"name" json:"name"`
	MaxTasks       int        `yaml:"maxTasks" json:"maxTasks"`
	MaxDepth       int        `yaml:"maxDepth" json:"maxDepth"`
	Timeout        string     `yaml:"timeout" json:"timeout"`
	AbortOnFailure *bool      `yaml:"abortOnFailure" json:"abortOnFailure"`
	Verbose        *bool      `yaml:"verbose" json:"verbose"`
	AgentPlan      *bool      `yaml:"agentPlan" json:"agentPlan"`
	AgentReview    *bool      `yaml:"agentReview" json:"agentReview"`
	Tasks          []TaskSpec `yaml:"tasks" json:"tasks"`
}

// TaskSpec is one initial task in a job definition.
type TaskSpec struct {
	ID        string         `yaml:"id" json:"id"`
	Service   string         `yaml:"service" json:"service"`
	Command   string         `yaml:"command" json:"command"`
	Input     map[string]any `yaml:"input" json:"input"`
	DependsOn []string       `yaml:"dependsOn" json:"dependsOn"`
}

// Parse decodes a job definition from raw bytes.
func Parse(data []byte) (*File, error) {
	f := &File{}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("parse job definition: %w", err)
	}
	if len(f.Tasks) == 0 {
		return nil, fmt.Errorf("job definition declares no tasks")
	}
	return f, nil
}

// ParseFile decodes a job definition from a file.
func ParseFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read job definition: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Job builds a runnable job from the definition, filling unset limits
// from the given defaults.
func (f *File) Job(defaults models.JobOptions) (*models.Job, error) {
	opts := defaults
	if f.MaxTasks > 0 {
		opts.MaxTasks = f.MaxTasks
	}
	if f.MaxDepth > 0 {
		opts.MaxDepth = f.MaxDepth
	}
	if f.Timeout != "" {
		timeout, err := time.ParseDuration(f.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout %q: %w", f.Timeout, err)
		}
		opts.Timeout = timeout
	}
	if f.AbortOnFailure != nil {
		opts.AbortOnFailure = *f.AbortOnFailure
	}
	if f.Verbose != nil {
		opts.Verbose = *f.Verbose
	}
	if f.AgentPlan != nil {
		opts.AgentPlan = *f.AgentPlan
	}
	if f.AgentReview != nil {
		opts.AgentReview = *f.AgentReview
	}

	specs := make([]models.ChildTaskSpec, len(f.Tasks))
	for i, t := range f.Tasks {
		specs[i] = models.ChildTaskSpec{
			ID:        t.ID,
			Service:   t.Service,
			Command:   t.Command,
			Input:     t.Input,
			DependsOn: t.DependsOn,
		}
	}
	return models.NewJob(f.Name, specs, opts)
}

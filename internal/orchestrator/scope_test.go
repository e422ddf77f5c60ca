package orchestrator

import (
	"testing"

	"taskloom/pkg/models"
)

func TestScopeChildSpecsDeclaredIDs(t *testing.T) {
	out := ScopeChildSpecs("p", []models.ChildTaskSpec{
		{ID: "build", Service: "core", Command: "noop"},
		{ID: "test", Service: "core", Command: "noop", DependsOn: []string{"build"}},
	})

	if out[0].ID != "p-build" || out[1].ID != "p-test" {
		t.Errorf("expected scoped ids, got %s and %s", out[0].ID, out[1].ID)
	}
	if len(out[1].DependsOn) != 1 || out[1].DependsOn[0] != "p-build" {
		t.Errorf("sibling reference should be qualified, got %v", out[1].DependsOn)
	}
}

func TestScopeChildSpecsPositionalIDs(t *testing.T) {
	out := ScopeChildSpecs("job-3", []models.ChildTaskSpec{
		{Service: "core", Command: "noop"},
		{Service: "core", Command: "noop", DependsOn: []string{"0"}},
		{Service: "core", Command: "noop", DependsOn: []string{"1"}},
	})

	want := []string{"job-3-0", "job-3-1", "job-3-2"}
	for i, spec := range out {
		if spec.ID != want[i] {
			t.Errorf("spec %d: expected id %s, got %s", i, want[i], spec.ID)
		}
	}
	if out[1].DependsOn[0] != "job-3-0" {
		t.Errorf("positional sibling reference should be qualified, got %v", out[1].DependsOn)
	}
	if out[2].DependsOn[0] != "job-3-1" {
		t.Errorf("positional sibling reference should be qualified, got %v", out[2].DependsOn)
	}
}

func TestScopeChildSpecsForwardReference(t *testing.T) {
	out := ScopeChildSpecs("p", []models.ChildTaskSpec{
		{ID: "late", Service: "core", Command: "noop", DependsOn: []string{"early"}},
		{ID: "early", Service: "core", Command: "noop"},
	})

	if out[0].DependsOn[0] != "p-early" {
		t.Errorf("forward sibling reference should resolve, got %v", out[0].DependsOn)
	}
}

func TestScopeChildSpecsExternalReferencePassesThrough(t *testing.T) {
	out := ScopeChildSpecs("p", []models.ChildTaskSpec{
		{ID: "child", Service: "core", Command: "noop", DependsOn: []string{"existing-task", "sibling"}},
		{ID: "sibling", Service: "core", Command: "noop"},
	})

	deps := out[0].DependsOn
	if deps[0] != "existing-task" {
		t.Errorf("non-sibling reference must pass through unchanged, got %v", deps)
	}
	if deps[1] != "p-sibling" {
		t.Errorf("sibling reference must be qualified, got %v", deps)
	}
}

func TestScopeChildSpecsDoesNotMutateInput(t *testing.T) {
	specs := []models.ChildTaskSpec{
		{ID: "a", Service: "core", Command: "noop"},
		{ID: "b", Service: "core", Command: "noop", DependsOn: []string{"a"}},
	}
	ScopeChildSpecs("p", specs)

	if specs[0].ID != "a" || specs[1].DependsOn[0] != "a" {
		t.Errorf("input specs must not be mutated, got %+v", specs)
	}
}

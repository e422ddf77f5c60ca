package graph

import (
	"errors"
	"sort"
	"strings"
	"testing"

	"taskloom/pkg/models"
)

func task(id string, deps ...string) *models.Task {
	return &models.Task{
		ID:        id,
		Service:   "core",
		Command:   "noop",
		DependsOn: deps,
		Status:    models.TaskStatusStarted,
	}
}

func TestNewGraphIsEmpty(t *testing.T) {
	g := New()
	if g.Size() != 0 {
		t.Errorf("expected empty graph, got size %d", g.Size())
	}
}

func TestBuildAcyclic(t *testing.T) {
	g := New()
	tasks := []*models.Task{
		task("a"),
		task("b", "a"),
		task("c", "a", "b"),
	}
	if err := g.Build(tasks); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if g.Size() != 3 {
		t.Errorf("expected size 3, got %d", g.Size())
	}

	deps := g.GetDependencies("c")
	if len(deps) != 2 {
		t.Errorf("expected 2 dependencies for c, got %d", len(deps))
	}
	dependents := g.GetDependents("a")
	if len(dependents) != 2 {
		t.Errorf("expected 2 dependents of a, got %d", len(dependents))
	}
}

func TestBuildUnknownDependency(t *testing.T) {
	g := New()
	err := g.Build([]*models.Task{task("a", "missing")})
	if err == nil {
		t.Fatal("expected error for unknown dependency")
	}
	if !strings.Contains(err.Error(), "a") || !strings.Contains(err.Error(), "missing") {
		t.Errorf("error should name the task and the missing id, got: %v", err)
	}
}

func TestBuildCycle(t *testing.T) {
	g := New()
	err := g.Build([]*models.Task{
		task("a", "b"),
		task("b", "a"),
	})
	if !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("expected ErrCycleDetected, got %v", err)
	}
	if !strings.Contains(err.Error(), "a") || !strings.Contains(err.Error(), "b") {
		t.Errorf("cycle error should name both nodes, got: %v", err)
	}
}

func TestAddNodeDuplicate(t *testing.T) {
	g := New()
	if err := g.AddNode(task("a")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.AddNode(task("a")); err == nil {
		t.Fatal("expected error for duplicate id")
	}
}

func TestAddEdgeMissingEndpoints(t *testing.T) {
	g := New()
	if err := g.AddNode(task("a")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.AddEdge("a", "nope"); err == nil {
		t.Error("expected error for missing target")
	}
	if err := g.AddEdge("nope", "a"); err == nil {
		t.Error("expected error for missing source")
	}
}

func TestAddEdgeSelfLoop(t *testing.T) {
	g := New()
	if err := g.AddNode(task("a")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := g.AddEdge("a", "a")
	if !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("expected ErrCycleDetected for self-loop, got %v", err)
	}
}

func TestAddEdgeTwoCycle(t *testing.T) {
	g := New()
	for _, id := range []string{"a", "b"} {
		if err := g.AddNode(task(id)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if err := g.AddEdge("a", "b"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := g.AddEdge("b", "a")
	if !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("expected ErrCycleDetected, got %v", err)
	}
	if !strings.Contains(err.Error(), "a") || !strings.Contains(err.Error(), "b") {
		t.Errorf("cycle error should name both ids, got: %v", err)
	}
}

func TestAddEdgeNCycleLeavesGraphIntact(t *testing.T) {
	g := New()
	for _, id := range []string{"a", "b", "c", "x"} {
		if err := g.AddNode(task(id)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	mustEdge := func(from, to string) {
		t.Helper()
		if err := g.AddEdge(from, to); err != nil {
			t.Fatalf("AddEdge(%s, %s): %v", from, to, err)
		}
	}
	mustEdge("a", "b")
	mustEdge("b", "c")

	err := g.AddEdge("c", "a")
	if !errors.Is(err, ErrCycleDetected) {
		t.Fatalf("expected ErrCycleDetected, got %v", err)
	}

	// The rejected edge must be rolled back and unrelated state untouched.
	if err := g.Validate(); err != nil {
		t.Errorf("graph should be acyclic after rejected edge: %v", err)
	}
	if !g.HasNode("x") {
		t.Error("unrelated node x should be untouched")
	}
	if deps := g.GetDependencies("a"); len(deps) != 0 {
		t.Errorf("rejected edge should not persist, a has deps %v", deps)
	}

	// The graph must still accept valid mutations afterwards.
	if err := g.AddEdge("a", "x"); err != nil {
		t.Errorf("graph should accept valid edges after a rejection: %v", err)
	}
}

func TestGetExecutableTasksInitial(t *testing.T) {
	g := New()
	tasks := []*models.Task{
		task("a"),
		task("b"),
		task("c", "a"),
	}
	if err := g.Build(tasks); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ready := g.GetExecutableTasks(map[string]bool{})
	sort.Strings(ready)
	want := []string{"a", "b"}
	if len(ready) != len(want) || ready[0] != want[0] || ready[1] != want[1] {
		t.Errorf("expected %v, got %v", want, ready)
	}
}

func TestGetExecutableTasksIdempotent(t *testing.T) {
	g := New()
	if err := g.Build([]*models.Task{task("a"), task("b", "a")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	completed := map[string]bool{"a": true}
	first := g.GetExecutableTasks(completed)
	second := g.GetExecutableTasks(completed)
	if len(first) != 1 || len(second) != 1 || first[0] != second[0] {
		t.Errorf("expected identical results, got %v then %v", first, second)
	}
}

func TestDiamondReadiness(t *testing.T) {
	// a -> b, a -> c, b -> d, c -> d
	g := New()
	tasks := []*models.Task{
		task("a"),
		task("b", "a"),
		task("c", "a"),
		task("d", "b", "c"),
	}
	if err := g.Build(tasks); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	ready := g.GetExecutableTasks(map[string]bool{"a": true, "b": true})
	for _, id := range ready {
		if id == "d" {
			t.Fatal("d must not be ready with only b completed")
		}
	}

	ready = g.GetExecutableTasks(map[string]bool{"a": true, "b": true, "c": true})
	if len(ready) != 1 || ready[0] != "d" {
		t.Errorf("expected [d], got %v", ready)
	}
}

func TestTopologicalOrder(t *testing.T) {
	g := New()
	tasks := []*models.Task{
		task("a"),
		task("b", "a"),
		task("c", "b"),
	}
	if err := g.Build(tasks); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	order, err := g.TopologicalOrder()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	if pos["a"] > pos["b"] || pos["b"] > pos["c"] {
		t.Errorf("dependencies must come first, got %v", order)
	}
}

func TestRemoveNode(t *testing.T) {
	g := New()
	if err := g.Build([]*models.Task{task("a"), task("b", "a")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	g.RemoveNode("a")
	if g.HasNode("a") {
		t.Error("a should be gone")
	}
	if deps := g.GetDependencies("b"); len(deps) != 0 {
		t.Errorf("edges touching a removed node should be gone, got %v", deps)
	}
}

func TestGetNode(t *testing.T) {
	g := New()
	want := task("a")
	if err := g.AddNode(want); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := g.GetNode("a"); got != want {
		t.Errorf("expected the registered task back, got %v", got)
	}
	if got := g.GetNode("missing"); got != nil {
		t.Errorf("expected nil for unknown id, got %v", got)
	}
}

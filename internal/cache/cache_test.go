package cache

import (
	"testing"
	"time"

	"github.com/hoxforge/hox/internal/herr"
	"github.com/hoxforge/hox/internal/task"
)

func mkTask(id string, status task.Status, priority int, createdAt time.Time) *task.Task {
	return &task.Task{
		ID:        id,
		Title:     "task " + id,
		Type:      task.TypeTask,
		Status:    status,
		Priority:  priority,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestGetMissing(t *testing.T) {
	c := New()
	if _, ok := c.Get("hox-x"); ok {
		t.Error("expected miss on empty cache")
	}
}

func TestUpsertAndGet(t *testing.T) {
	c := New()
	now := time.Now()
	want := mkTask("hox-a", task.StatusOpen, 1, now)

	if err := c.Upsert(want); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, ok := c.Get("hox-a")
	if !ok {
		t.Fatal("expected hit")
	}
	if got.ID != want.ID || got.Priority != want.Priority {
		t.Errorf("got %+v, want %+v", got, want)
	}

	// Returned tasks are copies.
	got.Title = "mutated"
	got2, _ := c.Get("hox-a")
	if got2.Title == "mutated" {
		t.Error("Get should return a defensive copy")
	}
}

func TestUpsertRejectsInvalid(t *testing.T) {
	c := New()
	if err := c.Upsert(&task.Task{ID: "hox-a"}); err == nil {
		t.Error("expected validation error")
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	c := New()
	c.Remove("hox-nonexistent")

	now := time.Now()
	_ = c.Upsert(mkTask("hox-a", task.StatusOpen, 1, now))
	c.Remove("hox-a")
	if _, ok := c.Get("hox-a"); ok {
		t.Error("expected miss after Remove")
	}
	c.Remove("hox-a")
}

func TestReadyOrdering(t *testing.T) {
	c := New()
	base := time.Now()

	// Deliberately inserted out of priority/creation order.
	_ = c.Upsert(mkTask("hox-c", task.StatusOpen, 2, base.Add(1*time.Second)))
	_ = c.Upsert(mkTask("hox-a", task.StatusOpen, 1, base.Add(2*time.Second)))
	_ = c.Upsert(mkTask("hox-b", task.StatusOpen, 1, base.Add(1*time.Second)))

	ready := c.Ready(ReadyOptions{})
	if len(ready) != 3 {
		t.Fatalf("expected 3 ready tasks, got %d", len(ready))
	}
	want := []string{"hox-b", "hox-a", "hox-c"}
	for i, id := range want {
		if ready[i].ID != id {
			t.Errorf("ready[%d] = %q, want %q", i, ready[i].ID, id)
		}
	}
}

func TestReadyExcludesNonOpen(t *testing.T) {
	c := New()
	now := time.Now()
	_ = c.Upsert(mkTask("hox-a", task.StatusOpen, 1, now))
	_ = c.Upsert(mkTask("hox-b", task.StatusInProgress, 1, now))
	_ = c.Upsert(mkTask("hox-c", task.StatusClosed, 1, now))

	ready := c.Ready(ReadyOptions{})
	if len(ready) != 1 || ready[0].ID != "hox-a" {
		t.Errorf("expected only hox-a ready, got %v", ready)
	}
}

func TestReadyDeferral(t *testing.T) {
	c := New()
	now := time.Now()
	future := now.Add(time.Hour)

	deferred := mkTask("hox-a", task.StatusOpen, 1, now)
	deferred.DeferUntil = &future
	_ = c.Upsert(deferred)

	if ready := c.Ready(ReadyOptions{}); len(ready) != 0 {
		t.Errorf("expected deferred task excluded, got %v", ready)
	}
	if ready := c.Ready(ReadyOptions{IncludeDeferred: true}); len(ready) != 1 {
		t.Errorf("expected deferred task included, got %v", ready)
	}
}

func TestReadyAssignedAgentFilter(t *testing.T) {
	c := New()
	now := time.Now()
	a := mkTask("hox-a", task.StatusOpen, 1, now)
	a.AssignedAgent = "agent-1"
	b := mkTask("hox-b", task.StatusOpen, 1, now)
	_ = c.Upsert(a)
	_ = c.Upsert(b)

	ready := c.Ready(ReadyOptions{AssignedAgent: "agent-1"})
	if len(ready) != 1 || ready[0].ID != "hox-a" {
		t.Errorf("expected only hox-a, got %v", ready)
	}
}

func TestBlockedSetViaAddDep(t *testing.T) {
	c := New()
	now := time.Now()
	_ = c.Upsert(mkTask("hox-a", task.StatusOpen, 1, now))
	_ = c.Upsert(mkTask("hox-b", task.StatusOpen, 1, now))

	if err := c.AddDep(&task.Dep{From: "hox-a", To: "hox-b", Type: task.DepBlocks, CreatedAt: now}); err != nil {
		t.Fatalf("AddDep: %v", err)
	}

	if !c.IsBlocked("hox-b") {
		t.Error("expected hox-b blocked by open hox-a")
	}
	ready := c.Ready(ReadyOptions{})
	for _, r := range ready {
		if r.ID == "hox-b" {
			t.Error("blocked task hox-b should not be ready")
		}
	}
}

func TestBlockedSetClearsWhenPredecessorCloses(t *testing.T) {
	c := New()
	now := time.Now()
	a := mkTask("hox-a", task.StatusOpen, 1, now)
	_ = c.Upsert(a)
	_ = c.Upsert(mkTask("hox-b", task.StatusOpen, 1, now))
	_ = c.AddDep(&task.Dep{From: "hox-a", To: "hox-b", Type: task.DepBlocks, CreatedAt: now})

	if !c.IsBlocked("hox-b") {
		t.Fatal("expected hox-b blocked")
	}

	closed := mkTask("hox-a", task.StatusClosed, 1, now)
	_ = c.Upsert(closed)

	if c.IsBlocked("hox-b") {
		t.Error("expected hox-b unblocked once hox-a closed")
	}
}

func TestBlockedSetIgnoresForwardDeclaredPredecessor(t *testing.T) {
	c := New()
	now := time.Now()
	_ = c.Upsert(mkTask("hox-b", task.StatusOpen, 1, now))

	// hox-a does not exist yet; the dep is forward-declared and must not
	// block hox-b until hox-a actually appears as an open task.
	if err := c.AddDep(&task.Dep{From: "hox-a", To: "hox-b", Type: task.DepBlocks, CreatedAt: now}); err != nil {
		t.Fatalf("AddDep: %v", err)
	}
	if c.IsBlocked("hox-b") {
		t.Error("forward-declared predecessor should not block")
	}

	_ = c.Upsert(mkTask("hox-a", task.StatusOpen, 1, now))
	if !c.IsBlocked("hox-b") {
		t.Error("expected hox-b blocked once hox-a appears open")
	}
}

func TestRemoveDepClearsBlockedSet(t *testing.T) {
	c := New()
	now := time.Now()
	_ = c.Upsert(mkTask("hox-a", task.StatusOpen, 1, now))
	_ = c.Upsert(mkTask("hox-b", task.StatusOpen, 1, now))
	dep := &task.Dep{From: "hox-a", To: "hox-b", Type: task.DepBlocks, CreatedAt: now}
	_ = c.AddDep(dep)

	if err := c.RemoveDep(dep); err != nil {
		t.Fatalf("RemoveDep: %v", err)
	}
	if c.IsBlocked("hox-b") {
		t.Error("expected hox-b unblocked after RemoveDep")
	}
}

func TestAddDepRejectsDirectCycle(t *testing.T) {
	c := New()
	now := time.Now()
	_ = c.Upsert(mkTask("hox-a", task.StatusOpen, 1, now))
	_ = c.Upsert(mkTask("hox-b", task.StatusOpen, 1, now))

	if err := c.AddDep(&task.Dep{From: "hox-a", To: "hox-b", Type: task.DepBlocks, CreatedAt: now}); err != nil {
		t.Fatalf("AddDep: %v", err)
	}
	err := c.AddDep(&task.Dep{From: "hox-b", To: "hox-a", Type: task.DepBlocks, CreatedAt: now})
	if err == nil {
		t.Fatal("expected cycle rejection")
	}
	if herr.KindOf(err) != herr.KindDependencyCycle {
		t.Errorf("kind = %v, want %v", herr.KindOf(err), herr.KindDependencyCycle)
	}
}

func TestAddDepRejectsTransitiveCycle(t *testing.T) {
	c := New()
	now := time.Now()
	for _, id := range []string{"hox-a", "hox-b", "hox-c"} {
		_ = c.Upsert(mkTask(id, task.StatusOpen, 1, now))
	}
	_ = c.AddDep(&task.Dep{From: "hox-a", To: "hox-b", Type: task.DepBlocks, CreatedAt: now})
	_ = c.AddDep(&task.Dep{From: "hox-b", To: "hox-c", Type: task.DepBlocks, CreatedAt: now})

	err := c.AddDep(&task.Dep{From: "hox-c", To: "hox-a", Type: task.DepBlocks, CreatedAt: now})
	if err == nil {
		t.Fatal("expected transitive cycle rejection")
	}
	if herr.KindOf(err) != herr.KindDependencyCycle {
		t.Errorf("kind = %v, want %v", herr.KindOf(err), herr.KindDependencyCycle)
	}
}

func TestAddDepAllowsNonReadinessCycle(t *testing.T) {
	c := New()
	now := time.Now()
	_ = c.Upsert(mkTask("hox-a", task.StatusOpen, 1, now))
	_ = c.Upsert(mkTask("hox-b", task.StatusOpen, 1, now))

	if err := c.AddDep(&task.Dep{From: "hox-a", To: "hox-b", Type: task.DepRelatedTo, CreatedAt: now}); err != nil {
		t.Fatalf("AddDep: %v", err)
	}
	if err := c.AddDep(&task.Dep{From: "hox-b", To: "hox-a", Type: task.DepRelatedTo, CreatedAt: now}); err != nil {
		t.Errorf("related_to cycles should be allowed, got: %v", err)
	}
}

func TestAddDepIsIdempotent(t *testing.T) {
	c := New()
	now := time.Now()
	_ = c.Upsert(mkTask("hox-a", task.StatusOpen, 1, now))
	_ = c.Upsert(mkTask("hox-b", task.StatusOpen, 1, now))
	dep := &task.Dep{From: "hox-a", To: "hox-b", Type: task.DepBlocks, CreatedAt: now}

	if err := c.AddDep(dep); err != nil {
		t.Fatalf("first AddDep: %v", err)
	}
	if err := c.AddDep(dep); err != nil {
		t.Fatalf("replayed AddDep should be a no-op, got: %v", err)
	}

	if got := c.refcount["hox-b"]; got != 1 {
		t.Errorf("refcount[hox-b] = %d after replay, want 1", got)
	}
}

func TestListFilterByStatus(t *testing.T) {
	c := New()
	now := time.Now()
	_ = c.Upsert(mkTask("hox-a", task.StatusOpen, 1, now))
	_ = c.Upsert(mkTask("hox-b", task.StatusClosed, 1, now))

	open := task.StatusOpen
	results := c.List(Filter{Status: &open})
	if len(results) != 1 || results[0].ID != "hox-a" {
		t.Errorf("expected only hox-a, got %v", results)
	}
}

func TestListOrderCreatedDesc(t *testing.T) {
	c := New()
	base := time.Now()
	_ = c.Upsert(mkTask("hox-a", task.StatusOpen, 1, base))
	_ = c.Upsert(mkTask("hox-b", task.StatusOpen, 1, base.Add(time.Second)))

	results := c.List(Filter{OrderBy: OrderCreatedDesc})
	if len(results) != 2 || results[0].ID != "hox-b" {
		t.Errorf("expected hox-b first, got %v", results)
	}
}

func TestListLimit(t *testing.T) {
	c := New()
	now := time.Now()
	_ = c.Upsert(mkTask("hox-a", task.StatusOpen, 1, now))
	_ = c.Upsert(mkTask("hox-b", task.StatusOpen, 1, now))

	results := c.List(Filter{Limit: 1})
	if len(results) != 1 {
		t.Errorf("expected 1 result, got %d", len(results))
	}
}

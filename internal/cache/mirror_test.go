package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/hoxforge/hox/internal/task"
)

func TestOpenMirrorCreatesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mirror.db")
	m, err := OpenMirror(path)
	if err != nil {
		t.Fatalf("OpenMirror: %v", err)
	}
	defer m.Close()

	var name string
	if err := m.conn.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='tasks'`).Scan(&name); err != nil {
		t.Fatalf("expected a tasks table: %v", err)
	}
}

func TestSyncWritesTasksAndDeps(t *testing.T) {
	c := New()
	now := time.Now()
	a := mkTask("hox-a", task.StatusOpen, 1, now)
	b := mkTask("hox-b", task.StatusOpen, 2, now)
	if err := c.Upsert(a); err != nil {
		t.Fatal(err)
	}
	if err := c.Upsert(b); err != nil {
		t.Fatal(err)
	}
	dep := &task.Dep{From: "hox-a", To: "hox-b", Type: task.DepBlocks, CreatedAt: now}
	if err := c.AddDep(dep); err != nil {
		t.Fatal(err)
	}

	m, err := OpenMirror(filepath.Join(t.TempDir(), "mirror.db"))
	if err != nil {
		t.Fatalf("OpenMirror: %v", err)
	}
	defer m.Close()

	if err := m.Sync(context.Background(), c); err != nil {
		t.Fatalf("Sync: %v", err)
	}

	var taskCount int
	if err := m.conn.QueryRow("SELECT COUNT(*) FROM tasks").Scan(&taskCount); err != nil {
		t.Fatal(err)
	}
	if taskCount != 2 {
		t.Errorf("expected 2 mirrored tasks, got %d", taskCount)
	}

	var depCount int
	if err := m.conn.QueryRow("SELECT COUNT(*) FROM deps").Scan(&depCount); err != nil {
		t.Fatal(err)
	}
	if depCount != 1 {
		t.Errorf("expected 1 mirrored dep, got %d", depCount)
	}

	var blocked int
	if err := m.conn.QueryRow("SELECT is_blocked FROM tasks WHERE id = 'hox-b'").Scan(&blocked); err != nil {
		t.Fatal(err)
	}
	if blocked != 1 {
		t.Error("expected hox-b to be mirrored as blocked")
	}
}

func TestSyncIsIdempotentFullReplace(t *testing.T) {
	c := New()
	now := time.Now()
	if err := c.Upsert(mkTask("hox-a", task.StatusOpen, 1, now)); err != nil {
		t.Fatal(err)
	}

	m, err := OpenMirror(filepath.Join(t.TempDir(), "mirror.db"))
	if err != nil {
		t.Fatalf("OpenMirror: %v", err)
	}
	defer m.Close()

	if err := m.Sync(context.Background(), c); err != nil {
		t.Fatalf("first Sync: %v", err)
	}

	c.Remove("hox-a")
	if err := c.Upsert(mkTask("hox-z", task.StatusOpen, 1, now)); err != nil {
		t.Fatal(err)
	}
	if err := m.Sync(context.Background(), c); err != nil {
		t.Fatalf("second Sync: %v", err)
	}

	var count int
	if err := m.conn.QueryRow("SELECT COUNT(*) FROM tasks").Scan(&count); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("expected exactly 1 task after replace, got %d", count)
	}

	var id string
	if err := m.conn.QueryRow("SELECT id FROM tasks").Scan(&id); err != nil {
		t.Fatal(err)
	}
	if id != "hox-z" {
		t.Errorf("expected surviving task hox-z, got %q", id)
	}
}

func TestCloseNilMirrorIsNoop(t *testing.T) {
	var m *Mirror
	if err := m.Close(); err != nil {
		t.Errorf("expected nil error closing nil *Mirror, got %v", err)
	}
}

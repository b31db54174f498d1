package task

import (
	"path/filepath"
	"testing"
	"time"
)

func TestWriteReadTaskRoundTrip(t *testing.T) {
	dir := t.TempDir()
	now := time.Now().Truncate(time.Second)

	want := &Task{
		ID:        "hox-abc",
		Title:     "Implement feature X",
		Type:      TypeFeature,
		Status:    StatusOpen,
		Priority:  2,
		Tags:      []string{"backend"},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := WriteTask(dir, want); err != nil {
		t.Fatalf("WriteTask: %v", err)
	}

	got, err := ReadTask(filepath.Join(dir, want.Filename()))
	if err != nil {
		t.Fatalf("ReadTask: %v", err)
	}

	if got.ID != want.ID || got.Title != want.Title || got.Priority != want.Priority {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, want)
	}
}

func TestWriteTaskRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	bad := &Task{ID: "hox-abc"} // missing title, type, status, timestamps

	if err := WriteTask(dir, bad); err == nil {
		t.Error("expected WriteTask to reject an invalid task")
	}
}

func TestDeleteTaskIdempotent(t *testing.T) {
	dir := t.TempDir()

	if err := DeleteTask(dir, "hox-nonexistent"); err != nil {
		t.Errorf("DeleteTask on a missing task should not error, got: %v", err)
	}

	now := time.Now()
	task := &Task{ID: "hox-abc", Title: "Test", Type: TypeTask, Status: StatusOpen, CreatedAt: now, UpdatedAt: now}
	if err := WriteTask(dir, task); err != nil {
		t.Fatalf("WriteTask: %v", err)
	}

	if err := DeleteTask(dir, "hox-abc"); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if err := DeleteTask(dir, "hox-abc"); err != nil {
		t.Errorf("second DeleteTask should be idempotent, got: %v", err)
	}
}

func TestListTasksSkipsInvalidFiles(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	valid := &Task{ID: "hox-a", Title: "Valid", Type: TypeTask, Status: StatusOpen, CreatedAt: now, UpdatedAt: now}
	if err := WriteTask(dir, valid); err != nil {
		t.Fatalf("WriteTask: %v", err)
	}

	if err := writeRaw(filepath.Join(dir, "hox-bad.json"), []byte("not json")); err != nil {
		t.Fatalf("writeRaw: %v", err)
	}

	tasks, err := ListTasks(dir)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected 1 valid task, got %d", len(tasks))
	}
	if tasks[0].ID != "hox-a" {
		t.Errorf("expected hox-a, got %s", tasks[0].ID)
	}
}

func TestListTasksEmptyDirectory(t *testing.T) {
	dir := t.TempDir()
	tasks, err := ListTasks(filepath.Join(dir, "does-not-exist"))
	if err != nil {
		t.Fatalf("ListTasks on a missing directory should not error, got: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("expected no tasks, got %d", len(tasks))
	}
}

func TestWriteReadDepRoundTrip(t *testing.T) {
	dir := t.TempDir()
	dep := &Dep{From: "hox-a", To: "hox-b", Type: DepBlocks, CreatedAt: time.Now()}

	if err := WriteDep(dir, dep); err != nil {
		t.Fatalf("WriteDep: %v", err)
	}

	got, err := ReadDep(filepath.Join(dir, dep.Filename()))
	if err != nil {
		t.Fatalf("ReadDep: %v", err)
	}
	if got.From != dep.From || got.To != dep.To || got.Type != dep.Type {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, dep)
	}
}

func TestDepsForTask(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	deps := []*Dep{
		{From: "hox-a", To: "hox-b", Type: DepBlocks, CreatedAt: now},
		{From: "hox-c", To: "hox-a", Type: DepDependsOn, CreatedAt: now},
		{From: "hox-x", To: "hox-y", Type: DepRelatedTo, CreatedAt: now},
	}
	for _, d := range deps {
		if err := WriteDep(dir, d); err != nil {
			t.Fatalf("WriteDep: %v", err)
		}
	}

	matched, err := DepsForTask(dir, "hox-a")
	if err != nil {
		t.Fatalf("DepsForTask: %v", err)
	}
	if len(matched) != 2 {
		t.Fatalf("expected 2 deps involving hox-a, got %d", len(matched))
	}
}

func writeRaw(path string, data []byte) error {
	return atomicWrite(path, data)
}

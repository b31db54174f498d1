package reconcile

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hoxforge/hox/internal/herr"
	"github.com/hoxforge/hox/internal/task"
)

// TaskMetadata is a compact, non-authoritative projection of a Task, one
// line per task in the sidecar file. It exists purely so an operator (or a
// script) can grep a single small file for task status instead of reading
// every tasks/*.json file individually; it is never read back into the
// cache and is rebuilt from scratch on every write, so a stale or deleted
// sidecar file is never a correctness problem, only a convenience loss.
type TaskMetadata struct {
	ID            string      `json:"id"`
	Status        task.Status `json:"status"`
	Priority      int         `json:"priority"`
	AssignedAgent string      `json:"assigned_agent,omitempty"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

func newTaskMetadata(t *task.Task) TaskMetadata {
	return TaskMetadata{
		ID:            t.ID,
		Status:        t.Status,
		Priority:      t.Priority,
		AssignedAgent: t.AssignedAgent,
		UpdatedAt:     t.UpdatedAt,
	}
}

// MetadataSidecar maintains .tasks/metadata.jsonl, a compacted JSONL index
// rewritten in full on every Compact call. Files under tasks/ remain the
// single source of truth (spec §9); this index is an optimization for
// operators, never a second write path.
type MetadataSidecar struct {
	path string
	mu   sync.Mutex
}

// NewMetadataSidecar returns a sidecar writing to dir/metadata.jsonl.
func NewMetadataSidecar(dir string) *MetadataSidecar {
	return &MetadataSidecar{path: filepath.Join(dir, "metadata.jsonl")}
}

// Compact rewrites the sidecar file from scratch with one line per task,
// sorted by id for a stable diff between successive writes. It writes to a
// temp file and renames into place, the same atomic-write pattern
// internal/task uses for tasks/deps files.
func (s *MetadataSidecar) Compact(tasks []*task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return herr.Wrap(herr.KindIo, err, "create metadata sidecar directory")
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".metadata-*.jsonl.tmp")
	if err != nil {
		return herr.Wrap(herr.KindIo, err, "create metadata sidecar temp file")
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	for _, t := range sortedByID(tasks) {
		if err := enc.Encode(newTaskMetadata(t)); err != nil {
			tmp.Close()
			return herr.Wrap(herr.KindIo, err, "encode metadata sidecar entry")
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return herr.Wrap(herr.KindIo, err, "flush metadata sidecar")
	}
	if err := tmp.Close(); err != nil {
		return herr.Wrap(herr.KindIo, err, "close metadata sidecar temp file")
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return herr.Wrap(herr.KindIo, err, "rename metadata sidecar into place")
	}
	return nil
}

func sortedByID(tasks []*task.Task) []*task.Task {
	out := make([]*task.Task, len(tasks))
	copy(out, tasks)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].ID < out[j-1].ID; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

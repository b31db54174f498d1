package task

import (
	"time"

	"github.com/hoxforge/hox/internal/herr"
)

// Type enumerates the recognized task types.
type Type string

const (
	TypeBug     Type = "bug"
	TypeFeature Type = "feature"
	TypeTask    Type = "task"
	TypeEpic    Type = "epic"
	TypeChore   Type = "chore"
)

// Status enumerates the recognized task statuses.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusClosed     Status = "closed"
	StatusWontFix    Status = "won't_fix"
	StatusFailed     Status = "failed"
)

// MaxTitleLen is the maximum length of a task title, in bytes.
const MaxTitleLen = 500

// Task is the unit of work tracked by the system. One JSON file per task,
// at tasks/{id}.json.
type Task struct {
	ID string `json:"id"`

	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Type        Type   `json:"type"`
	Status      Status `json:"status"`

	Priority int `json:"priority"`

	AssignedAgent string `json:"assigned_agent,omitempty"`

	Tags []string `json:"tags,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	DueAt      *time.Time `json:"due_at,omitempty"`
	DeferUntil *time.Time `json:"defer_until,omitempty"`
}

// Validate checks the invariants from the data model: non-empty id, a
// bounded non-empty title, priority in range, non-empty type and status,
// and updated_at no earlier than created_at.
func (t *Task) Validate() error {
	if t.ID == "" {
		return herr.SchemaValidation("id", "must not be empty")
	}
	if t.Title == "" {
		return herr.SchemaValidation("title", "must not be empty")
	}
	if len(t.Title) > MaxTitleLen {
		return herr.SchemaValidation("title", "must be 500 characters or less")
	}
	if t.Priority < 0 || t.Priority > 4 {
		return herr.SchemaValidation("priority", "must be between 0 and 4")
	}
	if t.Type == "" {
		return herr.SchemaValidation("type", "must not be empty")
	}
	if t.Status == "" {
		return herr.SchemaValidation("status", "must not be empty")
	}
	if t.CreatedAt.IsZero() {
		return herr.SchemaValidation("created_at", "must not be zero")
	}
	if t.UpdatedAt.IsZero() {
		return herr.SchemaValidation("updated_at", "must not be zero")
	}
	if t.UpdatedAt.Before(t.CreatedAt) {
		return herr.SchemaValidation("updated_at", "must not precede created_at")
	}
	return nil
}

// SetDefaults fills in optional fields left zero, for tasks being created
// fresh rather than read back from disk.
func (t *Task) SetDefaults() {
	if t.Status == "" {
		t.Status = StatusOpen
	}
	if t.Type == "" {
		t.Type = TypeTask
	}
	if t.Tags == nil {
		t.Tags = []string{}
	}
	now := time.Now()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = now
	}
}

// Filename returns the canonical filename for this task: {id}.json.
func (t *Task) Filename() string {
	return t.ID + ".json"
}

// IsTerminal reports whether t is in a terminal status (closed, won't_fix
// or failed). A terminal task never blocks its dependents.
func (t *Task) IsTerminal() bool {
	switch t.Status {
	case StatusClosed, StatusWontFix, StatusFailed:
		return true
	}
	return false
}

// MergeField applies a last-write-wins merge of src into dst at field
// granularity, per the data model's lifecycle rule. A field from src wins
// when src.UpdatedAt is not before dst.UpdatedAt — ties favor the
// incoming value so reconciliation converges on the most recently observed
// write for every field, not just the file as a whole.
func MergeField(dst, src *Task) *Task {
	if dst == nil {
		return src
	}
	if src == nil {
		return dst
	}
	if !src.UpdatedAt.Before(dst.UpdatedAt) {
		merged := *src
		return &merged
	}
	merged := *dst
	return &merged
}

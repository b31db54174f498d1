package loop

import (
	"context"
	"strings"
	"testing"

	"github.com/hoxforge/hox/internal/task"
)

func TestPrepareHandoffParsesMetadataFromDescription(t *testing.T) {
	v := newFakeVCS("head1")
	v.descriptions["head1"] = "working on it\n\nAgent: agent-7\nStatus: in_progress"

	tk := mkTask("task-x")
	h, err := PrepareHandoff(context.Background(), v, tk, "head1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.Metadata.Agent != "agent-7" {
		t.Errorf("expected agent-7, got %q", h.Metadata.Agent)
	}
	if h.Metadata.Status != task.StatusInProgress {
		t.Errorf("expected in_progress, got %q", h.Metadata.Status)
	}
}

func TestHandoffFormatForAgentIncludesTaskFields(t *testing.T) {
	tk := mkTask("task-y")
	h := &Handoff{Task: tk}
	out := h.FormatForAgent()
	if !strings.Contains(out, tk.Title) {
		t.Errorf("expected title in output, got %q", out)
	}
	if !strings.Contains(out, "Priority") {
		t.Errorf("expected priority section, got %q", out)
	}
}

func TestHandoffFormatForAgentIncludesHistory(t *testing.T) {
	tk := mkTask("task-z")
	h := &Handoff{
		Task: tk,
		History: []ChangeLogEntry{
			{ChangeID: "abcdefgh1234", Description: "first change"},
			{ChangeID: "ijklmnop5678", Description: "second change"},
		},
	}
	out := h.FormatForAgent()
	if !strings.Contains(out, "abcdefgh") {
		t.Errorf("expected truncated change id in output, got %q", out)
	}
	if !strings.Contains(out, "first change") {
		t.Errorf("expected change description in output, got %q", out)
	}
}

func TestHandoffFormatForAgentTruncatesLongHistory(t *testing.T) {
	tk := mkTask("task-w")
	history := make([]ChangeLogEntry, 15)
	for i := range history {
		history[i] = ChangeLogEntry{ChangeID: "change0000000", Description: "entry"}
	}
	h := &Handoff{Task: tk, History: history}
	out := h.FormatForAgent()
	if !strings.Contains(out, "and 5 more changes") {
		t.Errorf("expected truncation note, got %q", out)
	}
}

func TestHandoffFormatForAgentIncludesDiff(t *testing.T) {
	tk := mkTask("task-v")
	h := &Handoff{Task: tk, Diff: "a.go\nb.go"}
	out := h.FormatForAgent()
	if !strings.Contains(out, "a.go") {
		t.Errorf("expected diff content in output, got %q", out)
	}
}

func TestAssignmentBookmarkNaming(t *testing.T) {
	got := assignmentBookmark("agent-1", "change1")
	if got != "agent-agent-1/change1" {
		t.Errorf("unexpected bookmark name %q", got)
	}
}

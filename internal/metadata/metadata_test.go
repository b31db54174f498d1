package metadata

import (
	"strings"
	"testing"

	"github.com/hoxforge/hox/internal/task"
)

func intp(n int) *int { return &n }

func TestParseFixedKeys(t *testing.T) {
	desc := `Implement user API

Some free-form body text.

Priority: 1
Status: in_progress
Agent: agent-42
Orchestrator: O-A-1
Msg-To: O-A-2
Msg-Type: mutation
`
	m := Parse(desc)

	if m.Priority == nil || *m.Priority != 1 {
		t.Errorf("expected priority 1, got %v", m.Priority)
	}
	if m.Status != task.StatusInProgress {
		t.Errorf("expected status in_progress, got %q", m.Status)
	}
	if m.Agent != "agent-42" {
		t.Errorf("expected agent agent-42, got %q", m.Agent)
	}
	if m.Orchestrator != "O-A-1" {
		t.Errorf("expected orchestrator O-A-1, got %q", m.Orchestrator)
	}
	if m.MsgTo != "O-A-2" {
		t.Errorf("expected msg-to O-A-2, got %q", m.MsgTo)
	}
	if m.MsgType != MsgMutation {
		t.Errorf("expected msg-type mutation, got %q", m.MsgType)
	}
}

func TestParseIsCaseInsensitive(t *testing.T) {
	m := Parse("priority: 3\nSTATUS: closed\n")
	if m.Priority == nil || *m.Priority != 3 {
		t.Errorf("expected priority 3, got %v", m.Priority)
	}
	if m.Status != task.StatusClosed {
		t.Errorf("expected status closed, got %q", m.Status)
	}
}

func TestParseToleratesMetadataLinesAnywhere(t *testing.T) {
	desc := "Status: open\nSome body text.\nPriority: 3\nMore body text.\n"
	m := Parse(desc)
	if m.Status != task.StatusOpen {
		t.Errorf("expected status open, got %q", m.Status)
	}
	if m.Priority == nil || *m.Priority != 3 {
		t.Errorf("expected priority 3, got %v", m.Priority)
	}
}

func TestParseEmptyDescriptionYieldsEmptyMetadata(t *testing.T) {
	m := Parse("just a plain body\nwith no metadata at all\n")
	if !m.IsEmpty() {
		t.Errorf("expected empty metadata, got %+v", m)
	}
}

func TestParseIgnoresUnknownKeys(t *testing.T) {
	m := Parse("Foo: bar\nPriority: 2\n")
	if m.Priority == nil || *m.Priority != 2 {
		t.Errorf("expected priority 2, got %v", m.Priority)
	}
}

func TestParseSkipsInvalidValues(t *testing.T) {
	m := Parse("Priority: not-a-number\nStatus: nonsense\nMsg-Type: bogus\n")
	if m.Priority != nil {
		t.Errorf("expected priority unset for invalid value, got %v", m.Priority)
	}
	if m.Status != "" {
		t.Errorf("expected status unset for invalid value, got %q", m.Status)
	}
	if m.MsgType != "" {
		t.Errorf("expected msg-type unset for invalid value, got %q", m.MsgType)
	}
}

func TestParseRejectsOutOfRangePriority(t *testing.T) {
	m := Parse("Priority: 9\n")
	if m.Priority != nil {
		t.Errorf("expected priority unset for out-of-range value, got %v", m.Priority)
	}
}

func TestStripRemovesMetadataPreservesBody(t *testing.T) {
	desc := "Title line\n\nBody paragraph.\n\nPriority: 1\nStatus: open\n"
	body := Strip(desc)
	if strings.Contains(body, "Priority:") || strings.Contains(body, "Status:") {
		t.Errorf("expected metadata lines stripped, got %q", body)
	}
	if !strings.Contains(body, "Title line") || !strings.Contains(body, "Body paragraph.") {
		t.Errorf("expected body preserved, got %q", body)
	}
}

func TestFormatEmptyMetadataYieldsEmptyString(t *testing.T) {
	if got := Format(Metadata{}); got != "" {
		t.Errorf("expected empty string for empty metadata, got %q", got)
	}
}

func TestFormatOrdersFieldsConsistently(t *testing.T) {
	m := Metadata{
		Priority:     intp(0),
		Status:       task.StatusOpen,
		Agent:        "agent-1",
		Orchestrator: "O-A-1",
		MsgTo:        "O-A-2",
		MsgType:      MsgInfo,
	}
	got := Format(m)
	want := "Priority: 0\nStatus: open\nAgent: agent-1\nOrchestrator: O-A-1\nMsg-To: O-A-2\nMsg-Type: info"
	if got != want {
		t.Errorf("got %q want %q", got, want)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	m := Metadata{
		Priority: intp(2),
		Status:   task.StatusBlocked,
		Agent:    "agent-7",
	}
	body := "Fix the thing.\n\nDetails here."
	desc := Encode(body, m)

	parsedBack := Parse(desc)
	if parsedBack.Priority == nil || *parsedBack.Priority != 2 {
		t.Errorf("expected priority round-trip, got %v", parsedBack.Priority)
	}
	if parsedBack.Status != task.StatusBlocked {
		t.Errorf("expected status round-trip, got %q", parsedBack.Status)
	}
	if parsedBack.Agent != "agent-7" {
		t.Errorf("expected agent round-trip, got %q", parsedBack.Agent)
	}
	if !strings.Contains(Strip(desc), "Fix the thing.") {
		t.Errorf("expected body preserved through encode, got %q", desc)
	}
}

func TestEncodeStripsExistingMetadataBeforeReinjecting(t *testing.T) {
	desc := "Body text.\n\nPriority: 4\nStatus: closed\n"
	encoded := Encode(desc, Metadata{Status: task.StatusOpen})

	if strings.Count(encoded, "Status:") != 1 {
		t.Fatalf("expected exactly one Status line after re-encoding, got %q", encoded)
	}
	if strings.Contains(encoded, "Priority:") {
		t.Errorf("expected stale Priority line dropped, got %q", encoded)
	}
	m := Parse(encoded)
	if m.Status != task.StatusOpen {
		t.Errorf("expected re-injected status open, got %q", m.Status)
	}
}

func TestEncodeWithEmptyMetadataStripsWithoutAddingBlock(t *testing.T) {
	desc := "Body text.\n\nStatus: open\n"
	encoded := Encode(desc, Metadata{})
	if strings.Contains(encoded, "Status:") {
		t.Errorf("expected metadata stripped with no replacement, got %q", encoded)
	}
	if !strings.Contains(encoded, "Body text.") {
		t.Errorf("expected body preserved, got %q", encoded)
	}
}

func TestIsEmpty(t *testing.T) {
	if !(Metadata{}).IsEmpty() {
		t.Error("expected zero-value Metadata to be empty")
	}
	if (Metadata{Agent: "a"}).IsEmpty() {
		t.Error("expected metadata with a field set to be non-empty")
	}
}

package loop

import (
	"context"
	"fmt"
	"strings"

	"github.com/hoxforge/hox/internal/herr"
	"github.com/hoxforge/hox/internal/metadata"
	"github.com/hoxforge/hox/internal/task"
	"github.com/hoxforge/hox/internal/vcs"
)

// ChangeLogEntry is one entry in a task's ancestor change history, paired
// down to the pieces a handoff prompt needs.
type ChangeLogEntry struct {
	ChangeID    string
	Description string
}

// Handoff is the supplemental context SPEC_FULL.md §12 adds for a fresh
// agent picking up a task that another agent (or a previous, exhausted
// iteration budget) already started: the paths changed since the task
// began (Diff, one path per line) and a truncated change log, on top of the task snapshot and
// current metadata every iteration prompt already carries. Grounded on
// internal/orchestrator/handoff.go's HandoffGenerator/AgentHandoff, adapted
// from jj-specific shellouts to the vcs.VCS interface.
type Handoff struct {
	Task     *task.Task
	Metadata metadata.Metadata
	Diff     string
	History  []ChangeLogEntry
}

const maxHandoffHistory = 10

// maxHandoffDiffLines truncates the changed-path list so a long-running
// task's handoff prompt doesn't grow unbounded; SPEC_FULL.md §9's "no raw
// transcript" rule applies here too, since an unbounded diff is durable
// state but not a bounded summary of it.
const maxHandoffDiffLines = 200

// PrepareHandoff gathers everything a fresh agent needs to continue
// changeID's task: its current description (including metadata), the
// paths changed since the task's root ancestor, and a capped change
// log.
func PrepareHandoff(ctx context.Context, v vcs.VCS, t *task.Task, changeID string) (*Handoff, error) {
	desc, err := v.ReadDescription(ctx, changeID)
	if err != nil {
		return nil, herr.Wrap(herr.KindHandoff, err, "read description for handoff")
	}
	meta := metadata.Parse(desc)

	diff, err := diffSinceRoot(ctx, v, changeID)
	if err != nil {
		diff = "(failed to get diff)"
	}

	history, err := changeLog(ctx, v, changeID)
	if err != nil {
		history = nil
	}

	return &Handoff{Task: t, Metadata: meta, Diff: diff, History: history}, nil
}

func diffSinceRoot(ctx context.Context, v vcs.VCS, changeID string) (string, error) {
	ancestors, err := v.Ancestors(ctx, changeID)
	if err != nil {
		return "", err
	}

	since := changeID
	if len(ancestors) > 0 {
		since = ancestors[len(ancestors)-1]
	}

	paths, err := v.ChangedPaths(ctx, since)
	if err != nil {
		return "", err
	}
	return strings.Join(paths, "\n"), nil
}

func changeLog(ctx context.Context, v vcs.VCS, changeID string) ([]ChangeLogEntry, error) {
	ancestors, err := v.Ancestors(ctx, changeID)
	if err != nil {
		return nil, err
	}

	entries := make([]ChangeLogEntry, 0, len(ancestors)+1)
	for _, id := range append([]string{changeID}, ancestors...) {
		desc, err := v.ReadDescription(ctx, id)
		if err != nil {
			continue
		}
		entries = append(entries, ChangeLogEntry{
			ChangeID:    id,
			Description: firstLine(metadata.Strip(desc)),
		})
	}
	return entries, nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// FormatForAgent renders h as a prompt section for a new agent taking over
// mid-task, in the same structure as the teacher's AgentHandoff.FormatForAgent.
func (h *Handoff) FormatForAgent() string {
	var sb strings.Builder

	sb.WriteString("## Handoff Context\n\n")

	fmt.Fprintf(&sb, "**Title:** %s\n", h.Task.Title)
	fmt.Fprintf(&sb, "**Priority:** %d\n", h.Task.Priority)
	fmt.Fprintf(&sb, "**Status:** %s\n", h.Task.Status)
	if h.Metadata.Agent != "" {
		fmt.Fprintf(&sb, "**Previous Agent:** %s\n", h.Metadata.Agent)
	}
	sb.WriteString("\n")

	if len(h.History) > 0 {
		sb.WriteString("### Change History\n")
		n := len(h.History)
		if n > maxHandoffHistory {
			n = maxHandoffHistory
		}
		for _, entry := range h.History[:n] {
			id := entry.ChangeID
			if len(id) > 8 {
				id = id[:8]
			}
			fmt.Fprintf(&sb, "- `%s`: %s\n", id, entry.Description)
		}
		if len(h.History) > maxHandoffHistory {
			fmt.Fprintf(&sb, "- ... and %d more changes\n", len(h.History)-maxHandoffHistory)
		}
		sb.WriteString("\n")
	}

	if h.Diff != "" {
		sb.WriteString("### Files Touched So Far\n")
		lines := strings.Split(h.Diff, "\n")
		if len(lines) > maxHandoffDiffLines {
			sb.WriteString(strings.Join(lines[:maxHandoffDiffLines], "\n"))
			fmt.Fprintf(&sb, "\n... (%d more lines)\n", len(lines)-maxHandoffDiffLines)
		} else {
			sb.WriteString(h.Diff)
			sb.WriteString("\n")
		}
	}

	return sb.String()
}

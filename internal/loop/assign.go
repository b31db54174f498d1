package loop

import (
	"context"
	"fmt"

	"github.com/hoxforge/hox/internal/vcs"
)

// assignmentBookmark returns the bookmark name (SPEC_FULL.md §12) used to
// make task assignment discoverable directly in the DVCS, mirroring
// internal/orchestrator.TaskManager.AssignTask's agent-{id}/{change}
// naming. The task file's assigned_agent field remains authoritative; this
// bookmark is a UX convenience so `jj bookmark list` / `git branch`
// surfaces who owns what.
func assignmentBookmark(agentID, changeID string) string {
	return fmt.Sprintf("agent-%s/%s", agentID, changeID)
}

// assign creates or moves the assignment bookmark for the engine's agent
// at the current head. Failure here is never fatal to the loop: the task
// file field is the ground truth the rest of the system relies on.
func (e *Engine) assign(ctx context.Context) error {
	if err := vcs.ValidateIdentifier(e.cfg.AgentID); err != nil {
		return err
	}

	changeID, err := e.cfg.VCS.CurrentHead(ctx)
	if err != nil {
		return err
	}

	return e.cfg.VCS.CreateBookmark(ctx, assignmentBookmark(e.cfg.AgentID, changeID), changeID)
}

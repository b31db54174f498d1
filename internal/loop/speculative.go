package loop

import (
	"context"
	"fmt"

	"github.com/hoxforge/hox/internal/vcs"
)

// strategyBookmark names the bookmark marking one speculative approach to a
// task change, mirroring internal/orchestrator's SpeculativeExecutor
// strategy/{change}/{name} convention.
func strategyBookmark(changeID, strategy string) string {
	return fmt.Sprintf("strategy/%s/%s", changeID, strategy)
}

// TryApproaches duplicates changeID once per strategy name, bookmarking
// each duplicate so `jj bookmark list` surfaces every approach being
// explored in parallel. Used when several Engine.Run calls for different
// strategy bookmarks are launched concurrently against the same starting
// point (spec §5: "loop engines... may run in parallel across tasks") —
// each duplicate gets its own change id, so the engines never share
// history and can't interfere with one another's edits.
func TryApproaches(ctx context.Context, v vcs.VCS, changeID string, strategies []string) ([]string, error) {
	changeIDs := make([]string, 0, len(strategies))
	for _, strategy := range strategies {
		newID, err := vcs.Duplicate(ctx, v, changeID)
		if err != nil {
			return changeIDs, err
		}
		if err := v.CreateBookmark(ctx, strategyBookmark(changeID, strategy), newID); err != nil {
			return changeIDs, err
		}
		changeIDs = append(changeIDs, newID)
	}
	return changeIDs, nil
}

// AuditTrail returns changeID's evolution log, the complete rewrite
// history backing a speculative approach.
func AuditTrail(ctx context.Context, v vcs.VCS, changeID string) ([]vcs.EvolutionEntry, error) {
	return vcs.EvolutionLog(ctx, v, changeID)
}

// SafeRevert backs out changeID without editing history, so a speculative
// approach that turned out wrong can be undone while keeping its full
// audit trail.
func SafeRevert(ctx context.Context, v vcs.VCS, changeID string) (string, error) {
	return vcs.Backout(ctx, v, changeID)
}

// CleanupDAG simplifies changeID's parent edges, pruning the redundant
// merge structure speculative exploration across several strategies tends
// to leave behind once the winning approach has been merged back in.
func CleanupDAG(ctx context.Context, v vcs.VCS, changeID string) error {
	return vcs.SimplifyParents(ctx, v, changeID)
}

// Package vcs provides a uniform interface over the underlying change DAG,
// with swappable Git and Jujutsu back-ends.
//
// The design follows a strategy pattern with runtime detection and factory
// creation: callers ask for Get() or GetForPath(path) and receive whichever
// backend is appropriate for the repository found there, without needing to
// know which one it is.
package vcs

import (
	"context"
	"time"
)

// Type identifies which VCS backend is in effect.
type Type string

const (
	// TypeGit indicates a git-only repository.
	TypeGit Type = "git"
	// TypeJJ indicates a jj-only repository (non-colocated).
	TypeJJ Type = "jj"
	// TypeColocate indicates a colocated repository (jj + git together).
	TypeColocate Type = "colocate"
)

func (t Type) String() string { return string(t) }

// VCS exposes the uniform operations the core needs over the change DAG.
// Implementations exist for git (internal/vcs/git) and jj (internal/vcs/jj).
//
// Workspace/worktree management, push/pull/fetch, and remote divergence
// tracking are deliberately absent here: this module's metadata channel is
// one-way (file wins, DVCS is audit-only, see SPEC_FULL.md §12), so there is
// no sync-branch workflow to support. Callers needing a shell escape hatch
// can use Exec.
type VCS interface {
	// Name returns the VCS type (git, jj, or colocate).
	Name() Type

	// Version returns the VCS binary version string.
	Version() (string, error)

	// RepoRoot returns the repository root directory path.
	RepoRoot() (string, error)

	// IsInVCS returns true if the current directory is inside a VCS repository.
	IsInVCS() bool

	// CurrentHead returns the id of the current change/commit.
	CurrentHead(ctx context.Context) (string, error)

	// ChangedPaths returns paths touched since the given change/commit id.
	ChangedPaths(ctx context.Context, since string) ([]string, error)

	// FindPaths returns repository-tracked paths matching glob.
	FindPaths(ctx context.Context, glob string) ([]string, error)

	// IsTracked reports whether path is tracked by the VCS.
	IsTracked(ctx context.Context, path string) (bool, error)

	// Describe sets the free-text description of a change.
	Describe(ctx context.Context, changeID, text string) error

	// ReadDescription returns the free-text description of a change.
	ReadDescription(ctx context.Context, changeID string) (string, error)

	// OpLog returns the most recent limit operations, newest first.
	OpLog(ctx context.Context, limit int) ([]Operation, error)

	// CreateBookmark creates or moves a named reference to point at changeID.
	CreateBookmark(ctx context.Context, name, changeID string) error

	// Ancestors returns the ancestor change ids of changeID, nearest first.
	Ancestors(ctx context.Context, changeID string) ([]string, error)

	// AffectedFiles returns the files an operation touched, restricted to
	// paths under the given directories (typically "tasks" and "deps").
	AffectedFiles(ctx context.Context, opID string, dirs []string) ([]string, error)

	// Undo undoes opID, as reported by OpLog: jj applies the inverse of that
	// operation; git hard-resets to the reflog commit opID names, discarding
	// later history. Destructive; callers decide when that's wanted.
	Undo(ctx context.Context, opID string) error

	// CanUndo reports whether opID still names a live operation that Undo
	// could act on.
	CanUndo(ctx context.Context, opID string) bool

	// Exec runs a raw VCS command (escape hatch). Use sparingly; prefer the
	// typed methods above wherever one exists.
	Exec(ctx context.Context, args ...string) ([]byte, error)
}

// Operation describes one entry in the DVCS operation log.
type Operation struct {
	ID          string
	Description string
	Timestamp   time.Time
	User        string
}

// Package git implements vcs.VCS for Git.
//
// Git commits are immutable, so Describe/ReadDescription are backed by git
// notes (refs/notes/hox) rather than rewriting commit messages. Everything
// else maps onto plain plumbing commands via os/exec.
package git

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hoxforge/hox/internal/herr"
	"github.com/hoxforge/hox/internal/vcs"
)

func init() {
	vcs.Register(vcs.TypeGit, func(repoRoot string) (vcs.VCS, error) {
		return New(repoRoot)
	})
}

// Git implements vcs.VCS by shelling out to the git CLI.
type Git struct {
	repoRoot string
	gitDir   string
}

// New creates a Git instance for the given repository root. The root must
// already contain a .git entry (directory or worktree file).
func New(repoRoot string) (*Git, error) {
	absRoot, err := filepath.Abs(repoRoot)
	if err != nil {
		return nil, herr.Wrap(herr.KindIo, err, "resolve repository root")
	}

	gitPath := filepath.Join(absRoot, ".git")
	if _, err := os.Stat(gitPath); err != nil {
		return nil, herr.Wrap(herr.KindVcsNotFound, herr.ErrNotInVCS, absRoot)
	}

	return &Git{repoRoot: absRoot, gitDir: gitPath}, nil
}

// Init initializes a new git repository at path.
func Init(path string) (*Git, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, herr.Wrap(herr.KindIo, err, "resolve path")
	}

	cmd := exec.Command("git", "init")
	cmd.Dir = absPath
	if err := cmd.Run(); err != nil {
		return nil, herr.Wrap(herr.KindVcsCommand, err, "git init")
	}

	return New(absPath)
}

func (g *Git) Name() vcs.Type         { return vcs.TypeGit }
func (g *Git) RepoRoot() (string, error) { return g.repoRoot, nil }
func (g *Git) IsInVCS() bool          { return g.repoRoot != "" }

func (g *Git) Version() (string, error) {
	cmd := exec.Command("git", "--version")
	output, err := cmd.Output()
	if err != nil {
		return "", herr.Wrap(herr.KindVcsCommand, err, "git --version")
	}
	version := strings.TrimSpace(string(output))
	return strings.TrimPrefix(version, "git version "), nil
}

// Exec runs a raw git command in the repository root, classifying common
// stderr patterns into herr kinds.
func (g *Git) Exec(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.repoRoot

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		stderrStr := stderr.String()
		switch {
		case strings.Contains(stderrStr, "not a git repository"):
			return nil, herr.Wrap(herr.KindVcsNotFound, herr.ErrNotInVCS, stderrStr)
		case strings.Contains(stderrStr, "No configured push destination"),
			strings.Contains(stderrStr, "does not appear to be a git repository"):
			return nil, herr.Wrap(herr.KindVcsCommand, herr.ErrNoRemote, stderrStr)
		case strings.Contains(stderrStr, "conflict"), strings.Contains(stderrStr, "CONFLICT"):
			return nil, herr.Wrap(herr.KindVcsCommand, herr.ErrConflicts, stderrStr)
		}
		return nil, herr.Wrap(herr.KindVcsCommand, err,
			fmt.Sprintf("git %s failed: %s", strings.Join(args, " "), stderrStr))
	}

	return stdout.Bytes(), nil
}

func (g *Git) execOut(ctx context.Context, args ...string) (string, error) {
	out, err := g.Exec(ctx, args...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (g *Git) CurrentHead(ctx context.Context) (string, error) {
	return g.execOut(ctx, "rev-parse", "HEAD")
}

// ChangedPaths returns files touched between since and HEAD.
func (g *Git) ChangedPaths(ctx context.Context, since string) ([]string, error) {
	if err := vcs.ValidateRevset(since); err != nil {
		return nil, err
	}
	out, err := g.execOut(ctx, "diff", "--name-only", since, "HEAD")
	if err != nil {
		return nil, err
	}
	return splitNonEmptyLines(out), nil
}

func (g *Git) FindPaths(ctx context.Context, glob string) ([]string, error) {
	if err := vcs.ValidatePath(glob); err != nil {
		return nil, err
	}
	out, err := g.execOut(ctx, "ls-files", "--", glob)
	if err != nil {
		return nil, err
	}
	return splitNonEmptyLines(out), nil
}

func (g *Git) IsTracked(ctx context.Context, path string) (bool, error) {
	if err := vcs.ValidatePath(path); err != nil {
		return false, err
	}
	cmd := exec.CommandContext(ctx, "git", "ls-files", "--error-unmatch", "--", path)
	cmd.Dir = g.repoRoot
	return cmd.Run() == nil, nil
}

// Describe attaches a note to changeID under refs/notes/hox. Commit messages
// are immutable once written, so this is the closest git analogue of jj's
// mutable change description.
func (g *Git) Describe(ctx context.Context, changeID, text string) error {
	if err := vcs.ValidateIdentifier(changeID); err != nil {
		return err
	}
	_, err := g.Exec(ctx, "notes", "--ref=hox", "add", "-f", "-m", text, changeID)
	return err
}

// ReadDescription returns the hox note for changeID if one exists, falling
// back to the commit's own message.
func (g *Git) ReadDescription(ctx context.Context, changeID string) (string, error) {
	if err := vcs.ValidateIdentifier(changeID); err != nil {
		return "", err
	}
	if note, err := g.execOut(ctx, "notes", "--ref=hox", "show", changeID); err == nil {
		return note, nil
	}
	return g.execOut(ctx, "log", "-1", "--format=%B", changeID)
}

// OpLog returns the most recent limit reflog entries, newest first. Each
// Operation's Timestamp is the author date of the entry's commit; User is
// left empty.
func (g *Git) OpLog(ctx context.Context, limit int) ([]vcs.Operation, error) {
	if limit <= 0 {
		limit = 10
	}
	out, err := g.execOut(ctx, "reflog", "-n", strconv.Itoa(limit),
		"--format=%H%x09%ad%x09%gs", "--date=iso-strict")
	if err != nil {
		return nil, err
	}

	var ops []vcs.Operation
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 3)
		op := vcs.Operation{ID: parts[0]}
		if len(parts) > 1 {
			if ts, err := time.Parse(time.RFC3339, parts[1]); err == nil {
				op.Timestamp = ts
			}
		}
		if len(parts) > 2 {
			op.Description = parts[2]
		}
		ops = append(ops, op)
	}
	return ops, nil
}

func (g *Git) CreateBookmark(ctx context.Context, name, changeID string) error {
	if err := vcs.ValidateIdentifier(name); err != nil {
		return err
	}
	if err := vcs.ValidateIdentifier(changeID); err != nil {
		return err
	}
	_, err := g.Exec(ctx, "branch", "-f", name, changeID)
	return err
}

func (g *Git) Ancestors(ctx context.Context, changeID string) ([]string, error) {
	if err := vcs.ValidateIdentifier(changeID); err != nil {
		return nil, err
	}
	out, err := g.execOut(ctx, "rev-list", changeID)
	if err != nil {
		return nil, err
	}
	return splitNonEmptyLines(out), nil
}

// AffectedFiles returns the files a commit touched, restricted to the given
// directory prefixes.
func (g *Git) AffectedFiles(ctx context.Context, opID string, dirs []string) ([]string, error) {
	if err := vcs.ValidateIdentifier(opID); err != nil {
		return nil, err
	}
	out, err := g.execOut(ctx, "show", "--name-only", "--format=", opID)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, path := range splitNonEmptyLines(out) {
		if len(dirs) == 0 || hasAnyPrefix(path, dirs) {
			files = append(files, path)
		}
	}
	return files, nil
}

// Undo resets the working copy to opID, the commit OpLog named via
// reflog. Git has no op-log-undo primitive of its own; "reset --hard" to
// the reflog entry's commit is the closest equivalent and, unlike jj's
// "op undo", discards rather than inverts later history, so callers
// should treat it as strictly more destructive.
func (g *Git) Undo(ctx context.Context, opID string) error {
	if err := vcs.ValidateIdentifier(opID); err != nil {
		return err
	}
	_, err := g.Exec(ctx, "reset", "--hard", opID)
	return err
}

// CanUndo reports whether opID still names a reachable commit object.
func (g *Git) CanUndo(ctx context.Context, opID string) bool {
	if err := vcs.ValidateIdentifier(opID); err != nil {
		return false
	}
	_, err := g.execOut(ctx, "cat-file", "-e", opID)
	return err == nil
}

func hasAnyPrefix(path string, dirs []string) bool {
	for _, d := range dirs {
		if strings.HasPrefix(path, d+"/") || path == d {
			return true
		}
	}
	return false
}

func splitNonEmptyLines(s string) []string {
	var lines []string
	for _, l := range strings.Split(s, "\n") {
		l = strings.TrimSpace(l)
		if l != "" {
			lines = append(lines, l)
		}
	}
	return lines
}

// Package jj implements vcs.VCS for Jujutsu (jj).
//
// Jujutsu is a Git-compatible version control system with automatic change
// tracking, an operation log with undo, and stable change ids. This
// implementation wraps the jj CLI using os/exec; jj has no stable library
// API, so a subprocess adapter is the only option (matching every other jj
// integration in the corpus).
package jj

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hoxforge/hox/internal/herr"
	"github.com/hoxforge/hox/internal/vcs"
)

func init() {
	vcs.Register(vcs.TypeJJ, func(repoRoot string) (vcs.VCS, error) {
		return New(repoRoot)
	})
}

// JJ implements vcs.VCS by shelling out to the jj CLI.
type JJ struct {
	repoRoot    string
	jjDir       string
	isColocated bool
}

// New creates a JJ instance for the given repository root. The root must
// already contain a .jj directory; use Init to create one.
func New(repoRoot string) (*JJ, error) {
	absRoot, err := filepath.Abs(repoRoot)
	if err != nil {
		return nil, herr.Wrap(herr.KindIo, err, "resolve repository root")
	}

	jjDir := filepath.Join(absRoot, ".jj")
	if _, err := os.Stat(jjDir); err != nil {
		return nil, herr.Wrap(herr.KindVcsNotFound, herr.ErrNotInVCS, absRoot)
	}

	_, gitErr := os.Stat(filepath.Join(absRoot, ".git"))

	return &JJ{
		repoRoot:    absRoot,
		jjDir:       jjDir,
		isColocated: gitErr == nil,
	}, nil
}

// Init initializes a new jj repository at path, optionally colocated with git.
func Init(path string, colocate bool) (*JJ, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, herr.Wrap(herr.KindIo, err, "resolve path")
	}

	args := []string{"git", "init"}
	if colocate {
		args = append(args, "--colocate")
	}

	cmd := exec.Command("jj", args...)
	cmd.Dir = absPath
	if err := cmd.Run(); err != nil {
		return nil, herr.Wrap(herr.KindVcsCommand, err, "jj git init")
	}

	return New(absPath)
}

func (j *JJ) Name() vcs.Type {
	if j.isColocated {
		return vcs.TypeColocate
	}
	return vcs.TypeJJ
}

func (j *JJ) Version() (string, error) {
	cmd := exec.Command("jj", "--version")
	output, err := cmd.Output()
	if err != nil {
		return "", herr.Wrap(herr.KindVcsCommand, err, "jj --version")
	}
	parts := strings.Fields(strings.TrimSpace(string(output)))
	if len(parts) >= 2 {
		return parts[1], nil
	}
	return strings.TrimSpace(string(output)), nil
}

func (j *JJ) RepoRoot() (string, error) { return j.repoRoot, nil }
func (j *JJ) IsInVCS() bool             { return j.jjDir != "" }

// Exec runs a raw jj command in the repository root, classifying common
// stderr patterns into herr kinds.
func (j *JJ) Exec(ctx context.Context, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "jj", args...)
	cmd.Dir = j.repoRoot

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		stderrStr := stderr.String()
		switch {
		case strings.Contains(stderrStr, "No workspace configured"):
			return nil, herr.Wrap(herr.KindVcsNotFound, herr.ErrNotInVCS, stderrStr)
		case strings.Contains(stderrStr, "No remote configured"):
			return nil, herr.Wrap(herr.KindVcsCommand, herr.ErrNoRemote, stderrStr)
		case strings.Contains(stderrStr, "conflict"):
			return nil, herr.Wrap(herr.KindVcsCommand, herr.ErrConflicts, stderrStr)
		}
		return nil, herr.Wrap(herr.KindVcsCommand, err,
			fmt.Sprintf("jj %s failed: %s", strings.Join(args, " "), stderrStr))
	}

	return stdout.Bytes(), nil
}

func (j *JJ) execOut(ctx context.Context, args ...string) (string, error) {
	out, err := j.Exec(ctx, args...)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (j *JJ) CurrentHead(ctx context.Context) (string, error) {
	return j.execOut(ctx, "log", "-r", "@", "-n", "1", "--no-graph", "-T", "change_id")
}

// ChangedPaths returns files touched between since and the working copy,
// via jj diff's name-only summary.
func (j *JJ) ChangedPaths(ctx context.Context, since string) ([]string, error) {
	if err := vcs.ValidateRevset(since); err != nil {
		return nil, err
	}
	out, err := j.execOut(ctx, "diff", "-r", fmt.Sprintf("%s..@", since), "--name-only")
	if err != nil {
		return nil, err
	}
	return splitNonEmptyLines(out), nil
}

func (j *JJ) FindPaths(ctx context.Context, glob string) ([]string, error) {
	if err := vcs.ValidatePath(glob); err != nil {
		return nil, err
	}
	out, err := j.execOut(ctx, "file", "list", "-r", "@", glob)
	if err != nil {
		return nil, err
	}
	return splitNonEmptyLines(out), nil
}

func (j *JJ) IsTracked(ctx context.Context, path string) (bool, error) {
	if err := vcs.ValidatePath(path); err != nil {
		return false, err
	}
	out, err := j.execOut(ctx, "file", "list", "-r", "@", path)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

func (j *JJ) Describe(ctx context.Context, changeID, text string) error {
	if err := vcs.ValidateIdentifier(changeID); err != nil {
		return err
	}
	_, err := j.Exec(ctx, "describe", "-r", changeID, "-m", text)
	return err
}

func (j *JJ) ReadDescription(ctx context.Context, changeID string) (string, error) {
	if err := vcs.ValidateIdentifier(changeID); err != nil {
		return "", err
	}
	return j.execOut(ctx, "log", "-r", changeID, "-n", "1", "--no-graph", "-T", "description")
}

// OpLog returns the most recent limit operations via a machine-parseable
// template, newest first.
func (j *JJ) OpLog(ctx context.Context, limit int) ([]vcs.Operation, error) {
	args := []string{"op", "log", "--no-graph",
		"-T", `id ++ "\t" ++ time.start().format("%Y-%m-%dT%H:%M:%SZ") ++ "\t" ++ description ++ "\n"`}
	if limit > 0 {
		args = append(args, "-n", strconv.Itoa(limit))
	}

	out, err := j.execOut(ctx, args...)
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

func (j *JJ) CreateBookmark(ctx context.Context, name, changeID string) error {
	if err := vcs.ValidateIdentifier(name); err != nil {
		return err
	}
	if err := vcs.ValidateIdentifier(changeID); err != nil {
		return err
	}
	// jj bookmark set moves-or-creates; -r pins the target change.
	_, err := j.Exec(ctx, "bookmark", "set", "-r", changeID, "--allow-backwards", name)
	return err
}

func (j *JJ) Ancestors(ctx context.Context, changeID string) ([]string, error) {
	if err := vcs.ValidateIdentifier(changeID); err != nil {
		return nil, err
	}
	out, err := j.execOut(ctx, "log",
		"-r", fmt.Sprintf("ancestors(%s)", changeID),
		"--no-graph", "-T", `change_id ++ "\n"`)
	if err != nil {
		return nil, err
	}
	return splitNonEmptyLines(out), nil
}

var affectedFileRe = regexp.MustCompile(`(?:Added|Modified|Removed) regular file (.+):`)

// AffectedFiles parses `jj op show --op-diff --patch` output for file paths
// touched by an operation, restricted to the given directory prefixes.
func (j *JJ) AffectedFiles(ctx context.Context, opID string, dirs []string) ([]string, error) {
	if err := vcs.ValidateIdentifier(opID); err != nil {
		return nil, err
	}
	out, err := j.Exec(ctx, "op", "show", opID, "--op-diff", "--patch")
	if err != nil {
		return nil, err
	}

	var files []string
	for _, line := range strings.Split(string(out), "\n") {
		m := affectedFileRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		path := strings.TrimSpace(m[1])
		if len(dirs) == 0 || hasAnyPrefix(path, dirs) {
			files = append(files, path)
		}
	}
	return files, nil
}

// Undo reverts opID via "jj op undo", jj's own op-log-driven undo.
func (j *JJ) Undo(ctx context.Context, opID string) error {
	if err := vcs.ValidateIdentifier(opID); err != nil {
		return err
	}
	_, err := j.Exec(ctx, "op", "undo", opID)
	return err
}

// CanUndo reports whether opID still resolves via "jj op show".
func (j *JJ) CanUndo(ctx context.Context, opID string) bool {
	if err := vcs.ValidateIdentifier(opID); err != nil {
		return false
	}
	_, err := j.execOut(ctx, "op", "show", opID)
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

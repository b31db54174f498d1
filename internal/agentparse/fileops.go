package agentparse

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/hoxforge/hox/internal/herr"
	"github.com/hoxforge/hox/internal/vcs"
)

// OpKind enumerates the recognized file operation kinds.
type OpKind string

const (
	OpWrite  OpKind = "write"
	OpAppend OpKind = "append"
	OpDelete OpKind = "delete"
	OpRename OpKind = "rename"
)

// FileOp is one tagged file-operation block extracted from agent output.
type FileOp struct {
	Op      OpKind
	Path    string
	Content string
	NewPath string
}

// hox-agent's file_executor.rs (which defines FileOperation/
// execute_file_operations/file_operation_instructions per lib.rs's
// exports) was not retrievable in original_source, so the tag grammar
// below is built directly from the spec's own field list
// ({op, path, content?, new_path?}) in the same <tag attr="..."> style
// established by promise.rs's <promise>/<completion_reasoning> markers —
// an explicit exception to the grounding requirement, noted here as such.
var fileOpRE = regexp.MustCompile(`(?s)<file_op\s+op="(\w+)"\s+path="([^"]*)"(?:\s+new_path="([^"]*)")?\s*>(.*?)</file_op>`)

// ParseFileOps extracts the ordered sequence of file_op blocks from
// output. Every path (and new_path, for rename) must pass the same
// allow-list validator used for VCS-bound paths.
func ParseFileOps(output string) ([]FileOp, error) {
	matches := fileOpRE.FindAllStringSubmatch(output, -1)

	ops := make([]FileOp, 0, len(matches))
	for _, m := range matches {
		op := FileOp{
			Op:      OpKind(strings.ToLower(m[1])),
			Path:    m[2],
			NewPath: m[3],
			Content: strings.Trim(m[4], "\n"),
		}

		switch op.Op {
		case OpWrite, OpAppend, OpDelete, OpRename:
		default:
			return nil, herr.New(herr.KindParse, fmt.Sprintf("unrecognized file operation %q", m[1]))
		}

		if err := vcs.ValidatePath(op.Path); err != nil {
			return nil, err
		}
		if op.Op == OpRename {
			if err := vcs.ValidatePath(op.NewPath); err != nil {
				return nil, err
			}
		}

		ops = append(ops, op)
	}
	return ops, nil
}

// staged records what Apply needs to restore if a later operation in the
// batch fails: the prior contents of every path it touches (so writes
// and deletes can be undone) and the set of paths it created from
// nothing (so they can be removed on rollback rather than restored).
type staged struct {
	backup  map[string][]byte
	created map[string]bool
}

func newStaged() *staged {
	return &staged{backup: make(map[string][]byte), created: make(map[string]bool)}
}

// snapshot records path's current content (or its absence) the first
// time the batch touches it, so repeated operations on the same path
// within a batch don't clobber the original rollback point.
func (s *staged) snapshot(baseDir, path string) error {
	full := filepath.Join(baseDir, path)
	if _, done := s.backup[path]; done {
		return nil
	}
	if s.created[path] {
		return nil
	}

	data, err := os.ReadFile(full)
	switch {
	case err == nil:
		s.backup[path] = data
	case os.IsNotExist(err):
		s.created[path] = true
	default:
		return herr.Wrap(herr.KindIo, err, "snapshot "+path)
	}
	return nil
}

func (s *staged) rollback(baseDir string) {
	for path, data := range s.backup {
		_ = atomicWriteFile(filepath.Join(baseDir, path), data)
	}
	for path := range s.created {
		_ = os.Remove(filepath.Join(baseDir, path))
	}
}

// Apply applies ops in order against files rooted at baseDir. On any
// failure the whole batch is rolled back to its pre-apply state and the
// triggering error is returned; no partial application is ever left
// visible to the caller.
func Apply(baseDir string, ops []FileOp) error {
	s := newStaged()

	for _, op := range ops {
		if err := s.snapshot(baseDir, op.Path); err != nil {
			s.rollback(baseDir)
			return err
		}
		if op.Op == OpRename {
			if err := s.snapshot(baseDir, op.NewPath); err != nil {
				s.rollback(baseDir)
				return err
			}
		}
	}

	for _, op := range ops {
		if err := applyOne(baseDir, op); err != nil {
			s.rollback(baseDir)
			return err
		}
	}

	return nil
}

func applyOne(baseDir string, op FileOp) error {
	full := filepath.Join(baseDir, op.Path)

	switch op.Op {
	case OpWrite:
		return atomicWriteFile(full, []byte(op.Content))

	case OpAppend:
		existing, err := os.ReadFile(full)
		if err != nil && !os.IsNotExist(err) {
			return herr.Wrap(herr.KindIo, err, "read for append "+op.Path)
		}
		return atomicWriteFile(full, append(existing, []byte(op.Content)...))

	case OpDelete:
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			return herr.Wrap(herr.KindIo, err, "delete "+op.Path)
		}
		return nil

	case OpRename:
		newFull := filepath.Join(baseDir, op.NewPath)
		if _, err := os.Lstat(newFull); err == nil {
			return herr.PathUnsafe(op.NewPath, "rename target already exists")
		} else if !os.IsNotExist(err) {
			return herr.Wrap(herr.KindIo, err, "stat rename target "+op.NewPath)
		}
		if err := os.MkdirAll(filepath.Dir(newFull), 0o755); err != nil {
			return herr.Wrap(herr.KindIo, err, "create directory for rename target")
		}
		if err := os.Rename(full, newFull); err != nil {
			return herr.Wrap(herr.KindIo, err, "rename "+op.Path+" to "+op.NewPath)
		}
		return nil

	default:
		return herr.New(herr.KindParse, "unrecognized file operation "+string(op.Op))
	}
}

// atomicWriteFile writes data to path via a temp file in the same
// directory followed by rename, matching internal/task's write
// discipline so a crash mid-apply never leaves a half-written file.
func atomicWriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return herr.Wrap(herr.KindIo, err, "create directory "+dir)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return herr.Wrap(herr.KindIo, err, "create temp file in "+dir)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return herr.Wrap(herr.KindIo, err, "write temp file")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return herr.Wrap(herr.KindIo, err, "close temp file")
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return herr.Wrap(herr.KindIo, err, "rename into place: "+path)
	}
	return nil
}

package vcs

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/hoxforge/hox/internal/herr"
)

// EvolutionEntry is one entry in a change's evolution log: the sequence of
// rewrites (describes, rebases, duplicates) that produced its current
// state, used as an audit trail for speculative exploration.
type EvolutionEntry struct {
	ChangeID    string
	Description string
	Timestamp   time.Time
}

// requireJJ rejects the git backend for the DAG-rewriting operations below.
// Duplicate, evolution logs, backout-as-new-change, and parent
// simplification are jj primitives with no git equivalent: git commits are
// immutable and have no change id independent of their current commit, so
// there is nothing to "duplicate" or "simplify" short of faking it with
// cherry-pick/revert, which would silently give callers different
// semantics than they asked for.
func requireJJ(v VCS) error {
	switch v.Name() {
	case TypeJJ, TypeColocate:
		return nil
	default:
		return herr.Wrap(herr.KindVcsCommand, herr.ErrNotSupported,
			"speculative execution requires a jj-backed repository")
	}
}

// jj change ids render in a 16-letter alphabet (k-z), reserved so they're
// never confusable with the hexadecimal commit ids jj prints alongside them.
var duplicatedChangeRe = regexp.MustCompile(`(?m)^\s*([k-z]{4,})\s+[0-9a-f]{4,}`)

// Duplicate creates a copy of changeID as a new, independent change (a new
// change id, same content) and returns the new change's id. Used to
// explore several strategies for one task in parallel without any of them
// sharing history.
func Duplicate(ctx context.Context, v VCS, changeID string) (string, error) {
	if err := requireJJ(v); err != nil {
		return "", err
	}
	if err := ValidateIdentifier(changeID); err != nil {
		return "", err
	}

	out, err := v.Exec(ctx, "duplicate", "-r", changeID)
	if err != nil {
		return "", err
	}

	m := duplicatedChangeRe.FindStringSubmatch(string(out))
	if m == nil {
		return "", herr.Wrap(herr.KindParse, herr.ErrNotSupported,
			"could not find new change id in duplicate output")
	}
	return m[1], nil
}

// EvolutionLog returns changeID's evolution log (every describe/rebase/
// duplicate that touched it), oldest first, as an audit trail for
// speculative exploration.
func EvolutionLog(ctx context.Context, v VCS, changeID string) ([]EvolutionEntry, error) {
	if err := requireJJ(v); err != nil {
		return nil, err
	}
	if err := ValidateIdentifier(changeID); err != nil {
		return nil, err
	}

	out, err := v.Exec(ctx, "evolog", "-r", changeID, "--no-graph", "-T",
		`commit_id ++ "\t" ++ description.first_line() ++ "\t" ++ committer.timestamp().format("%Y-%m-%dT%H:%M:%SZ") ++ "\n"`)
	if err != nil {
		return nil, err
	}

	var entries []EvolutionEntry
	for _, line := range ParseLines(out) {
		parts := strings.SplitN(line, "\t", 3)
		e := EvolutionEntry{ChangeID: parts[0]}
		if len(parts) > 1 {
			e.Description = parts[1]
		}
		if len(parts) > 2 {
			if ts, err := time.Parse(time.RFC3339, parts[2]); err == nil {
				e.Timestamp = ts
			}
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Backout creates a new change that reverses changeID's effects, leaving
// the original in history (unlike an edit or abandon). Returns the backout
// change's id.
func Backout(ctx context.Context, v VCS, changeID string) (string, error) {
	if err := requireJJ(v); err != nil {
		return "", err
	}
	if err := ValidateIdentifier(changeID); err != nil {
		return "", err
	}

	out, err := v.Exec(ctx, "backout", "-r", changeID)
	if err != nil {
		return "", err
	}

	m := duplicatedChangeRe.FindStringSubmatch(string(out))
	if m == nil {
		return "", herr.Wrap(herr.KindParse, herr.ErrNotSupported,
			"could not find backout change id in backout output")
	}
	return m[1], nil
}

// SimplifyParents removes redundant parent edges from changeID, cleaning up
// the DAG after many speculative branches have been merged back together.
func SimplifyParents(ctx context.Context, v VCS, changeID string) error {
	if err := requireJJ(v); err != nil {
		return err
	}
	if err := ValidateIdentifier(changeID); err != nil {
		return err
	}
	_, err := v.Exec(ctx, "simplify-parents", "-r", changeID)
	return err
}

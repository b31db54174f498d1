package vcs

import (
	"context"
	"errors"
	"strings"
	"testing"
)

var errBoom = errors.New("boom")

// execRecorderVCS wraps mockVCS, recording the args passed to Exec and
// returning a scripted response.
type execRecorderVCS struct {
	mockVCS
	gotArgs []string
	out     []byte
	err     error
}

func (e *execRecorderVCS) Exec(ctx context.Context, args ...string) ([]byte, error) {
	e.gotArgs = args
	return e.out, e.err
}

func TestRevsetQueryRejectsUnsafeRevset(t *testing.T) {
	v := &execRecorderVCS{mockVCS: mockVCS{name: TypeJJ}}
	if _, err := RevsetQuery(context.Background(), v, `@ ++ "; rm -rf /"`); err == nil {
		t.Fatal("expected an error for an unsafe revset")
	}
}

func TestRevsetQueryUsesJJTemplateForJJAndColocate(t *testing.T) {
	for _, typ := range []Type{TypeJJ, TypeColocate} {
		v := &execRecorderVCS{mockVCS: mockVCS{name: typ}, out: []byte("abc\ndef\n")}
		ids, err := RevsetQuery(context.Background(), v, "ancestors(@)")
		if err != nil {
			t.Fatalf("RevsetQuery: %v", err)
		}
		if got := strings.Join(v.gotArgs, " "); !strings.Contains(got, "log") || !strings.Contains(got, "change_id") {
			t.Errorf("%s: gotArgs = %q, want jj log with a change_id template", typ, got)
		}
		if len(ids) != 2 || ids[0] != "abc" || ids[1] != "def" {
			t.Errorf("%s: ids = %v, want [abc def]", typ, ids)
		}
	}
}

func TestRevsetQueryUsesGitLogForGit(t *testing.T) {
	v := &execRecorderVCS{mockVCS: mockVCS{name: TypeGit}, out: []byte("deadbeef\n")}
	ids, err := RevsetQuery(context.Background(), v, "main..HEAD")
	if err != nil {
		t.Fatalf("RevsetQuery: %v", err)
	}
	if got := strings.Join(v.gotArgs, " "); !strings.Contains(got, "log") || !strings.Contains(got, "%H") {
		t.Errorf("gotArgs = %q, want git log --format=%%H", got)
	}
	if len(ids) != 1 || ids[0] != "deadbeef" {
		t.Errorf("ids = %v, want [deadbeef]", ids)
	}
}

func TestRevsetQueryPropagatesExecError(t *testing.T) {
	v := &execRecorderVCS{mockVCS: mockVCS{name: TypeGit}, err: errBoom}
	if _, err := RevsetQuery(context.Background(), v, "HEAD"); err == nil {
		t.Fatal("expected the Exec error to propagate")
	}
}

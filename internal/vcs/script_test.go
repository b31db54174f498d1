package vcs_test

import (
	"context"
	"os"
	"testing"

	"rsc.io/script"
	"rsc.io/script/scripttest"
)

// TestVCSScripts drives multi-step jj/git sessions through rsc.io/script's
// txtar-based engine, covering the same describe/op-log/notes/reflog
// sequences internal/vcs/jj/jj.go and internal/vcs/git/git.go wrap individually in
// their own unit tests, but exercised here end to end against the real
// binaries, the way a script test in the teacher's stack would.
func TestVCSScripts(t *testing.T) {
	scripttest.Test(t, context.Background(), script.NewEngine(), os.Environ(), "testdata/script/*.txt")
}

package vcs

import (
	"context"
	"errors"
	"testing"

	"github.com/hoxforge/hox/internal/herr"
)

func TestDuplicateRejectsGitBackend(t *testing.T) {
	v := &execRecorderVCS{mockVCS: mockVCS{name: TypeGit}}
	if _, err := Duplicate(context.Background(), v, "abc123"); !errors.Is(err, herr.ErrNotSupported) {
		t.Fatalf("Duplicate on git backend: err = %v, want ErrNotSupported", err)
	}
}

func TestDuplicateParsesNewChangeID(t *testing.T) {
	v := &execRecorderVCS{
		mockVCS: mockVCS{name: TypeJJ},
		out:     []byte("Duplicated 1 commits:\n  zxstvqvm 89a3fd21 (no description set)\n"),
	}
	got, err := Duplicate(context.Background(), v, "abc123")
	if err != nil {
		t.Fatalf("Duplicate: %v", err)
	}
	if got != "zxstvqvm" {
		t.Errorf("Duplicate: got %q, want %q", got, "zxstvqvm")
	}
}

func TestDuplicateRejectsUnsafeChangeID(t *testing.T) {
	v := &execRecorderVCS{mockVCS: mockVCS{name: TypeJJ}}
	if _, err := Duplicate(context.Background(), v, "abc; rm -rf /"); err == nil {
		t.Fatal("expected an error for an unsafe change id")
	}
}

func TestEvolutionLogParsesEntries(t *testing.T) {
	v := &execRecorderVCS{
		mockVCS: mockVCS{name: TypeColocate},
		out:     []byte("abc123\tInitial commit\t2025-01-30T12:00:00Z\ndef456\tAmended message\t2025-01-30T12:30:00Z\n"),
	}
	entries, err := EvolutionLog(context.Background(), v, "abc123")
	if err != nil {
		t.Fatalf("EvolutionLog: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("EvolutionLog: got %d entries, want 2", len(entries))
	}
	if entries[0].ChangeID != "abc123" || entries[0].Description != "Initial commit" {
		t.Errorf("entries[0] = %+v", entries[0])
	}
	if entries[1].ChangeID != "def456" || entries[1].Description != "Amended message" {
		t.Errorf("entries[1] = %+v", entries[1])
	}
}

func TestEvolutionLogRejectsGitBackend(t *testing.T) {
	v := &execRecorderVCS{mockVCS: mockVCS{name: TypeGit}}
	if _, err := EvolutionLog(context.Background(), v, "abc123"); err == nil {
		t.Fatal("expected an error for a git backend")
	}
}

func TestBackoutParsesNewChangeID(t *testing.T) {
	v := &execRecorderVCS{
		mockVCS: mockVCS{name: TypeJJ},
		out:     []byte("Created backout commit:\n  ruyxtnqs 7a2d910c (no description set)\n"),
	}
	got, err := Backout(context.Background(), v, "abc123")
	if err != nil {
		t.Fatalf("Backout: %v", err)
	}
	if got != "ruyxtnqs" {
		t.Errorf("Backout: got %q, want %q", got, "ruyxtnqs")
	}
}

func TestSimplifyParentsRunsOnJJOnly(t *testing.T) {
	v := &execRecorderVCS{mockVCS: mockVCS{name: TypeJJ}}
	if err := SimplifyParents(context.Background(), v, "abc123"); err != nil {
		t.Fatalf("SimplifyParents: %v", err)
	}
	found := false
	for _, a := range v.gotArgs {
		if a == "simplify-parents" {
			found = true
		}
	}
	if !found {
		t.Errorf("gotArgs = %v, want simplify-parents", v.gotArgs)
	}

	gv := &execRecorderVCS{mockVCS: mockVCS{name: TypeGit}}
	if err := SimplifyParents(context.Background(), gv, "abc123"); err == nil {
		t.Fatal("expected an error for a git backend")
	}
}

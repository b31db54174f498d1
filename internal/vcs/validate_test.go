package vcs

import (
	"testing"

	"github.com/hoxforge/hox/internal/herr"
)

func TestValidatePath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"simple path", "tasks/abc-123.md", false},
		{"with space", "my tasks/abc 123.md", false},
		{"empty", "", true},
		{"traversal", "../etc/passwd", true},
		{"nul byte", "tasks/\x00evil", true},
		{"shell metachar", "tasks/$(rm -rf /)", true},
		{"quote", "tasks/\"quoted\"", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePath(tt.path)
			if tt.wantErr && err == nil {
				t.Errorf("ValidatePath(%q): expected error, got nil", tt.path)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ValidatePath(%q): unexpected error: %v", tt.path, err)
			}
			if tt.wantErr && err != nil && herr.KindOf(err) != herr.KindPathUnsafe {
				t.Errorf("ValidatePath(%q): expected KindPathUnsafe, got %s", tt.path, herr.KindOf(err))
			}
		})
	}
}

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		{"simple", "abc123", false},
		{"with dash and slash", "agent/worker-1.fix", false},
		{"empty", "", true},
		{"space", "has space", true},
		{"semicolon", "abc;rm -rf", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIdentifier(tt.id)
			if tt.wantErr && err == nil {
				t.Errorf("ValidateIdentifier(%q): expected error, got nil", tt.id)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ValidateIdentifier(%q): unexpected error: %v", tt.id, err)
			}
		})
	}
}

func TestValidateRevset(t *testing.T) {
	tests := []struct {
		name    string
		revset  string
		wantErr bool
	}{
		{"change id", "abc123", false},
		{"range", "abc123..@", false},
		{"ancestors call", "ancestors(abc123)", false},
		{"double quote", `abc" ; rm -rf /`, true},
		{"backtick", "abc`whoami`", true},
		{"dollar", "abc$HOME", true},
		{"newline", "abc\nrm -rf /", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRevset(tt.revset)
			if tt.wantErr && err == nil {
				t.Errorf("ValidateRevset(%q): expected error, got nil", tt.revset)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ValidateRevset(%q): unexpected error: %v", tt.revset, err)
			}
		})
	}
}

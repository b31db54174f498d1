package vcs

import (
	"strings"

	"github.com/hoxforge/hox/internal/herr"
)

// ValidatePath validates a file path destined for interpolation into a VCS
// command or revset. Rejects directory traversal, NUL bytes, and anything
// outside a conservative allow-list.
func ValidatePath(path string) error {
	if path == "" {
		return herr.PathUnsafe(path, "path cannot be empty")
	}
	if strings.Contains(path, "..") {
		return herr.PathUnsafe(path, "path contains directory traversal")
	}
	if strings.ContainsRune(path, 0) {
		return herr.PathUnsafe(path, "path contains a NUL byte")
	}
	for _, r := range path {
		if !isPathChar(r) {
			return herr.PathUnsafe(path, "path contains an unsafe character")
		}
	}
	return nil
}

func isPathChar(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '/' || r == '_' || r == '-' || r == '.' || r == ' ':
		return true
	}
	return false
}

// ValidateIdentifier validates a bookmark name, agent id, or other short
// identifier destined for interpolation into a VCS command.
func ValidateIdentifier(id string) error {
	if id == "" {
		return herr.PathUnsafe(id, "identifier cannot be empty")
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			continue
		case r == '/' || r == '_' || r == '-' || r == '.':
			continue
		default:
			return herr.PathUnsafe(id, "identifier contains an unsafe character")
		}
	}
	return nil
}

// ValidateRevset rejects characters that could break out of a revset's
// string-literal context when interpolated into a shell-invoked VCS command.
func ValidateRevset(revset string) error {
	if strings.ContainsAny(revset, "\"'`;$\n") {
		return herr.PathUnsafe(revset, "revset contains an unsafe character")
	}
	return nil
}

package vcs

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/hoxforge/hox/internal/herr"
)

// DetectionResult describes what Detect found at a path.
type DetectionResult struct {
	Type         Type
	RepoRoot     string
	VCSDir       string
	HasGit       bool
	HasJJ        bool
	Colocated    bool
	IsWorktree   bool
	MainRepoRoot string
}

// Detect identifies the VCS backend for a given directory by walking up the
// directory tree until a .jj or .git marker is found.
//
// Returns a herr NotInVCS error if neither is found before the filesystem
// root.
func Detect(path string) (*DetectionResult, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, herr.Wrap(herr.KindIo, err, "resolve path")
	}

	result := &DetectionResult{}

	current := absPath
	for {
		jjDir := filepath.Join(current, ".jj")
		gitPath := filepath.Join(current, ".git")

		if info, err := os.Stat(jjDir); err == nil && info.IsDir() {
			result.HasJJ = true
			if result.RepoRoot == "" {
				result.RepoRoot = current
				result.VCSDir = jjDir
			}
		}

		if info, err := os.Stat(gitPath); err == nil {
			result.HasGit = true
			if info.Mode().IsRegular() {
				result.IsWorktree = true
				mainRoot, vcsDir := resolveGitWorktreeRoot(current, gitPath)
				if result.RepoRoot == "" {
					result.RepoRoot = current
					result.VCSDir = vcsDir
				}
				result.MainRepoRoot = mainRoot
			} else if info.IsDir() {
				if result.RepoRoot == "" {
					result.RepoRoot = current
					result.VCSDir = gitPath
				}
				result.MainRepoRoot = current
			}
		}

		if result.HasJJ || result.HasGit {
			result.Colocated = result.HasJJ && result.HasGit

			switch {
			case result.Colocated:
				result.Type = TypeColocate
			case result.HasJJ:
				result.Type = TypeJJ
			default:
				result.Type = TypeGit
			}

			if result.MainRepoRoot == "" {
				result.MainRepoRoot = result.RepoRoot
			}

			return result, nil
		}

		parent := filepath.Dir(current)
		if parent == current {
			return nil, herr.Wrap(herr.KindVcsNotFound, herr.ErrNotInVCS, "no .jj or .git found above "+absPath)
		}
		current = parent
	}
}

// resolveGitWorktreeRoot resolves the main repository root from a worktree's
// .git file, which contains a "gitdir: ..." pointer.
func resolveGitWorktreeRoot(worktreePath, gitFile string) (string, string) {
	content, err := os.ReadFile(gitFile)
	if err != nil {
		return worktreePath, gitFile
	}

	line := strings.TrimSpace(string(content))
	if !strings.HasPrefix(line, "gitdir: ") {
		return worktreePath, gitFile
	}

	gitDir := strings.TrimPrefix(line, "gitdir: ")
	if !filepath.IsAbs(gitDir) {
		gitDir = filepath.Join(worktreePath, gitDir)
	}
	gitDir = filepath.Clean(gitDir)

	if idx := strings.Index(gitDir, string(filepath.Separator)+"worktrees"+string(filepath.Separator)); idx > 0 {
		mainGitDir := gitDir[:idx]
		return filepath.Dir(mainGitDir), gitDir
	}

	return worktreePath, gitDir
}

// PreferredVCS returns which backend to use for a colocated repository.
//
// Preference order: HOX_VCS environment variable, then git. Spec §4.A calls
// for preferring Git when both .git and alternative metadata exist, which
// diverges from a jj-first default — git's plain commit graph is a simpler,
// more widely available ground truth for a colocated repo.
func PreferredVCS() Type {
	if pref := os.Getenv("HOX_VCS"); pref != "" {
		switch strings.ToLower(pref) {
		case "jj", "jujutsu":
			return TypeJJ
		case "git":
			return TypeGit
		}
	}
	return TypeGit
}

func binaryAvailable(name string) bool {
	pathEnv := os.Getenv("PATH")
	for _, dir := range strings.Split(pathEnv, string(os.PathListSeparator)) {
		if dir == "" {
			continue
		}
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	for _, dir := range []string{"/usr/local/bin", "/opt/homebrew/bin", "/usr/bin"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
			return true
		}
	}
	return false
}

// IsJJAvailable reports whether the jj binary is on PATH or in one of the
// fallback directories binaryAvailable checks.
func IsJJAvailable() bool { return binaryAvailable("jj") }

// IsGitAvailable reports whether the git binary is on PATH or in one of the
// fallback directories binaryAvailable checks.
func IsGitAvailable() bool { return binaryAvailable("git") }

// DetectWithAvailability performs Detect and checks that the resulting
// backend's binary is actually installed, adjusting a colocated result down
// to whichever single backend is available.
func DetectWithAvailability(path string) (*DetectionResult, error) {
	result, err := Detect(path)
	if err != nil {
		return nil, err
	}

	switch result.Type {
	case TypeGit:
		if !IsGitAvailable() {
			return nil, herr.New(herr.KindVcsNotFound, "git binary not available")
		}
	case TypeJJ:
		if !IsJJAvailable() {
			return nil, herr.New(herr.KindVcsNotFound, "jj binary not available")
		}
	case TypeColocate:
		hasGit, hasJJ := IsGitAvailable(), IsJJAvailable()
		if !hasGit && !hasJJ {
			return nil, herr.New(herr.KindVcsNotFound, "neither git nor jj binary available")
		}
		if hasJJ && !hasGit {
			result.HasGit = false
			result.Type = TypeJJ
			result.Colocated = false
		} else if hasGit && !hasJJ {
			result.HasJJ = false
			result.Type = TypeGit
			result.Colocated = false
		}
	}

	return result, nil
}

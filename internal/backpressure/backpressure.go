// Package backpressure implements the backpressure runner (component H):
// auto-detecting a task workspace's project kind and running its tests,
// lints, and build as child processes, producing a report the loop
// engine uses to decide whether to iterate.
//
// Grounded on original_source/crates/hox-orchestrator/src/backpressure.rs's
// run_tests/run_lints/run_builds auto-detection-by-manifest-file shape and
// its "no toolchain detected → skipped, passed" fallback, translated from
// std::process::Command into the teacher's exec.CommandContext pattern
// (internal/vcs/util.go's ExecContext: context timeout, captured
// stdout/stderr buffers, workdir set on the command).
package backpressure

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/mod/modfile"
	"golang.org/x/sys/unix"
	"gopkg.in/yaml.v3"
)

// Default per-check timeouts. Lints are the "fast" check; tests and
// builds are "slow".
const (
	FastTimeout = 120 * time.Second
	SlowTimeout = 600 * time.Second
)

// MaxOutputBytes is the per-stream truncation limit applied to captured
// check output.
const MaxOutputBytes = 4000

// Report is the outcome of running all backpressure checks once.
type Report struct {
	TestsOK  bool
	LintsOK  bool
	BuildsOK bool
	Errors   []string
}

// AllOK reports whether every check passed (including skipped checks,
// which always count as passed).
func (r Report) AllOK() bool {
	return r.TestsOK && r.LintsOK && r.BuildsOK
}

// check is one command to run for a given project kind, or the
// zero value when no command applies (the caller must then skip).
type check struct {
	program string
	args    []string
	timeout time.Duration
}

// Run executes the tests, lints, and builds checks for the project found
// at workDir, auto-detected from conventional manifest files, and returns
// the combined report. Each check is killed (counted as a failure, not
// skipped) if it exceeds its timeout.
func Run(ctx context.Context, workDir string) Report {
	tests, lints, builds := detectChecks(workDir)

	var r Report
	var errs []string

	override, overrideErr := loadOverride(workDir)
	if overrideErr != nil {
		r.Errors = append(r.Errors, fmt.Sprintf("ignoring .hox/checks.yaml: %v", overrideErr))
	} else if override != nil {
		if override.Tests != nil {
			tests = override.Tests
		}
		if override.Lints != nil {
			lints = override.Lints
		}
		if override.Builds != nil {
			builds = override.Builds
		}
	}

	r.TestsOK, errs = runCheck(ctx, workDir, "tests", tests)
	r.Errors = append(r.Errors, errs...)

	r.LintsOK, errs = runCheck(ctx, workDir, "lints", lints)
	r.Errors = append(r.Errors, errs...)

	r.BuildsOK, errs = runCheck(ctx, workDir, "builds", builds)
	r.Errors = append(r.Errors, errs...)

	return r
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// detectChecks auto-detects the project kind from conventional manifest
// files and returns the tests/lints/builds commands to run. A nil check
// means "no applicable command for this project kind", which runCheck
// reports as skipped-ok.
func detectChecks(workDir string) (tests, lints, builds *check) {
	if path := filepath.Join(workDir, "go.mod"); exists(path) {
		if isValidGoMod(path) {
			return &check{"go", []string{"test", "./..."}, SlowTimeout},
				&check{"go", []string{"vet", "./..."}, FastTimeout},
				&check{"go", []string{"build", "./..."}, SlowTimeout}
		}
	}

	if exists(filepath.Join(workDir, "Cargo.toml")) {
		return &check{"cargo", []string{"test"}, SlowTimeout},
			&check{"cargo", []string{"clippy", "--", "-D", "warnings"}, FastTimeout},
			&check{"cargo", []string{"build"}, SlowTimeout}
	}

	if exists(filepath.Join(workDir, "pyproject.toml")) || exists(filepath.Join(workDir, "pytest.ini")) {
		return &check{"pytest", []string{"-v"}, SlowTimeout},
			&check{"ruff", []string{"check", "."}, FastTimeout},
			nil
	}

	if pkg := filepath.Join(workDir, "package.json"); exists(pkg) {
		var b *check
		if data, err := os.ReadFile(pkg); err == nil && strings.Contains(string(data), `"build"`) {
			b = &check{"npm", []string{"run", "build"}, SlowTimeout}
		}
		return &check{"npm", []string{"test"}, SlowTimeout},
			&check{"npx", []string{"eslint", "."}, FastTimeout},
			b
	}

	return nil, nil, nil
}

// isValidGoMod parses go.mod with golang.org/x/mod/modfile rather than
// regexing it, so a malformed or non-Go-module go.mod (unlikely but
// possible in a vendored subtree) doesn't mistrigger Go checks.
func isValidGoMod(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	f, err := modfile.Parse(path, data, nil)
	return err == nil && f.Module != nil
}

// runCheck runs c in workDir, returning ok=true with no error text for a
// nil check (nothing applicable detected) or a missing toolchain binary,
// per spec: "missing toolchain for a given check → skipped, ok=true".
func runCheck(ctx context.Context, workDir, label string, c *check) (bool, []string) {
	if c == nil {
		return true, nil
	}

	if _, err := exec.LookPath(c.program); err != nil {
		return true, nil
	}

	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, c.program, c.args...)
	cmd.Dir = workDir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	// Kill the whole process group on timeout/cancellation, not just the
	// direct child, so a killed "go test" doesn't leave subprocesses
	// running past the deadline.
	cmd.Cancel = func() error {
		if cmd.Process == nil {
			return nil
		}
		return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	}
	cmd.WaitDelay = 2 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return true, nil
	}

	if cctx.Err() != nil {
		return false, []string{fmt.Sprintf("%s check (%s %s) killed after exceeding %s",
			label, c.program, strings.Join(c.args, " "), c.timeout)}
	}

	msg := fmt.Sprintf("%s %s failed:\n\nSTDOUT:\n%s\n\nSTDERR:\n%s",
		c.program, strings.Join(c.args, " "),
		truncate(stdout.String()), truncate(stderr.String()))
	return false, []string{msg}
}

// checksOverride is the decoded shape of .hox/checks.yaml: an alternative
// to .hox/config.toml's [backpressure] table for repos that prefer a YAML
// array-of-commands file to TOML arrays of tables. Any of the three
// sections may be omitted, leaving the auto-detected check in place.
type checksOverride struct {
	Tests  *checkSpec `yaml:"tests"`
	Lints  *checkSpec `yaml:"lints"`
	Builds *checkSpec `yaml:"builds"`
}

type checkSpec struct {
	Command string `yaml:"command"`
	Args    []string `yaml:"args"`
	// TimeoutSeconds, when zero, falls back to FastTimeout.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// loadedOverride is the Run-facing shape: one *check per section, or nil
// for a section the file doesn't mention.
type loadedOverride struct {
	Tests, Lints, Builds *check
}

// loadOverride reads .hox/checks.yaml under workDir, if present. A missing
// file is not an error: it returns (nil, nil).
func loadOverride(workDir string) (*loadedOverride, error) {
	path := filepath.Join(workDir, ".hox", "checks.yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var raw checksOverride
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	return &loadedOverride{
		Tests:  raw.Tests.toCheck(),
		Lints:  raw.Lints.toCheck(),
		Builds: raw.Builds.toCheck(),
	}, nil
}

func (s *checkSpec) toCheck() *check {
	if s == nil || s.Command == "" {
		return nil
	}
	timeout := time.Duration(s.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = FastTimeout
	}
	return &check{program: s.Command, args: s.Args, timeout: timeout}
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= MaxOutputBytes {
		return s
	}
	return s[:MaxOutputBytes] + "...[truncated]"
}

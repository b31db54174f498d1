package main

import (
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/hoxforge/hox/internal/cache"
	"github.com/hoxforge/hox/internal/config"
	"github.com/hoxforge/hox/internal/task"
	"github.com/hoxforge/hox/internal/vcs"
)

var (
	rootDir string
	logFile string
)

var rootCmd = &cobra.Command{
	Use:   "hoxd",
	Short: "Orchestrate autonomous coding agents over a DVCS-native task graph",
	Long: `hoxd drives tasks tracked as tasks/{id}.json through a loop of LLM
iterations, recording progress as DVCS changes and reconciling a query
cache from the working copy and the DVCS operation log.`,
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "tasks", Title: "Task commands:"},
		&cobra.Group{ID: "daemon", Title: "Daemon commands:"},
	)
	rootCmd.PersistentFlags().StringVar(&rootDir, "dir", ".", "repository root (defaults to the current directory)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "rotate daemon logs to this path instead of stderr (100MB/28 days/5 backups)")
}

// openRepo detects the VCS backend and loads .hox/config.toml for dir.
func openRepo(dir string) (vcs.VCS, config.Config, error) {
	v, err := vcs.GetForPath(dir)
	if err != nil {
		return nil, config.Config{}, err
	}
	cfg, err := config.Load(dir, detectProjectKind(dir))
	if err != nil {
		return nil, config.Config{}, err
	}
	return v, cfg, nil
}

// detectProjectKind picks a config.ProjectKind from marker files present at
// dir's root, the same coarse signal internal/backpressure already uses to
// choose which checks to run.
func detectProjectKind(dir string) config.ProjectKind {
	markers := []struct {
		file string
		kind config.ProjectKind
	}{
		{"go.mod", config.ProjectGo},
		{"Cargo.toml", config.ProjectRust},
		{"package.json", config.ProjectNode},
		{"pyproject.toml", config.ProjectPython},
		{"requirements.txt", config.ProjectPython},
	}
	for _, m := range markers {
		if _, err := os.Stat(dir + "/" + m.file); err == nil {
			return m.kind
		}
	}
	return config.ProjectUnknown
}

func tasksDir(dir string) string { return dir + "/tasks" }
func depsDir(dir string) string  { return dir + "/deps" }

// loadCache populates a fresh cache.Cache from every task and dep file on
// disk and then runs the same cache.Rescan internal/reconcile.FullRescan
// performs at startup. Unlike FullRescan, a dep that would close a cycle
// makes the load fail with AddDep's dependency-cycle error.
func loadCache(dir string) (*cache.Cache, error) {
	c := cache.New()
	tasks, err := task.ListTasks(tasksDir(dir))
	if err != nil {
		return nil, err
	}
	for _, t := range tasks {
		if err := c.Upsert(t); err != nil {
			return nil, err
		}
	}
	deps, err := task.ListDeps(depsDir(dir))
	if err != nil {
		return nil, err
	}
	for _, d := range deps {
		if err := c.AddDep(d); err != nil {
			return nil, err
		}
	}
	c.Rescan(tasks, deps)
	return c, nil
}

// newLogger builds a subsystem logger writing to stderr, or, when --log-file
// is set, to a lumberjack-rotated file (100MB per file, 28 days, 5 backups)
// so the long-running watch daemon never needs its own rotation logic.
func newLogger(prefix string) *log.Logger {
	var w io.Writer = os.Stderr
	if logFile != "" {
		w = &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    100,
			MaxAge:     28,
			MaxBackups: 5,
		}
	}
	return log.New(w, prefix, log.LstdFlags)
}

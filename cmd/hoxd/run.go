package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/spf13/cobra"

	"github.com/hoxforge/hox/internal/breaker"
	"github.com/hoxforge/hox/internal/cache"
	"github.com/hoxforge/hox/internal/herr"
	"github.com/hoxforge/hox/internal/loop"
)

var runCmd = &cobra.Command{
	Use:     "run [task-id]",
	GroupID: "daemon",
	Short:   "Run the loop engine, one task at a time",
	Long: `run drives a single task through the loop engine until it completes or a
budget is exhausted. With no task id, it repeatedly claims the
highest-priority ready task not yet claimed in this invocation until
none remain or the process is interrupted.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().String("agent-id", "", "agent identity recorded in change metadata and bookmark names")
	runCmd.Flags().String("orchestrator-id", "", "orchestrator identity recorded in change metadata")
	runCmd.Flags().Int("max-iterations", 0, "override .hox/config.toml's loop_defaults.max_iterations (0 keeps the configured value)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	v, cfg, err := openRepo(rootDir)
	if err != nil {
		return err
	}

	c, err := loadCache(rootDir)
	if err != nil {
		return err
	}

	agentID, _ := cmd.Flags().GetString("agent-id")
	orchestratorID, _ := cmd.Flags().GetString("orchestrator-id")
	maxIterOverride, _ := cmd.Flags().GetInt("max-iterations")

	budget := loop.DefaultBudget()
	if cfg.LoopDefaults.MaxIterations > 0 {
		budget.MaxIterations = cfg.LoopDefaults.MaxIterations
	}
	if maxIterOverride > 0 {
		budget.MaxIterations = maxIterOverride
	}
	if cfg.LoopDefaults.MaxTokens != nil {
		budget.MaxTokens = *cfg.LoopDefaults.MaxTokens
	}
	if cfg.LoopDefaults.MaxBudgetUSD != nil {
		budget.MaxBudgetUSD = *cfg.LoopDefaults.MaxBudgetUSD
	}

	engineCfg := loop.Config{
		VCS:            v,
		Cache:          c,
		Breaker:        breaker.New(breaker.DefaultConfig()),
		Inferrer:       newAnthropicInferrer(cfg),
		Limiter:        rate.NewLimiter(rate.Every(2*time.Second), 1),
		TasksDir:       tasksDir(rootDir),
		WorkDir:        rootDir,
		AgentID:        agentID,
		OrchestratorID: orchestratorID,
		ProtectedFiles: cfg.ProtectedFiles,
		Budget:         budget,
		Logger:         newLogger("[loop] "),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if len(args) == 1 {
		return runOneTask(ctx, engineCfg, args[0])
	}
	return runReadyLoop(ctx, engineCfg, c)
}

func runOneTask(ctx context.Context, cfg loop.Config, taskID string) error {
	if _, ok := cfg.Cache.Get(taskID); !ok {
		return herr.NotFound("task", taskID)
	}
	e := loop.New(cfg, taskID)
	result, err := e.Run(ctx)
	if err != nil && result.Stop != loop.StopCancelled {
		return err
	}
	printResult(result)
	return exitFromStop(result.Stop)
}

func runReadyLoop(ctx context.Context, cfg loop.Config, c *cache.Cache) error {
	claimed := make(map[string]bool)
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		next := ""
		for _, t := range c.Ready(cache.ReadyOptions{}) {
			if !claimed[t.ID] {
				next = t.ID
				break
			}
		}
		if next == "" {
			fmt.Fprintln(os.Stdout, "no ready tasks")
			return nil
		}
		claimed[next] = true

		e := loop.New(cfg, next)
		result, err := e.Run(ctx)
		if err != nil && result.Stop != loop.StopCancelled {
			cfg.Logger.Printf("task %s: %v", next, err)
		}
		printResult(result)
		if result.Stop == loop.StopCancelled {
			return nil
		}
	}
}

func printResult(r loop.Result) {
	fmt.Fprintf(os.Stdout, "task %s: stop=%s iterations=%d tokens=%d cost_usd=%.4f\n",
		r.TaskID, r.Stop, r.Iterations, r.TokensUsed, r.CostUSD)
}

// exitFromStop maps a stop reason to the exit code spec §6 assigns it,
// returned as an error main.go's exitCodeFor can in turn translate (it
// carries no herr.Kind since circuit-breaker-open and budget exhaustion
// are explicitly not errors per spec §7, just distinct exit codes).
func exitFromStop(stop loop.StopReason) error {
	switch stop {
	case loop.StopMaxIterations, loop.StopMaxTokens, loop.StopMaxBudgetUSD:
		return &exitError{code: 5, reason: string(stop)}
	case loop.StopBreakerDeadline:
		return &exitError{code: 6, reason: string(stop)}
	default:
		return nil
	}
}

type exitError struct {
	code   int
	reason string
}

func (e *exitError) Error() string { return "stopped: " + e.reason }

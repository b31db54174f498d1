package loop

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hoxforge/hox/internal/agentparse"
	"github.com/hoxforge/hox/internal/backpressure"
	"github.com/hoxforge/hox/internal/breaker"
	"github.com/hoxforge/hox/internal/cache"
	"github.com/hoxforge/hox/internal/herr"
	"github.com/hoxforge/hox/internal/metadata"
	"github.com/hoxforge/hox/internal/task"
	"github.com/hoxforge/hox/internal/vcs"
)

// StopReason names the terminal condition that ended a Run.
type StopReason string

const (
	StopComplete        StopReason = "complete"
	StopMaxIterations   StopReason = "max_iterations"
	StopMaxTokens       StopReason = "max_tokens"
	StopMaxBudgetUSD    StopReason = "max_budget_usd"
	StopBreakerDeadline StopReason = "breaker_open_deadline"
	StopCancelled       StopReason = "cancelled"
)

// Budget bounds how long a single Engine.Run may keep iterating.
type Budget struct {
	MaxIterations int
	MaxTokens     int64
	MaxBudgetUSD  float64
	// BreakerOpenDeadline bounds how long Run will keep re-gating on an
	// open circuit breaker before giving up on this task entirely.
	BreakerOpenDeadline time.Duration
}

// DefaultBudget matches the teacher's conservative defaults for an
// unattended run: enough iterations to make real progress, bounded enough
// that a stuck agent can't run forever.
func DefaultBudget() Budget {
	return Budget{
		MaxIterations:       25,
		MaxTokens:           2_000_000,
		MaxBudgetUSD:        20.0,
		BreakerOpenDeadline: 10 * time.Minute,
	}
}

// Config wires an Engine to its collaborators. Each field not explicitly
// optional is required.
type Config struct {
	VCS      vcs.VCS
	Cache    *cache.Cache
	Breaker  *breaker.Breaker
	Inferrer Inferrer

	// Limiter paces LLM calls independently of the circuit breaker: a
	// rate-limit backpressure and a health-backpressure gate are separate,
	// composable concerns (SPEC_FULL.md §11). Optional; nil disables
	// rate limiting.
	Limiter *rate.Limiter

	// TasksDir is the directory task JSON files live in (tasks/).
	TasksDir string
	// WorkDir is the repository working directory file operations and
	// backpressure checks run against.
	WorkDir string

	AgentID        string
	OrchestratorID string
	SystemPrompt   string

	// ProtectedFiles lists paths (relative to WorkDir, per .hox/config.toml's
	// protected_files) an agent must never touch. A file operation batch
	// naming one of these paths fails the whole iteration rather than
	// applying partially.
	ProtectedFiles []string

	Budget Budget

	Logger *log.Logger
}

// DefaultConfig returns a Config with the default budget and a logger
// writing to stderr. Callers must still set VCS, Cache, Breaker, Inferrer,
// TasksDir, and WorkDir.
func DefaultConfig() Config {
	return Config{
		Budget: DefaultBudget(),
		Logger: log.New(os.Stderr, "[loop] ", log.LstdFlags),
	}
}

// Result summarizes how a Run ended.
type Result struct {
	TaskID     string
	Stop       StopReason
	Iterations int
	TokensUsed int64
	CostUSD    float64
}

// record is the previous iteration's prompt, response, and backpressure
// outcome, carried forward as the spec's "last iteration" structured
// summary. No prior conversation is retained: each iteration's prompt is
// rebuilt fresh from this plus current task state.
type record struct {
	prompt               string
	response             string
	backpressure         *backpressure.Report
	completionReasoning  string
	iterationFailureText string
}

// Engine drives a single task to completion or bound exhaustion. The zero
// value is not usable; construct with New.
type Engine struct {
	cfg    Config
	taskID string
}

// New returns an Engine bound to taskID.
func New(cfg Config, taskID string) *Engine {
	if cfg.Budget.MaxIterations == 0 {
		cfg.Budget = DefaultBudget()
	}
	if cfg.Logger == nil {
		cfg.Logger = DefaultConfig().Logger
	}
	return &Engine{cfg: cfg, taskID: taskID}
}

// Run drives the engine's task through iterations until a stop condition
// is reached or ctx is cancelled. At most one Run is ever in flight for a
// given task id across the whole process (per-task mutual exclusion at the
// loop engine boundary); a concurrent call for the same id blocks until
// this one releases the lock.
func (e *Engine) Run(ctx context.Context) (Result, error) {
	unlock := locks.lock(e.taskID)
	defer unlock()

	if e.cfg.AgentID != "" {
		if err := e.assign(ctx); err != nil {
			e.cfg.Logger.Printf("task %s: bookmark assignment failed (non-fatal): %v", e.taskID, err)
		}
	}

	var (
		iteration        int
		tokensUsed       int64
		costUSD          float64
		hist             *record
		breakerOpenSince time.Time
	)

	if t, ok := e.cfg.Cache.Get(e.taskID); ok && t.Status == task.StatusInProgress {
		if changeID, err := e.cfg.VCS.CurrentHead(ctx); err == nil {
			if h, err := PrepareHandoff(ctx, e.cfg.VCS, t, changeID); err == nil {
				hist = &record{completionReasoning: h.FormatForAgent()}
			}
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return e.result(StopCancelled, iteration, tokensUsed, costUSD), err
		}

		if iteration >= e.cfg.Budget.MaxIterations {
			return e.result(StopMaxIterations, iteration, tokensUsed, costUSD), nil
		}
		if e.cfg.Budget.MaxTokens > 0 && tokensUsed >= e.cfg.Budget.MaxTokens {
			return e.result(StopMaxTokens, iteration, tokensUsed, costUSD), nil
		}
		if e.cfg.Budget.MaxBudgetUSD > 0 && costUSD >= e.cfg.Budget.MaxBudgetUSD {
			return e.result(StopMaxBudgetUSD, iteration, tokensUsed, costUSD), nil
		}

		// Step 1: gate on the circuit breaker.
		for !e.cfg.Breaker.CanExecute() {
			if breakerOpenSince.IsZero() {
				breakerOpenSince = time.Now()
			}
			if e.cfg.Budget.BreakerOpenDeadline > 0 && time.Since(breakerOpenSince) >= e.cfg.Budget.BreakerOpenDeadline {
				return e.result(StopBreakerDeadline, iteration, tokensUsed, costUSD), nil
			}

			wait := e.cfg.Breaker.TimeUntilRetry()
			if e.cfg.Budget.BreakerOpenDeadline > 0 {
				if remaining := e.cfg.Budget.BreakerOpenDeadline - time.Since(breakerOpenSince); remaining < wait {
					wait = remaining
				}
			}
			if wait <= 0 {
				wait = time.Millisecond
			}

			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return e.result(StopCancelled, iteration, tokensUsed, costUSD), ctx.Err()
			case <-timer.C:
			}
		}

		t, ok := e.cfg.Cache.Get(e.taskID)
		if !ok {
			return e.result(StopCancelled, iteration, tokensUsed, costUSD),
				herr.NotFound("task", e.taskID)
		}

		// Step 2: construct the fresh-agent iteration prompt.
		prompt := e.buildPrompt(t, hist)

		// Step 3: call the external LLM, rate-limited and breaker-gated.
		if e.cfg.Limiter != nil {
			if err := e.cfg.Limiter.Wait(ctx); err != nil {
				return e.result(StopCancelled, iteration, tokensUsed, costUSD), err
			}
		}

		resp, usage, err := e.cfg.Inferrer.Infer(ctx, prompt)
		if err != nil {
			e.cfg.Breaker.RecordFailure()
			iteration++
			hist = &record{
				prompt:               prompt,
				iterationFailureText: fmt.Sprintf("LLM call failed: %v", err),
			}
			continue
		}
		e.cfg.Breaker.RecordSuccess()
		breakerOpenSince = time.Time{}
		tokensUsed += usage.Tokens
		costUSD += usage.CostUSD

		// Step 4: parse the response, apply file operations atomically,
		// record task metadata on the current DVCS change.
		promise := agentparse.ParsePromise(resp)

		ops, parseErr := agentparse.ParseFileOps(resp)
		if parseErr != nil {
			iteration++
			hist = &record{
				prompt:               prompt,
				response:             resp,
				iterationFailureText: fmt.Sprintf("could not parse file operations: %v", parseErr),
			}
			continue
		}

		if protected := e.firstProtectedPath(ops); protected != "" {
			iteration++
			hist = &record{
				prompt:               prompt,
				response:             resp,
				iterationFailureText: fmt.Sprintf("refused: %q is a protected file", protected),
			}
			continue
		}

		if applyErr := agentparse.Apply(e.cfg.WorkDir, ops); applyErr != nil {
			iteration++
			hist = &record{
				prompt:               prompt,
				response:             resp,
				iterationFailureText: fmt.Sprintf("file operations failed to apply: %v", applyErr),
			}
			continue
		}

		if err := e.recordChange(ctx, t); err != nil {
			e.cfg.Logger.Printf("task %s: recording DVCS change failed (non-fatal): %v", e.taskID, err)
		}

		// Step 5-7: run backpressure and decide whether to stop or continue.
		bp := backpressure.Run(ctx, e.cfg.WorkDir)
		iteration++

		hist = &record{
			prompt:              prompt,
			response:            resp,
			backpressure:        &bp,
			completionReasoning: promise.Reasoning,
		}

		if bp.AllOK() && promise.Complete {
			if err := e.markClosed(t); err != nil {
				e.cfg.Logger.Printf("task %s: marking closed failed: %v", e.taskID, err)
			}
			return e.result(StopComplete, iteration, tokensUsed, costUSD), nil
		}
		// Either still working (no promise) or a failed check (promise
		// ignored until backpressure passes): both continue to the next
		// iteration, which will see this record as its "last iteration"
		// context.
	}
}

// firstProtectedPath returns the first path among ops that matches an
// entry in cfg.ProtectedFiles (exact match or as a directory prefix), or
// "" if none do.
func (e *Engine) firstProtectedPath(ops []agentparse.FileOp) string {
	for _, op := range ops {
		for _, protected := range e.cfg.ProtectedFiles {
			if op.Path == protected || strings.HasPrefix(op.Path, protected+"/") {
				return op.Path
			}
			if op.Op == agentparse.OpRename && (op.NewPath == protected || strings.HasPrefix(op.NewPath, protected+"/")) {
				return op.NewPath
			}
		}
	}
	return ""
}

func (e *Engine) result(stop StopReason, iterations int, tokens int64, cost float64) Result {
	return Result{TaskID: e.taskID, Stop: stop, Iterations: iterations, TokensUsed: tokens, CostUSD: cost}
}

// markClosed transitions the task to closed and writes it back to disk.
// The reconciler will pick the file change up independently; this write is
// just the ground truth the spec requires (§9, files are ground truth).
func (e *Engine) markClosed(t *task.Task) error {
	closed := *t
	closed.Status = task.StatusClosed
	closed.UpdatedAt = time.Now()
	return task.WriteTask(e.cfg.TasksDir, &closed)
}

// recordChange encodes status/agent/orchestrator metadata (§4.G) into the
// current change's description, so the DVCS history carries an audit trail
// independent of the task files themselves.
func (e *Engine) recordChange(ctx context.Context, t *task.Task) error {
	changeID, err := e.cfg.VCS.CurrentHead(ctx)
	if err != nil {
		return err
	}

	desc, err := e.cfg.VCS.ReadDescription(ctx, changeID)
	if err != nil {
		return err
	}

	priority := t.Priority
	m := metadata.Metadata{
		Priority:     &priority,
		Status:       t.Status,
		Agent:        e.cfg.AgentID,
		Orchestrator: e.cfg.OrchestratorID,
	}

	return e.cfg.VCS.Describe(ctx, changeID, metadata.Encode(desc, m))
}

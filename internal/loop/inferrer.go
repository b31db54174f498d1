// Package loop implements the Ralph loop engine (component K): a bounded
// iterative scheduler that spawns fresh, memoryless agent turns against a
// single task, parses structured output for completion signals and file
// operations, applies them transactionally, runs backpressure checks, and
// feeds failures back as the next iteration's context.
//
// Grounded on original_source/crates/hox-orchestrator/src/phases.rs and
// workspace.rs for the iterate-until-stop-condition shape, and on
// internal/orchestrator/handoff.go for the "fresh agent" context assembly
// (completion is signaled to the agent by building each iteration's prompt
// from durable state, never from a retained conversation).
package loop

import "context"

// Usage reports what one Infer call cost, so the engine can track the
// cumulative-tokens and cumulative-cost stop conditions (§4.K).
type Usage struct {
	Tokens  int64
	CostUSD float64
}

// Inferrer is the external LLM collaborator. The spec treats the model call
// as out of scope for this module; a default implementation backed by
// github.com/anthropics/anthropic-sdk-go lives at the outermost layer
// (cmd/hoxd) so the engine itself stays swappable and unit-testable
// without a live API key.
type Inferrer interface {
	Infer(ctx context.Context, prompt string) (string, Usage, error)
}

// InferrerFunc adapts a plain function to the Inferrer interface.
type InferrerFunc func(ctx context.Context, prompt string) (string, Usage, error)

func (f InferrerFunc) Infer(ctx context.Context, prompt string) (string, Usage, error) {
	return f(ctx, prompt)
}

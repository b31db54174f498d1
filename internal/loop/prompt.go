package loop

import (
	"fmt"
	"strings"

	"github.com/hoxforge/hox/internal/backpressure"
	"github.com/hoxforge/hox/internal/task"
)

// buildPrompt assembles the iteration prompt (§4.K step 2): the base
// system prompt, the current task snapshot straight from the cache, the
// previous iteration's backpressure report and completion reasoning (if
// any), and the standing instruction to emit a promise tag. No prior
// conversation is carried forward — this is the "fresh agent" design: a
// new call that has never seen its own previous turns, only durable
// summaries of what happened.
func (e *Engine) buildPrompt(t *task.Task, prev *record) string {
	var sb strings.Builder

	if e.cfg.SystemPrompt != "" {
		sb.WriteString(e.cfg.SystemPrompt)
		sb.WriteString("\n\n")
	}

	sb.WriteString("## Current Task\n")
	fmt.Fprintf(&sb, "ID: %s\n", t.ID)
	fmt.Fprintf(&sb, "Title: %s\n", t.Title)
	if t.Description != "" {
		fmt.Fprintf(&sb, "Description: %s\n", t.Description)
	}
	fmt.Fprintf(&sb, "Type: %s\n", t.Type)
	fmt.Fprintf(&sb, "Status: %s\n", t.Status)
	fmt.Fprintf(&sb, "Priority: %d\n", t.Priority)
	sb.WriteString("\n")

	if prev != nil {
		if prev.iterationFailureText != "" {
			sb.WriteString("## Previous Iteration Failed\n")
			sb.WriteString(prev.iterationFailureText)
			sb.WriteString("\n\n")
		}

		if prev.backpressure != nil {
			sb.WriteString("## Previous Backpressure Report\n")
			writeBackpressureSummary(&sb, prev.backpressure)
			sb.WriteString("\n")
		}

		if prev.completionReasoning != "" {
			sb.WriteString("## Previous Completion Reasoning\n")
			sb.WriteString(prev.completionReasoning)
			sb.WriteString("\n\n")
		}
	}

	sb.WriteString("## Instructions\n")
	sb.WriteString("Work on the task above. When the task is fully done and all checks pass, ")
	sb.WriteString("emit exactly <promise>COMPLETE</promise> at the end of your response, ")
	sb.WriteString("optionally preceded by a <completion_reasoning>...</completion_reasoning> ")
	sb.WriteString("block explaining why you believe it is done. Describe any file changes using ")
	sb.WriteString(`<file_op op="write|append|delete|rename" path="..." new_path="...">content</file_op> blocks.`)
	sb.WriteString("\n")

	return sb.String()
}

func writeBackpressureSummary(sb *strings.Builder, report *backpressure.Report) {
	if report.AllOK() {
		sb.WriteString("All checks passed.\n")
		return
	}
	fmt.Fprintf(sb, "tests_ok=%t lints_ok=%t builds_ok=%t\n", report.TestsOK, report.LintsOK, report.BuildsOK)
	for _, e := range report.Errors {
		sb.WriteString(e)
		sb.WriteString("\n")
	}
}

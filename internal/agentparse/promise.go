// Package agentparse implements the agent-output parser (component J):
// extracting a completion promise and a batch of file operations from an
// agent's free-form text response.
//
// The promise half is grounded directly on
// original_source/crates/hox-agent/src/promise.rs's CompletionPromise —
// same two-pattern confidence extraction ("Confidence: NN%" and "NN%
// confident"), same >1-divided-by-100 normalization, same tolerance for
// the promise tag appearing anywhere in a longer response.
package agentparse

import (
	"regexp"
	"strconv"
	"strings"
)

// Promise is the completion signal parsed from one agent response.
type Promise struct {
	Complete   bool
	Reasoning  string
	Confidence *float64
	RawBlock   string
}

const (
	promiseOpen  = "<promise>"
	promiseClose = "</promise>"
)

// ParsePromise scans output for a <promise>COMPLETE</promise> marker
// (case-insensitive content, any other content or an absent marker means
// not complete) and an optional sibling <completion_reasoning>...</
// completion_reasoning> block, from which a confidence fraction is
// extracted if present.
func ParsePromise(output string) Promise {
	start := strings.Index(output, promiseOpen)
	end := strings.Index(output, promiseClose)
	if start < 0 || end < 0 {
		return Promise{}
	}

	contentStart := start + len(promiseOpen)
	if contentStart >= end {
		return Promise{}
	}
	content := strings.TrimSpace(output[contentStart:end])
	if !strings.EqualFold(content, "COMPLETE") {
		return Promise{}
	}

	raw := output[start : end+len(promiseClose)]
	reasoning, hasReasoning := extractTagContent(output, "completion_reasoning")

	p := Promise{Complete: true, RawBlock: raw}
	if hasReasoning {
		p.Reasoning = reasoning
		p.Confidence = extractConfidence(reasoning)
	}
	return p
}

// extractTagContent returns the trimmed text between <tag> and </tag>,
// and whether the tag was found at all.
func extractTagContent(text, tag string) (string, bool) {
	open := "<" + tag + ">"
	closeTag := "</" + tag + ">"

	start := strings.Index(text, open)
	end := strings.Index(text, closeTag)
	if start < 0 || end < 0 {
		return "", false
	}

	contentStart := start + len(open)
	if contentStart >= end {
		return "", false
	}
	return strings.TrimSpace(text[contentStart:end]), true
}

var (
	confidenceColonRE = regexp.MustCompile(`Confidence:\s*([\d.]+)%?`)
	confidencePctRE   = regexp.MustCompile(`([\d.]+)%\s+confident`)
)

// extractConfidence looks for "Confidence: NN%" or "NN% confident" and
// normalizes the result to a 0..1 fraction (values >1 are assumed to be
// percentages and divided by 100).
func extractConfidence(reasoning string) *float64 {
	if caps := confidenceColonRE.FindStringSubmatch(reasoning); caps != nil {
		if v, ok := normalizePercentage(caps[1]); ok {
			return &v
		}
	}
	if caps := confidencePctRE.FindStringSubmatch(reasoning); caps != nil {
		if v, ok := normalizePercentage(caps[1]); ok {
			return &v
		}
	}
	return nil
}

// normalizePercentage parses a decimal string and normalizes it to a
// 0..1 fraction, dividing by 100 when the parsed value exceeds 1.
func normalizePercentage(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	if v > 1 {
		v /= 100
	}
	return v, true
}

// Package metadata implements the metadata codec (component G): parsing
// and serializing task metadata to and from the free-text description
// carried by a DVCS change.
//
// Grounded on two sources. The line-scanning, strip-then-reinject shape
// follows the teacher's internal/orchestrator.ParseDescription/
// FormatDescription (task.go) — a description is a sequence of lines, some
// of them "Key: Value" header fields and the rest free body text. The
// regex-based, case-insensitive key matching replaces the teacher's plain
// strings.HasPrefix scan, grounded on
// original_source/crates/hox-jj/src/metadata.rs, which the spec's §4.G
// wording ("^\s*Key:\s*Value\s*$ matched case-insensitively") follows
// directly.
package metadata

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/hoxforge/hox/internal/task"
)

// MsgType enumerates the recognized Msg-Type values for inter-agent
// messages recorded in change descriptions.
type MsgType string

const (
	MsgMutation     MsgType = "mutation"
	MsgAlignRequest MsgType = "align_request"
	MsgInfo         MsgType = "info"
)

func validMsgType(s string) (MsgType, bool) {
	switch MsgType(strings.ToLower(s)) {
	case MsgMutation:
		return MsgMutation, true
	case MsgAlignRequest:
		return MsgAlignRequest, true
	case MsgInfo:
		return MsgInfo, true
	default:
		return "", false
	}
}

func validStatus(s string) (task.Status, bool) {
	switch task.Status(strings.ToLower(s)) {
	case task.StatusOpen, task.StatusInProgress, task.StatusBlocked,
		task.StatusClosed, task.StatusWontFix, task.StatusFailed:
		return task.Status(strings.ToLower(s)), true
	default:
		return "", false
	}
}

// Metadata is the structured content of the fixed key set a change
// description may encode. Every field is optional: a description with no
// metadata lines decodes to the zero value.
type Metadata struct {
	Priority     *int
	Status       task.Status
	Agent        string
	Orchestrator string
	MsgTo        string
	MsgType      MsgType
}

// IsEmpty reports whether m carries no metadata at all.
func (m Metadata) IsEmpty() bool {
	return m.Priority == nil && m.Status == "" && m.Agent == "" &&
		m.Orchestrator == "" && m.MsgTo == "" && m.MsgType == ""
}

var keyLine = regexp.MustCompile(`(?i)^\s*(Priority|Status|Agent|Orchestrator|Msg-To|Msg-Type)\s*:\s*(.*?)\s*$`)

// Parse scans every line of desc for "Key: Value" metadata lines in the
// fixed key set, tolerating them anywhere in the text. Values that fail
// their key-specific grammar are skipped (the field is left unset); keys
// outside the fixed set are not matched at all.
func Parse(desc string) Metadata {
	var m Metadata
	for _, line := range strings.Split(desc, "\n") {
		caps := keyLine.FindStringSubmatch(line)
		if caps == nil {
			continue
		}
		key := strings.ToLower(caps[1])
		val := caps[2]

		switch key {
		case "priority":
			if n, err := strconv.Atoi(val); err == nil && n >= 0 && n <= 4 {
				m.Priority = &n
			}
		case "status":
			if s, ok := validStatus(val); ok {
				m.Status = s
			}
		case "agent":
			m.Agent = val
		case "orchestrator":
			m.Orchestrator = val
		case "msg-to":
			m.MsgTo = val
		case "msg-type":
			if t, ok := validMsgType(val); ok {
				m.MsgType = t
			}
		}
	}
	return m
}

// Strip returns desc with every recognized metadata line removed and
// trailing whitespace normalized, preserving the rest of the body
// verbatim.
func Strip(desc string) string {
	lines := strings.Split(desc, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if keyLine.MatchString(line) {
			continue
		}
		kept = append(kept, strings.TrimRight(line, " \t"))
	}
	return strings.TrimRight(strings.Join(kept, "\n"), "\n")
}

// Format renders m as a trailing metadata block, one "Key: Value" line per
// set field, in a fixed order. Returns the empty string if m is empty.
func Format(m Metadata) string {
	var lines []string
	if m.Priority != nil {
		lines = append(lines, fmt.Sprintf("Priority: %d", *m.Priority))
	}
	if m.Status != "" {
		lines = append(lines, fmt.Sprintf("Status: %s", m.Status))
	}
	if m.Agent != "" {
		lines = append(lines, fmt.Sprintf("Agent: %s", m.Agent))
	}
	if m.Orchestrator != "" {
		lines = append(lines, fmt.Sprintf("Orchestrator: %s", m.Orchestrator))
	}
	if m.MsgTo != "" {
		lines = append(lines, fmt.Sprintf("Msg-To: %s", m.MsgTo))
	}
	if m.MsgType != "" {
		lines = append(lines, fmt.Sprintf("Msg-Type: %s", m.MsgType))
	}
	return strings.Join(lines, "\n")
}

// Encode strips any existing metadata lines from desc and re-injects m as
// a trailing block, separated from the preserved body by a blank line. A
// desc with an empty body and non-empty m yields just the metadata block;
// an empty m strips metadata without adding a new block.
func Encode(desc string, m Metadata) string {
	body := Strip(desc)
	block := Format(m)

	switch {
	case body == "" && block == "":
		return ""
	case body == "":
		return block
	case block == "":
		return body
	default:
		return body + "\n\n" + block
	}
}

package task

import (
	"fmt"
	"strings"
	"time"

	"github.com/hoxforge/hox/internal/herr"
)

// Recognized dependency types. Only blocks and depends_on are
// readiness-affecting (see IsReadinessAffecting): an open predecessor on
// one of those edges keeps its successor out of the ready set.
const (
	DepBlocks      = "blocks"
	DepDependsOn   = "depends_on"
	DepRelatedTo   = "related_to"
	DepParentChild = "parent_child"
)

// MaxDepTypeLen is the maximum length of a dependency type string.
const MaxDepTypeLen = 50

// Dep is a directed typed edge between two tasks. One JSON file per edge,
// at deps/{from}--{type}--{to}.json.
type Dep struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
}

// IsReadinessAffecting reports whether this edge type keeps its "to" task
// out of the ready set while "from" remains open.
func (d *Dep) IsReadinessAffecting() bool {
	return d.Type == DepBlocks || d.Type == DepDependsOn
}

// Validate checks the invariants from the data model: from != to, and a
// non-empty, bounded-length type. Referenced tasks need not exist yet —
// forward-declared dependencies are permitted and treated as non-blocking
// by the query cache until the referenced task appears.
func (d *Dep) Validate() error {
	if d.From == "" {
		return herr.SchemaValidation("from", "must not be empty")
	}
	if d.To == "" {
		return herr.SchemaValidation("to", "must not be empty")
	}
	if d.From == d.To {
		return herr.SchemaValidation("from/to", "a task cannot depend on itself")
	}
	if d.Type == "" {
		return herr.SchemaValidation("type", "must not be empty")
	}
	if len(d.Type) > MaxDepTypeLen {
		return herr.SchemaValidation("type", "must be 50 characters or less")
	}
	if d.CreatedAt.IsZero() {
		return herr.SchemaValidation("created_at", "must not be zero")
	}
	return nil
}

// Filename returns the canonical filename for this dependency:
// {from}--{type}--{to}.json.
func (d *Dep) Filename() string {
	return fmt.Sprintf("%s--%s--%s.json", d.From, d.Type, d.To)
}

// ParseDepFilename recovers (from, type, to) from a dependency filename.
func ParseDepFilename(filename string) (from, typ, to string, err error) {
	name := strings.TrimSuffix(filename, ".json")
	parts := strings.Split(name, "--")
	if len(parts) != 3 {
		return "", "", "", herr.SchemaValidation("filename",
			fmt.Sprintf("expected {from}--{type}--{to}.json, got %s", filename))
	}
	from, typ, to = parts[0], parts[1], parts[2]
	if from == "" || typ == "" || to == "" {
		return "", "", "", herr.SchemaValidation("filename", "from, type, and to cannot be empty")
	}
	return from, typ, to, nil
}

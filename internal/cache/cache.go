// Package cache implements the query cache (component C): an in-memory
// projection over tasks and dependencies, owned exclusively by the
// reconciler and read by everything else through a reader-writer
// discipline.
//
// Grounded on internal/turso/db's tasks/deps/blocked_cache tables: the same
// three concerns (task lookup, a ready-tasks query with the same options
// shape, a maintained "blocked" flag) reimplemented as in-process maps and
// indexes instead of SQLite tables, since this module's cache is
// rebuildable from the files on disk and does not need to survive a
// process restart. The blocked-set refcount is direct-predecessor only
// (matching the data model's "at least one unclosed predecessor" wording),
// not the teacher's transitive closure — a direct predecessor that is
// itself blocked is still open, so it still counts, and no recursive
// query is needed to get the same membership result.
package cache

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hoxforge/hox/internal/herr"
	"github.com/hoxforge/hox/internal/task"
)

// OrderBy selects the sort order for List.
type OrderBy string

const (
	OrderPriorityAsc OrderBy = "priority_asc"
	OrderCreatedDesc OrderBy = "created_desc"
)

// Filter narrows List results.
type Filter struct {
	Status        *task.Status
	Type          *task.Type
	AssignedAgent string
	Tag           string
	Limit         int
	OrderBy       OrderBy
}

// ReadyOptions narrows Ready results.
type ReadyOptions struct {
	IncludeDeferred bool
	Limit           int
	AssignedAgent   string
}

// Cache is the mapping task_id → Task plus the dependency indexes and
// derived blocked set described in the data model. The zero value is not
// usable; construct with New.
type Cache struct {
	mu sync.RWMutex

	tasks map[string]*task.Task

	// depsByFrom and depsByTo are the forward and inverted dependency
	// indexes (dep_target → {dep_source…} is depsByTo). Both retain every
	// dependency, including non-readiness-affecting ones and edges whose
	// endpoints have since been removed, since removal only drops the task
	// record (see Remove) and edges stay for forensics.
	depsByFrom map[string][]*task.Dep
	depsByTo   map[string][]*task.Dep

	// refcount[id] counts the currently-open readiness-affecting
	// predecessors of id. id is in the blocked set iff refcount[id] > 0.
	refcount map[string]int
	blocked  map[string]struct{}
}

// New returns an empty Cache.
func New() *Cache {
	return &Cache{
		tasks:      make(map[string]*task.Task),
		depsByFrom: make(map[string][]*task.Dep),
		depsByTo:   make(map[string][]*task.Dep),
		refcount:   make(map[string]int),
		blocked:    make(map[string]struct{}),
	}
}

// Get returns a copy of the task with the given id, if present.
func (c *Cache) Get(id string) (*task.Task, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	t, ok := c.tasks[id]
	if !ok {
		return nil, false
	}
	clone := *t
	return &clone, true
}

// List returns tasks matching f, in the requested order.
func (c *Cache) List(f Filter) []*task.Task {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []*task.Task
	for _, t := range c.tasks {
		if f.Status != nil && t.Status != *f.Status {
			continue
		}
		if f.Type != nil && t.Type != *f.Type {
			continue
		}
		if f.AssignedAgent != "" && t.AssignedAgent != f.AssignedAgent {
			continue
		}
		if f.Tag != "" && !hasTag(t.Tags, f.Tag) {
			continue
		}
		clone := *t
		out = append(out, &clone)
	}

	switch f.OrderBy {
	case OrderCreatedDesc:
		sort.Slice(out, func(i, j int) bool {
			if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
				return out[i].CreatedAt.After(out[j].CreatedAt)
			}
			return out[i].ID < out[j].ID
		})
	default: // OrderPriorityAsc and unspecified
		sort.Slice(out, func(i, j int) bool {
			return lessByPriority(out[i], out[j])
		})
	}

	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// Ready returns tasks that are open, not in the blocked set, and (unless
// IncludeDeferred) not deferred past now, ordered by priority ascending
// then created_at ascending then id ascending.
func (c *Cache) Ready(opts ReadyOptions) []*task.Task {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := time.Now()
	var out []*task.Task
	for id, t := range c.tasks {
		if t.Status != task.StatusOpen {
			continue
		}
		if _, blocked := c.blocked[id]; blocked {
			continue
		}
		if !opts.IncludeDeferred && t.DeferUntil != nil && t.DeferUntil.After(now) {
			continue
		}
		if opts.AssignedAgent != "" && t.AssignedAgent != opts.AssignedAgent {
			continue
		}
		clone := *t
		out = append(out, &clone)
	}

	sort.Slice(out, func(i, j int) bool {
		return lessByPriority(out[i], out[j])
	})

	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out
}

func lessByPriority(a, b *task.Task) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func hasTag(tags []string, tag string) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Upsert inserts or replaces a task and updates the blocked set of its
// readiness-affecting dependents if its contribution as an open
// predecessor changed. Reconciler-only.
func (c *Cache) Upsert(t *task.Task) error {
	if err := t.Validate(); err != nil {
		return err
	}
	clone := *t

	c.mu.Lock()
	defer c.mu.Unlock()

	wasBlocker := c.isActiveBlockerLocked(t.ID)
	c.tasks[t.ID] = &clone
	isBlocker := c.isActiveBlockerLocked(t.ID)

	if wasBlocker != isBlocker {
		c.adjustBlockerStateLocked(t.ID, isBlocker)
	}
	return nil
}

// Remove drops the task record with the given id from C. Dependency edges
// involving it are retained for forensics but no longer contribute as an
// open predecessor.
func (c *Cache) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	wasBlocker := c.isActiveBlockerLocked(id)
	delete(c.tasks, id)
	if wasBlocker {
		c.adjustBlockerStateLocked(id, false)
	}
}

// AddDep validates and indexes a dependency. If the edge is
// readiness-affecting and would create a cycle in the readiness-affecting
// subgraph, the edge is rejected with a DependencyCycle error and left
// unindexed; the caller is responsible for leaving the on-disk file in
// place regardless.
func (c *Cache) AddDep(d *task.Dep) error {
	if err := d.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.depExistsLocked(d) {
		// Already indexed — replaying the same add_dep event is a no-op,
		// which is what makes reconciliation idempotent for dep files
		// (identity is the filename; re-reading an unchanged file must
		// not double-count its refcount contribution).
		return nil
	}

	if d.IsReadinessAffecting() && c.pathExistsLocked(d.To, d.From) {
		return herr.New(herr.KindDependencyCycle,
			fmt.Sprintf("%s --%s--> %s would create a cycle", d.From, d.Type, d.To))
	}

	c.depsByFrom[d.From] = append(c.depsByFrom[d.From], d)
	c.depsByTo[d.To] = append(c.depsByTo[d.To], d)

	if d.IsReadinessAffecting() && c.isActiveBlockerLocked(d.From) {
		c.applyRefcountDeltaLocked(d.To, 1)
	}
	return nil
}

// RemoveDep removes a previously added dependency, reversing its
// contribution to the blocked set if it had one.
func (c *Cache) RemoveDep(d *task.Dep) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := c.unindexDepLocked(d)
	if removed && d.IsReadinessAffecting() && c.isActiveBlockerLocked(d.From) {
		c.applyRefcountDeltaLocked(d.To, -1)
	}
	return nil
}

func (c *Cache) depExistsLocked(d *task.Dep) bool {
	for _, existing := range c.depsByFrom[d.From] {
		if existing.To == d.To && existing.Type == d.Type {
			return true
		}
	}
	return false
}

func (c *Cache) unindexDepLocked(d *task.Dep) bool {
	removed := false
	c.depsByFrom[d.From] = filterDep(c.depsByFrom[d.From], d, &removed)
	c.depsByTo[d.To] = filterDep(c.depsByTo[d.To], d, &removed)
	return removed
}

func filterDep(deps []*task.Dep, target *task.Dep, removed *bool) []*task.Dep {
	out := deps[:0]
	for _, d := range deps {
		if d.From == target.From && d.To == target.To && d.Type == target.Type {
			*removed = true
			continue
		}
		out = append(out, d)
	}
	return out
}

func (c *Cache) isActiveBlockerLocked(id string) bool {
	t, ok := c.tasks[id]
	return ok && !t.IsTerminal()
}

func (c *Cache) adjustBlockerStateLocked(id string, becameBlocker bool) {
	delta := -1
	if becameBlocker {
		delta = 1
	}
	for _, d := range c.depsByFrom[id] {
		if d.IsReadinessAffecting() {
			c.applyRefcountDeltaLocked(d.To, delta)
		}
	}
}

func (c *Cache) applyRefcountDeltaLocked(to string, delta int) {
	c.refcount[to] += delta
	if c.refcount[to] <= 0 {
		delete(c.refcount, to)
		delete(c.blocked, to)
	} else {
		c.blocked[to] = struct{}{}
	}
}

// IsBlocked reports whether id is currently in the blocked set.
func (c *Cache) IsBlocked(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, blocked := c.blocked[id]
	return blocked
}

// Len returns the number of tasks currently in the cache.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.tasks)
}

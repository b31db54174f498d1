// Mirror is an optional, on-disk SQLite mirror of a Cache, adapted from
// internal/turso/db.DB: the teacher's schema and upsert statements,
// retargeted from being the query cache itself to being an inspectable,
// fully-rebuildable mirror of the real (in-memory) Cache. Per the
// Non-goal against persisting the query cache across restarts as a
// durability guarantee, a Mirror is never read back into the live Cache
// at startup — SQLite here only gives operators a queryable snapshot
// (`sqlite3 .hox/cache/mirror.db "select * from tasks"`) without needing
// to shell back out to the loader. Deleting the file is always safe; the
// next Sync recreates it from the in-memory Cache.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/hoxforge/hox/internal/herr"
	"github.com/hoxforge/hox/internal/task"
)

// Mirror wraps a SQLite connection holding a point-in-time copy of a
// Cache's tasks and deps.
type Mirror struct {
	conn *sql.DB
}

// OpenMirror opens (creating if absent) a SQLite mirror at path and
// ensures its schema exists.
func OpenMirror(path string) (*Mirror, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, herr.Wrap(herr.KindIo, err, "create mirror directory")
		}
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, herr.Wrap(herr.KindIo, err, "open cache mirror")
	}
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, herr.Wrap(herr.KindIo, err, "ping cache mirror")
	}
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = conn.Close()
		return nil, herr.Wrap(herr.KindIo, err, "enable WAL on cache mirror")
	}

	m := &Mirror{conn: conn}
	if err := m.initSchema(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return m, nil
}

func (m *Mirror) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS tasks (
		id             TEXT PRIMARY KEY,
		title          TEXT NOT NULL,
		type           TEXT NOT NULL,
		status         TEXT NOT NULL,
		priority       INTEGER NOT NULL,
		assigned_agent TEXT,
		description    TEXT,
		tags           TEXT,
		created_at     TEXT NOT NULL,
		updated_at     TEXT NOT NULL,
		due_at         TEXT,
		defer_until    TEXT,
		is_blocked     INTEGER NOT NULL DEFAULT 0
	);
	CREATE TABLE IF NOT EXISTS deps (
		from_id    TEXT NOT NULL,
		to_id      TEXT NOT NULL,
		type       TEXT NOT NULL,
		PRIMARY KEY (from_id, to_id, type)
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_status ON tasks(status);
	CREATE INDEX IF NOT EXISTS idx_tasks_priority ON tasks(priority);
	CREATE INDEX IF NOT EXISTS idx_deps_to ON deps(to_id);
	`
	if _, err := m.conn.Exec(schema); err != nil {
		return herr.Wrap(herr.KindIo, err, "initialize cache mirror schema")
	}
	return nil
}

// Close closes the underlying connection.
func (m *Mirror) Close() error {
	if m == nil || m.conn == nil {
		return nil
	}
	return m.conn.Close()
}

// Sync replaces the mirror's entire contents with a snapshot of c, inside
// a single transaction so a concurrent reader never observes a half
// -written mirror.
func (m *Mirror) Sync(ctx context.Context, c *Cache) error {
	tasks := c.List(Filter{})

	c.mu.RLock()
	deps := make([]*task.Dep, 0)
	for _, ds := range c.depsByFrom {
		deps = append(deps, ds...)
	}
	blocked := make(map[string]bool, len(c.blocked))
	for id := range c.blocked {
		blocked[id] = true
	}
	c.mu.RUnlock()

	tx, err := m.conn.BeginTx(ctx, nil)
	if err != nil {
		return herr.Wrap(herr.KindIo, err, "begin mirror sync transaction")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM tasks"); err != nil {
		return herr.Wrap(herr.KindIo, err, "clear mirror tasks")
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM deps"); err != nil {
		return herr.Wrap(herr.KindIo, err, "clear mirror deps")
	}

	for _, t := range tasks {
		tagsJSON, err := json.Marshal(t.Tags)
		if err != nil {
			return herr.Wrap(herr.KindIo, err, "marshal tags for mirror")
		}
		var dueAt, deferUntil any
		if t.DueAt != nil {
			dueAt = t.DueAt.Format(timeLayout)
		}
		if t.DeferUntil != nil {
			deferUntil = t.DeferUntil.Format(timeLayout)
		}

		isBlocked := 0
		if blocked[t.ID] {
			isBlocked = 1
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO tasks (id, title, type, status, priority, assigned_agent,
				description, tags, created_at, updated_at, due_at, defer_until, is_blocked)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			t.ID, t.Title, string(t.Type), string(t.Status), t.Priority, t.AssignedAgent,
			t.Description, string(tagsJSON),
			t.CreatedAt.Format(timeLayout), t.UpdatedAt.Format(timeLayout),
			dueAt, deferUntil, isBlocked)
		if err != nil {
			return herr.Wrap(herr.KindIo, err, fmt.Sprintf("insert mirror task %q", t.ID))
		}
	}

	for _, d := range deps {
		_, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO deps (from_id, to_id, type) VALUES (?, ?, ?)",
			d.From, d.To, string(d.Type))
		if err != nil {
			return herr.Wrap(herr.KindIo, err, "insert mirror dep")
		}
	}

	if err := tx.Commit(); err != nil {
		return herr.Wrap(herr.KindIo, err, "commit mirror sync")
	}
	return nil
}

const timeLayout = "2006-01-02T15:04:05.999999999Z07:00"

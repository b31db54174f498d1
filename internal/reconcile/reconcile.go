// Package reconcile implements the reconciler (component F): the single
// consumer of the filesystem watcher's and op-log watcher's event streams,
// the only writer to the query cache.
//
// Grounded on internal/turso/daemon.Daemon's orchestration shape — a
// Start/Stop lifecycle around background goroutines, a logger built the
// same way (log.New(os.Stderr, "[prefix] ", log.LstdFlags)), and the same
// "full sync on startup, then incremental" structure — with the daemon's
// unimplemented upsert/delete TODO stubs replaced by real per-field
// last-write-wins merges into internal/cache, and its SQLite-table target
// replaced by that in-process cache.
package reconcile

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/hoxforge/hox/internal/cache"
	"github.com/hoxforge/hox/internal/herr"
	"github.com/hoxforge/hox/internal/oplog"
	"github.com/hoxforge/hox/internal/task"
	"github.com/hoxforge/hox/internal/vcs"
	"github.com/hoxforge/hox/internal/watch"
)

// linearBackOff retries at 100ms × attempt (100ms, 200ms, 300ms, ...),
// matching spec §7's "retried with 100 ms × attempt backoff up to 3
// attempts" for transient watcher read errors during a rename.
type linearBackOff struct{ attempt int }

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return time.Duration(b.attempt) * 100 * time.Millisecond
}

func (b *linearBackOff) Reset() { b.attempt = 0 }

// withRetry retries op up to 3 total attempts on a retryable herr.Kind
// (KindIo, KindVcsCommand), matching spec §7. Non-retryable errors and
// success both stop immediately.
func withRetry(op func() error) error {
	return backoff.Retry(func() error {
		if err := op(); err != nil {
			if !herr.IsRetryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}, backoff.WithMaxRetries(&linearBackOff{}, 2))
}

// Config controls the reconciler's self-heal cadence.
type Config struct {
	// RescanEvery triggers a full rescan self-heal after this many events
	// have been applied. Zero disables periodic self-heal (still runs once
	// at Start).
	RescanEvery int
	// Logger receives reconciliation activity and warnings. Defaults to
	// log.New(os.Stderr, "[reconcile] ", log.LstdFlags).
	Logger *log.Logger
	// MetadataDir, if non-empty, enables the .tasks/metadata.jsonl sidecar
	// (see metadata.go): a compacted, non-authoritative index rewritten
	// after every FullRescan. Empty disables it.
	MetadataDir string
}

// DefaultConfig self-heals every 500 applied events.
func DefaultConfig() Config {
	return Config{
		RescanEvery: 500,
		Logger:      log.New(os.Stderr, "[reconcile] ", log.LstdFlags),
	}
}

// Reconciler drives a cache.Cache from a watch.Watcher's FileEvents and an
// optional oplog.Watcher's Events, serializing all writes to the cache
// through a single consumer goroutine.
type Reconciler struct {
	cache    *cache.Cache
	tasksDir string
	depsDir  string
	v        vcs.VCS // nil disables op-log-driven reconciliation

	fw *watch.Watcher
	ow *oplog.Watcher

	cfg      Config
	metadata *MetadataSidecar

	mu             sync.Mutex
	eventsSinceHeal int

	done chan struct{}
	wg   sync.WaitGroup
}

// New builds a Reconciler over an already-constructed cache and watchers.
// ow may be nil when no VCS adapter is available; op-log-driven
// reconciliation is then simply not run.
func New(c *cache.Cache, tasksDir, depsDir string, v vcs.VCS, fw *watch.Watcher, ow *oplog.Watcher, cfg Config) *Reconciler {
	if cfg.RescanEvery < 0 {
		cfg.RescanEvery = 0
	}
	if cfg.Logger == nil {
		cfg.Logger = DefaultConfig().Logger
	}

	r := &Reconciler{
		cache:    c,
		tasksDir: filepath.Clean(tasksDir),
		depsDir:  filepath.Clean(depsDir),
		v:        v,
		fw:       fw,
		ow:       ow,
		cfg:      cfg,
		done:     make(chan struct{}),
	}
	if cfg.MetadataDir != "" {
		r.metadata = NewMetadataSidecar(cfg.MetadataDir)
	}
	return r
}

// Start performs the initial full scan, starts the watchers, and begins
// consuming their event streams. Blocks only long enough to complete the
// initial scan; reconciliation then proceeds in the background.
func (r *Reconciler) Start(ctx context.Context) error {
	r.cfg.Logger.Println("performing initial full scan")
	if _, err := r.FullRescan(); err != nil {
		return err
	}

	if err := r.fw.Start(); err != nil {
		return herr.Wrap(herr.KindIo, err, "start filesystem watcher")
	}

	if r.ow != nil {
		if err := r.ow.Start(ctx); err != nil {
			return herr.Wrap(herr.KindVcsCommand, err, "start oplog watcher")
		}
	}

	r.wg.Add(1)
	go r.consume(ctx)

	return nil
}

// Stop stops the watchers and waits for the consumer goroutine to drain.
func (r *Reconciler) Stop() {
	close(r.done)
	_ = r.fw.Stop()
	if r.ow != nil {
		r.ow.Stop()
	}
	r.wg.Wait()
}

// FullRescan reads every task and dependency file from disk and rebuilds
// the cache from scratch, reporting any cycles found and excluded.
func (r *Reconciler) FullRescan() ([]cache.CycleEdge, error) {
	tasks, err := task.ListTasks(r.tasksDir)
	if err != nil {
		return nil, herr.Wrap(herr.KindIo, err, "list tasks for rescan")
	}
	deps, err := task.ListDeps(r.depsDir)
	if err != nil {
		return nil, herr.Wrap(herr.KindIo, err, "list deps for rescan")
	}

	cycles := r.cache.Rescan(tasks, deps)
	if len(cycles) > 0 {
		r.cfg.Logger.Printf("rescan found %d cyclic edge(s), excluded from index", len(cycles))
	}

	if r.metadata != nil {
		if err := r.metadata.Compact(r.cache.List(cache.Filter{})); err != nil {
			r.cfg.Logger.Printf("metadata sidecar compaction failed: %v", err)
		}
	}

	return cycles, nil
}

func (r *Reconciler) consume(ctx context.Context) {
	defer r.wg.Done()

	var ow <-chan oplog.Event
	var owErrs <-chan error
	if r.ow != nil {
		ow = r.ow.Events()
		owErrs = r.ow.Errors()
	}

	for {
		select {
		case <-r.done:
			return
		case <-ctx.Done():
			return

		case ev, ok := <-r.fw.Events():
			if !ok {
				return
			}
			r.applyFileEvent(ev)
			r.noteEventApplied()

		case err, ok := <-r.fw.Errors():
			if !ok {
				continue
			}
			r.cfg.Logger.Printf("watcher error: %v", err)

		case ev, ok := <-ow:
			if !ok {
				ow = nil
				continue
			}
			r.applyOpEvent(ctx, ev)
			r.noteEventApplied()

		case err, ok := <-owErrs:
			if !ok {
				owErrs = nil
				continue
			}
			r.cfg.Logger.Printf("oplog watcher error: %v", err)
		}
	}
}

func (r *Reconciler) noteEventApplied() {
	if r.cfg.RescanEvery <= 0 {
		return
	}
	r.mu.Lock()
	r.eventsSinceHeal++
	due := r.eventsSinceHeal >= r.cfg.RescanEvery
	if due {
		r.eventsSinceHeal = 0
	}
	r.mu.Unlock()

	if due {
		r.cfg.Logger.Println("periodic self-heal rescan")
		if _, err := r.FullRescan(); err != nil {
			r.cfg.Logger.Printf("self-heal rescan failed: %v", err)
		}
	}
}

// applyFileEvent handles one FileEvent from the filesystem watcher,
// re-reading the file (for create/modify) or removing the entity (for
// delete, or when the file has already vanished by the time it's read).
func (r *Reconciler) applyFileEvent(ev watch.FileEvent) {
	r.applyPath(ev.Path)
}

// applyOpEvent diffs the operation's touched paths against tasks/ and
// deps/, then re-applies each touched file. Touched files are
// read/applied concurrently via errgroup since they are independent of
// one another; the cache's own locking serializes the actual mutations.
func (r *Reconciler) applyOpEvent(ctx context.Context, ev oplog.Event) {
	if r.v == nil {
		return
	}

	files, err := r.v.AffectedFiles(ctx, ev.OpID, []string{r.tasksDir, r.depsDir})
	if err != nil {
		r.cfg.Logger.Printf("affected files for op %s: %v", ev.OpID, err)
		return
	}

	var g errgroup.Group
	for _, f := range files {
		f := f
		g.Go(func() error {
			r.applyPath(f)
			return nil
		})
	}
	_ = g.Wait()
}

// applyPath re-reads path from disk and merges it into the cache, or
// removes the corresponding entity if the path no longer exists. It
// dispatches on whether path falls under tasksDir or depsDir.
func (r *Reconciler) applyPath(path string) {
	dir := filepath.Dir(path)

	switch {
	case dir == r.tasksDir:
		r.applyTaskPath(path)
	case dir == r.depsDir:
		r.applyDepPath(path)
	default:
		// Not a direct child of either watched root (e.g. the root
		// directory entry itself); nothing to reconcile.
	}
}

func (r *Reconciler) applyTaskPath(path string) {
	id := strings.TrimSuffix(filepath.Base(path), ".json")

	if _, err := os.Stat(path); os.IsNotExist(err) {
		r.cache.Remove(id)
		return
	}

	var t *task.Task
	err := withRetry(func() error {
		var readErr error
		t, readErr = task.ReadTask(path)
		return readErr
	})
	if err != nil {
		r.cfg.Logger.Printf("skipping invalid task file %s: %v", path, err)
		return
	}

	if existing, ok := r.cache.Get(id); ok {
		t = task.MergeField(existing, t)
	}

	if err := r.cache.Upsert(t); err != nil {
		r.cfg.Logger.Printf("rejecting task %s: %v", id, err)
	}
}

func (r *Reconciler) applyDepPath(path string) {
	from, typ, to, err := task.ParseDepFilename(filepath.Base(path))
	if err != nil {
		r.cfg.Logger.Printf("skipping unparseable dep filename %s: %v", path, err)
		return
	}

	if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
		_ = r.cache.RemoveDep(&task.Dep{From: from, To: to, Type: typ})
		return
	}

	var d *task.Dep
	err = withRetry(func() error {
		var readErr error
		d, readErr = task.ReadDep(path)
		return readErr
	})
	if err != nil {
		r.cfg.Logger.Printf("skipping invalid dep file %s: %v", path, err)
		return
	}

	if err := r.cache.AddDep(d); err != nil {
		r.cfg.Logger.Printf("rejecting dep %s: %v", path, err)
	}
}

// Cache returns the underlying cache for read access by query callers.
func (r *Reconciler) Cache() *cache.Cache { return r.cache }

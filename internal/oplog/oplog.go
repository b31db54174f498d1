// Package oplog implements the op-log watcher (component E): it polls the
// VCS adapter's operation log on an interval and emits one event per new
// operation discovered since the last poll.
//
// Grounded on original_source/crates/hox-jj/src/oplog.rs (OpLogWatcher):
// same default poll interval (500ms) and catch-up bound (check_count=10),
// same "first tick seeds last_seen without emitting" startup rule. The
// tokio interval + mpsc::channel shape there translates to a time.Ticker
// driving a goroutine that feeds a buffered Go channel.
package oplog

import (
	"context"
	"sync"
	"time"

	"github.com/hoxforge/hox/internal/herr"
	"github.com/hoxforge/hox/internal/vcs"
)

// Event reports a single newly observed operation.
type Event struct {
	OpID        string
	Description string
	DetectedAt  time.Time
}

// Config controls polling cadence and catch-up depth.
type Config struct {
	// PollInterval is how often the op log is checked.
	PollInterval time.Duration
	// CheckCount bounds how many recent operations are examined per poll
	// to find new ones; operations beyond this depth are missed rather
	// than replayed in full (a full rescan is the reconciler's self-heal
	// for that case, see internal/reconcile).
	CheckCount int
}

// DefaultConfig matches the spec default: poll every 500ms, look back at
// most 10 operations per poll.
func DefaultConfig() Config {
	return Config{PollInterval: 500 * time.Millisecond, CheckCount: 10}
}

// Watcher polls a vcs.VCS operation log and emits Events for new operations.
type Watcher struct {
	vcs    vcs.VCS
	cfg    Config
	events chan Event
	errors chan error
	done   chan struct{}
	wg     sync.WaitGroup

	mu       sync.Mutex
	running  bool
	lastSeen string
}

// New creates a Watcher with DefaultConfig.
func New(v vcs.VCS) *Watcher {
	return NewWithConfig(v, DefaultConfig())
}

// NewWithConfig creates a Watcher with a custom Config.
func NewWithConfig(v vcs.VCS, cfg Config) *Watcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.CheckCount <= 0 {
		cfg.CheckCount = DefaultConfig().CheckCount
	}

	return &Watcher{
		vcs:    v,
		cfg:    cfg,
		events: make(chan Event, 64),
		errors: make(chan error, 16),
		done:   make(chan struct{}),
	}
}

// Start seeds last_seen from the current head operation (without emitting,
// so history present before the watcher started is never replayed) and
// begins polling in the background.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return herr.New(herr.KindIo, "oplog watcher already running")
	}

	ops, err := w.vcs.OpLog(ctx, 1)
	if err != nil {
		return herr.Wrap(herr.KindVcsCommand, err, "seed oplog watcher")
	}
	if len(ops) > 0 {
		w.lastSeen = ops[0].ID
	}

	w.running = true
	w.wg.Add(1)
	go w.poll(ctx)

	return nil
}

// Stop stops polling and waits for the poll loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.done)
	w.wg.Wait()
	close(w.events)
	close(w.errors)
}

// Events returns the channel of newly observed operations, oldest first
// within any single catch-up batch.
func (w *Watcher) Events() <-chan Event { return w.events }

// Errors returns the channel of polling errors.
func (w *Watcher) Errors() <-chan error { return w.errors }

// IsRunning reports whether the watcher has been started.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) poll(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.checkOnce(ctx)
		}
	}
}

// checkOnce fetches the CheckCount most recent operations and emits one
// Event per operation newer than last_seen, oldest first, then advances
// last_seen to the newest operation id observed.
func (w *Watcher) checkOnce(ctx context.Context) {
	ops, err := w.vcs.OpLog(ctx, w.cfg.CheckCount)
	if err != nil {
		w.emitError(err)
		return
	}
	if len(ops) == 0 {
		return
	}

	w.mu.Lock()
	lastSeen := w.lastSeen
	w.mu.Unlock()

	if ops[0].ID == lastSeen {
		return
	}

	var fresh []vcs.Operation
	for _, op := range ops {
		if op.ID == lastSeen {
			break
		}
		fresh = append(fresh, op)
	}

	for i := len(fresh) - 1; i >= 0; i-- {
		op := fresh[i]
		select {
		case w.events <- Event{OpID: op.ID, Description: op.Description, DetectedAt: time.Now()}:
		case <-w.done:
			return
		}
	}

	w.mu.Lock()
	w.lastSeen = ops[0].ID
	w.mu.Unlock()
}

func (w *Watcher) emitError(err error) {
	select {
	case w.errors <- err:
	case <-w.done:
	}
}

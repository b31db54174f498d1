// Package breaker implements the circuit breaker (component I): a
// closed/open/half-open gate shared across loop engines hitting the same
// LLM endpoint, so a burst of transport or rate-limit failures backs
// every task off together instead of hammering the endpoint in
// lockstep.
//
// Grounded on original_source/crates/hox-agent/src/circuit_breaker.rs for
// the state machine semantics (consecutive-failure threshold, lazy
// open-to-half-open evaluation on query, half-open resolves to closed on
// success or back to open on failure) and on github.com/sony/gobreaker
// (seen in other_examples/manifests/marcodelpin-beads and
// jordigilh-kubernaut's go.mod) for the implementation: gobreaker's
// TwoStepCircuitBreaker already provides exactly this state machine —
// ReadyToTrip on ConsecutiveFailures, a single-trial MaxRequests in
// half-open, and lazy state recomputation on every query — so this
// package wraps it rather than reimplementing the transition logic by
// hand.
package breaker

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker"
)

// State mirrors the spec's three-value vocabulary, independent of
// gobreaker's own State type so callers never import gobreaker directly.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Config controls the breaker's trip threshold and recovery timeout.
type Config struct {
	// Threshold is the number of consecutive failures that trips the
	// breaker from closed to open.
	Threshold uint32
	// Timeout is how long the breaker stays open before allowing a
	// single trial request in half-open.
	Timeout time.Duration
}

// DefaultConfig matches the original's conservative default: 3
// consecutive failures, 60 second recovery timeout.
func DefaultConfig() Config {
	return Config{Threshold: 3, Timeout: 60 * time.Second}
}

// Breaker is a closed/open/half-open gate. The zero value is not usable;
// construct with New. Safe for concurrent use by multiple loop engines
// sharing one LLM endpoint.
type Breaker struct {
	tcb     *gobreaker.TwoStepCircuitBreaker
	timeout time.Duration

	openedAt atomic.Int64 // UnixNano of the most recent transition into open (from closed or half-open)

	mu   sync.Mutex
	done func(success bool) // pending completion from the last CanExecute, if any
}

// New builds a Breaker from cfg, defaulting zero fields from DefaultConfig.
func New(cfg Config) *Breaker {
	def := DefaultConfig()
	if cfg.Threshold == 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}

	b := &Breaker{timeout: cfg.Timeout}

	b.tcb = gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        "hox-llm",
		MaxRequests: 1, // exactly one trial request admitted in half-open
		Interval:    0, // never reset counts while closed; only consecutive counts matter
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.Threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if to == gobreaker.StateOpen {
				b.openedAt.Store(time.Now().UnixNano())
			}
		},
	})

	return b
}

// CanExecute reports whether a request may proceed: true in closed or
// half-open (a single trial), false in open. A true result stages a
// pending completion that the next RecordSuccess or RecordFailure call
// resolves; callers that decide not to execute after all should still
// call one of the two to avoid leaving the trial uncounted.
func (b *Breaker) CanExecute() bool {
	done, err := b.tcb.Allow()
	if err != nil {
		return false
	}

	b.mu.Lock()
	b.done = done
	b.mu.Unlock()
	return true
}

// RecordSuccess resolves the pending trial (if any) as a success. In
// half-open this closes the breaker; in closed it resets the consecutive
// failure count.
func (b *Breaker) RecordSuccess() {
	b.resolve(true)
}

// RecordFailure resolves the pending trial (if any) as a failure. In
// half-open this reopens the breaker and resets the recovery timer; in
// closed it increments the consecutive failure count, tripping the
// breaker open once it reaches the configured threshold.
func (b *Breaker) RecordFailure() {
	b.resolve(false)
}

// resolve completes the pending trial staged by CanExecute, if any. Per
// spec §4.I, record_success/record_failure are independent operations —
// nothing requires a caller to gate on CanExecute first — so a bare call
// with no trial staged takes its own from the underlying breaker rather
// than silently dropping the result on the floor. The only case this
// can't recover is recording against an already-open breaker with no
// staged trial: gobreaker's Allow refuses a trial there (no half-open
// slot to take), so that result goes uncounted, matching the breaker
// already having tripped for an unrelated reason.
func (b *Breaker) resolve(success bool) {
	b.mu.Lock()
	done := b.done
	b.done = nil
	b.mu.Unlock()

	if done == nil {
		var err error
		done, err = b.tcb.Allow()
		if err != nil {
			return
		}
	}

	done(success)
}

// State returns the breaker's current state, lazily recomputing the
// open→half-open transition if the recovery timeout has elapsed.
func (b *Breaker) State() State {
	switch b.tcb.State() {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// TimeUntilRetry returns how long remains before the breaker leaves the
// open state, or zero if it is not currently open.
func (b *Breaker) TimeUntilRetry() time.Duration {
	if b.State() != StateOpen {
		return 0
	}

	openedAt := time.Unix(0, b.openedAt.Load())
	elapsed := time.Since(openedAt)
	remaining := b.timeout - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

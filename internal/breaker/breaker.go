package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"dubbing/internal/services"
)

// State is the breaker position.
type State int32

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

const (
	DefaultThreshold = 5
	DefaultCooldown  = 30 * time.Second
)

// Breaker tracks consecutive failures for one dependency. All fields are
// updated atomically so workers can report outcomes without a lock.
type Breaker struct {
	name      string
	threshold int32
	cooldown  time.Duration
	now       func() time.Time
	onChange  func(name string, from, to State)

	state    atomic.Int32
	failures atomic.Int32
	openedAt atomic.Int64
	trial    atomic.Bool

	totalFailures  atomic.Int64
	totalSuccesses atomic.Int64
	rejected       atomic.Int64
}

// Snapshot is a point-in-time view of a breaker.
type Snapshot struct {
	Name                string    `json:"name"`
	State               string    `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	TotalFailures       int64     `json:"total_failures"`
	TotalSuccesses      int64     `json:"total_successes"`
	Rejected            int64     `json:"rejected"`
	OpenedAt            time.Time `json:"opened_at,omitzero"`
}

// New constructs a closed breaker.
func New(name string, threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Breaker{
		name:      name,
		threshold: int32(threshold),
		cooldown:  cooldown,
		now:       time.Now,
	}
}

// Name returns the dependency the breaker guards.
func (b *Breaker) Name() string { return b.name }

// State returns the current position, reporting an expired open breaker as half-open.
func (b *Breaker) State() State {
	state := State(b.state.Load())
	if state == StateOpen && b.cooldownElapsed() {
		return StateHalfOpen
	}
	return state
}

func (b *Breaker) cooldownElapsed() bool {
	opened := b.openedAt.Load()
	return b.now().Sub(time.Unix(0, opened)) >= b.cooldown
}

// Allow reports whether a call may proceed. When the breaker is open and the
// cooldown has elapsed exactly one caller is admitted as the half-open trial.
func (b *Breaker) Allow() error {
	switch State(b.state.Load()) {
	case StateClosed:
		return nil
	case StateOpen:
		// The trial slot is claimed before the state moves so a caller that
		// observes half-open can never win a second trial.
		if b.cooldownElapsed() && b.trial.CompareAndSwap(false, true) {
			if b.state.CompareAndSwap(int32(StateOpen), int32(StateHalfOpen)) {
				b.notify(StateOpen, StateHalfOpen)
				return nil
			}
			b.trial.Store(false)
		}
	case StateHalfOpen:
		if b.trial.CompareAndSwap(false, true) {
			return nil
		}
	}
	b.rejected.Add(1)
	return b.openError()
}

func (b *Breaker) openError() error {
	return fmt.Errorf("%w: %s", services.ErrCircuitOpen, b.name)
}

// Record reports the outcome of an admitted call. Cancellation is not a
// dependency failure and is ignored.
func (b *Breaker) Record(err error) {
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, services.ErrCircuitOpen)) {
		if State(b.state.Load()) == StateHalfOpen {
			b.trial.Store(false)
		}
		return
	}
	if err == nil {
		b.totalSuccesses.Add(1)
		b.failures.Store(0)
		b.trial.Store(false)
		if prev := State(b.state.Swap(int32(StateClosed))); prev != StateClosed {
			b.notify(prev, StateClosed)
		}
		return
	}

	b.totalFailures.Add(1)
	if State(b.state.Load()) == StateHalfOpen {
		b.trip(StateHalfOpen)
		return
	}
	if b.failures.Add(1) >= b.threshold {
		b.trip(StateClosed)
	}
}

func (b *Breaker) trip(from State) {
	b.openedAt.Store(b.now().UnixNano())
	if b.state.CompareAndSwap(int32(from), int32(StateOpen)) {
		b.trial.Store(false)
		b.notify(from, StateOpen)
	}
}

// Execute runs fn through the breaker.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	err := fn()
	b.Record(err)
	return err
}

// Snapshot returns counters and state for reporting.
func (b *Breaker) Snapshot() Snapshot {
	snap := Snapshot{
		Name:                b.name,
		State:               b.State().String(),
		ConsecutiveFailures: int(b.failures.Load()),
		TotalFailures:       b.totalFailures.Load(),
		TotalSuccesses:      b.totalSuccesses.Load(),
		Rejected:            b.rejected.Load(),
	}
	if State(b.state.Load()) != StateClosed {
		snap.OpenedAt = time.Unix(0, b.openedAt.Load()).UTC()
	}
	return snap
}

func (b *Breaker) notify(from, to State) {
	if b.onChange != nil {
		b.onChange(b.name, from, to)
	}
}

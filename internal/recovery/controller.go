package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"dubbing/internal/breaker"
	"dubbing/internal/logging"
	"dubbing/internal/services"
)

const (
	defaultBaseDelay = 500 * time.Millisecond
	defaultMaxDelay  = 8 * time.Second
	defaultJitter    = 0.2

	// unclassifiedAttempts bounds errors without a recognised kind: one retry, then fail.
	unclassifiedAttempts = 2
)

// Decision is the recovery action taken after a failed attempt.
type Decision string

const (
	DecisionSucceeded Decision = "succeeded"
	DecisionRetry     Decision = "retry"
	DecisionFallback  Decision = "fallback"
	DecisionAbort     Decision = "abort"
	DecisionManual    Decision = "manual_intervention"
)

// Operation is one external call guarded by the controller.
type Operation struct {
	// Name labels the call in logs and errors, e.g. "transcribe" or "synthesize:cloud".
	Name    string
	Breaker *breaker.Breaker
	Call    func(ctx context.Context) error
	// Fallback runs instead of Call after a quota or circuit-open failure.
	Fallback *Operation
}

// Outcome summarizes how an operation was resolved.
type Outcome struct {
	Attempts     int
	FallbackUsed bool
	Kind         services.Kind
	Decision     Decision
}

// Error is returned when recovery gives up.
type Error struct {
	Op       string
	Attempts int
	Kind     services.Kind
	Decision Decision
	Err      error
}

func (e *Error) Error() string {
	noun := "attempts"
	if e.Attempts == 1 {
		noun = "attempt"
	}
	return fmt.Sprintf("%s failed after %d %s: %v", e.Op, e.Attempts, noun, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorKind exposes the classification so callers can keep dispatching on kind.
func (e *Error) ErrorKind() string { return string(e.Kind) }

// NeedsIntervention reports whether err ended in a manual-intervention decision.
func NeedsIntervention(err error) bool {
	var recErr *Error
	return errors.As(err, &recErr) && recErr.Decision == DecisionManual
}

// Option customizes a Controller.
type Option func(*Controller)

// WithBackoff overrides the retry backoff delays.
func WithBackoff(base, maxDelay time.Duration) Option {
	return func(c *Controller) {
		if base > 0 {
			c.baseDelay = base
		}
		if maxDelay > 0 {
			c.maxDelay = maxDelay
		}
	}
}

// WithJitter sets the +/- fraction applied to each delay.
func WithJitter(fraction float64) Option {
	return func(c *Controller) {
		if fraction >= 0 && fraction <= 1 {
			c.jitter = fraction
		}
	}
}

// WithSleeper overrides how retry sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Controller) { c.sleeper = sleeper }
}

// WithRandom overrides the jitter source; fn must return values in [0,1).
func WithRandom(fn func() float64) Option {
	return func(c *Controller) {
		if fn != nil {
			c.random = fn
		}
	}
}

// WithLogger attaches a logger for retry decisions.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// Controller wraps stage calls with classification-driven retries.
type Controller struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	jitter      float64
	sleeper     func(time.Duration)
	random      func() float64
	logger      *slog.Logger
}

// New constructs a controller allowing up to maxAttempts calls for transient failures.
func New(maxAttempts int, opts ...Option) *Controller {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	c := &Controller{
		maxAttempts: maxAttempts,
		baseDelay:   defaultBaseDelay,
		maxDelay:    defaultMaxDelay,
		jitter:      defaultJitter,
		random:      rand.Float64,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run executes op until it succeeds or the recovery policy gives up:
//   - transient: retry with backoff up to the configured number of calls
//   - quota / circuit open: switch to op.Fallback when present, otherwise abort
//   - resource: abort immediately and flag for manual intervention
//   - unclassified: retry once, then abort
func (c *Controller) Run(ctx context.Context, op Operation) (Outcome, error) {
	var outcome Outcome
	current := op
	attempt := 0
	visited := map[string]struct{}{op.Name: {}}
	logger := logging.WithContext(ctx, c.logger)

	for {
		if err := ctx.Err(); err != nil {
			outcome.Decision = DecisionAbort
			return outcome, err
		}
		attempt++
		outcome.Attempts++

		err := c.invoke(ctx, current)
		if err == nil {
			outcome.Kind = ""
			outcome.Decision = DecisionSucceeded
			return outcome, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			outcome.Decision = DecisionAbort
			return outcome, ctxErr
		}

		kind := services.KindOf(err)
		outcome.Kind = kind
		decision := c.decide(kind, attempt, err, current)
		outcome.Decision = decision

		switch decision {
		case DecisionRetry:
			delay := c.backoffDelay(attempt)
			logging.WarnWithContext(logger, "stage retry scheduled", "stage_retry",
				logging.String("operation", current.Name),
				logging.Int("attempt", attempt),
				logging.ErrorKind(string(kind)),
				logging.Duration("backoff", delay),
				logging.Error(err),
				logging.Impact("job continues after backoff"),
			)
			if sleepErr := c.sleep(ctx, delay); sleepErr != nil {
				outcome.Decision = DecisionAbort
				return outcome, sleepErr
			}
		case DecisionFallback:
			next := *current.Fallback
			if _, seen := visited[next.Name]; seen {
				outcome.Decision = DecisionAbort
				return outcome, c.giveUp(current.Name, outcome.Attempts, kind, DecisionAbort, err)
			}
			visited[next.Name] = struct{}{}
			logging.WarnWithContext(logger, "switching to fallback", "stage_fallback",
				logging.String("operation", current.Name),
				logging.String("fallback", next.Name),
				logging.ErrorKind(string(kind)),
				logging.Error(err),
				logging.Impact("segment synthesized by fallback provider"),
			)
			current = next
			attempt = 0
			outcome.FallbackUsed = true
		default:
			return outcome, c.giveUp(current.Name, outcome.Attempts, kind, decision, err)
		}
	}
}

func (c *Controller) decide(kind services.Kind, attempt int, err error, op Operation) Decision {
	if errors.Is(err, services.ErrCircuitOpen) {
		if op.Fallback != nil {
			return DecisionFallback
		}
		return DecisionAbort
	}
	switch kind {
	case services.KindTransient:
		if attempt < c.maxAttempts {
			return DecisionRetry
		}
		return DecisionAbort
	case services.KindQuota:
		if op.Fallback != nil {
			return DecisionFallback
		}
		return DecisionAbort
	case services.KindResource:
		return DecisionManual
	default:
		if attempt < min(unclassifiedAttempts, c.maxAttempts) {
			return DecisionRetry
		}
		return DecisionAbort
	}
}

func (c *Controller) giveUp(name string, attempts int, kind services.Kind, decision Decision, err error) error {
	return &Error{Op: name, Attempts: attempts, Kind: kind, Decision: decision, Err: err}
}

func (c *Controller) invoke(ctx context.Context, op Operation) error {
	if op.Call == nil {
		return fmt.Errorf("%s: no call configured", op.Name)
	}
	if op.Breaker == nil {
		return op.Call(ctx)
	}
	return op.Breaker.Execute(func() error { return op.Call(ctx) })
}

// backoffDelay returns base*2^(attempt-1) capped at maxDelay, with jitter applied.
func (c *Controller) backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := c.baseDelay
	for i := 1; i < attempt; i++ {
		if delay > c.maxDelay/2 {
			delay = c.maxDelay
			break
		}
		delay *= 2
	}
	if c.jitter > 0 {
		factor := 1 + c.jitter*(2*c.random()-1)
		delay = time.Duration(float64(delay) * factor)
	}
	if delay > c.maxDelay {
		delay = c.maxDelay
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}

func (c *Controller) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if c.sleeper != nil {
		c.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"dubbing/internal/breaker"
	"dubbing/internal/config"
	"dubbing/internal/logging"
	"dubbing/internal/notifications"
	"dubbing/internal/queue"
	"dubbing/internal/recovery"
	"dubbing/internal/stage"
)

// ErrManagerStopped is returned by ProcessVideo and RetryJob once Shutdown began.
var ErrManagerStopped = errors.New("workflow manager is shutting down")

// Observer receives a snapshot of every job that reaches a terminal status.
type Observer func(ctx context.Context, job queue.Job)

// Manager owns the admission queue, the worker pool and the stage executor.
type Manager struct {
	cfg      config.PipelineConfig
	health   config.Health
	store    *queue.Store
	deps     stage.Dependencies
	logger   *slog.Logger
	notifier notifications.Service
	now      func() time.Time

	breakers  *breaker.Registry
	recovery  *recovery.Controller
	events    *EventBus
	plan      []pipelineStage
	observers []Observer
	admission *admissionQueue

	mu       sync.RWMutex
	started  bool
	stopping bool
	cancel   context.CancelCauseFunc
	wg       sync.WaitGroup
	runs     map[string]*jobRun
	lastErr  error

	processed atomic.Int64
	succeeded atomic.Int64
	failed    atomic.Int64
}

// Option configures optional Manager behavior.
type Option func(*managerOptions)

type managerOptions struct {
	logger    *slog.Logger
	notifier  notifications.Service
	now       func() time.Time
	sleeper   func(time.Duration)
	random    func() float64
	observers []Observer
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *managerOptions) { o.logger = logger }
}

// WithNotifier overrides the notification service built from config.
func WithNotifier(notifier notifications.Service) Option {
	return func(o *managerOptions) { o.notifier = notifier }
}

// WithClock overrides the time source for timestamps, timeouts and breakers.
func WithClock(now func() time.Time) Option {
	return func(o *managerOptions) { o.now = now }
}

// WithSleeper overrides retry backoff sleeps (used in tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(o *managerOptions) { o.sleeper = sleeper }
}

// WithRandom overrides the backoff jitter source.
func WithRandom(fn func() float64) Option {
	return func(o *managerOptions) { o.random = fn }
}

// WithObserver registers a hook called after every terminal transition.
func WithObserver(observer Observer) Option {
	return func(o *managerOptions) {
		if observer != nil {
			o.observers = append(o.observers, observer)
		}
	}
}

// NewManager constructs a workflow manager. Jobs may be submitted before Start;
// they wait in the admission queue until workers run.
func NewManager(cfg *config.Config, store *queue.Store, deps stage.Dependencies, opts ...Option) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if store == nil {
		return nil, errors.New("job store is required")
	}
	if err := deps.Validate(); err != nil {
		return nil, fmt.Errorf("workflow dependencies: %w", err)
	}

	options := managerOptions{now: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = logging.NewNop()
	}
	if options.notifier == nil {
		options.notifier = notifications.NewService(cfg)
	}

	pipeline := cfg.PipelineConfig()
	if pipeline.MaxConcurrentJobs < 1 {
		pipeline.MaxConcurrentJobs = 1
	}
	if pipeline.SynthesisConcurrency < 1 {
		pipeline.SynthesisConcurrency = 1
	}

	m := &Manager{
		cfg:       pipeline,
		health:    cfg.Health,
		store:     store,
		deps:      deps,
		logger:    logging.NewComponentLogger(options.logger, "workflow"),
		notifier:  options.notifier,
		now:       options.now,
		events:    NewEventBus(defaultEventCapacity),
		observers: options.observers,
		admission: newAdmissionQueue(),
		runs:      make(map[string]*jobRun),
	}

	m.breakers = breaker.NewRegistry(
		cfg.Breaker.FailureThreshold,
		cfg.BreakerCooldown(),
		breaker.WithClock(options.now),
		breaker.WithStateChange(m.onBreakerChange),
	)

	base, maxDelay := cfg.RetryBackoff()
	recoveryOpts := []recovery.Option{
		recovery.WithBackoff(base, maxDelay),
		recovery.WithJitter(cfg.Retry.Jitter),
		recovery.WithLogger(m.logger),
	}
	if options.sleeper != nil {
		recoveryOpts = append(recoveryOpts, recovery.WithSleeper(options.sleeper))
	}
	if options.random != nil {
		recoveryOpts = append(recoveryOpts, recovery.WithRandom(options.random))
	}
	m.recovery = recovery.New(pipeline.RetryAttempts, recoveryOpts...)
	m.plan = m.buildPlan()
	return m, nil
}

// Events exposes the job event bus.
func (m *Manager) Events() *EventBus { return m.events }

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

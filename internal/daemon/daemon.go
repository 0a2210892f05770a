package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"dubbing/internal/archive"
	"dubbing/internal/config"
	"dubbing/internal/cost"
	"dubbing/internal/logging"
	"dubbing/internal/preflight"
	"dubbing/internal/queue"
	"dubbing/internal/workflow"
)

// CostSummarizer reports process-wide cost totals.
type CostSummarizer interface {
	Summary() cost.Summary
}

// Daemon owns the workflow manager lifecycle and the HTTP API.
type Daemon struct {
	cfg       *config.Config
	logger    *slog.Logger
	manager   *workflow.Manager
	history   *archive.Archive
	costs     CostSummarizer
	preflight func(*config.Config) []preflight.Result

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool   `json:"running"`
	PID          int    `json:"pid"`
	LockFilePath string `json:"lock_file_path"`
	ArchivePath  string `json:"archive_path,omitempty"`
	APIAddress   string `json:"api_address,omitempty"`
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithArchive exposes archived history through the API. The daemon closes it.
func WithArchive(a *archive.Archive) Option {
	return func(d *Daemon) { d.history = a }
}

// WithCostSummary adds cost totals to the statistics endpoint.
func WithCostSummary(c CostSummarizer) Option {
	return func(d *Daemon) { d.costs = c }
}

// WithPreflight replaces the startup checks.
func WithPreflight(fn func(*config.Config) []preflight.Result) Option {
	return func(d *Daemon) { d.preflight = fn }
}

// New constructs a daemon around an already configured manager.
func New(cfg *config.Config, logger *slog.Logger, manager *workflow.Manager, opts ...Option) (*Daemon, error) {
	if cfg == nil || manager == nil {
		return nil, errors.New("daemon requires config and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := filepath.Join(cfg.Paths.LogDir, "dubbingd.lock")
	d := &Daemon{
		cfg:       cfg,
		logger:    logging.NewComponentLogger(logger, "daemon"),
		manager:   manager,
		preflight: preflight.RunLocal,
		lockPath:  lockPath,
		lock:      flock.New(lockPath),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the instance lock, runs preflight checks, launches the
// workflow workers and starts the HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another dubbing daemon instance is already running")
	}

	if err := d.runPreflight(); err != nil {
		_ = d.lock.Unlock()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.manager.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.api.start(runCtx); err != nil {
		cancel()
		_ = d.manager.Shutdown(context.Background())
		_ = d.lock.Unlock()
		return err
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("dubbing daemon started",
		logging.EventType("daemon_start"),
		logging.String("lock", d.lockPath),
		logging.String("api_address", d.api.address()),
	)
	return nil
}

func (d *Daemon) runPreflight() error {
	if d.preflight == nil {
		return nil
	}
	results := d.preflight(d.cfg)
	for _, result := range results {
		if result.Passed {
			d.logger.Debug("preflight check passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
			)
			continue
		}
		logging.ErrorWithContext(d.logger, "preflight check failed", "preflight_failed",
			logging.String("check", result.Name),
			logging.String("detail", result.Detail),
			logging.Hint("fix the reported check and restart the daemon"),
		)
	}
	return preflight.Err(results)
}

// Stop drains the workflow manager, stops the API and releases the lock.
// Jobs still running after the shutdown grace period end cancelled.
func (d *Daemon) Stop(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.running.Load() {
		return nil
	}

	err := d.manager.Shutdown(ctx)
	d.api.stop()
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	if unlockErr := d.lock.Unlock(); unlockErr != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "daemon_lock_release_failed",
			logging.Error(unlockErr),
			logging.Hint("remove the lock file if the next start is refused"),
		)
	}
	d.running.Store(false)
	d.logger.Info("dubbing daemon stopped", logging.EventType("daemon_stop"))
	return err
}

// Close stops the daemon, drops the in-memory job table and releases the archive.
func (d *Daemon) Close() error {
	stopErr := errors.Join(d.Stop(context.Background()), d.manager.Close(context.Background()))
	if d.history != nil {
		if err := d.history.Close(); err != nil {
			return errors.Join(stopErr, err)
		}
	}
	return stopErr
}

// Submit validates a local input path and registers a job for it.
func (d *Daemon) Submit(ctx context.Context, inputVideo, targetLanguage string) (queue.Job, error) {
	trimmed := strings.TrimSpace(inputVideo)
	if trimmed == "" {
		return queue.Job{}, newBadRequest("input video is required")
	}
	absPath, err := filepath.Abs(trimmed)
	if err != nil {
		return queue.Job{}, newBadRequest(fmt.Sprintf("resolve input path: %v", err))
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return queue.Job{}, newBadRequest(fmt.Sprintf("input video %s is not readable", absPath))
	}
	if info.IsDir() {
		return queue.Job{}, newBadRequest(fmt.Sprintf("input video %s is a directory", absPath))
	}

	var opts []workflow.SubmitOption
	if lang := strings.TrimSpace(targetLanguage); lang != "" {
		opts = append(opts, workflow.WithTargetLanguage(lang))
	}
	job, err := d.manager.ProcessVideo(ctx, absPath, opts...)
	if err != nil {
		if errors.Is(err, workflow.ErrManagerStopped) {
			return queue.Job{}, err
		}
		return queue.Job{}, newBadRequest(err.Error())
	}
	return job, nil
}

// Status returns the current daemon status.
func (d *Daemon) Status() Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		LockFilePath: d.lockPath,
		APIAddress:   d.api.address(),
	}
	if d.history != nil {
		status.ArchivePath = d.history.Path()
	}
	return status
}

// Addr returns the bound API address, or "" when the API is disabled.
func (d *Daemon) Addr() string {
	return d.api.address()
}

func (d *Daemon) costSummary() cost.Summary {
	if d.costs == nil {
		return cost.Summary{}
	}
	return d.costs.Summary()
}

// badRequestError marks caller mistakes surfaced as HTTP 400.
type badRequestError struct {
	msg string
}

func newBadRequest(msg string) error { return &badRequestError{msg: msg} }

func (e *badRequestError) Error() string { return e.msg }

package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"dubbing/internal/logging"
	"dubbing/internal/queue"
	"dubbing/internal/services"
)

// Start launches the worker pool. Jobs submitted earlier begin immediately in
// FIFO order.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return ErrManagerStopped
	}
	if m.started {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}

	runCtx, cancel := context.WithCancelCause(ctx)
	m.cancel = cancel
	m.started = true
	workers := m.cfg.MaxConcurrentJobs
	m.wg.Add(workers)
	m.mu.Unlock()

	context.AfterFunc(runCtx, m.admission.close)
	for slot := 1; slot <= workers; slot++ {
		go m.worker(runCtx, slot)
	}

	queued, _ := m.admission.counts()
	m.logger.Info("workflow started",
		logging.EventType("workflow_start"),
		logging.Int("workers", workers),
		logging.Int("synthesis_concurrency", m.cfg.SynthesisConcurrency),
		logging.Int("queued", queued),
	)
	return nil
}

// Close shuts the manager down and drops the job table.
func (m *Manager) Close(ctx context.Context) error {
	err := m.Shutdown(ctx)
	m.store.Reset()
	return err
}

// Shutdown stops admitting jobs and waits for in-flight jobs to finish. Jobs
// still running once the grace period (or ctx) expires are cancelled.
// Queued jobs stay queued.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return nil
	}
	m.stopping = true
	started := m.started
	cancel := m.cancel
	m.mu.Unlock()

	m.admission.close()
	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	grace := m.cfg.ShutdownGrace
	if grace <= 0 {
		grace = time.Millisecond
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-done:
		cancel(errShutdown)
		m.logger.Info("workflow stopped", logging.EventType("workflow_stop"))
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}

	_, active := m.admission.counts()
	logging.WarnWithContext(m.logger, "shutdown grace period elapsed; cancelling running jobs", "workflow_shutdown_forced",
		logging.Int("active_jobs", active),
		logging.Duration("grace", m.cfg.ShutdownGrace),
		logging.Impact("running jobs end as cancelled"),
	)
	cancel(errShutdown)
	<-done
	m.logger.Info("workflow stopped", logging.EventType("workflow_stop"))
	return nil
}

// Running reports whether workers are active.
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.started && !m.stopping
}

func (m *Manager) worker(ctx context.Context, slot int) {
	defer m.wg.Done()
	ctx = services.WithWorker(ctx, slot)
	for {
		jobID, ok := m.admission.pop()
		if !ok {
			return
		}
		m.runJob(ctx, jobID)
		m.admission.done()
	}
}

func (m *Manager) runJob(ctx context.Context, jobID string) {
	ctx = services.WithJobID(ctx, jobID)
	logger := logging.WithContext(ctx, m.logger)

	run, err := m.beginRun(jobID)
	if err != nil {
		if errors.Is(err, errJobFinished) {
			// Cancelled after the worker dequeued it but before the run began.
			m.processed.Add(1)
			return
		}
		logger.Error("failed to start job", logging.Error(err))
		return
	}

	jobCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	run.cancel = cancel
	if m.cfg.JobTimeout > 0 {
		timer := time.AfterFunc(m.cfg.JobTimeout, func() { cancel(errJobTimeout) })
		defer timer.Stop()
	}
	m.register(run)
	defer m.unregister(run)

	// CancelJob may have landed between beginRun and register.
	if job, err := m.store.Get(jobID); err == nil && job.Status == queue.StatusCancelled {
		cancel(errJobCancelled)
	}

	logger.Info("job started",
		logging.EventType("job_start"),
		logging.Int("attempt", run.attempt),
		logging.String("input_video", run.input),
		logging.String("target_language", run.language),
	)

	state := &pipelineState{}
	if err := os.MkdirAll(run.workDir, 0o755); err != nil {
		m.failJob(jobCtx, run, "", fmt.Errorf("create work directory: %w", services.Tag(services.KindResource, err)))
		return
	}
	execErr := m.executePipeline(jobCtx, run, state)
	m.finish(jobCtx, run, state, execErr)
}

func (m *Manager) beginRun(jobID string) (*jobRun, error) {
	now := m.now()
	job, err := m.store.Mutate(jobID, func(j *queue.Job) error {
		if j.Status != queue.StatusQueued {
			return errJobFinished
		}
		j.Attempts++
		j.StartedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	language := job.TargetLanguage
	if language == "" {
		language = m.cfg.TargetLanguage
	}
	return &jobRun{
		jobID:    job.ID,
		attempt:  job.Attempts,
		input:    job.InputVideo,
		language: language,
		workDir:  filepath.Join(m.cfg.TempDirectory, job.ID, fmt.Sprintf("run-%d", job.Attempts)),
		started:  now,
	}, nil
}

func (m *Manager) register(run *jobRun) {
	m.mu.Lock()
	m.runs[run.jobID] = run
	m.mu.Unlock()
}

func (m *Manager) unregister(run *jobRun) {
	m.mu.Lock()
	if current, ok := m.runs[run.jobID]; ok && current == run {
		delete(m.runs, run.jobID)
	}
	m.mu.Unlock()
}

func (m *Manager) activeRun(jobID string) *jobRun {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.runs[jobID]
}

// checkpoint reports a pending cancellation, shutdown or timeout.
func (m *Manager) checkpoint(ctx context.Context, run *jobRun) error {
	if cause := context.Cause(ctx); cause != nil {
		return cause
	}
	if m.cfg.JobTimeout > 0 && m.now().Sub(run.started) > m.cfg.JobTimeout {
		return errJobTimeout
	}
	return nil
}

// owns reports whether the stored job still belongs to run.
func owns(j *queue.Job, run *jobRun) bool {
	return j.Attempts == run.attempt && !j.Status.IsTerminal()
}

// mutateOwned applies fn only while run still owns the job.
func (m *Manager) mutateOwned(run *jobRun, fn func(*queue.Job)) (queue.Job, error) {
	return m.store.Mutate(run.jobID, func(j *queue.Job) error {
		if !owns(j, run) {
			return errJobFinished
		}
		fn(j)
		return nil
	})
}

// cleanupRun removes the run's temporary artifacts. It runs before any
// terminal status is written so a retry never races with deletion.
func (m *Manager) cleanupRun(ctx context.Context, run *jobRun) {
	if run.workDir == "" {
		return
	}
	if err := os.RemoveAll(run.workDir); err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, m.logger), "failed to remove work directory", "cleanup_failed",
			logging.String("work_dir", run.workDir),
			logging.Error(err),
			logging.Hint("remove the directory manually"),
			logging.Impact("temporary files remain on disk"),
		)
		return
	}
	// The job directory is removed once no run directories remain.
	_ = os.Remove(filepath.Dir(run.workDir))
}

package workflow

import (
	"context"
	"fmt"
	"strings"

	"dubbing/internal/language"
	"dubbing/internal/logging"
	"dubbing/internal/queue"
)

// SubmitOption customizes a single submission.
type SubmitOption func(*queue.CreateOptions)

// WithTargetLanguage overrides the configured dubbing language for one job.
func WithTargetLanguage(lang string) SubmitOption {
	return func(o *queue.CreateOptions) { o.TargetLanguage = lang }
}

// ProcessVideo registers a job and enqueues it. Execution is asynchronous.
func (m *Manager) ProcessVideo(ctx context.Context, inputVideo string, opts ...SubmitOption) (queue.Job, error) {
	if m.stoppingNow() {
		return queue.Job{}, ErrManagerStopped
	}
	create := queue.CreateOptions{TargetLanguage: m.cfg.TargetLanguage}
	for _, opt := range opts {
		opt(&create)
	}
	lang, err := canonicalLanguage(create.TargetLanguage)
	if err != nil {
		return queue.Job{}, err
	}
	create.TargetLanguage = lang

	job, err := m.store.Create(inputVideo, create)
	if err != nil {
		return queue.Job{}, err
	}
	if !m.admission.push(job.ID) {
		m.store.Delete(job.ID)
		return queue.Job{}, ErrManagerStopped
	}

	queued, _ := m.admission.counts()
	logging.WithContext(ctx, m.logger).Info("job submitted",
		logging.EventType("job_submitted"),
		logging.JobID(job.ID),
		logging.String("input_video", job.InputVideo),
		logging.String("target_language", job.TargetLanguage),
		logging.Int("queue_length", queued),
	)
	m.events.Publish(Event{
		Type:      EventSubmitted,
		JobID:     job.ID,
		Status:    job.Status,
		Message:   job.InputVideo,
		Timestamp: m.now(),
	})
	return job, nil
}

func canonicalLanguage(tag string) (string, error) {
	lang, err := language.Canonical(tag)
	if err != nil {
		return "", fmt.Errorf("invalid target language %q: %w", strings.TrimSpace(tag), err)
	}
	return lang, nil
}

// GetJobStatus returns a snapshot of the job.
func (m *Manager) GetJobStatus(id string) (queue.Job, error) {
	return m.store.Get(id)
}

// CancelJob cancels a non-terminal job. Running jobs stop at their next checkpoint.
func (m *Manager) CancelJob(ctx context.Context, id string) (queue.Job, error) {
	job, err := m.store.Mutate(id, func(j *queue.Job) error {
		j.Cost = m.costFor(id)
		return j.Cancel(m.now())
	})
	if err != nil {
		return queue.Job{}, err
	}

	// A job still waiting in the queue never reaches a worker, so it is
	// counted as processed here. Running jobs are counted when their run ends.
	if m.admission.remove(id) {
		m.processed.Add(1)
	}
	if run := m.activeRun(id); run != nil && run.cancel != nil {
		run.cancel(errJobCancelled)
	}

	logging.WithContext(ctx, m.logger).Info("job cancelled",
		logging.EventType("job_cancelled"),
		logging.JobID(id),
		logging.String("reason", "cancelled by request"),
	)
	m.events.Publish(Event{
		Type:      EventCancelled,
		JobID:     job.ID,
		Status:    job.Status,
		Progress:  job.Progress,
		Message:   "cancelled by request",
		Timestamp: m.now(),
	})
	m.observe(ctx, job)
	return job, nil
}

type forgetter interface {
	Forget(jobID string)
}

// RetryJob moves a FAILED job back to the admission queue.
func (m *Manager) RetryJob(ctx context.Context, id string) (queue.Job, error) {
	if m.stoppingNow() {
		return queue.Job{}, ErrManagerStopped
	}
	var previous queue.Job
	job, err := m.store.Mutate(id, func(j *queue.Job) error {
		previous = j.Clone()
		return j.ResetForRetry()
	})
	if err != nil {
		return queue.Job{}, err
	}
	if f, ok := m.deps.Cost.(forgetter); ok {
		f.Forget(id)
	}
	if !m.admission.push(id) {
		// The queue closed underneath us; leave the job FAILED so it can be retried later.
		restored, _ := m.store.Mutate(id, func(j *queue.Job) error {
			if j.Status != queue.StatusQueued || j.Attempts != previous.Attempts {
				return queue.ErrInvalidTransition
			}
			*j = previous
			return nil
		})
		return restored, ErrManagerStopped
	}

	logging.WithContext(ctx, m.logger).Info("job requeued",
		logging.EventType("job_retry"),
		logging.JobID(id),
		logging.Int("previous_attempts", job.Attempts),
	)
	m.events.Publish(Event{
		Type:      EventRetry,
		JobID:     job.ID,
		Status:    job.Status,
		Timestamp: m.now(),
	})
	return job, nil
}

// GetAllJobs returns every job in submission order.
func (m *Manager) GetAllJobs() []queue.Job {
	return m.store.List()
}

// GetJobsByStatus returns jobs currently in status.
func (m *Manager) GetJobsByStatus(status queue.Status) []queue.Job {
	return m.store.List(status)
}

// QueueLength is the number of jobs waiting for a worker.
func (m *Manager) QueueLength() int {
	queued, _ := m.admission.counts()
	return queued
}

// ActiveJobCount is the number of jobs held by workers.
func (m *Manager) ActiveJobCount() int {
	_, active := m.admission.counts()
	return active
}

func (m *Manager) stoppingNow() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stopping
}

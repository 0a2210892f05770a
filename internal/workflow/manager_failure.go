package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"dubbing/internal/logging"
	"dubbing/internal/queue"
	"dubbing/internal/recovery"
	"dubbing/internal/services"
)

const errorKindTimeout = "timeout"

func (m *Manager) failJob(ctx context.Context, run *jobRun, stageName string, stageErr error) {
	logger := logging.WithContext(ctx, m.logger)
	if stageName != "" {
		logger = logger.With(logging.String(logging.FieldStage, stageName))
	}

	message := failureMessage(stageName, stageErr)
	kind := string(services.KindOf(stageErr))
	var timeout *jobTimeoutError
	if errors.As(stageErr, &timeout) {
		kind = errorKindTimeout
	}
	intervention := recovery.NeedsIntervention(stageErr) || services.KindOf(stageErr) == services.KindResource
	costMetrics := m.costFor(run.jobID)
	m.cleanupRun(ctx, run)

	now := m.now()
	job, err := m.mutateOwned(run, func(j *queue.Job) {
		j.Cost = costMetrics
		j.NeedsIntervention = intervention
		j.SetFailed(message, kind, now)
	})
	if err != nil {
		if errors.Is(err, errJobFinished) {
			m.processed.Add(1)
			return
		}
		logger.Error("failed to persist job failure", logging.Error(err))
		m.setLastError(err)
		return
	}

	m.processed.Add(1)
	m.failed.Add(1)
	m.setLastError(stageErr)

	hint := "inspect the job error and retry once the cause is fixed"
	if intervention {
		hint = "free disk space or fix the environment, then retry the job"
	}
	attrs := []logging.Attr{
		logging.String("resolved_status", string(queue.StatusFailed)),
		logging.String("error_message", message),
		logging.Alert("stage_failure"),
		logging.ErrorKind(kind),
		logging.Bool("needs_intervention", intervention),
		logging.Error(stageErr),
		logging.Hint(hint),
	}
	logging.ErrorWithContext(logger, "stage failed", "stage_failure", attrs...)

	m.events.Publish(Event{
		Type:      EventFailed,
		JobID:     job.ID,
		Status:    job.Status,
		Progress:  job.Progress,
		Message:   job.ErrorMessage,
		Timestamp: now,
	})
	m.notifyTerminal(ctx, job)
	m.observe(ctx, job)
}

func failureMessage(stageName string, err error) string {
	if err == nil {
		if stageName == "" {
			return "workflow failed without error detail"
		}
		return stageName + " failed without error detail"
	}
	return strings.TrimSpace(err.Error())
}

// jobTimeoutError fails a job that exceeded its wall-clock budget.
type jobTimeoutError struct {
	after time.Duration
}

func (e *jobTimeoutError) Error() string {
	return fmt.Sprintf("Job timed out after %s", e.after)
}

func (e *jobTimeoutError) Unwrap() error { return services.ErrTimeout }

// finishCancelled closes a run whose job was cancelled by request or shutdown.
func (m *Manager) finishCancelled(ctx context.Context, run *jobRun, reason string) {
	logger := logging.WithContext(ctx, m.logger)
	costMetrics := m.costFor(run.jobID)
	m.cleanupRun(ctx, run)
	m.processed.Add(1)

	now := m.now()
	job, err := m.mutateOwned(run, func(j *queue.Job) {
		j.Cost = costMetrics
		_ = j.Cancel(now)
	})
	if err != nil {
		// CancelJob already wrote the terminal status; keep what this run billed.
		_, _ = m.store.Mutate(run.jobID, func(j *queue.Job) error {
			if j.Attempts != run.attempt || j.Status != queue.StatusCancelled {
				return errJobFinished
			}
			j.Cost = costMetrics
			return nil
		})
		logger.Info("job run stopped",
			logging.EventType("job_cancelled"),
			logging.String("reason", reason),
		)
		return
	}

	logger.Info("job cancelled",
		logging.EventType("job_cancelled"),
		logging.String("reason", reason),
	)
	m.events.Publish(Event{
		Type:      EventCancelled,
		JobID:     job.ID,
		Status:    job.Status,
		Progress:  job.Progress,
		Message:   reason,
		Timestamp: now,
	})
	m.observe(ctx, job)
}

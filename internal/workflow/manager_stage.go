package workflow

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"dubbing/internal/logging"
	"dubbing/internal/queue"
	"dubbing/internal/services"
	"dubbing/internal/stage"
)

// stageError records which stage produced a terminal failure. Its message is
// the underlying error's so job error messages stay readable.
type stageError struct {
	stage string
	err   error
}

func (e *stageError) Error() string { return e.err.Error() }

func (e *stageError) Unwrap() error { return e.err }

func (m *Manager) executePipeline(ctx context.Context, run *jobRun, state *pipelineState) error {
	for i, st := range m.plan {
		if err := m.checkpoint(ctx, run); err != nil {
			return err
		}
		if err := m.enterStage(run, st); err != nil {
			return err
		}

		stageCtx := services.WithRequestID(services.WithStage(ctx, st.name), uuid.NewString())
		stageLogger := m.stageLogger(stageCtx)
		stageStart := m.now()
		stageLogger.Info("stage started",
			logging.EventType("stage_start"),
			logging.String("processing_status", string(st.status)),
			logging.String("stage_label", deriveStageLabel(st.name)),
		)

		if err := st.run(stageCtx, run, state); err != nil {
			return &stageError{stage: st.name, err: err}
		}

		job, err := m.advance(run, progressAfter(m.plan, i, 1))
		if err != nil {
			return err
		}
		stageLogger.Info("stage completed",
			logging.EventType("stage_complete"),
			logging.Int("progress", job.Progress),
			logging.Duration("stage_duration", m.now().Sub(stageStart)),
		)
	}
	return m.checkpoint(ctx, run)
}

// enterStage records the stage status before its collaborator is invoked.
func (m *Manager) enterStage(run *jobRun, st pipelineStage) error {
	changed := false
	job, err := m.mutateOwned(run, func(j *queue.Job) {
		if j.Status != st.status {
			j.Status = st.status
			changed = true
		}
	})
	if err != nil {
		return err
	}
	if changed {
		m.events.Publish(Event{
			Type:      EventStatus,
			JobID:     job.ID,
			Status:    job.Status,
			Progress:  job.Progress,
			Message:   deriveStageLabel(string(job.Status)),
			Timestamp: m.now(),
		})
	}
	return nil
}

// advance raises job progress, never lowering it, and refreshes the job's
// running cost from the accountant.
func (m *Manager) advance(run *jobRun, percent int) (queue.Job, error) {
	before := -1
	job, err := m.mutateOwned(run, func(j *queue.Job) {
		before = j.Progress
		j.SetProgress(percent)
		j.Cost = m.costFor(run.jobID)
	})
	if err != nil {
		return job, err
	}
	if job.Progress != before {
		m.events.Publish(Event{
			Type:      EventProgress,
			JobID:     job.ID,
			Status:    job.Status,
			Progress:  job.Progress,
			Timestamp: m.now(),
		})
	}
	return job, nil
}

func (m *Manager) updateArtifacts(run *jobRun, fn func(*queue.Artifacts)) error {
	_, err := m.mutateOwned(run, func(j *queue.Job) { fn(&j.Artifacts) })
	return err
}

func (m *Manager) finish(ctx context.Context, run *jobRun, state *pipelineState, execErr error) {
	if execErr == nil {
		m.completeJob(ctx, run, state)
		return
	}

	cause := context.Cause(ctx)
	switch {
	case errors.Is(cause, errJobCancelled), errors.Is(execErr, errJobCancelled):
		m.finishCancelled(ctx, run, "cancelled by request")
	case errors.Is(cause, errJobTimeout), errors.Is(execErr, errJobTimeout):
		m.failJob(ctx, run, "", m.timeoutError())
	case cause != nil:
		m.finishCancelled(ctx, run, "cancelled by shutdown")
	case errors.Is(execErr, errJobFinished):
		m.finishCancelled(ctx, run, "job left the pipeline")
	default:
		stageName := ""
		var se *stageError
		if errors.As(execErr, &se) {
			stageName = se.stage
		}
		m.failJob(ctx, run, stageName, execErr)
	}
}

func (m *Manager) timeoutError() error {
	return &jobTimeoutError{after: m.cfg.JobTimeout}
}

func (m *Manager) completeJob(ctx context.Context, run *jobRun, state *pipelineState) {
	logger := logging.WithContext(ctx, m.logger)
	costMetrics := m.costFor(run.jobID)
	m.cleanupRun(ctx, run)

	now := m.now()
	job, err := m.mutateOwned(run, func(j *queue.Job) {
		j.Cost = costMetrics
		j.Complete(state.output, now)
	})
	if err != nil {
		if errors.Is(err, errJobFinished) {
			m.processed.Add(1)
			logger.Info("job left the pipeline before completion", logging.EventType("job_superseded"))
			return
		}
		logger.Error("failed to persist job completion", logging.Error(err))
		m.setLastError(err)
		return
	}

	m.processed.Add(1)
	m.succeeded.Add(1)
	logger.Info("job completed",
		logging.EventType("job_complete"),
		logging.String("output_video", job.OutputVideo),
		logging.Duration("processing_time", job.ProcessingTime()),
		logging.USD("cost_usd", job.Cost.TotalUSD),
	)
	m.events.Publish(Event{
		Type:      EventCompleted,
		JobID:     job.ID,
		Status:    job.Status,
		Progress:  job.Progress,
		Message:   job.OutputVideo,
		Timestamp: now,
	})
	m.notifyTerminal(ctx, job)
	m.observe(ctx, job)
}

func (m *Manager) costFor(jobID string) queue.CostTracking {
	if m.deps.Cost == nil {
		return queue.CostTracking{}
	}
	metrics := m.deps.Cost.CostFor(jobID)
	return queue.CostTracking{
		Characters:  metrics.Characters,
		ComputeTime: metrics.ComputeTime,
		APICalls:    metrics.APICalls,
		Errors:      metrics.Errors,
		TotalUSD:    metrics.TotalUSD,
	}
}

func (m *Manager) recordUsage(ctx context.Context, kind string, usage stage.Usage) {
	if m.deps.Cost == nil {
		return
	}
	m.deps.Cost.RecordUsage(ctx, kind, usage)
}

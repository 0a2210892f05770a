package queue

import "time"

// Cancel moves a non-terminal job to CANCELLED. A cancelled job carries no error.
func (j *Job) Cancel(at time.Time) error {
	if j.Status.IsTerminal() {
		return &TransitionError{ID: j.ID, Op: "cancel", Status: j.Status}
	}
	j.Status = StatusCancelled
	j.CompletedAt = at
	j.ErrorMessage = ""
	j.ErrorKind = ""
	return nil
}

// ResetForRetry moves a FAILED job back to QUEUED with progress, error, and
// completion cleared. Cost and artifacts from the failed run are discarded.
func (j *Job) ResetForRetry() error {
	if j.Status != StatusFailed {
		return &TransitionError{ID: j.ID, Op: "retry", Status: j.Status}
	}
	j.Status = StatusQueued
	j.Progress = 0
	j.ErrorMessage = ""
	j.ErrorKind = ""
	j.NeedsIntervention = false
	j.CompletedAt = time.Time{}
	j.StartedAt = time.Time{}
	j.OutputVideo = ""
	j.Cost = CostTracking{}
	j.Artifacts = Artifacts{}
	return nil
}

// Complete marks the job COMPLETED with progress 100.
func (j *Job) Complete(output string, at time.Time) {
	j.Status = StatusCompleted
	j.Progress = 100
	j.OutputVideo = output
	j.CompletedAt = at
}

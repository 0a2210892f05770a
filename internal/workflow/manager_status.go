package workflow

import (
	"context"
	"fmt"
	"time"

	"dubbing/internal/breaker"
	"dubbing/internal/queue"
	"dubbing/internal/stage"
)

// Statistics is a point-in-time aggregation over the job store.
type Statistics struct {
	QueueLength           int                `json:"queue_length"`
	ActiveJobs            int                `json:"active_jobs"`
	TotalJobs             int                `json:"total_jobs"`
	SuccessRate           float64            `json:"success_rate"`
	AverageProcessingTime time.Duration      `json:"average_processing_time"`
	StatusCounts          queue.StatusCounts `json:"status_counts"`
}

// Statistics returns queue and outcome aggregates.
func (m *Manager) Statistics() Statistics {
	queued, active := m.admission.counts()
	jobs := m.store.List()

	counts := make(queue.StatusCounts, len(queue.AllStatuses()))
	for _, status := range queue.AllStatuses() {
		counts[status] = 0
	}
	var (
		total     time.Duration
		completed int
	)
	for _, job := range jobs {
		counts[job.Status]++
		if job.Status == queue.StatusCompleted {
			total += job.ProcessingTime()
			completed++
		}
	}

	stats := Statistics{
		QueueLength:  queued,
		ActiveJobs:   active,
		TotalJobs:    len(jobs),
		StatusCounts: counts,
	}
	if finished := counts[queue.StatusCompleted] + counts[queue.StatusFailed]; finished > 0 {
		stats.SuccessRate = float64(counts[queue.StatusCompleted]) / float64(finished)
	}
	if completed > 0 {
		stats.AverageProcessingTime = total / time.Duration(completed)
	}
	return stats
}

// HealthReport summarizes whether the pipeline is fit to accept work.
type HealthReport struct {
	Healthy            bool               `json:"healthy"`
	Running            bool               `json:"running"`
	TotalJobsProcessed int64              `json:"total_jobs_processed"`
	SuccessfulJobs     int64              `json:"successful_jobs"`
	FailedJobs         int64              `json:"failed_jobs"`
	FailureRate        float64            `json:"failure_rate"`
	Breakers           []breaker.Snapshot `json:"breakers"`
	Dependencies       []stage.Health     `json:"dependencies,omitempty"`
	Reasons            []string           `json:"reasons,omitempty"`
	LastError          string             `json:"last_error,omitempty"`
}

// Health reports cumulative counters and breaker state. The pipeline is
// unhealthy while any breaker is open or the failure rate exceeds the
// configured ceiling (once enough jobs finished to judge).
func (m *Manager) Health(ctx context.Context) HealthReport {
	report := HealthReport{
		Running:            m.Running(),
		TotalJobsProcessed: m.processed.Load(),
		SuccessfulJobs:     m.succeeded.Load(),
		FailedJobs:         m.failed.Load(),
		Breakers:           m.breakers.Snapshots(),
		Dependencies:       m.dependencyHealth(ctx),
	}

	finished := report.SuccessfulJobs + report.FailedJobs
	if finished > 0 {
		report.FailureRate = float64(report.FailedJobs) / float64(finished)
	}

	for _, name := range m.breakers.Open() {
		report.Reasons = append(report.Reasons, fmt.Sprintf("circuit open: %s", name))
	}
	minSamples := int64(max(m.health.MinSamples, 1))
	if finished >= minSamples && m.health.MaxFailureRate > 0 && report.FailureRate > m.health.MaxFailureRate {
		report.Reasons = append(report.Reasons, fmt.Sprintf("failure rate %.2f exceeds %.2f", report.FailureRate, m.health.MaxFailureRate))
	}
	report.Healthy = len(report.Reasons) == 0

	m.mu.RLock()
	if m.lastErr != nil {
		report.LastError = m.lastErr.Error()
	}
	m.mu.RUnlock()
	return report
}

func (m *Manager) dependencyHealth(ctx context.Context) []stage.Health {
	return stage.CollectHealth(ctx, m.deps.Video, m.deps.Transcribe, m.deps.Speech, m.deps.Audio, m.deps.Assembly, m.deps.Quality)
}

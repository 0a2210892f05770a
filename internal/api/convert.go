package api

import (
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"dubbing/internal/archive"
	"dubbing/internal/cost"
	"dubbing/internal/queue"
	"dubbing/internal/workflow"
)

// FromJob converts a job snapshot to its API representation.
func FromJob(job queue.Job) Job {
	dto := Job{
		ID:                job.ID,
		Status:            string(job.Status),
		Phase:             string(job.Status.Phase()),
		Progress:          job.Progress,
		InputVideo:        job.InputVideo,
		OutputVideo:       job.OutputVideo,
		TargetLanguage:    job.TargetLanguage,
		CreatedAt:         formatTime(job.CreatedAt),
		UpdatedAt:         formatTime(job.UpdatedAt),
		StartedAt:         formatTime(job.StartedAt),
		CompletedAt:       formatTime(job.CompletedAt),
		ProcessingSeconds: job.ProcessingTime().Seconds(),
		ErrorMessage:      job.ErrorMessage,
		ErrorKind:         job.ErrorKind,
		NeedsIntervention: job.NeedsIntervention,
		Attempts:          job.Attempts,
		Cost: Cost{
			Characters:     job.Cost.Characters,
			ComputeSeconds: job.Cost.ComputeTime.Seconds(),
			APICalls:       job.Cost.APICalls,
			Errors:         job.Cost.Errors,
			TotalUSD:       job.Cost.TotalUSD,
		},
		Artifacts: Artifacts{
			SourceLanguage:  job.Artifacts.SourceLanguage,
			SegmentCount:    job.Artifacts.SegmentCount,
			Synthesized:     job.Artifacts.SynthesizedSegments,
			ProvidersUsed:   append([]string(nil), job.Artifacts.ProvidersUsed...),
			QualityScore:    job.Artifacts.QualityScore,
			QualityIssues:   append([]string(nil), job.Artifacts.QualityIssues...),
			Recommendations: append([]string(nil), job.Artifacts.QualityRecommendation...),
		},
	}
	if job.Status.IsActive() {
		dto.Stage = stageLabel(string(job.Status))
	}
	return dto
}

// FromJobs converts a slice of job snapshots.
func FromJobs(jobs []queue.Job) []Job {
	out := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, FromJob(job))
	}
	return out
}

// FromStatistics converts manager statistics and the cost summary.
func FromStatistics(stats workflow.Statistics, costs cost.Summary) Stats {
	counts := make(map[string]int, len(stats.StatusCounts))
	for status, n := range stats.StatusCounts {
		counts[string(status)] = n
	}
	out := Stats{
		QueueLength:              stats.QueueLength,
		ActiveJobs:               stats.ActiveJobs,
		TotalJobs:                stats.TotalJobs,
		SuccessRate:              stats.SuccessRate,
		AverageProcessingSeconds: stats.AverageProcessingTime.Seconds(),
		StatusCounts:             counts,
		TotalCostUSD:             costs.TotalUSD,
	}
	if len(costs.ByProvider) > 0 {
		out.CostByProvider = make(map[string]float64, len(costs.ByProvider))
		for provider, usd := range costs.ByProvider {
			out.CostByProvider[provider] = usd
		}
	}
	return out
}

// FromHealth converts a manager health report.
func FromHealth(report workflow.HealthReport) Health {
	out := Health{
		Healthy:            report.Healthy,
		Running:            report.Running,
		TotalJobsProcessed: report.TotalJobsProcessed,
		SuccessfulJobs:     report.SuccessfulJobs,
		FailedJobs:         report.FailedJobs,
		FailureRate:        report.FailureRate,
		Breakers:           make([]Breaker, 0, len(report.Breakers)),
		Reasons:            append([]string(nil), report.Reasons...),
		LastError:          report.LastError,
	}
	for _, snap := range report.Breakers {
		out.Breakers = append(out.Breakers, Breaker{
			Name:                snap.Name,
			State:               snap.State,
			ConsecutiveFailures: snap.ConsecutiveFailures,
			TotalFailures:       snap.TotalFailures,
			Rejected:            snap.Rejected,
			OpenedAt:            formatTime(snap.OpenedAt),
		})
	}
	for _, dep := range report.Dependencies {
		out.Dependencies = append(out.Dependencies, Dependency{Name: dep.Name, Ready: dep.Ready, Detail: dep.Detail})
	}
	return out
}

// FromEvent converts one workflow event.
func FromEvent(evt workflow.Event) Event {
	return Event{
		Seq:        evt.Seq,
		Timestamp:  formatTime(evt.Timestamp),
		Type:       string(evt.Type),
		JobID:      evt.JobID,
		Status:     string(evt.Status),
		Progress:   evt.Progress,
		Message:    evt.Message,
		Dependency: evt.Dependency,
	}
}

// FromEvents converts events and computes the next cursor. When no events are
// returned the cursor stays at since.
func FromEvents(events []workflow.Event, since int64) EventsResponse {
	resp := EventsResponse{Events: make([]Event, 0, len(events)), Next: since}
	for _, evt := range events {
		resp.Events = append(resp.Events, FromEvent(evt))
		if evt.Seq > resp.Next {
			resp.Next = evt.Seq
		}
	}
	return resp
}

// FromHistory converts archive entries.
func FromHistory(entries []archive.Entry) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, HistoryEntry{
			ID:                e.ID,
			JobID:             e.JobID,
			Attempt:           e.Attempt,
			Status:            string(e.Status),
			InputVideo:        e.InputVideo,
			OutputVideo:       e.OutputVideo,
			TargetLanguage:    e.TargetLanguage,
			ErrorMessage:      e.ErrorMessage,
			ErrorKind:         e.ErrorKind,
			NeedsIntervention: e.NeedsIntervention,
			Characters:        e.Characters,
			APICalls:          e.APICalls,
			CostUSD:           e.CostUSD,
			Providers:         append([]string(nil), e.Providers...),
			CompletedAt:       formatTime(e.CompletedAt),
			RecordedAt:        formatTime(e.RecordedAt),
		})
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func stageLabel(status string) string {
	status = strings.TrimSpace(strings.ReplaceAll(status, "_", " "))
	if status == "" {
		return ""
	}
	return cases.Title(language.English).String(status)
}

package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a dubbing job.
type Status string

const (
	StatusQueued             Status = "queued"
	StatusExtractingAudio    Status = "extracting_audio"
	StatusTranscribing       Status = "transcribing"
	StatusTranslating        Status = "translating"
	StatusSynthesizingSpeech Status = "synthesizing_speech"
	StatusAssembling         Status = "assembling"
	StatusCompleted          Status = "completed"
	StatusFailed             Status = "failed"
	StatusCancelled          Status = "cancelled"
)

// Phase is the coarse grouping of statuses for consumers that only care
// whether a job is waiting, running, or finished.
type Phase string

const (
	PhasePending  Phase = "pending"
	PhaseActive   Phase = "active"
	PhaseTerminal Phase = "terminal"
)

var allStatuses = []Status{
	StatusQueued,
	StatusExtractingAudio,
	StatusTranscribing,
	StatusTranslating,
	StatusSynthesizingSpeech,
	StatusAssembling,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var processingStatuses = map[Status]struct{}{
	StatusExtractingAudio:    {},
	StatusTranscribing:       {},
	StatusTranslating:        {},
	StatusSynthesizingSpeech: {},
	StatusAssembling:         {},
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus converts a user supplied value into a Status. Upper-case and
// hyphenated spellings (EXTRACTING-AUDIO) are accepted.
func ParseStatus(value string) (Status, bool) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	if normalized == "canceled" {
		normalized = string(StatusCancelled)
	}
	status := Status(normalized)
	_, ok := statusSet[status]
	return status, ok
}

// IsTerminal reports whether the status is COMPLETED, FAILED, or CANCELLED.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// IsActive reports whether a worker is currently driving the job.
func (s Status) IsActive() bool {
	_, ok := processingStatuses[s]
	return ok
}

// Phase groups the status into pending, active, or terminal.
func (s Status) Phase() Phase {
	switch {
	case s.IsTerminal():
		return PhaseTerminal
	case s.IsActive():
		return PhaseActive
	default:
		return PhasePending
	}
}

// CostTracking accumulates billable usage for one job.
type CostTracking struct {
	Characters  int           `json:"characters"`
	ComputeTime time.Duration `json:"compute_time"`
	APICalls    int           `json:"api_calls"`
	Errors      int           `json:"errors"`
	TotalUSD    float64       `json:"total_usd"`
}

// Add returns the sum of two cost accumulators.
func (c CostTracking) Add(other CostTracking) CostTracking {
	return CostTracking{
		Characters:  c.Characters + other.Characters,
		ComputeTime: c.ComputeTime + other.ComputeTime,
		APICalls:    c.APICalls + other.APICalls,
		Errors:      c.Errors + other.Errors,
		TotalUSD:    c.TotalUSD + other.TotalUSD,
	}
}

// Artifacts records references to intermediate outputs. The orchestrator
// never owns the underlying files.
type Artifacts struct {
	AudioPath             string   `json:"audio_path,omitempty"`
	SourceLanguage        string   `json:"source_language,omitempty"`
	TranscriptConfidence  float64  `json:"transcript_confidence,omitempty"`
	SegmentCount          int      `json:"segment_count,omitempty"`
	SynthesizedSegments   int      `json:"synthesized_segments,omitempty"`
	ProvidersUsed         []string `json:"providers_used,omitempty"`
	AudioTrackPath        string   `json:"audio_track_path,omitempty"`
	QualityScore          float64  `json:"quality_score,omitempty"`
	QualityIssues         []string `json:"quality_issues,omitempty"`
	QualityRecommendation []string `json:"quality_recommendations,omitempty"`
}

func (a Artifacts) clone() Artifacts {
	out := a
	out.ProvidersUsed = append([]string(nil), a.ProvidersUsed...)
	out.QualityIssues = append([]string(nil), a.QualityIssues...)
	out.QualityRecommendation = append([]string(nil), a.QualityRecommendation...)
	return out
}

// Job is the canonical state of one dubbing request.
type Job struct {
	ID                string       `json:"id"`
	Status            Status       `json:"status"`
	Progress          int          `json:"progress"`
	InputVideo        string       `json:"input_video"`
	OutputVideo       string       `json:"output_video,omitempty"`
	TargetLanguage    string       `json:"target_language"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
	StartedAt         time.Time    `json:"started_at,omitzero"`
	CompletedAt       time.Time    `json:"completed_at,omitzero"`
	ErrorMessage      string       `json:"error_message,omitempty"`
	ErrorKind         string       `json:"error_kind,omitempty"`
	NeedsIntervention bool         `json:"needs_intervention,omitempty"`
	Attempts          int          `json:"attempts"`
	Cost              CostTracking `json:"cost"`
	Artifacts         Artifacts    `json:"artifacts"`
}

// Clone returns a deep copy of the job.
func (j Job) Clone() Job {
	out := j
	out.Artifacts = j.Artifacts.clone()
	return out
}

// IsTerminal reports whether the job reached a final status.
func (j Job) IsTerminal() bool {
	return j.Status.IsTerminal()
}

// ProcessingTime is the wall-clock span between start and completion.
func (j Job) ProcessingTime() time.Duration {
	if j.StartedAt.IsZero() || j.CompletedAt.IsZero() {
		return 0
	}
	return j.CompletedAt.Sub(j.StartedAt)
}

// SetFailed marks the job failed with a human readable message.
func (j *Job) SetFailed(message, kind string, at time.Time) {
	j.Status = StatusFailed
	j.ErrorMessage = strings.TrimSpace(message)
	if j.ErrorMessage == "" {
		j.ErrorMessage = "Job failed"
	}
	j.ErrorKind = kind
	j.CompletedAt = at
}

// SetProgress raises progress, never lowering it while the job is running.
// 100 is reserved for completion.
func (j *Job) SetProgress(percent int) {
	if percent > 99 {
		percent = 99
	}
	if percent > j.Progress {
		j.Progress = percent
	}
}

// StatusCounts tallies jobs per status.
type StatusCounts map[Status]int

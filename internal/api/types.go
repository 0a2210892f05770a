package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Job describes a dubbing job in a transport-friendly format.
type Job struct {
	ID                string    `json:"id"`
	Status            string    `json:"status"`
	Phase             string    `json:"phase"`
	Stage             string    `json:"stage,omitempty"`
	Progress          int       `json:"progress"`
	InputVideo        string    `json:"inputVideo"`
	OutputVideo       string    `json:"outputVideo,omitempty"`
	TargetLanguage    string    `json:"targetLanguage"`
	CreatedAt         string    `json:"createdAt,omitempty"`
	UpdatedAt         string    `json:"updatedAt,omitempty"`
	StartedAt         string    `json:"startedAt,omitempty"`
	CompletedAt       string    `json:"completedAt,omitempty"`
	ProcessingSeconds float64   `json:"processingSeconds,omitempty"`
	ErrorMessage      string    `json:"errorMessage,omitempty"`
	ErrorKind         string    `json:"errorKind,omitempty"`
	NeedsIntervention bool      `json:"needsIntervention"`
	Attempts          int       `json:"attempts"`
	Cost              Cost      `json:"cost"`
	Artifacts         Artifacts `json:"artifacts"`
}

// Cost is the accumulated usage of one job.
type Cost struct {
	Characters     int     `json:"characters"`
	ComputeSeconds float64 `json:"computeSeconds"`
	APICalls       int     `json:"apiCalls"`
	Errors         int     `json:"errors"`
	TotalUSD       float64 `json:"totalUsd"`
}

// Artifacts references intermediate outputs.
type Artifacts struct {
	SourceLanguage  string   `json:"sourceLanguage,omitempty"`
	SegmentCount    int      `json:"segmentCount,omitempty"`
	Synthesized     int      `json:"synthesizedSegments,omitempty"`
	ProvidersUsed   []string `json:"providersUsed,omitempty"`
	QualityScore    float64  `json:"qualityScore,omitempty"`
	QualityIssues   []string `json:"qualityIssues,omitempty"`
	Recommendations []string `json:"qualityRecommendations,omitempty"`
}

// SubmitRequest is the body of POST /api/jobs.
type SubmitRequest struct {
	InputVideo     string `json:"inputVideo"`
	TargetLanguage string `json:"targetLanguage,omitempty"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job Job `json:"job"`
}

// JobListResponse wraps a job listing.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// Stats summarizes queue and outcome aggregates.
type Stats struct {
	QueueLength              int                `json:"queueLength"`
	ActiveJobs               int                `json:"activeJobs"`
	TotalJobs                int                `json:"totalJobs"`
	SuccessRate              float64            `json:"successRate"`
	AverageProcessingSeconds float64            `json:"averageProcessingSeconds"`
	StatusCounts             map[string]int     `json:"statusCounts"`
	TotalCostUSD             float64            `json:"totalCostUsd"`
	CostByProvider           map[string]float64 `json:"costByProvider,omitempty"`
}

// Breaker mirrors a circuit breaker snapshot.
type Breaker struct {
	Name                string `json:"name"`
	State               string `json:"state"`
	ConsecutiveFailures int    `json:"consecutiveFailures"`
	TotalFailures       int64  `json:"totalFailures"`
	Rejected            int64  `json:"rejected"`
	OpenedAt            string `json:"openedAt,omitempty"`
}

// Dependency mirrors collaborator readiness.
type Dependency struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// Health reports whether the pipeline is fit to accept work.
type Health struct {
	Healthy            bool         `json:"healthy"`
	Running            bool         `json:"running"`
	TotalJobsProcessed int64        `json:"totalJobsProcessed"`
	SuccessfulJobs     int64        `json:"successfulJobs"`
	FailedJobs         int64        `json:"failedJobs"`
	FailureRate        float64      `json:"failureRate"`
	Breakers           []Breaker    `json:"breakers"`
	Dependencies       []Dependency `json:"dependencies,omitempty"`
	Reasons            []string     `json:"reasons,omitempty"`
	LastError          string       `json:"lastError,omitempty"`
}

// Event is one sequenced job event.
type Event struct {
	Seq        int64  `json:"seq"`
	Timestamp  string `json:"timestamp"`
	Type       string `json:"type"`
	JobID      string `json:"jobId,omitempty"`
	Status     string `json:"status,omitempty"`
	Progress   int    `json:"progress,omitempty"`
	Message    string `json:"message,omitempty"`
	Dependency string `json:"dependency,omitempty"`
}

// EventsResponse carries events newer than the requested cursor. Next is the
// cursor for the following request.
type EventsResponse struct {
	Events []Event `json:"events"`
	Next   int64   `json:"next"`
}

// HistoryEntry is one archived terminal attempt.
type HistoryEntry struct {
	ID                int64    `json:"id"`
	JobID             string   `json:"jobId"`
	Attempt           int      `json:"attempt"`
	Status            string   `json:"status"`
	InputVideo        string   `json:"inputVideo"`
	OutputVideo       string   `json:"outputVideo,omitempty"`
	TargetLanguage    string   `json:"targetLanguage,omitempty"`
	ErrorMessage      string   `json:"errorMessage,omitempty"`
	ErrorKind         string   `json:"errorKind,omitempty"`
	NeedsIntervention bool     `json:"needsIntervention"`
	Characters        int      `json:"characters"`
	APICalls          int      `json:"apiCalls"`
	CostUSD           float64  `json:"costUsd"`
	Providers         []string `json:"providers,omitempty"`
	CompletedAt       string   `json:"completedAt,omitempty"`
	RecordedAt        string   `json:"recordedAt"`
}

// HistoryResponse wraps archived entries, newest first.
type HistoryResponse struct {
	Entries []HistoryEntry `json:"entries"`
}

// ErrorResponse is returned with every non-2xx status.
type ErrorResponse struct {
	Error string `json:"error"`
}

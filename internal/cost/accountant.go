package cost

import (
	"context"
	"log/slog"
	"sync"

	"dubbing/internal/config"
	"dubbing/internal/logging"
	"dubbing/internal/stage"
)

// Usage kinds reported by the workflow.
const (
	KindSynthesis     = stage.UsageSynthesis
	KindTranscription = stage.UsageTranscription
	KindTranslation   = stage.UsageTranslation
	KindCompute       = stage.UsageCompute
)

// Pricing converts usage into dollars.
type Pricing struct {
	// PerCharacter is keyed by synthesis provider id.
	PerCharacter     map[string]float64
	ComputePerMinute float64
}

// PricingFromConfig derives pricing from provider and compute settings.
func PricingFromConfig(cfg *config.Config) Pricing {
	pricing := Pricing{PerCharacter: make(map[string]float64)}
	if cfg == nil {
		return pricing
	}
	for _, provider := range cfg.Services.Providers {
		pricing.PerCharacter[provider.ID] = provider.PricePerChar
	}
	pricing.ComputePerMinute = cfg.Services.ComputePricePerMinute
	return pricing
}

// Summary aggregates cost across every job the accountant has seen.
type Summary struct {
	Jobs       int                `json:"jobs"`
	Characters int                `json:"characters"`
	APICalls   int                `json:"api_calls"`
	Errors     int                `json:"errors"`
	TotalUSD   float64            `json:"total_usd"`
	ByProvider map[string]float64 `json:"by_provider,omitempty"`
}

// Accountant accumulates usage per job. It is safe for concurrent use by
// synthesis workers.
type Accountant struct {
	pricing Pricing
	logger  *slog.Logger

	mu         sync.Mutex
	jobs       map[string]stage.CostMetrics
	seen       map[string]struct{}
	byProvider map[string]float64
	forgotten  stage.CostMetrics
}

// NewAccountant constructs an accountant with the given pricing.
func NewAccountant(pricing Pricing, logger *slog.Logger) *Accountant {
	if logger == nil {
		logger = logging.NewNop()
	}
	if pricing.PerCharacter == nil {
		pricing.PerCharacter = make(map[string]float64)
	}
	return &Accountant{
		pricing:    pricing,
		logger:     logger,
		jobs:       make(map[string]stage.CostMetrics),
		seen:       make(map[string]struct{}),
		byProvider: make(map[string]float64),
	}
}

// RecordUsage adds usage to the job's running totals.
func (a *Accountant) RecordUsage(ctx context.Context, kind string, usage stage.Usage) {
	if a == nil || usage.JobID == "" {
		return
	}
	price := a.price(kind, usage)

	a.mu.Lock()
	metrics := a.jobs[usage.JobID]
	metrics.Characters += usage.Characters
	metrics.ComputeTime += usage.Duration
	metrics.APICalls += usage.Calls
	metrics.Errors += usage.Errors
	metrics.TotalUSD += price
	a.jobs[usage.JobID] = metrics
	a.seen[usage.JobID] = struct{}{}
	if usage.Provider != "" && price > 0 {
		a.byProvider[usage.Provider] += price
	}
	a.mu.Unlock()

	if a.logger.Enabled(ctx, slog.LevelDebug) {
		logging.WithContext(ctx, a.logger).Debug("usage recorded",
			logging.String("kind", kind),
			logging.String("provider", usage.Provider),
			logging.Int("characters", usage.Characters),
			logging.Int("calls", usage.Calls),
			logging.USD("usd", price),
		)
	}
}

func (a *Accountant) price(kind string, usage stage.Usage) float64 {
	switch kind {
	case KindSynthesis:
		return float64(usage.Characters) * a.pricing.PerCharacter[usage.Provider]
	case KindCompute, KindTranscription, KindTranslation:
		return usage.Duration.Minutes() * a.pricing.ComputePerMinute
	default:
		return 0
	}
}

// CostFor returns the running totals for a job.
func (a *Accountant) CostFor(jobID string) stage.CostMetrics {
	if a == nil {
		return stage.CostMetrics{}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.jobs[jobID]
}

// Forget drops per-job totals (used when a job is retried from scratch).
// The job still counts towards Summary.
func (a *Accountant) Forget(jobID string) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	metrics, ok := a.jobs[jobID]
	if !ok {
		return
	}
	a.forgotten.Characters += metrics.Characters
	a.forgotten.APICalls += metrics.APICalls
	a.forgotten.Errors += metrics.Errors
	a.forgotten.TotalUSD += metrics.TotalUSD
	delete(a.jobs, jobID)
}

// Summary reports totals across all jobs, including forgotten attempts. Jobs
// counts distinct job ids that ever recorded usage.
func (a *Accountant) Summary() Summary {
	if a == nil {
		return Summary{}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	summary := Summary{
		Characters: a.forgotten.Characters,
		APICalls:   a.forgotten.APICalls,
		Errors:     a.forgotten.Errors,
		TotalUSD:   a.forgotten.TotalUSD,
		Jobs:       len(a.seen),
		ByProvider: make(map[string]float64, len(a.byProvider)),
	}
	for _, metrics := range a.jobs {
		summary.Characters += metrics.Characters
		summary.APICalls += metrics.APICalls
		summary.Errors += metrics.Errors
		summary.TotalUSD += metrics.TotalUSD
	}
	for provider, usd := range a.byProvider {
		summary.ByProvider[provider] = usd
	}
	return summary
}

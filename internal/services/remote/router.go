package remote

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"dubbing/internal/config"
	"dubbing/internal/logging"
	"dubbing/internal/stage"
)

type routeRequest struct {
	JobID      string   `json:"job_id"`
	Language   string   `json:"language"`
	Characters int      `json:"characters"`
	Providers  []string `json:"providers"`
}

type routeResponse struct {
	Provider string `json:"provider"`
}

// Router selects a synthesis provider per segment and performs synthesis
// against it. Provider order follows configuration; the first entry is the
// default when no routing service is configured or it fails.
type Router struct {
	router    *client
	providers []*provider
	byID      map[string]*provider
	logger    *slog.Logger
}

// NewRouter builds a router over the configured providers.
func NewRouter(cfg *config.Config, logger *slog.Logger, opts ...ClientOption) (*Router, error) {
	if cfg == nil {
		return nil, fmt.Errorf("router: config is required")
	}
	if len(cfg.Services.Providers) == 0 {
		return nil, fmt.Errorf("router: at least one provider is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	o := applyClientOptions(opts)
	timeout := o.timeout
	if timeout <= 0 {
		timeout = cfg.RequestTimeout()
	}

	r := &Router{
		byID:   make(map[string]*provider, len(cfg.Services.Providers)),
		logger: logging.NewComponentLogger(logger, "speech-router"),
	}
	if url := strings.TrimSpace(cfg.Services.RouterURL); url != "" {
		r.router = newClient("router", url, o.apiKey, timeout, o.httpClient)
	}
	for _, pc := range cfg.Services.Providers {
		id := strings.ToLower(strings.TrimSpace(pc.ID))
		if id == "" {
			return nil, fmt.Errorf("router: provider id is required")
		}
		if _, dup := r.byID[id]; dup {
			return nil, fmt.Errorf("router: duplicate provider %q", id)
		}
		p := &provider{
			id:       id,
			fallback: strings.ToLower(strings.TrimSpace(pc.Fallback)),
			client:   newClient("synthesis-"+id, pc.URL, pc.APIKey, timeout, o.httpClient),
		}
		r.providers = append(r.providers, p)
		r.byID[id] = p
	}
	return r, nil
}

// SelectProvider asks the routing service for a provider, falling back to
// the first configured provider.
func (r *Router) SelectProvider(ctx context.Context, req stage.SynthesisRequest) (string, error) {
	def := r.providers[0].id
	if r.router == nil {
		return def, nil
	}
	var resp routeResponse
	err := r.router.postJSON(ctx, "/route", routeRequest{
		JobID:      req.JobID,
		Language:   req.Language,
		Characters: len([]rune(req.Segment.Translated)),
		Providers:  r.Providers(),
	}, &resp)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		logging.WarnWithContext(r.logger, "routing service unavailable; using default provider", "router_unavailable",
			logging.JobID(req.JobID),
			logging.String("provider", def),
			logging.Error(err),
			logging.Impact("segment routed to default provider"),
		)
		return def, nil
	}
	id := strings.ToLower(strings.TrimSpace(resp.Provider))
	if _, ok := r.byID[id]; !ok {
		return "", fmt.Errorf("router: unknown provider %q", resp.Provider)
	}
	return id, nil
}

// Synthesize renders one segment with providerID and reports usage for the
// attempt whether or not it succeeds.
func (r *Router) Synthesize(ctx context.Context, req stage.SynthesisRequest, providerID, workDir string, report stage.UsageReporter) (stage.AudioSegment, error) {
	p, ok := r.byID[strings.ToLower(providerID)]
	if !ok {
		return stage.AudioSegment{}, fmt.Errorf("router: unknown provider %q", providerID)
	}
	start := time.Now()
	segment, chars, err := p.synthesize(ctx, req, workDir)
	if report != nil {
		usage := stage.Usage{
			JobID:      req.JobID,
			Provider:   p.id,
			Characters: chars,
			Duration:   elapsedSince(start),
			Calls:      1,
		}
		if err != nil {
			usage.Characters = 0
			usage.Errors = 1
		}
		report(usage)
	}
	return segment, err
}

// Fallback returns the configured fallback for providerID.
func (r *Router) Fallback(providerID string) (string, bool) {
	p, ok := r.byID[strings.ToLower(providerID)]
	if !ok || p.fallback == "" || p.fallback == p.id {
		return "", false
	}
	if _, ok := r.byID[p.fallback]; !ok {
		return "", false
	}
	return p.fallback, true
}

// Providers lists provider ids in configuration order.
func (r *Router) Providers() []string {
	ids := make([]string, 0, len(r.providers))
	for _, p := range r.providers {
		ids = append(ids, p.id)
	}
	return ids
}

// HealthCheck reports the first unhealthy provider, or ready when all respond.
func (r *Router) HealthCheck(ctx context.Context) stage.Health {
	for _, p := range r.providers {
		if h := p.client.health(ctx); !h.Ready {
			return stage.Unhealthy("speech-router", fmt.Sprintf("%s: %s", p.id, h.Detail))
		}
	}
	return stage.Healthy("speech-router")
}

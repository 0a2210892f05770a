package remote

import (
	"context"
	"strings"

	"dubbing/internal/stage"
)

type validateRequest struct {
	OutputVideo string `json:"output_video"`
}

type validateResponse struct {
	PassesThreshold bool     `json:"passes_threshold"`
	OverallScore    float64  `json:"overall_score"`
	Issues          []string `json:"issues"`
	Recommendations []string `json:"recommendations"`
}

// QualityGate asks the validation service to score a finished video.
type QualityGate struct {
	client *client
}

// NewQualityGate builds a quality gate client for baseURL.
func NewQualityGate(baseURL string, opts ...ClientOption) *QualityGate {
	o := applyClientOptions(opts)
	return &QualityGate{client: newClient("quality", baseURL, o.apiKey, o.timeout, o.httpClient)}
}

// Validate scores outputVideo.
func (q *QualityGate) Validate(ctx context.Context, outputVideo string) (stage.QualityReport, error) {
	var resp validateResponse
	if err := q.client.postJSON(ctx, "/validate", validateRequest{OutputVideo: outputVideo}, &resp); err != nil {
		return stage.QualityReport{}, err
	}
	return stage.QualityReport{
		PassesThreshold: resp.PassesThreshold,
		OverallScore:    resp.OverallScore,
		Issues:          trimAll(resp.Issues),
		Recommendations: trimAll(resp.Recommendations),
	}, nil
}

// HealthCheck probes the validation service.
func (q *QualityGate) HealthCheck(ctx context.Context) stage.Health {
	return q.client.health(ctx)
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

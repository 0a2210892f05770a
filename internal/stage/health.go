package stage

import (
	"context"
	"sort"
)

// Health summarizes the readiness of a collaborator.
type Health struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// HealthChecker is implemented by collaborators that can report readiness.
type HealthChecker interface {
	HealthCheck(ctx context.Context) Health
}

// Healthy constructs a ready Health record.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy constructs an unhealthy Health record with context detail.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}

// CollectHealth asks every collaborator that implements HealthChecker for
// its readiness. A collaborator serving several roles is reported once, and
// results are ordered by name.
func CollectHealth(ctx context.Context, collaborators ...any) []Health {
	seen := make(map[string]struct{}, len(collaborators))
	var out []Health
	for _, candidate := range collaborators {
		checker, ok := candidate.(HealthChecker)
		if !ok {
			continue
		}
		health := checker.HealthCheck(ctx)
		if _, dup := seen[health.Name]; dup {
			continue
		}
		seen[health.Name] = struct{}{}
		out = append(out, health)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

package preflight

import (
	"context"
	"fmt"
	"strings"

	"dubbing/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunLocal executes the filesystem and binary checks the daemon requires
// before accepting work.
func RunLocal(cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}
	results := []Result{
		CheckDirectoryAccess("Temp directory", cfg.Paths.TempDir),
		CheckFreeSpace("Temp free space", cfg.Paths.TempDir, MinFreeBytes),
	}
	return append(results, CheckMediaTools(cfg)...)
}

// RunAll executes local checks plus reachability of every configured
// collaborator service. Unset endpoints are skipped.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	results := RunLocal(cfg)
	if cfg == nil {
		return results
	}

	endpoints := []struct {
		name string
		url  string
	}{
		{"Transcription service", cfg.Services.TranscriptionURL},
		{"Translation service", cfg.Services.TranslationURL},
		{"Quality service", cfg.Services.QualityURL},
		{"Speech router", cfg.Services.RouterURL},
	}
	for _, endpoint := range endpoints {
		if strings.TrimSpace(endpoint.url) == "" {
			continue
		}
		results = append(results, CheckEndpoint(ctx, endpoint.name, endpoint.url, ""))
	}
	for _, provider := range cfg.Services.Providers {
		if strings.TrimSpace(provider.URL) == "" {
			continue
		}
		results = append(results, CheckEndpoint(ctx, "Provider "+provider.ID, provider.URL, provider.APIKey))
	}
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, result := range results {
		if !result.Passed {
			failed = append(failed, result)
		}
	}
	return failed
}

// Err summarizes failed checks as one error, or nil when all passed.
func Err(results []Result) error {
	failed := Failed(results)
	if len(failed) == 0 {
		return nil
	}
	parts := make([]string, 0, len(failed))
	for _, result := range failed {
		parts = append(parts, result.Name+": "+result.Detail)
	}
	return fmt.Errorf("preflight failed: %s", strings.Join(parts, "; "))
}

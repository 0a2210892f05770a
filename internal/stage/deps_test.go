package stage

import (
	"context"
	"testing"
)

func TestDependenciesValidateReportsMissingCollaborator(t *testing.T) {
	if err := (Dependencies{}).Validate(); err == nil || err.Error() != "video processor is required" {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestHealthConstructors(t *testing.T) {
	if h := Healthy("ffmpeg"); !h.Ready || h.Name != "ffmpeg" {
		t.Fatalf("unexpected healthy record: %+v", h)
	}
	if h := Unhealthy("ffmpeg", "missing"); h.Ready || h.Detail != "missing" {
		t.Fatalf("unexpected unhealthy record: %+v", h)
	}
}

type fixedHealth Health

func (f fixedHealth) HealthCheck(context.Context) Health { return Health(f) }

func TestCollectHealthDeduplicatesAndSorts(t *testing.T) {
	ffmpeg := fixedHealth(Healthy("ffmpeg"))
	quality := fixedHealth(Unhealthy("quality", "connection refused"))

	got := CollectHealth(context.Background(), quality, ffmpeg, ffmpeg, "not a checker", nil)
	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %+v", got)
	}
	if got[0].Name != "ffmpeg" || got[1].Name != "quality" || got[1].Ready {
		t.Fatalf("unexpected order or readiness: %+v", got)
	}
}

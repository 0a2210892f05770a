package main

import (
	"strings"
	"testing"

	"dubbing/internal/api"
)

func TestStatsRendersCosts(t *testing.T) {
	_, srv := newFakeDaemon(t, "")
	out, _, err := runCLI(t, []string{"stats"}, srv.URL, writeTestConfig(t, ""))
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	requireContains(t, out, "50.0%")
	requireContains(t, out, "$0.1250")
	requireContains(t, out, "cloud")
	if strings.Index(out, "completed") > strings.Index(out, "queued") {
		t.Fatalf("status counts should be sorted:\n%s", out)
	}
}

func TestHealthReportsUnhealthyPipeline(t *testing.T) {
	fd, srv := newFakeDaemon(t, "")
	cfgPath := writeTestConfig(t, "")

	out, _, err := runCLI(t, []string{"health"}, srv.URL, cfgPath)
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	requireContains(t, out, "[OK] Healthy")
	requireContains(t, out, "transcription")

	fd.mu.Lock()
	fd.health = api.Health{
		Healthy:  false,
		Running:  true,
		Breakers: []api.Breaker{{Name: "speech", State: "open", ConsecutiveFailures: 5}},
		Reasons:  []string{"circuit breaker speech is open"},
	}
	fd.mu.Unlock()

	out, _, err = runCLI(t, []string{"health"}, srv.URL, cfgPath)
	if err == nil {
		t.Fatal("expected unhealthy pipeline to return an error")
	}
	requireContains(t, out, "[ERROR] Unhealthy")
	requireContains(t, out, "open (5 consecutive failures)")
}

func TestHistoryPassesFilters(t *testing.T) {
	fd, srv := newFakeDaemon(t, "")
	fd.history = []api.HistoryEntry{{ID: 1, JobID: "job-a", Attempt: 2, Status: "failed", InputVideo: "/v/a.mp4", ErrorMessage: "boom", RecordedAt: "2026-01-02T03:04:05.000Z"}}

	out, _, err := runCLI(t, []string{"history", "--job", "job-a", "--status", "failed", "--limit", "5"}, srv.URL, writeTestConfig(t, ""))
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "boom")
	got := fd.lastRequest()
	for _, want := range []string{"job=job-a", "status=failed", "limit=5"} {
		if !strings.Contains(got, want) {
			t.Fatalf("request %q missing %q", got, want)
		}
	}
}

func TestCommandsReportUnreachableDaemon(t *testing.T) {
	_, _, err := runCLI(t, []string{"stats"}, "127.0.0.1:1", writeTestConfig(t, ""))
	if err == nil {
		t.Fatal("expected connection error")
	}
	requireContains(t, err.Error(), "connect to daemon")
}

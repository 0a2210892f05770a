package queue_test

import (
	"errors"
	"testing"
	"time"

	"dubbing/internal/queue"
)

func TestParseStatus(t *testing.T) {
	tests := []struct {
		in   string
		want queue.Status
		ok   bool
	}{
		{"queued", queue.StatusQueued, true},
		{"EXTRACTING_AUDIO", queue.StatusExtractingAudio, true},
		{"synthesizing-speech", queue.StatusSynthesizingSpeech, true},
		{"canceled", queue.StatusCancelled, true},
		{"processing", queue.Status("processing"), false},
	}
	for _, tc := range tests {
		got, ok := queue.ParseStatus(tc.in)
		if ok != tc.ok || (ok && got != tc.want) {
			t.Fatalf("ParseStatus(%q) = %q, %v", tc.in, got, ok)
		}
	}
}

func TestStatusPredicates(t *testing.T) {
	for _, status := range queue.AllStatuses() {
		terminal := status == queue.StatusCompleted || status == queue.StatusFailed || status == queue.StatusCancelled
		if status.IsTerminal() != terminal {
			t.Fatalf("%s: IsTerminal = %v", status, status.IsTerminal())
		}
		active := !terminal && status != queue.StatusQueued
		if status.IsActive() != active {
			t.Fatalf("%s: IsActive = %v", status, status.IsActive())
		}
		switch {
		case terminal && status.Phase() != queue.PhaseTerminal,
			active && status.Phase() != queue.PhaseActive,
			status == queue.StatusQueued && status.Phase() != queue.PhasePending:
			t.Fatalf("%s: unexpected phase %s", status, status.Phase())
		}
	}
}

func TestCancelTransitions(t *testing.T) {
	now := time.Now()
	for _, status := range []queue.Status{queue.StatusQueued, queue.StatusTranscribing, queue.StatusAssembling} {
		job := queue.Job{ID: "j", Status: status}
		if err := job.Cancel(now); err != nil {
			t.Fatalf("cancel from %s: %v", status, err)
		}
		if job.Status != queue.StatusCancelled || !job.CompletedAt.Equal(now) || job.ErrorMessage != "" {
			t.Fatalf("unexpected cancelled job: %+v", job)
		}
	}

	job := queue.Job{ID: "j", Status: queue.StatusCompleted}
	err := job.Cancel(now)
	if !errors.Is(err, queue.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if err.Error() != "Cannot cancel job in completed status" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
	if job.Status != queue.StatusCompleted {
		t.Fatal("expected status unchanged")
	}
}

func TestResetForRetry(t *testing.T) {
	job := queue.Job{ID: "j", Status: queue.StatusFailed, Progress: 57, ErrorMessage: "boom", CompletedAt: time.Now(), NeedsIntervention: true}
	if err := job.ResetForRetry(); err != nil {
		t.Fatalf("ResetForRetry: %v", err)
	}
	if job.Status != queue.StatusQueued || job.Progress != 0 || job.ErrorMessage != "" || !job.CompletedAt.IsZero() || job.NeedsIntervention {
		t.Fatalf("unexpected reset job: %+v", job)
	}

	for _, status := range []queue.Status{queue.StatusQueued, queue.StatusTranslating, queue.StatusCompleted, queue.StatusCancelled} {
		job := queue.Job{ID: "j", Status: status}
		err := job.ResetForRetry()
		if !errors.Is(err, queue.ErrInvalidTransition) {
			t.Fatalf("expected ErrInvalidTransition for %s, got %v", status, err)
		}
		want := "Can only retry failed jobs. Current status: " + string(status)
		if err.Error() != want {
			t.Fatalf("unexpected message: %q", err.Error())
		}
	}
}

func TestSetProgressIsMonotonicAndReservesHundred(t *testing.T) {
	job := queue.Job{}
	job.SetProgress(40)
	job.SetProgress(20)
	if job.Progress != 40 {
		t.Fatalf("expected progress to stay at 40, got %d", job.Progress)
	}
	job.SetProgress(100)
	if job.Progress != 99 {
		t.Fatalf("expected progress capped at 99 before completion, got %d", job.Progress)
	}
	job.Complete("out.mp4", time.Now())
	if job.Progress != 100 || job.Status != queue.StatusCompleted {
		t.Fatalf("unexpected completed job: %+v", job)
	}
}

func TestCostTrackingAdd(t *testing.T) {
	a := queue.CostTracking{Characters: 10, APICalls: 1, TotalUSD: 0.5, ComputeTime: time.Second}
	b := queue.CostTracking{Characters: 5, Errors: 1, TotalUSD: 0.25, ComputeTime: time.Second}
	sum := a.Add(b)
	if sum.Characters != 15 || sum.APICalls != 1 || sum.Errors != 1 || sum.TotalUSD != 0.75 || sum.ComputeTime != 2*time.Second {
		t.Fatalf("unexpected sum: %+v", sum)
	}
}

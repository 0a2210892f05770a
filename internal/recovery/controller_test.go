package recovery_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"dubbing/internal/breaker"
	"dubbing/internal/recovery"
	"dubbing/internal/services"
)

func noSleep(time.Duration) {}

type callCounter struct {
	calls int
	errs  []error
}

func (c *callCounter) call(context.Context) error {
	c.calls++
	if c.calls <= len(c.errs) {
		return c.errs[c.calls-1]
	}
	return nil
}

func transient(msg string) error {
	return services.Tag(services.KindTransient, errors.New(msg))
}

func TestRunRetriesTransientUntilSuccess(t *testing.T) {
	ctrl := recovery.New(3, recovery.WithSleeper(noSleep))
	counter := &callCounter{errs: []error{transient("timeout")}}

	outcome, err := ctrl.Run(context.Background(), recovery.Operation{Name: "transcribe", Call: counter.call})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if counter.calls != 2 || outcome.Attempts != 2 {
		t.Fatalf("expected 2 calls, got calls=%d attempts=%d", counter.calls, outcome.Attempts)
	}
	if outcome.Decision != recovery.DecisionSucceeded {
		t.Fatalf("unexpected decision %q", outcome.Decision)
	}
}

func TestRunStopsAfterMaxTransientAttempts(t *testing.T) {
	var slept []time.Duration
	ctrl := recovery.New(3,
		recovery.WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
		recovery.WithJitter(0),
	)
	counter := &callCounter{errs: []error{transient("a"), transient("b"), transient("c"), transient("d")}}

	outcome, err := ctrl.Run(context.Background(), recovery.Operation{Name: "transcribe", Call: counter.call})
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if counter.calls != 3 {
		t.Fatalf("expected 3 calls, got %d", counter.calls)
	}
	if outcome.Decision != recovery.DecisionAbort || outcome.Kind != services.KindTransient {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if len(slept) != 2 || slept[0] != 500*time.Millisecond || slept[1] != time.Second {
		t.Fatalf("unexpected backoff sequence %v", slept)
	}
	var recErr *recovery.Error
	if !errors.As(err, &recErr) || recErr.Attempts != 3 {
		t.Fatalf("expected recovery.Error with 3 attempts, got %v", err)
	}
	if got := err.Error(); got != "transcribe failed after 3 attempts: c" {
		t.Fatalf("unexpected error text %q", got)
	}
}

func TestRunRetriesUnclassifiedOnce(t *testing.T) {
	ctrl := recovery.New(5, recovery.WithSleeper(noSleep))
	boom := errors.New("boom")
	counter := &callCounter{errs: []error{boom, boom, boom}}

	outcome, err := ctrl.Run(context.Background(), recovery.Operation{Name: "assemble", Call: counter.call})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
	if counter.calls != 2 || outcome.Attempts != 2 {
		t.Fatalf("expected 2 calls, got %d", counter.calls)
	}
}

func TestRunUsesFallbackOnQuota(t *testing.T) {
	ctrl := recovery.New(3, recovery.WithSleeper(noSleep))
	primary := &callCounter{errs: []error{services.ErrQuotaExceeded}}
	fallback := &callCounter{}

	outcome, err := ctrl.Run(context.Background(), recovery.Operation{
		Name:     "synthesize:cloud",
		Call:     primary.call,
		Fallback: &recovery.Operation{Name: "synthesize:local", Call: fallback.call},
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !outcome.FallbackUsed || primary.calls != 1 || fallback.calls != 1 {
		t.Fatalf("unexpected fallback outcome %+v primary=%d fallback=%d", outcome, primary.calls, fallback.calls)
	}
}

func TestRunAbortsQuotaWithoutFallback(t *testing.T) {
	ctrl := recovery.New(3, recovery.WithSleeper(noSleep))
	counter := &callCounter{errs: []error{services.ErrQuotaExceeded, services.ErrQuotaExceeded}}

	outcome, err := ctrl.Run(context.Background(), recovery.Operation{Name: "synthesize:cloud", Call: counter.call})
	if !errors.Is(err, services.ErrQuotaExceeded) {
		t.Fatalf("expected quota error, got %v", err)
	}
	if counter.calls != 1 || outcome.Decision != recovery.DecisionAbort {
		t.Fatalf("unexpected outcome %+v calls=%d", outcome, counter.calls)
	}
}

func TestRunFlagsResourceForIntervention(t *testing.T) {
	ctrl := recovery.New(3, recovery.WithSleeper(noSleep))
	full := services.Tag(services.KindResource, errors.New("no space left on device"))
	counter := &callCounter{errs: []error{full}}

	outcome, err := ctrl.Run(context.Background(), recovery.Operation{Name: "extract", Call: counter.call})
	if err == nil {
		t.Fatal("expected error")
	}
	if counter.calls != 1 || outcome.Decision != recovery.DecisionManual {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if !recovery.NeedsIntervention(err) {
		t.Fatal("expected NeedsIntervention to report true")
	}
	if services.KindOf(err) != services.KindResource {
		t.Fatalf("expected resource kind to survive wrapping, got %q", services.KindOf(err))
	}
}

func TestRunFallsBackWhenCircuitOpen(t *testing.T) {
	registry := breaker.NewRegistry(1, time.Minute)
	primaryBreaker := registry.Get(breaker.SynthesisDependency("cloud"))
	_ = primaryBreaker.Execute(func() error { return errors.New("down") })

	ctrl := recovery.New(3, recovery.WithSleeper(noSleep))
	primary := &callCounter{}
	fallback := &callCounter{}
	outcome, err := ctrl.Run(context.Background(), recovery.Operation{
		Name:     "synthesize:cloud",
		Breaker:  primaryBreaker,
		Call:     primary.call,
		Fallback: &recovery.Operation{Name: "synthesize:local", Breaker: registry.Get(breaker.SynthesisDependency("local")), Call: fallback.call},
	})
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if primary.calls != 0 || fallback.calls != 1 || !outcome.FallbackUsed {
		t.Fatalf("expected fallback only, primary=%d fallback=%d", primary.calls, fallback.calls)
	}
}

func TestRunAbortsWhenCircuitOpenWithoutFallback(t *testing.T) {
	b := breaker.New(breaker.DependencyTranscription, 1, time.Minute)
	_ = b.Execute(func() error { return errors.New("down") })

	ctrl := recovery.New(3, recovery.WithSleeper(noSleep))
	counter := &callCounter{}
	_, err := ctrl.Run(context.Background(), recovery.Operation{Name: "transcribe", Breaker: b, Call: counter.call})
	if !errors.Is(err, services.ErrCircuitOpen) {
		t.Fatalf("expected circuit open error, got %v", err)
	}
	if counter.calls != 0 {
		t.Fatalf("expected no calls through open breaker, got %d", counter.calls)
	}
}

func TestRunHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ctrl := recovery.New(3, recovery.WithSleeper(func(time.Duration) { cancel() }))
	counter := &callCounter{errs: []error{transient("slow"), transient("slow")}}

	_, err := ctrl.Run(ctx, recovery.Operation{Name: "transcribe", Call: counter.call})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if counter.calls != 1 {
		t.Fatalf("expected a single call before cancellation, got %d", counter.calls)
	}
}

func TestBackoffIsCapped(t *testing.T) {
	var slept []time.Duration
	ctrl := recovery.New(8,
		recovery.WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
		recovery.WithBackoff(time.Second, 3*time.Second),
		recovery.WithRandom(func() float64 { return 0.99 }),
	)
	errs := make([]error, 8)
	for i := range errs {
		errs[i] = transient("again")
	}
	counter := &callCounter{errs: errs}
	_, _ = ctrl.Run(context.Background(), recovery.Operation{Name: "transcribe", Call: counter.call})

	if len(slept) != 7 {
		t.Fatalf("expected 7 sleeps, got %d", len(slept))
	}
	for i, d := range slept {
		if d > 3*time.Second {
			t.Fatalf("sleep %d exceeded cap: %v", i, d)
		}
	}
}

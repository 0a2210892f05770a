package services_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"dubbing/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrAssembly, "assembling", "concat", "failed", base)
	if !errors.Is(err, services.ErrAssembly) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"assembling", "concat", "failed", "boom"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestQuotaExceededIsSynthesisError(t *testing.T) {
	err := services.Wrap(services.ErrQuotaExceeded, "synthesizing", "cloud", "", nil)
	if !errors.Is(err, services.ErrSynthesis) {
		t.Fatalf("expected quota error to match ErrSynthesis: %v", err)
	}
	if !errors.Is(err, services.ErrQuotaExceeded) {
		t.Fatalf("expected quota marker: %v", err)
	}
	if errors.Is(services.ErrSynthesis, services.ErrQuotaExceeded) {
		t.Fatal("generic synthesis error must not match quota")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want services.Kind
	}{
		{"nil", nil, ""},
		{"tagged transient", services.Tag(services.KindTransient, errors.New("503")), services.KindTransient},
		{"tagged resource wrapped", fmt.Errorf("outer: %w", services.Tag(services.KindResource, errors.New("disk"))), services.KindResource},
		{"quota marker", services.Wrap(services.ErrQuotaExceeded, "synth", "", "", nil), services.KindQuota},
		{"timeout marker", services.Wrap(services.ErrTimeout, "transcribe", "", "", nil), services.KindTransient},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), services.KindTransient},
		{"plain", errors.New("no space left on device"), services.KindUnclassified},
		{"unknown tag", services.Tag(services.Kind("weird"), errors.New("x")), services.KindUnclassified},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := services.KindOf(tc.err); got != tc.want {
				t.Fatalf("KindOf = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestTagNilStaysNil(t *testing.T) {
	if services.Tag(services.KindTransient, nil) != nil {
		t.Fatal("expected nil")
	}
}

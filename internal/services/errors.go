package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrVideoProcessing   = errors.New("video processing error")
	ErrTranscription     = errors.New("transcription error")
	ErrSynthesis         = errors.New("synthesis error")
	ErrQuotaExceeded     error = &markerError{msg: "quota exceeded", parent: ErrSynthesis}
	ErrAssembly          = errors.New("assembly error")
	ErrQualityValidation = errors.New("quality validation failed")
	ErrTimeout           = errors.New("timeout")
	ErrCircuitOpen       = errors.New("circuit open")
)

// markerError is a sentinel that also matches a broader parent sentinel, so
// errors.Is(ErrQuotaExceeded, ErrSynthesis) holds.
type markerError struct {
	msg    string
	parent error
}

func (e *markerError) Error() string { return e.msg }

func (e *markerError) Unwrap() error { return e.parent }

// Kind is the recovery classification attached to a collaborator error.
type Kind string

const (
	KindTransient    Kind = "transient"
	KindQuota        Kind = "quota"
	KindResource     Kind = "resource"
	KindUnclassified Kind = "unclassified"
)

// ErrorClassifier allows errors to declare their recovery classification.
type ErrorClassifier interface {
	ErrorKind() string
}

type kindError struct {
	kind Kind
	err  error
}

func (e *kindError) Error() string { return e.err.Error() }

func (e *kindError) Unwrap() error { return e.err }

func (e *kindError) ErrorKind() string { return string(e.kind) }

// Tag attaches a recovery classification to err. A nil err stays nil.
func Tag(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &kindError{kind: kind, err: err}
}

// KindOf returns the recovery classification of err. Explicit tags win; the
// quota and timeout markers map to their kinds; everything else is unclassified.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var classifier ErrorClassifier
	if errors.As(err, &classifier) {
		switch Kind(classifier.ErrorKind()) {
		case KindTransient, KindQuota, KindResource:
			return Kind(classifier.ErrorKind())
		}
	}
	switch {
	case errors.Is(err, ErrQuotaExceeded):
		return KindQuota
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTransient
	}
	return KindUnclassified
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of
// the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		return fmt.Errorf("%s: %w", detail, err)
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

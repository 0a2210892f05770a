package queue

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound matches lookups of unknown job ids.
	ErrJobNotFound = errors.New("job not found")
	// ErrInvalidTransition matches cancel/retry calls made from a status that forbids them.
	ErrInvalidTransition = errors.New("invalid state transition")
)

// NotFoundError reports the id that could not be resolved.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("job %s not found", e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrJobNotFound }

// TransitionError reports a rejected control operation.
type TransitionError struct {
	ID     string
	Op     string
	Status Status
}

func (e *TransitionError) Error() string {
	switch e.Op {
	case "cancel":
		return fmt.Sprintf("Cannot cancel job in %s status", e.Status)
	case "retry":
		return fmt.Sprintf("Can only retry failed jobs. Current status: %s", e.Status)
	default:
		return fmt.Sprintf("Cannot %s job in %s status", e.Op, e.Status)
	}
}

func (e *TransitionError) Is(target error) bool { return target == ErrInvalidTransition }

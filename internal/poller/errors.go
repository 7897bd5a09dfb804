package poller

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTimeout matches every TimeoutError with errors.Is.
var ErrTimeout = errors.New("timed out waiting for condition")

// TimeoutError reports a poll-bounded operation that did not reach its target
// before the deadline. It carries enough context to tell a store that is down
// from a resource that is still converging.
type TimeoutError struct {
	// Operation names what was attempted, e.g. "update" or "wait for deletion".
	Operation string
	// Target identifies the resource or fleet the operation was about.
	Target string
	// Attempts and Elapsed come from the poll outcome.
	Attempts int
	Elapsed  time.Duration
	// LastObserved is the last state seen before giving up, if any.
	LastObserved any
}

// NewTimeoutError builds a TimeoutError from a poll outcome.
func NewTimeoutError(operation, target string, outcome Outcome, last any) *TimeoutError {
	return &TimeoutError{
		Operation:    operation,
		Target:       target,
		Attempts:     outcome.Attempts,
		Elapsed:      outcome.Elapsed,
		LastObserved: last,
	}
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s %s: timed out after %s (%d attempts)",
		e.Operation, e.Target, e.Elapsed.Round(time.Millisecond), e.Attempts)
}

// Is reports whether target is ErrTimeout.
func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// Unwrap exposes context.DeadlineExceeded so wait.Interrupted recognises the error.
func (e *TimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}

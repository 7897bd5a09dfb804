package resource

import (
	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// ErrorClass is the consistency-relevant category of a store response.
type ErrorClass int

const (
	// Success means the call returned no error.
	Success ErrorClass = iota
	// Conflict means the expected version was stale (HTTP 409). Retriable.
	Conflict
	// NotFound means the resource is not observable (HTTP 404).
	NotFound
	// Fatal covers every other failure; it is never retried.
	Fatal
)

func (c ErrorClass) String() string {
	switch c {
	case Success:
		return "success"
	case Conflict:
		return "conflict"
	case NotFound:
		return "not-found"
	default:
		return "fatal"
	}
}

// Classify maps a store error onto an ErrorClass.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return Success
	case apierrors.IsConflict(err):
		return Conflict
	case apierrors.IsNotFound(err):
		return NotFound
	default:
		return Fatal
	}
}

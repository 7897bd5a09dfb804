// Package updater implements the optimistic-concurrency update protocol
// against an eventually-consistent store: read the latest version, apply the
// desired mutation, submit conditionally on that version, and start over when
// the store reports a conflict.
//
// The store does not guarantee that a read immediately after a write reflects
// it, and concurrent writers race on the same resourceVersion, so a
// read-mutate-write cycle bounded by a deadline is the required way to update
// a resource, not a workaround. Only conflicts are retried; every other
// failure is returned as soon as it happens.
package updater

import (
	"context"
	"fmt"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/llm-d/llm-d-fleet-consistency/internal/logging"
	"github.com/llm-d/llm-d-fleet-consistency/internal/metrics"
	"github.com/llm-d/llm-d-fleet-consistency/internal/poller"
	"github.com/llm-d/llm-d-fleet-consistency/internal/resource"
)

const operation = "update"

// Mutation applies the desired change to a freshly read copy of the resource.
// It runs once per attempt and must not keep state between calls.
type Mutation func(obj *unstructured.Unstructured) error

// ReadFunc returns the current document of the target resource.
type ReadFunc func(ctx context.Context) (*unstructured.Unstructured, error)

// SubmitFunc submits a conditional update and returns the stored document.
type SubmitFunc func(ctx context.Context, obj *unstructured.Unstructured) (*unstructured.Unstructured, error)

// Option customizes an update.
type Option func(*options)

type options struct {
	recorder *metrics.Recorder
}

// WithRecorder records attempts, conflicts and timeouts.
func WithRecorder(r *metrics.Recorder) Option {
	return func(o *options) {
		o.recorder = r
	}
}

// attemptResult is the immutable outcome of one read-mutate-write attempt.
type attemptResult struct {
	updated *unstructured.Unstructured
	// version is the resourceVersion the attempt was based on.
	version string
}

// UpdateWithRetry runs read-mutate-write attempts until one is accepted, a
// non-conflict error occurs, or the poll deadline elapses.
//
// Each attempt reads the target, applies mutate to a deep copy, sets the copy's
// resourceVersion to the one just read and submits it. A conflict or a target
// that is not visible yet ends the attempt and the poller schedules the next
// one. On timeout a *poller.TimeoutError is returned.
func UpdateWithRetry(
	ctx context.Context,
	p *poller.Poller,
	target resource.Ref,
	mutate Mutation,
	read ReadFunc,
	submit SubmitFunc,
	opts ...Option,
) (*unstructured.Unstructured, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	logger := ctrl.LoggerFrom(ctx).WithValues("resource", target.String())

	result, outcome, err := poller.Until(ctx, p, func(ctx context.Context, attempt int) (attemptResult, bool, error) {
		res, done, err := updateOnce(ctx, mutate, read, submit)
		if err != nil || done {
			return res, done, err
		}
		if res.version == "" {
			logger.V(logging.DEBUG).Info("Resource not visible yet, retrying", "attempt", attempt)
		} else {
			o.recorder.IncConflict(target.GVK.Kind)
			logger.V(logging.DEBUG).Info("Version conflict, retrying",
				"attempt", attempt,
				"staleVersion", res.version)
		}
		return res, false, nil
	})

	switch {
	case err != nil:
		o.recorder.ObserveOperation(operation, metrics.OutcomeError, outcome.Attempts, outcome.Elapsed)
		return nil, fmt.Errorf("updating %s (attempt %d): %w", target, outcome.Attempts, err)
	case !outcome.Ready:
		o.recorder.ObserveOperation(operation, metrics.OutcomeTimeout, outcome.Attempts, outcome.Elapsed)
		logger.Info("Timed out updating resource",
			"attempts", outcome.Attempts,
			"elapsed", outcome.Elapsed.String(),
			"lastVersion", result.version)
		return nil, poller.NewTimeoutError(operation, target.String(), outcome, result.version)
	}

	o.recorder.ObserveOperation(operation, metrics.OutcomeReady, outcome.Attempts, outcome.Elapsed)
	logger.V(logging.DEBUG).Info("Updated resource",
		"attempts", outcome.Attempts,
		"resourceVersion", result.updated.GetResourceVersion())
	return result.updated, nil
}

// updateOnce performs a single read-mutate-write attempt. done is false with a
// nil error when the attempt should be retried: the read found nothing (empty
// version) or the write hit a conflict.
func updateOnce(ctx context.Context, mutate Mutation, read ReadFunc, submit SubmitFunc) (attemptResult, bool, error) {
	current, err := read(ctx)
	switch resource.Classify(err) {
	case resource.Success:
	case resource.NotFound:
		return attemptResult{}, false, nil
	default:
		return attemptResult{}, false, fmt.Errorf("reading current version: %w", err)
	}

	version := current.GetResourceVersion()
	desired := current.DeepCopy()
	if err := mutate(desired); err != nil {
		return attemptResult{version: version}, false, fmt.Errorf("applying mutation: %w", err)
	}
	desired.SetResourceVersion(version)

	updated, err := submit(ctx, desired)
	switch resource.Classify(err) {
	case resource.Success:
		return attemptResult{updated: updated, version: version}, true, nil
	case resource.Conflict:
		return attemptResult{version: version}, false, nil
	default:
		return attemptResult{version: version}, false, fmt.Errorf("submitting update: %w", err)
	}
}

// Updater runs conditional updates against a Store.
type Updater struct {
	store  resource.Store
	poller *poller.Poller
	opts   []Option
}

// New returns an Updater bounded by p.
func New(store resource.Store, p *poller.Poller, opts ...Option) *Updater {
	return &Updater{store: store, poller: p, opts: opts}
}

// Update applies mutate to the resource identified by ref, retrying on
// version conflicts until the poller's deadline.
func (u *Updater) Update(ctx context.Context, ref resource.Ref, mutate Mutation) (*unstructured.Unstructured, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	read := func(ctx context.Context) (*unstructured.Unstructured, error) {
		return u.store.Get(ctx, ref)
	}
	return UpdateWithRetry(ctx, u.poller, ref, mutate, read, u.store.Update, u.opts...)
}

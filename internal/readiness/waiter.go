package readiness

import (
	"context"
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/types"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/llm-d/llm-d-fleet-consistency/internal/metrics"
	"github.com/llm-d/llm-d-fleet-consistency/internal/poller"
	"github.com/llm-d/llm-d-fleet-consistency/internal/resource"
)

// Option customizes a Waiter.
type Option func(*Waiter)

// WithRecorder records attempts, timeouts and wait durations.
func WithRecorder(r *metrics.Recorder) Option {
	return func(w *Waiter) {
		w.recorder = r
	}
}

// WaitOption customizes a single wait.
type WaitOption func(*waitOptions)

type waitOptions struct {
	initialDelay time.Duration
}

// WithInitialDelay waits d before the first observation, giving the server
// time to act on a request it has just accepted.
func WithInitialDelay(d time.Duration) WaitOption {
	return func(o *waitOptions) {
		o.initialDelay = d
	}
}

// Waiter waits for resources in a Store to reach a target state.
type Waiter struct {
	store    resource.Store
	poller   *poller.Poller
	recorder *metrics.Recorder
}

// New returns a Waiter bounded by p.
func New(store resource.Store, p *poller.Poller, opts ...Option) *Waiter {
	w := &Waiter{store: store, poller: p}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Observe reads ref once. NotFound is reported as an absent observation.
func (w *Waiter) Observe(ctx context.Context, ref resource.Ref) (Observation, error) {
	obj, err := w.store.Get(ctx, ref)
	switch resource.Classify(err) {
	case resource.Success:
		return Observation{Found: true, Object: obj}, nil
	case resource.NotFound:
		return Observation{}, nil
	default:
		return Observation{}, fmt.Errorf("observing %s: %w", ref, err)
	}
}

// Wait polls ref until cond holds and returns the matching observation.
func (w *Waiter) Wait(ctx context.Context, ref resource.Ref, cond Condition, opts ...WaitOption) (Observation, error) {
	return w.wait(ctx, "wait for", ref, cond, opts)
}

// WaitForField waits until the field at path is populated, e.g. a readiness
// marker the server writes into status.
func (w *Waiter) WaitForField(ctx context.Context, ref resource.Ref, path []string, opts ...WaitOption) (Observation, error) {
	return w.wait(ctx, "wait for field of", ref, HasField(path...), opts)
}

// WaitForDeletion waits until the store answers NotFound for ref. A resource
// already absent completes on the first observation.
func (w *Waiter) WaitForDeletion(ctx context.Context, ref resource.Ref, opts ...WaitOption) error {
	_, err := w.wait(ctx, "wait for deletion of", ref, Absent, opts)
	return err
}

// WaitForRestart waits until ref is served by a new instance, that is a uid
// other than previousUID, in the Running phase.
func (w *Waiter) WaitForRestart(ctx context.Context, ref resource.Ref, previousUID types.UID, opts ...WaitOption) (Observation, error) {
	return w.wait(ctx, "wait for restart of", ref, Restarted(previousUID), opts)
}

// CreateAndWait creates obj and waits until cond holds for it.
func (w *Waiter) CreateAndWait(ctx context.Context, obj *unstructured.Unstructured, cond Condition, opts ...WaitOption) (Observation, error) {
	ref := resource.RefFor(obj)
	if err := ref.Validate(); err != nil {
		return Observation{}, err
	}
	if _, err := w.store.Create(ctx, obj); err != nil {
		return Observation{}, fmt.Errorf("creating %s: %w", ref, err)
	}
	return w.wait(ctx, "wait for creation of", ref, cond, opts)
}

// DeleteAndWait deletes ref and waits until the store no longer serves it.
func (w *Waiter) DeleteAndWait(ctx context.Context, ref resource.Ref, opts ...WaitOption) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	if err := w.store.Delete(ctx, ref); err != nil {
		return err
	}
	return w.WaitForDeletion(ctx, ref, opts...)
}

func (w *Waiter) wait(ctx context.Context, operation string, ref resource.Ref, cond Condition, opts []WaitOption) (Observation, error) {
	if err := ref.Validate(); err != nil {
		return Observation{}, err
	}
	o := waitOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	if o.initialDelay > 0 {
		ctrl.LoggerFrom(ctx).Info("Waiting before first observation",
			"operation", operation,
			"target", ref.String(),
			"delay", o.initialDelay.String())
		if err := w.poller.Sleep(ctx, o.initialDelay); err != nil {
			return Observation{}, err
		}
	}

	observe := func(ctx context.Context) (Observation, error) {
		return w.Observe(ctx, ref)
	}
	return waitUntil[Observation](ctx, w.poller, operation, ref.String(), w.recorder, observe, cond)
}

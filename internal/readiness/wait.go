package readiness

import (
	"context"

	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/llm-d/llm-d-fleet-consistency/internal/logging"
	"github.com/llm-d/llm-d-fleet-consistency/internal/metrics"
	"github.com/llm-d/llm-d-fleet-consistency/internal/poller"
)

// WaitUntil polls observe until isTarget holds for the observed state and
// returns that state. An observe error aborts the wait. On timeout the last
// observed state is returned together with a *poller.TimeoutError carrying it.
func WaitUntil[S any](
	ctx context.Context,
	p *poller.Poller,
	target string,
	observe func(ctx context.Context) (S, error),
	isTarget func(S) bool,
) (S, error) {
	return waitUntil(ctx, p, "wait for", target, nil, observe, isTarget)
}

func waitUntil[S any](
	ctx context.Context,
	p *poller.Poller,
	operation, target string,
	recorder *metrics.Recorder,
	observe func(ctx context.Context) (S, error),
	isTarget func(S) bool,
) (S, error) {
	logger := ctrl.LoggerFrom(ctx).WithValues("operation", operation, "target", target)

	state, outcome, err := poller.Until(ctx, p, func(ctx context.Context, attempt int) (S, bool, error) {
		state, err := observe(ctx)
		if err != nil {
			return state, false, err
		}
		if isTarget(state) {
			return state, true, nil
		}
		logger.V(logging.DEBUG).Info("Target state not reached yet", "attempt", attempt)
		return state, false, nil
	})

	switch {
	case err != nil:
		recorder.ObserveOperation(operation, metrics.OutcomeError, outcome.Attempts, outcome.Elapsed)
		return state, err
	case !outcome.Ready:
		recorder.ObserveOperation(operation, metrics.OutcomeTimeout, outcome.Attempts, outcome.Elapsed)
		logger.Info("Timed out waiting for target state",
			"attempts", outcome.Attempts,
			"elapsed", outcome.Elapsed.String())
		return state, poller.NewTimeoutError(operation, target, outcome, state)
	}

	recorder.ObserveOperation(operation, metrics.OutcomeReady, outcome.Attempts, outcome.Elapsed)
	logger.V(logging.DEBUG).Info("Target state reached", "attempts", outcome.Attempts)
	return state, nil
}

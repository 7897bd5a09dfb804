package poller

import (
	"context"
	"errors"
	"time"

	"k8s.io/utils/clock"
)

var (
	errInvalidInterval = errors.New("poll interval must be positive")
	errInvalidTimeout  = errors.New("poll timeout must be positive")
)

// Outcome describes how a poll ended.
type Outcome struct {
	// Ready is true when an attempt reported done before the deadline.
	Ready bool
	// Attempts is the number of predicate invocations.
	Attempts int
	// Elapsed is the wall time from the first attempt to the end of the poll.
	Elapsed time.Duration
}

// ConditionFunc reports whether the awaited state has been reached.
type ConditionFunc func(ctx context.Context) (bool, error)

// AttemptFunc is one attempt of a poll that produces a value. attempt starts at 1.
// The value is only used when done is true.
type AttemptFunc[T any] func(ctx context.Context, attempt int) (value T, done bool, err error)

// Poller holds the interval and deadline of a poll.
type Poller struct {
	// Interval is the delay between two attempts.
	Interval time.Duration
	// Timeout bounds the whole poll.
	Timeout time.Duration
	// Clock drives the interval and deadline timers. Defaults to the real clock.
	Clock clock.Clock
}

// New returns a Poller using the real clock.
func New(interval, timeout time.Duration) *Poller {
	return &Poller{
		Interval: interval,
		Timeout:  timeout,
		Clock:    clock.RealClock{},
	}
}

// WithTimeout returns a copy of p with a different deadline.
func (p *Poller) WithTimeout(timeout time.Duration) *Poller {
	cp := *p
	cp.Timeout = timeout
	return &cp
}

func (p *Poller) clock() clock.Clock {
	if p.Clock == nil {
		return clock.RealClock{}
	}
	return p.Clock
}

// Sleep blocks for d on the poller's clock, or until ctx is done.
func (p *Poller) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := p.clock().NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C():
		return nil
	}
}

func (p *Poller) validate() error {
	if p.Interval <= 0 {
		return errInvalidInterval
	}
	if p.Timeout <= 0 {
		return errInvalidTimeout
	}
	return nil
}

// Poll calls cond until it returns true or the poll deadline elapses.
func (p *Poller) Poll(ctx context.Context, cond ConditionFunc) (Outcome, error) {
	_, outcome, err := Until(ctx, p, func(ctx context.Context, _ int) (struct{}, bool, error) {
		done, err := cond(ctx)
		return struct{}{}, done, err
	})
	return outcome, err
}

// Until calls fn until it reports done, fails, or the poll deadline elapses,
// and returns the value of the last attempt. That is the successful value when
// the outcome is ready, and the last observation for diagnostics otherwise.
//
// The context handed to fn is cancelled when the poll deadline fires on the
// poller's clock, so blocking calls inside an attempt cannot outlive the poll.
// Cancelling ctx aborts the poll with ctx.Err().
func Until[T any](ctx context.Context, p *Poller, fn AttemptFunc[T]) (T, Outcome, error) {
	var zero T
	if err := p.validate(); err != nil {
		return zero, Outcome{}, err
	}

	clk := p.clock()
	start := clk.Now()

	deadline := clk.NewTimer(p.Timeout)
	defer deadline.Stop()

	attemptCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	expired := make(chan struct{})
	go func() {
		select {
		case <-deadline.C():
			close(expired)
			cancel()
		case <-attemptCtx.Done():
		}
	}()

	var outcome Outcome
	for {
		outcome.Attempts++
		value, done, err := fn(attemptCtx, outcome.Attempts)
		outcome.Elapsed = clk.Since(start)

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return value, outcome, ctxErr
			}
			if attemptCtx.Err() != nil {
				// the attempt was cut short by the poll deadline
				return value, outcome, nil
			}
			return value, outcome, err
		}
		if done {
			outcome.Ready = true
			return value, outcome, nil
		}

		next := clk.NewTimer(p.Interval)
		select {
		case <-ctx.Done():
			next.Stop()
			outcome.Elapsed = clk.Since(start)
			return value, outcome, ctx.Err()
		case <-expired:
			next.Stop()
			outcome.Elapsed = clk.Since(start)
			return value, outcome, nil
		case <-next.C():
		}
	}
}

// Package metrics records how the poll-driven helpers converge: attempts,
// version conflicts, timeouts and wait durations. A nil *Recorder is valid and
// records nothing.
package metrics

import (
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

const namespace = "consistency"

// Outcome label values.
const (
	OutcomeReady   = "ready"
	OutcomeTimeout = "timeout"
	OutcomeError   = "error"
)

// Recorder holds the collectors of one registry.
type Recorder struct {
	attempts     *prometheus.CounterVec
	conflicts    *prometheus.CounterVec
	timeouts     *prometheus.CounterVec
	waitDuration *prometheus.HistogramVec
}

// NewRecorder creates the collectors and registers them with reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_attempts_total",
			Help:      "Number of predicate invocations made by poll-driven operations.",
		}, []string{"operation"}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "update_conflicts_total",
			Help:      "Number of conditional updates rejected because of a stale resourceVersion.",
		}, []string{"kind"}),
		timeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timeouts_total",
			Help:      "Number of poll-driven operations that reached their deadline.",
		}, []string{"operation"}),
		waitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Time spent in poll-driven operations.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"operation", "outcome"}),
	}

	for _, c := range []prometheus.Collector{r.attempts, r.conflicts, r.timeouts, r.waitDuration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// ObserveOperation records the end of a poll-driven operation.
func (r *Recorder) ObserveOperation(operation, outcome string, attempts int, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.attempts.WithLabelValues(operation).Add(float64(attempts))
	r.waitDuration.WithLabelValues(operation, outcome).Observe(elapsed.Seconds())
	if outcome == OutcomeTimeout {
		r.timeouts.WithLabelValues(operation).Inc()
	}
}

// IncConflict records one version conflict for a resource kind.
func (r *Recorder) IncConflict(kind string) {
	if r == nil {
		return
	}
	r.conflicts.WithLabelValues(kind).Inc()
}

// WriteText writes every metric family gathered from g in the text exposition format.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}

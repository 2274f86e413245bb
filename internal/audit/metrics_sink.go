package audit

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsSink renders PaymentEvents as Prometheus counters and histograms
// (spec §4.10: "Histograms: verify duration, settle duration, gas used.
// Counters by (network, error_reason)"). Metrics are registered against
// whichever prometheus.Registerer the caller passes in (cmd/x402fd passes
// prometheus.DefaultRegisterer; tests pass a fresh *prometheus.Registry),
// keeping the sink an explicit service like every other component (spec §9).
type MetricsSink struct {
	verifyDuration prometheus.Histogram
	settleDuration prometheus.Histogram
	gasUsed        prometheus.Histogram
	errorsByReason *prometheus.CounterVec
	settlesByState *prometheus.CounterVec
}

// NewMetricsSink registers its metrics against reg and returns a Sink. reg
// must not be nil.
func NewMetricsSink(reg prometheus.Registerer) *MetricsSink {
	m := &MetricsSink{
		verifyDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "x402f_verify_duration_seconds",
			Help:    "Duration of /verify requests.",
			Buckets: prometheus.DefBuckets,
		}),
		settleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "x402f_settle_duration_seconds",
			Help:    "Duration of /settle requests.",
			Buckets: prometheus.DefBuckets,
		}),
		gasUsed: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "x402f_settle_gas_used",
			Help:    "Gas used by confirmed settlement transactions.",
			Buckets: prometheus.ExponentialBuckets(21_000, 2, 12),
		}),
		errorsByReason: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "x402f_errors_total",
			Help: "Verify/settle failures by network and error reason.",
		}, []string{"network", "reason"}),
		settlesByState: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "x402f_settlement_state_transitions_total",
			Help: "Settlement Engine state transitions by network and state.",
		}, []string{"network", "state"}),
	}
	reg.MustRegister(m.verifyDuration, m.settleDuration, m.gasUsed, m.errorsByReason, m.settlesByState)
	return m
}

func (m *MetricsSink) Record(e PaymentEvent) {
	switch e.Type {
	case EventVerifySuccess, EventVerifyFailure:
		m.verifyDuration.Observe(e.Duration.Seconds())
	case EventSettleSuccess, EventSettleFailure:
		m.settleDuration.Observe(e.Duration.Seconds())
	case EventStateTransition:
		m.settlesByState.WithLabelValues(e.Network, e.State).Inc()
	}

	if e.Type == EventVerifyFailure || e.Type == EventSettleFailure {
		m.errorsByReason.WithLabelValues(e.Network, e.Reason).Inc()
	}

	if gasUsed, ok := e.Metadata["gasUsed"].(uint64); ok {
		m.gasUsed.Observe(float64(gasUsed))
	}
}

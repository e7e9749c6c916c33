package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DispatchMetrics records delivery outcomes per channel.
type DispatchMetrics struct {
	delivered *prometheus.CounterVec
	retried   *prometheus.CounterVec
	failed    *prometheus.CounterVec
	duration  *prometheus.HistogramVec
	matches   *prometheus.CounterVec
}

// NewDispatchMetrics registers the dispatch metrics on the provided registerer.
func NewDispatchMetrics(reg prometheus.Registerer) *DispatchMetrics {
	if reg == nil {
		return &DispatchMetrics{}
	}
	delivered := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_delivered_total",
		Help: "Outbox entries delivered successfully.",
	}, []string{"channel"})
	retried := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_retried_total",
		Help: "Outbox delivery attempts scheduled for retry.",
	}, []string{"channel"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "outbox_failed_total",
		Help: "Outbox entries that reached terminal failure.",
	}, []string{"channel"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "outbox_delivery_duration_seconds",
		Help:    "Duration of channel adapter delivery calls.",
		Buckets: prometheus.DefBuckets,
	}, []string{"channel"})
	matches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_match_outcomes_total",
		Help: "Payment matcher outcomes by tier.",
	}, []string{"outcome", "tier"})
	reg.MustRegister(delivered, retried, failed, duration, matches)
	return &DispatchMetrics{
		delivered: delivered,
		retried:   retried,
		failed:    failed,
		duration:  duration,
		matches:   matches,
	}
}

// IncDelivered increments the delivered counter for the channel.
func (m *DispatchMetrics) IncDelivered(channel string) {
	if m == nil || m.delivered == nil {
		return
	}
	m.delivered.WithLabelValues(normalizeLabel(channel)).Inc()
}

// IncRetried increments the retry counter for the channel.
func (m *DispatchMetrics) IncRetried(channel string) {
	if m == nil || m.retried == nil {
		return
	}
	m.retried.WithLabelValues(normalizeLabel(channel)).Inc()
}

// IncFailed increments the terminal failure counter for the channel.
func (m *DispatchMetrics) IncFailed(channel string) {
	if m == nil || m.failed == nil {
		return
	}
	m.failed.WithLabelValues(normalizeLabel(channel)).Inc()
}

// ObserveDelivery records the duration of one adapter call.
func (m *DispatchMetrics) ObserveDelivery(channel string, duration time.Duration) {
	if m == nil || m.duration == nil {
		return
	}
	m.duration.WithLabelValues(normalizeLabel(channel)).Observe(duration.Seconds())
}

// IncMatchOutcome records one payment matcher decision.
func (m *DispatchMetrics) IncMatchOutcome(outcome, tier string) {
	if m == nil || m.matches == nil {
		return
	}
	m.matches.WithLabelValues(normalizeLabel(outcome), normalizeLabel(tier)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}

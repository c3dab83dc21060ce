package observ

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Webhook outcomes recorded on WebhookEvents.
const (
	OutcomeApplied   = "applied"
	OutcomeNoop      = "noop"
	OutcomeIgnored   = "ignored"
	OutcomeDuplicate = "duplicate"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

type Metrics struct {
	WebhookEvents *prometheus.CounterVec
	ShareUnlocks  *prometheus.CounterVec
	HTTPDuration  *prometheus.HistogramVec
}

// NewMetrics registers the service collectors on reg. Tests pass a fresh
// prometheus.NewRegistry so repeated construction does not panic.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		WebhookEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aipdfly",
			Name:      "webhook_events_total",
			Help:      "Webhook deliveries by source, event type and outcome.",
		}, []string{"source", "type", "outcome"}),
		ShareUnlocks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aipdfly",
			Name:      "share_unlock_total",
			Help:      "Share unlock attempts by outcome.",
		}, []string{"outcome"}),
		HTTPDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "aipdfly",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

func (m *Metrics) Webhook(source, eventType, outcome string) {
	if m == nil {
		return
	}
	m.WebhookEvents.WithLabelValues(source, eventType, outcome).Inc()
}

func (m *Metrics) Unlock(outcome string) {
	if m == nil {
		return
	}
	m.ShareUnlocks.WithLabelValues(outcome).Inc()
}

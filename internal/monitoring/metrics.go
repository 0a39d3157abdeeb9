// Package monitoring defines the Prometheus metrics surface.
package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the service exposes. A nil *Metrics is valid
// and records nothing, which keeps unit tests away from the global registry.
// promauto registers each
// collector with the default registry at construction time, so NewMetrics must
// be called at most once per process.
type Metrics struct {
	// HTTP surface
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	PanicsTotal         prometheus.Counter

	// Outbound delivery
	SendAttemptsTotal *prometheus.CounterVec // by classified outcome
	SendsTotal        *prometheus.CounterVec // by terminal result
	SendDuration      prometheus.Histogram

	// Inbound webhook pipeline
	WebhookEventsTotal   *prometheus.CounterVec // by canonical event type
	WebhookFailuresTotal *prometheus.CounterVec // by failure reason
	EventsAppliedTotal   prometheus.Counter
	EventsSkippedTotal   prometheus.Counter // duplicates and stale events

	// Replay
	ReplayRunsTotal       prometheus.Counter
	ReplayRecordsReplayed prometheus.Counter
}

// NewMetrics creates and registers all collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailgoat_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mailgoat_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		PanicsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailgoat_panics_total",
				Help: "Total number of recovered panics",
			},
		),
		SendAttemptsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailgoat_send_attempts_total",
				Help: "Delivery attempts against the provider, by classified outcome",
			},
			[]string{"outcome"},
		),
		SendsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailgoat_sends_total",
				Help: "Terminal send results, by outcome",
			},
			[]string{"result"},
		),
		SendDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mailgoat_send_duration_seconds",
				Help:    "End-to-end Submit duration including retries",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
			},
		),
		WebhookEventsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailgoat_webhook_events_total",
				Help: "Normalized webhook events, by canonical event type",
			},
			[]string{"event_type"},
		),
		WebhookFailuresTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailgoat_webhook_failures_total",
				Help: "Webhook processing failures, by reason",
			},
			[]string{"reason"},
		),
		EventsAppliedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailgoat_events_applied_total",
				Help: "Events that mutated the cached message projection",
			},
		),
		EventsSkippedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailgoat_events_skipped_total",
				Help: "Events skipped as duplicates or stale",
			},
		),
		ReplayRunsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailgoat_replay_runs_total",
				Help: "Replay runs executed",
			},
		),
		ReplayRecordsReplayed: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "mailgoat_replay_records_replayed_total",
				Help: "Replay records pushed back through the ingest path",
			},
		),
	}
}

// RecordHTTPRequest records one handled HTTP request.
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordSendAttempt records one classified delivery attempt.
func (m *Metrics) RecordSendAttempt(outcome string) {
	if m == nil {
		return
	}
	m.SendAttemptsTotal.WithLabelValues(outcome).Inc()
}

// RecordSendResult records the terminal outcome and duration of a Submit call.
func (m *Metrics) RecordSendResult(result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.SendsTotal.WithLabelValues(result).Inc()
	m.SendDuration.Observe(duration.Seconds())
}

// RecordWebhookEvent records one successfully normalized event.
func (m *Metrics) RecordWebhookEvent(eventType string) {
	if m == nil {
		return
	}
	m.WebhookEventsTotal.WithLabelValues(eventType).Inc()
}

// RecordWebhookFailure records a webhook processing failure.
func (m *Metrics) RecordWebhookFailure(reason string) {
	if m == nil {
		return
	}
	m.WebhookFailuresTotal.WithLabelValues(reason).Inc()
}

// RecordEventApplied records a projection mutation.
func (m *Metrics) RecordEventApplied() {
	if m == nil {
		return
	}
	m.EventsAppliedTotal.Inc()
}

// RecordEventSkipped records a duplicate or stale event.
func (m *Metrics) RecordEventSkipped() {
	if m == nil {
		return
	}
	m.EventsSkippedTotal.Inc()
}

// RecordReplayRun records one replay run and how many records it re-applied.
func (m *Metrics) RecordReplayRun(replayed int) {
	if m == nil {
		return
	}
	m.ReplayRunsTotal.Inc()
	m.ReplayRecordsReplayed.Add(float64(replayed))
}

// RecordPanic records a recovered panic.
func (m *Metrics) RecordPanic() {
	if m == nil {
		return
	}
	m.PanicsTotal.Inc()
}

// HTTPHandler returns the /metrics scrape handler.
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.Handler()
}

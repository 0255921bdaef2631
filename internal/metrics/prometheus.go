package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "devportal"

// PrometheusRecorder exports metrics through a private Prometheus registry.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	httpLatency      *prometheus.HistogramVec
	authFailures     *prometheus.CounterVec
	ownershipDenials *prometheus.CounterVec
	ledgerLatency    *prometheus.HistogramVec
	topUps           *prometheus.CounterVec
	checkouts        prometheus.Counter
	webhookEvents    *prometheus.CounterVec
}

// NewPrometheus creates a recorder with its collectors registered.
func NewPrometheus() *PrometheusRecorder {
	p := &PrometheusRecorder{
		registry: prometheus.NewRegistry(),
		httpLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Latency of HTTP requests.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
		authFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_failures_total",
				Help:      "Rejected identity tokens.",
			},
			[]string{"reason"},
		),
		ownershipDenials: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ownership_denied_total",
				Help:      "Requests rejected by an ownership gate.",
			},
			[]string{"gate"},
		),
		ledgerLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ledger_request_duration_seconds",
				Help:      "Latency of calls to the ledger service.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"op", "outcome"},
		),
		topUps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "topups_total",
				Help:      "Balance top-ups by source and outcome.",
			},
			[]string{"source", "outcome"},
		),
		checkouts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "checkout_sessions_created_total",
				Help:      "Checkout sessions created.",
			},
		),
		webhookEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "webhook_events_total",
				Help:      "Verified payment webhook events.",
			},
			[]string{"type", "outcome"},
		),
	}

	p.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		p.httpLatency,
		p.authFailures,
		p.ownershipDenials,
		p.ledgerLatency,
		p.topUps,
		p.checkouts,
		p.webhookEvents,
	)

	return p
}

// Handler serves the registry in Prometheus exposition format.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (p *PrometheusRecorder) Registry() *prometheus.Registry {
	return p.registry
}

// ObserveHTTPRequest records request latency.
func (p *PrometheusRecorder) ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	p.httpLatency.WithLabelValues(method, route, strconv.Itoa(status)).Observe(duration.Seconds())
}

// IncAuthFailure counts a rejected token.
func (p *PrometheusRecorder) IncAuthFailure(reason string) {
	p.authFailures.WithLabelValues(reason).Inc()
}

// IncOwnershipDenied counts a gate rejection.
func (p *PrometheusRecorder) IncOwnershipDenied(gate string) {
	p.ownershipDenials.WithLabelValues(gate).Inc()
}

// ObserveLedgerCall records ledger call latency.
func (p *PrometheusRecorder) ObserveLedgerCall(op, outcome string, duration time.Duration) {
	p.ledgerLatency.WithLabelValues(op, outcome).Observe(duration.Seconds())
}

// IncTopUp counts a top-up.
func (p *PrometheusRecorder) IncTopUp(source, outcome string) {
	p.topUps.WithLabelValues(source, outcome).Inc()
}

// IncCheckoutCreated counts a checkout session.
func (p *PrometheusRecorder) IncCheckoutCreated() {
	p.checkouts.Inc()
}

// IncWebhookEvent counts a verified webhook event.
func (p *PrometheusRecorder) IncWebhookEvent(eventType, outcome string) {
	p.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

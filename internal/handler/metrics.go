package handler

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/devportal/devportal/internal/metrics"
)

// MetricsHandler exposes in-memory counters when the Prometheus registry is
// disabled.
type MetricsHandler struct {
	snapshotter metrics.Snapshotter
}

// NewMetricsHandler creates a new MetricsHandler.
func NewMetricsHandler(snapshotter metrics.Snapshotter) *MetricsHandler {
	return &MetricsHandler{snapshotter: snapshotter}
}

// Metrics returns counters in Prometheus exposition format.
func (h *MetricsHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.snapshotter == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}

	snap := h.snapshotter.Snapshot()

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	writeMetric(w, "devportal_http_requests_total %d\n", snap.HTTPRequests)
	writeMetric(w, "devportal_auth_failures_total %d\n", snap.AuthFailures)
	writeMetric(w, "devportal_ownership_denied_total %d\n", snap.OwnershipDenials)
	writeMetric(w, "devportal_ledger_calls_total %d\n", snap.LedgerCalls)
	writeMetric(w, "devportal_ledger_failures_total %d\n", snap.LedgerFailures)
	writeMetric(w, "devportal_checkout_sessions_created_total %d\n", snap.CheckoutsCreated)

	for _, key := range sortedKeys(snap.TopUps) {
		source, outcome := splitKey(key)
		writeMetric(w, "devportal_topups_total{source=%q,outcome=%q} %d\n", source, outcome, snap.TopUps[key])
	}
	for _, key := range sortedKeys(snap.WebhookEvents) {
		eventType, outcome := splitKey(key)
		writeMetric(w, "devportal_webhook_events_total{type=%q,outcome=%q} %d\n", eventType, outcome, snap.WebhookEvents[key])
	}
}

func writeMetric(w http.ResponseWriter, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}

func sortedKeys(m map[string]uint64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// splitKey splits a "label/outcome" snapshot key at its last slash.
func splitKey(key string) (string, string) {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '/' {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
}

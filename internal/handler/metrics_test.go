package handler

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/devportal/devportal/internal/metrics"
)

func TestMetricsHandler_Metrics(t *testing.T) {
	rec := metrics.NewInMemory()
	rec.ObserveHTTPRequest(http.MethodGet, "/api/users/{userId}", http.StatusOK, time.Millisecond)
	rec.IncAuthFailure("missing_token")
	rec.IncTopUp(metrics.TopUpWebhook, metrics.OutcomeSuccess)
	rec.IncWebhookEvent("checkout.session.completed", "credited")

	h := NewMetricsHandler(rec)
	w := httptest.NewRecorder()
	h.Metrics(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	body := w.Body.String()
	for _, want := range []string{
		"devportal_http_requests_total 1",
		"devportal_auth_failures_total 1",
		`devportal_topups_total{source="webhook",outcome="success"} 1`,
		`devportal_webhook_events_total{type="checkout.session.completed",outcome="credited"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in output:\n%s", want, body)
		}
	}
}

func TestMetricsHandler_NoSnapshotter(t *testing.T) {
	h := NewMetricsHandler(nil)
	w := httptest.NewRecorder()
	h.Metrics(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}
}

package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/devportal/devportal/internal/ledger"
	"github.com/devportal/devportal/internal/metrics"
	"github.com/devportal/devportal/internal/model"
	"github.com/devportal/devportal/internal/payments"
	"github.com/devportal/devportal/internal/service"
	"github.com/devportal/devportal/internal/testutil"
)

const testWebhookSecret = "whsec_test_secret"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	ledger    *testutil.FakeLedger
	processor *testutil.FakeProcessor
	events    *testutil.FakeEventLog
	metrics   *metrics.InMemoryRecorder
	credits   *service.CreditService
	billing   *service.BillingService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	l := testutil.NewFakeLedger()
	p := testutil.NewFakeProcessor()
	p.Verify = payments.NewStripe(payments.StripeConfig{SecretKey: "sk_test", WebhookSecret: testWebhookSecret}).ConstructEvent
	events := testutil.NewFakeEventLog()
	rec := metrics.NewInMemory()
	credits := service.NewCreditService(l, p, discardLogger(), rec, service.CreditConfig{WelcomeCredit: 1, TrialMonthlyLimit: 1})
	return &fixture{
		ledger:    l,
		processor: p,
		events:    events,
		metrics:   rec,
		credits:   credits,
		billing:   service.NewBillingService(p, credits, events, discardLogger(), rec, "https://dashboard.example"),
	}
}

func claimsFor(userID string) *model.Claims {
	return &model.Claims{UserID: userID}
}

type gatedHandler func(w http.ResponseWriter, r *http.Request, claims *model.Claims, resolved string) error

// serve runs a gated handler as the gate would after a successful check.
func serve(t *testing.T, h gatedHandler, req *http.Request, userID, resolved string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	if err := h(rec, req, claimsFor(userID), resolved); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	return rec
}

func jsonRequest(method, target, body string) *http.Request {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func assertError(t *testing.T, rec *httptest.ResponseRecorder, status int, message string) {
	t.Helper()
	if rec.Code != status {
		t.Errorf("expected status %d, got %d (%s)", status, rec.Code, rec.Body.String())
	}
	if got := decodeBody(t, rec)["error"]; got != message {
		t.Errorf("expected error %q, got %v", message, got)
	}
}

func TestHandler_NotFound(t *testing.T) {
	h := New()

	req := httptest.NewRequest(http.MethodGet, "/nonexistent", nil)
	rec := httptest.NewRecorder()

	h.NotFound(rec, req)

	assertError(t, rec, http.StatusNotFound, "resource not found")
}

func TestHandler_MethodNotAllowed(t *testing.T) {
	h := New()

	req := httptest.NewRequest(http.MethodPatch, "/api/users", nil)
	rec := httptest.NewRecorder()

	h.MethodNotAllowed(rec, req)

	assertError(t, rec, http.StatusMethodNotAllowed, "method not allowed")
}

func TestWriteLedgerError(t *testing.T) {
	testCases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{
			name:       "downstream status is kept",
			err:        &ledger.StatusError{Op: "get_user", Status: http.StatusNotFound, Body: `{"detail":"secret detail"}`},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "wrapped downstream status",
			err:        errors.Join(errors.New("outer"), &ledger.StatusError{Op: "top_up", Status: http.StatusBadGateway}),
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "transport failure",
			err:        errors.New("dial tcp: connection refused"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/users/u1", nil)
			rec := httptest.NewRecorder()

			writeLedgerError(rec, req, discardLogger(), tc.err, "Failed to fetch user credits")

			assertError(t, rec, tc.wantStatus, "Failed to fetch user credits")
			if strings.Contains(rec.Body.String(), "secret detail") {
				t.Error("downstream body leaked to the client")
			}
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	t.Run("invalid json", func(t *testing.T) {
		rec := httptest.NewRecorder()
		var dst model.TopUpRequest
		if decodeJSON(rec, jsonRequest(http.MethodPost, "/", "{not json"), &dst) {
			t.Fatal("expected decode to fail")
		}
		assertError(t, rec, http.StatusBadRequest, "Invalid request body")
	})

	t.Run("body too large", func(t *testing.T) {
		rec := httptest.NewRecorder()
		req := jsonRequest(http.MethodPost, "/", `{"user_id":"`+strings.Repeat("a", 100)+`"}`)
		req.Body = http.MaxBytesReader(rec, req.Body, 10)
		var dst model.TopUpRequest
		if decodeJSON(rec, req, &dst) {
			t.Fatal("expected decode to fail")
		}
		assertError(t, rec, http.StatusRequestEntityTooLarge, "Request body too large")
	})
}

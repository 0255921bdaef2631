package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/devportal/devportal/internal/service"
	"github.com/devportal/devportal/internal/testutil"
)

func newInferenceHandler(t *testing.T, f *fixture, upstream http.HandlerFunc) *InferenceHandler {
	t.Helper()
	srv := httptest.NewServer(upstream)
	t.Cleanup(srv.Close)
	svc := service.NewInferenceService(f.credits, discardLogger(), service.InferenceConfig{
		APIURL:   srv.URL,
		UsageURL: srv.URL,
		Timeout:  5 * time.Second,
	})
	return NewInferenceHandler(discardLogger(), svc)
}

func TestInferenceHandler_Usage(t *testing.T) {
	t.Run("proxies with first api key", func(t *testing.T) {
		f := newFixture(t)
		f.ledger.AddCredential(testutil.NewTestDID(t, "did_1", "u1"))
		f.ledger.AddCredential(testutil.NewTestCredential(t, "c1", "u1"))
		var gotAuth string
		h := newInferenceHandler(t, f, func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"total_requests":3}`))
		})

		rec := serve(t, h.Usage, jsonRequest(http.MethodGet, "/api/usage?user_id=u1", ""), "u1", "u1")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d (%s)", rec.Code, rec.Body.String())
		}
		if rec.Body.String() != `{"total_requests":3}` {
			t.Errorf("unexpected body %s", rec.Body.String())
		}
		if gotAuth != "Bearer sk-c1" {
			t.Errorf("unexpected upstream authorization %q", gotAuth)
		}
	})

	t.Run("no api key", func(t *testing.T) {
		f := newFixture(t)
		f.ledger.AddCredential(testutil.NewTestDID(t, "did_1", "u1"))
		h := newInferenceHandler(t, f, func(w http.ResponseWriter, r *http.Request) {
			t.Error("upstream must not be called")
		})

		rec := serve(t, h.Usage, jsonRequest(http.MethodGet, "/api/usage?user_id=u1", ""), "u1", "u1")

		if rec.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", rec.Code)
		}
		body := decodeBody(t, rec)
		if body["requiresApiKey"] != true {
			t.Errorf("expected requiresApiKey true, got %v", body["requiresApiKey"])
		}
		if body["error"] != "No API keys found. Please create an API key first to view usage statistics." {
			t.Errorf("unexpected error %v", body["error"])
		}
	})

	t.Run("upstream error keeps status", func(t *testing.T) {
		f := newFixture(t)
		f.ledger.AddCredential(testutil.NewTestCredential(t, "c1", "u1"))
		h := newInferenceHandler(t, f, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})

		rec := serve(t, h.Usage, jsonRequest(http.MethodGet, "/", ""), "u1", "u1")

		assertError(t, rec, http.StatusServiceUnavailable, "Failed to fetch usage data")
	})

	t.Run("credential listing fails", func(t *testing.T) {
		f := newFixture(t)
		f.ledger.Fail(testutil.OpListCredentials, http.StatusBadGateway)
		h := newInferenceHandler(t, f, func(w http.ResponseWriter, r *http.Request) {
			t.Error("upstream must not be called")
		})

		rec := serve(t, h.Usage, jsonRequest(http.MethodGet, "/", ""), "u1", "u1")

		assertError(t, rec, http.StatusBadGateway, "Failed to fetch usage data")
	})
}

func TestInferenceHandler_TestRequest(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		f := newFixture(t)
		var got map[string]any
		h := newInferenceHandler(t, f, func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewDecoder(r.Body).Decode(&got)
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"output":"why did the gopher cross the road"}`))
		})

		rec := serve(t, h.TestRequest, jsonRequest(http.MethodPost, "/api/test-request", `{"apiKey":"sk-test"}`), "u1", "")

		if rec.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d (%s)", rec.Code, rec.Body.String())
		}
		if got["model"] != "openai/gpt-oss-20b" || got["instructions"] != "You are a helpful assistant." {
			t.Errorf("defaults not applied: %v", got)
		}
	})

	t.Run("api key required", func(t *testing.T) {
		f := newFixture(t)
		h := newInferenceHandler(t, f, func(w http.ResponseWriter, r *http.Request) {
			t.Error("upstream must not be called")
		})

		rec := serve(t, h.TestRequest, jsonRequest(http.MethodPost, "/api/test-request", `{}`), "u1", "")

		assertError(t, rec, http.StatusBadRequest, "API key is required")
	})

	t.Run("upstream error carries details", func(t *testing.T) {
		f := newFixture(t)
		h := newInferenceHandler(t, f, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":"rate limited","retry_after":3}`))
		})

		rec := serve(t, h.TestRequest, jsonRequest(http.MethodPost, "/", `{"apiKey":"sk-test"}`), "u1", "")

		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("expected status 429, got %d", rec.Code)
		}
		body := decodeBody(t, rec)
		if body["error"] != "rate limited" {
			t.Errorf("unexpected error %v", body["error"])
		}
		details, ok := body["details"].(map[string]any)
		if !ok || details["retry_after"] != 3.0 {
			t.Errorf("unexpected details %v", body["details"])
		}
	})
}

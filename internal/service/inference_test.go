package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/devportal/devportal/internal/model"
	"github.com/devportal/devportal/internal/testutil"
)

type capturedRequest struct {
	method string
	path   string
	auth   string
	body   []byte
}

func newInferenceFixture(t *testing.T, status int, response string) (*InferenceService, *testutil.FakeLedger, *[]capturedRequest) {
	t.Helper()
	var captured []capturedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		captured = append(captured, capturedRequest{
			method: r.Method,
			path:   r.URL.Path,
			auth:   r.Header.Get("Authorization"),
			body:   body,
		})
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)

	l := testutil.NewFakeLedger()
	credits := NewCreditService(l, testutil.NewFakeProcessor(), discardLogger(), nil, CreditConfig{})
	svc := NewInferenceService(credits, discardLogger(), InferenceConfig{
		APIURL:   srv.URL + "/",
		UsageURL: srv.URL,
		Timeout:  5 * time.Second,
	})
	return svc, l, &captured
}

func TestInferenceService_Usage(t *testing.T) {
	t.Run("uses the first api key", func(t *testing.T) {
		svc, l, captured := newInferenceFixture(t, http.StatusOK, `{"total_requests":3}`)
		l.AddCredential(testutil.NewTestDID(t, "c0", "did:privy:u1"))
		l.AddCredential(testutil.NewTestCredential(t, "c1", "did:privy:u1"))

		out, err := svc.Usage(context.Background(), "did:privy:u1")
		if err != nil {
			t.Fatalf("Usage: %v", err)
		}
		if string(out) != `{"total_requests":3}` {
			t.Errorf("unexpected body %s", out)
		}
		if len(*captured) != 1 {
			t.Fatalf("expected one upstream call, got %d", len(*captured))
		}
		req := (*captured)[0]
		if req.method != http.MethodGet || req.path != "/v1/usage" {
			t.Errorf("unexpected request %s %s", req.method, req.path)
		}
		if req.auth != "Bearer sk-c1" {
			t.Errorf("authorization = %q, want the API key", req.auth)
		}
	})

	t.Run("no api key", func(t *testing.T) {
		svc, l, captured := newInferenceFixture(t, http.StatusOK, `{}`)
		l.AddCredential(testutil.NewTestDID(t, "c0", "did:privy:u1"))

		if _, err := svc.Usage(context.Background(), "did:privy:u1"); !errors.Is(err, ErrNoAPIKey) {
			t.Fatalf("expected ErrNoAPIKey, got %v", err)
		}
		if len(*captured) != 0 {
			t.Error("expected no upstream call")
		}
	})

	t.Run("upstream error", func(t *testing.T) {
		svc, l, _ := newInferenceFixture(t, http.StatusUnauthorized, `{"error":"invalid key"}`)
		l.AddCredential(testutil.NewTestCredential(t, "c1", "did:privy:u1"))

		_, err := svc.Usage(context.Background(), "did:privy:u1")
		var upstream *UpstreamError
		if !errors.As(err, &upstream) {
			t.Fatalf("expected UpstreamError, got %v", err)
		}
		if upstream.Status != http.StatusUnauthorized {
			t.Errorf("status = %d", upstream.Status)
		}
	})
}

func TestInferenceService_TestRequest(t *testing.T) {
	t.Run("applies defaults", func(t *testing.T) {
		svc, _, captured := newInferenceFixture(t, http.StatusOK, `{"id":"resp_1"}`)

		out, err := svc.TestRequest(context.Background(), model.TestRequest{APIKey: "sk-user"})
		if err != nil {
			t.Fatalf("TestRequest: %v", err)
		}
		if string(out) != `{"id":"resp_1"}` {
			t.Errorf("unexpected body %s", out)
		}

		req := (*captured)[0]
		if req.method != http.MethodPost || req.path != "/v1/responses" {
			t.Errorf("unexpected request %s %s", req.method, req.path)
		}
		if req.auth != "Bearer sk-user" {
			t.Errorf("authorization = %q", req.auth)
		}

		var sent model.InferenceRequest
		if err := json.Unmarshal(req.body, &sent); err != nil {
			t.Fatalf("decode forwarded body: %v", err)
		}
		if sent.Model != model.DefaultTestModel || sent.Instructions != model.DefaultTestInstructions {
			t.Errorf("defaults not applied: %+v", sent)
		}
	})

	t.Run("api key required", func(t *testing.T) {
		svc, _, captured := newInferenceFixture(t, http.StatusOK, `{}`)

		if _, err := svc.TestRequest(context.Background(), model.TestRequest{}); !errors.Is(err, ErrAPIKeyRequired) {
			t.Fatalf("expected ErrAPIKeyRequired, got %v", err)
		}
		if len(*captured) != 0 {
			t.Error("expected no upstream call")
		}
	})

	t.Run("upstream error keeps status and details", func(t *testing.T) {
		svc, _, _ := newInferenceFixture(t, http.StatusTooManyRequests, `{"error":"rate limited","retry":5}`)

		_, err := svc.TestRequest(context.Background(), model.TestRequest{APIKey: "sk-user"})
		var upstream *UpstreamError
		if !errors.As(err, &upstream) {
			t.Fatalf("expected UpstreamError, got %v", err)
		}
		if upstream.Status != http.StatusTooManyRequests {
			t.Errorf("status = %d", upstream.Status)
		}
		if upstream.Message() != "rate limited" {
			t.Errorf("message = %q", upstream.Message())
		}
		details, ok := upstream.Details().(map[string]any)
		if !ok || details["retry"] != 5.0 {
			t.Errorf("details = %v", upstream.Details())
		}
	})
}

func TestUpstreamError_Fallbacks(t *testing.T) {
	e := &UpstreamError{Status: http.StatusBadGateway, Body: []byte("bad gateway")}

	if e.Message() != "Request failed" {
		t.Errorf("message = %q", e.Message())
	}
	if e.Details() != "bad gateway" {
		t.Errorf("details = %v", e.Details())
	}
}

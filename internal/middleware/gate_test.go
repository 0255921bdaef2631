package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/devportal/devportal/internal/auth"
	"github.com/devportal/devportal/internal/cache"
	"github.com/devportal/devportal/internal/metrics"
	"github.com/devportal/devportal/internal/model"
	"github.com/devportal/devportal/internal/testutil"
)

const (
	ownerID = "did:privy:owner"
	otherID = "did:privy:other"
)

type gateFixture struct {
	router   chi.Router
	verifier *testutil.FakeVerifier
	ledger   *testutil.FakeLedger
	metrics  *metrics.InMemoryRecorder
	calls    int
	resolved string
	body     string
}

func newGateFixture(t *testing.T, limiter UserLimiter) *gateFixture {
	t.Helper()
	f := &gateFixture{
		verifier: testutil.NewFakeVerifier(),
		ledger:   testutil.NewFakeLedger(),
		metrics:  metrics.NewInMemory(),
	}
	f.verifier.Issue("owner-token", ownerID)
	f.verifier.Issue("other-token", otherID)
	f.ledger.AddCredential(testutil.NewTestCredential(t, "cred_1", ownerID))

	gates := NewGates(GateConfig{
		Logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		Verifier:      f.verifier,
		Credentials:   f.ledger,
		Metrics:       f.metrics,
		Limiter:       limiter,
		RatePerMinute: 60,
		Burst:         1,
	})

	handler := func(w http.ResponseWriter, r *http.Request, claims *model.Claims, resolved string) error {
		f.calls++
		f.resolved = resolved
		if auth.UserIDFromContext(r.Context()) != claims.UserID {
			return errors.New("claims missing from context")
		}
		if r.Body != nil {
			data, _ := io.ReadAll(r.Body)
			f.body = string(data)
		}
		w.WriteHeader(http.StatusOK)
		return nil
	}

	r := chi.NewRouter()
	r.Post("/auth", gates.Authenticated(handler))
	r.Get("/users/{userId}", gates.UserFromPath("userId", handler))
	r.Post("/body", gates.UserFromBody(handler))
	r.Get("/query", gates.UserFromQuery(handler))
	r.Get("/credentials/{credentialId}", gates.CredentialOwner("credentialId", handler))
	r.Get("/fails", gates.Authenticated(func(http.ResponseWriter, *http.Request, *model.Claims, string) error {
		return errors.New("ledger: secret internal detail")
	}))
	r.Get("/panics", gates.Authenticated(func(http.ResponseWriter, *http.Request, *model.Claims, string) error {
		panic("boom")
	}))
	f.router = r
	return f
}

func (f *gateFixture) do(method, target, token, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if token != "" {
		testutil.Bearer(req, token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Error
}

func TestGates_Unauthenticated(t *testing.T) {
	routes := []struct {
		method string
		target string
		body   string
	}{
		{http.MethodPost, "/auth", ""},
		{http.MethodGet, "/users/" + ownerID, ""},
		{http.MethodPost, "/body", `{"user_id":"` + ownerID + `"}`},
		{http.MethodGet, "/query?user_id=" + ownerID, ""},
		{http.MethodGet, "/credentials/cred_1", ""},
	}

	for _, tokenCase := range []struct{ name, token string }{
		{"missing token", ""},
		{"unknown token", "forged-token"},
	} {
		for _, route := range routes {
			t.Run(tokenCase.name+" "+route.target, func(t *testing.T) {
				f := newGateFixture(t, nil)

				rec := f.do(route.method, route.target, tokenCase.token, route.body)

				if rec.Code != http.StatusUnauthorized {
					t.Fatalf("status = %d, want 401", rec.Code)
				}
				if msg := errorMessage(t, rec); msg != MsgUnauthorized {
					t.Errorf("error = %q", msg)
				}
				if f.calls != 0 {
					t.Error("handler must not run")
				}
				if n := len(f.ledger.Calls()); n != 0 {
					t.Errorf("expected zero ledger calls, got %d", n)
				}
			})
		}
	}
}

func TestGates_AuthFailureMetrics(t *testing.T) {
	f := newGateFixture(t, nil)

	f.do(http.MethodPost, "/auth", "", "")
	f.do(http.MethodPost, "/auth", "forged-token", "")

	if got := f.metrics.Snapshot().AuthFailures; got != 2 {
		t.Errorf("auth failures = %d, want 2", got)
	}
}

func TestGates_Authenticated(t *testing.T) {
	f := newGateFixture(t, nil)

	rec := f.do(http.MethodPost, "/auth", "owner-token", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if f.calls != 1 || f.resolved != "" {
		t.Errorf("calls = %d, resolved = %q", f.calls, f.resolved)
	}
}

func TestGates_UserFromPath(t *testing.T) {
	tests := []struct {
		name       string
		token      string
		target     string
		wantStatus int
	}{
		{"owner", "owner-token", "/users/" + ownerID, http.StatusOK},
		{"other user", "other-token", "/users/" + ownerID, http.StatusForbidden},
		{"case differs", "owner-token", "/users/" + strings.ToUpper(ownerID), http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newGateFixture(t, nil)

			rec := f.do(http.MethodGet, tt.target, tt.token, "")
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && f.resolved != ownerID {
				t.Errorf("resolved = %q", f.resolved)
			}
			if tt.wantStatus == http.StatusForbidden {
				if msg := errorMessage(t, rec); msg != MsgForbidden {
					t.Errorf("error = %q", msg)
				}
				if f.calls != 0 {
					t.Error("handler must not run")
				}
				if f.metrics.Snapshot().OwnershipDenials != 1 {
					t.Error("expected an ownership denial to be counted")
				}
			}
		})
	}
}

func TestGates_UserFromBody(t *testing.T) {
	tests := []struct {
		name       string
		token      string
		body       string
		wantStatus int
		wantError  string
	}{
		{"user_id matches", "owner-token", `{"user_id":"` + ownerID + `","amount":5}`, http.StatusOK, ""},
		{"userId alias matches", "owner-token", `{"userId":"` + ownerID + `"}`, http.StatusOK, ""},
		{"mismatch", "other-token", `{"user_id":"` + ownerID + `"}`, http.StatusForbidden, MsgForbidden},
		{"missing user id", "owner-token", `{"amount":5}`, http.StatusBadRequest, MsgUserIDRequired},
		{"empty body", "owner-token", "", http.StatusBadRequest, MsgUserIDRequired},
		{"malformed json", "owner-token", `{"user_id":`, http.StatusBadRequest, MsgInvalidBody},
		{"non-string user id", "owner-token", `{"user_id":42}`, http.StatusBadRequest, MsgInvalidBody},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newGateFixture(t, nil)

			rec := f.do(http.MethodPost, "/body", tt.token, tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantError != "" {
				if msg := errorMessage(t, rec); msg != tt.wantError {
					t.Errorf("error = %q, want %q", msg, tt.wantError)
				}
				return
			}
			if f.body != tt.body {
				t.Errorf("handler saw body %q, want the original %q", f.body, tt.body)
			}
		})
	}
}

func TestGates_UserFromQuery(t *testing.T) {
	f := newGateFixture(t, nil)

	if rec := f.do(http.MethodGet, "/query?user_id="+ownerID, "owner-token", ""); rec.Code != http.StatusOK {
		t.Errorf("owner status = %d, want 200", rec.Code)
	}
	if rec := f.do(http.MethodGet, "/query?user_id="+ownerID, "other-token", ""); rec.Code != http.StatusForbidden {
		t.Errorf("other status = %d, want 403", rec.Code)
	}
	rec := f.do(http.MethodGet, "/query", "owner-token", "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing status = %d, want 400", rec.Code)
	}
	if msg := errorMessage(t, rec); msg != MsgUserIDRequired {
		t.Errorf("error = %q", msg)
	}
}

func TestGates_CredentialOwner(t *testing.T) {
	t.Run("owner", func(t *testing.T) {
		f := newGateFixture(t, nil)

		rec := f.do(http.MethodGet, "/credentials/cred_1", "owner-token", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		if f.resolved != "cred_1" {
			t.Errorf("resolved = %q", f.resolved)
		}
	})

	t.Run("other user's credential", func(t *testing.T) {
		f := newGateFixture(t, nil)

		rec := f.do(http.MethodGet, "/credentials/cred_1", "other-token", "")
		if rec.Code != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", rec.Code)
		}
		if f.calls != 0 {
			t.Error("handler must not run")
		}
	})

	t.Run("unknown credential", func(t *testing.T) {
		f := newGateFixture(t, nil)

		rec := f.do(http.MethodGet, "/credentials/cred_missing", "owner-token", "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
		if msg := errorMessage(t, rec); msg != MsgCredentialNotFound {
			t.Errorf("error = %q", msg)
		}
	})

	t.Run("ledger failure fails closed", func(t *testing.T) {
		f := newGateFixture(t, nil)
		f.ledger.Fail(testutil.OpGetCredential, http.StatusInternalServerError)

		rec := f.do(http.MethodGet, "/credentials/cred_1", "owner-token", "")
		if rec.Code != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", rec.Code)
		}
		if f.calls != 0 {
			t.Error("handler must not run")
		}
	})

	t.Run("network failure fails closed", func(t *testing.T) {
		f := newGateFixture(t, nil)
		f.ledger.Errors[testutil.OpGetCredential] = errors.New("connection refused")

		if rec := f.do(http.MethodGet, "/credentials/cred_1", "owner-token", ""); rec.Code != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", rec.Code)
		}
	})

	t.Run("invalid id never reaches the ledger", func(t *testing.T) {
		f := newGateFixture(t, nil)

		rec := f.do(http.MethodGet, "/credentials/"+strings.Repeat("x", MaxIdentifierLength+1), "owner-token", "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
		if n := len(f.ledger.Calls()); n != 0 {
			t.Errorf("expected zero ledger calls, got %d", n)
		}
	})
}

func TestGates_HandlerErrorIsGeneric(t *testing.T) {
	f := newGateFixture(t, nil)

	rec := f.do(http.MethodGet, "/fails", "owner-token", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	body := rec.Body.String()
	if strings.Contains(body, "secret internal detail") {
		t.Error("handler error leaked to the client")
	}
	if !strings.Contains(body, MsgInternal) {
		t.Errorf("body = %s", body)
	}
}

func TestGates_PanicIsRecovered(t *testing.T) {
	f := newGateFixture(t, nil)

	rec := f.do(http.MethodGet, "/panics", "owner-token", "")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	if msg := errorMessage(t, rec); msg != MsgInternal {
		t.Errorf("error = %q", msg)
	}
}

type stubUserLimiter struct {
	result *cache.RateLimitResult
	err    error
	calls  int
}

func (s *stubUserLimiter) CheckUserRateLimit(_ context.Context, _ string, _, _ int) (*cache.RateLimitResult, error) {
	s.calls++
	return s.result, s.err
}

func TestGates_UserRateLimit(t *testing.T) {
	t.Run("exceeded", func(t *testing.T) {
		limiter := &stubUserLimiter{result: &cache.RateLimitResult{Allowed: false, RetryAfter: 3 * time.Second, ResetAt: time.Now()}}
		f := newGateFixture(t, limiter)

		rec := f.do(http.MethodPost, "/auth", "owner-token", "")
		if rec.Code != http.StatusTooManyRequests {
			t.Fatalf("status = %d, want 429", rec.Code)
		}
		if got := rec.Header().Get("Retry-After"); got != "3" {
			t.Errorf("Retry-After = %q, want 3", got)
		}
		if f.calls != 0 {
			t.Error("handler must not run")
		}
	})

	t.Run("limiter error fails open", func(t *testing.T) {
		limiter := &stubUserLimiter{err: errors.New("redis down")}
		f := newGateFixture(t, limiter)

		if rec := f.do(http.MethodPost, "/auth", "owner-token", ""); rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("not consulted for unauthenticated requests", func(t *testing.T) {
		limiter := &stubUserLimiter{result: &cache.RateLimitResult{Allowed: true}}
		f := newGateFixture(t, limiter)

		f.do(http.MethodPost, "/auth", "", "")
		if limiter.calls != 0 {
			t.Errorf("limiter calls = %d, want 0", limiter.calls)
		}
	})
}

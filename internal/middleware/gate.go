package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/devportal/devportal/internal/auth"
	"github.com/devportal/devportal/internal/ledger"
	"github.com/devportal/devportal/internal/metrics"
	"github.com/devportal/devportal/internal/model"
)

// Gate names used in logs and metrics.
const (
	GateAuthenticated   = "authenticated"
	GateUserFromPath    = "user_path"
	GateUserFromBody    = "user_body"
	GateUserFromQuery   = "user_query"
	GateCredentialOwner = "credential_owner"
)

// HandlerFunc is a route handler behind an ownership gate. resolved is the
// identifier the gate checked: the user id, or the credential id for
// CredentialOwner, or "" for Authenticated. A non-nil error becomes a
// generic 500.
type HandlerFunc func(w http.ResponseWriter, r *http.Request, claims *model.Claims, resolved string) error

// CredentialLookup fetches a credential to check its owner.
type CredentialLookup interface {
	GetCredential(ctx context.Context, credentialID string) (*model.Credential, error)
}

// GateConfig configures the ownership gates.
type GateConfig struct {
	Logger      *slog.Logger
	Verifier    auth.Verifier
	Credentials CredentialLookup
	Metrics     metrics.Recorder

	// Optional per-user rate limit, checked right after verification.
	Limiter       UserLimiter
	RatePerMinute int
	Burst         int
}

// Gates builds ownership-checking wrappers around route handlers.
type Gates struct {
	cfg GateConfig
}

// NewGates creates the gate set.
func NewGates(cfg GateConfig) *Gates {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewNoop()
	}
	return &Gates{cfg: cfg}
}

// resolver extracts and checks the gated identifier. It writes the error
// response itself and returns ok=false to stop the request.
type resolver func(w http.ResponseWriter, r *http.Request, claims *model.Claims) (resolved string, ok bool)

// Authenticated only requires a verified caller.
func (g *Gates) Authenticated(h HandlerFunc) http.HandlerFunc {
	return g.wrap(GateAuthenticated, func(http.ResponseWriter, *http.Request, *model.Claims) (string, bool) {
		return "", true
	}, h)
}

// UserFromPath requires the chi URL parameter to name the caller.
func (g *Gates) UserFromPath(param string, h HandlerFunc) http.HandlerFunc {
	return g.wrap(GateUserFromPath, func(w http.ResponseWriter, r *http.Request, claims *model.Claims) (string, bool) {
		return g.checkUser(w, r, GateUserFromPath, claims, chi.URLParam(r, param))
	}, h)
}

// UserFromQuery requires the user_id query parameter to name the caller.
func (g *Gates) UserFromQuery(h HandlerFunc) http.HandlerFunc {
	return g.wrap(GateUserFromQuery, func(w http.ResponseWriter, r *http.Request, claims *model.Claims) (string, bool) {
		return g.checkUser(w, r, GateUserFromQuery, claims, r.URL.Query().Get("user_id"))
	}, h)
}

// bodyUser is the part of a JSON body the body gate reads.
type bodyUser struct {
	UserID    string `json:"user_id"`
	UserIDAlt string `json:"userId"`
}

// UserFromBody requires the JSON body's user_id (or userId) to name the
// caller. The raw body is re-attached so the handler can decode it.
func (g *Gates) UserFromBody(h HandlerFunc) http.HandlerFunc {
	return g.wrap(GateUserFromBody, func(w http.ResponseWriter, r *http.Request, claims *model.Claims) (string, bool) {
		var raw []byte
		var err error
		if r.Body != nil {
			raw, err = io.ReadAll(r.Body)
		}
		if err != nil {
			if IsBodyTooLarge(err) {
				WriteError(w, http.StatusRequestEntityTooLarge, MsgBodyTooLarge)
				return "", false
			}
			WriteError(w, http.StatusBadRequest, MsgInvalidBody)
			return "", false
		}
		r.Body = io.NopCloser(bytes.NewReader(raw))

		var body bodyUser
		if len(bytes.TrimSpace(raw)) > 0 {
			if err := json.Unmarshal(raw, &body); err != nil {
				WriteError(w, http.StatusBadRequest, MsgInvalidBody)
				return "", false
			}
		}

		userID := body.UserID
		if userID == "" {
			userID = body.UserIDAlt
		}
		return g.checkUser(w, r, GateUserFromBody, claims, userID)
	}, h)
}

// CredentialOwner requires the credential named by the chi URL parameter to
// belong to the caller, checked against the ledger. Lookup failures other
// than 404 deny the request.
func (g *Gates) CredentialOwner(param string, h HandlerFunc) http.HandlerFunc {
	return g.wrap(GateCredentialOwner, func(w http.ResponseWriter, r *http.Request, claims *model.Claims) (string, bool) {
		credentialID := chi.URLParam(r, param)
		if credentialID == "" {
			WriteError(w, http.StatusBadRequest, MsgCredentialRequired)
			return "", false
		}
		if err := ValidateIdentifier(credentialID); err != nil {
			WriteError(w, http.StatusNotFound, MsgCredentialNotFound)
			return "", false
		}

		cred, err := g.cfg.Credentials.GetCredential(r.Context(), credentialID)
		if err != nil {
			if ledger.IsNotFound(err) {
				WriteError(w, http.StatusNotFound, MsgCredentialNotFound)
				return "", false
			}
			g.cfg.Logger.Warn("credential ownership lookup failed",
				slog.String("credential_id", credentialID),
				slog.String("user_id", claims.UserID),
				slog.String("error", err.Error()),
				slog.String("request_id", GetRequestID(r.Context())),
			)
			g.deny(w, r, GateCredentialOwner, claims)
			return "", false
		}

		if cred == nil || !claims.Owns(cred.UserID) {
			g.deny(w, r, GateCredentialOwner, claims)
			return "", false
		}

		return credentialID, true
	}, h)
}

func (g *Gates) wrap(gate string, resolve resolver, h HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wrapped := wrapResponseWriter(w)
		defer func() {
			if rvr := recover(); rvr != nil {
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}
				logPanic(g.cfg.Logger, r, rvr)
				if !wrapped.wroteHeader {
					WriteError(wrapped, http.StatusInternalServerError, MsgInternal)
				}
			}
		}()

		claims, ok := g.authenticate(wrapped, r)
		if !ok {
			return
		}
		if !g.allow(wrapped, r, claims) {
			return
		}

		resolved, ok := resolve(wrapped, r, claims)
		if !ok {
			return
		}

		r = r.WithContext(auth.ContextWithClaims(r.Context(), claims))
		if err := h(wrapped, r, claims, resolved); err != nil {
			g.cfg.Logger.Error("handler failed",
				slog.String("gate", gate),
				slog.String("user_id", claims.UserID),
				slog.String("error", err.Error()),
				slog.String("request_id", GetRequestID(r.Context())),
			)
			if !wrapped.wroteHeader {
				WriteError(wrapped, http.StatusInternalServerError, MsgInternal)
			}
		}
	}
}

func (g *Gates) authenticate(w http.ResponseWriter, r *http.Request) (*model.Claims, bool) {
	reason := ""
	token, err := auth.ExtractBearer(r)
	if err != nil {
		reason = "missing_token"
	}

	var claims *model.Claims
	if reason == "" {
		claims, err = g.cfg.Verifier.Verify(r.Context(), token)
		if err != nil || claims == nil || claims.UserID == "" {
			reason = "invalid_token"
		}
	}

	if reason != "" {
		attrs := []any{
			slog.String("reason", reason),
			slog.String("endpoint", r.Method+" "+r.URL.Path),
			slog.String("request_id", GetRequestID(r.Context())),
		}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		g.cfg.Logger.Warn("authentication failed", attrs...)
		g.cfg.Metrics.IncAuthFailure(reason)
		WriteError(w, http.StatusUnauthorized, MsgUnauthorized)
		return nil, false
	}

	return claims, true
}

// allow applies the optional per-user rate limit. Limiter errors fail open.
func (g *Gates) allow(w http.ResponseWriter, r *http.Request, claims *model.Claims) bool {
	if g.cfg.Limiter == nil || g.cfg.RatePerMinute <= 0 {
		return true
	}

	result, err := g.cfg.Limiter.CheckUserRateLimit(r.Context(), claims.UserID, g.cfg.RatePerMinute, g.cfg.Burst)
	if err != nil {
		g.cfg.Logger.Error("user rate limit check failed",
			slog.String("error", err.Error()),
			slog.String("request_id", GetRequestID(r.Context())),
		)
		return true
	}

	if !result.Allowed {
		g.cfg.Logger.Warn("rate limit exceeded",
			slog.String("type", "user"),
			slog.String("user_id", claims.UserID),
			slog.String("endpoint", r.Method+" "+r.URL.Path),
			slog.Int64("retry_after_seconds", int64(result.RetryAfter.Seconds())),
			slog.String("request_id", GetRequestID(r.Context())),
		)
		writeRateLimitError(w, g.cfg.Burst, result)
		return false
	}

	setRateLimitHeaders(w, g.cfg.Burst, result)
	return true
}

func (g *Gates) checkUser(w http.ResponseWriter, r *http.Request, gate string, claims *model.Claims, userID string) (string, bool) {
	if userID == "" {
		WriteError(w, http.StatusBadRequest, MsgUserIDRequired)
		return "", false
	}
	if ValidateIdentifier(userID) != nil || !claims.Owns(userID) {
		g.deny(w, r, gate, claims)
		return "", false
	}
	return userID, true
}

func (g *Gates) deny(w http.ResponseWriter, r *http.Request, gate string, claims *model.Claims) {
	g.cfg.Logger.Warn("ownership check failed",
		slog.String("gate", gate),
		slog.String("user_id", claims.UserID),
		slog.String("endpoint", r.Method+" "+r.URL.Path),
		slog.String("request_id", GetRequestID(r.Context())),
	)
	g.cfg.Metrics.IncOwnershipDenied(gate)
	WriteError(w, http.StatusForbidden, MsgForbidden)
}

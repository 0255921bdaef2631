package auth

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/devportal/devportal/internal/model"
)

const (
	// PrivyIssuer is the issuer of every Privy access token.
	PrivyIssuer = "privy.io"

	defaultPrivyAPIURL = "https://auth.privy.io"

	// keyRetryInterval is how long a failed key fetch is served from memory
	// before Privy is asked again.
	keyRetryInterval = 5 * time.Second
)

// ErrKeyUnavailable indicates the verification key could not be obtained.
var ErrKeyUnavailable = errors.New("verification key unavailable")

// PrivyConfig configures a PrivyVerifier.
type PrivyConfig struct {
	AppID     string
	AppSecret string
	// VerificationKey is the app's PEM encoded ES256 public key.
	// When empty it is fetched from the Privy API using the app secret.
	VerificationKey string
	APIURL          string
	Timeout         time.Duration
}

// PrivyVerifier validates Privy access tokens (ES256 JWTs).
type PrivyVerifier struct {
	appID     string
	appSecret string
	http      *resty.Client
	now       func() time.Time

	fetches singleflight.Group

	mu       sync.Mutex
	key      *ecdsa.PublicKey
	fetchErr error
	failedAt time.Time
}

type appSettings struct {
	VerificationKey string `json:"verification_key"`
}

// NewPrivyVerifier creates a verifier for the configured app.
func NewPrivyVerifier(cfg PrivyConfig) (*PrivyVerifier, error) {
	if cfg.AppID == "" {
		return nil, errors.New("privy app id is required")
	}

	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = defaultPrivyAPIURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	v := &PrivyVerifier{
		appID:     cfg.AppID,
		appSecret: cfg.AppSecret,
		http: resty.New().
			SetBaseURL(strings.TrimRight(apiURL, "/")).
			SetTimeout(timeout).
			SetHeader("privy-app-id", cfg.AppID),
		now: time.Now,
	}

	if cfg.VerificationKey != "" {
		key, err := parseVerificationKey(cfg.VerificationKey)
		if err != nil {
			return nil, err
		}
		v.key = key
	} else if cfg.AppSecret == "" {
		return nil, fmt.Errorf("%w: neither a verification key nor an app secret is configured", ErrKeyUnavailable)
	}

	return v, nil
}

// Verify checks signature, issuer, audience and expiry, then normalizes the
// caller's user id from the userId, sub or user_id claim.
func (v *PrivyVerifier) Verify(ctx context.Context, token string) (*model.Claims, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	key, err := v.verificationKey(ctx)
	if err != nil {
		return nil, err
	}

	mapClaims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(token, mapClaims,
		func(*jwt.Token) (any, error) { return key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithIssuer(PrivyIssuer),
		jwt.WithAudience(v.appID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	return claimsFromMap(mapClaims, v.appID)
}

func claimsFromMap(m jwt.MapClaims, appID string) (*model.Claims, error) {
	claims := &model.Claims{
		UserID:    firstString(m, "userId", "sub", "user_id"),
		SessionID: firstString(m, "sid", "session_id"),
		AppID:     appID,
	}
	if claims.UserID == "" {
		return nil, ErrMissingSubject
	}

	if iss, err := m.GetIssuer(); err == nil {
		claims.Issuer = iss
	}
	if iat, err := m.GetIssuedAt(); err == nil && iat != nil {
		claims.IssuedAt = iat.Time
	}
	if exp, err := m.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}

	return claims, nil
}

func firstString(m jwt.MapClaims, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// verificationKey returns the configured key, fetching it on first use.
// Concurrent callers share one fetch, and a failure is replayed for
// keyRetryInterval. A caller whose context ends stops waiting, the fetch
// itself is bounded by the client timeout.
func (v *PrivyVerifier) verificationKey(ctx context.Context) (*ecdsa.PublicKey, error) {
	if key, ok, err := v.cached(); ok {
		return key, err
	}

	ch := v.fetches.DoChan("verification_key", func() (any, error) {
		return v.fetchKey(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*ecdsa.PublicKey), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrKeyUnavailable, ctx.Err())
	}
}

// fetchKey rechecks the cached outcome, since a caller may have read it
// just before an earlier flight finished.
func (v *PrivyVerifier) fetchKey(ctx context.Context) (*ecdsa.PublicKey, error) {
	if key, ok, err := v.cached(); ok {
		return key, err
	}

	key, err := v.requestKey(ctx)

	v.mu.Lock()
	defer v.mu.Unlock()
	if err != nil {
		v.fetchErr = err
		v.failedAt = v.now()
		return nil, err
	}
	v.key = key
	v.fetchErr = nil
	return key, nil
}

// cached reports the memoized key, or a failure still inside its retry window.
func (v *PrivyVerifier) cached() (*ecdsa.PublicKey, bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.key != nil {
		return v.key, true, nil
	}
	if v.fetchErr != nil && v.now().Sub(v.failedAt) < keyRetryInterval {
		return nil, true, v.fetchErr
	}
	return nil, false, nil
}

func (v *PrivyVerifier) requestKey(ctx context.Context) (*ecdsa.PublicKey, error) {
	var settings appSettings
	resp, err := v.http.R().
		SetContext(ctx).
		SetBasicAuth(v.appID, v.appSecret).
		SetPathParam("appId", v.appID).
		SetResult(&settings).
		Get("/api/v1/apps/{appId}")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: privy returned status %d", ErrKeyUnavailable, resp.StatusCode())
	}

	return parseVerificationKey(settings.VerificationKey)
}

// parseVerificationKey accepts a PEM block, also when newlines were escaped
// to fit an environment variable.
func parseVerificationKey(raw string) (*ecdsa.PublicKey, error) {
	pem := strings.ReplaceAll(strings.TrimSpace(raw), `\n`, "\n")
	if pem == "" {
		return nil, fmt.Errorf("%w: empty verification key", ErrKeyUnavailable)
	}

	key, err := jwt.ParseECPublicKeyFromPEM([]byte(pem))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
	}
	return key, nil
}

package auth

import (
	"context"
	"time"

	"github.com/devportal/devportal/internal/model"
)

// MaxClaimsTTL bounds how long verified claims are reused.
const MaxClaimsTTL = 5 * time.Minute

// ClaimsStore persists verified claims under a token fingerprint.
type ClaimsStore interface {
	GetClaims(ctx context.Context, key string) (*model.Claims, error)
	SetClaims(ctx context.Context, key string, claims *model.Claims, ttl time.Duration) error
}

// CachingVerifier reuses verified claims for repeated tokens.
// Entries never outlive the token's own expiry.
type CachingVerifier struct {
	next  Verifier
	store ClaimsStore
	now   func() time.Time
}

// NewCachingVerifier wraps next with a claims cache.
func NewCachingVerifier(next Verifier, store ClaimsStore) *CachingVerifier {
	return &CachingVerifier{next: next, store: store, now: time.Now}
}

// Verify returns cached claims when present and unexpired, else delegates.
func (c *CachingVerifier) Verify(ctx context.Context, token string) (*model.Claims, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	key := Fingerprint(token)
	now := c.now()

	// Cache errors fall through to full verification
	if cached, err := c.store.GetClaims(ctx, key); err == nil && cached != nil {
		if cached.UserID != "" && cached.ExpiresAt.After(now) {
			return cached, nil
		}
	}

	claims, err := c.next.Verify(ctx, token)
	if err != nil {
		return nil, err
	}

	ttl := MaxClaimsTTL
	if remaining := claims.ExpiresAt.Sub(now); remaining < ttl {
		ttl = remaining
	}
	if ttl > 0 {
		_ = c.store.SetClaims(ctx, key, claims, ttl)
	}

	return claims, nil
}

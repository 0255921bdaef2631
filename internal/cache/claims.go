package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/devportal/devportal/internal/model"
)

const (
	// claimsCachePrefix is the Redis key prefix for verified claims.
	claimsCachePrefix = "auth:claims:"
)

// GetClaims retrieves cached claims by token fingerprint.
// Returns nil if not found (cache miss).
func (c *Cache) GetClaims(ctx context.Context, fingerprint string) (*model.Claims, error) {
	data, err := c.client.Get(ctx, claimsCachePrefix+fingerprint).Bytes()
	if err != nil {
		// Cache miss is not an error
		return nil, nil //nolint:nilerr
	}

	var claims model.Claims
	if err := json.Unmarshal(data, &claims); err != nil {
		// Corrupted cache entry - treat as miss
		return nil, nil //nolint:nilerr
	}

	return &claims, nil
}

// SetClaims caches verified claims for ttl.
func (c *Cache) SetClaims(ctx context.Context, fingerprint string, claims *model.Claims, ttl time.Duration) error {
	data, err := json.Marshal(claims)
	if err != nil {
		return fmt.Errorf("marshal claims: %w", err)
	}

	return c.client.Set(ctx, claimsCachePrefix+fingerprint, data, ttl).Err()
}

// DeleteClaims removes cached claims, e.g. after a logout.
func (c *Cache) DeleteClaims(ctx context.Context, fingerprint string) error {
	return c.client.Del(ctx, claimsCachePrefix+fingerprint).Err()
}

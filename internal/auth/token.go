package auth

import (
	"context"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/devportal/devportal/internal/model"
)

var (
	// ErrMissingToken indicates the request carried no bearer token.
	ErrMissingToken = errors.New("missing bearer token")
	// ErrInvalidToken indicates the token failed verification.
	ErrInvalidToken = errors.New("invalid identity token")
	// ErrMissingSubject indicates a valid token that names no user.
	ErrMissingSubject = errors.New("identity token has no user id")
)

// Verifier turns a raw bearer token into verified claims.
type Verifier interface {
	Verify(ctx context.Context, token string) (*model.Claims, error)
}

// ExtractBearer returns the token from an "Authorization: Bearer <token>" header.
func ExtractBearer(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingToken
	}

	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrMissingToken
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

// Fingerprint returns a BLAKE2b digest of a token for use as a cache key.
// The raw token is never stored.
func Fingerprint(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:16])
}

// Package service provides business logic for the application.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"math"

	"github.com/devportal/devportal/internal/model"
)

// Service errors.
var (
	ErrInvalidAmount         = errors.New("amount must be a positive number")
	ErrCredentialKeyRequired = errors.New("credential_key is required")
	ErrNoCustomer            = errors.New("no customer found")
	ErrMissingMetadata       = errors.New("missing metadata")
	ErrInvalidMetadataAmount = errors.New("invalid amount in metadata")
	ErrTopUpFailed           = errors.New("failed to top up credits")
	ErrAPIKeyRequired        = errors.New("API key is required")
	ErrNoAPIKey              = errors.New("no API keys found")
	ErrInvalidJSON           = errors.New("invalid JSON body")
)

// Ledger is the credit/credential service as seen by the services.
type Ledger interface {
	CreateCredential(ctx context.Context, req model.LedgerCredentialCreate) (json.RawMessage, error)
	DeleteCredential(ctx context.Context, credentialID string) error
	ListCredentials(ctx context.Context, userID string) (json.RawMessage, error)
	GetRateLimits(ctx context.Context, credentialID string) (json.RawMessage, error)
	UpdateRateLimits(ctx context.Context, credentialID string, limits any) (json.RawMessage, error)
	GetSpending(ctx context.Context, credentialID string) (json.RawMessage, error)
	CreateUser(ctx context.Context, userID string) (json.RawMessage, error)
	GetUser(ctx context.Context, userID string) (json.RawMessage, error)
	TopUp(ctx context.Context, userID string, amount float64) (json.RawMessage, error)
}

// ValidateAmount returns the amount if it is present, finite and positive.
func ValidateAmount(amount *float64) (float64, error) {
	if amount == nil {
		return 0, ErrInvalidAmount
	}
	v := *amount
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return 0, ErrInvalidAmount
	}
	return v, nil
}

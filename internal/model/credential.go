package model

import "strings"

// DIDPrefix marks a credential key as a public decentralized identifier.
const DIDPrefix = "did:key:"

// Credential is an API key or DID registered with the ledger service.
type Credential struct {
	ID            string `json:"id"`
	UserID        string `json:"user_id"`
	CredentialKey string `json:"credential_key"`
	IsPublic      bool   `json:"is_public"`
	IsActive      bool   `json:"is_active"`
	CreatedAt     string `json:"created_at,omitempty"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}

// IsDID returns true if the credential key is a DID rather than a secret key.
func (c *Credential) IsDID() bool {
	return strings.HasPrefix(c.CredentialKey, DIDPrefix)
}

// CredentialList is the ledger's response for a user's credentials.
type CredentialList struct {
	Credentials []Credential `json:"credentials"`
}

// APIKeys returns the credentials that are bearer API keys (not DIDs).
func (l *CredentialList) APIKeys() []Credential {
	keys := make([]Credential, 0, len(l.Credentials))
	for _, c := range l.Credentials {
		if !c.IsDID() {
			keys = append(keys, c)
		}
	}
	return keys
}

// CredentialCreateRequest is the body accepted by POST /api/credential.
type CredentialCreateRequest struct {
	UserID        string `json:"user_id"`
	CredentialKey string `json:"credential_key"`
	IsPublic      *bool  `json:"is_public,omitempty"`
}

// LedgerCredentialCreate is the body sent to the ledger's POST /credential.
type LedgerCredentialCreate struct {
	UserID        string `json:"user_id"`
	CredentialKey string `json:"credential_key"`
	IsPublic      bool   `json:"is_public"`
}

// RateLimits holds per-window spend ceilings and current spend for a credential.
// A nil limit means unlimited.
type RateLimits struct {
	LimitPerHour  *float64 `json:"limit_per_hour"`
	LimitPerDay   *float64 `json:"limit_per_day"`
	LimitPerWeek  *float64 `json:"limit_per_week"`
	LimitPerMonth *float64 `json:"limit_per_month"`
	SpentPerHour  float64  `json:"spent_per_hour"`
	SpentPerDay   float64  `json:"spent_per_day"`
	SpentPerWeek  float64  `json:"spent_per_week"`
	SpentPerMonth float64  `json:"spent_per_month"`
}

// RateLimitUpdate is the body of a rate-limit PUT. Nil fields serialize as
// null, which the ledger treats as unlimited.
type RateLimitUpdate struct {
	LimitPerHour  *float64 `json:"limit_per_hour"`
	LimitPerDay   *float64 `json:"limit_per_day"`
	LimitPerWeek  *float64 `json:"limit_per_week"`
	LimitPerMonth *float64 `json:"limit_per_month"`
}

// TrialRateLimits caps monthly spend and leaves every other window unlimited.
func TrialRateLimits(monthly float64) RateLimitUpdate {
	return RateLimitUpdate{LimitPerMonth: &monthly}
}

// SpendingEvent is a single append-only spend record for a credential.
type SpendingEvent struct {
	ID        string  `json:"id"`
	Amount    float64 `json:"amount"`
	Timestamp string  `json:"timestamp"`
	LockID    string  `json:"lock_id"`
}

// Package model defines domain entities for the application.
package model

import "time"

// Claims is the normalized identity of a verified caller.
// UserID is always populated; it is the identity provider's stable subject.
type Claims struct {
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id,omitempty"`
	AppID     string    `json:"app_id,omitempty"`
	Issuer    string    `json:"issuer,omitempty"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Owns reports whether the claims belong to the given user id.
// Comparison is exact string equality.
func (c *Claims) Owns(userID string) bool {
	return c != nil && c.UserID != "" && c.UserID == userID
}

package model

import "time"

// WebhookEventStatus is the outcome recorded for a received payment event.
type WebhookEventStatus string

const (
	WebhookEventCredited WebhookEventStatus = "credited"
	WebhookEventFailed   WebhookEventStatus = "failed"
	WebhookEventIgnored  WebhookEventStatus = "ignored"
)

// WebhookEvent is a local audit row for a received payment event.
// It exists for manual reconciliation; the ledger remains the source of truth.
type WebhookEvent struct {
	ID        string             `json:"id"`
	EventID   string             `json:"event_id"`
	EventType string             `json:"event_type"`
	UserID    string             `json:"user_id,omitempty"`
	Amount    float64            `json:"amount,omitempty"`
	Status    WebhookEventStatus `json:"status"`
	Error     string             `json:"error,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

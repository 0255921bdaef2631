package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/devportal/devportal/internal/model"
)

// WebhookEventRepository stores the outcome of received payment events.
type WebhookEventRepository struct {
	repo *Repository
}

// NewWebhookEventRepository creates a new WebhookEventRepository.
func NewWebhookEventRepository(repo *Repository) *WebhookEventRepository {
	return &WebhookEventRepository{repo: repo}
}

// Record upserts the outcome of an event. A redelivered event overwrites the
// previous outcome, so a failed top-up that later succeeds ends up credited.
func (r *WebhookEventRepository) Record(ctx context.Context, event *model.WebhookEvent) error {
	if event.ID == "" {
		event.ID = ulid.Make().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO webhook_events (
			id, event_id, event_type, user_id, amount, status, error, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (event_id) DO UPDATE SET
			status = EXCLUDED.status,
			error = EXCLUDED.error,
			updated_at = NOW()
	`

	_, err := r.repo.db.Exec(ctx, query,
		event.ID,
		event.EventID,
		event.EventType,
		nullableString(event.UserID),
		event.Amount,
		string(event.Status),
		nullableString(event.Error),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record webhook event: %w", err)
	}

	return nil
}

// IsCredited reports whether an event has already produced a top-up.
func (r *WebhookEventRepository) IsCredited(ctx context.Context, eventID string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM webhook_events
			WHERE event_id = $1 AND status = $2
		)
	`

	var credited bool
	if err := r.repo.db.QueryRow(ctx, query, eventID, string(model.WebhookEventCredited)).Scan(&credited); err != nil {
		return false, fmt.Errorf("check webhook event: %w", err)
	}

	return credited, nil
}

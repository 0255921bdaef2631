package repository

import (
	"context"
	"testing"
	"time"

	"github.com/devportal/devportal/internal/model"
	"github.com/devportal/devportal/internal/testutil"
)

func newIntegrationRepo(t *testing.T) *WebhookEventRepository {
	t.Helper()
	dsn := testutil.RequireEnv(t, "TEST_DATABASE_URL")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo, err := New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(repo.Close)

	unlock, err := testutil.AcquireDBLock(context.Background(), repo.pool)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	t.Cleanup(func() {
		if err := unlock(); err != nil {
			t.Errorf("unlock: %v", err)
		}
	})

	if err := testutil.ResetWebhookEventsSchema(ctx, repo.pool); err != nil {
		t.Fatalf("reset schema: %v", err)
	}

	return NewWebhookEventRepository(repo)
}

func TestWebhookEventRepository_Integration(t *testing.T) {
	events := newIntegrationRepo(t)
	ctx := context.Background()
	eventID := testutil.UniqueID("evt")

	credited, err := events.IsCredited(ctx, eventID)
	if err != nil {
		t.Fatalf("IsCredited: %v", err)
	}
	if credited {
		t.Fatal("unknown event reported as credited")
	}

	failed := &model.WebhookEvent{
		EventID:   eventID,
		EventType: model.EventCheckoutSessionCompleted,
		UserID:    "did:privy:u1",
		Amount:    25,
		Status:    model.WebhookEventFailed,
		Error:     "ledger returned 502",
	}
	if err := events.Record(ctx, failed); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if credited, _ := events.IsCredited(ctx, eventID); credited {
		t.Fatal("failed event reported as credited")
	}

	// Redelivery succeeds and overwrites the outcome.
	retry := *failed
	retry.ID = ""
	retry.Status = model.WebhookEventCredited
	retry.Error = ""
	if err := events.Record(ctx, &retry); err != nil {
		t.Fatalf("Record credited: %v", err)
	}

	credited, err = events.IsCredited(ctx, eventID)
	if err != nil {
		t.Fatalf("IsCredited: %v", err)
	}
	if !credited {
		t.Error("expected redelivered event to be credited")
	}
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/devportal/devportal/internal/metrics"
	"github.com/devportal/devportal/internal/model"
	"github.com/devportal/devportal/internal/payments"
)

// EventLog records the outcome of payment webhook events.
type EventLog interface {
	IsCredited(ctx context.Context, eventID string) (bool, error)
	Record(ctx context.Context, event *model.WebhookEvent) error
}

// BillingService handles checkout, billing history and payment webhooks.
type BillingService struct {
	processor   payments.Processor
	credits     *CreditService
	events      EventLog
	logger      *slog.Logger
	metrics     metrics.Recorder
	frontendURL string
}

// NewBillingService creates a new BillingService. events may be nil.
func NewBillingService(processor payments.Processor, credits *CreditService, events EventLog, logger *slog.Logger, recorder metrics.Recorder, frontendURL string) *BillingService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BillingService{
		processor:   processor,
		credits:     credits,
		events:      events,
		logger:      logger,
		metrics:     recorder,
		frontendURL: strings.TrimSuffix(frontendURL, "/"),
	}
}

// CreateCheckout creates a hosted checkout page for a credits purchase.
// origin is the browser's Origin header; the frontend URL is used when empty.
func (s *BillingService) CreateCheckout(ctx context.Context, req model.CheckoutRequest, origin string) (*model.CheckoutResponse, error) {
	amount, err := ValidateAmount(req.Amount)
	if err != nil {
		return nil, err
	}

	customer, err := s.processor.FindOrCreateCustomer(ctx, req.UserID, req.CustomerEmail)
	if err != nil {
		return nil, fmt.Errorf("resolve customer: %w", err)
	}

	base := s.returnBase(origin)
	session, err := s.processor.CreateCheckoutSession(ctx, payments.CheckoutParams{
		UserID:     req.UserID,
		CustomerID: customer.ID,
		Amount:     decimal.NewFromFloat(amount),
		SuccessURL: base + "/credits?success=true&session_id={CHECKOUT_SESSION_ID}",
		CancelURL:  base + "/credits?canceled=true",
	})
	if err != nil {
		return nil, err
	}

	s.metrics.IncCheckoutCreated()
	s.logger.Info("checkout session created",
		slog.String("user_id", req.UserID),
		slog.String("session_id", session.ID),
		slog.Float64("amount", amount),
	)

	return &model.CheckoutResponse{SessionID: session.ID, URL: session.URL}, nil
}

// CreatePortal returns a billing portal URL for a user who has paid before.
func (s *BillingService) CreatePortal(ctx context.Context, userID, origin string) (*model.PortalResponse, error) {
	customer, err := s.processor.FindCustomer(ctx, userID)
	if err != nil {
		if !errors.Is(err, payments.ErrCustomerNotFound) {
			s.logger.Warn("customer search failed",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
		return nil, ErrNoCustomer
	}

	url, err := s.processor.CreatePortalSession(ctx, customer.ID, s.returnBase(origin)+"/credits")
	if err != nil {
		return nil, err
	}

	return &model.PortalResponse{URL: url}, nil
}

// ListTransactions returns the user's billing history. A user without a
// customer record has an empty history.
func (s *BillingService) ListTransactions(ctx context.Context, userID string) (*model.TransactionList, error) {
	customer, err := s.processor.FindCustomer(ctx, userID)
	if err != nil {
		if !errors.Is(err, payments.ErrCustomerNotFound) {
			s.logger.Warn("customer search failed",
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
		return &model.TransactionList{Transactions: []model.Transaction{}}, nil
	}

	txs, err := s.processor.ListTransactions(ctx, customer.ID)
	if err != nil {
		return nil, err
	}
	if txs == nil {
		txs = []model.Transaction{}
	}

	return &model.TransactionList{Transactions: txs}, nil
}

// HandleWebhook verifies a payment event and credits completed checkouts.
// Each verified event produces at most one top-up.
func (s *BillingService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := s.processor.ConstructEvent(payload, signature)
	if err != nil {
		return err
	}

	if event.Type != model.EventCheckoutSessionCompleted || event.Checkout == nil {
		s.metrics.IncWebhookEvent(event.Type, string(model.WebhookEventIgnored))
		s.logger.Debug("webhook event ignored",
			slog.String("event_id", event.ID),
			slog.String("event_type", event.Type),
		)
		return nil
	}

	checkout := event.Checkout
	userID := checkout.Metadata[model.MetadataUserID]
	rawAmount := checkout.Metadata[model.MetadataAmount]
	if userID == "" || rawAmount == "" {
		s.logger.Error("checkout session missing metadata",
			slog.String("event_id", event.ID),
			slog.String("session_id", checkout.SessionID),
		)
		return ErrMissingMetadata
	}

	amount, err := decimal.NewFromString(rawAmount)
	if err != nil || !amount.IsPositive() {
		s.logger.Error("checkout session has invalid amount",
			slog.String("event_id", event.ID),
			slog.String("session_id", checkout.SessionID),
			slog.String("amount", rawAmount),
		)
		return ErrInvalidMetadataAmount
	}
	value := amount.InexactFloat64()

	record := &model.WebhookEvent{
		EventID:   event.ID,
		EventType: event.Type,
		UserID:    userID,
		Amount:    value,
	}

	if checkout.PaymentStatus != model.PaymentStatusPaid {
		record.Status = model.WebhookEventIgnored
		s.recordEvent(ctx, record)
		s.metrics.IncWebhookEvent(event.Type, string(model.WebhookEventIgnored))
		s.logger.Info("checkout completed without payment",
			slog.String("event_id", event.ID),
			slog.String("payment_status", checkout.PaymentStatus),
		)
		return nil
	}

	if s.alreadyCredited(ctx, event.ID) {
		s.metrics.IncWebhookEvent(event.Type, "duplicate")
		s.logger.Info("webhook event already credited",
			slog.String("event_id", event.ID),
			slog.String("user_id", userID),
		)
		return nil
	}

	if checkout.CustomerID != "" {
		if err := s.processor.LinkCustomer(ctx, checkout.CustomerID, userID); err != nil {
			s.logger.Warn("failed to link customer to user",
				slog.String("customer_id", checkout.CustomerID),
				slog.String("user_id", userID),
				slog.String("error", err.Error()),
			)
		}
	}

	if _, err := s.credits.TopUp(ctx, userID, &value, metrics.TopUpWebhook); err != nil {
		record.Status = model.WebhookEventFailed
		record.Error = err.Error()
		s.recordEvent(ctx, record)
		s.metrics.IncWebhookEvent(event.Type, string(model.WebhookEventFailed))
		s.logger.Error("webhook top-up failed",
			slog.String("event_id", event.ID),
			slog.String("user_id", userID),
			slog.Float64("amount", value),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("%w: %w", ErrTopUpFailed, err)
	}

	record.Status = model.WebhookEventCredited
	s.recordEvent(ctx, record)
	s.metrics.IncWebhookEvent(event.Type, string(model.WebhookEventCredited))
	s.logger.Info("checkout credited",
		slog.String("event_id", event.ID),
		slog.String("user_id", userID),
		slog.Float64("amount", value),
	)

	return nil
}

func (s *BillingService) alreadyCredited(ctx context.Context, eventID string) bool {
	if s.events == nil {
		return false
	}

	credited, err := s.events.IsCredited(ctx, eventID)
	if err != nil {
		s.logger.Warn("webhook event lookup failed",
			slog.String("event_id", eventID),
			slog.String("error", err.Error()),
		)
		return false
	}
	return credited
}

func (s *BillingService) recordEvent(ctx context.Context, event *model.WebhookEvent) {
	if s.events == nil {
		return
	}

	if err := s.events.Record(ctx, event); err != nil {
		s.logger.Warn("failed to record webhook event",
			slog.String("event_id", event.EventID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *BillingService) returnBase(origin string) string {
	if origin = strings.TrimSuffix(origin, "/"); origin != "" {
		return origin
	}
	return s.frontendURL
}

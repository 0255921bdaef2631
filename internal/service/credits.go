package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/devportal/devportal/internal/metrics"
	"github.com/devportal/devportal/internal/model"
	"github.com/devportal/devportal/internal/payments"
)

// CreditConfig holds the credit policy.
type CreditConfig struct {
	// WelcomeCredit is granted once when a user account is created. Zero disables it.
	WelcomeCredit float64
	// TrialMonthlyLimit caps monthly spend of credentials created by users
	// who never paid.
	TrialMonthlyLimit float64
}

// CreditService handles user balances and credentials.
type CreditService struct {
	ledger    Ledger
	processor payments.Processor
	logger    *slog.Logger
	metrics   metrics.Recorder
	cfg       CreditConfig
}

// NewCreditService creates a new CreditService.
func NewCreditService(ledger Ledger, processor payments.Processor, logger *slog.Logger, recorder metrics.Recorder, cfg CreditConfig) *CreditService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CreditService{
		ledger:    ledger,
		processor: processor,
		logger:    logger,
		metrics:   recorder,
		cfg:       cfg,
	}
}

// CreateUser creates a ledger account and grants the welcome credit.
// A failed welcome top-up does not fail the creation.
func (s *CreditService) CreateUser(ctx context.Context, userID string) (json.RawMessage, error) {
	created, err := s.ledger.CreateUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if s.cfg.WelcomeCredit > 0 {
		if _, err := s.ledger.TopUp(ctx, userID, s.cfg.WelcomeCredit); err != nil {
			s.metrics.IncTopUp(metrics.TopUpWelcome, metrics.OutcomeFailure)
			s.logger.Warn("welcome credit failed",
				slog.String("user_id", userID),
				slog.Float64("amount", s.cfg.WelcomeCredit),
				slog.String("error", err.Error()),
			)
		} else {
			s.metrics.IncTopUp(metrics.TopUpWelcome, metrics.OutcomeSuccess)
			s.logger.Info("welcome credit granted",
				slog.String("user_id", userID),
				slog.Float64("amount", s.cfg.WelcomeCredit),
			)
		}
	}

	return created, nil
}

// GetUser returns the user's ledger account.
func (s *CreditService) GetUser(ctx context.Context, userID string) (json.RawMessage, error) {
	return s.ledger.GetUser(ctx, userID)
}

// TopUp validates the amount and credits the user's balance.
func (s *CreditService) TopUp(ctx context.Context, userID string, amount *float64, source string) (json.RawMessage, error) {
	v, err := ValidateAmount(amount)
	if err != nil {
		return nil, err
	}

	result, err := s.ledger.TopUp(ctx, userID, v)
	if err != nil {
		s.metrics.IncTopUp(source, metrics.OutcomeFailure)
		return nil, err
	}

	s.metrics.IncTopUp(source, metrics.OutcomeSuccess)
	s.logger.Info("balance topped up",
		slog.String("user_id", userID),
		slog.Float64("amount", v),
		slog.String("source", source),
	)

	return result, nil
}

// CreateCredential registers a credential. Credentials of users who never
// paid get the trial monthly cap.
func (s *CreditService) CreateCredential(ctx context.Context, req model.CredentialCreateRequest) (json.RawMessage, error) {
	if strings.TrimSpace(req.CredentialKey) == "" {
		return nil, ErrCredentialKeyRequired
	}

	isPublic := false
	if req.IsPublic != nil {
		isPublic = *req.IsPublic
	}

	trial := s.isTrialUser(ctx, req.UserID)

	created, err := s.ledger.CreateCredential(ctx, model.LedgerCredentialCreate{
		UserID:        req.UserID,
		CredentialKey: req.CredentialKey,
		IsPublic:      isPublic,
	})
	if err != nil {
		return nil, err
	}

	if trial {
		s.applyTrialLimits(ctx, req.UserID, created)
	}

	return created, nil
}

// isTrialUser reports whether the user has no payment history.
// Probe failures count as paying so an outage never caps a customer.
func (s *CreditService) isTrialUser(ctx context.Context, userID string) bool {
	customer, err := s.processor.FindCustomer(ctx, userID)
	if errors.Is(err, payments.ErrCustomerNotFound) {
		return true
	}
	if err != nil {
		s.logger.Warn("payment history lookup failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		return false
	}

	paid, err := s.processor.HasPaymentHistory(ctx, customer.ID)
	if err != nil {
		s.logger.Warn("payment history lookup failed",
			slog.String("user_id", userID),
			slog.String("customer_id", customer.ID),
			slog.String("error", err.Error()),
		)
		return false
	}

	return !paid
}

func (s *CreditService) applyTrialLimits(ctx context.Context, userID string, created json.RawMessage) {
	var cred model.Credential
	if err := json.Unmarshal(created, &cred); err != nil || cred.ID == "" {
		s.logger.Warn("trial limits skipped: credential id missing from ledger response",
			slog.String("user_id", userID),
		)
		return
	}

	if _, err := s.ledger.UpdateRateLimits(ctx, cred.ID, model.TrialRateLimits(s.cfg.TrialMonthlyLimit)); err != nil {
		s.logger.Warn("failed to apply trial limits",
			slog.String("user_id", userID),
			slog.String("credential_id", cred.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	s.logger.Info("trial limits applied",
		slog.String("user_id", userID),
		slog.String("credential_id", cred.ID),
		slog.Float64("limit_per_month", s.cfg.TrialMonthlyLimit),
	)
}

// DeleteCredential removes a credential.
func (s *CreditService) DeleteCredential(ctx context.Context, credentialID string) error {
	return s.ledger.DeleteCredential(ctx, credentialID)
}

// ListCredentials returns a user's credentials as the ledger reports them.
func (s *CreditService) ListCredentials(ctx context.Context, userID string) (json.RawMessage, error) {
	return s.ledger.ListCredentials(ctx, userID)
}

// GetRateLimits returns the limits and current spend of a credential.
func (s *CreditService) GetRateLimits(ctx context.Context, credentialID string) (json.RawMessage, error) {
	return s.ledger.GetRateLimits(ctx, credentialID)
}

// UpdateRateLimits forwards caller-supplied limits unmodified.
func (s *CreditService) UpdateRateLimits(ctx context.Context, credentialID string, limits json.RawMessage) (json.RawMessage, error) {
	if !json.Valid(limits) {
		return nil, fmt.Errorf("rate limits: %w", ErrInvalidJSON)
	}
	return s.ledger.UpdateRateLimits(ctx, credentialID, limits)
}

// GetSpending returns the spending events of a credential.
func (s *CreditService) GetSpending(ctx context.Context, credentialID string) (json.RawMessage, error) {
	return s.ledger.GetSpending(ctx, credentialID)
}

// UserAPIKeys returns the user's bearer API keys, excluding DIDs.
func (s *CreditService) UserAPIKeys(ctx context.Context, userID string) ([]model.Credential, error) {
	raw, err := s.ledger.ListCredentials(ctx, userID)
	if err != nil {
		return nil, err
	}

	var list model.CredentialList
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("decode credentials: %w", err)
	}

	return list.APIKeys(), nil
}

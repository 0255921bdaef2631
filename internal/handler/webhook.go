package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/devportal/devportal/internal/ledger"
	"github.com/devportal/devportal/internal/middleware"
	"github.com/devportal/devportal/internal/payments"
	"github.com/devportal/devportal/internal/service"
)

// MaxWebhookBodySize bounds the payment webhook payload.
const MaxWebhookBodySize = 64 << 10

// Stripe signature header.
const stripeSignatureHeader = "Stripe-Signature"

// WebhookHandler receives payment processor events. It is not behind a gate;
// the payload signature is the only authentication.
type WebhookHandler struct {
	logger  *slog.Logger
	billing *service.BillingService
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(logger *slog.Logger, billing *service.BillingService) *WebhookHandler {
	return &WebhookHandler{
		logger:  logger.With("handler", "webhook"),
		billing: billing,
	}
}

// Stripe handles POST /api/stripe/webhook. A non-2xx answer makes the
// processor redeliver the event.
func (h *WebhookHandler) Stripe(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, MaxWebhookBodySize+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, middleware.MsgInvalidBody)
		return
	}
	if len(payload) > MaxWebhookBodySize {
		writeError(w, http.StatusRequestEntityTooLarge, middleware.MsgBodyTooLarge)
		return
	}

	err = h.billing.HandleWebhook(r.Context(), payload, r.Header.Get(stripeSignatureHeader))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]bool{"received": true})
	case errors.Is(err, payments.ErrMissingSignature):
		writeError(w, http.StatusBadRequest, "Missing signature or webhook secret")
	case errors.Is(err, payments.ErrInvalidSignature):
		h.logger.Warn("webhook signature verification failed",
			slog.String("error", err.Error()),
			slog.String("request_id", middleware.GetRequestID(r.Context())),
		)
		writeError(w, http.StatusBadRequest, "Invalid signature")
	case errors.Is(err, service.ErrMissingMetadata):
		writeError(w, http.StatusBadRequest, "Missing metadata")
	case errors.Is(err, service.ErrInvalidMetadataAmount):
		writeError(w, http.StatusBadRequest, "Invalid amount in metadata")
	case errors.Is(err, service.ErrTopUpFailed):
		status := http.StatusInternalServerError
		if code, ok := ledger.StatusCode(err); ok {
			status = code
		}
		writeError(w, status, "Failed to top up credits")
	default:
		h.logger.Error("webhook processing failed",
			slog.String("error", err.Error()),
			slog.String("request_id", middleware.GetRequestID(r.Context())),
		)
		writeError(w, http.StatusInternalServerError, middleware.MsgInternal)
	}
}

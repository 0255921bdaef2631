package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/devportal/devportal/internal/model"
	"github.com/devportal/devportal/internal/service"
)

const (
	msgCheckoutFailed = "Failed to create checkout session"
	msgPortalFailed   = "Failed to create portal session"
	msgInvoicesFailed = "Failed to fetch invoices"
)

// BillingHandler handles checkout, portal and billing history endpoints.
type BillingHandler struct {
	logger  *slog.Logger
	billing *service.BillingService
}

// NewBillingHandler creates a new BillingHandler.
func NewBillingHandler(logger *slog.Logger, billing *service.BillingService) *BillingHandler {
	return &BillingHandler{
		logger:  logger.With("handler", "billing"),
		billing: billing,
	}
}

// CreateCheckout handles POST /api/stripe/create-checkout.
func (h *BillingHandler) CreateCheckout(w http.ResponseWriter, r *http.Request, claims *model.Claims, userID string) error {
	var req model.CheckoutRequest
	if !decodeJSON(w, r, &req) {
		return nil
	}
	req.UserID = userID

	resp, err := h.billing.CreateCheckout(r.Context(), req, r.Header.Get("Origin"))
	if err != nil {
		if errors.Is(err, service.ErrInvalidAmount) {
			writeError(w, http.StatusBadRequest, err.Error())
			return nil
		}
		if writeProcessorError(w, r, h.logger, err, msgCheckoutFailed) {
			return nil
		}
		return err
	}

	writeJSON(w, http.StatusOK, resp)
	return nil
}

// CreatePortal handles POST /api/stripe/create-portal-session.
func (h *BillingHandler) CreatePortal(w http.ResponseWriter, r *http.Request, claims *model.Claims, userID string) error {
	resp, err := h.billing.CreatePortal(r.Context(), userID, r.Header.Get("Origin"))
	if err != nil {
		if errors.Is(err, service.ErrNoCustomer) {
			writeError(w, http.StatusNotFound, "No customer found. Please make a payment first.")
			return nil
		}
		if writeProcessorError(w, r, h.logger, err, msgPortalFailed) {
			return nil
		}
		return err
	}

	writeJSON(w, http.StatusOK, resp)
	return nil
}

// Invoices handles GET /api/stripe/invoices.
func (h *BillingHandler) Invoices(w http.ResponseWriter, r *http.Request, claims *model.Claims, userID string) error {
	list, err := h.billing.ListTransactions(r.Context(), userID)
	if err != nil {
		if writeProcessorError(w, r, h.logger, err, msgInvoicesFailed) {
			return nil
		}
		return err
	}

	writeJSON(w, http.StatusOK, list)
	return nil
}

package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/devportal/devportal/internal/model"
	"github.com/devportal/devportal/internal/service"
)

// CredentialHandler handles credential, rate limit and spending endpoints.
type CredentialHandler struct {
	logger  *slog.Logger
	credits *service.CreditService
}

// NewCredentialHandler creates a new CredentialHandler.
func NewCredentialHandler(logger *slog.Logger, credits *service.CreditService) *CredentialHandler {
	return &CredentialHandler{
		logger:  logger.With("handler", "credential"),
		credits: credits,
	}
}

// Create handles POST /api/credential.
func (h *CredentialHandler) Create(w http.ResponseWriter, r *http.Request, claims *model.Claims, userID string) error {
	var req model.CredentialCreateRequest
	if !decodeJSON(w, r, &req) {
		return nil
	}
	req.UserID = userID

	created, err := h.credits.CreateCredential(r.Context(), req)
	if err != nil {
		if errors.Is(err, service.ErrCredentialKeyRequired) {
			writeError(w, http.StatusBadRequest, err.Error())
			return nil
		}
		writeLedgerError(w, r, h.logger, err, "Failed to create credential")
		return nil
	}

	h.logger.Info("credential created", slog.String("user_id", userID))
	writeRaw(w, http.StatusOK, created)
	return nil
}

// Delete handles DELETE /api/credential/{credentialId}.
func (h *CredentialHandler) Delete(w http.ResponseWriter, r *http.Request, claims *model.Claims, credentialID string) error {
	if err := h.credits.DeleteCredential(r.Context(), credentialID); err != nil {
		writeLedgerError(w, r, h.logger, err, "Failed to delete credential")
		return nil
	}

	h.logger.Info("credential deleted",
		slog.String("credential_id", credentialID),
		slog.String("user_id", claims.UserID),
	)
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
	return nil
}

// ListByUser handles GET /api/credential/user/{userId}.
func (h *CredentialHandler) ListByUser(w http.ResponseWriter, r *http.Request, claims *model.Claims, userID string) error {
	list, err := h.credits.ListCredentials(r.Context(), userID)
	if err != nil {
		writeLedgerError(w, r, h.logger, err, "Failed to fetch credentials")
		return nil
	}
	writeRaw(w, http.StatusOK, list)
	return nil
}

// GetRateLimits handles GET /api/usage/rate-limits/{credentialId}.
func (h *CredentialHandler) GetRateLimits(w http.ResponseWriter, r *http.Request, claims *model.Claims, credentialID string) error {
	limits, err := h.credits.GetRateLimits(r.Context(), credentialID)
	if err != nil {
		writeLedgerError(w, r, h.logger, err, "Failed to fetch rate limits")
		return nil
	}
	writeRaw(w, http.StatusOK, limits)
	return nil
}

// UpdateRateLimits handles PUT /api/usage/rate-limits/{credentialId}.
// The body is forwarded to the ledger unmodified.
func (h *CredentialHandler) UpdateRateLimits(w http.ResponseWriter, r *http.Request, claims *model.Claims, credentialID string) error {
	body, ok := readBody(w, r)
	if !ok {
		return nil
	}

	updated, err := h.credits.UpdateRateLimits(r.Context(), credentialID, json.RawMessage(body))
	if err != nil {
		if errors.Is(err, service.ErrInvalidJSON) {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return nil
		}
		writeLedgerError(w, r, h.logger, err, "Failed to update rate limits")
		return nil
	}

	h.logger.Info("rate limits updated",
		slog.String("credential_id", credentialID),
		slog.String("user_id", claims.UserID),
	)
	writeRaw(w, http.StatusOK, updated)
	return nil
}

// GetSpending handles GET /api/usage/spending/{credentialId}.
func (h *CredentialHandler) GetSpending(w http.ResponseWriter, r *http.Request, claims *model.Claims, credentialID string) error {
	spending, err := h.credits.GetSpending(r.Context(), credentialID)
	if err != nil {
		writeLedgerError(w, r, h.logger, err, "Failed to fetch spending data")
		return nil
	}
	writeRaw(w, http.StatusOK, spending)
	return nil
}

package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/devportal/devportal/internal/metrics"
	"github.com/devportal/devportal/internal/model"
	"github.com/devportal/devportal/internal/service"
)

// UserHandler handles ledger account endpoints.
type UserHandler struct {
	logger  *slog.Logger
	credits *service.CreditService
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(logger *slog.Logger, credits *service.CreditService) *UserHandler {
	return &UserHandler{
		logger:  logger.With("handler", "user"),
		credits: credits,
	}
}

// Create handles POST /api/users.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request, claims *model.Claims, userID string) error {
	created, err := h.credits.CreateUser(r.Context(), userID)
	if err != nil {
		writeLedgerError(w, r, h.logger, err, "Failed to create user in credit service")
		return nil
	}

	writeRaw(w, http.StatusOK, created)
	return nil
}

// Get handles GET /api/users/{userId}. A ledger 404 passes through so the
// dashboard can create the account on first visit.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request, claims *model.Claims, userID string) error {
	user, err := h.credits.GetUser(r.Context(), userID)
	if err != nil {
		writeLedgerError(w, r, h.logger, err, "Failed to fetch user credits")
		return nil
	}

	writeRaw(w, http.StatusOK, user)
	return nil
}

// TopUp handles POST /api/users/topup.
func (h *UserHandler) TopUp(w http.ResponseWriter, r *http.Request, claims *model.Claims, userID string) error {
	var req model.TopUpRequest
	if !decodeJSON(w, r, &req) {
		return nil
	}

	result, err := h.credits.TopUp(r.Context(), userID, req.Amount, metrics.TopUpDirect)
	if err != nil {
		if errors.Is(err, service.ErrInvalidAmount) {
			writeError(w, http.StatusBadRequest, err.Error())
			return nil
		}
		writeLedgerError(w, r, h.logger, err, "Failed to top up credits")
		return nil
	}

	writeRaw(w, http.StatusOK, result)
	return nil
}

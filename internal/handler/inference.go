package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/devportal/devportal/internal/middleware"
	"github.com/devportal/devportal/internal/model"
	"github.com/devportal/devportal/internal/service"
)

// InferenceHandler proxies usage statistics and dashboard test requests.
type InferenceHandler struct {
	logger    *slog.Logger
	inference *service.InferenceService
}

// NewInferenceHandler creates a new InferenceHandler.
func NewInferenceHandler(logger *slog.Logger, inference *service.InferenceService) *InferenceHandler {
	return &InferenceHandler{
		logger:    logger.With("handler", "inference"),
		inference: inference,
	}
}

type noAPIKeyResponse struct {
	Error          string `json:"error"`
	RequiresAPIKey bool   `json:"requiresApiKey"`
}

type upstreamErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details"`
}

// Usage handles GET /api/usage?user_id=.
func (h *InferenceHandler) Usage(w http.ResponseWriter, r *http.Request, claims *model.Claims, userID string) error {
	usage, err := h.inference.Usage(r.Context(), userID)
	if err != nil {
		var upstream *service.UpstreamError
		switch {
		case errors.Is(err, service.ErrNoAPIKey):
			writeJSON(w, http.StatusBadRequest, noAPIKeyResponse{
				Error:          "No API keys found. Please create an API key first to view usage statistics.",
				RequiresAPIKey: true,
			})
		case errors.As(err, &upstream):
			writeError(w, upstream.Status, "Failed to fetch usage data")
		default:
			writeLedgerError(w, r, h.logger, err, "Failed to fetch usage data")
		}
		return nil
	}

	writeRaw(w, http.StatusOK, usage)
	return nil
}

// TestRequest handles POST /api/test-request. The caller supplies the API
// key; upstream failures keep their status and details.
func (h *InferenceHandler) TestRequest(w http.ResponseWriter, r *http.Request, claims *model.Claims, _ string) error {
	var req model.TestRequest
	if !decodeJSON(w, r, &req) {
		return nil
	}

	out, err := h.inference.TestRequest(r.Context(), req)
	if err != nil {
		var upstream *service.UpstreamError
		switch {
		case errors.Is(err, service.ErrAPIKeyRequired):
			writeError(w, http.StatusBadRequest, "API key is required")
		case errors.As(err, &upstream):
			writeJSON(w, upstream.Status, upstreamErrorResponse{
				Error:   upstream.Message(),
				Details: upstream.Details(),
			})
		default:
			h.logger.Error("test request failed",
				slog.String("user_id", claims.UserID),
				slog.String("error", err.Error()),
				slog.String("request_id", middleware.GetRequestID(r.Context())),
			)
			writeError(w, http.StatusInternalServerError, middleware.MsgInternal)
		}
		return nil
	}

	writeRaw(w, http.StatusOK, out)
	return nil
}

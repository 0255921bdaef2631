// Package handler provides HTTP request handlers.
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/stripe/stripe-go/v76"

	"github.com/devportal/devportal/internal/ledger"
	"github.com/devportal/devportal/internal/middleware"
)

// Handler serves router-level fallbacks.
type Handler struct{}

// New creates a new Handler instance.
func New() *Handler {
	return &Handler{}
}

// NotFound handles 404 responses.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "resource not found")
}

// MethodNotAllowed handles 405 responses.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeRaw writes a downstream JSON body unchanged.
func writeRaw(w http.ResponseWriter, status int, body json.RawMessage) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	middleware.WriteError(w, status, message)
}

// decodeJSON decodes the request body into dst. Oversize bodies map to 413,
// anything else undecodable to 400.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if middleware.IsBodyTooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, middleware.MsgBodyTooLarge)
			return false
		}
		writeError(w, http.StatusBadRequest, middleware.MsgInvalidBody)
		return false
	}
	return true
}

// readBody reads the whole request body.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		if middleware.IsBodyTooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge, middleware.MsgBodyTooLarge)
			return nil, false
		}
		writeError(w, http.StatusBadRequest, middleware.MsgInvalidBody)
		return nil, false
	}
	return body, true
}

// writeLedgerError maps a ledger failure to the client. A downstream non-2xx
// keeps its status with a generic message; the downstream body is logged,
// never returned. Other failures become 500 with the same message.
func writeLedgerError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error, message string) {
	status := http.StatusInternalServerError
	attrs := []any{
		slog.String("error", err.Error()),
		slog.String("request_id", middleware.GetRequestID(r.Context())),
	}

	var se *ledger.StatusError
	if errors.As(err, &se) {
		status = se.Status
		attrs = append(attrs,
			slog.String("op", se.Op),
			slog.Int("status", se.Status),
			slog.String("body", se.Body),
		)
	}

	logger.Error(message, attrs...)
	writeError(w, status, message)
}

// writeProcessorError maps a payment processor rejection to the client with
// its status and a generic message, and reports whether it did. Other
// failures are left to the caller.
func writeProcessorError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error, message string) bool {
	var se *stripe.Error
	if !errors.As(err, &se) || se.HTTPStatusCode < http.StatusBadRequest {
		return false
	}

	logger.Error(message,
		slog.String("error", err.Error()),
		slog.String("request_id", middleware.GetRequestID(r.Context())),
		slog.Int("status", se.HTTPStatusCode),
		slog.String("type", string(se.Type)),
		slog.String("code", string(se.Code)),
		slog.String("processor_message", se.Msg),
		slog.String("processor_request_id", se.RequestID),
	)
	writeError(w, se.HTTPStatusCode, message)
	return true
}

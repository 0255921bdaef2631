package middleware

import (
	"encoding/json"
	"net/http"
)

// Error messages shared by the gates and the global middleware.
const (
	MsgUnauthorized       = "Unauthorized"
	MsgForbidden          = "Forbidden"
	MsgUserIDRequired     = "user_id is required"
	MsgCredentialRequired = "credential_id is required"
	MsgInvalidBody        = "Invalid request body"
	MsgCredentialNotFound = "Credential not found"
	MsgInternal           = "Internal server error"
	MsgTooManyRequests    = "Too many requests"
	MsgBodyTooLarge       = "Request body too large"
)

// WriteError writes a {"error": message} JSON body with the given status.
func WriteError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

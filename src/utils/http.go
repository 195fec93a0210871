// backend/src/utils/http.go
package utils

import (
	"encoding/json"
	"net/http"

	"github.com/hmseok/Self-Disruption-sub000/src/logger"
)

// ErrorResponse is the structured error body every endpoint returns. Internal
// errors never leak raw exception text past the message field chosen by the
// handler.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// SendJSONError writes a structured JSON error with the given status code.
func SendJSONError(w http.ResponseWriter, message string, statusCode int) {
	SendJSONErrorKind(w, message, "", statusCode)
}

// SendJSONErrorKind writes a structured JSON error carrying an error kind the
// caller can branch on (e.g. "validation", "extraction_empty").
func SendJSONErrorKind(w http.ResponseWriter, message, kind string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: message, Kind: kind}); err != nil {
		logger.L.Error("Failed to encode JSON error response", "error", err)
	}
}

// SendJSONResponse writes payload as JSON with the given status code.
func SendJSONResponse(w http.ResponseWriter, payload any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.L.Error("Failed to encode JSON response", "error", err)
	}
}

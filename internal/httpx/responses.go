package httpx

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// ErrorResponse is the body of every JSON error the service writes.
type ErrorResponse struct {
	Error   string        `json:"error"`
	Details []ErrorDetail `json:"details,omitempty"`
}

type ErrorDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// WriteJSON encodes v as the response body with the given status.
func WriteJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("encode response", slog.String("error", err.Error()))
	}
}

func JSONError(w http.ResponseWriter, statusCode int, message string, details []ErrorDetail) {
	WriteJSON(w, statusCode, ErrorResponse{
		Error:   message,
		Details: details,
	})
}

// NotFound is the handler for unmatched routes.
func NotFound(w http.ResponseWriter, r *http.Request) {
	JSONError(w, http.StatusNotFound, "Not Found", nil)
}

// MethodNotAllowed is written when a path matches but the method does not.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	JSONError(w, http.StatusMethodNotAllowed, "Method Not Allowed", nil)
}

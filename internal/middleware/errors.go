package middleware

import (
	"encoding/json"
	"net/http"
)

// writeError writes the same {error, kind, retryable} body the API handlers use.
func writeError(w http.ResponseWriter, status int, kind, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"error":     msg,
		"kind":      kind,
		"retryable": status == http.StatusTooManyRequests,
	})
}

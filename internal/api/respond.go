// Package api provides the HTTP handlers for Pictura.
package api

import (
	"encoding/json"
	"net/http"
	"time"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
		"meta": map[string]any{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// writeSuccess writes a standard success response.
func writeSuccess(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, map[string]any{
		"data": data,
		"meta": map[string]any{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// Package httpserver contains the health and metrics HTTP surface.
//
// Handlers receive their collaborators at construction rather than reading
// them from globals. The package exposes JSON endpoints for composite health,
// readiness, liveness, and the detailed operator report.
package httpserver

import (
	"encoding/json"
	"net/http"
	"time"
)

// errorEnvelope is the wire shape of every error response.
type errorEnvelope struct {
	Error      string `json:"error"`
	StatusCode int    `json:"status_code"`
	Timestamp  string `json:"timestamp"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorEnvelope{
		Error:      message,
		StatusCode: status,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	})
}

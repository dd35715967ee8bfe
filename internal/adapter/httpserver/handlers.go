package httpserver

import (
	"context"
	"net/http"
	"time"

	"github.com/esurv/flowqueue/internal/health"
)

// Server bundles the handlers of the health surface around one monitor.
type Server struct {
	Monitor *health.Monitor
}

// NewServer constructs a Server over the given monitor.
func NewServer(m *health.Monitor) *Server { return &Server{Monitor: m} }

// checkTimeout bounds every probing handler so a wedged store cannot hang
// the health surface.
const checkTimeout = 10 * time.Second

// HealthHandler serves the composite, detail-light health signal: 200 for
// healthy and degraded, 503 for unhealthy.
func (s *Server) HealthHandler() http.HandlerFunc {
	type response struct {
		Status     health.Status `json:"status"`
		InstanceID string        `json:"instance_id"`
		Timestamp  string        `json:"timestamp"`
		Error      string        `json:"error,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Monitor == nil {
			writeError(w, http.StatusInternalServerError, "health monitor not configured")
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		defer cancel()
		rep := s.Monitor.Check(ctx)
		st := http.StatusOK
		if rep.Status == health.StatusUnhealthy {
			st = http.StatusServiceUnavailable
		}
		writeJSON(w, st, response{
			Status:     rep.Status,
			InstanceID: rep.Instance.InstanceID,
			Timestamp:  rep.Timestamp,
			Error:      rep.Error,
		})
	}
}

// ReadyHandler serves the readiness gate: the composite signal plus an
// explicit ready flag for load balancers.
func (s *Server) ReadyHandler() http.HandlerFunc {
	type response struct {
		Status     health.Status                 `json:"status"`
		Ready      bool                          `json:"ready"`
		Checks     map[string]health.CheckResult `json:"checks"`
		InstanceID string                        `json:"instance_id"`
		Timestamp  string                        `json:"timestamp"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Monitor == nil {
			writeError(w, http.StatusInternalServerError, "health monitor not configured")
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		defer cancel()
		rep, ready := s.Monitor.Ready(ctx)
		st := http.StatusOK
		if !ready {
			st = http.StatusServiceUnavailable
		}
		writeJSON(w, st, response{
			Status:     rep.Status,
			Ready:      ready,
			Checks:     rep.Databases,
			InstanceID: rep.Instance.InstanceID,
			Timestamp:  rep.Timestamp,
		})
	}
}

// LiveHandler serves process liveness only; no store probe, 200 as long as
// the process answers.
func (s *Server) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if s.Monitor == nil {
			writeError(w, http.StatusInternalServerError, "health monitor not configured")
			return
		}
		writeJSON(w, http.StatusOK, s.Monitor.Live())
	}
}

// DetailedHandler serves the full report with per-check details. Always 200
// when the report is produced; 500 only on internal failure.
func (s *Server) DetailedHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.Monitor == nil {
			writeError(w, http.StatusInternalServerError, "health monitor not configured")
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		defer cancel()
		writeJSON(w, http.StatusOK, s.Monitor.Check(ctx))
	}
}

// NotFoundHandler answers unknown paths with the JSON error envelope.
func NotFoundHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	}
}

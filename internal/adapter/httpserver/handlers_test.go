package httpserver_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpserver "github.com/esurv/flowqueue/internal/adapter/httpserver"
	"github.com/esurv/flowqueue/internal/adapter/observability"
	"github.com/esurv/flowqueue/internal/health"
)

var metricsOnce sync.Once

func newServer(primary health.Checker) *httpserver.Server {
	metricsOnce.Do(observability.InitMetrics)
	m := health.NewMonitor(primary, nil, "host-abc123de", health.MonitorConfig{CacheTTL: -1})
	return httpserver.NewServer(m)
}

func TestHealthHandlerHealthy(t *testing.T) {
	srv := newServer(func(_ context.Context) error { return nil })
	rec := httptest.NewRecorder()
	srv.HealthHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Status     string `json:"status"`
		InstanceID string `json:"instance_id"`
		Timestamp  string `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body.Status)
	assert.Equal(t, "host-abc123de", body.InstanceID)
	assert.NotEmpty(t, body.Timestamp)
}

func TestHealthHandlerDegradedStays200(t *testing.T) {
	srv := newServer(func(_ context.Context) error { return nil })
	srv.Monitor.AddSecondary("source", func(_ context.Context) error {
		return errors.New("login timeout expired")
	})

	rec := httptest.NewRecorder()
	srv.HealthHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body.Status)
}

func TestHealthHandlerUnhealthyIs503(t *testing.T) {
	srv := newServer(func(_ context.Context) error { return errors.New("connection refused") })

	rec := httptest.NewRecorder()
	srv.HealthHandler()(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body struct {
		Status string `json:"status"`
		Error  string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unhealthy", body.Status)
	assert.Contains(t, body.Error, "primary store unhealthy")
}

func TestReadyHandler(t *testing.T) {
	srv := newServer(func(_ context.Context) error { return nil })
	rec := httptest.NewRecorder()
	srv.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Ready  bool                          `json:"ready"`
		Checks map[string]health.CheckResult `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Ready)
	assert.Contains(t, body.Checks, "primary")
}

func TestReadyHandlerNotReady(t *testing.T) {
	srv := newServer(func(_ context.Context) error { return errors.New("down") })
	rec := httptest.NewRecorder()
	srv.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLiveHandlerSkipsProbes(t *testing.T) {
	srv := newServer(func(_ context.Context) error {
		t.Fatal("liveness must not probe the store")
		return nil
	})
	rec := httptest.NewRecorder()
	srv.LiveHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "alive", body.Status)
}

func TestDetailedHandler(t *testing.T) {
	srv := newServer(func(_ context.Context) error { return nil })
	rec := httptest.NewRecorder()
	srv.DetailedHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/detailed", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var rep health.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	assert.Equal(t, health.StatusHealthy, rep.Status)
	assert.Contains(t, rep.Databases, "primary")
	assert.Equal(t, "host-abc123de", rep.Instance.InstanceID)
}

func TestHandlersWithoutMonitor(t *testing.T) {
	srv := &httpserver.Server{}
	for name, h := range map[string]http.HandlerFunc{
		"health":   srv.HealthHandler(),
		"ready":    srv.ReadyHandler(),
		"live":     srv.LiveHandler(),
		"detailed": srv.DetailedHandler(),
	} {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
			assert.Equal(t, http.StatusInternalServerError, rec.Code)
		})
	}
}

func TestNotFoundHandlerEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	httpserver.NotFoundHandler()(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	var body struct {
		Error      string `json:"error"`
		StatusCode int    `json:"status_code"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, http.StatusNotFound, body.StatusCode)
}

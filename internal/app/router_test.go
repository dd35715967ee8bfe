package app_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpserver "github.com/esurv/flowqueue/internal/adapter/httpserver"
	"github.com/esurv/flowqueue/internal/adapter/observability"
	"github.com/esurv/flowqueue/internal/app"
	"github.com/esurv/flowqueue/internal/config"
	"github.com/esurv/flowqueue/internal/health"
)

var metricsOnce sync.Once

func testRouter(t *testing.T, primary health.Checker) http.Handler {
	t.Helper()
	metricsOnce.Do(observability.InitMetrics)
	monitor := health.NewMonitor(primary, nil, "host-abc123de", health.MonitorConfig{CacheTTL: -1})
	cfg := config.Config{CORSAllowOrigins: "*", RateLimitPerMin: 60}
	return app.BuildRouter(cfg, httpserver.NewServer(monitor))
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestRouterHealthEndpoints(t *testing.T) {
	h := testRouter(t, func(_ context.Context) error { return nil })

	for _, path := range []string{"/health", "/health/ready", "/health/live", "/health/detailed", "/metrics"} {
		rec := get(t, h, path)
		assert.Equal(t, http.StatusOK, rec.Code, "path %s", path)
	}
}

func TestRouterHealthUnhealthy(t *testing.T) {
	h := testRouter(t, func(_ context.Context) error {
		return context.DeadlineExceeded
	})

	rec := get(t, h, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Status string `json:"status"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unhealthy", body.Status)

	rec = get(t, h, "/health/ready")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	// liveness stays up regardless of store state
	rec = get(t, h, "/health/live")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterNotFoundIsJSON(t *testing.T) {
	h := testRouter(t, func(_ context.Context) error { return nil })

	rec := get(t, h, "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	var body struct {
		Error      string `json:"error"`
		StatusCode int    `json:"status_code"`
		Timestamp  string `json:"timestamp"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not found", body.Error)
	assert.Equal(t, http.StatusNotFound, body.StatusCode)
	assert.NotEmpty(t, body.Timestamp)
}

func TestRouterMetricsExposition(t *testing.T) {
	h := testRouter(t, func(_ context.Context) error { return nil })

	// prime the gauges with one health evaluation
	get(t, h, "/health")

	rec := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "# TYPE overall_health gauge")
	assert.Contains(t, body, "# TYPE health_checks_total counter")
	assert.True(t, strings.Contains(body, `store_health{database="primary"}`), "per-database gauge present")
}

func TestRouterRequestIDHeader(t *testing.T) {
	h := testRouter(t, func(_ context.Context) error { return nil })
	rec := get(t, h, "/health")
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestParseOrigins(t *testing.T) {
	assert.Equal(t, []string{"*"}, app.ParseOrigins(""))
	assert.Equal(t, []string{"*"}, app.ParseOrigins("*"))
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, app.ParseOrigins(" https://a.test, https://b.test "))
	assert.Equal(t, []string{"*"}, app.ParseOrigins(" , "))
}

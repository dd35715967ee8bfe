package observability_test

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/esurv/flowqueue/internal/adapter/observability"
)

var initOnce sync.Once

func initMetrics() {
	initOnce.Do(observability.InitMetrics)
}

func TestQueueRecordsGauge(t *testing.T) {
	initMetrics()
	observability.SetQueueRecords("survey", "pending", 12)
	v := testutil.ToFloat64(observability.QueueRecords.WithLabelValues("survey", "pending"))
	assert.Equal(t, 12.0, v)
}

func TestRecordStoreProbe(t *testing.T) {
	initMetrics()
	observability.RecordStoreProbe("primary", 42.5, true)
	assert.Equal(t, 42.5, testutil.ToFloat64(observability.StoreResponseTime.WithLabelValues("primary")))
	assert.Equal(t, 1.0, testutil.ToFloat64(observability.StoreHealth.WithLabelValues("primary")))

	observability.RecordStoreProbe("primary", 6000, false)
	assert.Equal(t, 0.0, testutil.ToFloat64(observability.StoreHealth.WithLabelValues("primary")))
}

func TestRecordHealthCheck(t *testing.T) {
	initMetrics()
	before := testutil.ToFloat64(observability.HealthChecksTotal)
	observability.RecordHealthCheck(0.5)
	assert.Equal(t, 0.5, testutil.ToFloat64(observability.OverallHealth))
	assert.Equal(t, before+1, testutil.ToFloat64(observability.HealthChecksTotal))
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	initMetrics()
	h := observability.HTTPMetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	v := testutil.ToFloat64(observability.HTTPRequestsTotal.WithLabelValues("/health", http.MethodGet, http.StatusText(http.StatusOK)))
	assert.GreaterOrEqual(t, v, 1.0)
}

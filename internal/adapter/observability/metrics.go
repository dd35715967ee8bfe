package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTPRequestsTotal counts HTTP requests by route, method, and status label.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	// HTTPRequestDuration records request durations by route and method.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	// QueueRecords is a gauge of queue records by flow and status.
	QueueRecords = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "queue_records",
			Help: "Number of queue records by flow and status",
		},
		[]string{"flow", "status"},
	)
	// StoreResponseTime records the latest store probe round-trip by database.
	StoreResponseTime = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "store_response_time_ms",
			Help: "Last health probe response time in milliseconds",
		},
		[]string{"database"},
	)
	// StoreHealth is 1 when the named store probe passed, 0 otherwise.
	StoreHealth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "store_health",
			Help: "Store health status (1=healthy, 0=unhealthy)",
		},
		[]string{"database"},
	)
	// OverallHealth encodes the composite health (1=healthy, 0.5=degraded, 0=unhealthy).
	OverallHealth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "overall_health",
			Help: "Composite health status (1=healthy, 0.5=degraded, 0=unhealthy)",
		},
	)
	// HealthChecksTotal counts health check evaluations.
	HealthChecksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "health_checks_total",
			Help: "Total number of health check evaluations",
		},
	)

	// RecordsClaimedTotal counts records claimed by flow.
	RecordsClaimedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "records_claimed_total",
			Help: "Total number of records claimed",
		},
		[]string{"flow"},
	)
	// RecordsFinalizedTotal counts finalized records by flow and outcome.
	RecordsFinalizedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "records_finalized_total",
			Help: "Total number of records finalized",
		},
		[]string{"flow", "outcome"},
	)
	// OrphansReclaimedTotal counts records returned to pending by the orphan sweep.
	OrphansReclaimedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "orphans_reclaimed_total",
			Help: "Total number of orphaned records reclaimed",
		},
	)
)

// InitMetrics registers all Prometheus metrics with the default registry.
func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(QueueRecords)
	prometheus.MustRegister(StoreResponseTime)
	prometheus.MustRegister(StoreHealth)
	prometheus.MustRegister(OverallHealth)
	prometheus.MustRegister(HealthChecksTotal)
	prometheus.MustRegister(RecordsClaimedTotal)
	prometheus.MustRegister(RecordsFinalizedTotal)
	prometheus.MustRegister(OrphansReclaimedTotal)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		method := r.Method
		status := ww.Status()
		HTTPRequestsTotal.WithLabelValues(route, method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, method).Observe(dur)
	})
}

// SetQueueRecords updates the queue gauge for one flow and status.
func SetQueueRecords(flow, status string, count float64) {
	QueueRecords.WithLabelValues(flow, status).Set(count)
}

// RecordStoreProbe records the outcome of one store health probe.
func RecordStoreProbe(database string, responseTimeMS float64, healthy bool) {
	StoreResponseTime.WithLabelValues(database).Set(responseTimeMS)
	v := 0.0
	if healthy {
		v = 1.0
	}
	StoreHealth.WithLabelValues(database).Set(v)
}

// RecordHealthCheck records one composite health evaluation.
func RecordHealthCheck(overall float64) {
	OverallHealth.Set(overall)
	HealthChecksTotal.Inc()
}

// RecordClaimed counts claimed records for a flow.
func RecordClaimed(flow string, count int) {
	RecordsClaimedTotal.WithLabelValues(flow).Add(float64(count))
}

// RecordFinalized counts one finalized record.
func RecordFinalized(flow, outcome string) {
	RecordsFinalizedTotal.WithLabelValues(flow, outcome).Inc()
}

// RecordOrphansReclaimed counts reclaimed orphans.
func RecordOrphansReclaimed(count int64) {
	if count > 0 {
		OrphansReclaimedTotal.Add(float64(count))
	}
}

// Package health implements the composite liveness/readiness signal for a
// worker process: a primary store probe with latency thresholds, optional
// secondary dependency probes, and a queue-state assessment. Results feed
// both the HTTP surface and the Prometheus gauges.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/esurv/flowqueue/internal/adapter/observability"
	"github.com/esurv/flowqueue/internal/domain"
)

// Status is one of the three composite health severities.
type Status string

// Health severities.
const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Checker probes one dependency. A nil return means the dependency answered.
type Checker func(ctx context.Context) error

// Pinger is the minimal interface for a database pool capable of Ping.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewPoolChecker probes a pgx pool with one round trip.
func NewPoolChecker(pool Pinger) Checker {
	return func(ctx context.Context) error {
		if pool == nil {
			return fmt.Errorf("db not configured")
		}
		return pool.Ping(ctx)
	}
}

// NewRedisChecker probes a Redis client with one PING round trip.
func NewRedisChecker(client *redis.Client) Checker {
	return func(ctx context.Context) error {
		if client == nil {
			return fmt.Errorf("redis not configured")
		}
		return client.Ping(ctx).Err()
	}
}

// CheckResult is the outcome of one dependency probe.
type CheckResult struct {
	Status         Status  `json:"status"`
	Message        string  `json:"message,omitempty"`
	ResponseTimeMS float64 `json:"response_time_ms"`
	Error          string  `json:"error,omitempty"`
}

// QueueHealth folds the queue snapshot and its assessment into the report.
type QueueHealth struct {
	domain.QueueSnapshot
	Alerts []string `json:"alerts,omitempty"`
	Error  string   `json:"error,omitempty"`
}

// InstanceInfo identifies the reporting worker.
type InstanceInfo struct {
	InstanceID string `json:"instance_id"`
	Hostname   string `json:"hostname"`
}

// Report is one composite health evaluation.
type Report struct {
	Status    Status                 `json:"status"`
	Databases map[string]CheckResult `json:"databases"`
	Queue     *QueueHealth           `json:"queue_status,omitempty"`
	Instance  InstanceInfo           `json:"instance_info"`
	Timestamp string                 `json:"timestamp"`
	Error     string                 `json:"error,omitempty"`
}

// MonitorConfig tunes probe thresholds and result caching.
type MonitorConfig struct {
	// PrimaryName labels the primary store in reports and metrics.
	PrimaryName string
	// DegradedThreshold is the probe latency above which a store counts as
	// degraded. Defaults to 1s.
	DegradedThreshold time.Duration
	// UnhealthyThreshold is the probe latency above which a store counts as
	// unhealthy. Defaults to 5s.
	UnhealthyThreshold time.Duration
	// CacheTTL bounds probe load; results inside the TTL are reused.
	// Defaults to 30s; negative disables caching.
	CacheTTL time.Duration
}

func (c MonitorConfig) withDefaults() MonitorConfig {
	if c.PrimaryName == "" {
		c.PrimaryName = "primary"
	}
	if c.DegradedThreshold <= 0 {
		c.DegradedThreshold = time.Second
	}
	if c.UnhealthyThreshold <= 0 {
		c.UnhealthyThreshold = 5 * time.Second
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = 30 * time.Second
	}
	return c
}

// Monitor aggregates dependency probes and queue state into one composite
// severity. Safe for concurrent use.
type Monitor struct {
	cfg         MonitorConfig
	primary     Checker
	secondaries map[string]Checker
	status      domain.StatusRepository
	instanceID  string
	hostname    string

	mu       sync.Mutex
	cached   *Report
	cachedAt time.Time
}

// NewMonitor builds a Monitor over the primary store probe and an optional
// status repository for queue metrics.
func NewMonitor(primary Checker, status domain.StatusRepository, instanceID string, cfg MonitorConfig) *Monitor {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return &Monitor{
		cfg:         cfg.withDefaults(),
		primary:     primary,
		secondaries: make(map[string]Checker),
		status:      status,
		instanceID:  instanceID,
		hostname:    hostname,
	}
}

// AddSecondary registers an optional dependency probe. Secondary failures
// degrade the composite status but never fail it.
func (m *Monitor) AddSecondary(name string, c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secondaries[name] = c
}

// Check evaluates composite health, reusing a cached report inside the TTL.
func (m *Monitor) Check(ctx context.Context) Report {
	m.mu.Lock()
	if m.cached != nil && m.cfg.CacheTTL > 0 && time.Since(m.cachedAt) < m.cfg.CacheTTL {
		rep := *m.cached
		m.mu.Unlock()
		return rep
	}
	secondaries := make(map[string]Checker, len(m.secondaries))
	for name, c := range m.secondaries {
		secondaries[name] = c
	}
	m.mu.Unlock()

	rep := Report{
		Status:    StatusHealthy,
		Databases: make(map[string]CheckResult),
		Instance:  InstanceInfo{InstanceID: m.instanceID, Hostname: m.hostname},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	primaryRes := m.probe(ctx, m.cfg.PrimaryName, m.primary)
	rep.Databases[m.cfg.PrimaryName] = primaryRes
	switch primaryRes.Status {
	case StatusUnhealthy:
		rep.Status = StatusUnhealthy
		rep.Error = fmt.Sprintf("primary store unhealthy: %s", firstNonEmpty(primaryRes.Error, primaryRes.Message))
	case StatusDegraded:
		rep.Status = StatusDegraded
	}

	// Deterministic order keeps logs and tests stable.
	names := make([]string, 0, len(secondaries))
	for name := range secondaries {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		res := m.probe(ctx, name, secondaries[name])
		rep.Databases[name] = res
		if res.Status != StatusHealthy && rep.Status == StatusHealthy {
			rep.Status = StatusDegraded
		}
	}

	m.checkQueue(ctx, &rep, primaryRes)

	switch rep.Status {
	case StatusHealthy:
		observability.RecordHealthCheck(1)
	case StatusDegraded:
		observability.RecordHealthCheck(0.5)
	default:
		observability.RecordHealthCheck(0)
	}

	if rep.Status != StatusHealthy {
		slog.Warn("health check completed",
			slog.String("status", string(rep.Status)),
			slog.String("instance_id", m.instanceID),
			slog.String("error", rep.Error))
	} else {
		slog.Debug("health check completed", slog.String("status", string(rep.Status)))
	}

	m.mu.Lock()
	m.cached = &rep
	m.cachedAt = time.Now()
	m.mu.Unlock()
	return rep
}

// probe runs one checker and classifies its latency against the thresholds.
func (m *Monitor) probe(ctx context.Context, name string, c Checker) CheckResult {
	if c == nil {
		return CheckResult{Status: StatusUnhealthy, Error: "checker not configured"}
	}
	start := time.Now()
	err := c(ctx)
	ms := float64(time.Since(start).Microseconds()) / 1000

	res := CheckResult{ResponseTimeMS: ms}
	switch {
	case err != nil:
		res.Status = StatusUnhealthy
		res.Error = err.Error()
		res.Message = fmt.Sprintf("store %q connectivity test failed", name)
	case time.Since(start) > m.cfg.UnhealthyThreshold:
		res.Status = StatusUnhealthy
		res.Message = fmt.Sprintf("store %q response time too high", name)
	case time.Since(start) > m.cfg.DegradedThreshold:
		res.Status = StatusDegraded
		res.Message = fmt.Sprintf("store %q performance degraded", name)
	default:
		res.Status = StatusHealthy
	}
	observability.RecordStoreProbe(name, ms, res.Status == StatusHealthy)
	return res
}

// checkQueue folds the queue snapshot into the report. Snapshot failures
// degrade the composite status; with the primary store already unreachable
// the snapshot is skipped outright.
func (m *Monitor) checkQueue(ctx context.Context, rep *Report, primary CheckResult) {
	if m.status == nil {
		return
	}
	if primary.Error != "" {
		rep.Queue = &QueueHealth{Error: "store connection unavailable"}
		return
	}
	snap, err := m.status.Snapshot(ctx, "")
	if err != nil {
		rep.Queue = &QueueHealth{Error: err.Error()}
		if rep.Status == StatusHealthy {
			rep.Status = StatusDegraded
		}
		return
	}
	rep.Queue = &QueueHealth{QueueSnapshot: snap, Alerts: assessQueue(snap)}
	for flow, counts := range snap.ByFlow {
		observability.SetQueueRecords(flow, string(domain.StatusPending), float64(counts.Pending))
		observability.SetQueueRecords(flow, string(domain.StatusProcessing), float64(counts.Processing))
		observability.SetQueueRecords(flow, string(domain.StatusCompleted), float64(counts.Completed))
		observability.SetQueueRecords(flow, string(domain.StatusFailed), float64(counts.Failed))
	}
}

// assessQueue derives operator alerts from queue counts.
func assessQueue(snap domain.QueueSnapshot) []string {
	var alerts []string
	if snap.Pending > 1000 {
		alerts = append(alerts, fmt.Sprintf("high pending backlog: %d records", snap.Pending))
	}
	if snap.Processing > 500 {
		alerts = append(alerts, fmt.Sprintf("high processing count: %d records may indicate stuck workers", snap.Processing))
	}
	if snap.Total > 0 {
		ratio := float64(snap.Failed) / float64(snap.Total)
		if ratio > 0.1 {
			alerts = append(alerts, fmt.Sprintf("elevated failure rate: %.1f%%", ratio*100))
		}
	}
	return alerts
}

// Ready reports whether the worker should receive traffic: everything but
// unhealthy is ready.
func (m *Monitor) Ready(ctx context.Context) (Report, bool) {
	rep := m.Check(ctx)
	return rep, rep.Status != StatusUnhealthy
}

// Liveness is the process-only signal; no store probe.
type Liveness struct {
	Status     string `json:"status"`
	InstanceID string `json:"instance_id"`
	Hostname   string `json:"hostname"`
	Timestamp  string `json:"timestamp"`
}

// Live reports process liveness without touching any dependency.
func (m *Monitor) Live() Liveness {
	return Liveness{
		Status:     "alive",
		InstanceID: m.instanceID,
		Hostname:   m.hostname,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

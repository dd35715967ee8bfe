package postgres

import (
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/esurv/flowqueue/internal/domain"
)

// StatusRepo implements the read-only diagnostic surface. Every report
// carries the producing worker's instance id and a UTC timestamp so
// operators can correlate output across the fleet. No query locks rows.
type StatusRepo struct {
	Pool       PgxPool
	InstanceID string
}

// NewStatusRepo constructs a StatusRepo stamping reports with instanceID.
func NewStatusRepo(p PgxPool, instanceID string) *StatusRepo {
	return &StatusRepo{Pool: p, InstanceID: instanceID}
}

// Snapshot aggregates record counts by status. With a flow name the counts
// cover that flow only; with "" the snapshot is system-wide and includes a
// per-flow breakdown. Absent statuses count as zero.
func (r *StatusRepo) Snapshot(ctx domain.Context, flowName string) (domain.QueueSnapshot, error) {
	tracer := otel.Tracer("repo.status")
	ctx, span := tracer.Start(ctx, "status.Snapshot")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "processing_queue"),
	)

	snap := domain.QueueSnapshot{FlowName: flowName}

	var (
		q    string
		args []any
	)
	if flowName != "" {
		q = `SELECT status, COUNT(*) FROM processing_queue WHERE flow_name = $1 GROUP BY status`
		args = []any{flowName}
	} else {
		q = `SELECT status, COUNT(*) FROM processing_queue GROUP BY status`
	}

	rows, err := r.Pool.Query(ctx, q, args...)
	if err != nil {
		return domain.QueueSnapshot{}, fmt.Errorf("op=status.snapshot flow=%q: %w", flowName, err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return domain.QueueSnapshot{}, fmt.Errorf("op=status.snapshot_scan flow=%q: %w", flowName, err)
		}
		applyCount(&snap, status, count)
	}
	if err := rows.Err(); err != nil {
		return domain.QueueSnapshot{}, fmt.Errorf("op=status.snapshot_rows flow=%q: %w", flowName, err)
	}
	snap.Total = snap.Pending + snap.Processing + snap.Completed + snap.Failed

	if flowName == "" {
		byFlow, err := r.snapshotByFlow(ctx)
		if err != nil {
			return domain.QueueSnapshot{}, err
		}
		snap.ByFlow = byFlow
	}
	return snap, nil
}

func (r *StatusRepo) snapshotByFlow(ctx domain.Context) (map[string]domain.FlowCounts, error) {
	q := `SELECT flow_name, status, COUNT(*)
FROM processing_queue
GROUP BY flow_name, status
ORDER BY flow_name, status`
	rows, err := r.Pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("op=status.snapshot_by_flow: %w", err)
	}
	defer rows.Close()

	byFlow := make(map[string]domain.FlowCounts)
	for rows.Next() {
		var flow, status string
		var count int64
		if err := rows.Scan(&flow, &status, &count); err != nil {
			return nil, fmt.Errorf("op=status.snapshot_by_flow_scan: %w", err)
		}
		fc := byFlow[flow]
		switch domain.RecordStatus(status) {
		case domain.StatusPending:
			fc.Pending = count
		case domain.StatusProcessing:
			fc.Processing = count
		case domain.StatusCompleted:
			fc.Completed = count
		case domain.StatusFailed:
			fc.Failed = count
		}
		fc.Total += count
		byFlow[flow] = fc
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=status.snapshot_by_flow_rows: %w", err)
	}
	return byFlow, nil
}

func applyCount(snap *domain.QueueSnapshot, status string, count int64) {
	switch domain.RecordStatus(status) {
	case domain.StatusPending:
		snap.Pending = count
	case domain.StatusProcessing:
		snap.Processing = count
	case domain.StatusCompleted:
		snap.Completed = count
	case domain.StatusFailed:
		snap.Failed = count
	}
}

// OrphanAnalysis summarizes processing records whose claim is older than
// olderThan, grouped per flow with claim-age statistics.
func (r *StatusRepo) OrphanAnalysis(ctx domain.Context, flowName string, olderThan time.Duration) (domain.OrphanReport, error) {
	if olderThan <= 0 {
		olderThan = time.Hour
	}

	tracer := otel.Tracer("repo.status")
	ctx, span := tracer.Start(ctx, "status.OrphanAnalysis")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "processing_queue"),
	)

	q := `SELECT
    flow_name,
    COUNT(*) AS orphaned_count,
    MIN(claimed_at) AS oldest_claim,
    MAX(claimed_at) AS newest_claim,
    AVG(EXTRACT(EPOCH FROM (now() - claimed_at)) / 3600) AS avg_hours_stuck
FROM processing_queue
WHERE status = 'processing'
  AND claimed_at < now() - $1::interval`
	args := []any{olderThan}
	if flowName != "" {
		q += ` AND flow_name = $2`
		args = append(args, flowName)
	}
	q += ` GROUP BY flow_name ORDER BY orphaned_count DESC`

	rows, err := r.Pool.Query(ctx, q, args...)
	if err != nil {
		return domain.OrphanReport{}, fmt.Errorf("op=status.orphan_analysis flow=%q: %w", flowName, err)
	}
	defer rows.Close()

	report := domain.OrphanReport{GeneratedAt: time.Now().UTC(), InstanceID: r.InstanceID}
	for rows.Next() {
		var st domain.OrphanFlowStats
		if err := rows.Scan(&st.FlowName, &st.Count, &st.OldestClaim, &st.NewestClaim, &st.AvgHoursStuck); err != nil {
			return domain.OrphanReport{}, fmt.Errorf("op=status.orphan_analysis_scan flow=%q: %w", flowName, err)
		}
		report.ByFlow = append(report.ByFlow, st)
		report.TotalOrphaned += st.Count
	}
	if err := rows.Err(); err != nil {
		return domain.OrphanReport{}, fmt.Errorf("op=status.orphan_analysis_rows flow=%q: %w", flowName, err)
	}
	return report, nil
}

// PerformanceAnalysis aggregates records claimed inside the window by flow:
// completion counts, success rate, and average processing minutes measured
// from claim to finalization.
func (r *StatusRepo) PerformanceAnalysis(ctx domain.Context, flowName string, window time.Duration) (domain.PerformanceReport, error) {
	if window <= 0 {
		window = 24 * time.Hour
	}

	tracer := otel.Tracer("repo.status")
	ctx, span := tracer.Start(ctx, "status.PerformanceAnalysis")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "processing_queue"),
	)

	q := `SELECT
    flow_name,
    COUNT(*) AS total_processed,
    COUNT(*) FILTER (WHERE status = 'completed') AS completed_count,
    COUNT(*) FILTER (WHERE status = 'failed') AS failed_count,
    COALESCE(AVG(EXTRACT(EPOCH FROM (COALESCE(completed_at, updated_at) - claimed_at)) / 60), 0) AS avg_processing_minutes,
    MIN(completed_at) AS first_completion,
    MAX(completed_at) AS last_completion
FROM processing_queue
WHERE status IN ('completed', 'failed')
  AND claimed_at >= now() - $1::interval`
	args := []any{window}
	if flowName != "" {
		q += ` AND flow_name = $2`
		args = append(args, flowName)
	}
	q += ` GROUP BY flow_name ORDER BY total_processed DESC`

	rows, err := r.Pool.Query(ctx, q, args...)
	if err != nil {
		return domain.PerformanceReport{}, fmt.Errorf("op=status.performance_analysis flow=%q: %w", flowName, err)
	}
	defer rows.Close()

	report := domain.PerformanceReport{
		GeneratedAt: time.Now().UTC(),
		InstanceID:  r.InstanceID,
		WindowHours: window.Hours(),
	}
	var weightedMinutes float64
	for rows.Next() {
		var fp domain.FlowPerformance
		if err := rows.Scan(&fp.FlowName, &fp.TotalProcessed, &fp.CompletedCount, &fp.FailedCount,
			&fp.AvgProcessingMinutes, &fp.FirstCompletion, &fp.LastCompletion); err != nil {
			return domain.PerformanceReport{}, fmt.Errorf("op=status.performance_analysis_scan flow=%q: %w", flowName, err)
		}
		report.ByFlow = append(report.ByFlow, fp)
		report.TotalProcessed += fp.TotalProcessed
		report.TotalCompleted += fp.CompletedCount
		report.TotalFailed += fp.FailedCount
		weightedMinutes += fp.AvgProcessingMinutes * float64(fp.TotalProcessed)
	}
	if err := rows.Err(); err != nil {
		return domain.PerformanceReport{}, fmt.Errorf("op=status.performance_analysis_rows flow=%q: %w", flowName, err)
	}
	if report.TotalProcessed > 0 {
		report.SuccessRatePercent = float64(report.TotalCompleted) / float64(report.TotalProcessed) * 100
		report.AvgProcessingMinutes = weightedMinutes / float64(report.TotalProcessed)
	}
	return report, nil
}

// ErrorAnalysis ranks failure messages by frequency inside the window,
// grouped per flow and capped at the top twenty messages.
func (r *StatusRepo) ErrorAnalysis(ctx domain.Context, flows []string, window time.Duration) (domain.ErrorReport, error) {
	if window <= 0 {
		window = 24 * time.Hour
	}

	tracer := otel.Tracer("repo.status")
	ctx, span := tracer.Start(ctx, "status.ErrorAnalysis")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "processing_queue"),
	)

	q := `SELECT
    flow_name,
    error_message,
    COUNT(*) AS error_count,
    MIN(updated_at) AS first_occurrence,
    MAX(updated_at) AS last_occurrence
FROM processing_queue
WHERE status = 'failed'
  AND error_message IS NOT NULL
  AND updated_at >= now() - $1::interval`
	args := []any{window}
	if len(flows) > 0 {
		q += ` AND flow_name = ANY($2)`
		args = append(args, flows)
	}
	q += ` GROUP BY flow_name, error_message ORDER BY error_count DESC LIMIT 20`

	rows, err := r.Pool.Query(ctx, q, args...)
	if err != nil {
		return domain.ErrorReport{}, fmt.Errorf("op=status.error_analysis flows=%s: %w", strings.Join(flows, ","), err)
	}
	defer rows.Close()

	report := domain.ErrorReport{
		GeneratedAt: time.Now().UTC(),
		InstanceID:  r.InstanceID,
		WindowHours: window.Hours(),
		ByFlow:      make(map[string][]domain.ErrorFrequency),
	}
	for rows.Next() {
		var ef domain.ErrorFrequency
		if err := rows.Scan(&ef.FlowName, &ef.ErrorMessage, &ef.Count, &ef.FirstOccurrence, &ef.LastOccurrence); err != nil {
			return domain.ErrorReport{}, fmt.Errorf("op=status.error_analysis_scan: %w", err)
		}
		report.ByFlow[ef.FlowName] = append(report.ByFlow[ef.FlowName], ef)
		report.TotalErrors += ef.Count
		report.UniqueErrorTypes++
		if len(report.TopErrors) < 10 {
			report.TopErrors = append(report.TopErrors, ef)
		}
	}
	if err := rows.Err(); err != nil {
		return domain.ErrorReport{}, fmt.Errorf("op=status.error_analysis_rows: %w", err)
	}
	return report, nil
}

// TrendAnalysis buckets claim throughput per hour inside the window.
func (r *StatusRepo) TrendAnalysis(ctx domain.Context, flows []string, window time.Duration) (domain.TrendReport, error) {
	if window <= 0 {
		window = 24 * time.Hour
	}

	tracer := otel.Tracer("repo.status")
	ctx, span := tracer.Start(ctx, "status.TrendAnalysis")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "SELECT"),
		attribute.String("db.sql.table", "processing_queue"),
	)

	q := `SELECT
    date_trunc('hour', claimed_at) AS hour,
    flow_name,
    COUNT(*) AS records_processed,
    COUNT(*) FILTER (WHERE status = 'completed') AS completed_count,
    COALESCE(AVG(EXTRACT(EPOCH FROM (COALESCE(completed_at, updated_at) - claimed_at)) / 60), 0) AS avg_processing_minutes
FROM processing_queue
WHERE claimed_at >= now() - $1::interval`
	args := []any{window}
	if len(flows) > 0 {
		q += ` AND flow_name = ANY($2)`
		args = append(args, flows)
	}
	q += ` GROUP BY date_trunc('hour', claimed_at), flow_name ORDER BY hour DESC`

	rows, err := r.Pool.Query(ctx, q, args...)
	if err != nil {
		return domain.TrendReport{}, fmt.Errorf("op=status.trend_analysis: %w", err)
	}
	defer rows.Close()

	report := domain.TrendReport{
		GeneratedAt: time.Now().UTC(),
		InstanceID:  r.InstanceID,
		WindowHours: window.Hours(),
	}
	perHour := make(map[time.Time]int64)
	for rows.Next() {
		var b domain.TrendBucket
		if err := rows.Scan(&b.Hour, &b.FlowName, &b.Processed, &b.Completed, &b.AvgProcessingMinutes); err != nil {
			return domain.TrendReport{}, fmt.Errorf("op=status.trend_analysis_scan: %w", err)
		}
		report.Buckets = append(report.Buckets, b)
		perHour[b.Hour] += b.Processed
	}
	if err := rows.Err(); err != nil {
		return domain.TrendReport{}, fmt.Errorf("op=status.trend_analysis_rows: %w", err)
	}
	report.HoursAnalyzed = len(perHour)
	for _, total := range perHour {
		if total > report.PeakHourProcessed {
			report.PeakHourProcessed = total
		}
	}
	return report, nil
}

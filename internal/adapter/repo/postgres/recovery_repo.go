package postgres

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/esurv/flowqueue/internal/domain"
)

// RecoveryRepo implements the two recovery sweeps over the processing_queue
// table. Both sweeps are idempotent and safe to run concurrently with
// claiming; row locks serialize them per record.
type RecoveryRepo struct{ Pool PgxPool }

// NewRecoveryRepo constructs a RecoveryRepo with the given pool.
func NewRecoveryRepo(p PgxPool) *RecoveryRepo { return &RecoveryRepo{Pool: p} }

// CleanupOrphaned returns processing records whose claim is older than
// olderThan back to pending, clearing the claimant and charging one business
// retry so a permanently crash-causing payload eventually exhausts its
// budget. System-wide; returns the number of reclaimed rows.
func (r *RecoveryRepo) CleanupOrphaned(ctx domain.Context, olderThan time.Duration) (int64, error) {
	if olderThan < 0 {
		return 0, fmt.Errorf("op=recovery.cleanup_orphaned: timeout must be >= 0, got %s: %w", olderThan, domain.ErrInvalidArgument)
	}

	tracer := otel.Tracer("repo.recovery")
	ctx, span := tracer.Start(ctx, "recovery.CleanupOrphaned")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.sql.table", "processing_queue"),
		attribute.Float64("recovery.timeout_seconds", olderThan.Seconds()),
	)

	// The threshold is bound as a typed interval parameter, never
	// interpolated into the statement text.
	q := `UPDATE processing_queue
SET status = 'pending',
    flow_instance_id = NULL,
    claimed_at = NULL,
    retry_count = retry_count + 1,
    updated_at = now()
WHERE status = 'processing'
  AND claimed_at < now() - $1::interval`
	tag, err := r.Pool.Exec(ctx, q, olderThan)
	if err != nil {
		return 0, fmt.Errorf("op=recovery.cleanup_orphaned timeout=%s: %w", olderThan, err)
	}

	reclaimed := tag.RowsAffected()
	span.SetAttributes(attribute.Int64("recovery.reclaimed", reclaimed))
	if reclaimed > 0 {
		slog.Warn("reclaimed orphaned records",
			slog.Int64("count", reclaimed),
			slog.Duration("timeout", olderThan))
	} else {
		slog.Debug("no orphaned records found", slog.Duration("timeout", olderThan))
	}
	return reclaimed, nil
}

// ResetFailed returns failed records of flowName with retry_count below
// maxRetries back to pending, clearing the recorded error. The retry
// counter is deliberately left untouched so it keeps tracking cumulative
// attempts. Records at or above the cap stay failed for operator review.
func (r *RecoveryRepo) ResetFailed(ctx domain.Context, flowName string, maxRetries int) (int64, error) {
	if strings.TrimSpace(flowName) == "" {
		return 0, fmt.Errorf("op=recovery.reset_failed: flow_name must be non-empty: %w", domain.ErrInvalidArgument)
	}
	if maxRetries < 1 {
		return 0, fmt.Errorf("op=recovery.reset_failed flow=%s: max_retries must be >= 1, got %d: %w", flowName, maxRetries, domain.ErrInvalidArgument)
	}

	tracer := otel.Tracer("repo.recovery")
	ctx, span := tracer.Start(ctx, "recovery.ResetFailed")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.sql.table", "processing_queue"),
		attribute.String("recovery.flow_name", flowName),
		attribute.Int("recovery.max_retries", maxRetries),
	)

	countQ := `SELECT
    COUNT(*) FILTER (WHERE retry_count < $2) AS resettable,
    COUNT(*) FILTER (WHERE retry_count >= $2) AS exhausted,
    COUNT(*) AS total
FROM processing_queue
WHERE flow_name = $1 AND status = 'failed'`
	var resettable, exhausted, total int64
	if err := r.Pool.QueryRow(ctx, countQ, flowName, maxRetries).Scan(&resettable, &exhausted, &total); err != nil {
		return 0, fmt.Errorf("op=recovery.reset_failed_count flow=%s: %w", flowName, err)
	}

	slog.Info("failed record census",
		slog.String("flow_name", flowName),
		slog.Int64("total", total),
		slog.Int64("resettable", resettable),
		slog.Int64("exhausted", exhausted))

	if resettable == 0 {
		return 0, nil
	}

	resetQ := `UPDATE processing_queue
SET status = 'pending',
    flow_instance_id = NULL,
    claimed_at = NULL,
    error_message = NULL,
    updated_at = now()
WHERE flow_name = $1
  AND status = 'failed'
  AND retry_count < $2`
	tag, err := r.Pool.Exec(ctx, resetQ, flowName, maxRetries)
	if err != nil {
		return 0, fmt.Errorf("op=recovery.reset_failed flow=%s: %w", flowName, err)
	}

	reset := tag.RowsAffected()
	span.SetAttributes(attribute.Int64("recovery.reset", reset))
	slog.Info("reset failed records to pending",
		slog.String("flow_name", flowName),
		slog.Int64("count", reset),
		slog.Int("max_retries", maxRetries))
	return reset, nil
}

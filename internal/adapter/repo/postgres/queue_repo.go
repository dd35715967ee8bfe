package postgres

import (
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/esurv/flowqueue/internal/domain"
)

// QueueRepo implements the claim / finalize / ingress surface over the
// processing_queue table.
type QueueRepo struct{ Pool PgxPool }

// NewQueueRepo constructs a QueueRepo with the given pool.
func NewQueueRepo(p PgxPool) *QueueRepo { return &QueueRepo{Pool: p} }

// claimSQL atomically flips a FIFO batch of pending rows to processing.
// SKIP LOCKED makes concurrent claimers observe disjoint candidate sets, so
// the union of claimed ids across workers has no duplicates.
const claimSQL = `
UPDATE processing_queue
SET status = 'processing',
    flow_instance_id = $3,
    claimed_at = now(),
    updated_at = now()
WHERE id IN (
    SELECT id FROM processing_queue
    WHERE flow_name = $1 AND status = 'pending'
    ORDER BY created_at ASC, id ASC
    LIMIT $2
    FOR UPDATE SKIP LOCKED
)
RETURNING id, payload, retry_count, created_at`

// Claim transitions up to batchSize pending records of flowName to
// processing under instanceID. Returns an empty slice when nothing is
// pending; never blocks on rows locked by concurrent claimers.
func (r *QueueRepo) Claim(ctx domain.Context, flowName string, batchSize int, instanceID string) ([]domain.ClaimedRecord, error) {
	if strings.TrimSpace(flowName) == "" {
		return nil, fmt.Errorf("op=queue.claim: flow_name must be non-empty: %w", domain.ErrInvalidArgument)
	}
	if batchSize < 1 {
		return nil, fmt.Errorf("op=queue.claim: batch_size must be >= 1, got %d: %w", batchSize, domain.ErrInvalidArgument)
	}
	if instanceID == "" {
		return nil, fmt.Errorf("op=queue.claim: instance_id must be non-empty: %w", domain.ErrInvalidArgument)
	}

	tracer := otel.Tracer("repo.queue")
	ctx, span := tracer.Start(ctx, "queue.Claim")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.sql.table", "processing_queue"),
		attribute.String("queue.flow_name", flowName),
		attribute.Int("queue.batch_size", batchSize),
	)

	rows, err := r.Pool.Query(ctx, claimSQL, flowName, batchSize, instanceID)
	if err != nil {
		return nil, fmt.Errorf("op=queue.claim flow=%s instance=%s: %w", flowName, instanceID, err)
	}
	defer rows.Close()

	var claimed []domain.ClaimedRecord
	for rows.Next() {
		var rec domain.ClaimedRecord
		var payload []byte
		if err := rows.Scan(&rec.ID, &payload, &rec.RetryCount, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("op=queue.claim_scan flow=%s instance=%s: %w", flowName, instanceID, err)
		}
		rec.Payload = domain.Document(payload)
		claimed = append(claimed, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=queue.claim_rows flow=%s instance=%s: %w", flowName, instanceID, err)
	}

	span.SetAttributes(attribute.Int("queue.claimed", len(claimed)))
	if len(claimed) > 0 {
		slog.Info("claimed records",
			slog.String("flow_name", flowName),
			slog.String("instance_id", instanceID),
			slog.Int("count", len(claimed)))
	}
	return claimed, nil
}

// Complete finalizes a claimed record, storing the result document. The
// status and flow_instance_id guards make a late finalization after an
// orphan reclaim hit zero rows instead of overwriting another claimant.
func (r *QueueRepo) Complete(ctx domain.Context, id int64, result domain.Document, instanceID string) error {
	if id <= 0 {
		return fmt.Errorf("op=queue.complete: record id must be positive, got %d: %w", id, domain.ErrInvalidArgument)
	}
	if _, err := result.Object(); err != nil {
		return fmt.Errorf("op=queue.complete id=%d: result: %w", id, err)
	}
	if instanceID == "" {
		return fmt.Errorf("op=queue.complete id=%d: instance_id must be non-empty: %w", id, domain.ErrInvalidArgument)
	}

	tracer := otel.Tracer("repo.queue")
	ctx, span := tracer.Start(ctx, "queue.Complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.sql.table", "processing_queue"),
		attribute.Int64("queue.record_id", id),
	)

	q := `UPDATE processing_queue
SET status = 'completed', payload = $2, completed_at = now(), updated_at = now()
WHERE id = $1 AND status = 'processing' AND flow_instance_id = $3`
	tag, err := r.Pool.Exec(ctx, q, id, []byte(result), instanceID)
	if err != nil {
		return fmt.Errorf("op=queue.complete id=%d instance=%s: %w", id, instanceID, err)
	}
	if tag.RowsAffected() == 0 {
		slog.Warn("complete hit a record this instance no longer owns",
			slog.Int64("record_id", id),
			slog.String("instance_id", instanceID))
		return fmt.Errorf("op=queue.complete id=%d instance=%s: %w", id, instanceID, domain.ErrStaleClaim)
	}
	return nil
}

// Fail finalizes a claimed record as failed, recording reason with
// surrounding whitespace trimmed and charging one business retry. Same
// authority guard as Complete.
func (r *QueueRepo) Fail(ctx domain.Context, id int64, reason string, instanceID string) error {
	if id <= 0 {
		return fmt.Errorf("op=queue.fail: record id must be positive, got %d: %w", id, domain.ErrInvalidArgument)
	}
	if strings.TrimSpace(reason) == "" {
		return fmt.Errorf("op=queue.fail id=%d: reason must be non-empty: %w", id, domain.ErrInvalidArgument)
	}
	if instanceID == "" {
		return fmt.Errorf("op=queue.fail id=%d: instance_id must be non-empty: %w", id, domain.ErrInvalidArgument)
	}

	tracer := otel.Tracer("repo.queue")
	ctx, span := tracer.Start(ctx, "queue.Fail")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.sql.table", "processing_queue"),
		attribute.Int64("queue.record_id", id),
	)

	q := `UPDATE processing_queue
SET status = 'failed', error_message = $2, retry_count = retry_count + 1, updated_at = now()
WHERE id = $1 AND status = 'processing' AND flow_instance_id = $3`
	tag, err := r.Pool.Exec(ctx, q, id, strings.TrimSpace(reason), instanceID)
	if err != nil {
		return fmt.Errorf("op=queue.fail id=%d instance=%s: %w", id, instanceID, err)
	}
	if tag.RowsAffected() == 0 {
		slog.Warn("fail hit a record this instance no longer owns",
			slog.Int64("record_id", id),
			slog.String("instance_id", instanceID))
		return fmt.Errorf("op=queue.fail id=%d instance=%s: %w", id, instanceID, domain.ErrStaleClaim)
	}
	return nil
}

// Enqueue inserts payloads as pending records of flowName with one
// multi-values statement, so either every row lands or none do.
func (r *QueueRepo) Enqueue(ctx domain.Context, flowName string, payloads []domain.Document) (int, error) {
	if strings.TrimSpace(flowName) == "" {
		return 0, fmt.Errorf("op=queue.enqueue: flow_name must be non-empty: %w", domain.ErrInvalidArgument)
	}
	if len(payloads) == 0 {
		return 0, fmt.Errorf("op=queue.enqueue flow=%s: records must be non-empty: %w", flowName, domain.ErrInvalidArgument)
	}
	for i, p := range payloads {
		if _, err := p.Object(); err != nil {
			return 0, fmt.Errorf("op=queue.enqueue flow=%s: record %d: %w", flowName, i, err)
		}
	}

	tracer := otel.Tracer("repo.queue")
	ctx, span := tracer.Start(ctx, "queue.Enqueue")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "processing_queue"),
		attribute.String("queue.flow_name", flowName),
		attribute.Int("queue.record_count", len(payloads)),
	)

	var sb strings.Builder
	sb.WriteString(`INSERT INTO processing_queue (flow_name, payload, status, created_at, updated_at) VALUES `)
	args := make([]any, 0, len(payloads)+1)
	args = append(args, flowName)
	for i, p := range payloads {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "($1, $%d, 'pending', now(), now())", i+2)
		args = append(args, []byte(p))
	}

	if _, err := r.Pool.Exec(ctx, sb.String(), args...); err != nil {
		return 0, fmt.Errorf("op=queue.enqueue flow=%s count=%d: %w", flowName, len(payloads), err)
	}

	slog.Info("enqueued records",
		slog.String("flow_name", flowName),
		slog.Int("count", len(payloads)))
	return len(payloads), nil
}

package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/esurv/flowqueue/internal/adapter/observability"
	"github.com/esurv/flowqueue/internal/domain"
)

// WorkerConfig carries the per-process processing settings.
type WorkerConfig struct {
	// BatchSize is the number of records claimed per batch.
	BatchSize int
	// MaxBatchSize caps BatchSize regardless of configuration.
	MaxBatchSize int
	// MaxRetries is the business-retry cap for failed resets. The Worker
	// only stores it (see Config); the sweeps take their cap as an argument.
	MaxRetries int
	// CleanupTimeout is the orphan threshold. The Worker only stores it
	// (see Config); the sweeps take their threshold as an argument.
	CleanupTimeout time.Duration
	// Enabled gates the distributed claim path. The health surface stays up
	// when false; ProcessBatch simply claims nothing.
	Enabled bool
	// Retry bounds the network-level retry wrapper.
	Retry domain.RetryConfig
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = 1000
	}
	if c.BatchSize > c.MaxBatchSize {
		c.BatchSize = c.MaxBatchSize
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.CleanupTimeout <= 0 {
		c.CleanupTimeout = time.Hour
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry = domain.DefaultRetryConfig()
	}
	return c
}

// RecordResult is the per-record outcome of one batch.
type RecordResult struct {
	// ID is the processed record.
	ID int64
	// Err is nil on completion; the task or finalize error otherwise.
	Err error
}

// BatchResult summarizes one ProcessBatch invocation.
type BatchResult struct {
	Claimed   int
	Completed int
	Failed    int
	Results   []RecordResult
}

// Worker owns a process-unique instance id and drives the cooperative
// claim / dispatch / finalize loop against the queue. It is safe for
// concurrent use by multiple task runners within one process; all shared
// state lives behind row locks in the store.
type Worker struct {
	queue      domain.QueueRepository
	retrier    *Retrier
	instanceID string
	cfg        WorkerConfig
	vld        *validator.Validate
}

// NewWorker constructs a Worker with a freshly generated instance id.
func NewWorker(queue domain.QueueRepository, cfg WorkerConfig) *Worker {
	cfg = cfg.withDefaults()
	id := newInstanceID()
	return &Worker{
		queue:      queue,
		retrier:    NewRetrier(cfg.Retry, id),
		instanceID: id,
		cfg:        cfg,
		vld:        validator.New(),
	}
}

// newInstanceID builds "{hostname}-{8-hex}". The random suffix prevents
// hostname collisions across restarts and container reschedules.
func newInstanceID() string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		slog.Warn("hostname unavailable for instance id", slog.Any("error", err))
		return "unknown-" + suffix
	}
	return hostname + "-" + suffix
}

// InstanceID returns the process-unique worker identity used as the
// authority token for finalization.
func (w *Worker) InstanceID() string { return w.instanceID }

// Config returns the effective worker configuration.
func (w *Worker) Config() WorkerConfig { return w.cfg }

// ProcessBatch claims up to the configured batch size of flowName records,
// dispatches each payload to task, and finalizes per record. A failing or
// panicking task never affects sibling records; its error text is recorded
// as the failure reason, with surrounding whitespace trimmed by the queue
// repository. Returns the per-record outcomes.
func (w *Worker) ProcessBatch(ctx context.Context, flowName string, task domain.TaskFunc) (BatchResult, error) {
	if task == nil {
		return BatchResult{}, fmt.Errorf("op=worker.process_batch instance=%s: task must be non-nil: %w", w.instanceID, domain.ErrInvalidArgument)
	}
	if strings.TrimSpace(flowName) == "" {
		return BatchResult{}, fmt.Errorf("op=worker.process_batch instance=%s: flow_name must be non-empty: %w", w.instanceID, domain.ErrInvalidArgument)
	}
	if !w.cfg.Enabled {
		slog.Debug("distributed processing disabled; claiming nothing",
			slog.String("flow_name", flowName),
			slog.String("instance_id", w.instanceID))
		return BatchResult{}, nil
	}

	var records []domain.ClaimedRecord
	err := w.retrier.Run(ctx, "queue.claim", func() error {
		var claimErr error
		records, claimErr = w.queue.Claim(ctx, flowName, w.cfg.BatchSize, w.instanceID)
		return claimErr
	})
	if err != nil {
		return BatchResult{}, err
	}

	observability.RecordClaimed(flowName, len(records))

	result := BatchResult{Claimed: len(records)}
	for _, rec := range records {
		outcome := w.processRecord(ctx, rec, task)
		if outcome.Err == nil {
			result.Completed++
			observability.RecordFinalized(flowName, "completed")
		} else {
			result.Failed++
			observability.RecordFinalized(flowName, "failed")
		}
		result.Results = append(result.Results, outcome)
	}

	if result.Claimed > 0 {
		slog.Info("batch processed",
			slog.String("flow_name", flowName),
			slog.String("instance_id", w.instanceID),
			slog.Int("claimed", result.Claimed),
			slog.Int("completed", result.Completed),
			slog.Int("failed", result.Failed))
	}
	return result, nil
}

func (w *Worker) processRecord(ctx context.Context, rec domain.ClaimedRecord, task domain.TaskFunc) RecordResult {
	out, taskErr := w.runTask(ctx, rec.Payload, task)
	if taskErr != nil {
		failErr := w.retrier.Run(ctx, "queue.fail", func() error {
			return w.queue.Fail(ctx, rec.ID, taskErr.Error(), w.instanceID)
		})
		if failErr != nil {
			slog.Error("failed to finalize record as failed",
				slog.Int64("record_id", rec.ID),
				slog.String("instance_id", w.instanceID),
				slog.Any("error", failErr))
			return RecordResult{ID: rec.ID, Err: failErr}
		}
		return RecordResult{ID: rec.ID, Err: taskErr}
	}

	completeErr := w.retrier.Run(ctx, "queue.complete", func() error {
		return w.queue.Complete(ctx, rec.ID, out, w.instanceID)
	})
	if completeErr != nil {
		slog.Error("failed to finalize record as completed",
			slog.Int64("record_id", rec.ID),
			slog.String("instance_id", w.instanceID),
			slog.Any("error", completeErr))
		return RecordResult{ID: rec.ID, Err: completeErr}
	}
	return RecordResult{ID: rec.ID}
}

// runTask isolates the caller's task function: a panic becomes an error so
// one poisoned payload cannot take down the batch.
func (w *Worker) runTask(ctx context.Context, payload domain.Document, task domain.TaskFunc) (out domain.Document, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("task panicked: %v", rec)
		}
	}()
	return task(ctx, payload)
}

// Run drives ProcessBatch in a loop until ctx is cancelled, sleeping
// idleSleep whenever a batch comes back empty. Convenience for worker
// binaries; orchestrators that own scheduling call ProcessBatch directly.
func (w *Worker) Run(ctx context.Context, flowName string, task domain.TaskFunc, idleSleep time.Duration) error {
	if idleSleep <= 0 {
		idleSleep = 5 * time.Second
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := w.ProcessBatch(ctx, flowName, task)
		if err != nil {
			return err
		}
		if res.Claimed == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(idleSleep):
			}
		}
	}
}

// enqueueRequest is the validated shape of an ingress call.
type enqueueRequest struct {
	FlowName string            `validate:"required"`
	Payloads []domain.Document `validate:"required,min=1"`
}

// Enqueue validates payloads and inserts them as pending records of
// flowName in a single transaction. Every payload must be a JSON object.
func (w *Worker) Enqueue(ctx context.Context, flowName string, payloads []domain.Document) (int, error) {
	req := enqueueRequest{FlowName: strings.TrimSpace(flowName), Payloads: payloads}
	if err := w.vld.Struct(req); err != nil {
		return 0, fmt.Errorf("op=worker.enqueue instance=%s: %v: %w", w.instanceID, err, domain.ErrInvalidArgument)
	}
	for i, p := range payloads {
		if _, err := p.Object(); err != nil {
			return 0, fmt.Errorf("op=worker.enqueue instance=%s: record %d: %w", w.instanceID, i, err)
		}
	}

	var inserted int
	err := w.retrier.Run(ctx, "queue.enqueue", func() error {
		var insertErr error
		inserted, insertErr = w.queue.Enqueue(ctx, req.FlowName, payloads)
		return insertErr
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

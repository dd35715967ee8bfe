// Package domain defines core entities, ports, and domain-specific errors.
package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Error taxonomy (sentinels)
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotFound        = errors.New("not found")
	// ErrStaleClaim means a finalization targeted a record this instance no
	// longer owns, usually because the recovery engine reclaimed it.
	ErrStaleClaim = errors.New("stale claim")
	// ErrStore covers persistent-store faults that are not transient.
	ErrStore = errors.New("store error")
	// ErrStoreUnavailable covers transient store faults (timeouts, pool
	// exhaustion, dropped connections).
	ErrStoreUnavailable = errors.New("store unavailable")
)

// RecordStatus captures the lifecycle state of a queue record.
type RecordStatus string

// Record status values.
const (
	// StatusPending is the status of a record waiting to be claimed.
	StatusPending RecordStatus = "pending"
	// StatusProcessing is the status of a record claimed by a worker.
	StatusProcessing RecordStatus = "processing"
	// StatusCompleted is the status of a successfully finalized record.
	StatusCompleted RecordStatus = "completed"
	// StatusFailed is the status of a record whose task raised an error.
	StatusFailed RecordStatus = "failed"
)

// Document is an opaque structured payload carried through the queue.
// The core never interprets it beyond requiring a JSON object; it is
// handed verbatim to the caller's task function and written back as the
// result on completion.
type Document json.RawMessage

// NewDocument marshals v into a Document.
func NewDocument(v any) (Document, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("op=document.new: %w", err)
	}
	return Document(b), nil
}

// Object decodes the document as a JSON object. Returns ErrInvalidArgument
// when the document is empty or not an object.
func (d Document) Object() (map[string]any, error) {
	if len(d) == 0 {
		return nil, fmt.Errorf("op=document.object: empty document: %w", ErrInvalidArgument)
	}
	var m map[string]any
	if err := json.Unmarshal(d, &m); err != nil {
		return nil, fmt.Errorf("op=document.object: %v: %w", err, ErrInvalidArgument)
	}
	if m == nil {
		return nil, fmt.Errorf("op=document.object: null document: %w", ErrInvalidArgument)
	}
	return m, nil
}

// MarshalJSON returns d as raw JSON.
func (d Document) MarshalJSON() ([]byte, error) {
	if len(d) == 0 {
		return []byte("null"), nil
	}
	return d, nil
}

// UnmarshalJSON stores data verbatim.
func (d *Document) UnmarshalJSON(data []byte) error {
	if d == nil {
		return fmt.Errorf("op=document.unmarshal: nil target: %w", ErrInvalidArgument)
	}
	*d = append((*d)[0:0], data...)
	return nil
}

// Record is the domain model for one row of the processing queue.
type Record struct {
	// ID is the unique identifier for the record.
	ID int64
	// FlowName partitions the queue; workers claim per flow.
	FlowName string
	// Payload is the opaque work item, replaced by the result on completion.
	Payload Document
	// Status is the current lifecycle state.
	Status RecordStatus
	// FlowInstanceID is the claiming worker instance; nil when not claimed.
	FlowInstanceID *string
	// RetryCount tracks cumulative business attempts.
	RetryCount int
	// ErrorMessage is the last failure reason; nil unless failed.
	ErrorMessage *string
	// CreatedAt is set at ingress and orders FIFO claiming.
	CreatedAt time.Time
	// ClaimedAt is set at claim; nil otherwise.
	ClaimedAt *time.Time
	// CompletedAt is set at successful finalization.
	CompletedAt *time.Time
	// UpdatedAt is the mutation watermark.
	UpdatedAt time.Time
}

// ClaimedRecord is the projection returned by a successful claim.
type ClaimedRecord struct {
	// ID identifies the claimed row.
	ID int64
	// Payload is passed verbatim to the task function.
	Payload Document
	// RetryCount is the business attempt count at claim time.
	RetryCount int
	// CreatedAt is the FIFO ordering key.
	CreatedAt time.Time
}

// FlowCounts breaks a flow's records down by status.
type FlowCounts struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
	Total      int64 `json:"total"`
}

// QueueSnapshot is a read-only aggregation of queue state.
type QueueSnapshot struct {
	// FlowName is the requested flow, or empty for a system-wide snapshot.
	FlowName   string `json:"flow_name,omitempty"`
	Pending    int64  `json:"pending_records"`
	Processing int64  `json:"processing_records"`
	Completed  int64  `json:"completed_records"`
	Failed     int64  `json:"failed_records"`
	Total      int64  `json:"total_records"`
	// ByFlow is populated only for system-wide snapshots.
	ByFlow map[string]FlowCounts `json:"by_flow,omitempty"`
}

// TaskFunc is the caller-supplied processing function. It receives the
// claimed payload and returns the result document to store, or an error
// which the finalizer records verbatim as the failure reason.
type TaskFunc func(ctx Context, payload Document) (Document, error)

// Repositories (ports)

// QueueRepository covers the claim / finalize / ingress surface of the queue.
type QueueRepository interface {
	// Claim atomically transitions up to batchSize pending records of a flow
	// to processing under instanceID, FIFO by creation time.
	Claim(ctx Context, flowName string, batchSize int, instanceID string) ([]ClaimedRecord, error)
	// Complete finalizes a claimed record, storing the result document.
	Complete(ctx Context, id int64, result Document, instanceID string) error
	// Fail finalizes a claimed record as failed, recording the reason and
	// incrementing the business retry counter.
	Fail(ctx Context, id int64, reason string, instanceID string) error
	// Enqueue inserts new pending records in one transaction.
	Enqueue(ctx Context, flowName string, payloads []Document) (int, error)
}

// RecoveryRepository covers the two recovery sweeps.
type RecoveryRepository interface {
	// CleanupOrphaned returns processing records older than olderThan back to
	// pending, charging one business retry. System-wide.
	CleanupOrphaned(ctx Context, olderThan time.Duration) (int64, error)
	// ResetFailed returns failed records of one flow with retry_count below
	// maxRetries back to pending, clearing the recorded error.
	ResetFailed(ctx Context, flowName string, maxRetries int) (int64, error)
}

// StatusRepository covers the read-only diagnostic surface. None of its
// queries lock rows.
type StatusRepository interface {
	// Snapshot aggregates counts by status; flowName "" adds per-flow detail.
	Snapshot(ctx Context, flowName string) (QueueSnapshot, error)
	// OrphanAnalysis summarizes processing records stuck past olderThan.
	OrphanAnalysis(ctx Context, flowName string, olderThan time.Duration) (OrphanReport, error)
	// PerformanceAnalysis aggregates finalized records inside the window.
	PerformanceAnalysis(ctx Context, flowName string, window time.Duration) (PerformanceReport, error)
	// ErrorAnalysis ranks failure messages by frequency inside the window.
	ErrorAnalysis(ctx Context, flows []string, window time.Duration) (ErrorReport, error)
	// TrendAnalysis buckets throughput per hour inside the window.
	TrendAnalysis(ctx Context, flows []string, window time.Duration) (TrendReport, error)
}

// Context is a type alias to stdlib context.Context for convenience across layers.
type Context = context.Context

package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/esurv/flowqueue/internal/domain"
)

// MaintenanceOptions bounds one combined maintenance run.
type MaintenanceOptions struct {
	// CleanupTimeout is the orphan threshold; zero reclaims everything
	// currently processing.
	CleanupTimeout time.Duration
	// MaxRetries is the business-retry cap for failed resets.
	MaxRetries int
}

// MaintenanceReport is the outcome of one combined maintenance run.
type MaintenanceReport struct {
	GeneratedAt      time.Time            `json:"generated_at"`
	InstanceID       string               `json:"instance_id"`
	OrphansReclaimed int64                `json:"orphans_reclaimed"`
	ResetByFlow      map[string]int64     `json:"reset_by_flow"`
	Snapshot         domain.QueueSnapshot `json:"queue_status"`
}

// Maintainer runs the combined recovery sweep: orphan reclaim, per-flow
// failed reset, and a post-sweep snapshot for the operator.
type Maintainer struct {
	recovery   domain.RecoveryRepository
	status     domain.StatusRepository
	instanceID string
}

// NewMaintainer constructs a Maintainer stamping reports with instanceID.
func NewMaintainer(recovery domain.RecoveryRepository, status domain.StatusRepository, instanceID string) *Maintainer {
	return &Maintainer{recovery: recovery, status: status, instanceID: instanceID}
}

// Run reclaims orphans system-wide, resets failed records for each listed
// flow, and returns a report with a fresh snapshot. Flow resets continue
// past individual failures so one broken flow cannot block the rest; the
// first error is returned after the sweep finishes.
func (m *Maintainer) Run(ctx context.Context, flows []string, opts MaintenanceOptions) (MaintenanceReport, error) {
	if opts.MaxRetries < 1 {
		return MaintenanceReport{}, fmt.Errorf("op=maintenance.run instance=%s: max_retries must be >= 1, got %d: %w",
			m.instanceID, opts.MaxRetries, domain.ErrInvalidArgument)
	}

	report := MaintenanceReport{
		GeneratedAt: time.Now().UTC(),
		InstanceID:  m.instanceID,
		ResetByFlow: make(map[string]int64, len(flows)),
	}

	var firstErr error
	reclaimed, err := m.recovery.CleanupOrphaned(ctx, opts.CleanupTimeout)
	if err != nil {
		firstErr = err
	}
	report.OrphansReclaimed = reclaimed

	for _, flow := range flows {
		reset, err := m.recovery.ResetFailed(ctx, flow, opts.MaxRetries)
		if err != nil {
			slog.Error("maintenance reset failed",
				slog.String("flow_name", flow),
				slog.String("instance_id", m.instanceID),
				slog.Any("error", err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		report.ResetByFlow[flow] = reset
	}

	snap, err := m.status.Snapshot(ctx, "")
	if err != nil {
		if firstErr == nil {
			firstErr = err
		}
	} else {
		report.Snapshot = snap
	}

	slog.Info("maintenance sweep finished",
		slog.String("instance_id", m.instanceID),
		slog.Int64("orphans_reclaimed", report.OrphansReclaimed),
		slog.Int("flows_reset", len(report.ResetByFlow)))
	return report, firstErr
}

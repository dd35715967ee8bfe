package app

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/esurv/flowqueue/internal/adapter/observability"
	"github.com/esurv/flowqueue/internal/domain"
)

// RecoverySweeper periodically reclaims orphaned records system-wide and
// resets failed records for the registered flows. Sweeps are idempotent;
// running them alongside active claimers is safe because every mutation
// goes through row locks.
type RecoverySweeper struct {
	recovery       domain.RecoveryRepository
	flows          []string
	interval       time.Duration
	cleanupTimeout time.Duration
	maxRetries     int
}

// NewRecoverySweeper builds a sweeper; nil recovery yields a nil sweeper
// whose Run is a no-op.
func NewRecoverySweeper(recovery domain.RecoveryRepository, flows []string, interval, cleanupTimeout time.Duration, maxRetries int) *RecoverySweeper {
	if recovery == nil {
		return nil
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if cleanupTimeout < 0 {
		cleanupTimeout = time.Hour
	}
	if maxRetries < 1 {
		maxRetries = 3
	}
	return &RecoverySweeper{
		recovery:       recovery,
		flows:          flows,
		interval:       interval,
		cleanupTimeout: cleanupTimeout,
		maxRetries:     maxRetries,
	}
}

// Run sweeps once immediately and then on every tick until ctx is cancelled.
func (s *RecoverySweeper) Run(ctx context.Context) {
	if s == nil || s.recovery == nil {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweepOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("recovery sweeper stopping")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *RecoverySweeper) sweepOnce(ctx context.Context) {
	tracer := otel.Tracer("queue.recovery")
	ctx, span := tracer.Start(ctx, "RecoverySweeper.sweepOnce")
	defer span.End()
	span.SetAttributes(
		attribute.Float64("recovery.cleanup_timeout_seconds", s.cleanupTimeout.Seconds()),
		attribute.Int("recovery.max_retries", s.maxRetries),
	)

	reclaimed, err := s.recovery.CleanupOrphaned(ctx, s.cleanupTimeout)
	if err != nil {
		span.RecordError(err)
		slog.Error("orphan sweep failed", slog.Any("error", err))
	} else {
		observability.RecordOrphansReclaimed(reclaimed)
		span.SetAttributes(attribute.Int64("recovery.reclaimed", reclaimed))
	}

	var totalReset int64
	for _, flow := range s.flows {
		reset, err := s.recovery.ResetFailed(ctx, flow, s.maxRetries)
		if err != nil {
			span.RecordError(err)
			slog.Error("failed reset sweep failed",
				slog.String("flow_name", flow),
				slog.Any("error", err))
			continue
		}
		totalReset += reset
	}
	span.SetAttributes(attribute.Int64("recovery.reset", totalReset))
}

// Package usecase contains the worker-facing orchestration of the queue:
// the claim/execute/finalize loop, the network retry wrapper, and the
// combined maintenance sweep.
package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/esurv/flowqueue/internal/domain"
)

// Retrier re-issues single store statements on transient faults with
// exponential backoff. It is a network-level wrapper only: business retries
// live in the record's retry_count column and are written solely by the
// finalizer and the recovery engine. The Retrier holds no repository
// reference, so it cannot touch that counter.
type Retrier struct {
	cfg        domain.RetryConfig
	instanceID string
}

// NewRetrier builds a Retrier. Zero or negative MaxAttempts falls back to
// a single attempt.
func NewRetrier(cfg domain.RetryConfig, instanceID string) *Retrier {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.MinWait <= 0 {
		cfg.MinWait = time.Second
	}
	if cfg.MaxWait < cfg.MinWait {
		cfg.MaxWait = cfg.MinWait
	}
	return &Retrier{cfg: cfg, instanceID: instanceID}
}

// Run executes fn, retrying transient errors up to MaxAttempts total tries.
// Permanent errors surface after the first attempt. On exhaustion the last
// transient error is wrapped with the operation name, attempt count,
// elapsed time, and instance id.
func (r *Retrier) Run(ctx context.Context, op string, fn func() error) error {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = r.cfg.MinWait
	expo.MaxInterval = r.cfg.MaxWait
	expo.MaxElapsedTime = 0
	if !r.cfg.Jitter {
		expo.RandomizationFactor = 0
	}
	expo.Reset()
	bo := backoff.WithContext(backoff.WithMaxRetries(expo, uint64(r.cfg.MaxAttempts-1)), ctx)

	attempts := 0
	start := time.Now()
	err := backoff.Retry(func() error {
		attempts++
		err := fn()
		if err == nil {
			return nil
		}
		if !domain.IsTransient(err) {
			return backoff.Permanent(err)
		}
		slog.Warn("transient store error, retrying",
			slog.String("op", op),
			slog.String("instance_id", r.instanceID),
			slog.Int("attempt", attempts),
			slog.Any("error", err))
		return err
	}, bo)
	if err == nil {
		return nil
	}
	if domain.IsTransient(err) {
		return fmt.Errorf("op=%s instance=%s: retries exhausted after %d attempts in %s: %w",
			op, r.instanceID, attempts, time.Since(start).Round(time.Millisecond), err)
	}
	return fmt.Errorf("op=%s instance=%s: %w", op, r.instanceID, err)
}

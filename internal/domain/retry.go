// Package domain defines the retry taxonomy for store-level operations.
package domain

import (
	"context"
	"errors"
	"strings"
	"time"
)

// RetryConfig bounds the network-level retry wrapper. It is distinct from
// the per-record retry_count column: MaxAttempts governs re-issuing a single
// store statement, while retry_count tracks business attempts and is written
// only by the finalizer and the recovery engine.
type RetryConfig struct {
	// MaxAttempts is the total number of tries for one operation.
	MaxAttempts int
	// MinWait is the initial backoff delay.
	MinWait time.Duration
	// MaxWait caps the backoff delay.
	MaxWait time.Duration
	// Jitter adds randomness to prevent thundering herd.
	Jitter bool
}

// DefaultRetryConfig returns the standard network retry bounds.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		MinWait:     1 * time.Second,
		MaxWait:     10 * time.Second,
		Jitter:      true,
	}
}

// transientMarkers are the error kinds that justify an automatic retry at
// the store layer. Anything else is permanent and surfaces after one attempt.
var transientMarkers = []string{
	"connection timeout",
	"context deadline exceeded",
	"connection refused",
	"connection reset",
	"broken pipe",
	"i/o timeout",
	"pool exhausted",
	"too many clients",
	"too many connections",
	"deadlock detected",
	"network is unreachable",
	"temporarily unavailable",
	"the database system is starting up",
}

// IsTransient reports whether err is a retryable store-level fault:
// connection timeouts, pool exhaustion, deadlock victims, network glitches,
// and temporary unavailability. Business errors and argument errors are
// never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrInvalidArgument) || errors.Is(err, ErrStaleClaim) || errors.Is(err, ErrNotFound) {
		return false
	}
	if errors.Is(err, ErrStoreUnavailable) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

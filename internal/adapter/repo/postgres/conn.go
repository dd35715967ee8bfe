// Package postgres provides PostgreSQL adapters for the processing queue.
//
// It implements the queue, recovery, and status repository ports over a
// minimal pgx pool interface so the SQL surface stays testable without a
// live database.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxPool is a minimal subset of pgxpool used by the repos for easy testing.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Ping(ctx context.Context) error
}

// PoolSettings bounds the connection pool backing one worker process. Every
// queue operation is a single statement, so connections are held briefly and
// a small pool serves a busy worker; MaxConns is still operator-tunable for
// large batch sizes or many concurrent task runners.
type PoolSettings struct {
	MaxConns          int32
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

func (s PoolSettings) withDefaults() PoolSettings {
	if s.MaxConns < 1 {
		s.MaxConns = 10
	}
	if s.MaxConnIdleTime <= 0 {
		s.MaxConnIdleTime = 5 * time.Minute
	}
	if s.HealthCheckPeriod <= 0 {
		s.HealthCheckPeriod = time.Minute
	}
	return s
}

// NewPool opens a pgx pool over dsn with the given settings and OpenTelemetry
// statement tracing. Pool connection stats are exported as metrics so pool
// exhaustion shows up before it surfaces as transient claim errors.
func NewPool(ctx context.Context, dsn string, settings PoolSettings) (*pgxpool.Pool, error) {
	settings = settings.withDefaults()

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("op=postgres.new_pool parse: %w", err)
	}
	cfg.MaxConns = settings.MaxConns
	cfg.MaxConnIdleTime = settings.MaxConnIdleTime
	cfg.HealthCheckPeriod = settings.HealthCheckPeriod
	cfg.ConnConfig.Tracer = otelpgx.NewTracer(
		otelpgx.WithTrimSQLInSpanName(),
	)

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("op=postgres.new_pool connect: %w", err)
	}

	if err := otelpgx.RecordStats(pool); err != nil {
		slog.Warn("failed to record pgx pool stats", slog.Any("error", err))
	}

	return pool, nil
}

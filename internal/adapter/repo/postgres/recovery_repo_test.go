package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/esurv/flowqueue/internal/adapter/repo/postgres"
	"github.com/esurv/flowqueue/internal/domain"
)

func TestCleanupOrphaned(t *testing.T) {
	pool := &poolStub{execTag: pgconn.NewCommandTag("UPDATE 4")}
	repo := postgres.NewRecoveryRepo(pool)

	n, err := repo.CleanupOrphaned(context.Background(), 2*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	require.Len(t, pool.execSQL, 1)
	sql := pool.execSQL[0]
	assert.Contains(t, sql, "status = 'pending'")
	assert.Contains(t, sql, "flow_instance_id = NULL")
	assert.Contains(t, sql, "claimed_at = NULL")
	assert.Contains(t, sql, "retry_count = retry_count + 1")
	assert.Contains(t, sql, "claimed_at < now() - $1::interval")
	assert.NotContains(t, sql, "2 hours", "interval must be a bound parameter, not interpolated text")
	assert.Equal(t, []any{2 * time.Hour}, pool.execArgs[0])
}

func TestCleanupOrphanedNoOrphans(t *testing.T) {
	pool := &poolStub{execTag: pgconn.NewCommandTag("UPDATE 0")}
	repo := postgres.NewRecoveryRepo(pool)

	n, err := repo.CleanupOrphaned(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCleanupOrphanedZeroTimeout(t *testing.T) {
	// A zero threshold reclaims everything currently processing; used by
	// operators to force-release a wedged fleet.
	pool := &poolStub{execTag: pgconn.NewCommandTag("UPDATE 1")}
	repo := postgres.NewRecoveryRepo(pool)

	n, err := repo.CleanupOrphaned(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestCleanupOrphanedRejectsNegative(t *testing.T) {
	pool := &poolStub{}
	repo := postgres.NewRecoveryRepo(pool)

	_, err := repo.CleanupOrphaned(context.Background(), -time.Hour)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.Empty(t, pool.execSQL)
}

func TestResetFailed(t *testing.T) {
	pool := &poolStub{
		row: rowStub{scan: func(dest ...any) error {
			set(dest[0], int64(2)) // resettable
			set(dest[1], int64(1)) // exhausted
			set(dest[2], int64(3)) // total
			return nil
		}},
		execTag: pgconn.NewCommandTag("UPDATE 2"),
	}
	repo := postgres.NewRecoveryRepo(pool)

	n, err := repo.ResetFailed(context.Background(), "survey", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.Len(t, pool.querySQL, 1)
	assert.Contains(t, pool.querySQL[0], "FILTER (WHERE retry_count < $2)")

	require.Len(t, pool.execSQL, 1)
	sql := pool.execSQL[0]
	assert.Contains(t, sql, "error_message = NULL")
	assert.Contains(t, sql, "retry_count < $2")
	assert.NotContains(t, sql, "retry_count =", "reset must not rewrite the retry counter")
	assert.NotContains(t, sql, "completed_at")
	assert.Equal(t, []any{"survey", 3}, pool.execArgs[0])
}

func TestResetFailedNothingResettable(t *testing.T) {
	pool := &poolStub{
		row: rowStub{scan: func(dest ...any) error {
			set(dest[0], int64(0))
			set(dest[1], int64(5))
			set(dest[2], int64(5))
			return nil
		}},
	}
	repo := postgres.NewRecoveryRepo(pool)

	n, err := repo.ResetFailed(context.Background(), "survey", 3)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, pool.execSQL, "no UPDATE when every failed record exhausted its budget")
}

func TestResetFailedValidatesArguments(t *testing.T) {
	pool := &poolStub{}
	repo := postgres.NewRecoveryRepo(pool)
	ctx := context.Background()

	_, err := repo.ResetFailed(ctx, "", 3)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = repo.ResetFailed(ctx, "survey", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	assert.Empty(t, pool.querySQL)
}

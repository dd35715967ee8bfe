package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/esurv/flowqueue/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "dev", cfg.AppEnv)
	assert.Equal(t, 8080, cfg.HealthPort)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 1000, cfg.MaxBatchSize)
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, 1, cfg.CleanupTimeoutHours)
	assert.True(t, cfg.DistributedEnabled)
	assert.Equal(t, 3, cfg.RetryMaxAttempts)
	assert.Equal(t, 1*time.Second, cfg.RetryMinWait)
	assert.Equal(t, 10*time.Second, cfg.RetryMaxWait)
	assert.True(t, cfg.RetryJitter)
	assert.Equal(t, int32(10), cfg.DBMaxConns)
	assert.Equal(t, 5*time.Minute, cfg.DBConnIdleTime)
	assert.Empty(t, cfg.LogLevel)
	assert.Zero(t, cfg.TraceSampleRatio)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("BATCH_SIZE", "25")
	t.Setenv("MAX_RETRIES", "5")
	t.Setenv("CLEANUP_TIMEOUT_HOURS", "2")
	t.Setenv("DISTRIBUTED_ENABLED", "false")
	t.Setenv("RETRY_MIN_WAIT", "250ms")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProd())
	assert.Equal(t, 25, cfg.BatchSize)
	assert.Equal(t, 5, cfg.MaxRetries)
	assert.Equal(t, 2*time.Hour, cfg.CleanupTimeout())
	assert.False(t, cfg.DistributedEnabled)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryMinWait)
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"BATCH_SIZE":         "0",
		"MAX_RETRIES":        "0",
		"RETRY_MAX_ATTEMPTS": "0",
		"DB_MAX_CONNS":       "0",
		"TRACE_SAMPLE_RATIO": "1.5",
	}
	for key, val := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, val)
			_, err := config.Load()
			assert.Error(t, err)
		})
	}
}

func TestValidateRetryWaitOrdering(t *testing.T) {
	t.Setenv("RETRY_MIN_WAIT", "30s")
	t.Setenv("RETRY_MAX_WAIT", "1s")
	_, err := config.Load()
	assert.Error(t, err)
}

func TestEnvHelpers(t *testing.T) {
	cfg := config.Config{AppEnv: "Test"}
	assert.True(t, cfg.IsTest())
	assert.False(t, cfg.IsDev())
	assert.False(t, cfg.IsProd())
}

package observability_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/esurv/flowqueue/internal/adapter/observability"
	"github.com/esurv/flowqueue/internal/config"
)

func TestSetupLoggerDevDefaultsToDebug(t *testing.T) {
	lg := observability.SetupLogger(config.Config{AppEnv: "dev"})
	assert.True(t, lg.Enabled(context.Background(), slog.LevelDebug))
}

func TestSetupLoggerProdDefaultsToInfo(t *testing.T) {
	lg := observability.SetupLogger(config.Config{AppEnv: "prod"})
	assert.False(t, lg.Enabled(context.Background(), slog.LevelDebug))
	assert.True(t, lg.Enabled(context.Background(), slog.LevelInfo))
}

func TestSetupLoggerExplicitLevelWins(t *testing.T) {
	lg := observability.SetupLogger(config.Config{AppEnv: "dev", LogLevel: "warn"})
	assert.False(t, lg.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, lg.Enabled(context.Background(), slog.LevelWarn))
}

func TestSetupLoggerBadLevelFallsBack(t *testing.T) {
	lg := observability.SetupLogger(config.Config{AppEnv: "prod", LogLevel: "verbose"})
	assert.True(t, lg.Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, lg.Enabled(context.Background(), slog.LevelDebug))
}

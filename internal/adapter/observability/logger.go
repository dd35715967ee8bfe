// Package observability provides logging, metrics, and tracing.
//
// It exposes the Prometheus metric set for the queue and health surface,
// a JSON slog setup, and OTLP tracing wiring.
package observability

import (
	"log/slog"
	"os"

	"github.com/esurv/flowqueue/internal/config"
)

// SetupLogger builds the process-wide JSON logger. The level comes from
// LOG_LEVEL when set, otherwise debug in dev and info elsewhere. Every line
// carries the service, environment, and hostname so fleet-wide log queries
// can tell worker instances apart even before an instance id is assigned.
func SetupLogger(cfg config.Config) *slog.Logger {
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: resolveLevel(cfg)})
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return slog.New(h).With(
		slog.String("service", cfg.OTELServiceName),
		slog.String("env", cfg.AppEnv),
		slog.String("hostname", hostname),
	)
}

func resolveLevel(cfg config.Config) slog.Level {
	if cfg.LogLevel != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(cfg.LogLevel)); err == nil {
			return level
		}
		// An unparseable override falls through to the environment default
		// rather than silencing the process.
	}
	if cfg.IsDev() {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

package app

import (
	"log/slog"
	"os"

	"github.com/felixgeelhaar/cadence/pkg/config"
	"github.com/felixgeelhaar/cadence/pkg/observability"
)

// NewLogger builds the process logger from configuration. Production logs
// are JSON; verbose forces debug level.
func NewLogger(cfg *config.Config, version string, verbose bool) *slog.Logger {
	logCfg := observability.DefaultLogConfig()
	if cfg != nil && cfg.IsProduction() {
		logCfg = observability.ProductionLogConfig()
	}
	if cfg != nil && cfg.LogLevel != "" {
		logCfg.Level = observability.LogLevel(cfg.LogLevel)
	}
	if cfg != nil && cfg.IsDevelopment() && cfg.LogLevel == "" {
		logCfg.Level = observability.LogLevelDebug
	}
	if verbose {
		logCfg.Level = observability.LogLevelDebug
	}
	if version != "" {
		logCfg.ServiceVersion = version
	}
	logCfg.Output = os.Stderr
	return observability.NewLogger(logCfg)
}

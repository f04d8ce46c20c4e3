// Package logging wraps zap for the structured, leveled logging every
// data-plane component uses for the fail-open/warn policy: one structured
// record per dependency failure, never a bare log.Printf.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds a production-style zap.SugaredLogger at the given level name
// ("debug", "info", "warn", "error"; unrecognized values fall back to info).
func New(level string) *zap.SugaredLogger {
	lvl := zapcore.InfoLevel
	_ = lvl.UnmarshalText([]byte(level))

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"

	logger, err := cfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	return logger.Sugar()
}

// DependencyWarn logs a Dependency-unavailable failure with the fields
// needed to correlate it back to a request, per spec's error taxonomy.
func DependencyWarn(log *zap.SugaredLogger, component, dependency string, err error, kv ...interface{}) {
	fields := append([]interface{}{"component", component, "dependency", dependency, "error", err}, kv...)
	log.Warnw("dependency unavailable, failing open", fields...)
}

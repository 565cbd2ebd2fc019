package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger returns a zap logger for the named service. Debug level switches
// to the development encoder so local runs stay readable; everything else
// emits production JSON tagged with the service name.
func NewLogger(service, level string) (*zap.Logger, error) {
	normalized := strings.ToLower(strings.TrimSpace(level))

	cfg := zap.NewProductionConfig()
	if normalized == "debug" {
		cfg = zap.NewDevelopmentConfig()
	}

	switch normalized {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	case "warn", "warning":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("service", service)), nil
}

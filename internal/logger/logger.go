package logger

import (
	"log/slog"

	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"
	"go.uber.org/zap/zapcore"
)

// Config holds logger configuration
type Config struct {
	Level       string
	Environment string // "development" or "production"
	ServiceName string
}

// New builds a zap core from cfg and returns it behind the slog API,
// along with a func that flushes buffered entries
func New(cfg Config) (*slog.Logger, func() error, error) {
	var zapConfig zap.Config
	if cfg.Environment == "development" {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
	}

	zapConfig.Level = zap.NewAtomicLevelAt(ParseLevel(cfg.Level))
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.EncoderConfig.TimeKey = "timestamp"

	zl, err := zapConfig.Build()
	if err != nil {
		return nil, nil, err
	}

	return FromCore(zl.Core(), cfg.ServiceName), zl.Sync, nil
}

// FromCore wraps an existing zap core
func FromCore(core zapcore.Core, serviceName string) *slog.Logger {
	l := slog.New(zapslog.NewHandler(core))
	if serviceName != "" {
		l = l.With("service", serviceName)
	}
	return l
}

// ParseLevel parses the log level string, falling back to info
func ParseLevel(level string) zapcore.Level {
	l, err := zapcore.ParseLevel(level)
	if err != nil {
		return zapcore.InfoLevel
	}
	return l
}

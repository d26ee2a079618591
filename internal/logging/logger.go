// Package logging wraps zap with the runtime's structured-field
// conventions (strategy id, component name, cause) required by the
// error propagation policy: every error produces a structured log entry.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps the zap logger with additional functionality.
type Logger struct {
	*zap.Logger
}

// NewLogger creates a new logger instance with production configuration.
func NewLogger() (*Logger, error) {
	config := zap.NewProductionConfig()

	config.OutputPaths = []string{"stdout"}
	config.ErrorOutputPaths = []string{"stderr"}
	config.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)

	zapLogger, err := config.Build()
	if err != nil {
		return nil, err
	}

	return &Logger{Logger: zapLogger}, nil
}

// NewDevelopment creates a logger tuned for local runs (console encoding,
// debug level), used by cmd/strateq when --dev is passed.
func NewDevelopment() (*Logger, error) {
	zapLogger, err := zap.NewDevelopment()
	if err != nil {
		return nil, err
	}

	return &Logger{Logger: zapLogger}, nil
}

// Sync flushes any buffered log entries.
func (l *Logger) Sync() error {
	if l.Logger != nil {
		return l.Logger.Sync()
	}

	return nil
}

// Component returns a child logger tagged with the owning component name,
// per the error propagation policy (component + strategy id + cause).
func (l *Logger) Component(name string) *Logger {
	return &Logger{Logger: l.Logger.With(zap.String("component", name))}
}

// Strategy returns a child logger tagged with a strategy id.
func (l *Logger) Strategy(id string) *Logger {
	return &Logger{Logger: l.Logger.With(zap.String("strategy_id", id))}
}

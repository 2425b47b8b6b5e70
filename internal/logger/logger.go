// Package logger provides the structured logger used across the node.
//
// It is a thin, service-scoped wrapper around go.uber.org/zap rather than
// a bare *zap.Logger, so every call site can attach a stable "service" and
// "component" field without repeating zap.String boilerplate.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a *zap.SugaredLogger scoped to one service/component.
type Logger struct {
	sugar   *zap.SugaredLogger
	service string
}

// Config controls logger construction.
type Config struct {
	Level      string // debug, info, warn, error
	Service    string
	JSONFormat bool
}

// DefaultConfig returns the development-friendly default.
func DefaultConfig() *Config {
	return &Config{
		Level:      "info",
		Service:    "squeaknode",
		JSONFormat: false,
	}
}

// New builds a Logger from Config.
func New(cfg *Config) *Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	level := zapcore.InfoLevel
	_ = level.UnmarshalText([]byte(cfg.Level))

	var zapCfg zap.Config
	if cfg.JSONFormat {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.OutputPaths = []string{"stdout"}
	zapCfg.ErrorOutputPaths = []string{"stderr"}

	base, err := zapCfg.Build()
	if err != nil {
		// Fall back to a minimal logger rather than panicking on
		// malformed config — logging must never be the reason the
		// node fails to start.
		base = zap.NewNop()
	}

	sugar := base.Sugar().With("service", cfg.Service)
	return &Logger{sugar: sugar, service: cfg.Service}
}

// NewNop returns a Logger that discards everything — used by tests that
// don't care about log output.
func NewNop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar(), service: "test"}
}

// Named returns a child logger with an additional "component" field.
func (l *Logger) Named(component string) *Logger {
	return &Logger{sugar: l.sugar.With("component", component).Desugar().Sugar(), service: l.service}
}

// With returns a child logger carrying the given key/value pairs on every
// subsequent entry.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{sugar: l.sugar.With(keysAndValues...), service: l.service}
}

// WithError returns a child logger with an "error" field set.
func (l *Logger) WithError(err error) *Logger {
	return l.With("error", err)
}

func (l *Logger) Debug(msg string, keysAndValues ...interface{}) { l.sugar.Debugw(msg, keysAndValues...) }
func (l *Logger) Info(msg string, keysAndValues ...interface{})  { l.sugar.Infow(msg, keysAndValues...) }
func (l *Logger) Warn(msg string, keysAndValues ...interface{})  { l.sugar.Warnw(msg, keysAndValues...) }
func (l *Logger) Error(msg string, keysAndValues ...interface{}) { l.sugar.Errorw(msg, keysAndValues...) }

// Fatal logs at error level and exits the process. Used only from
// cmd/squeaknode/main.go during startup, never from library code.
func (l *Logger) Fatal(msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, keysAndValues...)
	_ = l.sugar.Sync()
	os.Exit(1)
}

// Sync flushes buffered log entries. Call during shutdown.
func (l *Logger) Sync() error {
	return l.sugar.Sync()
}

package esexec

import (
	"log/slog"
	"os"
)

// Logger is the structured logging interface this package uses for
// every registry, creator, scanner, and cleanup operation. It is
// compatible with slog, zap, logrus, and similar structured loggers:
//
//	logger.Info("app created", "slot", slot, "name", name)
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Debug(msg string, args ...any)
}

// slogLogger adapts the standard library's log/slog to Logger.
type slogLogger struct {
	logger *slog.Logger
}

// NewStdLogger returns a Logger backed by log/slog writing to stderr.
func NewStdLogger() Logger {
	return &slogLogger{logger: slog.New(slog.NewTextHandler(os.Stderr, nil))}
}

func (l *slogLogger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *slogLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }
func (l *slogLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *slogLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }

// NopLogger discards everything. Useful as a zero-value-friendly default
// in tests that don't care about log output.
type NopLogger struct{}

func (NopLogger) Info(string, ...any)  {}
func (NopLogger) Error(string, ...any) {}
func (NopLogger) Warn(string, ...any)  {}
func (NopLogger) Debug(string, ...any) {}

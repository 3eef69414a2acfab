// Package logging provides the structured log for patch engine operations.
package logging

import (
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap for engine and bridge logging.
type Logger struct {
	zap *zap.Logger
}

// New creates a Logger that appends JSON records to a file.
// If logPath is empty, logging is disabled.
// If development is true, uses development encoder config with readable output.
func New(logPath string, development bool) (*Logger, error) {
	if logPath == "" {
		return &Logger{zap: zap.NewNop()}, nil
	}

	logFile, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	var encoderConfig zapcore.EncoderConfig
	if development {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
	}

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(logFile),
		zapcore.InfoLevel,
	)

	return &Logger{zap: zap.New(core)}, nil
}

// Close syncs the logger (should be called on shutdown).
func (l *Logger) Close() error {
	return l.zap.Sync()
}

// PatchApplied logs a completed apply with its hunk counts and backup ref.
func (l *Logger) PatchApplied(path string, total, selected int, backupRef string, duration time.Duration) {
	l.zap.Info("patch applied",
		zap.String("path", path),
		zap.Int("hunks_total", total),
		zap.Int("hunks_selected", selected),
		zap.String("backup_ref", backupRef),
		zap.Duration("duration", duration),
	)
}

// FileRestored logs a completed restore.
func (l *Logger) FileRestored(path, backupRef string, duration time.Duration) {
	l.zap.Info("file restored",
		zap.String("path", path),
		zap.String("backup_ref", backupRef),
		zap.Duration("duration", duration),
	)
}

// RequestServed logs one bridge HTTP request.
func (l *Logger) RequestServed(method, path string, status int, duration time.Duration) {
	l.zap.Info("request served",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", status),
		zap.Duration("duration", duration),
	)
}

// Error logs an error.
func (l *Logger) Error(msg string, err error) {
	l.zap.Error(msg, zap.Error(err))
}

// Warn logs a warning.
func (l *Logger) Warn(msg string, fields ...zap.Field) {
	l.zap.Warn(msg, fields...)
}

// Info logs an info message.
func (l *Logger) Info(msg string, fields ...zap.Field) {
	l.zap.Info(msg, fields...)
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string, fields ...zap.Field) {
	l.zap.Debug(msg, fields...)
}

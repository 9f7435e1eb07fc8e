// Package logging provides structured, context-aware logging for featmine.
//
// The Logger wraps Zap and enriches every entry with correlation fields
// pulled from the context: trace/span IDs, run ID, current pipeline node,
// and document ID. An optional OTEL bridge core forwards entries to a
// collector alongside stdout.
package logging

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TraceLevel sits below Debug for wire-level detail: prompts, raw model
// responses, per-row store writes. Filtered out in production configs.
const TraceLevel = zapcore.Level(-2)

// LevelFromString parses zap level names plus "trace".
func LevelFromString(level string) (zapcore.Level, error) {
	if level == "trace" {
		return TraceLevel, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel, err
	}
	return l, nil
}

// Logger emits structured entries enriched with run correlation fields.
type Logger struct {
	zap *zap.Logger
}

// NewLogger creates a logger from config. bridge may be nil; it is only
// consulted when the OTEL output is enabled.
func NewLogger(cfg *Config, bridge log.LoggerProvider) (*Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	core, err := buildCore(cfg, bridge)
	if err != nil {
		return nil, err
	}

	var opts []zap.Option
	if cfg.Caller.Enabled {
		// +1 because every level method routes through the log dispatcher.
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(cfg.Caller.Skip+1))
	}

	zl := zap.New(core, opts...)
	for k, v := range cfg.Fields {
		zl = zl.With(zap.String(k, v))
	}

	return &Logger{zap: zl}, nil
}

// buildCore assembles the stdout and OTEL bridge cores per config. The
// bridge core is only attached when a provider is actually available, so a
// degraded telemetry stack silently falls back to stdout-only.
func buildCore(cfg *Config, bridge log.LoggerProvider) (zapcore.Core, error) {
	var cores []zapcore.Core

	if cfg.Output.Stdout {
		enc := zap.NewProductionEncoderConfig()
		enc.TimeKey = "ts"
		enc.EncodeTime = zapcore.ISO8601TimeEncoder

		var encoder zapcore.Encoder
		if cfg.Format == "console" {
			encoder = zapcore.NewConsoleEncoder(enc)
		} else {
			encoder = zapcore.NewJSONEncoder(enc)
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(os.Stdout), cfg.Level))
	}

	if cfg.Output.OTEL && bridge != nil {
		cores = append(cores, otelzap.NewCore("featmine",
			otelzap.WithLoggerProvider(bridge),
		))
	}

	switch len(cores) {
	case 0:
		return nil, fmt.Errorf("no log output available")
	case 1:
		return cores[0], nil
	default:
		return zapcore.NewTee(cores...), nil
	}
}

// log is the single dispatch point: it gates on level, merges correlation
// fields from the context, and hands off to zap.
func (l *Logger) log(ctx context.Context, lvl zapcore.Level, msg string, fields []zap.Field) {
	if !l.zap.Core().Enabled(lvl) {
		return
	}
	l.zap.Log(lvl, msg, append(ContextFields(ctx), fields...)...)
}

func (l *Logger) Trace(ctx context.Context, msg string, fields ...zap.Field) {
	l.log(ctx, TraceLevel, msg, fields)
}

func (l *Logger) Debug(ctx context.Context, msg string, fields ...zap.Field) {
	l.log(ctx, zapcore.DebugLevel, msg, fields)
}

func (l *Logger) Info(ctx context.Context, msg string, fields ...zap.Field) {
	l.log(ctx, zapcore.InfoLevel, msg, fields)
}

func (l *Logger) Warn(ctx context.Context, msg string, fields ...zap.Field) {
	l.log(ctx, zapcore.WarnLevel, msg, fields)
}

func (l *Logger) Error(ctx context.Context, msg string, fields ...zap.Field) {
	l.log(ctx, zapcore.ErrorLevel, msg, fields)
}

func (l *Logger) Fatal(ctx context.Context, msg string, fields ...zap.Field) {
	l.log(ctx, zapcore.FatalLevel, msg, fields)
}

// With returns a child logger carrying the given fields on every entry.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{zap: l.zap.With(fields...)}
}

// Named returns a child logger with the given name segment appended.
func (l *Logger) Named(name string) *Logger {
	return &Logger{zap: l.zap.Named(name)}
}

// Enabled reports whether entries at the given level would be written.
func (l *Logger) Enabled(level zapcore.Level) bool {
	return l.zap.Core().Enabled(level)
}

// Sync flushes buffered entries. Sync errors against stdout/stderr are
// ignored; on Linux those fds report EINVAL or ENOTTY.
func (l *Logger) Sync() error {
	err := l.zap.Sync()
	var errno syscall.Errno
	if errors.As(err, &errno) && (errno == syscall.EINVAL || errno == syscall.ENOTTY) {
		return nil
	}
	return err
}

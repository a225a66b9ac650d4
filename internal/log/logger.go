// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package log

import (
	"context"
	"log/slog"
	"runtime"

	"github.com/AdityaChandel11/predictive-pdm-platform/internal/wallclock"
)

type (
	// Logger is a wrapper around an slog.Logger with additional helpers and nil
	// checking.
	Logger struct{ logger *slog.Logger }

	// Attrs represents an object that exposes extra slog attributes to log.
	Attrs interface {
		Attrs() []slog.Attr
	}
)

// Wrap the slog logger. The first non-nil logger is used, which allows a
// component-specific logger to override a shared one.
func Wrap(loggers ...*slog.Logger) Logger {
	for _, l := range loggers {
		if l != nil {
			return Logger{l}
		}
	}
	return Logger{}
}

// Enabled reports whether the wrapped logger emits records at the level.
func (l *Logger) Enabled(ctx context.Context, level slog.Level) bool {
	return l.logger != nil && l.logger.Enabled(ctx, level)
}

// Log is designed to build logging wrappers; it should not be called directly.
// See: https://pkg.go.dev/log/slog#hdr-Wrapping_output_methods
func (l *Logger) Log(
	ctx context.Context,
	level slog.Level,
	msg string,
	attrs ...slog.Attr,
) {
	l.emit(ctx, level, msg, attrs)
}

// Debug logs at debug level.
func (l *Logger) Debug(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.emit(ctx, slog.LevelDebug, msg, attrs)
}

// Info logs at info level.
func (l *Logger) Info(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.emit(ctx, slog.LevelInfo, msg, attrs)
}

// Warn logs at warn level.
func (l *Logger) Warn(ctx context.Context, msg string, attrs ...slog.Attr) {
	l.emit(ctx, slog.LevelWarn, msg, attrs)
}

// Err logs a error with structured logging.
func (l *Logger) Err(ctx context.Context, err error) {
	if a, ok := err.(Attrs); ok {
		l.emit(ctx, slog.LevelError, err.Error(), a.Attrs())
	} else {
		l.emit(ctx, slog.LevelError, err.Error(), nil)
	}
}

// Warning logs a non-fatal error at warn level along with the given message.
func (l *Logger) Warning(
	ctx context.Context,
	msg string,
	err error,
	attrs ...slog.Attr,
) {
	if a, ok := err.(Attrs); ok {
		attrs = append(attrs, a.Attrs()...)
	}
	attrs = append(attrs, slog.String("error", err.Error()))
	l.emit(ctx, slog.LevelWarn, msg, attrs)
}

func (l *Logger) emit(
	ctx context.Context,
	level slog.Level,
	msg string,
	attrs []slog.Attr,
) {
	if !l.Enabled(ctx, level) {
		return
	}

	now := wallclock.Instance.Now()
	var pcs [1]uintptr
	runtime.Callers(3, pcs[:])

	r := slog.NewRecord(now, level, msg, pcs[0])
	r.AddAttrs(attrs...)
	_ = l.logger.Handler().Handle(ctx, r)
}

package ketgo

import (
	"context"
	"log/slog"
	"os"

	"github.com/hupe1980/ketgo/partition"
	"github.com/hupe1980/ketgo/qubit"
)

// Logger wraps slog.Logger with simulator-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithRank adds a rank field to the logger. Every simulator tags its logger
// with its own rank.
func (l *Logger) WithRank(rank int) *Logger {
	return &Logger{
		Logger: l.Logger.With("rank", rank),
	}
}

// LogApply logs a gate application.
func (l *Logger) LogApply(ctx context.Context, name string, qubits []qubit.Qubit, path string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "apply failed",
			"gate", name,
			"qubits", qubits,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "apply completed",
			"gate", name,
			"qubits", qubits,
			"path", path,
		)
	}
}

// LogInterchange logs a qubit interchange.
func (l *Logger) LogInterchange(ctx context.Context, qubits []qubit.Qubit, swaps int, bytes int64, err error) {
	if err != nil {
		l.ErrorContext(ctx, "interchange failed",
			"qubits", qubits,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "interchange completed",
			"qubits", qubits,
			"swaps", swaps,
			"bytes", bytes,
		)
	}
}

// LogMeasure logs a projective measurement.
func (l *Logger) LogMeasure(ctx context.Context, q qubit.Qubit, outcome Outcome, err error) {
	if err != nil {
		l.ErrorContext(ctx, "measure failed",
			"qubit", q,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "measure completed",
			"qubit", q,
			"outcome", outcome,
		)
	}
}

// LogResize logs a (re)initialization of the register.
func (l *Logger) LogResize(ctx context.Context, n int, layout partition.Layout, err error) {
	if err != nil {
		l.ErrorContext(ctx, "resize failed",
			"qubits", n,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "register initialized",
			"qubits", n,
			"layout", layout.String(),
		)
	}
}

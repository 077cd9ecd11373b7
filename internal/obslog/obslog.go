// Package obslog is the runtime's structured logger. It wraps log/slog the
// way the teacher's pkg/acp/observability/logging.go does: a JSON handler,
// a component/system field pair attached at construction, and small
// With-style helpers for the fields the runtime actually needs.
package obslog

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Logger is a structured logger scoped to one runtime component.
type Logger struct {
	*slog.Logger
}

// New creates a logger for the given component, writing JSON lines to w.
// In stdio RPC mode w must be os.Stderr — see internal/rpc's stdio
// discipline invariant.
func New(component string, level slog.Level, w io.Writer) *Logger {
	if w == nil {
		w = os.Stderr
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler).With(
		slog.String("component", component),
		slog.String("system", "toolrt"),
	)
	return &Logger{Logger: logger}
}

// WithTool returns a logger annotated with a tool name and call id.
func (l *Logger) WithTool(toolName, callID string) *Logger {
	return &Logger{Logger: l.Logger.With(
		slog.String("tool", toolName),
		slog.String("call_id", callID),
	)}
}

// WithSession returns a logger annotated with a session id.
func (l *Logger) WithSession(sessionID string) *Logger {
	if sessionID == "" {
		return l
	}
	return &Logger{Logger: l.Logger.With(slog.String("session_id", sessionID))}
}

// Nop returns a logger that discards everything, for tests.
func Nop() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// FromContext retrieves a logger stashed in ctx, or Nop() if none.
func FromContext(ctx context.Context) *Logger {
	if ctx == nil {
		return Nop()
	}
	if l, ok := ctx.Value(ctxKey{}).(*Logger); ok {
		return l
	}
	return Nop()
}

type ctxKey struct{}

// WithContext stashes l in ctx for FromContext to retrieve later.
func WithContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

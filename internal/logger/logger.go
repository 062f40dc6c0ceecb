// Package logger wraps log/slog with the conventions the rest of the
// platform expects: a parsed level, a handler that silences noisy
// third-party log lines unless running at debug, and a single place to
// change the on-disk/console format.
package logger

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"strings"
)

const modulePrefix = "github.com/agentctx/platform"

// ParseLevel converts a config string ("debug", "info", "warn", "error")
// into a slog.Level. Unknown values fall back to warn rather than erroring,
// since a bad log-level string in config should never block startup.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// New builds the process-wide logger. format is "json" or "text"; level
// is typically derived via ParseLevel from configuration.
func New(level slog.Level, format string) *slog.Logger {
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level, AddSource: level <= slog.LevelDebug}
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(&filteringHandler{handler: handler, minLevel: level})
}

// filteringHandler suppresses third-party library chatter (DB drivers,
// the MCP client, otel) below debug level, so normal operation logs stay
// readable while still surfacing everything when a developer cranks the
// level down to debug.
type filteringHandler struct {
	handler  slog.Handler
	minLevel slog.Level
}

func (h *filteringHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *filteringHandler) Handle(ctx context.Context, record slog.Record) error {
	if h.minLevel <= slog.LevelDebug {
		return h.handler.Handle(ctx, record)
	}
	if h.isOwnPackage(record.PC) {
		return h.handler.Handle(ctx, record)
	}
	return nil
}

func (h *filteringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &filteringHandler{handler: h.handler.WithAttrs(attrs), minLevel: h.minLevel}
}

func (h *filteringHandler) WithGroup(name string) slog.Handler {
	return &filteringHandler{handler: h.handler.WithGroup(name), minLevel: h.minLevel}
}

func (h *filteringHandler) isOwnPackage(pc uintptr) bool {
	if pc == 0 {
		return true
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return true
	}
	return strings.Contains(fn.Name(), modulePrefix)
}

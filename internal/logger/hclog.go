package logger

import (
	"context"
	"io"
	"log"
	"log/slog"

	"github.com/hashicorp/go-hclog"
)

// HCLogBridge adapts this platform's slog.Logger to the hclog.Logger
// interface external-process-facing components expect (mcp-go's SSE
// transport logs connection lifecycle events via hclog).
type HCLogBridge struct {
	base *slog.Logger
	name string
}

// NewHCLogBridge wraps base so code that only knows hclog.Logger can log
// through this platform's structured handler.
func NewHCLogBridge(base *slog.Logger, name string) hclog.Logger {
	return &HCLogBridge{base: base, name: name}
}

func (h *HCLogBridge) log(level slog.Level, msg string, args ...any) {
	h.base.Log(context.Background(), level, msg, args...)
}

func (h *HCLogBridge) Trace(msg string, args ...any) { h.log(slog.LevelDebug-4, msg, args...) }
func (h *HCLogBridge) Debug(msg string, args ...any) { h.log(slog.LevelDebug, msg, args...) }
func (h *HCLogBridge) Info(msg string, args ...any)  { h.log(slog.LevelInfo, msg, args...) }
func (h *HCLogBridge) Warn(msg string, args ...any)  { h.log(slog.LevelWarn, msg, args...) }
func (h *HCLogBridge) Error(msg string, args ...any) { h.log(slog.LevelError, msg, args...) }

func (h *HCLogBridge) IsTrace() bool { return h.base.Enabled(context.Background(), slog.LevelDebug-4) }
func (h *HCLogBridge) IsDebug() bool { return h.base.Enabled(context.Background(), slog.LevelDebug) }
func (h *HCLogBridge) IsInfo() bool  { return h.base.Enabled(context.Background(), slog.LevelInfo) }
func (h *HCLogBridge) IsWarn() bool  { return h.base.Enabled(context.Background(), slog.LevelWarn) }
func (h *HCLogBridge) IsError() bool { return h.base.Enabled(context.Background(), slog.LevelError) }

func (h *HCLogBridge) ImpliedArgs() []any { return nil }

func (h *HCLogBridge) With(args ...any) hclog.Logger {
	return &HCLogBridge{base: h.base.With(args...), name: h.name}
}

func (h *HCLogBridge) Name() string { return h.name }

func (h *HCLogBridge) Named(name string) hclog.Logger {
	if h.name != "" {
		name = h.name + "." + name
	}
	return &HCLogBridge{base: h.base.With("component", name), name: name}
}

func (h *HCLogBridge) ResetNamed(name string) hclog.Logger {
	return &HCLogBridge{base: h.base.With("component", name), name: name}
}

func (h *HCLogBridge) SetLevel(hclog.Level)  {} // level is owned by the wrapped slog.Logger's handler
func (h *HCLogBridge) GetLevel() hclog.Level { return hclog.Info }

func (h *HCLogBridge) StandardLogger(opts *hclog.StandardLoggerOptions) *log.Logger {
	return log.New(h.StandardWriter(opts), "", 0)
}

func (h *HCLogBridge) StandardWriter(*hclog.StandardLoggerOptions) io.Writer {
	return slogWriter{h.base}
}

func (h *HCLogBridge) Log(level hclog.Level, msg string, args ...any) {
	switch level {
	case hclog.Trace, hclog.Debug:
		h.Debug(msg, args...)
	case hclog.Warn:
		h.Warn(msg, args...)
	case hclog.Error:
		h.Error(msg, args...)
	default:
		h.Info(msg, args...)
	}
}

// slogWriter lets hclog-expecting callers that only want an io.Writer
// (e.g. os/exec.Cmd.Stderr) still flow through structured logging.
type slogWriter struct{ base *slog.Logger }

func (w slogWriter) Write(p []byte) (int, error) {
	w.base.Info(string(p))
	return len(p), nil
}

// Package plog provides the application's global, leveled logger built on
// log/slog. Records at INFO and below go to stdout, WARNING and above go to
// stderr, so that shell redirection separates progress output from problems.
package plog

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Level is re-exported so callers don't need to import log/slog directly.
type Level = slog.Level

// Log levels, from most to least verbose. LevelNotice sits between INFO and
// WARN and is used for per-entry output (one line per file or profile).
const (
	LevelDebug  Level = slog.LevelDebug
	LevelInfo   Level = slog.LevelInfo
	LevelNotice Level = slog.LevelInfo + 2
	LevelWarn   Level = slog.LevelWarn
	LevelError  Level = slog.LevelError
)

// levelNames maps the custom levels to their display names.
var levelNames = map[slog.Leveler]string{
	LevelNotice: "NOTICE",
}

// LevelDispatchHandler is a slog.Handler that writes log records to different
// handlers based on the record's level. INFO and below go to one handler,
// while WARNING and above go to another.
type LevelDispatchHandler struct {
	stdoutHandler slog.Handler
	stderrHandler slog.Handler
}

// Enabled checks if the level is enabled for either of the underlying handlers.
func (h *LevelDispatchHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.stdoutHandler.Enabled(ctx, level) || h.stderrHandler.Enabled(ctx, level)
}

// Handle dispatches the record to the appropriate handler.
func (h *LevelDispatchHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelWarn {
		return h.stderrHandler.Handle(ctx, r)
	}
	return h.stdoutHandler.Handle(ctx, r)
}

// WithAttrs returns a new LevelDispatchHandler with the given attributes added.
func (h *LevelDispatchHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &LevelDispatchHandler{
		stdoutHandler: h.stdoutHandler.WithAttrs(attrs),
		stderrHandler: h.stderrHandler.WithAttrs(attrs),
	}
}

// WithGroup returns a new LevelDispatchHandler with the given group.
func (h *LevelDispatchHandler) WithGroup(name string) slog.Handler {
	return &LevelDispatchHandler{
		stdoutHandler: h.stdoutHandler.WithGroup(name),
		stderrHandler: h.stderrHandler.WithGroup(name),
	}
}

var (
	defaultLogger *slog.Logger
	levelVar      = new(slog.LevelVar)
)

// handlerOptions builds the shared slog.HandlerOptions, renaming the custom
// NOTICE level so it doesn't render as "INFO+2".
func handlerOptions() *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: levelVar,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				level := a.Value.Any().(slog.Level)
				if name, ok := levelNames[level]; ok {
					a.Value = slog.StringValue(name)
				}
			}
			return a
		},
	}
}

func init() {
	levelVar.Set(LevelInfo)
	defaultLogger = slog.New(&LevelDispatchHandler{
		stdoutHandler: slog.NewTextHandler(os.Stdout, handlerOptions()),
		stderrHandler: slog.NewTextHandler(os.Stderr, handlerOptions()),
	})
}

// Default returns the global logger.
func Default() *slog.Logger {
	return defaultLogger
}

// SetLevel sets the minimum level the global logger emits.
func SetLevel(l Level) {
	levelVar.Set(l)
}

// SetOutput allows redirecting the logger's output, primarily for testing.
// All levels are written to the provided writer.
func SetOutput(w io.Writer) {
	defaultLogger = slog.New(slog.NewTextHandler(w, handlerOptions()))
}

// LevelFromString maps a user-supplied level name to a Level.
// Unknown names fall back to INFO.
func LevelFromString(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "info", "":
		return LevelInfo
	case "notice":
		return LevelNotice
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Debug logs a debug message.
func Debug(msg string, args ...any) {
	defaultLogger.Debug(msg, args...)
}

// Info logs an informational message.
func Info(msg string, args ...any) {
	defaultLogger.Info(msg, args...)
}

// Notice logs a per-entry progress message (one line per file or profile).
func Notice(msg string, args ...any) {
	defaultLogger.Log(context.Background(), LevelNotice, msg, args...)
}

// Warn logs a warning message.
func Warn(msg string, args ...any) {
	defaultLogger.Warn(msg, args...)
}

// Error logs an error message.
func Error(msg string, args ...any) {
	defaultLogger.Error(msg, args...)
}

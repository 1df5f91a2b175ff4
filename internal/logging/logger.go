// SPDX-License-Identifier: Apache-2.0

package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger returns the process logger tagged with the service name.
//   - env=dev: text handler with source locations
//   - env=prod: JSON handler without source locations
//
// LOG_LEVEL controls the level (debug/info/warn/error), default info.
func NewLogger(env, service string) *slog.Logger {
	return NewLoggerTo(os.Stdout, env, service)
}

// NewLoggerTo is NewLogger writing to w. Commands that print results on
// stdout log to stderr.
func NewLoggerTo(w io.Writer, env, service string) *slog.Logger {
	logger := newLogger(w, env, parseLevel(os.Getenv("LOG_LEVEL")))
	if s := strings.TrimSpace(service); s != "" {
		logger = logger.With("service", s)
	}
	return logger
}

// Discard returns a logger that drops everything. Used by tests and by
// components constructed without a logger in short-lived commands.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newLogger(w io.Writer, env string, level slog.Level) *slog.Logger {
	if strings.EqualFold(strings.TrimSpace(env), "prod") {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level: level,
		}))
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
	}))
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

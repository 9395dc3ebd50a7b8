// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package logging builds the structured logger used across hydrostat.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/Thermoquad/hydrostat/internal/config"
)

// Logger wraps slog.Logger with hydrostat's default fields.
// Safe for concurrent use.
type Logger struct {
	*slog.Logger
	closer io.Closer
}

// New creates a Logger from cfg.
//
// Output may be "stdout", "stderr" or a file path; a file is opened for
// append so the TUI can keep the terminal to itself.
func New(cfg config.LoggingConfig, version string) (*Logger, error) {
	var output io.Writer
	var closer io.Closer
	switch strings.ToLower(cfg.Output) {
	case "", "stderr":
		output = os.Stderr
	case "stdout":
		output = os.Stdout
	case "discard", "none":
		output = io.Discard
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		output = f
		closer = f
	}

	return &Logger{
		Logger: slog.New(newHandler(output, cfg, version)),
		closer: closer,
	}, nil
}

// NewWriter creates a Logger writing to w, mainly for tests
func NewWriter(w io.Writer, cfg config.LoggingConfig, version string) *Logger {
	return &Logger{Logger: slog.New(newHandler(w, cfg, version))}
}

func newHandler(w io.Writer, cfg config.LoggingConfig, version string) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return handler.WithAttrs([]slog.Attr{
		slog.String("service", "hydrostat"),
		slog.String("version", version),
	})
}

// parseLevel converts a string log level to slog.Level.
// Defaults to info if unrecognised.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// With returns a new Logger with additional default attributes
//
//	sessionLogger := logger.With("component", "session")
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger: l.Logger.With(args...),
	}
}

// Component is shorthand for With("component", name)
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Close releases the log file, if any
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// Default creates a logger for use before configuration is loaded
func Default() *Logger {
	return NewWriter(os.Stderr, config.LoggingConfig{Level: "info", Format: "text"}, "dev")
}

// Copyright (C) 2025 MindCare AI
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging configures structured logging for MindCare services.
//
// Logs are JSON via Go's standard slog package. Output goes to stdout by
// default; when a file path is configured, output goes to a
// size-rotated file instead (gopkg.in/natefinch/lumberjack.v2 handles
// rotation, so no external logrotate setup is needed).
//
// # Basic Usage
//
//	closer := logging.Setup(logging.Config{Level: "info", Service: "chatbot"})
//	defer closer()
//	slog.Info("starting", "addr", addr)
//
// # Security Considerations
//
// This package does NOT automatically redact sensitive data. Callers
// must ensure message content and tokens are not logged verbatim:
//
//	// BAD: logs user message content
//	slog.Info("chat", "message", req.Message)
//
//	// GOOD: log metadata only
//	slog.Info("chat", "message_len", len(req.Message))
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls the process-wide logger.
//
// # Fields
//
//   - Level: minimum severity, one of debug|info|warn|error (default info).
//   - Service: value of the "service" attribute stamped on every record.
//   - File: rotating log file path; empty means stdout.
//   - MaxSizeMB, MaxBackups, MaxAgeDays: rotation policy, used only
//     when File is set.
type Config struct {
	Level      string
	Service    string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// ParseLevel maps a config string to a slog level. Unknown strings fall
// back to Info rather than failing startup.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// Setup installs the process-wide default slog logger and returns a
// closer that flushes file output. The closer is a no-op for stdout
// logging.
func Setup(cfg Config) func() {
	var w io.Writer = os.Stdout
	closer := func() {}

	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		w = rotator
		closer = func() { _ = rotator.Close() }
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(cfg.Level),
	})

	logger := slog.New(handler)
	if cfg.Service != "" {
		logger = logger.With("service", cfg.Service)
	}
	slog.SetDefault(logger)

	return closer
}

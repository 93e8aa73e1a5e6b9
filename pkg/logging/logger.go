// Copyright (C) 2025 Chainforge contributors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package logging provides structured logging for chainforge components,
// adapted down from a multi-destination (stderr/file/cloud-export) design
// to the shape this project actually exercises: text output to stderr
// (or discarded under Quiet), scrubbed of credential-shaped substrings
// before any handler sees it, plus an in-memory LogExporter used by tests
// that need to assert on what was logged rather than parse stderr.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Level represents log severity, ordered Debug < Info < Warn < Error.
// Setting Config.Level filters out everything below it.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) toSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config configures a Logger. A zero-value Config logs Info+ to stderr.
type Config struct {
	// Level sets the minimum level that reaches any destination.
	Level Level

	// Service is attached to every record as the "service" attribute.
	Service string

	// Quiet discards stderr output. Useful for tests and daemonized
	// commands that don't want log lines on their terminal.
	Quiet bool

	// Exporter, if set, also receives every record that passes the level
	// filter, asynchronously and with export errors silently dropped.
	Exporter LogExporter
}

// LogExporter receives log entries in addition to whatever slog.Handler
// Logger is using. This project's own use is BufferedExporter in tests
// that assert on logged attributes (see redact_test.go); it exists as an
// interface, not a concrete cloud sink, because nothing in this repo
// ships a production exporter.
type LogExporter interface {
	Export(ctx context.Context, entry LogEntry) error
	Flush(ctx context.Context) error
	Close() error
}

// LogEntry is what gets handed to a LogExporter.
type LogEntry struct {
	Timestamp time.Time
	Level     Level
	Message   string
	Service   string
	Attrs     map[string]any
}

// Logger wraps slog.Logger with level filtering, an optional exporter,
// and credential redaction applied uniformly to both.
type Logger struct {
	slog     *slog.Logger
	config   Config
	exporter LogExporter
	mu       sync.Mutex
}

// New creates a Logger from config. Records are scrubbed for
// credential-shaped substrings (see redact.go) before reaching stderr
// or the exporter.
func New(config Config) *Logger {
	opts := &slog.HandlerOptions{Level: config.Level.toSlogLevel()}

	var handler slog.Handler
	if config.Quiet {
		handler = slog.NewTextHandler(io.Discard, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	if config.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("service", config.Service)})
	}
	handler = NewRedactingHandler(handler)

	return &Logger{
		slog:     slog.New(handler),
		config:   config,
		exporter: config.Exporter,
	}
}

// Default returns an Info-level logger writing to stderr as "chainforge".
func Default() *Logger {
	return New(Config{Level: LevelInfo, Service: "chainforge"})
}

func (l *Logger) Debug(msg string, args ...any) { l.log(LevelDebug, msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.log(LevelInfo, msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.log(LevelWarn, msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.log(LevelError, msg, args...) }

// With returns a child Logger carrying the given attributes on every
// subsequent call, sharing the parent's exporter.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		slog:     l.slog.With(args...),
		config:   l.config,
		exporter: l.exporter,
	}
}

// Slog returns the underlying slog.Logger for callers that need
// LogAttrs or other slog-specific behavior.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// Close flushes and closes the exporter, if one is configured.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.exporter == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := l.exporter.Flush(ctx); err != nil {
		_ = l.exporter.Close()
		return fmt.Errorf("flush exporter: %w", err)
	}
	if err := l.exporter.Close(); err != nil {
		return fmt.Errorf("close exporter: %w", err)
	}
	return nil
}

func (l *Logger) log(level Level, msg string, args ...any) {
	switch level {
	case LevelDebug:
		l.slog.Debug(msg, args...)
	case LevelInfo:
		l.slog.Info(msg, args...)
	case LevelWarn:
		l.slog.Warn(msg, args...)
	case LevelError:
		l.slog.Error(msg, args...)
	}

	if l.exporter != nil && level >= l.config.Level {
		entry := LogEntry{
			Timestamp: time.Now(),
			Level:     level,
			Message:   scrub(msg),
			Service:   l.config.Service,
			Attrs:     scrubMap(argsToMap(args)),
		}
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = l.exporter.Export(ctx, entry)
		}()
	}
}

// argsToMap converts slog-style key-value args into a map for LogEntry.Attrs.
func argsToMap(args []any) map[string]any {
	result := make(map[string]any)
	for i := 0; i < len(args)-1; i += 2 {
		if key, ok := args[i].(string); ok {
			result[key] = args[i+1]
		}
	}
	return result
}

// BufferedExporter collects log entries in memory. Used by tests that
// assert on what was logged (see redact_test.go) rather than a
// production cloud sink.
type BufferedExporter struct {
	mu      sync.Mutex
	entries []LogEntry
}

func NewBufferedExporter() *BufferedExporter {
	return &BufferedExporter{entries: make([]LogEntry, 0, 100)}
}

func (e *BufferedExporter) Export(ctx context.Context, entry LogEntry) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entries = append(e.entries, entry)
	return nil
}

func (e *BufferedExporter) Flush(ctx context.Context) error { return nil }
func (e *BufferedExporter) Close() error                    { return nil }

// Entries returns a copy of all collected entries.
func (e *BufferedExporter) Entries() []LogEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	result := make([]LogEntry, len(e.entries))
	copy(result, e.entries)
	return result
}

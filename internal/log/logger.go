// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package log provides structured logging for the Pulselab SDK.
//
// The SDK is a library embedded in a host application, so the logger is
// quiet by default (warn level) and never writes above debug for
// steady-state telemetry traffic.
package log

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Format represents the log output format.
type Format string

const (
	// FormatJSON outputs logs in JSON format for machine parsing.
	FormatJSON Format = "json"
	// FormatText outputs logs in human-readable text format.
	FormatText Format = "text"
)

// Standard field keys for structured logging.
// These constants ensure consistent field naming across the codebase.
const (
	// ConfigKeyKey is the field key for experiment configuration identifiers.
	ConfigKeyKey = "config_key"
	// SessionIDKey is the field key for session identifiers.
	SessionIDKey = "session_id"
	// TraceIDKey is the field key for trace identifiers.
	TraceIDKey = "trace_id"
	// SpanIDKey is the field key for span identifiers.
	SpanIDKey = "span_id"
	// ModelKey is the field key for LLM model names.
	ModelKey = "model"
	// DurationKey is the field key for duration in milliseconds.
	DurationKey = "duration_ms"
	// EventKey is the field key for event types.
	EventKey = "event"
)

// Config holds the logging configuration.
type Config struct {
	// Level sets the minimum log level (debug, info, warn, error).
	// Default: warn
	Level string

	// Format sets the output format (json, text).
	// Default: json
	Format Format

	// Output is the writer for log output.
	// Default: os.Stderr
	Output io.Writer
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Level:  "warn",
		Format: FormatJSON,
		Output: os.Stderr,
	}
}

// FromEnv creates a Config from environment variables.
// Supported environment variables:
//   - PULSELAB_DEBUG: true/1 to enable debug level (takes precedence)
//   - PULSELAB_LOG_LEVEL: debug, info, warn, error (default: warn)
//   - PULSELAB_LOG_FORMAT: json, text (default: json)
func FromEnv() *Config {
	cfg := DefaultConfig()

	debug := os.Getenv("PULSELAB_DEBUG")
	if debug == "true" || debug == "1" {
		cfg.Level = "debug"
	}

	if debug == "" {
		if level := os.Getenv("PULSELAB_LOG_LEVEL"); level != "" {
			cfg.Level = strings.ToLower(level)
		}
	}

	if format := os.Getenv("PULSELAB_LOG_FORMAT"); format != "" {
		cfg.Format = Format(strings.ToLower(format))
	}

	return cfg
}

// New creates a new structured logger from the given configuration.
func New(cfg *Config) *slog.Logger {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	opts := &slog.HandlerOptions{
		Level: parseLevel(cfg.Level),
	}

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}

	var handler slog.Handler
	switch cfg.Format {
	case FormatText:
		handler = slog.NewTextHandler(output, opts)
	case FormatJSON:
		fallthrough
	default:
		handler = slog.NewJSONHandler(output, opts)
	}

	return slog.New(handler)
}

// parseLevel converts a string level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// WithComponent returns a new logger with a component name field.
// Component names help identify which part of the SDK generated the log.
func WithComponent(logger *slog.Logger, component string) *slog.Logger {
	return logger.With("component", component)
}

// WithSessionContext returns a new logger with ambient session fields.
// This adds config_key and session_id to all subsequent log entries.
func WithSessionContext(logger *slog.Logger, configKey, sessionID string) *slog.Logger {
	return logger.With(
		slog.String(ConfigKeyKey, configKey),
		slog.String(SessionIDKey, sessionID),
	)
}

// WithTraceContext returns a new logger with ambient trace fields.
func WithTraceContext(logger *slog.Logger, traceID, spanID string) *slog.Logger {
	return logger.With(
		slog.String(TraceIDKey, traceID),
		slog.String(SpanIDKey, spanID),
	)
}

// Error creates an error attribute.
func Error(err error) slog.Attr {
	return slog.Any("error", err)
}

// Duration creates a duration attribute in milliseconds.
func Duration(key string, value int64) slog.Attr {
	return slog.Int64(key+"_ms", value)
}

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

package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"bogus", slog.LevelWarn},
		{"", slog.LevelWarn},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.want {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})

	logger.Info("span recorded", slog.String(TraceIDKey, "abc"), slog.Int64(DurationKey, 42))

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if entry["trace_id"] != "abc" {
		t.Errorf("expected trace_id field, got %v", entry)
	}
}

func TestNew_QuietByDefault(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Format: FormatJSON, Output: &buf})

	logger.Info("should be suppressed")
	if buf.Len() != 0 {
		t.Errorf("default level should suppress info logs, got %q", buf.String())
	}

	logger.Warn("should appear")
	if buf.Len() == 0 {
		t.Error("warn logs should pass the default level")
	}
}

func TestFromEnv_Debug(t *testing.T) {
	t.Setenv("PULSELAB_DEBUG", "1")
	cfg := FromEnv()
	if cfg.Level != "debug" {
		t.Errorf("expected debug level, got %q", cfg.Level)
	}
}

func TestFromEnv_LevelAndFormat(t *testing.T) {
	t.Setenv("PULSELAB_DEBUG", "")
	t.Setenv("PULSELAB_LOG_LEVEL", "ERROR")
	t.Setenv("PULSELAB_LOG_FORMAT", "TEXT")

	cfg := FromEnv()
	if cfg.Level != "error" {
		t.Errorf("expected error level, got %q", cfg.Level)
	}
	if cfg.Format != FormatText {
		t.Errorf("expected text format, got %q", cfg.Format)
	}
}

func TestWithSessionContext(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&Config{Level: "info", Format: FormatJSON, Output: &buf})

	WithSessionContext(logger, "checkout-model", "sess-1").Info("assigned")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatal(err)
	}
	if entry["config_key"] != "checkout-model" || entry["session_id"] != "sess-1" {
		t.Errorf("missing session fields: %v", entry)
	}
}

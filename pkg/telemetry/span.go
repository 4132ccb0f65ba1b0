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

package telemetry

import (
	"time"
)

// Kind categorizes the unit of work a span describes.
type Kind string

const (
	// KindLLM marks a span describing one LLM call. This is the default.
	KindLLM Kind = "llm"

	// KindInternal marks spans for non-LLM work recorded by the host.
	KindInternal Kind = "internal"
)

// Status indicates a span's outcome.
type Status string

const (
	// StatusOK indicates successful completion.
	StatusOK Status = "OK"

	// StatusError indicates the wrapped call failed.
	StatusError Status = "ERROR"
)

// Record is one completed unit of work, typically a single LLM call.
// A record is immutable once built by ActiveSpan.Finish: it is consumed
// exactly once by the delivery path and then discarded. There is no
// persistence and no retry queue; a record that fails to deliver is lost.
//
// The JSON shape below is the collector wire contract.
type Record struct {
	ConfigKey    string         `json:"config_key,omitempty"`
	SessionID    string         `json:"session_id,omitempty"`
	TraceID      string         `json:"trace_id"`
	SpanID       string         `json:"span_id"`
	ParentSpanID string         `json:"parent_span_id,omitempty"`
	Name         string         `json:"name"`
	Kind         Kind           `json:"kind"`
	Model        string         `json:"model,omitempty"`
	StartTime    time.Time      `json:"start_time"`
	EndTime      time.Time      `json:"end_time"`
	DurationMs   int64          `json:"duration_ms"`
	Status       Status         `json:"status"`
	Attributes   map[string]any `json:"attributes,omitempty"`

	// Prompt linkage, set when the span's call used an assigned prompt.
	PromptKey     string `json:"prompt_key,omitempty"`
	PromptVersion string `json:"prompt_version,omitempty"`
	ABTestKey     string `json:"prompt_ab_test_key,omitempty"`
	VariantIndex  *int   `json:"prompt_variant_index,omitempty"`
}

// Usage carries token accounting for one LLM call.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int

	// CostUSD is the caller-computed cost, recorded when positive.
	CostUSD float64
}

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

// Package telemetry records spans describing LLM calls and delivers them
// to a collector without ever blocking the caller.
//
// Delivery is at-most-once by design: every send is fire-and-forget,
// bounded by a hard timeout, and a failed or throttled send simply drops
// the span. Host application latency always wins over telemetry
// completeness.
package telemetry

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/pulselab/pulselab-go/pkg/session"
	"github.com/pulselab/pulselab-go/pkg/telemetry/redact"
)

// Recorder builds immutable span records from call metadata plus ambient
// trace context and dispatches them asynchronously.
type Recorder struct {
	dispatcher     *dispatcher
	logger         *slog.Logger
	captureContent atomic.Bool
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithLogger sets the recorder's logger.
func WithLogger(logger *slog.Logger) RecorderOption {
	return func(r *Recorder) {
		r.logger = logger
		r.dispatcher.logger = logger
	}
}

// WithDeliveryTimeout overrides the per-send hard timeout.
func WithDeliveryTimeout(d time.Duration) RecorderOption {
	return func(r *Recorder) {
		if d > 0 {
			r.dispatcher.timeout = d
		}
	}
}

// WithRateLimit bounds outbound sends to n spans per second with the
// given burst. Spans over the limit are dropped, not queued.
func WithRateLimit(perSecond float64, burst int) RecorderOption {
	return func(r *Recorder) {
		r.dispatcher.setRateLimit(perSecond, burst)
	}
}

// WithContentCapture sets the initial content capture toggle.
func WithContentCapture(enabled bool) RecorderOption {
	return func(r *Recorder) {
		r.captureContent.Store(enabled)
	}
}

// NewRecorder creates a recorder delivering to sink.
// Content capture is enabled by default.
func NewRecorder(sink Sink, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		dispatcher: newDispatcher(sink),
		logger:     slog.Default(),
	}
	r.captureContent.Store(true)
	r.dispatcher.logger = r.logger
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetContentCapture toggles request/response capture at runtime. When
// disabled, content attributes are omitted entirely (not redacted);
// usage, cost and timing attributes are still recorded.
func (r *Recorder) SetContentCapture(enabled bool) {
	r.captureContent.Store(enabled)
}

// ContentCaptureEnabled reports the current toggle state.
func (r *Recorder) ContentCaptureEnabled() bool {
	return r.captureContent.Load()
}

// SpanOption configures a span at Start.
type SpanOption func(*ActiveSpan)

// WithKind overrides the span kind (default KindLLM).
func WithKind(kind Kind) SpanOption {
	return func(s *ActiveSpan) {
		s.record.Kind = kind
	}
}

// WithModel records the model the call was addressed to.
func WithModel(model string) SpanOption {
	return func(s *ActiveSpan) {
		s.record.Model = model
	}
}

// WithPromptLink ties the span to the assigned prompt variant.
func WithPromptLink(promptKey, promptVersion, abTestKey string, variantIndex int) SpanOption {
	return func(s *ActiveSpan) {
		s.record.PromptKey = promptKey
		s.record.PromptVersion = promptVersion
		s.record.ABTestKey = abTestKey
		idx := variantIndex
		s.record.VariantIndex = &idx
	}
}

// ActiveSpan is an in-flight span between Start and Finish.
type ActiveSpan struct {
	recorder *Recorder
	record   Record
	finished atomic.Bool
}

// Start opens a span: it captures the wall-clock start time, mints a
// span id, and inherits the ambient trace (minting a fresh trace id when
// none is ambient). The returned context carries the new span as the
// ambient trace parent for sub-spans.
//
// Start cannot fail and never blocks.
func (r *Recorder) Start(ctx context.Context, name string, opts ...SpanOption) (context.Context, *ActiveSpan) {
	tc := session.ChildTrace(ctx)

	span := &ActiveSpan{
		recorder: r,
		record: Record{
			Name:         name,
			Kind:         KindLLM,
			TraceID:      tc.TraceID,
			SpanID:       tc.SpanID,
			ParentSpanID: tc.ParentSpanID,
			StartTime:    time.Now(),
		},
	}

	if sc, ok := session.Current(ctx); ok {
		span.record.ConfigKey = sc.ConfigKey
		span.record.SessionID = sc.SessionID
	}

	for _, opt := range opts {
		opt(span)
	}

	return session.WithTrace(ctx, tc), span
}

// Outcome carries everything known at call completion.
type Outcome struct {
	// Request is the captured request payload, redacted under the
	// full-content profile when content capture is enabled.
	Request any

	// Response is the captured response payload (same policy as Request).
	Response any

	// Err is the call's error, if it failed.
	Err error

	// Diagnostic optionally captures an entire result object under the
	// metadata-only profile: structure and sizes survive, content never.
	Diagnostic any

	// Usage carries token counts for the call.
	Usage Usage

	// Metrics are caller-supplied business metrics merged into the span
	// attributes verbatim; on key collision the metric value wins.
	Metrics map[string]any
}

// Trace returns the span's trace identity.
func (s *ActiveSpan) Trace() session.Trace {
	return session.Trace{
		TraceID:      s.record.TraceID,
		SpanID:       s.record.SpanID,
		ParentSpanID: s.record.ParentSpanID,
	}
}

// Finish completes the span and hands the record to the delivery path.
// It is consumed exactly once: subsequent calls are no-ops. Finish never
// blocks on the network and never panics past its own boundary.
func (s *ActiveSpan) Finish(out Outcome) {
	if !s.finished.CompareAndSwap(false, true) {
		return
	}

	s.record.EndTime = time.Now()
	s.record.DurationMs = s.record.EndTime.Sub(s.record.StartTime).Milliseconds()
	s.record.Status = StatusOK
	if out.Err != nil {
		s.record.Status = StatusError
	}
	s.record.Attributes = s.buildAttributes(out)

	s.recorder.dispatcher.dispatch(s.record)
}

func (s *ActiveSpan) buildAttributes(out Outcome) map[string]any {
	attrs := make(map[string]any)

	if s.recorder.captureContent.Load() {
		if out.Request != nil {
			attrs["llm.request"] = redact.Value(redact.ProfileFullContent, out.Request)
		}
		if out.Response != nil {
			attrs["llm.response"] = redact.Value(redact.ProfileFullContent, out.Response)
		}
		if out.Diagnostic != nil {
			attrs["llm.result_meta"] = redact.Value(redact.ProfileMetadataOnly, out.Diagnostic)
		}
	}

	if out.Err != nil {
		attrs["error.message"] = out.Err.Error()
	}

	if out.Usage != (Usage{}) {
		attrs["llm.usage.input_tokens"] = out.Usage.InputTokens
		attrs["llm.usage.output_tokens"] = out.Usage.OutputTokens
		attrs["llm.usage.total_tokens"] = out.Usage.TotalTokens
		if out.Usage.CostUSD > 0 {
			attrs["llm.cost_usd"] = out.Usage.CostUSD
		}
	}

	// Caller metrics merge last so the latest value wins per field.
	for k, v := range out.Metrics {
		attrs[k] = v
	}

	return attrs
}

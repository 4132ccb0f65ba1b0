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

// Package otelbridge re-emits span records through an OpenTelemetry
// tracer, so hosts already running an OTel pipeline can route LLM spans
// into it instead of (or alongside) the collector.
package otelbridge

import (
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/pulselab/pulselab-go/pkg/telemetry"
)

const tracerName = "github.com/pulselab/pulselab-go"

// Sink forwards completed records to an OpenTelemetry tracer. The OTel
// SDK mints its own trace identity; the original trace and span ids are
// preserved as attributes so spans remain joinable with collector data.
type Sink struct {
	tracer trace.Tracer
}

// New creates a bridge sink emitting through tp.
func New(tp trace.TracerProvider) *Sink {
	return &Sink{tracer: tp.Tracer(tracerName, trace.WithInstrumentationVersion(telemetry.Version))}
}

// Send implements telemetry.Sink.
func (s *Sink) Send(ctx context.Context, rec *telemetry.Record) error {
	_, span := s.tracer.Start(ctx, rec.Name,
		trace.WithTimestamp(rec.StartTime),
		trace.WithSpanKind(spanKind(rec.Kind)),
	)

	span.SetAttributes(convertAttributes(rec)...)
	if rec.Status == telemetry.StatusError {
		msg, _ := rec.Attributes["error.message"].(string)
		span.SetStatus(codes.Error, msg)
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End(trace.WithTimestamp(rec.EndTime))
	return nil
}

func spanKind(kind telemetry.Kind) trace.SpanKind {
	if kind == telemetry.KindLLM {
		return trace.SpanKindClient
	}
	return trace.SpanKindInternal
}

func convertAttributes(rec *telemetry.Record) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("pulselab.trace_id", rec.TraceID),
		attribute.String("pulselab.span_id", rec.SpanID),
	}
	if rec.ParentSpanID != "" {
		attrs = append(attrs, attribute.String("pulselab.parent_span_id", rec.ParentSpanID))
	}
	if rec.ConfigKey != "" {
		attrs = append(attrs, attribute.String("pulselab.config_key", rec.ConfigKey))
	}
	if rec.SessionID != "" {
		attrs = append(attrs, attribute.String("pulselab.session_id", rec.SessionID))
	}
	if rec.Model != "" {
		attrs = append(attrs, attribute.String("llm.model", rec.Model))
	}
	if rec.PromptKey != "" {
		attrs = append(attrs, attribute.String("llm.prompt_key", rec.PromptKey))
	}
	if rec.PromptVersion != "" {
		attrs = append(attrs, attribute.String("llm.prompt_version", rec.PromptVersion))
	}
	if rec.ABTestKey != "" {
		attrs = append(attrs, attribute.String("llm.ab_test_key", rec.ABTestKey))
	}
	if rec.VariantIndex != nil {
		attrs = append(attrs, attribute.Int("llm.variant_index", *rec.VariantIndex))
	}

	for key, value := range rec.Attributes {
		attrs = append(attrs, convertAttribute(key, value))
	}
	return attrs
}

// convertAttribute maps a record attribute onto an OTel attribute.
// Composite values are JSON-encoded; OTel attributes are flat.
func convertAttribute(key string, value any) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case bool:
		return attribute.Bool(key, v)
	case int:
		return attribute.Int(key, v)
	case int64:
		return attribute.Int64(key, v)
	case float64:
		return attribute.Float64(key, v)
	default:
		encoded, err := json.Marshal(v)
		if err != nil {
			return attribute.String(key, fmt.Sprintf("%v", v))
		}
		return attribute.String(key, string(encoded))
	}
}

// Shutdown flushes and stops the provider if the bridge owns one built
// by NewStdoutProvider or NewOTLPProvider.
func Shutdown(ctx context.Context, tp trace.TracerProvider) error {
	if sdk, ok := tp.(*sdktrace.TracerProvider); ok {
		return sdk.Shutdown(ctx)
	}
	return nil
}

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

package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	mrand "math/rand"
	"regexp"
)

// Trace carries the trace identity for the current unit of work,
// following the W3C Trace Context id widths: a 128-bit trace id and a
// 64-bit span id, both lowercase hex.
type Trace struct {
	// TraceID identifies the whole trace (32 hex chars).
	TraceID string

	// SpanID identifies the current span (16 hex chars).
	SpanID string

	// ParentSpanID identifies the parent span. Empty for root spans.
	ParentSpanID string
}

var (
	traceIDRegex = regexp.MustCompile(`^[0-9a-f]{32}$`)
	spanIDRegex  = regexp.MustCompile(`^[0-9a-f]{16}$`)
)

// Valid reports whether the trace carries well-formed ids.
func (t Trace) Valid() bool {
	return traceIDRegex.MatchString(t.TraceID) && spanIDRegex.MatchString(t.SpanID)
}

// traceKeyType is the context key for the ambient trace.
type traceKeyType struct{}

var traceKey = traceKeyType{}

// WithTrace returns a context carrying tc as the ambient trace.
// Unlike the session scope, trace bindings are immutable: each recorded
// span derives a fresh context rather than mutating the parent's.
func WithTrace(ctx context.Context, tc Trace) context.Context {
	return context.WithValue(ctx, traceKey, tc)
}

// CurrentTrace returns the ambient trace, if any.
func CurrentTrace(ctx context.Context) (Trace, bool) {
	if ctx == nil {
		return Trace{}, false
	}
	tc, ok := ctx.Value(traceKey).(Trace)
	return tc, ok
}

// NewTraceID mints a random 128-bit trace id.
func NewTraceID() string {
	return randomHex(16)
}

// NewSpanID mints a random 64-bit span id.
func NewSpanID() string {
	return randomHex(8)
}

// randomHex returns n random bytes hex-encoded. crypto/rand never fails
// on supported platforms; the math/rand path exists so id minting can
// itself never fail.
func randomHex(n int) string {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		for i := range buf {
			buf[i] = byte(mrand.Intn(256))
		}
	}
	return hex.EncodeToString(buf)
}

// ChildTrace derives the trace identity for a new span: it inherits the
// ambient trace id (minting one when none is ambient), records the
// ambient span id as parent, and mints a fresh span id.
func ChildTrace(ctx context.Context) Trace {
	parent, ok := CurrentTrace(ctx)
	tc := Trace{SpanID: NewSpanID()}
	if ok && parent.TraceID != "" {
		tc.TraceID = parent.TraceID
		tc.ParentSpanID = parent.SpanID
	} else {
		tc.TraceID = NewTraceID()
	}
	return tc
}

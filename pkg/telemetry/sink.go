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
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/pulselab/pulselab-go/pkg/errors"
	"github.com/pulselab/pulselab-go/pkg/httpclient"
)

// Sink is a delivery target for completed span records. Send is invoked
// once per record from a dispatcher goroutine; implementations must be
// safe for concurrent use and should respect ctx's deadline.
type Sink interface {
	Send(ctx context.Context, rec *Record) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, rec *Record) error

// Send implements Sink.
func (f SinkFunc) Send(ctx context.Context, rec *Record) error {
	return f(ctx, rec)
}

// HTTPSink delivers spans to the collector as authenticated JSON POSTs.
// It never retries: retrying belongs to nothing on the span path.
type HTTPSink struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

// NewHTTPSink creates a collector sink. endpoint is the full spans URL
// (e.g. "https://collector.pulselab.dev/v1/spans").
func NewHTTPSink(endpoint, apiKey string) (*HTTPSink, error) {
	if endpoint == "" {
		return nil, &errors.ConfigError{Key: "endpoint", Reason: "collector endpoint is required"}
	}

	cfg := httpclient.DefaultConfig()
	cfg.UserAgent = "pulselab-go/" + Version
	cfg.Timeout = DefaultDeliveryTimeout
	cfg.RetryAttempts = 0 // at-most-once: the dispatcher drops, it never retries

	client, err := httpclient.New(cfg)
	if err != nil {
		return nil, err
	}

	return &HTTPSink{endpoint: endpoint, apiKey: apiKey, client: client}, nil
}

// Send implements Sink.
func (s *HTTPSink) Send(ctx context.Context, rec *Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return &errors.DeliveryError{Endpoint: s.endpoint, Cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return &errors.DeliveryError{Endpoint: s.endpoint, Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return &errors.DeliveryError{Endpoint: s.endpoint, Cause: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck // drain for connection reuse

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &errors.DeliveryError{Endpoint: s.endpoint, StatusCode: resp.StatusCode}
	}
	return nil
}

// Version is the SDK version reported in the User-Agent header.
const Version = "0.3.0"

// discardSink drops every record. Used when telemetry is disabled.
type discardSink struct{}

// Send implements Sink.
func (discardSink) Send(context.Context, *Record) error { return nil }

// NewDiscardSink returns a sink that accepts and drops every record.
func NewDiscardSink() Sink { return discardSink{} }

// timeString formats t for human-facing sinks; the wire format itself
// relies on time.Time's RFC 3339 JSON encoding.
func timeString(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

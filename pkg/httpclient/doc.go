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

// Package httpclient provides the HTTP client factory shared by the
// SDK's outbound paths: span delivery and background configuration
// polling.
//
// Clients come with TLS 1.2 minimum, connection pooling, request logging
// with sanitized URLs, User-Agent injection, and ambient trace id
// propagation. Retry with exponential backoff is available but OFF for
// the span delivery path: telemetry is at-most-once, and only the
// background config poller (which runs off the hot path) enables it.
//
//	cfg := httpclient.DefaultConfig()
//	cfg.UserAgent = "pulselab-go/0.3.0"
//	client, err := httpclient.New(cfg)
package httpclient

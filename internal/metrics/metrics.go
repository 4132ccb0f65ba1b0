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

// Package metrics exposes Prometheus instrumentation for the SDK. Since
// telemetry delivery is best-effort, these counters are the only place a
// host application can see how much is being dropped.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SpansRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulselab_spans_recorded_total",
		Help: "Spans handed to the dispatcher",
	})

	SpansDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulselab_spans_dropped_total",
		Help: "Spans dropped before or during delivery",
	}, []string{"reason"})

	Assignments = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pulselab_assignments_total",
		Help: "Variant assignments served",
	})

	AssignmentFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulselab_assignment_fallbacks_total",
		Help: "Assignments resolved to the caller-supplied fallback",
	}, []string{"kind"})

	ConfigRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pulselab_config_refreshes_total",
		Help: "Background experiment configuration refreshes",
	}, []string{"outcome"})

	DeliveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pulselab_span_delivery_duration_seconds",
		Help:    "Wall-clock time of span delivery attempts",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
	})
)

// Drop reasons for SpansDropped.
const (
	DropReasonTransport = "transport_error"
	DropReasonTimeout   = "timeout"
	DropReasonRateLimit = "rate_limited"
	DropReasonEncode    = "encode_error"
)

// Outcomes for ConfigRefreshes.
const (
	RefreshOutcomeSuccess = "success"
	RefreshOutcomeError   = "error"
)

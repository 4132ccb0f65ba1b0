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
	"context"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/pulselab/pulselab-go/internal/metrics"
	"github.com/pulselab/pulselab-go/internal/resilience"
	"github.com/pulselab/pulselab-go/pkg/errors"
)

// DefaultDeliveryTimeout is the hard per-send deadline. A send that has
// not completed by then is abandoned and the span is lost.
const DefaultDeliveryTimeout = 5 * time.Second

// dispatcher owns the fire-and-forget delivery path. One goroutine per
// send, no buffering, no retry: backpressure is expressed by dropping.
type dispatcher struct {
	sink    Sink
	timeout time.Duration
	limiter *rate.Limiter
	logger  *slog.Logger
}

func newDispatcher(sink Sink) *dispatcher {
	return &dispatcher{
		sink:    sink,
		timeout: DefaultDeliveryTimeout,
		logger:  slog.Default(),
	}
}

func (d *dispatcher) setRateLimit(perSecond float64, burst int) {
	if perSecond > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	} else {
		d.limiter = nil
	}
}

// dispatch sends rec asynchronously. It returns immediately; the caller
// never observes delivery latency or delivery failure.
func (d *dispatcher) dispatch(rec Record) {
	metrics.SpansRecorded.Inc()

	if d.sink == nil {
		metrics.SpansDropped.WithLabelValues(metrics.DropReasonTransport).Inc()
		return
	}

	if d.limiter != nil && !d.limiter.Allow() {
		metrics.SpansDropped.WithLabelValues(metrics.DropReasonRateLimit).Inc()
		d.logger.Debug("span dropped: rate limited",
			"trace_id", rec.TraceID,
			"span_id", rec.SpanID,
		)
		return
	}

	resilience.Go(d.logger, "span delivery", func() {
		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		err := d.sink.Send(ctx, &rec)
		metrics.DeliveryDuration.Observe(time.Since(start).Seconds())
		if err == nil {
			return
		}

		reason := metrics.DropReasonTransport
		if errors.IsTimeout(err) || ctx.Err() != nil {
			reason = metrics.DropReasonTimeout
		}
		metrics.SpansDropped.WithLabelValues(reason).Inc()
		d.logger.Debug("span dropped: delivery failed",
			"trace_id", rec.TraceID,
			"span_id", rec.SpanID,
			"reason", reason,
			"error", err.Error(),
		)
	})
}

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

// Package resilience provides the timeout and fire-and-forget discipline
// shared by the assignment and telemetry hot paths: every operation that
// can touch the network is bounded by a short deadline, never retried
// synchronously, and resolves to a safe default instead of altering the
// host application's control flow.
package resilience

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pulselab/pulselab-go/pkg/errors"
)

// WithTimeout runs fn and waits at most d for its result. On expiry the
// in-flight work is abandoned, not cancelled: fn keeps running on its own
// goroutine and its eventual result is discarded. Timeouts are the only
// bounding mechanism on the hot path; nothing here cooperatively cancels.
func WithTimeout[T any](ctx context.Context, operation string, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	type outcome struct {
		value T
		err   error
	}

	// Buffered so the abandoned goroutine can always complete its send.
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				done <- outcome{zero, fmt.Errorf("%s panicked: %v", operation, r)}
			}
		}()
		v, err := fn(ctx)
		done <- outcome{v, err}
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case out := <-done:
		return out.value, out.err
	case <-timer.C:
		var zero T
		return zero, &errors.TimeoutError{Operation: operation, Duration: d}
	}
}

// Go runs fn on its own goroutine, containing any panic so a telemetry
// failure can never unwind into host application code.
func Go(logger *slog.Logger, operation string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil && logger != nil {
				logger.Debug("background operation panicked",
					"operation", operation,
					"panic", fmt.Sprint(r),
				)
			}
		}()
		fn()
	}()
}

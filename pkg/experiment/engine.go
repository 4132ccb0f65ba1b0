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

package experiment

import (
	"context"
	"log/slog"
	"time"

	"github.com/pulselab/pulselab-go/internal/metrics"
	"github.com/pulselab/pulselab-go/internal/resilience"
	"github.com/pulselab/pulselab-go/pkg/errors"
	"github.com/pulselab/pulselab-go/pkg/session"
)

// DefaultTimeout bounds a snapshot lookup on the assignment hot path.
// A source that cannot answer within this budget is treated as absent
// and the caller's fallback is served instead.
const DefaultTimeout = 2 * time.Second

// Source supplies variant snapshots by configuration key. Implementations
// are expected to answer from a background-refreshed cache: the engine
// never blocks an assignment on a live fetch beyond its timeout.
//
// version is empty for "latest". A missing key or version is reported as
// an *errors.AssignmentError with the matching failure kind.
type Source interface {
	Snapshot(ctx context.Context, configKey, version string) (*Snapshot, error)
}

// Result is a resolved assignment.
type Result struct {
	// Payload is the selected variant's opaque payload, or the caller's
	// fallback when Fallback is true.
	Payload string

	// VariantIndex is the selected variant's position. -1 on fallback.
	VariantIndex int

	// Version is the configuration version the assignment was resolved
	// against. Empty on fallback.
	Version string

	// Fallback marks results that did not come from the real distribution.
	Fallback bool
}

// Engine maps subject ids deterministically onto weighted variants.
type Engine struct {
	source  Source
	timeout time.Duration
	logger  *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithTimeout overrides the snapshot lookup deadline.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithLogger sets the engine's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New creates an assignment engine reading from source.
func New(source Source, opts ...Option) *Engine {
	e := &Engine{
		source:  source,
		timeout: DefaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// AssignOption configures a single assignment call.
type AssignOption func(*assignConfig)

type assignConfig struct {
	version string
}

// WithVersion pins the assignment to a specific configuration version
// instead of the latest snapshot.
func WithVersion(version string) AssignOption {
	return func(c *assignConfig) {
		c.version = version
	}
}

// Assign resolves the variant for subjectID under configKey. This is the
// resilient entry point: on any failure (unknown key, empty source,
// lookup timeout) it returns fallback tagged as such rather than an
// error, so experiment lookups can never alter host control flow.
//
// Targeting rules see the ambient session from ctx, if one is bound.
func (e *Engine) Assign(ctx context.Context, configKey, subjectID, fallback string, opts ...AssignOption) Result {
	metrics.Assignments.Inc()

	result, err := e.assignStrict(ctx, configKey, subjectID, opts...)
	if err == nil {
		return result
	}

	kind, ok := errors.FailureKind(err)
	if !ok {
		kind = errors.FailureUnknownKey
	}
	metrics.AssignmentFallbacks.WithLabelValues(string(kind)).Inc()
	e.logger.Debug("assignment resolved to fallback",
		"config_key", configKey,
		"kind", string(kind),
		"error", err.Error(),
	)

	return Result{Payload: fallback, VariantIndex: -1, Fallback: true}
}

// assignStrict is the non-resilient assignment path. It surfaces the
// specific failure kind instead of degrading to the fallback, which is
// what the resilient wrapper and the test suite need.
func (e *Engine) assignStrict(ctx context.Context, configKey, subjectID string, opts ...AssignOption) (Result, error) {
	var cfg assignConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	snap, err := resilience.WithTimeout(ctx, "snapshot lookup", e.timeout,
		func(ctx context.Context) (*Snapshot, error) {
			return e.source.Snapshot(ctx, configKey, cfg.version)
		})
	if err != nil {
		if errors.IsTimeout(err) {
			return Result{}, &errors.AssignmentError{ConfigKey: configKey, Kind: errors.FailureTimeout, Cause: err}
		}
		var ae *errors.AssignmentError
		if errors.As(err, &ae) {
			return Result{}, err
		}
		return Result{}, &errors.AssignmentError{ConfigKey: configKey, Kind: errors.FailureUnknownKey, Cause: err}
	}
	if snap == nil || len(snap.variants) == 0 {
		return Result{}, &errors.AssignmentError{ConfigKey: configKey, Kind: errors.FailureEmptySnapshot}
	}

	variant := Pick(ctx, subjectID, snap)
	return Result{
		Payload:      variant.Payload,
		VariantIndex: variant.Index,
		Version:      snap.version,
	}, nil
}

// Pick is the pure assignment function: targeting rules first (in variant
// order, first match wins), then weighted bucketing on the subject's
// hash. Exported so parity tests against other clients and the server can
// exercise the exact protocol without an Engine.
func Pick(ctx context.Context, subjectID string, snap *Snapshot) Variant {
	env := ruleEnv{SessionID: subjectID}
	if sc, ok := session.Current(ctx); ok {
		env.CustomerID = sc.CustomerID
		env.Metadata = sc.Metadata
		env.Tags = sc.Tags
	}

	for i := range snap.variants {
		if snap.matchRule(i, env) {
			return snap.variants[i]
		}
	}

	return snap.selectVariant(Bucket(subjectID))
}

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

// Package errors defines the error taxonomy for the Pulselab SDK.
//
// Only setup-time misconfiguration (ConfigError) is allowed to halt the
// host application. Every steady-state failure is recovered into a safe
// default by the caller: assignment failures resolve to the fallback
// payload, delivery failures drop the span.
package errors

import (
	"fmt"
	"time"
)

// ValidationError represents invalid input at a package boundary.
// Use this for malformed variant snapshots, bad weights, or empty keys.
type ValidationError struct {
	// Field identifies which input failed validation
	Field string

	// Message is the human-readable error description
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// ConfigError represents client configuration problems detected at
// initialization. This is the only fatal error in the taxonomy: it is
// surfaced once from New and never retried.
type ConfigError struct {
	// Key is the configuration key that has the problem (e.g., "api_key", "endpoint")
	Key string

	// Reason explains what's wrong with the configuration
	Reason string

	// Cause is the underlying error (e.g., keyring lookup failure)
	Cause error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("config error at %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("config error: %s", e.Reason)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// AssignmentFailureKind classifies why a variant assignment could not be
// served from the real distribution.
type AssignmentFailureKind string

const (
	// FailureUnknownKey means no configuration exists for the requested key.
	FailureUnknownKey AssignmentFailureKind = "unknown_key"

	// FailureEmptySnapshot means the configuration resolved to no variants.
	FailureEmptySnapshot AssignmentFailureKind = "empty_snapshot"

	// FailureVersionNotFound means a pinned version is not in the source.
	FailureVersionNotFound AssignmentFailureKind = "version_not_found"

	// FailureTimeout means the snapshot lookup exceeded its deadline.
	FailureTimeout AssignmentFailureKind = "timeout"
)

// AssignmentError represents a failed variant assignment. The resilient
// Assign entry point never returns it; it is visible only through the
// strict (test-facing) path.
type AssignmentError struct {
	// ConfigKey is the experiment configuration that was requested
	ConfigKey string

	// Kind classifies the failure for programmatic handling
	Kind AssignmentFailureKind

	// Cause is the underlying error (if any)
	Cause error
}

// Error implements the error interface.
func (e *AssignmentError) Error() string {
	return fmt.Sprintf("assignment failed for %s: %s", e.ConfigKey, e.Kind)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *AssignmentError) Unwrap() error {
	return e.Cause
}

// DeliveryError represents a transport or serialization failure while
// sending a span to the collector. Delivery is at-most-once: the caller
// logs at debug level, counts the drop, and moves on.
type DeliveryError struct {
	// Endpoint is the collector URL the send was addressed to
	Endpoint string

	// StatusCode is the HTTP status code (if a response was received)
	StatusCode int

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface.
func (e *DeliveryError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("span delivery to %s failed [HTTP %d]", e.Endpoint, e.StatusCode)
	}
	return fmt.Sprintf("span delivery to %s failed: %v", e.Endpoint, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *DeliveryError) Unwrap() error {
	return e.Cause
}

// TimeoutError represents operation timeouts.
// Use this when an operation exceeds its configured timeout.
type TimeoutError struct {
	// Operation describes what timed out (e.g., "snapshot lookup", "span delivery")
	Operation string

	// Duration is how long the operation ran before timing out
	Duration time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s operation timed out after %v", e.Operation, e.Duration)
}

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

package client

import (
	"os"
	"strconv"
	"time"

	"github.com/pulselab/pulselab-go/internal/configsource"
	"github.com/pulselab/pulselab-go/pkg/errors"
)

// Config configures a Client. The zero value plus FromEnv covers the
// common case; every field can also be set explicitly.
type Config struct {
	// APIKey authenticates against the collector and the configuration
	// endpoint. Resolution order: this field, then PULSELAB_API_KEY,
	// then the OS keyring.
	APIKey string

	// CollectorEndpoint is the span delivery URL. Empty disables span
	// delivery (spans are recorded and discarded).
	CollectorEndpoint string

	// LocalStorePath, when set, stores spans in a local SQLite database
	// instead of POSTing them. Takes precedence over CollectorEndpoint.
	// The special path ":memory:" keeps spans in process memory.
	LocalStorePath string

	// ConfigEndpoint is the experiment configuration URL, polled in the
	// background.
	ConfigEndpoint string

	// ConfigFile is a local YAML experiment configuration, watched for
	// changes. Mutually exclusive with ConfigEndpoint.
	ConfigFile string

	// ConfigDocument is a fixed in-process configuration. Mutually
	// exclusive with ConfigEndpoint and ConfigFile. Mostly for tests.
	ConfigDocument *configsource.Document

	// PollInterval overrides the configuration refresh cadence.
	PollInterval time.Duration

	// DeliveryTimeout overrides the per-span delivery deadline.
	DeliveryTimeout time.Duration

	// AssignTimeout overrides the snapshot lookup deadline.
	AssignTimeout time.Duration

	// SpansPerSecond rate-limits span delivery; 0 means unlimited.
	SpansPerSecond float64

	// SpanBurst is the rate limiter burst (used when SpansPerSecond > 0).
	SpanBurst int

	// DisableContentCapture starts the client with request/response
	// capture off. It can be toggled at runtime.
	DisableContentCapture bool
}

// FromEnv builds a Config from PULSELAB_* environment variables.
func FromEnv() Config {
	cfg := Config{
		APIKey:            os.Getenv("PULSELAB_API_KEY"),
		CollectorEndpoint: os.Getenv("PULSELAB_COLLECTOR_ENDPOINT"),
		LocalStorePath:    os.Getenv("PULSELAB_LOCAL_STORE"),
		ConfigEndpoint:    os.Getenv("PULSELAB_CONFIG_ENDPOINT"),
		ConfigFile:        os.Getenv("PULSELAB_CONFIG_FILE"),
	}
	if v := os.Getenv("PULSELAB_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.PollInterval = d
		}
	}
	if v := os.Getenv("PULSELAB_DISABLE_CONTENT_CAPTURE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.DisableContentCapture = b
		}
	}
	return cfg
}

// Validate rejects contradictory configurations. This is the one fatal
// surface in the SDK: everything past New degrades instead of failing.
func (c *Config) Validate() error {
	sources := 0
	if c.ConfigEndpoint != "" {
		sources++
	}
	if c.ConfigFile != "" {
		sources++
	}
	if c.ConfigDocument != nil {
		sources++
	}
	if sources > 1 {
		return &errors.ConfigError{
			Key:    "config_source",
			Reason: "at most one of ConfigEndpoint, ConfigFile and ConfigDocument may be set",
		}
	}

	if c.PollInterval < 0 {
		return &errors.ConfigError{Key: "poll_interval", Reason: "must not be negative"}
	}
	if c.SpansPerSecond < 0 {
		return &errors.ConfigError{Key: "spans_per_second", Reason: "must not be negative"}
	}
	return nil
}

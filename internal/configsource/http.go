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

package configsource

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/pulselab/pulselab-go/internal/metrics"
	"github.com/pulselab/pulselab-go/pkg/errors"
	"github.com/pulselab/pulselab-go/pkg/httpclient"
)

// DefaultPollInterval is how often the HTTP source re-fetches
// configuration when no interval is configured.
const DefaultPollInterval = 60 * time.Second

// maxDocumentSize bounds the configuration response body.
const maxDocumentSize = 4 << 20

// HTTPConfig configures an HTTP configuration source.
type HTTPConfig struct {
	// Endpoint is the full configuration URL.
	Endpoint string

	// APIKey authenticates the fetch. Optional.
	APIKey string

	// PollInterval is the background refresh cadence.
	// Default: DefaultPollInterval.
	PollInterval time.Duration

	// Logger for refresh outcomes. Default: slog.Default().
	Logger *slog.Logger
}

// HTTP polls a configuration endpoint in the background and serves
// assignments from the last good document. A failed refresh keeps the
// previous generation; the configuration plane retries, the assignment
// plane never waits.
type HTTP struct {
	store

	endpoint string
	apiKey   string
	interval time.Duration
	client   *http.Client
	logger   *slog.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHTTP creates the source and performs the initial fetch. The initial
// fetch is the one place configuration failure is fatal: a host that
// cannot load any configuration at startup should know immediately.
func NewHTTP(ctx context.Context, cfg HTTPConfig) (*HTTP, error) {
	if cfg.Endpoint == "" {
		return nil, &errors.ConfigError{Key: "endpoint", Reason: "configuration endpoint is required"}
	}

	// Config fetches are idempotent GETs off the hot path, so retries
	// are allowed here, unlike the span delivery client.
	hc := httpclient.DefaultConfig()
	hc.RetryAttempts = 3
	client, err := httpclient.New(hc)
	if err != nil {
		return nil, err
	}

	s := &HTTP{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		interval: cfg.PollInterval,
		client:   client,
		logger:   cfg.Logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	if s.interval <= 0 {
		s.interval = DefaultPollInterval
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	if err := s.refresh(ctx); err != nil {
		return nil, err
	}

	go s.pollLoop()
	return s, nil
}

// Close stops the background poll loop.
func (s *HTTP) Close() error {
	close(s.stopCh)
	<-s.doneCh
	return nil
}

func (s *HTTP) pollLoop() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.interval)
			if err := s.refresh(ctx); err != nil {
				s.logger.Warn("configuration refresh failed, serving previous generation",
					"endpoint", s.endpoint,
					"error", err.Error(),
				)
			}
			cancel()
		}
	}
}

// refresh fetches, compiles and swaps in one configuration generation.
func (s *HTTP) refresh(ctx context.Context) error {
	doc, err := s.fetch(ctx)
	if err == nil {
		var c *compiled
		if c, err = compile(doc); err == nil {
			s.swap(c)
			metrics.ConfigRefreshes.WithLabelValues(metrics.RefreshOutcomeSuccess).Inc()
			return nil
		}
	}
	metrics.ConfigRefreshes.WithLabelValues(metrics.RefreshOutcomeError).Inc()
	return err
}

func (s *HTTP) fetch(ctx context.Context) (Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint, nil)
	if err != nil {
		return Document{}, fmt.Errorf("failed to build config request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return Document{}, fmt.Errorf("config fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck
		return Document{}, fmt.Errorf("config fetch returned status %d", resp.StatusCode)
	}

	var doc Document
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxDocumentSize)).Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("failed to decode config document: %w", err)
	}
	return doc, nil
}

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

// Package client is the assembled SDK: one constructor wiring the span
// recorder, the assignment engine, prompt resolution and a configuration
// source together.
//
// Construction is the only fatal surface. After New succeeds, every
// operation degrades instead of failing: assignments fall back,
// deliveries drop, missing prompts report absent.
package client

import (
	"context"
	"io"
	"log/slog"

	"github.com/pulselab/pulselab-go/internal/configsource"
	"github.com/pulselab/pulselab-go/internal/log"
	"github.com/pulselab/pulselab-go/pkg/errors"
	"github.com/pulselab/pulselab-go/pkg/experiment"
	"github.com/pulselab/pulselab-go/pkg/prompts"
	"github.com/pulselab/pulselab-go/pkg/session"
	"github.com/pulselab/pulselab-go/pkg/telemetry"
)

// configStore is what the client needs from a configuration source.
type configStore interface {
	experiment.Source
	Prompt(key string) (configsource.PromptConfig, bool)
}

// Client is the assembled SDK facade.
type Client struct {
	recorder *telemetry.Recorder
	engine   *experiment.Engine
	store    configStore
	logger   *slog.Logger
	closers  []io.Closer
}

// New builds a client from cfg. Configuration problems (contradictory
// sources, unreachable config endpoint, unreadable config file) are
// fatal here and nowhere else.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := log.WithComponent(log.New(log.FromEnv()), "pulselab")
	apiKey := resolveAPIKey(cfg.APIKey)
	if apiKey == "" && (cfg.CollectorEndpoint != "" || cfg.ConfigEndpoint != "") {
		return nil, &errors.ConfigError{
			Key:    "api_key",
			Reason: "remote endpoints are configured but no API key was found (config, PULSELAB_API_KEY, or OS keyring)",
		}
	}

	c := &Client{logger: logger}

	sink, err := c.buildSink(cfg, apiKey)
	if err != nil {
		return nil, err
	}

	recorderOpts := []telemetry.RecorderOption{
		telemetry.WithLogger(logger),
		telemetry.WithContentCapture(!cfg.DisableContentCapture),
	}
	if cfg.DeliveryTimeout > 0 {
		recorderOpts = append(recorderOpts, telemetry.WithDeliveryTimeout(cfg.DeliveryTimeout))
	}
	if cfg.SpansPerSecond > 0 {
		burst := cfg.SpanBurst
		if burst <= 0 {
			burst = 1
		}
		recorderOpts = append(recorderOpts, telemetry.WithRateLimit(cfg.SpansPerSecond, burst))
	}
	c.recorder = telemetry.NewRecorder(sink, recorderOpts...)

	if err := c.buildStore(ctx, cfg, apiKey); err != nil {
		c.Close() //nolint:errcheck
		return nil, err
	}

	engineOpts := []experiment.Option{experiment.WithLogger(logger)}
	if cfg.AssignTimeout > 0 {
		engineOpts = append(engineOpts, experiment.WithTimeout(cfg.AssignTimeout))
	}
	c.engine = experiment.New(c.store, engineOpts...)

	return c, nil
}

func (c *Client) buildSink(cfg Config, apiKey string) (telemetry.Sink, error) {
	switch {
	case cfg.LocalStorePath != "":
		sink, err := telemetry.NewSQLiteSink(cfg.LocalStorePath)
		if err != nil {
			return nil, err
		}
		c.closers = append(c.closers, sink)
		return sink, nil
	case cfg.CollectorEndpoint != "":
		return telemetry.NewHTTPSink(cfg.CollectorEndpoint, apiKey)
	default:
		return telemetry.NewDiscardSink(), nil
	}
}

func (c *Client) buildStore(ctx context.Context, cfg Config, apiKey string) error {
	switch {
	case cfg.ConfigEndpoint != "":
		src, err := configsource.NewHTTP(ctx, configsource.HTTPConfig{
			Endpoint:     cfg.ConfigEndpoint,
			APIKey:       apiKey,
			PollInterval: cfg.PollInterval,
			Logger:       c.logger,
		})
		if err != nil {
			return err
		}
		c.closers = append(c.closers, src)
		c.store = src
	case cfg.ConfigFile != "":
		src, err := configsource.NewFile(cfg.ConfigFile, c.logger)
		if err != nil {
			return err
		}
		c.closers = append(c.closers, src)
		c.store = src
	case cfg.ConfigDocument != nil:
		src, err := configsource.NewStatic(*cfg.ConfigDocument)
		if err != nil {
			return err
		}
		c.store = src
	default:
		// No configuration wired: every assignment falls back, every
		// prompt lookup reports absent. Telemetry still works.
		src, _ := configsource.NewStatic(configsource.Document{})
		c.store = src
	}
	return nil
}

// Close releases background pollers, watchers and local stores. Spans
// already handed to the dispatcher may still be in flight; Close does
// not wait for them.
func (c *Client) Close() error {
	var firstErr error
	for _, closer := range c.closers {
		if err := closer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Recorder exposes the span recorder for hosts that need direct span
// control beyond the Call helper.
func (c *Client) Recorder() *telemetry.Recorder {
	return c.recorder
}

// Engine exposes the assignment engine.
func (c *Client) Engine() *experiment.Engine {
	return c.engine
}

// StartSession binds a new ambient session with a fresh session id and
// returns the carrying context.
func (c *Client) StartSession(ctx context.Context, configKey string) context.Context {
	return session.With(ctx, session.Context{
		ConfigKey: configKey,
		SessionID: session.NewSessionID(),
	})
}

// Assign resolves the variant for the ambient session under configKey.
// When no session is bound, a one-off subject id is minted, which keeps
// the distribution honest but forfeits stickiness; bind a session first
// for sticky assignment.
func (c *Client) Assign(ctx context.Context, configKey, fallback string, opts ...experiment.AssignOption) experiment.Result {
	subjectID := ""
	if sc, ok := session.Current(ctx); ok {
		subjectID = sc.SessionID
	}
	if subjectID == "" {
		subjectID = session.NewSessionID()
		c.logger.Debug("assignment without ambient session, stickiness lost",
			"config_key", configKey,
		)
	}
	return c.engine.Assign(ctx, configKey, subjectID, fallback, opts...)
}

// PromptResult is a resolved, rendered prompt.
type PromptResult struct {
	prompts.Prompt

	// Text is the rendered prompt text.
	Text string
}

// Prompt resolves and renders the prompt under key. The second return
// is false when the key is unknown or no configuration is loaded;
// unresolved template variables stay literal in Text.
func (c *Client) Prompt(key string, vars prompts.Vars) (PromptResult, bool) {
	pc, ok := c.store.Prompt(key)
	if !ok {
		return PromptResult{}, false
	}
	p := prompts.Prompt{Key: key, Version: pc.Version, Template: pc.Template}
	return PromptResult{Prompt: p, Text: p.Render(vars)}, true
}

// CallInfo describes one instrumented LLM call.
type CallInfo struct {
	// Name is the span name.
	Name string

	// Model is the model id the call targets.
	Model string

	// Request is the captured request payload.
	Request any

	// SpanOptions are appended to the defaults derived from this struct.
	SpanOptions []telemetry.SpanOption
}

// Call runs fn under a recorded span: the span wraps the call's trace
// identity, captures request and result (or error), and is delivered
// fire-and-forget. The call's result and error pass through untouched;
// telemetry can never alter them.
func Call[T any](ctx context.Context, c *Client, info CallInfo, fn func(context.Context) (T, error)) (T, error) {
	opts := make([]telemetry.SpanOption, 0, 1+len(info.SpanOptions))
	if info.Model != "" {
		opts = append(opts, telemetry.WithModel(info.Model))
	}
	opts = append(opts, info.SpanOptions...)

	ctx, span := c.recorder.Start(ctx, info.Name, opts...)
	result, err := fn(ctx)

	out := telemetry.Outcome{Request: info.Request, Err: err}
	if err == nil {
		out.Response = result
	}
	span.Finish(out)

	return result, err
}

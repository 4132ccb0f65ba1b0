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
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulselab/pulselab-go/internal/configsource"
	"github.com/pulselab/pulselab-go/pkg/errors"
	"github.com/pulselab/pulselab-go/pkg/prompts"
	"github.com/pulselab/pulselab-go/pkg/session"
)

func testConfigDocument() *configsource.Document {
	return &configsource.Document{
		Experiments: map[string]configsource.ExperimentConfig{
			"chat-tone": {
				Version: "v3",
				Variants: []configsource.VariantConfig{
					{Weight: 70, Payload: "formal"},
					{Weight: 30, Payload: "casual"},
				},
			},
		},
		Prompts: map[string]configsource.PromptConfig{
			"greeting": {Version: "v1", Template: "Hello {{name}}"},
		},
	}
}

func newTestClient(t *testing.T) *Client {
	t.Helper()
	c, err := New(context.Background(), Config{ConfigDocument: testConfigDocument()})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"zero value is valid", Config{}, false},
		{"single source is valid", Config{ConfigFile: "x.yaml"}, false},
		{"two sources conflict", Config{ConfigFile: "x.yaml", ConfigEndpoint: "https://cfg"}, true},
		{"negative poll interval", Config{PollInterval: -time.Second}, true},
		{"negative rate limit", Config{SpansPerSecond: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestClient_AssignIsSticky(t *testing.T) {
	c := newTestClient(t)
	ctx := c.StartSession(context.Background(), "chat-tone")

	first := c.Assign(ctx, "chat-tone", "fallback")
	require.False(t, first.Fallback)

	for i := 0; i < 20; i++ {
		again := c.Assign(ctx, "chat-tone", "fallback")
		assert.Equal(t, first.Payload, again.Payload)
		assert.Equal(t, first.VariantIndex, again.VariantIndex)
	}
}

func TestClient_AssignUnknownKeyFallsBack(t *testing.T) {
	c := newTestClient(t)
	ctx := c.StartSession(context.Background(), "chat-tone")

	got := c.Assign(ctx, "no-such-experiment", "fallback")
	assert.True(t, got.Fallback)
	assert.Equal(t, "fallback", got.Payload)
	assert.Equal(t, -1, got.VariantIndex)
}

func TestClient_AssignWithoutSessionStillResolves(t *testing.T) {
	c := newTestClient(t)
	session.Clear()

	got := c.Assign(context.Background(), "chat-tone", "fallback")
	assert.False(t, got.Fallback)
	assert.Contains(t, []string{"formal", "casual"}, got.Payload)
}

func TestClient_Prompt(t *testing.T) {
	c := newTestClient(t)

	got, ok := c.Prompt("greeting", prompts.Vars{"name": "Ada"})
	require.True(t, ok)
	assert.Equal(t, "Hello Ada", got.Text)
	assert.Equal(t, "v1", got.Version)

	_, ok = c.Prompt("missing", nil)
	assert.False(t, ok)
}

func TestClient_PromptMissingVariableStaysLiteral(t *testing.T) {
	c := newTestClient(t)

	got, ok := c.Prompt("greeting", nil)
	require.True(t, ok)
	assert.Equal(t, "Hello {{name}}", got.Text)
}

func TestCall_PassesThroughResultAndError(t *testing.T) {
	c := newTestClient(t)
	ctx := c.StartSession(context.Background(), "chat-tone")

	got, err := Call(ctx, c, CallInfo{Name: "ok call", Model: "gpt-4o"},
		func(context.Context) (string, error) {
			return "completion", nil
		})
	require.NoError(t, err)
	assert.Equal(t, "completion", got)

	wantErr := fmt.Errorf("provider down")
	_, err = Call(ctx, c, CallInfo{Name: "failing call"},
		func(context.Context) (int, error) {
			return 0, wantErr
		})
	assert.Same(t, wantErr, err)
}

func TestCall_DeliversSpanToCollector(t *testing.T) {
	spans := make(chan map[string]any, 1)
	collector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		spans <- body
		w.WriteHeader(http.StatusAccepted)
	}))
	defer collector.Close()

	c, err := New(context.Background(), Config{
		APIKey:            "test-key",
		CollectorEndpoint: collector.URL,
		ConfigDocument:    testConfigDocument(),
	})
	require.NoError(t, err)
	defer c.Close()

	ctx := c.StartSession(context.Background(), "chat-tone")
	_, err = Call(ctx, c, CallInfo{Name: "chat completion", Model: "gpt-4o", Request: map[string]any{"prompt": "hi"}},
		func(context.Context) (string, error) {
			return "hello", nil
		})
	require.NoError(t, err)

	select {
	case got := <-spans:
		assert.Equal(t, "chat completion", got["name"])
		assert.Equal(t, "gpt-4o", got["model"])
		assert.Equal(t, "chat-tone", got["config_key"])
		assert.Equal(t, "OK", got["status"])
		assert.NotEmpty(t, got["session_id"])
	case <-time.After(2 * time.Second):
		t.Fatal("span never reached the collector")
	}
}

func TestCall_NestedCallsShareTrace(t *testing.T) {
	spans := make(chan map[string]any, 2)
	collector := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		spans <- body
		w.WriteHeader(http.StatusAccepted)
	}))
	defer collector.Close()

	c, err := New(context.Background(), Config{
		APIKey:            "test-key",
		CollectorEndpoint: collector.URL,
		ConfigDocument:    testConfigDocument(),
	})
	require.NoError(t, err)
	defer c.Close()

	ctx := c.StartSession(context.Background(), "chat-tone")
	_, err = Call(ctx, c, CallInfo{Name: "outer"}, func(ctx context.Context) (string, error) {
		return Call(ctx, c, CallInfo{Name: "inner"}, func(context.Context) (string, error) {
			return "done", nil
		})
	})
	require.NoError(t, err)

	byName := make(map[string]map[string]any)
	for i := 0; i < 2; i++ {
		select {
		case got := <-spans:
			byName[got["name"].(string)] = got
		case <-time.After(2 * time.Second):
			t.Fatal("missing span")
		}
	}

	outer, inner := byName["outer"], byName["inner"]
	require.NotNil(t, outer)
	require.NotNil(t, inner)
	assert.Equal(t, outer["trace_id"], inner["trace_id"])
	assert.Equal(t, outer["span_id"], inner["parent_span_id"])
}

func TestNew_MissingCredentialsIsFatal(t *testing.T) {
	t.Setenv("PULSELAB_API_KEY", "")

	_, err := New(context.Background(), Config{CollectorEndpoint: "https://collector.example.com/v1/spans"})
	require.Error(t, err)

	var cfgErr *errors.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestNew_RejectsConflictingSources(t *testing.T) {
	_, err := New(context.Background(), Config{
		ConfigFile:     "x.yaml",
		ConfigEndpoint: "https://cfg.example.com",
	})
	assert.Error(t, err)
}

func TestNew_WithoutConfigurationDegrades(t *testing.T) {
	c, err := New(context.Background(), Config{})
	require.NoError(t, err)
	defer c.Close()

	got := c.Assign(context.Background(), "anything", "fallback")
	assert.True(t, got.Fallback)

	_, ok := c.Prompt("anything", nil)
	assert.False(t, ok)
}

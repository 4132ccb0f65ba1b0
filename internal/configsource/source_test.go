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
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulselab/pulselab-go/pkg/errors"
)

func testDocument() Document {
	return Document{
		Experiments: map[string]ExperimentConfig{
			"chat-tone": {
				Version: "v3",
				Variants: []VariantConfig{
					{Weight: 70, Payload: "formal"},
					{Weight: 30, Payload: "casual"},
				},
				History: map[string][]VariantConfig{
					"v2": {
						{Weight: 50, Payload: "formal"},
						{Weight: 50, Payload: "casual"},
					},
				},
			},
		},
		Prompts: map[string]PromptConfig{
			"greeting": {Version: "v1", Template: "Hello {{name}}"},
		},
	}
}

func TestStatic_SnapshotLookup(t *testing.T) {
	src, err := NewStatic(testDocument())
	require.NoError(t, err)

	snap, err := src.Snapshot(context.Background(), "chat-tone", "")
	require.NoError(t, err)
	assert.Equal(t, "v3", snap.Version())
	assert.Len(t, snap.Variants(), 2)
	assert.Equal(t, "formal", snap.Variants()[0].Payload)
}

func TestStatic_PinnedVersion(t *testing.T) {
	src, err := NewStatic(testDocument())
	require.NoError(t, err)

	snap, err := src.Snapshot(context.Background(), "chat-tone", "v2")
	require.NoError(t, err)
	assert.Equal(t, "v2", snap.Version())
	assert.Equal(t, uint64(50), snap.Variants()[0].Weight)
}

func TestStatic_FailureKinds(t *testing.T) {
	src, err := NewStatic(testDocument())
	require.NoError(t, err)

	tests := []struct {
		name      string
		configKey string
		version   string
		wantKind  errors.AssignmentFailureKind
	}{
		{"unknown key", "nope", "", errors.FailureUnknownKey},
		{"unknown version", "chat-tone", "v99", errors.FailureVersionNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := src.Snapshot(context.Background(), tt.configKey, tt.version)
			require.Error(t, err)
			kind, ok := errors.FailureKind(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantKind, kind)
		})
	}
}

func TestStatic_RejectsInvalidDocument(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Document)
	}{
		{"missing version", func(d *Document) {
			exp := d.Experiments["chat-tone"]
			exp.Version = ""
			d.Experiments["chat-tone"] = exp
		}},
		{"no variants", func(d *Document) {
			exp := d.Experiments["chat-tone"]
			exp.Variants = nil
			d.Experiments["chat-tone"] = exp
		}},
		{"zero weights", func(d *Document) {
			exp := d.Experiments["chat-tone"]
			exp.Variants = []VariantConfig{{Weight: 0, Payload: "a"}, {Weight: 0, Payload: "b"}}
			d.Experiments["chat-tone"] = exp
		}},
		{"bad targeting rule", func(d *Document) {
			exp := d.Experiments["chat-tone"]
			exp.Variants = []VariantConfig{{Weight: 1, Payload: "a", Rule: "((("}}
			d.Experiments["chat-tone"] = exp
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := testDocument()
			tt.mutate(&doc)
			_, err := NewStatic(doc)
			assert.Error(t, err)
		})
	}
}

func TestStatic_Prompt(t *testing.T) {
	src, err := NewStatic(testDocument())
	require.NoError(t, err)

	p, ok := src.Prompt("greeting")
	require.True(t, ok)
	assert.Equal(t, "Hello {{name}}", p.Template)

	_, ok = src.Prompt("missing")
	assert.False(t, ok)
}

func TestHTTP_InitialFetchAndPoll(t *testing.T) {
	var fetches atomic.Int32
	doc := testDocument()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		assert.Equal(t, "Bearer cfg-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewEncoder(w).Encode(doc))
	}))
	defer server.Close()

	src, err := NewHTTP(context.Background(), HTTPConfig{
		Endpoint:     server.URL,
		APIKey:       "cfg-key",
		PollInterval: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	defer src.Close()

	snap, err := src.Snapshot(context.Background(), "chat-tone", "")
	require.NoError(t, err)
	assert.Equal(t, "v3", snap.Version())

	assert.Eventually(t, func() bool { return fetches.Load() >= 2 },
		2*time.Second, 10*time.Millisecond, "background poll never fired")
}

func TestHTTP_InitialFetchFailureIsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := NewHTTP(context.Background(), HTTPConfig{Endpoint: server.URL})
	assert.Error(t, err)
}

func TestHTTP_BadRefreshKeepsPreviousGeneration(t *testing.T) {
	var fetches atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fetches.Add(1) == 1 {
			require.NoError(t, json.NewEncoder(w).Encode(testDocument()))
			return
		}
		w.Write([]byte(`{"experiments": {"chat-tone": {"version": ""}}}`)) //nolint:errcheck
	}))
	defer server.Close()

	src, err := NewHTTP(context.Background(), HTTPConfig{
		Endpoint:     server.URL,
		PollInterval: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	defer src.Close()

	require.Eventually(t, func() bool { return fetches.Load() >= 2 },
		2*time.Second, 10*time.Millisecond)

	snap, err := src.Snapshot(context.Background(), "chat-tone", "")
	require.NoError(t, err)
	assert.Equal(t, "v3", snap.Version(), "last good generation must survive a bad refresh")
}

const testYAML = `
experiments:
  chat-tone:
    version: v3
    variants:
      - weight: 70
        payload: formal
      - weight: 30
        payload: casual
prompts:
  greeting:
    version: v1
    template: "Hello {{name}}"
`

const updatedYAML = `
experiments:
  chat-tone:
    version: v4
    variants:
      - weight: 100
        payload: casual
`

func TestFile_LoadAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pulselab.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testYAML), 0o644))

	src, err := NewFile(path, nil)
	require.NoError(t, err)
	defer src.Close()

	snap, err := src.Snapshot(context.Background(), "chat-tone", "")
	require.NoError(t, err)
	assert.Equal(t, "v3", snap.Version())

	p, ok := src.Prompt("greeting")
	require.True(t, ok)
	assert.Equal(t, "Hello {{name}}", p.Template)

	require.NoError(t, os.WriteFile(path, []byte(updatedYAML), 0o644))
	assert.Eventually(t, func() bool {
		snap, err := src.Snapshot(context.Background(), "chat-tone", "")
		return err == nil && snap.Version() == "v4"
	}, 2*time.Second, 10*time.Millisecond, "file change was not picked up")
}

func TestFile_BadReloadKeepsPreviousGeneration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pulselab.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testYAML), 0o644))

	src, err := NewFile(path, nil)
	require.NoError(t, err)
	defer src.Close()

	require.NoError(t, os.WriteFile(path, []byte(":::not yaml"), 0o644))
	time.Sleep(100 * time.Millisecond)

	snap, err := src.Snapshot(context.Background(), "chat-tone", "")
	require.NoError(t, err)
	assert.Equal(t, "v3", snap.Version())
}

func TestFile_MissingFileIsFatal(t *testing.T) {
	_, err := NewFile(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	assert.Error(t, err)
}

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

package session

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_BindsAmbientSession(t *testing.T) {
	Clear()

	err := Run(context.Background(), Context{ConfigKey: "agent-a", SessionID: "s1"}, func(ctx context.Context) error {
		sc, ok := Current(ctx)
		require.True(t, ok)
		assert.Equal(t, "agent-a", sc.ConfigKey)
		assert.Equal(t, "s1", sc.SessionID)
		return nil
	})
	require.NoError(t, err)

	// Scope ends with fn; nothing leaks into the fallback slot.
	_, ok := Current(context.Background())
	assert.False(t, ok)
}

func TestRun_ReturnsErrorUnchanged(t *testing.T) {
	want := fmt.Errorf("sentinel")
	err := Run(context.Background(), Context{}, func(context.Context) error {
		return want
	})
	assert.Same(t, want, err)
}

func TestRun_Nesting(t *testing.T) {
	Clear()

	err := Run(context.Background(), Context{ConfigKey: "outer", SessionID: "a"}, func(outerCtx context.Context) error {
		inner := Run(outerCtx, Context{ConfigKey: "inner", SessionID: "b"}, func(innerCtx context.Context) error {
			sc, ok := Current(innerCtx)
			require.True(t, ok)
			assert.Equal(t, "inner", sc.ConfigKey)
			return nil
		})
		require.NoError(t, inner)

		// Control returning to the outer body observes the outer scope again.
		sc, ok := Current(outerCtx)
		require.True(t, ok)
		assert.Equal(t, "outer", sc.ConfigKey)
		return nil
	})
	require.NoError(t, err)
}

func TestSet_MutatesActiveScope(t *testing.T) {
	Clear()

	err := Run(context.Background(), Context{ConfigKey: "before", SessionID: "s"}, func(ctx context.Context) error {
		Set(ctx, "after", "s2")
		sc, _ := Current(ctx)
		assert.Equal(t, "after", sc.ConfigKey)
		assert.Equal(t, "s2", sc.SessionID)
		return nil
	})
	require.NoError(t, err)

	// The scoped Set never touched the fallback slot.
	_, ok := Current(context.Background())
	assert.False(t, ok)
}

func TestSet_FallbackSlot(t *testing.T) {
	Clear()

	Set(context.Background(), "global-key", "global-session")
	sc, ok := Current(context.Background())
	require.True(t, ok)
	assert.Equal(t, "global-key", sc.ConfigKey)

	// Overwrite wins wholesale.
	Set(context.Background(), "next-key", "next-session")
	sc, _ = Current(context.Background())
	assert.Equal(t, "next-key", sc.ConfigKey)
	assert.Equal(t, "next-session", sc.SessionID)

	Clear()
	_, ok = Current(context.Background())
	assert.False(t, ok)
}

func TestScopeShadowsFallback(t *testing.T) {
	Clear()
	defer Clear()

	Set(context.Background(), "fallback-key", "fallback-session")

	err := Run(context.Background(), Context{ConfigKey: "scoped", SessionID: "s"}, func(ctx context.Context) error {
		sc, _ := Current(ctx)
		assert.Equal(t, "scoped", sc.ConfigKey)
		return nil
	})
	require.NoError(t, err)

	sc, _ := Current(context.Background())
	assert.Equal(t, "fallback-key", sc.ConfigKey)
}

func TestWith_CopiesMutableState(t *testing.T) {
	origin := Context{
		ConfigKey: "k",
		SessionID: "s",
		Metadata:  map[string]any{"plan": "free"},
		Tags:      []string{"a"},
	}

	ctx := With(context.Background(), origin)
	SetMetadata(ctx, "plan", "pro")
	AddTags(ctx, "b")

	assert.Equal(t, "free", origin.Metadata["plan"])
	assert.Equal(t, []string{"a"}, origin.Tags)

	sc, _ := Current(ctx)
	assert.Equal(t, "pro", sc.Metadata["plan"])
	assert.Equal(t, []string{"a", "b"}, sc.Tags)
}

func TestCurrent_ReturnsSnapshot(t *testing.T) {
	ctx := With(context.Background(), Context{ConfigKey: "k", Metadata: map[string]any{"x": 1}})

	snap, _ := Current(ctx)
	snap.Metadata["x"] = 2

	again, _ := Current(ctx)
	assert.Equal(t, 1, again.Metadata["x"])
}

// TestScopeIsolation_Interleaved runs two scopes concurrently, each
// performing several staggered steps, and checks that every checkpoint
// observes only its own session.
func TestScopeIsolation_Interleaved(t *testing.T) {
	Clear()

	const trials = 50
	for trial := 0; trial < trials; trial++ {
		var wg sync.WaitGroup
		for _, name := range []string{"scope-a", "scope-b"} {
			wg.Add(1)
			go func(name string) {
				defer wg.Done()
				err := Run(context.Background(), Context{ConfigKey: name, SessionID: name + "-session"}, func(ctx context.Context) error {
					for step := 0; step < 5; step++ {
						time.Sleep(time.Duration(rand.Intn(200)) * time.Microsecond)
						sc, ok := Current(ctx)
						if !ok || sc.ConfigKey != name {
							return fmt.Errorf("step %d observed %q, want %q", step, sc.ConfigKey, name)
						}
					}
					return nil
				})
				assert.NoError(t, err)
			}(name)
		}
		wg.Wait()
	}
}

func TestNewSessionID_Unique(t *testing.T) {
	a := NewSessionID()
	b := NewSessionID()
	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

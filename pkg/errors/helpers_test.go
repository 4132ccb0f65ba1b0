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

package errors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWrap(t *testing.T) {
	assert.Nil(t, Wrap(nil, "context"))

	base := New("boom")
	wrapped := Wrap(base, "loading snapshot")
	assert.EqualError(t, wrapped, "loading snapshot: boom")
	assert.True(t, Is(wrapped, base))
}

func TestWrapf(t *testing.T) {
	base := New("boom")
	wrapped := Wrapf(base, "refreshing key %s", "checkout-model")
	assert.EqualError(t, wrapped, "refreshing key checkout-model: boom")
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, IsTimeout(&TimeoutError{Operation: "send", Duration: time.Second}))
	assert.True(t, IsTimeout(&AssignmentError{ConfigKey: "k", Kind: FailureTimeout}))
	assert.False(t, IsTimeout(&AssignmentError{ConfigKey: "k", Kind: FailureUnknownKey}))
	assert.False(t, IsTimeout(New("other")))

	// Wrapped timeouts are still timeouts.
	assert.True(t, IsTimeout(Wrap(&TimeoutError{Operation: "send", Duration: time.Second}, "outer")))
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(&ConfigError{Key: "api_key", Reason: "missing"}))
	assert.False(t, IsFatal(&DeliveryError{Endpoint: "x"}))
	assert.False(t, IsFatal(&AssignmentError{ConfigKey: "k", Kind: FailureEmptySnapshot}))
}

func TestFailureKind(t *testing.T) {
	kind, ok := FailureKind(Wrap(&AssignmentError{ConfigKey: "k", Kind: FailureEmptySnapshot}, "assign"))
	assert.True(t, ok)
	assert.Equal(t, FailureEmptySnapshot, kind)

	_, ok = FailureKind(New("boom"))
	assert.False(t, ok)
}

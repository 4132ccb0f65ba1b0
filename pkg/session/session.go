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

	"github.com/google/uuid"
)

// Context identifies the logical session a chain of LLM calls belongs to.
type Context struct {
	// ConfigKey names the experiment or agent configuration driving
	// variant assignment for this session.
	ConfigKey string

	// SessionID is the subject identity used for sticky assignment and
	// span grouping. Equal SessionIDs always bucket identically.
	SessionID string

	// CustomerID optionally identifies the end customer.
	CustomerID string

	// Metadata holds caller-supplied session attributes, also visible to
	// experiment targeting rules.
	Metadata map[string]any

	// Tags are free-form labels attached to every span in the session.
	Tags []string
}

// clone returns a deep-enough copy: the maps and slices are copied so a
// scope never shares mutable state with its origin.
func (c Context) clone() *Context {
	out := c
	if c.Metadata != nil {
		out.Metadata = make(map[string]any, len(c.Metadata))
		for k, v := range c.Metadata {
			out.Metadata[k] = v
		}
	}
	if c.Tags != nil {
		out.Tags = append([]string(nil), c.Tags...)
	}
	return &out
}

// scopeKeyType is the context key for the active session scope.
type scopeKeyType struct{}

var scopeKey = scopeKeyType{}

// fallbackSlot is the process-wide session for callers outside any Run
// scope. It has no concurrency protection: concurrent non-scoped writers
// race with last-write-wins semantics (documented simplification).
var fallbackSlot *Context

// With returns a context carrying sc as the active session scope.
// The scope holds its own copy; later mutation through Set on the derived
// context never leaks back into sc or into sibling scopes.
func With(ctx context.Context, sc Context) context.Context {
	return context.WithValue(ctx, scopeKey, sc.clone())
}

// Run executes fn with sc bound as the ambient session. Everything fn
// calls or spawns with the derived context observes sc. The error from fn
// is returned unchanged.
func Run(ctx context.Context, sc Context, fn func(context.Context) error) error {
	return fn(With(ctx, sc))
}

// activeScope returns the mutable scope bound to ctx, if any.
func activeScope(ctx context.Context) *Context {
	if ctx == nil {
		return nil
	}
	sc, _ := ctx.Value(scopeKey).(*Context)
	return sc
}

// Set records the session identity. Inside a Run scope it mutates the
// active scope; outside one it overwrites the fallback slot.
func Set(ctx context.Context, configKey, sessionID string) {
	if sc := activeScope(ctx); sc != nil {
		sc.ConfigKey = configKey
		sc.SessionID = sessionID
		return
	}
	fallbackSlot = &Context{ConfigKey: configKey, SessionID: sessionID}
}

// SetCustomer records the customer identity on the ambient session.
// A no-op when no scope is active and the fallback slot is empty.
func SetCustomer(ctx context.Context, customerID string) {
	if sc := activeScope(ctx); sc != nil {
		sc.CustomerID = customerID
		return
	}
	if fallbackSlot != nil {
		fallbackSlot.CustomerID = customerID
	}
}

// SetMetadata records one metadata entry on the ambient session.
func SetMetadata(ctx context.Context, key string, value any) {
	sc := activeScope(ctx)
	if sc == nil {
		sc = fallbackSlot
	}
	if sc == nil {
		return
	}
	if sc.Metadata == nil {
		sc.Metadata = make(map[string]any)
	}
	sc.Metadata[key] = value
}

// AddTags appends tags to the ambient session.
func AddTags(ctx context.Context, tags ...string) {
	sc := activeScope(ctx)
	if sc == nil {
		sc = fallbackSlot
	}
	if sc == nil {
		return
	}
	sc.Tags = append(sc.Tags, tags...)
}

// Current returns the ambient session: the active scope if one is bound
// to ctx, else the fallback slot. ok is false when neither exists.
// The returned value is a snapshot copy; mutating it does not affect the
// ambient state.
func Current(ctx context.Context) (Context, bool) {
	if sc := activeScope(ctx); sc != nil {
		return *sc.clone(), true
	}
	if fallbackSlot != nil {
		return *fallbackSlot.clone(), true
	}
	return Context{}, false
}

// Clear resets the fallback slot. A scope entered via Run cannot be
// externally cleared; it ends when fn returns.
func Clear() {
	fallbackSlot = nil
}

// NewSessionID generates a fresh random session identifier.
func NewSessionID() string {
	return uuid.New().String()
}

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

// Package session provides ambient session and trace identity for LLM
// telemetry, propagated through context.Context.
//
// A "session" names the logical subject a chain of LLM calls is serving:
// an experiment configuration key plus a subject id used for sticky
// variant assignment and span grouping. Code that holds a context.Context
// can read the ambient session with Current without threading identity
// parameters through every function signature:
//
//	err := session.Run(ctx, session.Context{
//	    ConfigKey: "checkout-copilot",
//	    SessionID: userID,
//	}, func(ctx context.Context) error {
//	    return handleRequest(ctx) // everything below sees the session
//	})
//
// Two concurrently active Run scopes never observe each other's session:
// isolation across interleaved goroutines comes for free from context
// immutability, the Go equivalent of task-local storage.
//
// Callers that do not participate in scoped propagation can still call
// Set with a background context; such calls land in a single process-wide
// fallback slot. The slot is deliberately unsynchronized: concurrent
// non-scoped writers race with last-write-wins semantics. That is a
// documented simplification for one-session-per-process programs, not a
// bug, and it must not be "fixed" with a lock.
//
// No operation in this package can fail. Absence of a session is a valid
// state that consumers treat as "unknown".
package session

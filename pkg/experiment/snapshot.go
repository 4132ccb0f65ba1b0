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

// Package experiment implements deterministic, weight-respecting variant
// assignment for model and prompt experiments.
//
// For a fixed subject id and a fixed snapshot, assignment is a pure,
// repeatable function: it depends on nothing but the subject's hash and
// the snapshot's ordered weights. Invalid snapshots are rejected when
// they are built, never inside the hot assignment path.
package experiment

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/pulselab/pulselab-go/pkg/errors"
)

// Variant is one weighted option within an experiment configuration.
// The payload is opaque to the engine: a model name, a prompt content
// reference, whatever the experiment is comparing.
type Variant struct {
	// Index is the variant's position in the configuration, stable across
	// refreshes of the same version.
	Index int

	// Weight is the variant's share of traffic. Must be non-negative;
	// at least one variant in a snapshot must be positive.
	Weight uint64

	// Payload is the opaque variant value.
	Payload string

	// Rule is an optional targeting expression evaluated against the
	// ambient session before weighted bucketing. A session matching a
	// rule is pinned to that variant regardless of its bucket. Rules are
	// expr-lang programs over {session_id, customer_id, metadata, tags}.
	Rule string
}

// Snapshot is an ordered, immutable set of variants with a positive
// weight sum, plus the configuration version it was resolved from.
// Snapshots are built once at the configuration boundary and shared
// read-only between assignment calls.
type Snapshot struct {
	version     string
	variants    []Variant
	rules       []*vm.Program // index-aligned with variants; nil when no rule
	totalWeight uint64
}

// NewSnapshot validates and builds a snapshot. It rejects an empty
// variant list and an all-zero weight sum, and compiles any targeting
// rules. Variant indices are assigned from position.
func NewSnapshot(version string, variants []Variant) (*Snapshot, error) {
	if len(variants) == 0 {
		return nil, &errors.ValidationError{Field: "variants", Message: "must not be empty"}
	}

	s := &Snapshot{
		version:  version,
		variants: make([]Variant, len(variants)),
		rules:    make([]*vm.Program, len(variants)),
	}

	for i, v := range variants {
		v.Index = i
		s.variants[i] = v
		s.totalWeight += v.Weight

		if v.Rule != "" {
			program, err := expr.Compile(v.Rule,
				expr.Env(ruleEnv{}),
				expr.AsBool(),
				expr.AllowUndefinedVariables(),
			)
			if err != nil {
				return nil, &errors.ValidationError{
					Field:   fmt.Sprintf("variants[%d].rule", i),
					Message: fmt.Sprintf("invalid targeting rule: %v", err),
				}
			}
			s.rules[i] = program
		}
	}

	if s.totalWeight == 0 {
		return nil, &errors.ValidationError{Field: "variants", Message: "total weight must be positive"}
	}

	return s, nil
}

// MustSnapshot builds a snapshot and panics on validation failure.
// Intended for fixed test and example configurations.
func MustSnapshot(version string, variants []Variant) *Snapshot {
	s, err := NewSnapshot(version, variants)
	if err != nil {
		panic(err)
	}
	return s
}

// Version returns the configuration version this snapshot was built from.
func (s *Snapshot) Version() string {
	return s.version
}

// Variants returns the ordered variant list. Callers must not mutate it.
func (s *Snapshot) Variants() []Variant {
	return s.variants
}

// ruleEnv is the typed environment for targeting rules.
type ruleEnv struct {
	SessionID  string         `expr:"session_id"`
	CustomerID string         `expr:"customer_id"`
	Metadata   map[string]any `expr:"metadata"`
	Tags       []string       `expr:"tags"`
}

// matchRule evaluates the variant's targeting rule against env.
// Evaluation errors count as no-match; targeting must never make the
// assignment path fail.
func (s *Snapshot) matchRule(i int, env ruleEnv) bool {
	program := s.rules[i]
	if program == nil {
		return false
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false
	}
	matched, ok := out.(bool)
	return ok && matched
}

// selectVariant maps a bucket onto a variant by walking the ordered
// variants and accumulating weight. Thresholds are the cumulative weights
// normalized to the bucketing resolution (the weights-to-R convention,
// see hash.go); the final variant's threshold is exactly Resolution, so
// every bucket lands somewhere and rounding remainders go to the last
// variant.
func (s *Snapshot) selectVariant(bucket uint64) Variant {
	var cum uint64
	for _, v := range s.variants {
		cum += v.Weight
		threshold := cum * Resolution / s.totalWeight
		if bucket < threshold {
			return v
		}
	}
	return s.variants[len(s.variants)-1]
}

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
	"sync/atomic"

	"github.com/pulselab/pulselab-go/pkg/errors"
	"github.com/pulselab/pulselab-go/pkg/experiment"
)

// compiled is one immutable, fully validated configuration generation.
// A refresh builds a fresh compiled and swaps it in whole; readers never
// observe a half-applied update.
type compiled struct {
	// experiments maps config key -> version label -> snapshot.
	experiments map[string]map[string]*experiment.Snapshot

	// latest maps config key -> current version label.
	latest map[string]string

	prompts map[string]PromptConfig
}

// compile validates doc and builds every snapshot up front, so targeting
// rule compilation errors surface at refresh time rather than on the
// assignment hot path.
func compile(doc Document) (*compiled, error) {
	if err := doc.Validate(); err != nil {
		return nil, err
	}

	c := &compiled{
		experiments: make(map[string]map[string]*experiment.Snapshot, len(doc.Experiments)),
		latest:      make(map[string]string, len(doc.Experiments)),
		prompts:     doc.Prompts,
	}

	for key, exp := range doc.Experiments {
		versions := make(map[string]*experiment.Snapshot, 1+len(exp.History))

		snap, err := compileVariants(exp.Version, exp.Variants)
		if err != nil {
			return nil, &errors.ConfigError{Key: key, Reason: "invalid variants", Cause: err}
		}
		versions[exp.Version] = snap

		for label, variants := range exp.History {
			snap, err := compileVariants(label, variants)
			if err != nil {
				return nil, &errors.ConfigError{Key: key, Reason: "invalid variants in version " + label, Cause: err}
			}
			versions[label] = snap
		}

		c.experiments[key] = versions
		c.latest[key] = exp.Version
	}

	return c, nil
}

func compileVariants(version string, configs []VariantConfig) (*experiment.Snapshot, error) {
	variants := make([]experiment.Variant, len(configs))
	for i, vc := range configs {
		variants[i] = experiment.Variant{
			Weight:  vc.Weight,
			Payload: vc.Payload,
			Rule:    vc.Rule,
		}
	}
	return experiment.NewSnapshot(version, variants)
}

// store is the shared snapshot cache embedded by every source.
type store struct {
	current atomic.Value // *compiled
}

// swap installs a new configuration generation.
func (s *store) swap(c *compiled) {
	s.current.Store(c)
}

func (s *store) load() *compiled {
	c, _ := s.current.Load().(*compiled)
	return c
}

// Snapshot implements experiment.Source. An empty version resolves the
// experiment's current version.
func (s *store) Snapshot(_ context.Context, configKey, version string) (*experiment.Snapshot, error) {
	c := s.load()
	if c == nil {
		return nil, &errors.AssignmentError{ConfigKey: configKey, Kind: errors.FailureEmptySnapshot}
	}

	versions, ok := c.experiments[configKey]
	if !ok {
		return nil, &errors.AssignmentError{ConfigKey: configKey, Kind: errors.FailureUnknownKey}
	}

	if version == "" {
		version = c.latest[configKey]
	}
	snap, ok := versions[version]
	if !ok {
		return nil, &errors.AssignmentError{ConfigKey: configKey, Kind: errors.FailureVersionNotFound}
	}
	return snap, nil
}

// Prompt returns the prompt configuration for key, or false when the
// key is unknown or no configuration has been loaded yet.
func (s *store) Prompt(key string) (PromptConfig, bool) {
	c := s.load()
	if c == nil {
		return PromptConfig{}, false
	}
	p, ok := c.prompts[key]
	return p, ok
}

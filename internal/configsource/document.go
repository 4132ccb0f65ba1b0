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

// Package configsource pulls experiment and prompt configuration from a
// backing source (static map, local file, or HTTP endpoint) into an
// atomically swapped in-memory snapshot cache. Assignment lookups always
// read from the cache; only the background refresh path touches I/O.
package configsource

import (
	"github.com/pulselab/pulselab-go/pkg/errors"
)

// Document is the external configuration shape, shared by the YAML file
// format and the HTTP endpoint's JSON body.
type Document struct {
	Experiments map[string]ExperimentConfig `yaml:"experiments" json:"experiments"`
	Prompts     map[string]PromptConfig     `yaml:"prompts" json:"prompts"`
}

// ExperimentConfig defines one experiment: its current version plus any
// still-servable older versions for pinned assignments.
type ExperimentConfig struct {
	// Version labels the current variant set.
	Version string `yaml:"version" json:"version"`

	// Variants is the current weighted variant list, in bucketing order.
	Variants []VariantConfig `yaml:"variants" json:"variants"`

	// History maps older version labels to their variant lists. Optional.
	History map[string][]VariantConfig `yaml:"history,omitempty" json:"history,omitempty"`
}

// VariantConfig is the external form of one weighted variant.
type VariantConfig struct {
	Weight  uint64 `yaml:"weight" json:"weight"`
	Payload string `yaml:"payload" json:"payload"`
	Rule    string `yaml:"rule,omitempty" json:"rule,omitempty"`
}

// PromptConfig is one versioned prompt template.
type PromptConfig struct {
	Version  string `yaml:"version" json:"version"`
	Template string `yaml:"template" json:"template"`
}

// Validate checks structural requirements the snapshot compiler cannot
// express as it goes: every experiment needs a version label and at
// least one variant.
func (d *Document) Validate() error {
	for key, exp := range d.Experiments {
		if exp.Version == "" {
			return &errors.ConfigError{Key: key, Reason: "experiment version is required"}
		}
		if len(exp.Variants) == 0 {
			return &errors.ConfigError{Key: key, Reason: "experiment has no variants"}
		}
	}
	for key, p := range d.Prompts {
		if p.Version == "" {
			return &errors.ConfigError{Key: key, Reason: "prompt version is required"}
		}
	}
	return nil
}

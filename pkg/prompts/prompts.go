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

// Package prompts renders versioned prompt templates. Templates use
// double-brace placeholders ("Hello {{name}}"); substitution is plain
// string replacement with no logic, loops or escaping, because prompt
// text goes to a model, not a browser.
package prompts

import (
	"fmt"
	"regexp"
)

// Prompt is one resolved prompt template.
type Prompt struct {
	// Key identifies the prompt.
	Key string

	// Version labels the template revision the host is serving.
	Version string

	// Template is the raw template text.
	Template string
}

// Vars are the substitution values for one render.
type Vars map[string]any

// placeholderPattern matches {{name}} with optional inner whitespace.
// Names are identifiers; anything else is left alone.
var placeholderPattern = regexp.MustCompile(`\{\{\s*([A-Za-z_][A-Za-z0-9_]*)\s*\}\}`)

// Render substitutes vars into template. A placeholder with no matching
// variable stays literal in the output: a missing variable is visible in
// the rendered prompt and in recorded spans, which beats failing the
// host's LLM call over it.
func Render(template string, vars Vars) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		value, ok := vars[name]
		if !ok {
			return match
		}
		return stringify(value)
	})
}

// Render renders the prompt's template with vars.
func (p Prompt) Render(vars Vars) string {
	return Render(p.Template, vars)
}

// Variables lists the distinct placeholder names in template, in first-
// appearance order.
func Variables(template string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range placeholderPattern.FindAllStringSubmatch(template, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

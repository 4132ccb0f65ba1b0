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

// Package redact elides oversized and content-bearing values from span
// attributes before transmission.
//
// Two fixed profiles exist and their behavior is part of the telemetry
// contract: collectors and dashboards parse the placeholders, so the
// formats below must not drift.
package redact

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Profile selects a redaction policy.
type Profile int

const (
	// ProfileFullContent is used for primary request/response capture.
	// Content survives unless it is oversized or binary; field names are
	// never inspected.
	ProfileFullContent Profile = iota

	// ProfileMetadataOnly is used for diagnostic captures of whole result
	// objects. Content-bearing field names are always elided, and the
	// string size threshold is much stricter.
	ProfileMetadataOnly
)

const (
	// fullContentMaxString is the string size limit for ProfileFullContent.
	fullContentMaxString = 10_000

	// metadataMaxString is the string size limit for ProfileMetadataOnly,
	// applied to fields that survive the denylist.
	metadataMaxString = 1_000

	// binaryPlaceholder replaces binary payloads and data:image URIs
	// under both profiles.
	binaryPlaceholder = "[binary content omitted]"
)

// contentFields is the fixed denylist of content-bearing field names for
// ProfileMetadataOnly.
var contentFields = map[string]bool{
	"text":        true,
	"content":     true,
	"message":     true,
	"messages":    true,
	"object":      true,
	"prompt":      true,
	"system":      true,
	"input":       true,
	"output":      true,
	"response":    true,
	"toolCalls":   true,
	"toolResults": true,
	"steps":       true,
	"reasoning":   true,
	"body":        true,
	"candidates":  true,
	"parts":       true,
}

// Value sanitizes v under the given profile. Arbitrary structs are
// normalized through JSON first so field names are visible to the
// denylist; values that cannot be serialized collapse to a placeholder
// rather than an error.
func Value(profile Profile, v any) any {
	return redactValue(profile, normalize(v))
}

// normalize converts v into the JSON object model (map[string]any,
// []any, string, float64, bool, nil). Maps, slices and primitives pass
// through untouched; everything else takes a marshal round-trip.
func normalize(v any) any {
	switch v.(type) {
	case nil, string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64,
		[]byte, map[string]any, []any:
		return v
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("[unserializable %T]", v)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Sprintf("[unserializable %T]", v)
	}
	return out
}

func redactValue(profile Profile, v any) any {
	switch val := v.(type) {
	case []byte:
		return binaryPlaceholder
	case string:
		return redactString(profile, val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, child := range val {
			out[k] = redactField(profile, k, child)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = redactValue(profile, child)
		}
		return out
	case nil, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return v
	default:
		// Nested values outside the JSON object model (structs inside a
		// caller-supplied map, for example) get normalized in place.
		return redactValue(profile, normalize(v))
	}
}

// redactField handles one named field. The denylist fires before the
// string-length rule and only under the metadata profile.
func redactField(profile Profile, name string, v any) any {
	if profile == ProfileMetadataOnly && contentFields[name] {
		return contentPlaceholder(normalize(v))
	}
	return redactValue(profile, v)
}

// contentPlaceholder is the type-aware placeholder for denylisted fields.
func contentPlaceholder(v any) string {
	switch val := v.(type) {
	case string:
		return fmt.Sprintf("[content omitted: %d chars]", len(val))
	case []any:
		return fmt.Sprintf("[content omitted: %d items]", len(val))
	default:
		return "[content omitted]"
	}
}

func redactString(profile Profile, s string) string {
	if strings.HasPrefix(s, "data:image/") {
		return binaryPlaceholder
	}

	limit := fullContentMaxString
	if profile == ProfileMetadataOnly {
		limit = metadataMaxString
	}
	if len(s) > limit {
		return fmt.Sprintf("[string omitted: %d chars]", len(s))
	}
	return s
}

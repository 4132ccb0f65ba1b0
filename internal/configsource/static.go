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

// Static serves a fixed configuration document. It never refreshes;
// intended for tests and for hosts that embed their experiment
// configuration at build time.
type Static struct {
	store
}

// NewStatic compiles doc and returns a source serving it forever.
func NewStatic(doc Document) (*Static, error) {
	c, err := compile(doc)
	if err != nil {
		return nil, err
	}
	s := &Static{}
	s.swap(c)
	return s, nil
}

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

package experiment

import (
	"github.com/cespare/xxhash/v2"
)

// Bucketing protocol. These three constants define the wire contract
// shared with the collector and every other Pulselab client: the same
// subject id must land in the same bucket everywhere. Changing any of
// them silently reassigns every live session, so they are versioned
// together and must only change in lockstep with the server.
const (
	// HashVersion names the digest function and normalization convention.
	// "xxh64/1" = xxHash64 over the raw subject id bytes, bucket = digest
	// mod Resolution, cumulative weights normalized to Resolution.
	HashVersion = "xxh64/1"

	// Resolution is the bucket space size. Buckets are in [0, Resolution).
	Resolution = 1_000_000
)

// Bucket maps a subject id onto its bucket. The digest is stable across
// processes, machines and call order; it need only be well-distributed,
// not adversarially resistant.
func Bucket(subjectID string) uint64 {
	return xxhash.Sum64String(subjectID) % Resolution
}

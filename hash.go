// Copyright 2024 The Cockroach Authors
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

package dhmap

import (
	"hash/maphash"

	"golang.org/x/exp/constraints"
)

// HashFunc maps a key to a slot-sized value for a table of the specified
// capacity. A Map uses two of them: the primary hash selects the first slot
// of the probe sequence and the step hash selects the distance between
// consecutive probes. Results outside of [0, capacity) are reduced modulo
// capacity, and a step that reduces to zero is treated as one.
type HashFunc[K any] func(key K, capacity int) int

// EqualFunc reports whether two keys are equal. Keys that are equal must
// produce the same primary and step hashes.
type EqualFunc[K any] func(a, b K) bool

// defaultHashers returns a primary and a step hash built on Go's runtime hash
// for comparable types. The two functions use independent seeds so that keys
// which collide on their start slot are unlikely to share a probe sequence.
func defaultHashers[K comparable]() (HashFunc[K], HashFunc[K]) {
	primarySeed, stepSeed := maphash.MakeSeed(), maphash.MakeSeed()
	primary := func(key K, capacity int) int {
		return int(maphash.Comparable(primarySeed, key) % uint64(capacity))
	}
	step := func(key K, capacity int) int {
		if capacity <= 1 {
			return 1
		}
		return 1 + int(maphash.Comparable(stepSeed, key)%uint64(capacity-1))
	}
	return primary, step
}

func defaultEqual[K comparable](a, b K) bool {
	return a == b
}

// ModuloHash is a primary hash for integer keys: key mod capacity.
func ModuloHash[K constraints.Integer](key K, capacity int) int {
	return reduceInteger(key, capacity)
}

// ModuloStep is a step hash for integer keys: 1 + key mod (capacity-1). The
// result is always in [1, capacity-1].
func ModuloStep[K constraints.Integer](key K, capacity int) int {
	if capacity <= 1 {
		return 1
	}
	return 1 + reduceInteger(key, capacity-1)
}

// reduceInteger computes key mod n in [0, n) without overflowing for
// unsigned keys above math.MaxInt64.
func reduceInteger[K constraints.Integer](key K, n int) int {
	if key < 0 {
		r := int64(key) % int64(n)
		if r < 0 {
			r += int64(n)
		}
		return int(r)
	}
	return int(uint64(key) % uint64(n))
}

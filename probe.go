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

import "fmt"

// probeSeq maintains the state for a double hashing probe sequence:
//
//	p(i) := (start + i*step) mod capacity,  i = 0 ... capacity-1
//
// The table capacity is always prime and step is normalized into
// [1, capacity-1], so step and capacity are coprime and the sequence is a
// permutation of [0, capacity). Every slot is examined exactly once which
// means that, in the worst case, probing ends after capacity steps.
type probeSeq struct {
	capacity int
	offset   int
	step     int
	index    int
}

func makeProbeSeq(start, step, capacity int) probeSeq {
	return probeSeq{
		capacity: capacity,
		offset:   reduce(start, capacity),
		step:     normalizeStep(step, capacity),
		index:    0,
	}
}

func (s probeSeq) next() probeSeq {
	s.index++
	s.offset += s.step
	if s.offset >= s.capacity {
		s.offset -= s.capacity
	}
	return s
}

// done returns true once every slot in the table has been visited.
func (s probeSeq) done() bool {
	return s.index >= s.capacity
}

func (s probeSeq) String() string {
	return fmt.Sprintf("capacity=%d offset=%d step=%d index=%d", s.capacity, s.offset, s.step, s.index)
}

// reduce maps v into [0, n).
func reduce(v, n int) int {
	v %= n
	if v < 0 {
		v += n
	}
	return v
}

// normalizeStep maps a secondary hash value into [1, n-1]. A step of zero
// would pin the probe sequence to its start slot.
func normalizeStep(step, n int) int {
	if n <= 1 {
		return 1
	}
	step = reduce(step, n)
	if step == 0 {
		step = 1
	}
	return step
}

// nextPrime returns the smallest prime >= n. Table capacities are always
// prime (or zero) which is what guarantees the full-cycle property of
// probeSeq for any step in [1, capacity-1].
func nextPrime(n int) int {
	if n <= 2 {
		return 2
	}
	if n%2 == 0 {
		n++
	}
	for !isPrime(n) {
		n += 2
	}
	return n
}

func isPrime(n int) bool {
	if n < 2 {
		return false
	}
	if n%2 == 0 {
		return n == 2
	}
	for d := 3; d*d <= n; d += 2 {
		if n%d == 0 {
			return false
		}
	}
	return true
}

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

// Stats describes the occupancy of a Map and the cost of looking up the keys
// it holds.
type Stats struct {
	// Capacity is the number of slots.
	Capacity int
	// Len is the number of live entries.
	Len int
	// Tombstones is the number of deleted slots awaiting a rehash.
	Tombstones int
	// LoadFactor is Len/Capacity.
	LoadFactor float64
	// MaxProbeLength is the largest number of slots examined to find a live
	// key. A key found in its start slot has a probe length of 1.
	MaxProbeLength int
	// MeanProbeLength is the average number of slots examined to find a live
	// key.
	MeanProbeLength float64
}

func (s Stats) String() string {
	return fmt.Sprintf("capacity=%d len=%d tombstones=%d load=%.3f probe(mean=%.3f max=%d)",
		s.Capacity, s.Len, s.Tombstones, s.LoadFactor, s.MeanProbeLength, s.MaxProbeLength)
}

// Stats walks every live entry and computes occupancy and probe length
// statistics. It runs in time proportional to the capacity times the mean
// probe length.
func (m *Map[K, V]) Stats() Stats {
	s := Stats{
		Capacity:   m.capacity,
		Len:        m.used,
		Tombstones: m.deleted,
		LoadFactor: m.LoadFactor(),
	}
	var total int
	for i := 0; i < m.capacity; i++ {
		if m.ctrls[i] != ctrlFull {
			continue
		}
		_, probes := m.lookup(m.slots[i].key)
		total += probes
		s.MaxProbeLength = max(s.MaxProbeLength, probes)
	}
	if m.used > 0 {
		s.MeanProbeLength = float64(total) / float64(m.used)
	}
	return s
}

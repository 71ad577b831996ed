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

// Iterator is a forward cursor over the live entries of a Map. It holds a
// reference to the map and a slot position, not a copy of the map's storage.
// Iterators compare equal when they are positioned at the same slot;
// comparing iterators of different maps is meaningless.
//
// An iterator is invalidated by any operation that reallocates or resets the
// map's storage: Rehash, Reserve, Clear, Swap, Close, and an insertion that
// grows the map. Using an invalidated iterator is a programming error that is
// detected (with a panic) only in builds with the invariants tag. Erase does
// not move entries, so iterators positioned at other entries stay valid.
type Iterator[K comparable, V any] struct {
	m   *Map[K, V]
	pos int
	gen uint64
}

// Begin returns an iterator positioned at the first live entry of the map,
// or End() if the map is empty.
func (m *Map[K, V]) Begin() Iterator[K, V] {
	it := Iterator[K, V]{m: m, pos: -1, gen: m.gen}
	it.Next()
	return it
}

// End returns the sentinel iterator positioned one past the last slot.
func (m *Map[K, V]) End() Iterator[K, V] {
	return Iterator[K, V]{m: m, pos: m.capacity, gen: m.gen}
}

// Next advances the iterator to the next live entry, skipping empty and
// deleted slots, or to End() if there is none.
func (it *Iterator[K, V]) Next() {
	it.check()
	ctrls := it.m.ctrls
	for it.pos++; it.pos < len(ctrls); it.pos++ {
		if ctrls[it.pos] == ctrlFull {
			return
		}
	}
	it.pos = len(ctrls)
}

// Done returns true if the iterator is positioned at End().
func (it Iterator[K, V]) Done() bool {
	return it.pos >= it.m.capacity
}

// Key returns the key of the entry the iterator is positioned at.
func (it Iterator[K, V]) Key() K {
	it.check()
	return it.m.slots[it.pos].key
}

// Value returns the value of the entry the iterator is positioned at.
func (it Iterator[K, V]) Value() V {
	it.check()
	return it.m.slots[it.pos].value
}

// ValuePtr returns a pointer to the value of the entry the iterator is
// positioned at, allowing the value to be modified in place.
func (it Iterator[K, V]) ValuePtr() *V {
	it.check()
	return &it.m.slots[it.pos].value
}

// Equal returns true if both iterators are positioned at the same slot.
func (it Iterator[K, V]) Equal(other Iterator[K, V]) bool {
	return it.pos == other.pos
}

func (it Iterator[K, V]) check() {
	if invariants && it.gen != it.m.gen {
		panic("dhmap: use of invalidated iterator")
	}
}

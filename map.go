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

// package dhmap is a Go implementation of an open-addressing hash table that
// resolves collisions with double hashing. See also:
// https://en.wikipedia.org/wiki/Double_hashing.
//
// # Double hashing
//
// A Map stores its entries by value in a single slots array with a parallel
// array of control bytes, one per slot. A control byte records whether its
// slot is empty (never used since the last rehash), full (holds a live
// entry), or deleted (a tombstone). Two hash functions are computed for
// every key: the primary hash selects the first slot to examine and the step
// hash selects the distance between consecutive slots of the probe
// sequence:
//
//	p(i) := (h1(key) + i*h2(key)) mod capacity
//
// The capacity of a Map is always a prime number and the step is normalized
// into [1, capacity-1]. The step and the capacity are therefore coprime and
// the probe sequence is a permutation of the slots: every slot is examined
// exactly once, so a lookup cannot miss a key because its probe sequence
// cycled through a subset of the table.
//
// Lookups walk the probe sequence until they find the key or an empty slot.
// Deletion marks the slot as a tombstone rather than empty, as other keys
// whose probe sequences passed through the slot while it was full must still
// be reachable. Insertion reuses the first tombstone on a key's probe
// sequence once it has verified that the key is not present further along.
// Tombstones are only reclaimed by a rehash.
//
// # Growth
//
// Before an insertion adds a new entry, the Map checks whether the ratio of
// live entries to capacity has reached the maximum load factor (0.7 by
// default) and if so rehashes into a table of (at least) twice the capacity.
// A rehash allocates new arrays, reinserts every live entry and drops every
// tombstone. When tombstones rather than live entries crowd the table, the
// Map rehashes at its current capacity to reclaim them. A rehash whose
// allocation fails leaves the Map untouched.
package dhmap

import (
	"fmt"
	"iter"
	"math"
	"strings"
	"unsafe"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	debug = false

	// DefaultCapacity is the capacity allocated by the first insertion into
	// a Map created with an initial capacity of 0.
	DefaultCapacity = 37

	// DefaultMaxLoadFactor is the load factor at which a Map grows unless
	// configured otherwise with WithMaxLoadFactor.
	DefaultMaxLoadFactor = 0.7

	ctrlEmpty   ctrl = 0
	ctrlFull    ctrl = 1
	ctrlDeleted ctrl = 2
)

// ErrKeyNotFound is returned by Map.At when the key has no live entry.
var ErrKeyNotFound = errors.New("key not found")

// Slot holds a key and value.
type Slot[K comparable, V any] struct {
	key   K
	value V
}

// Each slot in the hash table has a control byte which can have one of three
// states: empty, full and deleted. An empty slot terminates a probe sequence,
// a deleted slot (tombstone) does not.
type ctrl uint8

// Map is an unordered map from keys to values with Insert, Find, Erase and
// iteration operations. By default, a Map[K,V] uses Go's runtime hash for K
// (see hash/maphash.Comparable) and compares keys with ==, though different
// hash functions and a different equality predicate can be specified using
// the WithHash, WithStepHash and WithEqual options.
//
// A Map is NOT goroutine-safe.
type Map[K comparable, V any] struct {
	// The primary and step hash functions.
	hash HashFunc[K]
	step HashFunc[K]
	// The key equality predicate.
	equal EqualFunc[K]
	// The allocator to use for the ctrls and slots slices.
	allocator Allocator[K, V]
	logger    log.FieldLogger
	// ctrls and slots are capacity in length.
	ctrls []ctrl
	slots []Slot[K, V]
	// The total number of slots. Always 0 or prime.
	capacity int
	// The number of full slots (i.e. the number of elements in the map).
	used int
	// The number of tombstones. Tombstones are counted separately so that a
	// table crowded with tombstones is rehashed even though its live load is
	// below the growth threshold.
	deleted int
	// The ratio of used to capacity at which the map grows.
	maxLoadFactor float64
	// gen is incremented whenever storage is reallocated or reset, which
	// invalidates outstanding iterators.
	gen uint64
}

// New constructs a new Map with the specified initial capacity, rounded up to
// a prime. If initialCapacity is 0 the map will start out with zero capacity
// and will allocate DefaultCapacity slots on the first insert. The zero value
// for a Map is not usable.
func New[K comparable, V any](initialCapacity int, options ...option[K, V]) *Map[K, V] {
	hash, step := defaultHashers[K]()
	m := &Map[K, V]{
		hash:          hash,
		step:          step,
		equal:         defaultEqual[K],
		allocator:     defaultAllocator[K, V]{},
		logger:        log.StandardLogger(),
		maxLoadFactor: DefaultMaxLoadFactor,
	}

	for _, op := range options {
		op.apply(m)
	}

	if initialCapacity > 0 {
		if err := m.resize(nextPrime(initialCapacity)); err != nil {
			// The map stays lazily initialized; the first insert retries.
			m.logger.WithError(err).WithField("capacity", initialCapacity).
				Warn("dhmap: initial allocation failed")
		}
	}

	m.checkInvariants()
	return m
}

// Close closes the map, releasing any memory back to its configured
// allocator. It is unnecessary to close a map using the default allocator. It
// is invalid to use a Map after it has been closed, though Close itself is
// idempotent.
func (m *Map[K, V]) Close() {
	if m.allocator != nil {
		m.release(m.ctrls, m.slots)
	}
	m.ctrls = nil
	m.slots = nil
	m.capacity = 0
	m.used = 0
	m.deleted = 0
	m.gen++
	m.allocator = nil
}

// Insert inserts an entry into the map if no entry with the same key exists.
// It returns an iterator positioned at the entry for key and whether the
// entry was inserted. An existing entry is left untouched.
func (m *Map[K, V]) Insert(key K, value V) (Iterator[K, V], bool) {
	i, found := m.prepareInsert(key)
	if found {
		return m.iterAt(i), false
	}
	m.slots[i].value = value
	m.checkInvariants()
	return m.iterAt(i), true
}

// InsertOrAssign inserts an entry into the map, overwriting the value of an
// existing entry with the same key. The returned bool is true if a new entry
// was inserted and false if an existing value was overwritten.
func (m *Map[K, V]) InsertOrAssign(key K, value V) (Iterator[K, V], bool) {
	i, found := m.prepareInsert(key)
	m.slots[i].value = value
	m.checkInvariants()
	return m.iterAt(i), !found
}

// Put inserts an entry into the map, overwriting an existing value if an
// entry with the same key already exists.
func (m *Map[K, V]) Put(key K, value V) {
	m.InsertOrAssign(key, value)
}

// TryEmplace inserts an entry for key whose value is produced by newValue if
// no entry with the same key exists. newValue is not called when the key is
// already present.
func (m *Map[K, V]) TryEmplace(key K, newValue func() V) (Iterator[K, V], bool) {
	i, found := m.prepareInsert(key)
	if found {
		return m.iterAt(i), false
	}
	m.slots[i].value = newValue()
	m.checkInvariants()
	return m.iterAt(i), true
}

// InsertSeq inserts every key and value produced by seq that is not already
// present and returns the number of inserted entries.
func (m *Map[K, V]) InsertSeq(seq iter.Seq2[K, V]) int {
	var n int
	for k, v := range seq {
		if _, ok := m.Insert(k, v); ok {
			n++
		}
	}
	return n
}

// Ref returns a pointer to the value for key. If the key is not present, an
// entry holding the zero value is inserted first, which may grow the map.
// The pointer is invalidated by the next operation that rehashes the map.
func (m *Map[K, V]) Ref(key K) *V {
	i, found := m.prepareInsert(key)
	if !found {
		m.checkInvariants()
	}
	return &m.slots[i].value
}

// At returns a pointer to the value for key, or an error wrapping
// ErrKeyNotFound if the key is not present. At never inserts.
func (m *Map[K, V]) At(key K) (*V, error) {
	i := m.find(key)
	if i < 0 {
		return nil, errors.Wrapf(ErrKeyNotFound, "dhmap: key %v", key)
	}
	return &m.slots[i].value, nil
}

// Find returns an iterator positioned at the entry for key, or End() if the
// key is not present.
func (m *Map[K, V]) Find(key K) Iterator[K, V] {
	i := m.find(key)
	if i < 0 {
		return m.End()
	}
	return m.iterAt(i)
}

// Get retrieves the value from the map for the specified key, return ok=false
// if the key is not present.
func (m *Map[K, V]) Get(key K) (value V, ok bool) {
	i := m.find(key)
	if i < 0 {
		return value, false
	}
	return m.slots[i].value, true
}

// Contains returns true if the map holds an entry for key.
func (m *Map[K, V]) Contains(key K) bool {
	return m.find(key) >= 0
}

// Count returns the number of entries for key: 0 or 1.
func (m *Map[K, V]) Count(key K) int {
	if m.Contains(key) {
		return 1
	}
	return 0
}

// Bucket returns the index of the slot holding key, and whether the key is
// present.
func (m *Map[K, V]) Bucket(key K) (int, bool) {
	i := m.find(key)
	return i, i >= 0
}

// Erase deletes the entry corresponding to the specified key from the map,
// returning the number of entries deleted (0 or 1). The slot is marked as a
// tombstone so that probe sequences passing through it remain intact.
func (m *Map[K, V]) Erase(key K) int {
	i := m.find(key)
	if i < 0 {
		return 0
	}
	m.ctrls[i] = ctrlDeleted
	m.slots[i] = Slot[K, V]{}
	m.used--
	m.deleted++
	if debug {
		m.logger.Debugf("erase(%v): index=%d used=%d deleted=%d", key, i, m.used, m.deleted)
	}
	m.checkInvariants()
	return 1
}

// Delete deletes the entry corresponding to the specified key from the map.
// It is a noop to delete a non-existent key.
func (m *Map[K, V]) Delete(key K) {
	m.Erase(key)
}

// EraseAt deletes the entry it is positioned at and returns an iterator
// positioned at the next entry. it must belong to m and must not be End().
func (m *Map[K, V]) EraseAt(it Iterator[K, V]) Iterator[K, V] {
	if it.m != m {
		panic("dhmap: iterator belongs to a different map")
	}
	it.check()
	next := it
	next.Next()
	m.Erase(it.Key())
	return next
}

// EraseRange deletes the entries from first up to, but not including, last
// and returns an iterator positioned at last. Both iterators must belong to
// m, and last must not precede first.
func (m *Map[K, V]) EraseRange(first, last Iterator[K, V]) Iterator[K, V] {
	if last.m != m {
		panic("dhmap: iterator belongs to a different map")
	}
	last.check()
	it := first
	for !it.Equal(last) && !it.Done() {
		it = m.EraseAt(it)
	}
	return it
}

// Clear deletes every entry from the map. The capacity is retained so that a
// cleared map can be refilled to the same size without rehashing. Clear
// invalidates outstanding iterators.
func (m *Map[K, V]) Clear() {
	for i := range m.ctrls {
		m.ctrls[i] = ctrlEmpty
	}
	clear(m.slots)
	m.used = 0
	m.deleted = 0
	m.gen++
	m.checkInvariants()
}

// Swap exchanges the contents of m and other in constant time, including
// their hash functions, allocators and load factors. Swap invalidates
// outstanding iterators on both maps.
func (m *Map[K, V]) Swap(other *Map[K, V]) {
	gen := max(m.gen, other.gen) + 1
	*m, *other = *other, *m
	m.gen = gen
	other.gen = gen
}

// Merge inserts every entry of other whose key is not present in m. Entries
// already present in m keep their values. other is not modified.
func (m *Map[K, V]) Merge(other *Map[K, V]) {
	if other == m {
		return
	}
	if other.capacity > m.capacity {
		// Not fatal: the inserts below grow the map incrementally.
		if err := m.rehash(other.capacity); err != nil {
			m.logger.WithError(err).Warn("dhmap: merge pre-sizing failed")
		}
	}
	other.All(func(key K, value V) bool {
		m.Insert(key, value)
		return true
	})
}

// Clone returns a deep copy of the map with the same capacity and
// configuration. Values are copied by assignment.
func (m *Map[K, V]) Clone() (*Map[K, V], error) {
	c := &Map[K, V]{
		hash:          m.hash,
		step:          m.step,
		equal:         m.equal,
		allocator:     m.allocator,
		logger:        m.logger,
		maxLoadFactor: m.maxLoadFactor,
	}
	if err := c.resize(m.capacity); err != nil {
		return nil, err
	}
	m.All(func(key K, value V) bool {
		c.uncheckedPut(key, value)
		c.used++
		return true
	})
	c.checkInvariants()
	return c, nil
}

// All calls yield sequentially for each key and value present in the map. If
// yield returns false, range stops the iteration. The map can be mutated
// during iteration, though there is no guarantee that the mutations will be
// visible to the iteration.
//
// All conforms to iter.Seq2 and can be used directly in a range statement:
//
//	for k, v := range m.All {
//	  fmt.Printf("%v: %v\n", k, v)
//	}
func (m *Map[K, V]) All(yield func(key K, value V) bool) {
	// Snapshot the controls and slots so that iteration remains valid if the
	// map is resized during iteration.
	ctrls := m.ctrls
	slots := m.slots

	for i := range ctrls {
		if ctrls[i] == ctrlFull {
			s := &slots[i]
			if !yield(s.key, s.value) {
				return
			}
		}
	}
}

// Len returns the number of entries in the map.
func (m *Map[K, V]) Len() int {
	return m.used
}

// Empty returns true if the map holds no entries.
func (m *Map[K, V]) Empty() bool {
	return m.used == 0
}

// Capacity returns the number of slots in the map.
func (m *Map[K, V]) Capacity() int {
	return m.capacity
}

// LoadFactor returns the ratio of entries to slots.
func (m *Map[K, V]) LoadFactor() float64 {
	if m.capacity == 0 {
		return 0
	}
	return float64(m.used) / float64(m.capacity)
}

// HashFunction returns the primary hash function.
func (m *Map[K, V]) HashFunction() HashFunc[K] {
	return m.hash
}

// StepFunction returns the step hash function.
func (m *Map[K, V]) StepFunction() HashFunc[K] {
	return m.step
}

// KeyEqual returns the key equality predicate.
func (m *Map[K, V]) KeyEqual() EqualFunc[K] {
	return m.equal
}

// MaxLoadFactor returns the load factor at which the map grows.
func (m *Map[K, V]) MaxLoadFactor() float64 {
	return m.maxLoadFactor
}

// SetMaxLoadFactor changes the load factor at which the map grows. It does
// not rehash; the new threshold applies from the next insertion. It panics if
// z is not a positive finite number.
func (m *Map[K, V]) SetMaxLoadFactor(z float64) {
	if !validLoadFactor(z) {
		panic(errors.Errorf("dhmap: invalid max load factor %v", z))
	}
	m.maxLoadFactor = z
}

// Rehash rebuilds the map with at least n slots, rounded up to a prime. The
// capacity never drops below what the current entries need to stay under the
// maximum load factor; Rehash(0) on an empty map releases its storage. All
// tombstones are dropped. If the allocation fails the map is left unchanged
// and the error is returned. Rehash invalidates outstanding iterators.
func (m *Map[K, V]) Rehash(n int) error {
	return m.rehash(n)
}

// Reserve rehashes the map so that n entries fit without exceeding the
// maximum load factor, i.e. Rehash(ceil(n / MaxLoadFactor())).
func (m *Map[K, V]) Reserve(n int) error {
	return m.rehash(int(math.Ceil(float64(n) / m.maxLoadFactor)))
}

func (m *Map[K, V]) rehash(n int) error {
	target := max(n, m.minCapacity(m.used))
	if target > 0 {
		target = nextPrime(target)
	}
	return m.resize(target)
}

// minCapacity returns the smallest capacity that holds n entries below the
// maximum load factor with at least one free slot.
func (m *Map[K, V]) minCapacity(n int) int {
	if n == 0 {
		return 0
	}
	c := int(math.Ceil(float64(n) / m.maxLoadFactor))
	if c <= n {
		c = n + 1
	}
	return c
}

// overloaded returns true if inserting a new entry must first grow the map.
func (m *Map[K, V]) overloaded() bool {
	return m.used >= m.capacity ||
		float64(m.used)/float64(m.capacity) >= m.maxLoadFactor
}

// crowded returns true if consuming an empty slot would leave too few empty
// slots to terminate unsuccessful probes, because of tombstones.
func (m *Map[K, V]) crowded() bool {
	return m.deleted > 0 &&
		float64(m.used+m.deleted+1) > float64(m.capacity)*(1+m.maxLoadFactor)/2
}

// probe returns the probe sequence of key. The map must have a non-zero
// capacity.
func (m *Map[K, V]) probe(key K) probeSeq {
	return makeProbeSeq(m.hash(key, m.capacity), m.step(key, m.capacity), m.capacity)
}

// find returns the index of the full slot holding key, or -1.
func (m *Map[K, V]) find(key K) int {
	i, _ := m.lookup(key)
	return i
}

// lookup returns the index of the full slot holding key (or -1) and the
// number of slots examined.
func (m *Map[K, V]) lookup(key K) (index int, probes int) {
	if m.capacity == 0 {
		return -1, 0
	}
	seq := m.probe(key)
	if debug {
		m.logger.Debugf("find(%v): %s", key, seq)
	}

	// Tombstones behave like full slots that never match the key we're
	// looking for.
	for ; !seq.done(); seq = seq.next() {
		switch m.ctrls[seq.offset] {
		case ctrlEmpty:
			return -1, seq.index + 1
		case ctrlFull:
			if m.equal(m.slots[seq.offset].key, key) {
				return seq.offset, seq.index + 1
			}
		}
	}
	return -1, seq.index
}

// locate walks the probe sequence of key. If the key is present it returns
// the index of its slot and true. Otherwise it returns the slot an insertion
// of key should claim (the first tombstone on the sequence, else the empty
// slot that ended it, else -1 if there is none) and false.
func (m *Map[K, V]) locate(key K) (int, bool) {
	if m.capacity == 0 {
		return -1, false
	}
	seq := m.probe(key)
	if debug {
		m.logger.Debugf("locate(%v): %s", key, seq)
	}

	free := -1
	for ; !seq.done(); seq = seq.next() {
		switch m.ctrls[seq.offset] {
		case ctrlEmpty:
			if free < 0 {
				free = seq.offset
			}
			return free, false
		case ctrlDeleted:
			// Keep probing: the key may live further along the sequence.
			if free < 0 {
				free = seq.offset
			}
		case ctrlFull:
			if m.equal(m.slots[seq.offset].key, key) {
				return seq.offset, true
			}
		}
	}
	return free, false
}

// prepareInsert returns the index of the slot for key and whether the key was
// already present. If it was not, the map is grown as needed and a slot is
// claimed for key holding the zero value; the caller stores the value.
func (m *Map[K, V]) prepareInsert(key K) (int, bool) {
	if m.capacity == 0 {
		if err := m.rehash(DefaultCapacity); err != nil {
			panic(errors.Wrap(err, "dhmap: initializing table"))
		}
	}

	i, found := m.locate(key)
	if found {
		return i, true
	}

	var growErr error
	if m.overloaded() {
		if growErr = m.grow(2 * m.capacity); growErr == nil {
			i, _ = m.locate(key)
		}
	} else if i >= 0 && m.ctrls[i] == ctrlEmpty && m.crowded() {
		if m.grow(m.capacity) == nil {
			i, _ = m.locate(key)
		}
	}

	if i < 0 {
		if growErr != nil {
			panic(errors.Wrapf(growErr, "dhmap: no free slot for key %v", key))
		}
		panic(errors.Errorf("dhmap: probe sequence exhausted for key %v\n%s", key, m.debugString()))
	}

	if m.ctrls[i] == ctrlDeleted {
		m.deleted--
	}
	m.ctrls[i] = ctrlFull
	m.slots[i] = Slot[K, V]{key: key}
	m.used++
	if debug {
		m.logger.Debugf("insert(%v): index=%d used=%d deleted=%d", key, i, m.used, m.deleted)
	}
	return i, false
}

// grow rehashes the map to n slots on behalf of an insertion. A failure is
// logged and returned; the map keeps its current storage.
func (m *Map[K, V]) grow(n int) error {
	err := m.rehash(n)
	if err != nil {
		m.logger.WithError(err).WithFields(log.Fields{
			"capacity": m.capacity,
			"used":     m.used,
			"deleted":  m.deleted,
		}).Warn("dhmap: rehash failed, continuing at current capacity")
	}
	return err
}

// uncheckedPut inserts an entry known not to be in the table. Used by resize
// and Clone, which only insert into tables without tombstones.
func (m *Map[K, V]) uncheckedPut(key K, value V) int {
	// Given key, to insert it, we walk its probeSeq and place the key/value
	// into the first slot that is not full.
	seq := m.probe(key)
	for ; !seq.done(); seq = seq.next() {
		switch m.ctrls[seq.offset] {
		case ctrlFull:
			continue
		case ctrlDeleted:
			m.deleted--
		}
		m.ctrls[seq.offset] = ctrlFull
		m.slots[seq.offset] = Slot[K, V]{key: key, value: value}
		return seq.offset
	}
	panic(errors.Errorf("dhmap: no free slot for key %v\n%s", key, m.debugString()))
}

// resize allocates arrays of newCapacity slots, uncheckedPuts each live
// entry of the table into the new arrays (we know that no insertion here will
// Put an already-present key) and discards the old arrays. If the allocation
// fails, the table is left untouched.
func (m *Map[K, V]) resize(newCapacity int) error {
	var ctrls []ctrl
	var slots []Slot[K, V]
	if newCapacity > 0 {
		s, err := m.allocator.AllocSlots(newCapacity)
		if err != nil {
			return errors.Wrapf(err, "dhmap: allocating %d slots", newCapacity)
		}
		c, err := m.allocator.AllocControls(newCapacity)
		if err != nil {
			m.allocator.FreeSlots(s)
			return errors.Wrapf(err, "dhmap: allocating %d controls", newCapacity)
		}
		if len(s) != newCapacity || len(c) != newCapacity {
			m.allocator.FreeSlots(s)
			m.allocator.FreeControls(c)
			return errors.Errorf("dhmap: allocator returned %d slots and %d controls, expected %d",
				len(s), len(c), newCapacity)
		}
		slots = s
		ctrls = unsafeConvertSlice[ctrl](c)
		for i := range ctrls {
			ctrls[i] = ctrlEmpty
		}
	}

	oldCtrls, oldSlots := m.ctrls, m.slots
	oldCapacity, oldDeleted := m.capacity, m.deleted
	m.ctrls, m.slots, m.capacity = ctrls, slots, newCapacity
	m.used, m.deleted = 0, 0
	m.gen++

	for i := 0; i < oldCapacity; i++ {
		if oldCtrls[i] != ctrlFull {
			continue
		}
		s := &oldSlots[i]
		m.uncheckedPut(s.key, s.value)
		m.used++
	}

	m.release(oldCtrls, oldSlots)

	m.logger.WithFields(log.Fields{
		"from":       oldCapacity,
		"to":         newCapacity,
		"used":       m.used,
		"tombstones": oldDeleted,
	}).Debug("dhmap: rehash")

	m.checkInvariants()
	return nil
}

// release hands ctrls and slots back to the allocator.
func (m *Map[K, V]) release(ctrls []ctrl, slots []Slot[K, V]) {
	if len(slots) > 0 {
		m.allocator.FreeSlots(slots)
	}
	if len(ctrls) > 0 {
		m.allocator.FreeControls(unsafeConvertSlice[uint8](ctrls))
	}
}

func (m *Map[K, V]) iterAt(i int) Iterator[K, V] {
	return Iterator[K, V]{m: m, pos: i, gen: m.gen}
}

func (m *Map[K, V]) checkInvariants() {
	if invariants {
		if err := m.validate(); err != nil {
			panic(err)
		}
	}
}

// validate verifies the structural invariants of the table: array lengths, a
// prime capacity, the used and deleted counts, and that every full slot is
// the slot find returns for its key (which also rules out duplicate keys).
func (m *Map[K, V]) validate() error {
	if len(m.ctrls) != m.capacity || len(m.slots) != m.capacity {
		return errors.Errorf("invariant failed: capacity=%d but len(ctrls)=%d len(slots)=%d",
			m.capacity, len(m.ctrls), len(m.slots))
	}
	if m.capacity != 0 && !isPrime(m.capacity) {
		return errors.Errorf("invariant failed: capacity %d is not prime", m.capacity)
	}

	var used, deleted int
	for i := 0; i < m.capacity; i++ {
		switch c := m.ctrls[i]; c {
		case ctrlEmpty:
		case ctrlDeleted:
			deleted++
		case ctrlFull:
			s := &m.slots[i]
			if j := m.find(s.key); j != i {
				return errors.Errorf("invariant failed: slot(%d): %v found at %d\n%s",
					i, s.key, j, m.debugString())
			}
			used++
		default:
			return errors.Errorf("invariant failed: ctrl(%d): unexpected control byte %02x", i, c)
		}
	}

	if used != m.used {
		return errors.Errorf("invariant failed: found %d used slots, but used count is %d\n%s",
			used, m.used, m.debugString())
	}
	if deleted != m.deleted {
		return errors.Errorf("invariant failed: found %d deleted slots, but deleted count is %d\n%s",
			deleted, m.deleted, m.debugString())
	}
	return nil
}

func (m *Map[K, V]) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "capacity=%d  used=%d  deleted=%d\n", m.capacity, m.used, m.deleted)
	for i := 0; i < m.capacity; i++ {
		switch c := m.ctrls[i]; c {
		case ctrlEmpty:
			fmt.Fprintf(&buf, "  %4d: empty\n", i)
		case ctrlDeleted:
			fmt.Fprintf(&buf, "  %4d: deleted\n", i)
		case ctrlFull:
			s := &m.slots[i]
			seq := m.probe(s.key)
			fmt.Fprintf(&buf, "  %4d: %v [start=%d step=%d]\n", i, s.key, seq.offset, seq.step)
		default:
			fmt.Fprintf(&buf, "  %4d: [ctrl=%02x]\n", i, c)
		}
	}
	return buf.String()
}

func unsafeConvertSlice[Dest any, Src any](s []Src) []Dest {
	return unsafe.Slice((*Dest)(unsafe.Pointer(unsafe.SliceData(s))), len(s))
}

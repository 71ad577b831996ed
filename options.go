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
	"math"

	log "github.com/sirupsen/logrus"
	"golang.org/x/exp/constraints"
)

// option provide an interface to do work on Map while it is being created.
type option[K comparable, V any] interface {
	apply(m *Map[K, V])
}

type hashOption[K comparable, V any] struct {
	hash HashFunc[K]
}

func (op hashOption[K, V]) apply(m *Map[K, V]) {
	m.hash = op.hash
}

// WithHash is an option to specify the primary hash function to use for a
// Map[K,V]. The primary hash selects the first slot of a key's probe
// sequence.
func WithHash[K comparable, V any](hash HashFunc[K]) option[K, V] {
	return hashOption[K, V]{hash}
}

type stepHashOption[K comparable, V any] struct {
	step HashFunc[K]
}

func (op stepHashOption[K, V]) apply(m *Map[K, V]) {
	m.step = op.step
}

// WithStepHash is an option to specify the secondary hash function to use
// for a Map[K,V]. The secondary hash selects the distance between
// consecutive probes.
func WithStepHash[K comparable, V any](step HashFunc[K]) option[K, V] {
	return stepHashOption[K, V]{step}
}

type equalOption[K comparable, V any] struct {
	equal EqualFunc[K]
}

func (op equalOption[K, V]) apply(m *Map[K, V]) {
	m.equal = op.equal
}

// WithEqual is an option to specify the key equality predicate. When keys
// are compared with something other than ==, WithHash and WithStepHash must
// be supplied as well so that equal keys hash identically.
func WithEqual[K comparable, V any](equal EqualFunc[K]) option[K, V] {
	return equalOption[K, V]{equal}
}

// WithModuloHash is an option that hashes integer keys with ModuloHash and
// ModuloStep instead of the runtime hash. The probe sequence of a key is then
// a pure function of the key and the capacity.
func WithModuloHash[K constraints.Integer, V any]() option[K, V] {
	return moduloOption[K, V]{}
}

type moduloOption[K constraints.Integer, V any] struct{}

func (moduloOption[K, V]) apply(m *Map[K, V]) {
	m.hash = ModuloHash[K]
	m.step = ModuloStep[K]
}

type maxLoadFactorOption[K comparable, V any] struct {
	z float64
}

func (op maxLoadFactorOption[K, V]) apply(m *Map[K, V]) {
	m.SetMaxLoadFactor(op.z)
}

// WithMaxLoadFactor is an option to specify the load factor at which the
// Map[K,V] grows. It panics if z is not positive.
func WithMaxLoadFactor[K comparable, V any](z float64) option[K, V] {
	return maxLoadFactorOption[K, V]{z}
}

type loggerOption[K comparable, V any] struct {
	logger log.FieldLogger
}

func (op loggerOption[K, V]) apply(m *Map[K, V]) {
	m.logger = op.logger
}

// WithLogger is an option to specify the logger used to report rehashes and
// allocation failures. The default is logrus's standard logger.
func WithLogger[K comparable, V any](logger log.FieldLogger) option[K, V] {
	return loggerOption[K, V]{logger}
}

// Allocator specifies an interface for allocating and releasing memory used
// by a Map. The default allocator utilizes Go's builtin make() and allows the
// GC to reclaim memory.
//
// Allocation may fail. A failed allocation aborts the rehash that requested
// it and leaves the Map unchanged.
//
// If the allocator is manually managing memory and requires that slots and
// controls be freed then Map.Close must be called in order to ensure
// FreeSlots and FreeControls are called.
type Allocator[K comparable, V any] interface {
	// AllocSlots should return a slice equivalent to make([]Slot[K,V], n).
	AllocSlots(n int) ([]Slot[K, V], error)

	// AllocControls should return a slice equivalent to make([]uint8, n).
	AllocControls(n int) ([]uint8, error)

	// FreeSlots can optional release the memory associated with the supplied
	// slice that is guaranteed to have been allocated by AllocSlots.
	FreeSlots(v []Slot[K, V])

	// FreeControls can optional release the memory associated with the
	// supplied slice that is guaranteed to have been allocated by
	// AllocControls.
	FreeControls(v []uint8)
}

type defaultAllocator[K comparable, V any] struct{}

func (defaultAllocator[K, V]) AllocSlots(n int) ([]Slot[K, V], error) {
	return make([]Slot[K, V], n), nil
}

func (defaultAllocator[K, V]) AllocControls(n int) ([]uint8, error) {
	return make([]uint8, n), nil
}

func (defaultAllocator[K, V]) FreeSlots(v []Slot[K, V]) {
}

func (defaultAllocator[K, V]) FreeControls(v []uint8) {
}

type allocatorOption[K comparable, V any] struct {
	allocator Allocator[K, V]
}

func (op allocatorOption[K, V]) apply(m *Map[K, V]) {
	m.allocator = op.allocator
}

// WithAllocator is an option for specify the Allocator to use for a Map[K,V].
func WithAllocator[K comparable, V any](allocator Allocator[K, V]) option[K, V] {
	return allocatorOption[K, V]{allocator}
}

func validLoadFactor(z float64) bool {
	return z > 0 && !math.IsInf(z, 0) && !math.IsNaN(z)
}

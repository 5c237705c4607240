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

package linhash

// Option provide an interface to do work on a Table while it is being
// created.
type Option interface {
	apply(t *Table)
}

// Allocator specifies an interface for allocating and releasing the slot
// arrays used by a Table. The default allocator utilizes Go's builtin make()
// and allows the GC to reclaim memory.
//
// If the allocator is manually managing memory and requires that slots be
// freed then Table.Close must be called in order to ensure Free is called for
// the final slot array.
type Allocator interface {
	// Alloc should return a slice equivalent to make([]Entry, n). Every entry
	// of the returned slice must be empty.
	Alloc(n int) []Entry

	// Free can optionally release the memory associated with the supplied
	// slice that is guaranteed to have been allocated by Alloc.
	Free(v []Entry)
}

type defaultAllocator struct{}

func (defaultAllocator) Alloc(n int) []Entry {
	return make([]Entry, n)
}

func (defaultAllocator) Free(v []Entry) {
}

type allocatorOption struct {
	allocator Allocator
}

func (op allocatorOption) apply(t *Table) {
	t.allocator = op.allocator
}

// WithAllocator is an option for specifying the Allocator to use for a Table.
func WithAllocator(allocator Allocator) Option {
	return allocatorOption{allocator}
}

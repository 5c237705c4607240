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

// Package linhash is a Go implementation of a linear probing hash table of
// 64-bit keys, parameterized by a pluggable hash function. See also:
// https://opendatastructures.org/ods-java/5_2_LinearHashTable_Linear_.html.
//
// # Linear Probing
//
// The table is a single array of 2^dim slots. Each slot is empty, deleted (a
// tombstone left behind by Remove) or full. A key is looked up by computing
// its home slot hash(key) and walking forward, wrapping around at the end of
// the array, until either the key or an empty slot is found. Tombstones are
// stepped over: a tombstone may sit in the middle of the run of slots that a
// later key was pushed along when it was inserted, and treating it as empty
// would cut that key off from its home slot.
//
// Insertion walks the same sequence but stops at the first empty or deleted
// slot. Only filling an empty slot grows the number of occupied slots;
// reusing a tombstone does not.
//
// # Resizing
//
// Two counters drive resizing. occupied counts full and deleted slots and
// bounds probe lengths: before an insertion would push occupied above half
// of the slots, the table is rebuilt. used counts full slots only: when a
// removal leaves the table more than 7/8 empty, the table is rebuilt smaller.
// A rebuild allocates a fresh empty array of the target size and reinserts
// every live key, dropping all tombstones. After a rebuild the table is at
// most 1/2 full when growing and about 1/3 full when shrinking, so the cost
// of rebuilding is O(1) amortized per operation.
//
// Because an insertion never leaves more than half of the slots occupied,
// every probe sequence reaches an empty slot within len(slots) steps.
//
// # Hash functions
//
// The hash function is supplied by the caller as a DimHasher, which maps a
// key to the top dim bits of a pseudorandom word. Multiplicative and
// Tabulation hashers are provided, and HashFunc adapts a plain function.
package linhash

import (
	"errors"
	"fmt"
	"math/bits"
	"slices"
	"strings"
)

const debug = false

var (
	// ErrKeyAlreadyExists is returned by Table.Add when the key is already
	// present in the table.
	ErrKeyAlreadyExists = errors.New("key already exists")
	// ErrKeyNotFound is returned by Table.Remove when the key is not present
	// in the table.
	ErrKeyNotFound = errors.New("key not found")
)

// Table is an unordered set of uint64 keys stored in a linear probing hash
// table, with Add, Remove, Contains and All operations.
//
// A Table is NOT goroutine-safe. Callers sharing a Table must serialize all
// operations, including reads, since a Remove or Add may rebuild the table.
type Table struct {
	// The hash function used to compute the home slot of a key.
	hasher DimHasher
	// The allocator to use for the slots array.
	allocator Allocator
	// slots is 1<<dim in length.
	slots []Entry
	// dim is log2(len(slots)). dim >= 1.
	dim uint
	// The number of full or deleted slots.
	occupied int
	// The number of full slots (i.e. the number of keys in the table).
	used int
}

// New constructs a new, empty Table which uses hasher to place keys. The
// table starts out with 2 slots.
func New(hasher DimHasher, options ...Option) *Table {
	if hasher == nil {
		panic("linhash: nil hasher")
	}
	t := &Table{
		hasher:    hasher,
		allocator: defaultAllocator{},
	}
	for _, op := range options {
		op.apply(t)
	}

	t.slots = t.alloc(1)
	t.dim = 1
	t.checkInvariants()
	return t
}

// Close closes the table, releasing its slots back to the configured
// allocator. It is unnecessary to close a table using the default allocator.
// It is invalid to use a Table after it has been closed, though Close itself
// is idempotent.
func (t *Table) Close() {
	if t.slots != nil {
		t.allocator.Free(t.slots)
		t.slots = nil
	}
	t.occupied = 0
	t.used = 0
}

// Len returns the number of keys in the table.
func (t *Table) Len() int {
	return t.used
}

// Hash returns the home slot of key: the index at which probing for key
// starts.
func (t *Table) Hash(key uint64) int {
	if t.slots == nil {
		panic("linhash: use of closed Table")
	}
	return t.home(key, t.dim)
}

// home returns the home slot of key in a slots array of 1<<dim slots.
func (t *Table) home(key uint64, dim uint) int {
	h := t.hasher.Hash(key, dim)
	if n := uint64(1) << dim; h >= n {
		panic(fmt.Sprintf("linhash: hash(%d) = %d out of range for %d slots",
			key, h, n))
	}
	return int(h)
}

// Contains returns true if key is present in the table.
func (t *Table) Contains(key uint64) bool {
	_, ok := t.find(key)
	return ok
}

// Add inserts key into the table. If the key is already present, an error
// wrapping ErrKeyAlreadyExists is returned and the table is left unmodified.
func (t *Table) Add(key uint64) error {
	// Add is find composed with uncheckedAdd. A key that is found is
	// rejected. Otherwise we may first rebuild the table if one more occupied
	// slot would leave it more than half full, then place the key.
	if t.Contains(key) {
		return fmt.Errorf("%w: %d", ErrKeyAlreadyExists, key)
	}

	if 2*(t.occupied+1) > len(t.slots) {
		// Tombstones are dropped by the rebuild so the new table needs room
		// for the live keys plus the one being added.
		t.resize(dimFor(2 * (t.used + 1)))
	}
	t.uncheckedAdd(key)
	t.used++
	t.checkInvariants()
	return nil
}

// Remove deletes key from the table. If the key is not present, an error
// wrapping ErrKeyNotFound is returned and the table is left unmodified.
func (t *Table) Remove(key uint64) error {
	// Remove is find composed with "delete at": the slot holding the key is
	// turned into a tombstone which keeps the probe sequences running
	// through it intact.
	i, ok := t.find(key)
	if !ok {
		return fmt.Errorf("%w: %d", ErrKeyNotFound, key)
	}

	t.slots[i].remove()
	t.used--
	if debug {
		fmt.Printf("remove(%d): index=%d used=%d occupied=%d\n", key, i, t.used, t.occupied)
	}

	if t.dim > 1 && len(t.slots) > 8*t.used {
		t.resize(dimFor(3 * t.used))
	}
	t.checkInvariants()
	return nil
}

// Resize rebuilds the table with the smallest number of slots that keeps it
// at most 1/3 full, dropping all tombstones. Resizing never changes the set
// of keys in the table.
func (t *Table) Resize() {
	if t.slots == nil {
		panic("linhash: use of closed Table")
	}
	t.resize(dimFor(3 * t.used))
	t.checkInvariants()
}

// Clear removes all keys from the table, returning it to 2 slots.
func (t *Table) Clear() {
	if t.slots == nil {
		panic("linhash: use of closed Table")
	}
	slots := t.alloc(1)
	t.allocator.Free(t.slots)
	t.slots = slots
	t.dim = 1
	t.occupied = 0
	t.used = 0
	t.checkInvariants()
}

// All calls yield sequentially for each key present in the table. If yield
// returns false, iteration stops. Keys are visited in slot order, which is
// unrelated to the order in which they were added. Each call to All is an
// independent pass over the table.
//
// The table can be mutated during iteration, though there is no guarantee
// that the mutations will be visible to the iteration.
func (t *Table) All(yield func(key uint64) bool) {
	// Snapshot the slots so that iteration remains valid if the table is
	// resized during iteration.
	slots := t.slots
	for i := range slots {
		if key, ok := slots[i].Key(); ok {
			if !yield(key) {
				return
			}
		}
	}
}

// Keys returns the keys in the table in ascending order.
func (t *Table) Keys() []uint64 {
	keys := make([]uint64, 0, t.used)
	t.All(func(key uint64) bool {
		keys = append(keys, key)
		return true
	})
	slices.Sort(keys)
	return keys
}

// Equal returns true if t and o hold exactly the same keys. The capacity,
// tombstones and physical layout of the two tables are not compared, nor are
// their hash functions.
func (t *Table) Equal(o *Table) bool {
	if t.used != o.used {
		return false
	}
	equal := true
	t.All(func(key uint64) bool {
		equal = o.Contains(key)
		return equal
	})
	return equal
}

// String implements fmt.Stringer, formatting the keys in ascending order.
func (t *Table) String() string {
	var buf strings.Builder
	buf.WriteString("{")
	for i, key := range t.Keys() {
		if i > 0 {
			buf.WriteString(" ")
		}
		fmt.Fprint(&buf, key)
	}
	buf.WriteString("}")
	return buf.String()
}

// capacity returns the number of slots in the table.
func (t *Table) capacity() int {
	return len(t.slots)
}

// find returns the index of the slot holding key, or ok=false if key is not
// present.
func (t *Table) find(key uint64) (index int, ok bool) {
	index, _, ok = t.search(key)
	return index, ok
}

// search is find, additionally returning the number of slots visited.
func (t *Table) search(key uint64) (index, probes int, ok bool) {
	// Walk from the home slot until we find the key or an empty slot. A
	// deleted slot never matches and does not end the walk. The walk is
	// bounded by the number of slots so that a table with no empty slots
	// (which the resize policy never produces) cannot loop forever.
	mask := len(t.slots) - 1
	i := t.Hash(key)
	if debug {
		fmt.Printf("find(%d): home=%d slots=%d\n", key, i, len(t.slots))
	}

	for n := 0; n < len(t.slots); n++ {
		e := &t.slots[i]
		if e.ctrl == ctrlEmpty {
			if debug {
				fmt.Printf("find(not-found): index=%d probes=%d\n", i, n+1)
			}
			return 0, n + 1, false
		}
		if e.matches(key) {
			if debug {
				fmt.Printf("find(found): index=%d probes=%d\n", i, n+1)
			}
			return i, n + 1, true
		}
		i = (i + 1) & mask
	}
	return 0, len(t.slots), false
}

// uncheckedAdd inserts a key known not to be in the table into the first
// empty or deleted slot of its probe sequence. Used by Add after it has
// failed to find the key.
func (t *Table) uncheckedAdd(key uint64) {
	if t.insert(t.slots, t.dim, key) {
		t.occupied++
	}
}

// insert places key into the first empty or deleted slot of its probe
// sequence in slots, an array of 1<<dim slots. It returns true if the slot
// used was empty, i.e. if the number of occupied slots grew.
func (t *Table) insert(slots []Entry, dim uint, key uint64) (wasEmpty bool) {
	mask := len(slots) - 1
	i := t.home(key, dim)
	for n := 0; n < len(slots); n++ {
		e := &slots[i]
		if e.ctrl != ctrlFull {
			wasEmpty = e.ctrl == ctrlEmpty
			e.set(key)
			if debug {
				fmt.Printf("add(%d): index=%d probes=%d empty=%t\n", key, i, n+1, wasEmpty)
			}
			return wasEmpty
		}
		i = (i + 1) & mask
	}
	panic(fmt.Sprintf("linhash: no free slot for %d\n%s", key, t.debugString()))
}

// resize builds an empty slots array of 1<<newDim slots, inserts each key of
// the old array into it (we know that no insertion here will add an
// already-present key), then swaps it in and frees the old array. Tombstones
// are not carried over. The table is not modified until every key has been
// placed.
func (t *Table) resize(newDim uint) {
	if newDim < 1 || newDim >= bits.UintSize-1 {
		panic(fmt.Sprintf("linhash: resize to dimension %d out of range", newDim))
	}
	if debug {
		fmt.Printf("resize: slots=%d->%d used=%d occupied=%d\n",
			len(t.slots), 1<<newDim, t.used, t.occupied)
	}

	newSlots := t.alloc(newDim)
	done := false
	defer func() {
		if !done {
			t.allocator.Free(newSlots)
		}
	}()

	var occupied int
	for i := range t.slots {
		if key, ok := t.slots[i].Key(); ok {
			if t.insert(newSlots, newDim, key) {
				occupied++
			}
		}
	}
	done = true

	oldSlots := t.slots
	t.slots = newSlots
	t.dim = newDim
	t.occupied = occupied
	t.allocator.Free(oldSlots)
}

// alloc returns an empty slots array of 1<<dim slots from the allocator.
func (t *Table) alloc(dim uint) []Entry {
	n := 1 << dim
	slots := t.allocator.Alloc(n)
	if len(slots) != n {
		panic(fmt.Sprintf("linhash: allocator returned %d slots, expected %d", len(slots), n))
	}
	return slots
}

// dimFor returns the smallest dim >= 1 such that 1<<dim >= n.
func dimFor(n int) uint {
	if n <= 2 {
		return 1
	}
	return uint(bits.Len(uint(n - 1)))
}

func (t *Table) checkInvariants() {
	if invariants {
		if n := 1 << t.dim; len(t.slots) != n {
			panic(fmt.Sprintf("invariant failed: found %d slots, but dim=%d implies %d\n%s",
				len(t.slots), t.dim, n, t.debugString()))
		}

		// For every full slot, verify we can find the key. Count the number
		// of used and deleted slots.
		var used int
		var deleted int
		for i := range t.slots {
			e := &t.slots[i]
			switch e.ctrl {
			case ctrlEmpty:
			case ctrlDeleted:
				deleted++
			case ctrlFull:
				if j, ok := t.find(e.key); !ok || j != i {
					panic(fmt.Sprintf("invariant failed: slot(%d): %d not found [home=%d]\n%s",
						i, e.key, t.Hash(e.key), t.debugString()))
				}
				used++
			default:
				panic(fmt.Sprintf("invariant failed: slot(%d): unexpected ctrl %d", i, e.ctrl))
			}
		}

		if used != t.used {
			panic(fmt.Sprintf("invariant failed: found %d used slots, but used count is %d\n%s",
				used, t.used, t.debugString()))
		}
		if used+deleted != t.occupied {
			panic(fmt.Sprintf("invariant failed: found %d occupied slots, but occupied count is %d\n%s",
				used+deleted, t.occupied, t.debugString()))
		}
		if 2*t.occupied > len(t.slots) {
			panic(fmt.Sprintf("invariant failed: %d occupied slots exceeds half of %d slots\n%s",
				t.occupied, len(t.slots), t.debugString()))
		}
		if t.dim > 1 && len(t.slots) > 8*t.used {
			panic(fmt.Sprintf("invariant failed: %d slots exceeds 8 * %d used\n%s",
				len(t.slots), t.used, t.debugString()))
		}
	}
}

func (t *Table) debugString() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "dim=%d  slots=%d  used=%d  occupied=%d\n", t.dim, len(t.slots), t.used, t.occupied)
	for i := range t.slots {
		e := &t.slots[i]
		if e.ctrl == ctrlFull {
			fmt.Fprintf(&buf, "  %4d: %d [home=%d]\n", i, e.key, t.hasher.Hash(e.key, t.dim))
		} else {
			fmt.Fprintf(&buf, "  %4d: %s\n", i, e)
		}
	}
	return buf.String()
}

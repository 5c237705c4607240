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

import "fmt"

// Each slot in the table has a control state which is one of empty, deleted
// (a tombstone) or full. The zero value is empty so that a freshly allocated
// slot array needs no initialization.
//
// Probing stops at an empty slot and steps over deleted ones. Inserting may
// reuse a deleted slot.
type ctrl uint8

const (
	ctrlEmpty ctrl = iota
	ctrlDeleted
	ctrlFull
)

// Entry is a single slot of a Table. The zero Entry is empty.
type Entry struct {
	key  uint64
	ctrl ctrl
}

// IsEmpty returns true if the slot has never held a key since the last
// resize.
func (e Entry) IsEmpty() bool {
	return e.ctrl == ctrlEmpty
}

// IsTombstone returns true if the slot held a key that has been removed.
func (e Entry) IsTombstone() bool {
	return e.ctrl == ctrlDeleted
}

// Key returns the key held in the slot, or ok=false if the slot is empty or a
// tombstone.
func (e Entry) Key() (key uint64, ok bool) {
	if e.ctrl != ctrlFull {
		return 0, false
	}
	return e.key, true
}

// String implements fmt.Stringer.
func (e Entry) String() string {
	switch e.ctrl {
	case ctrlEmpty:
		return "empty"
	case ctrlDeleted:
		return "deleted"
	case ctrlFull:
		return fmt.Sprint(e.key)
	default:
		return fmt.Sprintf("ctrl(%d)", e.ctrl)
	}
}

func (e *Entry) matches(key uint64) bool {
	return e.ctrl == ctrlFull && e.key == key
}

func (e *Entry) set(key uint64) {
	e.key = key
	e.ctrl = ctrlFull
}

// remove turns a full slot into a tombstone.
func (e *Entry) remove() {
	e.key = 0
	e.ctrl = ctrlDeleted
}

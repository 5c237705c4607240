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

import (
	cryptorand "crypto/rand"
	"encoding/binary"
	"fmt"
	"math/bits"

	"golang.org/x/exp/rand"
)

// wordBits is the width of keys and hash values.
const wordBits = 64

// maxDigitBits bounds the digit width of a Tabulation hasher. A 16-bit digit
// already needs 4 rows of 64K words (2MB).
const maxDigitBits = 16

// DimHasher is the hash function capability used by a Table. Hash returns a
// word whose value is in [0, 2^dim), derived from the top dim bits of a
// pseudorandom function of key.
//
// Implementations must be pure: the same key and dim passed to the same
// hasher must always produce the same result. Calling Hash with dim outside
// of [1, 64] is a programming error and panics.
type DimHasher interface {
	Hash(key uint64, dim uint) uint64
}

// HashFunc adapts an ordinary function to the DimHasher interface. It is
// mostly useful for tests which want predictable placement.
type HashFunc func(key uint64, dim uint) uint64

// Hash implements DimHasher.
func (f HashFunc) Hash(key uint64, dim uint) uint64 {
	checkDim(dim)
	return f(key, dim)
}

// Multiplicative implements multiplicative hashing: the key is multiplied by
// a random odd word z and the top dim bits of the product (mod 2^64) are
// kept.
//
// A Multiplicative is an immutable value and may be copied freely.
type Multiplicative struct {
	z uint64
}

// NewMultiplicative returns a Multiplicative hasher whose multiplier is drawn
// from a source seeded with system entropy.
func NewMultiplicative() Multiplicative {
	return NewMultiplicativeWithSeed(entropySeed())
}

// NewMultiplicativeWithSeed returns a Multiplicative hasher whose multiplier
// is deterministically derived from seed.
func NewMultiplicativeWithSeed(seed uint64) Multiplicative {
	r := rand.New(rand.NewSource(seed))
	return Multiplicative{z: r.Uint64() | 1}
}

// Hash implements DimHasher.
func (m Multiplicative) Hash(key uint64, dim uint) uint64 {
	checkDim(dim)
	return (m.z * key) >> (wordBits - dim)
}

// String implements fmt.Stringer.
func (m Multiplicative) String() string {
	return fmt.Sprintf("multiplicative(z=%#016x)", m.z)
}

// Tabulation implements simple tabulation hashing. A key is split into
// digitBits-wide digits; digit i indexes row i of a table of random words
// and the selected words are XORed together. The top dim bits of the result
// are returned.
//
// The rows are filled at construction and never modified, so a Tabulation
// may be copied freely and copies share the rows.
type Tabulation struct {
	digitBits uint
	rows      [][]uint64
}

// NewTabulation returns a Tabulation hasher with digits of digitBits bits,
// filled from a source seeded with system entropy. digitBits must be a power
// of two no larger than 16.
func NewTabulation(digitBits uint) Tabulation {
	return NewTabulationWithSeed(digitBits, entropySeed())
}

// NewTabulationWithSeed is like NewTabulation, but fills the rows
// deterministically from seed.
func NewTabulationWithSeed(digitBits uint, seed uint64) Tabulation {
	if digitBits == 0 || digitBits > maxDigitBits || bits.OnesCount(digitBits) != 1 {
		panic(fmt.Sprintf("tabulation digit width %d must be a power of two in [1, %d]",
			digitBits, maxDigitBits))
	}

	r := rand.New(rand.NewSource(seed))
	numRows := (wordBits + digitBits - 1) / digitBits
	rows := make([][]uint64, numRows)
	for i := range rows {
		row := make([]uint64, 1<<digitBits)
		for j := range row {
			row[j] = r.Uint64()
		}
		rows[i] = row
	}
	return Tabulation{digitBits: digitBits, rows: rows}
}

// Hash implements DimHasher.
func (t Tabulation) Hash(key uint64, dim uint) uint64 {
	checkDim(dim)
	mask := uint64(1)<<t.digitBits - 1
	var h uint64
	for i, row := range t.rows {
		h ^= row[(key>>(uint(i)*t.digitBits))&mask]
	}
	return h >> (wordBits - dim)
}

// DigitBits returns the digit width the hasher was constructed with.
func (t Tabulation) DigitBits() uint {
	return t.digitBits
}

// String implements fmt.Stringer.
func (t Tabulation) String() string {
	return fmt.Sprintf("tabulation(r=%d, rows=%d)", t.digitBits, len(t.rows))
}

func checkDim(dim uint) {
	if dim < 1 || dim > wordBits {
		panic(fmt.Sprintf("hash dimension %d out of range [1, %d]", dim, wordBits))
	}
}

// entropySeed returns a seed read from the operating system's entropy
// source.
func entropySeed() uint64 {
	var buf [8]byte
	if _, err := cryptorand.Read(buf[:]); err != nil {
		panic(fmt.Sprintf("unable to read entropy: %v", err))
	}
	return binary.LittleEndian.Uint64(buf[:])
}

// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package sortedset implements a canonically-ordered set of BLS public
// keys and a Cluster variant that counts repeated insertions, used to
// address committee members by their bit position in a StepVotes bitset.
package sortedset

import (
	"bytes"
	"sort"
)

// Set is a canonically ordered (byte-lexicographic) set of keys. Keys
// are kept as their original byte slices, not converted to big.Int,
// since fixed-width keys (e.g. a 96-byte BLS public key) may carry
// leading zero bytes that a big.Int round-trip would silently drop.
type Set [][]byte

// New returns an empty Set.
func New() Set {
	return Set{}
}

// Insert a key into the set, preserving canonical order. Returns the
// ordinal index the key occupies after insertion.
func (s *Set) Insert(key []byte) int {
	idx, found := s.search(key)
	if found {
		return idx
	}

	cp := append([]byte(nil), key...)
	*s = append(*s, nil)
	copy((*s)[idx+1:], (*s)[idx:])
	(*s)[idx] = cp
	return idx
}

// IndexOf returns the ordinal index of key and whether it was already
// present in the set.
func (s Set) IndexOf(key []byte) (int, bool) {
	return s.search(key)
}

func (s Set) search(key []byte) (int, bool) {
	idx := sort.Search(len(s), func(i int) bool {
		return bytes.Compare(s[i], key) >= 0
	})
	if idx < len(s) && bytes.Equal(s[idx], key) {
		return idx, true
	}

	return idx, false
}

// Bytes returns the key at this ordinal position, exactly as inserted.
func (s Set) Bytes(i int) []byte {
	return s[i]
}

// Len is the number of distinct keys in the set.
func (s Set) Len() int {
	return len(s)
}

// Equal reports whether two sets hold the same keys in the same order.
func (s Set) Equal(other Set) bool {
	if len(s) != len(other) {
		return false
	}

	for i := range s {
		if !bytes.Equal(s[i], other[i]) {
			return false
		}
	}

	return true
}

// Cluster is a Set that additionally tracks, per key, how many times it
// has been inserted — used to accumulate sortition credits.
type Cluster struct {
	Set
	occurrences map[string]int
}

// NewCluster returns an empty Cluster.
func NewCluster() Cluster {
	return Cluster{
		Set:         New(),
		occurrences: make(map[string]int),
	}
}

// Insert a key into the cluster, incrementing its occurrence count.
func (c *Cluster) Insert(key []byte) int {
	idx := c.Set.Insert(key)
	c.occurrences[string(key)]++
	return idx
}

// Occurrences returns how many times key was inserted.
func (c Cluster) Occurrences(key []byte) int {
	return c.occurrences[string(key)]
}

// TotalOccurrences sums the occurrence counts of every key in the
// cluster — the total credit weight represented by this cluster.
func (c Cluster) TotalOccurrences() int {
	total := 0
	for _, n := range c.occurrences {
		total += n
	}

	return total
}

// Unravel expands the cluster back into a flat slice of keys, each
// repeated as many times as it was inserted.
func (c Cluster) Unravel() [][]byte {
	keys := make([][]byte, 0, c.TotalOccurrences())
	for i := 0; i < c.Set.Len(); i++ {
		key := c.Set.Bytes(i)
		for n := 0; n < c.Occurrences(key); n++ {
			keys = append(keys, key)
		}
	}

	return keys
}

// Contains reports whether key is present in the set.
func Contains(s Set, key []byte) bool {
	_, found := s.IndexOf(key)
	return found
}

// Sort is a defensive no-op retained for call-site compatibility: Set is
// kept sorted on every Insert, so an explicit sort never has work to do.
func Sort(s Set) {
	sort.Slice(s, func(i, j int) bool {
		return bytes.Compare(s[i], s[j]) < 0
	})
}

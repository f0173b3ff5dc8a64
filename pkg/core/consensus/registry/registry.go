// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package registry implements the Message Registry (spec.md §4.3,
// component C3): it parks messages that arrive ahead of the Round
// Driver's cursor, and drains them back out in FIFO order once the
// driver catches up to their (round, iteration, step).
package registry

import (
	"sync"

	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/header"
)

// DefaultHorizon is H_iter: how many iterations ahead of the current
// cursor the registry will still park a message, per spec.md §4.3's
// example value.
const DefaultHorizon = 10

// DefaultBucketCapacity bounds how many messages one (round, iteration,
// step) bucket holds before the oldest is dropped (spec.md §4.3).
const DefaultBucketCapacity = 64

// DefaultRoundCapacity bounds the total number of parked messages for
// one round, across every bucket.
const DefaultRoundCapacity = 1024

// Cursor is the Round Driver's position: everything strictly behind it
// is stale, everything at it is delivered directly, everything ahead
// of it (within the horizon) is parked here.
type Cursor struct {
	Round     uint64
	Iteration uint8
	Step      header.StepName
}

// Less reports whether c is strictly behind other.
func (c Cursor) Less(other Cursor) bool {
	if c.Round != other.Round {
		return c.Round < other.Round
	}

	if c.Iteration != other.Iteration {
		return c.Iteration < other.Iteration
	}

	return c.Step < other.Step
}

// Equal reports whether c and other address the same position.
func (c Cursor) Equal(other Cursor) bool {
	return c.Round == other.Round && c.Iteration == other.Iteration && c.Step == other.Step
}

// Entry is a parked message: its routing cursor and an opaque payload,
// kept as `interface{}` since the registry has no reason to know which
// wire message type it parked.
type Entry struct {
	Cursor  Cursor
	Payload interface{}
}

// Registry parks future messages keyed by cursor, bounded per-bucket
// and per-round, guarded by a single mutex held only for O(1)
// enqueue/dequeue (spec.md §5: "accesses are guarded by a mutex held
// only for O(1) enqueue/dequeue operations").
type Registry struct {
	mu             sync.Mutex
	horizon        uint8
	bucketCap      int
	roundCap       int
	buckets        map[Cursor][]Entry
	roundTotal     int
	currentRound   uint64
}

// New returns an empty Registry with the given horizon and capacity
// bounds.
func New(horizon uint8, bucketCap, roundCap int) *Registry {
	return &Registry{
		horizon:   horizon,
		bucketCap: bucketCap,
		roundCap:  roundCap,
		buckets:   make(map[Cursor][]Entry),
	}
}

// NewDefault returns a Registry configured with the spec's example
// bounds.
func NewDefault() *Registry {
	return New(DefaultHorizon, DefaultBucketCapacity, DefaultRoundCapacity)
}

// Park attempts to store payload for cursor relative to current.
// Returns false (and does not store) if cursor is stale (behind or
// equal to current — equal-cursor messages are the active step's
// direct responsibility, not the registry's) or beyond the horizon.
func (r *Registry) Park(current, cursor Cursor, payload interface{}) bool {
	if !current.Less(cursor) {
		return false
	}

	if cursor.Round != current.Round {
		return false
	}

	if cursor.Iteration > current.Iteration+r.horizon {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if current.Round != r.currentRound {
		r.resetLocked(current.Round)
	}

	bucket := r.buckets[cursor]
	if len(bucket) >= r.bucketCap {
		bucket = bucket[1:]
		r.roundTotal--
	}

	if r.roundTotal >= r.roundCap {
		return false
	}

	bucket = append(bucket, Entry{Cursor: cursor, Payload: payload})
	r.buckets[cursor] = bucket
	r.roundTotal++

	return true
}

// Drain removes and returns every parked entry at exactly cursor, in
// FIFO arrival order — called when the driver's cursor advances to
// cursor.
func (r *Registry) Drain(cursor Cursor) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := r.buckets[cursor]
	delete(r.buckets, cursor)
	r.roundTotal -= len(entries)

	return entries
}

// Reset clears every parked entry and sets the round the registry is
// now tracking — called when the driver moves to a new round, since
// every prior round's parked messages are necessarily stale.
func (r *Registry) Reset(round uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.resetLocked(round)
}

func (r *Registry) resetLocked(round uint64) {
	r.buckets = make(map[Cursor][]Entry)
	r.roundTotal = 0
	r.currentRound = round
}

// Len reports how many entries are currently parked, across all
// buckets — for diagnostics/metrics only.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.roundTotal
}

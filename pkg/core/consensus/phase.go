// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package consensus

import (
	"context"

	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/header"
	"github.com/dusk-network/dusk-consensus/pkg/p2p/wire/message"
)

// InternalPacket is whatever one step hands the next as it returns —
// the Proposal step's candidate block for Validation, Validation's
// ValidationResult for Ratification. Kept as `interface{}`, exactly the
// teacher's `consensus.InternalPacket` contract, since the Iteration
// Controller never interprets it itself.
type InternalPacket interface{}

// PhaseFn is a suspended step, resumable by Run. Each step's Run
// returns the next step's PhaseFn (continuation-passing), or nil when
// the iteration ends (decision reached, or external cancellation).
type PhaseFn func(ctx context.Context, queue *Queue, evChan chan message.Message, r RoundUpdate, iteration uint8) (PhaseFn, error)

// Phase is one of the three Step Executors (spec.md §4.5), generalized
// from the teacher's two-phase Selection/Reduction cycle to
// Proposal/Validation/Ratification.
type Phase interface {
	// Fn stashes the previous step's output and returns this step's Run
	// method, ready to be invoked by the Iteration Controller.
	Fn(prev InternalPacket) PhaseFn
}

// Queue buffers inbound messages that arrived ahead of the active
// step, addressed by (round, iteration, step) — the Iteration
// Controller's view onto the shared registry.Registry (spec.md §4.3),
// reached through GetEvents/PutEvent instead of the registry's own
// Cursor-typed API so step executors don't need to import it directly.
type Queue struct {
	get func(round uint64, iteration uint8, step header.StepName) []message.Message
	put func(round uint64, iteration uint8, step header.StepName, msg message.Message) bool
}

// NewQueue builds a Queue from the registry accessors the Round Driver
// wires it with.
func NewQueue(
	get func(round uint64, iteration uint8, step header.StepName) []message.Message,
	put func(round uint64, iteration uint8, step header.StepName, msg message.Message) bool,
) *Queue {
	return &Queue{get: get, put: put}
}

// GetEvents drains every message parked for (round, iteration, step),
// in FIFO arrival order — called once when a step starts, to pick up
// anything the registry collected while an earlier step was running.
func (q *Queue) GetEvents(round uint64, iteration uint8, step header.StepName) []message.Message {
	if q == nil || q.get == nil {
		return nil
	}

	return q.get(round, iteration, step)
}

// PutEvent parks msg for later delivery at (round, iteration, step).
// Reports whether it was accepted (the registry may reject a stale or
// out-of-horizon cursor).
func (q *Queue) PutEvent(round uint64, iteration uint8, step header.StepName, msg message.Message) bool {
	if q == nil || q.put == nil {
		return false
	}

	return q.put(round, iteration, step, msg)
}

// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package topics enumerates the single-byte message discriminators
// carried on the consensus wire header, and the internal (non-wire)
// topics used to route messages between the Round Driver and its
// Step Executors.
package topics

// Topic identifies the kind of payload a Message carries.
type Topic uint8

// Consensus wire topics, per spec.md §6.
const (
	// Candidate carries a generator's proposed block for an iteration.
	Candidate Topic = iota + 1
	// Validation carries a single Validation-step vote.
	Validation
	// Ratification carries a single Ratification-step vote.
	Ratification
	// Quorum carries a fully-aggregated Attestation for an iteration,
	// either Success(Valid) or a Fail outcome.
	Quorum

	// GetCandidate requests a candidate block by hash from a peer. No
	// step of the core acts on it; the Round Driver routes it like any
	// other message and the steps skip it by topic.
	GetCandidate
	// Inventory advertises available candidate blocks; forwarded as-is.
	Inventory
)

// internal (non-wire) topics used for component wiring within a single
// node — never serialized, never sent to a peer.
const (
	// Unused keeps the internal range disjoint from the wire topics
	// above so a stray cast never aliases a real wire value.
	_ Topic = iota + 100
	// StepVotesInternal is a reserved internal topic. No Step Executor
	// publishes it: each step hands its aggregated StepVotes to the next
	// through the Phase chain instead.
	StepVotesInternal
)

// String renders a human-readable topic name for logging.
func (t Topic) String() string {
	switch t {
	case Candidate:
		return "Candidate"
	case Validation:
		return "Validation"
	case Ratification:
		return "Ratification"
	case Quorum:
		return "Quorum"
	case GetCandidate:
		return "GetCandidate"
	case Inventory:
		return "Inventory"
	case StepVotesInternal:
		return "StepVotesInternal"
	default:
		return "Unknown"
	}
}

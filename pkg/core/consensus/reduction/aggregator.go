// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package reduction holds the vote-aggregation logic shared by the
// Validation and Ratification step executors (spec.md §4.5.2, §4.5.3):
// both collect inbound votes into a per-distinct-vote StepVotes and
// early-terminate once any one reaches the committee's super-majority.
// Adapted from the teacher's `reduction/firststep.aggregator` (keyed by
// block hash, early-terminating on its first quorum-crossing vote),
// generalized here to key by the full tagged-union Vote rather than
// just its hash, since a step's distinct votes include NoCandidate/
// Invalid/NoQuorum as well as Valid(hash).
package reduction

import (
	"fmt"
	"sync"

	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/committee"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/header"
	"github.com/dusk-network/dusk-consensus/pkg/p2p/wire/message"
	"github.com/dusk-network/dusk-crypto/bls"
)

// Result is what Aggregator.Add returns once some vote has reached
// quorum: the winning vote and the StepVotes that certify it.
type Result struct {
	Vote      message.Vote
	StepVotes *message.StepVotes
}

// Aggregator collects committee votes for one step, keyed by the
// distinct vote they cast, until one crosses the committee's
// super-majority threshold.
type Aggregator struct {
	mu        sync.Mutex
	committee *committee.Committee
	topic     uint8
	round     uint64
	iteration uint8
	step      header.StepName

	votes    map[string]*message.StepVotes
	voteByID map[string]message.Vote
	done     bool
}

// NewAggregator returns an Aggregator for one step's committee.
func NewAggregator(c *committee.Committee, topic uint8, round uint64, iteration uint8, step header.StepName) *Aggregator {
	return &Aggregator{
		committee: c,
		topic:     topic,
		round:     round,
		iteration: iteration,
		step:      step,
		votes:     make(map[string]*message.StepVotes),
		voteByID:  make(map[string]message.Vote),
	}
}

func voteKey(v message.Vote) string {
	return fmt.Sprintf("%d:%x", v.Kind, v.BlockHash())
}

// Add collects one committee member's vote and signature. The
// signature is verified against the sender's own key *before* it is
// aggregated into the running StepVotes, so a forged or mis-signed
// vote is rejected outright rather than corrupting an aggregate that
// has already accepted good contributions. Returns a non-nil *Result
// once some vote's credits cross the committee's quorum threshold;
// further calls after that are no-ops (the step has already closed).
func (a *Aggregator) Add(sender, signature []byte, vote message.Vote) (*Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.done {
		return nil, nil
	}

	bit, ok := a.committee.BitFor(sender)
	if !ok {
		return nil, fmt.Errorf("reduction: sender is not a committee member")
	}

	pk, err := bls.UnmarshalPk(sender)
	if err != nil {
		return nil, fmt.Errorf("reduction: unmarshal sender key: %w", err)
	}

	sig, err := bls.UnmarshalSignature(signature)
	if err != nil {
		return nil, fmt.Errorf("reduction: unmarshal vote signature: %w", err)
	}

	if err := header.VerifySignatures(a.topic, a.round, a.iteration, a.step, vote.BlockHash(), uint8(vote.Kind), bls.NewApk(pk), sig); err != nil {
		return nil, fmt.Errorf("reduction: vote signature invalid: %w", err)
	}

	k := voteKey(vote)
	sv, found := a.votes[k]
	if !found {
		sv = message.NewStepVotes()
		a.votes[k] = sv
		a.voteByID[k] = vote
	}

	if err := sv.Add(signature, sender, bit); err != nil {
		return nil, fmt.Errorf("reduction: aggregate vote: %w", err)
	}

	if a.committee.CreditsForBits(sv.Bitset) >= a.committee.QuorumThreshold() {
		a.done = true
		return &Result{Vote: vote, StepVotes: sv}, nil
	}

	return nil, nil
}

// Done reports whether this Aggregator has already closed on a quorum.
func (a *Aggregator) Done() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.done
}

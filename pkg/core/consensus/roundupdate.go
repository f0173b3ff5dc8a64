// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package consensus

import (
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/candidate"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/committee"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/key"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/user"
	"github.com/dusk-network/dusk-consensus/pkg/p2p/wire/message"
)

// RoundUpdate is everything the Round Driver hands to every iteration
// it runs: the provisioner set, the previous block's identity, and the
// local node's keys (spec.md §4.7's "Inputs").
type RoundUpdate struct {
	Round uint64
	Keys  key.Keys
	P     *user.Provisioners
	Seed  []byte
	Sizes committee.Sizes

	PrevBlockHash   []byte
	PrevBlockHeight uint64

	// PrevBlockHeader is the full header of the block this round
	// extends, consulted for its StateHash during state-transition
	// verification.
	PrevBlockHeader *candidate.Header

	// PrevBlockCert is the attestation that finalized PrevBlockHeader,
	// carried forward into this round's candidate as its own
	// PrevBlockAttestation field.
	PrevBlockCert *message.Attestation

	Timeouts *Timeouts
}

// CommitteeSet derives the three per-step committees for one iteration.
// Nothing is cached: every call re-runs sortition for all three steps,
// and the steps of one iteration each call it for themselves.
func (r RoundUpdate) CommitteeSet(iteration uint8, sizes committee.Sizes) *committee.Set {
	return committee.ExtractSet(r.P, r.Seed, r.Round, iteration, sizes.Proposal, sizes.Validation, sizes.Ratification)
}

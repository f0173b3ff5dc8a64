// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package quorum

import (
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/user"
	"github.com/dusk-network/dusk-consensus/pkg/p2p/wire/message"
	"github.com/dusk-network/dusk-consensus/pkg/p2p/wire/topics"
)

// Collector is the Quorum Collector (spec.md §4.8): a concurrent
// consumer of the same inbound stream the Round Driver dispatches,
// watching for a verified Success(Valid(h)) attestation for any
// iteration of the current round so a lagging node can adopt a block
// decided by faster peers without completing every intermediate step
// itself.
type Collector struct {
	p       *user.Provisioners
	seed    []byte
	round   uint64
	sizes   Sizes
	decided chan *message.Attestation
}

// NewCollector returns a Collector watching round for a decision.
func NewCollector(p *user.Provisioners, seed []byte, round uint64, sizes Sizes) *Collector {
	return &Collector{p: p, seed: seed, round: round, sizes: sizes, decided: make(chan *message.Attestation, 1)}
}

// Feed inspects one inbound message. If it is a Quorum message for
// this round carrying a verified Success(Valid(h)) attestation, it
// publishes the attestation on Decided and reports true.
func (c *Collector) Feed(msg message.Message) bool {
	if msg.Topic != topics.Quorum || msg.Header.Round != c.round {
		return false
	}

	qm, ok := msg.Payload.(message.QuorumMessage)
	if !ok || qm.Attestation == nil || !qm.Attestation.Result.IsSuccess() {
		return false
	}

	if _, err := Verify(qm.Attestation, c.round, msg.Header.Iteration, c.seed, c.p, qm.Attestation.Result, c.sizes); err != nil {
		return false
	}

	select {
	case c.decided <- qm.Attestation:
	default:
	}

	return true
}

// Decided reports the first verified decision this Collector observes
// for its round.
func (c *Collector) Decided() <-chan *message.Attestation {
	return c.decided
}

// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package consensus

import (
	"bytes"
	"context"

	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/candidate"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/header"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/key"
	"github.com/dusk-network/dusk-consensus/pkg/p2p/wire/message"
	"github.com/dusk-network/dusk-consensus/pkg/p2p/wire/topics"
)

// Emitter bundles everything a Step Executor needs to sign and send a
// vote, adapted from the teacher's `consensus.Emitter` (the field every
// `secondstep.Phase`/`firststep.Reducer` embeds to reach its keys and
// its outbound channel).
type Emitter struct {
	Keys     key.Keys
	Signer   Signer
	Outbound Outbound
	Clock    Clock
}

// SendVote signs (topic, round, iteration, step, vote) with the local
// BLS key and emits the resulting VoteMessage, the shared tail of
// Validation's and Ratification's "emit my vote" behavior
// (spec.md §4.5.2, §4.5.3).
func (e *Emitter) SendVote(ctx context.Context, topic topics.Topic, round uint64, iteration uint8, step header.StepName, vote message.Vote) error {
	buf := new(bytes.Buffer)
	hdr := header.Header{Round: round, Iteration: iteration, Step: step, BlockHash: vote.BlockHash(), PubKeyBLS: e.Keys.BLSPubKeyBytes}

	if err := header.MarshalSignableVote(buf, uint8(topic), hdr, uint8(vote.Kind)); err != nil {
		return err
	}

	sig, err := e.Signer.SignSingle(buf.Bytes())
	if err != nil {
		return err
	}

	msg := message.Message{
		Header:    hdr,
		Topic:     topic,
		Signature: sig,
		Payload:   message.VoteMessage{Header: hdr, Vote: vote, Signature: sig},
	}

	return e.Outbound.Send(ctx, msg)
}

// SendCandidate emits a generator's already-signed candidate block as
// a Candidate message (spec.md §4.5.1: "sign header hash (single BLS
// sig); emit Candidate(block) message").
func (e *Emitter) SendCandidate(ctx context.Context, hdr header.Header, block *candidate.Block) error {
	msg := message.Message{
		Header:    hdr,
		Topic:     topics.Candidate,
		Signature: block.Header.Signature,
		Payload:   candidate.Message{Header: hdr, Block: block},
	}

	return e.Outbound.Send(ctx, msg)
}

// SendQuorum emits a fully-aggregated Attestation as a Quorum message
// — the round's decision signal, or a Fail result (spec.md §4.5.3).
func (e *Emitter) SendQuorum(ctx context.Context, hdr header.Header, att *message.Attestation) error {
	msg := message.Message{
		Header:  hdr,
		Topic:   topics.Quorum,
		Payload: message.QuorumMessage{Header: hdr, Attestation: att},
	}

	return e.Outbound.Send(ctx, msg)
}

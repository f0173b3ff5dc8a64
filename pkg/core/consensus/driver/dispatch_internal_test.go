// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package driver

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/header"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/key"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/quorum"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/registry"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/user"
	"github.com/dusk-network/dusk-consensus/pkg/p2p/wire/message"
	"github.com/dusk-network/dusk-consensus/pkg/p2p/wire/topics"
	"github.com/dusk-network/dusk-crypto/bls"
	"github.com/stretchr/testify/require"
)

// signedVote builds a Validation/Ratification VoteMessage that passes
// verifyInbound's signature check, standing in for a genuine peer's
// wire message.
func signedVote(t *testing.T, k key.Keys, topic topics.Topic, step header.StepName, round uint64, iteration uint8, vote message.Vote) message.Message {
	t.Helper()

	hdr := header.Header{Round: round, Iteration: iteration, Step: step, BlockHash: vote.BlockHash(), PubKeyBLS: k.BLSPubKeyBytes}

	buf := new(bytes.Buffer)
	require.NoError(t, header.MarshalSignableVote(buf, uint8(topic), hdr, uint8(vote.Kind)))

	sig, err := bls.Sign(k.BLSSecretKey, k.BLSPubKey, buf.Bytes())
	require.NoError(t, err)

	return message.Message{
		Header:    hdr,
		Topic:     topic,
		Signature: sig.Compress(),
		Payload:   message.VoteMessage{Header: hdr, Vote: vote, Signature: sig.Compress()},
	}
}

// waitForDrain polls the registry for cursor's bucket until it is
// non-empty or the deadline passes, giving the dispatch goroutine time
// to park the message.
func waitForDrain(t *testing.T, reg *registry.Registry, cursor registry.Cursor) []registry.Entry {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)

	for time.Now().Before(deadline) {
		if entries := reg.Drain(cursor); len(entries) > 0 {
			return entries
		}

		time.Sleep(5 * time.Millisecond)
	}

	return nil
}

// TestDispatchParksFutureMessageByItsOwnStep regression-tests that a
// message for a future iteration is parked under the registry bucket
// keyed by its own step, derived from its topic — not under whatever
// step the driver's cursor happens to be sitting at — so the step that
// eventually calls Queue.GetEvents for that bucket actually finds it.
func TestDispatchParksFutureMessageByItsOwnStep(t *testing.T) {
	p, keys := user.MockProvisioners(2)
	peer := keys[1]

	round := uint64(5)
	const futureIteration = 1

	d := &Driver{Registry: registry.NewDefault()}
	d.setCursor(registry.Cursor{Round: round, Iteration: 0, Step: header.Proposal})

	qc := quorum.NewCollector(p, []byte("dispatch-test-seed"), round, quorum.Sizes{Validation: 64, Ratification: 64})

	inbound := make(chan message.Message, 4)
	evChan := make(chan message.Message, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go d.dispatch(ctx, inbound, round, p, evChan, qc)

	validationVote := signedVote(t, peer, topics.Validation, header.ValidationStep, round, futureIteration, message.Vote{Kind: message.NoCandidate})
	inbound <- validationVote

	validationEntries := waitForDrain(t, d.Registry, registry.Cursor{Round: round, Iteration: futureIteration, Step: header.ValidationStep})
	require.Len(t, validationEntries, 1, "Validation vote for a future iteration must be parked under the Validation step, not Proposal")

	proposalBucket := d.Registry.Drain(registry.Cursor{Round: round, Iteration: futureIteration, Step: header.Proposal})
	require.Empty(t, proposalBucket, "Validation vote must not land in the Proposal bucket")

	ratificationVote := signedVote(t, peer, topics.Ratification, header.RatificationStep, round, futureIteration, message.Vote{Kind: message.NoQuorum})
	inbound <- ratificationVote

	ratificationEntries := waitForDrain(t, d.Registry, registry.Cursor{Round: round, Iteration: futureIteration, Step: header.RatificationStep})
	require.Len(t, ratificationEntries, 1, "Ratification vote for a future iteration must be parked under the Ratification step")
}

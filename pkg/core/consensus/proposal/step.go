// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package proposal implements the Proposal step executor (spec.md
// §4.5.1): it determines the iteration's generator via a single-member
// sortition draw, then either locally generates a candidate block (if
// the local node won that draw) or waits for the generator's Candidate
// message.
package proposal

import (
	"bytes"
	"context"
	"time"

	"github.com/dusk-network/dusk-consensus/pkg/core/consensus"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/candidate"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/header"
	sigverify "github.com/dusk-network/dusk-consensus/pkg/core/consensus/msg"
	"github.com/dusk-network/dusk-consensus/pkg/p2p/wire/message"
	"github.com/dusk-network/dusk-consensus/pkg/p2p/wire/topics"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
)

var lg = log.WithField("process", "proposal step")

// Step is the Proposal step executor.
type Step struct {
	*consensus.Emitter
	Executor consensus.Executor
	Database consensus.Database

	next   consensus.Phase
	faults *message.FailedIterations
}

// New returns a Step bound to e.
func New(e *consensus.Emitter, executor consensus.Executor, db consensus.Database) *Step {
	return &Step{Emitter: e, Executor: executor, Database: db}
}

// SetNext sets the Validation step this Proposal step hands its result
// to.
func (s *Step) SetNext(next consensus.Phase) {
	s.next = next
}

// Fn stashes the failed_iterations record accumulated so far this
// round (spec.md §4.5.1's `faults` argument to
// Executor.ProposeStateTransition) and returns Run. The Proposal step
// is the first of an iteration, so unlike Validation/Ratification its
// "previous step's output" is this round-level bookkeeping rather than
// another step's result.
func (s *Step) Fn(prev consensus.InternalPacket) consensus.PhaseFn {
	if prev != nil {
		s.faults = prev.(*message.FailedIterations)
	} else {
		s.faults = message.NewFailedIterations(0)
	}

	return s.Run
}

// Run executes one Proposal step to completion.
func (s *Step) Run(ctx context.Context, queue *consensus.Queue, evChan chan message.Message, r consensus.RoundUpdate, iteration uint8) (consensus.PhaseFn, error) {
	generatorCommittee := r.CommitteeSet(iteration, r.Sizes).Proposal
	generators := generatorCommittee.MemberKeys()

	var generator []byte
	if len(generators) > 0 {
		generator = generators[0]
	}

	var block *candidate.Block

	if len(generator) > 0 && bytes.Equal(generator, r.Keys.BLSPubKeyBytes) {
		var err error
		block, err = s.generate(ctx, r, iteration)
		if err != nil {
			lg.WithError(err).Warn("local generation failed")
			block = nil
		}
	} else {
		block = s.await(ctx, queue, evChan, r, iteration, generator)
	}

	return s.next.Fn(block), nil
}

// generate builds, signs, stores and broadcasts a candidate block for
// an iteration the local node won the generator draw for.
func (s *Step) generate(ctx context.Context, r consensus.RoundUpdate, iteration uint8) (*candidate.Block, error) {
	now := time.Now().Unix()
	if s.Clock != nil {
		now = s.Clock.Now().Unix()
	}

	result, err := s.Executor.ProposeStateTransition(ctx, r.PrevBlockHeader.StateHash, r.Round, iteration, now, s.faults, nil)
	if err != nil {
		return nil, err
	}

	hdr := &candidate.Header{
		Version:              0,
		Height:               r.PrevBlockHeight + 1,
		Timestamp:            now,
		PrevBlockHash:        r.PrevBlockHash,
		Seed:                 r.Seed,
		StateHash:            result.StateHash,
		EventHash:            result.EventHash,
		GeneratorPubKey:      r.Keys.BLSPubKeyBytes,
		TxRoot:               txRoot(result.Txs),
		Iteration:            iteration,
		GasLimit:             result.GasLimit,
		PrevBlockAttestation: r.PrevBlockCert,
		FailedIterations:     s.faults,
	}

	hash, err := candidate.Hash(hdr)
	if err != nil {
		return nil, err
	}

	hdr.BlockHash = hash

	sig, err := s.Signer.SignSingle(hash)
	if err != nil {
		return nil, err
	}

	hdr.Signature = sig

	block := &candidate.Block{Header: hdr, Txs: result.Txs}

	if err := s.Database.StoreCandidateBlock(ctx, block); err != nil {
		return nil, err
	}

	routingHeader := header.Header{Round: r.Round, Iteration: iteration, Step: header.Proposal, BlockHash: hash, PubKeyBLS: r.Keys.BLSPubKeyBytes}
	if err := s.SendCandidate(ctx, routingHeader, block); err != nil {
		lg.WithError(err).Warn("failed to broadcast candidate")
	}

	return block, nil
}

// await waits for the generator's Candidate message, within the
// Proposal timeout, verifying it matches (round, iteration), comes from
// the expected generator, and that its signature over the recomputed
// block hash verifies against that generator's key.
func (s *Step) await(ctx context.Context, queue *consensus.Queue, evChan chan message.Message, r consensus.RoundUpdate, iteration uint8, generator []byte) *candidate.Block {
	for _, msg := range queue.GetEvents(r.Round, iteration, header.Proposal) {
		if block := s.verifyIncoming(msg, generator); block != nil {
			return block
		}
	}

	timeout := r.Timeouts.Get(header.Proposal, false)
	timeoutChan := time.After(timeout)

	for {
		select {
		case msg := <-evChan:
			if msg.Header.Round != r.Round || msg.Header.Iteration != iteration || msg.Topic != topics.Candidate {
				continue
			}

			if block := s.verifyIncoming(msg, generator); block != nil {
				return block
			}

		case <-timeoutChan:
			return nil

		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Step) verifyIncoming(msg message.Message, generator []byte) *candidate.Block {
	cm, ok := msg.Payload.(candidate.Message)
	if !ok {
		return nil
	}

	if len(generator) > 0 && !bytes.Equal(msg.Sender(), generator) {
		return nil
	}

	hash, err := candidate.Hash(cm.Block.Header)
	if err != nil {
		return nil
	}

	if len(generator) > 0 && sigverify.VerifyBLSSignature(generator, hash, cm.Block.Header.Signature) != nil {
		return nil
	}

	cm.Block.Header.BlockHash = hash

	if err := s.Database.StoreCandidateBlock(context.Background(), cm.Block); err != nil {
		lg.WithError(err).Warn("failed to persist received candidate")
	}

	return cm.Block
}

// txRoot commits to the candidate's opaque transaction payload. Since
// transaction execution and structure are outside this core's scope,
// the set is treated as a single opaque blob rather than a tree of
// individually-hashed transactions.
func txRoot(txs []byte) []byte {
	sum := blake2b.Sum256(txs)
	return sum[:]
}

// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package validation_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dusk-network/dusk-consensus/pkg/config"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/candidate"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/committee"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/header"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/key"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/user"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/validation"
	"github.com/dusk-network/dusk-consensus/pkg/p2p/wire/message"
	"github.com/dusk-network/dusk-crypto/bls"
	"github.com/stretchr/testify/require"
)

type stubSigner struct{ keys key.Keys }

func (s stubSigner) SignSingle(msg []byte) ([]byte, error) {
	sig, err := bls.Sign(s.keys.BLSSecretKey, s.keys.BLSPubKey, msg)
	if err != nil {
		return nil, err
	}

	return sig.Compress(), nil
}

func (s stubSigner) SignSeed(prevSeed []byte) ([]byte, error) { return s.SignSingle(prevSeed) }

// loopbackOutbound re-delivers every sent message onto evChan, standing
// in for a real transport where a sole committee member's own vote
// reaches itself.
type loopbackOutbound struct{ evChan chan message.Message }

func (o loopbackOutbound) Send(ctx context.Context, msg message.Message) error {
	o.evChan <- msg
	return nil
}

type stubExecutor struct{ headerErr, transitionErr error }

func (s stubExecutor) VerifyHeader(ctx context.Context, block *candidate.Block, expectedGenerator []byte) (consensus.VerifyOutput, error) {
	return consensus.VerifyOutput{}, s.headerErr
}

func (stubExecutor) VerifyFaults(ctx context.Context, height uint64, failed *message.FailedIterations) error {
	return nil
}

func (s stubExecutor) VerifyStateTransition(ctx context.Context, prevStateHash []byte, block *candidate.Block, voterCredits map[string]uint32) error {
	return s.transitionErr
}

func (stubExecutor) ProposeStateTransition(ctx context.Context, prevStateHash []byte, round uint64, iteration uint8, timestamp int64, failed *message.FailedIterations, voterCredits map[string]uint32) (consensus.ProposalResult, error) {
	return consensus.ProposalResult{}, nil
}

func (stubExecutor) RecordStepElapsed(round uint64, step header.StepName, elapsed time.Duration) {}

func (stubExecutor) GetBlockGasLimit() uint64 { return 5000000 }

type stubDatabase struct{ results []consensus.ValidationResult }

func (*stubDatabase) StoreCandidateBlock(ctx context.Context, block *candidate.Block) error {
	return nil
}

func (d *stubDatabase) StoreValidationResult(ctx context.Context, hdr header.Header, result consensus.ValidationResult) error {
	d.results = append(d.results, result)
	return nil
}

func (*stubDatabase) GetCandidate(ctx context.Context, hash []byte) (*candidate.Block, error) {
	return nil, nil
}

func (*stubDatabase) GetLastIteration(ctx context.Context) ([]byte, uint8, error) {
	return nil, 0, nil
}

func (*stubDatabase) SetLastIteration(ctx context.Context, prevHash []byte, lastIteration uint8) error {
	return nil
}

type nextPhase struct{ got consensus.InternalPacket }

func (n *nextPhase) Fn(prev consensus.InternalPacket) consensus.PhaseFn {
	n.got = prev
	return func(ctx context.Context, queue *consensus.Queue, evChan chan message.Message, r consensus.RoundUpdate, iteration uint8) (consensus.PhaseFn, error) {
		return nil, nil
	}
}

func roundUpdate(p *user.Provisioners, keys key.Keys) consensus.RoundUpdate {
	cfg := config.Consensus{
		MinStepTimeout:  50 * time.Millisecond,
		MaxStepTimeout:  200 * time.Millisecond,
		TimeoutIncrease: 50 * time.Millisecond,
	}

	return consensus.RoundUpdate{
		Round:           9,
		Keys:            keys,
		P:               p,
		Seed:            []byte("validation-round-seed"),
		Sizes:           committee.Sizes{Proposal: 1, Validation: 1, Ratification: 1},
		PrevBlockHash:   bytes.Repeat([]byte{0x3}, 32),
		PrevBlockHeight: 99,
		PrevBlockHeader: &candidate.Header{StateHash: bytes.Repeat([]byte{0x4}, 32)},
		Timeouts:        consensus.NewTimeouts(cfg),
	}
}

func run(t *testing.T, fn consensus.PhaseFn, r consensus.RoundUpdate, evChan chan message.Message) {
	t.Helper()

	done := make(chan struct{})

	go func() {
		_, _ = fn(context.Background(), consensus.NewQueue(nil, nil), evChan, r, 0)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for validation step")
	}
}

func TestValidationStepVotesValidAndReachesQuorum(t *testing.T) {
	p, keys := user.MockProvisioners(1)
	sole := keys[0]

	evChan := make(chan message.Message, 4)
	e := &consensus.Emitter{Keys: sole, Signer: stubSigner{keys: sole}, Outbound: loopbackOutbound{evChan: evChan}}

	db := &stubDatabase{}
	s := validation.New(e, stubExecutor{}, db)
	next := &nextPhase{}
	s.SetNext(next)

	block := &candidate.Block{Header: &candidate.Header{BlockHash: bytes.Repeat([]byte{0x7}, 32)}}

	r := roundUpdate(p, sole)

	run(t, s.Fn(block), r, evChan)

	require.NotNil(t, next.got)

	vr, ok := next.got.(consensus.ValidationResult)
	require.True(t, ok)
	require.Equal(t, message.Valid, vr.QuorumVote.Kind)
	require.Equal(t, block.Header.BlockHash, vr.QuorumVote.Hash)
	require.Len(t, db.results, 1)
}

func TestValidationStepVotesNoCandidateWhenNoneProposed(t *testing.T) {
	p, keys := user.MockProvisioners(1)
	sole := keys[0]

	evChan := make(chan message.Message, 4)
	e := &consensus.Emitter{Keys: sole, Signer: stubSigner{keys: sole}, Outbound: loopbackOutbound{evChan: evChan}}

	s := validation.New(e, stubExecutor{}, &stubDatabase{})
	next := &nextPhase{}
	s.SetNext(next)

	r := roundUpdate(p, sole)
	run(t, s.Fn(nil), r, evChan)

	require.NotNil(t, next.got)

	vr, ok := next.got.(consensus.ValidationResult)
	require.True(t, ok)
	require.Equal(t, message.NoCandidate, vr.QuorumVote.Kind)
}

func TestValidationStepVotesInvalidOnHeaderVerificationFailure(t *testing.T) {
	p, keys := user.MockProvisioners(1)
	sole := keys[0]

	evChan := make(chan message.Message, 4)
	e := &consensus.Emitter{Keys: sole, Signer: stubSigner{keys: sole}, Outbound: loopbackOutbound{evChan: evChan}}

	exec := stubExecutor{headerErr: errBadHeader}
	s := validation.New(e, exec, &stubDatabase{})
	next := &nextPhase{}
	s.SetNext(next)

	block := &candidate.Block{Header: &candidate.Header{BlockHash: bytes.Repeat([]byte{0x7}, 32)}}
	r := roundUpdate(p, sole)

	run(t, s.Fn(block), r, evChan)

	vr, ok := next.got.(consensus.ValidationResult)
	require.True(t, ok)
	require.Equal(t, message.Invalid, vr.QuorumVote.Kind)
}

func TestValidationStepVotesInvalidWhenFailedIterationsExceedsThreshold(t *testing.T) {
	original := config.Get()
	defer config.Set(original)

	cfg := original
	cfg.Consensus.RelaxIterationThreshold = 1
	config.Set(cfg)

	p, keys := user.MockProvisioners(1)
	sole := keys[0]

	evChan := make(chan message.Message, 4)
	e := &consensus.Emitter{Keys: sole, Signer: stubSigner{keys: sole}, Outbound: loopbackOutbound{evChan: evChan}}

	s := validation.New(e, stubExecutor{}, &stubDatabase{})
	next := &nextPhase{}
	s.SetNext(next)

	const iteration = 2

	block := &candidate.Block{Header: &candidate.Header{
		BlockHash:        bytes.Repeat([]byte{0x7}, 32),
		FailedIterations: message.NewFailedIterations(iteration),
	}}

	r := roundUpdate(p, sole)

	done := make(chan struct{})

	go func() {
		_, _ = s.Fn(block)(context.Background(), consensus.NewQueue(nil, nil), evChan, r, iteration)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for validation step")
	}

	vr, ok := next.got.(consensus.ValidationResult)
	require.True(t, ok)
	require.Equal(t, message.Invalid, vr.QuorumVote.Kind, "a failed_iterations record longer than RelaxIterationThreshold must be rejected as Invalid")
}

var errBadHeader = errors.New("bad header")

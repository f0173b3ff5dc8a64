// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package iteration_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/dusk-network/dusk-consensus/pkg/config"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/candidate"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/committee"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/header"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/iteration"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/key"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/user"
	"github.com/dusk-network/dusk-consensus/pkg/p2p/wire/message"
	"github.com/dusk-network/dusk-consensus/pkg/p2p/wire/topics"
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

// loopbackOutbound simulates a single-provisioner network: every vote
// or candidate this node sends is immediately delivered back to its
// own inbound channel, exactly as it would be if this were the only
// committee member and messages were routed through a real network.
type loopbackOutbound struct {
	evChan chan message.Message
	sent   []message.Message
}

func (o *loopbackOutbound) Send(ctx context.Context, msg message.Message) error {
	o.sent = append(o.sent, msg)

	if msg.Topic == topics.Validation || msg.Topic == topics.Ratification {
		o.evChan <- msg
	}

	return nil
}

type stubExecutor struct{}

func (stubExecutor) VerifyHeader(ctx context.Context, block *candidate.Block, expectedGenerator []byte) (consensus.VerifyOutput, error) {
	return consensus.VerifyOutput{}, nil
}

func (stubExecutor) VerifyFaults(ctx context.Context, height uint64, failed *message.FailedIterations) error {
	return nil
}

func (stubExecutor) VerifyStateTransition(ctx context.Context, prevStateHash []byte, block *candidate.Block, voterCredits map[string]uint32) error {
	return nil
}

func (stubExecutor) ProposeStateTransition(ctx context.Context, prevStateHash []byte, round uint64, it uint8, timestamp int64, failed *message.FailedIterations, voterCredits map[string]uint32) (consensus.ProposalResult, error) {
	return consensus.ProposalResult{Txs: []byte("txs"), StateHash: bytes.Repeat([]byte{0x1}, 32), EventHash: bytes.Repeat([]byte{0x2}, 32), GasLimit: 5000000}, nil
}

func (stubExecutor) RecordStepElapsed(round uint64, step header.StepName, elapsed time.Duration) {}

func (stubExecutor) GetBlockGasLimit() uint64 { return 5000000 }

type stubDatabase struct{ stored []*candidate.Block }

func (d *stubDatabase) StoreCandidateBlock(ctx context.Context, block *candidate.Block) error {
	d.stored = append(d.stored, block)
	return nil
}

func (d *stubDatabase) StoreValidationResult(ctx context.Context, hdr header.Header, result consensus.ValidationResult) error {
	return nil
}

func (d *stubDatabase) GetCandidate(ctx context.Context, hash []byte) (*candidate.Block, error) {
	return nil, nil
}

func (d *stubDatabase) GetLastIteration(ctx context.Context) ([]byte, uint8, error) { return nil, 0, nil }

func (d *stubDatabase) SetLastIteration(ctx context.Context, prevHash []byte, lastIteration uint8) error {
	return nil
}

func TestControllerReachesDecisionWithSoleProvisioner(t *testing.T) {
	p, keys := user.MockProvisioners(1)
	self := keys[0]

	evChan := make(chan message.Message, 8)
	out := &loopbackOutbound{evChan: evChan}

	e := &consensus.Emitter{Keys: self, Signer: stubSigner{keys: self}, Outbound: out}
	db := &stubDatabase{}
	c := iteration.New(e, stubExecutor{}, db)

	cfg := config.Consensus{
		MinStepTimeout:  2 * time.Second,
		MaxStepTimeout:  4 * time.Second,
		TimeoutIncrease: 1 * time.Second,
	}

	r := consensus.RoundUpdate{
		Round:           1,
		Keys:            self,
		P:               p,
		Seed:            []byte("iteration-test-seed"),
		Sizes:           committee.Sizes{Proposal: 1, Validation: 1, Ratification: 1},
		PrevBlockHash:   bytes.Repeat([]byte{0x3}, 32),
		PrevBlockHeight: 9,
		PrevBlockHeader: &candidate.Header{StateHash: bytes.Repeat([]byte{0x4}, 32)},
		Timeouts:        consensus.NewTimeouts(cfg),
	}

	queue := consensus.NewQueue(nil, nil)

	outcome, err := c.Run(context.Background(), queue, evChan, r, 0, nil)
	require.NoError(t, err)
	require.NotNil(t, outcome)
	require.True(t, outcome.Decided)
	require.NotNil(t, outcome.Attestation)
	require.True(t, outcome.Attestation.Result.IsSuccess())
	require.Len(t, db.stored, 1)
}

func TestControllerFailsIterationOnValidationTimeout(t *testing.T) {
	p, keys := user.MockProvisioners(1)
	self := keys[0]

	evChan := make(chan message.Message, 8)

	// A silent Outbound: votes never loop back, so the committee (of
	// just this one member) never reaches quorum and the step times
	// out.
	e := &consensus.Emitter{Keys: self, Signer: stubSigner{keys: self}, Outbound: &silentOutbound{}}
	db := &stubDatabase{}
	c := iteration.New(e, stubExecutor{}, db)

	cfg := config.Consensus{
		MinStepTimeout:  30 * time.Millisecond,
		MaxStepTimeout:  60 * time.Millisecond,
		TimeoutIncrease: 30 * time.Millisecond,
	}

	r := consensus.RoundUpdate{
		Round:           1,
		Keys:            self,
		P:               p,
		Seed:            []byte("iteration-test-seed-2"),
		Sizes:           committee.Sizes{Proposal: 1, Validation: 1, Ratification: 1},
		PrevBlockHash:   bytes.Repeat([]byte{0x3}, 32),
		PrevBlockHeight: 9,
		PrevBlockHeader: &candidate.Header{StateHash: bytes.Repeat([]byte{0x4}, 32)},
		Timeouts:        consensus.NewTimeouts(cfg),
	}

	queue := consensus.NewQueue(nil, nil)

	outcome, err := c.Run(context.Background(), queue, evChan, r, 0, nil)
	require.NoError(t, err)
	require.NotNil(t, outcome)
	require.False(t, outcome.Decided)
	require.NotNil(t, outcome.Attestation)
	require.False(t, outcome.Attestation.Result.IsSuccess())
}

type silentOutbound struct{}

func (silentOutbound) Send(ctx context.Context, msg message.Message) error { return nil }

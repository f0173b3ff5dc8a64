// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package proposal_test

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
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/key"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/proposal"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/user"
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

type stubOutbound struct{ sent []message.Message }

func (o *stubOutbound) Send(ctx context.Context, msg message.Message) error {
	o.sent = append(o.sent, msg)
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

func (stubExecutor) ProposeStateTransition(ctx context.Context, prevStateHash []byte, round uint64, iteration uint8, timestamp int64, failed *message.FailedIterations, voterCredits map[string]uint32) (consensus.ProposalResult, error) {
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
	for _, b := range d.stored {
		if bytes.Equal(b.Header.BlockHash, hash) {
			return b, nil
		}
	}

	return nil, nil
}

func (d *stubDatabase) GetLastIteration(ctx context.Context) ([]byte, uint8, error) { return nil, 0, nil }

func (d *stubDatabase) SetLastIteration(ctx context.Context, prevHash []byte, lastIteration uint8) error {
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
		Round:           1,
		Keys:            keys,
		P:               p,
		Seed:            []byte("proposal-round-seed"),
		Sizes:           committee.Sizes{Proposal: 1, Validation: 64, Ratification: 64},
		PrevBlockHash:   bytes.Repeat([]byte{0x3}, 32),
		PrevBlockHeight: 41,
		PrevBlockHeader: &candidate.Header{StateHash: bytes.Repeat([]byte{0x4}, 32)},
		Timeouts:        consensus.NewTimeouts(cfg),
	}
}

func TestStepGeneratesLocallyWhenWinner(t *testing.T) {
	p, keys := user.MockProvisioners(5)

	var generator key.Keys

	for _, k := range keys {
		c := committee.Extract(p, []byte("proposal-round-seed"), 1, 0, header.Proposal, 1)
		if c.IsMember(k.BLSPubKeyBytes) {
			generator = k
			break
		}
	}

	require.NotNil(t, generator.BLSPubKeyBytes)

	out := &stubOutbound{}
	db := &stubDatabase{}
	e := &consensus.Emitter{Keys: generator, Signer: stubSigner{keys: generator}, Outbound: out}
	s := proposal.New(e, stubExecutor{}, db)
	next := &nextPhase{}
	s.SetNext(next)

	r := roundUpdate(p, generator)

	fn := s.Fn(nil)
	_, err := fn(context.Background(), consensus.NewQueue(nil, nil), make(chan message.Message), r, 0)
	require.NoError(t, err)

	require.Len(t, db.stored, 1)
	require.NotNil(t, next.got)

	block, ok := next.got.(*candidate.Block)
	require.True(t, ok)
	require.NotNil(t, block)
	require.Len(t, out.sent, 1)
}

func TestStepAwaitsCandidateWhenNotGenerator(t *testing.T) {
	p, keys := user.MockProvisioners(5)

	var follower, generator key.Keys

	for _, k := range keys {
		c := committee.Extract(p, []byte("proposal-round-seed"), 1, 0, header.Proposal, 1)
		if c.IsMember(k.BLSPubKeyBytes) {
			generator = k
		} else if follower.BLSPubKeyBytes == nil {
			follower = k
		}
	}

	require.NotNil(t, generator.BLSPubKeyBytes)
	require.NotNil(t, follower.BLSPubKeyBytes)

	out := &stubOutbound{}
	db := &stubDatabase{}
	e := &consensus.Emitter{Keys: follower, Signer: stubSigner{keys: follower}, Outbound: out}
	s := proposal.New(e, stubExecutor{}, db)
	next := &nextPhase{}
	s.SetNext(next)

	r := roundUpdate(p, follower)

	fn := s.Fn(nil)

	done := make(chan struct{})
	go func() {
		_, _ = fn(context.Background(), consensus.NewQueue(nil, nil), make(chan message.Message), r, 0)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for proposal step to give up")
	}

	require.Nil(t, next.got)
}

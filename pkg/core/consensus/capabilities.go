// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package consensus holds the Round Driver's shared vocabulary: the
// capability interfaces every collaborator outside this core implements
// (spec.md §4.9, component C9), and the Emitter/RoundUpdate/Phase/Queue
// types the Iteration Controller and Step Executors are built from. The
// core itself owns no implementation of any capability — production
// nodes and tests each supply their own.
package consensus

import (
	"context"
	"time"

	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/candidate"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/header"
	"github.com/dusk-network/dusk-consensus/pkg/p2p/wire/message"
)

// VerifyOutput is what Executor.VerifyHeader/VerifyStateTransition
// return on success: the credits a generator earns for a correctly
// produced block, used to weight rewards outside this core.
type VerifyOutput struct {
	VoterCredits map[string]uint32
}

// ProposalResult is what Executor.ProposeStateTransition returns when
// the local node is an iteration's generator.
type ProposalResult struct {
	Txs        []byte
	StateHash  []byte
	EventHash  []byte
	GasLimit   uint64
}

// Database persists candidate blocks and validation results, and
// tracks where the chain last left off — spec.md §4.9's contract.
// Implementations MUST be idempotent: storing the same value twice for
// the same key is a no-op, not an error.
type Database interface {
	StoreCandidateBlock(ctx context.Context, block *candidate.Block) error
	StoreValidationResult(ctx context.Context, hdr header.Header, result ValidationResult) error
	GetCandidate(ctx context.Context, hash []byte) (*candidate.Block, error)
	GetLastIteration(ctx context.Context) (prevHash []byte, lastIteration uint8, err error)
	SetLastIteration(ctx context.Context, prevHash []byte, lastIteration uint8) error
}

// Executor runs the state-transition and header-validation logic this
// core treats as opaque — everything this package's Non-goals exclude
// (transaction execution, gas, balances).
type Executor interface {
	VerifyHeader(ctx context.Context, block *candidate.Block, expectedGenerator []byte) (VerifyOutput, error)
	VerifyFaults(ctx context.Context, height uint64, failed *message.FailedIterations) error
	VerifyStateTransition(ctx context.Context, prevStateHash []byte, block *candidate.Block, voterCredits map[string]uint32) error
	ProposeStateTransition(ctx context.Context, prevStateHash []byte, round uint64, iteration uint8, timestamp int64, failed *message.FailedIterations, voterCredits map[string]uint32) (ProposalResult, error)
	RecordStepElapsed(round uint64, step header.StepName, elapsed time.Duration)
	GetBlockGasLimit() uint64
}

// Signer produces the BLS signatures a step executor attaches to
// outbound votes and candidate headers, kept separate from the
// consensus key.Keys type so a node may delegate signing to a remote
// HSM without this core knowing the difference.
type Signer interface {
	SignSingle(msg []byte) ([]byte, error)
	SignSeed(prevSeed []byte) ([]byte, error)
}

// Clock is the source of wall-clock time and sleep/timeout scheduling,
// abstracted so tests can run an entire round without a real timer.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// Outbound delivers a Message to the network layer. Send may fail only
// on channel closure — per spec.md §5, the core applies no back-pressure
// to its own logic beyond the bounded queue Send writes into.
type Outbound interface {
	Send(ctx context.Context, msg message.Message) error
}

// ValidationResult is the Validation step's output, persisted via
// Database.StoreValidationResult and consumed by the Ratification step
// (spec.md §4.5.2).
type ValidationResult struct {
	QuorumVote message.Vote
	StepVotes  message.StepVotes
}

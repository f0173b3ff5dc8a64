// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package validation implements the Validation step executor
// (spec.md §4.5.2): it turns a Proposal result into a vote
// (NoCandidate/Invalid/Valid), aggregates the committee's votes into a
// ValidationResult, and hands it to the Ratification step.
//
// Adapted from the teacher's `secondstep.Phase` continuation-passing
// shape (`other_examples` step.go): own vote first, drain already-
// queued events, then select over the inbound channel/timeout/context
// until quorum or timeout, returning the next step's Fn either way.
package validation

import (
	"context"
	"errors"
	"time"

	"github.com/dusk-network/dusk-consensus/pkg/config"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/candidate"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/header"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/quorum"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/reduction"
	"github.com/dusk-network/dusk-consensus/pkg/p2p/wire/message"
	"github.com/dusk-network/dusk-consensus/pkg/p2p/wire/topics"
	log "github.com/sirupsen/logrus"
)

var lg = log.WithField("process", "validation step")

// Step is the Validation step executor.
type Step struct {
	*consensus.Emitter
	Executor consensus.Executor
	Database consensus.Database

	proposal *candidate.Block
	next     consensus.Phase
}

// New returns a Step bound to e, ready to have SetNext called before
// use.
func New(e *consensus.Emitter, executor consensus.Executor, db consensus.Database) *Step {
	return &Step{Emitter: e, Executor: executor, Database: db}
}

// SetNext sets the Ratification step this Validation step hands its
// ValidationResult to.
func (s *Step) SetNext(next consensus.Phase) {
	s.next = next
}

// Fn stashes the Proposal step's output (a *candidate.Block, or nil if
// no candidate was produced/observed) and returns Run.
func (s *Step) Fn(prev consensus.InternalPacket) consensus.PhaseFn {
	if prev != nil {
		s.proposal = prev.(*candidate.Block)
	} else {
		s.proposal = nil
	}

	return s.Run
}

// Run executes one Validation step to completion: decide, vote,
// aggregate, hand off.
func (s *Step) Run(ctx context.Context, queue *consensus.Queue, evChan chan message.Message, r consensus.RoundUpdate, iteration uint8) (consensus.PhaseFn, error) {
	vote := s.decide(ctx, r, iteration)

	committees := r.CommitteeSet(iteration, r.Sizes)
	c := committees.Validation

	if c.IsMember(r.Keys.BLSPubKeyBytes) {
		if err := s.SendVote(ctx, topics.Validation, r.Round, iteration, header.ValidationStep, vote); err != nil {
			return nil, err
		}
	}

	agg := reduction.NewAggregator(c, uint8(topics.Validation), r.Round, iteration, header.ValidationStep)

	for _, msg := range queue.GetEvents(r.Round, iteration, header.ValidationStep) {
		if result, done := s.collect(agg, msg); done {
			return s.conclude(ctx, r, iteration, result)
		}
	}

	timeout := r.Timeouts.Get(header.ValidationStep, isEmergency(iteration))
	timeoutChan := time.After(timeout)

	for {
		select {
		case msg := <-evChan:
			if msg.Header.Round != r.Round || msg.Header.Iteration != iteration || msg.Topic != topics.Validation {
				continue
			}

			if result, done := s.collect(agg, msg); done {
				return s.conclude(ctx, r, iteration, result)
			}

		case <-timeoutChan:
			r.Timeouts.Increase(header.ValidationStep)
			return s.next.Fn(consensus.ValidationResult{QuorumVote: message.Vote{Kind: message.NoQuorum}}), nil

		case <-ctx.Done():
			return nil, nil
		}
	}
}

func (s *Step) collect(agg *reduction.Aggregator, msg message.Message) (*reduction.Result, bool) {
	vm, ok := msg.Payload.(message.VoteMessage)
	if !ok {
		return nil, false
	}

	result, err := agg.Add(msg.Sender(), vm.Signature, vm.Vote)
	if err != nil {
		lg.WithError(err).Debug("rejected validation vote")
		return nil, false
	}

	return result, result != nil
}

func (s *Step) conclude(ctx context.Context, r consensus.RoundUpdate, iteration uint8, result *reduction.Result) (consensus.PhaseFn, error) {
	vr := consensus.ValidationResult{QuorumVote: result.Vote, StepVotes: *result.StepVotes}

	hdr := header.Header{Round: r.Round, Iteration: iteration, Step: header.ValidationStep, BlockHash: result.Vote.BlockHash(), PubKeyBLS: r.Keys.BLSPubKeyBytes}
	if err := s.Database.StoreValidationResult(ctx, hdr, vr); err != nil {
		return nil, err
	}

	return s.next.Fn(vr), nil
}

// decide applies spec.md §4.5.2's vote-determination rules.
func (s *Step) decide(ctx context.Context, r consensus.RoundUpdate, iteration uint8) message.Vote {
	if s.proposal == nil {
		return message.Vote{Kind: message.NoCandidate}
	}

	hash := s.proposal.Header.BlockHash
	generator := r.CommitteeSet(iteration, r.Sizes).Proposal.MemberKeys()

	var expectedGenerator []byte
	if len(generator) > 0 {
		expectedGenerator = generator[0]
	}

	if _, err := s.Executor.VerifyHeader(ctx, s.proposal, expectedGenerator); err != nil {
		lg.WithError(err).Debug("header verification failed")
		return message.Vote{Kind: message.Invalid, Hash: hash}
	}

	if err := s.verifyFailedIterations(ctx, r, iteration); err != nil {
		lg.WithError(err).Debug("failed_iterations verification failed")
		return message.Vote{Kind: message.Invalid, Hash: hash}
	}

	if err := s.Executor.VerifyStateTransition(ctx, r.PrevBlockHeader.StateHash, s.proposal, nil); err != nil {
		lg.WithError(err).Debug("state transition verification failed")
		return message.Vote{Kind: message.Invalid, Hash: hash}
	}

	return message.Vote{Kind: message.Valid, Hash: hash}
}

// verifyFailedIterations checks the candidate's failed_iterations
// record: its length must match the iteration it belongs to (spec.md
// §3's invariant), it must not exceed RELAX_ITERATION_THRESHOLD, and
// every non-skip entry's Attestation must be a genuine Fail quorum.
func (s *Step) verifyFailedIterations(ctx context.Context, r consensus.RoundUpdate, iteration uint8) error {
	failed := s.proposal.Header.FailedIterations
	if failed == nil {
		if iteration == 0 {
			return nil
		}

		return errFailedIterationsMismatch
	}

	if failed.Len() != int(iteration) {
		return errFailedIterationsMismatch
	}

	if failed.Len() > int(config.Get().Consensus.RelaxIterationThreshold) {
		return errTooManyFailedIterations
	}

	for i, entry := range failed.Entries {
		if entry == nil {
			continue
		}

		expected := message.NewFailResult(entry.Attestation.Result.SuccessVote)
		if expected.IsSuccess() {
			return errFailedIterationsMismatch
		}

		if _, err := quorum.Verify(entry.Attestation, r.Round, uint8(i), r.Seed, r.P, expected, quorum.Sizes{Validation: r.Sizes.Validation, Ratification: r.Sizes.Ratification}); err != nil {
			return err
		}
	}

	return s.Executor.VerifyFaults(ctx, r.PrevBlockHeight+1, failed)
}

func isEmergency(iteration uint8) bool {
	return iteration >= config.Get().Consensus.EmergencyIterationThreshold
}

var errFailedIterationsMismatch = errors.New("validation: failed_iterations record does not match this iteration")

var errTooManyFailedIterations = errors.New("validation: failed_iterations record exceeds RelaxIterationThreshold")

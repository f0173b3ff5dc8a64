// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package ratification implements the Ratification step executor
// (spec.md §4.5.3): it echoes the Validation step's quorum vote,
// aggregates the committee's ratification votes, and either produces
// the round's decision (a Success Quorum) or a Fail attestation that
// ends the iteration.
package ratification

import (
	"context"
	"time"

	"github.com/dusk-network/dusk-consensus/pkg/config"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/header"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/reduction"
	"github.com/dusk-network/dusk-consensus/pkg/p2p/wire/message"
	"github.com/dusk-network/dusk-consensus/pkg/p2p/wire/topics"
	log "github.com/sirupsen/logrus"
)

var lg = log.WithField("process", "ratification step")

// Outcome is what a completed Ratification step leaves behind for the
// Iteration Controller to read once Run returns: either a decision
// (Success Attestation) or a Fail attestation that ends the iteration.
// Ratification is the last step of an iteration, so — unlike Proposal
// and Validation — it has no next Phase to chain `Fn` into; Run returns
// `(nil, nil)` on every non-cancellation exit and the controller reads
// Outcome() to tell a decision apart from an iteration failure.
type Outcome struct {
	Attestation *message.Attestation
	Decided     bool
}

// Step is the Ratification step executor.
type Step struct {
	*consensus.Emitter

	validation consensus.ValidationResult
	outcome    Outcome
}

// New returns a Step bound to e.
func New(e *consensus.Emitter) *Step {
	return &Step{Emitter: e}
}

// Fn stashes the Validation step's output and returns Run.
func (s *Step) Fn(prev consensus.InternalPacket) consensus.PhaseFn {
	s.validation = prev.(consensus.ValidationResult)
	s.outcome = Outcome{}
	return s.Run
}

// Outcome reports the result of the most recently completed Run call.
// Only meaningful once Run has returned (nil, nil) without ctx having
// been canceled.
func (s *Step) Outcome() Outcome {
	return s.outcome
}

// Run executes one Ratification step to completion.
func (s *Step) Run(ctx context.Context, queue *consensus.Queue, evChan chan message.Message, r consensus.RoundUpdate, iteration uint8) (consensus.PhaseFn, error) {
	vote := s.validation.QuorumVote

	committees := r.CommitteeSet(iteration, r.Sizes)
	c := committees.Ratification

	if c.IsMember(r.Keys.BLSPubKeyBytes) {
		if err := s.SendVote(ctx, topics.Ratification, r.Round, iteration, header.RatificationStep, vote); err != nil {
			return nil, err
		}
	}

	agg := reduction.NewAggregator(c, uint8(topics.Ratification), r.Round, iteration, header.RatificationStep)

	for _, msg := range queue.GetEvents(r.Round, iteration, header.RatificationStep) {
		if result, done := collect(agg, msg); done {
			s.conclude(ctx, r, iteration, result)
			return nil, nil
		}
	}

	emergency := iteration >= config.Get().Consensus.EmergencyIterationThreshold
	timeout := r.Timeouts.Get(header.RatificationStep, emergency)
	timeoutChan := time.After(timeout)

	for {
		select {
		case msg := <-evChan:
			if msg.Header.Round != r.Round || msg.Header.Iteration != iteration || msg.Topic != topics.Ratification {
				continue
			}

			if result, done := collect(agg, msg); done {
				s.conclude(ctx, r, iteration, result)
				return nil, nil
			}

		case <-timeoutChan:
			r.Timeouts.Increase(header.RatificationStep)

			if emergency {
				s.outcome = Outcome{Decided: false}
			} else {
				s.outcome = Outcome{Attestation: failAttestation(message.Vote{Kind: message.NoQuorum}, s.validation.StepVotes)}
			}

			return nil, nil

		case <-ctx.Done():
			return nil, nil
		}
	}
}

func collect(agg *reduction.Aggregator, msg message.Message) (*reduction.Result, bool) {
	vm, ok := msg.Payload.(message.VoteMessage)
	if !ok {
		return nil, false
	}

	result, err := agg.Add(msg.Sender(), vm.Signature, vm.Vote)
	if err != nil {
		lg.WithError(err).Debug("rejected ratification vote")
		return nil, false
	}

	return result, result != nil
}

func (s *Step) conclude(ctx context.Context, r consensus.RoundUpdate, iteration uint8, result *reduction.Result) {
	if result.Vote.Kind == message.Valid {
		att := &message.Attestation{
			Result:       message.NewSuccessResult(result.Vote.Hash),
			Validation:   s.validation.StepVotes,
			Ratification: *result.StepVotes,
		}

		hdr := header.Header{Round: r.Round, Iteration: iteration, BlockHash: result.Vote.Hash, PubKeyBLS: r.Keys.BLSPubKeyBytes}
		if err := s.SendQuorum(ctx, hdr, att); err != nil {
			lg.WithError(err).Warn("failed to emit quorum")
		}

		s.outcome = Outcome{Attestation: att, Decided: true}
		return
	}

	s.outcome = Outcome{Attestation: failAttestation(result.Vote, s.validation.StepVotes)}
}

func failAttestation(vote message.Vote, validationSV message.StepVotes) *message.Attestation {
	return &message.Attestation{
		Result:     message.NewFailResult(vote),
		Validation: validationSV,
	}
}

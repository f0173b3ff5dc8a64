// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package iteration implements the Iteration Controller (spec.md
// §4.6): it sequences Proposal, Validation and Ratification for one
// iteration via the Phase/PhaseFn continuation chain, then reports
// whether the iteration decided the round or failed.
package iteration

import (
	"context"

	"github.com/dusk-network/dusk-consensus/pkg/core/consensus"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/proposal"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/ratification"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/validation"
	"github.com/dusk-network/dusk-consensus/pkg/p2p/wire/message"
)

// Outcome is what one iteration leaves behind once its step chain runs
// to completion.
type Outcome struct {
	// Attestation is nil only for an emergency-mode skip (no Fail
	// quorum was reached either) — spec.md §4.6's "None in emergency".
	Attestation *message.Attestation
	Decided     bool
	Generator   []byte
}

// Controller wires one iteration's three Step Executors together.
type Controller struct {
	proposal     *proposal.Step
	validation   *validation.Step
	ratification *ratification.Step
}

// New builds a Controller from one capability bundle. All three steps
// share the same Emitter e; each signs over its own step tag when it
// sends a vote.
func New(e *consensus.Emitter, executor consensus.Executor, db consensus.Database) *Controller {
	p := proposal.New(e, executor, db)
	v := validation.New(e, executor, db)
	r := ratification.New(e)

	p.SetNext(v)
	v.SetNext(r)

	return &Controller{proposal: p, validation: v, ratification: r}
}

// Run executes Proposal → Validation → Ratification for one iteration,
// threading failed so far's carried-forward record in as the Proposal
// step's input, and returns the iteration's Outcome. A nil return means
// ctx was canceled before the chain completed.
func (c *Controller) Run(ctx context.Context, queue *consensus.Queue, evChan chan message.Message, r consensus.RoundUpdate, it uint8, failed *message.FailedIterations) (*Outcome, error) {
	generators := r.CommitteeSet(it, r.Sizes).Proposal.MemberKeys()

	var generator []byte
	if len(generators) > 0 {
		generator = generators[0]
	}

	// Pass a bare nil InternalPacket rather than the (possibly nil)
	// *message.FailedIterations variable directly: boxing a nil pointer
	// of a concrete type into an interface produces a non-nil interface
	// value, which would defeat Step.Fn's own `prev != nil` check.
	var packet consensus.InternalPacket
	if failed != nil {
		packet = failed
	}

	fn := c.proposal.Fn(packet)

	for fn != nil {
		next, err := fn(ctx, queue, evChan, r, it)
		if err != nil {
			return nil, err
		}

		fn = next
	}

	if ctx.Err() != nil {
		return nil, nil
	}

	o := c.ratification.Outcome()

	return &Outcome{Attestation: o.Attestation, Decided: o.Decided, Generator: generator}, nil
}

// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package driver implements the Round Driver (spec.md §4.7): it spawns
// the Quorum Collector, runs the Iteration Controller across
// iterations 0, 1, 2, … until one decides or the round is canceled,
// and dispatches inbound messages to the active step, the Message
// Registry, or the Quorum Collector.
//
// Current-iteration delivery is round/iteration-grained rather than
// the full round/iteration/step triple spec.md §4.7 describes: a
// message for the current iteration is delivered to the active step's
// channel regardless of which of the three steps is currently
// running, and each Step Executor already discards messages whose
// topic doesn't match its own (see validation.Step.Run,
// ratification.Step.Run). This is equivalent in effect — a Validation
// vote arriving during Ratification is neither acted on nor lost, just
// ignored until it ages out — without the driver needing visibility
// into the Iteration Controller's internal step transitions.
//
// Parking a future-iteration message is not step-agnostic the same
// way: the registry buckets by the full Cursor, and only the step that
// eventually calls Queue.GetEvents for that exact bucket will ever
// drain it. A parked message is therefore keyed by the step its own
// topic belongs to (see stepForTopic), not by whatever step happens to
// be running when it arrives — otherwise a Validation or Ratification
// vote parked ahead of its iteration would sit in the Proposal bucket
// and never reach the step that needs it.
package driver

import (
	"bytes"
	"context"
	"sync"

	"github.com/dusk-network/dusk-consensus/pkg/config"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/candidate"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/committee"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/header"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/iteration"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/key"
	sigverify "github.com/dusk-network/dusk-consensus/pkg/core/consensus/msg"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/quorum"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/registry"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/user"
	"github.com/dusk-network/dusk-consensus/pkg/p2p/wire/message"
	"github.com/dusk-network/dusk-consensus/pkg/p2p/wire/topics"
	log "github.com/sirupsen/logrus"
)

var lg = log.WithField("process", "round driver")

// Inputs is everything the Round Driver needs to run one round
// (spec.md §4.7's "Inputs").
type Inputs struct {
	Keys            key.Keys
	P               *user.Provisioners
	Seed            []byte
	PrevBlockHash   []byte
	PrevBlockHeight uint64
	PrevBlockHeader *candidate.Header
	PrevBlockCert   *message.Attestation
	Sizes           committee.Sizes

	// Faults carries failed_iterations entries from a previous round's
	// run that decided on a later iteration than 0 — empty for a fresh
	// round.
	Faults *message.FailedIterations
}

// Result is what a round produces: a decision, or that it was
// canceled before one was reached.
type Result struct {
	Decided          bool
	Canceled         bool
	Attestation      *message.Attestation
	Generator        []byte
	FailedIterations *message.FailedIterations
}

// Driver runs one round to completion.
type Driver struct {
	Emitter  *consensus.Emitter
	Executor consensus.Executor
	Database consensus.Database
	Registry *registry.Registry

	mu      sync.Mutex
	current registry.Cursor
}

// New returns a Driver. reg may be nil, in which case a fresh
// default-bounded Registry is created.
func New(e *consensus.Emitter, executor consensus.Executor, db consensus.Database, reg *registry.Registry) *Driver {
	if reg == nil {
		reg = registry.NewDefault()
	}

	return &Driver{Emitter: e, Executor: executor, Database: db, Registry: reg}
}

// Run executes round's iteration loop (spec.md §4.7's "Loop"),
// reading dispatched messages from inbound and stopping early if
// cancel fires.
func (d *Driver) Run(ctx context.Context, round uint64, in Inputs, inbound <-chan message.Message, cancel <-chan struct{}) (*Result, error) {
	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	d.setCursor(registry.Cursor{Round: round, Iteration: 0, Step: header.Proposal})

	qc := quorum.NewCollector(in.P, in.Seed, round, quorum.Sizes{Validation: in.Sizes.Validation, Ratification: in.Sizes.Ratification})

	evChan := make(chan message.Message, 256)

	go d.dispatch(runCtx, inbound, round, in.P, evChan, qc)

	cfg := config.Get().Consensus
	timeouts := consensus.NewTimeouts(cfg)

	queue := consensus.NewQueue(d.drain, nil)

	failed := in.Faults

	for it := uint8(0); ; it++ {
		select {
		case <-cancel:
			stop()
			return &Result{Canceled: true}, nil
		case att := <-qc.Decided():
			stop()
			return &Result{Decided: true, Attestation: att}, nil
		default:
		}

		d.setCursor(registry.Cursor{Round: round, Iteration: it, Step: header.Proposal})

		r := consensus.RoundUpdate{
			Round:           round,
			Keys:            in.Keys,
			P:               in.P,
			Seed:            in.Seed,
			Sizes:           in.Sizes,
			PrevBlockHash:   in.PrevBlockHash,
			PrevBlockHeight: in.PrevBlockHeight,
			PrevBlockHeader: in.PrevBlockHeader,
			PrevBlockCert:   in.PrevBlockCert,
			Timeouts:        timeouts,
		}

		ctrl := iteration.New(d.Emitter, d.Executor, d.Database)

		type runResult struct {
			outcome *iteration.Outcome
			err     error
		}

		resultChan := make(chan runResult, 1)

		go func(it uint8) {
			o, err := ctrl.Run(runCtx, queue, evChan, r, it, failed)
			resultChan <- runResult{o, err}
		}(it)

		select {
		case <-cancel:
			stop()
			<-resultChan
			return &Result{Canceled: true}, nil

		case att := <-qc.Decided():
			stop()
			<-resultChan
			return &Result{Decided: true, Attestation: att}, nil

		case res := <-resultChan:
			if res.err != nil {
				return nil, res.err
			}

			if res.outcome == nil {
				return &Result{Canceled: true}, nil
			}

			if res.outcome.Decided {
				return &Result{Decided: true, Attestation: res.outcome.Attestation, Generator: res.outcome.Generator, FailedIterations: failed}, nil
			}

			if failed == nil {
				failed = message.NewFailedIterations(0)
			}

			failed.Add(it, res.outcome.Attestation, res.outcome.Generator)

			lg.WithField("round", round).WithField("iteration", it).Debug("iteration failed, advancing")
		}
	}
}

// setCursor updates the dispatch cursor — called at the start of every
// iteration, from the same goroutine that calls Run, so no lock is
// needed against itself; the mutex only guards against the concurrent
// dispatch goroutine reading it.
func (d *Driver) setCursor(c registry.Cursor) {
	d.mu.Lock()
	d.current = c
	d.mu.Unlock()
}

func (d *Driver) cursor() registry.Cursor {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.current
}

// drain implements the Queue.get side by reading the registry.
func (d *Driver) drain(round uint64, it uint8, step header.StepName) []message.Message {
	cur := registry.Cursor{Round: round, Iteration: it, Step: step}

	entries := d.Registry.Drain(cur)
	msgs := make([]message.Message, 0, len(entries))

	for _, e := range entries {
		if m, ok := e.Payload.(message.Message); ok {
			msgs = append(msgs, m)
		}
	}

	return msgs
}

// stepForTopic maps a wire topic to the step whose registry bucket
// parks it, so a parked message can be found again by the step that
// will eventually call Queue.GetEvents for it. Candidate messages (and
// anything else routed through the registry) park under Proposal,
// since that is the only step that ever looks for them.
func stepForTopic(t topics.Topic) header.StepName {
	switch t {
	case topics.Validation:
		return header.ValidationStep
	case topics.Ratification:
		return header.RatificationStep
	default:
		return header.Proposal
	}
}

// dispatch applies spec.md §4.7's message dispatch rules to every
// message arriving on inbound: drop invalid senders, drop stale
// messages, deliver current-iteration messages to evChan, park
// future-iteration messages in the registry, and always feed Quorum
// payloads to the Quorum Collector regardless of cursor.
func (d *Driver) dispatch(ctx context.Context, inbound <-chan message.Message, round uint64, p *user.Provisioners, evChan chan message.Message, qc *quorum.Collector) {
	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-inbound:
			if !ok {
				return
			}

			qc.Feed(msg)

			if msg.Header.Round != round {
				continue
			}

			if !verifyInbound(p, msg) {
				lg.WithField("topic", msg.Topic.String()).Debug("dropping message with unverified sender")
				continue
			}

			current := d.cursor()

			switch {
			case msg.Header.Iteration < current.Iteration:
				continue

			case msg.Header.Iteration == current.Iteration:
				select {
				case evChan <- msg:
				default:
					lg.WithField("topic", msg.Topic.String()).Warn("evChan full, dropping message")
				}

			default:
				msgCursor := registry.Cursor{Round: msg.Header.Round, Iteration: msg.Header.Iteration, Step: stepForTopic(msg.Topic)}
				d.Registry.Park(current, msgCursor, msg)
			}
		}
	}
}

// verifyInbound applies spec.md §4.7's sender-authentication dispatch
// rule — "verify sender_pubkey is a provisioner and signature is
// valid; otherwise drop" — to the two single-signer topics this core
// routes through the registry/step channels. Quorum messages carry an
// aggregate, not a single sender, and are already fully verified by
// quorum.Collector.Feed before being acted on, so they pass through
// here unchecked; GetCandidate and any other topic are request/
// informational and carry no consensus weight to forge.
func verifyInbound(p *user.Provisioners, m message.Message) bool {
	switch m.Topic {
	case topics.Validation, topics.Ratification:
		vm, ok := m.Payload.(message.VoteMessage)
		if !ok {
			return false
		}

		if p.GetMember(m.Header.PubKeyBLS) == nil {
			return false
		}

		buf := new(bytes.Buffer)
		if err := header.MarshalSignableVote(buf, uint8(m.Topic), m.Header, uint8(vm.Vote.Kind)); err != nil {
			return false
		}

		return sigverify.VerifyBLSSignature(m.Header.PubKeyBLS, buf.Bytes(), vm.Signature) == nil

	case topics.Candidate:
		cm, ok := m.Payload.(candidate.Message)
		if !ok || cm.Block == nil || cm.Block.Header == nil {
			return false
		}

		if p.GetMember(cm.Block.Header.GeneratorPubKey) == nil {
			return false
		}

		return sigverify.VerifyBLSSignature(cm.Block.Header.GeneratorPubKey, cm.Block.Header.BlockHash, cm.Block.Header.Signature) == nil

	default:
		return true
	}
}

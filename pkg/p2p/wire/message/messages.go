// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package message

import (
	"bytes"
	"fmt"

	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/header"
	"github.com/dusk-network/dusk-consensus/pkg/p2p/wire/encoding"
	"github.com/dusk-network/dusk-consensus/pkg/p2p/wire/topics"
)

// Message is the common envelope every consensus wire payload travels
// in: a routing Header plus the signature over (topic, header, payload)
// that authenticates it (spec.md §3's `Message`).
type Message struct {
	Header    header.Header
	Topic     topics.Topic
	Signature []byte
	Payload   interface{}
}

// Sender returns the BLS public key of whoever signed this message.
func (m Message) Sender() []byte {
	return m.Header.Sender()
}

// VoteMessage carries a single committee member's vote for a step
// (wire topics Validation and Ratification share this shape).
type VoteMessage struct {
	Header    header.Header
	Vote      Vote
	Signature []byte
}

// MarshalVoteMessage writes a VoteMessage to the wire.
func MarshalVoteMessage(r *bytes.Buffer, m *VoteMessage) error {
	if err := header.Marshal(r, m.Header); err != nil {
		return err
	}

	if err := MarshalVote(r, m.Vote); err != nil {
		return err
	}

	return encoding.WriteBLS(r, m.Signature)
}

// UnmarshalVoteMessage reads a VoteMessage from the wire.
func UnmarshalVoteMessage(r *bytes.Buffer) (*VoteMessage, error) {
	m := &VoteMessage{}

	if err := header.Unmarshal(r, &m.Header); err != nil {
		return nil, err
	}

	vote, err := UnmarshalVote(r)
	if err != nil {
		return nil, err
	}

	m.Vote = vote

	sig := make([]byte, 48)
	if err := encoding.ReadBLS(r, sig); err != nil {
		return nil, err
	}

	m.Signature = sig
	return m, nil
}

// QuorumMessage carries a fully aggregated Attestation for an iteration
// (wire topic Quorum) — the fast-path payload the Quorum Collector
// consumes (spec.md §4.8).
type QuorumMessage struct {
	Header      header.Header
	Attestation *Attestation
}

// MarshalQuorum writes a QuorumMessage to the wire.
func MarshalQuorum(r *bytes.Buffer, m *QuorumMessage) error {
	if err := header.Marshal(r, m.Header); err != nil {
		return err
	}

	return MarshalAttestation(r, m.Attestation)
}

// UnmarshalQuorum reads a QuorumMessage from the wire.
func UnmarshalQuorum(r *bytes.Buffer) (*QuorumMessage, error) {
	m := &QuorumMessage{}

	if err := header.Unmarshal(r, &m.Header); err != nil {
		return nil, err
	}

	att, err := UnmarshalAttestation(r)
	if err != nil {
		return nil, fmt.Errorf("message: unmarshal quorum attestation: %w", err)
	}

	m.Attestation = att
	return m, nil
}

// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package message defines the consensus wire messages (spec.md §6):
// Candidate, Validation, Ratification and Quorum, their StepVotes and
// Attestation payloads, and the bit-exact frame every one of them is
// wrapped in before it reaches the wire.
package message

import (
	"bytes"
	"fmt"

	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/header"
	"github.com/dusk-network/dusk-consensus/pkg/p2p/wire/encoding"
	"github.com/dusk-network/dusk-crypto/bls"
)

// StepVotes is the aggregated form of every vote a committee cast for
// one step: which ordinals contributed (Bitset) and their combined BLS
// signature. Adapted from the teacher's message.StepVotes, dropping the
// cached Apk from the wire form (kept only as a verification-time
// convenience, populated by Add/aggregation, never (un)marshaled).
type StepVotes struct {
	Bitset    uint64
	Signature *bls.Signature
	Apk       *bls.Apk `json:"-"`
}

// NewStepVotes returns an empty StepVotes ready for aggregation.
func NewStepVotes() *StepVotes {
	return &StepVotes{}
}

// IsEmpty reports whether no vote has been aggregated into this
// StepVotes yet.
func (s *StepVotes) IsEmpty() bool {
	return s.Apk == nil
}

// Add aggregates one committee member's signature and public key into
// the StepVotes, setting bit for their ordinal. Mirrors the teacher's
// StepVotes.Add, generalized to take the bit explicitly (this package
// has no access to the committee ordering that computed it).
func (s *StepVotes) Add(signature, sender []byte, bit uint64) error {
	if s.Apk == nil {
		pk, err := bls.UnmarshalPk(sender)
		if err != nil {
			return fmt.Errorf("message: unmarshal voter public key: %w", err)
		}

		s.Apk = bls.NewApk(pk)

		s.Signature, err = bls.UnmarshalSignature(signature)
		if err != nil {
			return fmt.Errorf("message: unmarshal voter signature: %w", err)
		}

		s.Bitset = bit
		return nil
	}

	if s.Bitset&bit != 0 {
		return fmt.Errorf("message: ordinal already aggregated (bit %#x)", bit)
	}

	if err := s.Apk.AggregateBytes(sender); err != nil {
		return fmt.Errorf("message: aggregate voter public key: %w", err)
	}

	if err := s.Signature.AggregateBytes(signature); err != nil {
		return fmt.Errorf("message: aggregate voter signature: %w", err)
	}

	s.Bitset |= bit
	return nil
}

// Copy returns a deep copy of the StepVotes.
func (s *StepVotes) Copy() *StepVotes {
	cpy := &StepVotes{Bitset: s.Bitset}

	if s.Apk != nil {
		cpy.Apk = s.Apk.Copy()
	}

	if s.Signature != nil {
		cpy.Signature = s.Signature.Copy()
	}

	return cpy
}

// Equal reports whether two StepVotes carry the same bitset and
// signature bytes.
func (s *StepVotes) Equal(other *StepVotes) bool {
	if s.Bitset != other.Bitset {
		return false
	}

	if s.Signature == nil || other.Signature == nil {
		return s.Signature == other.Signature
	}

	return bytes.Equal(s.Signature.Compress(), other.Signature.Compress())
}

// VerifyAgainst checks that the StepVotes' aggregated signature verifies
// over the signable vote payload for (topic, round, iteration, step,
// kind, blockHash), reconstructing the aggregate public key from the
// committee members addressed by Bitset.
func (s *StepVotes) VerifyAgainst(committee CommitteeView, topic header.Topic, round uint64, iteration uint8, step header.StepName, blockHash []byte, kind uint8) error {
	keys := committee.KeysForBits(s.Bitset)
	if len(keys) == 0 {
		return fmt.Errorf("message: empty StepVotes bitset")
	}

	pk, err := bls.UnmarshalPk(keys[0])
	if err != nil {
		return fmt.Errorf("message: unmarshal committee key: %w", err)
	}

	apk := bls.NewApk(pk)
	for _, k := range keys[1:] {
		if err := apk.AggregateBytes(k); err != nil {
			return fmt.Errorf("message: aggregate committee key: %w", err)
		}
	}

	return header.VerifySignatures(topic, round, iteration, step, blockHash, kind, apk, s.Signature)
}

// CommitteeView is the minimal read-only surface a StepVotes needs to
// recover an aggregate public key from a bitset — satisfied by
// committee.Committee without this package importing it directly (that
// would invert the dependency: committee sits below the wire format).
type CommitteeView interface {
	KeysForBits(bitset uint64) [][]byte
}

// MarshalStepVotes writes a StepVotes to the wire.
func MarshalStepVotes(r *bytes.Buffer, sv *StepVotes) error {
	if sv == nil || sv.Signature == nil {
		return fmt.Errorf("message: cannot marshal incomplete StepVotes")
	}

	if err := encoding.WriteUint64LE(r, sv.Bitset); err != nil {
		return err
	}

	return encoding.WriteBLS(r, sv.Signature.Compress())
}

// UnmarshalStepVotes reads a StepVotes from the wire. The Apk field is
// left nil: reconstructing it requires the committee that produced the
// bitset, which the caller supplies separately via VerifyAgainst.
func UnmarshalStepVotes(r *bytes.Buffer) (*StepVotes, error) {
	sv := NewStepVotes()

	if err := encoding.ReadUint64LE(r, &sv.Bitset); err != nil {
		return nil, err
	}

	sig := make([]byte, 48)
	if err := encoding.ReadBLS(r, sig); err != nil {
		return nil, err
	}

	signature, err := bls.UnmarshalSignature(sig)
	if err != nil {
		return nil, fmt.Errorf("message: unmarshal StepVotes signature: %w", err)
	}

	sv.Signature = signature
	return sv, nil
}

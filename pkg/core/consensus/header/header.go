// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package header defines the consensus message routing key
// (spec.md §3's ConsensusHeader) and the canonical byte encoding that
// every vote signs and every signature verification reconstructs.
package header

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/dusk-network/dusk-consensus/pkg/p2p/wire/encoding"
	"github.com/dusk-network/dusk-crypto/bls"
)

// Header is the routing key carried by every consensus Message: which
// chain tip it follows, which round/iteration it belongs to, which step
// emitted it, the block hash it refers to (the empty hash for
// NoCandidate/NoQuorum votes) and the sender's BLS public key.
type Header struct {
	PrevBlockHash []byte
	Round         uint64
	Iteration     uint8
	Step          StepName
	BlockHash     []byte
	PubKeyBLS     []byte
}

// StepName identifies which of the three per-iteration steps a Header
// belongs to.
type StepName uint8

// The three steps of spec.md §2, in sequence order.
const (
	Proposal StepName = iota
	ValidationStep
	RatificationStep
)

// String renders a step name for logging.
func (s StepName) String() string {
	switch s {
	case Proposal:
		return "Proposal"
	case ValidationStep:
		return "Validation"
	case RatificationStep:
		return "Ratification"
	default:
		return "Unknown"
	}
}

// EmptyHash is the sentinel block hash carried by NoCandidate/NoQuorum
// votes, which refer to no specific block.
var EmptyHash [32]byte

// Sender returns the BLS public key that authored this header.
func (h Header) Sender() []byte {
	return h.PubKeyBLS
}

// Copy returns a deep copy of the Header.
func (h Header) Copy() Header {
	cpy := Header{
		Round:     h.Round,
		Iteration: h.Iteration,
		Step:      h.Step,
	}

	cpy.PrevBlockHash = append([]byte(nil), h.PrevBlockHash...)
	cpy.BlockHash = append([]byte(nil), h.BlockHash...)
	cpy.PubKeyBLS = append([]byte(nil), h.PubKeyBLS...)
	return cpy
}

// String renders the Header for logging.
func (h Header) String() string {
	return fmt.Sprintf("round=%d iter=%d step=%s hash=%s sender=%s",
		h.Round, h.Iteration, h.Step,
		hex.EncodeToString(h.BlockHash),
		hex.EncodeToString(h.PubKeyBLS))
}

// Equal reports whether two headers address the same routing key
// (ignoring the block hash, and the sender, which may legitimately
// differ between two votes for the same key).
func (h Header) Equal(other Header) bool {
	return bytes.Equal(h.PrevBlockHash, other.PrevBlockHash) &&
		h.Round == other.Round &&
		h.Iteration == other.Iteration &&
		h.Step == other.Step
}

// Marshal writes the wire form of a Header (see spec.md §6's "Message
// header on the wire"): pubkey, round, iteration, block hash, topic.
// The topic byte itself is written by the caller (pkg/p2p/wire/message),
// since it is a property of the payload, not of this routing key.
func Marshal(r *bytes.Buffer, h Header) error {
	if err := encoding.WriteBLSPubKey(r, h.PubKeyBLS); err != nil {
		return err
	}

	if err := encoding.WriteUint64LE(r, h.Round); err != nil {
		return err
	}

	if err := encoding.WriteUint8(r, h.Iteration); err != nil {
		return err
	}

	if err := encoding.Write256(r, h.BlockHash); err != nil {
		return err
	}

	return nil
}

// Unmarshal reads the wire form of a Header into *h.
func Unmarshal(r *bytes.Buffer, h *Header) error {
	if err := encoding.ReadBLSPubKey(r, &h.PubKeyBLS); err != nil {
		return err
	}

	if err := encoding.ReadUint64LE(r, &h.Round); err != nil {
		return err
	}

	if err := encoding.ReadUint8(r, &h.Iteration); err != nil {
		return err
	}

	return encoding.Read256(r, &h.BlockHash)
}

// Topic identifies which wire topic a vote was emitted under — it is
// part of the signed payload (spec.md §3: "the signature verifies over
// (topic, round, iteration, step, vote_payload)") even though it is not
// a field of Header itself, so every signing/verifying call site
// supplies it explicitly alongside the Header.
type Topic = uint8

// MarshalSignableVote writes the exact byte sequence a step vote signs:
// (topic, round, iteration, step, vote kind, block hash) — the
// "vote_payload" of spec.md §3's signed-message rule. The sender is
// deliberately excluded (it would make the signature self-referential).
// kind is the message.VoteKind of the vote being signed, taken as a
// plain uint8 since this package sits below message and cannot import
// its type; binding it into the signed payload keeps a Valid(h) and an
// Invalid(h) vote for the same hash from producing identical signable
// bytes.
func MarshalSignableVote(r *bytes.Buffer, topic Topic, h Header, kind uint8) error {
	if err := encoding.WriteUint8(r, topic); err != nil {
		return err
	}

	if err := encoding.WriteUint64LE(r, h.Round); err != nil {
		return err
	}

	if err := encoding.WriteUint8(r, h.Iteration); err != nil {
		return err
	}

	if err := encoding.WriteUint8(r, uint8(h.Step)); err != nil {
		return err
	}

	if err := encoding.WriteUint8(r, kind); err != nil {
		return err
	}

	return encoding.Write256(r, h.BlockHash)
}

// VerifySignatures verifies a BLS signature over the signable encoding
// of (topic, round, iteration, step, kind, blockHash) against an
// aggregated public key, as used by the Attestation Verifier
// (spec.md §4.4).
func VerifySignatures(topic Topic, round uint64, iteration uint8, step StepName, blockHash []byte, kind uint8, apk *bls.Apk, signature *bls.Signature) error {
	buf := new(bytes.Buffer)
	hdr := Header{Round: round, Iteration: iteration, Step: step, BlockHash: blockHash}

	if err := MarshalSignableVote(buf, topic, hdr, kind); err != nil {
		return err
	}

	return bls.Verify(apk, buf.Bytes(), signature)
}

// ErrInvalidStepName is returned when a wire step byte does not map to
// any of the three known steps.
var ErrInvalidStepName = errors.New("header: invalid step name")

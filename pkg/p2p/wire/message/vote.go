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
)

// VoteKind discriminates the tagged union a committee member's vote can
// take (spec.md §3): a generator produced no candidate, the candidate
// was invalid, the candidate was valid, or (Ratification only) no
// quorum was reached on the prior step.
type VoteKind uint8

const (
	// NoCandidate means the voter saw no candidate to vote on.
	NoCandidate VoteKind = iota
	// Invalid means the voter rejected the candidate it saw.
	Invalid
	// Valid means the voter accepts the candidate identified by Hash.
	Valid
	// NoQuorum means the voter observed no quorum on the step it
	// echoes (Ratification-only).
	NoQuorum
)

// String renders a vote kind for logging.
func (k VoteKind) String() string {
	switch k {
	case NoCandidate:
		return "NoCandidate"
	case Invalid:
		return "Invalid"
	case Valid:
		return "Valid"
	case NoQuorum:
		return "NoQuorum"
	default:
		return "Unknown"
	}
}

// Vote is one committee member's tagged-union ballot for a step. Hash
// is populated only for Valid/Invalid.
type Vote struct {
	Kind VoteKind
	Hash []byte
}

// BlockHash returns the hash this vote addresses on the wire: the
// candidate hash for Valid/Invalid, header.EmptyHash otherwise (per
// spec.md §3: "the empty hash for NoCandidate/NoQuorum votes").
func (v Vote) BlockHash() []byte {
	if v.Kind == Valid || v.Kind == Invalid {
		return v.Hash
	}

	return header.EmptyHash[:]
}

// Equal reports whether two votes carry the same kind and (if
// applicable) the same hash.
func (v Vote) Equal(other Vote) bool {
	if v.Kind != other.Kind {
		return false
	}

	return bytes.Equal(v.BlockHash(), other.BlockHash())
}

// MarshalVote writes a Vote to the wire: kind byte, then the hash (only
// present for Valid/Invalid).
func MarshalVote(r *bytes.Buffer, v Vote) error {
	if err := encoding.WriteUint8(r, uint8(v.Kind)); err != nil {
		return err
	}

	if v.Kind == Valid || v.Kind == Invalid {
		return encoding.Write256(r, v.Hash)
	}

	return nil
}

// UnmarshalVote reads a Vote from the wire.
func UnmarshalVote(r *bytes.Buffer) (Vote, error) {
	var kind uint8
	if err := encoding.ReadUint8(r, &kind); err != nil {
		return Vote{}, err
	}

	v := Vote{Kind: VoteKind(kind)}

	if v.Kind == Valid || v.Kind == Invalid {
		if err := encoding.Read256(r, &v.Hash); err != nil {
			return Vote{}, err
		}
	}

	if v.Kind > NoQuorum {
		return Vote{}, fmt.Errorf("message: unknown vote kind %d", kind)
	}

	return v, nil
}

// RatificationResult is the outcome an Attestation certifies: either
// Success over a Valid vote, or one of the Fail variants (spec.md §3,
// §9: "explicit Fail(vote) variants").
type RatificationResult struct {
	SuccessVote Vote
}

// IsSuccess reports whether the result certifies acceptance of a block.
func (r RatificationResult) IsSuccess() bool {
	return r.SuccessVote.Kind == Valid
}

// NewSuccessResult builds the Success(Valid(hash)) result.
func NewSuccessResult(hash []byte) RatificationResult {
	return RatificationResult{SuccessVote: Vote{Kind: Valid, Hash: hash}}
}

// NewFailResult builds a Fail(vote) result for one of NoCandidate,
// Invalid or NoQuorum.
func NewFailResult(vote Vote) RatificationResult {
	return RatificationResult{SuccessVote: vote}
}

// MarshalRatificationResult writes a RatificationResult to the wire.
func MarshalRatificationResult(r *bytes.Buffer, res RatificationResult) error {
	return MarshalVote(r, res.SuccessVote)
}

// UnmarshalRatificationResult reads a RatificationResult from the wire.
func UnmarshalRatificationResult(r *bytes.Buffer) (RatificationResult, error) {
	vote, err := UnmarshalVote(r)
	if err != nil {
		return RatificationResult{}, err
	}

	return RatificationResult{SuccessVote: vote}, nil
}

// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package message

import (
	"bytes"
	"fmt"

	"github.com/dusk-network/dusk-consensus/pkg/p2p/wire/encoding"
)

// Attestation bundles the two aggregated StepVotes an iteration
// produces, plus what they certify (spec.md §3), replacing the
// teacher's two-StepVotes Certificate with an explicit result tag.
type Attestation struct {
	Result       RatificationResult
	Validation   StepVotes
	Ratification StepVotes
}

// IsEmpty reports whether either half of the Attestation has not been
// aggregated yet.
func (a *Attestation) IsEmpty() bool {
	return a.Validation.IsEmpty() || a.Ratification.IsEmpty()
}

// Equal reports whether two Attestations certify the same result with
// the same vote aggregates.
func (a *Attestation) Equal(other *Attestation) bool {
	return a.Result.SuccessVote.Equal(other.Result.SuccessVote) &&
		a.Validation.Equal(&other.Validation) &&
		a.Ratification.Equal(&other.Ratification)
}

// MarshalAttestation writes an Attestation to the wire.
func MarshalAttestation(r *bytes.Buffer, a *Attestation) error {
	if err := MarshalRatificationResult(r, a.Result); err != nil {
		return err
	}

	if err := MarshalStepVotes(r, &a.Validation); err != nil {
		return fmt.Errorf("message: marshal validation votes: %w", err)
	}

	return MarshalStepVotes(r, &a.Ratification)
}

// UnmarshalAttestation reads an Attestation from the wire.
func UnmarshalAttestation(r *bytes.Buffer) (*Attestation, error) {
	result, err := UnmarshalRatificationResult(r)
	if err != nil {
		return nil, err
	}

	validation, err := UnmarshalStepVotes(r)
	if err != nil {
		return nil, fmt.Errorf("message: unmarshal validation votes: %w", err)
	}

	ratification, err := UnmarshalStepVotes(r)
	if err != nil {
		return nil, fmt.Errorf("message: unmarshal ratification votes: %w", err)
	}

	return &Attestation{
		Result:       result,
		Validation:   *validation,
		Ratification: *ratification,
	}, nil
}

// FailedAttestation is one entry of FailedIterations: the Fail
// Attestation an iteration converged on, and the generator whose
// iteration it was (retained per SPEC_FULL.md's Open Question
// decision, so a future round can penalize it) — nil marks an
// emergency-mode skip of that iteration.
type FailedAttestation struct {
	Attestation *Attestation
	Generator   []byte
}

// FailedIterations is the ordered-by-iteration record of every
// iteration that did not reach Success before the winning one
// (spec.md §3's invariant: `failed_iterations.len() == iteration`).
type FailedIterations struct {
	Entries []*FailedAttestation
}

// NewFailedIterations returns a FailedIterations pre-sized for
// iteration entries (indices 0..iteration-1), all emergency-skipped.
func NewFailedIterations(iteration uint8) *FailedIterations {
	return &FailedIterations{Entries: make([]*FailedAttestation, iteration)}
}

// Add records the outcome of iteration i.
func (f *FailedIterations) Add(i uint8, att *Attestation, generator []byte) {
	for uint8(len(f.Entries)) <= i {
		f.Entries = append(f.Entries, nil)
	}

	if att == nil {
		f.Entries[i] = nil
		return
	}

	f.Entries[i] = &FailedAttestation{Attestation: att, Generator: generator}
}

// Len reports how many iterations are recorded.
func (f *FailedIterations) Len() int {
	return len(f.Entries)
}

// MarshalFailedIterations writes a FailedIterations to the wire: a
// varint length, then one presence byte and (if present) a
// marshaled Attestation + generator key per entry.
func MarshalFailedIterations(r *bytes.Buffer, f *FailedIterations) error {
	if err := encoding.WriteVarInt(r, uint64(len(f.Entries))); err != nil {
		return err
	}

	for _, entry := range f.Entries {
		if entry == nil {
			if err := encoding.WriteUint8(r, 0); err != nil {
				return err
			}

			continue
		}

		if err := encoding.WriteUint8(r, 1); err != nil {
			return err
		}

		if err := MarshalAttestation(r, entry.Attestation); err != nil {
			return err
		}

		if err := encoding.WriteVarBytes(r, entry.Generator); err != nil {
			return err
		}
	}

	return nil
}

// UnmarshalFailedIterations reads a FailedIterations from the wire.
func UnmarshalFailedIterations(r *bytes.Buffer) (*FailedIterations, error) {
	length, err := encoding.ReadVarInt(r)
	if err != nil {
		return nil, err
	}

	f := &FailedIterations{Entries: make([]*FailedAttestation, length)}

	for i := uint64(0); i < length; i++ {
		var present uint8
		if err := encoding.ReadUint8(r, &present); err != nil {
			return nil, err
		}

		if present == 0 {
			continue
		}

		att, err := UnmarshalAttestation(r)
		if err != nil {
			return nil, err
		}

		var generator []byte
		if err := encoding.ReadVarBytes(r, &generator); err != nil {
			return nil, err
		}

		f.Entries[i] = &FailedAttestation{Attestation: att, Generator: generator}
	}

	return f, nil
}

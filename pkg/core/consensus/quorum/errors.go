// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package quorum

import "fmt"

// AttestationError is the failure taxonomy of the Attestation Verifier
// (spec.md §4.4/§7).
type AttestationError struct {
	Kind AttestationErrorKind
	Step string
	Err  error
}

// AttestationErrorKind enumerates the six ways verify_att can fail.
type AttestationErrorKind int

const (
	// InvalidHash means the attested result does not match the
	// expected decision.
	InvalidHash AttestationErrorKind = iota
	// InvalidResult means the attested result's shape (Success vs.
	// Fail) does not match what was expected.
	InvalidResult
	// InvalidVotes means a step's StepVotes failed validation
	// independent of its signature (e.g. an empty bitset).
	InvalidVotes
	// SignatureVerification means the aggregated BLS signature did not
	// verify.
	SignatureVerification
	// CommitteeDerivation means sortition could not derive a usable
	// committee for a step (e.g. zero eligible stake).
	CommitteeDerivation
	// QuorumNotReached means the summed credits fell short of the
	// step's super-majority threshold.
	QuorumNotReached
)

func (k AttestationErrorKind) String() string {
	switch k {
	case InvalidHash:
		return "InvalidHash"
	case InvalidResult:
		return "InvalidResult"
	case InvalidVotes:
		return "InvalidVotes"
	case SignatureVerification:
		return "SignatureVerification"
	case CommitteeDerivation:
		return "CommitteeDerivation"
	case QuorumNotReached:
		return "QuorumNotReached"
	default:
		return "Unknown"
	}
}

// Error implements the error interface.
func (e *AttestationError) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("quorum: %s (%s): %v", e.Kind, e.Step, e.Err)
	}

	return fmt.Sprintf("quorum: %s: %v", e.Kind, e.Err)
}

// Unwrap exposes the wrapped cause for errors.Is/As.
func (e *AttestationError) Unwrap() error {
	return e.Err
}

func newErr(kind AttestationErrorKind, step string, err error) *AttestationError {
	return &AttestationError{Kind: kind, Step: step, Err: err}
}

// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package quorum implements the Attestation Verifier (spec.md §4.4,
// component C4): the single function every inbound Quorum message and
// every Fail attestation in a candidate's failed_iterations record must
// pass before its decision is trusted.
package quorum

import (
	"errors"
	"fmt"

	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/committee"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/header"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/user"
	"github.com/dusk-network/dusk-consensus/pkg/p2p/wire/message"
	"github.com/dusk-network/dusk-consensus/pkg/p2p/wire/topics"
)

// Sizes configures the committee sizes verification derives sortition
// against — the same VALIDATION_COMMITTEE_SIZE/RATIFICATION_COMMITTEE_SIZE
// the committees were originally extracted with (spec.md §6).
type Sizes struct {
	Validation   uint32
	Ratification uint32
}

// Result is what a successful verification establishes: per-step
// quorum evidence and the merged voter list (spec.md §4.4 rule 5).
type Result struct {
	ValidationCredits   uint32
	RatificationCredits uint32
	Voters              map[string]uint32
}

// Verify checks att against the round/iteration context, the expected
// result, and the provisioner set at the time, per spec.md §4.4's five
// rules. seed, round and iteration identify the sortition context the
// committees must be re-derived with.
func Verify(att *message.Attestation, round uint64, iteration uint8, seed []byte, provisioners *user.Provisioners, expected message.RatificationResult, sizes Sizes) (Result, error) {
	if err := checkResultShape(att.Result, expected); err != nil {
		return Result{}, err
	}

	validationCommittee := committee.Extract(provisioners, seed, round, iteration, header.ValidationStep, sizes.Validation)
	if validationCommittee.Size() == 0 {
		return Result{}, newErr(CommitteeDerivation, "validation", errors.New("empty committee"))
	}

	ratificationCommittee := committee.Extract(provisioners, seed, round, iteration, header.RatificationStep, sizes.Ratification)
	if ratificationCommittee.Size() == 0 {
		return Result{}, newErr(CommitteeDerivation, "ratification", errors.New("empty committee"))
	}

	blockHash := att.Result.SuccessVote.BlockHash()
	kind := uint8(att.Result.SuccessVote.Kind)

	validationCredits, err := verifyStep(&att.Validation, validationCommittee, uint8(topics.Validation), round, iteration, header.ValidationStep, blockHash, kind, "validation")
	if err != nil {
		return Result{}, err
	}

	ratificationCredits, err := verifyStep(&att.Ratification, ratificationCommittee, uint8(topics.Ratification), round, iteration, header.RatificationStep, blockHash, kind, "ratification")
	if err != nil {
		return Result{}, err
	}

	voters := validationCommittee.Voters(att.Validation.Bitset)
	for k, v := range ratificationCommittee.Voters(att.Ratification.Bitset) {
		voters[k] += v
	}

	return Result{
		ValidationCredits:   validationCredits,
		RatificationCredits: ratificationCredits,
		Voters:              voters,
	}, nil
}

// checkResultShape applies spec.md §4.4 rule 1: a Success expectation
// demands a matching Success(Valid(h)) result; a Fail expectation
// demands any Fail result.
func checkResultShape(got, expected message.RatificationResult) error {
	if expected.IsSuccess() {
		if !got.IsSuccess() {
			return newErr(InvalidResult, "", fmt.Errorf("expected Success, got %s", got.SuccessVote.Kind))
		}

		if !got.SuccessVote.Equal(expected.SuccessVote) {
			return newErr(InvalidHash, "", fmt.Errorf("expected hash %x, got %x", expected.SuccessVote.Hash, got.SuccessVote.Hash))
		}

		return nil
	}

	if got.IsSuccess() {
		return newErr(InvalidResult, "", fmt.Errorf("expected Fail, got Success"))
	}

	return nil
}

func verifyStep(sv *message.StepVotes, c *committee.Committee, topic uint8, round uint64, iteration uint8, step header.StepName, blockHash []byte, kind uint8, label string) (uint32, error) {
	if sv.Bitset == 0 || sv.Signature == nil {
		return 0, newErr(InvalidVotes, label, errors.New("empty step votes"))
	}

	if err := sv.VerifyAgainst(c, topic, round, iteration, step, blockHash, kind); err != nil {
		return 0, newErr(SignatureVerification, label, err)
	}

	credits := c.CreditsForBits(sv.Bitset)
	if credits < c.QuorumThreshold() {
		return 0, newErr(QuorumNotReached, label, fmt.Errorf("%d/%d credits", credits, c.QuorumThreshold()))
	}

	return credits, nil
}

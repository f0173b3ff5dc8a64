// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package committee wraps a sortition.Extract result into the compact,
// bitset-addressable view the rest of the consensus core votes against
// (spec.md §4.2, component C2): every committee member gets a stable
// ordinal, so a StepVotes bitset and a quorum threshold can be computed
// without re-running sortition.
package committee

import (
	"math"

	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/header"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/sortition"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/user"
	"github.com/dusk-network/dusk-consensus/pkg/util/nativeutils/sortedset"
)

// MaxSize is the largest committee this package can address: a
// StepVotes bitset is a single uint64, so no step's committee may
// exceed 64 members (spec.md §3).
const MaxSize = 64

// Committee is the ordered, bit-addressable view of one step's
// sortition result.
type Committee struct {
	order   sortedset.Set
	credits map[string]uint32
	total   uint32
}

// Extract runs sortition for (seed, round, iteration, step, size) and
// wraps the result into a Committee. size is clamped to MaxSize, since
// no step's quorum bitset can address more than 64 ordinals.
func Extract(provisioners *user.Provisioners, seed []byte, round uint64, iteration uint8, step header.StepName, size uint32) *Committee {
	if size > MaxSize {
		size = MaxSize
	}

	extractions := sortition.Extract(provisioners, seed, round, iteration, step, size)

	c := &Committee{
		order:   sortedset.New(),
		credits: make(map[string]uint32, len(extractions)),
	}

	for _, e := range extractions {
		c.order.Insert(e.PubKeyBLS)
		c.credits[string(e.PubKeyBLS)] = e.Credits
		c.total += e.Credits
	}

	return c
}

// Size is the total credits represented by the committee (≤ the
// requested size, per spec.md §4.1's cap policy).
func (c *Committee) Size() uint32 {
	return c.total
}

// Credits returns how many credits pubKeyBLS won in this committee.
func (c *Committee) Credits(pubKeyBLS []byte) uint32 {
	return c.credits[string(pubKeyBLS)]
}

// IsMember reports whether pubKeyBLS holds at least one seat.
func (c *Committee) IsMember(pubKeyBLS []byte) bool {
	return c.Credits(pubKeyBLS) > 0
}

// BitFor returns the single-bit mask pubKeyBLS occupies in a StepVotes
// bitset, and whether it is a member at all.
func (c *Committee) BitFor(pubKeyBLS []byte) (uint64, bool) {
	idx, found := c.order.IndexOf(pubKeyBLS)
	if !found || !c.IsMember(pubKeyBLS) {
		return 0, false
	}

	return uint64(1) << uint(idx), true
}

// Bits computes the bitset covering every key in set that is also a
// committee member — used when closing a local aggregation into a
// StepVotes.
func (c *Committee) Bits(set sortedset.Set) uint64 {
	var bitset uint64

	for i := 0; i < set.Len(); i++ {
		key := set.Bytes(i)
		if bit, ok := c.BitFor(key); ok {
			bitset |= bit
		}
	}

	return bitset
}

// MemberKeys returns every committee member's public key, in ordinal
// order.
func (c *Committee) MemberKeys() [][]byte {
	keys := make([][]byte, 0, c.order.Len())
	for i := 0; i < c.order.Len(); i++ {
		keys = append(keys, c.order.Bytes(i))
	}

	return keys
}

// CreditsForBits sums the credits of the committee members whose bit is
// set in bitset — the weight a verified StepVotes actually represents.
func (c *Committee) CreditsForBits(bitset uint64) uint32 {
	var total uint32
	for i := 0; i < c.order.Len(); i++ {
		if bitset&(uint64(1)<<uint(i)) == 0 {
			continue
		}

		total += c.credits[string(c.order.Bytes(i))]
	}

	return total
}

// KeysForBits returns the public keys addressed by the set bits in
// bitset, in ordinal order — used to reconstruct an aggregate BLS
// public key for signature verification.
func (c *Committee) KeysForBits(bitset uint64) [][]byte {
	keys := make([][]byte, 0)
	for i := 0; i < c.order.Len(); i++ {
		if bitset&(uint64(1)<<uint(i)) == 0 {
			continue
		}

		keys = append(keys, c.order.Bytes(i))
	}

	return keys
}

// Voters returns, for every member addressed by bitset, its credit
// weight — the merged voter list an Attestation Verifier returns
// alongside quorum evidence (spec.md §4.4 rule 5).
func (c *Committee) Voters(bitset uint64) map[string]uint32 {
	voters := make(map[string]uint32)
	for _, key := range c.KeysForBits(bitset) {
		voters[string(key)] = c.credits[string(key)]
	}

	return voters
}

// Kind distinguishes the two quorum thresholds the spec defines.
type Kind int

const (
	// Validation is the Validation-step super-majority.
	Validation Kind = iota
	// Ratification is the Ratification-step super-majority, numerically
	// identical to Validation but kept distinct since the two steps'
	// committees are independently derived and may differ in size.
	Ratification
)

// Threshold returns the super-majority threshold for a committee of the
// given size, per spec.md §3: ⌈2·size/3⌉.
func Threshold(size uint32) uint32 {
	return uint32(math.Ceil(float64(size) * 2.0 / 3.0))
}

// QuorumThreshold returns this committee's own super-majority
// threshold.
func (c *Committee) QuorumThreshold() uint32 {
	return Threshold(c.total)
}

// Set is a CommitteeSet: the three per-iteration committees (Proposal,
// Validation, Ratification), derived together by ExtractSet. A Set is
// not cached between calls.
type Set struct {
	Proposal     *Committee
	Validation   *Committee
	Ratification *Committee
}

// Sizes bundles the configured target committee size for each of the
// three steps (spec.md §6: PROPOSAL_COMMITTEE_SIZE is fixed to 1,
// VALIDATION_COMMITTEE_SIZE/RATIFICATION_COMMITTEE_SIZE are
// configurable).
type Sizes struct {
	Proposal     uint32
	Validation   uint32
	Ratification uint32
}

// ExtractSet derives all three step committees for one iteration.
func ExtractSet(provisioners *user.Provisioners, seed []byte, round uint64, iteration uint8, proposalSize, validationSize, ratificationSize uint32) *Set {
	return &Set{
		Proposal:     Extract(provisioners, seed, round, iteration, header.Proposal, proposalSize),
		Validation:   Extract(provisioners, seed, round, iteration, header.ValidationStep, validationSize),
		Ratification: Extract(provisioners, seed, round, iteration, header.RatificationStep, ratificationSize),
	}
}

// For returns the committee for the named step.
func (s *Set) For(step header.StepName) *Committee {
	switch step {
	case header.Proposal:
		return s.Proposal
	case header.ValidationStep:
		return s.Validation
	case header.RatificationStep:
		return s.Ratification
	default:
		return nil
	}
}

// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package sortition implements deterministic, stake-weighted committee
// extraction (spec.md §4.1, component C1): given a seed, a round, an
// iteration and a step, every honest node must derive the exact same
// committee from the exact same provisioner set.
package sortition

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/header"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/user"
	"golang.org/x/crypto/blake2b"
)

// Extraction is one provisioner's outcome from a sortition draw: its
// public key and how many of the committee's size-many credits it won.
type Extraction struct {
	PubKeyBLS []byte
	Credits   uint32
}

// Extract runs deterministic weighted sortition over the provisioners
// eligible at round, returning a committee of exactly size credits (or
// fewer, capped at the total eligible credits available, per spec.md
// §4.1's edge case). The result is grouped per key, in first-occurrence
// draw order.
func Extract(provisioners *user.Provisioners, seed []byte, round uint64, iteration uint8, step header.StepName, size uint32) []Extraction {
	eligible := provisioners.EligibleSubsetAt(round)
	sortByKey(eligible)

	remaining := make([]uint64, len(eligible))

	var totalStake uint64
	for i, m := range eligible {
		w := m.EligibleStake(round)
		remaining[i] = w
		totalStake += w
	}

	if totalStake == 0 {
		return nil
	}

	order := make([]int, 0, size)
	firstSeen := make(map[int]int, size)
	credits := make(map[int]uint32, size)

	stream := newStream(seed, round, iteration, step)

	left := size
	for left > 0 && totalStake > 0 {
		draw := stream.next() % totalStake

		i := selectByDraw(remaining, draw)
		if _, found := firstSeen[i]; !found {
			firstSeen[i] = len(order)
			order = append(order, i)
		}

		credits[i]++
		remaining[i]--
		totalStake--
		left--
	}

	result := make([]Extraction, 0, len(order))
	for _, i := range order {
		result = append(result, Extraction{
			PubKeyBLS: eligible[i].PublicKeyBLS,
			Credits:   credits[i],
		})
	}

	return result
}

// TotalCredits sums the credits of an Extraction result — the actual
// committee size, which may be less than the requested size if the
// eligible pool ran out of credits (spec.md §4.1's cap policy).
func TotalCredits(extractions []Extraction) uint32 {
	var total uint32
	for _, e := range extractions {
		total += e.Credits
	}

	return total
}

// sortByKey orders members by canonical byte-lex key order, the
// tie-break rule of spec.md §4.1.
func sortByKey(members []*user.Member) {
	sort.Slice(members, func(i, j int) bool {
		return bytes.Compare(members[i].PublicKeyBLS, members[j].PublicKeyBLS) < 0
	})
}

// selectByDraw walks the stake-weighted cumulative distribution over
// remaining, returning the index whose cumulative range covers draw.
func selectByDraw(remaining []uint64, draw uint64) int {
	var cum uint64
	for i, w := range remaining {
		cum += w
		if draw < cum {
			return i
		}
	}

	// Defensive fallback: rounding cannot reach here since draw < total,
	// but return the last nonzero entry rather than panic.
	for i := len(remaining) - 1; i >= 0; i-- {
		if remaining[i] > 0 {
			return i
		}
	}

	return len(remaining) - 1
}

// stream is the deterministic PRF used to draw successive uint64
// values, seeded per spec.md §4.1: H(seed || round_LE || iteration ||
// step_tag), then re-hashed (counter mode over the previous digest) for
// each subsequent draw.
type stream struct {
	digest [32]byte
}

func newStream(seed []byte, round uint64, iteration uint8, step header.StepName) *stream {
	buf := new(bytes.Buffer)
	buf.Write(seed)

	var roundLE [8]byte
	binary.LittleEndian.PutUint64(roundLE[:], round)
	buf.Write(roundLE[:])

	buf.WriteByte(iteration)
	buf.WriteByte(stepTag(step))

	return &stream{digest: blake2b.Sum256(buf.Bytes())}
}

// stepTag disambiguates Proposal/Validation/Ratification within the
// same iteration, per spec.md §4.1 ("offsets 0/1/2").
func stepTag(step header.StepName) byte {
	switch step {
	case header.Proposal:
		return 0
	case header.ValidationStep:
		return 1
	case header.RatificationStep:
		return 2
	default:
		return 0xff
	}
}

// next returns the next pseudo-random uint64 in the stream, advancing
// the internal digest by re-hashing it (counter-mode over the digest
// itself keeps the stream unbounded without growing input).
func (s *stream) next() uint64 {
	v := binary.LittleEndian.Uint64(s.digest[:8])
	s.digest = blake2b.Sum256(s.digest[:])
	return v
}

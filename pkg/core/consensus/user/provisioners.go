// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package user holds the provisioner set: the stake-weighted
// participants eligible to vote in a round, per spec.md §3.
package user

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/dusk-network/dusk-consensus/pkg/p2p/wire/encoding"
	"github.com/dusk-network/dusk-consensus/pkg/util/nativeutils/sortedset"
)

type (
	// Member holds a provisioner's BLS public key and the stakes that
	// back it. A provisioner may carry more than one stake (e.g. a
	// top-up on an existing one); AddStake/SubtractFromStake manage the
	// list as stakes activate, are slashed, or expire.
	Member struct {
		PublicKeyBLS []byte  `json:"bls_key"`
		Stakes       []Stake `json:"stakes"`
	}

	// Provisioners is the set of Members known to the chain, keyed both
	// by a canonical sortedset.Set (for deterministic sortition
	// ordering) and by public key (for O(1) lookup).
	Provisioners struct {
		Set     sortedset.Set
		Members map[string]*Member
	}

	// Stake represents one stake a provisioner has placed. Amount is
	// the stake's weight; EligibilityHeight is the first round at
	// which it counts (spec.md §3: "eligible at round h iff
	// eligibility_height <= h"); LockedHeight, if nonzero, is the round
	// after which the stake can no longer be withdrawn (not consulted
	// by consensus itself, but carried through so a slashing or
	// withdrawal collaborator does not need a second lookup).
	Stake struct {
		Amount            uint64 `json:"amount"`
		EligibilityHeight uint64 `json:"eligibility_height"`
		LockedHeight      uint64 `json:"locked_height"`
	}
)

// AddStake appends a stake to the Member's stake set.
func (m *Member) AddStake(stake Stake) {
	m.Stakes = append(m.Stakes, stake)
}

// RemoveStake removes the Stake at idx (most likely because it expired
// or was slashed to zero), swapping in the last element to avoid a
// shift.
func (m *Member) RemoveStake(idx int) {
	m.Stakes[idx] = m.Stakes[len(m.Stakes)-1]
	m.Stakes = m.Stakes[:len(m.Stakes)-1]
}

// SubtractFromStake detracts amount from the Member's first nonzero
// stake, returning how much was actually subtracted.
func (m *Member) SubtractFromStake(amount uint64) uint64 {
	for i := 0; i < len(m.Stakes); i++ {
		if m.Stakes[i].Amount == 0 {
			continue
		}

		if m.Stakes[i].Amount < amount {
			subtracted := m.Stakes[i].Amount
			m.Stakes[i].Amount = 0
			return subtracted
		}

		m.Stakes[i].Amount -= amount
		return amount
	}

	return 0
}

// EligibleAt reports whether any of the Member's stakes is active at
// round h, per spec.md §3's eligibility rule.
func (m Member) EligibleAt(round uint64) bool {
	for _, s := range m.Stakes {
		if s.EligibilityHeight <= round {
			return true
		}
	}

	return false
}

// EligibleStake sums the stake amounts active at round h.
func (m Member) EligibleStake(round uint64) uint64 {
	var total uint64
	for _, s := range m.Stakes {
		if s.EligibilityHeight <= round {
			total += s.Amount
		}
	}

	return total
}

// NewProvisioners instantiates an empty Provisioners set.
func NewProvisioners() *Provisioners {
	return &Provisioners{
		Set:     sortedset.New(),
		Members: make(map[string]*Member),
	}
}

// AddMember inserts or tops up a Member's stake, creating the Member if
// this is its first stake.
func (p *Provisioners) AddMember(pubKeyBLS []byte, stake Stake) {
	m, found := p.Members[string(pubKeyBLS)]
	if !found {
		m = &Member{PublicKeyBLS: append([]byte(nil), pubKeyBLS...)}
		p.Members[string(pubKeyBLS)] = m
		p.Set.Insert(pubKeyBLS)
	}

	m.AddStake(stake)
}

// EligibleSubsetAt returns the Members eligible at round h, in
// canonical key order — the population sortition draws from.
func (p Provisioners) EligibleSubsetAt(round uint64) []*Member {
	members := make([]*Member, 0, p.Set.Len())
	for i := 0; i < p.Set.Len(); i++ {
		m := p.Members[string(p.Set.Bytes(i))]
		if m != nil && m.EligibleAt(round) {
			members = append(members, m)
		}
	}

	return members
}

// SubsetSizeAt returns how many provisioners are active at round h.
func (p Provisioners) SubsetSizeAt(round uint64) int {
	return len(p.EligibleSubsetAt(round))
}

// MemberAt returns the Member at ordinal index i of the canonical set.
func (p Provisioners) MemberAt(i int) (*Member, error) {
	if i < 0 || i >= p.Set.Len() {
		return nil, errors.New("user: index out of bound")
	}

	return p.Members[string(p.Set.Bytes(i))], nil
}

// GetMember looks up a Member by BLS public key.
func (p Provisioners) GetMember(pubKeyBLS []byte) *Member {
	return p.Members[string(pubKeyBLS)]
}

// GetStake returns the total stake (eligible or not) held by pubKeyBLS.
func (p Provisioners) GetStake(pubKeyBLS []byte) (uint64, error) {
	if len(pubKeyBLS) != 96 {
		return 0, fmt.Errorf("user: public key is %d bytes long instead of 96", len(pubKeyBLS))
	}

	m, found := p.Members[string(pubKeyBLS)]
	if !found {
		return 0, fmt.Errorf("user: public key %x not found among provisioner set", pubKeyBLS)
	}

	var total uint64
	for _, s := range m.Stakes {
		total += s.Amount
	}

	return total, nil
}

// TotalWeight sums every Member's total stake, regardless of
// eligibility.
func (p *Provisioners) TotalWeight() (total uint64) {
	for _, m := range p.Members {
		for _, s := range m.Stakes {
			total += s.Amount
		}
	}

	return total
}

// TotalEligibleWeight sums the eligible stake at round h — the pool
// sortition draws weighted credits from (spec.md §4.1).
func (p *Provisioners) TotalEligibleWeight(round uint64) (total uint64) {
	for _, m := range p.Members {
		total += m.EligibleStake(round)
	}

	return total
}

// MarshalProvisioners writes the provisioner set to a buffer.
func MarshalProvisioners(r *bytes.Buffer, p *Provisioners) error {
	if err := encoding.WriteVarInt(r, uint64(len(p.Members))); err != nil {
		return err
	}

	for i := 0; i < p.Set.Len(); i++ {
		m := p.Members[string(p.Set.Bytes(i))]
		if err := marshalMember(r, *m); err != nil {
			return err
		}
	}

	return nil
}

func marshalMember(r *bytes.Buffer, member Member) error {
	if err := encoding.WriteVarBytes(r, member.PublicKeyBLS); err != nil {
		return err
	}

	if err := encoding.WriteVarInt(r, uint64(len(member.Stakes))); err != nil {
		return err
	}

	for _, stake := range member.Stakes {
		if err := marshalStake(r, stake); err != nil {
			return err
		}
	}

	return nil
}

func marshalStake(r *bytes.Buffer, stake Stake) error {
	if err := encoding.WriteUint64LE(r, stake.Amount); err != nil {
		return err
	}

	if err := encoding.WriteUint64LE(r, stake.EligibilityHeight); err != nil {
		return err
	}

	return encoding.WriteUint64LE(r, stake.LockedHeight)
}

// UnmarshalProvisioners reads a provisioner set from a buffer.
func UnmarshalProvisioners(r *bytes.Buffer) (Provisioners, error) {
	lMembers, err := encoding.ReadVarInt(r)
	if err != nil {
		return Provisioners{}, err
	}

	p := NewProvisioners()

	for i := uint64(0); i < lMembers; i++ {
		member, err := unmarshalMember(r)
		if err != nil {
			return Provisioners{}, err
		}

		p.Members[string(member.PublicKeyBLS)] = member
		p.Set.Insert(member.PublicKeyBLS)
	}

	return *p, nil
}

func unmarshalMember(r *bytes.Buffer) (*Member, error) {
	member := &Member{}
	if err := encoding.ReadVarBytes(r, &member.PublicKeyBLS); err != nil {
		return nil, err
	}

	lStakes, err := encoding.ReadVarInt(r)
	if err != nil {
		return nil, err
	}

	member.Stakes = make([]Stake, lStakes)
	for i := uint64(0); i < lStakes; i++ {
		member.Stakes[i], err = unmarshalStake(r)
		if err != nil {
			return nil, err
		}
	}

	return member, nil
}

func unmarshalStake(r *bytes.Buffer) (Stake, error) {
	stake := Stake{}
	if err := encoding.ReadUint64LE(r, &stake.Amount); err != nil {
		return Stake{}, err
	}

	if err := encoding.ReadUint64LE(r, &stake.EligibilityHeight); err != nil {
		return Stake{}, err
	}

	if err := encoding.ReadUint64LE(r, &stake.LockedHeight); err != nil {
		return Stake{}, err
	}

	return stake, nil
}

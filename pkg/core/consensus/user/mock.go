// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package user

import (
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/key"
)

// MockProvisioners builds a Provisioners set of size n with equal stake,
// all eligible from round 0, alongside the keys generated for them —
// test fixtures whose keys are freshly generated on every call, so two
// calls yield different provisioner sets. Adapted from the teacher's
// consensus.MockProvisioners helper (pkg/core/consensus, referenced by
// pkg/core/consensus/agreement/handler_test.go).
func MockProvisioners(n int) (*Provisioners, []key.Keys) {
	p := NewProvisioners()
	keys := make([]key.Keys, 0, n)

	for i := 0; i < n; i++ {
		k, err := key.NewRandKeys()
		if err != nil {
			panic(err)
		}

		keys = append(keys, k)
		p.AddMember(k.BLSPubKeyBytes, Stake{Amount: 1000, EligibilityHeight: 0})
	}

	return p, keys
}

// MockProvisionersWithStakes builds a Provisioners set where each
// provisioner i holds the i-th amount in stakes.
func MockProvisionersWithStakes(stakes []uint64) (*Provisioners, []key.Keys) {
	p := NewProvisioners()
	keys := make([]key.Keys, 0, len(stakes))

	for _, amount := range stakes {
		k, err := key.NewRandKeys()
		if err != nil {
			panic(err)
		}

		keys = append(keys, k)
		p.AddMember(k.BLSPubKeyBytes, Stake{Amount: amount, EligibilityHeight: 0})
	}

	return p, keys
}

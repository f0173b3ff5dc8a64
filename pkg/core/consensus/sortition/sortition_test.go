// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package sortition_test

import (
	"testing"

	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/header"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/sortition"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/user"
	"github.com/stretchr/testify/require"
)

func TestExtractIsDeterministic(t *testing.T) {
	p, _ := user.MockProvisioners(50)
	seed := []byte("seed-fixture-for-sortition-tests")

	c1 := sortition.Extract(p, seed, 10, 2, header.ValidationStep, 64)
	c2 := sortition.Extract(p, seed, 10, 2, header.ValidationStep, 64)

	require.Equal(t, c1, c2)
	require.EqualValues(t, 64, sortition.TotalCredits(c1))
}

func TestExtractWeightConservation(t *testing.T) {
	p, _ := user.MockProvisioners(20)
	seed := []byte("weight-conservation-fixture")

	committee := sortition.Extract(p, seed, 5, 0, header.RatificationStep, 64)
	require.EqualValues(t, 64, sortition.TotalCredits(committee))
}

func TestExtractDiffersByStep(t *testing.T) {
	p, _ := user.MockProvisioners(50)
	seed := []byte("step-disambiguation-fixture")

	validation := sortition.Extract(p, seed, 10, 2, header.ValidationStep, 64)
	ratification := sortition.Extract(p, seed, 10, 2, header.RatificationStep, 64)

	require.NotEqual(t, validation, ratification)
}

func TestExtractCapsAtAvailableCredits(t *testing.T) {
	p, _ := user.MockProvisionersWithStakes([]uint64{1, 1, 1})
	seed := []byte("capped-credits-fixture")

	committee := sortition.Extract(p, seed, 1, 0, header.ValidationStep, 64)
	require.EqualValues(t, 3, sortition.TotalCredits(committee))
}

func TestExtractEmptyOnZeroStake(t *testing.T) {
	p := user.NewProvisioners()
	seed := []byte("empty-fixture")

	committee := sortition.Extract(p, seed, 1, 0, header.Proposal, 1)
	require.Empty(t, committee)
}

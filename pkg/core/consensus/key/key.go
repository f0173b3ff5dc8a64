// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package key holds a node's consensus keypair: a BLS keypair used to
// sign votes and candidate blocks, recognized by peers against the
// provisioner set.
package key

import (
	"github.com/dusk-network/dusk-crypto/bls"
)

// Keys bundles a provisioner's BLS secret and public key, alongside the
// public key's raw compressed bytes (the form carried in messages and
// looked up in the provisioner set).
type Keys struct {
	BLSSecretKey   *bls.SecretKey
	BLSPubKey      *bls.PublicKey
	BLSPubKeyBytes []byte
}

// NewRandKeys generates a fresh BLS keypair, for tests and standalone
// tooling. Production nodes load Keys from an encrypted wallet seed.
func NewRandKeys() (Keys, error) {
	sk, pk, err := bls.GenKeyPair(0)
	if err != nil {
		return Keys{}, err
	}

	return Keys{
		BLSSecretKey:   sk,
		BLSPubKey:      pk,
		BLSPubKeyBytes: pk.Marshal(),
	}, nil
}

// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package msg holds small BLS verification helpers shared by the
// Attestation Verifier and the Round Driver's inbound dispatch, kept
// separate from package header to avoid a dependency cycle with the
// packages that verify whole messages (header only, vs header+payload).
package msg

import (
	"github.com/dusk-network/dusk-crypto/bls"
)

// VerifyBLSSignature verifies a single BLS signature by an individual
// signer (not an aggregate) over message, as used to authenticate the
// sender of an inbound Message before it is dispatched to a step or to
// the registry (spec.md §4.7's dispatch rules).
func VerifyBLSSignature(pubKeyBLS, message, signature []byte) error {
	pk, err := bls.UnmarshalPk(pubKeyBLS)
	if err != nil {
		return err
	}

	sig, err := bls.UnmarshalSignature(signature)
	if err != nil {
		return err
	}

	return bls.Verify(bls.NewApk(pk), message, sig)
}

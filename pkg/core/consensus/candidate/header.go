// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package candidate defines the consensus-relevant view of a proposed
// block (spec.md §3's "Candidate block header"). On-chain semantics
// (gas accounting, balances, transaction execution) are explicitly out
// of scope for this core — a candidate carries its transaction set only
// as opaque bytes, left for the Executor capability to interpret.
package candidate

import (
	"bytes"

	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/header"
	"github.com/dusk-network/dusk-consensus/pkg/p2p/wire/encoding"
	"github.com/dusk-network/dusk-consensus/pkg/p2p/wire/message"
	"golang.org/x/crypto/blake2b"
)

// Header is the candidate block header, consensus-relevant fields
// only, per spec.md §3.
type Header struct {
	Version              uint8
	Height               uint64
	Timestamp            int64
	PrevBlockHash        []byte
	Seed                 []byte
	StateHash            []byte
	EventHash            []byte
	GeneratorPubKey      []byte
	TxRoot               []byte
	Iteration            uint8
	GasLimit             uint64
	PrevBlockAttestation *message.Attestation
	FailedIterations     *message.FailedIterations
	BlockHash            []byte
	Signature            []byte
}

// Block bundles a candidate Header with its opaque transaction payload
// — the unit the Proposal step generates or receives, and the
// Validation step inspects.
type Block struct {
	Header *Header
	Txs    []byte
}

// Message carries a generator's proposed block for an iteration (wire
// topic Candidate). It lives in this package rather than
// pkg/p2p/wire/message to avoid that package needing to import this
// one back.
type Message struct {
	Header header.Header
	Block  *Block
}

// MarshalMessage writes a candidate Message to the wire.
func MarshalMessage(r *bytes.Buffer, m *Message) error {
	if err := header.Marshal(r, m.Header); err != nil {
		return err
	}

	if err := Marshal(r, m.Block.Header); err != nil {
		return err
	}

	return encoding.WriteVarBytes(r, m.Block.Txs)
}

// MarshalBlock writes a Block (header + opaque tx payload) on its own,
// without the routing header a wire Message carries — the form a
// Database implementation persists a candidate in.
func MarshalBlock(r *bytes.Buffer, b *Block) error {
	if err := Marshal(r, b.Header); err != nil {
		return err
	}

	return encoding.WriteVarBytes(r, b.Txs)
}

// UnmarshalBlock reads back what MarshalBlock wrote.
func UnmarshalBlock(r *bytes.Buffer) (*Block, error) {
	hdr, err := Unmarshal(r)
	if err != nil {
		return nil, err
	}

	b := &Block{Header: hdr}

	return b, encoding.ReadVarBytes(r, &b.Txs)
}

// UnmarshalMessage reads a candidate Message from the wire.
func UnmarshalMessage(r *bytes.Buffer) (*Message, error) {
	m := &Message{}

	if err := header.Unmarshal(r, &m.Header); err != nil {
		return nil, err
	}

	blockHeader, err := Unmarshal(r)
	if err != nil {
		return nil, err
	}

	m.Block = &Block{Header: blockHeader}
	return m, encoding.ReadVarBytes(r, &m.Block.Txs)
}

// hashableFields writes every field that participates in BlockHash,
// in the order listed by spec.md §3, excluding block_hash, signature
// and the attestation/failed-iterations fields (spec.md §6: "excluding
// block_hash, signature, and cert/attestation").
func hashableFields(buf *bytes.Buffer, h *Header) error {
	if err := encoding.WriteUint8(buf, h.Version); err != nil {
		return err
	}

	if err := encoding.WriteUint64LE(buf, h.Height); err != nil {
		return err
	}

	if err := encoding.WriteUint64LE(buf, uint64(h.Timestamp)); err != nil {
		return err
	}

	if err := encoding.Write256(buf, h.PrevBlockHash); err != nil {
		return err
	}

	if err := encoding.WriteVarBytes(buf, h.Seed); err != nil {
		return err
	}

	if err := encoding.Write256(buf, h.StateHash); err != nil {
		return err
	}

	if err := encoding.Write256(buf, h.EventHash); err != nil {
		return err
	}

	if err := encoding.WriteBLSPubKey(buf, h.GeneratorPubKey); err != nil {
		return err
	}

	if err := encoding.Write256(buf, h.TxRoot); err != nil {
		return err
	}

	if err := encoding.WriteUint8(buf, h.Iteration); err != nil {
		return err
	}

	return encoding.WriteUint64LE(buf, h.GasLimit)
}

// Hash computes the BLAKE2b-256 block hash over the canonical hashable
// fields (spec.md §6's "Block-hash computation").
func Hash(h *Header) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := hashableFields(buf, h); err != nil {
		return nil, err
	}

	sum := blake2b.Sum256(buf.Bytes())
	return sum[:], nil
}

// Marshal writes the full candidate Header, including the attestation
// of the block it extends and this block's own failed-iterations
// record, to the wire.
func Marshal(r *bytes.Buffer, h *Header) error {
	if err := hashableFields(r, h); err != nil {
		return err
	}

	if err := marshalAttestation(r, h.PrevBlockAttestation); err != nil {
		return err
	}

	if h.FailedIterations == nil {
		h.FailedIterations = message.NewFailedIterations(h.Iteration)
	}

	if err := message.MarshalFailedIterations(r, h.FailedIterations); err != nil {
		return err
	}

	if err := encoding.Write256(r, h.BlockHash); err != nil {
		return err
	}

	return encoding.WriteVarBytes(r, h.Signature)
}

// Unmarshal reads a full candidate Header from the wire.
func Unmarshal(r *bytes.Buffer) (*Header, error) {
	h := &Header{}

	if err := encoding.ReadUint8(r, &h.Version); err != nil {
		return nil, err
	}

	if err := encoding.ReadUint64LE(r, &h.Height); err != nil {
		return nil, err
	}

	var ts uint64
	if err := encoding.ReadUint64LE(r, &ts); err != nil {
		return nil, err
	}

	h.Timestamp = int64(ts)

	if err := encoding.Read256(r, &h.PrevBlockHash); err != nil {
		return nil, err
	}

	if err := encoding.ReadVarBytes(r, &h.Seed); err != nil {
		return nil, err
	}

	if err := encoding.Read256(r, &h.StateHash); err != nil {
		return nil, err
	}

	if err := encoding.Read256(r, &h.EventHash); err != nil {
		return nil, err
	}

	if err := encoding.ReadBLSPubKey(r, &h.GeneratorPubKey); err != nil {
		return nil, err
	}

	if err := encoding.Read256(r, &h.TxRoot); err != nil {
		return nil, err
	}

	if err := encoding.ReadUint8(r, &h.Iteration); err != nil {
		return nil, err
	}

	if err := encoding.ReadUint64LE(r, &h.GasLimit); err != nil {
		return nil, err
	}

	att, err := unmarshalAttestation(r)
	if err != nil {
		return nil, err
	}

	h.PrevBlockAttestation = att

	failed, err := message.UnmarshalFailedIterations(r)
	if err != nil {
		return nil, err
	}

	h.FailedIterations = failed

	if err := encoding.Read256(r, &h.BlockHash); err != nil {
		return nil, err
	}

	return h, encoding.ReadVarBytes(r, &h.Signature)
}

// marshalAttestation writes a present-flag followed by the Attestation
// — the genesis candidate has no previous-block attestation to carry.
func marshalAttestation(r *bytes.Buffer, att *message.Attestation) error {
	if att == nil {
		return encoding.WriteUint8(r, 0)
	}

	if err := encoding.WriteUint8(r, 1); err != nil {
		return err
	}

	return message.MarshalAttestation(r, att)
}

func unmarshalAttestation(r *bytes.Buffer) (*message.Attestation, error) {
	var present uint8
	if err := encoding.ReadUint8(r, &present); err != nil {
		return nil, err
	}

	if present == 0 {
		return nil, nil
	}

	return message.UnmarshalAttestation(r)
}

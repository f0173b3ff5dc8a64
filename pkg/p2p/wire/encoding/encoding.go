// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package encoding provides the fixed-width, little-endian primitives
// used to build the consensus wire format: every Message marshaller in
// pkg/p2p/wire/message composes its field encoding from these helpers,
// so their call signatures and byte layout are part of the protocol.
package encoding

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
)

// MaxVarBytesLength caps a single varbytes read, guarding against a
// corrupt or adversarial length prefix forcing an unbounded allocation.
const MaxVarBytesLength = 1 << 24

// WriteUint8 writes a single byte.
func WriteUint8(w io.Writer, v uint8) error {
	_, err := w.Write([]byte{v})
	return err
}

// ReadUint8 reads a single byte.
func ReadUint8(r io.Reader, v *uint8) error {
	b := make([]byte, 1)
	if _, err := io.ReadFull(r, b); err != nil {
		return err
	}

	*v = b[0]
	return nil
}

// WriteUint32LE writes a uint32 in little-endian order.
func WriteUint32LE(w io.Writer, v uint32) error {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	_, err := w.Write(b)
	return err
}

// ReadUint32LE reads a little-endian uint32.
func ReadUint32LE(r io.Reader, v *uint32) error {
	b := make([]byte, 4)
	if _, err := io.ReadFull(r, b); err != nil {
		return err
	}

	*v = binary.LittleEndian.Uint32(b)
	return nil
}

// WriteUint64LE writes a uint64 in little-endian order.
func WriteUint64LE(w io.Writer, v uint64) error {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	_, err := w.Write(b)
	return err
}

// ReadUint64LE reads a little-endian uint64.
func ReadUint64LE(r io.Reader, v *uint64) error {
	b := make([]byte, 8)
	if _, err := io.ReadFull(r, b); err != nil {
		return err
	}

	*v = binary.LittleEndian.Uint64(b)
	return nil
}

// WriteUint64 writes a uint64 with the supplied byte order, matching
// call sites that need explicit endianness (the legacy consensus header
// on the wire is little-endian; this helper keeps the order explicit at
// the call site for readability).
func WriteUint64(w io.Writer, order binary.ByteOrder, v uint64) error {
	b := make([]byte, 8)
	order.PutUint64(b, v)
	_, err := w.Write(b)
	return err
}

// ReadUint64 reads a uint64 with the supplied byte order.
func ReadUint64(r io.Reader, order binary.ByteOrder, v *uint64) error {
	b := make([]byte, 8)
	if _, err := io.ReadFull(r, b); err != nil {
		return err
	}

	*v = order.Uint64(b)
	return nil
}

// WriteVarInt writes v as a minimal-width varint, prefixed with a
// discriminator byte, matching Bitcoin-style CompactSize encoding used
// throughout the consensus wire format for length fields.
func WriteVarInt(w io.Writer, v uint64) error {
	switch {
	case v < 0xfd:
		return WriteUint8(w, uint8(v))
	case v <= 0xffff:
		if err := WriteUint8(w, 0xfd); err != nil {
			return err
		}

		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, uint16(v))
		_, err := w.Write(b)
		return err
	case v <= 0xffffffff:
		if err := WriteUint8(w, 0xfe); err != nil {
			return err
		}

		return WriteUint32LE(w, uint32(v))
	default:
		if err := WriteUint8(w, 0xff); err != nil {
			return err
		}

		return WriteUint64LE(w, v)
	}
}

// ReadVarInt reads a CompactSize-encoded length.
func ReadVarInt(r io.Reader) (uint64, error) {
	var prefix uint8
	if err := ReadUint8(r, &prefix); err != nil {
		return 0, err
	}

	switch prefix {
	case 0xfd:
		b := make([]byte, 2)
		if _, err := io.ReadFull(r, b); err != nil {
			return 0, err
		}

		return uint64(binary.LittleEndian.Uint16(b)), nil
	case 0xfe:
		var v uint32
		if err := ReadUint32LE(r, &v); err != nil {
			return 0, err
		}

		return uint64(v), nil
	case 0xff:
		var v uint64
		if err := ReadUint64LE(r, &v); err != nil {
			return 0, err
		}

		return v, nil
	default:
		return uint64(prefix), nil
	}
}

// WriteVarBytes writes a length-prefixed byte slice.
func WriteVarBytes(w io.Writer, b []byte) error {
	if err := WriteVarInt(w, uint64(len(b))); err != nil {
		return err
	}

	_, err := w.Write(b)
	return err
}

// ReadVarBytes reads a length-prefixed byte slice into *b.
func ReadVarBytes(r io.Reader, b *[]byte) error {
	length, err := ReadVarInt(r)
	if err != nil {
		return err
	}

	if length > MaxVarBytesLength {
		return errors.New("encoding: varbytes length exceeds maximum")
	}

	buf := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, buf); err != nil {
			return err
		}
	}

	*b = buf
	return nil
}

// Write256 writes a fixed 32-byte field (hashes, seeds' low half, etc.),
// zero-padding short input and truncating long input defensively.
func Write256(w io.Writer, b []byte) error {
	return writeFixed(w, b, 32)
}

// Read256 reads a fixed 32-byte field into *b.
func Read256(r io.Reader, b *[]byte) error {
	return readFixed(r, b, 32)
}

// Write512 writes a fixed 64-byte field (Ed25519 signatures, BLS seeds).
func Write512(w io.Writer, b []byte) error {
	return writeFixed(w, b, 64)
}

// Read512 reads a fixed 64-byte field into *b.
func Read512(r io.Reader, b *[]byte) error {
	return readFixed(r, b, 64)
}

// WriteBLS writes a compressed BLS signature (48 bytes).
func WriteBLS(w io.Writer, b []byte) error {
	return writeFixed(w, b, 48)
}

// ReadBLS reads a compressed BLS signature into b, which must already be
// sized to the expected length (the teacher's call sites pre-allocate a
// 33-byte or 48-byte buffer depending on curve; this consensus uses the
// 48-byte BLS12-381 compression).
func ReadBLS(r io.Reader, b []byte) error {
	_, err := io.ReadFull(r, b)
	return err
}

// WriteBLSPubKey writes a 96-byte BLS public key.
func WriteBLSPubKey(w io.Writer, b []byte) error {
	return writeFixed(w, b, 96)
}

// ReadBLSPubKey reads a 96-byte BLS public key into *b.
func ReadBLSPubKey(r io.Reader, b *[]byte) error {
	return readFixed(r, b, 96)
}

func writeFixed(w io.Writer, b []byte, size int) error {
	fixed := make([]byte, size)
	copy(fixed, b)
	_, err := w.Write(fixed)
	return err
}

func readFixed(r io.Reader, b *[]byte, size int) error {
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}

	*b = buf
	return nil
}

// PutUvarint is a convenience wrapper for encoding a varint directly into
// a *bytes.Buffer, avoiding an intermediate io.Writer allocation.
func PutUvarint(buf *bytes.Buffer, v uint64) {
	tmp := make([]byte, binary.MaxVarintLen64)
	n := binary.PutUvarint(tmp, v)
	buf.Write(tmp[:n])
}

// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

package message

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// Version is the wire protocol version stamped into every frame header
// (spec.md §6: "version: 8 bytes, e.g. [0,0,0,0,1,0,0,0]").
var Version = [8]byte{0, 0, 0, 0, 1, 0, 0, 0}

// frameHeaderSize is the byte length of everything between frame_size
// and payload: version (8) + reserved (8) + checksum (4).
const frameHeaderSize = 8 + 8 + 4

// EncodeFrame wraps payload in the bit-exact wire frame of spec.md §6:
// a little-endian frame_size covering everything after it, a fixed
// version/reserved header, and a truncated BLAKE2b-256 checksum of the
// payload.
func EncodeFrame(payload []byte) []byte {
	sum := blake2b.Sum256(payload)

	buf := new(bytes.Buffer)
	buf.Grow(8 + frameHeaderSize + len(payload))

	var frameSize [8]byte
	binary.LittleEndian.PutUint64(frameSize[:], uint64(frameHeaderSize+len(payload)))
	buf.Write(frameSize[:])

	buf.Write(Version[:])

	var reserved [8]byte
	buf.Write(reserved[:])

	buf.Write(sum[:4])
	buf.Write(payload)

	return buf.Bytes()
}

// DecodeFrame reads a wire frame from r, verifying its checksum, and
// returns the enclosed payload.
func DecodeFrame(r *bytes.Reader) ([]byte, error) {
	var frameSize uint64
	if err := binary.Read(r, binary.LittleEndian, &frameSize); err != nil {
		return nil, fmt.Errorf("message: read frame_size: %w", err)
	}

	if frameSize < frameHeaderSize {
		return nil, fmt.Errorf("message: frame_size %d smaller than header", frameSize)
	}

	rest := make([]byte, frameSize)
	if _, err := readFull(r, rest); err != nil {
		return nil, fmt.Errorf("message: read frame body: %w", err)
	}

	version := rest[:8]
	if !bytes.Equal(version, Version[:]) {
		return nil, fmt.Errorf("message: unsupported frame version %x", version)
	}

	checksum := rest[16:20]
	payload := rest[20:]

	sum := blake2b.Sum256(payload)
	if !bytes.Equal(checksum, sum[:4]) {
		return nil, fmt.Errorf("message: frame checksum mismatch")
	}

	return payload, nil
}

func readFull(r *bytes.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m

		if err != nil {
			return n, err
		}
	}

	return n, nil
}

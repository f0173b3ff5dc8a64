// This Source Code Form is subject to the terms of the MIT License.
// If a copy of the MIT License was not distributed with this
// file, you can obtain one at https://opensource.org/licenses/MIT.
//
// Copyright (c) DUSK NETWORK. All rights reserved.

// Package store is a reference consensus.Database implementation
// backed by LevelDB, keyed with a prefix-per-record-kind scheme: a CAND
// prefix for candidate blocks, a VRES prefix for validation results,
// and a single LASTIT key for the last decided iteration.
package store

import (
	"bytes"
	"context"
	"os"

	"github.com/dusk-network/dusk-consensus/pkg/core/consensus"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/candidate"
	"github.com/dusk-network/dusk-consensus/pkg/core/consensus/header"
	"github.com/dusk-network/dusk-consensus/pkg/p2p/wire/encoding"
	"github.com/dusk-network/dusk-consensus/pkg/p2p/wire/message"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	lderrors "github.com/syndtr/goleveldb/leveldb/errors"
)

var (
	prefixCandidate  = []byte("CAND")
	prefixValidation = []byte("VRES")
	lastIterationKey = []byte("LASTIT")
)

// Store is a LevelDB-backed consensus.Database.
type Store struct {
	db *leveldb.DB
}

var _ consensus.Database = (*Store)(nil)

// Open opens (or creates) a Store at path. A corrupted database is
// recovered in place, matching the teacher's NewDatabase behavior.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		if _, corrupted := err.(*lderrors.ErrCorrupted); corrupted {
			db, err = leveldb.RecoverFile(path, nil)
		}
	}

	if _, denied := err.(*os.PathError); denied {
		return nil, errors.Wrap(err, "store: could not open or create database")
	}

	if err != nil {
		return nil, errors.Wrap(err, "store: open")
	}

	return &Store{db: db}, nil
}

// Close releases the underlying LevelDB handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func candidateKey(hash []byte) []byte {
	return append(append([]byte{}, prefixCandidate...), hash...)
}

func validationKey(hdr header.Header) []byte {
	buf := new(bytes.Buffer)
	buf.Write(prefixValidation)
	_ = encoding.WriteUint64LE(buf, hdr.Round)
	_ = encoding.WriteUint8(buf, hdr.Iteration)
	_ = encoding.WriteUint8(buf, uint8(hdr.Step))

	return buf.Bytes()
}

// StoreCandidateBlock persists block, keyed by its own hash. Storing
// the same block twice is a no-op overwrite, satisfying the
// idempotence contract consensus.Database requires.
func (s *Store) StoreCandidateBlock(ctx context.Context, block *candidate.Block) error {
	buf := new(bytes.Buffer)
	if err := candidate.MarshalBlock(buf, block); err != nil {
		return errors.Wrap(err, "store: marshal candidate block")
	}

	return s.db.Put(candidateKey(block.Header.BlockHash), buf.Bytes(), nil)
}

// GetCandidate looks up a previously-stored candidate block by hash.
func (s *Store) GetCandidate(ctx context.Context, hash []byte) (*candidate.Block, error) {
	val, err := s.db.Get(candidateKey(hash), nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, nil
		}

		return nil, errors.Wrap(err, "store: get candidate")
	}

	return candidate.UnmarshalBlock(bytes.NewBuffer(val))
}

// StoreValidationResult persists a Validation step's decided vote and
// StepVotes aggregate, keyed by (round, iteration, step) so a restart
// can recover what was already decided for an in-flight iteration.
func (s *Store) StoreValidationResult(ctx context.Context, hdr header.Header, result consensus.ValidationResult) error {
	buf := new(bytes.Buffer)
	if err := message.MarshalVote(buf, result.QuorumVote); err != nil {
		return errors.Wrap(err, "store: marshal validation vote")
	}

	if err := message.MarshalStepVotes(buf, &result.StepVotes); err != nil {
		return errors.Wrap(err, "store: marshal validation step votes")
	}

	return s.db.Put(validationKey(hdr), buf.Bytes(), nil)
}

// GetLastIteration returns the previous block hash and the iteration
// it was decided on, as last recorded by SetLastIteration. Returns a
// nil hash and iteration 0 if nothing has been recorded yet.
func (s *Store) GetLastIteration(ctx context.Context) ([]byte, uint8, error) {
	val, err := s.db.Get(lastIterationKey, nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return nil, 0, nil
		}

		return nil, 0, errors.Wrap(err, "store: get last iteration")
	}

	buf := bytes.NewBuffer(val)

	var hash []byte
	if err := encoding.ReadVarBytes(buf, &hash); err != nil {
		return nil, 0, errors.Wrap(err, "store: unmarshal last iteration hash")
	}

	var it uint8
	if err := encoding.ReadUint8(buf, &it); err != nil {
		return nil, 0, errors.Wrap(err, "store: unmarshal last iteration index")
	}

	return hash, it, nil
}

// SetLastIteration records the chain tip's block hash and the
// iteration it was decided on.
func (s *Store) SetLastIteration(ctx context.Context, prevHash []byte, lastIteration uint8) error {
	buf := new(bytes.Buffer)
	if err := encoding.WriteVarBytes(buf, prevHash); err != nil {
		return errors.Wrap(err, "store: marshal last iteration hash")
	}

	if err := encoding.WriteUint8(buf, lastIteration); err != nil {
		return errors.Wrap(err, "store: marshal last iteration index")
	}

	return s.db.Put(lastIterationKey, buf.Bytes(), nil)
}

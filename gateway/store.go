// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/luxfi/database"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/fhevm"
)

var (
	ErrUnknownHandle   = errors.New("unknown handle")
	ErrHandleExists    = errors.New("handle already registered")
	ErrNotAllowed      = errors.New("address is not allowed to decrypt handle")
	ErrNotPublic       = errors.New("handle is not publicly decryptable")
	ErrContractMissing = errors.New("handle does not belong to contract")
)

var ciphertextPrefix = []byte("ct/")

// Record is a registered ciphertext and its access list.
type Record struct {
	Kind     fhevm.Kind       `json:"type"`
	Contract common.Address   `json:"contract"`
	Owner    common.Address   `json:"owner"`
	Data     []byte           `json:"data"`
	Public   bool             `json:"public"`
	Allowed  []common.Address `json:"allowed,omitempty"`
}

// CanDecrypt reports whether user may decrypt the record through contract.
func (r *Record) CanDecrypt(contract, user common.Address) error {
	if r.Contract != contract {
		return ErrContractMissing
	}
	if r.Owner == user || slices.Contains(r.Allowed, user) {
		return nil
	}
	return ErrNotAllowed
}

// Store keeps ciphertexts keyed by handle in a database.Database.
type Store struct {
	mu sync.Mutex
	db database.Database
}

func NewStore(db database.Database) *Store {
	return &Store{db: db}
}

func key(handle common.Hash) []byte {
	return append(slices.Clone(ciphertextPrefix), handle.Bytes()...)
}

func (s *Store) Put(handle common.Hash, r *Record) error {
	return s.PutAll([]common.Hash{handle}, []*Record{r})
}

// PutAll registers records[i] under handles[i]. Either every record is
// written or, if any handle is already registered, none is.
func (s *Store) PutAll(handles []common.Hash, records []*Record) error {
	if len(handles) != len(records) {
		return fmt.Errorf("%d handles for %d records", len(handles), len(records))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[common.Hash]struct{}, len(handles))
	for _, h := range handles {
		if _, dup := seen[h]; dup {
			return fmt.Errorf("%w: %s", ErrHandleExists, h.Hex())
		}
		seen[h] = struct{}{}

		has, err := s.db.Has(key(h))
		if err != nil {
			return err
		}
		if has {
			return fmt.Errorf("%w: %s", ErrHandleExists, h.Hex())
		}
	}

	batch := s.db.NewBatch()
	for i, h := range handles {
		b, err := json.Marshal(records[i])
		if err != nil {
			return err
		}
		if err := batch.Put(key(h), b); err != nil {
			return err
		}
	}
	return batch.Write()
}

func (s *Store) Get(handle common.Hash) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(handle)
}

// Allow grants address decryption rights on handle.
func (s *Store) Allow(handle common.Hash, address common.Address) error {
	return s.update(handle, func(r *Record) {
		if r.Owner != address && !slices.Contains(r.Allowed, address) {
			r.Allowed = append(r.Allowed, address)
		}
	})
}

// MakePublic marks handle as publicly decryptable. This cannot be undone.
func (s *Store) MakePublic(handle common.Hash) error {
	return s.update(handle, func(r *Record) { r.Public = true })
}

func (s *Store) update(handle common.Hash, fn func(*Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.read(handle)
	if err != nil {
		return err
	}
	fn(r)
	return s.write(handle, r)
}

func (s *Store) read(handle common.Hash) (*Record, error) {
	b, err := s.db.Get(key(handle))
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownHandle, handle.Hex())
	}
	if err != nil {
		return nil, err
	}
	var r Record
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("corrupt record for %s: %w", handle.Hex(), err)
	}
	return &r, nil
}

func (s *Store) write(handle common.Hash, r *Record) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return s.db.Put(key(handle), b)
}

// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/fhevm"
)

var (
	ErrNoInputs     = errors.New("no values added to encrypted input")
	ErrInvalidProof = errors.New("invalid input proof")
)

var proofDomain = []byte("fhevm/input-proof/v1")

var _ fhevm.Instance = (*Engine)(nil)

// CreateEncryptedInput starts an input bound to contract and user.
func (e *Engine) CreateEncryptedInput(contract, user common.Address) fhevm.InputBuilder {
	return &inputBuilder{
		engine:   e,
		contract: contract,
		user:     user,
	}
}

type pendingValue struct {
	kind  fhevm.Kind
	value *uint256.Int
}

type inputBuilder struct {
	engine   *Engine
	contract common.Address
	user     common.Address
	values   []pendingValue
	err      error
}

func (b *inputBuilder) add(kind fhevm.Kind, v *uint256.Int) {
	if b.err != nil {
		return
	}
	if v == nil {
		b.err = fmt.Errorf("nil %s value", kind)
		return
	}
	if v.Gt(kind.Max()) {
		b.err = fmt.Errorf("%w: %s does not fit %s", ErrValueOverflow, v.Dec(), kind)
		return
	}
	b.values = append(b.values, pendingValue{kind: kind, value: new(uint256.Int).Set(v)})
}

func (b *inputBuilder) Add8(v uint8)   { b.add(fhevm.Uint8, uint256.NewInt(uint64(v))) }
func (b *inputBuilder) Add16(v uint16) { b.add(fhevm.Uint16, uint256.NewInt(uint64(v))) }
func (b *inputBuilder) Add32(v uint32) { b.add(fhevm.Uint32, uint256.NewInt(uint64(v))) }
func (b *inputBuilder) Add64(v uint64) { b.add(fhevm.Uint64, uint256.NewInt(v)) }

func (b *inputBuilder) Add128(v *uint256.Int) { b.add(fhevm.Uint128, v) }
func (b *inputBuilder) Add256(v *uint256.Int) { b.add(fhevm.Uint256, v) }

func (b *inputBuilder) AddBool(v bool) {
	var n uint64
	if v {
		n = 1
	}
	b.add(fhevm.Bool, uint256.NewInt(n))
}

func (b *inputBuilder) AddAddress(v common.Address) {
	b.add(fhevm.Address, new(uint256.Int).SetBytes20(v.Bytes()))
}

// Encrypt encrypts every added value. Data is the concatenation of the
// framed ciphertexts, in the order values were added.
func (b *inputBuilder) Encrypt(ctx context.Context) (*fhevm.Ciphertext, error) {
	if b.err != nil {
		return nil, b.err
	}
	if len(b.values) == 0 {
		return nil, ErrNoInputs
	}

	var (
		data    []byte
		handles = make([]common.Hash, len(b.values))
	)
	for i, pv := range b.values {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		frame, err := b.engine.Encrypt(pv.kind, pv.value)
		if err != nil {
			return nil, err
		}
		handles[i] = DeriveHandle(frame, b.contract, b.user, uint8(i), pv.kind)
		data = append(data, frame...)
	}

	return &fhevm.Ciphertext{
		Data:      data,
		Signature: b.engine.Proof(data, b.contract, b.user),
		Handles:   handles,
	}, nil
}

// DeriveHandle computes the handle of one input: keccak256 over the
// ciphertext and its binding, with byte 30 set to the input index and the
// last byte to the kind.
func DeriveHandle(ciphertext []byte, contract, user common.Address, index uint8, kind fhevm.Kind) common.Hash {
	h := common.BytesToHash(crypto.Keccak256(ciphertext, contract.Bytes(), user.Bytes(), []byte{index}))
	h[30] = index
	h[31] = byte(kind)
	return h
}

// HandleKind reads the kind tag from a handle.
func HandleKind(h common.Hash) (fhevm.Kind, error) {
	k := fhevm.Kind(h[31])
	if !k.Valid() {
		return 0, fmt.Errorf("%w: handle kind %d", ErrInvalidCiphertext, h[31])
	}
	return k, nil
}

// Proof authenticates ciphertext as encrypted by this engine for the
// contract/user pair. It is a MAC under the engine's secret proof key, so a
// proof cannot be produced for data the engine did not encrypt, or moved to
// another contract or user.
func (e *Engine) Proof(ciphertext []byte, contract, user common.Address) []byte {
	h := e.proofMAC.Clone()
	h.Write(proofDomain)
	h.Write(contract.Bytes())
	h.Write(user.Bytes())
	h.Write(ciphertext)
	proof := make([]byte, 32)
	h.Digest().Read(proof)
	return proof
}

// VerifyProof checks a proof produced by Proof.
func (e *Engine) VerifyProof(ciphertext, proof []byte, contract, user common.Address) error {
	if subtle.ConstantTimeCompare(e.Proof(ciphertext, contract, user), proof) != 1 {
		return ErrInvalidProof
	}
	return nil
}

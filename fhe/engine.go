// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"

	"github.com/holiman/uint256"
	"github.com/luxfi/fhe"
	"github.com/zeebo/blake3"

	"github.com/luxfi/fhevm"
)

var (
	ErrInvalidCiphertext = errors.New("invalid ciphertext")
	ErrTypeMismatch      = errors.New("type mismatch")
	ErrValueOverflow     = errors.New("value exceeds kind range")
)

// Engine owns a TFHE key set and the operators built from it. Operators are
// not reentrant, so every call goes through mu.
type Engine struct {
	mu        sync.Mutex
	params    fhe.Parameters
	secretKey *fhe.SecretKey
	publicKey *fhe.PublicKey
	encryptor *fhe.BitwiseEncryptor
	decryptor *fhe.BitwiseDecryptor
	evaluator *fhe.BitwiseEvaluator

	// proofMAC is keyed with a per-engine secret and only ever cloned.
	proofMAC *blake3.Hasher
}

// NewEngine generates a fresh key set. Bootstrap key generation dominates the
// cost, so callers should share one Engine per process.
func NewEngine() (*Engine, error) {
	params, err := fhe.NewParametersFromLiteral(fhe.PN10QP27)
	if err != nil {
		return nil, fmt.Errorf("failed to create TFHE parameters: %w", err)
	}

	proofKey := make([]byte, 32)
	if _, err := rand.Read(proofKey); err != nil {
		return nil, fmt.Errorf("failed to generate proof key: %w", err)
	}
	proofMAC, err := blake3.NewKeyed(proofKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create proof MAC: %w", err)
	}

	kg := fhe.NewKeyGenerator(params)
	secretKey, publicKey := kg.GenKeyPair()
	bsk := kg.GenBootstrapKey(secretKey)

	return &Engine{
		params:    params,
		secretKey: secretKey,
		publicKey: publicKey,
		encryptor: fhe.NewBitwiseEncryptor(params, secretKey),
		decryptor: fhe.NewBitwiseDecryptor(params, secretKey),
		evaluator: fhe.NewBitwiseEvaluator(params, bsk, secretKey),
		proofMAC:  proofMAC,
	}, nil
}

// tfheType maps a kind to the TFHE integer type of one of its limbs.
// Kinds wider than 64 bits are carried as 64-bit limbs.
func tfheType(kind fhevm.Kind) fhe.FheUintType {
	switch kind {
	case fhevm.Bool:
		return fhe.FheBool
	case fhevm.Uint8:
		return fhe.FheUint8
	case fhevm.Uint16:
		return fhe.FheUint16
	case fhevm.Uint32:
		return fhe.FheUint32
	default:
		return fhe.FheUint64
	}
}

// limbCount is the number of 64-bit words needed for kind.
func limbCount(kind fhevm.Kind) int {
	bits := kind.Bits()
	if bits <= 64 {
		return 1
	}
	return (bits + 63) / 64
}

// PublicKey returns the serialized TFHE public key, or nil if it cannot be
// marshalled.
func (e *Engine) PublicKey() []byte {
	e.mu.Lock()
	defer e.mu.Unlock()

	data, err := e.publicKey.MarshalBinary()
	if err != nil {
		return nil
	}
	return data
}

// Encrypt encrypts v as kind and returns the framed ciphertext.
func (e *Engine) Encrypt(kind fhevm.Kind, v *uint256.Int) ([]byte, error) {
	if !kind.Valid() {
		return nil, fhevm.Errorf(fhevm.UnsupportedType, "encrypt", "Unsupported encryption type: %s", kind)
	}
	if v == nil {
		v = new(uint256.Int)
	}
	if v.Gt(kind.Max()) {
		return nil, fmt.Errorf("%w: %s does not fit %s", ErrValueOverflow, v.Dec(), kind)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	limbs := make([][]byte, limbCount(kind))
	for i := range limbs {
		ct := e.encryptor.EncryptUint64(v[i], tfheType(kind))
		data, err := ct.MarshalBinary()
		if err != nil {
			return nil, fmt.Errorf("failed to marshal ciphertext limb %d: %w", i, err)
		}
		limbs[i] = data
	}
	return encodeFrame(kind, limbs)
}

// Decrypt recovers the plaintext of a framed ciphertext. The kind is taken
// from the frame.
func (e *Engine) Decrypt(data []byte) (*fhevm.Plaintext, error) {
	kind, limbs, rest, err := decodeFrame(data)
	if err != nil {
		return nil, err
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrInvalidCiphertext, len(rest))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var v uint256.Int
	for i, limb := range limbs {
		ct, err := unmarshalBits(limb)
		if err != nil {
			return nil, err
		}
		v[i] = e.decryptor.DecryptUint64(ct)
	}
	return fhevm.NewPlaintext(kind, &v), nil
}

func unmarshalBits(data []byte) (*fhe.BitCiphertext, error) {
	if len(data) == 0 {
		return nil, ErrInvalidCiphertext
	}
	ct := new(fhe.BitCiphertext)
	if err := ct.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCiphertext, err)
	}
	return ct, nil
}

func marshalBits(ct *fhe.BitCiphertext) ([]byte, error) {
	if ct == nil {
		return nil, ErrInvalidCiphertext
	}
	return ct.MarshalBinary()
}

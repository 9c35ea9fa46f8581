// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhevm

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
)

const (
	// EIP712Name and EIP712Version form the domain of decryption requests.
	EIP712Name    = "FHEVM"
	EIP712Version = "1"

	DefaultTimeout   = 30 * time.Second
	MaxRetryAttempts = 3
	RetryDelay       = time.Second
)

// EncryptedInput is the result of encrypting one value for a contract.
// Data is opaque once produced.
type EncryptedInput struct {
	Data      []byte      `json:"data"`
	Kind      Kind        `json:"type"`
	Signature []byte      `json:"signature,omitempty"`
	Handle    common.Hash `json:"handle"`
}

// Ciphertext is what an InputBuilder produces: the encrypted payload, the
// proof binding it to the contract and user, and one handle per added value.
type Ciphertext struct {
	Data      []byte
	Signature []byte
	Handles   []common.Hash
}

// Instance is an initialized FHE client able to encrypt inputs.
type Instance interface {
	CreateEncryptedInput(contract, user common.Address) InputBuilder
	PublicKey() []byte
}

// InputBuilder accumulates typed values and encrypts them in one call.
type InputBuilder interface {
	Add8(v uint8)
	Add16(v uint16)
	Add32(v uint32)
	Add64(v uint64)
	Add128(v *uint256.Int)
	Add256(v *uint256.Int)
	AddBool(v bool)
	AddAddress(v common.Address)
	Encrypt(ctx context.Context) (*Ciphertext, error)
}

// ValidationResult is the outcome of a local validation check.
type ValidationResult struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

func Valid() ValidationResult {
	return ValidationResult{Valid: true}
}

func Invalid(format string, args ...any) ValidationResult {
	return ValidationResult{Error: fmt.Sprintf(format, args...)}
}

// Err converts a failed result to a ValidationError, or nil when valid.
func (r ValidationResult) Err() error {
	if r.Valid {
		return nil
	}
	return &Error{Code: ValidationError, Op: "validate", Msg: r.Error}
}

// DecryptionResult reports the outcome of a decrypt call. Failures are carried
// in the result rather than returned; Err keeps the typed cause for callers
// that need errors.Is.
type DecryptionResult[T any] struct {
	Value   T      `json:"value"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Err     error  `json:"-"`
}

func Succeeded[T any](v T) DecryptionResult[T] {
	return DecryptionResult[T]{Value: v, Success: true}
}

func Failed[T any](err error) DecryptionResult[T] {
	r := DecryptionResult[T]{Err: err}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// Unwrap returns the value of a successful result or its error.
func (r DecryptionResult[T]) Unwrap() (T, error) {
	if r.Success {
		return r.Value, nil
	}
	var zero T
	if r.Err != nil {
		return zero, r.Err
	}
	msg := r.Error
	if msg == "" {
		msg = "Decryption failed"
	}
	return zero, &Error{Code: DecodingFailure, Op: "decrypt", Msg: msg}
}

// Plaintext is a decrypted value together with its kind.
type Plaintext struct {
	Kind  Kind
	Value *uint256.Int
}

func NewPlaintext(kind Kind, v *uint256.Int) *Plaintext {
	if v == nil {
		v = new(uint256.Int)
	}
	return &Plaintext{Kind: kind, Value: v}
}

func (p *Plaintext) Uint64() uint64 {
	return p.Value.Uint64()
}

func (p *Plaintext) Bool() bool {
	return !p.Value.IsZero()
}

func (p *Plaintext) Address() common.Address {
	return common.Address(p.Value.Bytes20())
}

func (p *Plaintext) Big() *big.Int {
	return p.Value.ToBig()
}

func (p *Plaintext) String() string {
	switch p.Kind {
	case Bool:
		if p.Bool() {
			return "true"
		}
		return "false"
	case Address:
		return p.Address().Hex()
	default:
		return p.Value.Dec()
	}
}

func (p *Plaintext) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind  Kind   `json:"type"`
		Value string `json:"value"`
	}{p.Kind, p.String()})
}

// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package encrypt validates plaintext values and dispatches them to the FHE
// instance encoder that matches their kind.
package encrypt

import (
	"context"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/fhevm"
	"github.com/luxfi/fhevm/validation"
)

// Client is the part of client.Client that encryption needs.
type Client interface {
	IsInitialized() bool
	Instance() (fhevm.Instance, error)
}

// Params of one encryption. UserAddress is optional and defaults to the
// zero address.
type Params struct {
	Value           any
	Kind            fhevm.Kind
	ContractAddress string
	UserAddress     string
}

type encoder func(b fhevm.InputBuilder, v *uint256.Int)

// encoders has exactly one entry per kind.
var encoders = [fhevm.NumKinds]encoder{
	fhevm.Uint8:   func(b fhevm.InputBuilder, v *uint256.Int) { b.Add8(uint8(v.Uint64())) },
	fhevm.Uint16:  func(b fhevm.InputBuilder, v *uint256.Int) { b.Add16(uint16(v.Uint64())) },
	fhevm.Uint32:  func(b fhevm.InputBuilder, v *uint256.Int) { b.Add32(uint32(v.Uint64())) },
	fhevm.Uint64:  func(b fhevm.InputBuilder, v *uint256.Int) { b.Add64(v.Uint64()) },
	fhevm.Uint128: func(b fhevm.InputBuilder, v *uint256.Int) { b.Add128(v) },
	fhevm.Uint256: func(b fhevm.InputBuilder, v *uint256.Int) { b.Add256(v) },
	fhevm.Bool:    func(b fhevm.InputBuilder, v *uint256.Int) { b.AddBool(!v.IsZero()) },
	fhevm.Address: func(b fhevm.InputBuilder, v *uint256.Int) { b.AddAddress(common.Address(v.Bytes20())) },
}

func lookup(kind fhevm.Kind) (encoder, bool) {
	if !kind.Valid() {
		return nil, false
	}
	enc := encoders[kind]
	return enc, enc != nil
}

// Add appends v to b using the encoder for kind. v must already be in
// range for kind.
func Add(b fhevm.InputBuilder, kind fhevm.Kind, v *uint256.Int) error {
	enc, ok := lookup(kind)
	if !ok {
		return fhevm.Errorf(fhevm.UnsupportedType, "encrypt", "Unsupported encryption type: %s", kind)
	}
	enc(b, v)
	return nil
}

// Encrypt validates p and encrypts its value with the client's instance.
// Nothing is sent to the instance unless validation passes.
func Encrypt(ctx context.Context, c Client, p Params) (*fhevm.EncryptedInput, error) {
	if c == nil || !c.IsInitialized() {
		return nil, &fhevm.Error{Code: fhevm.UninitializedClient, Op: "encrypt"}
	}

	enc, ok := lookup(p.Kind)
	if !ok {
		return nil, fhevm.Errorf(fhevm.UnsupportedType, "encrypt", "Unsupported encryption type: %s", p.Kind)
	}

	if r := validation.Validate(p.Value, p.Kind, p.ContractAddress); !r.Valid {
		return nil, &fhevm.Error{Code: fhevm.ValidationError, Op: "encrypt", Msg: r.Error}
	}
	user := common.Address{}
	if p.UserAddress != "" {
		if r := validation.ValidateUserAddress(p.UserAddress); !r.Valid {
			return nil, &fhevm.Error{Code: fhevm.ValidationError, Op: "encrypt", Msg: r.Error}
		}
		user = common.HexToAddress(p.UserAddress)
	}
	value, err := validation.Normalize(p.Value, p.Kind)
	if err != nil {
		return nil, err
	}

	instance, err := c.Instance()
	if err != nil {
		return nil, err
	}

	builder := instance.CreateEncryptedInput(common.HexToAddress(p.ContractAddress), user)
	enc(builder, value)

	ct, err := builder.Encrypt(ctx)
	if err != nil {
		return nil, fhevm.WrapError(fhevm.EncodingFailure, "encrypt", err, "Encryption failed for %s", p.Kind)
	}

	out := &fhevm.EncryptedInput{
		Data:      ct.Data,
		Kind:      p.Kind,
		Signature: ct.Signature,
	}
	if len(ct.Handles) > 0 {
		out.Handle = ct.Handles[0]
	}
	return out, nil
}

// EncryptNamed is Encrypt for callers holding the kind as a string.
func EncryptNamed(ctx context.Context, c Client, value any, kind, contractAddress, userAddress string) (*fhevm.EncryptedInput, error) {
	k, err := fhevm.ParseKind(kind)
	if err != nil {
		if c == nil || !c.IsInitialized() {
			return nil, &fhevm.Error{Code: fhevm.UninitializedClient, Op: "encrypt"}
		}
		return nil, err
	}
	return Encrypt(ctx, c, Params{Value: value, Kind: k, ContractAddress: contractAddress, UserAddress: userAddress})
}

func EncryptUint8(ctx context.Context, c Client, p Params) (*fhevm.EncryptedInput, error) {
	p.Kind = fhevm.Uint8
	return Encrypt(ctx, c, p)
}

func EncryptUint16(ctx context.Context, c Client, p Params) (*fhevm.EncryptedInput, error) {
	p.Kind = fhevm.Uint16
	return Encrypt(ctx, c, p)
}

func EncryptUint32(ctx context.Context, c Client, p Params) (*fhevm.EncryptedInput, error) {
	p.Kind = fhevm.Uint32
	return Encrypt(ctx, c, p)
}

func EncryptUint64(ctx context.Context, c Client, p Params) (*fhevm.EncryptedInput, error) {
	p.Kind = fhevm.Uint64
	return Encrypt(ctx, c, p)
}

func EncryptUint128(ctx context.Context, c Client, p Params) (*fhevm.EncryptedInput, error) {
	p.Kind = fhevm.Uint128
	return Encrypt(ctx, c, p)
}

func EncryptUint256(ctx context.Context, c Client, p Params) (*fhevm.EncryptedInput, error) {
	p.Kind = fhevm.Uint256
	return Encrypt(ctx, c, p)
}

func EncryptBool(ctx context.Context, c Client, p Params) (*fhevm.EncryptedInput, error) {
	p.Kind = fhevm.Bool
	return Encrypt(ctx, c, p)
}

func EncryptAddress(ctx context.Context, c Client, p Params) (*fhevm.EncryptedInput, error) {
	p.Kind = fhevm.Address
	return Encrypt(ctx, c, p)
}

// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package decrypt validates decryption requests, authorizes user requests
// with an EIP-712 signature and forwards them to a decryption authority.
//
// Failures after the parameters have been accepted are reported inside the
// returned DecryptionResult. A non-nil error is only returned for missing
// required parameters, before any network interaction.
package decrypt

import (
	"context"
	"math/big"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/luxfi/fhevm"
	"github.com/luxfi/fhevm/eip712"
	"github.com/luxfi/fhevm/seal"
	"github.com/luxfi/fhevm/validation"
)

// Signer produces EIP-712 signatures for a chain, e.g. a wallet.
type Signer interface {
	SignTypedData(ctx context.Context, td *eip712.TypedData) ([]byte, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// Provider identifies the network for public decryption. It is optional.
type Provider interface {
	ChainID(ctx context.Context) (*big.Int, error)
}

// UserRequest is a signed request for a user-scoped plaintext. The authority
// seals the plaintext to PublicKey, which is covered by Signature.
type UserRequest struct {
	Handle          common.Hash    `json:"handle"`
	ContractAddress common.Address `json:"contractAddress"`
	UserAddress     common.Address `json:"userAddress"`
	ChainID         *big.Int       `json:"chainId"`
	Signature       []byte         `json:"signature"`
	PublicKey       []byte         `json:"publicKey"`
}

type PublicRequest struct {
	Handle          common.Hash    `json:"handle"`
	ContractAddress common.Address `json:"contractAddress"`
	ChainID         *big.Int       `json:"chainId,omitempty"`
}

// Response carries either a clear value or a sealed payload.
type Response struct {
	Kind   fhevm.Kind
	Value  *uint256.Int
	Sealed []byte
}

// Authority holds the decryption keys, e.g. a gateway.
type Authority interface {
	UserDecrypt(ctx context.Context, req UserRequest) (*Response, error)
	PublicDecrypt(ctx context.Context, req PublicRequest) (*Response, error)
}

type UserParams struct {
	Handle          string
	ContractAddress string
	Signer          Signer
	UserAddress     string

	// Keypair receives the sealed plaintext. An ephemeral one is generated
	// when nil.
	Keypair *seal.Keypair
}

type PublicParams struct {
	Handle          string
	ContractAddress string
	Provider        Provider
}

type BatchParams struct {
	Handles         []string
	ContractAddress string
	Signer          Signer
	UserAddress     string
	Keypair         *seal.Keypair
}

// Result is the outcome of one decryption.
type Result = fhevm.DecryptionResult[*fhevm.Plaintext]

// Decryptor dispatches decryption requests to an authority. It keeps no
// per-request state.
type Decryptor struct {
	authority Authority
	log       log.Logger
}

func New(authority Authority, logger log.Logger) *Decryptor {
	if logger == nil {
		logger = log.NewTestLogger(log.InfoLevel)
	}
	return &Decryptor{authority: authority, log: logger}
}

// IsEncrypted reports whether s looks like a ciphertext handle.
func IsEncrypted(s string) bool {
	return validation.IsValidHandle(s)
}

const tracerName = "github.com/luxfi/fhevm/decrypt"

// traced runs fn inside a span named op and marks the span failed when the
// result is.
func traced(ctx context.Context, op, handle string, fn func(context.Context) Result) Result {
	ctx, span := otel.Tracer(tracerName).Start(ctx, op,
		trace.WithAttributes(attribute.String("fhevm.handle", handle)),
	)
	defer span.End()

	r := fn(ctx)
	if !r.Success {
		span.SetStatus(codes.Error, r.Error)
	} else {
		span.SetAttributes(attribute.String("fhevm.type", r.Value.Kind.String()))
	}
	return r
}

func missing(op, name string) error {
	return fhevm.Errorf(fhevm.MissingParameter, op, "%s is required", name)
}

func failed(op, prefix string, code fhevm.ErrorCode, cause error) Result {
	if c, ok := fhevm.CodeOf(cause); ok {
		code = c
	}
	return fhevm.Failed[*fhevm.Plaintext](&fhevm.Error{Code: code, Op: op, Msg: prefix, Err: cause})
}

// UserDecrypt asks the signer to authorize decryption of handle for
// userAddress, then submits the signed request.
func (d *Decryptor) UserDecrypt(ctx context.Context, p UserParams) (Result, error) {
	const op, prefix = "user decrypt", "Decryption failed"

	if p.Signer == nil {
		return Result{}, missing(op, "signer")
	}
	if d.authority == nil {
		return Result{}, missing(op, "decryption authority")
	}
	return traced(ctx, op, p.Handle, func(ctx context.Context) Result {
		return d.userDecrypt(ctx, op, prefix, p)
	}), nil
}

func (d *Decryptor) userDecrypt(ctx context.Context, op, prefix string, p UserParams) Result {
	if r := validation.ValidateHandle(p.Handle, p.ContractAddress); !r.Valid {
		return failed(op, prefix, fhevm.ValidationError, r.Err())
	}
	if r := validation.ValidateUserAddress(p.UserAddress); !r.Valid {
		return failed(op, prefix, fhevm.ValidationError, r.Err())
	}

	chainID, err := p.Signer.ChainID(ctx)
	if err != nil || chainID == nil || chainID.Sign() == 0 {
		return failed(op, prefix, fhevm.MissingChainID, fhevm.ErrMissingChainID)
	}

	handle := common.HexToHash(p.Handle)
	contract := common.HexToAddress(p.ContractAddress)
	user := common.HexToAddress(p.UserAddress)

	kp := p.Keypair
	if kp == nil {
		if kp, err = seal.GenerateKeypair(); err != nil {
			return failed(op, prefix, fhevm.EncodingFailure, err)
		}
	}

	td := eip712.DecryptionRequest(handle, contract, user, kp.PublicKey(), chainID)
	sig, err := p.Signer.SignTypedData(ctx, td)
	if err != nil {
		return failed(op, prefix, fhevm.NetworkFailure, err)
	}

	req := UserRequest{
		Handle:          handle,
		ContractAddress: contract,
		UserAddress:     user,
		ChainID:         chainID,
		Signature:       sig,
		PublicKey:       kp.PublicKey(),
	}

	resp, err := d.authority.UserDecrypt(ctx, req)
	if err != nil {
		d.log.Debug("user decryption rejected",
			log.String("handle", p.Handle),
			log.Err(err),
		)
		return failed(op, prefix, fhevm.NetworkFailure, err)
	}

	pt, err := d.plaintext(resp, kp, seal.AAD(handle, user))
	if err != nil {
		return failed(op, prefix, fhevm.DecodingFailure, err)
	}
	return fhevm.Succeeded(pt)
}

// PublicDecrypt reveals a publicly decryptable handle. No signature is
// involved.
func (d *Decryptor) PublicDecrypt(ctx context.Context, p PublicParams) (Result, error) {
	const op, prefix = "public decrypt", "Public decryption failed"

	if d.authority == nil {
		return Result{}, missing(op, "decryption authority")
	}
	return traced(ctx, op, p.Handle, func(ctx context.Context) Result {
		return d.publicDecrypt(ctx, op, prefix, p)
	}), nil
}

func (d *Decryptor) publicDecrypt(ctx context.Context, op, prefix string, p PublicParams) Result {
	if r := validation.ValidateHandle(p.Handle, p.ContractAddress); !r.Valid {
		return failed(op, prefix, fhevm.ValidationError, r.Err())
	}

	req := PublicRequest{
		Handle:          common.HexToHash(p.Handle),
		ContractAddress: common.HexToAddress(p.ContractAddress),
	}
	if p.Provider != nil {
		chainID, err := p.Provider.ChainID(ctx)
		if err != nil {
			return failed(op, prefix, fhevm.NetworkFailure, err)
		}
		req.ChainID = chainID
	}

	resp, err := d.authority.PublicDecrypt(ctx, req)
	if err != nil {
		d.log.Debug("public decryption rejected",
			log.String("handle", p.Handle),
			log.Err(err),
		)
		return failed(op, prefix, fhevm.NetworkFailure, err)
	}

	pt, err := d.plaintext(resp, nil, nil)
	if err != nil {
		return failed(op, prefix, fhevm.DecodingFailure, err)
	}
	return fhevm.Succeeded(pt)
}

func (d *Decryptor) plaintext(resp *Response, kp *seal.Keypair, aad []byte) (*fhevm.Plaintext, error) {
	if resp == nil {
		return nil, fhevm.Errorf(fhevm.DecodingFailure, "decrypt", "empty response")
	}
	if len(resp.Sealed) == 0 {
		if kp != nil {
			return nil, fhevm.Errorf(fhevm.DecodingFailure, "decrypt", "expected sealed response")
		}
		if !resp.Kind.Valid() || resp.Value == nil {
			return nil, fhevm.Errorf(fhevm.DecodingFailure, "decrypt", "malformed response")
		}
		return fhevm.NewPlaintext(resp.Kind, resp.Value), nil
	}
	if kp == nil {
		return nil, fhevm.Errorf(fhevm.DecodingFailure, "decrypt", "unexpected sealed response")
	}

	opened, err := kp.Open(resp.Sealed, aad)
	if err != nil {
		return nil, fhevm.WrapError(fhevm.DecodingFailure, "decrypt", err, "failed to open sealed response")
	}
	return DecodePlaintext(opened)
}

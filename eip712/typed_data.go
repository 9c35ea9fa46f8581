// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package eip712 builds and hashes the typed data that authorizes a user
// decryption request.
package eip712

import (
	"fmt"
	"math/big"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/common/hexutil"
	"github.com/luxfi/geth/signer/core/apitypes"
	luxmath "github.com/luxfi/math"

	"github.com/luxfi/fhevm"
)

const (
	DomainType     = "EIP712Domain"
	DecryptionType = "Decryption"
)

// TypedData is a structured EIP-712 message.
type TypedData = apitypes.TypedData

// DecryptionTypes are the struct types of a decryption request. The sealing
// key is part of the signed message so a signature cannot be replayed with
// a different key.
func DecryptionTypes() apitypes.Types {
	return apitypes.Types{
		DomainType: {
			{Name: "name", Type: "string"},
			{Name: "version", Type: "string"},
			{Name: "chainId", Type: "uint256"},
			{Name: "verifyingContract", Type: "address"},
		},
		DecryptionType: {
			{Name: "handle", Type: "bytes32"},
			{Name: "contractAddress", Type: "address"},
			{Name: "userAddress", Type: "address"},
			{Name: "publicKey", Type: "bytes"},
		},
	}
}

// DecryptionRequest is the message a user signs to decrypt handle and have
// the result sealed to publicKey. The verifying contract is the contract
// that owns the handle.
func DecryptionRequest(handle common.Hash, contract, user common.Address, publicKey []byte, chainID *big.Int) *TypedData {
	return &TypedData{
		Types:       DecryptionTypes(),
		PrimaryType: DecryptionType,
		Domain: apitypes.TypedDataDomain{
			Name:              fhevm.EIP712Name,
			Version:           fhevm.EIP712Version,
			ChainId:           (*luxmath.HexOrDecimal256)(new(big.Int).Set(chainID)),
			VerifyingContract: contract.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"handle":          handle.Hex(),
			"contractAddress": contract.Hex(),
			"userAddress":     user.Hex(),
			"publicKey":       hexutil.Encode(publicKey),
		},
	}
}

// Hash is keccak256("\x19\x01" || domainSeparator || structHash).
func Hash(td *TypedData) (common.Hash, error) {
	digest, _, err := apitypes.TypedDataAndHash(*td)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash typed data: %w", err)
	}
	return common.BytesToHash(digest), nil
}

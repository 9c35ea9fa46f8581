// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package gateway

import (
	"math/big"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/common/hexutil"

	"github.com/luxfi/fhevm"
)

type PublicKeyResponse struct {
	PublicKey hexutil.Bytes `json:"publicKey"`
	ChainID   *big.Int      `json:"chainId"`
}

// InputRequest registers ciphertexts produced by a local instance. Data may
// hold several concatenated inputs; Signature is their input proof.
type InputRequest struct {
	ContractAddress common.Address   `json:"contractAddress"`
	UserAddress     common.Address   `json:"userAddress"`
	Data            hexutil.Bytes    `json:"data"`
	Signature       hexutil.Bytes    `json:"signature"`
	Public          bool             `json:"public,omitempty"`
	Allow           []common.Address `json:"allow,omitempty"`
}

type InputResponse struct {
	Handles []common.Hash `json:"handles"`
}

// Value is one plaintext for gateway-side encryption, in decimal or 0x hex.
type Value struct {
	Kind  fhevm.Kind `json:"type"`
	Value string     `json:"value"`
}

// EncryptRequest asks the gateway to encrypt and register values on the
// caller's behalf.
type EncryptRequest struct {
	ContractAddress common.Address   `json:"contractAddress"`
	UserAddress     common.Address   `json:"userAddress"`
	Values          []Value          `json:"values"`
	Public          bool             `json:"public,omitempty"`
	Allow           []common.Address `json:"allow,omitempty"`
}

type EncryptResponse struct {
	Data      hexutil.Bytes `json:"data"`
	Signature hexutil.Bytes `json:"signature"`
	Handles   []common.Hash `json:"handles"`
}

type ACLRequest struct {
	Handle  common.Hash    `json:"handle"`
	Address common.Address `json:"address,omitempty"`
}

type UserDecryptRequest struct {
	Handle          common.Hash    `json:"handle"`
	ContractAddress common.Address `json:"contractAddress"`
	UserAddress     common.Address `json:"userAddress"`
	ChainID         *big.Int       `json:"chainId"`
	Signature       hexutil.Bytes  `json:"signature"`
	PublicKey       hexutil.Bytes  `json:"publicKey"`
}

type PublicDecryptRequest struct {
	Handle          common.Hash    `json:"handle"`
	ContractAddress common.Address `json:"contractAddress"`
	ChainID         *big.Int       `json:"chainId,omitempty"`
}

// DecryptResponse carries either Type and Value, or Sealed.
type DecryptResponse struct {
	Type   string        `json:"type,omitempty"`
	Value  string        `json:"value,omitempty"`
	Sealed hexutil.Bytes `json:"sealed,omitempty"`
}

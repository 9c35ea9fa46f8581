// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package eip712

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
)

var ErrInvalidSignature = errors.New("invalid signature")

// Wallet signs typed data with a secp256k1 key for a fixed chain.
type Wallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
}

// NewWallet wraps key. A nil chainID makes ChainID fail, as a wallet that is
// not connected to a network would.
func NewWallet(key *ecdsa.PrivateKey, chainID *big.Int) *Wallet {
	w := &Wallet{key: key, address: PubkeyToAddress(&key.PublicKey)}
	if chainID != nil {
		w.chainID = new(big.Int).Set(chainID)
	}
	return w
}

func GenerateWallet(chainID *big.Int) (*Wallet, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return NewWallet(key, chainID), nil
}

// WalletFromHex loads a hex private key, with or without 0x prefix.
func WalletFromHex(hexKey string, chainID *big.Int) (*Wallet, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return NewWallet(key, chainID), nil
}

func (w *Wallet) Address() common.Address {
	return w.address
}

func (w *Wallet) ChainID(context.Context) (*big.Int, error) {
	if w.chainID == nil {
		return nil, errors.New("wallet is not connected to a network")
	}
	return new(big.Int).Set(w.chainID), nil
}

// SignTypedData returns a 65-byte [R || S || V] signature with V in {27, 28}.
func (w *Wallet) SignTypedData(ctx context.Context, td *TypedData) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	digest, err := Hash(td)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(digest.Bytes(), w.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign typed data: %w", err)
	}
	sig[64] += 27
	return sig, nil
}

// Recover returns the address that produced sig over td. V may be 0/1 or
// 27/28.
func Recover(td *TypedData, sig []byte) (common.Address, error) {
	if len(sig) != 65 {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrInvalidSignature, len(sig))
	}
	digest, err := Hash(td)
	if err != nil {
		return common.Address{}, err
	}

	normalized := make([]byte, 65)
	copy(normalized, sig)
	if normalized[64] >= 27 {
		normalized[64] -= 27
	}
	if normalized[64] > 1 {
		return common.Address{}, fmt.Errorf("%w: recovery id %d", ErrInvalidSignature, sig[64])
	}

	pub, err := crypto.SigToPub(digest.Bytes(), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
	return PubkeyToAddress(pub), nil
}

// PubkeyToAddress derives the EVM address of a secp256k1 public key.
func PubkeyToAddress(pub *ecdsa.PublicKey) common.Address {
	raw := crypto.FromECDSAPub(pub)
	return common.BytesToAddress(crypto.Keccak256(raw[1:])[12:])
}

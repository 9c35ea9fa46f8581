// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package seal re-encrypts decrypted plaintexts to a user's ephemeral key
// (HPKE base mode, X25519 / HKDF-SHA256 / ChaCha20-Poly1305), so a gateway
// response is only readable by the requester.
package seal

import (
	"errors"
	"fmt"

	"github.com/cloudflare/circl/hpke"
	"github.com/cloudflare/circl/kem"
	"github.com/luxfi/geth/common"
)

const (
	kemID  = hpke.KEM_X25519_HKDF_SHA256
	kdfID  = hpke.KDF_HKDF_SHA256
	aeadID = hpke.AEAD_ChaCha20Poly1305
)

var (
	ErrInvalidPublicKey = errors.New("invalid seal public key")
	ErrSealedTooShort   = errors.New("sealed payload too short")

	suite = hpke.NewSuite(kemID, kdfID, aeadID)
	info  = []byte("fhevm/reencrypt/v1")
)

// Keypair is an ephemeral recipient key.
type Keypair struct {
	public  kem.PublicKey
	private kem.PrivateKey
}

func GenerateKeypair() (*Keypair, error) {
	pk, sk, err := kemID.Scheme().GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("failed to generate seal keypair: %w", err)
	}
	return &Keypair{public: pk, private: sk}, nil
}

// KeypairFromPrivate restores a keypair from its serialized private key.
func KeypairFromPrivate(b []byte) (*Keypair, error) {
	sk, err := kemID.Scheme().UnmarshalBinaryPrivateKey(b)
	if err != nil {
		return nil, fmt.Errorf("invalid seal private key: %w", err)
	}
	return &Keypair{public: sk.Public(), private: sk}, nil
}

func (k *Keypair) PublicKey() []byte {
	b, _ := k.public.MarshalBinary()
	return b
}

func (k *Keypair) PrivateKey() []byte {
	b, _ := k.private.MarshalBinary()
	return b
}

// AAD binds a sealed plaintext to the handle and requester it was released
// for.
func AAD(handle common.Hash, user common.Address) []byte {
	return append(handle.Bytes(), user.Bytes()...)
}

// Seal encrypts plaintext to publicKey. The output is enc || ciphertext.
func Seal(publicKey, plaintext, aad []byte) ([]byte, error) {
	pk, err := kemID.Scheme().UnmarshalBinaryPublicKey(publicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPublicKey, err)
	}

	sender, err := suite.NewSender(pk, info)
	if err != nil {
		return nil, err
	}
	enc, sealer, err := sender.Setup(nil)
	if err != nil {
		return nil, err
	}
	ct, err := sealer.Seal(plaintext, aad)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(enc)+len(ct))
	out = append(out, enc...)
	return append(out, ct...), nil
}

// Open decrypts a payload produced by Seal for k.
func (k *Keypair) Open(sealed, aad []byte) ([]byte, error) {
	encLen := kemID.Scheme().CiphertextSize()
	if len(sealed) < encLen {
		return nil, ErrSealedTooShort
	}

	receiver, err := suite.NewReceiver(k.private, info)
	if err != nil {
		return nil, err
	}
	opener, err := receiver.Setup(sealed[:encLen])
	if err != nil {
		return nil, err
	}
	return opener.Open(sealed[encLen:], aad)
}

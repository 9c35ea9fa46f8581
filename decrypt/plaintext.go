// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package decrypt

import (
	"github.com/holiman/uint256"

	"github.com/luxfi/fhevm"
)

// PlaintextLen is the size of a sealed plaintext: kind byte, then the value
// as a 32-byte big-endian word.
const PlaintextLen = 1 + 32

// EncodePlaintext serializes p for sealing.
func EncodePlaintext(p *fhevm.Plaintext) []byte {
	out := make([]byte, PlaintextLen)
	out[0] = byte(p.Kind)
	word := p.Value.Bytes32()
	copy(out[1:], word[:])
	return out
}

func DecodePlaintext(b []byte) (*fhevm.Plaintext, error) {
	if len(b) != PlaintextLen {
		return nil, fhevm.Errorf(fhevm.DecodingFailure, "decrypt", "plaintext must be %d bytes, got %d", PlaintextLen, len(b))
	}
	kind := fhevm.Kind(b[0])
	if !kind.Valid() {
		return nil, fhevm.Errorf(fhevm.DecodingFailure, "decrypt", "unknown plaintext kind %d", b[0])
	}
	v := new(uint256.Int).SetBytes32(b[1:])
	if v.Gt(kind.Max()) {
		return nil, fhevm.Errorf(fhevm.DecodingFailure, "decrypt", "value exceeds %s range", kind)
	}
	return fhevm.NewPlaintext(kind, v), nil
}

// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import (
	"encoding/binary"
	"fmt"

	"github.com/luxfi/fhevm"
)

// Frame layout:
//
//	[1 byte version][1 byte kind][1 byte limb count]
//	repeated: [4 bytes big-endian length][limb ciphertext]
//
// Frames are self-delimiting, so several inputs can be concatenated.
const (
	frameVersion    = 1
	frameHeaderSize = 3
	maxLimbs        = 4
)

func encodeFrame(kind fhevm.Kind, limbs [][]byte) ([]byte, error) {
	if len(limbs) == 0 || len(limbs) > maxLimbs {
		return nil, fmt.Errorf("%w: %d limbs", ErrInvalidCiphertext, len(limbs))
	}

	size := frameHeaderSize
	for _, l := range limbs {
		size += 4 + len(l)
	}

	out := make([]byte, frameHeaderSize, size)
	out[0] = frameVersion
	out[1] = byte(kind)
	out[2] = byte(len(limbs))
	for _, l := range limbs {
		out = binary.BigEndian.AppendUint32(out, uint32(len(l)))
		out = append(out, l...)
	}
	return out, nil
}

// decodeFrame parses one frame from the front of data and returns the rest.
func decodeFrame(data []byte) (fhevm.Kind, [][]byte, []byte, error) {
	if len(data) < frameHeaderSize {
		return 0, nil, nil, fmt.Errorf("%w: short header", ErrInvalidCiphertext)
	}
	if data[0] != frameVersion {
		return 0, nil, nil, fmt.Errorf("%w: unknown version %d", ErrInvalidCiphertext, data[0])
	}
	kind := fhevm.Kind(data[1])
	if !kind.Valid() {
		return 0, nil, nil, fmt.Errorf("%w: unknown kind %d", ErrInvalidCiphertext, data[1])
	}
	n := int(data[2])
	if n != limbCount(kind) {
		return 0, nil, nil, fmt.Errorf("%w: %s expects %d limbs, got %d", ErrInvalidCiphertext, kind, limbCount(kind), n)
	}

	rest := data[frameHeaderSize:]
	limbs := make([][]byte, n)
	for i := range limbs {
		if len(rest) < 4 {
			return 0, nil, nil, fmt.Errorf("%w: truncated limb %d", ErrInvalidCiphertext, i)
		}
		l := binary.BigEndian.Uint32(rest)
		rest = rest[4:]
		if uint64(len(rest)) < uint64(l) {
			return 0, nil, nil, fmt.Errorf("%w: truncated limb %d", ErrInvalidCiphertext, i)
		}
		limbs[i] = rest[:l]
		rest = rest[l:]
	}
	return kind, limbs, rest, nil
}

// FrameKind reports the kind recorded in a framed ciphertext.
func FrameKind(data []byte) (fhevm.Kind, error) {
	kind, _, _, err := decodeFrame(data)
	return kind, err
}

// SplitInputs splits concatenated frames into individual ciphertexts.
func SplitInputs(data []byte) ([][]byte, error) {
	var inputs [][]byte
	for len(data) > 0 {
		_, _, rest, err := decodeFrame(data)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, data[:len(data)-len(rest)])
		data = rest
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrInvalidCiphertext)
	}
	return inputs, nil
}

// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhevm

import (
	"strings"

	"github.com/holiman/uint256"
)

// Kind identifies the plaintext type of an encrypted value.
type Kind uint8

const (
	Uint8 Kind = iota
	Uint16
	Uint32
	Uint64
	Uint128
	Uint256
	Bool
	Address

	// NumKinds is the size of the closed kind set.
	NumKinds = int(Address) + 1
)

// KindInfo describes the bit width and largest representable value of a kind.
type KindInfo struct {
	Name string
	Bits int
	Max  *uint256.Int
}

var kindInfo = [NumKinds]KindInfo{
	Uint8:   {Name: "uint8", Bits: 8, Max: maxBits(8)},
	Uint16:  {Name: "uint16", Bits: 16, Max: maxBits(16)},
	Uint32:  {Name: "uint32", Bits: 32, Max: maxBits(32)},
	Uint64:  {Name: "uint64", Bits: 64, Max: maxBits(64)},
	Uint128: {Name: "uint128", Bits: 128, Max: maxBits(128)},
	Uint256: {Name: "uint256", Bits: 256, Max: maxBits(256)},
	Bool:    {Name: "bool", Bits: 1, Max: uint256.NewInt(1)},
	Address: {Name: "address", Bits: 160, Max: maxBits(160)},
}

// maxBits returns 2^bits - 1.
func maxBits(bits uint) *uint256.Int {
	if bits >= 256 {
		return new(uint256.Int).SetAllOne()
	}
	one := uint256.NewInt(1)
	return new(uint256.Int).Sub(new(uint256.Int).Lsh(one, bits), one)
}

// Kinds returns every kind in declaration order.
func Kinds() []Kind {
	kinds := make([]Kind, NumKinds)
	for i := range kinds {
		kinds[i] = Kind(i)
	}
	return kinds
}

// ParseKind maps the string form of a kind ("uint8", "bool", ...) to its Kind.
func ParseKind(s string) (Kind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for i, info := range kindInfo {
		if info.Name == name {
			return Kind(i), nil
		}
	}
	return 0, Errorf(UnsupportedType, "parse kind", "Unsupported encryption type: %s", s)
}

func (k Kind) Valid() bool {
	return int(k) < NumKinds
}

func (k Kind) String() string {
	if !k.Valid() {
		return "unknown"
	}
	return kindInfo[k].Name
}

// Bits returns the bit width of k, or 0 for an unknown kind.
func (k Kind) Bits() int {
	if !k.Valid() {
		return 0
	}
	return kindInfo[k].Bits
}

// Max returns a copy of the largest value representable by k.
func (k Kind) Max() *uint256.Int {
	if !k.Valid() {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(kindInfo[k].Max)
}

// Info returns the registry entry for k.
func (k Kind) Info() (KindInfo, bool) {
	if !k.Valid() {
		return KindInfo{}, false
	}
	info := kindInfo[k]
	info.Max = k.Max()
	return info, true
}

// Integer reports whether k is one of the unsigned integer kinds.
func (k Kind) Integer() bool {
	return k <= Uint256
}

func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, Errorf(UnsupportedType, "marshal kind", "Unsupported encryption type: %d", uint8(k))
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package validation checks encryption and decryption parameters before any
// FHE primitive or gateway is contacted.
package validation

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"github.com/holiman/uint256"
	"github.com/luxfi/geth/common"

	"github.com/luxfi/fhevm"
)

var (
	addressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
	handlePattern  = regexp.MustCompile(`^0x[a-fA-F0-9]{64}$`)
)

// IsValidAddress reports whether s is 0x followed by exactly 40 hex digits.
func IsValidAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// IsValidHandle reports whether s is 0x followed by exactly 64 hex digits.
func IsValidHandle(s string) bool {
	return handlePattern.MatchString(s)
}

// Validate checks that value can be encrypted as kind for contractAddress.
// Only the first failing check is reported.
func Validate(value any, kind fhevm.Kind, contractAddress string) fhevm.ValidationResult {
	if !IsValidAddress(contractAddress) {
		return fhevm.Invalid("Invalid contract address: %s", contractAddress)
	}
	if !kind.Valid() {
		return fhevm.Invalid("Unknown encryption type: %s", kind)
	}
	if _, err := Normalize(value, kind); err != nil {
		return fhevm.ValidationResult{Error: reason(err)}
	}
	return fhevm.Valid()
}

// ValidateNamed is Validate for callers holding the kind as a string.
func ValidateNamed(value any, kind string, contractAddress string) fhevm.ValidationResult {
	if !IsValidAddress(contractAddress) {
		return fhevm.Invalid("Invalid contract address: %s", contractAddress)
	}
	k, err := fhevm.ParseKind(kind)
	if err != nil {
		return fhevm.Invalid("Unknown encryption type: %s", kind)
	}
	return Validate(value, k, contractAddress)
}

// ValidateHandle checks a handle and the contract it belongs to.
func ValidateHandle(handle, contractAddress string) fhevm.ValidationResult {
	if !IsValidHandle(handle) {
		return fhevm.Invalid("Invalid handle format: %s", handle)
	}
	if !IsValidAddress(contractAddress) {
		return fhevm.Invalid("Invalid contract address: %s", contractAddress)
	}
	return fhevm.Valid()
}

func ValidateUserAddress(address string) fhevm.ValidationResult {
	if !IsValidAddress(address) {
		return fhevm.Invalid("Invalid user address: %s", address)
	}
	return fhevm.Valid()
}

// ValidateBatch checks that handles is non-empty and every handle is valid.
func ValidateBatch(handles []string, contractAddress string) fhevm.ValidationResult {
	if len(handles) == 0 {
		return fhevm.Invalid("Handles must be a non-empty array")
	}
	for _, h := range handles {
		if r := ValidateHandle(h, contractAddress); !r.Valid {
			return r
		}
	}
	return fhevm.Valid()
}

// AssertValid returns the ValidationError for a failed result.
func AssertValid(r fhevm.ValidationResult) error {
	if r.Valid {
		return nil
	}
	if r.Error == "" {
		r.Error = "Validation failed"
	}
	return r.Err()
}

// Normalize range-checks value for kind and returns it as a 256-bit word.
// Booleans become 0 or 1 and addresses their 160-bit integer value.
func Normalize(value any, kind fhevm.Kind) (*uint256.Int, error) {
	switch {
	case kind == fhevm.Bool:
		return normalizeBool(value)
	case kind == fhevm.Address:
		return normalizeAddress(value)
	case kind.Bits() > 0 && kind.Bits() <= 32:
		n, ok := toInteger(value, true)
		if !ok || !inRange(n, kind) {
			return nil, rangeError(kind)
		}
		return uint256.MustFromBig(n), nil
	case kind.Integer():
		n, ok := toInteger(value, false)
		if !ok {
			return nil, fhevm.Errorf(fhevm.ValidationError, "validate", "Value must be a valid integer or BigInt")
		}
		if !inRange(n, kind) {
			return nil, rangeError(kind)
		}
		return uint256.MustFromBig(n), nil
	default:
		return nil, fhevm.Errorf(fhevm.ValidationError, "validate", "Unknown encryption type: %s", kind)
	}
}

func normalizeBool(value any) (*uint256.Int, error) {
	switch v := value.(type) {
	case bool:
		if v {
			return uint256.NewInt(1), nil
		}
		return new(uint256.Int), nil
	case string, nil:
	default:
		if n, ok := toInteger(v, true); ok && n.IsUint64() && n.Uint64() <= 1 {
			return uint256.NewInt(n.Uint64()), nil
		}
	}
	return nil, fhevm.Errorf(fhevm.ValidationError, "validate", "Value must be boolean or 0/1")
}

func normalizeAddress(value any) (*uint256.Int, error) {
	var s string
	switch v := value.(type) {
	case string:
		s = v
	case common.Address:
		s = v.Hex()
	case *common.Address:
		if v != nil {
			s = v.Hex()
		}
	default:
		s = fmt.Sprint(v)
	}
	if !IsValidAddress(s) {
		return nil, fhevm.Errorf(fhevm.ValidationError, "validate", "Invalid Ethereum address: %s", s)
	}
	return new(uint256.Int).SetBytes20(common.HexToAddress(s).Bytes()), nil
}

func rangeError(kind fhevm.Kind) error {
	return fhevm.Errorf(fhevm.ValidationError, "validate", "Value must be between 0 and %s", kind.Max().Dec())
}

func inRange(n *big.Int, kind fhevm.Kind) bool {
	return n.Sign() >= 0 && n.Cmp(kind.Max().ToBig()) <= 0
}

// toInteger coerces the numeric shapes callers commonly hold. allowFloat
// admits integral floats written as strings ("42.0").
func toInteger(value any, allowFloat bool) (*big.Int, bool) {
	switch v := value.(type) {
	case int:
		return big.NewInt(int64(v)), true
	case int8:
		return big.NewInt(int64(v)), true
	case int16:
		return big.NewInt(int64(v)), true
	case int32:
		return big.NewInt(int64(v)), true
	case int64:
		return big.NewInt(v), true
	case uint:
		return new(big.Int).SetUint64(uint64(v)), true
	case uint8:
		return new(big.Int).SetUint64(uint64(v)), true
	case uint16:
		return new(big.Int).SetUint64(uint64(v)), true
	case uint32:
		return new(big.Int).SetUint64(uint64(v)), true
	case uint64:
		return new(big.Int).SetUint64(v), true
	case float32:
		return floatToInteger(float64(v))
	case float64:
		return floatToInteger(v)
	case *big.Int:
		if v == nil {
			return nil, false
		}
		return new(big.Int).Set(v), true
	case *uint256.Int:
		if v == nil {
			return nil, false
		}
		return v.ToBig(), true
	case json.Number:
		return parseInteger(string(v), allowFloat)
	case string:
		return parseInteger(v, allowFloat)
	default:
		return nil, false
	}
}

func parseInteger(s string, allowFloat bool) (*big.Int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, false
	}
	digits := s
	neg := strings.HasPrefix(digits, "-")
	if neg {
		digits = digits[1:]
	}
	base := 10
	if len(digits) > 2 && (digits[:2] == "0x" || digits[:2] == "0X") {
		base, digits = 16, digits[2:]
	}
	if n, ok := new(big.Int).SetString(digits, base); ok {
		if neg {
			n.Neg(n)
		}
		return n, true
	}
	if !allowFloat {
		return nil, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, false
	}
	return floatToInteger(f)
}

func floatToInteger(f float64) (*big.Int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return nil, false
	}
	n, _ := big.NewFloat(f).Int(nil)
	return n, true
}

func reason(err error) string {
	if e, ok := err.(*fhevm.Error); ok {
		return e.Msg
	}
	return err.Error()
}

// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package utils holds small display and retry helpers shared by the CLI and
// servers.
package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// FormatEncryptedData shortens data to its first and last n characters.
// Strings of at most 2n characters are returned unchanged.
func FormatEncryptedData(data string, n int) string {
	if n <= 0 {
		n = 10
	}
	if len(data) <= 2*n {
		return data
	}
	return data[:n] + "..." + data[len(data)-n:]
}

// Truncate keeps the head and tail of text so the result fits maxLength.
func Truncate(text string, maxLength int) string {
	if maxLength <= 0 {
		maxLength = 20
	}
	if len(text) <= maxLength {
		return text
	}
	half := (maxLength - 3) / 2
	return text[:half] + "..." + text[len(text)-half:]
}

func FormatGas(gas uint64) string {
	switch {
	case gas >= 1_000_000:
		return fmt.Sprintf("%.2fM", float64(gas)/1_000_000)
	case gas >= 1_000:
		return fmt.Sprintf("%.2fK", float64(gas)/1_000)
	default:
		return fmt.Sprint(gas)
	}
}

// GenerateMockHandle returns a random well-formed handle for tests and
// demos. It does not refer to any ciphertext.
func GenerateMockHandle() string {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(err)
	}
	return "0x" + hex.EncodeToString(b[:])
}

// ParseError extracts a message from an error-like value.
func ParseError(v any) string {
	switch e := v.(type) {
	case error:
		return e.Error()
	case string:
		return e
	case fmt.Stringer:
		return e.String()
	default:
		return "Unknown error occurred"
	}
}

// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	log "github.com/luxfi/log"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/fhevm/validation"
)

func TestFormatEncryptedData(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"", 10, ""},
		{"0x1234", 10, "0x1234"},
		{"abcdefghijklmnopqrstuvwxyz", 4, "abcd...wxyz"},
		{"abcdefgh", 4, "abcdefgh"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			require.Equal(t, tt.want, FormatEncryptedData(tt.in, tt.n))
		})
	}
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "short", Truncate("short", 20))
	require.Equal(t, "0x12...cdef", Truncate("0x1234567890abcdef", 11))
}

func TestFormatGas(t *testing.T) {
	require.Equal(t, "999", FormatGas(999))
	require.Equal(t, "21.00K", FormatGas(21_000))
	require.Equal(t, "1.50M", FormatGas(1_500_000))
}

func TestGenerateMockHandle(t *testing.T) {
	a, b := GenerateMockHandle(), GenerateMockHandle()
	require.True(t, validation.IsValidHandle(a))
	require.NotEqual(t, a, b)
}

func TestParseError(t *testing.T) {
	require.Equal(t, "boom", ParseError(errors.New("boom")))
	require.Equal(t, "plain", ParseError("plain"))
	require.Equal(t, "Unknown error occurred", ParseError(42))
	require.Equal(t, "Unknown error occurred", ParseError(nil))
}

func TestWithMaxRetries(t *testing.T) {
	logger := log.NewTestLogger(log.InfoLevel)
	ctx := context.Background()

	calls := 0
	err := WithMaxRetries(ctx, logger, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, 3, time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, 3, calls)

	calls = 0
	err = WithMaxRetries(ctx, logger, func() error {
		calls++
		return errors.New("down")
	}, 3, time.Millisecond)
	require.EqualError(t, err, "down")
	require.Equal(t, 3, calls)

	calls = 0
	stop := errors.New("bad request")
	err = WithMaxRetries(ctx, logger, func() error {
		calls++
		return Permanent(stop)
	}, 3, time.Millisecond)
	require.ErrorIs(t, err, stop)
	require.Equal(t, 1, calls)
}

func TestWithRetriesTimeout(t *testing.T) {
	calls := 0
	err := WithRetriesTimeout(context.Background(), nil, func() error {
		calls++
		if calls == 1 {
			return errors.New("transient")
		}
		return nil
	}, time.Second)
	require.NoError(t, err)
	require.Equal(t, 2, calls)
}

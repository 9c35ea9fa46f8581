// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhevm

import (
	"errors"
	"fmt"
)

// ErrorCode classifies failures of the encrypt and decrypt paths.
type ErrorCode uint8

const (
	ValidationError ErrorCode = iota + 1
	UninitializedClient
	UnsupportedType
	EncodingFailure
	DecodingFailure
	NetworkFailure
	MissingChainID
	MissingParameter
)

var (
	ErrValidation          = errors.New("validation error")
	ErrUninitializedClient = errors.New("FHEVM client not initialized")
	ErrUnsupportedType     = errors.New("unsupported encryption type")
	ErrEncoding            = errors.New("encoding failure")
	ErrDecoding            = errors.New("decoding failure")
	ErrNetwork             = errors.New("network failure")
	ErrMissingChainID      = errors.New("Unable to get chain ID from signer")
	ErrMissingParameter    = errors.New("missing required parameter")
)

var codeSentinels = map[ErrorCode]error{
	ValidationError:     ErrValidation,
	UninitializedClient: ErrUninitializedClient,
	UnsupportedType:     ErrUnsupportedType,
	EncodingFailure:     ErrEncoding,
	DecodingFailure:     ErrDecoding,
	NetworkFailure:      ErrNetwork,
	MissingChainID:      ErrMissingChainID,
	MissingParameter:    ErrMissingParameter,
}

func (c ErrorCode) String() string {
	switch c {
	case ValidationError:
		return "ValidationError"
	case UninitializedClient:
		return "UninitializedClient"
	case UnsupportedType:
		return "UnsupportedType"
	case EncodingFailure:
		return "EncodingFailure"
	case DecodingFailure:
		return "DecodingFailure"
	case NetworkFailure:
		return "NetworkFailure"
	case MissingChainID:
		return "MissingChainId"
	case MissingParameter:
		return "MissingParameter"
	default:
		return fmt.Sprintf("ErrorCode(%d)", uint8(c))
	}
}

// Sentinel returns the package-level error matched by errors.Is for c.
func (c ErrorCode) Sentinel() error {
	return codeSentinels[c]
}

// Error is the typed error returned across the SDK. Msg is the human readable
// reason; Err, when set, is the underlying cause.
type Error struct {
	Code ErrorCode
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		if s := e.Code.Sentinel(); s != nil {
			msg = s.Error()
		} else {
			msg = e.Code.String()
		}
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error's code so callers can write
// errors.Is(err, fhevm.ErrValidation).
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return t.Code == e.Code
	}
	s := e.Code.Sentinel()
	return s != nil && s == target
}

// Errorf builds an *Error with a formatted message.
func Errorf(code ErrorCode, op, format string, args ...any) *Error {
	return &Error{Code: code, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// WrapError builds an *Error whose message is followed by the cause.
func WrapError(code ErrorCode, op string, cause error, format string, args ...any) *Error {
	return &Error{Code: code, Op: op, Msg: fmt.Sprintf(format, args...), Err: cause}
}

// CodeOf reports the ErrorCode carried by err, if any.
func CodeOf(err error) (ErrorCode, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return 0, false
}
